// Package executor contains OrderExecutor implementations.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/alejandrodnm/tradecore/internal/costmodel"
	"github.com/alejandrodnm/tradecore/internal/domain"
)

// Paper fills orders in-process with the cost model. Used by backtests and
// paper sessions; nothing leaves the process.
type Paper struct {
	model *costmodel.Model

	fills atomic.Int64
	fees  atomic.Uint64 // fee total in 1e-8 units
}

// NewPaper creates a paper executor.
func NewPaper(model *costmodel.Model) *Paper {
	return &Paper{model: model}
}

// Submit implements ports.OrderExecutor.
func (p *Paper) Submit(ctx context.Context, order domain.Order, book domain.BookState) (domain.FillResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.FillResult{}, fmt.Errorf("executor.Submit: %w", err)
	}
	fill, err := p.model.SimulateFill(order, book)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("executor.Submit: %w", err)
	}
	p.fills.Add(1)
	p.fees.Add(uint64(fill.Fee * 1e8))

	slog.Debug("executor: paper fill",
		"instrument", order.Instrument,
		"side", order.Side,
		"requested", order.Price,
		"price", fill.Price,
		"size", fill.Size,
		"fee", fill.Fee,
		"maker", fill.IsMaker,
		"slippage_bps", fill.SlippageBps,
	)
	return fill, nil
}

// Fills returns the number of orders filled so far.
func (p *Paper) Fills() int64 { return p.fills.Load() }

// Fees returns the fees paid so far.
func (p *Paper) Fees() float64 { return float64(p.fees.Load()) / 1e8 }
