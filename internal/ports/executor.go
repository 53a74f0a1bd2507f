package ports

import (
	"context"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// OrderExecutor turns an order into a fill. Paper and backtest modes price
// fills in-process with the cost model; a venue adapter would submit to the
// exchange and report what it got back.
type OrderExecutor interface {
	// Submit executes order against the given top of book.
	Submit(ctx context.Context, order domain.Order, book domain.BookState) (domain.FillResult, error)
}
