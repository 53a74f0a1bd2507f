package ports

import (
	"context"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// TickSource produce ticks en orden de timestamp no decreciente.
type TickSource interface {
	// Next devuelve el siguiente tick, o io.EOF cuando la fuente se agota.
	// Las fuentes en vivo bloquean hasta que haya un tick o ctx se cancele.
	Next(ctx context.Context) (domain.Tick, error)
}
