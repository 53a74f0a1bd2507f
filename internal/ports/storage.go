package ports

import (
	"context"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// RunStore persiste los resultados de cada backtest o sesión paper.
type RunStore interface {
	// SaveRun persiste el reporte, sus trades y las estadísticas por reason code
	// en una sola transacción.
	SaveRun(ctx context.Context, run domain.RunRecord, trades []domain.Trade) error

	// Runs devuelve las últimas ejecuciones, la más reciente primero.
	Runs(ctx context.Context, limit int) ([]domain.RunRecord, error)

	// Trades devuelve los trades de una ejecución en orden de cierre.
	Trades(ctx context.Context, runID string) ([]domain.Trade, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
