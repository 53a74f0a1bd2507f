package ports

import (
	"context"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// Notifier presenta los resultados de una ejecución al usuario.
type Notifier interface {
	// NotifyReport muestra el reporte de performance de una ejecución.
	// En la implementación de consola, imprime tablas formateadas.
	NotifyReport(ctx context.Context, label string, report domain.PerformanceReport) error
}
