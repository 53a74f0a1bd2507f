package ports

import "github.com/alejandrodnm/tradecore/internal/domain"

// Publisher fans events out to subscribers. Publish never blocks the caller.
type Publisher interface {
	Publish(event domain.Event)
}
