package clients

import (
	"context"

	"github.com/expensio/expensio_backend/internal/core/domain"
)

// Notifier delivers lifecycle events to users. Delivery is fire-and-forget:
// the state machine emits events after commit and logs failures without
// retrying or surfacing them.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}
