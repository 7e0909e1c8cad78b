package notifier

import (
	"context"
	"log/slog"

	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
)

// LogNotifier writes events to the log. It is the default sink when SMTP is
// not configured, which keeps notifications observable in development.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Ensure LogNotifier implements clients.Notifier
var _ clients.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Notify(ctx context.Context, event domain.Event) error {
	n.logger.Info("notification event",
		slog.String("type", string(event.Type)),
		slog.String("expense_id", event.ExpenseID),
		slog.String("recipient_id", event.RecipientID),
		slog.Any("payload", event.Payload))
	return nil
}
