// Package notifier implements the Notifier port. Events are delivered by
// email when SMTP is configured and logged otherwise; either way delivery is
// best-effort and never blocks or fails a lifecycle transition.
package notifier

import (
	"context"
	"fmt"

	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
	portsrepo "github.com/expensio/expensio_backend/internal/core/ports/repositories"
	"gopkg.in/gomail.v2"
)

// SMTPNotifier emails lifecycle events to the recipient user.
type SMTPNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	users    portsrepo.UserReader
}

func NewSMTPNotifier(host string, port int, username, password, from string, users portsrepo.UserReader) *SMTPNotifier {
	return &SMTPNotifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		users:    users,
	}
}

// Ensure SMTPNotifier implements clients.Notifier
var _ clients.Notifier = (*SMTPNotifier)(nil)

// Notify resolves the recipient's email and sends one message for the event.
func (n *SMTPNotifier) Notify(ctx context.Context, event domain.Event) error {
	recipient, err := n.users.FindUserByID(ctx, event.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to resolve notification recipient %s: %w", event.RecipientID, err)
	}

	subject, intro := describeEvent(event.Type)

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", recipient.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", generateEventBody(recipient.Name, intro, event))

	d := gomail.NewDialer(n.host, n.port, n.username, n.password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send notification email: %w", err)
	}
	return nil
}

func describeEvent(t domain.EventType) (subject, intro string) {
	switch t {
	case domain.EventExpenseSubmitted:
		return "Expense awaiting your review", "An expense was submitted and assigned to you for review."
	case domain.EventExpenseApproved:
		return "Your expense was approved", "Good news: your expense was approved."
	case domain.EventExpenseRejected:
		return "Your expense was rejected", "Your expense was rejected."
	case domain.EventChangesRequested:
		return "Changes requested on your expense", "Your reviewer asked for changes before this expense can move forward."
	case domain.EventExpenseReimbursed:
		return "Your expense was reimbursed", "Your expense was marked as reimbursed."
	default:
		return "Expense update", "There was an update on an expense."
	}
}

func generateEventBody(name, intro string, event domain.Event) string {
	details := ""
	if title, ok := event.Payload["title"].(string); ok && title != "" {
		details += fmt.Sprintf("<p><strong>Title:</strong> %s</p>", title)
	}
	if amount, ok := event.Payload["amount"].(string); ok && amount != "" {
		details += fmt.Sprintf("<p><strong>Amount:</strong> %s</p>", amount)
	}
	if note, ok := event.Payload["note"].(string); ok && note != "" {
		details += fmt.Sprintf("<p><strong>Note:</strong> %s</p>", note)
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; background: #f5f5f5; padding: 20px;">
    <div style="max-width: 600px; margin: 0 auto; background: #fff; border-radius: 8px; padding: 30px;">
        <h2 style="margin-top: 0;">Expensio</h2>
        <p>Hi <strong>%s</strong>,</p>
        <p>%s</p>
        %s
        <p style="color: #6c757d; font-size: 12px;">Expense ID: %s</p>
        <p style="color: #6c757d; font-size: 12px;">This email was sent automatically, please do not reply.</p>
    </div>
</body>
</html>
`, name, intro, details, event.ExpenseID)
}
