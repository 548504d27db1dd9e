package alerting

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"fare-deal-alerts/internal/model"
)

// EmailNotifier delivers deals over SMTP with STARTTLS.
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
	logger   zerolog.Logger

	// send is swappable in tests; defaults to smtp.SendMail.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier constructs an SMTP notifier.
func NewEmailNotifier(host string, port int, username, password, from, to string, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		logger:   logger.With().Str("component", "alert_email").Logger(),
		send:     smtp.SendMail,
	}
}

// Notify sends one plain-text deal email. net/smtp has no context support,
// so cancellation is only honoured before the dial.
func (n *EmailNotifier) Notify(ctx context.Context, deal model.Deal) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("Flight deal: %s -> %s at %s %s",
		deal.Origin, deal.Destination, deal.ObservedPrice.StringFixed(2), deal.Currency)

	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", n.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", n.to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(renderMessage(deal))

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	if err := n.send(addr, auth, n.from, []string{n.to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send deal email: %w", err)
	}

	n.logger.Info().
		Str("route", deal.Origin+"-"+deal.Destination).
		Str("price", deal.ObservedPrice.StringFixed(2)).
		Msg("deal notification sent (email)")
	return nil
}

var _ Notifier = (*EmailNotifier)(nil)
