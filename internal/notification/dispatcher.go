// Package notification sends best-effort order confirmations: an invoice
// document attached to an email. Dispatch failures are reported to the
// caller for logging but must never affect the order itself.
package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/orbisretail/fulfillment/internal/domain/order"
)

// Mailer delivers a single email with optional attachments.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string, attachments map[string][]byte) error
}

// Dispatcher builds and sends the order-placed notification. It implements
// the order service's Notifier interface.
type Dispatcher struct {
	mailer Mailer
	from   string
}

// NewDispatcher creates a Dispatcher sending from the given address.
func NewDispatcher(mailer Mailer, from string) *Dispatcher {
	return &Dispatcher{mailer: mailer, from: from}
}

// OrderPlaced emails the customer a confirmation with the invoice attached.
func (d *Dispatcher) OrderPlaced(ctx context.Context, o *order.Order) error {
	subject := fmt.Sprintf("Order %s received", o.OrderNumber)
	body := fmt.Sprintf(
		"Hi %s,\n\nwe received your order %s for a total of %s. "+
			"We will confirm it as soon as your payment is verified.\n",
		o.CustomerDetails.Name, o.OrderNumber, o.Total.StringFixed(2),
	)
	attachments := map[string][]byte{
		fmt.Sprintf("invoice-%s.txt", o.OrderNumber): BuildInvoice(o),
	}

	if err := d.mailer.Send(ctx, o.CustomerDetails.Email, subject, body, attachments); err != nil {
		return errors.Wrapf(err, "send order notification %s", o.OrderNumber)
	}
	return nil
}

// SMTPMailer sends mail through a plain SMTP endpoint.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPMailer creates an SMTPMailer for addr (host:port). Username may be
// empty for unauthenticated relays.
func NewSMTPMailer(addr, host, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{addr: addr, auth: auth, from: from}
}

// Send delivers the message. Attachments are encoded as a simple multipart
// payload; the SMTP dial honors ctx via a goroutine handoff since net/smtp
// itself is not context-aware.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string, attachments map[string][]byte) error {
	msg := buildMessage(m.from, to, subject, body, attachments)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(m.addr, m.auth, m.from, []string{to}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "smtp send")
		}
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "smtp send")
	}
}

const mimeBoundary = "ORDER-NOTIFICATION-BOUNDARY"

func buildMessage(from, to, subject, body string, attachments map[string][]byte) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mimeBoundary)

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	for name, content := range attachments {
		fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
		fmt.Fprintf(&b, "Content-Type: text/plain; charset=utf-8\r\n")
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", name)
		b.Write(content)
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)

	return []byte(b.String())
}

// LogMailer is a Mailer that only logs, for deployments without SMTP
// configuration and for tests.
type LogMailer struct{}

// Send logs the would-be delivery and succeeds.
func (LogMailer) Send(ctx context.Context, to, subject, _ string, attachments map[string][]byte) error {
	zctx.From(ctx).Info("mail delivery skipped (no SMTP configured)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("attachments", len(attachments)),
	)
	return nil
}
