package notification

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbisretail/fulfillment/internal/domain/order"
)

type captureMailer struct {
	to          string
	subject     string
	body        string
	attachments map[string][]byte
	err         error
}

func (m *captureMailer) Send(_ context.Context, to, subject, body string, attachments map[string][]byte) error {
	m.to = to
	m.subject = subject
	m.body = body
	m.attachments = attachments
	return m.err
}

func sampleOrder() *order.Order {
	return &order.Order{
		OrderNumber: "ORD-000001230042",
		CustomerDetails: order.CustomerDetails{
			Name:     "Dana Reyes",
			Email:    "dana@example.com",
			Address:  "12 Harbor Lane",
			City:     "Portside",
			Province: "West",
		},
		Items: []order.Item{
			{ProductID: "p1", Title: "Espresso Machine", UnitPrice: decimal.RequireFromString("249.00"), Quantity: 1},
			{ProductID: "p2", Title: "Paring Knife", UnitPrice: decimal.RequireFromString("15.25"), Quantity: 2},
		},
		Subtotal:      decimal.RequireFromString("279.50"),
		ShippingCost:  decimal.RequireFromString("5.00"),
		Total:         decimal.RequireFromString("284.50"),
		PaymentMethod: "bank-transfer",
		PaymentStatus: order.PaymentPending,
		CreatedAt:     time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC),
	}
}

func TestBuildInvoice(t *testing.T) {
	invoice := string(BuildInvoice(sampleOrder()))

	assert.Contains(t, invoice, "INVOICE ORD-000001230042")
	assert.Contains(t, invoice, "Dana Reyes <dana@example.com>")
	assert.Contains(t, invoice, "12 Harbor Lane, Portside, West")
	assert.Contains(t, invoice, "Espresso Machine")
	assert.Contains(t, invoice, "249.00")
	assert.Contains(t, invoice, "2 x")
	assert.Contains(t, invoice, "284.50")
	assert.Contains(t, invoice, "bank-transfer")
}

func TestBuildInvoice_NoAddress(t *testing.T) {
	o := sampleOrder()
	o.CustomerDetails.Address = ""

	invoice := string(BuildInvoice(o))
	assert.NotContains(t, invoice, "Ship to:")
}

func TestDispatcher_OrderPlaced(t *testing.T) {
	mailer := &captureMailer{}
	d := NewDispatcher(mailer, "orders@example.com")

	require.NoError(t, d.OrderPlaced(context.Background(), sampleOrder()))

	assert.Equal(t, "dana@example.com", mailer.to)
	assert.Equal(t, "Order ORD-000001230042 received", mailer.subject)
	assert.Contains(t, mailer.body, "Dana Reyes")
	assert.Contains(t, mailer.body, "284.50")
	require.Contains(t, mailer.attachments, "invoice-ORD-000001230042.txt")
}

func TestDispatcher_MailerError(t *testing.T) {
	mailer := &captureMailer{err: errors.New("relay refused")}
	d := NewDispatcher(mailer, "orders@example.com")

	err := d.OrderPlaced(context.Background(), sampleOrder())
	require.Error(t, err)
}

func TestBuildMessage_Multipart(t *testing.T) {
	msg := string(buildMessage("orders@example.com", "dana@example.com", "Subject", "body text",
		map[string][]byte{"invoice.txt": []byte("invoice content")}))

	assert.Contains(t, msg, "From: orders@example.com")
	assert.Contains(t, msg, "To: dana@example.com")
	assert.Contains(t, msg, "Subject: Subject")
	assert.Contains(t, msg, "multipart/mixed")
	assert.Contains(t, msg, `filename="invoice.txt"`)
	assert.Contains(t, msg, "body text")
}

func TestBuildMessage_NoAttachments(t *testing.T) {
	msg := string(buildMessage("orders@example.com", "dana@example.com", "Subject", "body text", nil))

	assert.Contains(t, msg, "body text")
	assert.NotContains(t, msg, "Content-Disposition: attachment")
}
