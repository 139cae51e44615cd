package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for customer lookup and creation.
var (
	ErrNotFound   = errors.New("customer not found")
	ErrEmailTaken = errors.New("customer email already exists")
)

// Address is a shipping address attached to a customer.
type Address struct {
	Address   string `json:"address"`
	City      string `json:"city"`
	Province  string `json:"province"`
	IsDefault bool   `json:"isDefault"`
}

// Customer is a buyer identified by normalized email. TotalOrders and
// TotalSpent are exactly-once aggregates maintained per successfully
// created order.
type Customer struct {
	ID          string
	Email       string
	Name        string
	Phone       string
	Addresses   []Address
	TotalOrders int
	TotalSpent  decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Details carries the customer fields submitted with a checkout.
type Details struct {
	Name     string
	Phone    string
	Address  string
	City     string
	Province string
}

// Repository defines persistence operations for customers. GetByEmail
// expects an already-normalized email. Create must fail with ErrEmailTaken
// when the normalized email is already present.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*Customer, error)
	Create(ctx context.Context, c *Customer) error
	AppendAddress(ctx context.Context, id string, addr Address) error
	RecordOrder(ctx context.Context, id string, total decimal.Decimal) error
}

// NormalizeEmail lowercases and trims an email so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasAddress reports whether the customer already has an address with the
// same (address, city) pair. Matching ignores surrounding whitespace and
// letter case.
func (c *Customer) HasAddress(address, city string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	city = strings.ToLower(strings.TrimSpace(city))
	for _, a := range c.Addresses {
		if strings.ToLower(strings.TrimSpace(a.Address)) == address &&
			strings.ToLower(strings.TrimSpace(a.City)) == city {
			return true
		}
	}
	return false
}
