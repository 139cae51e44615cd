package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPlaced           Status = "placed"
	StatusPaymentConfirmed Status = "payment-confirmed"
	StatusAssembling       Status = "assembling"
	StatusReady            Status = "ready"
	StatusOnTheWay         Status = "on-the-way"
	StatusDelivered        Status = "delivered"
	StatusCancelled        Status = "cancelled"
)

// PaymentStatus is the payment verification state of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// Sentinel errors for order lookup and persistence.
var (
	ErrNotFound        = errors.New("order not found")
	ErrDuplicateNumber = errors.New("order number already exists")
	ErrVersionConflict = errors.New("order was modified concurrently")
	ErrEmailMismatch   = errors.New("email does not match order")
)

// InvalidTransitionError indicates a requested status change is not an
// allowed edge of the state machine. The order is left unchanged.
type InvalidTransitionError struct {
	Field string
	From  string
	To    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Field, e.From, e.To)
}

// Item is an order line with the pricing snapshot frozen at reservation
// time. UnitPrice is never recomputed from the catalog.
type Item struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
}

// CustomerDetails is the customer snapshot frozen into the order at
// creation. Later edits to the customer record do not affect it.
type CustomerDetails struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Province string `json:"province"`
}

// StatusEntry is one append-only audit record of a state-machine transition.
type StatusEntry struct {
	Status    string    `json:"status"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// Note is a free-form comment on an order. Internal notes are not exposed
// on the public tracking endpoint.
type Note struct {
	Note      string    `json:"note"`
	Author    string    `json:"author"`
	Internal  bool      `json:"isInternal"`
	CreatedAt time.Time `json:"createdAt"`
}

// TrackingInfo holds shipment tracking details set once the order is on
// the way.
type TrackingInfo struct {
	TrackingNumber    string    `json:"trackingNumber"`
	Carrier           string    `json:"carrier"`
	EstimatedDelivery time.Time `json:"estimatedDelivery"`
}

// Order is the authoritative order aggregate. It is created once per
// checkout, never deleted, and mutated only through the state-machine and
// note/tracking operations. Version backs optimistic concurrency control on
// updates so StatusHistory is never clobbered by a concurrent writer.
type Order struct {
	ID              string
	OrderNumber     string
	CustomerID      string
	CustomerDetails CustomerDetails
	Items           []Item
	Subtotal        decimal.Decimal
	ShippingCost    decimal.Decimal
	Total           decimal.Decimal
	PaymentMethod   string
	PaymentReceipt  string
	PaymentStatus   PaymentStatus
	OrderStatus     Status
	StatusHistory   []StatusEntry
	OrderNotes      []Note
	Tracking        *TrackingInfo
	VerifiedAt      *time.Time
	VerifiedBy      string
	StockReleased   bool
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Repository defines persistence operations for orders. Create must fail
// with ErrDuplicateNumber when the order number is already taken, and
// Update must fail with ErrVersionConflict when the stored version differs
// from the aggregate's.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*Order, error)
	Update(ctx context.Context, o *Order) error
}
