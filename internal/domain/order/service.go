package order

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/orbisretail/fulfillment/internal/domain/customer"
	"github.com/orbisretail/fulfillment/internal/domain/inventory"
)

const (
	// maxCreateAttempts bounds order-number regeneration on a uniqueness
	// collision.
	maxCreateAttempts = 5
	// maxUpdateAttempts bounds the optimistic-concurrency retry loop on
	// order updates.
	maxUpdateAttempts = 3
)

// ValidationError indicates malformed checkout input, rejected before any
// side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Notifier is fired after an order is durably committed. Implementations
// are best-effort: a failure is logged and counted but never invalidates
// the order.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *Order) error
}

// CheckoutRequest holds the input for creating an order.
type CheckoutRequest struct {
	Items          []inventory.Line
	Email          string
	Customer       customer.Details
	PaymentMethod  string
	PaymentReceipt string
	Notes          string
}

func (r CheckoutRequest) validate() error {
	if len(r.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return &ValidationError{Field: "email", Reason: "valid email address is required"}
	}
	if r.Customer.Name == "" {
		return &ValidationError{Field: "name", Reason: "customer name is required"}
	}
	if r.PaymentMethod == "" {
		return &ValidationError{Field: "paymentMethod", Reason: "payment method is required"}
	}
	return nil
}

// Service is the order ledger: it drives checkout end to end and applies
// administrative status transitions, calling back into the inventory
// service for compensating stock releases.
type Service struct {
	inventory     *inventory.Service
	customers     *customer.Directory
	orders        Repository
	numbers       *NumberGenerator
	notifier      Notifier
	metrics       *Metrics
	shippingCost  decimal.Decimal
	notifyTimeout time.Duration
}

// NewService creates an order Service. notifier and metrics may be nil.
func NewService(
	inv *inventory.Service,
	customers *customer.Directory,
	orders Repository,
	numbers *NumberGenerator,
	notifier Notifier,
	metrics *Metrics,
	shippingCost decimal.Decimal,
) *Service {
	return &Service{
		inventory:     inv,
		customers:     customers,
		orders:        orders,
		numbers:       numbers,
		notifier:      notifier,
		metrics:       metrics,
		shippingCost:  shippingCost,
		notifyTimeout: 30 * time.Second,
	}
}

// Checkout validates the request, atomically reserves stock for every line,
// finds or creates the customer, freezes pricing into a new order, and
// persists it. Any failure after reservation restores stock to exactly its
// pre-request value. The notification dispatch runs after commit in its own
// goroutine and cannot fail the checkout.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	reserved, err := s.inventory.Reserve(ctx, req.Items)
	if err != nil {
		var insufficientErr *inventory.InsufficientStockError
		if errors.As(err, &insufficientErr) {
			s.metrics.stockConflict(ctx)
		}
		return nil, err
	}

	cust, err := s.customers.FindOrCreate(ctx, req.Email, req.Customer)
	if err != nil {
		s.compensate(ctx, reserved)
		return nil, errors.Wrap(err, "find or create customer")
	}

	o := s.buildOrder(req, cust, reserved)

	if err := s.persistWithFreshNumber(ctx, o); err != nil {
		s.compensate(ctx, reserved)
		return nil, err
	}

	// The order row is committed; aggregate accounting is best-effort from
	// here. A failure leaves the aggregates behind by one order, which is
	// preferable to failing a checkout that already exists.
	if err := s.customers.RecordOrder(ctx, cust.ID, o.Total); err != nil {
		zctx.From(ctx).Warn("customer aggregates not updated",
			zap.String("order_id", o.ID),
			zap.String("customer_id", cust.ID),
			zap.Error(err),
		)
	}

	s.metrics.orderCreated(ctx)
	s.dispatchNotification(ctx, o)

	return o, nil
}

func (s *Service) buildOrder(req CheckoutRequest, cust *customer.Customer, reserved []inventory.ReservedItem) *Order {
	now := time.Now().UTC()

	items := make([]Item, len(reserved))
	subtotal := decimal.Zero
	for i, r := range reserved {
		items[i] = Item{
			ProductID: r.ProductID,
			Title:     r.Title,
			UnitPrice: r.UnitPrice,
			Quantity:  r.Quantity,
			Image:     r.Image,
		}
		subtotal = subtotal.Add(r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity))))
	}

	o := &Order{
		ID:         uuid.New().String(),
		CustomerID: cust.ID,
		CustomerDetails: CustomerDetails{
			Name:     req.Customer.Name,
			Email:    customer.NormalizeEmail(req.Email),
			Phone:    req.Customer.Phone,
			Address:  req.Customer.Address,
			City:     req.Customer.City,
			Province: req.Customer.Province,
		},
		Items:          items,
		Subtotal:       subtotal,
		ShippingCost:   s.shippingCost,
		Total:          subtotal.Add(s.shippingCost),
		PaymentMethod:  req.PaymentMethod,
		PaymentReceipt: req.PaymentReceipt,
		PaymentStatus:  PaymentPending,
		OrderStatus:    StatusPlaced,
		StatusHistory: []StatusEntry{{
			Status:    string(StatusPlaced),
			Actor:     "customer",
			Timestamp: now,
			Note:      "order placed",
		}},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Notes != "" {
		o.OrderNotes = []Note{{
			Note:      req.Notes,
			Author:    req.Customer.Name,
			CreatedAt: now,
		}}
	}
	return o
}

// persistWithFreshNumber assigns an order number and creates the row,
// transparently regenerating the number on a uniqueness collision.
func (s *Service) persistWithFreshNumber(ctx context.Context, o *Order) error {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		o.OrderNumber = s.numbers.Next()

		err := s.orders.Create(ctx, o)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrDuplicateNumber):
			continue
		default:
			return errors.Wrap(err, "create order")
		}
	}
	return errors.Wrap(ErrDuplicateNumber, "exhausted order number attempts")
}

// UpdateStatus applies a fulfillment transition under optimistic
// concurrency. Cancelling an order releases its reserved stock; the release
// is idempotent per order so repeated cancellations never double-restore.
func (s *Service) UpdateStatus(ctx context.Context, id string, newStatus Status, actor, note string) (*Order, error) {
	o, err := s.mutate(ctx, id, func(o *Order) error {
		return o.ApplyStatus(newStatus, actor, note)
	})
	if err != nil {
		return nil, err
	}

	if newStatus == StatusCancelled {
		if err := s.releaseStock(ctx, o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// UpdatePaymentStatus resolves a pending payment under optimistic
// concurrency. A failed payment cancels the order and releases its reserved
// stock exactly once.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, newStatus PaymentStatus, verifier, note string) (*Order, error) {
	o, err := s.mutate(ctx, id, func(o *Order) error {
		return o.ApplyPaymentStatus(newStatus, verifier, note)
	})
	if err != nil {
		return nil, err
	}

	if newStatus == PaymentFailed {
		if err := s.releaseStock(ctx, o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// AddNote appends a note to the order.
func (s *Service) AddNote(ctx context.Context, id, text, author string, internal bool) (*Order, error) {
	return s.mutate(ctx, id, func(o *Order) error {
		o.AddNote(text, author, internal)
		return nil
	})
}

// SetTracking attaches shipment tracking details to the order.
func (s *Service) SetTracking(ctx context.Context, id string, info TrackingInfo) (*Order, error) {
	return s.mutate(ctx, id, func(o *Order) error {
		o.Tracking = &info
		return nil
	})
}

// GetByID returns a single order.
func (s *Service) GetByID(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// Track returns an order by its public tracking key: the order number plus
// the email it was placed under. A mismatched email yields ErrEmailMismatch
// instead of the order.
func (s *Service) Track(ctx context.Context, orderNumber, email string) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if customer.NormalizeEmail(email) != o.CustomerDetails.Email {
		return nil, ErrEmailMismatch
	}
	return o, nil
}

// mutate runs the load-apply-save cycle, retrying on version conflicts so a
// concurrent writer never causes a lost update: the transition is always
// re-validated against the freshly loaded state.
func (s *Service) mutate(ctx context.Context, id string, apply func(*Order) error) (*Order, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		o, err := s.orders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := apply(o); err != nil {
			return nil, err
		}

		err = s.orders.Update(ctx, o)
		switch {
		case err == nil:
			return o, nil
		case errors.Is(err, ErrVersionConflict):
			continue
		default:
			return nil, errors.Wrap(err, "update order")
		}
	}
	return nil, ErrVersionConflict
}

func (s *Service) releaseStock(ctx context.Context, o *Order) error {
	items := make([]inventory.ReservedItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = inventory.ReservedItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		}
	}
	return s.inventory.Release(ctx, o.ID, items)
}

// compensate restores a reservation whose checkout failed before an order
// row existed.
func (s *Service) compensate(ctx context.Context, reserved []inventory.ReservedItem) {
	if err := s.inventory.Restock(ctx, reserved); err != nil {
		zctx.From(ctx).Error("checkout compensation failed", zap.Error(err))
	}
}

// dispatchNotification fires the best-effort notifier in its own goroutine,
// detached from the request's cancellation but bounded by its own timeout.
func (s *Service) dispatchNotification(ctx context.Context, o *Order) {
	if s.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	go func() {
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				zctx.From(notifyCtx).Error("notification dispatch panicked",
					zap.String("order_number", o.OrderNumber),
					zap.Any("panic", rec),
				)
			}
		}()

		if err := s.notifier.OrderPlaced(notifyCtx, o); err != nil {
			s.metrics.notifyFailed(notifyCtx)
			zctx.From(notifyCtx).Warn("order notification failed",
				zap.String("order_number", o.OrderNumber),
				zap.Error(err),
			)
		}
	}()
}
