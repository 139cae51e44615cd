package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/orbisretail/fulfillment/internal/domain/product"
)

// Sentinel errors for reservation validation.
var (
	ErrEmptyLines      = errors.New("items required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// ProductNotFoundError indicates a requested product does not exist or is no
// longer sold.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError indicates a line could not be reserved because the
// available stock does not cover the requested quantity.
type InsufficientStockError struct {
	ProductID string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

// Line is a single requested cart line.
type Line struct {
	ProductID string
	Quantity  int
}

// ReservedItem is a successfully reserved line with the pricing snapshot
// captured at reservation time. UnitPrice is the sale price when one was set,
// otherwise the list price, and is never re-read from the catalog.
type ReservedItem struct {
	ProductID string
	Title     string
	UnitPrice decimal.Decimal
	Quantity  int
	Image     string
}

// ReleaseGuard restores an order's reserved stock at most once. The flag
// flip and the stock restores must commit in a single transaction: a failed
// restore rolls the claim back so a later retry can run the release again.
// The return value reports whether this call performed the release.
type ReleaseGuard interface {
	ReleaseStock(ctx context.Context, orderID string, items []ReservedItem) (bool, error)
}

// Service reserves and releases product stock. Reservation across a cart is
// all-or-nothing: either every line is decremented or none survive.
type Service struct {
	products  product.Repository
	guard     ReleaseGuard
	opTimeout time.Duration
}

// NewService creates an inventory Service. opTimeout bounds every storage
// call; zero selects a 5s default.
func NewService(products product.Repository, guard ReleaseGuard, opTimeout time.Duration) *Service {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Service{
		products:  products,
		guard:     guard,
		opTimeout: opTimeout,
	}
}

// Reserve validates the requested lines, freezes prices, and atomically
// decrements stock for each line. Each decrement is a single conditional
// write at the storage layer, so concurrent carts cannot oversell a product.
// If any line fails, every decrement already made for this request is rolled
// back before the error is returned.
func (s *Service) Reserve(ctx context.Context, lines []Line) ([]ReservedItem, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyLines
	}

	ids := make([]string, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidQuantity, "product %s", line.ProductID)
		}
		ids[i] = line.ProductID
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	fetched, err := s.products.GetByIDs(fetchCtx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	// Freeze the pricing snapshot before touching stock, so a rollback has
	// no partially built state to undo.
	items := make([]ReservedItem, len(lines))
	for i, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok || !p.Active {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		items[i] = ReservedItem{
			ProductID: p.ID,
			Title:     p.Title,
			UnitPrice: p.EffectivePrice(),
			Quantity:  line.Quantity,
			Image:     p.Image,
		}
	}

	// Two-phase reserve: decrement line by line, and on the first failure
	// restore everything reserved so far in this request.
	for i, item := range items {
		ok, err := s.decrement(ctx, item.ProductID, item.Quantity)
		if err != nil {
			s.rollback(ctx, items[:i])
			return nil, errors.Wrapf(err, "reserve product %s", item.ProductID)
		}
		if !ok {
			s.rollback(ctx, items[:i])
			return nil, &InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity}
		}
	}

	return items, nil
}

// Release restores stock for an order's reserved items. It is idempotent per
// order: the guard commits the stock-released flag and the restores together,
// so repeated calls never double-restore, and a failed release leaves the
// flag unclaimed for a retry.
func (s *Service) Release(ctx context.Context, orderID string, items []ReservedItem) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	released, err := s.guard.ReleaseStock(opCtx, orderID, items)
	if err != nil {
		return errors.Wrapf(err, "release stock for order %s", orderID)
	}
	if !released {
		zctx.From(ctx).Debug("stock already released", zap.String("order_id", orderID))
	}
	return nil
}

// Restock restores previously reserved items without the per-order guard.
// It is the compensation path for a checkout that fails after reservation
// but before an order row exists to carry the release flag.
func (s *Service) Restock(ctx context.Context, items []ReservedItem) error {
	for _, item := range items {
		if err := s.restore(ctx, item.ProductID, item.Quantity); err != nil {
			return errors.Wrapf(err, "restock product %s", item.ProductID)
		}
	}
	return nil
}

func (s *Service) decrement(ctx context.Context, id string, qty int) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.products.DecrementStock(opCtx, id, qty)
}

func (s *Service) restore(ctx context.Context, id string, qty int) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.products.RestoreStock(opCtx, id, qty)
}

// rollback compensates already-reserved lines of a failed request. Failures
// here are logged rather than returned: the caller is already unwinding with
// the original error.
func (s *Service) rollback(ctx context.Context, reserved []ReservedItem) {
	for i := len(reserved) - 1; i >= 0; i-- {
		item := reserved[i]
		if err := s.restore(ctx, item.ProductID, item.Quantity); err != nil {
			zctx.From(ctx).Error("reservation rollback failed",
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}
