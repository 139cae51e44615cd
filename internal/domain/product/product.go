package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Stock is mutated
// only through the conditional decrement/restore primitives below; everything
// else is read-only from this subsystem's point of view.
type Product struct {
	ID        string
	Title     string
	Price     decimal.Decimal
	SalePrice *decimal.Decimal
	Stock     int
	Image     string
	Active    bool
}

// EffectivePrice returns the sale price when one is set, otherwise the list
// price. This is the price frozen into orders at reservation time.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}

// Repository defines catalog reads and the atomic stock primitives the
// reservation service is built on.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)

	// DecrementStock performs a single conditional write: stock is reduced
	// by quantity only when the current stock covers it, and the result
	// reports whether the decrement happened. No read precedes the write,
	// so two concurrent callers can never both succeed past the available
	// stock.
	DecrementStock(ctx context.Context, id string, quantity int) (bool, error)

	// RestoreStock adds quantity back to the product's stock.
	RestoreStock(ctx context.Context, id string, quantity int) error
}
