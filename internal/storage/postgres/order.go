package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbisretail/fulfillment/internal/domain/inventory"
	"github.com/orbisretail/fulfillment/internal/domain/order"
)

const (
	orderColumns = `id, order_number, customer_id, customer_details, items,
		subtotal, shipping_cost, total, payment_method, payment_receipt,
		payment_status, order_status, status_history, order_notes,
		tracking_info, verified_at, verified_by, stock_released, version,
		created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	// The version predicate makes this a compare-and-swap: a concurrent
	// writer bumps the version first and this update affects zero rows.
	updateOrderSQL = `UPDATE orders SET
			payment_status = $3, order_status = $4, status_history = $5,
			order_notes = $6, tracking_info = $7, verified_at = $8,
			verified_by = $9, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2`

	// Conditional flag flip backing the idempotent stock release. Only one
	// caller ever sees an affected row.
	markReleasedSQL = `UPDATE orders
		SET stock_released = TRUE, updated_at = now()
		WHERE id = $1 AND stock_released = FALSE`
)

var (
	_ order.Repository       = (*OrderRepository)(nil)
	_ inventory.ReleaseGuard = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL. It also
// serves as the inventory service's release guard via ReleaseStock.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. A collision on the order number unique index
// surfaces as order.ErrDuplicateNumber so the ledger can regenerate.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	blob, err := marshalOrderBlobs(o)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OrderNumber, o.CustomerID, blob.details, blob.items,
		o.Subtotal, o.ShippingCost, o.Total, o.PaymentMethod, o.PaymentReceipt,
		string(o.PaymentStatus), string(o.OrderStatus), blob.history, blob.notes,
		blob.tracking, o.VerifiedAt, o.VerifiedBy, o.StockReleased, o.Version,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "orders_order_number_key") {
			return order.ErrDuplicateNumber
		}
		return errors.Wrapf(err, "creating order %q", o.ID)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByNumber returns a single order by its public order number.
func (r *OrderRepository) GetByNumber(ctx context.Context, orderNumber string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByNumberSQL, orderNumber)
}

// Update persists the mutable order fields under optimistic concurrency.
// A stale aggregate version yields order.ErrVersionConflict so the caller
// reloads and reapplies. On success the aggregate's version is bumped to
// match the row.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	blob, err := marshalOrderBlobs(o)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID, o.Version,
		string(o.PaymentStatus), string(o.OrderStatus), blob.history,
		blob.notes, blob.tracking, o.VerifiedAt, o.VerifiedBy,
	)
	if err != nil {
		return errors.Wrapf(err, "updating order %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrVersionConflict
	}
	o.Version++
	return nil
}

// ReleaseStock flips the order's stock-released flag and restores the given
// quantities in one transaction; a failed restore rolls the claim back so
// the release stays retryable. Zero affected rows on the flag flip means
// another caller already released, and nothing is touched.
func (r *OrderRepository) ReleaseStock(ctx context.Context, orderID string, items []inventory.ReservedItem) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, errors.Wrap(err, "beginning release transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, markReleasedSQL, orderID)
	if err != nil {
		return false, errors.Wrapf(err, "marking stock released for order %q", orderID)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, item := range items {
		if _, err := tx.Exec(ctx, restoreStockSQL, item.ProductID, item.Quantity); err != nil {
			return false, errors.Wrapf(err, "restoring stock for %q", item.ProductID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrap(err, "committing release transaction")
	}
	return true, nil
}

func (r *OrderRepository) getOne(ctx context.Context, sql, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "querying order")
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning order")
	}
	return o, nil
}

type orderBlobs struct {
	details  []byte
	items    []byte
	history  []byte
	notes    []byte
	tracking []byte
}

func marshalOrderBlobs(o *order.Order) (orderBlobs, error) {
	var (
		b   orderBlobs
		err error
	)
	if b.details, err = json.Marshal(o.CustomerDetails); err != nil {
		return b, errors.Wrap(err, "marshaling customer details")
	}
	if b.items, err = json.Marshal(o.Items); err != nil {
		return b, errors.Wrap(err, "marshaling items")
	}
	if b.history, err = json.Marshal(o.StatusHistory); err != nil {
		return b, errors.Wrap(err, "marshaling status history")
	}
	if b.notes, err = json.Marshal(o.OrderNotes); err != nil {
		return b, errors.Wrap(err, "marshaling order notes")
	}
	if o.OrderNotes == nil {
		b.notes = []byte("[]")
	}
	if o.Tracking != nil {
		if b.tracking, err = json.Marshal(o.Tracking); err != nil {
			return b, errors.Wrap(err, "marshaling tracking info")
		}
	}
	return b, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o                              order.Order
		paymentStatus, orderStatus     string
		details, items, history, notes []byte
		tracking                       []byte
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &details, &items,
		&o.Subtotal, &o.ShippingCost, &o.Total, &o.PaymentMethod, &o.PaymentReceipt,
		&paymentStatus, &orderStatus, &history, &notes,
		&tracking, &o.VerifiedAt, &o.VerifiedBy, &o.StockReleased, &o.Version,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.OrderStatus = order.Status(orderStatus)

	if err := json.Unmarshal(details, &o.CustomerDetails); err != nil {
		return nil, errors.Wrap(err, "unmarshaling customer details")
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshaling items")
	}
	if err := json.Unmarshal(history, &o.StatusHistory); err != nil {
		return nil, errors.Wrap(err, "unmarshaling status history")
	}
	if err := json.Unmarshal(notes, &o.OrderNotes); err != nil {
		return nil, errors.Wrap(err, "unmarshaling order notes")
	}
	if len(tracking) > 0 {
		o.Tracking = new(order.TrackingInfo)
		if err := json.Unmarshal(tracking, o.Tracking); err != nil {
			return nil, errors.Wrap(err, "unmarshaling tracking info")
		}
	}
	return &o, nil
}
