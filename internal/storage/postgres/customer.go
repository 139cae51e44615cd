package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/orbisretail/fulfillment/internal/domain/customer"
)

const (
	customerColumns = `id, email, name, phone, addresses, total_orders, total_spent, created_at, updated_at`

	getCustomerByEmailSQL = `SELECT ` + customerColumns + ` FROM customers WHERE email = $1`

	createCustomerSQL = `INSERT INTO customers (id, email, name, phone, addresses, total_orders, total_spent)
		VALUES ($1, $2, $3, $4, $5, 0, 0)`

	appendAddressSQL = `UPDATE customers
		SET addresses = addresses || $2::jsonb, updated_at = now()
		WHERE id = $1`

	recordOrderSQL = `UPDATE customers
		SET total_orders = total_orders + 1,
		    total_spent = total_spent + $2,
		    updated_at = now()
		WHERE id = $1`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
// Addresses are stored as a JSONB array; appends go through the || operator
// so two concurrent writers both land.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByEmail returns the customer with the given normalized email.
func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerByEmailSQL, email)
	if err != nil {
		return nil, errors.Wrapf(err, "getting customer %q", email)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting customer %q", email)
	}
	return &c, nil
}

// Create inserts a new customer. The unique index on email turns a create
// race into customer.ErrEmailTaken for the losing writer.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	addressesJSON, err := json.Marshal(c.Addresses)
	if err != nil {
		return errors.Wrap(err, "marshaling addresses")
	}
	if c.Addresses == nil {
		addressesJSON = []byte("[]")
	}

	_, err = r.pool.Exec(ctx, createCustomerSQL,
		c.ID, c.Email, c.Name, c.Phone, addressesJSON,
	)
	if err != nil {
		if isUniqueViolation(err, "customers_email_key") {
			return customer.ErrEmailTaken
		}
		return errors.Wrapf(err, "creating customer %q", c.Email)
	}
	return nil
}

// AppendAddress appends one address to the customer's JSONB address array.
func (r *CustomerRepository) AppendAddress(ctx context.Context, id string, addr customer.Address) error {
	addrJSON, err := json.Marshal(addr)
	if err != nil {
		return errors.Wrap(err, "marshaling address")
	}

	tag, err := r.pool.Exec(ctx, appendAddressSQL, id, addrJSON)
	if err != nil {
		return errors.Wrapf(err, "appending address for customer %q", id)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

// RecordOrder increments the customer's order count and total spent in one
// statement.
func (r *CustomerRepository) RecordOrder(ctx context.Context, id string, total decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, recordOrderSQL, id, total)
	if err != nil {
		return errors.Wrapf(err, "recording order for customer %q", id)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var (
		c             customer.Customer
		addressesJSON []byte
	)
	err := row.Scan(
		&c.ID, &c.Email, &c.Name, &c.Phone, &addressesJSON,
		&c.TotalOrders, &c.TotalSpent, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(addressesJSON, &c.Addresses); err != nil {
		return c, errors.Wrap(err, "unmarshaling addresses")
	}
	return c, nil
}
