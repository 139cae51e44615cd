package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbisretail/fulfillment/internal/domain/product"
)

const (
	productColumns = `id, title, price, sale_price, stock, image, active`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products WHERE active ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	// The stock guard lives in the WHERE clause: the decrement only happens
	// when current stock covers the request, in one atomic statement.
	decrementStockSQL = `UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	restoreStockSQL = `UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all active products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting product %q", id)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// DecrementStock conditionally reduces stock by quantity and reports whether
// the row was updated. Zero affected rows means either the product does not
// exist or its stock is below the requested quantity; the caller already
// verified existence, so that reads as insufficient stock.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, quantity int) (bool, error) {
	tag, err := r.pool.Exec(ctx, decrementStockSQL, id, quantity)
	if err != nil {
		return false, errors.Wrapf(err, "decrementing stock for %q", id)
	}
	return tag.RowsAffected() == 1, nil
}

// RestoreStock adds quantity back to the product's stock.
func (r *ProductRepository) RestoreStock(ctx context.Context, id string, quantity int) error {
	if _, err := r.pool.Exec(ctx, restoreStockSQL, id, quantity); err != nil {
		return errors.Wrapf(err, "restoring stock for %q", id)
	}
	return nil
}

// Upsert inserts or replaces a catalog entry. Used by the seeding and bulk
// import tools.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	const upsertSQL = `INSERT INTO products (id, title, price, sale_price, stock, image, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			sale_price = EXCLUDED.sale_price,
			stock = EXCLUDED.stock,
			image = EXCLUDED.image,
			active = EXCLUDED.active,
			updated_at = now()`

	_, err := r.pool.Exec(ctx, upsertSQL,
		p.ID, p.Title, p.Price, p.SalePrice, p.Stock, p.Image, p.Active,
	)
	if err != nil {
		return errors.Wrapf(err, "upserting product %q", p.ID)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Title, &p.Price, &p.SalePrice, &p.Stock, &p.Image, &p.Active,
	)
	return p, err
}
