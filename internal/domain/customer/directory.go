package customer

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Directory finds or creates customers by normalized email and keeps their
// address book and order aggregates consistent.
type Directory struct {
	repo Repository
}

// NewDirectory creates a Directory backed by the given repository.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

// FindOrCreate matches a customer case-insensitively by email. On a match it
// appends the submitted address only when no existing address has the same
// (address, city) pair. On a miss it creates the customer with the first
// address marked default. A concurrent create racing on the same email is
// resolved by re-reading the winner's row.
func (d *Directory) FindOrCreate(ctx context.Context, email string, details Details) (*Customer, error) {
	normalized := NormalizeEmail(email)

	existing, err := d.repo.GetByEmail(ctx, normalized)
	switch {
	case err == nil:
		return d.mergeAddress(ctx, existing, details)
	case errors.Is(err, ErrNotFound):
		// fall through to create
	default:
		return nil, errors.Wrap(err, "get customer by email")
	}

	c := &Customer{
		ID:         uuid.New().String(),
		Email:      normalized,
		Name:       details.Name,
		Phone:      details.Phone,
		TotalSpent: decimal.Zero,
	}
	if details.Address != "" {
		c.Addresses = []Address{{
			Address:   details.Address,
			City:      details.City,
			Province:  details.Province,
			IsDefault: true,
		}}
	}

	err = d.repo.Create(ctx, c)
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, ErrEmailTaken):
		// Lost the create race; the winner's row is authoritative.
		existing, err = d.repo.GetByEmail(ctx, normalized)
		if err != nil {
			return nil, errors.Wrap(err, "re-read customer after create race")
		}
		return d.mergeAddress(ctx, existing, details)
	default:
		return nil, errors.Wrap(err, "create customer")
	}
}

// RecordOrder increments the customer's order aggregates. Called exactly
// once per successfully created order, after the order row is committed.
func (d *Directory) RecordOrder(ctx context.Context, customerID string, orderTotal decimal.Decimal) error {
	if err := d.repo.RecordOrder(ctx, customerID, orderTotal); err != nil {
		return errors.Wrapf(err, "record order for customer %s", customerID)
	}
	return nil
}

func (d *Directory) mergeAddress(ctx context.Context, c *Customer, details Details) (*Customer, error) {
	if details.Address == "" || c.HasAddress(details.Address, details.City) {
		return c, nil
	}

	addr := Address{
		Address:   details.Address,
		City:      details.City,
		Province:  details.Province,
		IsDefault: len(c.Addresses) == 0,
	}
	if err := d.repo.AppendAddress(ctx, c.ID, addr); err != nil {
		return nil, errors.Wrapf(err, "append address for customer %s", c.ID)
	}
	c.Addresses = append(c.Addresses, addr)
	return c, nil
}
