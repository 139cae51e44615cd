package customer

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementation ---

type mockCustomerRepo struct {
	byEmail map[string]*Customer

	getErr    error
	createErr error
	appendErr error

	created    *Customer
	appendedID string
	appended   []Address
	recordedID string
	recorded   decimal.Decimal
}

func newCustomerRepo(customers ...*Customer) *mockCustomerRepo {
	byEmail := make(map[string]*Customer, len(customers))
	for _, c := range customers {
		byEmail[c.Email] = c
	}
	return &mockCustomerRepo{byEmail: byEmail}
}

func (m *mockCustomerRepo) GetByEmail(_ context.Context, email string) (*Customer, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockCustomerRepo) Create(_ context.Context, c *Customer) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.byEmail[c.Email]; ok {
		return ErrEmailTaken
	}
	m.byEmail[c.Email] = c
	m.created = c
	return nil
}

func (m *mockCustomerRepo) AppendAddress(_ context.Context, id string, addr Address) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appendedID = id
	m.appended = append(m.appended, addr)
	return nil
}

func (m *mockCustomerRepo) RecordOrder(_ context.Context, id string, total decimal.Decimal) error {
	m.recordedID = id
	m.recorded = total
	return nil
}

// --- Helpers ---

func testDetails() Details {
	return Details{
		Name:     "Dana Reyes",
		Phone:    "+1-555-0100",
		Address:  "12 Harbor Lane",
		City:     "Portside",
		Province: "West",
	}
}

// --- Tests ---

func TestFindOrCreate_CreatesNewCustomer(t *testing.T) {
	repo := newCustomerRepo()
	dir := NewDirectory(repo)

	c, err := dir.FindOrCreate(context.Background(), "Dana@Example.com", testDetails())

	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "dana@example.com", c.Email)
	assert.Equal(t, "Dana Reyes", c.Name)
	require.Len(t, c.Addresses, 1)
	assert.True(t, c.Addresses[0].IsDefault)
	assert.Equal(t, "12 Harbor Lane", c.Addresses[0].Address)
}

func TestFindOrCreate_MatchesCaseInsensitively(t *testing.T) {
	existing := &Customer{
		ID:    "c1",
		Email: "dana@example.com",
		Addresses: []Address{
			{Address: "12 Harbor Lane", City: "Portside", IsDefault: true},
		},
	}
	repo := newCustomerRepo(existing)
	dir := NewDirectory(repo)

	c, err := dir.FindOrCreate(context.Background(), "  DANA@EXAMPLE.COM ", testDetails())

	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.Nil(t, repo.created)
	// Same (address, city): nothing appended.
	assert.Empty(t, repo.appended)
	assert.Len(t, c.Addresses, 1)
}

func TestFindOrCreate_AppendsNewAddress(t *testing.T) {
	existing := &Customer{
		ID:    "c1",
		Email: "dana@example.com",
		Addresses: []Address{
			{Address: "12 Harbor Lane", City: "Portside", IsDefault: true},
		},
	}
	repo := newCustomerRepo(existing)
	dir := NewDirectory(repo)

	details := testDetails()
	details.Address = "99 Hilltop Road"
	details.City = "Summit"

	c, err := dir.FindOrCreate(context.Background(), "dana@example.com", details)

	require.NoError(t, err)
	require.Len(t, repo.appended, 1)
	assert.Equal(t, "c1", repo.appendedID)
	assert.Equal(t, "99 Hilltop Road", repo.appended[0].Address)
	assert.False(t, repo.appended[0].IsDefault)
	assert.Len(t, c.Addresses, 2)
}

func TestFindOrCreate_AddressDedupeIgnoresCaseAndSpace(t *testing.T) {
	existing := &Customer{
		ID:    "c1",
		Email: "dana@example.com",
		Addresses: []Address{
			{Address: "12 Harbor Lane", City: "Portside", IsDefault: true},
		},
	}
	repo := newCustomerRepo(existing)
	dir := NewDirectory(repo)

	details := testDetails()
	details.Address = "  12 HARBOR lane "
	details.City = "portside  "

	_, err := dir.FindOrCreate(context.Background(), "dana@example.com", details)

	require.NoError(t, err)
	assert.Empty(t, repo.appended)
}

func TestFindOrCreate_SameStreetDifferentCity(t *testing.T) {
	existing := &Customer{
		ID:    "c1",
		Email: "dana@example.com",
		Addresses: []Address{
			{Address: "12 Harbor Lane", City: "Portside", IsDefault: true},
		},
	}
	repo := newCustomerRepo(existing)
	dir := NewDirectory(repo)

	details := testDetails()
	details.City = "Summit"

	_, err := dir.FindOrCreate(context.Background(), "dana@example.com", details)

	require.NoError(t, err)
	require.Len(t, repo.appended, 1)
	assert.Equal(t, "Summit", repo.appended[0].City)
}

func TestFindOrCreate_NoAddressSubmitted(t *testing.T) {
	repo := newCustomerRepo()
	dir := NewDirectory(repo)

	details := testDetails()
	details.Address = ""
	details.City = ""

	c, err := dir.FindOrCreate(context.Background(), "dana@example.com", details)

	require.NoError(t, err)
	assert.Empty(t, c.Addresses)
}

func TestFindOrCreate_CreateRace(t *testing.T) {
	winner := &Customer{
		ID:    "winner",
		Email: "dana@example.com",
		Addresses: []Address{
			{Address: "12 Harbor Lane", City: "Portside", IsDefault: true},
		},
	}
	repo := newCustomerRepo()
	// First lookup misses, create loses the race, re-read finds the winner.
	repo.createErr = ErrEmailTaken
	calls := 0
	dir := NewDirectory(&raceRepo{mockCustomerRepo: repo, winner: winner, calls: &calls})

	c, err := dir.FindOrCreate(context.Background(), "dana@example.com", testDetails())

	require.NoError(t, err)
	assert.Equal(t, "winner", c.ID)
}

// raceRepo misses the first GetByEmail and returns the winner afterwards.
type raceRepo struct {
	*mockCustomerRepo
	winner *Customer
	calls  *int
}

func (r *raceRepo) GetByEmail(ctx context.Context, email string) (*Customer, error) {
	*r.calls++
	if *r.calls == 1 {
		return nil, ErrNotFound
	}
	return r.winner, nil
}

func TestFindOrCreate_RepoError(t *testing.T) {
	repo := newCustomerRepo()
	repo.getErr = errors.New("db down")
	dir := NewDirectory(repo)

	_, err := dir.FindOrCreate(context.Background(), "dana@example.com", testDetails())
	require.Error(t, err)
}

func TestRecordOrder(t *testing.T) {
	repo := newCustomerRepo()
	dir := NewDirectory(repo)

	total := decimal.RequireFromString("42.50")
	require.NoError(t, dir.RecordOrder(context.Background(), "c1", total))

	assert.Equal(t, "c1", repo.recordedID)
	assert.True(t, total.Equal(repo.recorded))
}
