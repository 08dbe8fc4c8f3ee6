package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/facinv/closing-engine/closing"
	"github.com/facinv/closing-engine/inventory"
	"github.com/facinv/closing-engine/store/sqlite"
	"github.com/facinv/closing-engine/tenant"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var morning = time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, now time.Time) (*tenant.Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return tenant.NewService(store, nil, inventory.FixedClock{T: now}, nil), store
}

// =============================================================================
// ONBOARDING
// =============================================================================

func TestOnboard_GateOpensOnDayOne(t *testing.T) {
	// GIVEN: A company onboarded at 09:00 on 2024-01-15
	// WHEN: The gate evaluates a business path at the same time
	// THEN: Allowed, the seeded 2024-01-14 closing satisfies the rule

	svc, store := newTestService(t, morning)
	ctx := context.Background()

	c, err := svc.Onboard(ctx, tenant.OnboardInput{Name: "Pizzería Acme", Subdomain: "  Acme "})
	require.NoError(t, err)
	assert.Equal(t, "acme", c.Subdomain)
	assert.True(t, c.Active)

	seeded, err := store.FindClosingByDate(ctx, c.ID, inventory.NewDate(2024, time.January, 14))
	require.NoError(t, err)
	assert.Equal(t, inventory.ClosingCompleted, seeded.State)
	assert.True(t, seeded.TotalSales.IsZero())

	d, err := closing.NewGate(store, nil).Evaluate(ctx, c.ID, "/api/invoices", morning)
	require.NoError(t, err)
	assert.True(t, d.Allowed())
}

func TestOnboard_DuplicateSubdomain_Conflict(t *testing.T) {
	svc, _ := newTestService(t, morning)
	ctx := context.Background()

	_, err := svc.Onboard(ctx, tenant.OnboardInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)

	_, err = svc.Onboard(ctx, tenant.OnboardInput{Name: "Acme 2", Subdomain: "ACME"})
	var ce *inventory.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "acme", ce.Value)
}

func TestOnboard_InvalidInput(t *testing.T) {
	svc, _ := newTestService(t, morning)

	tests := []struct {
		name string
		in   tenant.OnboardInput
	}{
		{"no name", tenant.OnboardInput{Subdomain: "acme"}},
		{"dots", tenant.OnboardInput{Name: "A", Subdomain: "a.b"}},
		{"leading hyphen", tenant.OnboardInput{Name: "A", Subdomain: "-acme"}},
		{"reserved", tenant.OnboardInput{Name: "A", Subdomain: "www"}},
		{"empty", tenant.OnboardInput{Name: "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Onboard(context.Background(), tt.in)
			assert.ErrorIs(t, err, inventory.ErrValidation)
		})
	}
}

func TestOnboard_SampleData(t *testing.T) {
	svc, store := newTestService(t, morning)
	ctx := context.Background()

	c, err := svc.Onboard(ctx, tenant.OnboardInput{Name: "Acme", Subdomain: "acme", SampleData: true})
	require.NoError(t, err)

	ingredients, err := store.ListIngredients(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, ingredients, 3)

	products, err := store.ListProducts(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, products, 2)
	for _, p := range products {
		if p.HasRecipe {
			assert.True(t, decimal.RequireFromString("6300").Equal(p.PurchaseCost))
			assert.True(t, decimal.RequireFromString("8190").Equal(p.SalePrice))
		}
	}
}

// =============================================================================
// RESOLVER
// =============================================================================

type finder map[string]*inventory.Company

func (f finder) FindCompanyBySubdomain(_ context.Context, sub string) (*inventory.Company, error) {
	if c, ok := f[sub]; ok {
		return c, nil
	}
	return nil, &inventory.NotFoundError{Entity: "company", ID: sub}
}

func TestResolver_Resolve(t *testing.T) {
	companies := finder{
		"acme":   {ID: "c-acme", Subdomain: "acme", Active: true},
		"closed": {ID: "c-closed", Subdomain: "closed", Active: false},
	}
	r := tenant.NewResolver(companies, "facinv.com")

	tests := []struct {
		name     string
		host     string
		override string
		want     inventory.CompanyID
	}{
		{"subdomain", "acme.facinv.com", "", "c-acme"},
		{"with port", "ACME.facinv.com:8080", "", "c-acme"},
		{"base domain", "facinv.com", "", ""},
		{"foreign domain", "acme.example.com", "", ""},
		{"nested", "x.acme.facinv.com", "", ""},
		{"unknown", "ghost.facinv.com", "", ""},
		{"inactive", "closed.facinv.com", "", ""},
		{"reserved", "www.facinv.com", "", ""},
		{"override wins", "localhost:8080", "acme", "c-acme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := r.Resolve(context.Background(), tt.host, tt.override)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, c)
				return
			}
			require.NotNil(t, c)
			assert.Equal(t, tt.want, c.ID)
		})
	}
}

func TestResolver_NoBaseDomain_FirstLabel(t *testing.T) {
	r := tenant.NewResolver(finder{}, "")

	assert.Equal(t, "acme", r.Subdomain("acme.facinv.com"))
	assert.Equal(t, "", r.Subdomain("localhost"))
	assert.Equal(t, "", r.Subdomain("facinv.com"))
}

func TestContext_RoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, tenant.FromContext(ctx))
	assert.Empty(t, tenant.IDFromContext(ctx))

	ctx = tenant.WithCompany(ctx, &inventory.Company{ID: "c-acme"})
	assert.Equal(t, inventory.CompanyID("c-acme"), tenant.IDFromContext(ctx))
}
