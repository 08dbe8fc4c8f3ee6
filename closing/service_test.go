package closing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/facinv/closing-engine/closing"
	"github.com/facinv/closing-engine/inventory"
	"github.com/facinv/closing-engine/store/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const acme = inventory.CompanyID("acme")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T, now time.Time) (*closing.Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.CreateCompany(context.Background(), &inventory.Company{
		ID: acme, Name: "Acme", Subdomain: "acme", Active: true,
	}))
	return closing.NewService(store, inventory.FixedClock{T: now}, nil, nil), store
}

func seedIngredient(t *testing.T, s *sqlite.Store, id, stock, price string) {
	t.Helper()
	require.NoError(t, s.CreateIngredient(context.Background(), &inventory.Ingredient{
		ID: inventory.IngredientID(id), CompanyID: acme, Name: id, Unit: "kg",
		Stock: dec(stock), UnitPrice: dec(price), Active: true,
	}))
}

func lineFor(t *testing.T, d *closing.Detail, ref inventory.StockRef) inventory.ClosingLineItem {
	t.Helper()
	for _, li := range d.Lines {
		if li.Subject == ref {
			return li
		}
	}
	t.Fatalf("no line for %s", ref)
	return inventory.ClosingLineItem{}
}

var jan14 = inventory.NewDate(2024, time.January, 14)
var jan15morning = time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)

// =============================================================================
// INITIATE
// =============================================================================

func TestInitiate_PrecomputesOneLinePerSubject(t *testing.T) {
	// GIVEN: 3 ingredients with stocks 100, 50, 0
	// WHEN: Initiating the closing for 2024-01-14
	// THEN: 3 lines with matching theoretical stock and zero counts

	svc, store := newTestService(t, jan15morning)
	seedIngredient(t, store, "flour", "100", "2")
	seedIngredient(t, store, "sugar", "50", "3")
	seedIngredient(t, store, "salt", "0", "1")

	d, err := svc.Initiate(context.Background(), acme, closing.InitiateInput{Date: jan14, UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, inventory.ClosingInProgress, d.Closing.State)
	require.Len(t, d.Lines, 3)
	assert.True(t, dec("100").Equal(lineFor(t, d, inventory.IngredientRef("flour")).TheoreticalStock))
	assert.True(t, dec("50").Equal(lineFor(t, d, inventory.IngredientRef("sugar")).TheoreticalStock))
	for _, li := range d.Lines {
		assert.True(t, li.RealStock.IsZero())
		assert.True(t, li.Shrinkage.IsZero())
		assert.True(t, li.Waste.IsZero())
		assert.False(t, li.Variance.Valid)
	}
}

func TestInitiate_SkipsRecipeProductsAndInactiveIngredients(t *testing.T) {
	svc, store := newTestService(t, jan15morning)
	ctx := context.Background()
	seedIngredient(t, store, "flour", "10", "2")
	require.NoError(t, store.CreateIngredient(ctx, &inventory.Ingredient{
		ID: "old", CompanyID: acme, Name: "old", Unit: "kg", Active: false,
	}))
	recipe := &inventory.Recipe{CompanyID: acme, Name: "Pizza"}
	require.NoError(t, store.CreateRecipe(ctx, recipe))
	require.NoError(t, store.CreateProduct(ctx, &inventory.Product{
		ID: "pizza", CompanyID: acme, Name: "Pizza", HasRecipe: true, RecipeID: recipe.ID, Active: true,
	}))
	require.NoError(t, store.CreateProduct(ctx, &inventory.Product{
		ID: "soda", CompanyID: acme, Name: "Soda", Stock: dec("24"), SalePrice: dec("2500"), Active: true,
	}))

	d, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)

	require.Len(t, d.Lines, 2)
	soda := lineFor(t, d, inventory.ProductRef("soda"))
	assert.True(t, dec("2500").Equal(soda.UnitCost))
	assert.True(t, dec("24").Equal(soda.TheoreticalStock))
}

func TestInitiate_Duplicate_Conflict(t *testing.T) {
	svc, _ := newTestService(t, jan15morning)
	ctx := context.Background()

	_, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)

	_, err = svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	var ce *inventory.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "2024-01-14", ce.Value)
}

func TestInitiate_ConcurrentSameDate_ExactlyOneWins(t *testing.T) {
	svc, _ := newTestService(t, jan15morning)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, fails int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Initiate(context.Background(), acme, closing.InitiateInput{Date: jan14})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if inventory.IsConflict(err) {
				fails++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 4, fails)
}

func TestInitiate_ZeroDate_UsesToday(t *testing.T) {
	svc, _ := newTestService(t, jan15morning)

	d, err := svc.Initiate(context.Background(), acme, closing.InitiateInput{})
	require.NoError(t, err)
	assert.Equal(t, inventory.NewDate(2024, time.January, 15), d.Closing.Date)
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func TestUpdateLineItem_VarianceMath(t *testing.T) {
	// GIVEN: theoretical 100, unit cost 4
	// WHEN: counting real 90, shrinkage 5, waste 3
	// THEN: variance -2, variance value -8

	svc, store := newTestService(t, jan15morning)
	seedIngredient(t, store, "flour", "100", "4.0")
	ctx := context.Background()

	d, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)

	li, err := svc.UpdateLineItem(ctx, acme, d.Lines[0].ID, closing.Count{
		RealStock: dec("90"), Shrinkage: dec("5"), Waste: dec("3"),
	})
	require.NoError(t, err)
	assert.True(t, dec("-2").Equal(li.Variance.Decimal))
	assert.True(t, dec("-8").Equal(li.VarianceValue.Decimal))
}

func TestUpdateLineItem_RereadsLiveUnitCost(t *testing.T) {
	svc, store := newTestService(t, jan15morning)
	seedIngredient(t, store, "flour", "10", "2")
	ctx := context.Background()

	d, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)

	ing, err := store.GetIngredient(ctx, acme, "flour")
	require.NoError(t, err)
	ing.UnitPrice = dec("3")
	require.NoError(t, store.UpdateIngredient(ctx, ing))

	li, err := svc.UpdateLineItem(ctx, acme, d.Lines[0].ID, closing.Count{RealStock: dec("8")})
	require.NoError(t, err)
	assert.True(t, dec("3").Equal(li.UnitCost))
	assert.True(t, dec("-6").Equal(li.VarianceValue.Decimal))
}

func TestUpdateLineItem_NegativeCount_Rejected(t *testing.T) {
	svc, store := newTestService(t, jan15morning)
	seedIngredient(t, store, "flour", "10", "2")
	ctx := context.Background()
	d, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)

	_, err = svc.UpdateLineItem(ctx, acme, d.Lines[0].ID, closing.Count{RealStock: dec("-1")})
	assert.ErrorIs(t, err, inventory.ErrValidation)
}

func TestUpdateLineItem_OtherCompany_NotFound(t *testing.T) {
	svc, store := newTestService(t, jan15morning)
	seedIngredient(t, store, "flour", "10", "2")
	ctx := context.Background()
	d, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)

	_, err = svc.UpdateLineItem(ctx, "intruder", d.Lines[0].ID, closing.Count{RealStock: dec("1")})
	assert.True(t, inventory.IsNotFound(err))
}

// =============================================================================
// STATE MACHINE
// =============================================================================

func TestPreComplete_IncompleteLines_Fails(t *testing.T) {
	// GIVEN: 3 lines, only line 1 counted (real 95 against 100)
	// WHEN: Pre-completing
	// THEN: Fails as an invalid transition listing the two missing lines

	svc, store := newTestService(t, jan15morning)
	seedIngredient(t, store, "a-flour", "100", "2")
	seedIngredient(t, store, "b-sugar", "50", "3")
	seedIngredient(t, store, "c-salt", "0", "1")
	ctx := context.Background()

	d, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)

	li, err := svc.UpdateLineItem(ctx, acme, lineFor(t, d, inventory.IngredientRef("a-flour")).ID, closing.Count{RealStock: dec("95")})
	require.NoError(t, err)
	assert.True(t, dec("-5").Equal(li.Variance.Decimal))

	_, err = svc.PreComplete(ctx, acme, d.Closing.ID)
	assert.ErrorIs(t, err, inventory.ErrInvalidStateTransition)
	assert.ErrorIs(t, err, inventory.ErrIncompleteLineItems)
	var ile *inventory.IncompleteLineItemsError
	require.ErrorAs(t, err, &ile)
	assert.Len(t, ile.Missing, 2)

	got, err := svc.Get(ctx, acme, d.Closing.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.ClosingInProgress, got.Closing.State)
}

func TestCompleteDefinitive_FromInProgress_Rejected(t *testing.T) {
	svc, _ := newTestService(t, jan15morning)
	ctx := context.Background()
	d, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)

	_, err = svc.CompleteDefinitive(ctx, acme, d.Closing.ID)

	var ste *inventory.StateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, string(inventory.ClosingInProgress), ste.From)
	assert.Equal(t, string(inventory.ClosingCompleted), ste.To)
}

func TestFullLifecycle_CommitsStockAndSales(t *testing.T) {
	// GIVEN: flour 100 in the books, counted at 92
	//        two PAID invoices and one VOIDED invoice on the closing date
	// WHEN: PreComplete then CompleteDefinitive
	// THEN: flour live stock is 92, sales total counts PAID only, state COMPLETADO

	svc, store := newTestService(t, jan15morning)
	seedIngredient(t, store, "flour", "100", "2")
	ctx := context.Background()

	for i, st := range []inventory.InvoiceState{inventory.InvoicePaid, inventory.InvoicePaid, inventory.InvoiceVoided} {
		require.NoError(t, store.CreateInvoice(ctx, &inventory.Invoice{
			CompanyID: acme, Number: []string{"FAC-001-2024", "FAC-002-2024", "FAC-003-2024"}[i],
			Date: jan14, State: st, Total: dec("119"), Subtotal: dec("100"), Tax: dec("19"),
		}))
	}

	d, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)
	_, err = svc.UpdateLineItem(ctx, acme, d.Lines[0].ID, closing.Count{RealStock: dec("92"), Waste: dec("3")})
	require.NoError(t, err)

	pre, err := svc.PreComplete(ctx, acme, d.Closing.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.ClosingPreCompleted, pre.State)

	// Still editable in PRE-COMPLETADO.
	_, err = svc.UpdateLineItem(ctx, acme, d.Lines[0].ID, closing.Count{RealStock: dec("92")})
	require.NoError(t, err)

	ing, err := store.GetIngredient(ctx, acme, "flour")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(ing.Stock), "pre-complete touches no stock")

	done, err := svc.CompleteDefinitive(ctx, acme, d.Closing.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.ClosingCompleted, done.State)
	assert.True(t, dec("238").Equal(done.TotalSales))
	assert.Equal(t, 2, done.InvoiceCount)

	ing, err = store.GetIngredient(ctx, acme, "flour")
	require.NoError(t, err)
	assert.True(t, dec("92").Equal(ing.Stock))

	// Terminal: nothing moves on.
	_, err = svc.PreComplete(ctx, acme, d.Closing.ID)
	assert.ErrorIs(t, err, inventory.ErrInvalidStateTransition)
	_, err = svc.CompleteDefinitive(ctx, acme, d.Closing.ID)
	assert.ErrorIs(t, err, inventory.ErrInvalidStateTransition)
	_, err = svc.UpdateLineItem(ctx, acme, d.Lines[0].ID, closing.Count{RealStock: dec("1")})
	assert.ErrorIs(t, err, inventory.ErrInvalidStateTransition)
}

func TestPreComplete_Twice_Rejected(t *testing.T) {
	svc, _ := newTestService(t, jan15morning)
	ctx := context.Background()
	d, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)

	_, err = svc.PreComplete(ctx, acme, d.Closing.ID)
	require.NoError(t, err, "a closing without lines has nothing to count")

	_, err = svc.PreComplete(ctx, acme, d.Closing.ID)
	assert.ErrorIs(t, err, inventory.ErrInvalidStateTransition)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestRequired_ReflectsCompletion(t *testing.T) {
	svc, _ := newTestService(t, jan15morning)
	ctx := context.Background()

	st, err := svc.Required(ctx, acme)
	require.NoError(t, err)
	assert.Equal(t, jan14, st.Date)
	assert.False(t, st.Closed)

	d, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)
	_, err = svc.PreComplete(ctx, acme, d.Closing.ID)
	require.NoError(t, err)
	_, err = svc.CompleteDefinitive(ctx, acme, d.Closing.ID)
	require.NoError(t, err)

	st, err = svc.Required(ctx, acme)
	require.NoError(t, err)
	assert.True(t, st.Closed)
}

func TestInProgress_FindsOpenClosing(t *testing.T) {
	svc, _ := newTestService(t, jan15morning)
	ctx := context.Background()

	_, err := svc.InProgress(ctx, acme)
	assert.True(t, inventory.IsNotFound(err))

	d, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)

	open, err := svc.InProgress(ctx, acme)
	require.NoError(t, err)
	assert.Equal(t, d.Closing.ID, open.ID)

	list, err := svc.List(ctx, acme)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
