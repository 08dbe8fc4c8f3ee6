package closing_test

import (
	"context"
	"testing"
	"time"

	"github.com/facinv/closing-engine/inventory"
	"github.com/facinv/closing-engine/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCompleted(t *testing.T, s *sqlite.Store, date inventory.Date, counts map[inventory.StockRef]string) inventory.ClosingID {
	t.Helper()
	ctx := context.Background()
	c := &inventory.DailyClosing{CompanyID: acme, Date: date, State: inventory.ClosingCompleted, TotalSales: dec("0")}
	require.NoError(t, s.CreateClosing(ctx, c))

	var lines []inventory.ClosingLineItem
	for ref, real := range counts {
		li := inventory.ClosingLineItem{ClosingID: c.ID, Subject: ref, TheoreticalStock: dec(real)}
		li.Recount(dec(real), dec("0"), dec("0"), dec("0"))
		lines = append(lines, li)
	}
	require.NoError(t, s.CreateLineItems(ctx, lines))
	return c.ID
}

func TestConsumptionReport_ReconcilesPeriod(t *testing.T) {
	// GIVEN: flour counted 100 on 01-10 and 115 on 01-12
	//        20 flour bought on 01-11, 3 pizzas (0.5 flour each) sold on 01-12
	// WHEN: Reporting 01-11..01-12
	// THEN: theoretical final 118.5, variance -3.5, valued at unit price 2

	svc, store := newTestService(t, jan15morning)
	ctx := context.Background()
	seedIngredient(t, store, "flour", "115", "2")

	recipe := &inventory.Recipe{CompanyID: acme, Name: "Pizza", Lines: []inventory.RecipeLine{
		{IngredientID: "flour", QuantityPerUnit: dec("0.5")},
	}}
	require.NoError(t, store.CreateRecipe(ctx, recipe))
	require.NoError(t, store.CreateProduct(ctx, &inventory.Product{
		ID: "pizza", CompanyID: acme, Name: "Pizza", HasRecipe: true, RecipeID: recipe.ID, Active: true,
	}))

	flour := inventory.IngredientRef("flour")
	initialID := seedCompleted(t, store, inventory.NewDate(2024, time.January, 10), map[inventory.StockRef]string{flour: "100"})
	finalID := seedCompleted(t, store, inventory.NewDate(2024, time.January, 12), map[inventory.StockRef]string{flour: "115"})

	require.NoError(t, store.CreatePurchase(ctx, &inventory.Purchase{
		CompanyID: acme, Number: "FAC-PROV-001-2024", Date: inventory.NewDate(2024, time.January, 11),
		State: inventory.InvoicePaid, Subtotal: dec("40"), Tax: dec("7.6"), Total: dec("47.6"),
		Lines: []inventory.PurchaseLine{{IngredientID: "flour", Quantity: dec("20"), UnitPrice: dec("2")}},
	}))
	require.NoError(t, store.CreateInvoice(ctx, &inventory.Invoice{
		CompanyID: acme, Number: "FAC-001-2024", Date: inventory.NewDate(2024, time.January, 12),
		State: inventory.InvoicePaid, Subtotal: dec("25"), Tax: dec("5"), Total: dec("30"),
		Lines: []inventory.InvoiceLine{{ProductID: "pizza", Quantity: dec("3"), UnitPrice: dec("10")}},
	}))

	r, err := svc.ConsumptionReport(ctx, acme,
		inventory.NewDate(2024, time.January, 11), inventory.NewDate(2024, time.January, 12))
	require.NoError(t, err)

	assert.Equal(t, initialID, r.InitialClosing)
	assert.Equal(t, finalID, r.FinalClosing)
	require.Len(t, r.Lines, 1)
	line := r.Lines[0]
	assert.True(t, dec("100").Equal(line.InitialStock))
	assert.True(t, dec("20").Equal(line.Purchases))
	assert.True(t, dec("1.5").Equal(line.Consumption))
	assert.True(t, dec("118.5").Equal(line.TheoreticalFinal))
	assert.True(t, dec("115").Equal(line.FinalStock))
	assert.True(t, dec("-3.5").Equal(line.Variance))
	assert.True(t, dec("-7").Equal(r.TotalVarianceValue))
	assert.True(t, dec("3").Equal(r.TotalConsumptionValue))
	assert.True(t, dec("-233.33").Equal(r.VariancePercent))
}

func TestConsumptionReport_NoClosings_UsesLiveStock(t *testing.T) {
	svc, store := newTestService(t, jan15morning)
	seedIngredient(t, store, "flour", "40", "2")

	r, err := svc.ConsumptionReport(context.Background(), acme, jan14, jan14)
	require.NoError(t, err)

	require.Len(t, r.Lines, 1)
	assert.Empty(t, r.InitialClosing)
	assert.True(t, dec("40").Equal(r.Lines[0].FinalStock))
	assert.True(t, r.VariancePercent.IsZero())
}

func TestConsumptionReport_InvertedPeriod_Rejected(t *testing.T) {
	svc, _ := newTestService(t, jan15morning)

	_, err := svc.ConsumptionReport(context.Background(), acme, jan14, jan14.AddDays(-1))
	assert.ErrorIs(t, err, inventory.ErrValidation)
}
