package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/facinv/closing-engine/inventory"
	"github.com/facinv/closing-engine/store/sqlite"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const tenantHeader = "X-Tenant"

var jan15 = time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type testServer struct {
	t      *testing.T
	store  *sqlite.Store
	router http.Handler
	h      *Handler
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// newTestServer builds a router over store with a clock fixed at now.
func newTestServer(t *testing.T, store *sqlite.Store, now time.Time) *testServer {
	t.Helper()
	h := NewHandler(store, inventory.FixedClock{T: now}, nil, nil, Options{
		TenantHeader: tenantHeader,
		Metrics:      NewMetrics(),
		Pinger:       store,
	})
	return &testServer{t: t, store: store, router: NewRouter(h), h: h}
}

// onboarded returns a server for tenant "acme", onboarded at now so its
// previous day is already closed.
func onboarded(t *testing.T, now time.Time) *testServer {
	t.Helper()
	ts := newTestServer(t, newStore(t), now)
	rec := ts.do("POST", "/superadmin/companies", "", map[string]any{"name": "Acme", "subdomain": "acme"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return ts
}

func (ts *testServer) do(method, path, company string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if company != "" {
		req.Header.Set(tenantHeader, company)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

// =============================================================================
// PUBLIC ROUTES AND TENANCY
// =============================================================================

func TestHealth(t *testing.T) {
	ts := newTestServer(t, newStore(t), jan15)

	rec := ts.do("GET", "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[HealthDTO](t, rec)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "up", got.Database)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := onboarded(t, jan15)
	ts.do("GET", "/api/ingredients", "acme", nil)

	rec := ts.do("GET", "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `facinv_gate_decisions_total{outcome="allow"} 1`)
	assert.Contains(t, rec.Body.String(), "facinv_http_request_duration_seconds")
}

func TestRequestLogging(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	store := newStore(t)
	h := NewHandler(store, inventory.FixedClock{T: jan15}, nil, logger, Options{TenantHeader: tenantHeader})
	router := NewRouter(h)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "/health", entry.Data["path"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])
	assert.NotEmpty(t, entry.Data["request_id"])
}

func TestAPIRequiresTenant(t *testing.T) {
	ts := onboarded(t, jan15)

	for _, company := range []string{"", "unknown", "www"} {
		rec := ts.do("GET", "/api/ingredients", company, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "tenant %q", company)
		assert.Equal(t, "tenant_not_found", decodeBody[ErrorResponse](t, rec).Code)
	}
}

func TestOnboardCompany(t *testing.T) {
	ts := onboarded(t, jan15)

	// WHEN: the subdomain is registered twice
	rec := ts.do("POST", "/superadmin/companies", "", map[string]any{"name": "Other", "subdomain": "ACME"})

	// THEN: conflict naming the subdomain
	assert.Equal(t, http.StatusConflict, rec.Code)
	got := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "conflict", got.Code)
	assert.Contains(t, got.Details, "acme")

	// AND: the first company is usable right away
	rec = ts.do("GET", "/api/company", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", decodeBody[CompanyDTO](t, rec).Subdomain)
}

func TestOnboardValidation(t *testing.T) {
	ts := newTestServer(t, newStore(t), jan15)

	rec := ts.do("POST", "/superadmin/companies", "", map[string]any{"subdomain": "acme", "contact_email": "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	got := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "required", got.Fields["name"])
	assert.Equal(t, "email", got.Fields["contact_email"])
}

// =============================================================================
// CLOSING GATE
// =============================================================================

func TestGateRedirectsToRequiredClosing(t *testing.T) {
	// GIVEN: a company onboarded on the 15th, visited on the 17th
	ts := onboarded(t, jan15)
	later := newTestServer(t, ts.store, jan15.AddDate(0, 0, 2))

	// WHEN: a business path is requested
	rec := later.do("GET", "/api/products", "acme", nil)

	// THEN: 303 to the obligatory closing of the 16th
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/api/closings/required?date=2024-01-16", rec.Header().Get("Location"))
	got := decodeBody[GateDenialResponse](t, rec)
	assert.Equal(t, "deny_must_close", got.Outcome)
	assert.Equal(t, "2024-01-16", got.RequiredDate)

	// AND: the closing workflow itself stays reachable
	rec = later.do("GET", "/api/closings/required", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	req := decodeBody[RequiredClosingDTO](t, rec)
	assert.Equal(t, "2024-01-16", req.Date.String())
	assert.False(t, req.Closed)
}

func TestGateBlocksAfterTodayIsCompleted(t *testing.T) {
	ts := onboarded(t, jan15)

	// GIVEN: today's closing taken through the whole workflow
	rec := ts.do("POST", "/api/closings", "acme", map[string]any{})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decodeBody[ClosingDetailDTO](t, rec)
	require.Equal(t, http.StatusOK, ts.do("POST", "/api/closings/"+c.ID+"/pre-complete", "acme", nil).Code)
	require.Equal(t, http.StatusOK, ts.do("POST", "/api/closings/"+c.ID+"/complete", "acme", nil).Code)

	// WHEN: any business path is requested the same day
	rec = ts.do("POST", "/api/ingredients", "acme", map[string]any{"name": "Harina", "unit": "kg"})

	// THEN: blocked until tomorrow 05:00
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/api/closings/blocked?next=2024-01-16+05%3A00", rec.Header().Get("Location"))
	got := decodeBody[GateDenialResponse](t, rec)
	assert.Equal(t, "deny_blocked", got.Outcome)
	require.NotNil(t, got.NextAllowedAt)
	assert.True(t, got.NextAllowedAt.Equal(time.Date(2024, time.January, 16, 5, 0, 0, 0, time.UTC)))

	rec = ts.do("GET", "/api/closings/blocked?next=2024-01-16+05%3A00", "acme", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-01-16 05:00", decodeBody[BlockedDTO](t, rec).NextAllowedAt)
}

// =============================================================================
// CLOSING WORKFLOW
// =============================================================================

func TestClosingWorkflow(t *testing.T) {
	ts := onboarded(t, jan15)
	rec := ts.do("POST", "/api/ingredients", "acme", map[string]any{
		"name": "Harina", "unit": "kg", "stock": "10", "unit_price": "2",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ing := decodeBody[IngredientDTO](t, rec)

	// GIVEN: a closing snapshotting the ingredient
	rec = ts.do("POST", "/api/closings", "acme", map[string]any{"notes": "end of day"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decodeBody[ClosingDetailDTO](t, rec)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "EN_PROCESO", c.State)
	assert.Equal(t, ing.ID, c.Lines[0].SubjectID)
	assert.False(t, c.Lines[0].Variance.Valid)

	// WHEN: pre-completing before counting
	rec = ts.do("POST", "/api/closings/"+c.ID+"/pre-complete", "acme", nil)

	// THEN: rejected as a business rule, not a server error
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "incomplete_line_items", decodeBody[ErrorResponse](t, rec).Code)

	// WHEN: the count is recorded
	rec = ts.do("PUT", "/api/closings/"+c.ID+"/lines/"+c.Lines[0].ID, "acme", map[string]any{"real_stock": "8"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	li := decodeBody[LineItemDTO](t, rec)
	assert.True(t, dec("-2").Equal(li.Variance.Decimal))
	assert.True(t, dec("-4").Equal(li.VarianceValue.Decimal))

	// THEN: the closing completes and commits the counted stock
	require.Equal(t, http.StatusOK, ts.do("POST", "/api/closings/"+c.ID+"/pre-complete", "acme", nil).Code)
	rec = ts.do("POST", "/api/closings/"+c.ID+"/complete", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "COMPLETADO", decodeBody[ClosingDTO](t, rec).State)

	got, err := ts.store.GetIngredient(context.Background(), inventory.CompanyID(mustCompanyID(t, ts)), inventory.IngredientID(ing.ID))
	require.NoError(t, err)
	assert.True(t, dec("8").Equal(got.Stock))

	// AND: a second completion is an invalid transition
	rec = ts.do("POST", "/api/closings/"+c.ID+"/complete", "acme", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_state_transition", decodeBody[ErrorResponse](t, rec).Code)
}

func TestCountRequiresRealStock(t *testing.T) {
	ts := onboarded(t, jan15)

	rec := ts.do("PUT", "/api/closings/c1/lines/l1", "acme", map[string]any{"waste": "1"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "required", decodeBody[ErrorResponse](t, rec).Fields["real_stock"])
}

func TestDuplicateClosingDate(t *testing.T) {
	ts := onboarded(t, jan15)

	rec := ts.do("POST", "/api/closings", "acme", map[string]any{"date": "2024-01-14"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, "2024-01-14")
}

func mustCompanyID(t *testing.T, ts *testServer) string {
	t.Helper()
	c, err := ts.store.FindCompanyBySubdomain(context.Background(), "acme")
	require.NoError(t, err)
	return string(c.ID)
}

// =============================================================================
// CATALOG, SALES AND PURCHASES
// =============================================================================

func TestSaleAndVoidThroughAPI(t *testing.T) {
	ts := onboarded(t, jan15)
	rec := ts.do("POST", "/api/products", "acme", map[string]any{
		"name": "Gaseosa", "sale_price": "119", "stock": "2",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	soda := decodeBody[ProductDTO](t, rec)

	// WHEN: one soda is sold
	rec = ts.do("POST", "/api/invoices", "acme", map[string]any{
		"lines": []map[string]any{{"product_id": soda.ID, "quantity": "1"}},
	})

	// THEN: the tax-inclusive breakdown is returned
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decodeBody[InvoiceDTO](t, rec)
	assert.Equal(t, "FAC-001-2024", inv.Number)
	assert.Equal(t, "PAID", inv.State)
	assert.True(t, dec("100").Equal(inv.Subtotal))
	assert.True(t, dec("19").Equal(inv.Tax))

	// WHEN: more than the remaining stock is requested
	rec = ts.do("POST", "/api/invoices", "acme", map[string]any{
		"lines": []map[string]any{{"product_id": soda.ID, "quantity": "5"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	got := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "insufficient_stock", got.Code)
	assert.Contains(t, got.Details, "Gaseosa")

	// WHEN: the paid invoice is voided
	rec = ts.do("POST", "/api/invoices/"+inv.ID+"/void", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "VOIDED", decodeBody[InvoiceDTO](t, rec).State)

	rec = ts.do("GET", "/api/products/"+soda.ID+"/possible-stock", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, dec("2").Equal(decodeBody[PossibleStockDTO](t, rec).Units))

	// AND: the summary counts no voided sales
	rec = ts.do("GET", "/api/invoices/summary?date=2024-01-15", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeBody[SalesSummaryDTO](t, rec)
	assert.Equal(t, 0, sum.InvoiceCount)
	assert.True(t, sum.Total.IsZero())
}

func TestInvoiceValidation(t *testing.T) {
	ts := onboarded(t, jan15)

	tests := []struct {
		name  string
		body  map[string]any
		field string
		tag   string
	}{
		{"no lines", map[string]any{}, "lines", "required"},
		{"line without product", map[string]any{"lines": []map[string]any{{"quantity": "1"}}}, "lines[0].product_id", "required"},
		{"unknown payment method", map[string]any{
			"payment_method": "BARTER",
			"lines":          []map[string]any{{"product_id": "p", "quantity": "1"}},
		}, "payment_method", "oneof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do("POST", "/api/invoices", "acme", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.tag, decodeBody[ErrorResponse](t, rec).Fields[tt.field])
		})
	}
}

func TestUnknownEntitiesAreNotFound(t *testing.T) {
	ts := onboarded(t, jan15)

	for _, path := range []string{
		"/api/ingredients/missing",
		"/api/recipes/missing",
		"/api/products/missing",
		"/api/invoices/missing",
		"/api/purchases/missing",
		"/api/closings/missing",
	} {
		rec := ts.do("GET", path, "acme", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestRecipeLinesThroughAPI(t *testing.T) {
	ts := onboarded(t, jan15)
	rec := ts.do("POST", "/api/ingredients", "acme", map[string]any{"name": "Queso", "unit": "kg", "stock": "5", "unit_price": "30"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cheese := decodeBody[IngredientDTO](t, rec)

	rec = ts.do("POST", "/api/recipes", "acme", map[string]any{"name": "Pizza"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	recipe := decodeBody[RecipeDTO](t, rec)
	assert.True(t, recipe.Cost.IsZero())

	// WHEN: a line is added then its quantity changed
	rec = ts.do("POST", "/api/recipes/"+recipe.ID+"/lines", "acme", map[string]any{"ingredient_id": cheese.ID, "quantity_per_unit": "0.2"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, dec("6").Equal(decodeBody[RecipeDTO](t, rec).Cost))

	rec = ts.do("PUT", "/api/recipes/"+recipe.ID+"/lines/"+cheese.ID, "acme", map[string]any{"quantity_per_unit": "0.5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, dec("15").Equal(decodeBody[RecipeDTO](t, rec).Cost))

	// THEN: a recipe product takes the cost and the default markup
	rec = ts.do("POST", "/api/products", "acme", map[string]any{"name": "Pizza", "has_recipe": true, "recipe_id": recipe.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pizza := decodeBody[ProductDTO](t, rec)
	assert.True(t, dec("15").Equal(pizza.PurchaseCost))
	assert.True(t, dec("19.5").Equal(pizza.SalePrice))

	rec = ts.do("GET", "/api/products/"+pizza.ID+"/possible-stock", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, dec("10").Equal(decodeBody[PossibleStockDTO](t, rec).Units))

	// AND: the recipe can no longer be deleted
	rec = ts.do("DELETE", "/api/recipes/"+recipe.ID, "acme", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRecipeProductRequiresRecipe(t *testing.T) {
	ts := onboarded(t, jan15)

	rec := ts.do("POST", "/api/products", "acme", map[string]any{"name": "Pizza", "has_recipe": true})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "required_if", decodeBody[ErrorResponse](t, rec).Fields["recipe_id"])
}

func TestPurchaseThroughAPI(t *testing.T) {
	ts := onboarded(t, jan15)
	rec := ts.do("POST", "/api/ingredients", "acme", map[string]any{"name": "Harina", "unit": "kg", "stock": "1", "unit_price": "4"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	flour := decodeBody[IngredientDTO](t, rec)
	rec = ts.do("POST", "/api/suppliers", "acme", map[string]any{"name": "Molinos"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	supplier := decodeBody[SupplierDTO](t, rec)

	rec = ts.do("POST", "/api/purchases", "acme", map[string]any{
		"supplier_id": supplier.ID,
		"lines":       []map[string]any{{"ingredient_id": flour.ID, "quantity": "10", "unit_price": "4"}},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeBody[PurchaseDTO](t, rec)
	assert.Equal(t, "FAC-PROV-001-2024", p.Number)
	assert.True(t, dec("47.6").Equal(p.Total))

	rec = ts.do("GET", "/api/ingredients/"+flour.ID, "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, dec("11").Equal(decodeBody[IngredientDTO](t, rec).Stock))

	rec = ts.do("GET", "/api/purchases?state=PAID", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]PurchaseDTO](t, rec), 1)

	rec = ts.do("GET", "/api/purchases?state=LOST", "acme", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConsumptionReportThroughAPI(t *testing.T) {
	ts := onboarded(t, jan15)

	rec := ts.do("GET", "/api/reports/consumption?from=2024-01-10&to=2024-01-15", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-01-10", decodeBody[ConsumptionReportDTO](t, rec).From.String())

	rec = ts.do("GET", "/api/reports/consumption?from=2024-01-15&to=2024-01-10", "acme", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do("GET", "/api/reports/consumption?from=yesterday", "acme", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ERROR TRANSLATION
// =============================================================================

func TestFailPriorDayNotClosed(t *testing.T) {
	h := NewHandler(newStore(t), inventory.FixedClock{T: jan15}, nil, nil, Options{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/invoices", nil)

	h.fail(rec, req, "CreateInvoice", &inventory.PriorDayNotClosedError{Date: inventory.NewDate(2024, time.January, 14)})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/api/closings/required?date=2024-01-14", rec.Header().Get("Location"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&inventory.ValidationError{Field: "x"}, http.StatusBadRequest, "validation"},
		{&inventory.NotFoundError{Entity: "product"}, http.StatusNotFound, "not_found"},
		{&inventory.ConflictError{Entity: "invoice"}, http.StatusConflict, "conflict"},
		{inventory.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
		{&inventory.InsufficientStockError{Name: "Harina"}, http.StatusUnprocessableEntity, "insufficient_stock"},
		{&inventory.StateTransitionError{Entity: "closing"}, http.StatusUnprocessableEntity, "invalid_state_transition"},
		{&inventory.IncompleteLineItemsError{}, http.StatusUnprocessableEntity, "incomplete_line_items"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestInternalErrorsHideDetails(t *testing.T) {
	h := NewHandler(newStore(t), nil, nil, nil, Options{})
	rec := httptest.NewRecorder()

	h.fail(rec, httptest.NewRequest("GET", "/api/products", nil), "ListProducts", errors.New("database is locked"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), "locked"))
}
