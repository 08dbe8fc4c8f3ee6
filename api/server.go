/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:   unique id per request, carried into log lines
  2. Logger:      one logrus line per request
  3. Recoverer:   panic recovery (500 instead of crash)
  4. CORS:        origins from cors.allowed_origins
  5. Metrics:     latency by route pattern (when enabled)
  6. Tenant:      company from host or header
  7. Gate:        closing gate on every /api route

ROUTE GROUPS:
  /health, /metrics       public
  /superadmin/*           tenant onboarding, no tenant required
  /api/closings/*         closing workflow, allow-listed by the gate
  /api/*                  catalog, sales, purchases, reports (gated)

SEE ALSO:
  - handlers.go:      Handler and error translation
  - middleware.go:    tenant and gate middleware
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	origins := h.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	headers := []string{"Accept", "Authorization", "Content-Type"}
	if h.TenantHeader != "" {
		headers = append(headers, h.TenantHeader)
	}

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: headers,
		ExposedHeaders: []string{"Location"},
	}))
	if h.Metrics != nil {
		r.Use(h.Metrics.instrument)
		r.Method("GET", "/metrics", h.Metrics.Handler())
	}

	r.Get("/health", h.Health)

	r.Route("/superadmin", func(r chi.Router) {
		r.Post("/companies", h.OnboardCompany)
		r.Get("/companies/{id}", h.GetCompany)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.resolveTenant)
		r.Use(requireTenant)
		r.Use(h.gate)

		r.Get("/company", h.CurrentCompany)

		// Closing workflow
		r.Route("/closings", func(r chi.Router) {
			r.Get("/", h.ListClosings)
			r.Post("/", h.InitiateClosing)
			r.Get("/required", h.RequiredClosing)
			r.Get("/blocked", h.BlockedClosing)
			r.Get("/in-progress", h.InProgressClosing)
			r.Get("/{id}", h.GetClosing)
			r.Put("/{id}/lines/{lineID}", h.UpdateLineItem)
			r.Post("/{id}/pre-complete", h.PreCompleteClosing)
			r.Post("/{id}/complete", h.CompleteClosing)
		})

		// Catalog
		r.Route("/ingredients", func(r chi.Router) {
			r.Get("/", h.ListIngredients)
			r.Post("/", h.CreateIngredient)
			r.Get("/{id}", h.GetIngredient)
			r.Put("/{id}", h.UpdateIngredient)
		})
		r.Route("/recipes", func(r chi.Router) {
			r.Get("/", h.ListRecipes)
			r.Post("/", h.CreateRecipe)
			r.Get("/{id}", h.GetRecipe)
			r.Put("/{id}", h.UpdateRecipe)
			r.Delete("/{id}", h.DeleteRecipe)
			r.Post("/{id}/lines", h.AddRecipeLine)
			r.Put("/{id}/lines/{ingredientID}", h.UpdateRecipeLine)
			r.Delete("/{id}/lines/{ingredientID}", h.RemoveRecipeLine)
		})
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Get("/{id}/possible-stock", h.PossibleStock)
		})

		// Sales and purchases
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.CreateInvoice)
			r.Get("/summary", h.SalesSummary)
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/void", h.VoidInvoice)
		})
		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", h.ListPurchases)
			r.Post("/", h.CreatePurchase)
			r.Get("/{id}", h.GetPurchase)
			r.Post("/{id}/void", h.VoidPurchase)
		})
		r.Post("/customers", h.CreateCustomer)
		r.Post("/suppliers", h.CreateSupplier)

		// Reports
		r.Get("/reports/consumption", h.ConsumptionReport)
	})

	return r
}
