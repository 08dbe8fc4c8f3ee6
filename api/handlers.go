/*
handlers.go - HTTP handler wiring, JSON helpers and error translation

PURPOSE:
  Holds the Handler that every endpoint hangs off, builds the domain
  services from one store, and turns domain errors into HTTP responses.

REQUEST FLOW:
  1. Tenant middleware resolves the company (middleware.go)
  2. Gate middleware allows or redirects (middleware.go)
  3. Handler decodes and validates the body (decode)
  4. Handler calls one service operation
  5. Result or error is written as JSON

ERROR HANDLING:
  - 303: prior business day not closed (Location: obligatory closing)
  - 400: malformed body, failed validation
  - 404: entity absent or owned by another company
  - 409: duplicate value, concurrent stock modification
  - 422: insufficient stock, invalid closing/invoice state transition
  - 500: anything else, logged

SEE ALSO:
  - dto.go:        request/response shapes
  - middleware.go: tenant resolution and the closing gate
  - server.go:     router
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/facinv/closing-engine/catalog"
	"github.com/facinv/closing-engine/closing"
	"github.com/facinv/closing-engine/inventory"
	"github.com/facinv/closing-engine/invoicing"
	"github.com/facinv/closing-engine/tenant"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const module = "api"

// Pinger reports database reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the HTTP-facing settings of a Handler.
type Options struct {
	BaseDomain     string
	TenantHeader   string
	AllowedOrigins []string
	Metrics        *Metrics // nil disables /metrics and instrumentation
	Pinger         Pinger
}

type Handler struct {
	Closings  *closing.Service
	Gate      *closing.Gate
	Catalog   *catalog.Service
	Sales     *invoicing.SalesService
	Purchases *invoicing.PurchaseService
	Tenants   *tenant.Service
	Resolver  *tenant.Resolver

	Clock  inventory.Clock
	Logger logrus.FieldLogger

	Options
	validate *validator.Validate
}

// NewHandler builds every service over the same store, clock and locker so
// the gate and the closing workflow read one clock source.
func NewHandler(store inventory.TxStore, clock inventory.Clock, locker inventory.Locker, logger logrus.FieldLogger, opts Options) *Handler {
	if clock == nil {
		clock = inventory.SystemClock{}
	}
	if logger == nil {
		logger = inventory.NopLogger()
	}
	cat := catalog.NewService(store, locker, logger)
	return &Handler{
		Closings:  closing.NewService(store, clock, locker, logger),
		Gate:      closing.NewGate(store, logger),
		Catalog:   cat,
		Sales:     invoicing.NewSalesService(store, clock, locker, logger),
		Purchases: invoicing.NewPurchaseService(store, clock, locker, logger),
		Tenants:   tenant.NewService(store, cat, clock, logger),
		Resolver:  tenant.NewResolver(store, opts.BaseDomain),
		Clock:     clock,
		Logger:    logger,
		Options:   opts,
		validate:  newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// JSON HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into dst and validates its tags. It writes the
// 400 itself and reports false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "validation failed", err)
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Namespace()[strings.IndexByte(fe.Namespace(), '.')+1:]] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Code: "validation", Fields: fields})
		return false
	}
	return true
}

// queryDate parses an optional yyyy-MM-dd query parameter.
func queryDate(r *http.Request, key string) (inventory.Date, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return inventory.Date{}, nil
	}
	d, err := inventory.ParseDate(raw)
	if err != nil {
		return inventory.Date{}, &inventory.ValidationError{Field: key, Message: "must be yyyy-MM-dd"}
	}
	return d, nil
}

// =============================================================================
// ERROR TRANSLATION
// =============================================================================

// fail writes the response for a domain error. Only errors outside the
// domain taxonomy are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, funcName string, err error) {
	var priorDay *inventory.PriorDayNotClosedError
	if errors.As(err, &priorDay) {
		loc := requiredLocation(priorDay.Date)
		w.Header().Set("Location", loc)
		writeJSON(w, http.StatusSeeOther, GateDenialResponse{
			Error:        err.Error(),
			Outcome:      closing.DenyMustClose.String(),
			Location:     loc,
			RequiredDate: priorDay.Date.String(),
		})
		return
	}

	status, code := classify(err)
	if status == http.StatusInternalServerError {
		inventory.LogError(h.Logger, module, funcName, r.Method+" "+r.URL.Path,
			logrus.Fields{"company_id": tenant.IDFromContext(r.Context())}, err)
		writeJSON(w, status, ErrorResponse{Error: "internal error", Code: code})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Code: code, Details: err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, inventory.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, inventory.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, inventory.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "insufficient_stock"
	case errors.Is(err, inventory.ErrIncompleteLineItems):
		return http.StatusUnprocessableEntity, "incomplete_line_items"
	case errors.Is(err, inventory.ErrInvalidStateTransition):
		return http.StatusUnprocessableEntity, "invalid_state_transition"
	}
	return http.StatusInternalServerError, "internal"
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthDTO{Status: "ok", Database: "unknown"}
	if h.Pinger != nil {
		if err := h.Pinger.Ping(r.Context()); err != nil {
			h.Logger.WithError(err).Warn("health check: database unreachable")
			resp.Status, resp.Database = "degraded", "down"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Database = "up"
	}
	writeJSON(w, http.StatusOK, resp)
}
