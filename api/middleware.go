package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/facinv/closing-engine/closing"
	"github.com/facinv/closing-engine/inventory"
	"github.com/facinv/closing-engine/tenant"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const (
	requiredPath = "/api/closings/required"
	blockedPath  = "/api/closings/blocked"

	// nextAllowedLayout is the format of the blocked redirect's "next" parameter.
	nextAllowedLayout = "2006-01-02 15:04"
)

func requiredLocation(d inventory.Date) string {
	return requiredPath + "?date=" + d.String()
}

func blockedLocation(next time.Time) string {
	return blockedPath + "?next=" + url.QueryEscape(next.Format(nextAllowedLayout))
}

// requestLogger logs one line per request once the response is written.
func requestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if id := tenant.IDFromContext(r.Context()); id != "" {
				entry = entry.WithField("company_id", id)
			}
			if status >= http.StatusInternalServerError {
				entry.Error("request")
				return
			}
			entry.Info("request")
		})
	}
}

// resolveTenant attaches the company named by the host (or the configured
// header) to the request context. Requests without a tenant pass through.
func (h *Handler) resolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var override string
		if h.TenantHeader != "" {
			override = r.Header.Get(h.TenantHeader)
		}
		c, err := h.Resolver.Resolve(r.Context(), r.Host, override)
		if err != nil {
			h.fail(w, r, "resolveTenant", err)
			return
		}
		if c != nil {
			r = r.WithContext(tenant.WithCompany(r.Context(), c))
		}
		next.ServeHTTP(w, r)
	})
}

func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tenant.FromContext(r.Context()) == nil {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown company", Code: "tenant_not_found"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// gate applies the closing gate to every request below it.
func (h *Handler) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.Gate.Evaluate(r.Context(), tenant.IDFromContext(r.Context()), r.URL.Path, h.Clock.Now())
		if err != nil {
			h.fail(w, r, "gate", err)
			return
		}
		h.Metrics.gate(d.Outcome.String())

		switch d.Outcome {
		case closing.DenyBlocked:
			loc := blockedLocation(d.NextAllowedAt)
			at := d.NextAllowedAt
			w.Header().Set("Location", loc)
			writeJSON(w, http.StatusSeeOther, GateDenialResponse{
				Error:         "today's closing is complete; operations resume at the next business day",
				Outcome:       d.Outcome.String(),
				Location:      loc,
				NextAllowedAt: &at,
			})
		case closing.DenyMustClose:
			loc := requiredLocation(d.RequiredDate)
			w.Header().Set("Location", loc)
			writeJSON(w, http.StatusSeeOther, GateDenialResponse{
				Error:        "the closing for " + d.RequiredDate.String() + " must be completed first",
				Outcome:      d.Outcome.String(),
				Location:     loc,
				RequiredDate: d.RequiredDate.String(),
			})
		default:
			next.ServeHTTP(w, r)
		}
	})
}
