package api

import (
	"net/http"

	"github.com/facinv/closing-engine/inventory"
	"github.com/facinv/closing-engine/tenant"
	"github.com/go-chi/chi/v5"
)

// =============================================================================
// SUPERADMIN
// =============================================================================

// OnboardCompany registers a tenant. The company can operate right away
// because onboarding seeds yesterday's closing as COMPLETADO.
func (h *Handler) OnboardCompany(w http.ResponseWriter, r *http.Request) {
	var req OnboardRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Tenants.Onboard(r.Context(), tenant.OnboardInput{
		Name:         req.Name,
		Subdomain:    req.Subdomain,
		ContactEmail: req.ContactEmail,
		SampleData:   req.SampleData,
	})
	if err != nil {
		h.fail(w, r, "OnboardCompany", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompanyDTO(c))
}

func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	c, err := h.Tenants.Get(r.Context(), inventory.CompanyID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "GetCompany", err)
		return
	}
	writeJSON(w, http.StatusOK, toCompanyDTO(c))
}

// CurrentCompany returns the tenant the request resolved to.
func (h *Handler) CurrentCompany(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toCompanyDTO(tenant.FromContext(r.Context())))
}
