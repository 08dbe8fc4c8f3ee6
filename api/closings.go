package api

import (
	"context"
	"net/http"

	"github.com/facinv/closing-engine/closing"
	"github.com/facinv/closing-engine/inventory"
	"github.com/facinv/closing-engine/tenant"
	"github.com/go-chi/chi/v5"
)

// =============================================================================
// CLOSING WORKFLOW
// =============================================================================

func (h *Handler) ListClosings(w http.ResponseWriter, r *http.Request) {
	closings, err := h.Closings.List(r.Context(), tenant.IDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "ListClosings", err)
		return
	}
	dtos := make([]ClosingDTO, len(closings))
	for i := range closings {
		dtos[i] = toClosingDTO(&closings[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) InitiateClosing(w http.ResponseWriter, r *http.Request) {
	var req InitiateClosingRequest
	if !h.decode(w, r, &req) {
		return
	}
	var date inventory.Date
	if req.Date != "" {
		d, err := inventory.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date", err)
			return
		}
		date = d
	}

	detail, err := h.Closings.Initiate(r.Context(), tenant.IDFromContext(r.Context()), closing.InitiateInput{
		Date:   date,
		UserID: req.UserID,
		Notes:  req.Notes,
	})
	if err != nil {
		h.fail(w, r, "InitiateClosing", err)
		return
	}
	h.Metrics.transition(string(detail.Closing.State))
	writeJSON(w, http.StatusCreated, toClosingDetailDTO(detail))
}

func (h *Handler) GetClosing(w http.ResponseWriter, r *http.Request) {
	id := inventory.ClosingID(chi.URLParam(r, "id"))
	detail, err := h.Closings.Get(r.Context(), tenant.IDFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "GetClosing", err)
		return
	}
	writeJSON(w, http.StatusOK, toClosingDetailDTO(detail))
}

func (h *Handler) InProgressClosing(w http.ResponseWriter, r *http.Request) {
	c, err := h.Closings.InProgress(r.Context(), tenant.IDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "InProgressClosing", err)
		return
	}
	writeJSON(w, http.StatusOK, toClosingDTO(c))
}

// UpdateLineItem records the physical count of one line. The line id is
// global, the closing id in the path only scopes the URL.
func (h *Handler) UpdateLineItem(w http.ResponseWriter, r *http.Request) {
	var req CountRequest
	if !h.decode(w, r, &req) {
		return
	}
	lineID := inventory.LineItemID(chi.URLParam(r, "lineID"))
	li, err := h.Closings.UpdateLineItem(r.Context(), tenant.IDFromContext(r.Context()), lineID, closing.Count{
		RealStock: *req.RealStock,
		Shrinkage: req.Shrinkage,
		Waste:     req.Waste,
	})
	if err != nil {
		h.fail(w, r, "UpdateLineItem", err)
		return
	}
	if li.ClosingID != inventory.ClosingID(chi.URLParam(r, "id")) {
		h.fail(w, r, "UpdateLineItem", &inventory.NotFoundError{Entity: "closing line item", ID: string(lineID)})
		return
	}
	writeJSON(w, http.StatusOK, toLineItemDTO(li))
}

func (h *Handler) PreCompleteClosing(w http.ResponseWriter, r *http.Request) {
	h.advanceClosing(w, r, "PreCompleteClosing", h.Closings.PreComplete)
}

func (h *Handler) CompleteClosing(w http.ResponseWriter, r *http.Request) {
	h.advanceClosing(w, r, "CompleteClosing", h.Closings.CompleteDefinitive)
}

type transitionFunc func(ctx context.Context, companyID inventory.CompanyID, id inventory.ClosingID) (*inventory.DailyClosing, error)

func (h *Handler) advanceClosing(w http.ResponseWriter, r *http.Request, funcName string, advance transitionFunc) {
	id := inventory.ClosingID(chi.URLParam(r, "id"))
	c, err := advance(r.Context(), tenant.IDFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, funcName, err)
		return
	}
	h.Metrics.transition(string(c.State))
	writeJSON(w, http.StatusOK, toClosingDTO(c))
}

// RequiredClosing is the obligatory-closing landing: which day must be
// closed now and whether it already is.
func (h *Handler) RequiredClosing(w http.ResponseWriter, r *http.Request) {
	status, err := h.Closings.Required(r.Context(), tenant.IDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "RequiredClosing", err)
		return
	}
	writeJSON(w, http.StatusOK, RequiredClosingDTO{Date: status.Date, Closed: status.Closed})
}

// BlockedClosing is the landing page of DenyBlocked redirects.
func (h *Handler) BlockedClosing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BlockedDTO{
		Message:       "today's closing is complete; operations resume at the next business day",
		NextAllowedAt: r.URL.Query().Get("next"),
	})
}

// =============================================================================
// REPORTS
// =============================================================================

func (h *Handler) ConsumptionReport(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		h.fail(w, r, "ConsumptionReport", err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		h.fail(w, r, "ConsumptionReport", err)
		return
	}
	if to.IsZero() {
		to = inventory.DateOf(h.Clock.Now())
	}
	if from.IsZero() {
		from = to.AddDays(-6)
	}

	report, err := h.Closings.ConsumptionReport(r.Context(), tenant.IDFromContext(r.Context()), from, to)
	if err != nil {
		h.fail(w, r, "ConsumptionReport", err)
		return
	}
	writeJSON(w, http.StatusOK, toConsumptionReportDTO(report))
}
