package api

import (
	"net/http"

	"github.com/facinv/closing-engine/inventory"
	"github.com/facinv/closing-engine/invoicing"
	"github.com/facinv/closing-engine/tenant"
	"github.com/go-chi/chi/v5"
)

// invoiceFilter reads ?state=&from=&to= into a listing filter.
func invoiceFilter(r *http.Request) (inventory.InvoiceFilter, error) {
	from, err := queryDate(r, "from")
	if err != nil {
		return inventory.InvoiceFilter{}, err
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return inventory.InvoiceFilter{}, err
	}
	f := inventory.InvoiceFilter{From: from, To: to}
	switch state := inventory.InvoiceState(r.URL.Query().Get("state")); state {
	case "":
	case inventory.InvoicePending, inventory.InvoicePaid, inventory.InvoiceVoided:
		f.State = state
	default:
		return f, &inventory.ValidationError{Field: "state", Message: "must be PENDING, PAID or VOIDED"}
	}
	return f, nil
}

// =============================================================================
// SALES INVOICES
// =============================================================================

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := invoiceFilter(r)
	if err != nil {
		h.fail(w, r, "ListInvoices", err)
		return
	}
	filter.CustomerID = inventory.CustomerID(r.URL.Query().Get("customer_id"))
	invoices, err := h.Sales.List(r.Context(), tenant.IDFromContext(r.Context()), filter)
	if err != nil {
		h.fail(w, r, "ListInvoices", err)
		return
	}
	dtos := make([]InvoiceDTO, len(invoices))
	for i := range invoices {
		dtos[i] = toInvoiceDTO(&invoices[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := invoicing.CreateInvoiceInput{
		Number:        req.Number,
		CustomerID:    inventory.CustomerID(req.CustomerID),
		PaymentMethod: inventory.PaymentMethod(req.PaymentMethod),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, invoicing.SaleLine{ProductID: inventory.ProductID(l.ProductID), Quantity: l.Quantity})
	}

	inv, err := h.Sales.CreateInvoice(r.Context(), tenant.IDFromContext(r.Context()), in)
	if err != nil {
		h.Metrics.invoice("rejected")
		h.fail(w, r, "CreateInvoice", err)
		return
	}
	h.Metrics.invoice("created")
	writeJSON(w, http.StatusCreated, toInvoiceDTO(inv))
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := inventory.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Sales.Get(r.Context(), tenant.IDFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "GetInvoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

func (h *Handler) VoidInvoice(w http.ResponseWriter, r *http.Request) {
	id := inventory.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Sales.VoidInvoice(r.Context(), tenant.IDFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "VoidInvoice", err)
		return
	}
	h.Metrics.invoice("voided")
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// SalesSummary totals the PAID invoices of ?date= (today by default).
func (h *Handler) SalesSummary(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		h.fail(w, r, "SalesSummary", err)
		return
	}
	if date.IsZero() {
		date = inventory.DateOf(h.Clock.Now())
	}
	sum, err := h.Sales.DailySalesSummary(r.Context(), tenant.IDFromContext(r.Context()), date)
	if err != nil {
		h.fail(w, r, "SalesSummary", err)
		return
	}
	writeJSON(w, http.StatusOK, SalesSummaryDTO{Date: sum.Date, Total: sum.Total, InvoiceCount: sum.InvoiceCount})
}

// =============================================================================
// SUPPLIER PURCHASES
// =============================================================================

func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	filter, err := invoiceFilter(r)
	if err != nil {
		h.fail(w, r, "ListPurchases", err)
		return
	}
	filter.SupplierID = inventory.SupplierID(r.URL.Query().Get("supplier_id"))
	purchases, err := h.Purchases.List(r.Context(), tenant.IDFromContext(r.Context()), filter)
	if err != nil {
		h.fail(w, r, "ListPurchases", err)
		return
	}
	dtos := make([]PurchaseDTO, len(purchases))
	for i := range purchases {
		dtos[i] = toPurchaseDTO(&purchases[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := invoicing.CreatePurchaseInput{
		SupplierID: inventory.SupplierID(req.SupplierID),
		Number:     req.Number,
	}
	if req.Date != "" {
		d, err := inventory.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date", err)
			return
		}
		in.Date = d
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, invoicing.ReceiptLine{
			IngredientID: inventory.IngredientID(l.IngredientID),
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
		})
	}

	p, err := h.Purchases.CreatePurchase(r.Context(), tenant.IDFromContext(r.Context()), in)
	if err != nil {
		h.Metrics.purchase("rejected")
		h.fail(w, r, "CreatePurchase", err)
		return
	}
	h.Metrics.purchase("created")
	writeJSON(w, http.StatusCreated, toPurchaseDTO(p))
}

func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	id := inventory.PurchaseID(chi.URLParam(r, "id"))
	p, err := h.Purchases.Get(r.Context(), tenant.IDFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "GetPurchase", err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseDTO(p))
}

func (h *Handler) VoidPurchase(w http.ResponseWriter, r *http.Request) {
	id := inventory.PurchaseID(chi.URLParam(r, "id"))
	p, err := h.Purchases.VoidPurchase(r.Context(), tenant.IDFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "VoidPurchase", err)
		return
	}
	h.Metrics.purchase("voided")
	writeJSON(w, http.StatusOK, toPurchaseDTO(p))
}

// =============================================================================
// CUSTOMERS AND SUPPLIERS
// =============================================================================

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if !h.decode(w, r, &req) {
		return
	}
	c := &inventory.Customer{Name: req.Name, Document: req.Document, Email: req.Email}
	if err := h.Sales.CreateCustomer(r.Context(), tenant.IDFromContext(r.Context()), c); err != nil {
		h.fail(w, r, "CreateCustomer", err)
		return
	}
	writeJSON(w, http.StatusCreated, CustomerDTO{ID: string(c.ID), Name: c.Name, Document: c.Document, Email: c.Email})
}

func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req SupplierRequest
	if !h.decode(w, r, &req) {
		return
	}
	s := &inventory.Supplier{Name: req.Name, Document: req.Document, Phone: req.Phone}
	if err := h.Purchases.CreateSupplier(r.Context(), tenant.IDFromContext(r.Context()), s); err != nil {
		h.fail(w, r, "CreateSupplier", err)
		return
	}
	writeJSON(w, http.StatusCreated, SupplierDTO{ID: string(s.ID), Name: s.Name, Document: s.Document, Phone: s.Phone})
}
