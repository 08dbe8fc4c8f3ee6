package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// DailySales sums the PAID invoices of companyID on date. VOIDED and PENDING
// invoices are excluded.
func DailySales(ctx context.Context, sales SalesStore, companyID CompanyID, date Date) (SalesSummary, error) {
	invoices, err := sales.ListInvoices(ctx, companyID, InvoiceFilter{State: InvoicePaid, From: date, To: date})
	if err != nil {
		return SalesSummary{}, err
	}
	summary := SalesSummary{Date: date, Total: decimal.Zero}
	for _, inv := range invoices {
		summary.Total = summary.Total.Add(inv.Total)
		summary.InvoiceCount++
	}
	return summary, nil
}
