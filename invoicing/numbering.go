package invoicing

import (
	"context"
	"fmt"
	"strings"

	"github.com/facinv/closing-engine/inventory"
	"github.com/shopspring/decimal"
)

const (
	salesNumberFormat    = "FAC-%03d-%d"
	purchaseNumberFormat = "FAC-PROV-%03d-%d"
)

var (
	taxRate    = decimal.RequireFromString("0.19")
	taxDivisor = decimal.RequireFromString("1.19")
)

// taxInclusive splits a tax-inclusive total into base and tax.
func taxInclusive(total decimal.Decimal) (base, tax decimal.Decimal) {
	base = total.Div(taxDivisor).Round(2)
	tax = base.Mul(taxRate).Round(2)
	return base, tax
}

// taxExclusive adds tax on top of a subtotal.
func taxExclusive(subtotal decimal.Decimal) (tax, total decimal.Decimal) {
	tax = subtotal.Mul(taxRate).Round(2)
	return tax, subtotal.Add(tax)
}

type numberSource struct {
	count  func(ctx context.Context, companyID inventory.CompanyID) (int, error)
	exists func(ctx context.Context, companyID inventory.CompanyID, number string) (bool, error)
	format string
	entity string
}

// assign returns the caller's number after a uniqueness check, or the next
// free generated one: count+1 for the year, skipping numbers already taken.
func (n numberSource) assign(ctx context.Context, companyID inventory.CompanyID, requested string, year int) (string, error) {
	if requested = strings.TrimSpace(requested); requested != "" {
		taken, err := n.exists(ctx, companyID, requested)
		if err != nil {
			return "", err
		}
		if taken {
			return "", &inventory.ConflictError{Entity: n.entity, Field: "number", Value: requested}
		}
		return requested, nil
	}

	count, err := n.count(ctx, companyID)
	if err != nil {
		return "", err
	}
	for seq := count + 1; ; seq++ {
		number := fmt.Sprintf(n.format, seq, year)
		taken, err := n.exists(ctx, companyID, number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
	}
}

func validQuantity(field string, q decimal.Decimal) error {
	if !q.IsPositive() {
		return &inventory.ValidationError{Field: field, Message: "must be greater than zero"}
	}
	return nil
}
