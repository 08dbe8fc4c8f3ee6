package closing

import (
	"context"

	"github.com/facinv/closing-engine/inventory"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONSUMPTION REPORT
// =============================================================================

// ConsumptionLine reconciles one stock subject over a period:
//
//	theoreticalFinal = initial + purchases - consumption
//	variance         = final - theoreticalFinal
type ConsumptionLine struct {
	Subject          inventory.StockRef
	Name             string
	Unit             string
	InitialStock     decimal.Decimal
	Purchases        decimal.Decimal
	Consumption      decimal.Decimal
	TheoreticalFinal decimal.Decimal
	FinalStock       decimal.Decimal
	Variance         decimal.Decimal
	UnitCost         decimal.Decimal
	ConsumptionValue decimal.Decimal
	VarianceValue    decimal.Decimal
}

type ConsumptionReport struct {
	From  inventory.Date
	To    inventory.Date
	Lines []ConsumptionLine

	// InitialClosing and FinalClosing are empty when no completed closing
	// bounds the period on that side.
	InitialClosing inventory.ClosingID
	FinalClosing   inventory.ClosingID

	TotalConsumptionValue decimal.Decimal
	TotalVarianceValue    decimal.Decimal
	// VariancePercent is TotalVarianceValue over TotalConsumptionValue, in
	// percent, 0 when nothing was consumed.
	VariancePercent decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ConsumptionReport reconciles purchases and sales of [from, to] against the
// completed closings around the period. Initial stock comes from the latest
// completed closing before from (zero when there is none). Final stock comes
// from the latest completed closing on or before to, or live stock when
// there is none.
func (s *Service) ConsumptionReport(ctx context.Context, companyID inventory.CompanyID, from, to inventory.Date) (*ConsumptionReport, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, &inventory.ValidationError{Field: "from", Message: "period must satisfy from <= to"}
	}

	report := &ConsumptionReport{From: from, To: to}

	initial, initialID, err := s.closingStock(ctx, companyID, from)
	if err != nil {
		return nil, err
	}
	final, finalID, err := s.closingStock(ctx, companyID, to.AddDays(1))
	if err != nil {
		return nil, err
	}
	report.InitialClosing, report.FinalClosing = initialID, finalID

	purchased, err := s.purchasedQuantities(ctx, companyID, from, to)
	if err != nil {
		return nil, err
	}
	consumed, err := s.consumedQuantities(ctx, companyID, from, to)
	if err != nil {
		return nil, err
	}

	ingredients, err := s.Store.ListIngredients(ctx, companyID)
	if err != nil {
		return nil, err
	}
	products, err := s.Store.ListProducts(ctx, companyID)
	if err != nil {
		return nil, err
	}

	add := func(ref inventory.StockRef, name, unit string, live, unitCost decimal.Decimal) {
		finalStock, ok := final[ref]
		if !ok && finalID == "" {
			finalStock = live
		}
		line := ConsumptionLine{
			Subject:      ref,
			Name:         name,
			Unit:         unit,
			InitialStock: initial[ref],
			Purchases:    purchased[ref],
			Consumption:  consumed[ref],
			FinalStock:   finalStock,
			UnitCost:     unitCost,
		}
		line.TheoreticalFinal = line.InitialStock.Add(line.Purchases).Sub(line.Consumption)
		line.Variance = line.FinalStock.Sub(line.TheoreticalFinal)
		line.ConsumptionValue = line.Consumption.Mul(unitCost)
		line.VarianceValue = line.Variance.Mul(unitCost)

		report.TotalConsumptionValue = report.TotalConsumptionValue.Add(line.ConsumptionValue)
		report.TotalVarianceValue = report.TotalVarianceValue.Add(line.VarianceValue)
		report.Lines = append(report.Lines, line)
	}
	for _, ing := range ingredients {
		if ing.Active {
			add(ing.Ref(), ing.Name, ing.Unit, ing.Stock, ing.UnitPrice)
		}
	}
	for _, p := range products {
		if !p.HasRecipe {
			add(p.Ref(), p.Name, p.SaleUnit, p.Stock, p.SalePrice)
		}
	}

	if report.TotalConsumptionValue.IsZero() {
		report.VariancePercent = decimal.Zero
	} else {
		report.VariancePercent = report.TotalVarianceValue.Div(report.TotalConsumptionValue).Mul(hundred).Round(2)
	}
	return report, nil
}

// closingStock returns the counted real stock of the latest completed
// closing strictly before the given date.
func (s *Service) closingStock(ctx context.Context, companyID inventory.CompanyID, before inventory.Date) (map[inventory.StockRef]decimal.Decimal, inventory.ClosingID, error) {
	c, err := s.Store.LatestClosingBefore(ctx, companyID, inventory.ClosingCompleted, before)
	if inventory.IsNotFound(err) {
		return map[inventory.StockRef]decimal.Decimal{}, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	lines, err := s.Store.ListLineItems(ctx, companyID, c.ID)
	if err != nil {
		return nil, "", err
	}
	out := make(map[inventory.StockRef]decimal.Decimal, len(lines))
	for _, li := range lines {
		out[li.Subject] = li.RealStock
	}
	return out, c.ID, nil
}

func (s *Service) purchasedQuantities(ctx context.Context, companyID inventory.CompanyID, from, to inventory.Date) (map[inventory.StockRef]decimal.Decimal, error) {
	purchases, err := s.Store.ListPurchases(ctx, companyID, inventory.InvoiceFilter{State: inventory.InvoicePaid, From: from, To: to})
	if err != nil {
		return nil, err
	}
	out := make(map[inventory.StockRef]decimal.Decimal)
	for _, p := range purchases {
		for _, l := range p.Lines {
			ref := inventory.IngredientRef(l.IngredientID)
			out[ref] = out[ref].Add(l.Quantity)
		}
	}
	return out, nil
}

// consumedQuantities expands PAID sales into the subjects they drew from.
func (s *Service) consumedQuantities(ctx context.Context, companyID inventory.CompanyID, from, to inventory.Date) (map[inventory.StockRef]decimal.Decimal, error) {
	invoices, err := s.Store.ListInvoices(ctx, companyID, inventory.InvoiceFilter{State: inventory.InvoicePaid, From: from, To: to})
	if err != nil {
		return nil, err
	}
	engine := inventory.NewRecipeEngine(s.Store)
	products := make(map[inventory.ProductID]*inventory.Product)
	out := make(map[inventory.StockRef]decimal.Decimal)
	for _, inv := range invoices {
		for _, l := range inv.Lines {
			p, ok := products[l.ProductID]
			if !ok {
				if p, err = s.Store.GetProduct(ctx, companyID, l.ProductID); err != nil {
					return nil, err
				}
				products[l.ProductID] = p
			}
			plan, err := engine.SaleRequirements(ctx, companyID, p, l.Quantity)
			if err != nil {
				return nil, err
			}
			for _, req := range plan {
				out[req.Ref] = out[req.Ref].Add(req.Quantity)
			}
		}
	}
	return out, nil
}
