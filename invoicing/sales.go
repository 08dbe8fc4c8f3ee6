/*
sales.go - Invoicing Engine

PURPOSE:
  Creates and voids customer invoices. Each operation is one transaction
  spanning the invoice header, its lines and every stock move it causes,
  run while holding the company stock lock.

CREATE FLOW:
  1. The prior business day must be closed (closing.EnsurePriorDayClosed).
     The request gate checks the same rule; this is the in-process copy.
  2. Re-read every product and expand the lines into one stock plan
     (direct products draw on themselves, recipe products on ingredients).
  3. Check the whole plan. Any shortfall fails before anything is written.
  4. Persist the invoice, then withdraw the plan.

TAX:
  Prices are tax inclusive. base = total / 1.19, tax = base * 0.19, both
  rounded to 2 decimals. The total is kept as charged.

VOID:
  PAID -> VOIDED. Stock drawn by the sale is deposited back and the totals
  are zeroed. A voided invoice stays for audit.

SEE ALSO:
  - purchases.go:           supplier receipts
  - closing/gate.go:        EnsurePriorDayClosed
  - inventory/ledger.go:    Check / Withdraw / Deposit
*/
package invoicing

import (
	"context"

	"github.com/facinv/closing-engine/closing"
	"github.com/facinv/closing-engine/inventory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const module = "invoicing"

type SalesService struct {
	Store  inventory.TxStore
	Clock  inventory.Clock
	Locker inventory.Locker
	Logger logrus.FieldLogger
}

func NewSalesService(store inventory.TxStore, clock inventory.Clock, locker inventory.Locker, logger logrus.FieldLogger) *SalesService {
	if clock == nil {
		clock = inventory.SystemClock{}
	}
	if logger == nil {
		logger = inventory.NopLogger()
	}
	return &SalesService{Store: store, Clock: clock, Locker: locker, Logger: logger}
}

// SaleLine is one requested line. The unit price is always the product's
// current sale price.
type SaleLine struct {
	ProductID inventory.ProductID
	Quantity  decimal.Decimal
}

type CreateInvoiceInput struct {
	Number        string // generated when empty
	CustomerID    inventory.CustomerID
	PaymentMethod inventory.PaymentMethod // CASH when empty
	Lines         []SaleLine
}

// =============================================================================
// CREATE
// =============================================================================

func (s *SalesService) CreateInvoice(ctx context.Context, companyID inventory.CompanyID, in CreateInvoiceInput) (*inventory.Invoice, error) {
	if err := validateSale(&in); err != nil {
		return nil, err
	}
	now := s.Clock.Now()

	var inv inventory.Invoice
	err := inventory.WithLock(ctx, s.Locker, inventory.StockLockKey(companyID), func() error {
		return s.Store.WithTx(ctx, func(tx inventory.Store) error {
			if err := closing.EnsurePriorDayClosed(ctx, tx, companyID, now); err != nil {
				return err
			}
			if in.CustomerID != "" {
				if _, err := tx.GetCustomer(ctx, companyID, in.CustomerID); err != nil {
					return err
				}
			}

			engine := inventory.NewRecipeEngine(tx)
			var plan inventory.Plan
			inv = inventory.Invoice{
				ID:            inventory.InvoiceID(inventory.NewID()),
				CompanyID:     companyID,
				CustomerID:    in.CustomerID,
				Date:          inventory.DateOf(now),
				State:         inventory.InvoicePaid,
				PaymentMethod: in.PaymentMethod,
				CreatedAt:     now,
			}
			total := decimal.Zero
			for _, l := range in.Lines {
				p, err := tx.GetProduct(ctx, companyID, l.ProductID)
				if err != nil {
					return err
				}
				if !p.Active {
					return &inventory.ValidationError{Field: "product_id", Message: "product " + p.Name + " is not active"}
				}
				reqs, err := engine.SaleRequirements(ctx, companyID, p, l.Quantity)
				if err != nil {
					return err
				}
				plan = plan.Add(reqs)

				line := inventory.InvoiceLine{ProductID: p.ID, Quantity: l.Quantity, UnitPrice: p.SalePrice}
				line.ComputeSubtotal()
				total = total.Add(line.Subtotal)
				inv.Lines = append(inv.Lines, line)
			}

			ledger := inventory.NewLedger(tx)
			if _, err := ledger.Check(ctx, companyID, plan); err != nil {
				return err
			}

			number, err := invoiceNumbers(tx).assign(ctx, companyID, in.Number, now.Year())
			if err != nil {
				return err
			}
			inv.Number = number
			inv.Total = total.Round(2)
			inv.Subtotal, inv.Tax = taxInclusive(inv.Total)

			if err := tx.CreateInvoice(ctx, &inv); err != nil {
				return err
			}
			return ledger.Withdraw(ctx, companyID, plan)
		})
	})
	if err != nil {
		if !inventory.IsBusinessRule(err) && !inventory.IsNotFound(err) && !inventory.IsConflict(err) {
			inventory.LogError(s.Logger, module, "CreateInvoice", "create invoice", logrus.Fields{"company_id": companyID}, err)
		}
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{
		"company_id": companyID,
		"invoice_id": inv.ID,
		"number":     inv.Number,
		"total":      inv.Total.String(),
	}).Info("invoice created")
	return &inv, nil
}

func validateSale(in *CreateInvoiceInput) error {
	if len(in.Lines) == 0 {
		return &inventory.ValidationError{Field: "lines", Message: "an invoice needs at least one line"}
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = inventory.PaymentCash
	}
	if !in.PaymentMethod.Valid() {
		return &inventory.ValidationError{Field: "payment_method", Message: "unknown payment method " + string(in.PaymentMethod)}
	}
	for _, l := range in.Lines {
		if l.ProductID == "" {
			return &inventory.ValidationError{Field: "product_id", Message: "is required"}
		}
		if err := validQuantity("quantity", l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func invoiceNumbers(tx inventory.SalesStore) numberSource {
	return numberSource{
		count:  tx.CountInvoices,
		exists: tx.InvoiceNumberExists,
		format: salesNumberFormat,
		entity: "invoice",
	}
}

// =============================================================================
// VOID
// =============================================================================

// VoidInvoice returns the sale's stock and zeroes the invoice. Recipe
// products are replenished with their current recipe.
func (s *SalesService) VoidInvoice(ctx context.Context, companyID inventory.CompanyID, id inventory.InvoiceID) (*inventory.Invoice, error) {
	var out inventory.Invoice
	err := inventory.WithLock(ctx, s.Locker, inventory.StockLockKey(companyID), func() error {
		return s.Store.WithTx(ctx, func(tx inventory.Store) error {
			inv, err := tx.GetInvoice(ctx, companyID, id)
			if err != nil {
				return err
			}
			if inv.State != inventory.InvoicePaid {
				return &inventory.StateTransitionError{
					Entity: "invoice", ID: string(inv.ID), From: string(inv.State), To: string(inventory.InvoiceVoided),
					Reason: "only PAID invoices can be voided",
				}
			}

			engine := inventory.NewRecipeEngine(tx)
			var plan inventory.Plan
			for _, l := range inv.Lines {
				p, err := tx.GetProduct(ctx, companyID, l.ProductID)
				if err != nil {
					return err
				}
				reqs, err := engine.SaleRequirements(ctx, companyID, p, l.Quantity)
				if err != nil {
					return err
				}
				plan = plan.Add(reqs)
			}
			if err := inventory.NewLedger(tx).Deposit(ctx, companyID, plan); err != nil {
				return err
			}

			inv.State = inventory.InvoiceVoided
			inv.Subtotal, inv.Tax, inv.Total = decimal.Zero, decimal.Zero, decimal.Zero
			if err := tx.UpdateInvoice(ctx, inv); err != nil {
				return err
			}
			out = *inv
			return nil
		})
	})
	if err != nil {
		if !inventory.IsBusinessRule(err) && !inventory.IsNotFound(err) {
			inventory.LogError(s.Logger, module, "VoidInvoice", "void invoice", logrus.Fields{"company_id": companyID, "invoice_id": id}, err)
		}
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{"company_id": companyID, "invoice_id": id}).Info("invoice voided")
	return &out, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *SalesService) Get(ctx context.Context, companyID inventory.CompanyID, id inventory.InvoiceID) (*inventory.Invoice, error) {
	return s.Store.GetInvoice(ctx, companyID, id)
}

func (s *SalesService) List(ctx context.Context, companyID inventory.CompanyID, filter inventory.InvoiceFilter) ([]inventory.Invoice, error) {
	return s.Store.ListInvoices(ctx, companyID, filter)
}

// DailySalesSummary totals the PAID invoices of one day.
func (s *SalesService) DailySalesSummary(ctx context.Context, companyID inventory.CompanyID, date inventory.Date) (inventory.SalesSummary, error) {
	return inventory.DailySales(ctx, s.Store, companyID, date)
}
