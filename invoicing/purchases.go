/*
purchases.go - Supplier Purchase Receipts

PURPOSE:
  Records supplier invoices and receives their ingredients into stock.
  Unlike sales, prices are tax exclusive: tax = subtotal * 0.19.

VOID:
  PAID -> VOIDED takes the received quantities back out of stock. When any
  ingredient has since dropped below what was received the void fails and
  nothing moves.
*/
package invoicing

import (
	"context"
	"strings"

	"github.com/facinv/closing-engine/inventory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type PurchaseService struct {
	Store  inventory.TxStore
	Clock  inventory.Clock
	Locker inventory.Locker
	Logger logrus.FieldLogger
}

func NewPurchaseService(store inventory.TxStore, clock inventory.Clock, locker inventory.Locker, logger logrus.FieldLogger) *PurchaseService {
	if clock == nil {
		clock = inventory.SystemClock{}
	}
	if logger == nil {
		logger = inventory.NopLogger()
	}
	return &PurchaseService{Store: store, Clock: clock, Locker: locker, Logger: logger}
}

type ReceiptLine struct {
	IngredientID inventory.IngredientID
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
}

type CreatePurchaseInput struct {
	SupplierID inventory.SupplierID
	Number     string         // generated when empty
	Date       inventory.Date // today when zero
	Lines      []ReceiptLine
}

func (s *PurchaseService) CreatePurchase(ctx context.Context, companyID inventory.CompanyID, in CreatePurchaseInput) (*inventory.Purchase, error) {
	if err := validateReceipt(in); err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	date := in.Date
	if date.IsZero() {
		date = inventory.DateOf(now)
	}

	var p inventory.Purchase
	err := inventory.WithLock(ctx, s.Locker, inventory.StockLockKey(companyID), func() error {
		return s.Store.WithTx(ctx, func(tx inventory.Store) error {
			if _, err := tx.GetSupplier(ctx, companyID, in.SupplierID); err != nil {
				return err
			}

			p = inventory.Purchase{
				ID:         inventory.PurchaseID(inventory.NewID()),
				CompanyID:  companyID,
				SupplierID: in.SupplierID,
				Date:       date,
				State:      inventory.InvoicePaid,
				CreatedAt:  now,
			}
			var plan inventory.Plan
			subtotal := decimal.Zero
			for _, l := range in.Lines {
				// Ownership is checked before anything is written.
				if _, err := tx.GetIngredient(ctx, companyID, l.IngredientID); err != nil {
					return err
				}
				line := inventory.PurchaseLine{IngredientID: l.IngredientID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
				line.ComputeSubtotal()
				subtotal = subtotal.Add(line.Subtotal)
				p.Lines = append(p.Lines, line)
				plan = append(plan, inventory.Requirement{Ref: inventory.IngredientRef(l.IngredientID), Quantity: l.Quantity})
			}

			number, err := purchaseNumbers(tx).assign(ctx, companyID, in.Number, date.Year())
			if err != nil {
				return err
			}
			p.Number = number
			p.Subtotal = subtotal.Round(2)
			p.Tax, p.Total = taxExclusive(p.Subtotal)

			if err := tx.CreatePurchase(ctx, &p); err != nil {
				return err
			}
			return inventory.NewLedger(tx).Deposit(ctx, companyID, plan)
		})
	})
	if err != nil {
		if !inventory.IsNotFound(err) && !inventory.IsConflict(err) {
			inventory.LogError(s.Logger, module, "CreatePurchase", "receive purchase", logrus.Fields{"company_id": companyID}, err)
		}
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{
		"company_id":  companyID,
		"purchase_id": p.ID,
		"number":      p.Number,
		"lines":       len(p.Lines),
	}).Info("purchase received")
	return &p, nil
}

func validateReceipt(in CreatePurchaseInput) error {
	if in.SupplierID == "" {
		return &inventory.ValidationError{Field: "supplier_id", Message: "is required"}
	}
	if len(in.Lines) == 0 {
		return &inventory.ValidationError{Field: "lines", Message: "a purchase needs at least one line"}
	}
	for _, l := range in.Lines {
		if l.IngredientID == "" {
			return &inventory.ValidationError{Field: "ingredient_id", Message: "is required"}
		}
		if err := validQuantity("quantity", l.Quantity); err != nil {
			return err
		}
		if l.UnitPrice.IsNegative() {
			return &inventory.ValidationError{Field: "unit_price", Message: "cannot be negative"}
		}
	}
	return nil
}

func purchaseNumbers(tx inventory.PurchaseStore) numberSource {
	return numberSource{
		count:  tx.CountPurchases,
		exists: tx.PurchaseNumberExists,
		format: purchaseNumberFormat,
		entity: "purchase",
	}
}

func (s *PurchaseService) VoidPurchase(ctx context.Context, companyID inventory.CompanyID, id inventory.PurchaseID) (*inventory.Purchase, error) {
	var out inventory.Purchase
	err := inventory.WithLock(ctx, s.Locker, inventory.StockLockKey(companyID), func() error {
		return s.Store.WithTx(ctx, func(tx inventory.Store) error {
			p, err := tx.GetPurchase(ctx, companyID, id)
			if err != nil {
				return err
			}
			if p.State != inventory.InvoicePaid {
				return &inventory.StateTransitionError{
					Entity: "purchase", ID: string(p.ID), From: string(p.State), To: string(inventory.InvoiceVoided),
					Reason: "only PAID purchases can be voided",
				}
			}

			var plan inventory.Plan
			for _, l := range p.Lines {
				plan = append(plan, inventory.Requirement{Ref: inventory.IngredientRef(l.IngredientID), Quantity: l.Quantity})
			}
			if err := inventory.NewLedger(tx).Withdraw(ctx, companyID, plan); err != nil {
				return err
			}

			p.State = inventory.InvoiceVoided
			p.Subtotal, p.Tax, p.Total = decimal.Zero, decimal.Zero, decimal.Zero
			if err := tx.UpdatePurchase(ctx, p); err != nil {
				return err
			}
			out = *p
			return nil
		})
	})
	if err != nil {
		if !inventory.IsBusinessRule(err) && !inventory.IsNotFound(err) {
			inventory.LogError(s.Logger, module, "VoidPurchase", "void purchase", logrus.Fields{"company_id": companyID, "purchase_id": id}, err)
		}
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{"company_id": companyID, "purchase_id": id}).Info("purchase voided")
	return &out, nil
}

func (s *PurchaseService) Get(ctx context.Context, companyID inventory.CompanyID, id inventory.PurchaseID) (*inventory.Purchase, error) {
	return s.Store.GetPurchase(ctx, companyID, id)
}

func (s *PurchaseService) List(ctx context.Context, companyID inventory.CompanyID, filter inventory.InvoiceFilter) ([]inventory.Purchase, error) {
	return s.Store.ListPurchases(ctx, companyID, filter)
}

// =============================================================================
// PARTIES
// =============================================================================

func (s *PurchaseService) CreateSupplier(ctx context.Context, companyID inventory.CompanyID, sup *inventory.Supplier) error {
	sup.CompanyID = companyID
	if sup.Name = strings.TrimSpace(sup.Name); sup.Name == "" {
		return &inventory.ValidationError{Field: "name", Message: "is required"}
	}
	return s.Store.CreateSupplier(ctx, sup)
}

func (s *SalesService) CreateCustomer(ctx context.Context, companyID inventory.CompanyID, c *inventory.Customer) error {
	c.CompanyID = companyID
	if c.Name = strings.TrimSpace(c.Name); c.Name == "" {
		return &inventory.ValidationError{Field: "name", Message: "is required"}
	}
	return s.Store.CreateCustomer(ctx, c)
}
