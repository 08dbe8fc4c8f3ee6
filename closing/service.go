/*
service.go - Daily Closing State Machine

PURPOSE:
  Orchestrates the lifecycle of one company's closing for one day:
  creation, line-item precomputation, recounts, and two-phase completion.

STATE FLOW:
  ┌────────────┐  PreComplete   ┌────────────────┐  CompleteDefinitive  ┌────────────┐
  │ EN_PROCESO │ ─────────────▶ │ PRE-COMPLETADO │ ───────────────────▶ │ COMPLETADO │
  └────────────┘                └────────────────┘                      └────────────┘
        ▲  UpdateLineItem             ▲  UpdateLineItem                    terminal

  No transition skips a state and none moves backward.

TWO-PHASE COMPLETION:
  PreComplete locks the figures for review and touches no stock.
  CompleteDefinitive is the only path writing closing data to live stock:
  (a) store the day's PAID sales total and count on the closing
  (b) set every subject's live stock to its counted real stock
  (c) move to COMPLETADO
  All three happen in one transaction while holding the company stock lock.

UNIQUENESS:
  One closing per (company, date). Initiate checks first and the store's
  unique index is the backstop under concurrent initiation.

SEE ALSO:
  - gate.go:            uses closing history to guard requests
  - report.go:          consumption report over completed closings
  - inventory/ledger.go: stock commit
*/
package closing

import (
	"context"
	"errors"

	"github.com/facinv/closing-engine/inventory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const module = "closing"

// Service runs the closing workflow for any company. Every method takes the
// company explicitly.
type Service struct {
	Store  inventory.TxStore
	Clock  inventory.Clock
	Locker inventory.Locker
	Logger logrus.FieldLogger
}

// NewService fills defaults for a nil clock (system clock) and logger
// (discarding). A nil locker leaves stock moves unguarded across processes.
func NewService(store inventory.TxStore, clock inventory.Clock, locker inventory.Locker, logger logrus.FieldLogger) *Service {
	if clock == nil {
		clock = inventory.SystemClock{}
	}
	if logger == nil {
		logger = inventory.NopLogger()
	}
	return &Service{Store: store, Clock: clock, Locker: locker, Logger: logger}
}

// Detail is a closing with its line items.
type Detail struct {
	Closing inventory.DailyClosing
	Lines   []inventory.ClosingLineItem
}

// Count is a physical stock count submitted for one line item.
type Count struct {
	RealStock decimal.Decimal
	Shrinkage decimal.Decimal
	Waste     decimal.Decimal
}

// InitiateInput describes a new closing. A zero Date means today.
type InitiateInput struct {
	Date   inventory.Date
	UserID string
	Notes  string
}

// =============================================================================
// INITIATE
// =============================================================================

// Initiate creates the closing in EN_PROCESO and precomputes one line per
// active ingredient and per non-recipe product.
func (s *Service) Initiate(ctx context.Context, companyID inventory.CompanyID, in InitiateInput) (*Detail, error) {
	now := s.Clock.Now()
	date := in.Date
	if date.IsZero() {
		date = inventory.DateOf(now)
	}

	detail := &Detail{}
	err := s.Store.WithTx(ctx, func(tx inventory.Store) error {
		if _, err := tx.FindClosingByDate(ctx, companyID, date); err == nil {
			return &inventory.ConflictError{Entity: "closing", Field: "date", Value: date.String()}
		} else if !inventory.IsNotFound(err) {
			return err
		}

		c := inventory.DailyClosing{
			ID:         inventory.ClosingID(inventory.NewID()),
			CompanyID:  companyID,
			Date:       date,
			UserID:     in.UserID,
			State:      inventory.ClosingInProgress,
			Notes:      in.Notes,
			TotalSales: decimal.Zero,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.CreateClosing(ctx, &c); err != nil {
			return err
		}

		lines, err := precompute(ctx, tx, c.ID, companyID)
		if err != nil {
			return err
		}
		if len(lines) > 0 {
			if err := tx.CreateLineItems(ctx, lines); err != nil {
				return err
			}
		}
		detail.Closing = c
		detail.Lines = lines
		return nil
	})
	if err != nil {
		if !inventory.IsConflict(err) {
			inventory.LogError(s.Logger, module, "Initiate", "create closing", logrus.Fields{"company_id": companyID, "date": date.String()}, err)
		}
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{
		"company_id": companyID,
		"closing_id": detail.Closing.ID,
		"date":       date.String(),
		"lines":      len(detail.Lines),
	}).Info("closing initiated")
	return detail, nil
}

// precompute snapshots theoretical stock and unit cost for every subject.
func precompute(ctx context.Context, tx inventory.Store, closingID inventory.ClosingID, companyID inventory.CompanyID) ([]inventory.ClosingLineItem, error) {
	ingredients, err := tx.ListIngredients(ctx, companyID)
	if err != nil {
		return nil, err
	}
	products, err := tx.ListProducts(ctx, companyID)
	if err != nil {
		return nil, err
	}

	var lines []inventory.ClosingLineItem
	for _, ing := range ingredients {
		if !ing.Active {
			continue
		}
		lines = append(lines, newLine(closingID, ing.Ref(), ing.Stock, ing.UnitPrice))
	}
	for _, p := range products {
		if p.HasRecipe {
			continue
		}
		lines = append(lines, newLine(closingID, p.Ref(), p.Stock, p.SalePrice))
	}
	return lines, nil
}

func newLine(closingID inventory.ClosingID, ref inventory.StockRef, stock, unitCost decimal.Decimal) inventory.ClosingLineItem {
	return inventory.ClosingLineItem{
		ID:               inventory.LineItemID(inventory.NewID()),
		ClosingID:        closingID,
		Subject:          ref,
		TheoreticalStock: stock,
		RealStock:        decimal.Zero,
		Shrinkage:        decimal.Zero,
		Waste:            decimal.Zero,
		UnitCost:         unitCost,
	}
}

// =============================================================================
// UPDATE LINE ITEM
// =============================================================================

// UpdateLineItem records a count and recomputes variance with the live unit
// cost of the subject.
func (s *Service) UpdateLineItem(ctx context.Context, companyID inventory.CompanyID, lineID inventory.LineItemID, count Count) (*inventory.ClosingLineItem, error) {
	if err := validateCount(count); err != nil {
		return nil, err
	}

	var updated inventory.ClosingLineItem
	err := s.Store.WithTx(ctx, func(tx inventory.Store) error {
		li, err := tx.GetLineItem(ctx, companyID, lineID)
		if err != nil {
			return err
		}
		c, err := tx.GetClosing(ctx, companyID, li.ClosingID)
		if err != nil {
			return err
		}
		if !c.State.Editable() {
			return &inventory.StateTransitionError{
				Entity: "closing", ID: string(c.ID), From: string(c.State),
				Reason: "line items can no longer be edited",
			}
		}

		unitCost, err := liveUnitCost(ctx, tx, companyID, li.Subject)
		if err != nil {
			if !inventory.IsNotFound(err) {
				return err
			}
			unitCost = li.UnitCost
		}

		li.Recount(count.RealStock, count.Shrinkage, count.Waste, unitCost)
		if err := tx.UpdateLineItem(ctx, li); err != nil {
			return err
		}
		c.UpdatedAt = s.Clock.Now()
		if err := tx.UpdateClosing(ctx, c); err != nil {
			return err
		}
		updated = *li
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func validateCount(c Count) error {
	switch {
	case c.RealStock.IsNegative():
		return &inventory.ValidationError{Field: "real_stock", Message: "cannot be negative"}
	case c.Shrinkage.IsNegative():
		return &inventory.ValidationError{Field: "shrinkage", Message: "cannot be negative"}
	case c.Waste.IsNegative():
		return &inventory.ValidationError{Field: "waste", Message: "cannot be negative"}
	}
	return nil
}

// liveUnitCost is an ingredient's unit price or a product's sale price.
func liveUnitCost(ctx context.Context, cat inventory.CatalogStore, companyID inventory.CompanyID, ref inventory.StockRef) (decimal.Decimal, error) {
	if id, ok := ref.Ingredient(); ok {
		ing, err := cat.GetIngredient(ctx, companyID, id)
		if err != nil {
			return decimal.Zero, err
		}
		return ing.UnitPrice, nil
	}
	id, _ := ref.Product()
	p, err := cat.GetProduct(ctx, companyID, id)
	if err != nil {
		return decimal.Zero, err
	}
	return p.SalePrice, nil
}

// =============================================================================
// PRE-COMPLETE
// =============================================================================

// PreComplete moves EN_PROCESO to PRE-COMPLETADO once every line has a
// non-negative count. No stock changes.
func (s *Service) PreComplete(ctx context.Context, companyID inventory.CompanyID, id inventory.ClosingID) (*inventory.DailyClosing, error) {
	var out inventory.DailyClosing
	err := s.Store.WithTx(ctx, func(tx inventory.Store) error {
		c, err := tx.GetClosing(ctx, companyID, id)
		if err != nil {
			return err
		}
		if err := checkTransition(c, inventory.ClosingPreCompleted); err != nil {
			return err
		}

		lines, err := tx.ListLineItems(ctx, companyID, id)
		if err != nil {
			return err
		}
		var missing []inventory.LineItemID
		for _, li := range lines {
			if !li.HasRealStock() {
				missing = append(missing, li.ID)
			}
		}
		if len(missing) > 0 {
			return &inventory.IncompleteLineItemsError{ClosingID: id, Missing: missing}
		}

		c.State = inventory.ClosingPreCompleted
		c.UpdatedAt = s.Clock.Now()
		if err := tx.UpdateClosing(ctx, c); err != nil {
			return err
		}
		out = *c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{"company_id": companyID, "closing_id": id}).Info("closing pre-completed")
	return &out, nil
}

// =============================================================================
// COMPLETE DEFINITIVE
// =============================================================================

// CompleteDefinitive aggregates the day's sales, commits counted stock and
// moves PRE-COMPLETADO to COMPLETADO. It is irreversible.
func (s *Service) CompleteDefinitive(ctx context.Context, companyID inventory.CompanyID, id inventory.ClosingID) (*inventory.DailyClosing, error) {
	var out inventory.DailyClosing
	err := inventory.WithLock(ctx, s.Locker, inventory.StockLockKey(companyID), func() error {
		return s.Store.WithTx(ctx, func(tx inventory.Store) error {
			c, err := tx.GetClosing(ctx, companyID, id)
			if err != nil {
				return err
			}
			if err := checkTransition(c, inventory.ClosingCompleted); err != nil {
				return err
			}

			// (a) sales of the day
			summary, err := inventory.DailySales(ctx, tx, companyID, c.Date)
			if err != nil {
				return err
			}
			c.TotalSales = summary.Total
			c.InvoiceCount = summary.InvoiceCount

			// (b) stock commit
			lines, err := tx.ListLineItems(ctx, companyID, id)
			if err != nil {
				return err
			}
			ledger := inventory.NewLedger(tx)
			for _, li := range lines {
				err := ledger.Set(ctx, companyID, li.Subject, li.RealStock)
				if errors.Is(err, inventory.ErrValidation) {
					// Product switched to a recipe since precompute; it carries no direct stock now.
					s.Logger.WithFields(logrus.Fields{"closing_id": id, "subject": li.Subject.String()}).
						Warn("skipping stock commit for subject without direct stock")
					continue
				}
				if err != nil {
					return err
				}
			}

			// (c) terminal state
			c.State = inventory.ClosingCompleted
			c.UpdatedAt = s.Clock.Now()
			if err := tx.UpdateClosing(ctx, c); err != nil {
				return err
			}
			out = *c
			return nil
		})
	})
	if err != nil {
		if !inventory.IsBusinessRule(err) && !inventory.IsNotFound(err) {
			inventory.LogError(s.Logger, module, "CompleteDefinitive", "commit closing", logrus.Fields{"company_id": companyID, "closing_id": id}, err)
		}
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{
		"company_id":    companyID,
		"closing_id":    id,
		"total_sales":   out.TotalSales.String(),
		"invoice_count": out.InvoiceCount,
	}).Info("closing completed")
	return &out, nil
}

func checkTransition(c *inventory.DailyClosing, to inventory.ClosingState) error {
	if c.State.CanTransitionTo(to) {
		return nil
	}
	reason := "transitions must follow EN_PROCESO, PRE-COMPLETADO, COMPLETADO"
	if c.State == inventory.ClosingCompleted {
		reason = "closing is already completed"
	}
	return &inventory.StateTransitionError{
		Entity: "closing", ID: string(c.ID), From: string(c.State), To: string(to), Reason: reason,
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// List returns the company's closings, newest first.
func (s *Service) List(ctx context.Context, companyID inventory.CompanyID) ([]inventory.DailyClosing, error) {
	return s.Store.ListClosings(ctx, companyID)
}

// Get returns a closing with its line items.
func (s *Service) Get(ctx context.Context, companyID inventory.CompanyID, id inventory.ClosingID) (*Detail, error) {
	c, err := s.Store.GetClosing(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.Store.ListLineItems(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Closing: *c, Lines: lines}, nil
}

// InProgress returns the most recent closing still in EN_PROCESO.
func (s *Service) InProgress(ctx context.Context, companyID inventory.CompanyID) (*inventory.DailyClosing, error) {
	closings, err := s.Store.ListClosings(ctx, companyID)
	if err != nil {
		return nil, err
	}
	for i := range closings {
		if closings[i].State == inventory.ClosingInProgress {
			return &closings[i], nil
		}
	}
	return nil, &inventory.NotFoundError{Entity: "closing", ID: string(inventory.ClosingInProgress)}
}

// RequiredStatus tells which business day must be closed now and whether it is.
type RequiredStatus struct {
	Date   inventory.Date
	Closed bool
}

func (s *Service) Required(ctx context.Context, companyID inventory.CompanyID) (RequiredStatus, error) {
	date := inventory.RequiredClosedDate(s.Clock.Now())
	closed, err := s.Store.ClosingExists(ctx, companyID, date, inventory.ClosingCompleted)
	if err != nil {
		return RequiredStatus{}, err
	}
	return RequiredStatus{Date: date, Closed: closed}, nil
}
