/*
ledger.go - Stock Ledger, the single source of truth for stock quantities

PURPOSE:
  Every stock change after a subject is created (sales, voids, purchases,
  closing commits, manual corrections) goes through the Ledger. No other
  component writes stock fields.

CRITICAL INVARIANTS:
  1. NON-NEGATIVE: a withdrawal larger than current stock is rejected, and
     nothing is written.
  2. ALL-OR-NOTHING: a multi-subject Plan is fully checked before the first
     write. One insufficient subject means zero writes.
  3. VERSIONED: every write is a compare-and-swap on the subject's version, so
     two concurrent sales can never both read 10 and both write 7.

PLANS:
  A Plan is a list of (ref, quantity) requirements. Merge aggregates repeated
  refs, so an invoice selling the same product on two lines, or two recipes
  sharing an ingredient, is checked against its total demand.

EXAMPLE FLOW:
  plan := Plan{{Ref: IngredientRef("flour"), Quantity: dec("0.5")}}
  err := ledger.Withdraw(ctx, companyID, plan)
  // nil                      -> flour decreased by 0.5
  // *InsufficientStockError  -> nothing changed

SEE ALSO:
  - recipe.go: builds Plans for recipe products
  - store.go:  CatalogStore.UpdateStock (CAS write)
*/
package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PLAN - aggregated stock requirements
// =============================================================================

type Requirement struct {
	Ref      StockRef
	Quantity decimal.Decimal
}

type Plan []Requirement

// Merge returns a plan with one requirement per ref, quantities summed.
// Order follows the first occurrence of each ref.
func (p Plan) Merge() Plan {
	index := make(map[StockRef]int, len(p))
	out := make(Plan, 0, len(p))
	for _, req := range p {
		if i, ok := index[req.Ref]; ok {
			out[i].Quantity = out[i].Quantity.Add(req.Quantity)
			continue
		}
		index[req.Ref] = len(out)
		out = append(out, req)
	}
	return out
}

// Add appends other to p.
func (p Plan) Add(other Plan) Plan {
	return append(p, other...)
}

// =============================================================================
// LEVEL - current stock of one subject
// =============================================================================

type Level struct {
	Ref      StockRef
	Name     string
	Quantity decimal.Decimal
	Version  int64
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store CatalogStore
}

func NewLedger(store CatalogStore) *Ledger {
	return &Ledger{Store: store}
}

// Level reads the current stock of ref.
func (l *Ledger) Level(ctx context.Context, companyID CompanyID, ref StockRef) (Level, error) {
	switch ref.Kind() {
	case KindIngredient:
		id, _ := ref.Ingredient()
		ing, err := l.Store.GetIngredient(ctx, companyID, id)
		if err != nil {
			return Level{}, err
		}
		return Level{Ref: ref, Name: ing.Name, Quantity: ing.Stock, Version: ing.Version}, nil
	case KindProduct:
		id, _ := ref.Product()
		p, err := l.Store.GetProduct(ctx, companyID, id)
		if err != nil {
			return Level{}, err
		}
		if p.HasRecipe {
			return Level{}, &ValidationError{Field: "stock_ref", Message: "recipe product " + p.Name + " has no direct stock"}
		}
		return Level{Ref: ref, Name: p.Name, Quantity: p.Stock, Version: p.Version}, nil
	}
	return Level{}, &ValidationError{Field: "stock_ref", Message: "reference names no subject"}
}

// Decrement withdraws qty from a single subject.
func (l *Ledger) Decrement(ctx context.Context, companyID CompanyID, ref StockRef, qty decimal.Decimal) error {
	return l.Withdraw(ctx, companyID, Plan{{Ref: ref, Quantity: qty}})
}

// Increment deposits qty to a single subject.
func (l *Ledger) Increment(ctx context.Context, companyID CompanyID, ref StockRef, qty decimal.Decimal) error {
	return l.Deposit(ctx, companyID, Plan{{Ref: ref, Quantity: qty}})
}

// Set overwrites the stock of ref with qty. Used when a closing commits
// counted stock.
func (l *Ledger) Set(ctx context.Context, companyID CompanyID, ref StockRef, qty decimal.Decimal) error {
	if qty.IsNegative() {
		return &ValidationError{Field: "quantity", Message: "stock cannot be set negative"}
	}
	lvl, err := l.Level(ctx, companyID, ref)
	if err != nil {
		return err
	}
	return l.Store.UpdateStock(ctx, companyID, ref, lvl.Version, qty)
}

// Check verifies that every requirement of plan can be withdrawn, without
// writing anything. It returns the levels read so callers can commit them.
func (l *Ledger) Check(ctx context.Context, companyID CompanyID, plan Plan) ([]Level, error) {
	merged := plan.Merge()
	levels := make([]Level, 0, len(merged))
	for _, req := range merged {
		if err := validQuantity(req.Quantity); err != nil {
			return nil, err
		}
		lvl, err := l.Level(ctx, companyID, req.Ref)
		if err != nil {
			return nil, err
		}
		if req.Quantity.GreaterThan(lvl.Quantity) {
			return nil, &InsufficientStockError{
				Ref:       req.Ref,
				Name:      lvl.Name,
				Available: lvl.Quantity,
				Requested: req.Quantity,
			}
		}
		levels = append(levels, lvl)
	}
	return levels, nil
}

// Withdraw checks the whole plan, then decrements each subject.
func (l *Ledger) Withdraw(ctx context.Context, companyID CompanyID, plan Plan) error {
	merged := plan.Merge()
	levels, err := l.Check(ctx, companyID, merged)
	if err != nil {
		return err
	}
	for i, lvl := range levels {
		next := lvl.Quantity.Sub(merged[i].Quantity)
		if err := l.Store.UpdateStock(ctx, companyID, lvl.Ref, lvl.Version, next); err != nil {
			return err
		}
	}
	return nil
}

// Deposit increments each subject of plan. Deposits cannot fail on quantity,
// only on missing subjects or lost races.
func (l *Ledger) Deposit(ctx context.Context, companyID CompanyID, plan Plan) error {
	merged := plan.Merge()
	levels := make([]Level, 0, len(merged))
	for _, req := range merged {
		if err := validQuantity(req.Quantity); err != nil {
			return err
		}
		lvl, err := l.Level(ctx, companyID, req.Ref)
		if err != nil {
			return err
		}
		levels = append(levels, lvl)
	}
	for i, lvl := range levels {
		next := lvl.Quantity.Add(merged[i].Quantity)
		if err := l.Store.UpdateStock(ctx, companyID, lvl.Ref, lvl.Version, next); err != nil {
			return err
		}
	}
	return nil
}

func validQuantity(q decimal.Decimal) error {
	if q.IsNegative() {
		return &ValidationError{Field: "quantity", Message: "cannot be negative"}
	}
	return nil
}
