/*
service.go - Catalog Management

PURPOSE:
  Maintains the stock subjects a company sells from: ingredients, recipes
  and products. Enforces the catalog invariants before anything reaches the
  store:
  - names are unique per company and kind (case-insensitive)
  - a recipe product references an existing recipe, a direct product
    carries non-negative stock
  - recipe cost equals the sum of quantity-per-unit times ingredient unit
    price after every structural change

PRICING:
  A recipe product's purchase cost follows its recipe's cost. When such a
  product is saved with a zero sale price it is priced at cost * 1.3.
  Recomputing a recipe refreshes the purchase cost of its products.

SEE ALSO:
  - inventory/recipe.go: cost and possible-stock math
*/
package catalog

import (
	"context"
	"strings"

	"github.com/facinv/closing-engine/inventory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const module = "catalog"

// DefaultMarkup prices recipe products saved without a sale price.
var DefaultMarkup = decimal.RequireFromString("1.3")

type Service struct {
	Store  inventory.TxStore
	Locker inventory.Locker
	Logger logrus.FieldLogger
}

func NewService(store inventory.TxStore, locker inventory.Locker, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = inventory.NopLogger()
	}
	return &Service{Store: store, Locker: locker, Logger: logger}
}

// stockEdit runs fn in a transaction under the company's stock lock, so
// manual stock corrections serialise with sales and closings.
func (s *Service) stockEdit(ctx context.Context, companyID inventory.CompanyID, fn func(tx inventory.Store) error) error {
	return inventory.WithLock(ctx, s.Locker, inventory.StockLockKey(companyID), func() error {
		return s.Store.WithTx(ctx, fn)
	})
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func requireName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &inventory.ValidationError{Field: "name", Message: "is required"}
	}
	return name, nil
}

// =============================================================================
// INGREDIENTS
// =============================================================================

type IngredientInput struct {
	Name      string
	Unit      string
	Stock     decimal.Decimal
	MinStock  decimal.Decimal
	UnitPrice decimal.Decimal
	Active    *bool // unchanged when nil; new ingredients default to active
}

func (in IngredientInput) validate() error {
	switch {
	case strings.TrimSpace(in.Unit) == "":
		return &inventory.ValidationError{Field: "unit", Message: "is required"}
	case in.Stock.IsNegative():
		return &inventory.ValidationError{Field: "stock", Message: "cannot be negative"}
	case in.MinStock.IsNegative():
		return &inventory.ValidationError{Field: "min_stock", Message: "cannot be negative"}
	case in.UnitPrice.IsNegative():
		return &inventory.ValidationError{Field: "unit_price", Message: "cannot be negative"}
	}
	return nil
}

func (s *Service) CreateIngredient(ctx context.Context, companyID inventory.CompanyID, in IngredientInput) (*inventory.Ingredient, error) {
	name, err := requireName(in.Name)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	ing := &inventory.Ingredient{
		CompanyID: companyID,
		Name:      name,
		Unit:      strings.TrimSpace(in.Unit),
		Stock:     in.Stock,
		MinStock:  in.MinStock,
		UnitPrice: in.UnitPrice,
		Active:    in.Active == nil || *in.Active,
	}
	err = s.Store.WithTx(ctx, func(tx inventory.Store) error {
		if err := uniqueIngredient(ctx, tx, companyID, "", name); err != nil {
			return err
		}
		return tx.CreateIngredient(ctx, ing)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{"company_id": companyID, "ingredient_id": ing.ID}).Info("ingredient created")
	return ing, nil
}

// UpdateIngredient replaces the ingredient's fields. A unit price change
// recomputes every recipe using the ingredient.
func (s *Service) UpdateIngredient(ctx context.Context, companyID inventory.CompanyID, id inventory.IngredientID, in IngredientInput) (*inventory.Ingredient, error) {
	name, err := requireName(in.Name)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var out inventory.Ingredient
	err = s.stockEdit(ctx, companyID, func(tx inventory.Store) error {
		ing, err := tx.GetIngredient(ctx, companyID, id)
		if err != nil {
			return err
		}
		if err := uniqueIngredient(ctx, tx, companyID, id, name); err != nil {
			return err
		}
		repriced := !ing.UnitPrice.Equal(in.UnitPrice)

		restock := !ing.Stock.Equal(in.Stock)

		ing.Name = name
		ing.Unit = strings.TrimSpace(in.Unit)
		ing.MinStock = in.MinStock
		ing.UnitPrice = in.UnitPrice
		if in.Active != nil {
			ing.Active = *in.Active
		}
		if err := tx.UpdateIngredient(ctx, ing); err != nil {
			return err
		}
		if restock {
			if err := inventory.NewLedger(tx).Set(ctx, companyID, inventory.IngredientRef(id), in.Stock); err != nil {
				return err
			}
		}
		if repriced {
			if err := refreshRecipesUsing(ctx, tx, companyID, id); err != nil {
				return err
			}
		}
		saved, err := tx.GetIngredient(ctx, companyID, id)
		if err != nil {
			return err
		}
		out = *saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) GetIngredient(ctx context.Context, companyID inventory.CompanyID, id inventory.IngredientID) (*inventory.Ingredient, error) {
	return s.Store.GetIngredient(ctx, companyID, id)
}

func (s *Service) ListIngredients(ctx context.Context, companyID inventory.CompanyID) ([]inventory.Ingredient, error) {
	return s.Store.ListIngredients(ctx, companyID)
}

// LowStock lists active ingredients below their minimum.
func (s *Service) LowStock(ctx context.Context, companyID inventory.CompanyID) ([]inventory.Ingredient, error) {
	all, err := s.Store.ListIngredients(ctx, companyID)
	if err != nil {
		return nil, err
	}
	var low []inventory.Ingredient
	for i := range all {
		if all[i].Active && all[i].BelowMinimum() {
			low = append(low, all[i])
		}
	}
	return low, nil
}

func uniqueIngredient(ctx context.Context, tx inventory.CatalogStore, companyID inventory.CompanyID, self inventory.IngredientID, name string) error {
	all, err := tx.ListIngredients(ctx, companyID)
	if err != nil {
		return err
	}
	for _, ing := range all {
		if ing.ID != self && sameName(ing.Name, name) {
			return &inventory.ConflictError{Entity: "ingredient", Field: "name", Value: name}
		}
	}
	return nil
}
