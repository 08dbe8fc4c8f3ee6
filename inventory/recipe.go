/*
recipe.go - Recipe Costing Engine

PURPOSE:
  Translates "N units of a recipe product" into ingredient requirements and
  applies them through the Ledger. Also derives recipe cost and the number
  of units currently producible.

FORMULAS:
  requirement(line, n) = line.QuantityPerUnit * n
  cost(recipe)         = sum(line.QuantityPerUnit * ingredient.UnitPrice)
  possible(product)    = min over lines of floor(ingredient.Stock / qpu)

  A product without a recipe, or a recipe without lines, can produce 0 units.
  Lines with a non-positive quantity constrain nothing.

ATOMICITY:
  DepleteForSale goes through Ledger.Withdraw, so a single short ingredient
  leaves every ingredient untouched.

SEE ALSO:
  - ledger.go:           Plan and Withdraw/Deposit
  - catalog/service.go:  calls RecomputeCost on every recipe edit
  - invoicing/sales.go:  calls SaleRequirements per invoice line
*/
package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

type RecipeEngine struct {
	Store  CatalogStore
	Ledger *Ledger
}

func NewRecipeEngine(store CatalogStore) *RecipeEngine {
	return &RecipeEngine{Store: store, Ledger: NewLedger(store)}
}

// =============================================================================
// PURE CALCULATIONS
// =============================================================================

// Requirements returns the ingredient plan for producing units of recipe.
func Requirements(recipe *Recipe, units decimal.Decimal) Plan {
	plan := make(Plan, 0, len(recipe.Lines))
	for _, line := range recipe.Lines {
		plan = append(plan, Requirement{
			Ref:      IngredientRef(line.IngredientID),
			Quantity: line.QuantityPerUnit.Mul(units),
		})
	}
	return plan.Merge()
}

// RecipeCost sums qpu * unit price. Ingredients missing from prices cost 0.
func RecipeCost(recipe *Recipe, prices map[IngredientID]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, line := range recipe.Lines {
		total = total.Add(line.QuantityPerUnit.Mul(prices[line.IngredientID]))
	}
	return total
}

// PossibleUnits computes floor(stock/qpu) minimised over lines.
func PossibleUnits(recipe *Recipe, stock map[IngredientID]decimal.Decimal) decimal.Decimal {
	var (
		best  decimal.Decimal
		found bool
	)
	for _, line := range recipe.Lines {
		if !line.QuantityPerUnit.IsPositive() {
			continue
		}
		units := stock[line.IngredientID].Div(line.QuantityPerUnit).Floor()
		if units.IsNegative() {
			units = decimal.Zero
		}
		if !found || units.LessThan(best) {
			best = units
			found = true
		}
	}
	if !found {
		return decimal.Zero
	}
	return best
}

// =============================================================================
// STORE-BACKED OPERATIONS
// =============================================================================

// PossibleStock returns how many whole units of product can be produced now.
func (e *RecipeEngine) PossibleStock(ctx context.Context, companyID CompanyID, product *Product) (decimal.Decimal, error) {
	if !product.HasRecipe || product.RecipeID == "" {
		return decimal.Zero, nil
	}
	recipe, err := e.Store.GetRecipe(ctx, companyID, product.RecipeID)
	if err != nil {
		return decimal.Zero, err
	}
	stock := make(map[IngredientID]decimal.Decimal, len(recipe.Lines))
	for _, line := range recipe.Lines {
		ing, err := e.Store.GetIngredient(ctx, companyID, line.IngredientID)
		if err != nil {
			return decimal.Zero, err
		}
		stock[line.IngredientID] = ing.Stock
	}
	return PossibleUnits(recipe, stock), nil
}

// SaleRequirements returns what selling qty of product consumes: the
// product itself for direct products, its ingredients for recipe products.
func (e *RecipeEngine) SaleRequirements(ctx context.Context, companyID CompanyID, product *Product, qty decimal.Decimal) (Plan, error) {
	if !product.HasRecipe {
		return Plan{{Ref: product.Ref(), Quantity: qty}}, nil
	}
	recipe, err := e.Store.GetRecipe(ctx, companyID, product.RecipeID)
	if err != nil {
		return nil, err
	}
	return Requirements(recipe, qty), nil
}

// DepleteForSale withdraws the ingredients of units of recipe.
func (e *RecipeEngine) DepleteForSale(ctx context.Context, companyID CompanyID, recipe *Recipe, units decimal.Decimal) error {
	return e.Ledger.Withdraw(ctx, companyID, Requirements(recipe, units))
}

// ReplenishForVoid returns the ingredients of units of recipe to stock.
func (e *RecipeEngine) ReplenishForVoid(ctx context.Context, companyID CompanyID, recipe *Recipe, units decimal.Decimal) error {
	return e.Ledger.Deposit(ctx, companyID, Requirements(recipe, units))
}

// RecomputeCost sets recipe.Cost from the current ingredient unit prices.
// It does not persist the recipe.
func (e *RecipeEngine) RecomputeCost(ctx context.Context, companyID CompanyID, recipe *Recipe) error {
	prices := make(map[IngredientID]decimal.Decimal, len(recipe.Lines))
	for _, line := range recipe.Lines {
		ing, err := e.Store.GetIngredient(ctx, companyID, line.IngredientID)
		if err != nil {
			return err
		}
		prices[line.IngredientID] = ing.UnitPrice
	}
	recipe.Cost = RecipeCost(recipe, prices)
	return nil
}
