package catalog

import (
	"context"

	"github.com/facinv/closing-engine/inventory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// RECIPES
// =============================================================================

type RecipeLineInput struct {
	IngredientID    inventory.IngredientID
	QuantityPerUnit decimal.Decimal
}

type RecipeInput struct {
	Name        string
	Description string
	Lines       []RecipeLineInput
}

func (s *Service) CreateRecipe(ctx context.Context, companyID inventory.CompanyID, in RecipeInput) (*inventory.Recipe, error) {
	name, err := requireName(in.Name)
	if err != nil {
		return nil, err
	}
	lines, err := buildLines(in.Lines)
	if err != nil {
		return nil, err
	}

	r := &inventory.Recipe{CompanyID: companyID, Name: name, Description: in.Description, Lines: lines}
	err = s.Store.WithTx(ctx, func(tx inventory.Store) error {
		if err := uniqueRecipe(ctx, tx, companyID, "", name); err != nil {
			return err
		}
		if err := inventory.NewRecipeEngine(tx).RecomputeCost(ctx, companyID, r); err != nil {
			return err
		}
		return tx.CreateRecipe(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{"company_id": companyID, "recipe_id": r.ID, "cost": r.Cost.String()}).Info("recipe created")
	return r, nil
}

// UpdateRecipe renames the recipe and replaces all of its lines.
func (s *Service) UpdateRecipe(ctx context.Context, companyID inventory.CompanyID, id inventory.RecipeID, in RecipeInput) (*inventory.Recipe, error) {
	name, err := requireName(in.Name)
	if err != nil {
		return nil, err
	}
	lines, err := buildLines(in.Lines)
	if err != nil {
		return nil, err
	}
	return s.editRecipe(ctx, companyID, id, func(tx inventory.Store, r *inventory.Recipe) error {
		if err := uniqueRecipe(ctx, tx, companyID, id, name); err != nil {
			return err
		}
		r.Name = name
		r.Description = in.Description
		r.Lines = lines
		return nil
	})
}

// AddLine adds an ingredient the recipe does not use yet.
func (s *Service) AddLine(ctx context.Context, companyID inventory.CompanyID, id inventory.RecipeID, in RecipeLineInput) (*inventory.Recipe, error) {
	if err := validLine(in); err != nil {
		return nil, err
	}
	return s.editRecipe(ctx, companyID, id, func(_ inventory.Store, r *inventory.Recipe) error {
		if lineIndex(r, in.IngredientID) >= 0 {
			return &inventory.ConflictError{Entity: "recipe_line", Field: "ingredient_id", Value: string(in.IngredientID)}
		}
		r.Lines = append(r.Lines, inventory.RecipeLine{IngredientID: in.IngredientID, QuantityPerUnit: in.QuantityPerUnit})
		return nil
	})
}

func (s *Service) RemoveLine(ctx context.Context, companyID inventory.CompanyID, id inventory.RecipeID, ingredientID inventory.IngredientID) (*inventory.Recipe, error) {
	return s.editRecipe(ctx, companyID, id, func(_ inventory.Store, r *inventory.Recipe) error {
		i := lineIndex(r, ingredientID)
		if i < 0 {
			return &inventory.NotFoundError{Entity: "recipe_line", ID: string(ingredientID)}
		}
		r.Lines = append(r.Lines[:i], r.Lines[i+1:]...)
		return nil
	})
}

func (s *Service) UpdateLineQuantity(ctx context.Context, companyID inventory.CompanyID, id inventory.RecipeID, ingredientID inventory.IngredientID, qty decimal.Decimal) (*inventory.Recipe, error) {
	if err := validLine(RecipeLineInput{IngredientID: ingredientID, QuantityPerUnit: qty}); err != nil {
		return nil, err
	}
	return s.editRecipe(ctx, companyID, id, func(_ inventory.Store, r *inventory.Recipe) error {
		i := lineIndex(r, ingredientID)
		if i < 0 {
			return &inventory.NotFoundError{Entity: "recipe_line", ID: string(ingredientID)}
		}
		r.Lines[i].QuantityPerUnit = qty
		return nil
	})
}

// DeleteRecipe fails with a conflict while products still use the recipe.
func (s *Service) DeleteRecipe(ctx context.Context, companyID inventory.CompanyID, id inventory.RecipeID) error {
	return s.Store.DeleteRecipe(ctx, companyID, id)
}

func (s *Service) GetRecipe(ctx context.Context, companyID inventory.CompanyID, id inventory.RecipeID) (*inventory.Recipe, error) {
	return s.Store.GetRecipe(ctx, companyID, id)
}

func (s *Service) ListRecipes(ctx context.Context, companyID inventory.CompanyID) ([]inventory.Recipe, error) {
	return s.Store.ListRecipes(ctx, companyID)
}

// editRecipe loads the recipe, applies change, then recomputes its cost and
// persists it together with the purchase cost of its products.
func (s *Service) editRecipe(ctx context.Context, companyID inventory.CompanyID, id inventory.RecipeID, change func(tx inventory.Store, r *inventory.Recipe) error) (*inventory.Recipe, error) {
	var out inventory.Recipe
	err := s.Store.WithTx(ctx, func(tx inventory.Store) error {
		r, err := tx.GetRecipe(ctx, companyID, id)
		if err != nil {
			return err
		}
		if err := change(tx, r); err != nil {
			return err
		}
		if err := refreshRecipe(ctx, tx, companyID, r); err != nil {
			return err
		}
		out = *r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{"company_id": companyID, "recipe_id": id, "cost": out.Cost.String()}).Debug("recipe updated")
	return &out, nil
}

// refreshRecipe recomputes and stores r's cost and copies it to every
// product built from r.
func refreshRecipe(ctx context.Context, tx inventory.Store, companyID inventory.CompanyID, r *inventory.Recipe) error {
	if err := inventory.NewRecipeEngine(tx).RecomputeCost(ctx, companyID, r); err != nil {
		return err
	}
	if err := tx.UpdateRecipe(ctx, r); err != nil {
		return err
	}
	products, err := tx.ListProducts(ctx, companyID)
	if err != nil {
		return err
	}
	for i := range products {
		p := &products[i]
		if !p.HasRecipe || p.RecipeID != r.ID || p.PurchaseCost.Equal(r.Cost) {
			continue
		}
		p.PurchaseCost = r.Cost
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func refreshRecipesUsing(ctx context.Context, tx inventory.Store, companyID inventory.CompanyID, ingredientID inventory.IngredientID) error {
	recipes, err := tx.ListRecipes(ctx, companyID)
	if err != nil {
		return err
	}
	for i := range recipes {
		if lineIndex(&recipes[i], ingredientID) < 0 {
			continue
		}
		if err := refreshRecipe(ctx, tx, companyID, &recipes[i]); err != nil {
			return err
		}
	}
	return nil
}

func buildLines(in []RecipeLineInput) ([]inventory.RecipeLine, error) {
	seen := make(map[inventory.IngredientID]bool, len(in))
	lines := make([]inventory.RecipeLine, 0, len(in))
	for _, l := range in {
		if err := validLine(l); err != nil {
			return nil, err
		}
		if seen[l.IngredientID] {
			return nil, &inventory.ValidationError{Field: "lines", Message: "ingredient " + string(l.IngredientID) + " appears twice"}
		}
		seen[l.IngredientID] = true
		lines = append(lines, inventory.RecipeLine{IngredientID: l.IngredientID, QuantityPerUnit: l.QuantityPerUnit})
	}
	return lines, nil
}

func validLine(l RecipeLineInput) error {
	if l.IngredientID == "" {
		return &inventory.ValidationError{Field: "ingredient_id", Message: "is required"}
	}
	if !l.QuantityPerUnit.IsPositive() {
		return &inventory.ValidationError{Field: "quantity_per_unit", Message: "must be greater than zero"}
	}
	return nil
}

func lineIndex(r *inventory.Recipe, id inventory.IngredientID) int {
	for i, l := range r.Lines {
		if l.IngredientID == id {
			return i
		}
	}
	return -1
}

func uniqueRecipe(ctx context.Context, tx inventory.CatalogStore, companyID inventory.CompanyID, self inventory.RecipeID, name string) error {
	all, err := tx.ListRecipes(ctx, companyID)
	if err != nil {
		return err
	}
	for _, r := range all {
		if r.ID != self && sameName(r.Name, name) {
			return &inventory.ConflictError{Entity: "recipe", Field: "name", Value: name}
		}
	}
	return nil
}
