package catalog

import (
	"context"

	"github.com/facinv/closing-engine/inventory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// PRODUCTS
// =============================================================================

type ProductInput struct {
	Name         string
	HasRecipe    bool
	RecipeID     inventory.RecipeID
	PurchaseCost decimal.Decimal // ignored for recipe products
	SalePrice    decimal.Decimal
	Stock        decimal.Decimal // ignored for recipe products
	SaleUnit     string
	Active       *bool
}

func (s *Service) CreateProduct(ctx context.Context, companyID inventory.CompanyID, in ProductInput) (*inventory.Product, error) {
	p := &inventory.Product{CompanyID: companyID, Active: in.Active == nil || *in.Active}
	err := s.Store.WithTx(ctx, func(tx inventory.Store) error {
		if err := applyProduct(ctx, tx, companyID, p, in); err != nil {
			return err
		}
		return tx.CreateProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{"company_id": companyID, "product_id": p.ID, "has_recipe": p.HasRecipe}).Info("product created")
	return p, nil
}

// UpdateProduct replaces the product's fields. Switching to a direct
// product clears the recipe reference.
func (s *Service) UpdateProduct(ctx context.Context, companyID inventory.CompanyID, id inventory.ProductID, in ProductInput) (*inventory.Product, error) {
	var out inventory.Product
	err := s.stockEdit(ctx, companyID, func(tx inventory.Store) error {
		p, err := tx.GetProduct(ctx, companyID, id)
		if err != nil {
			return err
		}
		if in.Active != nil {
			p.Active = *in.Active
		}
		current := p.Stock
		if err := applyProduct(ctx, tx, companyID, p, in); err != nil {
			return err
		}
		// Direct stock moves through the ledger once the row is saved.
		target := p.Stock
		if !p.HasRecipe {
			p.Stock = current
		}
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		if !p.HasRecipe && !target.Equal(current) {
			if err := inventory.NewLedger(tx).Set(ctx, companyID, inventory.ProductRef(id), target); err != nil {
				return err
			}
		}
		saved, err := tx.GetProduct(ctx, companyID, id)
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

func applyProduct(ctx context.Context, tx inventory.Store, companyID inventory.CompanyID, p *inventory.Product, in ProductInput) error {
	name, err := requireName(in.Name)
	if err != nil {
		return err
	}
	if err := uniqueProduct(ctx, tx, companyID, p.ID, name); err != nil {
		return err
	}

	p.Name = name
	p.SaleUnit = in.SaleUnit
	p.HasRecipe = in.HasRecipe
	p.SalePrice = in.SalePrice

	if in.HasRecipe {
		if in.RecipeID == "" {
			return &inventory.ValidationError{Field: "recipe_id", Message: "a recipe product requires a recipe"}
		}
		r, err := tx.GetRecipe(ctx, companyID, in.RecipeID)
		if err != nil {
			return err
		}
		p.RecipeID = r.ID
		p.PurchaseCost = r.Cost
		p.Stock = decimal.Zero
		if p.SalePrice.IsZero() {
			p.SalePrice = r.Cost.Mul(DefaultMarkup).Round(2)
		}
	} else {
		p.RecipeID = ""
		p.PurchaseCost = in.PurchaseCost
		p.Stock = in.Stock
	}
	if p.PurchaseCost.IsNegative() {
		return &inventory.ValidationError{Field: "purchase_cost", Message: "cannot be negative"}
	}
	return p.Validate()
}

func (s *Service) GetProduct(ctx context.Context, companyID inventory.CompanyID, id inventory.ProductID) (*inventory.Product, error) {
	return s.Store.GetProduct(ctx, companyID, id)
}

func (s *Service) ListProducts(ctx context.Context, companyID inventory.CompanyID) ([]inventory.Product, error) {
	return s.Store.ListProducts(ctx, companyID)
}

// PossibleStock is how many units can be sold now: the whole units the
// recipe allows, or the stock of a direct product.
func (s *Service) PossibleStock(ctx context.Context, companyID inventory.CompanyID, id inventory.ProductID) (decimal.Decimal, error) {
	p, err := s.Store.GetProduct(ctx, companyID, id)
	if err != nil {
		return decimal.Zero, err
	}
	if !p.HasRecipe {
		return p.Stock, nil
	}
	return inventory.NewRecipeEngine(s.Store).PossibleStock(ctx, companyID, p)
}

func uniqueProduct(ctx context.Context, tx inventory.CatalogStore, companyID inventory.CompanyID, self inventory.ProductID, name string) error {
	all, err := tx.ListProducts(ctx, companyID)
	if err != nil {
		return err
	}
	for _, p := range all {
		if p.ID != self && sameName(p.Name, name) {
			return &inventory.ConflictError{Entity: "product", Field: "name", Value: name}
		}
	}
	return nil
}
