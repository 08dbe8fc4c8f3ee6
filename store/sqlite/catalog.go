package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/facinv/closing-engine/inventory"
	"github.com/shopspring/decimal"
)

// =============================================================================
// INGREDIENTS
// =============================================================================

const ingredientColumns = `id, company_id, name, unit, stock, min_stock, unit_price, active, version`

func (s *Store) CreateIngredient(ctx context.Context, ing *inventory.Ingredient) error {
	if ing.ID == "" {
		ing.ID = inventory.IngredientID(inventory.NewID())
	}
	ing.Version = 1
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO ingredients (`+ingredientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ing.ID, ing.CompanyID, ing.Name, ing.Unit,
		ing.Stock, ing.MinStock, ing.UnitPrice, ing.Active, ing.Version,
	)
	return namedErr(err, "ingredient", string(ing.ID), ing.Name)
}

func (s *Store) UpdateIngredient(ctx context.Context, ing *inventory.Ingredient) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE ingredients
		SET name = ?, unit = ?, stock = ?, min_stock = ?, unit_price = ?, active = ?, version = version + 1
		WHERE id = ? AND company_id = ? AND version = ?`,
		ing.Name, ing.Unit, ing.Stock, ing.MinStock, ing.UnitPrice, ing.Active,
		ing.ID, ing.CompanyID, ing.Version,
	)
	if err != nil {
		return namedErr(err, "ingredient", string(ing.ID), ing.Name)
	}
	if err := s.versionMiss(ctx, res, "ingredients", "ingredient", string(ing.CompanyID), string(ing.ID)); err != nil {
		return err
	}
	ing.Version++
	return nil
}

func (s *Store) GetIngredient(ctx context.Context, companyID inventory.CompanyID, id inventory.IngredientID) (*inventory.Ingredient, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+ingredientColumns+` FROM ingredients WHERE id = ? AND company_id = ?`, id, companyID)
	ing, err := scanIngredient(row)
	if err != nil {
		return nil, notFound(err, "ingredient", string(id))
	}
	return &ing, nil
}

func (s *Store) ListIngredients(ctx context.Context, companyID inventory.CompanyID) ([]inventory.Ingredient, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+ingredientColumns+` FROM ingredients WHERE company_id = ? ORDER BY name`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingredients: %w", err)
	}
	defer rows.Close()

	var out []inventory.Ingredient
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

func scanIngredient(sc scanner) (inventory.Ingredient, error) {
	var ing inventory.Ingredient
	err := sc.Scan(&ing.ID, &ing.CompanyID, &ing.Name, &ing.Unit,
		&ing.Stock, &ing.MinStock, &ing.UnitPrice, &ing.Active, &ing.Version)
	return ing, err
}

// =============================================================================
// PRODUCTS
// =============================================================================

const productColumns = `id, company_id, name, has_recipe, recipe_id, purchase_cost, sale_price, stock, sale_unit, active, version`

func (s *Store) CreateProduct(ctx context.Context, p *inventory.Product) error {
	if p.ID == "" {
		p.ID = inventory.ProductID(inventory.NewID())
	}
	p.Version = 1
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CompanyID, p.Name, p.HasRecipe, nullString(string(p.RecipeID)),
		p.PurchaseCost, p.SalePrice, p.Stock, nullString(p.SaleUnit), p.Active, p.Version,
	)
	return namedErr(err, "product", string(p.ID), p.Name)
}

func (s *Store) UpdateProduct(ctx context.Context, p *inventory.Product) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE products
		SET name = ?, has_recipe = ?, recipe_id = ?, purchase_cost = ?, sale_price = ?,
		    stock = ?, sale_unit = ?, active = ?, version = version + 1
		WHERE id = ? AND company_id = ? AND version = ?`,
		p.Name, p.HasRecipe, nullString(string(p.RecipeID)), p.PurchaseCost, p.SalePrice,
		p.Stock, nullString(p.SaleUnit), p.Active,
		p.ID, p.CompanyID, p.Version,
	)
	if err != nil {
		return namedErr(err, "product", string(p.ID), p.Name)
	}
	if err := s.versionMiss(ctx, res, "products", "product", string(p.CompanyID), string(p.ID)); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (s *Store) GetProduct(ctx context.Context, companyID inventory.CompanyID, id inventory.ProductID) (*inventory.Product, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ? AND company_id = ?`, id, companyID)
	p, err := scanProduct(row)
	if err != nil {
		return nil, notFound(err, "product", string(id))
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, companyID inventory.CompanyID) ([]inventory.Product, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE company_id = ? ORDER BY name`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []inventory.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(sc scanner) (inventory.Product, error) {
	var (
		p        inventory.Product
		recipeID sql.NullString
		saleUnit sql.NullString
	)
	err := sc.Scan(&p.ID, &p.CompanyID, &p.Name, &p.HasRecipe, &recipeID,
		&p.PurchaseCost, &p.SalePrice, &p.Stock, &saleUnit, &p.Active, &p.Version)
	p.RecipeID = inventory.RecipeID(recipeID.String)
	p.SaleUnit = saleUnit.String
	return p, err
}

// =============================================================================
// RECIPES
// =============================================================================

func (s *Store) CreateRecipe(ctx context.Context, r *inventory.Recipe) error {
	if r.ID == "" {
		r.ID = inventory.RecipeID(inventory.NewID())
	}
	return s.atomic(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO recipes (id, company_id, name, description, cost)
			VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.CompanyID, r.Name, nullString(r.Description), r.Cost,
		)
		if err != nil {
			return namedErr(err, "recipe", string(r.ID), r.Name)
		}
		return insertRecipeLines(ctx, q, r)
	})
}

func (s *Store) UpdateRecipe(ctx context.Context, r *inventory.Recipe) error {
	return s.atomic(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx, `
			UPDATE recipes SET name = ?, description = ?, cost = ?
			WHERE id = ? AND company_id = ?`,
			r.Name, nullString(r.Description), r.Cost, r.ID, r.CompanyID,
		)
		if err != nil {
			return namedErr(err, "recipe", string(r.ID), r.Name)
		}
		if err := expectOne(res, &inventory.NotFoundError{Entity: "recipe", ID: string(r.ID)}); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM recipe_lines WHERE recipe_id = ?`, r.ID); err != nil {
			return fmt.Errorf("failed to replace recipe lines: %w", err)
		}
		return insertRecipeLines(ctx, q, r)
	})
}

func insertRecipeLines(ctx context.Context, q querier, r *inventory.Recipe) error {
	for i := range r.Lines {
		line := &r.Lines[i]
		if line.ID == "" {
			line.ID = inventory.NewID()
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO recipe_lines (id, recipe_id, ingredient_id, quantity_per_unit, position)
			VALUES (?, ?, ?, ?, ?)`,
			line.ID, r.ID, line.IngredientID, line.QuantityPerUnit, i,
		)
		if err != nil {
			return writeErr(err, "recipe line", "id", line.ID)
		}
	}
	return nil
}

func (s *Store) GetRecipe(ctx context.Context, companyID inventory.CompanyID, id inventory.RecipeID) (*inventory.Recipe, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, company_id, name, description, cost FROM recipes WHERE id = ? AND company_id = ?`,
		id, companyID)
	r, err := scanRecipe(row)
	if err != nil {
		return nil, notFound(err, "recipe", string(id))
	}
	if r.Lines, err = s.recipeLines(ctx, r.ID); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRecipes(ctx context.Context, companyID inventory.CompanyID) ([]inventory.Recipe, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, company_id, name, description, cost FROM recipes WHERE company_id = ? ORDER BY name`,
		companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	var out []inventory.Recipe
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Lines are loaded after the cursor is closed; the pool has one connection.
	for i := range out {
		if out[i].Lines, err = s.recipeLines(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) DeleteRecipe(ctx context.Context, companyID inventory.CompanyID, id inventory.RecipeID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM recipes WHERE id = ? AND company_id = ?`, id, companyID)
	if err != nil {
		return writeErr(err, "recipe", "id", string(id))
	}
	return expectOne(res, &inventory.NotFoundError{Entity: "recipe", ID: string(id)})
}

func (s *Store) recipeLines(ctx context.Context, id inventory.RecipeID) ([]inventory.RecipeLine, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, ingredient_id, quantity_per_unit FROM recipe_lines
		WHERE recipe_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe lines: %w", err)
	}
	defer rows.Close()

	var lines []inventory.RecipeLine
	for rows.Next() {
		var l inventory.RecipeLine
		if err := rows.Scan(&l.ID, &l.IngredientID, &l.QuantityPerUnit); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanRecipe(sc scanner) (inventory.Recipe, error) {
	var (
		r    inventory.Recipe
		desc sql.NullString
	)
	err := sc.Scan(&r.ID, &r.CompanyID, &r.Name, &desc, &r.Cost)
	r.Description = desc.String
	return r, err
}

// =============================================================================
// STOCK (compare-and-swap)
// =============================================================================

func (s *Store) UpdateStock(ctx context.Context, companyID inventory.CompanyID, ref inventory.StockRef, expectedVersion int64, qty decimal.Decimal) error {
	var table, entity string
	switch ref.Kind() {
	case inventory.KindIngredient:
		table, entity = "ingredients", "ingredient"
	case inventory.KindProduct:
		table, entity = "products", "product"
	default:
		return &inventory.ValidationError{Field: "stock_ref", Message: "reference names no subject"}
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE `+table+` SET stock = ?, version = version + 1
		 WHERE id = ? AND company_id = ? AND version = ?`,
		qty, ref.ID(), companyID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update stock of %s: %w", ref, err)
	}
	return s.versionMiss(ctx, res, table, entity, string(companyID), ref.ID())
}

// versionMiss distinguishes "row missing" from "row changed" after a
// versioned update that may have matched nothing.
func (s *Store) versionMiss(ctx context.Context, res sql.Result, table, entity, companyID, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE id = ? AND company_id = ?`, id, companyID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return &inventory.NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("%s %s: %w", entity, id, inventory.ErrConcurrentModification)
}
