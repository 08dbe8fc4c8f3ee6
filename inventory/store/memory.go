// Package store provides an in-memory CatalogStore for tests and local tools.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/facinv/closing-engine/inventory"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMORY CATALOG - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	txMu        sync.Mutex
	mu          sync.RWMutex
	ingredients map[inventory.IngredientID]inventory.Ingredient
	products    map[inventory.ProductID]inventory.Product
	recipes     map[inventory.RecipeID]inventory.Recipe
}

func NewMemory() *Memory {
	return &Memory{
		ingredients: make(map[inventory.IngredientID]inventory.Ingredient),
		products:    make(map[inventory.ProductID]inventory.Product),
		recipes:     make(map[inventory.RecipeID]inventory.Recipe),
	}
}

// -----------------------------------------------------------------------------
// Ingredients
// -----------------------------------------------------------------------------

func (m *Memory) CreateIngredient(_ context.Context, ing *inventory.Ingredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ing.ID == "" {
		ing.ID = inventory.IngredientID(inventory.NewID())
	}
	if _, ok := m.ingredients[ing.ID]; ok {
		return &inventory.ConflictError{Entity: "ingredient", Field: "id", Value: string(ing.ID)}
	}
	ing.Version = 1
	m.ingredients[ing.ID] = *ing
	return nil
}

func (m *Memory) UpdateIngredient(_ context.Context, ing *inventory.Ingredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.ingredients[ing.ID]
	if !ok || cur.CompanyID != ing.CompanyID {
		return &inventory.NotFoundError{Entity: "ingredient", ID: string(ing.ID)}
	}
	if cur.Version != ing.Version {
		return inventory.ErrConcurrentModification
	}
	ing.Version++
	m.ingredients[ing.ID] = *ing
	return nil
}

func (m *Memory) GetIngredient(_ context.Context, companyID inventory.CompanyID, id inventory.IngredientID) (*inventory.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ing, ok := m.ingredients[id]
	if !ok || ing.CompanyID != companyID {
		return nil, &inventory.NotFoundError{Entity: "ingredient", ID: string(id)}
	}
	return &ing, nil
}

func (m *Memory) ListIngredients(_ context.Context, companyID inventory.CompanyID) ([]inventory.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []inventory.Ingredient
	for _, ing := range m.ingredients {
		if ing.CompanyID == companyID {
			out = append(out, ing)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// -----------------------------------------------------------------------------
// Products
// -----------------------------------------------------------------------------

func (m *Memory) CreateProduct(_ context.Context, p *inventory.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = inventory.ProductID(inventory.NewID())
	}
	if _, ok := m.products[p.ID]; ok {
		return &inventory.ConflictError{Entity: "product", Field: "id", Value: string(p.ID)}
	}
	p.Version = 1
	m.products[p.ID] = *p
	return nil
}

func (m *Memory) UpdateProduct(_ context.Context, p *inventory.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.products[p.ID]
	if !ok || cur.CompanyID != p.CompanyID {
		return &inventory.NotFoundError{Entity: "product", ID: string(p.ID)}
	}
	if cur.Version != p.Version {
		return inventory.ErrConcurrentModification
	}
	p.Version++
	m.products[p.ID] = *p
	return nil
}

func (m *Memory) GetProduct(_ context.Context, companyID inventory.CompanyID, id inventory.ProductID) (*inventory.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok || p.CompanyID != companyID {
		return nil, &inventory.NotFoundError{Entity: "product", ID: string(id)}
	}
	return &p, nil
}

func (m *Memory) ListProducts(_ context.Context, companyID inventory.CompanyID) ([]inventory.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []inventory.Product
	for _, p := range m.products {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// -----------------------------------------------------------------------------
// Recipes
// -----------------------------------------------------------------------------

func (m *Memory) CreateRecipe(_ context.Context, r *inventory.Recipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = inventory.RecipeID(inventory.NewID())
	}
	if _, ok := m.recipes[r.ID]; ok {
		return &inventory.ConflictError{Entity: "recipe", Field: "id", Value: string(r.ID)}
	}
	m.recipes[r.ID] = copyRecipe(*r)
	return nil
}

func (m *Memory) UpdateRecipe(_ context.Context, r *inventory.Recipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.recipes[r.ID]
	if !ok || cur.CompanyID != r.CompanyID {
		return &inventory.NotFoundError{Entity: "recipe", ID: string(r.ID)}
	}
	m.recipes[r.ID] = copyRecipe(*r)
	return nil
}

func (m *Memory) GetRecipe(_ context.Context, companyID inventory.CompanyID, id inventory.RecipeID) (*inventory.Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recipes[id]
	if !ok || r.CompanyID != companyID {
		return nil, &inventory.NotFoundError{Entity: "recipe", ID: string(id)}
	}
	out := copyRecipe(r)
	return &out, nil
}

func (m *Memory) ListRecipes(_ context.Context, companyID inventory.CompanyID) ([]inventory.Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []inventory.Recipe
	for _, r := range m.recipes {
		if r.CompanyID == companyID {
			out = append(out, copyRecipe(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteRecipe(_ context.Context, companyID inventory.CompanyID, id inventory.RecipeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[id]
	if !ok || r.CompanyID != companyID {
		return &inventory.NotFoundError{Entity: "recipe", ID: string(id)}
	}
	delete(m.recipes, id)
	return nil
}

func copyRecipe(r inventory.Recipe) inventory.Recipe {
	r.Lines = append([]inventory.RecipeLine(nil), r.Lines...)
	return r
}

// -----------------------------------------------------------------------------
// Stock
// -----------------------------------------------------------------------------

func (m *Memory) UpdateStock(_ context.Context, companyID inventory.CompanyID, ref inventory.StockRef, expectedVersion int64, qty decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStockLocked(companyID, ref, expectedVersion, qty)
}

func (m *Memory) updateStockLocked(companyID inventory.CompanyID, ref inventory.StockRef, expectedVersion int64, qty decimal.Decimal) error {
	if id, ok := ref.Ingredient(); ok {
		ing, found := m.ingredients[id]
		if !found || ing.CompanyID != companyID {
			return &inventory.NotFoundError{Entity: "ingredient", ID: string(id)}
		}
		if ing.Version != expectedVersion {
			return inventory.ErrConcurrentModification
		}
		ing.Stock = qty
		ing.Version++
		m.ingredients[id] = ing
		return nil
	}
	if id, ok := ref.Product(); ok {
		p, found := m.products[id]
		if !found || p.CompanyID != companyID {
			return &inventory.NotFoundError{Entity: "product", ID: string(id)}
		}
		if p.Version != expectedVersion {
			return inventory.ErrConcurrentModification
		}
		p.Stock = qty
		p.Version++
		m.products[id] = p
		return nil
	}
	return &inventory.ValidationError{Field: "stock_ref", Message: "reference names no subject"}
}

// =============================================================================
// TX MEMORY - snapshot/restore rollback
// =============================================================================

// WithTx runs fn and restores the pre-call state if fn fails. Concurrent
// WithTx calls are serialised.
func (m *Memory) WithTx(_ context.Context, fn func(inventory.CatalogStore) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	ingredients map[inventory.IngredientID]inventory.Ingredient
	products    map[inventory.ProductID]inventory.Product
	recipes     map[inventory.RecipeID]inventory.Recipe
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := memorySnapshot{
		ingredients: make(map[inventory.IngredientID]inventory.Ingredient, len(m.ingredients)),
		products:    make(map[inventory.ProductID]inventory.Product, len(m.products)),
		recipes:     make(map[inventory.RecipeID]inventory.Recipe, len(m.recipes)),
	}
	for k, v := range m.ingredients {
		s.ingredients[k] = v
	}
	for k, v := range m.products {
		s.products[k] = v
	}
	for k, v := range m.recipes {
		s.recipes[k] = copyRecipe(v)
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingredients = s.ingredients
	m.products = s.products
	m.recipes = s.recipes
}
