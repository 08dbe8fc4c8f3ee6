/*
store.go - Persistence interfaces for the inventory engine

PURPOSE:
  Defines the boundary between the business services and the database.
  Contracts are split by concern so small components depend on small
  interfaces (the Ledger needs only CatalogStore, the gate only needs
  ClosingStore.ClosingExists), while services needing everything take Store.

KEY INTERFACES:
  CatalogStore:  ingredients, products, recipes, versioned stock writes
  ClosingStore:  daily closings and their line items
  SalesStore:    invoices
  PurchaseStore: supplier purchases
  PartyStore:    customers and suppliers
  CompanyStore:  tenants
  Store:         all of the above
  TxStore:       Store plus WithTx for atomic multi-table writes

TENANCY CONTRACT:
  Every read and write takes a CompanyID. An entity belonging to another
  company is reported as not found, never returned.

OPTIMISTIC CONCURRENCY:
  Ingredients and products carry a Version. UpdateStock only succeeds when
  the stored version equals the expected one, and bumps it. A lost race
  returns ErrConcurrentModification.

IMPLEMENTATIONS:
  - store/sqlite:    production SQLite with goose migrations
  - inventory/store: in-memory CatalogStore for engine tests

SEE ALSO:
  - ledger.go: the only caller of UpdateStock
*/
package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG
// =============================================================================

type CatalogStore interface {
	CreateIngredient(ctx context.Context, ing *Ingredient) error
	// UpdateIngredient writes every field and bumps Version. It fails with
	// ErrConcurrentModification when ing.Version is stale.
	UpdateIngredient(ctx context.Context, ing *Ingredient) error
	GetIngredient(ctx context.Context, companyID CompanyID, id IngredientID) (*Ingredient, error)
	ListIngredients(ctx context.Context, companyID CompanyID) ([]Ingredient, error)

	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, companyID CompanyID, id ProductID) (*Product, error)
	ListProducts(ctx context.Context, companyID CompanyID) ([]Product, error)

	// Recipes are written with their lines as one unit.
	CreateRecipe(ctx context.Context, r *Recipe) error
	UpdateRecipe(ctx context.Context, r *Recipe) error
	GetRecipe(ctx context.Context, companyID CompanyID, id RecipeID) (*Recipe, error)
	ListRecipes(ctx context.Context, companyID CompanyID) ([]Recipe, error)
	DeleteRecipe(ctx context.Context, companyID CompanyID, id RecipeID) error

	// UpdateStock sets the stock of ref to qty if its version is still
	// expectedVersion.
	UpdateStock(ctx context.Context, companyID CompanyID, ref StockRef, expectedVersion int64, qty decimal.Decimal) error
}

// =============================================================================
// CLOSINGS
// =============================================================================

type ClosingStore interface {
	// CreateClosing fails with a ConflictError when (company, date) exists.
	CreateClosing(ctx context.Context, c *DailyClosing) error
	UpdateClosing(ctx context.Context, c *DailyClosing) error
	GetClosing(ctx context.Context, companyID CompanyID, id ClosingID) (*DailyClosing, error)
	FindClosingByDate(ctx context.Context, companyID CompanyID, date Date) (*DailyClosing, error)
	// ListClosings returns newest date first.
	ListClosings(ctx context.Context, companyID CompanyID) ([]DailyClosing, error)
	ClosingExists(ctx context.Context, companyID CompanyID, date Date, state ClosingState) (bool, error)
	// LatestClosingBefore returns the most recent closing in state with a
	// date strictly before the given one.
	LatestClosingBefore(ctx context.Context, companyID CompanyID, state ClosingState, before Date) (*DailyClosing, error)

	CreateLineItems(ctx context.Context, items []ClosingLineItem) error
	GetLineItem(ctx context.Context, companyID CompanyID, id LineItemID) (*ClosingLineItem, error)
	ListLineItems(ctx context.Context, companyID CompanyID, closingID ClosingID) ([]ClosingLineItem, error)
	UpdateLineItem(ctx context.Context, item *ClosingLineItem) error
}

// =============================================================================
// SALES AND PURCHASES
// =============================================================================

// InvoiceFilter narrows invoice and purchase listings. Zero fields match all.
type InvoiceFilter struct {
	State      InvoiceState
	From       Date // inclusive
	To         Date // inclusive
	CustomerID CustomerID
	SupplierID SupplierID
}

type SalesStore interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	// UpdateInvoice writes header fields (state and totals).
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, companyID CompanyID, id InvoiceID) (*Invoice, error)
	ListInvoices(ctx context.Context, companyID CompanyID, filter InvoiceFilter) ([]Invoice, error)
	CountInvoices(ctx context.Context, companyID CompanyID) (int, error)
	InvoiceNumberExists(ctx context.Context, companyID CompanyID, number string) (bool, error)
}

type PurchaseStore interface {
	CreatePurchase(ctx context.Context, p *Purchase) error
	UpdatePurchase(ctx context.Context, p *Purchase) error
	GetPurchase(ctx context.Context, companyID CompanyID, id PurchaseID) (*Purchase, error)
	ListPurchases(ctx context.Context, companyID CompanyID, filter InvoiceFilter) ([]Purchase, error)
	CountPurchases(ctx context.Context, companyID CompanyID) (int, error)
	PurchaseNumberExists(ctx context.Context, companyID CompanyID, number string) (bool, error)
}

// =============================================================================
// PARTIES AND TENANTS
// =============================================================================

type PartyStore interface {
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, companyID CompanyID, id CustomerID) (*Customer, error)
	CreateSupplier(ctx context.Context, s *Supplier) error
	GetSupplier(ctx context.Context, companyID CompanyID, id SupplierID) (*Supplier, error)
}

type CompanyStore interface {
	// CreateCompany fails with a ConflictError when the subdomain is taken.
	CreateCompany(ctx context.Context, c *Company) error
	GetCompany(ctx context.Context, id CompanyID) (*Company, error)
	FindCompanyBySubdomain(ctx context.Context, subdomain string) (*Company, error)
}

// =============================================================================
// AGGREGATE STORE
// =============================================================================

type Store interface {
	CatalogStore
	ClosingStore
	SalesStore
	PurchaseStore
	PartyStore
	CompanyStore
}

// TxStore runs fn against a transaction-bound Store. If fn returns an error
// every write made through the bound Store is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
