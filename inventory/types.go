/*
Package inventory provides the core types and algorithms of the invoicing and
daily inventory closing engine.

PURPOSE:
  This package contains the tenant-scoped domain model (companies, ingredients,
  products, recipes, closings, invoices, purchases), the persistence contracts,
  and the two stock engines every business flow goes through:
  - Ledger:       single source of truth for stock quantities
  - RecipeEngine: converts "N units of a recipe product" into ingredient moves

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: type-safe ids so an IngredientID is never passed as a ProductID
  - Entities:    plain structs, constructed explicitly, validated by their services
  - States:      closing and invoice state enums

DESIGN PRINCIPLES:
  1. Explicit tenancy: every persisted entity carries its CompanyID and every
     store lookup takes one. There is no ambient tenant.
  2. Precision: quantities and money use decimal.Decimal. Rounding happens only
     at money-valuation boundaries (invoice totals), never in the ledger.
  3. One-of-two references: a closing line points at an ingredient OR a product
     through StockRef (stockref.go), never through two nullable fields.

SEE ALSO:
  - stockref.go: StockRef tagged union
  - ledger.go:   Stock Ledger
  - recipe.go:   Recipe Costing Engine
  - store.go:    persistence interfaces
*/
package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CompanyID string
type IngredientID string
type ProductID string
type RecipeID string
type ClosingID string
type LineItemID string
type InvoiceID string
type PurchaseID string
type CustomerID string
type SupplierID string

// NewID returns a fresh random identifier for any entity.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// COMPANY (tenant)
// =============================================================================

// Company is the identity boundary for all other entities.
type Company struct {
	ID           CompanyID
	Name         string
	Subdomain    string
	Active       bool
	ContactEmail string
	CreatedAt    time.Time
}

// =============================================================================
// CATALOG - Ingredients, products, recipes
// =============================================================================

// Ingredient is a raw-material stock unit.
type Ingredient struct {
	ID        IngredientID
	CompanyID CompanyID
	Name      string
	Unit      string
	Stock     decimal.Decimal
	MinStock  decimal.Decimal
	UnitPrice decimal.Decimal
	Active    bool

	// Version is bumped by the store on every write and checked on stock updates.
	Version int64
}

func (i *Ingredient) Ref() StockRef { return IngredientRef(i.ID) }

// BelowMinimum reports whether current stock fell under the configured threshold.
func (i *Ingredient) BelowMinimum() bool { return i.Stock.LessThan(i.MinStock) }

// Product is a sellable item. Recipe products take their stock from the
// recipe's ingredients. Direct products carry their own Stock.
type Product struct {
	ID           ProductID
	CompanyID    CompanyID
	Name         string
	HasRecipe    bool
	RecipeID     RecipeID // empty when HasRecipe is false
	PurchaseCost decimal.Decimal
	SalePrice    decimal.Decimal
	Stock        decimal.Decimal // meaningful only when HasRecipe is false
	SaleUnit     string
	Active       bool
	Version      int64
}

func (p *Product) Ref() StockRef { return ProductRef(p.ID) }

// Validate enforces the recipe/stock invariant of a product.
func (p *Product) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if p.HasRecipe && p.RecipeID == "" {
		return &ValidationError{Field: "recipe_id", Message: "a recipe product requires a recipe"}
	}
	if !p.HasRecipe && p.Stock.IsNegative() {
		return &ValidationError{Field: "stock", Message: "cannot be negative"}
	}
	if p.SalePrice.IsNegative() {
		return &ValidationError{Field: "sale_price", Message: "cannot be negative"}
	}
	return nil
}

// Recipe owns a set of lines binding ingredients to per-unit quantities.
// Cost is derived and recomputed on every structural change.
type Recipe struct {
	ID          RecipeID
	CompanyID   CompanyID
	Name        string
	Description string
	Cost        decimal.Decimal
	Lines       []RecipeLine
}

type RecipeLine struct {
	ID              string
	IngredientID    IngredientID
	QuantityPerUnit decimal.Decimal
}

// =============================================================================
// DAILY CLOSING
// =============================================================================

// ClosingState is the lifecycle state of a DailyClosing.
// Values match the labels staff already know from the closing screens.
type ClosingState string

const (
	ClosingInProgress   ClosingState = "EN_PROCESO"
	ClosingPreCompleted ClosingState = "PRE-COMPLETADO"
	ClosingCompleted    ClosingState = "COMPLETADO"
)

// Next returns the only state reachable from s, or false for the terminal state.
func (s ClosingState) Next() (ClosingState, bool) {
	switch s {
	case ClosingInProgress:
		return ClosingPreCompleted, true
	case ClosingPreCompleted:
		return ClosingCompleted, true
	default:
		return "", false
	}
}

// CanTransitionTo reports whether moving from s to next is a legal single step.
func (s ClosingState) CanTransitionTo(next ClosingState) bool {
	n, ok := s.Next()
	return ok && n == next
}

// Editable reports whether line items may still be recounted.
func (s ClosingState) Editable() bool {
	return s == ClosingInProgress || s == ClosingPreCompleted
}

// DailyClosing is one day's inventory reconciliation for one company.
// At most one exists per (CompanyID, Date).
type DailyClosing struct {
	ID           ClosingID
	CompanyID    CompanyID
	Date         Date
	UserID       string // empty when no user is assigned
	State        ClosingState
	Notes        string
	TotalSales   decimal.Decimal
	InvoiceCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ClosingLineItem is one reconciliation line for exactly one stock subject.
type ClosingLineItem struct {
	ID               LineItemID
	ClosingID        ClosingID
	Subject          StockRef
	TheoreticalStock decimal.Decimal
	RealStock        decimal.Decimal
	Shrinkage        decimal.Decimal
	Waste            decimal.Decimal
	UnitCost         decimal.Decimal

	// Counted is set once staff submitted a count for this line.
	Counted bool

	// Variance and VarianceValue stay invalid until the first count.
	Variance      decimal.NullDecimal
	VarianceValue decimal.NullDecimal
}

// Recount applies a physical count and recomputes the variance figures:
//
//	variance      = (real + shrinkage + waste) - theoretical
//	varianceValue = variance * unitCost
func (li *ClosingLineItem) Recount(real, shrinkage, waste, unitCost decimal.Decimal) {
	li.RealStock = real
	li.Shrinkage = shrinkage
	li.Waste = waste
	li.UnitCost = unitCost
	li.Counted = true

	variance := real.Add(shrinkage).Add(waste).Sub(li.TheoreticalStock)
	li.Variance = decimal.NewNullDecimal(variance)
	li.VarianceValue = decimal.NewNullDecimal(variance.Mul(unitCost))
}

// HasRealStock reports whether a non-negative count is present.
func (li *ClosingLineItem) HasRealStock() bool {
	return li.Counted && !li.RealStock.IsNegative()
}

// =============================================================================
// SALES AND PURCHASES
// =============================================================================

type InvoiceState string

const (
	InvoicePending InvoiceState = "PENDING"
	InvoicePaid    InvoiceState = "PAID"
	InvoiceVoided  InvoiceState = "VOIDED"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentCard     PaymentMethod = "CARD"
	PaymentTransfer PaymentMethod = "TRANSFER"
)

// Valid reports whether m is one of the accepted payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

// Invoice is a customer sale.
type Invoice struct {
	ID            InvoiceID
	CompanyID     CompanyID
	Number        string
	CustomerID    CustomerID // optional
	Date          Date
	Lines         []InvoiceLine
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	State         InvoiceState
	PaymentMethod PaymentMethod
	CreatedAt     time.Time
}

type InvoiceLine struct {
	ID        string
	ProductID ProductID
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// ComputeSubtotal sets Subtotal = Quantity * UnitPrice. Stores call it before
// every write so the figure is never stale.
func (l *InvoiceLine) ComputeSubtotal() {
	l.Subtotal = l.Quantity.Mul(l.UnitPrice)
}

// Purchase is a supplier invoice that receives ingredient stock.
type Purchase struct {
	ID         PurchaseID
	CompanyID  CompanyID
	Number     string
	SupplierID SupplierID
	Date       Date
	Lines      []PurchaseLine
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	State      InvoiceState
	CreatedAt  time.Time
}

type PurchaseLine struct {
	ID           string
	IngredientID IngredientID
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	Subtotal     decimal.Decimal
}

func (l *PurchaseLine) ComputeSubtotal() {
	l.Subtotal = l.Quantity.Mul(l.UnitPrice)
}

// SalesSummary aggregates the PAID invoices of one company and day.
type SalesSummary struct {
	Date         Date
	Total        decimal.Decimal
	InvoiceCount int
}

// =============================================================================
// PARTIES
// =============================================================================

type Customer struct {
	ID        CustomerID
	CompanyID CompanyID
	Name      string
	Document  string
	Email     string
}

type Supplier struct {
	ID        SupplierID
	CompanyID CompanyID
	Name      string
	Document  string
	Phone     string
}
