/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP surface, kept apart from the inventory types so
  field names and nullability are an API decision.

NAMING CONVENTION:
  - *DTO:      response types
  - *Request:  request bodies, validated with go-playground/validator tags

NUMBERS:
  Quantities and money are decimal strings ("12.50") in both directions.
  Dates are "2006-01-02".

SEE ALSO:
  - handlers.go: decode/validate and conversions
*/
package api

import (
	"time"

	"github.com/facinv/closing-engine/closing"
	"github.com/facinv/closing-engine/inventory"
	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMON
// =============================================================================

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// GateDenialResponse accompanies the 303 sent when the closing gate denies
// a request, and a sale refused for an unclosed prior day.
type GateDenialResponse struct {
	Error         string     `json:"error"`
	Outcome       string     `json:"outcome"`
	Location      string     `json:"location"`
	RequiredDate  string     `json:"required_date,omitempty"`
	NextAllowedAt *time.Time `json:"next_allowed_at,omitempty"`
}

type HealthDTO struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// =============================================================================
// TENANTS
// =============================================================================

type OnboardRequest struct {
	Name         string `json:"name" validate:"required,max=120"`
	Subdomain    string `json:"subdomain" validate:"required,max=63"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
	SampleData   bool   `json:"sample_data"`
}

type CompanyDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Subdomain    string    `json:"subdomain"`
	Active       bool      `json:"active"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toCompanyDTO(c *inventory.Company) CompanyDTO {
	return CompanyDTO{
		ID:           string(c.ID),
		Name:         c.Name,
		Subdomain:    c.Subdomain,
		Active:       c.Active,
		ContactEmail: c.ContactEmail,
		CreatedAt:    c.CreatedAt,
	}
}

// =============================================================================
// CATALOG
// =============================================================================

type IngredientRequest struct {
	Name      string          `json:"name" validate:"required,max=120"`
	Unit      string          `json:"unit" validate:"required,max=20"`
	Stock     decimal.Decimal `json:"stock"`
	MinStock  decimal.Decimal `json:"min_stock"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Active    *bool           `json:"active"`
}

type IngredientDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Stock        decimal.Decimal `json:"stock"`
	MinStock     decimal.Decimal `json:"min_stock"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Active       bool            `json:"active"`
	BelowMinimum bool            `json:"below_minimum"`
}

func toIngredientDTO(i *inventory.Ingredient) IngredientDTO {
	return IngredientDTO{
		ID:           string(i.ID),
		Name:         i.Name,
		Unit:         i.Unit,
		Stock:        i.Stock,
		MinStock:     i.MinStock,
		UnitPrice:    i.UnitPrice,
		Active:       i.Active,
		BelowMinimum: i.BelowMinimum(),
	}
}

type RecipeLineRequest struct {
	IngredientID    string          `json:"ingredient_id" validate:"required"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

type RecipeRequest struct {
	Name        string              `json:"name" validate:"required,max=120"`
	Description string              `json:"description"`
	Lines       []RecipeLineRequest `json:"lines" validate:"dive"`
}

type LineQuantityRequest struct {
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

type RecipeLineDTO struct {
	ID              string          `json:"id"`
	IngredientID    string          `json:"ingredient_id"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

type RecipeDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Cost        decimal.Decimal `json:"cost"`
	Lines       []RecipeLineDTO `json:"lines"`
}

func toRecipeDTO(r *inventory.Recipe) RecipeDTO {
	dto := RecipeDTO{
		ID:          string(r.ID),
		Name:        r.Name,
		Description: r.Description,
		Cost:        r.Cost,
		Lines:       make([]RecipeLineDTO, len(r.Lines)),
	}
	for i, l := range r.Lines {
		dto.Lines[i] = RecipeLineDTO{ID: l.ID, IngredientID: string(l.IngredientID), QuantityPerUnit: l.QuantityPerUnit}
	}
	return dto
}

type ProductRequest struct {
	Name         string          `json:"name" validate:"required,max=120"`
	HasRecipe    bool            `json:"has_recipe"`
	RecipeID     string          `json:"recipe_id" validate:"required_if=HasRecipe true"`
	PurchaseCost decimal.Decimal `json:"purchase_cost"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	Stock        decimal.Decimal `json:"stock"`
	SaleUnit     string          `json:"sale_unit" validate:"max=20"`
	Active       *bool           `json:"active"`
}

type ProductDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	HasRecipe    bool            `json:"has_recipe"`
	RecipeID     string          `json:"recipe_id,omitempty"`
	PurchaseCost decimal.Decimal `json:"purchase_cost"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	Stock        decimal.Decimal `json:"stock"`
	SaleUnit     string          `json:"sale_unit,omitempty"`
	Active       bool            `json:"active"`
}

func toProductDTO(p *inventory.Product) ProductDTO {
	return ProductDTO{
		ID:           string(p.ID),
		Name:         p.Name,
		HasRecipe:    p.HasRecipe,
		RecipeID:     string(p.RecipeID),
		PurchaseCost: p.PurchaseCost,
		SalePrice:    p.SalePrice,
		Stock:        p.Stock,
		SaleUnit:     p.SaleUnit,
		Active:       p.Active,
	}
}

type PossibleStockDTO struct {
	ProductID string          `json:"product_id"`
	Units     decimal.Decimal `json:"units"`
}

// =============================================================================
// CLOSINGS
// =============================================================================

type InitiateClosingRequest struct {
	Date   string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	UserID string `json:"user_id"`
	Notes  string `json:"notes"`
}

type CountRequest struct {
	RealStock *decimal.Decimal `json:"real_stock" validate:"required"`
	Shrinkage decimal.Decimal  `json:"shrinkage"`
	Waste     decimal.Decimal  `json:"waste"`
}

type ClosingDTO struct {
	ID           string          `json:"id"`
	Date         inventory.Date  `json:"date"`
	UserID       string          `json:"user_id,omitempty"`
	State        string          `json:"state"`
	Notes        string          `json:"notes,omitempty"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	InvoiceCount int             `json:"invoice_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toClosingDTO(c *inventory.DailyClosing) ClosingDTO {
	return ClosingDTO{
		ID:           string(c.ID),
		Date:         c.Date,
		UserID:       c.UserID,
		State:        string(c.State),
		Notes:        c.Notes,
		TotalSales:   c.TotalSales,
		InvoiceCount: c.InvoiceCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

type LineItemDTO struct {
	ID               string              `json:"id"`
	SubjectKind      string              `json:"subject_kind"`
	SubjectID        string              `json:"subject_id"`
	TheoreticalStock decimal.Decimal     `json:"theoretical_stock"`
	RealStock        decimal.Decimal     `json:"real_stock"`
	Shrinkage        decimal.Decimal     `json:"shrinkage"`
	Waste            decimal.Decimal     `json:"waste"`
	UnitCost         decimal.Decimal     `json:"unit_cost"`
	Counted          bool                `json:"counted"`
	Variance         decimal.NullDecimal `json:"variance"`
	VarianceValue    decimal.NullDecimal `json:"variance_value"`
}

func toLineItemDTO(li *inventory.ClosingLineItem) LineItemDTO {
	return LineItemDTO{
		ID:               string(li.ID),
		SubjectKind:      li.Subject.Kind().String(),
		SubjectID:        li.Subject.ID(),
		TheoreticalStock: li.TheoreticalStock,
		RealStock:        li.RealStock,
		Shrinkage:        li.Shrinkage,
		Waste:            li.Waste,
		UnitCost:         li.UnitCost,
		Counted:          li.Counted,
		Variance:         li.Variance,
		VarianceValue:    li.VarianceValue,
	}
}

type ClosingDetailDTO struct {
	ClosingDTO
	Lines []LineItemDTO `json:"lines"`
}

func toClosingDetailDTO(d *closing.Detail) ClosingDetailDTO {
	dto := ClosingDetailDTO{ClosingDTO: toClosingDTO(&d.Closing), Lines: make([]LineItemDTO, len(d.Lines))}
	for i := range d.Lines {
		dto.Lines[i] = toLineItemDTO(&d.Lines[i])
	}
	return dto
}

type RequiredClosingDTO struct {
	Date   inventory.Date `json:"date"`
	Closed bool           `json:"closed"`
}

type BlockedDTO struct {
	Message       string `json:"message"`
	NextAllowedAt string `json:"next_allowed_at,omitempty"`
}

// =============================================================================
// SALES
// =============================================================================

type SaleLineRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type CreateInvoiceRequest struct {
	Number        string            `json:"number" validate:"max=40"`
	CustomerID    string            `json:"customer_id"`
	PaymentMethod string            `json:"payment_method" validate:"omitempty,oneof=CASH CARD TRANSFER"`
	Lines         []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type InvoiceLineDTO struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type InvoiceDTO struct {
	ID            string           `json:"id"`
	Number        string           `json:"number"`
	CustomerID    string           `json:"customer_id,omitempty"`
	Date          inventory.Date   `json:"date"`
	Lines         []InvoiceLineDTO `json:"lines"`
	Subtotal      decimal.Decimal  `json:"subtotal"`
	Tax           decimal.Decimal  `json:"tax"`
	Total         decimal.Decimal  `json:"total"`
	State         string           `json:"state"`
	PaymentMethod string           `json:"payment_method,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

func toInvoiceDTO(inv *inventory.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:            string(inv.ID),
		Number:        inv.Number,
		CustomerID:    string(inv.CustomerID),
		Date:          inv.Date,
		Lines:         make([]InvoiceLineDTO, len(inv.Lines)),
		Subtotal:      inv.Subtotal,
		Tax:           inv.Tax,
		Total:         inv.Total,
		State:         string(inv.State),
		PaymentMethod: string(inv.PaymentMethod),
		CreatedAt:     inv.CreatedAt,
	}
	for i, l := range inv.Lines {
		dto.Lines[i] = InvoiceLineDTO{ProductID: string(l.ProductID), Quantity: l.Quantity, UnitPrice: l.UnitPrice, Subtotal: l.Subtotal}
	}
	return dto
}

type SalesSummaryDTO struct {
	Date         inventory.Date  `json:"date"`
	Total        decimal.Decimal `json:"total"`
	InvoiceCount int             `json:"invoice_count"`
}

type ReceiptLineRequest struct {
	IngredientID string          `json:"ingredient_id" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

type CreatePurchaseRequest struct {
	SupplierID string               `json:"supplier_id" validate:"required"`
	Number     string               `json:"number" validate:"max=40"`
	Date       string               `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Lines      []ReceiptLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type PurchaseLineDTO struct {
	IngredientID string          `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type PurchaseDTO struct {
	ID         string            `json:"id"`
	Number     string            `json:"number"`
	SupplierID string            `json:"supplier_id"`
	Date       inventory.Date    `json:"date"`
	Lines      []PurchaseLineDTO `json:"lines"`
	Subtotal   decimal.Decimal   `json:"subtotal"`
	Tax        decimal.Decimal   `json:"tax"`
	Total      decimal.Decimal   `json:"total"`
	State      string            `json:"state"`
	CreatedAt  time.Time         `json:"created_at"`
}

func toPurchaseDTO(p *inventory.Purchase) PurchaseDTO {
	dto := PurchaseDTO{
		ID:         string(p.ID),
		Number:     p.Number,
		SupplierID: string(p.SupplierID),
		Date:       p.Date,
		Lines:      make([]PurchaseLineDTO, len(p.Lines)),
		Subtotal:   p.Subtotal,
		Tax:        p.Tax,
		Total:      p.Total,
		State:      string(p.State),
		CreatedAt:  p.CreatedAt,
	}
	for i, l := range p.Lines {
		dto.Lines[i] = PurchaseLineDTO{IngredientID: string(l.IngredientID), Quantity: l.Quantity, UnitPrice: l.UnitPrice, Subtotal: l.Subtotal}
	}
	return dto
}

type CustomerRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Document string `json:"document" validate:"max=40"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type CustomerDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document,omitempty"`
	Email    string `json:"email,omitempty"`
}

type SupplierRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Document string `json:"document" validate:"max=40"`
	Phone    string `json:"phone" validate:"max=30"`
}

type SupplierDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// =============================================================================
// REPORTS
// =============================================================================

type ConsumptionLineDTO struct {
	SubjectKind      string          `json:"subject_kind"`
	SubjectID        string          `json:"subject_id"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit,omitempty"`
	InitialStock     decimal.Decimal `json:"initial_stock"`
	Purchases        decimal.Decimal `json:"purchases"`
	Consumption      decimal.Decimal `json:"consumption"`
	TheoreticalFinal decimal.Decimal `json:"theoretical_final"`
	FinalStock       decimal.Decimal `json:"final_stock"`
	Variance         decimal.Decimal `json:"variance"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	ConsumptionValue decimal.Decimal `json:"consumption_value"`
	VarianceValue    decimal.Decimal `json:"variance_value"`
}

type ConsumptionReportDTO struct {
	From                  inventory.Date       `json:"from"`
	To                    inventory.Date       `json:"to"`
	InitialClosingID      string               `json:"initial_closing_id,omitempty"`
	FinalClosingID        string               `json:"final_closing_id,omitempty"`
	Lines                 []ConsumptionLineDTO `json:"lines"`
	TotalConsumptionValue decimal.Decimal      `json:"total_consumption_value"`
	TotalVarianceValue    decimal.Decimal      `json:"total_variance_value"`
	VariancePercent       decimal.Decimal      `json:"variance_percent"`
}

func toConsumptionReportDTO(r *closing.ConsumptionReport) ConsumptionReportDTO {
	dto := ConsumptionReportDTO{
		From:                  r.From,
		To:                    r.To,
		InitialClosingID:      string(r.InitialClosing),
		FinalClosingID:        string(r.FinalClosing),
		Lines:                 make([]ConsumptionLineDTO, len(r.Lines)),
		TotalConsumptionValue: r.TotalConsumptionValue,
		TotalVarianceValue:    r.TotalVarianceValue,
		VariancePercent:       r.VariancePercent,
	}
	for i, l := range r.Lines {
		dto.Lines[i] = ConsumptionLineDTO{
			SubjectKind:      l.Subject.Kind().String(),
			SubjectID:        l.Subject.ID(),
			Name:             l.Name,
			Unit:             l.Unit,
			InitialStock:     l.InitialStock,
			Purchases:        l.Purchases,
			Consumption:      l.Consumption,
			TheoreticalFinal: l.TheoreticalFinal,
			FinalStock:       l.FinalStock,
			Variance:         l.Variance,
			UnitCost:         l.UnitCost,
			ConsumptionValue: l.ConsumptionValue,
			VarianceValue:    l.VarianceValue,
		}
	}
	return dto
}
