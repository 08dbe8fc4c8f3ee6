package inventory

import "fmt"

// =============================================================================
// STOCK REFERENCE - exactly one of ingredient or product
// =============================================================================

// StockKind discriminates the two stock-carrying entities.
type StockKind uint8

const (
	kindNone StockKind = iota
	KindIngredient
	KindProduct
)

func (k StockKind) String() string {
	switch k {
	case KindIngredient:
		return "ingredient"
	case KindProduct:
		return "product"
	default:
		return "none"
	}
}

// StockRef points at one stock subject. It can only be built through
// IngredientRef or ProductRef, so a ref never names both kinds. The zero
// value names neither and is rejected by every store.
type StockRef struct {
	kind StockKind
	id   string
}

func IngredientRef(id IngredientID) StockRef { return StockRef{kind: KindIngredient, id: string(id)} }
func ProductRef(id ProductID) StockRef       { return StockRef{kind: KindProduct, id: string(id)} }

// ParseStockRef rebuilds a ref from its persisted kind label and id.
func ParseStockRef(kind, id string) (StockRef, error) {
	if id == "" {
		return StockRef{}, &ValidationError{Field: "stock_ref", Message: "empty id"}
	}
	switch kind {
	case KindIngredient.String():
		return IngredientRef(IngredientID(id)), nil
	case KindProduct.String():
		return ProductRef(ProductID(id)), nil
	}
	return StockRef{}, &ValidationError{Field: "stock_ref", Message: fmt.Sprintf("unknown kind %q", kind)}
}

func (r StockRef) Kind() StockKind { return r.kind }
func (r StockRef) ID() string      { return r.id }
func (r StockRef) IsZero() bool    { return r.kind == kindNone }

// Ingredient returns the ingredient id when r names an ingredient.
func (r StockRef) Ingredient() (IngredientID, bool) {
	return IngredientID(r.id), r.kind == KindIngredient
}

// Product returns the product id when r names a product.
func (r StockRef) Product() (ProductID, bool) {
	return ProductID(r.id), r.kind == KindProduct
}

func (r StockRef) String() string {
	return r.kind.String() + ":" + r.id
}
