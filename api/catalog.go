package api

import (
	"net/http"

	"github.com/facinv/closing-engine/catalog"
	"github.com/facinv/closing-engine/inventory"
	"github.com/facinv/closing-engine/tenant"
	"github.com/go-chi/chi/v5"
)

// =============================================================================
// INGREDIENTS
// =============================================================================

func (req IngredientRequest) input() catalog.IngredientInput {
	return catalog.IngredientInput{
		Name:      req.Name,
		Unit:      req.Unit,
		Stock:     req.Stock,
		MinStock:  req.MinStock,
		UnitPrice: req.UnitPrice,
		Active:    req.Active,
	}
}

// ListIngredients lists every ingredient, or with ?low_stock=true only those
// below their minimum.
func (h *Handler) ListIngredients(w http.ResponseWriter, r *http.Request) {
	companyID := tenant.IDFromContext(r.Context())
	list := h.Catalog.ListIngredients
	if r.URL.Query().Get("low_stock") == "true" {
		list = h.Catalog.LowStock
	}
	ings, err := list(r.Context(), companyID)
	if err != nil {
		h.fail(w, r, "ListIngredients", err)
		return
	}
	dtos := make([]IngredientDTO, len(ings))
	for i := range ings {
		dtos[i] = toIngredientDTO(&ings[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateIngredient(w http.ResponseWriter, r *http.Request) {
	var req IngredientRequest
	if !h.decode(w, r, &req) {
		return
	}
	ing, err := h.Catalog.CreateIngredient(r.Context(), tenant.IDFromContext(r.Context()), req.input())
	if err != nil {
		h.fail(w, r, "CreateIngredient", err)
		return
	}
	writeJSON(w, http.StatusCreated, toIngredientDTO(ing))
}

func (h *Handler) GetIngredient(w http.ResponseWriter, r *http.Request) {
	id := inventory.IngredientID(chi.URLParam(r, "id"))
	ing, err := h.Catalog.GetIngredient(r.Context(), tenant.IDFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "GetIngredient", err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTO(ing))
}

func (h *Handler) UpdateIngredient(w http.ResponseWriter, r *http.Request) {
	var req IngredientRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := inventory.IngredientID(chi.URLParam(r, "id"))
	ing, err := h.Catalog.UpdateIngredient(r.Context(), tenant.IDFromContext(r.Context()), id, req.input())
	if err != nil {
		h.fail(w, r, "UpdateIngredient", err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTO(ing))
}

// =============================================================================
// RECIPES
// =============================================================================

func (req RecipeRequest) input() catalog.RecipeInput {
	in := catalog.RecipeInput{Name: req.Name, Description: req.Description}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, catalog.RecipeLineInput{
			IngredientID:    inventory.IngredientID(l.IngredientID),
			QuantityPerUnit: l.QuantityPerUnit,
		})
	}
	return in
}

func (h *Handler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.Catalog.ListRecipes(r.Context(), tenant.IDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "ListRecipes", err)
		return
	}
	dtos := make([]RecipeDTO, len(recipes))
	for i := range recipes {
		dtos[i] = toRecipeDTO(&recipes[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req RecipeRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.Catalog.CreateRecipe(r.Context(), tenant.IDFromContext(r.Context()), req.input())
	if err != nil {
		h.fail(w, r, "CreateRecipe", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecipeDTO(rec))
}

func (h *Handler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	id := inventory.RecipeID(chi.URLParam(r, "id"))
	rec, err := h.Catalog.GetRecipe(r.Context(), tenant.IDFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "GetRecipe", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeDTO(rec))
}

// UpdateRecipe replaces the recipe's name, description and lines.
func (h *Handler) UpdateRecipe(w http.ResponseWriter, r *http.Request) {
	var req RecipeRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := inventory.RecipeID(chi.URLParam(r, "id"))
	rec, err := h.Catalog.UpdateRecipe(r.Context(), tenant.IDFromContext(r.Context()), id, req.input())
	if err != nil {
		h.fail(w, r, "UpdateRecipe", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeDTO(rec))
}

func (h *Handler) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	id := inventory.RecipeID(chi.URLParam(r, "id"))
	if err := h.Catalog.DeleteRecipe(r.Context(), tenant.IDFromContext(r.Context()), id); err != nil {
		h.fail(w, r, "DeleteRecipe", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddRecipeLine(w http.ResponseWriter, r *http.Request) {
	var req RecipeLineRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := inventory.RecipeID(chi.URLParam(r, "id"))
	rec, err := h.Catalog.AddLine(r.Context(), tenant.IDFromContext(r.Context()), id, catalog.RecipeLineInput{
		IngredientID:    inventory.IngredientID(req.IngredientID),
		QuantityPerUnit: req.QuantityPerUnit,
	})
	if err != nil {
		h.fail(w, r, "AddRecipeLine", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecipeDTO(rec))
}

func (h *Handler) UpdateRecipeLine(w http.ResponseWriter, r *http.Request) {
	var req LineQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := inventory.RecipeID(chi.URLParam(r, "id"))
	ingredientID := inventory.IngredientID(chi.URLParam(r, "ingredientID"))
	rec, err := h.Catalog.UpdateLineQuantity(r.Context(), tenant.IDFromContext(r.Context()), id, ingredientID, req.QuantityPerUnit)
	if err != nil {
		h.fail(w, r, "UpdateRecipeLine", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeDTO(rec))
}

func (h *Handler) RemoveRecipeLine(w http.ResponseWriter, r *http.Request) {
	id := inventory.RecipeID(chi.URLParam(r, "id"))
	ingredientID := inventory.IngredientID(chi.URLParam(r, "ingredientID"))
	rec, err := h.Catalog.RemoveLine(r.Context(), tenant.IDFromContext(r.Context()), id, ingredientID)
	if err != nil {
		h.fail(w, r, "RemoveRecipeLine", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeDTO(rec))
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (req ProductRequest) input() catalog.ProductInput {
	return catalog.ProductInput{
		Name:         req.Name,
		HasRecipe:    req.HasRecipe,
		RecipeID:     inventory.RecipeID(req.RecipeID),
		PurchaseCost: req.PurchaseCost,
		SalePrice:    req.SalePrice,
		Stock:        req.Stock,
		SaleUnit:     req.SaleUnit,
		Active:       req.Active,
	}
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.ListProducts(r.Context(), tenant.IDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "ListProducts", err)
		return
	}
	dtos := make([]ProductDTO, len(products))
	for i := range products {
		dtos[i] = toProductDTO(&products[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Catalog.CreateProduct(r.Context(), tenant.IDFromContext(r.Context()), req.input())
	if err != nil {
		h.fail(w, r, "CreateProduct", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))
	p, err := h.Catalog.GetProduct(r.Context(), tenant.IDFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "GetProduct", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := inventory.ProductID(chi.URLParam(r, "id"))
	p, err := h.Catalog.UpdateProduct(r.Context(), tenant.IDFromContext(r.Context()), id, req.input())
	if err != nil {
		h.fail(w, r, "UpdateProduct", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// PossibleStock reports how many units can be sold now: the recipe's
// limiting ingredient for recipe products, the stock otherwise.
func (h *Handler) PossibleStock(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))
	units, err := h.Catalog.PossibleStock(r.Context(), tenant.IDFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "PossibleStock", err)
		return
	}
	writeJSON(w, http.StatusOK, PossibleStockDTO{ProductID: string(id), Units: units})
}
