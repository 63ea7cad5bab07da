package api

import (
	"context"
	"net/http"

	"github.com/storefront/ecommerce-go-app/internal/auth"
	"github.com/storefront/ecommerce-go-app/internal/models"
	"github.com/storefront/ecommerce-go-app/internal/services"
)

// ListProductsHandler handles GET /api/products?categoryId=&limit=&offset=
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	filter := services.ProductFilter{
		CategoryID: int64(queryInt(r, "categoryId", 0)),
		Limit:      queryInt(r, "limit", 20),
		Offset:     queryInt(r, "offset", 0),
	}
	products, err := a.productService.ListProducts(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// ListActualProductsHandler handles GET /api/products/actual
func (a *App) ListActualProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := a.productService.ListActualProducts(r.Context(), queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProductHandler handles GET /api/products/{id}
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	product, err := a.productService.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// CreateProductHandler handles POST /api/products
func (a *App) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var in models.ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	product, err := a.productService.CreateProduct(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

// UpdateProductHandler handles PATCH /api/products/{id}
func (a *App) UpdateProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	var in models.ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	product, err := a.productService.UpdateProduct(r.Context(), actor(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// DeleteProductHandler handles DELETE /api/products/{id}
func (a *App) DeleteProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	if err := a.productService.DeleteProduct(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IncreaseQuantityHandler handles PATCH /api/products/{id}/increase-quantity
func (a *App) IncreaseQuantityHandler(w http.ResponseWriter, r *http.Request) {
	a.changeQuantity(w, r, a.productService.IncreaseQuantity)
}

// DecreaseQuantityHandler handles PATCH /api/products/{id}/decrease-quantity
func (a *App) DecreaseQuantityHandler(w http.ResponseWriter, r *http.Request) {
	a.changeQuantity(w, r, a.productService.DecreaseQuantity)
}

type quantityChange func(ctx context.Context, actor auth.Actor, id int64, amount int) (*models.Product, error)

func (a *App) changeQuantity(w http.ResponseWriter, r *http.Request, change quantityChange) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	var req models.QuantityChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	product, err := change(r.Context(), actor(r), id, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// ListCategoriesHandler handles GET /api/categories
func (a *App) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := a.categoryService.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// GetCategoryHandler handles GET /api/categories/{id}
func (a *App) GetCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "category")
	if !ok {
		return
	}
	category, err := a.categoryService.GetCategory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

// ListCategoryProductsHandler handles GET /api/categories/{id}/products
func (a *App) ListCategoryProductsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "category")
	if !ok {
		return
	}
	products, err := a.categoryService.ListCategoryProducts(r.Context(), id, queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// CreateCategoryHandler handles POST /api/categories
func (a *App) CreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var in models.CategoryInput
	if !decodeBody(w, r, &in) {
		return
	}
	category, err := a.categoryService.CreateCategory(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

// UpdateCategoryHandler handles PATCH /api/categories/{id}
func (a *App) UpdateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "category")
	if !ok {
		return
	}
	var in models.CategoryInput
	if !decodeBody(w, r, &in) {
		return
	}
	category, err := a.categoryService.UpdateCategory(r.Context(), actor(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

// DeleteCategoryHandler handles DELETE /api/categories/{id}
func (a *App) DeleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "category")
	if !ok {
		return
	}
	if err := a.categoryService.DeleteCategory(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
