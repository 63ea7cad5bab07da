package api

import (
	"net/http"

	"github.com/storefront/ecommerce-go-app/internal/models"
)

// GetCartHandler handles GET /api/users/{id}/cart
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	cart, err := a.cartService.ViewCart(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// AddToCartHandler handles POST /api/users/{id}/cart
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req models.AddToCartRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cart, err := a.cartService.AddToCart(r.Context(), actor(r), id, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// ClearCartHandler handles POST /api/users/{id}/cart/clear
func (a *App) ClearCartHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	cart, err := a.cartService.ClearCart(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// RemoveFromCartHandler handles DELETE /api/users/{id}/cart/{productId}
func (a *App) RemoveFromCartHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "productId", "product")
	if !ok {
		return
	}
	cart, err := a.cartService.RemoveFromCart(r.Context(), actor(r), id, productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// CreateOrderHandler handles POST /api/users/{id}/orders
func (a *App) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	order, err := a.orderService.CreateOrder(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// ListUserOrdersHandler handles GET /api/users/{id}/orders
func (a *App) ListUserOrdersHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	orders, err := a.orderService.ListUserOrders(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// ListOrdersHandler handles GET /api/orders
func (a *App) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := a.orderService.ListOrders(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrderHandler handles GET /api/orders/{id}
func (a *App) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	order, err := a.orderService.GetOrder(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// UpdateOrderStatusHandler handles PATCH /api/orders/{id}
func (a *App) UpdateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	var req models.UpdateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := a.orderService.UpdateStatus(r.Context(), actor(r), id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// DeleteOrderHandler handles DELETE /api/orders/{id}
func (a *App) DeleteOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	if err := a.orderService.DeleteOrder(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
