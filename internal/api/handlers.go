package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
	"github.com/storefront/ecommerce-go-app/internal/auth"
	"github.com/storefront/ecommerce-go-app/internal/db"
	"github.com/storefront/ecommerce-go-app/internal/metrics"
	"github.com/storefront/ecommerce-go-app/internal/middleware"
	"github.com/storefront/ecommerce-go-app/internal/services"
)

// App holds application dependencies
type App struct {
	db              *db.DB
	metrics         *metrics.AppMetrics
	tokens          *auth.TokenManager
	gate            *middleware.Authenticator
	userService     *services.UserService
	productService  *services.ProductService
	categoryService *services.CategoryService
	cartService     *services.CartService
	orderService    *services.OrderService
}

// NewApp creates a new application instance
func NewApp(
	database *db.DB,
	m *metrics.AppMetrics,
	tokens *auth.TokenManager,
	us *services.UserService,
	ps *services.ProductService,
	cats *services.CategoryService,
	cs *services.CartService,
	os *services.OrderService,
) *App {
	return &App{
		db:              database,
		metrics:         m,
		tokens:          tokens,
		gate:            middleware.NewAuthenticator(tokens, us, m),
		userService:     us,
		productService:  ps,
		categoryService: cats,
		cartService:     cs,
		orderService:    os,
	}
}

// Handler returns the router with every middleware applied. CORS sits outside
// the router so preflight requests never reach route matching.
func (a *App) Handler() http.Handler {
	r := mux.NewRouter()
	a.SetupRoutes(r)
	return middleware.CORSMiddleware(r)
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.ErrorHandlerMiddleware)
	r.Use(middleware.MetricsMiddleware(a.metrics))

	api := r.PathPrefix("/api").Subrouter()
	private := func(h http.HandlerFunc) http.Handler { return a.gate.Require(h) }

	// Users
	api.HandleFunc("/users/register", a.RegisterHandler).Methods(http.MethodPost)
	api.HandleFunc("/users/login", a.LoginHandler).Methods(http.MethodPost)
	api.HandleFunc("/users/logout", a.LogoutHandler).Methods(http.MethodPost)
	api.Handle("/users", private(a.ListUsersHandler)).Methods(http.MethodGet)
	api.Handle("/users/{id}", private(a.GetUserHandler)).Methods(http.MethodGet)
	api.Handle("/users/{id}", private(a.UpdateUserHandler)).Methods(http.MethodPatch)
	api.Handle("/users/{id}", private(a.DeleteUserHandler)).Methods(http.MethodDelete)

	// Cart
	api.Handle("/users/{id}/cart", private(a.GetCartHandler)).Methods(http.MethodGet)
	api.Handle("/users/{id}/cart", private(a.AddToCartHandler)).Methods(http.MethodPost)
	api.Handle("/users/{id}/cart/clear", private(a.ClearCartHandler)).Methods(http.MethodPost)
	api.Handle("/users/{id}/cart/{productId}", private(a.RemoveFromCartHandler)).Methods(http.MethodDelete)

	// Orders
	api.Handle("/users/{id}/orders", private(a.CreateOrderHandler)).Methods(http.MethodPost)
	api.Handle("/users/{id}/orders", private(a.ListUserOrdersHandler)).Methods(http.MethodGet)
	api.Handle("/orders", private(a.ListOrdersHandler)).Methods(http.MethodGet)
	api.Handle("/orders/{id}", private(a.GetOrderHandler)).Methods(http.MethodGet)
	api.Handle("/orders/{id}", private(a.UpdateOrderStatusHandler)).Methods(http.MethodPatch)
	api.Handle("/orders/{id}", private(a.DeleteOrderHandler)).Methods(http.MethodDelete)

	// Products
	api.HandleFunc("/products", a.ListProductsHandler).Methods(http.MethodGet)
	api.HandleFunc("/products/actual", a.ListActualProductsHandler).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", a.GetProductHandler).Methods(http.MethodGet)
	api.Handle("/products", private(a.CreateProductHandler)).Methods(http.MethodPost)
	api.Handle("/products/{id}", private(a.UpdateProductHandler)).Methods(http.MethodPatch)
	api.Handle("/products/{id}", private(a.DeleteProductHandler)).Methods(http.MethodDelete)
	api.Handle("/products/{id}/increase-quantity", private(a.IncreaseQuantityHandler)).Methods(http.MethodPatch)
	api.Handle("/products/{id}/decrease-quantity", private(a.DecreaseQuantityHandler)).Methods(http.MethodPatch)

	// Categories
	api.HandleFunc("/categories", a.ListCategoriesHandler).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}", a.GetCategoryHandler).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}/products", a.ListCategoryProductsHandler).Methods(http.MethodGet)
	api.Handle("/categories", private(a.CreateCategoryHandler)).Methods(http.MethodPost)
	api.Handle("/categories/{id}", private(a.UpdateCategoryHandler)).Methods(http.MethodPatch)
	api.Handle("/categories/{id}", private(a.DeleteCategoryHandler)).Methods(http.MethodDelete)

	// Health
	r.HandleFunc("/health", a.HealthHandler).Methods(http.MethodGet)
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.db.PingContext(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeError answers with the status of the error kind. Internal causes are
// logged and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFrom(r.Context()),
		)
	}
	writeMessage(w, status, apperr.PublicMessage(err))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// actor returns the caller set by the Authenticator. Private routes always have one.
func actor(r *http.Request) auth.Actor {
	a, _ := middleware.ActorFrom(r.Context())
	return a
}

func pathID(w http.ResponseWriter, r *http.Request, name, what string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid "+what+" ID")
		return 0, false
	}
	return id, true
}

// userID resolves the {id} of a user route; the literal "me" is the caller.
func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if mux.Vars(r)["id"] == "me" {
		return actor(r).UserID, true
	}
	return pathID(w, r, "id", "user")
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
