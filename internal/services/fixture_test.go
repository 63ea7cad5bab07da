package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/storefront/ecommerce-go-app/internal/auth"
	"github.com/storefront/ecommerce-go-app/internal/cache"
	"github.com/storefront/ecommerce-go-app/internal/db"
	"github.com/storefront/ecommerce-go-app/internal/dbtest"
	"github.com/storefront/ecommerce-go-app/internal/models"
)

type publishedEvent struct {
	topic string
	key   string
	event any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic, key, event})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.topic
	}
	return out
}

type fixture struct {
	db         *db.DB
	cache      *cache.MemoryCache
	pub        *recordingPublisher
	inventory  *Inventory
	users      *UserService
	products   *ProductService
	categories *CategoryService
	carts      *CartService
	orders     *OrderService

	admin      auth.Actor
	categoryID int64
	seq        int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := dbtest.Open(t)
	m := dbtest.Metrics(t)

	f := &fixture{
		db:        d,
		cache:     cache.NewMemoryCache(time.Minute),
		pub:       &recordingPublisher{},
		inventory: NewInventory(m),
	}
	f.users = NewUserService(d, m, auth.NewHasher(bcrypt.MinCost), auth.NewTokenManager("test-secret", time.Hour))
	f.products = NewProductService(d, m, f.cache, f.inventory)
	f.categories = NewCategoryService(d, m, f.products)
	f.carts = NewCartService(d, m)
	f.orders = NewOrderService(d, m, f.inventory, f.cache, f.pub)

	f.admin = f.seedUser(t, "admin")
	_, err := d.Exec("UPDATE users SET role = 'admin' WHERE id = ?", f.admin.UserID)
	require.NoError(t, err)
	f.admin.Role = models.RoleAdmin

	name := "Lighting"
	cat, err := f.categories.CreateCategory(context.Background(), f.admin, models.CategoryInput{Name: &name})
	require.NoError(t, err)
	f.categoryID = cat.ID
	return f
}

func registerRequest(username string, n int) models.RegisterRequest {
	return models.RegisterRequest{
		FirstName: "Test",
		LastName:  "User",
		Username:  username,
		Password:  "Passw0rd!",
		Email:     username + "@example.com",
		Phone:     fmt.Sprintf("+1555000%04d", n),
		Country:   "Poland",
		City:      "Warsaw",
		Street:    "Main Street",
		House:     1,
	}
}

// seedUser registers a user with the user role.
func (f *fixture) seedUser(t *testing.T, username string) auth.Actor {
	t.Helper()
	f.seq++
	u, _, err := f.users.Register(context.Background(), registerRequest(username, f.seq))
	require.NoError(t, err)
	return auth.Actor{UserID: u.ID, Role: u.Role}
}

// seedProduct creates a product in the fixture category.
func (f *fixture) seedProduct(t *testing.T, name, price string, quantity int) int64 {
	t.Helper()
	descr := "A fine product for testing."
	p := decimal.RequireFromString(price)
	p2, err := f.products.CreateProduct(context.Background(), f.admin, models.ProductInput{
		Name:        &name,
		Description: &descr,
		Price:       &p,
		Quantity:    &quantity,
		CategoryID:  &f.categoryID,
	})
	require.NoError(t, err)
	return p2.ID
}

// stock reads a product straight from the store, bypassing the cache.
func (f *fixture) stock(t *testing.T, productID int64) *models.Product {
	t.Helper()
	p, err := queryProduct(context.Background(), f.db, f.inventory.metrics, "test", productID)
	require.NoError(t, err)
	return p
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func (f *fixture) addToCart(t *testing.T, actor auth.Actor, productID int64, quantity int) {
	t.Helper()
	_, err := f.carts.AddToCart(context.Background(), actor, actor.UserID, productID, quantity)
	require.NoError(t, err)
}

// placeOrder puts quantity of productID in the actor's cart and orders it.
func (f *fixture) placeOrder(t *testing.T, actor auth.Actor, productID int64, quantity int) *models.Order {
	t.Helper()
	f.addToCart(t, actor, productID, quantity)
	order, err := f.orders.CreateOrder(context.Background(), actor, actor.UserID)
	require.NoError(t, err)
	return order
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
