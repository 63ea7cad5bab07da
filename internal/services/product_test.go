package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
	"github.com/storefront/ecommerce-go-app/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestCreateProductValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.seedUser(t, "alice")

	valid := func() models.ProductInput {
		return models.ProductInput{
			Name:        ptr("Floor Lamp"),
			Description: ptr("Tall lamp for the living room."),
			Price:       ptr(dec("49.90")),
			Quantity:    ptr(2),
			CategoryID:  ptr(f.categoryID),
		}
	}

	p, err := f.products.CreateProduct(ctx, f.admin, valid())
	require.NoError(t, err)
	assert.False(t, p.IsEnded)
	assert.NotZero(t, p.ID)

	tests := []struct {
		name   string
		actor  bool // true = admin
		mutate func(*models.ProductInput)
		want   apperr.Kind
	}{
		{"non admin", false, func(in *models.ProductInput) {}, apperr.KindAccessDenied},
		{"duplicate name", true, func(in *models.ProductInput) {}, apperr.KindValidation},
		{"missing price", true, func(in *models.ProductInput) { in.Name = ptr("Other Lamp"); in.Price = nil }, apperr.KindValidation},
		{"zero price", true, func(in *models.ProductInput) { in.Name = ptr("Other Lamp"); in.Price = ptr(dec("0")) }, apperr.KindValidation},
		{"negative quantity", true, func(in *models.ProductInput) { in.Name = ptr("Other Lamp"); in.Quantity = ptr(-1) }, apperr.KindValidation},
		{"short name", true, func(in *models.ProductInput) { in.Name = ptr("Lm") }, apperr.KindValidation},
		{"short description", true, func(in *models.ProductInput) { in.Name = ptr("Other Lamp"); in.Description = ptr("Too short") }, apperr.KindValidation},
		{"unknown category", true, func(in *models.ProductInput) { in.Name = ptr("Other Lamp"); in.CategoryID = ptr(int64(9999)) }, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			actor := alice
			if tt.actor {
				actor = f.admin
			}
			_, err := f.products.CreateProduct(ctx, actor, in)
			assert.True(t, apperr.Is(err, tt.want), "got %v", err)
		})
	}
	assert.Equal(t, 1, f.count(t, "products"))
}

func TestCreateProductWithoutStockIsEnded(t *testing.T) {
	f := newFixture(t)
	id := f.seedProduct(t, "Desk Lamp", "10.00", 0)
	assert.True(t, f.stock(t, id).IsEnded)
}

func TestGetProductReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lamp := f.seedProduct(t, "Desk Lamp", "10.00", 5)

	_, hit := f.cache.Get(ctx, lamp)
	require.False(t, hit)

	p, err := f.products.GetProduct(ctx, lamp)
	require.NoError(t, err)
	assert.Equal(t, "Desk Lamp", p.Name)

	cached, hit := f.cache.Get(ctx, lamp)
	require.True(t, hit)
	assert.Equal(t, 5, cached.Quantity)

	_, err = f.products.IncreaseQuantity(ctx, f.admin, lamp, 3)
	require.NoError(t, err)
	_, hit = f.cache.Get(ctx, lamp)
	assert.False(t, hit, "stock changes invalidate the cache")

	p, err = f.products.GetProduct(ctx, lamp)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Quantity)

	_, err = f.products.GetProduct(ctx, 9999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestOrderInvalidatesCachedProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.seedUser(t, "alice")
	lamp := f.seedProduct(t, "Desk Lamp", "10.00", 5)

	_, err := f.products.GetProduct(ctx, lamp)
	require.NoError(t, err)
	f.placeOrder(t, alice, lamp, 2)

	p, err := f.products.GetProduct(ctx, lamp)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Quantity)
}

func TestUpdateProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.seedUser(t, "alice")
	lamp := f.seedProduct(t, "Desk Lamp", "10.00", 5)
	f.seedProduct(t, "Bulb", "2.50", 10)

	p, err := f.products.UpdateProduct(ctx, f.admin, lamp, models.ProductInput{
		Description: ptr("A brighter lamp for the desk."),
		Quantity:    ptr(0),
	})
	require.NoError(t, err)
	assert.Equal(t, "A brighter lamp for the desk.", p.Description)
	assert.Equal(t, 0, p.Quantity)
	assert.True(t, p.IsEnded)
	assert.True(t, p.Price.Equal(dec("10")))

	_, err = f.products.UpdateProduct(ctx, f.admin, lamp, models.ProductInput{Name: ptr("Bulb")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.products.UpdateProduct(ctx, alice, lamp, models.ProductInput{Quantity: ptr(9)})
	assert.True(t, apperr.Is(err, apperr.KindAccessDenied))

	_, err = f.products.UpdateProduct(ctx, f.admin, 9999, models.ProductInput{Quantity: ptr(9)})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAdminQuantityEndpoints(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.seedUser(t, "alice")
	lamp := f.seedProduct(t, "Desk Lamp", "10.00", 5)

	p, err := f.products.DecreaseQuantity(ctx, f.admin, lamp, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Quantity)
	assert.True(t, p.IsEnded)

	_, err = f.products.DecreaseQuantity(ctx, f.admin, lamp, 1)
	assert.True(t, apperr.Is(err, apperr.KindStock))

	p, err = f.products.IncreaseQuantity(ctx, f.admin, lamp, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Quantity)
	assert.False(t, p.IsEnded)

	_, err = f.products.IncreaseQuantity(ctx, alice, lamp, 2)
	assert.True(t, apperr.Is(err, apperr.KindAccessDenied))
}

func TestListProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedProduct(t, "Desk Lamp", "10.00", 5)
	f.seedProduct(t, "Old Lamp", "8.00", 0)

	other, err := f.categories.CreateCategory(ctx, f.admin, models.CategoryInput{Name: ptr("Garden")})
	require.NoError(t, err)
	descr := "Waters the garden well."
	_, err = f.products.CreateProduct(ctx, f.admin, models.ProductInput{
		Name: ptr("Hose"), Description: &descr, Price: ptr(dec("15")), Quantity: ptr(1), CategoryID: &other.ID,
	})
	require.NoError(t, err)

	all, err := f.products.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	actual, err := f.products.ListActualProducts(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, actual, 2)
	for _, p := range actual {
		assert.False(t, p.IsEnded)
	}

	garden, err := f.products.ListProducts(ctx, ProductFilter{CategoryID: other.ID})
	require.NoError(t, err)
	require.Len(t, garden, 1)
	assert.Equal(t, "Hose", garden[0].Name)

	page, err := f.products.ListProducts(ctx, ProductFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Old Lamp", page[0].Name)
}

func TestDeleteProductDropsCartLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.seedUser(t, "alice")
	lamp := f.seedProduct(t, "Desk Lamp", "10.00", 5)
	f.addToCart(t, alice, lamp, 1)

	require.NoError(t, f.products.DeleteProduct(ctx, f.admin, lamp))
	assert.Equal(t, 0, f.count(t, "cart_lines"))

	err := f.products.DeleteProduct(ctx, f.admin, lamp)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
