package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
	"github.com/storefront/ecommerce-go-app/internal/models"
)

func TestCategoryLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.seedUser(t, "alice")

	garden, err := f.categories.CreateCategory(ctx, f.admin, models.CategoryInput{Name: ptr("Garden")})
	require.NoError(t, err)
	assert.Equal(t, defaultCategoryDescription, garden.Description)

	_, err = f.categories.CreateCategory(ctx, f.admin, models.CategoryInput{Name: ptr("Garden")})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "duplicate name: %v", err)

	_, err = f.categories.CreateCategory(ctx, f.admin, models.CategoryInput{Name: ptr("Bad/Name")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.categories.CreateCategory(ctx, alice, models.CategoryInput{Name: ptr("Kitchen")})
	assert.True(t, apperr.Is(err, apperr.KindAccessDenied))

	updated, err := f.categories.UpdateCategory(ctx, f.admin, garden.ID, models.CategoryInput{Description: ptr("Outdoor things")})
	require.NoError(t, err)
	assert.Equal(t, "Garden", updated.Name)
	assert.Equal(t, "Outdoor things", updated.Description)

	_, err = f.categories.UpdateCategory(ctx, f.admin, garden.ID, models.CategoryInput{Name: ptr("Lighting")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	list, err := f.categories.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Garden", list[0].Name)
	assert.Equal(t, "Lighting", list[1].Name)

	require.NoError(t, f.categories.DeleteCategory(ctx, f.admin, garden.ID))
	_, err = f.categories.GetCategory(ctx, garden.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(f.categories.DeleteCategory(ctx, f.admin, garden.ID), apperr.KindNotFound))
}

func TestListCategoryProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedProduct(t, "Desk Lamp", "10.00", 5)
	f.seedProduct(t, "Bulb", "2.50", 0)

	products, err := f.categories.ListCategoryProducts(ctx, f.categoryID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	_, err = f.categories.ListCategoryProducts(ctx, 9999, 0, 0)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteCategoryKeepsProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lamp := f.seedProduct(t, "Desk Lamp", "10.00", 5)

	require.NoError(t, f.categories.DeleteCategory(ctx, f.admin, f.categoryID))

	p, err := f.products.GetProduct(ctx, lamp)
	require.NoError(t, err)
	assert.Equal(t, f.categoryID, p.CategoryID)
}
