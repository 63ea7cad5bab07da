package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
)

func TestIsEndedFollowsQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lamp := f.seedProduct(t, "Desk Lamp", "10.00", 3)

	check := func(wantQty int) {
		t.Helper()
		p := f.stock(t, lamp)
		assert.Equal(t, wantQty, p.Quantity)
		assert.Equal(t, p.Quantity == 0, p.IsEnded, "is_ended must mirror quantity == 0")
	}
	check(3)

	require.NoError(t, f.inventory.UpdateQuantity(ctx, f.db, lamp, 0))
	check(0)

	require.NoError(t, f.inventory.UpdateQuantity(ctx, f.db, lamp, 4))
	check(4)

	// Writing the same value again is still a successful update
	require.NoError(t, f.inventory.UpdateQuantity(ctx, f.db, lamp, 4))
	check(4)

	n, err := f.inventory.DecreaseQuantity(ctx, f.db, lamp, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	check(0)

	n, err = f.inventory.IncreaseQuantity(ctx, f.db, lamp, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	check(2)

	n, err = f.inventory.DecreaseQuantity(ctx, f.db, lamp, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	check(1)
}

func TestDecreaseQuantityNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lamp := f.seedProduct(t, "Desk Lamp", "10.00", 3)

	_, err := f.inventory.DecreaseQuantity(ctx, f.db, lamp, 4)
	assert.True(t, apperr.Is(err, apperr.KindStock), "got %v", err)
	assert.Contains(t, err.Error(), "available 3")

	p := f.stock(t, lamp)
	assert.Equal(t, 3, p.Quantity)
	assert.False(t, p.IsEnded)
}

func TestInventoryRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lamp := f.seedProduct(t, "Desk Lamp", "10.00", 3)

	assert.True(t, apperr.Is(f.inventory.UpdateQuantity(ctx, f.db, lamp, -1), apperr.KindValidation))

	_, err := f.inventory.IncreaseQuantity(ctx, f.db, lamp, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.inventory.DecreaseQuantity(ctx, f.db, lamp, -3)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	assert.True(t, apperr.Is(f.inventory.UpdateQuantity(ctx, f.db, 9999, 1), apperr.KindNotFound))

	_, err = f.inventory.IncreaseQuantity(ctx, f.db, 9999, 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.inventory.DecreaseQuantity(ctx, f.db, 9999, 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.Equal(t, 3, f.stock(t, lamp).Quantity)
}
