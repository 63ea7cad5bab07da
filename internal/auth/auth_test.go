package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/storefront/ecommerce-go-app/internal/models"
)

func TestDecide(t *testing.T) {
	owner := Actor{UserID: 7, Role: models.RoleUser}
	stranger := Actor{UserID: 8, Role: models.RoleUser}
	admin := Actor{UserID: 1, Role: models.RoleAdmin}
	anonymous := Actor{}

	order := Resource{Kind: ResourceOrder, OwnerID: 7}
	cart := Resource{Kind: ResourceCart, OwnerID: 7}
	catalog := Resource{Kind: ResourceCatalog}

	tests := []struct {
		name   string
		actor  Actor
		res    Resource
		action Action
		want   Decision
	}{
		{"owner reads order", owner, order, ActionRead, Allow},
		{"owner cancels order", owner, order, ActionOrderCancel, Allow},
		{"owner cannot fulfil order", owner, order, ActionOrderFulfil, Deny},
		{"owner cannot delete order", owner, order, ActionDelete, Deny},
		{"stranger cannot read order", stranger, order, ActionRead, Deny},
		{"stranger cannot write cart", stranger, cart, ActionCartWrite, Deny},
		{"owner writes cart", owner, cart, ActionCartWrite, Allow},
		{"admin fulfils any order", admin, order, ActionOrderFulfil, Allow},
		{"admin deletes any order", admin, order, ActionDelete, Allow},
		{"anyone reads catalog", anonymous, catalog, ActionRead, Allow},
		{"user cannot manage catalog", owner, catalog, ActionManage, Deny},
		{"admin manages catalog", admin, catalog, ActionManage, Allow},
		{"user cannot change own role", owner, Resource{Kind: ResourceUser, OwnerID: 7}, ActionChangeRole, Deny},
		{"user cannot list users", owner, Resource{Kind: ResourceUserList}, ActionRead, Deny},
		{"anonymous owns nothing", anonymous, Resource{Kind: ResourceCart}, ActionRead, Deny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.actor, tt.res, tt.action))
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	token, err := m.Issue(42)
	require.NoError(t, err)

	id, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestTokenRejectsForeignSignature(t *testing.T) {
	token, err := NewTokenManager("one", time.Hour).Issue(42)
	require.NoError(t, err)

	_, err = NewTokenManager("two", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpires(t *testing.T) {
	m := NewTokenManager("secret", time.Minute)
	issued := time.Now().Add(-2 * time.Minute)
	m.now = func() time.Time { return issued }

	token, err := m.Issue(42)
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejectsGarbage(t *testing.T) {
	_, err := NewTokenManager("secret", time.Hour).Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("Sup3r$ecret")
	require.NoError(t, err)

	assert.NotEqual(t, "Sup3r$ecret", hash)
	assert.True(t, h.Matches(hash, "Sup3r$ecret"))
	assert.False(t, h.Matches(hash, "wrong"))
}
