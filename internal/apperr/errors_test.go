package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("users.Register", "bad email"), http.StatusBadRequest},
		{NotFound("orders.Get", "order"), http.StatusNotFound},
		{Stock("cart.Add", "not enough"), http.StatusBadRequest},
		{E(KindEmptyCart, "orders.Create", "cart is empty"), http.StatusBadRequest},
		{InvalidTransition("orders.UpdateStatus", "completed", "pending"), http.StatusBadRequest},
		{AccessDenied("orders.Get", "not yours"), http.StatusForbidden},
		{E(KindUnauthenticated, "auth", "token missing"), http.StatusUnauthorized},
		{Internal("orders.Create", sql.ErrConnDone), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", NotFound("products.Get", "product"))

	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindStock))
	assert.Equal(t, "product not found", PublicMessage(err))
}

func TestInternalMessageIsHidden(t *testing.T) {
	err := Internal("orders.Create", errors.New("dial tcp 10.0.0.1:3306: refused"))

	assert.Equal(t, "internal server error", PublicMessage(err))
	assert.ErrorIs(t, err, err.Err)
	assert.Contains(t, err.Error(), "refused")
}
