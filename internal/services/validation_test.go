package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"Passw0rd!", true},
		{"Abcdef1#", true},
		{"Abcde1#", false},    // too short
		{"passw0rd!", false},  // no upper case
		{"PASSW0RD!", false},  // no lower case
		{"Password!", false},  // no digit
		{"Passw0rdd", false},  // no symbol
		{"Pässw0rd!", false},  // non-ascii letter
		{"Pass w0rd!", false}, // space
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := validatePassword("test", tt.password)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
			}
		})
	}
}

func TestFieldChecks(t *testing.T) {
	tests := []struct {
		name  string
		check fieldCheck
		ok    bool
	}{
		{"first name", firstNameCheck("Mary-Jane O'Neil"), true},
		{"first name digits", firstNameCheck("R2D2"), false},
		{"empty last name", lastNameCheck(""), false},
		{"username", usernameCheck("alice42"), true},
		{"username leading digit", usernameCheck("1alice"), false},
		{"username too long", usernameCheck("abcdefghijklmnopq"), false},
		{"phone", phoneCheck("+48123456789"), true},
		{"phone too short", phoneCheck("+12345678"), false},
		{"email", emailCheck("a.b+c@mail.example.org"), true},
		{"email without tld", emailCheck("alice@localhost"), false},
		{"street", placeCheck("Street", "St. John's Road"), true},
		{"street digits", placeCheck("Street", "5th Avenue"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check.check("test")
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
			}
		})
	}
}

func TestProductFieldValidation(t *testing.T) {
	assert.NoError(t, validateProductName("test", "LED Bulb (E27) 9W"))
	assert.Error(t, validateProductName("test", "-Lamp"))
	assert.Error(t, validateProductName("test", "Lamp!"))

	assert.NoError(t, validateProductDescription("test", `Warm white, 806 lm. Fits "E27" sockets!`))
	assert.Error(t, validateProductDescription("test", "Short one"))

	assert.NoError(t, validatePrice("test", dec("0.01")))
	assert.Error(t, validatePrice("test", dec("0.001")))
	assert.Error(t, validatePrice("test", dec("-1")))

	assert.NoError(t, validateStock("test", 0))
	assert.Error(t, validateStock("test", -1))

	assert.NoError(t, validateCategoryName("test", "Home_and-Garden 2"))
	assert.Error(t, validateCategoryName("test", "Home & Garden"))

	assert.NoError(t, validateAmount("test", 1))
	assert.Error(t, validateAmount("test", 0))
}

func TestValidateRoleAndAddress(t *testing.T) {
	assert.NoError(t, validateRole("test", "admin"))
	assert.Error(t, validateRole("test", "Admin"))
	assert.Error(t, validateHouse("test", 0))
	assert.NoError(t, validateApartment("test", nil))
	assert.Error(t, validateApartment("test", ptr(-4)))
}
