package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the authorization role of a user
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// OrderStatus is a state of the order state machine
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusShipping  OrderStatus = "shipping"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusShipping, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// User represents a user account with its shipping profile
type User struct {
	ID        int64     `json:"id" db:"id"`
	FirstName string    `json:"firstName" db:"first_name"`
	LastName  string    `json:"lastName" db:"last_name"`
	Username  string    `json:"username" db:"username"`
	Password  string    `json:"-" db:"password_hash"`
	Phone     string    `json:"phone" db:"phone"`
	Email     string    `json:"email" db:"email"`
	Country   string    `json:"country" db:"country"`
	City      string    `json:"city" db:"city"`
	Street    string    `json:"street" db:"street"`
	House     int       `json:"house" db:"house"`
	Apartment *int      `json:"apartment" db:"apartment"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CartLine is one {productId, quantity} entry of a user's cart
type CartLine struct {
	ProductID int64 `json:"productId" db:"product_id"`
	Quantity  int   `json:"quantity" db:"quantity"`
}

// CartLineView is a cart line expanded with the live product record
type CartLineView struct {
	CartLine
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	InStock   int             `json:"inStock"`
	IsEnded   bool            `json:"isEnded"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// CartResponse represents a cart with its lines
type CartResponse struct {
	UserID int64           `json:"userId"`
	Lines  []CartLineView  `json:"cart"`
	Total  decimal.Decimal `json:"total"`
}

// Category represents a catalog grouping
type Category struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
}

// Product represents a catalog item with stock
type Product struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	ImagePath   string          `json:"imagePath" db:"image_path"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Quantity    int             `json:"quantity" db:"quantity"`
	IsEnded     bool            `json:"isEnded" db:"is_ended"`
	CategoryID  int64           `json:"categoryId" db:"category_id"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// OrderLine is the price snapshot of one ordered product
type OrderLine struct {
	ProductID       int64           `json:"productId" db:"product_id"`
	PriceAtPurchase decimal.Decimal `json:"priceAtPurchase" db:"price_at_purchase"`
	Quantity        int             `json:"quantity" db:"quantity"`
}

// Order represents a purchase snapshot
type Order struct {
	ID         int64           `json:"id" db:"id"`
	UserID     int64           `json:"userId" db:"user_id"`
	Lines      []OrderLine     `json:"products"`
	Status     OrderStatus     `json:"status" db:"status"`
	TotalPrice decimal.Decimal `json:"totalPrice" db:"total_price"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time       `json:"updatedAt" db:"updated_at"`
}

// TotalQuantity returns the number of items across all lines.
func (o *Order) TotalQuantity() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// RegisterRequest represents a request to create a user account
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
	City      string `json:"city"`
	Street    string `json:"street"`
	House     int    `json:"house"`
	Apartment *int   `json:"apartment"`
}

// LoginRequest represents a credential check
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateUserRequest is a partial profile update; nil fields are left as they are
type UpdateUserRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Username  *string `json:"username"`
	Password  *string `json:"password"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Country   *string `json:"country"`
	City      *string `json:"city"`
	Street    *string `json:"street"`
	House     *int    `json:"house"`
	Apartment *int    `json:"apartment"`
	Role      *Role   `json:"role"`
}

// AddToCartRequest represents a request to add item to cart
type AddToCartRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// UpdateStatusRequest represents an order status change
type UpdateStatusRequest struct {
	Status OrderStatus `json:"status"`
}

// ProductInput carries product fields for create and update
type ProductInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	ImagePath   *string          `json:"imagePath"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    *int             `json:"quantity"`
	CategoryID  *int64           `json:"categoryId"`
}

// CategoryInput carries category fields for create and update
type CategoryInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// QuantityChangeRequest represents an admin stock adjustment
type QuantityChangeRequest struct {
	Amount int `json:"amount"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    *User  `json:"user,omitempty"`
}
