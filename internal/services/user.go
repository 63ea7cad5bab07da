package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
	"github.com/storefront/ecommerce-go-app/internal/auth"
	"github.com/storefront/ecommerce-go-app/internal/db"
	"github.com/storefront/ecommerce-go-app/internal/metrics"
	"github.com/storefront/ecommerce-go-app/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// UserService handles user-related operations
type UserService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	hasher  *auth.Hasher
	tokens  *auth.TokenManager
}

// NewUserService creates a new user service
func NewUserService(db *db.DB, metrics *metrics.AppMetrics, hasher *auth.Hasher, tokens *auth.TokenManager) *UserService {
	return &UserService{
		db:      db,
		metrics: metrics,
		hasher:  hasher,
		tokens:  tokens,
	}
}

// Register creates a user account with the user role and returns a token for it
func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, string, error) {
	const op = "users.Register"
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := validateRegister(op, &req); err != nil {
		return nil, "", err
	}
	if err := s.checkBusy(ctx, op, 0, req.Username, req.Email, req.Phone); err != nil {
		return nil, "", err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, "", apperr.Internal(op, err)
	}

	ts := now()
	u := &models.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Password:  hash,
		Phone:     req.Phone,
		Email:     req.Email,
		Country:   req.Country,
		City:      req.City,
		Street:    req.Street,
		House:     req.House,
		Apartment: req.Apartment,
		Role:      models.RoleUser,
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	start := time.Now()
	query := "INSERT INTO users (first_name, last_name, username, password_hash, phone, email, country, city, street, house, apartment, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	result, err := s.db.ExecContext(ctx, query, u.FirstName, u.LastName, u.Username, u.Password, u.Phone, u.Email,
		u.Country, u.City, u.Street, u.House, nullableInt(u.Apartment), u.Role, u.CreatedAt, u.UpdatedAt)
	s.metrics.RecordDBQuery(ctx, "INSERT", "users", query, start, err == nil)
	if db.IsDuplicate(err) {
		return nil, "", apperr.Validation(op, "Username, email or phone is already in use")
	}
	if err != nil {
		return nil, "", apperr.Internal(op, fmt.Errorf("failed to create user: %w", err))
	}
	if u.ID, err = result.LastInsertId(); err != nil {
		return nil, "", apperr.Internal(op, err)
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, "", apperr.Internal(op, err)
	}

	s.recordActive(ctx, u.ID)
	slog.InfoContext(ctx, "user registered", "user_id", u.ID)
	return u, token, nil
}

// Login checks the credentials and returns a fresh token
func (s *UserService) Login(ctx context.Context, req models.LoginRequest) (*models.User, string, error) {
	const op = "users.Login"
	invalid := apperr.E(apperr.KindUnauthenticated, op, "Invalid username or password")

	start := time.Now()
	query := "SELECT " + userColumns + " FROM users WHERE username = ?"
	u, err := scanUser(s.db.QueryRowContext(ctx, query, strings.TrimSpace(req.Username)))
	s.metrics.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", invalid
	}
	if err != nil {
		return nil, "", apperr.Internal(op, fmt.Errorf("failed to get user: %w", err))
	}
	if !s.hasher.Matches(u.Password, req.Password) {
		return nil, "", invalid
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, "", apperr.Internal(op, err)
	}
	s.recordActive(ctx, u.ID)
	return u, token, nil
}

// ResolveActor loads the current role of an authenticated user. A user that
// no longer exists is reported as unauthenticated.
func (s *UserService) ResolveActor(ctx context.Context, userID int64) (auth.Actor, error) {
	const op = "users.ResolveActor"
	start := time.Now()
	query := "SELECT role FROM users WHERE id = ?"
	var role models.Role
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&role)
	s.metrics.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Actor{}, apperr.E(apperr.KindUnauthenticated, op, "User of this token no longer exists")
	}
	if err != nil {
		return auth.Actor{}, apperr.Internal(op, fmt.Errorf("failed to get user role: %w", err))
	}
	return auth.Actor{UserID: userID, Role: role}, nil
}

// GetUser returns a user by ID
func (s *UserService) GetUser(ctx context.Context, actor auth.Actor, id int64) (*models.User, error) {
	const op = "users.Get"
	if !auth.Decide(actor, auth.Resource{Kind: auth.ResourceUser, OwnerID: id}, auth.ActionRead) {
		return nil, apperr.AccessDenied(op, "Access denied, you are not admin or this is not your account")
	}
	return s.getUser(ctx, op, id)
}

func (s *UserService) getUser(ctx context.Context, op string, id int64) (*models.User, error) {
	start := time.Now()
	query := "SELECT " + userColumns + " FROM users WHERE id = ?"
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	s.metrics.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(op, "user")
	}
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to get user: %w", err))
	}
	return u, nil
}

// ListUsers returns every user. Admin only.
func (s *UserService) ListUsers(ctx context.Context, actor auth.Actor) ([]models.User, error) {
	const op = "users.List"
	if !auth.Decide(actor, auth.Resource{Kind: auth.ResourceUserList}, auth.ActionRead) {
		return nil, apperr.AccessDenied(op, "Access denied, admin role required")
	}

	start := time.Now()
	query := "SELECT " + userColumns + " FROM users ORDER BY id"
	rows, err := s.db.QueryContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil)
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to query users: %w", err))
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Internal(op, fmt.Errorf("failed to scan user: %w", err))
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return users, nil
}

// UpdateUser applies a partial profile update. Only admins may change roles.
func (s *UserService) UpdateUser(ctx context.Context, actor auth.Actor, id int64, req models.UpdateUserRequest) (*models.User, error) {
	const op = "users.Update"
	res := auth.Resource{Kind: auth.ResourceUser, OwnerID: id}
	if !auth.Decide(actor, res, auth.ActionUpdate) {
		return nil, apperr.AccessDenied(op, "Access denied, you are not admin or this is not your account")
	}

	u, err := s.getUser(ctx, op, id)
	if err != nil {
		return nil, err
	}

	var checks []fieldCheck
	if req.FirstName != nil {
		u.FirstName = *req.FirstName
		checks = append(checks, firstNameCheck(u.FirstName))
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
		checks = append(checks, lastNameCheck(u.LastName))
	}
	if req.Username != nil {
		u.Username = strings.TrimSpace(*req.Username)
		checks = append(checks, usernameCheck(u.Username))
	}
	if req.Phone != nil {
		u.Phone = strings.TrimSpace(*req.Phone)
		checks = append(checks, phoneCheck(u.Phone))
	}
	if req.Email != nil {
		u.Email = strings.TrimSpace(*req.Email)
		checks = append(checks, emailCheck(u.Email))
	}
	if req.Country != nil {
		u.Country = *req.Country
		checks = append(checks, placeCheck("Country", u.Country))
	}
	if req.City != nil {
		u.City = *req.City
		checks = append(checks, placeCheck("City", u.City))
	}
	if req.Street != nil {
		u.Street = *req.Street
		checks = append(checks, placeCheck("Street", u.Street))
	}
	if err := runChecks(op, checks...); err != nil {
		return nil, err
	}
	if req.House != nil {
		if err := validateHouse(op, *req.House); err != nil {
			return nil, err
		}
		u.House = *req.House
	}
	if req.Apartment != nil {
		if err := validateApartment(op, req.Apartment); err != nil {
			return nil, err
		}
		u.Apartment = req.Apartment
	}
	if req.Role != nil && *req.Role != u.Role {
		if !auth.Decide(actor, res, auth.ActionChangeRole) {
			return nil, apperr.AccessDenied(op, "Only admins can change roles")
		}
		if err := validateRole(op, *req.Role); err != nil {
			return nil, err
		}
		u.Role = *req.Role
	}
	if req.Password != nil {
		if err := validatePassword(op, *req.Password); err != nil {
			return nil, err
		}
		if u.Password, err = s.hasher.Hash(*req.Password); err != nil {
			return nil, apperr.Internal(op, err)
		}
	}
	if err := s.checkBusy(ctx, op, id, u.Username, u.Email, u.Phone); err != nil {
		return nil, err
	}

	u.UpdatedAt = now()
	start := time.Now()
	query := "UPDATE users SET first_name = ?, last_name = ?, username = ?, password_hash = ?, phone = ?, email = ?, country = ?, city = ?, street = ?, house = ?, apartment = ?, role = ?, updated_at = ? WHERE id = ?"
	_, err = s.db.ExecContext(ctx, query, u.FirstName, u.LastName, u.Username, u.Password, u.Phone, u.Email,
		u.Country, u.City, u.Street, u.House, nullableInt(u.Apartment), u.Role, u.UpdatedAt, id)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "users", query, start, err == nil)
	if db.IsDuplicate(err) {
		return nil, apperr.Validation(op, "Username, email or phone is already in use")
	}
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to update user: %w", err))
	}
	return u, nil
}

// DeleteUser removes a user and their cart. Orders are kept. Admin only.
func (s *UserService) DeleteUser(ctx context.Context, actor auth.Actor, id int64) error {
	const op = "users.Delete"
	if !auth.Decide(actor, auth.Resource{Kind: auth.ResourceUser, OwnerID: id}, auth.ActionDelete) {
		return apperr.AccessDenied(op, "Access denied, admin role required")
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := "DELETE FROM cart_lines WHERE user_id = ?"
		_, err := tx.ExecContext(ctx, query, id)
		s.metrics.RecordDBQuery(ctx, "DELETE", "cart_lines", query, start, err == nil)
		if err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to clear cart: %w", err))
		}

		start = time.Now()
		query = "DELETE FROM users WHERE id = ?"
		result, err := tx.ExecContext(ctx, query, id)
		s.metrics.RecordDBQuery(ctx, "DELETE", "users", query, start, err == nil)
		if err != nil {
			return apperr.Internal(op, fmt.Errorf("failed to delete user: %w", err))
		}
		if n, err := result.RowsAffected(); err != nil {
			return apperr.Internal(op, err)
		} else if n == 0 {
			return apperr.NotFound(op, "user")
		}
		return nil
	})
	if err != nil {
		return asAppErr(op, err)
	}

	slog.InfoContext(ctx, "user deleted", "user_id", id, "by", actor.UserID)
	return nil
}

// checkBusy reports which unique field is already taken by another user.
func (s *UserService) checkBusy(ctx context.Context, op string, selfID int64, username, email, phone string) error {
	start := time.Now()
	query := "SELECT username, email, phone FROM users WHERE id <> ? AND (username = ? OR email = ? OR phone = ?)"
	rows, err := s.db.QueryContext(ctx, query, selfID, username, email, phone)
	s.metrics.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil)
	if err != nil {
		return apperr.Internal(op, fmt.Errorf("failed to check unique fields: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var u, e, p string
		if err := rows.Scan(&u, &e, &p); err != nil {
			return apperr.Internal(op, err)
		}
		switch {
		case u == username:
			return apperr.Validation(op, "Username %q is busy", username)
		case e == email:
			return apperr.Validation(op, "Email %q is busy", email)
		case p == phone:
			return apperr.Validation(op, "Phone %q is busy", phone)
		}
	}
	if err := rows.Err(); err != nil {
		return apperr.Internal(op, err)
	}
	return nil
}

func (s *UserService) recordActive(ctx context.Context, userID int64) {
	s.metrics.ActiveUsersCount.Record(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("session_type", "authenticated"),
		attribute.Int64("user_id", userID),
	})...))
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
