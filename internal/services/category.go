package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
	"github.com/storefront/ecommerce-go-app/internal/auth"
	"github.com/storefront/ecommerce-go-app/internal/db"
	"github.com/storefront/ecommerce-go-app/internal/metrics"
	"github.com/storefront/ecommerce-go-app/internal/models"
)

// CategoryService handles category-related operations
type CategoryService struct {
	db       *db.DB
	metrics  *metrics.AppMetrics
	products *ProductService
}

func NewCategoryService(db *db.DB, metrics *metrics.AppMetrics, products *ProductService) *CategoryService {
	return &CategoryService{
		db:       db,
		metrics:  metrics,
		products: products,
	}
}

func (s *CategoryService) ListCategories(ctx context.Context) ([]models.Category, error) {
	const op = "categories.List"
	start := time.Now()
	query := "SELECT id, name, description FROM categories ORDER BY name"
	rows, err := s.db.QueryContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil)
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to query categories: %w", err))
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, apperr.Internal(op, fmt.Errorf("failed to scan category: %w", err))
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return categories, nil
}

func (s *CategoryService) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	const op = "categories.Get"
	start := time.Now()
	query := "SELECT id, name, description FROM categories WHERE id = ?"
	var c models.Category
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Description)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(op, "category")
	}
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to get category: %w", err))
	}
	return &c, nil
}

// ListCategoryProducts returns the products whose categoryId points at the category
func (s *CategoryService) ListCategoryProducts(ctx context.Context, id int64, limit, offset int) ([]models.Product, error) {
	if _, err := s.GetCategory(ctx, id); err != nil {
		return nil, err
	}
	return s.products.ListProducts(ctx, ProductFilter{CategoryID: id, Limit: limit, Offset: offset})
}

func (s *CategoryService) CreateCategory(ctx context.Context, actor auth.Actor, in models.CategoryInput) (*models.Category, error) {
	const op = "categories.Create"
	if err := canManageCatalog(op, actor); err != nil {
		return nil, err
	}
	if in.Name == nil {
		return nil, apperr.Validation(op, "Category name is required")
	}

	c := &models.Category{Name: strings.TrimSpace(*in.Name), Description: defaultCategoryDescription}
	if in.Description != nil && strings.TrimSpace(*in.Description) != "" {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if err := validateCategoryName(op, c.Name); err != nil {
		return nil, err
	}

	start := time.Now()
	query := "INSERT INTO categories (name, description) VALUES (?, ?)"
	result, err := s.db.ExecContext(ctx, query, c.Name, c.Description)
	s.metrics.RecordDBQuery(ctx, "INSERT", "categories", query, start, err == nil)
	if db.IsDuplicate(err) {
		return nil, apperr.Validation(op, "Category %q already exists", c.Name)
	}
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to create category: %w", err))
	}
	if c.ID, err = result.LastInsertId(); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return c, nil
}

func (s *CategoryService) UpdateCategory(ctx context.Context, actor auth.Actor, id int64, in models.CategoryInput) (*models.Category, error) {
	const op = "categories.Update"
	if err := canManageCatalog(op, actor); err != nil {
		return nil, err
	}

	c, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
		if err := validateCategoryName(op, c.Name); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
		if c.Description == "" {
			c.Description = defaultCategoryDescription
		}
	}

	start := time.Now()
	query := "UPDATE categories SET name = ?, description = ? WHERE id = ?"
	_, err = s.db.ExecContext(ctx, query, c.Name, c.Description, id)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "categories", query, start, err == nil)
	if db.IsDuplicate(err) {
		return nil, apperr.Validation(op, "Category %q already exists", c.Name)
	}
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("failed to update category: %w", err))
	}
	return c, nil
}

// DeleteCategory removes a category. Its products keep their categoryId.
func (s *CategoryService) DeleteCategory(ctx context.Context, actor auth.Actor, id int64) error {
	const op = "categories.Delete"
	if err := canManageCatalog(op, actor); err != nil {
		return err
	}

	start := time.Now()
	query := "DELETE FROM categories WHERE id = ?"
	result, err := s.db.ExecContext(ctx, query, id)
	s.metrics.RecordDBQuery(ctx, "DELETE", "categories", query, start, err == nil)
	if err != nil {
		return apperr.Internal(op, fmt.Errorf("failed to delete category: %w", err))
	}
	if n, err := result.RowsAffected(); err != nil {
		return apperr.Internal(op, err)
	} else if n == 0 {
		return apperr.NotFound(op, "category")
	}
	return nil
}
