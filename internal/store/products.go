package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sinilikhain/internal/models"

	"github.com/lib/pq"
)

const productColumns = `id, name, description, price, image, artisan_id, quantity, category, status, approved, created_at, updated_at`

// CreateProduct inserts a product and fills its id and timestamps
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (name, description, price, image, artisan_id, quantity, category, status, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		p.Name, p.Description, p.Price, p.Image, p.ArtisanID, p.Quantity, p.Category, p.Status, p.Approved,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves products matching the filter, newest first
func (s *Store) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	var (
		where []string
		args  []any
	)
	if filter.Approved != nil {
		args = append(args, *filter.Approved)
		where = append(where, fmt.Sprintf("approved = $%d", len(args)))
	}
	if filter.ArtisanID != 0 {
		args = append(args, filter.ArtisanID)
		where = append(where, fmt.Sprintf("artisan_id = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, err
	}
	return products, nil
}

// UpdateProduct overwrites the editable fields of a product
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, image = $4, quantity = $5, category = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		p.Name, p.Description, p.Price, p.Image, p.Quantity, p.Category, p.ID,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %d: %w", p.ID, models.ErrNotFound)
	}
	return err
}

// DeleteProduct removes a product
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// SetProductApproval moves a product between pending and approved
func (s *Store) SetProductApproval(ctx context.Context, id int64, approved bool) (*models.Product, error) {
	status := models.ProductStatusPending
	if approved {
		status = models.ProductStatusApproved
	}

	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"UPDATE products SET status = $1, approved = $2, updated_at = NOW() WHERE id = $3 RETURNING "+productColumns,
		status, approved, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpsertRating stores a user's rating for a product, replacing any previous one
func (s *Store) UpsertRating(ctx context.Context, r *models.Rating) error {
	query := `
		INSERT INTO product_ratings (product_id, user_id, rating)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, user_id) DO UPDATE SET rating = EXCLUDED.rating, created_at = NOW()
		RETURNING created_at`

	err := s.db.QueryRowxContext(ctx, query, r.ProductID, r.UserID, r.Rating).Scan(&r.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return fmt.Errorf("product %d: %w", r.ProductID, models.ErrNotFound)
	}
	return err
}

// GetRatings retrieves all ratings of a product
func (s *Store) GetRatings(ctx context.Context, productID int64) ([]models.Rating, error) {
	ratings := []models.Rating{}
	err := s.db.SelectContext(ctx, &ratings,
		"SELECT product_id, user_id, rating, created_at FROM product_ratings WHERE product_id = $1 ORDER BY created_at",
		productID)
	return ratings, err
}
