package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sinilikhain/internal/models"

	"github.com/lib/pq"
)

const userColumns = `id, username, email, phone, password_hash, role, bio, location, avatar, bank_account,
	total_products, average_rating, sales_completed, joined_at, updated_at`

const pqUniqueViolation = "23505"

// CreateUser inserts a user. A duplicate username or email yields ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (username, email, phone, password_hash, role, bio, location, avatar, bank_account)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, joined_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		u.Username, u.Email, u.Phone, u.PasswordHash, u.Role, u.Bio, u.Location, u.Avatar, u.BankAccount,
	).Scan(&u.ID, &u.JoinedAt, &u.UpdatedAt)
	return mapUniqueViolation(err)
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
}

// GetUserByIdentifier retrieves a user by username or email
func (s *Store) GetUserByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE username = $1 OR email = $1 LIMIT 1", identifier)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %v: %w", arg, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers retrieves all users ordered by join date
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY joined_at DESC, id DESC")
	return users, err
}

// UpdateUser overwrites profile fields, role and password hash
func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users
		SET username = $1, email = $2, phone = $3, password_hash = $4, role = $5,
			bio = $6, location = $7, avatar = $8, bank_account = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		u.Username, u.Email, u.Phone, u.PasswordHash, u.Role, u.Bio, u.Location, u.Avatar, u.BankAccount, u.ID,
	).Scan(&u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %d: %w", u.ID, models.ErrNotFound)
	}
	return mapUniqueViolation(err)
}

// DeleteUser removes a user and, by cascade, their products
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// ComputeArtisanStats aggregates an artisan's listings, ratings and
// delivered sales
func (s *Store) ComputeArtisanStats(ctx context.Context, artisanID int64) (*models.ArtisanStats, error) {
	query := `
		SELECT
			$1::BIGINT AS artisan_id,
			(SELECT COUNT(*) FROM products WHERE artisan_id = $1) AS total_products,
			(SELECT COALESCE(ROUND(AVG(r.rating), 2), 0)
				FROM product_ratings r JOIN products p ON p.id = r.product_id
				WHERE p.artisan_id = $1) AS average_rating,
			(SELECT COALESCE(SUM(i.quantity), 0)
				FROM order_items i JOIN orders o ON o.id = i.order_id
				WHERE i.artisan_id = $1 AND o.status = 'delivered') AS sales_completed`

	var stats models.ArtisanStats
	if err := s.db.GetContext(ctx, &stats, query, artisanID); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SaveArtisanStats writes the denormalized statistics onto the user row
func (s *Store) SaveArtisanStats(ctx context.Context, stats *models.ArtisanStats) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET total_products = $1, average_rating = $2, sales_completed = $3 WHERE id = $4",
		stats.TotalProducts, stats.AverageRating, stats.SalesCompleted, stats.ArtisanID)
	return err
}

func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return fmt.Errorf("%s: %w", pqErr.Constraint, models.ErrConflict)
	}
	return err
}
