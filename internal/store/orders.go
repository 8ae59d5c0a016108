package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sinilikhain/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `o.id, o.buyer_id, o.total_amount, o.status, o.payment_method, o.payment_status,
	o.shipping_full_name, o.shipping_address, o.shipping_city, o.shipping_postal_code, o.shipping_phone,
	o.created_at, o.updated_at`

const orderItemColumns = `id, order_id, product_id, artisan_id, name, price, quantity, image`

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders o WHERE o.id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	items := []models.OrderItem{}
	err = s.db.SelectContext(ctx, &items,
		"SELECT "+orderItemColumns+" FROM order_items WHERE order_id = $1 ORDER BY id", id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

// ListOrders retrieves orders matching the filter, newest first. With an
// artisan filter only orders containing that artisan's items are returned and
// their items are trimmed to that artisan's.
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.BuyerID != 0 {
		args = append(args, filter.BuyerID)
		where = append(where, fmt.Sprintf("o.buyer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("o.status = $%d", len(args)))
	}
	if filter.ArtisanID != 0 {
		args = append(args, filter.ArtisanID)
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id AND i.artisan_id = $%d)", len(args)))
	}

	query := "SELECT " + orderColumns + " FROM orders o"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY o.created_at DESC, o.id DESC"

	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	if err := s.attachItems(ctx, orders, filter.ArtisanID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) attachItems(ctx context.Context, orders []models.Order, artisanID int64) error {
	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	query, args, err := sqlx.In("SELECT "+orderItemColumns+" FROM order_items WHERE order_id IN (?)", ids)
	if err != nil {
		return err
	}
	if artisanID != 0 {
		query += " AND artisan_id = ?"
		args = append(args, artisanID)
	}
	query = s.db.Rebind(query + " ORDER BY id")

	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return err
	}

	byOrder := make(map[int64][]models.OrderItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []models.OrderItem{}
		}
	}
	return nil
}

// ListArtisanOrderItems retrieves only the line items sold by an artisan,
// newest order first
func (s *Store) ListArtisanOrderItems(ctx context.Context, artisanID int64) ([]models.ArtisanOrderItem, error) {
	query := `
		SELECT i.id, i.order_id, i.product_id, i.artisan_id, i.name, i.price, i.quantity, i.image,
			o.buyer_id, o.status AS order_status, o.payment_method, o.payment_status, o.created_at AS ordered_at,
			o.shipping_full_name, o.shipping_address, o.shipping_city, o.shipping_postal_code, o.shipping_phone
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE i.artisan_id = $1
		ORDER BY o.created_at DESC, i.id`

	items := []models.ArtisanOrderItem{}
	err := s.db.SelectContext(ctx, &items, query, artisanID)
	return items, err
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	return s.updateOrderField(ctx, orderID, "status", status)
}

// UpdatePaymentStatus updates the payment status of an order
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID int64, status string) error {
	return s.updateOrderField(ctx, orderID, "payment_status", status)
}

func (s *Store) updateOrderField(ctx context.Context, orderID int64, column, value string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET "+column+" = $1, updated_at = NOW() WHERE id = $2",
		value, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	return nil
}
