package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"sinilikhain/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type lockedProduct struct {
	ID        int64           `db:"id"`
	Name      string          `db:"name"`
	Price     decimal.Decimal `db:"price"`
	Image     string          `db:"image"`
	ArtisanID int64           `db:"artisan_id"`
	Quantity  int             `db:"quantity"`
	Approved  bool            `db:"approved"`
}

// mergeLines sums quantities of repeated products, keeping first-seen order.
func mergeLines(lines []models.CartLine) []models.CartLine {
	merged := make([]models.CartLine, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged
}

// lockProducts locks every referenced product row FOR UPDATE in ascending id
// order and checks that each has enough stock. Unapproved products are not
// for sale and are reported as missing.
func lockProducts(ctx context.Context, tx *sqlx.Tx, lines []models.CartLine) (map[int64]lockedProduct, error) {
	ids := make([]int64, 0, len(lines))
	wanted := make(map[int64]int, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
		wanted[l.ProductID] = l.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked := make(map[int64]lockedProduct, len(ids))
	for _, id := range ids {
		var p lockedProduct
		err := tx.GetContext(ctx, &p,
			"SELECT id, name, price, image, artisan_id, quantity, approved FROM products WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !p.Approved) {
			return nil, &models.StockError{ProductID: id, Requested: wanted[id], Missing: true}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lock product %d: %w", id, err)
		}
		if p.Quantity < wanted[id] {
			return nil, &models.StockError{
				ProductID: id,
				Name:      p.Name,
				Requested: wanted[id],
				Available: p.Quantity,
			}
		}
		locked[id] = p
	}
	return locked, nil
}

func decrementStock(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int) (int, error) {
	var remaining int
	err := tx.GetContext(ctx, &remaining,
		"UPDATE products SET quantity = quantity - $1, updated_at = NOW() WHERE id = $2 RETURNING quantity",
		quantity, productID)
	if err != nil {
		return 0, fmt.Errorf("failed to decrement stock for product %d: %w", productID, err)
	}
	return remaining, nil
}

// PlaceOrder validates stock, inserts the order with its line items and
// decrements inventory in a single transaction. Line item name, price, image
// and artisan are snapshotted from the locked product rows and the order total
// is computed from them. Nothing is written if any product is missing or short,
// or if the computed total differs from order.ExpectedTotal.
func (s *Store) PlaceOrder(ctx context.Context, order *models.Order, lines []models.CartLine) error {
	if len(lines) == 0 {
		return models.Invalid("order has no items")
	}
	lines = mergeLines(lines)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	locked, err := lockProducts(ctx, tx, lines)
	if err != nil {
		return err
	}

	items := make([]models.OrderItem, 0, len(lines))
	total := decimal.Zero
	for _, l := range lines {
		p := locked[l.ProductID]
		item := models.OrderItem{
			ProductID: p.ID,
			ArtisanID: p.ArtisanID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  l.Quantity,
			Image:     p.Image,
		}
		total = total.Add(item.Subtotal())
		items = append(items, item)
	}
	if order.ExpectedTotal != nil && !order.ExpectedTotal.Equal(total) {
		return models.Invalid("totalAmount %s does not match computed total %s",
			order.ExpectedTotal.StringFixed(2), total.StringFixed(2))
	}
	order.TotalAmount = total

	query := `
		INSERT INTO orders (buyer_id, total_amount, status, payment_method, payment_status,
			shipping_full_name, shipping_address, shipping_city, shipping_postal_code, shipping_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.BuyerID, order.TotalAmount, order.Status, order.PaymentMethod, order.PaymentStatus,
		order.FullName, order.Address, order.City, order.PostalCode, order.Phone,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO order_items (order_id, product_id, artisan_id, name, price, quantity, image)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].ArtisanID, items[i].Name,
			items[i].Price, items[i].Quantity, items[i].Image,
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}

		if _, err := decrementStock(ctx, tx, items[i].ProductID, items[i].Quantity); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	order.Items = items
	return nil
}

// BuyProducts is the cart-decrement pathway: it decrements stock for every
// line without recording an order and deletes products left with no stock.
func (s *Store) BuyProducts(ctx context.Context, lines []models.CartLine) (*models.PurchaseResult, error) {
	if len(lines) == 0 {
		return nil, models.Invalid("cart is empty")
	}
	lines = mergeLines(lines)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	locked, err := lockProducts(ctx, tx, lines)
	if err != nil {
		return nil, err
	}

	result := &models.PurchaseResult{
		Remaining: make(map[int64]int, len(lines)),
		Deleted:   []int64{},
	}
	seenArtisan := make(map[int64]bool)
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		remaining, err := decrementStock(ctx, tx, l.ProductID, l.Quantity)
		if err != nil {
			return nil, err
		}
		result.Remaining[l.ProductID] = remaining
		ids = append(ids, l.ProductID)

		if a := locked[l.ProductID].ArtisanID; !seenArtisan[a] {
			seenArtisan[a] = true
			result.ArtisanIDs = append(result.ArtisanIDs, a)
		}
	}

	err = tx.SelectContext(ctx, &result.Deleted,
		"DELETE FROM products WHERE id = ANY($1) AND quantity <= 0 RETURNING id", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to remove sold out products: %w", err)
	}
	for _, id := range result.Deleted {
		delete(result.Remaining, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}
	return result, nil
}
