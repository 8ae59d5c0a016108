package service

import (
	"context"
	"time"

	"sinilikhain/internal/bank"
	"sinilikhain/internal/models"
)

// ProductRepository is the product side of the store.
type ProductRepository interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	SetProductApproval(ctx context.Context, id int64, approved bool) (*models.Product, error)
	BuyProducts(ctx context.Context, lines []models.CartLine) (*models.PurchaseResult, error)
	UpsertRating(ctx context.Context, r *models.Rating) error
	GetRatings(ctx context.Context, productID int64) ([]models.Rating, error)
}

// UserRepository is the account side of the store.
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id int64) error
}

// OrderRepository is the order side of the store. PlaceOrder must be atomic.
type OrderRepository interface {
	PlaceOrder(ctx context.Context, order *models.Order, lines []models.CartLine) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	ListArtisanOrderItems(ctx context.Context, artisanID int64) ([]models.ArtisanOrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	UpdatePaymentStatus(ctx context.Context, orderID int64, status string) error
}

// StatsRepository computes and stores artisan statistics.
type StatsRepository interface {
	ComputeArtisanStats(ctx context.Context, artisanID int64) (*models.ArtisanStats, error)
	SaveArtisanStats(ctx context.Context, stats *models.ArtisanStats) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Cache stores JSON values with a TTL.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// IdempotencyStore guards checkout against duplicate submissions.
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	CompleteIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// EventPublisher emits marketplace events.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishPaymentProcessed(ctx context.Context, event *models.PaymentProcessedEvent) error
	PublishProductEvent(ctx context.Context, event *models.ProductEvent) error
	PublishProductsPurchased(ctx context.Context, event *models.ProductsPurchasedEvent) error
}

// BankClient is the external bank-simulation API.
type BankClient interface {
	GetAccount(ctx context.Context, accountNumber string) (*bank.Account, error)
	Transfer(ctx context.Context, req bank.TransferRequest) (*bank.TransferReceipt, error)
}

// TokenIssuer signs access tokens for logged-in users.
type TokenIssuer interface {
	Issue(user *models.User) (string, error)
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID int64
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// Owns reports whether the actor is userID or an admin.
func (a Actor) Owns(userID int64) bool {
	return a.IsAdmin() || (a.UserID != 0 && a.UserID == userID)
}
