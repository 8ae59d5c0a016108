package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User roles
const (
	RoleAdmin   = "admin"
	RoleArtisan = "artisan"
	RoleBuyer   = "buyer"
)

// Product approval statuses
const (
	ProductStatusPending  = "pending"
	ProductStatusApproved = "approved"
)

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Payment methods
const (
	PaymentMethodCOD   = "cod"
	PaymentMethodGCash = "gcash"
	PaymentMethodBank  = "bank"
)

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// User is a marketplace account. PasswordHash never leaves the service.
type User struct {
	ID             int64           `db:"id" json:"id"`
	Username       string          `db:"username" json:"username"`
	Email          string          `db:"email" json:"email,omitempty"`
	Phone          string          `db:"phone" json:"phone,omitempty"`
	PasswordHash   string          `db:"password_hash" json:"-"`
	Role           string          `db:"role" json:"role"`
	Bio            string          `db:"bio" json:"bio"`
	Location       string          `db:"location" json:"location"`
	Avatar         string          `db:"avatar" json:"avatar"`
	BankAccount    string          `db:"bank_account" json:"bankAccount,omitempty"`
	TotalProducts  int             `db:"total_products" json:"totalProducts"`
	AverageRating  decimal.Decimal `db:"average_rating" json:"averageRating"`
	SalesCompleted int             `db:"sales_completed" json:"salesCompleted"`
	JoinedAt       time.Time       `db:"joined_at" json:"joinDate"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// Public returns the profile other users may see, without contact and
// payout details.
func (u User) Public() User {
	u.Email = ""
	u.Phone = ""
	u.BankAccount = ""
	return u
}

// Product is an artisan listing. ArtisanID is the owning user's id.
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Image       string          `db:"image" json:"image"`
	ArtisanID   int64           `db:"artisan_id" json:"artisanId"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Category    string          `db:"category" json:"category"`
	Status      string          `db:"status" json:"status"`
	Approved    bool            `db:"approved" json:"approved"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`

	Ratings []Rating `db:"-" json:"ratings,omitempty"`
}

// Rating is one user's score for a product.
type Rating struct {
	ProductID int64     `db:"product_id" json:"productId"`
	UserID    int64     `db:"user_id" json:"userId"`
	Rating    int       `db:"rating" json:"rating"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// RatingSummary aggregates the ratings of one product.
type RatingSummary struct {
	ProductID int64           `json:"productId"`
	Average   decimal.Decimal `json:"average"`
	Count     int             `json:"count"`
}

// ShippingInfo is the delivery block captured at checkout.
type ShippingInfo struct {
	FullName   string `db:"shipping_full_name" json:"fullName"`
	Address    string `db:"shipping_address" json:"address"`
	City       string `db:"shipping_city" json:"city"`
	PostalCode string `db:"shipping_postal_code" json:"postalCode"`
	Phone      string `db:"shipping_phone" json:"phone"`
}

// Order is a buyer's checkout record.
type Order struct {
	ID            int64           `db:"id" json:"id"`
	BuyerID       int64           `db:"buyer_id" json:"buyerId"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"totalAmount"`
	Status        string          `db:"status" json:"status"`
	PaymentMethod string          `db:"payment_method" json:"paymentMethod"`
	PaymentStatus string          `db:"payment_status" json:"paymentStatus"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
	ShippingInfo  `json:"shippingInfo"`

	Items []OrderItem `db:"-" json:"items"`

	// ExpectedTotal, when set, must match the computed total or the order is
	// not placed.
	ExpectedTotal *decimal.Decimal `db:"-" json:"-"`
}

// OrderItem is a line item snapshot taken at purchase time.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"orderId"`
	ProductID int64           `db:"product_id" json:"productId"`
	ArtisanID int64           `db:"artisan_id" json:"artisanId"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Image     string          `db:"image" json:"image"`
}

// Subtotal returns price × quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ArtisanOrderItem is a line item together with the order it belongs to,
// as shown on an artisan's order board.
type ArtisanOrderItem struct {
	OrderItem
	BuyerID       int64     `db:"buyer_id" json:"buyerId"`
	OrderStatus   string    `db:"order_status" json:"orderStatus"`
	PaymentMethod string    `db:"payment_method" json:"paymentMethod"`
	PaymentStatus string    `db:"payment_status" json:"paymentStatus"`
	OrderedAt     time.Time `db:"ordered_at" json:"orderedAt"`
	ShippingInfo  `json:"shippingInfo"`
}

// CartLine is a product id and a requested quantity.
type CartLine struct {
	ProductID int64 `json:"productId" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// PurchaseResult reports the outcome of the cart-decrement pathway.
type PurchaseResult struct {
	Remaining map[int64]int `json:"remaining"`
	Deleted   []int64       `json:"deleted"`
	// ArtisanIDs lists the owners of the purchased products.
	ArtisanIDs []int64 `json:"-"`
}

// ProductFilter narrows product listings. Nil/zero fields are ignored.
type ProductFilter struct {
	Approved  *bool
	ArtisanID int64
	Category  string
	Search    string
}

// IsApprovedCatalog reports whether the filter is exactly the buyer storefront query.
func (f ProductFilter) IsApprovedCatalog() bool {
	return f.Approved != nil && *f.Approved && f.ArtisanID == 0 && f.Category == "" && f.Search == ""
}

// OrderFilter narrows order listings. Zero fields are ignored.
type OrderFilter struct {
	ArtisanID int64
	Status    string
	BuyerID   int64
}

// ArtisanStats holds the denormalized statistics stored on artisan accounts.
type ArtisanStats struct {
	ArtisanID      int64           `db:"artisan_id"`
	TotalProducts  int             `db:"total_products"`
	AverageRating  decimal.Decimal `db:"average_rating"`
	SalesCompleted int             `db:"sales_completed"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether s is a known payment status.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed:
		return true
	}
	return false
}

// ValidPaymentMethod reports whether s is a supported payment method.
func ValidPaymentMethod(s string) bool {
	switch s {
	case PaymentMethodCOD, PaymentMethodGCash, PaymentMethodBank:
		return true
	}
	return false
}
