package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypePaymentProcessed   = "PAYMENT_PROCESSED"
	EventTypeProductCreated     = "PRODUCT_CREATED"
	EventTypeProductApproved    = "PRODUCT_APPROVED"
	EventTypeProductRejected    = "PRODUCT_REJECTED"
	EventTypeProductDeleted     = "PRODUCT_DELETED"
	EventTypeProductRated       = "PRODUCT_RATED"
	EventTypeProductsPurchased  = "PRODUCTS_PURCHASED"
)

// BaseEvent contains common fields for all events. ArtisanIDs lists the
// artisans whose statistics the event may affect.
type BaseEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"timestamp"`
	ArtisanIDs []int64   `json:"artisan_ids"`
}

// OrderPlacedEvent published after a checkout commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	BuyerID       int64           `json:"buyer_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Items         []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published when an artisan or admin moves an order
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// PaymentProcessedEvent published after bank transfers for an order finish
type PaymentProcessedEvent struct {
	BaseEvent
	OrderID       int64  `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
	Reason        string `json:"reason,omitempty"`
}

// ProductEvent covers product lifecycle changes
type ProductEvent struct {
	BaseEvent
	ProductID int64  `json:"product_id"`
	Status    string `json:"status,omitempty"`
	Rating    int    `json:"rating,omitempty"`
}

// ProductsPurchasedEvent published by the cart-decrement pathway
type ProductsPurchasedEvent struct {
	BaseEvent
	Items   []CartLine `json:"items"`
	Deleted []int64    `json:"deleted"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	ArtisanID int64           `json:"artisan_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
