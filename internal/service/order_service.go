package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sinilikhain/internal/bank"
	"sinilikhain/internal/broker"
	"sinilikhain/internal/models"
	"sinilikhain/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService handles checkout and the order lifecycle
type OrderService struct {
	store          OrderRepository
	idempotency    IdempotencyStore
	catalog        Cache
	events         EventPublisher
	payments       *PaymentService
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewOrderService creates a new order service. idempotency and catalog may be nil.
func NewOrderService(
	store OrderRepository,
	idempotency IdempotencyStore,
	catalog Cache,
	events EventPublisher,
	payments *PaymentService,
	idempotencyTTL time.Duration,
) *OrderService {
	return &OrderService{
		store:          store,
		idempotency:    idempotency,
		catalog:        catalog,
		events:         events,
		payments:       payments,
		idempotencyTTL: idempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// CheckoutItem is one cart entry. Name, Price and Image are what the client
// displayed; the stored line item uses the product's current values.
type CheckoutItem struct {
	ProductID int64            `json:"productId" binding:"required"`
	Quantity  int              `json:"quantity" binding:"required,min=1"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Name      string           `json:"name,omitempty"`
	Image     string           `json:"image,omitempty"`
}

// CreateOrderRequest represents a checkout submission
type CreateOrderRequest struct {
	BuyerID        int64               `json:"buyerId"`
	Items          []CheckoutItem      `json:"items" binding:"required,min=1,dive"`
	ShippingInfo   models.ShippingInfo `json:"shippingInfo"`
	TotalAmount    *decimal.Decimal    `json:"totalAmount,omitempty"`
	PaymentMethod  string              `json:"paymentMethod"`
	BankAccount    string              `json:"bankAccount,omitempty"`
	IdempotencyKey string              `json:"idempotencyKey,omitempty"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	Order    *models.Order  `json:"order"`
	Payment  *PaymentResult `json:"payment,omitempty"`
	Replayed bool           `json:"replayed,omitempty"`
}

func (req *CreateOrderRequest) validate() error {
	if len(req.Items) == 0 {
		return models.Invalid("order has no items")
	}
	for _, it := range req.Items {
		if it.ProductID <= 0 {
			return models.Invalid("invalid product id %d", it.ProductID)
		}
		if it.Quantity < 1 {
			return models.Invalid("quantity for product %d must be at least 1", it.ProductID)
		}
	}

	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodCOD
	}
	if !models.ValidPaymentMethod(req.PaymentMethod) {
		return models.Invalid("unsupported payment method %q", req.PaymentMethod)
	}

	si := req.ShippingInfo
	var missing []string
	for name, v := range map[string]string{
		"fullName": si.FullName, "address": si.Address, "city": si.City, "phone": si.Phone,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return models.Invalid("shipping info is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// CreateOrder validates stock, records the order and decrements inventory in
// one transaction, then settles bank payments when requested
func (s *OrderService) CreateOrder(ctx context.Context, actor Actor, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.BuyerID == 0 {
		req.BuyerID = actor.UserID
	}
	if !actor.Owns(req.BuyerID) {
		return nil, fmt.Errorf("%w: cannot place orders for another buyer", models.ErrForbidden)
	}
	if err := req.validate(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}
	span.SetAttributes(attribute.Int64("buyer_id", req.BuyerID), attribute.String("payment_method", req.PaymentMethod))

	if req.IdempotencyKey != "" && s.idempotency != nil {
		replay, claimed, err := s.claim(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if replay != nil {
			return replay, nil
		}
		if claimed {
			succeeded := false
			defer func() {
				if !succeeded {
					s.release(req.IdempotencyKey)
				}
			}()
			resp, err := s.placeOrder(ctx, req)
			if err != nil {
				return nil, util.RecordError(span, err)
			}
			succeeded = true
			s.complete(ctx, req.IdempotencyKey, resp.Order.ID)
			return resp, nil
		}
	}

	resp, err := s.placeOrder(ctx, req)
	return resp, util.RecordError(span, err)
}

func (s *OrderService) placeOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	var buyerAccount *bank.Account
	if req.PaymentMethod == models.PaymentMethodBank {
		if s.payments == nil {
			return nil, fmt.Errorf("%w: bank payments are not available", models.ErrPayment)
		}
		account, err := s.payments.VerifyBuyerAccount(ctx, req.BankAccount)
		if err != nil {
			util.OrdersFailedTotal.WithLabelValues("bank_account").Inc()
			return nil, err
		}
		buyerAccount = account
	}

	lines := make([]models.CartLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = models.CartLine{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	order := &models.Order{
		BuyerID:       req.BuyerID,
		Status:        models.OrderStatusPending,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: models.PaymentStatusPending,
		ShippingInfo:  req.ShippingInfo,
		ExpectedTotal: req.TotalAmount,
	}

	start := time.Now()
	err := s.store.PlaceOrder(ctx, order, lines)
	util.CheckoutLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	invalidateCatalog(ctx, s.catalog, s.logger)
	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.String("total", order.TotalAmount.String()))
	s.publishOrderPlaced(ctx, order)

	resp := &CreateOrderResponse{Order: order}
	if buyerAccount != nil {
		resp.Payment = s.payments.Settle(ctx, order, buyerAccount)
	}
	return resp, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrNotFound):
		return "product_not_found"
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid_request"
	default:
		return "db_error"
	}
}

// claim reserves the idempotency key. A finished earlier request is replayed;
// one still in flight is a conflict. Redis errors disable the guard rather
// than blocking checkout.
func (s *OrderService) claim(ctx context.Context, key string) (*CreateOrderResponse, bool, error) {
	existing, claimed, err := s.idempotency.ClaimIdempotencyKey(ctx, key, s.idempotencyTTL)
	if err != nil {
		s.logger.Warn("Idempotency check failed, continuing without it", zap.Error(err))
		return nil, false, nil
	}
	if claimed {
		return nil, true, nil
	}

	orderID, perr := strconv.ParseInt(existing, 10, 64)
	if perr != nil {
		return nil, false, fmt.Errorf("%w: an order with this idempotency key is already being processed", models.ErrConflict)
	}

	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", orderID))
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load replayed order: %w", err)
	}
	return &CreateOrderResponse{Order: order, Replayed: true}, false, nil
}

func (s *OrderService) complete(ctx context.Context, key string, orderID int64) {
	if err := s.idempotency.CompleteIdempotencyKey(ctx, key, strconv.FormatInt(orderID, 10), s.idempotencyTTL); err != nil {
		s.logger.Warn("Failed to record idempotency key", zap.String("key", key), zap.Error(err))
	}
}

func (s *OrderService) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.idempotency.ReleaseIdempotencyKey(ctx, key); err != nil {
		s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}

func (s *OrderService) publishOrderPlaced(ctx context.Context, order *models.Order) {
	if s.events == nil {
		return
	}
	items := make([]models.OrderItemData, len(order.Items))
	for i, it := range order.Items {
		items[i] = models.OrderItemData{
			ProductID: it.ProductID,
			ArtisanID: it.ArtisanID,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		}
	}
	event := &models.OrderPlacedEvent{
		BaseEvent:     broker.NewBaseEvent(models.EventTypeOrderPlaced, orderArtisans(order)...),
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		TotalAmount:   order.TotalAmount,
		PaymentMethod: order.PaymentMethod,
		Items:         items,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

func orderArtisans(order *models.Order) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, it := range order.Items {
		if !seen[it.ArtisanID] {
			seen[it.ArtisanID] = true
			ids = append(ids, it.ArtisanID)
		}
	}
	return ids
}

// involves reports whether the actor may see or manage the order: its buyer,
// an artisan with items in it, or an admin.
func involves(actor Actor, order *models.Order) bool {
	if actor.Owns(order.BuyerID) {
		return true
	}
	if actor.Role != models.RoleArtisan {
		return false
	}
	for _, it := range order.Items {
		if it.ArtisanID == actor.UserID {
			return true
		}
	}
	return false
}

// GetOrder retrieves an order visible to the actor
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !involves(actor, order) {
		return nil, fmt.Errorf("%w: order %d", models.ErrForbidden, orderID)
	}
	return order, nil
}

// ListBuyerOrders returns a buyer's orders, newest first
func (s *OrderService) ListBuyerOrders(ctx context.Context, actor Actor, buyerID int64) ([]models.Order, error) {
	if !actor.Owns(buyerID) {
		return nil, fmt.Errorf("%w: cannot view another buyer's orders", models.ErrForbidden)
	}
	return s.store.ListOrders(ctx, models.OrderFilter{BuyerID: buyerID})
}

// ListArtisanItems returns only the line items sold by artisanID, newest first
func (s *OrderService) ListArtisanItems(ctx context.Context, actor Actor, artisanID int64) ([]models.ArtisanOrderItem, error) {
	if !actor.Owns(artisanID) {
		return nil, fmt.Errorf("%w: cannot view another artisan's orders", models.ErrForbidden)
	}
	items, err := s.store.ListArtisanOrderItems(ctx, artisanID)
	if err != nil {
		return nil, err
	}

	filtered := items[:0]
	for _, it := range items {
		if it.ArtisanID == artisanID {
			filtered = append(filtered, it)
		}
	}
	return filtered, nil
}

// ListOrders returns orders matching filter. Non-admins are restricted to
// their own orders: artisans to orders containing their items, buyers to
// orders they placed.
func (s *OrderService) ListOrders(ctx context.Context, actor Actor, filter models.OrderFilter) ([]models.Order, error) {
	if filter.Status != "" && !models.ValidOrderStatus(filter.Status) {
		return nil, models.Invalid("unknown order status %q", filter.Status)
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleArtisan:
		if filter.ArtisanID != 0 && filter.ArtisanID != actor.UserID {
			return nil, fmt.Errorf("%w: cannot view another artisan's orders", models.ErrForbidden)
		}
		filter.ArtisanID = actor.UserID
	default:
		filter.BuyerID = actor.UserID
	}
	return s.store.ListOrders(ctx, filter)
}

// UpdateStatus moves an order to a new fulfilment status
func (s *OrderService) UpdateStatus(ctx context.Context, actor Actor, orderID int64, status string) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, models.Invalid("unknown order status %q", status)
	}

	order, err := s.manageable(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	order.Status = status

	util.OrderStatusChangesTotal.WithLabelValues(status).Inc()
	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("status", status),
		zap.Int64("by", actor.UserID))

	if s.events != nil {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: broker.NewBaseEvent(models.EventTypeOrderStatusChanged, orderArtisans(order)...),
			OrderID:   orderID,
			Status:    status,
		}
		if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
	}
	return order, nil
}

// UpdatePaymentStatus records a manually confirmed payment status
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, actor Actor, orderID int64, status string) (*models.Order, error) {
	if !models.ValidPaymentStatus(status) {
		return nil, models.Invalid("unknown payment status %q", status)
	}

	order, err := s.manageable(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdatePaymentStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	order.PaymentStatus = status
	return order, nil
}

// manageable loads an order the actor may update: admins any order, artisans
// orders containing their items.
func (s *OrderService) manageable(ctx context.Context, actor Actor, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return order, nil
	}
	if actor.Role == models.RoleArtisan {
		for _, it := range order.Items {
			if it.ArtisanID == actor.UserID {
				return order, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: order %d", models.ErrForbidden, orderID)
}
