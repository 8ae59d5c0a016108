package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sinilikhain/internal/broker"
	"sinilikhain/internal/models"
	"sinilikhain/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const catalogCacheKey = "catalog:approved"

// ProductService handles listings, moderation, ratings and the cart-decrement purchase
type ProductService struct {
	store    ProductRepository
	cache    Cache
	events   EventPublisher
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewProductService creates a new product service. cache may be nil.
func NewProductService(store ProductRepository, cache Cache, events EventPublisher, cacheTTL time.Duration) *ProductService {
	return &ProductService{
		store:    store,
		cache:    cache,
		events:   events,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// ProductInput carries the editable product fields. Nil fields are left
// unchanged on update and required on create, except Description and Image.
type ProductInput struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Quantity    *int
	Category    *string
	Image       *string
}

func (in ProductInput) validate(creating bool) error {
	if creating && (in.Name == nil || in.Price == nil || in.Quantity == nil || in.Category == nil) {
		return models.Invalid("name, price, quantity and category are required")
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return models.Invalid("name must not be empty")
	}
	if in.Price != nil && in.Price.IsNegative() {
		return models.Invalid("price must not be negative")
	}
	if in.Quantity != nil && *in.Quantity < 0 {
		return models.Invalid("quantity must not be negative")
	}
	return nil
}

func (in ProductInput) apply(p *models.Product) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		p.Price = in.Price.Round(2)
	}
	if in.Quantity != nil {
		p.Quantity = *in.Quantity
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Image != nil {
		p.Image = *in.Image
	}
}

// List returns products matching filter. The approved storefront listing is
// served from cache when possible.
func (s *ProductService) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.List")
	defer span.End()

	if !filter.IsApprovedCatalog() || s.cache == nil {
		return s.store.ListProducts(ctx, filter)
	}

	var cached []models.Product
	found, err := s.cache.GetJSON(ctx, catalogCacheKey, &cached)
	if err != nil {
		s.logger.Warn("Catalog cache read failed", zap.Error(err))
	}
	if found {
		util.CatalogCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	util.CatalogCacheTotal.WithLabelValues("miss").Inc()

	products, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if err := s.cache.SetJSON(ctx, catalogCacheKey, products, s.cacheTTL); err != nil {
		s.logger.Warn("Catalog cache write failed", zap.Error(err))
	}
	return products, nil
}

// Get returns a product with its ratings
func (s *ProductService) Get(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ratings, err := s.store.GetRatings(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}
	product.Ratings = ratings
	return product, nil
}

// Create stores a new listing owned by the actor. New listings always start
// pending regardless of what the client sent.
func (s *ProductService) Create(ctx context.Context, actor Actor, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Create", attribute.Int64("artisan_id", actor.UserID))
	defer span.End()

	if err := in.validate(true); err != nil {
		return nil, err
	}

	product := &models.Product{
		ArtisanID: actor.UserID,
		Status:    models.ProductStatusPending,
		Approved:  false,
	}
	in.apply(product)

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to create product: %w", err))
	}

	s.logger.Info("Product submitted for approval",
		zap.Int64("product_id", product.ID),
		zap.Int64("artisan_id", product.ArtisanID))
	s.publishProductEvent(ctx, models.EventTypeProductCreated, product, 0)
	return product, nil
}

// Update edits a listing. Only its artisan or an admin may edit it; editing
// does not change approval.
func (s *ProductService) Update(ctx context.Context, actor Actor, id int64, in ProductInput) (*models.Product, error) {
	if err := in.validate(false); err != nil {
		return nil, err
	}

	product, err := s.Editable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	in.apply(product)
	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.invalidateCatalog(ctx)
	return product, nil
}

// Editable returns the product if the actor may change it.
func (s *ProductService) Editable(ctx context.Context, actor Actor, id int64) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(product.ArtisanID) {
		return nil, fmt.Errorf("%w: product %d belongs to another artisan", models.ErrForbidden, id)
	}
	return product, nil
}

// Delete removes a listing owned by the actor (or any listing for admins)
func (s *ProductService) Delete(ctx context.Context, actor Actor, id int64) error {
	product, err := s.Editable(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.invalidateCatalog(ctx)
	s.publishProductEvent(ctx, models.EventTypeProductDeleted, product, 0)
	return nil
}

// Approve marks a product approved so it appears in the storefront
func (s *ProductService) Approve(ctx context.Context, id int64) (*models.Product, error) {
	return s.moderate(ctx, id, true)
}

// Reject sends a product back to pending and hides it from the storefront
func (s *ProductService) Reject(ctx context.Context, id int64) (*models.Product, error) {
	return s.moderate(ctx, id, false)
}

func (s *ProductService) moderate(ctx context.Context, id int64, approve bool) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.moderate",
		attribute.Int64("product_id", id), attribute.Bool("approve", approve))
	defer span.End()

	product, err := s.store.SetProductApproval(ctx, id, approve)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	action, eventType := "reject", models.EventTypeProductRejected
	if approve {
		action, eventType = "approve", models.EventTypeProductApproved
	}
	util.ProductModerationTotal.WithLabelValues(action).Inc()
	s.logger.Info("Product moderated", zap.Int64("product_id", id), zap.String("status", product.Status))

	s.invalidateCatalog(ctx)
	s.publishProductEvent(ctx, eventType, product, 0)
	return product, nil
}

// Buy decrements stock for each cart line without recording an order. Products
// whose stock reaches zero are deleted.
func (s *ProductService) Buy(ctx context.Context, lines []models.CartLine) (*models.PurchaseResult, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Buy")
	defer span.End()

	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, models.Invalid("quantity for product %d must be at least 1", l.ProductID)
		}
	}

	result, err := s.store.BuyProducts(ctx, lines)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	units := 0
	for _, l := range lines {
		units += l.Quantity
	}
	util.ProductsPurchasedTotal.Add(float64(units))
	util.SoldOutProductsDeletedTotal.Add(float64(len(result.Deleted)))
	if len(result.Deleted) > 0 {
		s.logger.Info("Sold out products removed", zap.Int64s("product_ids", result.Deleted))
	}

	s.invalidateCatalog(ctx)
	if s.events != nil {
		event := &models.ProductsPurchasedEvent{
			BaseEvent: broker.NewBaseEvent(models.EventTypeProductsPurchased, result.ArtisanIDs...),
			Items:     lines,
			Deleted:   result.Deleted,
		}
		if err := s.events.PublishProductsPurchased(ctx, event); err != nil {
			s.logger.Error("Failed to publish ProductsPurchased event", zap.Error(err))
		}
	}
	return result, nil
}

// Rate upserts the actor's 1-5 rating and returns the product's new summary
func (s *ProductService) Rate(ctx context.Context, actor Actor, productID int64, rating int) (*models.RatingSummary, error) {
	if rating < 1 || rating > 5 {
		return nil, models.Invalid("rating must be between 1 and 5")
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	r := &models.Rating{ProductID: productID, UserID: actor.UserID, Rating: rating}
	if err := s.store.UpsertRating(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to save rating: %w", err)
	}

	ratings, err := s.store.GetRatings(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}

	s.publishProductEvent(ctx, models.EventTypeProductRated, product, rating)
	return summarize(productID, ratings), nil
}

func summarize(productID int64, ratings []models.Rating) *models.RatingSummary {
	summary := &models.RatingSummary{ProductID: productID, Average: decimal.Zero, Count: len(ratings)}
	if len(ratings) == 0 {
		return summary
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Rating
	}
	summary.Average = decimal.NewFromInt(int64(sum)).DivRound(decimal.NewFromInt(int64(len(ratings))), 2)
	return summary
}

func (s *ProductService) invalidateCatalog(ctx context.Context) {
	invalidateCatalog(ctx, s.cache, s.logger)
}

// invalidateCatalog drops the cached storefront listing. Any write that
// changes stock or removes products must call it.
func invalidateCatalog(ctx context.Context, cache Cache, logger *zap.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Delete(ctx, catalogCacheKey); err != nil {
		logger.Warn("Catalog cache invalidation failed", zap.Error(err))
	}
}

func (s *ProductService) publishProductEvent(ctx context.Context, eventType string, p *models.Product, rating int) {
	if s.events == nil {
		return
	}
	event := &models.ProductEvent{
		BaseEvent: broker.NewBaseEvent(eventType, p.ArtisanID),
		ProductID: p.ID,
		Status:    p.Status,
		Rating:    rating,
	}
	if err := s.events.PublishProductEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish product event",
			zap.String("event_type", eventType),
			zap.Int64("product_id", p.ID),
			zap.Error(err))
	}
}
