// Package servicetest provides in-memory implementations of the service
// dependencies for tests.
package servicetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sinilikhain/internal/bank"
	"sinilikhain/internal/models"

	"github.com/shopspring/decimal"
)

// Store keeps products, users, ratings and orders in memory. PlaceOrder and
// BuyProducts validate every line before writing anything.
type Store struct {
	mu        sync.Mutex
	nextID    int64
	Products  map[int64]*models.Product
	Users     map[int64]*models.User
	Ratings   map[int64]map[int64]int
	Orders    map[int64]*models.Order
	Processed map[string]bool
	Stats     map[int64]*models.ArtisanStats
}

func NewStore() *Store {
	return &Store{
		Products:  make(map[int64]*models.Product),
		Users:     make(map[int64]*models.User),
		Ratings:   make(map[int64]map[int64]int),
		Orders:    make(map[int64]*models.Order),
		Processed: make(map[string]bool),
		Stats:     make(map[int64]*models.ArtisanStats),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddUser stores u and assigns its id.
func (s *Store) AddUser(u models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.id()
	u.JoinedAt = time.Now()
	s.Users[u.ID] = &u
	return &u
}

// AddProduct stores p and assigns its id.
func (s *Store) AddProduct(p models.Product) *models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	p.CreatedAt = time.Now().Add(time.Duration(p.ID) * time.Millisecond)
	s.Products[p.ID] = &p
	return &p
}

// Quantity returns the stock of a product and whether it still exists.
func (s *Store) Quantity(id int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Products[id]
	if !ok {
		return 0, false
	}
	return p.Quantity, true
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Orders)
}

func (s *Store) CreateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	p.CreatedAt = time.Now().Add(time.Duration(p.ID) * time.Millisecond)
	p.UpdatedAt = p.CreatedAt
	cp := *p
	s.Products[p.ID] = &cp
	return nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListProducts(_ context.Context, filter models.ProductFilter) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Product{}
	for _, p := range s.Products {
		if filter.Approved != nil && p.Approved != *filter.Approved {
			continue
		}
		if filter.ArtisanID != 0 && p.ArtisanID != filter.ArtisanID {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) UpdateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Products[p.ID]; !ok {
		return fmt.Errorf("product %d: %w", p.ID, models.ErrNotFound)
	}
	cp := *p
	s.Products[p.ID] = &cp
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	delete(s.Products, id)
	return nil
}

func (s *Store) SetProductApproval(_ context.Context, id int64, approved bool) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	p.Approved = approved
	p.Status = models.ProductStatusPending
	if approved {
		p.Status = models.ProductStatusApproved
	}
	cp := *p
	return &cp, nil
}

func (s *Store) UpsertRating(_ context.Context, r *models.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Products[r.ProductID]; !ok {
		return fmt.Errorf("product %d: %w", r.ProductID, models.ErrNotFound)
	}
	if s.Ratings[r.ProductID] == nil {
		s.Ratings[r.ProductID] = make(map[int64]int)
	}
	s.Ratings[r.ProductID][r.UserID] = r.Rating
	return nil
}

func (s *Store) GetRatings(_ context.Context, productID int64) ([]models.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Rating{}
	for userID, rating := range s.Ratings[productID] {
		out = append(out, models.Rating{ProductID: productID, UserID: userID, Rating: rating})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func mergeLines(lines []models.CartLine) []models.CartLine {
	merged := []models.CartLine{}
	index := map[int64]int{}
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

// check validates every line against current stock. Callers hold mu.
func (s *Store) check(lines []models.CartLine) error {
	for _, l := range lines {
		p, ok := s.Products[l.ProductID]
		if !ok || !p.Approved {
			return &models.StockError{ProductID: l.ProductID, Requested: l.Quantity, Missing: true}
		}
		if p.Quantity < l.Quantity {
			return &models.StockError{ProductID: p.ID, Name: p.Name, Requested: l.Quantity, Available: p.Quantity}
		}
	}
	return nil
}

func (s *Store) PlaceOrder(_ context.Context, order *models.Order, lines []models.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(lines) == 0 {
		return models.Invalid("order has no items")
	}
	lines = mergeLines(lines)
	if err := s.check(lines); err != nil {
		return err
	}

	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		p := s.Products[l.ProductID]
		item := models.OrderItem{
			ProductID: p.ID, ArtisanID: p.ArtisanID, Name: p.Name,
			Price: p.Price, Quantity: l.Quantity, Image: p.Image,
		}
		total = total.Add(item.Subtotal())
		items = append(items, item)
	}
	if order.ExpectedTotal != nil && !order.ExpectedTotal.Equal(total) {
		return models.Invalid("totalAmount %s does not match computed total %s", order.ExpectedTotal, total)
	}

	order.ID = s.id()
	order.TotalAmount = total
	order.CreatedAt = time.Now().Add(time.Duration(order.ID) * time.Millisecond)
	order.UpdatedAt = order.CreatedAt
	for i := range items {
		items[i].ID = s.id()
		items[i].OrderID = order.ID
		s.Products[items[i].ProductID].Quantity -= items[i].Quantity
	}
	order.Items = items

	cp := *order
	cp.Items = append([]models.OrderItem(nil), items...)
	s.Orders[order.ID] = &cp
	return nil
}

func (s *Store) BuyProducts(_ context.Context, lines []models.CartLine) (*models.PurchaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(lines) == 0 {
		return nil, models.Invalid("cart is empty")
	}
	lines = mergeLines(lines)
	if err := s.check(lines); err != nil {
		return nil, err
	}

	result := &models.PurchaseResult{Remaining: map[int64]int{}, Deleted: []int64{}}
	seen := map[int64]bool{}
	for _, l := range lines {
		p := s.Products[l.ProductID]
		p.Quantity -= l.Quantity
		if !seen[p.ArtisanID] {
			seen[p.ArtisanID] = true
			result.ArtisanIDs = append(result.ArtisanIDs, p.ArtisanID)
		}
		if p.Quantity <= 0 {
			delete(s.Products, p.ID)
			result.Deleted = append(result.Deleted, p.ID)
			continue
		}
		result.Remaining[p.ID] = p.Quantity
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.Users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return fmt.Errorf("%w: users_username_key", models.ErrConflict)
		}
	}
	u.ID = s.id()
	u.JoinedAt = time.Now()
	cp := *u
	s.Users[u.ID] = &cp
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.Users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByIdentifier(_ context.Context, identifier string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.Users {
		if u.Username == identifier || u.Email == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", identifier, models.ErrNotFound)
}

func (s *Store) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.User{}
	for _, u := range s.Users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Users[u.ID]; !ok {
		return fmt.Errorf("user %d: %w", u.ID, models.ErrNotFound)
	}
	cp := *u
	s.Users[u.ID] = &cp
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Users[id]; !ok {
		return fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	delete(s.Users, id)
	for pid, p := range s.Products {
		if p.ArtisanID == id {
			delete(s.Products, pid)
		}
	}
	return nil
}

func (s *Store) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp, nil
}

// sortedOrders returns orders newest first. Callers hold mu.
func (s *Store) sortedOrders() []*models.Order {
	out := make([]*models.Order, 0, len(s.Orders))
	for _, o := range s.Orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *Store) ListOrders(_ context.Context, filter models.OrderFilter) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Order{}
	for _, o := range s.sortedOrders() {
		if filter.BuyerID != 0 && o.BuyerID != filter.BuyerID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		cp := *o
		cp.Items = nil
		for _, it := range o.Items {
			if filter.ArtisanID == 0 || it.ArtisanID == filter.ArtisanID {
				cp.Items = append(cp.Items, it)
			}
		}
		if filter.ArtisanID != 0 && len(cp.Items) == 0 {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) ListArtisanOrderItems(_ context.Context, artisanID int64) ([]models.ArtisanOrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ArtisanOrderItem{}
	for _, o := range s.sortedOrders() {
		for _, it := range o.Items {
			if it.ArtisanID != artisanID {
				continue
			}
			out = append(out, models.ArtisanOrderItem{
				OrderItem:     it,
				BuyerID:       o.BuyerID,
				OrderStatus:   o.Status,
				PaymentMethod: o.PaymentMethod,
				PaymentStatus: o.PaymentStatus,
				OrderedAt:     o.CreatedAt,
				ShippingInfo:  o.ShippingInfo,
			})
		}
	}
	return out, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	o.Status = status
	return nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, orderID int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	o.PaymentStatus = status
	return nil
}

func (s *Store) ComputeArtisanStats(_ context.Context, artisanID int64) (*models.ArtisanStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.ArtisanStats{ArtisanID: artisanID, AverageRating: decimal.Zero}
	sum, count := 0, 0
	for _, p := range s.Products {
		if p.ArtisanID != artisanID {
			continue
		}
		stats.TotalProducts++
		for _, r := range s.Ratings[p.ID] {
			sum += r
			count++
		}
	}
	if count > 0 {
		stats.AverageRating = decimal.NewFromInt(int64(sum)).DivRound(decimal.NewFromInt(int64(count)), 2)
	}
	for _, o := range s.Orders {
		if o.Status != models.OrderStatusDelivered {
			continue
		}
		for _, it := range o.Items {
			if it.ArtisanID == artisanID {
				stats.SalesCompleted += it.Quantity
			}
		}
	}
	return stats, nil
}

func (s *Store) SaveArtisanStats(_ context.Context, stats *models.ArtisanStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *stats
	s.Stats[stats.ArtisanID] = &cp
	if u, ok := s.Users[stats.ArtisanID]; ok {
		u.TotalProducts = stats.TotalProducts
		u.AverageRating = stats.AverageRating
		u.SalesCompleted = stats.SalesCompleted
	}
	return nil
}

func (s *Store) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Processed[eventID], nil
}

func (s *Store) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Processed[eventID] = true
	return nil
}

// Cache is a JSON cache and idempotency store backed by a map. TTLs are ignored.
type Cache struct {
	mu     sync.Mutex
	values map[string]string
}

func NewCache() *Cache {
	return &Cache{values: make(map[string]string)}
}

func (c *Cache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(v), dest)
}

func (c *Cache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = string(data)
	return nil
}

func (c *Cache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

// Has reports whether key is present.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}

// Set stores a raw value.
func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

func (c *Cache) ClaimIdempotencyKey(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.values["idem:"+key]; ok {
		return v, false, nil
	}
	c.values["idem:"+key] = "pending"
	return "", true, nil
}

func (c *Cache) CompleteIdempotencyKey(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values["idem:"+key] = value
	return nil
}

func (c *Cache) ReleaseIdempotencyKey(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, "idem:"+key)
	return nil
}

// Events records published events.
type Events struct {
	mu     sync.Mutex
	Events []models.BaseEvent
}

func (e *Events) record(base models.BaseEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Events = append(e.Events, base)
	return nil
}

// Types returns the published event types in order.
func (e *Events) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.Events))
	for i, ev := range e.Events {
		out[i] = ev.EventType
	}
	return out
}

func (e *Events) PublishOrderPlaced(_ context.Context, ev *models.OrderPlacedEvent) error {
	return e.record(ev.BaseEvent)
}

func (e *Events) PublishOrderStatusChanged(_ context.Context, ev *models.OrderStatusChangedEvent) error {
	return e.record(ev.BaseEvent)
}

func (e *Events) PublishPaymentProcessed(_ context.Context, ev *models.PaymentProcessedEvent) error {
	return e.record(ev.BaseEvent)
}

func (e *Events) PublishProductEvent(_ context.Context, ev *models.ProductEvent) error {
	return e.record(ev.BaseEvent)
}

func (e *Events) PublishProductsPurchased(_ context.Context, ev *models.ProductsPurchasedEvent) error {
	return e.record(ev.BaseEvent)
}

// Bank simulates the external bank API. Transfers to accounts in FailTo fail.
type Bank struct {
	mu        sync.Mutex
	Accounts  map[string]string
	FailTo    map[string]bool
	Transfers []bank.TransferRequest
}

func NewBank() *Bank {
	return &Bank{Accounts: make(map[string]string), FailTo: make(map[string]bool)}
}

func (b *Bank) GetAccount(_ context.Context, accountNumber string) (*bank.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	name, ok := b.Accounts[accountNumber]
	if !ok {
		return nil, fmt.Errorf("%w: account %s does not exist", models.ErrPayment, accountNumber)
	}
	return &bank.Account{AccountNumber: accountNumber, AccountName: name}, nil
}

func (b *Bank) Transfer(_ context.Context, req bank.TransferRequest) (*bank.TransferReceipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailTo[req.ToAccount] {
		return nil, fmt.Errorf("%w: transfer to %s declined", models.ErrPayment, req.ToAccount)
	}
	b.Transfers = append(b.Transfers, req)
	return &bank.TransferReceipt{
		TransactionID: fmt.Sprintf("tx-%d", len(b.Transfers)),
		Status:        "completed",
	}, nil
}
