package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"sinilikhain/internal/auth"
	"sinilikhain/internal/models"
	"sinilikhain/internal/service"
	"sinilikhain/internal/service/servicetest"
	"sinilikhain/internal/uploads"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router  *gin.Engine
	store   *servicetest.Store
	tokens  *auth.TokenIssuer
	dir     string
	admin   *models.User
	artisan *models.User
	other   *models.User
	buyer   *models.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := servicetest.NewStore()
	cache := servicetest.NewCache()
	events := &servicetest.Events{}
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)

	dir := t.TempDir()
	images, err := uploads.NewLocalStore(dir)
	require.NoError(t, err)

	products := service.NewProductService(store, cache, events, time.Minute)
	users := service.NewUserService(store, tokens, cache)
	payments := service.NewPaymentService(store, store, servicetest.NewBank(), events)
	orders := service.NewOrderService(store, cache, cache, events, payments, time.Minute)

	h := NewHandler(products, users, orders, tokens, images)
	h.UploadDir = dir
	router := gin.New()
	h.SetupRoutes(router)

	return &testServer{
		router:  router,
		store:   store,
		tokens:  tokens,
		dir:     dir,
		admin:   store.AddUser(models.User{Username: "admin", Email: "admin@example.com", Role: models.RoleAdmin}),
		artisan: store.AddUser(models.User{Username: "weaver", Email: "weaver@example.com", Role: models.RoleArtisan}),
		other:   store.AddUser(models.User{Username: "potter", Email: "potter@example.com", Role: models.RoleArtisan}),
		buyer:   store.AddUser(models.User{Username: "maria", Email: "maria@example.com", Role: models.RoleBuyer}),
	}
}

func (s *testServer) token(t *testing.T, u *models.User) string {
	t.Helper()
	token, err := s.tokens.Issue(u)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path string, as *models.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(t, as))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) product(artisan *models.User, name string, price int64, qty int, approved bool) *models.Product {
	status := models.ProductStatusPending
	if approved {
		status = models.ProductStatusApproved
	}
	return s.store.AddProduct(models.Product{
		Name: name, Price: decimal.NewFromInt(price), ArtisanID: artisan.ID,
		Quantity: qty, Category: "crafts", Status: status, Approved: approved,
	})
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func productIDs(products []models.Product) []int64 {
	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}

var shippingBody = map[string]string{
	"fullName": "Maria Clara", "address": "12 Calle Crisologo", "city": "Vigan",
	"postalCode": "2700", "phone": "09171234567",
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckoutScenario(t *testing.T) {
	s := newTestServer(t)
	p := s.product(s.artisan, "Banig mat", 100, 5, true)

	w := s.do(t, http.MethodPost, "/orders", s.buyer, gin.H{
		"items":        []gin.H{{"productId": p.ID, "quantity": 2, "price": "100", "name": "Banig mat"}},
		"shippingInfo": shippingBody,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[service.CreateOrderResponse](t, w)
	assert.True(t, decimal.NewFromInt(200).Equal(resp.Order.TotalAmount))
	assert.Equal(t, models.OrderStatusPending, resp.Order.Status)
	assert.Equal(t, models.PaymentStatusPending, resp.Order.PaymentStatus)
	assert.Equal(t, "Vigan", resp.Order.City)

	qty, _ := s.store.Quantity(p.ID)
	assert.Equal(t, 3, qty)
}

func TestCheckoutInsufficientStockIsConflict(t *testing.T) {
	s := newTestServer(t)
	p1 := s.product(s.artisan, "Banig mat", 100, 5, true)
	p2 := s.product(s.artisan, "Capiz lamp", 900, 1, true)

	w := s.do(t, http.MethodPost, "/orders", s.buyer, gin.H{
		"items":        []gin.H{{"productId": p1.ID, "quantity": 2}, {"productId": p2.ID, "quantity": 2}},
		"shippingInfo": shippingBody,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	body := decode[map[string]string](t, w)
	assert.Equal(t, "Insufficient stock", body["error"])
	assert.Contains(t, body["details"], "Capiz lamp")

	q1, _ := s.store.Quantity(p1.ID)
	assert.Equal(t, 5, q1)
	assert.Zero(t, s.store.OrderCount())
}

func TestCheckoutRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/orders", nil, gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutIdempotencyHeader(t *testing.T) {
	s := newTestServer(t)
	p := s.product(s.artisan, "Banig mat", 100, 5, true)
	body := gin.H{
		"items":        []gin.H{{"productId": p.ID, "quantity": 1}},
		"shippingInfo": shippingBody,
	}

	send := func() *httptest.ResponseRecorder {
		data, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.token(t, s.buyer))
		req.Header.Set("Idempotency-Key", "cart-123")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, send().Code)
	assert.Equal(t, http.StatusOK, send().Code)
	assert.Equal(t, 1, s.store.OrderCount())
}

func TestBuyToZeroHidesProduct(t *testing.T) {
	s := newTestServer(t)
	p := s.product(s.artisan, "Abaca bag", 250, 2, true)

	w := s.do(t, http.MethodPost, "/products/buy", s.buyer, gin.H{
		"items": []gin.H{{"productId": p.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, path := range []string{"/products", "/products?approved=true"} {
		w = s.do(t, http.MethodGet, path, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, productIDs(decode[[]models.Product](t, w)), p.ID, path)
	}

	w = s.do(t, http.MethodGet, "/products/"+itoa(p.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApproveAndRejectControlStorefront(t *testing.T) {
	s := newTestServer(t)
	p := s.product(s.artisan, "Capiz lamp", 900, 3, false)

	listed := func() []int64 {
		w := s.do(t, http.MethodGet, "/products?approved=true", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		return productIDs(decode[[]models.Product](t, w))
	}

	assert.NotContains(t, listed(), p.ID)

	w := s.do(t, http.MethodPatch, "/products/"+itoa(p.ID)+"/approve", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, listed(), p.ID)

	w = s.do(t, http.MethodPatch, "/products/"+itoa(p.ID)+"/reject", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, listed(), p.ID)
}

func TestModerationRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	p := s.product(s.artisan, "Capiz lamp", 900, 3, false)

	w := s.do(t, http.MethodPatch, "/products/"+itoa(p.ID)+"/approve", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPatch, "/products/"+itoa(p.ID)+"/approve", s.artisan, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/users/all", s.buyer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/users/all", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.User](t, w), 4)
}

func TestArtisanOrdersShowOnlyOwnItems(t *testing.T) {
	s := newTestServer(t)
	mine := s.product(s.artisan, "Inabel blanket", 1200, 4, true)
	theirs := s.product(s.other, "Burnay jar", 850, 10, true)

	w := s.do(t, http.MethodPost, "/orders", s.buyer, gin.H{
		"items":        []gin.H{{"productId": mine.ID, "quantity": 1}, {"productId": theirs.ID, "quantity": 2}},
		"shippingInfo": shippingBody,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/orders/artisan/"+itoa(s.artisan.ID), s.artisan, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items := decode[[]models.ArtisanOrderItem](t, w)
	require.Len(t, items, 1)
	assert.Equal(t, mine.ID, items[0].ProductID)
	assert.Equal(t, s.artisan.ID, items[0].ArtisanID)

	w = s.do(t, http.MethodGet, "/orders/artisan/"+itoa(s.other.ID), s.artisan, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/orders/artisan/"+itoa(s.artisan.ID), s.buyer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOrderStatusAndBuyerHistory(t *testing.T) {
	s := newTestServer(t)
	p := s.product(s.artisan, "Inabel blanket", 1200, 4, true)

	w := s.do(t, http.MethodPost, "/orders", s.buyer, gin.H{
		"items":        []gin.H{{"productId": p.ID, "quantity": 1}},
		"shippingInfo": shippingBody,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decode[service.CreateOrderResponse](t, w).Order.ID

	w = s.do(t, http.MethodPatch, "/orders/"+itoa(orderID)+"/status", s.artisan, gin.H{"status": models.OrderStatusShipped})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPatch, "/orders/"+itoa(orderID)+"/status", s.artisan, gin.H{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/orders/"+itoa(orderID)+"/payment", s.artisan, gin.H{"paymentStatus": models.PaymentStatusPaid})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, "/orders/"+itoa(orderID)+"/payment", s.admin, gin.H{"paymentStatus": models.PaymentStatusPaid})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/orders/user/"+itoa(s.buyer.ID), s.buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]models.Order](t, w)
	require.Len(t, history, 1)
	assert.Equal(t, models.OrderStatusShipped, history[0].Status)
	assert.Equal(t, models.PaymentStatusPaid, history[0].PaymentStatus)

	w = s.do(t, http.MethodGet, "/orders/user/"+itoa(s.buyer.ID), s.other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/orders/"+itoa(orderID), s.buyer, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/orders/abc", s.buyer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/users/register", nil, gin.H{
		"username": "juan", "email": "juan@example.com", "password": "password1", "role": "artisan",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")

	w = s.do(t, http.MethodPost, "/users/register", nil, gin.H{
		"username": "juan", "email": "juan2@example.com", "password": "password1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/users/login", nil, gin.H{"identifier": "juan@example.com", "password": "password1"})
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[service.LoginResult](t, w)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, models.RoleArtisan, result.User.Role)

	w = s.do(t, http.MethodPost, "/users/login", nil, gin.H{"username": "juan", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// doMultipart sends fields plus a PNG image part named filename.
func (s *testServer) doMultipart(t *testing.T, method, path string, as *models.User, fields map[string]string, filename string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token(t, as))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestCreateProductWithImageUpload(t *testing.T) {
	s := newTestServer(t)

	w := s.doMultipart(t, http.MethodPost, "/products", s.artisan, map[string]string{
		"name": "Banig mat", "price": "349.50", "quantity": "5", "category": "weaving", "description": "Handwoven",
	}, "banig.png")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	p := decode[models.Product](t, w)
	assert.Equal(t, models.ProductStatusPending, p.Status)
	assert.False(t, p.Approved)
	assert.Equal(t, s.artisan.ID, p.ArtisanID)
	require.True(t, strings.HasPrefix(p.Image, uploads.PublicPrefix+"/"), p.Image)

	_, err := os.Stat(filepath.Join(s.dir, strings.TrimPrefix(p.Image, uploads.PublicPrefix+"/")))
	assert.NoError(t, err)

	w = s.do(t, http.MethodGet, p.Image, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadedImageKeepsImageExtension(t *testing.T) {
	s := newTestServer(t)

	w := s.doMultipart(t, http.MethodPost, "/products", s.artisan, map[string]string{
		"name": "Banig mat", "price": "100", "quantity": "1", "category": "weaving",
	}, "banig.html")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	p := decode[models.Product](t, w)
	assert.Equal(t, ".png", filepath.Ext(p.Image))
	w = s.do(t, http.MethodGet, p.Image, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Header().Get("Content-Type"), "text/html")
}

func TestForbiddenEditStoresNoImage(t *testing.T) {
	s := newTestServer(t)
	p := s.product(s.artisan, "Banig mat", 100, 3, true)

	w := s.doMultipart(t, http.MethodPut, "/products/"+itoa(p.ID), s.other, map[string]string{"name": "Mine now"}, "banig.png")
	assert.Equal(t, http.StatusForbidden, w.Code)

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuyerCannotCreateProduct(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/products", s.buyer, gin.H{
		"name": "Fake", "price": "1", "quantity": 1, "category": "x",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateProduct(t *testing.T) {
	s := newTestServer(t)
	p := s.product(s.artisan, "Capiz lamp", 900, 3, true)

	w := s.do(t, http.MethodPost, "/products/"+itoa(p.ID)+"/rate", s.buyer, gin.H{"rating": 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[models.RatingSummary](t, w)
	assert.Equal(t, 1, summary.Count)

	w = s.do(t, http.MethodPost, "/products/"+itoa(p.ID)+"/rate", s.buyer, gin.H{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUserProfileVisibility(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/users/"+itoa(s.artisan.ID), s.buyer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, decode[map[string]any](t, w), "email")

	w = s.do(t, http.MethodGet, "/users/"+itoa(s.artisan.ID), s.artisan, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "weaver@example.com", decode[map[string]any](t, w)["email"])
}
