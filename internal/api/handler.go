package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"sinilikhain/internal/models"
	"sinilikhain/internal/service"
	"sinilikhain/internal/uploads"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	products *service.ProductService
	users    *service.UserService
	orders   *service.OrderService
	tokens   TokenParser
	images   uploads.Store

	// UploadDir, when set, is served at /uploads.
	UploadDir string
	// AllowedOrigins configures CORS. Empty disables the middleware.
	AllowedOrigins []string
	// Checks are pinged by /ready.
	Checks map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	products *service.ProductService,
	users *service.UserService,
	orders *service.OrderService,
	tokens TokenParser,
	images uploads.Store,
) *Handler {
	return &Handler{
		products: products,
		users:    users,
		orders:   orders,
		tokens:   tokens,
		images:   images,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	if len(h.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     h.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if h.UploadDir != "" {
		router.Static(uploads.PublicPrefix, h.UploadDir)
	}

	authed := Authenticate(h.tokens)
	adminOnly := RequireRole(models.RoleAdmin)
	sellers := RequireRole(models.RoleArtisan, models.RoleAdmin)

	products := router.Group("/products")
	{
		products.GET("", h.listProducts)
		products.GET("/:id", h.getProduct)
		products.POST("", authed, sellers, h.createProduct)
		products.PUT("/:id", authed, sellers, h.updateProduct)
		products.DELETE("/:id", authed, sellers, h.deleteProduct)
		products.PATCH("/:id/approve", authed, adminOnly, h.approveProduct)
		products.PATCH("/:id/reject", authed, adminOnly, h.rejectProduct)
		products.POST("/buy", authed, h.buyProducts)
		products.POST("/:id/rate", authed, h.rateProduct)
	}

	users := router.Group("/users")
	{
		users.POST("/register", h.register)
		users.POST("/login", h.login)
		users.GET("/all", authed, adminOnly, h.listUsers)
		users.GET("/:id", authed, h.getUser)
		users.PUT("/:id", authed, h.updateUser)
		users.DELETE("/:id", authed, adminOnly, h.deleteUser)
	}

	orders := router.Group("/orders", authed)
	{
		orders.POST("", h.createOrder)
		orders.GET("", h.listOrders)
		orders.GET("/user/:userId", h.listBuyerOrders)
		orders.GET("/artisan/:artisanId", sellers, h.listArtisanItems)
		orders.GET("/:id", h.getOrder)
		orders.PATCH("/:id/status", sellers, h.updateOrderStatus)
		orders.PATCH("/:id/payment", adminOnly, h.updatePaymentStatus)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.Checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// idParam parses a positive integer path parameter.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name, err)
		return 0, false
	}
	return id, true
}
