package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	OrderStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_changes_total",
		Help: "Order status transitions by target status",
	}, []string{"status"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of the stock check, order insert and inventory decrement transaction",
		Buckets: prometheus.DefBuckets,
	})

	ProductsPurchasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_purchased_total",
		Help: "Units sold through the cart-decrement pathway",
	})

	SoldOutProductsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sold_out_products_deleted_total",
		Help: "Products deleted after their stock reached zero",
	})

	ProductModerationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_moderation_total",
		Help: "Admin approve/reject actions",
	}, []string{"action"})

	CatalogCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_requests_total",
		Help: "Approved catalog cache lookups",
	}, []string{"result"})

	BankTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_transfers_total",
		Help: "Transfers requested from the bank API",
	}, []string{"result"})

	BankRequestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bank_request_latency_seconds",
		Help:    "Latency of bank API calls",
		Buckets: prometheus.DefBuckets,
	})

	StatsRecomputedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artisan_stats_recomputed_total",
		Help: "Artisan statistics recomputations",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
