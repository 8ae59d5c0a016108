package service

import (
	"context"
	"testing"

	"sinilikhain/internal/models"
	"sinilikhain/internal/service/servicetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleEventRecomputesArtisanStats(t *testing.T) {
	store := servicetest.NewStore()
	artisan := store.AddUser(models.User{Username: "weaver", Email: "weaver@example.com", Role: models.RoleArtisan})
	p1 := store.AddProduct(models.Product{Name: "Banig mat", Price: decimal.NewFromInt(100), ArtisanID: artisan.ID, Quantity: 5, Approved: true})
	store.AddProduct(models.Product{Name: "Abaca bag", Price: decimal.NewFromInt(250), ArtisanID: artisan.ID, Quantity: 1, Approved: true})
	ctx := context.Background()

	require.NoError(t, store.UpsertRating(ctx, &models.Rating{ProductID: p1.ID, UserID: 50, Rating: 5}))
	require.NoError(t, store.UpsertRating(ctx, &models.Rating{ProductID: p1.ID, UserID: 51, Rating: 4}))

	order := &models.Order{BuyerID: 50, Status: models.OrderStatusPending}
	require.NoError(t, store.PlaceOrder(ctx, order, []models.CartLine{{ProductID: p1.ID, Quantity: 3}}))
	require.NoError(t, store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusDelivered))

	svc := NewStatsService(store)
	event := models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeOrderStatusChanged, ArtisanIDs: []int64{artisan.ID}}
	require.NoError(t, svc.HandleEvent(ctx, event, nil))

	stats := store.Stats[artisan.ID]
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.TotalProducts)
	assert.Equal(t, "4.5", stats.AverageRating.String())
	assert.Equal(t, 3, stats.SalesCompleted)

	updated, err := store.GetUserByID(ctx, artisan.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.SalesCompleted)
	assert.True(t, store.Processed["evt-1"])
}

func TestHandleEventSkipsProcessedEvents(t *testing.T) {
	store := servicetest.NewStore()
	artisan := store.AddUser(models.User{Username: "weaver", Email: "weaver@example.com", Role: models.RoleArtisan})
	ctx := context.Background()
	require.NoError(t, store.MarkEventProcessed(ctx, "evt-1", models.EventTypeProductCreated))

	svc := NewStatsService(store)
	event := models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeProductCreated, ArtisanIDs: []int64{artisan.ID}}
	require.NoError(t, svc.HandleEvent(ctx, event, nil))

	assert.Nil(t, store.Stats[artisan.ID])
}
