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

func newProductService(t *testing.T) (*ProductService, *servicetest.Store, *servicetest.Cache, *servicetest.Events) {
	t.Helper()
	store := servicetest.NewStore()
	cache := servicetest.NewCache()
	events := &servicetest.Events{}
	return NewProductService(store, cache, events, 0), store, cache, events
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func approvedOnly() models.ProductFilter {
	approved := true
	return models.ProductFilter{Approved: &approved}
}

func TestCreateProductStartsPending(t *testing.T) {
	svc, _, _, events := newProductService(t)
	artisan := Actor{UserID: 7, Role: models.RoleArtisan}

	p, err := svc.Create(context.Background(), artisan, ProductInput{
		Name:     strPtr("Banig mat"),
		Price:    decPtr("349.999"),
		Quantity: intPtr(5),
		Category: strPtr("weaving"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.ProductStatusPending, p.Status)
	assert.False(t, p.Approved)
	assert.Equal(t, int64(7), p.ArtisanID)
	assert.Equal(t, "350", p.Price.String())
	assert.Equal(t, []string{models.EventTypeProductCreated}, events.Types())
}

func TestCreateProductValidation(t *testing.T) {
	svc, _, _, _ := newProductService(t)
	artisan := Actor{UserID: 7, Role: models.RoleArtisan}

	_, err := svc.Create(context.Background(), artisan, ProductInput{Name: strPtr("Banig mat")})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.Create(context.Background(), artisan, ProductInput{
		Name: strPtr("Banig mat"), Price: decPtr("-1"), Quantity: intPtr(1), Category: strPtr("weaving"),
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.Create(context.Background(), artisan, ProductInput{
		Name: strPtr("Banig mat"), Price: decPtr("10"), Quantity: intPtr(-1), Category: strPtr("weaving"),
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestApproveAndRejectToggleCatalog(t *testing.T) {
	svc, store, cache, _ := newProductService(t)
	p := store.AddProduct(models.Product{Name: "Capiz lamp", Price: decimal.NewFromInt(900), ArtisanID: 7, Quantity: 3,
		Status: models.ProductStatusPending})
	ctx := context.Background()

	listed, err := svc.List(ctx, approvedOnly())
	require.NoError(t, err)
	assert.Empty(t, listed)
	assert.True(t, cache.Has(catalogCacheKey))

	approved, err := svc.Approve(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductStatusApproved, approved.Status)
	assert.True(t, approved.Approved)
	assert.False(t, cache.Has(catalogCacheKey), "approval must invalidate the catalog cache")

	listed, err = svc.List(ctx, approvedOnly())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, p.ID, listed[0].ID)

	rejected, err := svc.Reject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductStatusPending, rejected.Status)
	assert.False(t, rejected.Approved)

	listed, err = svc.List(ctx, approvedOnly())
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestApproveUnknownProduct(t *testing.T) {
	svc, _, _, _ := newProductService(t)
	_, err := svc.Approve(context.Background(), 404)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateProductOwnership(t *testing.T) {
	svc, store, _, _ := newProductService(t)
	p := store.AddProduct(models.Product{Name: "Burnay jar", Price: decimal.NewFromInt(850), ArtisanID: 7, Quantity: 2,
		Status: models.ProductStatusApproved, Approved: true})
	ctx := context.Background()

	_, err := svc.Update(ctx, Actor{UserID: 8, Role: models.RoleArtisan}, p.ID, ProductInput{Quantity: intPtr(9)})
	assert.ErrorIs(t, err, models.ErrForbidden)

	updated, err := svc.Update(ctx, Actor{UserID: 7, Role: models.RoleArtisan}, p.ID, ProductInput{Quantity: intPtr(9)})
	require.NoError(t, err)
	assert.Equal(t, 9, updated.Quantity)
	assert.True(t, updated.Approved, "editing keeps approval")

	err = svc.Delete(ctx, Actor{UserID: 8, Role: models.RoleArtisan}, p.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	err = svc.Delete(ctx, Actor{UserID: 1, Role: models.RoleAdmin}, p.ID)
	require.NoError(t, err)
	_, ok := store.Quantity(p.ID)
	assert.False(t, ok)
}

func TestBuyRemovesSoldOutProducts(t *testing.T) {
	svc, store, _, events := newProductService(t)
	sold := store.AddProduct(models.Product{Name: "Abaca bag", Price: decimal.NewFromInt(250), ArtisanID: 7, Quantity: 2,
		Status: models.ProductStatusApproved, Approved: true})
	kept := store.AddProduct(models.Product{Name: "Inabel runner", Price: decimal.NewFromInt(900), ArtisanID: 8, Quantity: 5,
		Status: models.ProductStatusApproved, Approved: true})
	ctx := context.Background()

	result, err := svc.Buy(ctx, []models.CartLine{
		{ProductID: sold.ID, Quantity: 2},
		{ProductID: kept.ID, Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{sold.ID}, result.Deleted)
	assert.Equal(t, map[int64]int{kept.ID: 4}, result.Remaining)
	assert.ElementsMatch(t, []int64{7, 8}, result.ArtisanIDs)
	assert.Equal(t, []string{models.EventTypeProductsPurchased}, events.Types())

	listed, err := svc.List(ctx, approvedOnly())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, kept.ID, listed[0].ID)
}

func TestBuyInsufficientStockChangesNothing(t *testing.T) {
	svc, store, _, _ := newProductService(t)
	a := store.AddProduct(models.Product{Name: "Abaca bag", Price: decimal.NewFromInt(250), ArtisanID: 7, Quantity: 2,
		Status: models.ProductStatusApproved, Approved: true})
	b := store.AddProduct(models.Product{Name: "Inabel runner", Price: decimal.NewFromInt(900), ArtisanID: 8, Quantity: 1,
		Status: models.ProductStatusApproved, Approved: true})

	_, err := svc.Buy(context.Background(), []models.CartLine{
		{ProductID: a.ID, Quantity: 1},
		{ProductID: b.ID, Quantity: 3},
	})
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	qa, _ := store.Quantity(a.ID)
	qb, _ := store.Quantity(b.ID)
	assert.Equal(t, 2, qa)
	assert.Equal(t, 1, qb)
}

func TestRateUpsertsAndSummarizes(t *testing.T) {
	svc, store, _, events := newProductService(t)
	p := store.AddProduct(models.Product{Name: "Capiz lamp", Price: decimal.NewFromInt(900), ArtisanID: 7, Quantity: 3})
	ctx := context.Background()

	_, err := svc.Rate(ctx, Actor{UserID: 20, Role: models.RoleBuyer}, p.ID, 5)
	require.NoError(t, err)
	_, err = svc.Rate(ctx, Actor{UserID: 21, Role: models.RoleBuyer}, p.ID, 4)
	require.NoError(t, err)
	summary, err := svc.Rate(ctx, Actor{UserID: 20, Role: models.RoleBuyer}, p.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, "3", summary.Average.String())
	assert.Len(t, events.Types(), 3)

	_, err = svc.Rate(ctx, Actor{UserID: 20, Role: models.RoleBuyer}, p.ID, 6)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.Rate(ctx, Actor{UserID: 20, Role: models.RoleBuyer}, 404, 3)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSummarizeRounds(t *testing.T) {
	s := summarize(1, []models.Rating{{Rating: 5}, {Rating: 4}, {Rating: 4}})
	assert.Equal(t, "4.33", s.Average.String())

	empty := summarize(1, nil)
	assert.True(t, empty.Average.IsZero())
	assert.Zero(t, empty.Count)
}
