package services_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"toko-checkout/internal/database"
	"toko-checkout/internal/models"
	"toko-checkout/internal/repositories"
	"toko-checkout/internal/services"
	"toko-checkout/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// testEnv wires the services over a file-backed SQLite database. BEGIN
// IMMEDIATE makes concurrent write transactions queue on the database lock.
type testEnv struct {
	db       *gorm.DB
	store    *repositories.GORMStore
	metrics  *metrics.Metrics
	checkout *services.CheckoutService
	orders   *services.OrderService
	payments *services.PaymentService
	carts    *services.CartService
}

func newTestEnv(t *testing.T, cfg services.OrderConfig) *testEnv {
	return newTestEnvWithBusyTimeout(t, cfg, 5000)
}

func newTestEnvWithBusyTimeout(t *testing.T, cfg services.OrderConfig, busyMS int) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d", filepath.Join(t.TempDir(), "checkout.db"), busyMS)
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn, MaxOpenConns: 8})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { database.Close(db) })

	store := repositories.NewGORMStore(db)
	m := metrics.New(prometheus.NewRegistry())
	guard := services.NewIdempotencyGuard(store.Orders(), nil)
	return &testEnv{
		db:       db,
		store:    store,
		metrics:  m,
		checkout: services.NewCheckoutService(store.Products(), store.Carts(), nil),
		orders:   services.NewOrderService(store, guard, nil, m, cfg),
		payments: services.NewPaymentService(store, m, "", 0),
		carts:    services.NewCartService(store.Carts(), store.Products()),
	}
}

func (e *testEnv) seedProduct(t *testing.T, id, unitPrice string, stock int) {
	t.Helper()
	require.NoError(t, e.store.Products().Create(context.Background(), &models.Product{
		ID:     id,
		Name:   "Product " + id,
		Price:  price(unitPrice),
		Stock:  stock,
		Status: models.ProductActive,
	}))
}

func (e *testEnv) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := e.store.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (e *testEnv) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

func direct(items ...models.DirectItem) models.DirectSource {
	return models.DirectSource{Items: items}
}

func item(productID string, qty int) models.DirectItem {
	return models.DirectItem{ProductID: productID, Quantity: qty}
}

func orderRequest(key string, source models.ItemSource) services.CreateOrderRequest {
	return services.CreateOrderRequest{Source: source, IdempotencyKey: key}
}

var patientRetry = services.OrderConfig{
	TxTimeout:   10 * time.Second,
	MaxAttempts: 5,
	BaseDelay:   10 * time.Millisecond,
}
