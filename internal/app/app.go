// Package app wires configuration, storage, brokers and HTTP routes into a
// runnable checkout service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"toko-checkout/internal/cache"
	"toko-checkout/internal/config"
	"toko-checkout/internal/database"
	"toko-checkout/internal/handlers"
	"toko-checkout/internal/middleware"
	"toko-checkout/internal/outbox"
	"toko-checkout/internal/repositories"
	"toko-checkout/internal/services"
	"toko-checkout/pkg/kafka"
	"toko-checkout/pkg/metrics"
	"toko-checkout/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	shutdownTimeout      = 10 * time.Second
	consumerRestartDelay = 5 * time.Second
)

// App is the assembled service. Background workers start with Start and
// everything is released by Shutdown.
type App struct {
	cfg     *config.Config
	Fiber   *fiber.App
	DB      *gorm.DB
	Metrics *metrics.Metrics

	redis  *redis.Client
	rabbit *rabbitmq.Client
	kafka  *kafka.Client

	relay   *outbox.Relay
	consume func(ctx context.Context) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the database, runs migrations, connects the optional cache and
// broker and registers every route.
func New(cfg *config.Config) (*App, error) {
	db, err := database.Open(database.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		LogSQL:       cfg.Database.LogSQL,
	})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		database.Close(db)
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		DB:      db,
		Metrics: metrics.New(prometheus.NewRegistry()),
	}
	if err := a.connectBroker(); err != nil {
		a.Shutdown()
		return nil, err
	}
	a.build()
	return a, nil
}

func (a *App) idempotencyCache() cache.IdempotencyCache {
	if a.cfg.Redis.Addr == "" {
		return nil
	}
	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	c := cache.NewRedisCache(a.redis, a.cfg.Redis.IdempotencyTTL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		// Orders stay correct without the cache; only the fast path is lost.
		log.Printf("Redis at %s unavailable, idempotency cache disabled: %v", a.cfg.Redis.Addr, err)
		return nil
	}
	log.Printf("Idempotency cache connected to Redis at %s", a.cfg.Redis.Addr)
	return c
}

// connectBroker sets up the outbox publisher and the payment result consumer
// for the configured events driver.
func (a *App) connectBroker() error {
	switch a.cfg.Events.Driver {
	case "rabbitmq":
		client, err := rabbitmq.NewClient(rabbitmq.Config{URL: a.cfg.Events.RabbitMQURL})
		if err != nil {
			return err
		}
		a.rabbit = client
	case "kafka":
		client := kafka.NewClient(a.cfg.Events.KafkaBrokers)
		if !client.Enabled() {
			return errors.New("events.driver is kafka but kafka.brokers is empty")
		}
		a.kafka = client
	default:
		log.Println("No events driver configured; outbox messages stay unsent")
	}
	return nil
}

func (a *App) build() {
	cfg := a.cfg
	store := repositories.NewGORMStore(a.DB)
	pricing := services.NewPricingPolicy(cfg.Checkout.ShippingFlat)

	guard := services.NewIdempotencyGuard(store.Orders(), a.idempotencyCache())
	authService := services.NewAuthService(repositories.NewGORMUserRepository(a.DB), cfg.JWT.Secret, cfg.JWT.TTL)
	productService := services.NewProductService(store.Products())
	cartService := services.NewCartService(store.Carts(), store.Products())
	checkoutService := services.NewCheckoutService(store.Products(), store.Carts(), pricing)
	orderService := services.NewOrderService(store, guard, pricing, a.Metrics, services.OrderConfig{
		TxTimeout:   cfg.Checkout.TxTimeout,
		LockTimeout: cfg.Checkout.LockTimeout,
		MaxAttempts: cfg.Checkout.RetryMaxAttempts,
		BaseDelay:   cfg.Checkout.RetryBaseDelay,
		EventTopic:  cfg.Events.OrderTopic,
	})
	paymentService := services.NewPaymentService(store, a.Metrics, cfg.Events.OrderTopic, cfg.Checkout.LockTimeout)

	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg.Webhook.Secret)
	switch {
	case a.rabbit != nil:
		a.relay = outbox.NewRelay(store.Outbox(), a.rabbit, a.Metrics, cfg.Outbox.Interval, cfg.Outbox.BatchSize)
		a.consume = func(ctx context.Context) error {
			return a.rabbit.Consume(ctx, cfg.Events.PaymentTopic, paymentHandler.HandlePaymentResultMessage)
		}
	case a.kafka != nil:
		a.relay = outbox.NewRelay(store.Outbox(), a.kafka, a.Metrics, cfg.Outbox.Interval, cfg.Outbox.BatchSize)
		a.consume = func(ctx context.Context) error {
			return a.kafka.Consume(ctx, cfg.Events.PaymentTopic, cfg.Events.ConsumerGroup, paymentHandler.HandlePaymentResultMessage)
		}
	}

	app := fiber.New(fiber.Config{AppName: "toko-checkout"})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(middleware.Metrics(a.Metrics))

	app.Get("/health", a.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(a.Metrics.Handler()))

	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(authService).RegisterRoutes(apiV1)
	paymentHandler.RegisterRoutes(apiV1)

	protected := apiV1.Group("", middleware.AuthRequired(authService))
	handlers.NewProductHandler(productService).RegisterRoutes(protected)
	handlers.NewCartHandler(cartService).RegisterRoutes(protected)
	handlers.NewCheckoutHandler(checkoutService, orderService, paymentService).RegisterRoutes(protected)

	a.Fiber = app
}

func (a *App) handleHealth(c *fiber.Ctx) error {
	if err := database.Ping(a.DB); err != nil {
		log.Printf("Health check failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
		"events": a.cfg.Events.Driver,
	})
}

// Start launches the outbox relay and the payment result consumer when a
// broker is configured.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.relay != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.relay.Run(ctx)
		}()
	}
	if a.consume != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.consumeLoop(ctx)
		}()
	}
}

// consumeLoop restarts the consumer after broker errors until ctx ends.
func (a *App) consumeLoop(ctx context.Context) {
	log.Printf("Starting payment result consumer on %s", a.cfg.Events.PaymentTopic)
	for {
		err := a.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("Payment result consumer stopped: %v; restarting in %s", err, consumerRestartDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(consumerRestartDelay):
		}
	}
}

// Listen serves HTTP on the configured port until Shutdown.
func (a *App) Listen() error {
	log.Printf("Starting server on port %s", a.cfg.App.Port)
	return a.Fiber.Listen(a.cfg.App.Port)
}

// Shutdown stops the HTTP server and background workers, then closes the
// broker, cache and database connections.
func (a *App) Shutdown() error {
	var errs []error
	if a.Fiber != nil {
		if err := a.Fiber.ShutdownWithTimeout(shutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down HTTP server: %w", err))
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.rabbit != nil {
		if err := a.rabbit.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	if err := database.Close(a.DB); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
