package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment-service/config"
	"fulfillment-service/controllers"
	"fulfillment-service/database"
	"fulfillment-service/logger"
	"fulfillment-service/middleware"
	aws_pkg "fulfillment-service/pkg/aws"
	"fulfillment-service/providers"
	"fulfillment-service/repository"
	"fulfillment-service/routes"
	"fulfillment-service/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	zapLogger, err := logger.New(cfg.Env)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer zapLogger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Database ---
	db, err := database.ConnectPostgres(cfg.Postgres, zapLogger)
	if err != nil {
		zapLogger.Fatal("DB connection failed", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		zapLogger.Fatal("Migration failed", zap.Error(err))
	}

	// --- Redis (optional) ---
	var redisClient *redis.Client
	guard := services.NoopCallbackGuard()
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(cfg.RedisURL, zapLogger)
		if err != nil {
			zapLogger.Warn("Redis unavailable, callback dedupe relies on row locks only", zap.Error(err))
		} else {
			guard = services.NewRedisCallbackGuard(redisClient, cfg.CallbackGuardTTL, zapLogger)
		}
	}

	// --- AWS setup (non-fatal) ---
	var snsPublisher aws_pkg.SNSPublisher
	if cfg.InvoiceEventsTopicARN != "" {
		awsCfg, err := aws_pkg.LoadAWSConfig(context.Background())
		if err != nil {
			zapLogger.Warn("Failed to load AWS config, invoice events disabled", zap.Error(err))
		} else {
			snsPublisher = aws_pkg.NewSNSClient(awsCfg)
		}
	}

	// --- Dependency injection ---
	uow := repository.NewUnitOfWork(db)
	resolver := repository.NewRefResolver()
	registry := providers.NewRegistryFromSettings(cfg.GatewaySettings(), zapLogger)
	events := services.NewInvoiceEvents(snsPublisher, cfg.InvoiceEventsTopicARN, zapLogger)

	ledger := services.NewInventoryLedger(zapLogger)
	couponEngine := services.NewCouponEngine(zapLogger)
	pricing := services.NewPricingCalculator(cfg.PricingConfig())
	allocationService := services.NewAllocationService(uow, ledger, couponEngine, zapLogger)

	checkoutService := services.NewCheckoutService(uow, ledger, couponEngine, pricing, events, zapLogger)
	cartService := services.NewCartService(uow, couponEngine, pricing, zapLogger)
	invoiceService := services.NewInvoiceService(uow, allocationService, events, zapLogger)
	paymentService := services.NewPaymentService(uow, registry, resolver, allocationService, guard, events, zapLogger)

	checkoutController := controllers.NewCheckoutController(checkoutService, cartService)
	invoiceController := controllers.NewInvoiceController(invoiceService)
	paymentController := controllers.NewPaymentController(paymentService)

	// --- HTTP router ---
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(zapLogger))
	r.Use(middleware.Timeout(30 * time.Second))

	callbackLimiter := middleware.PerMinute(cfg.CallbackRatePerMinute)

	routes.RegisterCheckoutRoutes(r, checkoutController)
	routes.RegisterInvoiceRoutes(r, invoiceController, paymentController)
	routes.RegisterPaymentRoutes(r, paymentController, callbackLimiter)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "OK",
			"service":   "fulfillment-service",
			"providers": registry.EnabledNames(),
		})
	})

	// --- HTTP server ---
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		zapLogger.Info("Fulfillment Service started", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Initiating graceful shutdown...")
	httpShutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(httpShutdownCtx); err != nil {
		zapLogger.Error("Server shutdown error", zap.Error(err))
	}

	callbackLimiter.Close()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			zapLogger.Error("Redis close error", zap.Error(err))
		}
	}

	if err := database.Close(db); err != nil {
		zapLogger.Error("Database close error", zap.Error(err))
	}

	log.Println("Fulfillment Service stopped gracefully")
}
