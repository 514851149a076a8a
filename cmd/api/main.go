package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/ampliguitar/storefront-api/internal/config"
	"github.com/ampliguitar/storefront-api/internal/docstore"
	"github.com/ampliguitar/storefront-api/internal/handler"
	"github.com/ampliguitar/storefront-api/internal/middleware"
	"github.com/ampliguitar/storefront-api/internal/repository"
	"github.com/ampliguitar/storefront-api/internal/service"
	"github.com/ampliguitar/storefront-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Document store
	store := docstore.NewPostgresStore(dbPool, log)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Error("ensure schema", "error", err)
		os.Exit(1)
	}
	go store.Listen(ctx)

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer amqpCh.Close()

	if err := worker.SetupRabbitMQ(amqpCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}
	log.Info("connected to RabbitMQ")

	// Repositories
	userRepo := repository.NewUserRepository(store)
	productRepo := repository.NewProductRepository(store)
	cartRepo := repository.NewCartRepository(store)
	orderRepo := repository.NewOrderRepository(store)
	notificationRepo := repository.NewNotificationRepository(store)

	// Services
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	productSvc := service.NewProductService(productRepo, redisClient)
	cartSvc := service.NewCartService(cartRepo, productRepo)
	orderSvc := service.NewOrderService(orderRepo, cartRepo, productRepo, amqpCh)
	dashboardSvc := service.NewDashboardService(productRepo, orderRepo, userRepo, notificationRepo)

	if err := authSvc.EnsureDefaultAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		log.Error("ensure default admin", "error", err)
		os.Exit(1)
	}

	// Handlers
	authH := handler.NewAuthHandler(authSvc)
	productH := handler.NewProductHandler(productSvc)
	cartH := handler.NewCartHandler(cartSvc)
	orderH := handler.NewOrderHandler(orderSvc, authSvc)
	adminH := handler.NewAdminHandler(orderSvc, authSvc, dashboardSvc)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn, store)

	// Worker
	orderWorker := worker.NewOrderWorker(amqpCh, orderRepo, notificationRepo, redisClient, log)

	// Router
	router := gin.Default()
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth", middleware.RateLimit(rate.Limit(2), 5))
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)
		auth.POST("/reset-password", authH.ResetPassword)

		me := v1.Group("/me", middleware.AuthMiddleware(cfg.JWT.Secret))
		me.GET("", authH.Me)
		me.PUT("/name", authH.UpdateName)
		me.PUT("/password", authH.ChangePassword)

		products := v1.Group("/products")
		products.GET("", productH.List)
		products.GET("/stream", productH.Stream)
		products.GET("/:id", productH.GetByID)

		productAdmin := products.Group("", middleware.AuthMiddleware(cfg.JWT.Secret), middleware.AdminOnly())
		productAdmin.POST("", productH.Create)
		productAdmin.PUT("/:id", productH.Update)
		productAdmin.DELETE("/:id", productH.Delete)

		cart := v1.Group("/cart", middleware.AuthMiddleware(cfg.JWT.Secret))
		cart.GET("", cartH.GetCart)
		cart.GET("/stream", cartH.Stream)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:productId", cartH.UpdateItem)
		cart.DELETE("/items/:productId", cartH.DeleteItem)
		cart.DELETE("", cartH.Clear)

		orders := v1.Group("/orders", middleware.AuthMiddleware(cfg.JWT.Secret))
		orders.POST("", orderH.PlaceOrder)
		orders.GET("", orderH.ListOrders)
		orders.GET("/stream", orderH.Stream)
		orders.GET("/:id", orderH.GetOrder)
		orders.POST("/:id/received", orderH.MarkReceived)

		admin := v1.Group("/admin", middleware.AuthMiddleware(cfg.JWT.Secret), middleware.AdminOnly())
		admin.GET("/orders", adminH.ListOrders)
		admin.GET("/orders/stream", adminH.StreamOrders)
		admin.PATCH("/orders/:id/status", adminH.UpdateOrderStatus)
		admin.POST("/orders/:id/receipt", adminH.AddShippingReceipt)
		admin.GET("/users", adminH.ListUsers)
		admin.DELETE("/users/:id", adminH.DeleteUser)
		admin.GET("/dashboard", adminH.Dashboard)
		admin.GET("/notifications", adminH.ListNotifications)
		admin.POST("/notifications/:id/read", adminH.MarkNotificationRead)
	}

	if err := orderWorker.Start(ctx); err != nil {
		log.Error("start order worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	orderWorker.Stop()
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}
