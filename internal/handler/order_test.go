package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampliguitar/storefront-api/internal/model"
	"github.com/ampliguitar/storefront-api/internal/repository"
	"github.com/ampliguitar/storefront-api/internal/service"
)

type orderTestEnv struct {
	router      *gin.Engine
	store       *memStore
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

func newOrderTestEnv(t *testing.T) *orderTestEnv {
	t.Helper()
	store := newMemStore()
	orderRepo := repository.NewOrderRepository(store)
	cartRepo := repository.NewCartRepository(store)
	productRepo := repository.NewProductRepository(store)
	userRepo := repository.NewUserRepository(store)

	orderSvc := service.NewOrderService(orderRepo, cartRepo, productRepo, nil)
	authSvc := service.NewAuthService(userRepo, testJWTSecret, time.Hour)
	h := NewOrderHandler(orderSvc, authSvc)

	router := protectedRouter(map[string]gin.HandlerFunc{
		"POST /orders":              h.PlaceOrder,
		"GET /orders/:id":           h.GetOrder,
		"POST /orders/:id/received": h.MarkReceived,
	})
	return &orderTestEnv{
		router:      router,
		store:       store,
		orderRepo:   orderRepo,
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

func (e *orderTestEnv) seedProduct(t *testing.T, name string, price int64, stock int) model.Product {
	t.Helper()
	p := &model.Product{Name: name, Price: decimal.NewFromInt(price), Stock: stock, Category: "Electric"}
	require.NoError(t, e.productRepo.Create(context.Background(), p))
	return *p
}

func (e *orderTestEnv) seedCart(t *testing.T, userID uuid.UUID, p model.Product, qty int) {
	t.Helper()
	cart := &model.Cart{UserID: userID, Items: []model.CartItem{
		{ProductID: p.ID, ProductName: p.Name, Price: p.Price, Quantity: qty},
	}}
	require.NoError(t, e.cartRepo.Save(context.Background(), cart))
}

func TestOrderHandler_PlaceOrder(t *testing.T) {
	placeBody := `{"shipping_address":"Jl. Sudirman 1","payment_method":"COD"}`

	t.Run("created", func(t *testing.T) {
		env := newOrderTestEnv(t)
		user := seedUser(t, env.store, model.RoleUser)
		p := env.seedProduct(t, "Strat", 100000, 5)
		env.seedCart(t, user.ID, p, 2)

		w := doJSON(t, env.router, http.MethodPost, "/orders", bearerToken(t, user), placeBody)
		assertStatus(t, w, http.StatusCreated)

		live, err := env.productRepo.GetByID(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, live.Stock)
	})

	t.Run("insufficient stock maps to conflict", func(t *testing.T) {
		env := newOrderTestEnv(t)
		user := seedUser(t, env.store, model.RoleUser)
		p := env.seedProduct(t, "Strat", 100000, 2)
		env.seedCart(t, user.ID, p, 3)

		w := doJSON(t, env.router, http.MethodPost, "/orders", bearerToken(t, user), placeBody)
		assertStatus(t, w, http.StatusConflict)
		assert.Contains(t, w.Body.String(), `"available":2`)
		assert.Contains(t, w.Body.String(), "Strat")
	})

	t.Run("empty cart maps to bad request", func(t *testing.T) {
		env := newOrderTestEnv(t)
		user := seedUser(t, env.store, model.RoleUser)

		w := doJSON(t, env.router, http.MethodPost, "/orders", bearerToken(t, user), placeBody)
		assertStatus(t, w, http.StatusBadRequest)
	})

	t.Run("invalid payment method fails validation", func(t *testing.T) {
		env := newOrderTestEnv(t)
		user := seedUser(t, env.store, model.RoleUser)

		body := `{"shipping_address":"Jl. Sudirman 1","payment_method":"PAYPAL"}`
		w := doJSON(t, env.router, http.MethodPost, "/orders", bearerToken(t, user), body)
		assertStatus(t, w, http.StatusBadRequest)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		env := newOrderTestEnv(t)
		w := doJSON(t, env.router, http.MethodPost, "/orders", "", placeBody)
		assertStatus(t, w, http.StatusUnauthorized)
	})
}

func TestOrderHandler_GetOrder(t *testing.T) {
	env := newOrderTestEnv(t)
	owner := seedUser(t, env.store, model.RoleUser)
	other := seedUser(t, env.store, model.RoleUser)
	admin := seedUser(t, env.store, model.RoleAdmin)

	p := env.seedProduct(t, "Strat", 100000, 5)
	order := &model.Order{
		UserID: owner.ID,
		Status: model.OrderStatusPending,
		Items: []model.CartItem{
			{ProductID: p.ID, ProductName: p.Name, Price: p.Price, Quantity: 1},
		},
	}
	require.NoError(t, env.orderRepo.Place(context.Background(), order))
	path := fmt.Sprintf("/orders/%s", order.ID)

	t.Run("owner reads own order", func(t *testing.T) {
		w := doJSON(t, env.router, http.MethodGet, path, bearerToken(t, owner), "")
		assertStatus(t, w, http.StatusOK)
		assert.Contains(t, w.Body.String(), order.ID.String())
	})

	t.Run("admin reads any order", func(t *testing.T) {
		w := doJSON(t, env.router, http.MethodGet, path, bearerToken(t, admin), "")
		assertStatus(t, w, http.StatusOK)
	})

	t.Run("other user is forbidden", func(t *testing.T) {
		w := doJSON(t, env.router, http.MethodGet, path, bearerToken(t, other), "")
		assertStatus(t, w, http.StatusForbidden)
	})

	t.Run("unknown order", func(t *testing.T) {
		w := doJSON(t, env.router, http.MethodGet, "/orders/"+uuid.NewString(), bearerToken(t, owner), "")
		assertStatus(t, w, http.StatusNotFound)
	})
}

func TestOrderHandler_MarkReceived(t *testing.T) {
	env := newOrderTestEnv(t)
	owner := seedUser(t, env.store, model.RoleUser)

	p := env.seedProduct(t, "Strat", 100000, 5)
	order := &model.Order{
		UserID: owner.ID,
		Status: model.OrderStatusPending,
		Items: []model.CartItem{
			{ProductID: p.ID, ProductName: p.Name, Price: p.Price, Quantity: 1},
		},
	}
	require.NoError(t, env.orderRepo.Place(context.Background(), order))
	path := fmt.Sprintf("/orders/%s/received", order.ID)

	t.Run("not shipped yet", func(t *testing.T) {
		w := doJSON(t, env.router, http.MethodPost, path, bearerToken(t, owner), "")
		assertStatus(t, w, http.StatusConflict)
	})

	t.Run("shipped order completes", func(t *testing.T) {
		require.NoError(t, env.orderRepo.AddShippingReceipt(context.Background(), order.ID, "JNE-123"))

		w := doJSON(t, env.router, http.MethodPost, path, bearerToken(t, owner), "")
		assertStatus(t, w, http.StatusOK)

		saved, err := env.orderRepo.GetByID(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusCompleted, saved.Status)
	})
}
