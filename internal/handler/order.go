package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ampliguitar/storefront-api/internal/dto"
	"github.com/ampliguitar/storefront-api/internal/middleware"
	"github.com/ampliguitar/storefront-api/internal/model"
	"github.com/ampliguitar/storefront-api/internal/repository"
	"github.com/ampliguitar/storefront-api/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
	authService  *service.AuthService
}

func NewOrderHandler(orderService *service.OrderService, authService *service.AuthService) *OrderHandler {
	return &OrderHandler{orderService: orderService, authService: authService}
}

func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req dto.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	order, err := h.orderService.PlaceOrder(c.Request.Context(), user, req.ShippingAddress, req.PaymentMethod, req.PaymentProof)
	if err != nil {
		var stockErr *repository.StockInsufficientError
		switch {
		case errors.As(err, &stockErr):
			c.JSON(http.StatusConflict, gin.H{
				"error":     fmt.Sprintf("insufficient stock for %s", stockErr.ProductName),
				"product":   stockErr.ProductName,
				"available": stockErr.Available,
			})
		case errors.Is(err, service.ErrEmptyCart):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusCreated, dto.PlaceOrderResponse{OrderID: order.ID})
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.orderService.ListByUserID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, toOrderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, dto.OrderListResponse{Orders: items, Total: len(items)})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
		return
	}

	user := &model.User{ID: middleware.GetUserID(c), Role: middleware.GetUserRole(c)}
	order, err := h.orderService.GetByID(c.Request.Context(), orderID, user)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		if errors.Is(err, service.ErrOrderAccessDenied) {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

// MarkReceived is the customer's confirmation that a shipped order arrived.
func (h *OrderHandler) MarkReceived(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
		return
	}

	if err := h.orderService.MarkReceived(c.Request.Context(), orderID, middleware.GetUserID(c)); err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		case errors.Is(err, service.ErrOrderAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		case errors.Is(err, service.ErrNotShipped):
			c.JSON(http.StatusConflict, gin.H{"error": "order has not been shipped yet"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "order completed"})
}

// Stream pushes the user's order history as a server-sent event on every
// change to the orders collection.
func (h *OrderHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	updates, stop := h.orderService.WatchUser(ctx, middleware.GetUserID(c))
	defer stop()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case orders, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("orders", toOrderListResponse(orders))
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func toOrderResponse(order *model.Order) dto.OrderResponse {
	items := make([]dto.CartItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, dto.CartItemResponse{
			ProductID:   item.ProductID,
			Name:        item.ProductName,
			Price:       item.Price,
			ImageBase64: item.ImageBase64,
			Quantity:    item.Quantity,
		})
	}
	return dto.OrderResponse{
		ID:              order.ID,
		UserID:          order.UserID,
		UserName:        order.UserName,
		Items:           items,
		TotalPrice:      order.TotalPrice,
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   order.PaymentMethod,
		PaymentProof:    order.PaymentProof,
		Status:          order.Status,
		ShippingReceipt: order.ShippingReceipt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func toOrderListResponse(orders []model.Order) dto.OrderListResponse {
	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, toOrderResponse(&orders[i]))
	}
	return dto.OrderListResponse{Orders: items, Total: len(items)}
}
