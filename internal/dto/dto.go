package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ampliguitar/storefront-api/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}

type UpdateNameRequest struct {
	Name string `json:"name" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

type ResetPasswordRequest struct {
	Email           string `json:"email" binding:"required,email"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// --- Product ---

type CreateProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	Stock       int             `json:"stock" binding:"min=0"`
	Category    string          `json:"category" binding:"required"`
	ImageBase64 string          `json:"image_base64"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock" binding:"omitempty,gte=0"`
	Category    *string          `json:"category"`
	ImageBase64 *string          `json:"image_base64"`
}

type ListProductsRequest struct {
	Page     int    `form:"page,default=1" binding:"min=1"`
	Limit    int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search   string `form:"search"`
	Category string `form:"category"`
	Sort     string `form:"sort,default=created_at" binding:"oneof=name price created_at"`
	Order    string `form:"order,default=desc" binding:"oneof=asc desc"`
}

type ProductResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	ImageBase64 string          `json:"image_base64,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

type UpdateCartItemRequest struct {
	// Zero removes the item.
	Quantity *int `json:"quantity" binding:"required,gte=0"`
}

type CartItemResponse struct {
	ProductID   uuid.UUID       `json:"product_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	ImageBase64 string          `json:"image_base64,omitempty"`
	Quantity    int             `json:"quantity"`
}

type CartResponse struct {
	Items      []CartItemResponse `json:"items"`
	TotalPrice decimal.Decimal    `json:"total_price"`
	ItemCount  int                `json:"item_count"`
}

// --- Order ---

type PlaceOrderRequest struct {
	ShippingAddress string              `json:"shipping_address" binding:"required"`
	PaymentMethod   model.PaymentMethod `json:"payment_method" binding:"required,oneof=TRANSFER COD"`
	PaymentProof    string              `json:"payment_proof_base64"`
}

type PlaceOrderResponse struct {
	OrderID uuid.UUID `json:"order_id"`
}

type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"user_id"`
	UserName        string              `json:"user_name"`
	Items           []CartItemResponse  `json:"items"`
	TotalPrice      decimal.Decimal     `json:"total_price"`
	ShippingAddress string              `json:"shipping_address"`
	PaymentMethod   model.PaymentMethod `json:"payment_method"`
	PaymentProof    string              `json:"payment_proof_base64,omitempty"`
	Status          model.OrderStatus   `json:"status"`
	ShippingReceipt string              `json:"shipping_receipt,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

type UpdateOrderStatusRequest struct {
	Status model.OrderStatus `json:"status" binding:"required,oneof=PENDING WAITING_CONFIRMATION VERIFIED PROCESSED SHIPPED COMPLETED CANCELLED"`
}

type ShippingReceiptRequest struct {
	Receipt string `json:"receipt" binding:"required"`
}

// --- Admin ---

type DashboardResponse struct {
	TotalProducts  int `json:"total_products"`
	NewOrders      int `json:"new_orders"`
	TotalCustomers int `json:"total_customers"`
}

type NotificationResponse struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
