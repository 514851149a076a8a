package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

type PaymentMethod string

const (
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentCOD      PaymentMethod = "COD"
)

type OrderStatus string

const (
	OrderStatusPending             OrderStatus = "PENDING"
	OrderStatusWaitingConfirmation OrderStatus = "WAITING_CONFIRMATION"
	OrderStatusVerified            OrderStatus = "VERIFIED"
	OrderStatusProcessed           OrderStatus = "PROCESSED"
	OrderStatusShipped             OrderStatus = "SHIPPED"
	OrderStatusCompleted           OrderStatus = "COMPLETED"
	OrderStatusCancelled           OrderStatus = "CANCELLED"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Product struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	ImageBase64 string          `json:"imageBase64,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// CartItem caches product name, price, and image as of the moment the item
// was added. The cached fields are corrected against the live product on
// every cart read; quantity belongs to the user and is never rewritten.
type CartItem struct {
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
	ImageBase64 string          `json:"imageBase64,omitempty"`
	Quantity    int             `json:"quantity"`
}

// Cart is a per-user document keyed by the user's ID.
type Cart struct {
	UserID    uuid.UUID  `json:"userId"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// Order items are copied from the cart at placement time; later product
// edits never alter historical orders.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"userId"`
	UserName        string          `json:"userName"`
	Items           []CartItem      `json:"items"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	ShippingAddress string          `json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	PaymentProof    string          `json:"paymentProofBase64,omitempty"`
	Status          OrderStatus     `json:"status"`
	ShippingReceipt string          `json:"shippingReceipt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type Notification struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"orderId"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type OrderMessage struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}
