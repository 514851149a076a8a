package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ampliguitar/storefront-api/internal/model"
	"github.com/ampliguitar/storefront-api/internal/repository"
)

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderAccessDenied = errors.New("access denied")
	ErrReceiptRequired   = errors.New("shipping receipt required before marking shipped")
	ErrNotShipped        = errors.New("order has not been shipped yet")
)

type OrderService struct {
	orderRepo  repository.OrderRepository
	cartRepo   repository.CartRepository
	reconciler cartReconciler
	amqpCh     *amqp.Channel
}

func NewOrderService(orderRepo repository.OrderRepository, cartRepo repository.CartRepository, productRepo repository.ProductRepository, amqpCh *amqp.Channel) *OrderService {
	return &OrderService{
		orderRepo:  orderRepo,
		cartRepo:   cartRepo,
		reconciler: cartReconciler{productRepo: productRepo},
		amqpCh:     amqpCh,
	}
}

// PlaceOrder snapshots the user's reconciled cart into a new order,
// atomically decrementing stock for every line item. The cart is cleared
// after the transaction commits; a crash in between leaves a stale cart that
// the next reconciled read cleans up.
func (s *OrderService) PlaceOrder(ctx context.Context, user *model.User, shippingAddress string, method model.PaymentMethod, paymentProof string) (*model.Order, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	cart, err := s.cartRepo.Get(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if _, err := s.reconciler.reconcile(ctx, cart); err != nil {
		return nil, fmt.Errorf("reconcile cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	status := model.OrderStatusPending
	if method == model.PaymentCOD {
		status = model.OrderStatusWaitingConfirmation
		paymentProof = ""
	}

	order := &model.Order{
		UserID:          user.ID,
		UserName:        user.Name,
		Items:           cart.Items,
		TotalPrice:      cart.TotalPrice(),
		ShippingAddress: shippingAddress,
		PaymentMethod:   method,
		PaymentProof:    paymentProof,
		Status:          status,
	}
	if err := s.orderRepo.Place(ctx, order); err != nil {
		return nil, err
	}

	// The clear is outside the transaction by design; losing it is recoverable.
	_ = s.cartRepo.Clear(ctx, user.ID)

	if s.amqpCh != nil {
		msg, _ := json.Marshal(model.OrderMessage{OrderID: order.ID, UserID: user.ID})
		_ = s.amqpCh.PublishWithContext(ctx, "", "orders", false, false, amqp.Publishing{
			ContentType:  "application/json",
			Body:         msg,
			DeliveryMode: amqp.Persistent,
		})
	}
	return order, nil
}

func (s *OrderService) GetByID(ctx context.Context, orderID uuid.UUID, user *model.User) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != user.ID && user.Role != model.RoleAdmin {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *OrderService) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return s.orderRepo.ListByUserID(ctx, userID)
}

func (s *OrderService) ListAll(ctx context.Context) ([]model.Order, error) {
	return s.orderRepo.ListAll(ctx)
}

// UpdateStatus applies an admin status change. The only transition guarded
// here is into SHIPPED, which requires a receipt to have been attached;
// everything else is the admin UI's responsibility.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if status == model.OrderStatusShipped && order.ShippingReceipt == "" {
		return ErrReceiptRequired
	}
	return s.orderRepo.UpdateStatus(ctx, orderID, status)
}

// AddShippingReceipt attaches the receipt and moves the order to SHIPPED.
func (s *OrderService) AddShippingReceipt(ctx context.Context, orderID uuid.UUID, receipt string) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return ErrOrderNotFound
	}
	return s.orderRepo.AddShippingReceipt(ctx, orderID, receipt)
}

// MarkReceived is the customer's SHIPPED -> COMPLETED confirmation.
func (s *OrderService) MarkReceived(ctx context.Context, orderID, userID uuid.UUID) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.UserID != userID {
		return ErrOrderAccessDenied
	}
	if order.Status != model.OrderStatusShipped {
		return ErrNotShipped
	}
	return s.orderRepo.UpdateStatus(ctx, orderID, model.OrderStatusCompleted)
}

// WatchUser emits the user's order history on every change to the orders
// collection, starting with the current state.
func (s *OrderService) WatchUser(ctx context.Context, userID uuid.UUID) (<-chan []model.Order, func()) {
	return s.watch(ctx, func(ctx context.Context) ([]model.Order, error) {
		return s.orderRepo.ListByUserID(ctx, userID)
	})
}

// WatchAll is the admin view over every order.
func (s *OrderService) WatchAll(ctx context.Context) (<-chan []model.Order, func()) {
	return s.watch(ctx, s.orderRepo.ListAll)
}

func (s *OrderService) watch(ctx context.Context, list func(context.Context) ([]model.Order, error)) (<-chan []model.Order, func()) {
	sub := s.orderRepo.Watch()
	out := make(chan []model.Order, 1)

	go func() {
		defer close(out)
		emit := func() {
			orders, err := list(ctx)
			if err != nil {
				return
			}
			sendLatest(out, orders)
		}
		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C:
				if !ok {
					return
				}
				emit()
			}
		}
	}()
	return out, sub.Unsubscribe
}
