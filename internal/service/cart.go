package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ampliguitar/storefront-api/internal/model"
	"github.com/ampliguitar/storefront-api/internal/repository"
)

var ErrCartItemNotFound = errors.New("cart item not found")

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	reconciler  cartReconciler
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) *CartService {
	return &CartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		reconciler:  cartReconciler{productRepo: productRepo},
	}
}

// GetCart returns the user's cart reconciled against the live catalog. If
// reconciliation changed anything, the corrected cart is written back
// best-effort; a lost write race reconverges on the next read.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := s.cartRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	changed, err := s.reconciler.reconcile(ctx, cart)
	if err != nil {
		return nil, fmt.Errorf("reconcile cart: %w", err)
	}
	if changed {
		_ = s.cartRepo.Save(ctx, cart)
	}
	return cart, nil
}

func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return ErrProductNotFound
	}

	cart, err := s.cartRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == product.ID {
			cart.Items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, model.CartItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Price:       product.Price,
			ImageBase64: product.ImageBase64,
			Quantity:    quantity,
		})
	}
	return s.cartRepo.Save(ctx, cart)
}

// UpdateQuantity sets the quantity of a line item; zero or less removes it.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	cart, err := s.cartRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity = quantity
			return s.cartRepo.Save(ctx, cart)
		}
	}
	return ErrCartItemNotFound
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	cart, err := s.cartRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}

	items := cart.Items[:0]
	found := false
	for _, item := range cart.Items {
		if item.ProductID == productID {
			found = true
			continue
		}
		items = append(items, item)
	}
	if !found {
		return ErrCartItemNotFound
	}
	cart.Items = items
	return s.cartRepo.Save(ctx, cart)
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.cartRepo.Clear(ctx, userID)
}

// Watch emits the user's reconciled cart on every change to the cart
// document, starting with the current state. The returned stop function tears
// down the underlying subscription.
func (s *CartService) Watch(ctx context.Context, userID uuid.UUID) (<-chan model.Cart, func()) {
	sub := s.cartRepo.Watch()
	out := make(chan model.Cart, 1)

	go func() {
		defer close(out)
		s.emitCart(ctx, userID, out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if ev.ID != userID.String() {
					continue
				}
				s.emitCart(ctx, userID, out)
			}
		}
	}()
	return out, sub.Unsubscribe
}

func (s *CartService) emitCart(ctx context.Context, userID uuid.UUID, out chan model.Cart) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return
	}
	sendLatest(out, *cart)
}
