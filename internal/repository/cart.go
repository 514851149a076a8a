package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ampliguitar/storefront-api/internal/docstore"
	"github.com/ampliguitar/storefront-api/internal/model"
)

// CartRepository stores one cart document per user, keyed by the user's ID.
// Reads return the cart exactly as persisted; reconciliation against the live
// catalog happens in the cart service.
type CartRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	Save(ctx context.Context, cart *model.Cart) error
	Clear(ctx context.Context, userID uuid.UUID) error
	Watch() *docstore.Subscription
}

type docCartRepo struct{ store docstore.Store }

func NewCartRepository(store docstore.Store) CartRepository {
	return &docCartRepo{store: store}
}

func (r *docCartRepo) Get(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionCarts, userID.String())
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			// The cart is created lazily on first write.
			return &model.Cart{UserID: userID}, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	cart := &model.Cart{}
	if err := doc.Decode(cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return cart, nil
}

func (r *docCartRepo) Save(ctx context.Context, cart *model.Cart) error {
	cart.UpdatedAt = time.Now().UTC()
	if err := r.store.Set(ctx, docstore.CollectionCarts, cart.UserID.String(), cart); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (r *docCartRepo) Clear(ctx context.Context, userID uuid.UUID) error {
	empty := &model.Cart{UserID: userID, UpdatedAt: time.Now().UTC()}
	if err := r.store.Set(ctx, docstore.CollectionCarts, userID.String(), empty); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *docCartRepo) Watch() *docstore.Subscription {
	return r.store.Subscribe(docstore.CollectionCarts)
}
