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

// StockInsufficientError aborts order placement when a line item asks for
// more units than the product has left. Available carries the live stock at
// the moment the transaction read it.
type StockInsufficientError struct {
	ProductName string
	Available   int
}

func (e *StockInsufficientError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: %d left", e.ProductName, e.Available)
}

type OrderRepository interface {
	// Place atomically verifies and decrements stock for every line item and
	// creates the order document. On any shortfall the whole transaction
	// aborts with a *StockInsufficientError and no stock is touched.
	Place(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	ListAll(ctx context.Context) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error
	// AddShippingReceipt stores the receipt and moves the order to SHIPPED in
	// a single write.
	AddShippingReceipt(ctx context.Context, id uuid.UUID, receipt string) error
	CountByStatus(ctx context.Context, status model.OrderStatus) (int, error)
	Watch() *docstore.Subscription
}

type docOrderRepo struct{ store docstore.Store }

func NewOrderRepository(store docstore.Store) OrderRepository {
	return &docOrderRepo{store: store}
}

func (r *docOrderRepo) Place(ctx context.Context, order *model.Order) error {
	order.ID = uuid.New()
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	return r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		for _, item := range order.Items {
			doc, err := tx.Get(ctx, docstore.CollectionProducts, item.ProductID.String())
			if err != nil {
				if errors.Is(err, docstore.ErrNotFound) {
					return &StockInsufficientError{ProductName: item.ProductName, Available: 0}
				}
				return fmt.Errorf("read product %s: %w", item.ProductID, err)
			}
			var product model.Product
			if err := doc.Decode(&product); err != nil {
				return fmt.Errorf("decode product %s: %w", item.ProductID, err)
			}
			if product.Stock < item.Quantity {
				return &StockInsufficientError{ProductName: product.Name, Available: product.Stock}
			}
			err = tx.Update(ctx, docstore.CollectionProducts, item.ProductID.String(), map[string]any{
				"stock":     product.Stock - item.Quantity,
				"updatedAt": now,
			})
			if err != nil {
				return fmt.Errorf("decrement stock for %s: %w", item.ProductID, err)
			}
		}
		if err := tx.Set(ctx, docstore.CollectionOrders, order.ID.String(), order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	})
}

func (r *docOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionOrders, id.String())
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	order := &model.Order{}
	if err := doc.Decode(order); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return order, nil
}

func (r *docOrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionOrders,
		[]docstore.Filter{{Field: "userId", Value: userID.String()}}, "createdAt", true)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return decodeOrders(docs)
}

func (r *docOrderRepo) ListAll(ctx context.Context) ([]model.Order, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionOrders, nil, "createdAt", true)
	if err != nil {
		return nil, fmt.Errorf("list all orders: %w", err)
	}
	return decodeOrders(docs)
}

func (r *docOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error {
	err := r.store.Update(ctx, docstore.CollectionOrders, id.String(), map[string]any{
		"status":    status,
		"updatedAt": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (r *docOrderRepo) AddShippingReceipt(ctx context.Context, id uuid.UUID, receipt string) error {
	err := r.store.Update(ctx, docstore.CollectionOrders, id.String(), map[string]any{
		"shippingReceipt": receipt,
		"status":          model.OrderStatusShipped,
		"updatedAt":       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("add shipping receipt: %w", err)
	}
	return nil
}

func (r *docOrderRepo) CountByStatus(ctx context.Context, status model.OrderStatus) (int, error) {
	n, err := r.store.Count(ctx, docstore.CollectionOrders,
		[]docstore.Filter{{Field: "status", Value: string(status)}})
	if err != nil {
		return 0, fmt.Errorf("count orders by status: %w", err)
	}
	return n, nil
}

func (r *docOrderRepo) Watch() *docstore.Subscription {
	return r.store.Subscribe(docstore.CollectionOrders)
}

func decodeOrders(docs []docstore.Doc) ([]model.Order, error) {
	orders := make([]model.Order, 0, len(docs))
	for _, doc := range docs {
		var o model.Order
		if err := doc.Decode(&o); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}
