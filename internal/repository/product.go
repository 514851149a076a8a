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

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	// GetByIDs fetches products in one query; deleted products are simply
	// absent from the returned map.
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Product, error)
	List(ctx context.Context) ([]model.Product, error)
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	Watch() *docstore.Subscription
}

type docProductRepo struct{ store docstore.Store }

func NewProductRepository(store docstore.Store) ProductRepository {
	return &docProductRepo{store: store}
}

func (r *docProductRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.New()
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	if err := r.store.Set(ctx, docstore.CollectionProducts, product.ID.String(), product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *docProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionProducts, id.String())
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	p := &model.Product{}
	if err := doc.Decode(p); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	return p, nil
}

func (r *docProductRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Product, error) {
	strIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		strIDs = append(strIDs, id.String())
	}
	docs, err := r.store.GetAll(ctx, docstore.CollectionProducts, strIDs)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	products := make(map[uuid.UUID]model.Product, len(docs))
	for _, doc := range docs {
		var p model.Product
		if err := doc.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		products[p.ID] = p
	}
	return products, nil
}

func (r *docProductRepo) List(ctx context.Context) ([]model.Product, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionProducts, nil, "createdAt", true)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	products := make([]model.Product, 0, len(docs))
	for _, doc := range docs {
		var p model.Product
		if err := doc.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		products = append(products, p)
	}
	return products, nil
}

func (r *docProductRepo) Update(ctx context.Context, product *model.Product) error {
	product.UpdatedAt = time.Now().UTC()
	if err := r.store.Set(ctx, docstore.CollectionProducts, product.ID.String(), product); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *docProductRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.store.Delete(ctx, docstore.CollectionProducts, id.String()); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

func (r *docProductRepo) Watch() *docstore.Subscription {
	return r.store.Subscribe(docstore.CollectionProducts)
}
