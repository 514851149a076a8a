package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ampliguitar/storefront-api/internal/docstore"
	"github.com/ampliguitar/storefront-api/internal/dto"
	"github.com/ampliguitar/storefront-api/internal/model"
	"github.com/ampliguitar/storefront-api/internal/repository"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrNegativeStock   = errors.New("stock cannot be negative")
)

const productCacheTTL = 60 * time.Second

type ProductService struct {
	productRepo repository.ProductRepository
	redisClient *redis.Client
}

func NewProductService(productRepo repository.ProductRepository, redisClient *redis.Client) *ProductService {
	return &ProductService{productRepo: productRepo, redisClient: redisClient}
}

func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*model.Product, error) {
	product := &model.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
		ImageBase64: req.ImageBase64,
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return product, nil
}

func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	cacheKey := "product:" + id.String()

	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			product := &model.Product{}
			if json.Unmarshal([]byte(cached), product) == nil {
				return product, nil
			}
		}
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	if s.redisClient != nil {
		if data, err := json.Marshal(product); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, productCacheTTL)
		}
	}
	return product, nil
}

// List filters, sorts, and pages the catalog in memory; the document store
// only offers equality filters.
func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest) ([]model.Product, int, error) {
	products, err := s.productRepo.List(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	filtered := products[:0]
	search := strings.ToLower(req.Search)
	for _, p := range products {
		if req.Category != "" && p.Category != req.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		filtered = append(filtered, p)
	}

	sortProducts(filtered, req.Sort, req.Order == "asc")

	total := len(filtered)
	start := (req.Page - 1) * req.Limit
	if start > total {
		start = total
	}
	end := start + req.Limit
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*model.Product, error) {
	if req.Stock != nil && *req.Stock < 0 {
		return nil, ErrNegativeStock
	}
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}
	if req.Category != nil {
		product.Category = *req.Category
	}
	if req.ImageBase64 != nil {
		product.ImageBase64 = *req.ImageBase64
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	s.InvalidateCache(ctx, id)
	return product, nil
}

func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	s.InvalidateCache(ctx, id)
	return nil
}

func (s *ProductService) InvalidateCache(ctx context.Context, id uuid.UUID) {
	if s.redisClient != nil {
		s.redisClient.Del(ctx, "product:"+id.String())
	}
}

// Watch emits the full catalog on every product change, starting with the
// current state.
func (s *ProductService) Watch(ctx context.Context) (<-chan []model.Product, func()) {
	sub := s.productRepo.Watch()
	out := make(chan []model.Product, 1)

	go func() {
		defer close(out)
		emit := func() {
			products, err := s.productRepo.List(ctx)
			if err != nil {
				return
			}
			sendLatest(out, products)
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

func sortProducts(products []model.Product, field string, asc bool) {
	less := func(a, b model.Product) bool {
		switch field {
		case "name":
			return a.Name < b.Name
		case "price":
			return a.Price.LessThan(b.Price)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(products, func(i, j int) bool {
		if asc {
			return less(products[i], products[j])
		}
		return less(products[j], products[i])
	})
}
