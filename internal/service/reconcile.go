package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ampliguitar/storefront-api/internal/model"
	"github.com/ampliguitar/storefront-api/internal/repository"
)

// cartReconciler validates a cart's cached line items against the live
// catalog. Items whose product was deleted are dropped; stale cached
// name/price/image fields are rewritten from the live product. Quantities are
// the user's and are never modified.
type cartReconciler struct {
	productRepo repository.ProductRepository
}

// reconcile corrects cart in place and reports whether anything changed.
// A second pass over an unchanged catalog is a no-op.
func (r *cartReconciler) reconcile(ctx context.Context, cart *model.Cart) (bool, error) {
	if len(cart.Items) == 0 {
		return false, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(cart.Items))
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	live, err := r.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return false, fmt.Errorf("fetch live products: %w", err)
	}

	changed := false
	items := make([]model.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, ok := live[item.ProductID]
		if !ok {
			// Product was deleted from the catalog; drop the item.
			changed = true
			continue
		}
		if item.ProductName != product.Name || !item.Price.Equal(product.Price) || item.ImageBase64 != product.ImageBase64 {
			item.ProductName = product.Name
			item.Price = product.Price
			item.ImageBase64 = product.ImageBase64
			changed = true
		}
		items = append(items, item)
	}
	cart.Items = items
	return changed, nil
}
