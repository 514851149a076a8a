// Package docstore provides a small document-oriented persistence layer:
// per-document CRUD, equality-filtered queries, all-or-nothing multi-document
// transactions, and live change subscriptions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Collection names used across the application.
const (
	CollectionUsers         = "users"
	CollectionProducts      = "products"
	CollectionCarts         = "carts"
	CollectionOrders        = "orders"
	CollectionNotifications = "notifications"
)

var ErrNotFound = errors.New("document not found")

// Doc is a stored document: its ID plus the raw JSON body.
type Doc struct {
	ID   string
	Data json.RawMessage
}

func (d Doc) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Filter matches documents whose named top-level field equals Value.
type Filter struct {
	Field string
	Value string
}

// Event signals that a document changed (written or deleted).
type Event struct {
	Collection string
	ID         string
}

// Subscription delivers change events for one collection until unsubscribed.
// Delivery is drop-and-replace-with-latest: a slow consumer sees only the most
// recent event, never a backlog.
type Subscription struct {
	C      <-chan Event
	cancel func()
}

// NewSubscription wraps a delivery channel and teardown func. Store
// implementations and test doubles build their subscriptions through this.
func NewSubscription(ch <-chan Event, cancel func()) *Subscription {
	return &Subscription{C: ch, cancel: cancel}
}

// Unsubscribe releases the underlying listener. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Tx exposes the operations available inside RunTransaction. Reads performed
// through a Tx lock the document until commit, so a read-then-write sequence
// is isolated from concurrent transactions on the same documents.
type Tx interface {
	Get(ctx context.Context, collection, id string) (Doc, error)
	Set(ctx context.Context, collection, id string, v any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
}

type Store interface {
	Get(ctx context.Context, collection, id string) (Doc, error)
	// GetAll fetches the documents with the given IDs in one round trip.
	// Missing IDs are silently absent from the result.
	GetAll(ctx context.Context, collection string, ids []string) ([]Doc, error)
	Query(ctx context.Context, collection string, filters []Filter, orderBy string, descending bool) ([]Doc, error)
	// Count reports how many documents match the filters without fetching
	// their bodies.
	Count(ctx context.Context, collection string, filters []Filter) (int, error)
	Set(ctx context.Context, collection, id string, v any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// RunTransaction executes fn atomically: every write performed through the
	// Tx commits together, or none do if fn returns an error.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	Subscribe(collection string) *Subscription
}
