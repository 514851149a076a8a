package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ampliguitar/storefront-api/internal/docstore"
	"github.com/ampliguitar/storefront-api/internal/model"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	List(ctx context.Context) ([]model.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

type docNotificationRepo struct{ store docstore.Store }

func NewNotificationRepository(store docstore.Store) NotificationRepository {
	return &docNotificationRepo{store: store}
}

func (r *docNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	n.ID = uuid.New()
	n.CreatedAt = time.Now().UTC()
	if err := r.store.Set(ctx, docstore.CollectionNotifications, n.ID.String(), n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *docNotificationRepo) List(ctx context.Context) ([]model.Notification, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionNotifications, nil, "createdAt", true)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	notifications := make([]model.Notification, 0, len(docs))
	for _, doc := range docs {
		var n model.Notification
		if err := doc.Decode(&n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

func (r *docNotificationRepo) MarkRead(ctx context.Context, id uuid.UUID) error {
	if err := r.store.Update(ctx, docstore.CollectionNotifications, id.String(), map[string]any{"read": true}); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}
