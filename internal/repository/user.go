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

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByRole(ctx context.Context, role model.Role) (int, error)
}

type docUserRepo struct{ store docstore.Store }

func NewUserRepository(store docstore.Store) UserRepository {
	return &docUserRepo{store: store}
}

func (r *docUserRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now().UTC()
	if err := r.store.Set(ctx, docstore.CollectionUsers, user.ID.String(), user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *docUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionUsers, id.String())
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	user := &model.User{}
	if err := doc.Decode(user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return user, nil
}

func (r *docUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionUsers,
		[]docstore.Filter{{Field: "email", Value: email}}, "", false)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	user := &model.User{}
	if err := docs[0].Decode(user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return user, nil
}

func (r *docUserRepo) List(ctx context.Context) ([]model.User, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionUsers, nil, "createdAt", true)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]model.User, 0, len(docs))
	for _, doc := range docs {
		var u model.User
		if err := doc.Decode(&u); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *docUserRepo) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	err := r.store.Update(ctx, docstore.CollectionUsers, id.String(), map[string]any{"name": name})
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	return nil
}

func (r *docUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	err := r.store.Update(ctx, docstore.CollectionUsers, id.String(), map[string]any{"passwordHash": passwordHash})
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return nil
}

func (r *docUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.store.Delete(ctx, docstore.CollectionUsers, id.String()); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (r *docUserRepo) CountByRole(ctx context.Context, role model.Role) (int, error) {
	n, err := r.store.Count(ctx, docstore.CollectionUsers,
		[]docstore.Filter{{Field: "role", Value: string(role)}})
	if err != nil {
		return 0, fmt.Errorf("count users by role: %w", err)
	}
	return n, nil
}
