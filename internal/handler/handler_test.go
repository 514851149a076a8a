package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ampliguitar/storefront-api/internal/docstore"
	"github.com/ampliguitar/storefront-api/internal/middleware"
	"github.com/ampliguitar/storefront-api/internal/model"
)

const testJWTSecret = "test-secret"

// memStore is an in-memory docstore.Store so handler tests can run the full
// handler, service, repository path without Postgres.
type memStore struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, collection, id string) (docstore.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[collection][id]
	if !ok {
		return docstore.Doc{}, docstore.ErrNotFound
	}
	return docstore.Doc{ID: id, Data: data}, nil
}

func (s *memStore) GetAll(_ context.Context, collection string, ids []string) ([]docstore.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []docstore.Doc
	for _, id := range ids {
		if data, ok := s.data[collection][id]; ok {
			docs = append(docs, docstore.Doc{ID: id, Data: data})
		}
	}
	return docs, nil
}

func (s *memStore) Query(_ context.Context, collection string, filters []docstore.Filter, _ string, _ bool) ([]docstore.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []docstore.Doc
	for id, data := range s.data[collection] {
		fields := map[string]any{}
		_ = json.Unmarshal(data, &fields)
		match := true
		for _, f := range filters {
			if fmt.Sprint(fields[f.Field]) != f.Value {
				match = false
				break
			}
		}
		if match {
			docs = append(docs, docstore.Doc{ID: id, Data: data})
		}
	}
	return docs, nil
}

func (s *memStore) Count(_ context.Context, collection string, filters []docstore.Filter) (int, error) {
	docs, err := s.Query(context.Background(), collection, filters, "", false)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *memStore) Set(_ context.Context, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[collection] == nil {
		s.data[collection] = make(map[string][]byte)
	}
	s.data[collection][id] = data
	return nil
}

func (s *memStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}
	doc := map[string]any{}
	_ = json.Unmarshal(data, &doc)
	for k, v := range fields {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.data[collection][id] = merged
	return nil
}

func (s *memStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[collection][id]; !ok {
		return docstore.ErrNotFound
	}
	delete(s.data[collection], id)
	return nil
}

func (s *memStore) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	s.mu.Lock()
	snapshot := make(map[string]map[string][]byte, len(s.data))
	for coll, docs := range s.data {
		snapshot[coll] = make(map[string][]byte, len(docs))
		for id, data := range docs {
			snapshot[coll][id] = data
		}
	}
	s.mu.Unlock()

	if err := fn(&memTx{store: s}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) Subscribe(string) *docstore.Subscription {
	return docstore.NewSubscription(make(chan docstore.Event), func() {})
}

type memTx struct{ store *memStore }

func (t *memTx) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	return t.store.Get(ctx, collection, id)
}

func (t *memTx) Set(ctx context.Context, collection, id string, v any) error {
	return t.store.Set(ctx, collection, id, v)
}

func (t *memTx) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return t.store.Update(ctx, collection, id, fields)
}

func bearerToken(t *testing.T, user *model.User) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": string(user.Role),
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func protectedRouter(handlers map[string]gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	auth := r.Group("/", middleware.AuthMiddleware(testJWTSecret))
	for route, h := range handlers {
		method, path, _ := strings.Cut(route, " ")
		auth.Handle(method, path, h)
	}
	return r
}

func seedUser(t *testing.T, store *memStore, role model.Role) *model.User {
	t.Helper()
	user := &model.User{
		ID:        uuid.New(),
		Name:      "Budi",
		Email:     uuid.NewString() + "@example.com",
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Set(context.Background(), docstore.CollectionUsers, user.ID.String(), user))
	return user
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, want, w.Body.String())
	}
}
