package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ampliguitar/storefront-api/internal/docstore"
)

// fakeStore is an in-memory docstore.Store for repository tests.
type fakeStore struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
	subs []chan docstore.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]map[string][]byte)}
}

func (s *fakeStore) Get(_ context.Context, collection, id string) (docstore.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[collection][id]
	if !ok {
		return docstore.Doc{}, docstore.ErrNotFound
	}
	return docstore.Doc{ID: id, Data: data}, nil
}

func (s *fakeStore) GetAll(_ context.Context, collection string, ids []string) ([]docstore.Doc, error) {
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

func (s *fakeStore) Query(_ context.Context, collection string, filters []docstore.Filter, orderBy string, descending bool) ([]docstore.Doc, error) {
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
	if orderBy != "" {
		key := func(d docstore.Doc) string {
			fields := map[string]any{}
			_ = json.Unmarshal(d.Data, &fields)
			return fmt.Sprint(fields[orderBy])
		}
		sort.SliceStable(docs, func(i, j int) bool {
			if descending {
				return key(docs[i]) > key(docs[j])
			}
			return key(docs[i]) < key(docs[j])
		})
	}
	return docs, nil
}

func (s *fakeStore) Count(_ context.Context, collection string, filters []docstore.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, data := range s.data[collection] {
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
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) Set(_ context.Context, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.data[collection] == nil {
		s.data[collection] = make(map[string][]byte)
	}
	s.data[collection][id] = data
	s.mu.Unlock()
	s.publish(docstore.Event{Collection: collection, ID: id})
	return nil
}

func (s *fakeStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	data, ok := s.data[collection][id]
	if !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	doc := map[string]any{}
	_ = json.Unmarshal(data, &doc)
	for k, v := range fields {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.data[collection][id] = merged
	s.mu.Unlock()
	s.publish(docstore.Event{Collection: collection, ID: id})
	return nil
}

func (s *fakeStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	if _, ok := s.data[collection][id]; !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	delete(s.data[collection], id)
	s.mu.Unlock()
	s.publish(docstore.Event{Collection: collection, ID: id})
	return nil
}

// RunTransaction snapshots the data and restores it if fn fails, so aborted
// transactions leave no partial writes behind.
func (s *fakeStore) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	s.mu.Lock()
	snapshot := make(map[string]map[string][]byte, len(s.data))
	for coll, docs := range s.data {
		snapshot[coll] = make(map[string][]byte, len(docs))
		for id, data := range docs {
			snapshot[coll][id] = data
		}
	}
	s.mu.Unlock()

	if err := fn(&fakeTx{store: s}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *fakeStore) Subscribe(string) *docstore.Subscription {
	ch := make(chan docstore.Event, 16)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return docstore.NewSubscription(ch, func() {})
}

func (s *fakeStore) publish(ev docstore.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

type fakeTx struct{ store *fakeStore }

func (t *fakeTx) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	return t.store.Get(ctx, collection, id)
}

func (t *fakeTx) Set(ctx context.Context, collection, id string, v any) error {
	return t.store.Set(ctx, collection, id, v)
}

func (t *fakeTx) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return t.store.Update(ctx, collection, id, fields)
}
