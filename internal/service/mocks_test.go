package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ampliguitar/storefront-api/internal/docstore"
	"github.com/ampliguitar/storefront-api/internal/model"
)

type mockProductRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]model.Product
	events   chan docstore.Event
}

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{
		products: make(map[uuid.UUID]model.Product),
		events:   make(chan docstore.Event, 16),
	}
}

func (m *mockProductRepo) put(p model.Product) {
	m.mu.Lock()
	m.products[p.ID] = p
	m.mu.Unlock()
}

func (m *mockProductRepo) Create(_ context.Context, p *model.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	m.put(*p)
	return nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *mockProductRepo) List(_ context.Context) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProductRepo) Update(_ context.Context, p *model.Product) error {
	p.UpdatedAt = time.Now().UTC()
	m.put(*p)
	return nil
}

func (m *mockProductRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return docstore.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockProductRepo) Watch() *docstore.Subscription {
	return docstore.NewSubscription(m.events, func() {})
}

type mockCartRepo struct {
	mu        sync.Mutex
	carts     map[uuid.UUID]model.Cart
	saveCalls int
	events    chan docstore.Event
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{
		carts:  make(map[uuid.UUID]model.Cart),
		events: make(chan docstore.Event, 16),
	}
}

func (m *mockCartRepo) Get(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[userID]
	if !ok {
		return &model.Cart{UserID: userID}, nil
	}
	copied := cart
	copied.Items = append([]model.CartItem(nil), cart.Items...)
	return &copied, nil
}

func (m *mockCartRepo) Save(_ context.Context, cart *model.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart.UpdatedAt = time.Now().UTC()
	stored := *cart
	stored.Items = append([]model.CartItem(nil), cart.Items...)
	m.carts[cart.UserID] = stored
	m.saveCalls++
	return nil
}

func (m *mockCartRepo) Clear(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[userID] = model.Cart{UserID: userID, UpdatedAt: time.Now().UTC()}
	return nil
}

func (m *mockCartRepo) Watch() *docstore.Subscription {
	return docstore.NewSubscription(m.events, func() {})
}

type mockOrderRepo struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]model.Order
	placeErr error
	events   chan docstore.Event
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		orders: make(map[uuid.UUID]model.Order),
		events: make(chan docstore.Event, 16),
	}
}

func (m *mockOrderRepo) Place(_ context.Context, order *model.Order) error {
	if m.placeErr != nil {
		return m.placeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order.ID = uuid.New()
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	m.orders[order.ID] = *order
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

func (m *mockOrderRepo) ListByUserID(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) ListAll(_ context.Context) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return docstore.ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	m.orders[id] = order
	return nil
}

func (m *mockOrderRepo) AddShippingReceipt(_ context.Context, id uuid.UUID, receipt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return docstore.ErrNotFound
	}
	order.ShippingReceipt = receipt
	order.Status = model.OrderStatusShipped
	order.UpdatedAt = time.Now().UTC()
	m.orders[id] = order
	return nil
}

func (m *mockOrderRepo) CountByStatus(_ context.Context, status model.OrderStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *mockOrderRepo) Watch() *docstore.Subscription {
	return docstore.NewSubscription(m.events, func() {})
}

type mockUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now().UTC()
	m.users[user.ID] = *user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) List(_ context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *mockUserRepo) UpdateName(_ context.Context, id uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return docstore.ErrNotFound
	}
	user.Name = name
	m.users[id] = user
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return docstore.ErrNotFound
	}
	user.PasswordHash = passwordHash
	m.users[id] = user
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) CountByRole(_ context.Context, role model.Role) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}
