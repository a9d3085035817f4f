package cart

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/dispatch"
	"github.com/vladislavdragonenkov/storefront/internal/storage"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var errGatewayDown = errors.New("gateway down")

type stubGateway struct {
	mu sync.Mutex

	carts     []domain.RemoteCart
	getErr    error
	createErr error
	updateErr error
	createdID int

	getCalls    int
	createCalls []domain.CartPayload
	updateCalls []domain.CartPayload
	updateIDs   []int

	onGet func()
	// onCreate вызывается вне блокировки, до ответа CreateCart.
	onCreate func()
	// sequentialIDs: каждая следующая созданная корзина получает createdID+n.
	sequentialIDs bool
}

func (g *stubGateway) GetUserCarts(_ context.Context, _ int) ([]domain.RemoteCart, error) {
	g.mu.Lock()
	g.getCalls++
	onGet := g.onGet
	carts, err := g.carts, g.getErr
	g.mu.Unlock()

	if onGet != nil {
		onGet()
	}
	if err != nil {
		return nil, err
	}
	return carts, nil
}

func (g *stubGateway) CreateCart(_ context.Context, payload domain.CartPayload) (domain.RemoteCart, error) {
	g.mu.Lock()
	g.createCalls = append(g.createCalls, payload)
	id := g.createdID
	if g.sequentialIDs {
		id += len(g.createCalls) - 1
	}
	onCreate, err := g.onCreate, g.createErr
	g.mu.Unlock()

	if onCreate != nil {
		onCreate()
	}
	if err != nil {
		return domain.RemoteCart{}, err
	}
	return domain.RemoteCart{ID: id, UserID: payload.UserID}, nil
}

func (g *stubGateway) creates() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.createCalls)
}

func (g *stubGateway) UpdateCart(_ context.Context, id int, payload domain.CartPayload) (domain.RemoteCart, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateIDs = append(g.updateIDs, id)
	g.updateCalls = append(g.updateCalls, payload)
	if g.updateErr != nil {
		return domain.RemoteCart{}, g.updateErr
	}
	return domain.RemoteCart{ID: id, UserID: payload.UserID}, nil
}

func (g *stubGateway) writes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.createCalls) + len(g.updateCalls)
}

func (g *stubGateway) lastCreate() domain.CartPayload {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls[len(g.createCalls)-1]
}

func (g *stubGateway) lastUpdate() domain.CartPayload {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.updateCalls[len(g.updateCalls)-1]
}

type stubCatalog struct {
	mu       sync.Mutex
	products map[int]domain.Product
	calls    int
}

func newStubCatalog(products ...domain.Product) *stubCatalog {
	c := &stubCatalog{products: make(map[int]domain.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *stubCatalog) GetProductByID(_ context.Context, id int) (domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	p, ok := c.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.CartEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.CartEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.CartEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.CartEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func product(id int, price string) domain.Product {
	return domain.Product{
		ID:          id,
		Title:       "product " + strconv.Itoa(id),
		Price:       decimal.RequireFromString(price),
		Description: "description",
		Category:    "electronics",
		Image:       "https://img.example/" + strconv.Itoa(id) + ".png",
	}
}

type fixture struct {
	kv        domain.KeyValueStore
	store     *Store
	engine    *Engine
	gateway   *stubGateway
	catalog   *stubCatalog
	publisher *recordingPublisher
}

// newFixture собирает корзину с синхронным dispatcher, чтобы фоновые синхронизации
// завершались до возврата из мутации.
func newFixture(t *testing.T, products ...domain.Product) *fixture {
	t.Helper()

	kv := memory.NewKeyValueStore()
	return newFixtureWithKV(t, kv, dispatch.Inline{}, products...)
}

func newFixtureWithKV(t *testing.T, kv domain.KeyValueStore, dispatcher domain.TaskDispatcher, products ...domain.Product) *fixture {
	t.Helper()

	store := NewStore(storage.NewPersister(kv, nil))
	gateway := &stubGateway{createdID: 42}
	catalog := newStubCatalog(products...)
	publisher := &recordingPublisher{}
	engine := NewEngine(store, gateway, catalog,
		WithDispatcher(dispatcher),
		WithEventPublisher(publisher),
	)
	return &fixture{
		kv:        kv,
		store:     store,
		engine:    engine,
		gateway:   gateway,
		catalog:   catalog,
		publisher: publisher,
	}
}

// requireLinesEqual сравнивает позиции по значению цены: после JSON-круга
// decimal теряет исходный scale ("2.00" -> "2").
func requireLinesEqual(t *testing.T, want, got []domain.CartLine, msgAndArgs ...any) {
	t.Helper()

	require.Len(t, got, len(want), msgAndArgs...)
	for i := range want {
		require.Equal(t, want[i].ProductID, got[i].ProductID, msgAndArgs...)
		require.Equal(t, want[i].Title, got[i].Title, msgAndArgs...)
		require.Equal(t, want[i].ImageURL, got[i].ImageURL, msgAndArgs...)
		require.Equal(t, want[i].Quantity, got[i].Quantity, msgAndArgs...)
		require.Truef(t, want[i].UnitPrice.Equal(got[i].UnitPrice),
			"line %d price: want %s, got %s", i, want[i].UnitPrice, got[i].UnitPrice)
	}
}
