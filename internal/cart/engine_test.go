package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/dispatch"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestEngine_SyncWithoutUserIsNoop(t *testing.T) {
	f := newFixture(t, product(1, "1.00"))
	f.store.AddItem(product(1, "1.00"), 1, 0)

	f.engine.SyncCartToAPI(context.Background(), 0)
	f.engine.LoadCartFromAPI(context.Background(), 0, true)

	require.Equal(t, 0, f.gateway.writes())
	require.Equal(t, 0, f.gateway.getCalls)
}

func TestEngine_FirstSyncCreatesThenUpdates(t *testing.T) {
	f := newFixture(t, product(1, "10.00"), product(2, "20.00"))

	f.store.AddItem(product(1, "10.00"), 2, 5)

	require.Len(t, f.gateway.createCalls, 1)
	create := f.gateway.lastCreate()
	require.Equal(t, 0, create.ID)
	require.Equal(t, 5, create.UserID)
	details, ok := create.Products.([]domain.ProductDetails)
	require.True(t, ok)
	require.Len(t, details, 1)
	require.Equal(t, 1, details[0].ID)
	require.Equal(t, "description", details[0].Description)
	require.Equal(t, "electronics", details[0].Category)
	require.Equal(t, 2, details[0].Quantity)

	id, ok := f.store.RemoteCartID()
	require.True(t, ok)
	require.Equal(t, 42, id)

	f.store.AddItem(product(2, "20.00"), 1, 5)

	require.Len(t, f.gateway.createCalls, 1, "second sync must update, not create")
	require.Equal(t, []int{42}, f.gateway.updateIDs)
	update := f.gateway.lastUpdate()
	require.Equal(t, 42, update.ID)
	require.Equal(t, 5, update.UserID)
	require.Equal(t, []domain.RemoteCartProduct{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	}, update.Products)

	require.Equal(t, []domain.CartEventType{domain.CartEventSynced, domain.CartEventSynced}, f.publisher.types())
}

func TestEngine_CreateFallsBackToCachedLineFields(t *testing.T) {
	f := newFixture(t) // каталог пуст: все lookups падают
	f.store.AddItem(product(9, "3.30"), 3, 1)

	details := f.gateway.lastCreate().Products.([]domain.ProductDetails)
	require.Len(t, details, 1)
	require.Equal(t, domain.ProductDetails{
		ID:       9,
		Title:    "product 9",
		Price:    decimal.RequireFromString("3.30"),
		Image:    "https://img.example/9.png",
		Quantity: 3,
	}, details[0])
}

func TestEngine_CreateReturningZeroIDKeepsCartUnset(t *testing.T) {
	f := newFixture(t, product(1, "1"))
	f.gateway.createdID = 0

	f.store.AddItem(product(1, "1"), 1, 1)

	_, ok := f.store.RemoteCartID()
	require.False(t, ok)
}

func TestEngine_UpdateFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, product(1, "1"))
	f.store.AddItem(product(1, "1"), 1, 1)
	f.gateway.updateErr = errGatewayDown

	require.NotPanics(t, func() {
		f.store.UpdateQuantity(1, 4, 1)
	})

	require.Equal(t, 4, f.store.TotalItems())
	id, ok := f.store.RemoteCartID()
	require.True(t, ok)
	require.Equal(t, 42, id)
}

func TestEngine_LoadSelectsMostRecentCart(t *testing.T) {
	f := newFixture(t, product(1, "1.00"), product(2, "2.00"))
	f.gateway.carts = []domain.RemoteCart{
		{ID: 10, UserID: 1, Date: "2020-01-02", Products: []domain.RemoteCartProduct{{ProductID: 1, Quantity: 1}}},
		{ID: 11, UserID: 1, Date: "2020-02-03", Products: []domain.RemoteCartProduct{{ProductID: 2, Quantity: 4}}},
	}

	f.engine.LoadCartFromAPI(context.Background(), 1, false)

	id, ok := f.store.RemoteCartID()
	require.True(t, ok)
	require.Equal(t, 11, id)

	items := f.store.Items()
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0].ProductID)
	require.Equal(t, 4, items[0].Quantity)
	require.False(t, f.store.IsLoading())
	require.Equal(t, []domain.CartEventType{domain.CartEventHydrated}, f.publisher.types())
}

func TestEngine_LoadInvalidDatesSortEarliestAndTiesKeepOrder(t *testing.T) {
	tests := []struct {
		name  string
		carts []domain.RemoteCart
		want  int
	}{
		{
			name: "invalid date is earliest",
			carts: []domain.RemoteCart{
				{ID: 1, Date: "not-a-date"},
				{ID: 2, Date: "2019-12-10T00:00:00.000Z"},
				{ID: 3, Date: ""},
			},
			want: 2,
		},
		{
			name: "equal dates keep response order",
			carts: []domain.RemoteCart{
				{ID: 5, Date: "2020-03-01T00:00:00Z"},
				{ID: 6, Date: "2020-03-01T00:00:00Z"},
			},
			want: 5,
		},
		{
			name:  "all invalid picks first",
			carts: []domain.RemoteCart{{ID: 8}, {ID: 9}},
			want:  8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, selectLatest(tt.carts).ID)
		})
	}
}

func TestEngine_LoadKeepsNonEmptyLocalCartWithoutForce(t *testing.T) {
	f := newFixture(t, product(1, "1.00"), product(2, "2.00"))
	f.store.AddItem(product(1, "1.00"), 3, 0)
	before := f.store.Items()
	f.gateway.carts = []domain.RemoteCart{
		{ID: 11, Date: "2020-02-03", Products: []domain.RemoteCartProduct{{ProductID: 2, Quantity: 1}}},
	}

	f.engine.LoadCartFromAPI(context.Background(), 1, false)

	require.Equal(t, before, f.store.Items())
	id, ok := f.store.RemoteCartID()
	require.True(t, ok, "remote cart id is adopted even when lines are kept")
	require.Equal(t, 11, id)
	require.Empty(t, f.publisher.types())
}

func TestEngine_LoadForceReplacesLocalCart(t *testing.T) {
	f := newFixture(t, product(1, "1.00"), product(2, "2.00"))
	f.store.AddItem(product(1, "1.00"), 3, 0)
	f.gateway.carts = []domain.RemoteCart{
		{ID: 11, Date: "2020-02-03", Products: []domain.RemoteCartProduct{{ProductID: 2, Quantity: 1}}},
	}

	f.engine.LoadCartFromAPI(context.Background(), 1, true)

	items := f.store.Items()
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0].ProductID)

	restored := NewStore(f.store.persister)
	requireLinesEqual(t, items, restored.Items(), "hydrated lines are persisted")
	require.Equal(t, "2.00", restored.Items()[0].UnitPrice.StringFixed(2))
}

func TestEngine_LoadSkipsFailedLookupsAndFixesQuantity(t *testing.T) {
	f := newFixture(t, product(1, "1.00"), product(3, "3.00"))
	f.gateway.carts = []domain.RemoteCart{{
		ID:   20,
		Date: "2021-01-01",
		Products: []domain.RemoteCartProduct{
			{ProductID: 1, Quantity: 0},
			{ProductID: 2, Quantity: 5},
			{ProductID: 3, Quantity: -2},
		},
	}}

	f.engine.LoadCartFromAPI(context.Background(), 1, false)

	items := f.store.Items()
	require.Len(t, items, 2)
	require.Equal(t, 1, items[0].ProductID)
	require.Equal(t, 1, items[0].Quantity)
	require.Equal(t, 3, items[1].ProductID)
	require.Equal(t, 1, items[1].Quantity)
}

func TestEngine_LoadSelectedCartWithoutProductsEmptiesOnForce(t *testing.T) {
	f := newFixture(t, product(1, "1.00"))
	f.store.AddItem(product(1, "1.00"), 1, 0)
	f.gateway.carts = []domain.RemoteCart{{ID: 30, Date: "2022-01-01"}}

	f.engine.LoadCartFromAPI(context.Background(), 1, true)

	require.True(t, f.store.IsEmpty())
	id, _ := f.store.RemoteCartID()
	require.Equal(t, 30, id)
}

func TestEngine_LoadWithoutRemoteCarts(t *testing.T) {
	tests := []struct {
		name        string
		localLines  bool
		force       bool
		getErr      error
		wantCartSet bool
	}{
		{name: "force clears remote id", localLines: true, force: true, wantCartSet: false},
		{name: "empty local clears remote id", localLines: false, force: false, wantCartSet: false},
		{name: "non-empty local without force keeps remote id", localLines: true, force: false, wantCartSet: true},
		{name: "fetch error is treated as no carts", localLines: true, force: true, getErr: errGatewayDown, wantCartSet: false},
		{name: "fetch error keeps non-empty local", localLines: true, force: false, getErr: errGatewayDown, wantCartSet: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, product(1, "1.00"))
			f.store.setRemoteCartID(intPtr(77))
			if tt.localLines {
				f.store.AddItem(product(1, "1.00"), 2, 0)
			}
			before := f.store.Items()
			f.gateway.getErr = tt.getErr

			f.engine.LoadCartFromAPI(context.Background(), 1, tt.force)

			_, ok := f.store.RemoteCartID()
			require.Equal(t, tt.wantCartSet, ok)
			require.Equal(t, before, f.store.Items(), "local lines are never touched without a remote cart")
		})
	}
}

func TestEngine_LoadSetsLoadingFlag(t *testing.T) {
	f := newFixture(t)
	var observed bool
	f.gateway.onGet = func() {
		observed = f.store.IsLoading()
	}

	f.engine.LoadCartFromAPI(context.Background(), 1, false)

	require.True(t, observed)
	require.False(t, f.store.IsLoading())
}

func TestEngine_LoadDoesNotOverwriteItemsAddedDuringLoad(t *testing.T) {
	f := newFixture(t, product(1, "1.00"), product(2, "2.00"))
	f.gateway.carts = []domain.RemoteCart{
		{ID: 11, Date: "2020-02-03", Products: []domain.RemoteCartProduct{{ProductID: 2, Quantity: 1}}},
	}
	f.gateway.onGet = func() {
		f.store.AddItem(product(1, "1.00"), 1, 0)
	}

	f.engine.LoadCartFromAPI(context.Background(), 1, false)

	items := f.store.Items()
	require.Len(t, items, 1)
	require.Equal(t, 1, items[0].ProductID)
}

func TestEngine_CheckoutSuccessClearsCart(t *testing.T) {
	f := newFixture(t, product(1, "99.99"))
	f.store.AddItem(product(1, "99.99"), 2, 0)
	f.gateway.createdID = 501

	created, err := f.engine.Checkout(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 501, created.ID)

	require.True(t, f.store.IsEmpty())
	_, ok := f.store.RemoteCartID()
	require.False(t, ok)

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	require.Equal(t, domain.CartEventCheckedOut, event.Type)
	require.Equal(t, 501, event.RemoteCartID)
	require.Equal(t, 2, event.TotalItems)
	require.Equal(t, "199.98", event.TotalPrice)
}

func TestEngine_CheckoutFailureKeepsCart(t *testing.T) {
	f := newFixture(t, product(1, "5.00"))
	f.store.AddItem(product(1, "5.00"), 1, 0)
	f.gateway.createErr = errGatewayDown

	_, err := f.engine.Checkout(context.Background(), 3)
	require.ErrorIs(t, err, errGatewayDown)
	require.Equal(t, 1, f.store.TotalItems())
}

func TestEngine_CheckoutValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Checkout(context.Background(), 0)
	require.ErrorIs(t, err, domain.ErrUserRequired)

	_, err = f.engine.Checkout(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrCartEmpty)
	require.Equal(t, 0, f.gateway.writes())
}

func intPtr(v int) *int {
	return &v
}

func TestEngine_OverlappingCreatesKeepLinesAndAdoptOneID(t *testing.T) {
	d := dispatch.New(dispatch.WithConcurrency(2))
	f := newFixtureWithKV(t, memory.NewKeyValueStore(), d, product(1, "1.00"), product(2, "2.00"))
	f.gateway.sequentialIDs = true

	// Обе синхронизации должны войти в CreateCart до того, как любая из них
	// запишет id удалённой корзины.
	var entered sync.WaitGroup
	entered.Add(2)
	release := make(chan struct{})
	f.gateway.onCreate = func() {
		entered.Done()
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}
	go func() {
		entered.Wait()
		close(release)
	}()

	f.store.AddItem(product(1, "1.00"), 2, 1)
	f.store.AddItem(product(2, "2.00"), 1, 1)
	d.Wait()

	require.Equal(t, 2, f.gateway.creates(), "both syncs ran before a remote id existed")
	items := f.store.Items()
	require.Len(t, items, 2)
	require.Equal(t, 1, items[0].ProductID)
	require.Equal(t, 2, items[0].Quantity)
	require.Equal(t, 2, items[1].ProductID)
	require.Equal(t, 1, items[1].Quantity)
	require.Equal(t, "4.00", f.store.TotalPrice().StringFixed(2))

	id, ok := f.store.RemoteCartID()
	require.True(t, ok)
	require.Contains(t, []int{42, 43}, id)
}
