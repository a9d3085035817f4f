package cart

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/dispatch"
	"github.com/vladislavdragonenkov/storefront/internal/service/events"
)

const (
	defaultLookupConcurrency = 8
	syncTaskName             = "cart.sync"
)

// Engine держит удалённую корзину в согласованном (в конечном счёте) состоянии с локальной
// и восстанавливает локальную корзину из API при старте сессии.
type Engine struct {
	store      *Store
	gateway    domain.CartGateway
	products   domain.ProductLookup
	dispatcher domain.TaskDispatcher
	events     domain.EventPublisher
	metrics    *metrics.CartMetrics
	logger     *log.Entry

	lookupConcurrency int
	now               func() time.Time
}

// Option настраивает Engine.
type Option func(*Engine)

// WithDispatcher задаёт исполнитель фоновых синхронизаций.
func WithDispatcher(d domain.TaskDispatcher) Option {
	return func(e *Engine) {
		if d != nil {
			e.dispatcher = d
		}
	}
}

// WithEventPublisher задаёт получателя событий корзины.
func WithEventPublisher(p domain.EventPublisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.events = p
		}
	}
}

// WithMetrics задаёт метрики синхронизации.
func WithMetrics(m *metrics.CartMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLookupConcurrency ограничивает число параллельных запросов товаров.
func WithLookupConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.lookupConcurrency = n
		}
	}
}

// NewEngine связывает движок с корзиной: мутации store с userID > 0
// начинают планировать синхронизацию через этот движок.
func NewEngine(store *Store, gateway domain.CartGateway, products domain.ProductLookup, opts ...Option) *Engine {
	e := &Engine{
		store:             store,
		gateway:           gateway,
		products:          products,
		events:            events.Noop{},
		logger:            log.WithField("component", "cart-engine"),
		lookupConcurrency: defaultLookupConcurrency,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dispatcher == nil {
		e.dispatcher = dispatch.New(dispatch.WithLogger(e.logger.WithField("subcomponent", "dispatcher")))
	}
	store.attach(e)
	return e
}

// Store возвращает корзину, которой управляет движок.
func (e *Engine) Store() *Store {
	return e.store
}

// ScheduleSync ставит SyncCartToAPI в фоновую очередь и сразу возвращает управление.
func (e *Engine) ScheduleSync(userID int) {
	if userID <= 0 {
		return
	}
	e.dispatcher.Submit(syncTaskName, func(ctx context.Context) {
		e.SyncCartToAPI(ctx, userID)
	})
}

// SyncCartToAPI отражает текущие позиции в удалённую корзину.
// Ошибки шлюза логируются и не возвращаются вызывающему.
func (e *Engine) SyncCartToAPI(ctx context.Context, userID int) {
	if userID <= 0 {
		return
	}

	snapshot := e.store.Snapshot()
	logger := e.logger.WithField("user_id", userID)
	started := time.Now()

	if snapshot.RemoteCartID != nil {
		id := *snapshot.RemoteCartID
		payload := domain.CartPayload{
			ID:       id,
			UserID:   userID,
			Date:     e.timestamp(),
			Products: projection(snapshot.Lines),
		}
		if _, err := e.gateway.UpdateCart(ctx, id, payload); err != nil {
			logger.WithError(err).WithField("remote_cart_id", id).Warn("failed to sync cart to API")
			e.metrics.RecordSync(metrics.SyncModeUpdate, metrics.ResultFailure, time.Since(started))
			e.publish(ctx, domain.CartEventSyncFailed, userID, snapshot, map[string]any{
				"mode":  metrics.SyncModeUpdate,
				"error": err.Error(),
			})
			return
		}
		e.metrics.RecordSync(metrics.SyncModeUpdate, metrics.ResultSuccess, time.Since(started))
		logger.WithField("remote_cart_id", id).Debug("remote cart updated")
		e.publish(ctx, domain.CartEventSynced, userID, snapshot, map[string]any{"mode": metrics.SyncModeUpdate})
		return
	}

	payload := domain.CartPayload{
		ID:       0,
		UserID:   userID,
		Date:     e.timestamp(),
		Products: e.resolveDetails(ctx, snapshot.Lines),
	}
	created, err := e.gateway.CreateCart(ctx, payload)
	if err != nil {
		logger.WithError(err).Warn("failed to create remote cart")
		e.metrics.RecordSync(metrics.SyncModeCreate, metrics.ResultFailure, time.Since(started))
		e.publish(ctx, domain.CartEventSyncFailed, userID, snapshot, map[string]any{
			"mode":  metrics.SyncModeCreate,
			"error": err.Error(),
		})
		return
	}

	if created.ID > 0 {
		e.store.setRemoteCartID(&created.ID)
		snapshot.RemoteCartID = &created.ID
	}
	e.metrics.RecordSync(metrics.SyncModeCreate, metrics.ResultSuccess, time.Since(started))
	logger.WithField("remote_cart_id", created.ID).Info("remote cart created")
	e.publish(ctx, domain.CartEventSynced, userID, snapshot, map[string]any{"mode": metrics.SyncModeCreate})
}

// LoadCartFromAPI восстанавливает локальную корзину из самой свежей удалённой.
// Непустая локальная корзина заменяется только при force.
func (e *Engine) LoadCartFromAPI(ctx context.Context, userID int, force bool) {
	if userID <= 0 {
		return
	}

	e.store.setLoading(true)
	defer e.store.setLoading(false)

	logger := e.logger.WithFields(log.Fields{"user_id": userID, "force": force})
	wasEmpty := e.store.IsEmpty()

	carts, err := e.gateway.GetUserCarts(ctx, userID)
	if err != nil {
		logger.WithError(err).Warn("failed to load carts from API, treating as no remote cart")
		carts = nil
	}

	if len(carts) == 0 {
		if force || wasEmpty {
			e.store.setRemoteCartID(nil)
		}
		e.metrics.RecordHydration(metrics.ResultEmpty)
		logger.Debug("no remote cart found")
		return
	}

	latest := selectLatest(carts)
	e.store.setRemoteCartID(&latest.ID)

	lines := e.resolveLines(ctx, latest.Products)

	if !e.commitHydration(lines, force, wasEmpty) {
		e.metrics.RecordHydration(metrics.ResultSkipped)
		logger.WithField("remote_cart_id", latest.ID).Debug("local cart kept, remote cart not applied")
		return
	}

	e.metrics.RecordHydration(metrics.ResultSuccess)
	logger.WithFields(log.Fields{
		"remote_cart_id": latest.ID,
		"lines":          len(lines),
	}).Info("cart hydrated from API")
	e.publish(ctx, domain.CartEventHydrated, userID, e.store.Snapshot(), nil)
}

// commitHydration заменяет локальные позиции, если это разрешено правилом local-first.
// Позиции, добавленные пользователем во время загрузки, не перетираются.
func (e *Engine) commitHydration(lines []domain.CartLine, force, wasEmpty bool) bool {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	if !force && (!wasEmpty || !e.store.state.IsEmpty()) {
		return false
	}
	e.store.state.Lines = copyLines(lines)
	e.store.persistLocked()
	return true
}

// Checkout оформляет корзину: создаёт удалённую корзину и очищает локальную.
// В отличие от фоновой синхронизации ошибка возвращается вызывающему, корзина при этом не меняется.
func (e *Engine) Checkout(ctx context.Context, userID int) (domain.RemoteCart, error) {
	if userID <= 0 {
		return domain.RemoteCart{}, domain.ErrUserRequired
	}

	snapshot := e.store.Snapshot()
	if snapshot.IsEmpty() {
		return domain.RemoteCart{}, domain.ErrCartEmpty
	}

	created, err := e.gateway.CreateCart(ctx, domain.CartPayload{
		ID:       0,
		UserID:   userID,
		Date:     e.timestamp(),
		Products: e.resolveDetails(ctx, snapshot.Lines),
	})
	if err != nil {
		e.metrics.RecordCheckout(metrics.ResultFailure)
		e.logger.WithError(err).WithField("user_id", userID).Error("checkout failed")
		return domain.RemoteCart{}, fmt.Errorf("checkout: create remote cart: %w", err)
	}

	e.store.ClearCart()
	e.metrics.RecordCheckout(metrics.ResultSuccess)
	e.logger.WithFields(log.Fields{
		"user_id":        userID,
		"remote_cart_id": created.ID,
		"total_items":    snapshot.TotalItems(),
	}).Info("cart checked out")

	snapshot.RemoteCartID = &created.ID
	e.publish(ctx, domain.CartEventCheckedOut, userID, snapshot, nil)
	return created, nil
}

// resolveDetails получает карточки товаров для payload создания корзины.
// Если товар не найден, используются закэшированные поля позиции.
func (e *Engine) resolveDetails(ctx context.Context, lines []domain.CartLine) []domain.ProductDetails {
	details := make([]domain.ProductDetails, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.lookupConcurrency)
	for i, line := range lines {
		g.Go(func() error {
			product, err := e.products.GetProductByID(gctx, line.ProductID)
			if err != nil {
				e.metrics.RecordLookupFailure()
				e.logger.WithError(err).WithField("product_id", line.ProductID).
					Debug("product lookup failed, using cached line fields")
				details[i] = domain.ProductDetails{
					ID:       line.ProductID,
					Title:    line.Title,
					Price:    line.UnitPrice,
					Image:    line.ImageURL,
					Quantity: line.Quantity,
				}
				return nil
			}
			details[i] = domain.ProductDetails{
				ID:          product.ID,
				Title:       product.Title,
				Price:       product.Price,
				Description: product.Description,
				Category:    product.Category,
				Image:       product.Image,
				Quantity:    line.Quantity,
			}
			return nil
		})
	}
	_ = g.Wait()

	return details
}

// resolveLines превращает позиции удалённой корзины в локальные.
// Позиции с ненайденным товаром пропускаются, порядок сохраняется.
func (e *Engine) resolveLines(ctx context.Context, products []domain.RemoteCartProduct) []domain.CartLine {
	resolved := make([]*domain.CartLine, len(products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.lookupConcurrency)
	for i, item := range products {
		g.Go(func() error {
			product, err := e.products.GetProductByID(gctx, item.ProductID)
			if err != nil {
				e.metrics.RecordLookupFailure()
				e.logger.WithError(err).WithField("product_id", item.ProductID).
					Warn("failed to fetch product for remote cart line")
				return nil
			}
			quantity := item.Quantity
			if quantity <= 0 {
				quantity = 1
			}
			line := domain.NewCartLine(product, quantity)
			resolved[i] = &line
			return nil
		})
	}
	_ = g.Wait()

	lines := make([]domain.CartLine, 0, len(products))
	for _, line := range resolved {
		if line != nil {
			lines = append(lines, *line)
		}
	}
	return sanitizeLines(lines)
}

func (e *Engine) publish(ctx context.Context, eventType domain.CartEventType, userID int, state domain.LocalCartState, metadata map[string]any) {
	event := domain.CartEvent{
		Type:       eventType,
		UserID:     userID,
		TotalItems: state.TotalItems(),
		TotalPrice: state.TotalPrice().StringFixed(2),
		Timestamp:  e.now().UTC(),
		Metadata:   metadata,
	}
	if state.RemoteCartID != nil {
		event.RemoteCartID = *state.RemoteCartID
	}
	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.WithError(err).WithField("event_type", eventType).Warn("failed to publish cart event")
	}
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// projection — {productId, quantity} для запроса обновления.
func projection(lines []domain.CartLine) []domain.RemoteCartProduct {
	products := make([]domain.RemoteCartProduct, 0, len(lines))
	for _, line := range lines {
		products = append(products, domain.RemoteCartProduct{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}
	return products
}

// selectLatest выбирает самую свежую корзину. Сортировка стабильная: при равных датах
// побеждает корзина, идущая раньше в ответе; некорректная дата считается самой ранней.
func selectLatest(carts []domain.RemoteCart) domain.RemoteCart {
	sorted := make([]domain.RemoteCart, len(carts))
	copy(sorted, carts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ParsedDate().After(sorted[j].ParsedDate())
	})
	return sorted[0]
}
