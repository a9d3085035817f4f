// Package cart содержит локальную корзину и движок её синхронизации с удалённым API.
package cart

import (
	"sync"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage"
)

// syncScheduler ставит фоновую синхронизацию корзины пользователя.
type syncScheduler interface {
	ScheduleSync(userID int)
}

// Store — локальная корзина. Источник истины для того, что видит пользователь:
// мутации применяются сразу и сохраняются, синхронизация с API идёт в фоне.
type Store struct {
	mu      sync.RWMutex
	state   domain.LocalCartState
	loading bool

	persister *storage.Persister
	scheduler syncScheduler
	metrics   *metrics.CartMetrics
	logger    *log.Entry
}

// StoreOption настраивает Store.
type StoreOption func(*Store)

// WithStoreLogger задаёт логгер.
func WithStoreLogger(logger *log.Entry) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreMetrics задаёт метрики размера корзины.
func WithStoreMetrics(m *metrics.CartMetrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore создаёт корзину и восстанавливает позиции из persister.
// Отсутствующее или повреждённое значение даёт пустую корзину.
func NewStore(persister *storage.Persister, opts ...StoreOption) *Store {
	s := &Store{
		persister: persister,
		logger:    log.WithField("component", "cart-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hydrateFromStorage()
	return s
}

func (s *Store) hydrateFromStorage() {
	if s.persister == nil {
		return
	}

	var lines []domain.CartLine
	if !s.persister.Load(storage.KeyCart, &lines) {
		return
	}

	s.state.Lines = sanitizeLines(lines)
	if dropped := len(lines) - len(s.state.Lines); dropped > 0 {
		s.logger.WithField("dropped", dropped).Warn("ignored invalid persisted cart lines")
	}
	s.logger.WithField("lines", len(s.state.Lines)).Debug("cart restored from storage")
	s.metrics.SetCartSize(s.state.UniqueItemsCount(), s.state.TotalItems())
}

// sanitizeLines выкидывает позиции с неположительным количеством и схлопывает дубли.
func sanitizeLines(lines []domain.CartLine) []domain.CartLine {
	result := make([]domain.CartLine, 0, len(lines))
	index := make(map[int]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		if i, ok := index[line.ProductID]; ok {
			result[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(result)
		result = append(result, line)
	}
	return result
}

// AddItem увеличивает количество товара или добавляет новую позицию.
// quantity < 1 считается равным 1. При userID > 0 запускает фоновую синхронизацию.
func (s *Store) AddItem(product domain.Product, quantity, userID int) {
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	if i := s.indexLocked(product.ID); i >= 0 {
		s.state.Lines[i].Quantity += quantity
	} else {
		s.state.Lines = append(s.state.Lines, domain.NewCartLine(product, quantity))
	}
	s.persistLocked()
	s.mu.Unlock()

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"quantity":   quantity,
	}).Debug("item added to cart")
	s.scheduleSync(userID)
}

// RemoveItem удаляет позицию. Для отсутствующего товара ничего не делает
// и синхронизацию не запускает.
func (s *Store) RemoveItem(productID, userID int) {
	s.mu.Lock()
	i := s.indexLocked(productID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.state.Lines = append(s.state.Lines[:i:i], s.state.Lines[i+1:]...)
	s.persistLocked()
	s.mu.Unlock()

	s.logger.WithField("product_id", productID).Debug("item removed from cart")
	s.scheduleSync(userID)
}

// UpdateQuantity задаёт количество позиции. quantity <= 0 эквивалентно RemoveItem.
func (s *Store) UpdateQuantity(productID, quantity, userID int) {
	if quantity <= 0 {
		s.RemoveItem(productID, userID)
		return
	}

	s.mu.Lock()
	i := s.indexLocked(productID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.state.Lines[i].Quantity = quantity
	s.persistLocked()
	s.mu.Unlock()

	s.scheduleSync(userID)
}

// ClearCart очищает позиции и сбрасывает RemoteCartID.
func (s *Store) ClearCart() {
	s.mu.Lock()
	s.state.Lines = nil
	s.state.RemoteCartID = nil
	s.persistLocked()
	s.mu.Unlock()

	s.logger.Debug("cart cleared")
}

// Items возвращает копию позиций в порядке добавления.
func (s *Store) Items() []domain.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyLines(s.state.Lines)
}

// IsLoading сообщает, что идёт загрузка корзины из API.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// TotalItems — сумма количеств по всем позициям корзины.
func (s *Store) TotalItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.TotalItems()
}

// UniqueItemsCount — число различных товаров в корзине.
func (s *Store) UniqueItemsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.UniqueItemsCount()
}

// TotalPrice — итоговая стоимость корзины.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.TotalPrice()
}

// IsEmpty сообщает, что в корзине нет ни одной позиции.
func (s *Store) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsEmpty()
}

// RemoteCartID возвращает id удалённой корзины; ok=false, если она ещё не создана.
func (s *Store) RemoteCartID() (id int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.RemoteCartID == nil {
		return 0, false
	}
	return *s.state.RemoteCartID, true
}

// Snapshot возвращает копию всего состояния.
func (s *Store) Snapshot() domain.LocalCartState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.LocalCartState {
	snapshot := domain.LocalCartState{Lines: copyLines(s.state.Lines)}
	if s.state.RemoteCartID != nil {
		id := *s.state.RemoteCartID
		snapshot.RemoteCartID = &id
	}
	return snapshot
}

func (s *Store) setRemoteCartID(id *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == nil {
		s.state.RemoteCartID = nil
		return
	}
	v := *id
	s.state.RemoteCartID = &v
}

func (s *Store) replaceLines(lines []domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Lines = copyLines(lines)
	s.persistLocked()
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

func (s *Store) attach(scheduler syncScheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler = scheduler
}

func (s *Store) scheduleSync(userID int) {
	if userID <= 0 {
		return
	}
	s.mu.RLock()
	scheduler := s.scheduler
	s.mu.RUnlock()
	if scheduler == nil {
		return
	}
	scheduler.ScheduleSync(userID)
}

func (s *Store) indexLocked(productID int) int {
	for i, line := range s.state.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// persistLocked сохраняет позиции. Ошибка хранилища только логируется внутри persister.
func (s *Store) persistLocked() {
	s.metrics.SetCartSize(s.state.UniqueItemsCount(), s.state.TotalItems())
	if s.persister == nil {
		return
	}
	lines := s.state.Lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	s.persister.Save(storage.KeyCart, lines)
}

func copyLines(lines []domain.CartLine) []domain.CartLine {
	if len(lines) == 0 {
		return []domain.CartLine{}
	}
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	return out
}
