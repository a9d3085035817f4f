package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// kvStoreInMemory — key-value хранилище в памяти процесса (локальная разработка и тесты).
type kvStoreInMemory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewKeyValueStore возвращает пустое in-memory хранилище.
func NewKeyValueStore() *kvStoreInMemory {
	return &kvStoreInMemory{values: make(map[string][]byte)}
}

// Get возвращает копию значения или ErrKeyNotFound.
func (s *kvStoreInMemory) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set сохраняет копию value, чтобы вызывающий мог переиспользовать свой буфер.
func (s *kvStoreInMemory) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.values[key] = stored
	return nil
}

// Delete удаляет ключ; отсутствующий ключ не ошибка.
func (s *kvStoreInMemory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Keys возвращает количество сохранённых ключей (используется в тестах и health-check).
func (s *kvStoreInMemory) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

var _ domain.KeyValueStore = (*kvStoreInMemory)(nil)
