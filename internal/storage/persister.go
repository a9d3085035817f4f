// Package storage содержит JSON-обёртку над key-value бэкендами.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultOpTimeout = 3 * time.Second

// Ключи, под которыми витрина хранит состояние.
const (
	KeyCart      = "cart"
	KeyAuthToken = "auth_token"
	KeyUserData  = "user_data"
	KeyUsername  = "username"
)

// Persister сериализует значения в JSON и никогда не пробрасывает ошибки хранилища:
// они логируются, а вызывающий продолжает работать с состоянием в памяти.
type Persister struct {
	store     domain.KeyValueStore
	logger    *log.Entry
	opTimeout time.Duration
}

// NewPersister создаёт Persister поверх произвольного бэкенда.
func NewPersister(store domain.KeyValueStore, logger *log.Entry) *Persister {
	if logger == nil {
		logger = log.WithField("component", "storage")
	}
	return &Persister{
		store:     store,
		logger:    logger,
		opTimeout: defaultOpTimeout,
	}
}

// Load читает ключ в dst. Возвращает false, если ключа нет или значение не удалось прочитать;
// dst в этом случае не меняется.
func (p *Persister) Load(key string, dst any) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.opTimeout)
	defer cancel()

	raw, err := p.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrKeyNotFound) {
			p.logger.WithError(err).WithField("key", key).Warn("failed to read from storage")
		}
		return false
	}
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("failed to decode stored value")
		return false
	}
	return true
}

// Save сериализует value и пишет его под key. Возвращает false при ошибке.
func (p *Persister) Save(key string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		p.logger.WithError(err).WithField("key", key).Error("failed to encode value for storage")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opTimeout)
	defer cancel()

	if err := p.store.Set(ctx, key, raw); err != nil {
		p.logger.WithError(err).WithField("key", key).Error("failed to write to storage")
		return false
	}
	return true
}

// Remove удаляет ключ; отсутствие ключа ошибкой не считается.
func (p *Persister) Remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opTimeout)
	defer cancel()

	if err := p.store.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		p.logger.WithError(err).WithField("key", key).Warn("failed to remove from storage")
	}
}
