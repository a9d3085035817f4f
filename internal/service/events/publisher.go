// Package events кладёт события корзины в outbox.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const aggregateTypeCart = "cart"

// OutboxPublisher реализует domain.EventPublisher поверх OutboxRepository.
// Доставка в брокер выполняется outbox worker'ом.
type OutboxPublisher struct {
	repo   domain.OutboxRepository
	logger *log.Entry
}

// NewOutboxPublisher создаёт publisher.
func NewOutboxPublisher(repo domain.OutboxRepository, logger *log.Entry) *OutboxPublisher {
	if logger == nil {
		logger = log.WithField("component", "cart-events")
	}
	return &OutboxPublisher{repo: repo, logger: logger}
}

// Publish сериализует событие и ставит его в outbox.
func (p *OutboxPublisher) Publish(ctx context.Context, event domain.CartEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", domain.ErrEventPublish, event.Type, err)
	}

	msg, err := p.repo.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateTypeCart,
		AggregateID:   strconv.Itoa(event.UserID),
		EventType:     string(event.Type),
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("%w: enqueue %s: %v", domain.ErrEventPublish, event.Type, err)
	}

	p.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"event_type": event.Type,
		"user_id":    event.UserID,
	}).Debug("cart event enqueued")
	return nil
}

var _ domain.EventPublisher = (*OutboxPublisher)(nil)

// Noop отбрасывает события. Используется, когда брокер не настроен.
type Noop struct{}

// Publish ничего не делает.
func (Noop) Publish(context.Context, domain.CartEvent) error { return nil }

var _ domain.EventPublisher = Noop{}
