package domain

import (
	"context"
	"time"
)

// CartGateway описывает операции с удалённой корзиной пользователя.
type CartGateway interface {
	// GetUserCarts возвращает все корзины пользователя (возможно, пустой список).
	GetUserCarts(ctx context.Context, userID int) ([]RemoteCart, error)
	// CreateCart создаёт корзину и возвращает её с присвоенным идентификатором.
	CreateCart(ctx context.Context, payload CartPayload) (RemoteCart, error)
	// UpdateCart перезаписывает корзину по id.
	UpdateCart(ctx context.Context, id int, payload CartPayload) (RemoteCart, error)
}

// ProductLookup разрешает id товара в полную карточку.
type ProductLookup interface {
	// GetProductByID возвращает ErrProductNotFound или сетевую ошибку при неудаче.
	GetProductByID(ctx context.Context, id int) (Product, error)
}

// KeyValueStore — персистентное хранилище сырых значений по ключу.
type KeyValueStore interface {
	// Get возвращает ErrKeyNotFound, если ключа нет.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// TaskDispatcher выполняет задачи в фоне; результат наблюдается только через логи.
type TaskDispatcher interface {
	Submit(name string, task func(ctx context.Context))
}

// EventPublisher публикует события корзины наружу.
type EventPublisher interface {
	Publish(ctx context.Context, event CartEvent) error
}

// CartEventType — тип события жизненного цикла корзины.
type CartEventType string

const (
	CartEventSynced     CartEventType = "cart.synced"
	CartEventSyncFailed CartEventType = "cart.sync_failed"
	CartEventHydrated   CartEventType = "cart.hydrated"
	CartEventCheckedOut CartEventType = "cart.checked_out"
)

// CartEvent — событие корзины конкретного пользователя.
type CartEvent struct {
	Type         CartEventType  `json:"event_type"`
	UserID       int            `json:"user_id"`
	RemoteCartID int            `json:"remote_cart_id,omitempty"`
	TotalItems   int            `json:"total_items"`
	TotalPrice   string         `json:"total_price"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// OutboxPublisher публикует сообщения из outbox; должен быть идемпотентным.
type OutboxPublisher interface {
	Publish(ctx context.Context, msg OutboxMessage) error
}

// OutboxRepository хранит события до их публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
