package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestOutboxPublisher_EnqueuesCartEvent(t *testing.T) {
	repo := memory.NewOutboxRepository(10)
	publisher := NewOutboxPublisher(repo, nil)

	event := domain.CartEvent{
		Type:         domain.CartEventSynced,
		UserID:       3,
		RemoteCartID: 11,
		TotalItems:   2,
		TotalPrice:   "199.98",
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, publisher.Publish(context.Background(), event))

	pending, err := repo.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	msg := pending[0]
	require.NotEmpty(t, msg.ID)
	require.Equal(t, "cart", msg.AggregateType)
	require.Equal(t, "3", msg.AggregateID)
	require.Equal(t, "cart.synced", msg.EventType)

	var decoded domain.CartEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	require.Equal(t, event, decoded)
}

func TestOutboxPublisher_FullOutbox(t *testing.T) {
	repo := memory.NewOutboxRepository(1)
	publisher := NewOutboxPublisher(repo, nil)
	ctx := context.Background()

	require.NoError(t, publisher.Publish(ctx, domain.CartEvent{Type: domain.CartEventSynced, UserID: 1}))

	err := publisher.Publish(ctx, domain.CartEvent{Type: domain.CartEventSynced, UserID: 1})
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrEventPublish))
}

func TestOutboxPublisher_CanceledContext(t *testing.T) {
	publisher := NewOutboxPublisher(memory.NewOutboxRepository(1), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, publisher.Publish(ctx, domain.CartEvent{}), context.Canceled)
}

func TestNoop(t *testing.T) {
	require.NoError(t, Noop{}.Publish(context.Background(), domain.CartEvent{}))
}
