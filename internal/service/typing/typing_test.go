package typing

import (
	"context"
	"sync"
	"testing"
	"time"

	"chatdesk-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepository struct {
	mu    sync.Mutex
	items map[string]model.TypingItem
}

func (m *memoryRepository) Upsert(ctx context.Context, item model.TypingItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.PK] = item
	return nil
}

func (m *memoryRepository) List(ctx context.Context, conversationID string) ([]model.TypingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TypingItem
	for _, item := range m.items {
		if item.ConversationID == conversationID {
			out = append(out, item)
		}
	}
	return out, nil
}

func setup() (*Service, *memoryRepository, *time.Time) {
	repo := &memoryRepository{items: make(map[string]model.TypingItem)}
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	svc := NewWithRepository(repo, func() time.Time { return now }, 0)
	return svc, repo, &now
}

func TestActiveExcludesCallerAndStopped(t *testing.T) {
	svc, _, _ := setup()
	ctx := context.Background()
	agent := Actor{UserID: "agent-1"}
	visitor := Actor{WidgetCustomerID: "wc-1"}

	_, err := svc.Set(ctx, "c1", agent, true)
	require.NoError(t, err)
	_, err = svc.Set(ctx, "c1", visitor, true)
	require.NoError(t, err)

	typing, err := svc.Active(ctx, "c1", visitor)
	require.NoError(t, err)
	require.Len(t, typing, 1)
	assert.Equal(t, "agent-1", typing[0].UserID)

	_, err = svc.Set(ctx, "c1", agent, false)
	require.NoError(t, err)
	typing, err = svc.Active(ctx, "c1", visitor)
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestStoppingIsAnUpsertNotADelete(t *testing.T) {
	svc, repo, _ := setup()
	ctx := context.Background()
	visitor := Actor{WidgetCustomerID: "wc-1"}

	_, err := svc.Set(ctx, "c1", visitor, true)
	require.NoError(t, err)
	_, err = svc.Set(ctx, "c1", visitor, false)
	require.NoError(t, err)

	require.Len(t, repo.items, 1)
	assert.False(t, repo.items[model.TypingPK("c1", "", "wc-1")].IsTyping)
}

func TestActiveDropsStaleRecords(t *testing.T) {
	svc, _, now := setup()
	ctx := context.Background()

	_, err := svc.Set(ctx, "c1", Actor{UserID: "agent-1"}, true)
	require.NoError(t, err)

	*now = now.Add(DefaultFreshness - time.Millisecond)
	typing, err := svc.Active(ctx, "c1", Actor{WidgetCustomerID: "wc-1"})
	require.NoError(t, err)
	assert.Len(t, typing, 1)

	*now = now.Add(2 * time.Millisecond)
	typing, err = svc.Active(ctx, "c1", Actor{WidgetCustomerID: "wc-1"})
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestSetRequiresExactlyOneActorKey(t *testing.T) {
	svc, _, _ := setup()
	ctx := context.Background()

	_, err := svc.Set(ctx, "c1", Actor{}, true)
	assert.ErrorIs(t, err, ErrInvalidActor)
	_, err = svc.Set(ctx, "c1", Actor{UserID: "a", WidgetCustomerID: "b"}, true)
	assert.ErrorIs(t, err, ErrInvalidActor)
}
