package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/actionbot/internal/models"
)

func persistedAction(id, messageID string, fromOwner bool, createdAt time.Time) *models.PersistedAction {
	return &models.PersistedAction{
		ID:              id,
		UserID:          1,
		ConversationKey: "alice-id",
		Type:            models.ActionTask,
		Description:     "description " + id,
		OriginalMessage: models.MessageSnapshot{
			ID:             messageID,
			ConversationID: "alice-chat",
			SenderName:     "alice",
			FromOwner:      fromOwner,
		},
		Status:    models.StatusPending,
		CreatedAt: createdAt,
	}
}

func TestInsertActionUniquenessBackstop(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	first := persistedAction("a1", "m1", false, now)
	require.NoError(t, store.InsertAction(ctx, first))

	race := persistedAction("a2", "m1", false, now)
	race.Description = first.Description
	assert.Error(t, store.InsertAction(ctx, race), "same message, type and description rejected")

	other := persistedAction("a3", "m1", false, now)
	other.Description = "a different follow-up"
	assert.NoError(t, store.InsertAction(ctx, other))
}

func TestUpdateActionStatus(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, store.InsertAction(ctx, persistedAction("a1", "m1", false, time.Now())))

	require.NoError(t, store.UpdateActionStatus(ctx, 1, "a1", models.StatusApproved))
	approved, err := store.ListActionsByStatus(ctx, 1, models.StatusApproved, 0)
	require.NoError(t, err)
	assert.Len(t, approved, 1)

	assert.Error(t, store.UpdateActionStatus(ctx, 1, "missing", models.StatusApproved))
	assert.Error(t, store.UpdateActionStatus(ctx, 2, "a1", models.StatusApproved), "scoped per user")
}

func TestQueryRecentActionsScoping(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.InsertAction(ctx, persistedAction("a1", "m1", false, now.Add(-time.Hour))))
	require.NoError(t, store.InsertAction(ctx, persistedAction("a2", "m2", true, now.Add(-30*time.Minute))))
	require.NoError(t, store.InsertAction(ctx, persistedAction("a3", "m3", false, now.Add(-48*time.Hour))))

	since := now.Add(-24 * time.Hour)

	entries, err := store.QueryRecentActions(ctx, 1, "alice-id", since, ScopeAny)
	require.NoError(t, err)
	require.Len(t, entries, 2, "entries outside the window excluded")
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt), "newest first")

	owner, err := store.QueryRecentActions(ctx, 1, "alice-id", since, ScopeOwner)
	require.NoError(t, err)
	require.Len(t, owner, 1)
	assert.True(t, owner[0].FromOwner)

	others, err := store.QueryRecentActions(ctx, 1, "alice-id", since, ScopeOthers)
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.False(t, others[0].FromOwner)
}

func TestQueryExistingActionsForMessageIDs(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, store.InsertAction(ctx, persistedAction("a1", "m1", false, time.Now())))

	existing, err := store.QueryExistingActionsForMessageIDs(ctx, 1, []string{"m1", "m2"})
	require.NoError(t, err)
	require.Len(t, existing, 1)
	assert.Equal(t, "m1", existing[0].OriginalMessage.ID)

	none, err := store.QueryExistingActionsForMessageIDs(ctx, 2, []string{"m1"})
	require.NoError(t, err)
	assert.Empty(t, none, "scoped per user")
}

func TestQueryGroupTopicHistory(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	group := persistedAction("a1", "m1", false, now.Add(-time.Hour))
	group.OriginalMessage.IsGroup = true
	group.OriginalMessage.ConversationID = "team chat"
	require.NoError(t, store.InsertAction(ctx, group))

	direct := persistedAction("a2", "m2", false, now.Add(-time.Hour))
	require.NoError(t, store.InsertAction(ctx, direct))

	records, err := store.QueryGroupTopicHistory(ctx, "team chat", now.Add(-6*time.Hour), 15)
	require.NoError(t, err)
	require.Len(t, records, 1, "only group-conversation rows qualify")
	assert.Equal(t, models.ActionTask, records[0].Type)
}
