package emitter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/actionbot/internal/models"
	"github.com/xaenox/actionbot/internal/notify"
	"github.com/xaenox/actionbot/internal/storage"
	"go.uber.org/zap"
)

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (n *countingNotifier) Notify(_ context.Context, _ int64, _ string, _ *models.PersistedAction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type failingStorage struct {
	storage.Storage
}

func (failingStorage) InsertAction(context.Context, *models.PersistedAction) error {
	return errors.New("database unavailable")
}

func combinedMessage() models.CombinedMessage {
	return models.CombinedMessage{
		IncomingMessage: models.IncomingMessage{
			ID:             "m1",
			UserID:         1,
			ConversationID: "alice-chat",
			SenderID:       "alice-id",
			SenderName:     "alice",
			Body:           "please fix the staging deploy today",
			SentAt:         time.Now(),
		},
		MessageCount: 1,
		MessageIDs:   []string{"m1"},
	}
}

func TestAcceptPersistsNotifiesAndEmits(t *testing.T) {
	store := storage.NewMemoryStorage()
	push := &countingNotifier{}
	hub := notify.NewHub()
	em := New(store, push, hub, zap.NewNop())

	events, cancel := hub.Subscribe(1)
	defer cancel()

	action := models.CandidateAction{
		Type:        models.ActionTask,
		Description: "fix the staging deploy",
		Confidence:  0.9,
	}

	persisted, err := em.Accept(context.Background(), 1, action, combinedMessage())
	require.NoError(t, err)
	require.NotEmpty(t, persisted.ID)
	assert.Equal(t, models.StatusPending, persisted.Status)

	stored, err := store.ListActionsByStatus(context.Background(), 1, models.StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	assert.Equal(t, 1, push.count())
	select {
	case event := <-events:
		assert.Equal(t, "action_created", event.Name)
		assert.Equal(t, persisted.ID, event.Action.ID)
		assert.Equal(t, "alice", event.Message.SenderName)
	case <-time.After(time.Second):
		t.Fatal("expected a live event")
	}
}

func TestAcceptNormalizesDetails(t *testing.T) {
	store := storage.NewMemoryStorage()
	em := New(store, nil, nil, zap.NewNop())

	action := models.CandidateAction{
		Type:        models.ActionTask,
		Description: "fix the staging deploy before the release window closes tomorrow morning",
		Confidence:  0.9,
	}

	persisted, err := em.Accept(context.Background(), 1, action, combinedMessage())
	require.NoError(t, err)

	assert.Equal(t, "fix the staging deploy before the release window", persisted.Details.Title,
		"title defaults to the first eight description words")
	assert.Equal(t, "please fix the staging deploy today", persisted.Details.Content)
	assert.Equal(t, models.PriorityMedium, persisted.Details.Priority)
	assert.Equal(t, "task", persisted.Details.Category)
}

func TestAcceptAbortsOnPersistenceFailure(t *testing.T) {
	push := &countingNotifier{}
	hub := notify.NewHub()
	em := New(failingStorage{}, push, hub, zap.NewNop())

	events, cancel := hub.Subscribe(1)
	defer cancel()

	_, err := em.Accept(context.Background(), 1, models.CandidateAction{
		Type:        models.ActionTask,
		Description: "anything",
	}, combinedMessage())
	require.Error(t, err)

	assert.Equal(t, 0, push.count(), "no push notification after a failed insert")
	select {
	case <-events:
		t.Fatal("no live event after a failed insert")
	default:
	}
}

func TestAcceptToleratesNotifierFailure(t *testing.T) {
	store := storage.NewMemoryStorage()
	push := &countingNotifier{err: errors.New("push gateway down")}
	em := New(store, push, nil, zap.NewNop())

	_, err := em.Accept(context.Background(), 1, models.CandidateAction{
		Type:        models.ActionTask,
		Description: "fix the staging deploy",
	}, combinedMessage())
	assert.NoError(t, err, "notification failure never blocks persistence")
}
