package grouper

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/actionbot/internal/classifier"
	"github.com/xaenox/actionbot/internal/dedup"
	"github.com/xaenox/actionbot/internal/emitter"
	"github.com/xaenox/actionbot/internal/models"
	"github.com/xaenox/actionbot/internal/notify"
	"github.com/xaenox/actionbot/internal/storage"
	"go.uber.org/zap"
)

type scriptedResult struct {
	candidates []models.CandidateAction
	err        error
}

// scriptedClassifier replays canned results per call, repeating the last one.
type scriptedClassifier struct {
	mu       sync.Mutex
	requests []classifier.Request
	script   []scriptedResult
}

func (s *scriptedClassifier) Classify(_ context.Context, req classifier.Request) ([]models.CandidateAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	result := s.script[i]
	return result.candidates, result.err
}

func (s *scriptedClassifier) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedClassifier) request(i int) classifier.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func taskCandidate(description string, confidence float64) models.CandidateAction {
	return models.CandidateAction{
		Type:        models.ActionTask,
		Description: description,
		Confidence:  confidence,
	}
}

func newTestPipeline(t *testing.T, clf classifier.Classifier, config PipelineConfig) (*Pipeline, *storage.MemoryStorage, *notify.Hub) {
	t.Helper()
	logger := zap.NewNop()
	store := storage.NewMemoryStorage()
	guard := dedup.NewGuard(dedup.DefaultGuardConfig(), logger)
	topics := dedup.NewTracker(store, dedup.DefaultTrackerConfig(), logger)
	hub := notify.NewHub()
	em := emitter.New(store, nil, hub, logger)
	return NewPipeline(config, store, clf, guard, topics, em, logger), store, hub
}

func pendingActions(store *storage.MemoryStorage, userID int64) []*models.PersistedAction {
	actions, _ := store.ListActionsByStatus(context.Background(), userID, models.StatusPending, 0)
	return actions
}

// End-to-end: three messages from the same contact in a 1:1 chat become one
// flush, one run, one combined classification call and one persisted action.
func TestPipelineEndToEnd(t *testing.T) {
	clf := &scriptedClassifier{script: []scriptedResult{
		{candidates: []models.CandidateAction{taskCandidate("check the server logs", 0.9)}},
	}}

	config := DefaultPipelineConfig()
	config.BatchDelay = 50 * time.Millisecond
	pipeline, store, hub := newTestPipeline(t, clf, config)

	events, cancel := hub.Subscribe(1)
	defer cancel()

	base := time.Now().Add(-time.Minute)
	for i, body := range []string{"fix the deploy script", "also update the readme", "and ping ops about it"} {
		pipeline.Ingest(models.IncomingMessage{
			ID:             string(rune('a' + i)),
			UserID:         1,
			ConversationID: "alice-chat",
			SenderID:       "alice-id",
			SenderName:     "alice",
			Body:           body,
			SentAt:         base.Add(time.Duration(i*3) * time.Second),
		})
	}

	require.Eventually(t, func() bool { return len(pendingActions(store, 1)) == 1 },
		2*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, clf.calls(), "one classification call for the whole run")
	combined := clf.request(0).Message
	assert.Equal(t, 3, combined.MessageCount)
	assert.True(t, combined.IsGrouped)
	lines := strings.Split(combined.Body, "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "["), "lines are timestamp-prefixed: %q", line)
	}

	action := pendingActions(store, 1)[0]
	assert.Equal(t, models.ActionTask, action.Type)
	assert.Equal(t, combined.Body, action.Details.Content, "details content references the combined body")
	assert.Equal(t, models.StatusPending, action.Status)
	assert.Equal(t, "alice-id", action.ConversationKey)

	select {
	case event := <-events:
		assert.Equal(t, "action_created", event.Name)
		assert.Equal(t, combined.Body, event.Message.Body)
	case <-time.After(time.Second):
		t.Fatal("expected a live event")
	}
}

// A classification failure in one run must not prevent sibling runs in the
// same batch from producing actions.
func TestPipelineIsolatesRunFailures(t *testing.T) {
	clf := &scriptedClassifier{script: []scriptedResult{
		{err: errors.New("model unavailable")},
		{candidates: []models.CandidateAction{taskCandidate("book the meeting room", 0.85)}},
	}}

	config := DefaultPipelineConfig()
	config.MaxBatchSize = 2
	pipeline, store, _ := newTestPipeline(t, clf, config)

	now := time.Now()
	for i, sender := range []string{"alice", "bob"} {
		pipeline.Ingest(models.IncomingMessage{
			ID:             sender + "-msg",
			UserID:         1,
			ConversationID: "team chat",
			SenderID:       sender + "-id",
			SenderName:     sender,
			IsGroup:        true,
			Body:           "please book the meeting room for friday " + sender,
			SentAt:         now.Add(time.Duration(i) * time.Second),
		})
	}

	require.Eventually(t, func() bool { return clf.calls() == 2 },
		2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return len(pendingActions(store, 1)) == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "book the meeting room", pendingActions(store, 1)[0].Description)
}

// Messages that already produced an action are skipped before grouping.
func TestPipelineSkipsProcessedMessages(t *testing.T) {
	clf := &scriptedClassifier{script: []scriptedResult{
		{candidates: []models.CandidateAction{taskCandidate("anything", 0.9)}},
	}}

	config := DefaultPipelineConfig()
	config.MaxBatchSize = 1
	pipeline, store, _ := newTestPipeline(t, clf, config)

	existing := &models.PersistedAction{
		ID:              "existing",
		UserID:          1,
		ConversationKey: "alice-id",
		Type:            models.ActionTask,
		Description:     "already handled",
		OriginalMessage: models.MessageSnapshot{ID: "m1", ConversationID: "alice-chat"},
		Status:          models.StatusPending,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, store.InsertAction(context.Background(), existing))

	pipeline.Ingest(models.IncomingMessage{
		ID:             "m1",
		UserID:         1,
		ConversationID: "alice-chat",
		SenderID:       "alice-id",
		SenderName:     "alice",
		Body:           "same message again",
		SentAt:         time.Now(),
	})

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, clf.calls(), "no classification for an already-processed message")
	assert.Len(t, pendingActions(store, 1), 1, "only the pre-existing action remains")
}

// Candidates below the confidence floor never become actions.
func TestPipelineRespectsConfidenceFloor(t *testing.T) {
	clf := &scriptedClassifier{script: []scriptedResult{
		{candidates: []models.CandidateAction{taskCandidate("low confidence guess", 0.5)}},
	}}

	config := DefaultPipelineConfig()
	config.MaxBatchSize = 1
	pipeline, store, _ := newTestPipeline(t, clf, config)

	pipeline.Ingest(models.IncomingMessage{
		ID:             "m1",
		UserID:         1,
		ConversationID: "alice-chat",
		SenderID:       "alice-id",
		SenderName:     "alice",
		Body:           "hmm maybe",
		SentAt:         time.Now(),
	})

	require.Eventually(t, func() bool { return clf.calls() == 1 },
		2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, pendingActions(store, 1))
}
