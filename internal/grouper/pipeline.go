package grouper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaenox/actionbot/internal/classifier"
	"github.com/xaenox/actionbot/internal/dedup"
	"github.com/xaenox/actionbot/internal/emitter"
	"github.com/xaenox/actionbot/internal/models"
	"github.com/xaenox/actionbot/internal/storage"
	"go.uber.org/zap"
)

// PipelineConfig carries the tunables of the message-to-action pipeline.
type PipelineConfig struct {
	BatchDelay        time.Duration
	MaxBatchSize      int
	SenderGap         time.Duration
	StaleBuffer       time.Duration
	HistoryWindow     time.Duration
	HistoryMaxEntries int
	ConfidenceFloor   float64
	SweepInterval     time.Duration
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BatchDelay:        15 * time.Second,
		MaxBatchSize:      5,
		SenderGap:         5 * time.Minute,
		StaleBuffer:       10 * time.Minute,
		HistoryWindow:     24 * time.Hour,
		HistoryMaxEntries: 5,
		ConfidenceFloor:   0.7,
		SweepInterval:     time.Hour,
	}
}

type historyCache struct {
	entries  []models.ConversationHistoryEntry
	loadedAt time.Time
}

// Pipeline wires the buffer, run grouping, duplicate guards, classification
// and emission together. One flushed batch is processed on its own
// goroutine; a failure in one run never aborts sibling runs or other
// conversations' batches.
type Pipeline struct {
	config     PipelineConfig
	buffer     *Buffer
	store      storage.Storage
	classifier classifier.Classifier
	guard      *dedup.Guard
	topics     *dedup.Tracker
	emitter    *emitter.Emitter
	logger     *zap.Logger

	historyMu sync.Mutex
	history   map[Key]*historyCache

	inflight sync.WaitGroup
	stop     chan struct{}
	done     chan struct{}
}

func NewPipeline(
	config PipelineConfig,
	store storage.Storage,
	clf classifier.Classifier,
	guard *dedup.Guard,
	topics *dedup.Tracker,
	em *emitter.Emitter,
	logger *zap.Logger,
) *Pipeline {
	p := &Pipeline{
		config:     config,
		store:      store,
		classifier: clf,
		guard:      guard,
		topics:     topics,
		emitter:    em,
		logger:     logger,
		history:    make(map[Key]*historyCache),
	}
	p.buffer = NewBuffer(config.BatchDelay, config.MaxBatchSize, p.dispatch, logger)
	return p
}

// Ingest feeds one raw message into the buffering stage. Messages with an
// invalid timestamp are dropped rather than poisoning a batch.
func (p *Pipeline) Ingest(msg models.IncomingMessage) {
	if msg.SentAt.IsZero() || msg.SentAt.Unix() < 0 {
		p.logger.Warn("Dropping message with invalid timestamp",
			zap.String("message_id", msg.ID),
			zap.Int64("user_id", msg.UserID))
		return
	}
	p.buffer.Ingest(msg)
}

func (p *Pipeline) dispatch(key Key, batch []models.IncomingMessage) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.process(context.Background(), key, batch)
	}()
}

// Start launches the periodic maintenance sweep.
func (p *Pipeline) Start() {
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.sweepLoop()
}

// Stop halts the sweep and waits for in-flight batches to finish.
func (p *Pipeline) Stop() {
	close(p.stop)
	<-p.done
	p.inflight.Wait()
}

func (p *Pipeline) sweepLoop() {
	defer close(p.done)
	ticker := time.NewTicker(p.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.stop:
			return
		}
	}
}

// sweep evicts stale buffers, old history cache entries, signature overflow
// and expired topic clusters. Runs on a single goroutine, so it can never
// overlap itself.
func (p *Pipeline) sweep() {
	p.buffer.FlushStale(p.config.StaleBuffer)
	p.evictHistory()
	p.guard.EnforceCaps()
	p.topics.EvictStale()
}

func (p *Pipeline) evictHistory() {
	cutoff := time.Now().Add(-p.config.HistoryWindow)

	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	for key, cache := range p.history {
		kept := cache.entries[:0]
		for _, entry := range cache.entries {
			if !entry.CreatedAt.Before(cutoff) {
				kept = append(kept, entry)
			}
		}
		cache.entries = kept
		if len(cache.entries) == 0 && cache.loadedAt.Before(cutoff) {
			delete(p.history, key)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, key Key, batch []models.IncomingMessage) {
	batch = p.skipProcessed(ctx, key, batch)
	if len(batch) == 0 {
		return
	}

	p.refreshHistory(ctx, key)

	runs := SplitRuns(batch, p.config.SenderGap)
	for _, run := range runs {
		if err := p.processRun(ctx, key, run); err != nil {
			p.logger.Error("Failed to process message run, continuing with next",
				zap.Error(err),
				zap.Int64("user_id", key.UserID),
				zap.String("conversation", key.Conversation),
				zap.Int("run_size", len(run)))
		}
	}
}

// skipProcessed drops messages that already produced an action. On a storage
// failure the check is skipped and the full batch proceeds; the database
// uniqueness constraint backstops any resulting duplicate.
func (p *Pipeline) skipProcessed(ctx context.Context, key Key, batch []models.IncomingMessage) []models.IncomingMessage {
	ids := make([]string, len(batch))
	for i, msg := range batch {
		ids[i] = msg.ID
	}

	existing, err := p.store.QueryExistingActionsForMessageIDs(ctx, key.UserID, ids)
	if err != nil {
		p.logger.Warn("Existing-action check failed, proceeding without it", zap.Error(err))
		return batch
	}
	if len(existing) == 0 {
		return batch
	}

	processed := make(map[string]struct{}, len(existing))
	for _, action := range existing {
		processed[action.OriginalMessage.ID] = struct{}{}
	}

	kept := batch[:0]
	for _, msg := range batch {
		if _, ok := processed[msg.ID]; !ok {
			kept = append(kept, msg)
		}
	}
	return kept
}

func (p *Pipeline) processRun(ctx context.Context, key Key, run []models.IncomingMessage) error {
	combined := Combine(run)
	userID := key.UserID

	if combined.IsGroup {
		if err := p.topics.LoadContext(ctx, combined.ConversationID); err != nil {
			p.logger.Warn("Proceeding without persisted topic context", zap.Error(err))
		}
		if dup, reason := p.topics.IsDuplicate(combined.ConversationID, combined.Body, userID); dup {
			p.logger.Info("Suppressing message covered by group topic",
				zap.String("reason", reason),
				zap.String("conversation_id", combined.ConversationID),
				zap.Int64("user_id", userID))
			return nil
		}
	}

	req := classifier.Request{
		Message:          combined,
		History:          p.historyFor(key, combined.FromOwner, p.config.HistoryMaxEntries),
		RecentSignatures: p.guard.Signatures(userID),
		FromOwner:        combined.FromOwner,
	}
	if combined.IsGroup {
		req.TopicSummaries = p.topics.Summaries(combined.ConversationID, 3)
	}

	candidates, err := p.classifier.Classify(ctx, req)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	best, ok := classifier.SelectBest(candidates, p.config.ConfidenceFloor)
	if !ok {
		p.logger.Debug("No candidate cleared the confidence floor",
			zap.Int64("user_id", userID),
			zap.Int("candidates", len(candidates)))
		return nil
	}

	if suppress, reason := p.guard.ShouldSuppress(userID, best, combined.FromOwner, p.historyFor(key, combined.FromOwner, 0)); suppress {
		p.logger.Info("Suppressing duplicate action",
			zap.String("reason", reason),
			zap.String("type", string(best.Type)),
			zap.Int64("user_id", userID))
		return nil
	}

	persisted, err := p.emitter.Accept(ctx, userID, best, combined)
	if err != nil {
		return err
	}

	p.guard.Record(userID, best)
	if combined.IsGroup {
		p.topics.Update(combined.ConversationID, userID, []models.CandidateAction{best})
	}
	p.appendHistory(key, models.ConversationHistoryEntry{
		Type:        best.Type,
		Description: best.Description,
		Details:     persisted.Details,
		CreatedAt:   persisted.CreatedAt,
		FromOwner:   combined.FromOwner,
	})

	p.logger.Info("Action created",
		zap.String("action_id", persisted.ID),
		zap.String("type", string(best.Type)),
		zap.Float64("confidence", best.Confidence),
		zap.Int64("user_id", userID),
		zap.Int("message_count", combined.MessageCount))
	return nil
}

// refreshHistory reloads the conversation-history cache from storage. On
// failure the previously cached entries keep serving, degraded.
func (p *Pipeline) refreshHistory(ctx context.Context, key Key) {
	since := time.Now().Add(-p.config.HistoryWindow)
	entries, err := p.store.QueryRecentActions(ctx, key.UserID, key.Conversation, since, storage.ScopeAny)
	if err != nil {
		p.logger.Warn("History reload failed, using cached entries", zap.Error(err))
		return
	}

	p.historyMu.Lock()
	p.history[key] = &historyCache{entries: entries, loadedAt: time.Now()}
	p.historyMu.Unlock()
}

// historyFor returns cached entries matching the sender class, newest first.
// max <= 0 returns all of them.
func (p *Pipeline) historyFor(key Key, fromOwner bool, max int) []models.ConversationHistoryEntry {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	cache := p.history[key]
	if cache == nil {
		return nil
	}

	var scoped []models.ConversationHistoryEntry
	for _, entry := range cache.entries {
		if entry.FromOwner == fromOwner {
			scoped = append(scoped, entry)
		}
		if max > 0 && len(scoped) >= max {
			break
		}
	}
	return scoped
}

func (p *Pipeline) appendHistory(key Key, entry models.ConversationHistoryEntry) {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	cache := p.history[key]
	if cache == nil {
		cache = &historyCache{loadedAt: time.Now()}
		p.history[key] = cache
	}
	// Newest first, matching storage query order
	cache.entries = append([]models.ConversationHistoryEntry{entry}, cache.entries...)
}
