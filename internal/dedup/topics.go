package dedup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xaenox/actionbot/internal/models"
	"go.uber.org/zap"
)

// TopicHistory is the storage slice the tracker needs to rebuild cluster
// state from persisted group-conversation actions.
type TopicHistory interface {
	QueryGroupTopicHistory(ctx context.Context, conversationID string, since time.Time, limit int) ([]models.TopicRecord, error)
}

// TrackerConfig controls topic matching thresholds and cluster lifetimes.
type TrackerConfig struct {
	SimilarityThreshold float64
	Timeout             time.Duration
	ActiveWindow        time.Duration
	Lookback            time.Duration
	MaxRecords          int
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		SimilarityThreshold: 0.7,
		Timeout:             6 * time.Hour,
		ActiveWindow:        2 * time.Hour,
		Lookback:            6 * time.Hour,
		MaxRecords:          15,
	}
}

// ClusterAction is one accepted action recorded against a topic cluster.
type ClusterAction struct {
	UserID      int64
	Description string
	At          time.Time
}

// Cluster is a tracked keyword-defined theme within one group conversation.
type Cluster struct {
	Type         models.ActionType
	Description  string
	Contributors map[int64]struct{}
	Actions      []ClusterAction
	LastUpdate   time.Time
}

// Tracker maintains per-conversation topic clusters so redundant actions
// raised by different members about the same topic can be suppressed.
// The per-user Guard cannot see across users; this can.
type Tracker struct {
	mu        sync.Mutex
	clusters  map[string]map[string]*Cluster
	watermark map[string]time.Time

	history TopicHistory
	config  TrackerConfig
	logger  *zap.Logger
}

func NewTracker(history TopicHistory, config TrackerConfig, logger *zap.Logger) *Tracker {
	return &Tracker{
		clusters:  make(map[string]map[string]*Cluster),
		watermark: make(map[string]time.Time),
		history:   history,
		config:    config,
		logger:    logger,
	}
}

func clusterKey(actionType models.ActionType, text string) string {
	return string(actionType) + "|" + strings.Join(Keywords(text, 3), ":")
}

// LoadContext merges recently persisted group actions for the conversation
// into the in-memory cluster map. Rows older than the load watermark are
// skipped so repeated loads do not double-count actions.
func (t *Tracker) LoadContext(ctx context.Context, conversationID string) error {
	since := time.Now().Add(-t.config.Lookback)
	records, err := t.history.QueryGroupTopicHistory(ctx, conversationID, since, t.config.MaxRecords)
	if err != nil {
		return fmt.Errorf("failed to load group topic history: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	mark := t.watermark[conversationID]
	for _, record := range records {
		if !record.CreatedAt.After(mark) {
			continue
		}
		t.upsertLocked(conversationID, record.UserID, record.Type, record.Description, record.CreatedAt)
		if record.CreatedAt.After(t.watermark[conversationID]) {
			t.watermark[conversationID] = record.CreatedAt
		}
	}
	return nil
}

// IsDuplicate reports whether the candidate message is already covered by an
// existing topic cluster in the conversation: either this user contributed to
// a matching cluster, or the cluster is an active multi-person discussion.
func (t *Tracker) IsDuplicate(conversationID, body string, userID int64) (bool, string) {
	candidate := Keywords(body, 10)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, cluster := range t.clusters[conversationID] {
		overlap := jaccard(candidate, Keywords(cluster.Description, 10))
		if overlap <= t.config.SimilarityThreshold {
			continue
		}
		if _, ok := cluster.Contributors[userID]; ok {
			return true, "user already contributed to this topic"
		}
		if len(cluster.Contributors) >= 2 && len(cluster.Actions) >= 2 &&
			time.Since(cluster.LastUpdate) <= t.config.ActiveWindow {
			return true, "topic already covered by an active multi-person discussion"
		}
		if len(cluster.Contributors) > 0 {
			return true, "topic already raised by another participant"
		}
	}
	return false, ""
}

// Update records accepted actions against the conversation's clusters.
func (t *Tracker) Update(conversationID string, userID int64, actions []models.CandidateAction) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, action := range actions {
		t.upsertLocked(conversationID, userID, action.Type, action.Description, now)
	}
	if now.After(t.watermark[conversationID]) {
		t.watermark[conversationID] = now
	}
}

func (t *Tracker) upsertLocked(conversationID string, userID int64, actionType models.ActionType, description string, at time.Time) {
	if t.clusters[conversationID] == nil {
		t.clusters[conversationID] = make(map[string]*Cluster)
	}
	key := clusterKey(actionType, description)
	cluster, ok := t.clusters[conversationID][key]
	if !ok {
		cluster = &Cluster{
			Type:         actionType,
			Description:  description,
			Contributors: make(map[int64]struct{}),
		}
		t.clusters[conversationID][key] = cluster
	}
	cluster.Contributors[userID] = struct{}{}
	cluster.Actions = append(cluster.Actions, ClusterAction{UserID: userID, Description: description, At: at})
	if at.After(cluster.LastUpdate) {
		cluster.LastUpdate = at
	}
}

// Summaries returns up to max one-line cluster summaries for classifier
// context, newest first.
func (t *Tracker) Summaries(conversationID string, max int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	clusters := make([]*Cluster, 0, len(t.clusters[conversationID]))
	for _, cluster := range t.clusters[conversationID] {
		clusters = append(clusters, cluster)
	}
	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].LastUpdate.After(clusters[j].LastUpdate)
	})
	if len(clusters) > max {
		clusters = clusters[:max]
	}

	summaries := make([]string, 0, len(clusters))
	for _, cluster := range clusters {
		summaries = append(summaries, fmt.Sprintf("%s: %s (%d participants, %d actions)",
			cluster.Type, cluster.Description, len(cluster.Contributors), len(cluster.Actions)))
	}
	return summaries
}

// ClusterCount returns the number of live clusters for a conversation.
func (t *Tracker) ClusterCount(conversationID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clusters[conversationID])
}

// EvictStale purges clusters not updated within the timeout. Called from
// the maintenance sweep.
func (t *Tracker) EvictStale() {
	cutoff := time.Now().Add(-t.config.Timeout)

	t.mu.Lock()
	defer t.mu.Unlock()

	for conversationID, clusters := range t.clusters {
		for key, cluster := range clusters {
			if cluster.LastUpdate.Before(cutoff) {
				delete(clusters, key)
			}
		}
		if len(clusters) == 0 {
			delete(t.clusters, conversationID)
			delete(t.watermark, conversationID)
		}
	}
}
