package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/actionbot/internal/models"
)

// MemoryStorage is the in-memory Storage used by tests and by the
// database.use_in_memory configuration.
type MemoryStorage struct {
	mu      sync.RWMutex
	actions []*models.PersistedAction
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) InsertAction(ctx context.Context, action *models.PersistedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Uniqueness backstop, mirroring the database constraint
	for _, existing := range s.actions {
		if existing.UserID == action.UserID &&
			existing.OriginalMessage.ID == action.OriginalMessage.ID &&
			existing.Type == action.Type &&
			existing.Description == action.Description {
			return fmt.Errorf("duplicate action for message %s", action.OriginalMessage.ID)
		}
	}

	clone := *action
	s.actions = append(s.actions, &clone)
	return nil
}

func (s *MemoryStorage) UpdateActionStatus(ctx context.Context, userID int64, actionID string, status models.ActionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, action := range s.actions {
		if action.UserID == userID && action.ID == actionID {
			action.Status = status
			return nil
		}
	}
	return fmt.Errorf("action not found")
}

func (s *MemoryStorage) ListActionsByStatus(ctx context.Context, userID int64, status models.ActionStatus, limit int) ([]*models.PersistedAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.PersistedAction
	for _, action := range s.actions {
		if action.UserID == userID && action.Status == status {
			clone := *action
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStorage) QueryRecentActions(ctx context.Context, userID int64, conversationKey string, since time.Time, scope SenderScope) ([]models.ConversationHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []models.ConversationHistoryEntry
	for _, action := range s.actions {
		if action.UserID != userID || action.ConversationKey != conversationKey || action.CreatedAt.Before(since) {
			continue
		}
		if scope == ScopeOwner && !action.OriginalMessage.FromOwner {
			continue
		}
		if scope == ScopeOthers && action.OriginalMessage.FromOwner {
			continue
		}
		entries = append(entries, models.ConversationHistoryEntry{
			Type:        action.Type,
			Description: action.Description,
			Details:     action.Details,
			CreatedAt:   action.CreatedAt,
			FromOwner:   action.OriginalMessage.FromOwner,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

func (s *MemoryStorage) QueryExistingActionsForMessageIDs(ctx context.Context, userID int64, messageIDs []string) ([]*models.PersistedAction, error) {
	wanted := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.PersistedAction
	for _, action := range s.actions {
		if action.UserID != userID {
			continue
		}
		if _, ok := wanted[action.OriginalMessage.ID]; ok {
			clone := *action
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (s *MemoryStorage) QueryGroupTopicHistory(ctx context.Context, conversationID string, since time.Time, limit int) ([]models.TopicRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []models.TopicRecord
	for _, action := range s.actions {
		if !action.OriginalMessage.IsGroup || action.OriginalMessage.ConversationID != conversationID {
			continue
		}
		if action.CreatedAt.Before(since) {
			continue
		}
		records = append(records, models.TopicRecord{
			UserID:      action.UserID,
			Type:        action.Type,
			Description: action.Description,
			CreatedAt:   action.CreatedAt,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
