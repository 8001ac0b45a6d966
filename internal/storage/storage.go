package storage

import (
	"context"
	"time"

	"github.com/xaenox/actionbot/internal/models"
)

// SenderScope restricts history queries to one class of sender.
type SenderScope string

const (
	ScopeAny    SenderScope = "any"
	ScopeOwner  SenderScope = "owner"
	ScopeOthers SenderScope = "others"
)

type Storage interface {
	// InsertAction persists a new action. The implementation must enforce
	// uniqueness per (user, original message, type, description) as a
	// backstop against duplicate races.
	InsertAction(ctx context.Context, action *models.PersistedAction) error
	UpdateActionStatus(ctx context.Context, userID int64, actionID string, status models.ActionStatus) error
	ListActionsByStatus(ctx context.Context, userID int64, status models.ActionStatus, limit int) ([]*models.PersistedAction, error)

	// QueryRecentActions returns conversation-scoped history entries newer
	// than since, newest first, optionally restricted by sender class.
	QueryRecentActions(ctx context.Context, userID int64, conversationKey string, since time.Time, scope SenderScope) ([]models.ConversationHistoryEntry, error)

	// QueryExistingActionsForMessageIDs returns actions already created from
	// any of the given message ids, used to skip reprocessed messages.
	QueryExistingActionsForMessageIDs(ctx context.Context, userID int64, messageIDs []string) ([]*models.PersistedAction, error)

	// QueryGroupTopicHistory returns raw group-conversation action rows used
	// to rebuild topic cluster state.
	QueryGroupTopicHistory(ctx context.Context, conversationID string, since time.Time, limit int) ([]models.TopicRecord, error)

	Close() error
}
