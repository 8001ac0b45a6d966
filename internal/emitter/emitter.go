package emitter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/actionbot/internal/models"
	"github.com/xaenox/actionbot/internal/notify"
	"github.com/xaenox/actionbot/internal/storage"
	"go.uber.org/zap"
)

// Emitter turns an accepted candidate into a durable record and notifies
// listeners. Side effects are ordered: persist, then push notification
// (best-effort), then the in-app live event. A persistence failure aborts
// the other two.
type Emitter struct {
	store  storage.Storage
	push   notify.Notifier
	hub    *notify.Hub
	logger *zap.Logger
}

func New(store storage.Storage, push notify.Notifier, hub *notify.Hub, logger *zap.Logger) *Emitter {
	return &Emitter{
		store:  store,
		push:   push,
		hub:    hub,
		logger: logger,
	}
}

// Accept persists the action with status pending and fans out notifications.
func (e *Emitter) Accept(ctx context.Context, userID int64, action models.CandidateAction, msg models.CombinedMessage) (*models.PersistedAction, error) {
	record := &models.PersistedAction{
		ID:              uuid.New().String(),
		UserID:          userID,
		ConversationKey: msg.ConversationKey(),
		Type:            action.Type,
		Description:     action.Description,
		Details:         normalizeDetails(action, msg),
		OriginalMessage: msg.Snapshot(),
		Status:          models.StatusPending,
		CreatedAt:       time.Now(),
	}

	if err := e.store.InsertAction(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist action: %w", err)
	}

	if e.push != nil {
		if err := e.push.Notify(ctx, userID, "action_created", record); err != nil {
			e.logger.Warn("Push notification failed",
				zap.Error(err),
				zap.String("action_id", record.ID),
				zap.Int64("user_id", userID))
		}
	}

	if e.hub != nil {
		e.hub.Publish(notify.Event{
			Name:    "action_created",
			UserID:  userID,
			Action:  record,
			Message: record.OriginalMessage,
		})
	}

	return record, nil
}

// normalizeDetails fills in title/content/priority/category defaults when
// the classifier omitted them.
func normalizeDetails(action models.CandidateAction, msg models.CombinedMessage) models.ActionDetails {
	details := action.Details
	if details.Title == "" {
		source := action.Description
		if source == "" {
			source = msg.Body
		}
		words := strings.Fields(source)
		if len(words) > 8 {
			words = words[:8]
		}
		details.Title = strings.Join(words, " ")
	}
	if details.Content == "" {
		details.Content = msg.Body
	}
	if details.Priority == "" {
		details.Priority = models.PriorityMedium
	}
	if details.Category == "" {
		details.Category = string(action.Type)
	}
	return details
}
