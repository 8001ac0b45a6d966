package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/actionbot/internal/models"
	"go.uber.org/zap"
)

// Notifier is the best-effort push-notification sink. Delivery failures
// never block action persistence.
type Notifier interface {
	Notify(ctx context.Context, userID int64, event string, action *models.PersistedAction) error
}

// TelegramNotifier pushes a short summary of a new action to the user's chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

func NewTelegramNotifier(api *tgbotapi.BotAPI, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{api: api, logger: logger}
}

func (n *TelegramNotifier) Notify(ctx context.Context, userID int64, event string, action *models.PersistedAction) error {
	text := fmt.Sprintf("📌 New %s: %s\nFrom: %s\nUse /actions to review.",
		action.Type, action.Description, action.OriginalMessage.SenderName)

	msg := tgbotapi.NewMessage(userID, text)
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error("Failed to send push notification",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("event", event))
		return err
	}
	return nil
}
