package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/actionbot/internal/grouper"
	"github.com/xaenox/actionbot/internal/models"
	"github.com/xaenox/actionbot/internal/storage"
	"go.uber.org/zap"
)

// Bot adapts Telegram updates into pipeline messages and exposes the
// action review commands.
type Bot struct {
	api      *tgbotapi.BotAPI
	pipeline *grouper.Pipeline
	storage  storage.Storage
	ownerID  int64
	logger   *zap.Logger
}

func New(api *tgbotapi.BotAPI, ownerID int64, pipeline *grouper.Pipeline, storage storage.Storage, logger *zap.Logger) *Bot {
	return &Bot{
		api:      api,
		pipeline: pipeline,
		storage:  storage,
		ownerID:  ownerID,
		logger:   logger,
	}
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		if update.Message.IsCommand() {
			go b.handleCommand(context.Background(), update.Message)
			continue
		}

		b.ingest(update.Message)
	}

	return nil
}

// Stop ends the update loop.
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
}

func (b *Bot) ingest(message *tgbotapi.Message) {
	body := message.Text
	if message.Caption != "" {
		body = message.Caption
	}
	if body == "" {
		return
	}

	isGroup := message.Chat.IsGroup() || message.Chat.IsSuperGroup()
	conversationID := strconv.FormatInt(message.Chat.ID, 10)
	if isGroup && message.Chat.Title != "" {
		conversationID = message.Chat.Title
	}

	senderName := message.From.FirstName
	if senderName == "" {
		senderName = message.From.UserName
	}

	b.pipeline.Ingest(models.IncomingMessage{
		ID:             fmt.Sprintf("%d:%d", message.Chat.ID, message.MessageID),
		UserID:         b.ownerID,
		ConversationID: conversationID,
		SenderID:       strconv.FormatInt(message.From.ID, 10),
		SenderName:     senderName,
		IsGroup:        isGroup,
		Body:           body,
		SentAt:         time.Unix(int64(message.Date), 0),
		FromOwner:      message.From.ID == b.ownerID,
	})
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "actions":
		b.handleActions(ctx, message)
	case "approve":
		b.handleDecision(ctx, message, models.StatusApproved)
	case "reject":
		b.handleDecision(ctx, message, models.StatusRejected)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to ActionBot! 📋
I watch your conversations and turn messages into actionable items.

Add me to a chat and I'll detect reminders, tasks, events and more.
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/actions - Show your pending actions
/approve <id> - Approve a pending action
/reject <id> - Reject a pending action

Messages sent in your chats are grouped, classified and deduplicated
automatically; detected actions arrive here for review.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleActions(ctx context.Context, message *tgbotapi.Message) {
	actions, err := b.storage.ListActionsByStatus(ctx, b.ownerID, models.StatusPending, 10)
	if err != nil {
		b.logger.Error("Failed to list pending actions",
			zap.Error(err),
			zap.Int64("user_id", b.ownerID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your actions.")
		return
	}

	if len(actions) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any pending actions.")
		return
	}

	var response strings.Builder
	response.WriteString("Your pending actions:\n\n")
	for _, action := range actions {
		fmt.Fprintf(&response, "• [%s] %s\n  id: %s\n  from: %s\n\n",
			action.Type, action.Description, action.ID, action.OriginalMessage.SenderName)
	}
	b.sendMessage(message.Chat.ID, response.String())
}

func (b *Bot) handleDecision(ctx context.Context, message *tgbotapi.Message, status models.ActionStatus) {
	actionID := strings.TrimSpace(message.CommandArguments())
	if actionID == "" {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Usage: /%s <action id>", message.Command()))
		return
	}

	if err := b.storage.UpdateActionStatus(ctx, b.ownerID, actionID, status); err != nil {
		b.logger.Error("Failed to update action status",
			zap.Error(err),
			zap.String("action_id", actionID),
			zap.String("status", string(status)))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't update that action.")
		return
	}

	b.sendMessage(message.Chat.ID, fmt.Sprintf("Action %s %s.", actionID, status))
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
