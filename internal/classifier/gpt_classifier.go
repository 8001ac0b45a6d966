package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/actionbot/internal/models"
	"go.uber.org/zap"
)

// GPTClassifier submits the combined message plus duplicate-awareness context
// to OpenAI and parses candidate actions from the JSON reply. On any
// transport or parse failure it falls back to the keyword classifier, so a
// Classify call always yields a best-effort candidate list.
type GPTClassifier struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	fallback    *KeywordClassifier
	logger      *zap.Logger
}

func NewGPTClassifier(apiKey, model string, maxTokens int, temperature float64, timeout time.Duration, logger *zap.Logger) *GPTClassifier {
	return &GPTClassifier{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		fallback:    NewKeywordClassifier(3),
		logger:      logger,
	}
}

func (c *GPTClassifier) Classify(ctx context.Context, req Request) ([]models.CandidateAction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: c.buildPrompt(req),
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: float32(c.temperature),
		},
	)
	if err != nil {
		c.logger.Error("Failed to get classification response, using keyword fallback", zap.Error(err))
		return c.fallback.Classify(ctx, req)
	}

	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	candidates, err := parseCandidates(response)
	if err != nil {
		c.logger.Error("Failed to parse classification response, using keyword fallback",
			zap.Error(err),
			zap.String("response", response))
		return c.fallback.Classify(ctx, req)
	}

	return candidates, nil
}

func (c *GPTClassifier) buildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString(`Analyze the chat message below and extract actionable items the recipient should track.

Valid types: reminder, task, event, note, issue, follow_up, research, communication, creative, administrative, health, finance, learning, shopping, travel.

Return ONLY a JSON array (possibly empty) of candidates with this structure:
[{
    "type": "task",
    "description": "short description",
    "details": {
        "title": "...",
        "content": "...",
        "datetime": "ISO timestamp if one is implied",
        "priority": "low|medium|high|urgent",
        "category": "...",
        "urgency_reason": "...",
        "suggested_actions": ["..."],
        "context": "..."
    },
    "confidence": 0.0
}]

Do NOT raise actions that duplicate the recent actions or covered topics listed below.
`)

	if req.FromOwner {
		b.WriteString("\nThe message was sent BY the account owner (a commitment they made themselves).\n")
	} else {
		b.WriteString("\nThe message was sent TO the account owner by another participant.\n")
	}

	if len(req.History) > 0 {
		b.WriteString("\nRecent actions in this conversation:\n")
		for _, entry := range req.History {
			fmt.Fprintf(&b, "- [%s] %s\n", entry.Type, entry.Description)
		}
	}
	if len(req.RecentSignatures) > 0 {
		fmt.Fprintf(&b, "\nRecent action signatures for this user: %s\n", strings.Join(req.RecentSignatures, ", "))
	}
	if len(req.TopicSummaries) > 0 {
		b.WriteString("\nTopics already covered in this group:\n")
		for _, summary := range req.TopicSummaries {
			fmt.Fprintf(&b, "- %s\n", summary)
		}
	}

	fmt.Fprintf(&b, "\nMessage from %s:\n%s\n", req.Message.SenderName, req.Message.Body)
	return b.String()
}

// parseCandidates accepts either a bare JSON array or an object wrapping it
// in an "actions" field, with optional markdown fences stripped.
func parseCandidates(response string) ([]models.CandidateAction, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var candidates []models.CandidateAction
	if err := json.Unmarshal([]byte(response), &candidates); err == nil {
		return candidates, nil
	}

	var wrapped struct {
		Actions []models.CandidateAction `json:"actions"`
	}
	if err := json.Unmarshal([]byte(response), &wrapped); err != nil {
		return nil, fmt.Errorf("malformed candidate list: %w", err)
	}
	return wrapped.Actions, nil
}
