package classifier

import (
	"context"
	"sort"
	"strings"

	"github.com/xaenox/actionbot/internal/models"
)

// categoryKeywords drives the deterministic fallback classifier. Scores are
// hit counts; more hits mean higher confidence.
var categoryKeywords = map[models.ActionType][]string{
	models.ActionReminder:       {"remind", "reminder", "remember", "forget", "tomorrow", "tonight", "later today"},
	models.ActionTask:           {"task", "todo", "finish", "complete", "fix", "submit", "deadline"},
	models.ActionEvent:          {"meeting", "appointment", "schedule", "event", "party", "dinner", "lunch"},
	models.ActionIssue:          {"broken", "bug", "error", "problem", "issue", "not working", "crash"},
	models.ActionFollowUp:       {"follow up", "check in", "circle back", "get back to", "ping"},
	models.ActionResearch:       {"research", "look up", "find out", "investigate", "compare", "figure out"},
	models.ActionCommunication:  {"call", "reply", "email", "message", "respond", "text back"},
	models.ActionCreative:       {"write", "design", "draw", "compose", "brainstorm", "draft"},
	models.ActionAdministrative: {"form", "renew", "license", "passport", "register", "paperwork", "application"},
	models.ActionHealth:         {"doctor", "dentist", "medicine", "prescription", "workout", "gym"},
	models.ActionFinance:        {"pay", "invoice", "bill", "bank", "transfer", "rent", "budget"},
	models.ActionLearning:       {"study", "learn", "course", "tutorial", "practice", "lesson"},
	models.ActionShopping:       {"buy", "purchase", "order", "groceries", "shop for"},
	models.ActionTravel:         {"flight", "trip", "hotel", "vacation", "booking", "travel", "itinerary"},
	models.ActionNote:           {"note that", "keep in mind", "fyi", "for the record"},
}

// KeywordClassifier is the deterministic fallback used when the AI call
// fails or its output cannot be parsed.
type KeywordClassifier struct {
	maxCandidates int
}

func NewKeywordClassifier(maxCandidates int) *KeywordClassifier {
	if maxCandidates <= 0 {
		maxCandidates = 3
	}
	return &KeywordClassifier{maxCandidates: maxCandidates}
}

// Classify scores each category by keyword hits against the message body and
// returns the top-scoring candidates, highest confidence first. Never errors.
func (c *KeywordClassifier) Classify(_ context.Context, req Request) ([]models.CandidateAction, error) {
	body := strings.ToLower(req.Message.Body)

	var candidates []models.CandidateAction
	for actionType, keywords := range categoryKeywords {
		hits := 0
		for _, keyword := range keywords {
			if strings.Contains(body, keyword) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		confidence := 0.6 + 0.1*float64(hits)
		if confidence > 0.9 {
			confidence = 0.9
		}
		candidates = append(candidates, models.CandidateAction{
			Type:        actionType,
			Description: truncate(req.Message.Body, 120),
			Details: models.ActionDetails{
				Title:    titleOf(req.Message.Body),
				Content:  req.Message.Body,
				Priority: priorityOf(body),
				Category: string(actionType),
			},
			Confidence: confidence,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	if len(candidates) > c.maxCandidates {
		candidates = candidates[:c.maxCandidates]
	}
	return candidates, nil
}

func priorityOf(body string) models.Priority {
	for _, marker := range []string{"urgent", "asap", "emergency", "immediately"} {
		if strings.Contains(body, marker) {
			return models.PriorityUrgent
		}
	}
	for _, marker := range []string{"today", "tonight", "right away"} {
		if strings.Contains(body, marker) {
			return models.PriorityHigh
		}
	}
	return models.PriorityMedium
}

func titleOf(body string) string {
	words := strings.Fields(body)
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
