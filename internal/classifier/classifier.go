package classifier

import (
	"context"

	"github.com/xaenox/actionbot/internal/models"
)

// Request carries the combined message plus the assembled duplicate-awareness
// context handed to the classifier.
type Request struct {
	Message          models.CombinedMessage
	History          []models.ConversationHistoryEntry
	RecentSignatures []string
	TopicSummaries   []string
	FromOwner        bool
}

// Classifier turns a message plus context into candidate actions. The
// AI-backed implementation and the keyword heuristic are interchangeable.
type Classifier interface {
	Classify(ctx context.Context, req Request) ([]models.CandidateAction, error)
}

// SelectBest picks the single highest-confidence candidate at or above the
// confidence floor. Returns false if nothing clears it.
func SelectBest(candidates []models.CandidateAction, floor float64) (models.CandidateAction, bool) {
	var best models.CandidateAction
	found := false
	for _, candidate := range candidates {
		if candidate.Confidence < floor {
			continue
		}
		if !found || candidate.Confidence > best.Confidence {
			best = candidate
			found = true
		}
	}
	return best, found
}
