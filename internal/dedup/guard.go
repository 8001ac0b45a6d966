package dedup

import (
	"sort"
	"strings"
	"sync"

	"github.com/xaenox/actionbot/internal/models"
	"go.uber.org/zap"
)

// OwnerPolicy controls how duplicates of owner-originated actions are
// handled. Permissive logs exact-signature hits but still accepts the
// action, so the owner's own commitments are never silently dropped.
type OwnerPolicy string

const (
	OwnerPermissive OwnerPolicy = "permissive"
	OwnerStrict     OwnerPolicy = "strict"
)

// GuardConfig bounds the per-user signature sets and sets the history
// similarity threshold.
type GuardConfig struct {
	SimilarityThreshold float64
	SignatureCap        int
	SignatureTrim       int
	OwnerPolicy         OwnerPolicy
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		SimilarityThreshold: 0.8,
		SignatureCap:        50,
		SignatureTrim:       30,
		OwnerPolicy:         OwnerPermissive,
	}
}

// Guard suppresses near-identical actions for the same user via exact
// signature membership and history similarity checks.
type Guard struct {
	mu         sync.Mutex
	signatures map[int64][]string
	members    map[int64]map[string]struct{}

	config GuardConfig
	logger *zap.Logger
}

func NewGuard(config GuardConfig, logger *zap.Logger) *Guard {
	return &Guard{
		signatures: make(map[int64][]string),
		members:    make(map[int64]map[string]struct{}),
		config:     config,
		logger:     logger,
	}
}

// SignatureOf derives the duplicate-lookup fingerprint of an action:
// its type joined with the top three alphabetically-sorted content words
// of the description.
func SignatureOf(action models.CandidateAction) string {
	parts := append([]string{string(action.Type)}, topWords(action.Description, 3)...)
	return strings.Join(parts, ":")
}

// IsExactDuplicate reports whether the action's signature is already in the
// user's rolling signature set.
func (g *Guard) IsExactDuplicate(userID int64, action models.CandidateAction) bool {
	sig := SignatureOf(action)
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.members[userID][sig]
	return ok
}

// IsSimilarToHistory compares the action against the five most recent
// history entries of the same type and sender class, using the Jaccard
// index over description words.
func (g *Guard) IsSimilarToHistory(action models.CandidateAction, fromOwner bool, history []models.ConversationHistoryEntry) bool {
	matching := make([]models.ConversationHistoryEntry, 0, len(history))
	for _, entry := range history {
		if entry.Type == action.Type && entry.FromOwner == fromOwner {
			matching = append(matching, entry)
		}
	}
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].CreatedAt.After(matching[j].CreatedAt)
	})
	if len(matching) > 5 {
		matching = matching[:5]
	}

	candidateWords := strings.Fields(strings.ToLower(action.Description))
	for _, entry := range matching {
		entryWords := strings.Fields(strings.ToLower(entry.Description))
		if jaccard(candidateWords, entryWords) > g.config.SimilarityThreshold {
			return true
		}
	}
	return false
}

// ShouldSuppress applies the full duplicate policy for one candidate.
// Returns the suppression decision and a reason for logging.
func (g *Guard) ShouldSuppress(userID int64, action models.CandidateAction, fromOwner bool, history []models.ConversationHistoryEntry) (bool, string) {
	if fromOwner {
		if g.IsExactDuplicate(userID, action) {
			if g.config.OwnerPolicy == OwnerStrict {
				return true, "owner action with duplicate signature (strict policy)"
			}
			g.logger.Info("Allowing duplicate-signature owner action",
				zap.Int64("user_id", userID),
				zap.String("signature", SignatureOf(action)))
		}
		return false, ""
	}

	if g.IsExactDuplicate(userID, action) {
		return true, "exact signature duplicate"
	}
	if g.IsSimilarToHistory(action, fromOwner, history) {
		return true, "similar to recent conversation history"
	}
	return false, ""
}

// Record adds an accepted action's signature to the user's rolling set,
// evicting the oldest entries once the cap is exceeded.
func (g *Guard) Record(userID int64, action models.CandidateAction) {
	sig := SignatureOf(action)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.members[userID] == nil {
		g.members[userID] = make(map[string]struct{})
	}
	if _, ok := g.members[userID][sig]; !ok {
		g.signatures[userID] = append(g.signatures[userID], sig)
		g.members[userID][sig] = struct{}{}
	}
	g.trimLocked(userID)
}

// Signatures returns a copy of the user's current signature set, newest last.
func (g *Guard) Signatures(userID int64) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.signatures[userID]...)
}

// EnforceCaps re-applies the signature cap for every user. Called from the
// maintenance sweep.
func (g *Guard) EnforceCaps() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for userID := range g.signatures {
		g.trimLocked(userID)
	}
}

func (g *Guard) trimLocked(userID int64) {
	sigs := g.signatures[userID]
	if len(sigs) <= g.config.SignatureCap {
		return
	}
	evicted := sigs[:len(sigs)-g.config.SignatureTrim]
	kept := sigs[len(sigs)-g.config.SignatureTrim:]
	for _, sig := range evicted {
		delete(g.members[userID], sig)
	}
	g.signatures[userID] = append([]string(nil), kept...)
}
