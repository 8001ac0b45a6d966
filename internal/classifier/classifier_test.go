package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/actionbot/internal/models"
)

func TestSelectBestPicksHighestConfidence(t *testing.T) {
	candidates := []models.CandidateAction{
		{Type: models.ActionTask, Confidence: 0.65},
		{Type: models.ActionEvent, Confidence: 0.81},
		{Type: models.ActionReminder, Confidence: 0.9},
	}

	best, ok := SelectBest(candidates, 0.7)
	require.True(t, ok)
	assert.Equal(t, models.ActionReminder, best.Type)
	assert.Equal(t, 0.9, best.Confidence)
}

func TestSelectBestBelowFloor(t *testing.T) {
	candidates := []models.CandidateAction{
		{Type: models.ActionTask, Confidence: 0.5},
		{Type: models.ActionEvent, Confidence: 0.69},
	}

	_, ok := SelectBest(candidates, 0.7)
	assert.False(t, ok)

	_, ok = SelectBest(nil, 0.7)
	assert.False(t, ok)
}

func TestKeywordFallbackDetectsReminder(t *testing.T) {
	clf := NewKeywordClassifier(3)

	candidates, err := clf.Classify(context.Background(), Request{
		Message: models.CombinedMessage{
			IncomingMessage: models.IncomingMessage{Body: "remind me tomorrow at 3pm to call the bank"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	best, ok := SelectBest(candidates, 0.7)
	require.True(t, ok, "the reminder keywords clear the confidence floor")
	assert.Equal(t, models.ActionReminder, best.Type)
	assert.Equal(t, models.PriorityMedium, best.Details.Priority)
	assert.Equal(t, "remind me tomorrow at 3pm to call the bank", best.Details.Content)
}

func TestKeywordFallbackScoresUrgency(t *testing.T) {
	clf := NewKeywordClassifier(3)

	candidates, err := clf.Classify(context.Background(), Request{
		Message: models.CombinedMessage{
			IncomingMessage: models.IncomingMessage{Body: "urgent: the staging server is broken, fix asap"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.Equal(t, models.PriorityUrgent, candidates[0].Details.Priority)
}

func TestKeywordFallbackNoMatch(t *testing.T) {
	clf := NewKeywordClassifier(3)

	candidates, err := clf.Classify(context.Background(), Request{
		Message: models.CombinedMessage{
			IncomingMessage: models.IncomingMessage{Body: "haha yes exactly"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestParseCandidatesVariants(t *testing.T) {
	bare := `[{"type":"task","description":"do it","confidence":0.8}]`
	fenced := "```json\n" + bare + "\n```"
	wrapped := `{"actions":` + bare + `}`

	for _, response := range []string{bare, fenced, wrapped} {
		candidates, err := parseCandidates(response)
		require.NoError(t, err, "response: %s", response)
		require.Len(t, candidates, 1)
		assert.Equal(t, models.ActionTask, candidates[0].Type)
	}

	_, err := parseCandidates("sorry, I cannot help with that")
	assert.Error(t, err)
}
