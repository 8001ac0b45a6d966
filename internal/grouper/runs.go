package grouper

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xaenox/actionbot/internal/models"
)

// GroupingKey returns the run-partitioning key for a message. Group
// conversations key on owner-vs-display-name rather than the raw sender id,
// which tolerates routing-id inconsistencies for the same human. 1:1
// conversations use the sender id directly.
func GroupingKey(msg models.IncomingMessage) string {
	if msg.IsGroup {
		if msg.FromOwner {
			return "me"
		}
		return "other_" + msg.SenderName
	}
	return msg.SenderID
}

// SplitRuns sorts the batch by timestamp (stable) and partitions it into
// maximal contiguous runs sharing one grouping key, starting a new run when
// the key changes or the gap to the previous message exceeds the threshold.
// The runs cover the batch exactly: no message dropped or duplicated.
func SplitRuns(batch []models.IncomingMessage, gap time.Duration) [][]models.IncomingMessage {
	if len(batch) == 0 {
		return nil
	}

	sorted := append([]models.IncomingMessage(nil), batch...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SentAt.Before(sorted[j].SentAt)
	})

	var runs [][]models.IncomingMessage
	current := []models.IncomingMessage{sorted[0]}
	for _, msg := range sorted[1:] {
		previous := current[len(current)-1]
		if GroupingKey(msg) != GroupingKey(previous) || msg.SentAt.Sub(previous.SentAt) >= gap {
			runs = append(runs, current)
			current = []models.IncomingMessage{msg}
			continue
		}
		current = append(current, msg)
	}
	return append(runs, current)
}

// Combine merges a run into one message for a single classification call.
// A run of length 1 passes through unchanged; longer runs get a
// newline-joined body of timestamp-prefixed lines, keeping the sender and
// conversation metadata of the first message.
func Combine(run []models.IncomingMessage) models.CombinedMessage {
	ids := make([]string, len(run))
	for i, msg := range run {
		ids[i] = msg.ID
	}

	if len(run) == 1 {
		return models.CombinedMessage{
			IncomingMessage: run[0],
			MessageCount:    1,
			MessageIDs:      ids,
		}
	}

	lines := make([]string, len(run))
	for i, msg := range run {
		lines[i] = fmt.Sprintf("[%s] %s", msg.SentAt.Local().Format("15:04"), msg.Body)
	}

	combined := run[0]
	combined.Body = strings.Join(lines, "\n")
	return models.CombinedMessage{
		IncomingMessage: combined,
		IsGrouped:       true,
		MessageCount:    len(run),
		MessageIDs:      ids,
	}
}
