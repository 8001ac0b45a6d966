package grouper

import (
	"sync"
	"time"

	"github.com/xaenox/actionbot/internal/models"
	"go.uber.org/zap"
)

// Key identifies one buffering pipeline: the owning user plus the
// conversation key (group name, or sender id for 1:1 chats).
type Key struct {
	UserID       int64
	Conversation string
}

// FlushFunc receives a drained batch for downstream processing.
type FlushFunc func(key Key, batch []models.IncomingMessage)

type bufferEntry struct {
	messages []models.IncomingMessage
	timer    *time.Timer
	firstAt  time.Time
}

// Buffer absorbs bursts of messages per key and hands batches downstream
// once the delay timer fires or the batch reaches its maximum size.
//
// The timer starts with the first message since the last flush and is not
// reset by later messages, so a steady trickle cannot extend the window
// indefinitely. Draining swaps the entry out under the lock: an ingest
// arriving during processing starts a fresh buffer instead of racing the
// in-flight batch.
type Buffer struct {
	mu      sync.Mutex
	pending map[Key]*bufferEntry

	delay    time.Duration
	maxSize  int
	dispatch FlushFunc
	logger   *zap.Logger
}

func NewBuffer(delay time.Duration, maxSize int, dispatch FlushFunc, logger *zap.Logger) *Buffer {
	return &Buffer{
		pending:  make(map[Key]*bufferEntry),
		delay:    delay,
		maxSize:  maxSize,
		dispatch: dispatch,
		logger:   logger,
	}
}

// Ingest appends the message to its buffer. Reaching the maximum batch size
// flushes immediately and cancels the pending timer.
func (b *Buffer) Ingest(msg models.IncomingMessage) {
	key := Key{UserID: msg.UserID, Conversation: msg.ConversationKey()}

	b.mu.Lock()
	entry := b.pending[key]
	if entry == nil {
		entry = &bufferEntry{firstAt: time.Now()}
		b.pending[key] = entry
	}
	entry.messages = append(entry.messages, msg)

	if len(entry.messages) >= b.maxSize {
		batch := b.drainLocked(key)
		b.mu.Unlock()
		if len(batch) > 0 {
			b.dispatch(key, batch)
		}
		return
	}

	if entry.timer == nil {
		entry.timer = time.AfterFunc(b.delay, func() { b.Flush(key) })
	}
	b.mu.Unlock()
}

// Flush drains the buffer for the key and dispatches the batch if any.
// Safe to call concurrently with ingestion and with the timer; an empty
// drain is a no-op, so only one flush executes per buffered batch.
func (b *Buffer) Flush(key Key) {
	b.mu.Lock()
	batch := b.drainLocked(key)
	b.mu.Unlock()

	if len(batch) > 0 {
		b.dispatch(key, batch)
	}
}

func (b *Buffer) drainLocked(key Key) []models.IncomingMessage {
	entry := b.pending[key]
	if entry == nil {
		return nil
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(b.pending, key)
	return entry.messages
}

// PendingCount returns how many messages are buffered for the key.
func (b *Buffer) PendingCount(key Key) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry := b.pending[key]; entry != nil {
		return len(entry.messages)
	}
	return 0
}

// FlushStale flushes buffers whose oldest message has waited longer than
// maxAge. Called from the maintenance sweep.
func (b *Buffer) FlushStale(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	b.mu.Lock()
	var stale []Key
	for key, entry := range b.pending {
		if entry.firstAt.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	b.mu.Unlock()

	for _, key := range stale {
		b.logger.Warn("Flushing stale buffer",
			zap.Int64("user_id", key.UserID),
			zap.String("conversation", key.Conversation))
		b.Flush(key)
	}
}
