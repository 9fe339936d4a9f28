package unread

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"moutamayiz/pkg/moutamayiz"
)

// defaultScanLimit bounds the newest-first global message scan that seeds
// the unread set. A topic idle for longer than the window while still unread
// falls outside the scan, so the window is configurable per deployment.
const defaultScanLimit = 50

// Option mutates tracker configuration.
type Option func(*Tracker)

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithScanLimit overrides how many recent messages the initial
// reconciliation scans.
func WithScanLimit(limit int) Option {
	return func(t *Tracker) {
		if limit > 0 {
			t.scanLimit = limit
		}
	}
}

// Tracker reconciles which topics carry activity the user has not seen.
//
// ComputeInitial produces the authoritative set from backend truth; realtime
// events and explicit user action adjust it incrementally afterwards. The
// local set is optimistic: a mark-read whose receipt write fails upstream is
// healed by the next session's reconciliation, never merged around.
type Tracker struct {
	querier   moutamayiz.Querier
	logger    *slog.Logger
	scanLimit int

	mu     sync.Mutex
	topics map[string]struct{}
}

// New creates a tracker with an empty unread set.
func New(querier moutamayiz.Querier, options ...Option) (*Tracker, error) {
	if querier == nil {
		return nil, fmt.Errorf("new unread tracker: nil querier")
	}

	tracker := &Tracker{
		querier:   querier,
		logger:    slog.Default(),
		scanLimit: defaultScanLimit,
		topics:    make(map[string]struct{}),
	}
	for _, option := range options {
		option(tracker)
	}

	return tracker, nil
}

// ComputeInitial rebuilds the unread set from backend truth: the newest
// message timestamp per topic within the scan window, compared against the
// user's read receipts. The result replaces any prior set wholesale. On
// failure the prior set stays untouched and the error is returned for the
// caller to log; reconciliation is best-effort.
func (t *Tracker) ComputeInitial(ctx context.Context, session moutamayiz.Session) error {
	rows, err := t.querier.Query(ctx, moutamayiz.Query{
		Table:      moutamayiz.TableMessages,
		OrderBy:    "created_at",
		Descending: true,
		Limit:      t.scanLimit,
	})
	if err != nil {
		return fmt.Errorf("compute initial unread: scan recent messages: %w", err)
	}

	// Newest-first scan: the first timestamp seen per topic is its latest.
	latestByTopic := make(map[string]time.Time)
	for _, row := range rows {
		message, err := moutamayiz.MessageFromRecord(row)
		if err != nil {
			t.logger.Debug("skipping undecodable message row", "error", err)
			continue
		}
		if _, seen := latestByTopic[message.TopicID]; !seen {
			latestByTopic[message.TopicID] = message.CreatedAt
		}
	}

	receiptRows, err := t.querier.Query(ctx, moutamayiz.Query{
		Table:   moutamayiz.TableReceipts,
		Filters: []moutamayiz.Filter{{Column: "user_id", Op: moutamayiz.FilterEq, Value: session.UserID}},
	})
	if err != nil {
		return fmt.Errorf("compute initial unread: list receipts: %w", err)
	}

	readAtByTopic := make(map[string]time.Time, len(receiptRows))
	for _, row := range receiptRows {
		receipt, err := moutamayiz.ReceiptFromRecord(row)
		if err != nil {
			t.logger.Debug("skipping undecodable receipt row", "error", err)
			continue
		}
		readAtByTopic[receipt.TopicID] = receipt.LastReadAt
	}

	next := make(map[string]struct{})
	for topicID, latest := range latestByTopic {
		readAt, hasReceipt := readAtByTopic[topicID]
		if !hasReceipt || latest.After(readAt) {
			next[topicID] = struct{}{}
		}
	}

	t.mu.Lock()
	t.topics = next
	t.mu.Unlock()

	return nil
}

// OnNewMessage marks the message's topic unread unless the current user sent
// it. Returns true when the topic newly entered the set.
func (t *Tracker) OnNewMessage(message moutamayiz.MessageRecord, isOwnMessage bool) bool {
	if isOwnMessage {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, already := t.topics[message.TopicID]; already {
		return false
	}
	t.topics[message.TopicID] = struct{}{}

	return true
}

// MarkRead removes the topic from the local set immediately. Persisting the
// receipt update belongs to a UI collaborator; this core stays optimistic.
// Returns true when the topic was unread.
func (t *Tracker) MarkRead(topicID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, unread := t.topics[topicID]; !unread {
		return false
	}
	delete(t.topics, topicID)

	return true
}

// Unread returns a snapshot of the topics with unseen activity.
func (t *Tracker) Unread() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make(map[string]struct{}, len(t.topics))
	for topicID := range t.topics {
		snapshot[topicID] = struct{}{}
	}

	return snapshot
}

// IsUnread reports whether one topic currently has unseen activity.
func (t *Tracker) IsUnread(topicID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, unread := t.topics[topicID]
	return unread
}

// Reset drops the local set, used on session teardown.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.topics = make(map[string]struct{})
}
