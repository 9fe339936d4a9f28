package prefetch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"moutamayiz/internal/cache"
	"moutamayiz/pkg/moutamayiz"
)

const (
	// defaultStartDelay keeps the prefetch burst off the wire while the
	// first paint happens.
	defaultStartDelay = time.Second
	// messageFetchLimit is how many recent messages seed each topic thread.
	messageFetchLimit = 30

	progressItemType = "lesson_completion"
)

// Option mutates prefetcher configuration.
type Option func(*Prefetcher)

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prefetcher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithStartDelay overrides the delay before the fetch burst. Zero runs the
// tasks immediately.
func WithStartDelay(delay time.Duration) Option {
	return func(p *Prefetcher) {
		if delay >= 0 {
			p.startDelay = delay
		}
	}
}

// Prefetcher warms the session cache in the background once per session:
// the user's progress set, the priority lesson section, and each configured
// topic's recent thread. Every task is best-effort; failures are logged and
// swallowed, and nothing is retried.
type Prefetcher struct {
	querier         moutamayiz.Querier
	store           *cache.Store
	topics          []moutamayiz.Topic
	prioritySection string
	logger          *slog.Logger
	startDelay      time.Duration

	mu         sync.Mutex
	startedFor string
	wg         sync.WaitGroup
}

// New creates a prefetcher over the given cache store. topics is the
// injected static topic list; prioritySection names the lesson section
// fetched eagerly.
func New(
	querier moutamayiz.Querier,
	store *cache.Store,
	topics []moutamayiz.Topic,
	prioritySection string,
	options ...Option,
) (*Prefetcher, error) {
	if querier == nil {
		return nil, fmt.Errorf("new prefetcher: nil querier")
	}
	if store == nil {
		return nil, fmt.Errorf("new prefetcher: nil store")
	}

	prefetcher := &Prefetcher{
		querier:         querier,
		store:           store,
		topics:          append([]moutamayiz.Topic{}, topics...),
		prioritySection: prioritySection,
		logger:          slog.Default(),
		startDelay:      defaultStartDelay,
	}
	for _, option := range options {
		option(prefetcher)
	}

	return prefetcher, nil
}

// Start fires the one-shot background load for the session. A second call
// for the same session is a no-op; a new session re-arms it. Returns whether
// this call started the load.
//
// The three fetch tasks run concurrently with all-settled semantics: one
// failing neither cancels nor fails the others, and no failure surfaces past
// the log.
func (p *Prefetcher) Start(ctx context.Context, session moutamayiz.Session) bool {
	if err := session.Validate(); err != nil {
		p.logger.Warn("prefetch skipped", "error", err)
		return false
	}

	p.mu.Lock()
	if p.startedFor == session.UserID {
		p.mu.Unlock()
		return false
	}
	p.startedFor = session.UserID
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, session)
	}()

	return true
}

// Reset re-arms the prefetcher for the next session. In-flight fetches are
// not cancelled; a racing write after the cache clear repopulates a
// namespace for a session that no longer exists, which is accepted as a
// bounded harmless leak.
func (p *Prefetcher) Reset() {
	p.mu.Lock()
	p.startedFor = ""
	p.mu.Unlock()
}

// Wait blocks until every in-flight prefetch task has settled.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}

func (p *Prefetcher) run(ctx context.Context, session moutamayiz.Session) {
	if p.startDelay > 0 {
		timer := time.NewTimer(p.startDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	var tasks sync.WaitGroup
	tasks.Add(3)
	go func() {
		defer tasks.Done()
		if err := p.fetchProgress(ctx, session); err != nil {
			p.logger.Warn("prefetch progress failed", "user_id", session.UserID, "error", err)
		}
	}()
	go func() {
		defer tasks.Done()
		if err := p.fetchPriorityLessons(ctx); err != nil {
			p.logger.Warn("prefetch priority lessons failed", "section_id", p.prioritySection, "error", err)
		}
	}()
	go func() {
		defer tasks.Done()
		p.fetchTopicThreads(ctx)
	}()
	tasks.Wait()
}

func (p *Prefetcher) fetchProgress(ctx context.Context, session moutamayiz.Session) error {
	rows, err := p.querier.Query(ctx, moutamayiz.Query{
		Table: moutamayiz.TableProgress,
		Filters: []moutamayiz.Filter{
			{Column: "user_id", Op: moutamayiz.FilterEq, Value: session.UserID},
			{Column: "item_type", Op: moutamayiz.FilterEq, Value: progressItemType},
		},
	})
	if err != nil {
		return fmt.Errorf("list progress: %w", err)
	}

	itemIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["item_id"].(string); ok && id != "" {
			itemIDs = append(itemIDs, id)
		}
	}
	p.store.SetProgress(session.UserID, itemIDs)

	return nil
}

func (p *Prefetcher) fetchPriorityLessons(ctx context.Context) error {
	if p.prioritySection == "" || p.store.Has(cache.NamespaceLessons, p.prioritySection) {
		return nil
	}

	rows, err := p.querier.Query(ctx, moutamayiz.Query{
		Table:   moutamayiz.TableLessons,
		Filters: []moutamayiz.Filter{{Column: "section_id", Op: moutamayiz.FilterEq, Value: p.prioritySection}},
	})
	if err != nil {
		return fmt.Errorf("list lessons for %s: %w", p.prioritySection, err)
	}

	lessons := make([]moutamayiz.LessonRecord, 0, len(rows))
	for _, row := range rows {
		lesson, err := moutamayiz.LessonFromRecord(row)
		if err != nil {
			p.logger.Debug("skipping undecodable lesson row", "error", err)
			continue
		}
		lessons = append(lessons, lesson)
	}
	p.store.SetLessons(p.prioritySection, lessons)

	return nil
}

// fetchTopicThreads seeds every never-fetched topic with its most recent
// messages, stored ascending. A zero-row fetch is still stored so the topic
// reads as confirmed-empty instead of never-fetched.
func (p *Prefetcher) fetchTopicThreads(ctx context.Context) {
	var topicTasks sync.WaitGroup
	for _, topic := range p.topics {
		if p.store.Has(cache.NamespaceMessages, topic.ID) {
			continue
		}

		topic := topic
		topicTasks.Add(1)
		go func() {
			defer topicTasks.Done()
			if err := p.fetchThread(ctx, topic.ID); err != nil {
				p.logger.Warn("prefetch topic thread failed", "topic_id", topic.ID, "error", err)
			}
		}()
	}
	topicTasks.Wait()
}

func (p *Prefetcher) fetchThread(ctx context.Context, topicID string) error {
	rows, err := p.querier.Query(ctx, moutamayiz.Query{
		Table:      moutamayiz.TableMessages,
		Filters:    []moutamayiz.Filter{{Column: "subject_id", Op: moutamayiz.FilterEq, Value: topicID}},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      messageFetchLimit,
	})
	if err != nil {
		return fmt.Errorf("list messages for %s: %w", topicID, err)
	}

	messages := make([]moutamayiz.MessageRecord, 0, len(rows))
	for _, row := range rows {
		message, err := moutamayiz.MessageFromRecord(row)
		if err != nil {
			p.logger.Debug("skipping undecodable message row", "topic_id", topicID, "error", err)
			continue
		}
		messages = append(messages, message)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	p.store.SetMessages(topicID, messages)

	return nil
}
