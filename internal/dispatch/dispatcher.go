package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"moutamayiz/internal/cache"
	"moutamayiz/internal/notify"
	"moutamayiz/internal/unread"
	"moutamayiz/pkg/moutamayiz"
)

const (
	// channelUpdates carries notifications and admin-message table changes.
	channelUpdates = "global_updates"
	// channelCommunity carries community message inserts.
	channelCommunity = "global_community_listener"

	// inboxCap bounds the retained notification window.
	inboxCap = 20

	defaultQueueSize = 256
)

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithQueueSize overrides the inbound event queue capacity.
func WithQueueSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// Dispatcher owns the two realtime subscriptions of an active session and is
// the sole mutator of cached topic threads, unread state, and the
// notification inbox between session start and teardown.
//
// Both subscriptions feed one bounded queue drained by a single goroutine:
// events are handled synchronously to completion, one at a time, preserving
// per-channel arrival order. No ordering holds across the two channels.
type Dispatcher struct {
	realtime   moutamayiz.Realtime
	querier    moutamayiz.Querier
	store      *cache.Store
	tracker    *unread.Tracker
	deliverer  *notify.Deliverer
	topicNames map[string]string
	logger     *slog.Logger
	queueSize  int

	mu            sync.Mutex
	session       *moutamayiz.Session
	subscriptions []moutamayiz.Subscription
	events        chan moutamayiz.ChangeEvent
	done          chan struct{}
	drained       sync.WaitGroup

	inbox       []moutamayiz.NotificationRecord
	unreadInbox bool
	unreplied   int
}

// New creates a dispatcher wired to the session cache, unread tracker, and
// delivery decision.
func New(
	realtime moutamayiz.Realtime,
	querier moutamayiz.Querier,
	store *cache.Store,
	tracker *unread.Tracker,
	deliverer *notify.Deliverer,
	topics []moutamayiz.Topic,
	options ...Option,
) (*Dispatcher, error) {
	if realtime == nil {
		return nil, fmt.Errorf("new dispatcher: nil realtime")
	}
	if querier == nil {
		return nil, fmt.Errorf("new dispatcher: nil querier")
	}
	if store == nil {
		return nil, fmt.Errorf("new dispatcher: nil store")
	}
	if tracker == nil {
		return nil, fmt.Errorf("new dispatcher: nil tracker")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("new dispatcher: nil deliverer")
	}

	topicNames := make(map[string]string, len(topics))
	for _, topic := range topics {
		topicNames[topic.ID] = topic.Name
	}

	dispatcher := &Dispatcher{
		realtime:   realtime,
		querier:    querier,
		store:      store,
		tracker:    tracker,
		deliverer:  deliverer,
		topicNames: topicNames,
		logger:     slog.Default(),
		queueSize:  defaultQueueSize,
	}
	for _, option := range options {
		option(dispatcher)
	}

	return dispatcher, nil
}

// Start opens both channel subscriptions for the session and begins draining
// events. Starting while subscriptions are live fails with
// moutamayiz.ErrAlreadySubscribed; a partial subscribe releases whatever was
// opened before reporting failure, so no exit path leaks a subscription.
func (d *Dispatcher) Start(ctx context.Context, session moutamayiz.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.subscriptions) > 0 {
		return fmt.Errorf("start dispatcher: %w", moutamayiz.ErrAlreadySubscribed)
	}

	d.session = &session
	d.events = make(chan moutamayiz.ChangeEvent, d.queueSize)
	d.done = make(chan struct{})

	enqueue := d.enqueueFunc(d.events, d.done)
	updatesSub, err := d.realtime.Subscribe(ctx, channelUpdates, []moutamayiz.ChangeMatch{
		{Event: moutamayiz.ChangeInsert, Table: moutamayiz.TableNotifications},
		{Event: moutamayiz.ChangeAny, Table: moutamayiz.TableAdminMessages},
	}, enqueue)
	if err != nil {
		d.resetLocked()
		return fmt.Errorf("start dispatcher: subscribe %s: %w", channelUpdates, err)
	}

	communitySub, err := d.realtime.Subscribe(ctx, channelCommunity, []moutamayiz.ChangeMatch{
		{Event: moutamayiz.ChangeInsert, Table: moutamayiz.TableMessages},
	}, enqueue)
	if err != nil {
		if releaseErr := updatesSub.Unsubscribe(ctx); releaseErr != nil {
			d.logger.Warn("releasing updates subscription failed", "error", releaseErr)
		}
		d.resetLocked()
		return fmt.Errorf("start dispatcher: subscribe %s: %w", channelCommunity, err)
	}

	d.subscriptions = []moutamayiz.Subscription{updatesSub, communitySub}

	d.drained.Add(1)
	go d.drain(ctx, d.events, d.done)

	return nil
}

// Stop releases both subscriptions and discards derived state. Safe to call
// when already stopped.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	subscriptions := d.subscriptions
	done := d.done
	d.resetLocked()
	d.mu.Unlock()

	for _, subscription := range subscriptions {
		if err := subscription.Unsubscribe(ctx); err != nil {
			d.logger.Warn("unsubscribe failed", "error", err)
		}
	}
	if done != nil {
		close(done)
		d.drained.Wait()
	}
}

// resetLocked clears subscription and derived state. Callers hold d.mu.
func (d *Dispatcher) resetLocked() {
	d.session = nil
	d.subscriptions = nil
	d.events = nil
	d.done = nil
	d.inbox = nil
	d.unreadInbox = false
	d.unreplied = 0
}

// enqueueFunc binds a subscription callback to one queue generation, so a
// late event from a torn-down session cannot land in the next session's
// queue.
func (d *Dispatcher) enqueueFunc(events chan moutamayiz.ChangeEvent, done chan struct{}) func(moutamayiz.ChangeEvent) {
	return func(event moutamayiz.ChangeEvent) {
		select {
		case events <- event:
		case <-done:
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context, events chan moutamayiz.ChangeEvent, done chan struct{}) {
	defer d.drained.Done()
	for {
		select {
		case <-done:
			return
		case event := <-events:
			d.handle(ctx, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event moutamayiz.ChangeEvent) {
	d.mu.Lock()
	sessionPtr := d.session
	d.mu.Unlock()
	if sessionPtr == nil {
		return
	}
	session := *sessionPtr

	switch event.Table {
	case moutamayiz.TableNotifications:
		if event.Event == moutamayiz.ChangeInsert {
			d.handleNotification(ctx, session, event)
		}
	case moutamayiz.TableAdminMessages:
		d.handleAdminMessageChange(ctx, session)
	case moutamayiz.TableMessages:
		if event.Event == moutamayiz.ChangeInsert {
			d.handleMessage(ctx, session, event)
		}
	default:
		d.logger.Debug("ignoring event for unrouted table", "table", event.Table)
	}
}

func (d *Dispatcher) handleNotification(ctx context.Context, session moutamayiz.Session, event moutamayiz.ChangeEvent) {
	notification, err := moutamayiz.NotificationFromRecord(event.Row)
	if err != nil {
		d.logger.Warn("dropping undecodable notification event", "error", err)
		return
	}
	if !notification.Targets(session.UserID) {
		return
	}

	d.mu.Lock()
	d.inbox = prepend(d.inbox, notification, inboxCap)
	d.unreadInbox = true
	d.mu.Unlock()

	d.deliverer.Notification(ctx, notification)
}

// handleAdminMessageChange refreshes the unreplied counter on any
// admin-message mutation. Coarse refresh-on-any-change, not incremental
// counting.
func (d *Dispatcher) handleAdminMessageChange(ctx context.Context, session moutamayiz.Session) {
	if !session.Profile.Role.Staff() {
		return
	}
	if err := d.RefreshUnreplied(ctx, session); err != nil {
		d.logger.Warn("unreplied count refresh failed", "error", err)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, session moutamayiz.Session, event moutamayiz.ChangeEvent) {
	message, err := moutamayiz.MessageFromRecord(event.Row)
	if err != nil {
		d.logger.Warn("dropping undecodable message event", "error", err)
		return
	}

	d.store.AppendMessage(message)

	if message.AuthorID == session.UserID {
		return
	}
	d.tracker.OnNewMessage(message, false)
	d.deliverer.Message(ctx, message, d.topicNames[message.TopicID])
}

// LoadInbox seeds the notification window at session start: the newest
// broadcast-or-targeted rows, newest first, bounded to the retained cap.
func (d *Dispatcher) LoadInbox(ctx context.Context, session moutamayiz.Session) error {
	rows, err := d.querier.Query(ctx, moutamayiz.Query{
		Table: moutamayiz.TableNotifications,
		AnyOf: []moutamayiz.Filter{
			{Column: "user_id", Op: moutamayiz.FilterIsNull},
			{Column: "user_id", Op: moutamayiz.FilterEq, Value: session.UserID},
		},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      inboxCap,
	})
	if err != nil {
		return fmt.Errorf("load inbox: %w", err)
	}

	inbox := make([]moutamayiz.NotificationRecord, 0, len(rows))
	for _, row := range rows {
		notification, err := moutamayiz.NotificationFromRecord(row)
		if err != nil {
			d.logger.Debug("skipping undecodable notification row", "error", err)
			continue
		}
		inbox = append(inbox, notification)
	}

	d.mu.Lock()
	d.inbox = inbox
	d.mu.Unlock()

	return nil
}

// RefreshUnreplied re-counts admin messages still waiting for a reply.
func (d *Dispatcher) RefreshUnreplied(ctx context.Context, session moutamayiz.Session) error {
	if !session.Profile.Role.Staff() {
		return nil
	}

	count, err := d.querier.Count(ctx, moutamayiz.Query{
		Table:   moutamayiz.TableAdminMessages,
		Filters: []moutamayiz.Filter{{Column: "is_replied", Op: moutamayiz.FilterEq, Value: "false"}},
	})
	if err != nil {
		return fmt.Errorf("refresh unreplied count: %w", err)
	}

	d.mu.Lock()
	d.unreplied = count
	d.mu.Unlock()

	return nil
}

// Notifications returns the retained notification window, newest first.
func (d *Dispatcher) Notifications() []moutamayiz.NotificationRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]moutamayiz.NotificationRecord{}, d.inbox...)
}

// HasUnreadNotifications reports whether an unseen notification arrived
// since the inbox was last opened.
func (d *Dispatcher) HasUnreadNotifications() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.unreadInbox
}

// MarkNotificationsSeen clears the unseen flag when the inbox is opened.
func (d *Dispatcher) MarkNotificationsSeen() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.unreadInbox = false
}

// UnrepliedCount returns the last refreshed unreplied admin-message count.
func (d *Dispatcher) UnrepliedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.unreplied
}

// Subscribed reports whether the channel subscriptions are live.
func (d *Dispatcher) Subscribed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.subscriptions) > 0
}

// IsAlreadySubscribed reports whether err is the duplicate-start sentinel.
func IsAlreadySubscribed(err error) bool {
	return errors.Is(err, moutamayiz.ErrAlreadySubscribed)
}

func prepend(
	inbox []moutamayiz.NotificationRecord,
	notification moutamayiz.NotificationRecord,
	limit int,
) []moutamayiz.NotificationRecord {
	next := append([]moutamayiz.NotificationRecord{notification}, inbox...)
	if len(next) > limit {
		next = next[:limit]
	}

	return next
}
