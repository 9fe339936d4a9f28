package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"moutamayiz/internal/cache"
	"moutamayiz/internal/dispatch"
	"moutamayiz/internal/prefetch"
	"moutamayiz/internal/profile"
	"moutamayiz/internal/unread"
	"moutamayiz/pkg/moutamayiz"
)

const defaultTeardownTimeout = 10 * time.Second

// Option mutates manager configuration.
type Option func(*Manager)

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTeardownTimeout bounds how long final teardown may take once Run's
// context ends.
func WithTeardownTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.teardownTimeout = timeout
		}
	}
}

// Manager drives the session lifecycle: an authentication success resolves
// the profile, then starts the prefetcher, the initial unread
// reconciliation, and the realtime subscriptions; a sign-out releases the
// subscriptions and wipes every piece of per-session state.
type Manager struct {
	auth       moutamayiz.AuthWatcher
	resolver   *profile.Resolver
	store      *cache.Store
	prefetcher *prefetch.Prefetcher
	tracker    *unread.Tracker
	dispatcher *dispatch.Dispatcher

	logger          *slog.Logger
	teardownTimeout time.Duration

	// lifecycleMu serializes begin/end so an auth flap cannot interleave a
	// teardown with a start.
	lifecycleMu sync.Mutex
	mu          sync.Mutex
	session     *moutamayiz.Session
}

// New creates a session manager over the assembled components.
func New(
	auth moutamayiz.AuthWatcher,
	resolver *profile.Resolver,
	store *cache.Store,
	prefetcher *prefetch.Prefetcher,
	tracker *unread.Tracker,
	dispatcher *dispatch.Dispatcher,
	options ...Option,
) (*Manager, error) {
	if auth == nil {
		return nil, fmt.Errorf("new session manager: nil auth watcher")
	}
	if resolver == nil {
		return nil, fmt.Errorf("new session manager: nil resolver")
	}
	if store == nil {
		return nil, fmt.Errorf("new session manager: nil store")
	}
	if prefetcher == nil {
		return nil, fmt.Errorf("new session manager: nil prefetcher")
	}
	if tracker == nil {
		return nil, fmt.Errorf("new session manager: nil tracker")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("new session manager: nil dispatcher")
	}

	manager := &Manager{
		auth:            auth,
		resolver:        resolver,
		store:           store,
		prefetcher:      prefetcher,
		tracker:         tracker,
		dispatcher:      dispatcher,
		logger:          slog.Default(),
		teardownTimeout: defaultTeardownTimeout,
	}
	for _, option := range options {
		option(manager)
	}

	return manager, nil
}

// Run watches authentication transitions until ctx ends, then tears the
// active session down and waits for in-flight prefetch tasks to settle.
func (m *Manager) Run(ctx context.Context) error {
	watch, err := m.auth.OnAuthChange(ctx, func(auth *moutamayiz.AuthSession) {
		if auth == nil {
			m.end(ctx)
			return
		}
		m.begin(ctx, *auth)
	})
	if err != nil {
		return fmt.Errorf("run session manager: watch auth changes: %w", err)
	}

	<-ctx.Done()

	teardownCtx, cancel := context.WithTimeout(context.Background(), m.teardownTimeout)
	defer cancel()
	if err := watch.Unsubscribe(teardownCtx); err != nil {
		m.logger.Warn("releasing auth watch failed", "error", err)
	}
	m.end(teardownCtx)
	m.prefetcher.Wait()

	return nil
}

// Session returns the active resolved session, if any.
func (m *Manager) Session() (moutamayiz.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return moutamayiz.Session{}, false
	}

	return *m.session, true
}

// MarkRead removes a topic from the unread set immediately. Persisting the
// receipt belongs to the UI collaborator that showed the thread.
func (m *Manager) MarkRead(topicID string) bool {
	return m.tracker.MarkRead(topicID)
}

// begin resolves the profile for a fresh authentication and brings the
// session services up. Resolution failure leaves the manager signed out.
func (m *Manager) begin(ctx context.Context, auth moutamayiz.AuthSession) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.endLocked(ctx)

	resolved, err := m.resolver.Resolve(ctx, auth.UserID, auth.Email)
	if err != nil {
		if errors.Is(err, moutamayiz.ErrUnauthenticated) {
			m.logger.Warn("profile resolution exhausted, treating session as signed out", "user_id", auth.UserID)
		} else {
			m.logger.Error("profile resolution failed", "user_id", auth.UserID, "error", err)
		}
		return
	}

	m.mu.Lock()
	m.session = &resolved
	m.mu.Unlock()

	// Reconciliation and inbox seeding are best-effort: a failure degrades
	// freshness for this session and nothing else.
	if err := m.tracker.ComputeInitial(ctx, resolved); err != nil {
		m.logger.Warn("initial unread reconciliation failed", "error", err)
	}
	if err := m.dispatcher.LoadInbox(ctx, resolved); err != nil {
		m.logger.Warn("notification inbox load failed", "error", err)
	}
	if resolved.Profile.Role.Staff() {
		if err := m.dispatcher.RefreshUnreplied(ctx, resolved); err != nil {
			m.logger.Warn("unreplied count refresh failed", "error", err)
		}
	}

	if err := m.dispatcher.Start(ctx, resolved); err != nil {
		m.logger.Error("realtime subscriptions failed to open", "error", err)
	}
	m.prefetcher.Start(ctx, resolved)

	m.logger.Info("session active",
		"user_id", resolved.UserID,
		"role", resolved.Profile.Role,
	)
}

// end releases subscriptions and wipes per-session state. Safe when no
// session is active.
func (m *Manager) end(ctx context.Context) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.endLocked(ctx)
}

func (m *Manager) endLocked(ctx context.Context) {
	m.mu.Lock()
	active := m.session != nil
	m.session = nil
	m.mu.Unlock()

	m.dispatcher.Stop(ctx)
	m.store.Clear()
	m.tracker.Reset()
	m.prefetcher.Reset()

	if active {
		m.logger.Info("session ended")
	}
}
