package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"moutamayiz/pkg/moutamayiz"
)

const (
	// defaultRetries is how many extra fetches follow the first one while
	// the backend-side profile row is still being provisioned.
	defaultRetries = 5
	// defaultRetryDelay is the fixed spacing between fetch attempts.
	defaultRetryDelay = 1200 * time.Millisecond

	// overlayScore is the sentinel forced onto totalEarnings and xp for
	// allow-listed administrators. Presentation overlay only; the stored
	// row keeps its real values.
	overlayScore = 9999999
)

// Option mutates resolver configuration.
type Option func(*Resolver)

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRetryDelay overrides the fixed delay between fetch attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(r *Resolver) {
		if delay > 0 {
			r.retryDelay = delay
		}
	}
}

// WithRetries overrides how many extra attempts follow the first fetch.
func WithRetries(retries int) Option {
	return func(r *Resolver) {
		if retries >= 0 {
			r.retries = retries
		}
	}
}

// WithSleep injects the inter-attempt wait, letting tests observe retry
// pacing without real delays.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Resolver) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// Resolver fetches the profile row for a freshly authenticated identity,
// tolerating the provisioning lag between identity creation and profile row
// creation with a bounded fixed-delay retry loop.
type Resolver struct {
	querier    moutamayiz.Querier
	allowList  map[string]struct{}
	logger     *slog.Logger
	retries    int
	retryDelay time.Duration
	sleep      func(context.Context, time.Duration) error
}

// New creates a resolver. adminEmails is the injected administrator
// allow-list; entries are normalized before matching.
func New(querier moutamayiz.Querier, adminEmails []string, options ...Option) (*Resolver, error) {
	if querier == nil {
		return nil, fmt.Errorf("new profile resolver: nil querier")
	}

	allowList := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		normalized := moutamayiz.NormalizeEmail(email)
		if normalized == "" {
			continue
		}
		allowList[normalized] = struct{}{}
	}

	resolver := &Resolver{
		querier:    querier,
		allowList:  allowList,
		logger:     slog.Default(),
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
		sleep:      sleepContext,
	}
	for _, option := range options {
		option(resolver)
	}

	return resolver, nil
}

// Resolve fetches the profile row for userID and builds the session record.
//
// Row absence is retried with fixed spacing until the attempt budget runs
// out, then reported as moutamayiz.ErrUnauthenticated. Any other failure is
// terminal on the first occurrence.
func (r *Resolver) Resolve(ctx context.Context, userID, email string) (moutamayiz.Session, error) {
	if userID == "" {
		return moutamayiz.Session{}, fmt.Errorf("resolve profile: missing user id: %w", moutamayiz.ErrUnauthenticated)
	}

	query := moutamayiz.Query{
		Table:   moutamayiz.TableProfiles,
		Filters: []moutamayiz.Filter{{Column: "id", Op: moutamayiz.FilterEq, Value: userID}},
		Limit:   1,
	}

	for attempt := 0; ; attempt++ {
		rows, err := r.querier.Query(ctx, query)
		if err != nil {
			return moutamayiz.Session{}, fmt.Errorf("resolve profile %s: %w", userID, err)
		}
		if len(rows) > 0 {
			return r.buildSession(rows[0], email)
		}
		if attempt >= r.retries {
			r.logger.Warn("profile row never appeared",
				"user_id", userID,
				"attempts", attempt+1,
			)
			return moutamayiz.Session{}, fmt.Errorf("resolve profile %s: row absent after %d attempts: %w",
				userID, attempt+1, moutamayiz.ErrUnauthenticated)
		}

		r.logger.Debug("profile row absent, retrying",
			"user_id", userID,
			"attempt", attempt+1,
		)
		if err := r.sleep(ctx, r.retryDelay); err != nil {
			return moutamayiz.Session{}, fmt.Errorf("resolve profile %s: %w", userID, err)
		}
	}
}

func (r *Resolver) buildSession(row moutamayiz.Record, email string) (moutamayiz.Session, error) {
	record, err := moutamayiz.ProfileFromRecord(row)
	if err != nil {
		return moutamayiz.Session{}, fmt.Errorf("resolve profile: %w", err)
	}

	cleanEmail := moutamayiz.NormalizeEmail(email)
	record.Email = cleanEmail
	if record.Name == "" {
		record.Name = "طالب متميز"
	}
	if _, admin := r.allowList[cleanEmail]; admin {
		record.Role = moutamayiz.RoleAdmin
		record.TotalEarnings = overlayScore
		record.XP = overlayScore
	}

	session := moutamayiz.Session{
		UserID:  record.ID,
		Email:   cleanEmail,
		Profile: record,
	}
	if err := session.Validate(); err != nil {
		return moutamayiz.Session{}, fmt.Errorf("resolve profile: %w", err)
	}

	return session, nil
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
