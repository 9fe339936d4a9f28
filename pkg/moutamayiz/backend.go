package moutamayiz

import (
	"context"
	"fmt"
)

// Backend table names used by this core.
const (
	TableProfiles      = "profiles"
	TableProgress      = "user_progress"
	TableLessons       = "lessons_content"
	TableMessages      = "community_messages"
	TableReceipts      = "community_reads"
	TableNotifications = "notifications"
	TableAdminMessages = "admin_messages"
)

// FilterOp selects the comparison a row filter applies.
type FilterOp string

const (
	// FilterEq matches rows whose column equals the filter value.
	FilterEq FilterOp = "eq"
	// FilterIsNull matches rows whose column is null.
	FilterIsNull FilterOp = "is_null"
)

// Filter is one column predicate inside a row query.
type Filter struct {
	Column string
	Op     FilterOp
	// Value is the comparison operand. Unused for FilterIsNull.
	Value string
}

// Query describes one row-query against a backend table.
//
// All Filters must match; when AnyOf is non-empty, at least one of its
// filters must match as well.
type Query struct {
	Table   string
	Filters []Filter
	// AnyOf is a disjunctive filter group, used for "broadcast or mine"
	// notification listing.
	AnyOf []Filter
	// OrderBy optionally names the column to sort on.
	OrderBy string
	// Descending flips OrderBy to newest-first.
	Descending bool
	// Limit bounds the number of returned rows when positive.
	Limit int
}

// Validate checks that the query names a table and well-formed filters.
func (q Query) Validate() error {
	if q.Table == "" {
		return fmt.Errorf("validate query: missing table")
	}
	for _, filter := range append(append([]Filter{}, q.Filters...), q.AnyOf...) {
		if filter.Column == "" {
			return fmt.Errorf("validate query on %s: filter with empty column", q.Table)
		}
		if filter.Op == "" {
			return fmt.Errorf("validate query on %s: filter %s with empty op", q.Table, filter.Column)
		}
	}

	return nil
}

// Record is one raw backend row. Decoding into typed records happens through
// the RecordInto helpers in this package.
type Record map[string]any

// Querier is the row-query capability this core consumes from the data
// backend.
//
// Query returns zero rows with a nil error when nothing matches; callers that
// care about row absence (the profile resolver) must check for an empty
// result rather than an error.
type Querier interface {
	Query(ctx context.Context, q Query) ([]Record, error)
	// Count returns the number of matching rows without transferring them.
	Count(ctx context.Context, q Query) (int, error)
}

// ChangeKind identifies which row mutation a realtime event describes.
type ChangeKind string

const (
	// ChangeInsert is a row insert event.
	ChangeInsert ChangeKind = "INSERT"
	// ChangeUpdate is a row update event.
	ChangeUpdate ChangeKind = "UPDATE"
	// ChangeDelete is a row delete event.
	ChangeDelete ChangeKind = "DELETE"
	// ChangeAny subscribes to every mutation kind on a table.
	ChangeAny ChangeKind = "*"
)

// ChangeMatch selects which table mutations a subscription wants.
type ChangeMatch struct {
	Event ChangeKind `json:"event"`
	Table string     `json:"table"`
}

// ChangeEvent is one inbound realtime table mutation.
type ChangeEvent struct {
	Channel string
	Event   ChangeKind
	Table   string
	// Row is the new row image for inserts and updates; nil for deletes.
	Row Record
}

// Subscription is a live realtime channel registration. Unsubscribe must be
// called on every session exit path; a released subscription delivers no
// further events.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

// Realtime is the push-channel capability this core consumes from the data
// backend. Events for one subscription are delivered in arrival order, one
// at a time.
type Realtime interface {
	Subscribe(
		ctx context.Context,
		channel string,
		matches []ChangeMatch,
		onEvent func(ChangeEvent),
	) (Subscription, error)
}

// AuthSession is the identity reported by the authentication collaborator.
type AuthSession struct {
	UserID string
	Email  string
}

// AuthWatcher delivers authentication state transitions. The callback
// receives nil when the session ends.
type AuthWatcher interface {
	OnAuthChange(ctx context.Context, fn func(*AuthSession)) (Subscription, error)
}
