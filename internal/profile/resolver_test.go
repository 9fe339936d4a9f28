package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"moutamayiz/pkg/moutamayiz"
)

type fakeQuerier struct {
	// responses is consumed one entry per Query call; the last entry
	// repeats once exhausted.
	responses [][]moutamayiz.Record
	err       error
	calls     int
	lastQuery moutamayiz.Query
}

func (f *fakeQuerier) Query(_ context.Context, q moutamayiz.Query) ([]moutamayiz.Record, error) {
	f.calls++
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, nil
	}
	response := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return response, nil
}

func (f *fakeQuerier) Count(context.Context, moutamayiz.Query) (int, error) {
	return 0, nil
}

func profileRow(id, email, role string) moutamayiz.Record {
	return moutamayiz.Record{
		"id":             id,
		"name":           "Amine",
		"email":          email,
		"role":           role,
		"volume":         float64(60),
		"streak":         float64(4),
		"total_earnings": float64(1500),
		"xp":             float64(320),
	}
}

func newTestResolver(t *testing.T, querier moutamayiz.Querier, sleeps *[]time.Duration, options ...Option) *Resolver {
	t.Helper()

	options = append(options, WithSleep(func(_ context.Context, delay time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, delay)
		}
		return nil
	}))
	resolver, err := New(querier, []string{"Admin@Example.com "}, options...)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	return resolver
}

func TestResolveFirstAttempt(t *testing.T) {
	t.Parallel()

	querier := &fakeQuerier{responses: [][]moutamayiz.Record{{profileRow("user-1", "student@example.com", "user")}}}
	resolver := newTestResolver(t, querier, nil)

	session, err := resolver.Resolve(context.Background(), "user-1", "  Student@Example.COM ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if querier.calls != 1 {
		t.Fatalf("query calls = %d, want 1", querier.calls)
	}
	if session.UserID != "user-1" {
		t.Fatalf("session user id = %s", session.UserID)
	}
	if session.Email != "student@example.com" {
		t.Fatalf("email not normalized: %s", session.Email)
	}
	if session.Profile.Role != moutamayiz.RoleStudent {
		t.Fatalf("role = %s, want %s", session.Profile.Role, moutamayiz.RoleStudent)
	}
	if session.Profile.TotalEarnings != 1500 || session.Profile.XP != 320 {
		t.Fatalf("stored scores must survive for non-admins: %+v", session.Profile)
	}
}

func TestResolveAdminOverlay(t *testing.T) {
	t.Parallel()

	querier := &fakeQuerier{responses: [][]moutamayiz.Record{{profileRow("user-2", "admin@example.com", "user")}}}
	resolver := newTestResolver(t, querier, nil)

	session, err := resolver.Resolve(context.Background(), "user-2", "ADMIN@example.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if session.Profile.Role != moutamayiz.RoleAdmin {
		t.Fatalf("role = %s, want admin", session.Profile.Role)
	}
	if session.Profile.TotalEarnings != overlayScore || session.Profile.XP != overlayScore {
		t.Fatalf("overlay scores not applied: %+v", session.Profile)
	}
}

func TestResolveRetriesOnRowAbsence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		responses  [][]moutamayiz.Record
		wantCalls  int
		wantSleeps int
		wantErr    bool
	}{
		{
			name: "row appears on third attempt",
			responses: [][]moutamayiz.Record{
				nil,
				nil,
				{profileRow("user-3", "student@example.com", "user")},
			},
			wantCalls:  3,
			wantSleeps: 2,
		},
		{
			name:       "row never appears",
			responses:  nil,
			wantCalls:  6,
			wantSleeps: 5,
			wantErr:    true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var sleeps []time.Duration
			querier := &fakeQuerier{responses: testCase.responses}
			resolver := newTestResolver(t, querier, &sleeps)

			_, err := resolver.Resolve(context.Background(), "user-3", "student@example.com")
			if testCase.wantErr {
				if !errors.Is(err, moutamayiz.ErrUnauthenticated) {
					t.Fatalf("error = %v, want ErrUnauthenticated", err)
				}
			} else if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if querier.calls != testCase.wantCalls {
				t.Fatalf("query calls = %d, want %d", querier.calls, testCase.wantCalls)
			}
			if len(sleeps) != testCase.wantSleeps {
				t.Fatalf("sleeps = %d, want %d", len(sleeps), testCase.wantSleeps)
			}
			for _, delay := range sleeps {
				if delay != defaultRetryDelay {
					t.Fatalf("sleep delay = %v, want %v", delay, defaultRetryDelay)
				}
			}
		})
	}
}

func TestResolveTerminalOnBackendError(t *testing.T) {
	t.Parallel()

	backendErr := errors.New("backend down")
	var sleeps []time.Duration
	querier := &fakeQuerier{err: backendErr}
	resolver := newTestResolver(t, querier, &sleeps)

	_, err := resolver.Resolve(context.Background(), "user-4", "student@example.com")
	if !errors.Is(err, backendErr) {
		t.Fatalf("error = %v, want wrapped backend error", err)
	}
	if errors.Is(err, moutamayiz.ErrUnauthenticated) {
		t.Fatal("backend errors must not masquerade as unauthenticated")
	}
	if querier.calls != 1 {
		t.Fatalf("query calls = %d, want 1 (no retry on terminal errors)", querier.calls)
	}
	if len(sleeps) != 0 {
		t.Fatalf("sleeps = %d, want 0", len(sleeps))
	}
}

func TestResolveQueriesSingleRowByID(t *testing.T) {
	t.Parallel()

	querier := &fakeQuerier{responses: [][]moutamayiz.Record{{profileRow("user-5", "a@b.c", "user")}}}
	resolver := newTestResolver(t, querier, nil)

	if _, err := resolver.Resolve(context.Background(), "user-5", "a@b.c"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	q := querier.lastQuery
	if q.Table != moutamayiz.TableProfiles || q.Limit != 1 {
		t.Fatalf("unexpected query shape: %+v", q)
	}
	if len(q.Filters) != 1 || q.Filters[0].Column != "id" || q.Filters[0].Value != "user-5" {
		t.Fatalf("unexpected filters: %+v", q.Filters)
	}
}
