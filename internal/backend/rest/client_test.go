package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"moutamayiz/pkg/moutamayiz"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(server.URL, "test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	return client
}

func TestQueryEncodesFiltersAndAuth(t *testing.T) {
	t.Parallel()

	var captured *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"m1","subject_id":"math"}]`))
	})

	records, err := client.Query(context.Background(), moutamayiz.Query{
		Table:      moutamayiz.TableMessages,
		Filters:    []moutamayiz.Filter{{Column: "subject_id", Op: moutamayiz.FilterEq, Value: "math"}},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      30,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 1 || records[0]["id"] != "m1" {
		t.Fatalf("records = %v", records)
	}

	if captured.URL.Path != "/rest/v1/community_messages" {
		t.Fatalf("path = %s", captured.URL.Path)
	}
	query := captured.URL.Query()
	if query.Get("subject_id") != "eq.math" {
		t.Fatalf("filter param = %q", query.Get("subject_id"))
	}
	if query.Get("order") != "created_at.desc" {
		t.Fatalf("order param = %q", query.Get("order"))
	}
	if query.Get("limit") != "30" {
		t.Fatalf("limit param = %q", query.Get("limit"))
	}
	if captured.Header.Get("apikey") != "test-key" {
		t.Fatal("apikey header missing")
	}
	if captured.Header.Get("Authorization") != "Bearer test-key" {
		t.Fatal("authorization header missing")
	}
}

func TestQueryEncodesDisjunction(t *testing.T) {
	t.Parallel()

	var captured *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.Query(context.Background(), moutamayiz.Query{
		Table: moutamayiz.TableNotifications,
		AnyOf: []moutamayiz.Filter{
			{Column: "user_id", Op: moutamayiz.FilterIsNull},
			{Column: "user_id", Op: moutamayiz.FilterEq, Value: "user-1"},
		},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if or := captured.URL.Query().Get("or"); or != "(user_id.is.null,user_id.eq.user-1)" {
		t.Fatalf("or param = %q", or)
	}
}

func TestQueryEmptyResultIsNotAnError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	records, err := client.Query(context.Background(), moutamayiz.Query{Table: moutamayiz.TableProfiles})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %v, want none", records)
	}
}

func TestQuerySurfacesBackendErrors(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"permission denied"}`, http.StatusForbidden)
	})

	_, err := client.Query(context.Background(), moutamayiz.Query{Table: moutamayiz.TableProfiles})
	var restErr *Error
	if !errors.As(err, &restErr) {
		t.Fatalf("error = %v, want *rest.Error", err)
	}
	if restErr.Status != http.StatusForbidden {
		t.Fatalf("status = %d", restErr.Status)
	}
}

func TestQueryRejectsInvalidQueries(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("invalid queries must not reach the backend")
	})

	_, err := client.Query(context.Background(), moutamayiz.Query{})
	if !errors.Is(err, moutamayiz.ErrInvalidQuery) {
		t.Fatalf("error = %v, want ErrInvalidQuery", err)
	}
}

func TestCountUsesContentRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		contentRange string
		want         int
		wantErr      bool
	}{
		{name: "range with window", contentRange: "0-24/57", want: 57},
		{name: "star range", contentRange: "*/12", want: 12},
		{name: "zero rows", contentRange: "*/0", want: 0},
		{name: "missing total", contentRange: "0-24", wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var method, prefer string
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				method = r.Method
				prefer = r.Header.Get("Prefer")
				w.Header().Set("Content-Range", testCase.contentRange)
			})

			count, err := client.Count(context.Background(), moutamayiz.Query{
				Table:   moutamayiz.TableAdminMessages,
				Filters: []moutamayiz.Filter{{Column: "is_replied", Op: moutamayiz.FilterEq, Value: "false"}},
			})
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if count != testCase.want {
				t.Fatalf("count = %d, want %d", count, testCase.want)
			}
			if method != http.MethodHead {
				t.Fatalf("method = %s, want HEAD", method)
			}
			if prefer != "count=exact" {
				t.Fatalf("prefer header = %q", prefer)
			}
		})
	}
}
