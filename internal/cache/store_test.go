package cache

import (
	"testing"
	"time"

	"moutamayiz/pkg/moutamayiz"
)

func message(id, topicID string, at int64) moutamayiz.MessageRecord {
	return moutamayiz.MessageRecord{
		ID:        id,
		TopicID:   topicID,
		AuthorID:  "user-1",
		Content:   "content " + id,
		CreatedAt: time.Unix(at, 0).UTC(),
	}
}

func TestAppendMessageKeepsAscendingOrder(t *testing.T) {
	tests := []struct {
		name    string
		appends []moutamayiz.MessageRecord
		want    []string
	}{
		{
			name: "in-order arrivals",
			appends: []moutamayiz.MessageRecord{
				message("m1", "math", 10),
				message("m2", "math", 20),
				message("m3", "math", 30),
			},
			want: []string{"m1", "m2", "m3"},
		},
		{
			name: "late arrival inserted before newer entries",
			appends: []moutamayiz.MessageRecord{
				message("m2", "math", 20),
				message("m3", "math", 30),
				message("m1", "math", 10),
			},
			want: []string{"m1", "m2", "m3"},
		},
		{
			name: "reverse arrivals",
			appends: []moutamayiz.MessageRecord{
				message("m3", "math", 30),
				message("m2", "math", 20),
				message("m1", "math", 10),
			},
			want: []string{"m1", "m2", "m3"},
		},
		{
			name: "duplicate id is a no-op",
			appends: []moutamayiz.MessageRecord{
				message("m1", "math", 10),
				message("m2", "math", 20),
				message("m1", "math", 99),
			},
			want: []string{"m1", "m2"},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			store := New()
			for _, msg := range testCase.appends {
				store.AppendMessage(msg)
			}

			thread, found := store.Messages("math")
			if !found {
				t.Fatal("expected thread to exist after appends")
			}
			if len(thread) != len(testCase.want) {
				t.Fatalf("thread length = %d, want %d", len(thread), len(testCase.want))
			}
			for i, wantID := range testCase.want {
				if thread[i].ID != wantID {
					t.Fatalf("thread[%d].ID = %s, want %s", i, thread[i].ID, wantID)
				}
				if i > 0 && thread[i].CreatedAt.Before(thread[i-1].CreatedAt) {
					t.Fatalf("thread not sorted at index %d", i)
				}
			}
		})
	}
}

func TestAppendMessageStartsSingletonThread(t *testing.T) {
	t.Parallel()

	store := New()
	store.AppendMessage(message("m1", "physics", 50))

	thread, found := store.Messages("physics")
	if !found || len(thread) != 1 || thread[0].ID != "m1" {
		t.Fatalf("expected singleton thread with m1, got found=%v thread=%v", found, thread)
	}

	store.AppendMessage(message("m0", "physics", 10))
	thread, _ = store.Messages("physics")
	if len(thread) != 2 || thread[0].ID != "m0" || thread[1].ID != "m1" {
		t.Fatalf("earlier arrival should be inserted first, got %v", thread)
	}
}

func TestConfirmedEmptyStaysDistinctFromAbsent(t *testing.T) {
	t.Parallel()

	store := New()
	if store.Has(NamespaceMessages, "math") {
		t.Fatal("fresh store should report never fetched")
	}

	store.SetMessages("math", nil)
	if !store.Has(NamespaceMessages, "math") {
		t.Fatal("confirmed-empty thread should report fetched")
	}

	thread, found := store.Messages("math")
	if !found || len(thread) != 0 {
		t.Fatalf("confirmed-empty thread should be present and empty, got found=%v len=%d", found, len(thread))
	}
}

func TestClearWipesEveryNamespace(t *testing.T) {
	t.Parallel()

	store := New()
	store.SetProgress("user-1", []string{"lesson-1"})
	store.SetLessons("section-1", []moutamayiz.LessonRecord{{ID: "l1", SectionID: "section-1"}})
	store.SetMessages("math", []moutamayiz.MessageRecord{message("m1", "math", 10)})

	store.Clear()

	if _, found := store.Progress("user-1"); found {
		t.Fatal("progress should be absent after clear")
	}
	if _, found := store.Lessons("section-1"); found {
		t.Fatal("lessons should be absent after clear")
	}
	if _, found := store.Messages("math"); found {
		t.Fatal("messages should be absent after clear")
	}
	if store.Has(NamespaceMessages, "math") {
		t.Fatal("Has should report never fetched after clear")
	}
}

func TestTypedAccessorsReturnCopies(t *testing.T) {
	t.Parallel()

	store := New()
	store.SetProgress("user-1", []string{"lesson-1"})
	store.SetMessages("math", []moutamayiz.MessageRecord{message("m1", "math", 10)})

	progress, _ := store.Progress("user-1")
	progress["injected"] = struct{}{}
	again, _ := store.Progress("user-1")
	if _, leaked := again["injected"]; leaked {
		t.Fatal("progress accessor must return a copy")
	}

	thread, _ := store.Messages("math")
	thread[0].ID = "mutated"
	again2, _ := store.Messages("math")
	if again2[0].ID != "m1" {
		t.Fatal("messages accessor must return a copy")
	}
}
