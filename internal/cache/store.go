package cache

import (
	"sync"

	"moutamayiz/pkg/moutamayiz"
)

// Namespace is a logical cache partition grouping same-shaped data.
type Namespace string

const (
	// NamespaceProgress holds the completed-item identifier set, keyed by
	// user id.
	NamespaceProgress Namespace = "progress"
	// NamespaceLessons holds lesson lists keyed by section id.
	NamespaceLessons Namespace = "lessons"
	// NamespaceMessages holds ordered topic threads keyed by topic id.
	NamespaceMessages Namespace = "messages"
)

type entryKey struct {
	namespace Namespace
	key       string
}

// Store is the per-session namespaced cache.
//
// An absent entry means "never fetched"; a present entry holding an empty
// list means "fetched and confirmed empty". The two states stay distinct so
// the prefetcher never re-fetches a confirmed-empty result.
//
// There is no TTL and no eviction: the cache is rebuilt each session and
// wiped wholesale on logout.
//
// Store is concurrency-safe because prefetch tasks and the realtime
// dispatcher may populate the same topic thread; the append dedup rule, not
// the lock, is what keeps interleaved writers from corrupting a thread.
type Store struct {
	mu      sync.Mutex
	entries map[entryKey]any
}

// New creates an empty cache store.
func New() *Store {
	return &Store{entries: make(map[entryKey]any)}
}

// Get returns the raw value stored under (namespace, key).
func (s *Store) Get(namespace Namespace, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, found := s.entries[entryKey{namespace, key}]
	return value, found
}

// Set stores value under (namespace, key), replacing any prior value.
func (s *Store) Set(namespace Namespace, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entryKey{namespace, key}] = value
}

// Has reports whether (namespace, key) was ever fetched, without copying the
// stored value.
func (s *Store) Has(namespace Namespace, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, found := s.entries[entryKey{namespace, key}]
	return found
}

// Clear wipes every namespace. Called once per logout or session
// invalidation; any Get afterwards reports absent.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[entryKey]any)
}

// SetProgress stores the completed-item identifier set for one user.
func (s *Store) SetProgress(userID string, itemIDs []string) {
	set := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		set[id] = struct{}{}
	}
	s.Set(NamespaceProgress, userID, set)
}

// Progress returns a copy of the completed-item set for one user.
func (s *Store) Progress(userID string) (map[string]struct{}, bool) {
	value, found := s.Get(NamespaceProgress, userID)
	if !found {
		return nil, false
	}
	stored, ok := value.(map[string]struct{})
	if !ok {
		return nil, false
	}

	set := make(map[string]struct{}, len(stored))
	for id := range stored {
		set[id] = struct{}{}
	}

	return set, true
}

// SetLessons stores the lesson list for one section.
func (s *Store) SetLessons(sectionID string, lessons []moutamayiz.LessonRecord) {
	s.Set(NamespaceLessons, sectionID, append([]moutamayiz.LessonRecord{}, lessons...))
}

// Lessons returns a copy of the lesson list for one section.
func (s *Store) Lessons(sectionID string) ([]moutamayiz.LessonRecord, bool) {
	value, found := s.Get(NamespaceLessons, sectionID)
	if !found {
		return nil, false
	}
	stored, ok := value.([]moutamayiz.LessonRecord)
	if !ok {
		return nil, false
	}

	return append([]moutamayiz.LessonRecord{}, stored...), true
}

// SetMessages stores the ordered thread for one topic, replacing any prior
// value. Callers pass lists already sorted ascending by created_at.
func (s *Store) SetMessages(topicID string, messages []moutamayiz.MessageRecord) {
	s.Set(NamespaceMessages, topicID, append([]moutamayiz.MessageRecord{}, messages...))
}

// Messages returns a copy of the ordered thread for one topic.
func (s *Store) Messages(topicID string) ([]moutamayiz.MessageRecord, bool) {
	value, found := s.Get(NamespaceMessages, topicID)
	if !found {
		return nil, false
	}
	stored, ok := value.([]moutamayiz.MessageRecord)
	if !ok {
		return nil, false
	}

	return append([]moutamayiz.MessageRecord{}, stored...), true
}

// AppendMessage inserts message into its topic thread unless an entry with
// the same id already exists. Insertion keeps the thread sorted ascending by
// created_at, so a late arrival lands before newer entries instead of
// corrupting the order. A message for a never-fetched topic starts a
// singleton thread.
func (s *Store) AppendMessage(message moutamayiz.MessageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{NamespaceMessages, message.TopicID}
	thread, _ := s.entries[key].([]moutamayiz.MessageRecord)

	for _, existing := range thread {
		if existing.ID == message.ID {
			return
		}
	}

	insertAt := len(thread)
	for insertAt > 0 && thread[insertAt-1].CreatedAt.After(message.CreatedAt) {
		insertAt--
	}

	thread = append(thread, moutamayiz.MessageRecord{})
	copy(thread[insertAt+1:], thread[insertAt:])
	thread[insertAt] = message
	s.entries[key] = thread
}
