package conversation

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/llms"
)

// Conversation pairs a history with the lock that serializes its turns.
type Conversation struct {
	mu      sync.Mutex
	History *History

	// holders of Acquire, guarded by Store.mu
	refs int
}

type backend interface {
	Get(key string) (*Conversation, bool)
	Add(key string, value *Conversation) bool
	Remove(key string) bool
	Len() int
}

// Store keeps one conversation per id, created lazily on first access.
// With a positive size the least recently used conversation is evicted once
// the store is full, otherwise conversations live for the process lifetime.
// An acquired conversation stays pinned until released, so eviction never
// splits concurrent turns of one id across two histories.
type Store struct {
	system string

	mu      sync.Mutex
	entries backend
	pinned  map[string]*Conversation
}

func NewStore(system string, size int) *Store {
	var entries backend = mapBackend{}
	if size > 0 {
		cache, err := lru.New[string, *Conversation](size)
		if err == nil {
			entries = cache
		}
	}

	return &Store{
		system:  system,
		entries: entries,
		pinned:  make(map[string]*Conversation),
	}
}

// Acquire returns the conversation for id locked for exclusive use. The
// caller must call release once its turn is complete.
func (s *Store) Acquire(id string) (c *Conversation, release func()) {
	s.mu.Lock()
	c, ok := s.entries.Get(id)
	if !ok {
		if c, ok = s.pinned[id]; !ok {
			c = &Conversation{History: NewHistory(s.system)}
		}
		s.entries.Add(id, c)
	}
	c.refs++
	s.pinned[id] = c
	s.mu.Unlock()

	c.mu.Lock()

	return c, func() {
		c.mu.Unlock()

		s.mu.Lock()
		defer s.mu.Unlock()

		c.refs--
		if c.refs == 0 && s.pinned[id] == c {
			delete(s.pinned, id)
		}
	}
}

// lookup finds id in the cache or among pinned conversations. Callers hold
// s.mu.
func (s *Store) lookup(id string) (*Conversation, bool) {
	if c, ok := s.entries.Get(id); ok {
		return c, true
	}

	c, ok := s.pinned[id]
	return c, ok
}

// Peek reports the history length of id without creating it.
func (s *Store) Peek(id string) (int, bool) {
	c, ok := s.find(id)
	if !ok {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.History.Len(), true
}

// Snapshot returns a copy of the turns of id without creating it.
func (s *Store) Snapshot(id string) ([]llms.MessageContent, bool) {
	c, ok := s.find(id)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.History.Turns(), true
}

func (s *Store) find(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookup(id)
}

// Clear forgets id. Clearing an unknown id is a no-op.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries.Remove(id)
	delete(s.pinned, id)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.entries.Len()
}

type mapBackend map[string]*Conversation

func (m mapBackend) Get(key string) (*Conversation, bool) {
	c, ok := m[key]
	return c, ok
}

func (m mapBackend) Add(key string, value *Conversation) bool {
	m[key] = value
	return false
}

func (m mapBackend) Remove(key string) bool {
	_, ok := m[key]
	delete(m, key)
	return ok
}

func (m mapBackend) Len() int {
	return len(m)
}
