package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/apascualco/trafficcop/internal/domain"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// KVStore is a process-local domain.KVStore with lazy TTL expiry.
type KVStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewKVStore() *KVStore {
	return &KVStore{entries: make(map[string]entry), now: time.Now}
}

func (s *KVStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *KVStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	e := entry{value: stored}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *KVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *KVStore) IncrementCounter(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	} else if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	s.entries[key] = e
	return n, nil
}

func (s *KVStore) Ping(context.Context) error {
	return nil
}

// lookup must be called with mu held.
func (s *KVStore) lookup(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}
