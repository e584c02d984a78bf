package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process. It is used when no Redis address is
// configured and in tests. Sessions are stored serialized so callers never
// share maps with the store.
type MemoryStore struct {
	cache *gocache.Cache
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, 10*time.Minute),
		now:   time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	if s.ID == "" {
		return errors.New("session: missing session id")
	}
	ttl := s.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return errors.New("session: expires_at must be in the future")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := m.cache.Add(s.ID, data, ttl); err != nil {
		return errors.New("session: id collision")
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	v, ok := m.cache.Get(sessionID)
	if !ok {
		return nil, nil
	}
	var s Session
	if err := json.Unmarshal(v.([]byte), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryStore) Update(_ context.Context, s Session) error {
	if s.ID == "" {
		return errors.New("session: missing session id")
	}
	ttl := s.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		m.cache.Delete(s.ID)
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.cache.Set(s.ID, data, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.cache.Delete(sessionID)
	return nil
}
