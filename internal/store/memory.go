package store

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/watchparty/internal/domain"
)

type MemoryStore struct {
	mu       sync.RWMutex
	users    map[domain.UserID]domain.User
	messages []domain.Message
	nextID   int64
}

func NewMemoryStore(users ...domain.User) *MemoryStore {
	s := &MemoryStore{users: make(map[domain.UserID]domain.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *MemoryStore) PersistChat(ctx context.Context, sid domain.SessionID, uid domain.UserID, body string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m := domain.Message{ID: s.nextID, SessionID: sid, UserID: uid, Body: body, CreatedAt: time.Now().UTC()}
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *MemoryStore) LookupUser(ctx context.Context, uid domain.UserID) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[uid]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Messages returns the chat log of one session in append order.
func (s *MemoryStore) Messages(sid domain.SessionID) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.SessionID == sid {
			out = append(out, m)
		}
	}
	return out
}

func (s *MemoryStore) Close() error { return nil }
