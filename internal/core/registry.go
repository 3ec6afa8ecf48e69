package core

import (
	"slices"
	"sync"

	"github.com/dkeye/watchparty/internal/domain"
	"github.com/rs/zerolog/log"
)

type entry struct {
	participant domain.Participant
	conn        SignalConnection
}

// Registry is a threadsafe in-memory table of live connections grouped by
// session. It holds non-owning references: it never closes adapter-owned
// resources.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]map[domain.UserID]entry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.SessionID]map[domain.UserID]entry)}
}

// Register inserts or replaces the entry for (sid, p.UserID). When another
// handle was stored for the same pair it is returned so the caller can
// dispose of it.
func (r *Registry) Register(sid domain.SessionID, p domain.Participant, conn SignalConnection) (superseded SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.sessions[sid]
	if !ok {
		members = make(map[domain.UserID]entry)
		r.sessions[sid] = members
	}
	if old, ok := members[p.UserID]; ok && old.conn != conn {
		superseded = old.conn
	}
	members[p.UserID] = entry{participant: p, conn: conn}
	log.Debug().Str("module", "core.registry").Int64("session", int64(sid)).Int64("user", int64(p.UserID)).Str("conn", conn.ID()).Bool("replaced", superseded != nil).Msg("registered")
	return superseded
}

// Unregister removes the entry only when conn is the stored handle, so a late
// close of a replaced connection cannot evict its successor. Empty sessions
// are pruned.
func (r *Registry) Unregister(sid domain.SessionID, uid domain.UserID, conn SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e, ok := members[uid]
	if !ok || e.conn != conn {
		return false
	}
	delete(members, uid)
	if len(members) == 0 {
		delete(r.sessions, sid)
	}
	log.Debug().Str("module", "core.registry").Int64("session", int64(sid)).Int64("user", int64(uid)).Str("conn", conn.ID()).Msg("unregistered")
	return true
}

// Peers returns every live handle in the session.
func (r *Registry) Peers(sid domain.SessionID) []SignalConnection {
	return r.peers(sid, nil)
}

// PeersExcept returns the session's handles minus the one owned by uid.
func (r *Registry) PeersExcept(sid domain.SessionID, uid domain.UserID) []SignalConnection {
	return r.peers(sid, &uid)
}

func (r *Registry) peers(sid domain.SessionID, exclude *domain.UserID) []SignalConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.sessions[sid]
	out := make([]SignalConnection, 0, len(members))
	for uid, e := range members {
		if exclude != nil && uid == *exclude {
			continue
		}
		out = append(out, e.conn)
	}
	return out
}

// UserIDs lists the session roster in ascending order.
func (r *Registry) UserIDs(sid domain.SessionID) []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.sessions[sid]
	out := make([]domain.UserID, 0, len(members))
	for uid := range members {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}

// Participants is UserIDs with the usernames the connections bound with.
func (r *Registry) Participants(sid domain.SessionID) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.sessions[sid]
	out := make([]domain.Participant, 0, len(members))
	for _, e := range members {
		out = append(out, e.participant)
	}
	slices.SortFunc(out, func(a, b domain.Participant) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	return out
}

func (r *Registry) HasSession(sid domain.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sid]
	return ok
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
