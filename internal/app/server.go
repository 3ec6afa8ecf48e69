package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/dkeye/watchparty/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrServerClosed    = errors.New("relay server closed")
	ErrNotOpen         = errors.New("connection is not open")
	ErrAlreadyBound    = errors.New("connection already bound to another session or user")
	ErrBindingMismatch = errors.New("frame does not match connection binding")
)

// rosterStripes bounds the lock table that orders roster announcements.
// Sessions sharing a stripe are serialized with each other too.
const rosterStripes = 64

// Server owns the connection registry and drives every connection through
// Connecting -> Open -> Closing -> Closed.
type Server struct {
	registry *core.Registry
	router   *Router

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	closed bool

	// inflight is held shared by HandleFrame so Shutdown can wait for
	// frames already being routed before it waits on pending writes.
	inflight sync.RWMutex
	rosterMu [rosterStripes]sync.Mutex
}

func NewServer(registry *core.Registry, router *Router) *Server {
	return &Server{
		registry: registry,
		router:   router,
		conns:    make(map[*Conn]struct{}),
	}
}

// Open accepts a handle whose transport handshake has completed. The
// connection starts unbound.
func (s *Server) Open(handle core.SignalConnection) (*Conn, error) {
	c := &Conn{handle: handle, state: StateConnecting}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServerClosed
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	c.mu.Lock()
	c.state = StateOpen
	c.mu.Unlock()
	log.Info().Str("module", "app.server").Str("conn", handle.ID()).Msg("connection open")
	return c, nil
}

// Bind attaches c to (sid, p). A previous connection of the same user in the
// same session is evicted and closed. Every successful bind announces the
// new roster to the session.
func (s *Server) Bind(ctx context.Context, c *Conn, sid domain.SessionID, p domain.Participant) error {
	if err := domain.ValidateUsername(p.Username); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrServerClosed
	}

	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if c.bound && (c.sid != sid || c.participant.UserID != p.UserID) {
		c.mu.Unlock()
		return ErrAlreadyBound
	}
	renamed := c.bound && c.participant.Username != p.Username
	fresh := !c.bound
	superseded := s.registry.Register(sid, p, c.handle)
	c.bound, c.sid, c.participant = true, sid, p
	c.mu.Unlock()

	if superseded != nil {
		log.Info().Str("module", "app.server").Str("conn", superseded.ID()).Int64("session", int64(sid)).Int64("user", int64(p.UserID)).Msg("evicting superseded connection")
		_ = superseded.TrySend(protocol.EncodeError("connection superseded", map[string]any{"kind": "superseded"}))
		superseded.Close()
	}
	if fresh {
		log.Info().Str("module", "app.server").Str("conn", c.ID()).Int64("session", int64(sid)).Int64("user", int64(p.UserID)).Msg("connection bound")
	}
	if fresh || renamed {
		s.announceRoster(ctx, sid)
	}
	return nil
}

// HandleFrame decodes one inbound frame and routes it. Frames of one
// connection must be handed in arrival order from a single goroutine.
func (s *Server) HandleFrame(ctx context.Context, c *Conn, raw []byte) {
	s.inflight.RLock()
	defer s.inflight.RUnlock()
	if s.isClosed() {
		log.Debug().Str("module", "app.server").Str("conn", c.ID()).Msg("frame dropped, server shutting down")
		return
	}

	ev, err := protocol.Decode(raw)
	if err != nil {
		var de *protocol.DecodeError
		if !errors.As(err, &de) {
			de = &protocol.DecodeError{Kind: protocol.MalformedPayload, Message: err.Error()}
		}
		log.Warn().Str("module", "app.server").Str("conn", c.ID()).Str("kind", string(de.Kind)).Msg(de.Message)
		s.reply(c, protocol.ErrorFrameFor(de))
		return
	}

	switch e := ev.(type) {
	case protocol.Ping:
		s.reply(c, protocol.Pong())
	case protocol.Join:
		if err := s.Bind(ctx, c, e.SessionID, e.Participant); err != nil {
			s.reply(c, protocol.EncodeError(err.Error(), map[string]any{"kind": "join_rejected"}))
		}
	case protocol.Chat:
		sid, p, bound := c.Binding()
		if !bound {
			// Identity arrives with the first chat line of clients that never join.
			if err := s.Bind(ctx, c, e.SessionID, domain.Participant{UserID: e.UserID, Username: e.Username}); err != nil {
				s.reply(c, protocol.EncodeError(err.Error(), map[string]any{"kind": "join_rejected"}))
				return
			}
		} else if sid != e.SessionID || p.UserID != e.UserID {
			s.rejectMismatch(c, e)
			return
		}
		if bound {
			// Chat lines carry the name the roster shows.
			e.Username = p.Username
		}
		s.route(ctx, e, c)
	case protocol.PlaybackSync:
		if !s.matchesSession(c, e.SessionID) {
			s.rejectMismatch(c, e)
			return
		}
		s.route(ctx, e, c)
	case protocol.RosterUpdate:
		// Relayed as is; membership only ever changes through the connection lifecycle.
		if !s.matchesSession(c, e.SessionID) {
			s.rejectMismatch(c, e)
			return
		}
		s.route(ctx, e, c)
	}
}

// Close runs the disconnect path. It is safe to call more than once.
func (s *Server) Close(ctx context.Context, c *Conn) {
	c.mu.Lock()
	if c.state == StateClosing || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	sid, p, bound := c.sid, c.participant, c.bound
	c.mu.Unlock()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	if bound && s.registry.Unregister(sid, p.UserID, c.handle) {
		if s.router.Limiter != nil {
			s.router.Limiter.Forget(ChatKey{Session: sid, User: p.UserID})
		}
		if s.registry.HasSession(sid) {
			s.announceRoster(ctx, sid)
		}
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	log.Info().Str("module", "app.server").Str("conn", c.ID()).Bool("bound", bound).Msg("connection closed")
}

// Shutdown closes every live handle and waits for pending chat writes.
// Adapters still run Close for each connection as their transports wind down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	handles := make([]core.SignalConnection, 0, len(s.conns))
	for c := range s.conns {
		handles = append(handles, c.handle)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Lock()
		s.inflight.Unlock()
		s.router.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Participants is the current roster of sid.
func (s *Server) Participants(sid domain.SessionID) []domain.Participant {
	return s.registry.Participants(sid)
}

// ConnCount counts connections that are open, bound or not.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// announceRoster snapshots and sends under the session's stripe lock, so
// the last roster a peer receives is never older than the registry.
func (s *Server) announceRoster(ctx context.Context, sid domain.SessionID) {
	mu := &s.rosterMu[uint64(sid)%rosterStripes]
	mu.Lock()
	defer mu.Unlock()
	s.router.Route(ctx, protocol.RosterUpdate{SessionID: sid, Participants: s.registry.Participants(sid)}, nil)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) route(ctx context.Context, ev protocol.Event, c *Conn) {
	res := s.router.Route(ctx, ev, c)
	log.Debug().Str("module", "app.server").Str("conn", c.ID()).Str("type", ev.Type()).Int("sent_to", res.Delivered).Int("dropped", len(res.Dropped)).Msg("routed")
}

func (s *Server) matchesSession(c *Conn, sid domain.SessionID) bool {
	bsid, _, bound := c.Binding()
	return !bound || bsid == sid
}

func (s *Server) rejectMismatch(c *Conn, ev protocol.Event) {
	log.Warn().Str("module", "app.server").Str("conn", c.ID()).Str("type", ev.Type()).Msg("frame does not match binding")
	s.reply(c, protocol.EncodeError(ErrBindingMismatch.Error(), map[string]any{"kind": "binding_mismatch"}))
}

func (s *Server) reply(c *Conn, f core.Frame) {
	if err := c.Send(f); err != nil {
		log.Warn().Err(err).Str("module", "app.server").Str("conn", c.ID()).Msg("reply not delivered")
	}
}
