package app

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/dkeye/watchparty/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const defaultPersistTimeout = 5 * time.Second

var ErrRateLimited = errors.New("too many chat messages")

// Directory resolves fan-out targets.
type Directory interface {
	Peers(sid domain.SessionID) []core.SignalConnection
	PeersExcept(sid domain.SessionID, uid domain.UserID) []core.SignalConnection
}

// ChatStore is the part of the persistence collaborator the router needs.
type ChatStore interface {
	PersistChat(ctx context.Context, sid domain.SessionID, uid domain.UserID, body string) (domain.Message, error)
}

type ChatKey struct {
	Session domain.SessionID
	User    domain.UserID
}

// Outcome reports delivery stats for one routed event.
type Outcome struct {
	Delivered int
	Dropped   []core.SignalConnection
}

// Router decides who receives an event and performs the sends.
// Chats may be nil, in which case chat lines are relayed but not stored.
type Router struct {
	Peers   Directory
	Chats   ChatStore
	Policy  Policy
	Limiter *RateLimiter[ChatKey]

	PersistTimeout time.Duration

	pending conc.WaitGroup
}

// Route delivers ev. sender is nil for events the server synthesizes.
func (r *Router) Route(ctx context.Context, ev protocol.Event, sender *Conn) Outcome {
	switch e := ev.(type) {
	case protocol.PlaybackSync:
		var targets []core.SignalConnection
		if _, p, ok := bindingOf(sender); ok {
			targets = r.Peers.PeersExcept(e.SessionID, p.UserID)
		} else {
			targets = r.Peers.Peers(e.SessionID)
		}
		return r.fanOut(e, e.SessionID, targets)
	case protocol.Chat:
		return r.routeChat(ctx, e, sender)
	case protocol.RosterUpdate:
		return r.fanOut(e, e.SessionID, r.Peers.Peers(e.SessionID))
	default:
		log.Warn().Str("module", "app.router").Str("type", ev.Type()).Msg("event is not routable")
		return Outcome{}
	}
}

func (r *Router) routeChat(ctx context.Context, e protocol.Chat, sender *Conn) Outcome {
	if r.Limiter != nil && !r.Limiter.Allow(ChatKey{Session: e.SessionID, User: e.UserID}) {
		log.Info().Str("module", "app.router").Int64("session", int64(e.SessionID)).Int64("user", int64(e.UserID)).Msg("chat rate limited")
		notify(sender, protocol.EncodeError(ErrRateLimited.Error(), map[string]any{"kind": "rate_limited"}))
		return Outcome{}
	}

	if r.Chats != nil {
		// Persistence must survive the sender hanging up, so it only inherits
		// ctx values.
		persistCtx := context.WithoutCancel(ctx)
		r.pending.Go(func() { r.persist(persistCtx, e, sender) })
	}
	return r.fanOut(e, e.SessionID, r.Peers.Peers(e.SessionID))
}

func (r *Router) persist(ctx context.Context, e protocol.Chat, sender *Conn) {
	timeout := r.PersistTimeout
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := r.Chats.PersistChat(ctx, e.SessionID, e.UserID, e.Body)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Int64("session", int64(e.SessionID)).Int64("user", int64(e.UserID)).Msg("persist chat failed")
		notify(sender, protocol.EncodeError("chat message was not saved", map[string]any{"kind": "persistence_failure"}))
		return
	}
	log.Debug().Str("module", "app.router").Int64("session", int64(e.SessionID)).Int64("message", msg.ID).Msg("chat persisted")
}

func (r *Router) fanOut(ev protocol.Event, sid domain.SessionID, targets []core.SignalConnection) Outcome {
	res := Outcome{}
	if len(targets) == 0 {
		return res
	}
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("type", ev.Type()).Msg("encode event")
		return res
	}
	for _, peer := range targets {
		if err := peer.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.router").Str("peer", peer.ID()).Int64("session", int64(sid)).Msg("peer send failed, skipping")
			res.Dropped = append(res.Dropped, peer)
			r.onDropped(peer, err)
			continue
		}
		res.Delivered++
	}
	log.Debug().Str("module", "app.router").Str("type", ev.Type()).Int64("session", int64(sid)).Int("sent_to", res.Delivered).Int("dropped", len(res.Dropped)).Msg("fan-out result")
	return res
}

func (r *Router) onDropped(peer core.SignalConnection, err error) {
	if r.Policy == nil {
		return
	}
	switch r.Policy.OnBackPressure(peer, err) {
	case KickMember:
		log.Info().Str("module", "app.router").Str("peer", peer.ID()).Msg("kicking slow peer")
		peer.Close()
	case DropFrame:
	}
}

// Wait blocks until every in-flight chat write has finished.
func (r *Router) Wait() {
	r.pending.Wait()
}

func bindingOf(c *Conn) (domain.SessionID, domain.Participant, bool) {
	if c == nil {
		return 0, domain.Participant{}, false
	}
	return c.Binding()
}

func notify(c *Conn, f core.Frame) {
	if c == nil {
		return
	}
	if err := c.Send(f); err != nil {
		log.Debug().Err(err).Str("module", "app.router").Str("conn", c.ID()).Msg("notice not delivered")
	}
}
