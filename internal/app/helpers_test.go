package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/core/coretest"
	"github.com/dkeye/watchparty/internal/domain"
	json "github.com/goccy/go-json"
)

type failingStore struct{}

func (failingStore) PersistChat(context.Context, domain.SessionID, domain.UserID, string) (domain.Message, error) {
	return domain.Message{}, errors.New("db down")
}

// blockingStore holds every write until release is closed.
type blockingStore struct {
	release chan struct{}
	calls   chan string
}

func (b *blockingStore) PersistChat(ctx context.Context, sid domain.SessionID, uid domain.UserID, body string) (domain.Message, error) {
	b.calls <- body
	<-b.release
	return domain.Message{ID: 1, SessionID: sid, UserID: uid, Body: body}, nil
}

// gatedConn blocks the first frame sent after arm until release is closed.
type gatedConn struct {
	*coretest.Conn
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedConn() *gatedConn {
	return &gatedConn{
		Conn:    coretest.NewConn(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedConn) arm() { g.armed.Store(true) }

func (g *gatedConn) TrySend(f core.Frame) error {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.Conn.TrySend(f)
}

type fixture struct {
	t      *testing.T
	reg    *core.Registry
	router *Router
	srv    *Server
}

func newFixture(t *testing.T, chats ChatStore) *fixture {
	t.Helper()
	reg := core.NewRegistry()
	router := &Router{Peers: reg, Chats: chats, Policy: SimplePolicy{}}
	return &fixture{t: t, reg: reg, router: router, srv: NewServer(reg, router)}
}

func (f *fixture) open() (*Conn, *coretest.Conn) {
	f.t.Helper()
	h := coretest.NewConn()
	c, err := f.srv.Open(h)
	if err != nil {
		f.t.Fatalf("Open: %v", err)
	}
	return c, h
}

func (f *fixture) send(c *Conn, frame string) {
	f.srv.HandleFrame(context.Background(), c, []byte(frame))
}

func (f *fixture) join(c *Conn, sid domain.SessionID, uid domain.UserID, name string) {
	f.t.Helper()
	if err := f.srv.Bind(context.Background(), c, sid, domain.Participant{UserID: uid, Username: name}); err != nil {
		f.t.Fatalf("Bind: %v", err)
	}
}

func decodeFrames(t *testing.T, frames []core.Frame) []map[string]any {
	t.Helper()
	out := make([]map[string]any, 0, len(frames))
	for _, fr := range frames {
		var m map[string]any
		if err := json.Unmarshal(fr, &m); err != nil {
			t.Fatalf("frame %s is not JSON: %v", fr, err)
		}
		out = append(out, m)
	}
	return out
}

func framesOfType(t *testing.T, h *coretest.Conn, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range decodeFrames(t, h.Frames()) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func rosterIDs(t *testing.T, m map[string]any) []float64 {
	t.Helper()
	list, ok := m["participants"].([]any)
	if !ok {
		t.Fatalf("no participants in %v", m)
	}
	var ids []float64
	for _, p := range list {
		ids = append(ids, p.(map[string]any)["userId"].(float64))
	}
	return ids
}
