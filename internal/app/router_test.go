package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/core/coretest"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/dkeye/watchparty/internal/protocol"
)

func registryWith(handles map[domain.UserID]*coretest.Conn) *core.Registry {
	reg := core.NewRegistry()
	for uid, h := range handles {
		reg.Register(1, domain.Participant{UserID: uid, Username: "u"}, h)
	}
	return reg
}

func TestFanOutSkipsFailingPeer(t *testing.T) {
	a, b, c := coretest.NewConn(), coretest.NewConn(), coretest.NewConn()
	b.Fail(errors.New("half closed"))
	r := &Router{Peers: registryWith(map[domain.UserID]*coretest.Conn{1: a, 2: b, 3: c})}

	res := r.Route(context.Background(), protocol.RosterUpdate{SessionID: 1}, nil)

	if res.Delivered != 2 || len(res.Dropped) != 1 || res.Dropped[0] != b {
		t.Fatalf("outcome = %+v", res)
	}
	if len(a.Frames()) != 1 || len(c.Frames()) != 1 {
		t.Fatal("healthy peers missed the frame")
	}
	if b.Closed() {
		t.Fatal("failing peer closed without a kick policy")
	}
}

func TestKickSlowPeer(t *testing.T) {
	slow, dead := coretest.NewConn(), coretest.NewConn()
	slow.Fail(core.ErrBackpressure)
	dead.Fail(core.ErrConnClosed)
	r := &Router{
		Peers:  registryWith(map[domain.UserID]*coretest.Conn{1: slow, 2: dead}),
		Policy: SimplePolicy{KickSlow: true},
	}

	r.Route(context.Background(), protocol.PlaybackSync{SessionID: 1, Action: protocol.ActionPause}, nil)

	if !slow.Closed() {
		t.Fatal("backpressured peer not kicked")
	}
	if dead.Closed() {
		t.Fatal("only backpressure triggers a kick")
	}
}

func TestChatRateLimit(t *testing.T) {
	h := coretest.NewConn()
	reg := core.NewRegistry()
	r := &Router{Peers: reg, Limiter: NewRateLimiter[ChatKey](2, time.Minute)}
	srv := NewServer(reg, r)
	c, err := srv.Open(h)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Bind(context.Background(), c, 1, domain.Participant{UserID: 1, Username: "u"}); err != nil {
		t.Fatal(err)
	}
	h.Reset()

	chat := protocol.Chat{SessionID: 1, UserID: 1, Username: "u", Body: "x"}
	for i := range 3 {
		res := r.Route(context.Background(), chat, c)
		if i < 2 && res.Delivered != 1 {
			t.Fatalf("chat %d delivered to %d", i, res.Delivered)
		}
		if i == 2 && res.Delivered != 0 {
			t.Fatal("third chat not limited")
		}
	}
	frames := decodeFrames(t, h.Frames())
	if len(frames) != 3 || frames[2]["type"] != protocol.TypeError {
		t.Fatalf("frames = %v", frames)
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter[string](1, time.Second)
	now := time.Unix(100, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") {
		t.Fatal("first attempt denied")
	}
	if rl.Allow("a") {
		t.Fatal("second attempt in window allowed")
	}
	if !rl.Allow("b") {
		t.Fatal("keys must not share a window")
	}
	now = now.Add(1500 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatal("attempt after window denied")
	}
	rl.Forget("a")
	if !rl.Allow("a") {
		t.Fatal("forgotten key still limited")
	}
}

func TestRouteIgnoresControlEvents(t *testing.T) {
	h := coretest.NewConn()
	r := &Router{Peers: registryWith(map[domain.UserID]*coretest.Conn{1: h})}
	if res := r.Route(context.Background(), protocol.Ping{}, nil); res.Delivered != 0 {
		t.Fatalf("ping routed: %+v", res)
	}
	if len(h.Frames()) != 0 {
		t.Fatal("control event fanned out")
	}
}
