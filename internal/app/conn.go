package app

import (
	"fmt"
	"sync"

	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
)

type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

// Conn is the server-side view of one transport handle: its lifecycle state
// and, once known, the (session, user) pair it is bound to.
type Conn struct {
	handle core.SignalConnection

	mu          sync.Mutex
	state       ConnState
	bound       bool
	sid         domain.SessionID
	participant domain.Participant
}

func (c *Conn) ID() string { return c.handle.ID() }

func (c *Conn) Handle() core.SignalConnection { return c.handle }

func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Binding reports the session and participant the connection is bound to.
func (c *Conn) Binding() (domain.SessionID, domain.Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sid, c.participant, c.bound
}

func (c *Conn) Send(f core.Frame) error {
	return c.handle.TrySend(f)
}
