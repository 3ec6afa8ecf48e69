// Package protocol defines the relay's wire frames and the codec that turns
// raw frames into typed events.
package protocol

import "github.com/dkeye/watchparty/internal/domain"

const (
	TypeVideoSync     = "videoSync"
	TypeChat          = "chat"
	TypeSessionUpdate = "sessionUpdate"
	TypeJoin          = "join"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeError         = "error"
)

// MaxChatBodyLen bounds a chat message in characters.
const MaxChatBodyLen = 2000

type Action string

const (
	ActionPlay  Action = "play"
	ActionPause Action = "pause"
	ActionSeek  Action = "seek"
)

// Event is one fully validated inbound or synthesized frame. Values are
// never modified after Decode returns them.
type Event interface {
	Type() string
}

// PlaybackSync carries a play/pause/seek command. AtTime is the media
// position in seconds, IssuedAtMs the sender's wall clock.
type PlaybackSync struct {
	SessionID  domain.SessionID
	Action     Action
	AtTime     *float64
	IssuedAtMs *float64
}

type Chat struct {
	SessionID  domain.SessionID
	UserID     domain.UserID
	Username   string
	Body       string
	IssuedAtMs float64
}

// RosterUpdate lists who is connected to a session.
type RosterUpdate struct {
	SessionID    domain.SessionID
	Participants []domain.Participant
}

// Join binds the sending connection to a session explicitly.
type Join struct {
	SessionID   domain.SessionID
	Participant domain.Participant
}

type Ping struct{}

func (PlaybackSync) Type() string { return TypeVideoSync }
func (Chat) Type() string         { return TypeChat }
func (RosterUpdate) Type() string { return TypeSessionUpdate }
func (Join) Type() string         { return TypeJoin }
func (Ping) Type() string         { return TypePing }
