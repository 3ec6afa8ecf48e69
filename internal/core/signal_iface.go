package core

import "errors"

// Frame is one encoded wire message.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: a full outbound queue yields ErrBackpressure and a
// closed transport yields ErrConnClosed.
type SignalConnection interface {
	ID() string
	TrySend(Frame) error
	Close()
}
