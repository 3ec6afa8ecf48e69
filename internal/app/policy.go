package app

import (
	"errors"

	"github.com/dkeye/watchparty/internal/core"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a peer whose send failed.
type Policy interface {
	OnBackPressure(peer core.SignalConnection, err error) BackpressureAction
}

// SimplePolicy skips the frame for the failing peer. With KickSlow set, a
// peer whose queue is full is closed instead; its own disconnect path then
// does the cleanup.
type SimplePolicy struct {
	KickSlow bool
}

func (p SimplePolicy) OnBackPressure(_ core.SignalConnection, err error) BackpressureAction {
	if p.KickSlow && errors.Is(err, core.ErrBackpressure) {
		return KickMember
	}
	return DropFrame
}
