package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Encode renders an event in its wire shape.
func Encode(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case PlaybackSync:
		return json.Marshal(videoSyncFrame{
			Type:        TypeVideoSync,
			SessionID:   ptr(int64(e.SessionID)),
			Action:      ptr(string(e.Action)),
			Timestamp:   e.IssuedAtMs,
			CurrentTime: e.AtTime,
		})
	case Chat:
		return json.Marshal(chatFrame{
			Type:      TypeChat,
			SessionID: ptr(int64(e.SessionID)),
			UserID:    ptr(int64(e.UserID)),
			Username:  ptr(e.Username),
			Message:   ptr(e.Body),
			Timestamp: ptr(e.IssuedAtMs),
		})
	case RosterUpdate:
		ps := make([]participantFrame, 0, len(e.Participants))
		for _, p := range e.Participants {
			ps = append(ps, participantFrame{UserID: ptr(int64(p.UserID)), Username: ptr(p.Username)})
		}
		return json.Marshal(sessionUpdateFrame{
			Type:         TypeSessionUpdate,
			SessionID:    ptr(int64(e.SessionID)),
			Participants: ps,
		})
	case Join:
		return json.Marshal(joinFrame{
			Type:      TypeJoin,
			SessionID: ptr(int64(e.SessionID)),
			UserID:    ptr(int64(e.Participant.UserID)),
			Username:  ptr(e.Participant.Username),
		})
	case Ping:
		return json.Marshal(envelope{Type: TypePing})
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", ev)
	}
}

// EncodeError builds the out-of-band error frame sent to a single sender.
func EncodeError(message string, details any) []byte {
	b, err := json.Marshal(errorFrame{Type: TypeError, Message: message, Details: details})
	if err != nil {
		b, _ = json.Marshal(errorFrame{Type: TypeError, Message: message})
	}
	return b
}

// ErrorFrameFor turns a decode failure into the frame answered to its sender.
func ErrorFrameFor(err *DecodeError) []byte {
	details := map[string]any{"kind": err.Kind}
	if len(err.Fields) > 0 {
		details["fields"] = err.Fields
	}
	return EncodeError(err.Message, details)
}

func Pong() []byte {
	b, _ := json.Marshal(envelope{Type: TypePong})
	return b
}
