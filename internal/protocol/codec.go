package protocol

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dkeye/watchparty/internal/domain"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

type ErrorKind string

const (
	MalformedPayload ErrorKind = "malformed_payload"
	UnknownType      ErrorKind = "unknown_type"
	SchemaMismatch   ErrorKind = "schema_mismatch"
)

// FieldError names one offending field of a rejected frame.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

type DecodeError struct {
	Kind    ErrorKind
	Message string
	Fields  []FieldError
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterAlias("chatbody", fmt.Sprintf("min=1,max=%d", MaxChatBodyLen))
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return jsonName(f.Tag.Get("json"))
	})
	return v
}

// Decode resolves raw into exactly one Event or fails with *DecodeError.
func Decode(raw []byte) (Event, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &DecodeError{Kind: MalformedPayload, Message: "frame is not valid JSON"}
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, &DecodeError{Kind: MalformedPayload, Message: "frame must be a JSON object"}
	}
	typ := root.Get("type")
	if !typ.Exists() {
		return nil, &DecodeError{Kind: UnknownType, Message: "missing type"}
	}
	if typ.Type != gjson.String {
		return nil, &DecodeError{Kind: UnknownType, Message: "type must be a string"}
	}

	switch typ.Str {
	case TypeVideoSync:
		var f videoSyncFrame
		if err := unmarshalValid(raw, &f); err != nil {
			return nil, err
		}
		return PlaybackSync{
			SessionID:  domain.SessionID(*f.SessionID),
			Action:     Action(*f.Action),
			AtTime:     f.CurrentTime,
			IssuedAtMs: f.Timestamp,
		}, nil
	case TypeChat:
		var f chatFrame
		if err := unmarshalValid(raw, &f); err != nil {
			return nil, err
		}
		if err := checkUsername("username", *f.Username); err != nil {
			return nil, err
		}
		return Chat{
			SessionID:  domain.SessionID(*f.SessionID),
			UserID:     domain.UserID(*f.UserID),
			Username:   *f.Username,
			Body:       *f.Message,
			IssuedAtMs: *f.Timestamp,
		}, nil
	case TypeSessionUpdate:
		var f sessionUpdateFrame
		if err := unmarshalValid(raw, &f); err != nil {
			return nil, err
		}
		ps := make([]domain.Participant, 0, len(f.Participants))
		for i, p := range f.Participants {
			if err := checkUsername(fmt.Sprintf("participants[%d].username", i), *p.Username); err != nil {
				return nil, err
			}
			ps = append(ps, domain.Participant{UserID: domain.UserID(*p.UserID), Username: *p.Username})
		}
		return RosterUpdate{SessionID: domain.SessionID(*f.SessionID), Participants: ps}, nil
	case TypeJoin:
		var f joinFrame
		if err := unmarshalValid(raw, &f); err != nil {
			return nil, err
		}
		if err := checkUsername("username", *f.Username); err != nil {
			return nil, err
		}
		return Join{
			SessionID:   domain.SessionID(*f.SessionID),
			Participant: domain.Participant{UserID: domain.UserID(*f.UserID), Username: *f.Username},
		}, nil
	case TypePing:
		return Ping{}, nil
	default:
		return nil, &DecodeError{Kind: UnknownType, Message: fmt.Sprintf("unknown type %q", typ.Str)}
	}
}

func unmarshalValid(raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		de := &DecodeError{Kind: SchemaMismatch, Message: "field has wrong type"}
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			de.Fields = []FieldError{{Field: te.Field, Rule: "type"}}
		}
		return de
	}
	if err := validate.Struct(dst); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return &DecodeError{Kind: SchemaMismatch, Message: err.Error()}
		}
		de := &DecodeError{Kind: SchemaMismatch, Message: "invalid fields"}
		for _, fe := range ves {
			de.Fields = append(de.Fields, FieldError{Field: fieldPath(fe), Rule: fe.Tag()})
		}
		return de
	}
	return nil
}

func checkUsername(field, name string) error {
	if err := domain.ValidateUsername(name); err != nil {
		return &DecodeError{
			Kind:    SchemaMismatch,
			Message: err.Error(),
			Fields:  []FieldError{{Field: field, Rule: "username"}},
		}
	}
	return nil
}

func jsonName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}

// fieldPath drops the struct name validator prefixes namespaces with.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
