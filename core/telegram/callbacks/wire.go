package callbacks

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Kind tags the entity a callback payload refers to.
type Kind string

const (
	KindGroup        Kind = "grp"
	KindSubscription Kind = "sub"
	KindRequest      Kind = "req"
	KindTraining     Kind = "trn"
	KindEmployee     Kind = "emp"
	KindUser         Kind = "usr"
	KindRating       Kind = "rate"
)

var knownKinds = map[Kind]struct{}{
	KindGroup:        {},
	KindSubscription: {},
	KindRequest:      {},
	KindTraining:     {},
	KindEmployee:     {},
	KindUser:         {},
	KindRating:       {},
}

// ErrBadPayload reports a callback payload that failed validation.
var ErrBadPayload = errors.New("callbacks: bad payload")

// Ref is a validated callback payload referring to a single entity.
// Wire form is "<kind>:<id>", carried in the data part of telebot's
// \f<unique>|<data> callback encoding.
type Ref struct {
	Kind Kind
	ID   int64
}

// Encode renders the wire form of the reference.
func (r Ref) Encode() string {
	return string(r.Kind) + ":" + strconv.FormatInt(r.ID, 10)
}

// ParseRef validates and decodes a wire-form payload.
func ParseRef(payload string) (Ref, error) {
	parts := strings.SplitN(strings.TrimSpace(payload), ":", 2)
	if len(parts) != 2 {
		return Ref{}, fmt.Errorf("%w: %q", ErrBadPayload, payload)
	}
	kind := Kind(parts[0])
	if _, ok := knownKinds[kind]; !ok {
		return Ref{}, fmt.Errorf("%w: unknown kind %q", ErrBadPayload, parts[0])
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: non-numeric id %q", ErrBadPayload, parts[1])
	}
	return Ref{Kind: kind, ID: id}, nil
}

// RefFrom extracts and validates a reference from the current callback,
// additionally checking that it carries the expected kind.
func RefFrom(c tele.Context, want Kind) (Ref, error) {
	ref, err := ParseRef(CallbackPayload(c))
	if err != nil {
		return Ref{}, err
	}
	if ref.Kind != want {
		return Ref{}, fmt.Errorf("%w: kind %q, want %q", ErrBadPayload, ref.Kind, want)
	}
	return ref, nil
}
