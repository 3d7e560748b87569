// Package inputforward implements the input-forwarding service
// plugin: a Connect streams structured input events from the client
// and applies them through a Backend. The default backend is a no-op,
// letting a host wire a platform-specific injector without this
// package depending on it.
package inputforward

import (
	"context"
	"encoding/binary"

	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/errs"
)

// EventKind identifies the input event carried in one frame.
type EventKind uint8

const (
	EventKeyDown EventKind = iota
	EventKeyUp
	EventPointerMove
	EventPointerButton
)

// Event is one forwarded input event: a kind plus up to two signed
// 32-bit parameters (key code, or x/y deltas).
type Event struct {
	Kind EventKind
	A, B int32
}

// Marshal encodes e into its fixed 9-byte wire frame.
func (e Event) Marshal() []byte {
	b := make([]byte, 9)
	b[0] = byte(e.Kind)
	binary.BigEndian.PutUint32(b[1:5], uint32(e.A))
	binary.BigEndian.PutUint32(b[5:9], uint32(e.B))
	return b
}

func unmarshalEvent(b []byte) (Event, error) {
	if len(b) != 9 {
		return Event{}, errs.New(errs.Protocol, "input-forward: malformed event frame")
	}
	return Event{
		Kind: EventKind(b[0]),
		A:    int32(binary.BigEndian.Uint32(b[1:5])),
		B:    int32(binary.BigEndian.Uint32(b[5:9])),
	}, nil
}

// Backend applies a forwarded input event to the local session. The
// no-op backend discards events, useful for testing the framing
// without a platform-specific injector.
type Backend interface {
	Apply(Event) error
}

// NoopBackend discards every event.
type NoopBackend struct{}

func (NoopBackend) Apply(Event) error { return nil }

// Plugin implements service.Plugin for input-forwarding.
type Plugin struct {
	Backend Backend
}

func (p *Plugin) Name() string { return "input-forward" }

func (p *Plugin) ParamsDescriptor() string { return "" }

func (p *Plugin) ParseParameters(raw []byte) ([]byte, error) { return raw, nil }

// Send frames and writes one event to ch, used by a client streaming
// local input to the remote session.
func Send(ch *channel.Channel, ev Event) error {
	return ch.WriteBytes(ev.Marshal())
}

// Run reads framed events from ch until it closes, applying each to
// backend (NoopBackend when backend is nil).
func Run(ctx context.Context, ch *channel.Channel, backend Backend) error {
	if backend == nil {
		backend = NoopBackend{}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := ch.ReadBytes(64)
		if err != nil {
			return err
		}
		ev, err := unmarshalEvent(raw)
		if err != nil {
			return err
		}
		if err := backend.Apply(ev); err != nil {
			return errs.Wrap(errs.Io, "input-forward: apply event", err)
		}
	}
}
