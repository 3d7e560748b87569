// Package client implements capone's client protocol: the mirror of
// the server's connection command dispatch, issued over a freshly
// handshaked channel.
package client

import (
	"context"
	"net"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/errs"
	"github.com/capone-project/capone/handshake"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/wire"
)

// Dial connects to addr, completes the handshake authenticating the
// server's long-term key against expectedRemote, and returns the
// ready channel.
func Dial(ctx context.Context, addr string, own *identity.SignKeyPair, expectedRemote identity.SignPublic) (*channel.Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errs.Wrap(errs.Io, "client: dial", err)
	}

	ch, err := channel.New(conn, channel.KindStream, channel.DefaultBlockLen)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := handshake.ClientHandshake(ch, own, expectedRemote); err != nil {
		conn.Close()
		return nil, err
	}
	return ch, nil
}

func readResult(ch *channel.Channel) error {
	var res wire.SessionResult
	if err := ch.ReadMessage(&res); err != nil {
		return err
	}
	if res.Result == wire.ResultOK {
		return nil
	}
	return errs.New(resultKind(res.Result), "client: server returned error result")
}

func resultKind(code int32) errs.Kind {
	switch code {
	case wire.ResultUnauthorized:
		return errs.Unauthorized
	case wire.ResultNotFound:
		return errs.NotFound
	case wire.ResultInvalid:
		return errs.Invalid
	case wire.ResultProtocol:
		return errs.Protocol
	case wire.ResultCrypto:
		return errs.Crypto
	case wire.ResultIo:
		return errs.Io
	case wire.ResultConfig:
		return errs.Config
	default:
		return errs.Invalid
	}
}

// Query sends a QUERY command and returns the service description.
func Query(ch *channel.Channel) (wire.ServiceDescription, error) {
	init := wire.ConnectionInitiation{Command: wire.CommandQuery}
	if err := ch.WriteMessage(&init); err != nil {
		return wire.ServiceDescription{}, err
	}
	var desc wire.ServiceDescription
	if err := ch.ReadMessage(&desc); err != nil {
		return wire.ServiceDescription{}, err
	}
	return desc, nil
}

// RequestSession sends a REQUEST command with the given plugin
// parameters and returns the new session's identifier and the
// reference capability delegated to this client.
func RequestSession(ch *channel.Channel, parameters []byte) (uint32, capability.Capability, error) {
	init := wire.ConnectionInitiation{Command: wire.CommandRequest}
	if err := ch.WriteMessage(&init); err != nil {
		return 0, capability.Capability{}, err
	}
	req := wire.SessionRequest{Parameters: parameters}
	if err := ch.WriteMessage(&req); err != nil {
		return 0, capability.Capability{}, err
	}

	var msg wire.SessionMessage
	if err := ch.ReadMessage(&msg); err != nil {
		return 0, capability.Capability{}, err
	}
	return msg.Identifier, capability.FromWire(msg.Cap), nil
}

// StartSession sends a CONNECT command presenting cap for the given
// session identifier and waits for the server's OK or error result.
// The caller drives the plugin's client-side protocol over ch only
// after StartSession returns nil.
func StartSession(ch *channel.Channel, identifier uint32, cap capability.Capability) error {
	init := wire.ConnectionInitiation{Command: wire.CommandConnect}
	if err := ch.WriteMessage(&init); err != nil {
		return err
	}
	body := wire.SessionInitiation{Identifier: identifier, Cap: cap.ToWire()}
	if err := ch.WriteMessage(&body); err != nil {
		return err
	}
	return readResult(ch)
}

// Terminate sends a TERMINATE command presenting cap for the given
// session identifier and returns once the framed ack arrives.
func Terminate(ch *channel.Channel, identifier uint32, cap capability.Capability) error {
	init := wire.ConnectionInitiation{Command: wire.CommandTerminate}
	if err := ch.WriteMessage(&init); err != nil {
		return err
	}
	body := wire.SessionTermination{Identifier: identifier, Cap: cap.ToWire()}
	if err := ch.WriteMessage(&body); err != nil {
		return err
	}
	return readResult(ch)
}
