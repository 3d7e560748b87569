package main

import (
	"context"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/errs"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/plugin/capbroker"
	"github.com/capone-project/capone/wire"
)

// capbrokerConnect implements the capabilities-broker's Connect
// behavior. The Request-time parameter is always the requester's
// identity, hex-encoded:
//
//   - A connection from that same identity registers as the waiting
//     requester: it blocks until a broker relays a capability, then
//     writes it to the channel and returns. If its connection drops
//     first, its registrant is torn down and it returns.
//   - A connection from any other identity acts as the broker: it
//     reads one capability from the channel and relays it to the
//     waiting requester, if one is registered.
func capbrokerConnect(ctx context.Context, ch *channel.Channel, p *capbroker.Plugin, remote identity.SignPublic, params []byte) error {
	requester, err := identity.ParseSignPublic(string(params))
	if err != nil {
		return err
	}

	if remote == requester {
		return serveRequester(ctx, ch, p, requester)
	}
	return serveBroker(ch, p, remote, requester)
}

func serveRequester(ctx context.Context, ch *channel.Channel, p *capbroker.Plugin, requester identity.SignPublic) error {
	reg := p.Register(requester, requester)
	defer p.Unregister(requester)

	// The requester sends nothing after Connect, so this read returns
	// only once its connection drops.
	gone := make(chan struct{})
	go func() {
		var b [1]byte
		_, _ = ch.Conn().Read(b[:])
		close(gone)
	}()

	select {
	case cap, ok := <-reg.Receive():
		if !ok {
			return errs.New(errs.NotFound, "capbroker: registrant torn down before delivery")
		}
		wireCap := cap.ToWire()
		return ch.WriteMessage(&wireCap)
	case <-gone:
		return errs.New(errs.Io, "capbroker: requester disconnected before delivery")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func serveBroker(ch *channel.Channel, p *capbroker.Plugin, broker, requester identity.SignPublic) error {
	var wireCap wire.Capability
	if err := ch.ReadMessage(&wireCap); err != nil {
		return err
	}
	cap := capability.FromWire(wireCap)

	if !p.Deliver(requester, cap) {
		return errs.New(errs.NotFound, "capbroker: no requester currently waiting")
	}
	_ = broker
	return nil
}
