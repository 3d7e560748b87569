// Package screenshare implements the screen-share service plugin: a
// Connect dials the local xpra socket configured in the daemon's
// [xpra] section and relays raw bytes between it and the channel.
package screenshare

import (
	"context"
	"net"

	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/errs"
)

// Plugin implements service.Plugin for screen-share. Addr is the local
// xpra listener address, e.g. "127.0.0.1:14500".
type Plugin struct {
	Addr string
}

func (p *Plugin) Name() string { return "screen-share" }

func (p *Plugin) ParamsDescriptor() string { return "" }

// ParseParameters accepts any payload; screen-share takes no
// per-request parameters beyond presence of a valid capability.
func (p *Plugin) ParseParameters(raw []byte) ([]byte, error) {
	return raw, nil
}

// Run dials the configured xpra socket and relays it against ch until
// either side closes.
func Run(ctx context.Context, ch *channel.Channel, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errs.Wrap(errs.Io, "screen-share: dial xpra socket", err)
	}
	defer conn.Close()

	if err := ch.Relay(conn); err != nil {
		return errs.Wrap(errs.Io, "screen-share: relay", err)
	}
	return nil
}
