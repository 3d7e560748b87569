// Package service describes the services a capone daemon publishes:
// the metadata returned from a Query, the ACL guarding it, and the
// plugin implementing its Request/Connect behavior.
package service

import (
	"context"

	"github.com/capone-project/capone/acl"
	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/wire"
)

// ConnectFn runs a plugin's server-side Connect behavior against an
// already-authorized session: ch is the live channel, remote is the
// identity that presented the capability, and params is the
// Request-time parameters the plugin validated and the session
// stored. It returns once the plugin's work is done or the channel
// closes.
type ConnectFn func(ctx context.Context, ch *channel.Channel, remote identity.SignPublic, params []byte) error

// Plugin is the behavior a service delegates Request/Connect handling
// to. Concrete plugins live under the plugin/ tree.
type Plugin interface {
	// Name identifies the plugin in logs and config, e.g. "shell-exec".
	Name() string

	// ParseParameters validates and normalizes the raw bytes a client
	// sent with its Request, returning the form stored on the Session.
	ParseParameters(raw []byte) ([]byte, error)

	// ParamsDescriptor returns a human-readable description of the
	// parameters this plugin accepts. The Query reply does not include
	// it.
	ParamsDescriptor() string
}

// Service is one entry in a daemon's published service set.
type Service struct {
	Name     string
	Category string
	Type     string
	Version  string
	Location string
	Port     string

	ACL    *acl.ACL
	Plugin Plugin

	// Connect implements the plugin's server_fn: invoked once a Connect
	// has been authorized against the session's capability.
	Connect ConnectFn
}

// Description renders the service's wire-visible metadata, returned in
// answer to a Query command.
func (s *Service) Description() wire.ServiceDescription {
	return wire.ServiceDescription{
		Name:     s.Name,
		Category: s.Category,
		Type:     s.Type,
		Version:  s.Version,
		Location: s.Location,
		Port:     s.Port,
	}
}
