// Package server implements capone's connection command dispatch: the
// per-connection state machine a daemon runs once a channel has been
// handshaked, and the supervisor that fans accepted connections out to
// it.
package server

import (
	"github.com/capone-project/capone/acl"
	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/service"
	"github.com/capone-project/capone/session"
)

// Server holds one daemon's long-term state: its own identity, the
// services it publishes, and the session registry shared across every
// connection.
type Server struct {
	Self     *identity.SignKeyPair
	Name     string
	Services []*service.Service

	QueryACL   *acl.ACL
	RequestACL *acl.ACL

	Sessions *session.Registry

	// roots holds the root capability for every session still live,
	// keyed by session identifier; never transmitted.
	roots map[uint32]capability.Capability
}

// New constructs a Server with an empty session registry.
func New(self *identity.SignKeyPair, name string) *Server {
	return &Server{
		Self:     self,
		Name:     name,
		Sessions: session.New(),
		roots:    make(map[uint32]capability.Capability),
	}
}

// FindService returns the published service named name, or nil.
func (s *Server) FindService(name string) *service.Service {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc
		}
	}
	return nil
}
