// Package capbroker implements the capabilities-broker service
// plugin's registrant table: a connection registers to wait on behalf
// of a requester identity, and a broker mediating capability
// acquisition for that requester relays a freshly delegated
// capability to it through Deliver.
//
// A registrant is torn down as soon as the connection that registered
// it drops, even while it is still waiting in a select on Receive —
// the registrant list must never outlive the connection that owns it.
package capbroker

import (
	"sync"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/identity"
)

// Registrant is a delivery slot registered for a specific requester
// identity; Broker records the identity that registered it.
type Registrant struct {
	Broker    identity.SignPublic
	Requester identity.SignPublic

	deliver chan capability.Capability
}

// Broker holds the registrant set for one running service instance.
type Broker struct {
	mu          sync.Mutex
	registrants map[identity.SignPublic]*Registrant // keyed by requester
}

// New constructs an empty broker.
func New() *Broker {
	return &Broker{registrants: make(map[identity.SignPublic]*Registrant)}
}

// Register records that broker will relay capabilities to requester,
// copying both identities by value. It returns the registrant, whose
// Receive channel the caller must drain until it closes.
func (b *Broker) Register(broker, requester identity.SignPublic) *Registrant {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := &Registrant{
		Broker:    broker,
		Requester: requester,
		deliver:   make(chan capability.Capability, 1),
	}
	b.registrants[requester] = r
	return r
}

// Deliver hands a capability to the registrant currently relaying for
// requester, if any. It reports whether a waiting registrant received it.
func (b *Broker) Deliver(requester identity.SignPublic, cap capability.Capability) bool {
	b.mu.Lock()
	r, ok := b.registrants[requester]
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case r.deliver <- cap:
		return true
	default:
		return false
	}
}

// Receive returns the registrant's delivery channel for the caller to
// range or select over.
func (r *Registrant) Receive() <-chan capability.Capability { return r.deliver }

// Unregister tears down requester's registrant. It must be called as
// soon as the owning connection closes, regardless of whether
// a requester is currently waiting on Receive — the prior
// implementation this one replaces left the registrant behind in that
// case, which is the bug this rewrite fixes.
func (b *Broker) Unregister(requester identity.SignPublic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.registrants[requester]; ok {
		close(r.deliver)
		delete(b.registrants, requester)
	}
}

// Len reports the number of active registrants, used by tests.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.registrants)
}

// Plugin implements service.Plugin for the capabilities-broker
// service. Its Connect behavior is the ConnectFn that cmd/caponed
// wires for the service, which works directly against the embedded
// Broker rather than through a single Run entry point, since a broker
// connection and a requester connection play different roles against
// the same registrant.
type Plugin struct {
	*Broker
}

// NewPlugin constructs a capabilities-broker plugin with a fresh
// registrant table.
func NewPlugin() *Plugin {
	return &Plugin{Broker: New()}
}

func (p *Plugin) Name() string { return "capabilities-broker" }

func (p *Plugin) ParamsDescriptor() string { return "requester identity: 32B hex" }

// ParseParameters validates that raw is a 32-byte hex-encoded
// identity: the requester the broker (or the requester itself) names.
func (p *Plugin) ParseParameters(raw []byte) ([]byte, error) {
	if _, err := identity.ParseSignPublic(string(raw)); err != nil {
		return nil, err
	}
	return raw, nil
}
