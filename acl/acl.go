// Package acl implements the access list consulted before a service
// honors a Query or Request command. An ACL is a flat set of allowed
// identities plus an optional wildcard that admits anyone.
package acl

import "github.com/capone-project/capone/identity"

// ACL is the set of identities permitted to invoke a service's Query
// and Request commands. The zero value denies everyone.
type ACL struct {
	allowAny bool
	allowed  map[identity.SignPublic]struct{}
}

// New builds an ACL from a list of permitted identities.
func New(identities ...identity.SignPublic) *ACL {
	a := &ACL{allowed: make(map[identity.SignPublic]struct{}, len(identities))}
	for _, id := range identities {
		a.allowed[id] = struct{}{}
	}
	return a
}

// Any returns an ACL that admits every identity, used for services
// published with an "any" ACL entry.
func Any() *ACL {
	return &ACL{allowAny: true}
}

// Allow adds an identity to the set.
func (a *ACL) Allow(id identity.SignPublic) {
	if a.allowed == nil {
		a.allowed = make(map[identity.SignPublic]struct{})
	}
	a.allowed[id] = struct{}{}
}

// Permit reports whether id may invoke the service this ACL guards.
func (a *ACL) Permit(id identity.SignPublic) bool {
	if a == nil {
		return false
	}
	if a.allowAny {
		return true
	}
	_, ok := a.allowed[id]
	return ok
}
