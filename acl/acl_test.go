package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capone-project/capone/identity"
)

func id(b byte) identity.SignPublic {
	var out identity.SignPublic
	out[0] = b
	return out
}

func TestNilACLDeniesEveryone(t *testing.T) {
	var a *ACL
	assert.False(t, a.Permit(id(1)))
}

func TestZeroValueACLDeniesEveryone(t *testing.T) {
	a := &ACL{}
	assert.False(t, a.Permit(id(1)))
}

func TestAnyPermitsEveryone(t *testing.T) {
	a := Any()
	assert.True(t, a.Permit(id(1)))
	assert.True(t, a.Permit(id(2)))
}

func TestNewOnlyPermitsListedIdentities(t *testing.T) {
	a := New(id(1), id(2))
	assert.True(t, a.Permit(id(1)))
	assert.True(t, a.Permit(id(2)))
	assert.False(t, a.Permit(id(3)))
}

func TestAllowAddsToEmptyACL(t *testing.T) {
	a := New()
	assert.False(t, a.Permit(id(5)))
	a.Allow(id(5))
	assert.True(t, a.Permit(id(5)))
}
