// Package session implements capone's session registry: a
// process-wide (but not globally-shared — callers own their own
// instance) mapping from a randomly drawn identifier to a Session.
// Add is the only producer, Remove the only consumer, Find borrows
// without taking; every operation serializes through one mutex.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/identity"
)

// Session is a server-side record created by Request, consumed by the
// first successful Connect, or removed by Terminate.
type Session struct {
	Identifier uint32
	Creator    identity.SignPublic
	Parameters []byte
	Cap        capability.Capability
	CreatedAt  time.Time
}

// Registry is capone's session table. The zero value is not usable;
// construct with New.
type Registry struct {
	mu    sync.Mutex
	byID  map[uint32]*Session
	rand  io.Reader
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byID: make(map[uint32]*Session),
		rand: rand.Reader,
	}
}

func (r *Registry) randomID() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.rand, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// Add registers a new session with a freshly drawn, collision-free
// identifier and returns it.
func (r *Registry) Add(parameters []byte, creator identity.SignPublic, cap capability.Capability) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		id, err := r.randomID()
		if err != nil {
			return nil, err
		}
		if _, exists := r.byID[id]; exists {
			continue
		}
		s := &Session{
			Identifier: id,
			Creator:    creator,
			Parameters: parameters,
			Cap:        cap,
			CreatedAt:  time.Now(),
		}
		r.byID[id] = s
		return s, nil
	}
}

// Find returns the session with the given identifier without
// removing it. ok is false if no such session is currently visible.
func (r *Registry) Find(id uint32) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// Remove atomically removes and returns the session with the given
// identifier. This is the registry's linearization point: once Remove
// has returned for an id, no subsequent Find(id) can succeed, and a
// concurrent Connect race over the same session resolves here — only
// one caller observes ok == true.
func (r *Registry) Remove(id uint32) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
	}
	return s, ok
}

// Clear removes every session, used by test scaffolding.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[uint32]*Session)
}

// Len reports the number of sessions currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
