// Package capability implements capone's delegation chains: an
// unforgeable root secret plus a verifiable chain of (identity,
// rights) delegations. A reference capability's chain ends at the
// identity presenting it; the root (chain length zero) is held only
// by the service and never transmitted.
package capability

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"io"
	"strings"

	"github.com/capone-project/capone/crypto"
	"github.com/capone-project/capone/errs"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/wire"
)

// Right is a bit in the rights bitmask. Future rights are additive.
type Right uint32

const (
	RightExec Right = 1 << iota
	RightTerm

	rightAll = RightExec | RightTerm
)

func (r Right) Has(bit Right) bool { return r&bit != 0 }

// subset reports whether r is a subset of of_.
func (r Right) subset(of_ Right) bool { return r&^of_ == 0 }

// Entry is one delegation step: the identity it was delegated to, and
// the rights it was granted.
type Entry struct {
	Identity identity.SignPublic
	Rights   Right
}

// Capability is a secret plus its delegation chain. A chain of length
// zero is the root, held only by the service.
type Capability struct {
	Secret [32]byte
	Chain  []Entry
}

// Rand is the source of randomness for root secrets; tests may
// override it.
var Rand io.Reader = rand.Reader

// CreateRoot draws a fresh root capability from the CSPRNG.
func CreateRoot() (Capability, error) {
	var c Capability
	secret, err := crypto.RandomBytes(32, Rand)
	if err != nil {
		return c, err
	}
	copy(c.Secret[:], secret)
	return c, nil
}

// tailRights returns the rights in effect at the end of parent's
// chain: the implicit EXEC|TERM for the root, or the tail entry's
// rights otherwise.
func tailRights(chain []Entry) Right {
	if len(chain) == 0 {
		return rightAll
	}
	return chain[len(chain)-1].Rights
}

// deriveSecret computes H(parent_secret || be32(rights) || identity),
// the fixed ordering this implementation commits to (see DESIGN.md).
func deriveSecret(parentSecret []byte, rights Right, id identity.SignPublic) ([]byte, error) {
	var rightsBE [4]byte
	binary.BigEndian.PutUint32(rightsBE[:], uint32(rights))
	return crypto.KeyedHash(nil, parentSecret, rightsBE[:], id[:])
}

// CreateRef derives a reference capability for identity id, delegated
// rights bits from parent. rights must be a subset of parent's tail
// rights; delegation is additively monotonic and can never grant a
// right the parent did not hold.
func CreateRef(parent Capability, rights Right, id identity.SignPublic) (Capability, error) {
	var out Capability
	if !rights.subset(tailRights(parent.Chain)) {
		return out, errs.New(errs.Unauthorized, "capability: delegated rights exceed parent's")
	}

	secret, err := deriveSecret(parent.Secret[:], rights, id)
	if err != nil {
		return out, err
	}
	copy(out.Secret[:], secret)

	out.Chain = make([]Entry, len(parent.Chain)+1)
	copy(out.Chain, parent.Chain)
	out.Chain[len(out.Chain)-1] = Entry{Identity: id, Rights: rights}
	return out, nil
}

// Verify checks that ref authorizes invoker for requiredRight against
// root. It replays the chain from root.Secret, requiring each
// delegation to be a subset of its predecessor's rights, and requires
// the final reconstructed secret to match ref.Secret in constant time.
func Verify(ref, root Capability, invoker identity.SignPublic, requiredRight Right) error {
	if len(ref.Chain) == 0 {
		return errs.New(errs.Unauthorized, "capability: root capability cannot be presented as a reference")
	}
	tail := ref.Chain[len(ref.Chain)-1]
	if !crypto.ConstantTimeEqual(tail.Identity[:], invoker[:]) {
		return errs.New(errs.Unauthorized, "capability: presenting identity does not match chain tail")
	}
	if !tail.Rights.Has(requiredRight) {
		return errs.New(errs.Unauthorized, "capability: required right not present")
	}

	secret := append([]byte(nil), root.Secret[:]...)
	rights := rightAll
	for _, entry := range ref.Chain {
		if !entry.Rights.subset(rights) {
			return errs.New(errs.Unauthorized, "capability: delegation expands rights")
		}
		next, err := deriveSecret(secret, entry.Rights, entry.Identity)
		if err != nil {
			return err
		}
		secret = next
		rights = entry.Rights
	}

	if !crypto.ConstantTimeEqual(secret, ref.Secret[:]) {
		return errs.New(errs.Unauthorized, "capability: secret does not verify against root")
	}
	if !rights.Has(requiredRight) {
		return errs.New(errs.Unauthorized, "capability: required right not present after replay")
	}
	return nil
}

const rightLetters = "xt" // EXEC, TERM, in bit order

func rightsToString(r Right) string {
	var b strings.Builder
	if r.Has(RightExec) {
		b.WriteByte('x')
	}
	if r.Has(RightTerm) {
		b.WriteByte('t')
	}
	return b.String()
}

func rightsFromString(s string) (Right, error) {
	var r Right
	for _, c := range s {
		switch c {
		case 'x':
			r |= RightExec
		case 't':
			r |= RightTerm
		default:
			return 0, errs.New(errs.Invalid, "capability: unknown right letter")
		}
	}
	return r, nil
}

// String renders the capability string form:
// hex(secret) ( "|" hex(identity) ":" rights_letters )*
func (c Capability) String() string {
	var b strings.Builder
	b.WriteString(hex.EncodeToString(c.Secret[:]))
	for _, e := range c.Chain {
		b.WriteByte('|')
		b.WriteString(hex.EncodeToString(e.Identity[:]))
		b.WriteByte(':')
		b.WriteString(rightsToString(e.Rights))
	}
	return b.String()
}

// Parse decodes the capability string form, rejecting a wrong secret
// length, unknown right letters, rights that expand along the chain,
// or a missing ':' separator after an identity.
func Parse(s string) (Capability, error) {
	var out Capability
	parts := strings.Split(s, "|")
	secretBytes, err := hex.DecodeString(parts[0])
	if err != nil || len(secretBytes) != 32 {
		return out, errs.New(errs.Invalid, "capability: malformed secret")
	}
	copy(out.Secret[:], secretBytes)

	rights := rightAll
	for _, part := range parts[1:] {
		idx := strings.IndexByte(part, ':')
		if idx < 0 {
			return Capability{}, errs.New(errs.Invalid, "capability: missing ':' after identity")
		}
		idHex, rightsStr := part[:idx], part[idx+1:]
		idBytes, err := hex.DecodeString(idHex)
		if err != nil || len(idBytes) != 32 {
			return Capability{}, errs.New(errs.Invalid, "capability: malformed chain identity")
		}
		entryRights, err := rightsFromString(rightsStr)
		if err != nil {
			return Capability{}, err
		}
		if !entryRights.subset(rights) {
			return Capability{}, errs.New(errs.Invalid, "capability: rights expand along chain")
		}
		rights = entryRights

		var id identity.SignPublic
		copy(id[:], idBytes)
		out.Chain = append(out.Chain, Entry{Identity: id, Rights: entryRights})
	}
	return out, nil
}

// ToWire converts c to its TLV wire representation.
func (c Capability) ToWire() wire.Capability {
	w := wire.Capability{Secret: c.Secret}
	for _, e := range c.Chain {
		w.Chain = append(w.Chain, wire.CapabilityEntry{
			Identity: e.Identity,
			Rights:   uint32(e.Rights),
		})
	}
	return w
}

// FromWire converts a wire capability back into a Capability.
func FromWire(w wire.Capability) Capability {
	c := Capability{Secret: w.Secret}
	for _, e := range w.Chain {
		c.Chain = append(c.Chain, Entry{
			Identity: identity.SignPublic(e.Identity),
			Rights:   Right(e.Rights),
		})
	}
	return c
}
