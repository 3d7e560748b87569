// Package identity defines capone's key types: the long-term Ed25519
// signature keypair that names a host or user, the ephemeral X25519
// encryption keypair used once per handshake, and the symmetric
// session key the handshake derives. The long-term keys parse from hex
// for the config file and the CLI; public keys print as hex.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"io"

	"github.com/capone-project/capone/crypto"
	"github.com/capone-project/capone/errs"
)

// SignPublic is a long-term Ed25519 public key: a host or user identity.
type SignPublic [crypto.SignPublicSize]byte

// SignSecret is a long-term Ed25519 private key.
type SignSecret [crypto.SignSecretSize]byte

// EncryptPublic is an ephemeral X25519 public key.
type EncryptPublic [crypto.PointSize]byte

// EncryptSecret is an ephemeral X25519 private scalar.
type EncryptSecret [crypto.ScalarSize]byte

// SymmetricKey is a per-channel XSalsa20-Poly1305 key.
type SymmetricKey [crypto.SymmetricKeySize]byte

func (p SignPublic) Bytes() []byte       { return append([]byte(nil), p[:]...) }
func (p SignPublic) String() string      { return hex.EncodeToString(p[:]) }
func (s SignSecret) Bytes() []byte       { return append([]byte(nil), s[:]...) }
func (p EncryptPublic) Bytes() []byte    { return append([]byte(nil), p[:]...) }
func (p EncryptPublic) String() string   { return hex.EncodeToString(p[:]) }
func (s EncryptSecret) Bytes() []byte    { return append([]byte(nil), s[:]...) }
func (k SymmetricKey) Bytes() []byte     { return append([]byte(nil), k[:]...) }

// Zero overwrites s so the secret does not linger in memory after use.
// Called on ephemeral encrypt keys immediately after a handshake
// derives its shared secret, per spec.
func (s *EncryptSecret) Zero() {
	for i := range s {
		s[i] = 0
	}
}

// Zero overwrites the long-term secret key, used when a SignKeyPair is
// dropped.
func (s *SignSecret) Zero() {
	for i := range s {
		s[i] = 0
	}
}

// ParseSignPublic decodes a hex-encoded Ed25519 public key.
func ParseSignPublic(s string) (SignPublic, error) {
	var out SignPublic
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, errs.Wrap(errs.Invalid, "parse sign public key", err)
	}
	if len(b) != len(out) {
		return out, errs.New(errs.Invalid, "sign public key: wrong length")
	}
	copy(out[:], b)
	return out, nil
}

// ParseSignSecret decodes a hex-encoded Ed25519 private key.
func ParseSignSecret(s string) (SignSecret, error) {
	var out SignSecret
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, errs.Wrap(errs.Invalid, "parse sign secret key", err)
	}
	if len(b) != len(out) {
		return out, errs.New(errs.Invalid, "sign secret key: wrong length")
	}
	copy(out[:], b)
	return out, nil
}

// SignKeyPair is a host or user's long-term identity. It is immutable
// once loaded; call Secret.Zero when it should be dropped.
type SignKeyPair struct {
	Public SignPublic
	Secret SignSecret
}

// GenerateSignKeyPair creates a new long-term identity.
func GenerateSignKeyPair(rand io.Reader) (*SignKeyPair, error) {
	pub, priv, err := crypto.GenerateSignKeyPair(rand)
	if err != nil {
		return nil, err
	}
	kp := &SignKeyPair{}
	copy(kp.Public[:], pub)
	copy(kp.Secret[:], priv)
	return kp, nil
}

// NewSignKeyPairFromSecret reconstructs a keypair from its 64-byte
// Ed25519 secret key (which embeds the public key in its second half).
func NewSignKeyPairFromSecret(secret SignSecret) *SignKeyPair {
	priv := ed25519.PrivateKey(secret[:])
	kp := &SignKeyPair{Secret: secret}
	copy(kp.Public[:], priv.Public().(ed25519.PublicKey))
	return kp
}

// Sign signs data with the keypair's long-term secret key.
func (k *SignKeyPair) Sign(data []byte) []byte {
	return crypto.Sign(ed25519.PrivateKey(k.Secret[:]), data)
}

// GenerateEncryptKeyPair creates a new ephemeral X25519 keypair for a
// single handshake.
func GenerateEncryptKeyPair(rand io.Reader) (EncryptSecret, EncryptPublic, error) {
	var secret EncryptSecret
	var public EncryptPublic
	priv, pub, err := crypto.GenerateEncryptKeyPair(rand)
	if err != nil {
		return secret, public, err
	}
	secret = EncryptSecret(priv)
	public = EncryptPublic(pub)
	return secret, public, nil
}
