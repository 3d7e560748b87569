// Package crypto wraps the primitive operations capone builds on:
// Ed25519 signatures, X25519 scalar multiplication, XSalsa20-Poly1305
// authenticated encryption, a BLAKE2b-based keyed hash, and a CSPRNG.
// Nothing above this layer should import an algorithm package
// directly; everything goes through here so the choice of primitive
// stays in one place.
package crypto

import (
	"crypto/ed25519"
	"crypto/subtle"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/capone-project/capone/errs"
)

const (
	// SignPublicSize is the size in bytes of an Ed25519 public key.
	SignPublicSize = ed25519.PublicKeySize
	// SignSecretSize is the size in bytes of an Ed25519 private key.
	SignSecretSize = ed25519.PrivateKeySize
	// SignatureSize is the size in bytes of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize

	// ScalarSize is the size in bytes of an X25519 scalar (private key).
	ScalarSize = curve25519.ScalarSize
	// PointSize is the size in bytes of an X25519 curve point (public key).
	PointSize = curve25519.PointSize

	// SymmetricKeySize is the size in bytes of an XSalsa20-Poly1305 key.
	SymmetricKeySize = 32
	// NonceSize is the size in bytes of the secretbox nonce.
	NonceSize = 24
	// Overhead is the number of bytes secretbox adds to a plaintext
	// (Poly1305 MAC).
	Overhead = secretbox.Overhead

	// HashSize is the output size in bytes of Hash/KeyedHash.
	HashSize = 32
)

// RandomBytes fills and returns n cryptographically random bytes.
func RandomBytes(n int, rand io.Reader) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand, b); err != nil {
		return nil, errs.Wrap(errs.Crypto, "read random bytes", err)
	}
	return b, nil
}

// GenerateSignKeyPair creates a new Ed25519 keypair.
func GenerateSignKeyPair(rand io.Reader) (pub ed25519.PublicKey, priv ed25519.PrivateKey, err error) {
	pub, priv, err = ed25519.GenerateKey(rand)
	if err != nil {
		return nil, nil, errs.Wrap(errs.Crypto, "generate sign keypair", err)
	}
	return pub, priv, nil
}

// Sign signs data with the given Ed25519 secret key.
func Sign(secret ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(secret, data)
}

// Verify checks an Ed25519 signature against data and a public key.
func Verify(public ed25519.PublicKey, data, sig []byte) bool {
	if len(public) != SignPublicSize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(public, data, sig)
}

// GenerateEncryptKeyPair creates a new ephemeral X25519 keypair.
func GenerateEncryptKeyPair(rand io.Reader) (priv, pub [32]byte, err error) {
	if _, rerr := io.ReadFull(rand, priv[:]); rerr != nil {
		return priv, pub, errs.Wrap(errs.Crypto, "generate encrypt keypair", rerr)
	}
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, errs.Wrap(errs.Crypto, "derive encrypt public key", err)
	}
	copy(pub[:], p)
	return priv, pub, nil
}

// ScalarMult computes the X25519 shared point for the given scalar and
// remote point. It fails if the result is the all-zero point, which
// would indicate a small-order or otherwise degenerate remote key.
func ScalarMult(scalar, point []byte) ([]byte, error) {
	out, err := curve25519.X25519(scalar, point)
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, "scalarmult", err)
	}
	var zero [32]byte
	if subtle.ConstantTimeCompare(out, zero[:]) == 1 {
		return nil, errs.New(errs.Crypto, "scalarmult produced the all-zero point")
	}
	return out, nil
}

// Hash computes an unkeyed 32-byte BLAKE2b digest of data.
func Hash(data ...[]byte) []byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only fails for an oversized key, and we pass none.
		panic("crypto: blake2b.New256: " + err.Error())
	}
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// KeyedHash computes a 32-byte BLAKE2b digest of data under the given
// key, used for capability secret derivation.
func KeyedHash(key []byte, data ...[]byte) ([]byte, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, "keyed blake2b", err)
	}
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil), nil
}

// Seal authenticated-encrypts plaintext under key with nonce, appending
// the 16-byte Poly1305 tag. out may be nil; the sealed box is appended
// to it (NaCl secretbox convention).
func Seal(out, plaintext []byte, nonce *[NonceSize]byte, key *[SymmetricKeySize]byte) []byte {
	return secretbox.Seal(out, plaintext, nonce, key)
}

// Open authenticated-decrypts box under key with nonce. A MAC failure
// is reported as a Crypto error and is fatal to the caller's channel.
func Open(out, box []byte, nonce *[NonceSize]byte, key *[SymmetricKeySize]byte) ([]byte, error) {
	plain, ok := secretbox.Open(out, box, nonce, key)
	if !ok {
		return nil, errs.New(errs.Crypto, "secretbox: decryption failed")
	}
	return plain, nil
}

// ConstantTimeEqual reports whether a and b are equal using a
// constant-time comparison, as required by capability verification.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
