// Package handshake implements capone's ephemeral-key exchange with
// signature-authenticated identity, producing the symmetric key and
// mirrored nonce pair a Channel needs to enter encrypted mode.
package handshake

import (
	"crypto/rand"
	"io"

	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/crypto"
	"github.com/capone-project/capone/errs"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/wire"
)

// Rand is the source of randomness used for ephemeral keys; tests may
// override it with a deterministic reader.
var Rand io.Reader = rand.Reader

func sessionKeyFor(own *identity.SignKeyPair, encryptPub identity.EncryptPublic) *wire.SessionKey {
	sk := &wire.SessionKey{
		SignPublic:    own.Public,
		EncryptPublic: encryptPub,
	}
	sig := own.Sign(encryptPub[:])
	copy(sk.Signature[:], sig) // Ed25519 sigs are exactly SignatureFieldSize; no truncation.
	return sk
}

func verifySessionKey(sk *wire.SessionKey) error {
	sig := sk.Signature[:crypto.SignatureSize]
	if !crypto.Verify(sk.SignPublic[:], sk.EncryptPublic[:], sig) {
		return errs.New(errs.Crypto, "handshake: signature verification failed")
	}
	return nil
}

// deriveKey computes K = H(q || pk_first || pk_second), where pk_first
// is the initiator's ephemeral public key and pk_second the
// responder's, regardless of which side is computing it.
func deriveKey(q []byte, initiatorEphemeral, responderEphemeral identity.EncryptPublic) identity.SymmetricKey {
	h := crypto.Hash(q, initiatorEphemeral[:], responderEphemeral[:])
	var key identity.SymmetricKey
	copy(key[:], h)
	return key
}

// ClientHandshake performs the initiator's side: send then read. On
// success it verifies the presented long-term key against
// expectedRemote and enters the channel into symmetric mode.
func ClientHandshake(ch *channel.Channel, own *identity.SignKeyPair, expectedRemote identity.SignPublic) error {
	esk, epk, err := identity.GenerateEncryptKeyPair(Rand)
	if err != nil {
		return err
	}
	defer esk.Zero()

	if err := ch.WriteMessage(sessionKeyFor(own, epk)); err != nil {
		return errs.Wrap(errs.Io, "handshake: send session key", err)
	}

	var remote wire.SessionKey
	if err := ch.ReadMessage(&remote); err != nil {
		return errs.Wrap(errs.Io, "handshake: read session key", err)
	}

	if err := verifySessionKey(&remote); err != nil {
		return err
	}
	if !crypto.ConstantTimeEqual(remote.SignPublic[:], expectedRemote[:]) {
		return errs.New(errs.Crypto, "handshake: remote sign key mismatch")
	}

	q, err := crypto.ScalarMult(esk[:], remote.EncryptPublic[:])
	if err != nil {
		return err
	}

	key := deriveKey(q, epk, identity.EncryptPublic(remote.EncryptPublic))
	ch.EnableSymmetric(key, 0, 1)
	return nil
}

// ServerHandshake performs the responder's side: read then send. It
// returns the long-term sign key presented by the remote, which the
// caller treats as the authenticated peer identity.
func ServerHandshake(ch *channel.Channel, own *identity.SignKeyPair) (identity.SignPublic, error) {
	var zero identity.SignPublic

	var remote wire.SessionKey
	if err := ch.ReadMessage(&remote); err != nil {
		return zero, errs.Wrap(errs.Io, "handshake: read session key", err)
	}
	if err := verifySessionKey(&remote); err != nil {
		return zero, err
	}

	esk, epk, err := identity.GenerateEncryptKeyPair(Rand)
	if err != nil {
		return zero, err
	}
	defer esk.Zero()

	if err := ch.WriteMessage(sessionKeyFor(own, epk)); err != nil {
		return zero, errs.Wrap(errs.Io, "handshake: send session key", err)
	}

	q, err := crypto.ScalarMult(esk[:], remote.EncryptPublic[:])
	if err != nil {
		return zero, err
	}

	key := deriveKey(q, identity.EncryptPublic(remote.EncryptPublic), epk)
	ch.EnableSymmetric(key, 1, 0)

	var remoteSign identity.SignPublic
	copy(remoteSign[:], remote.SignPublic[:])
	return remoteSign, nil
}
