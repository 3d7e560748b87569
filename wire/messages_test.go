package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionInitiationRoundTrip(t *testing.T) {
	for _, cmd := range []Command{CommandQuery, CommandRequest, CommandConnect, CommandTerminate} {
		in := ConnectionInitiation{Command: cmd}
		b := in.MarshalTLV()

		var out ConnectionInitiation
		require.NoError(t, out.UnmarshalTLV(b))
		assert.Equal(t, in, out)
	}
}

func TestSessionKeyRoundTrip(t *testing.T) {
	var in SessionKey
	in.SignPublic[0] = 1
	in.EncryptPublic[0] = 2
	in.Signature[0] = 3
	in.Signature[63] = 9

	b := in.MarshalTLV()
	var out SessionKey
	require.NoError(t, out.UnmarshalTLV(b))
	assert.Equal(t, in, out)
}

func TestSessionKeyRejectsTruncatedField(t *testing.T) {
	var in SessionKey
	b := in.MarshalTLV()
	var out SessionKey
	require.Error(t, out.UnmarshalTLV(b[:len(b)-5]))
}

func TestServiceDescriptionRoundTrip(t *testing.T) {
	in := ServiceDescription{
		Name: "shell", Category: "capone", Type: "shell-exec",
		Version: "1", Location: "localhost", Port: "9001",
	}
	b := in.MarshalTLV()
	var out ServiceDescription
	require.NoError(t, out.UnmarshalTLV(b))
	assert.Equal(t, in, out)
}

func TestCapabilityRoundTripWithChain(t *testing.T) {
	in := Capability{
		Secret: [32]byte{7},
		Chain: []CapabilityEntry{
			{Identity: [32]byte{1}, Rights: 3},
			{Identity: [32]byte{2}, Rights: 1},
		},
	}
	b := in.MarshalTLV()
	var out Capability
	require.NoError(t, out.UnmarshalTLV(b))
	assert.Equal(t, in, out)
}

func TestCapabilityRoundTripEmptyChain(t *testing.T) {
	in := Capability{Secret: [32]byte{1}}
	b := in.MarshalTLV()
	var out Capability
	require.NoError(t, out.UnmarshalTLV(b))
	assert.Equal(t, in, out)
	assert.Empty(t, out.Chain)
}

func TestSessionMessageRoundTrip(t *testing.T) {
	in := SessionMessage{
		Identifier: 42,
		Cap:        Capability{Secret: [32]byte{5}},
	}
	b := in.MarshalTLV()
	var out SessionMessage
	require.NoError(t, out.UnmarshalTLV(b))
	assert.Equal(t, in, out)
}

func TestSessionResultRoundTrip(t *testing.T) {
	in := SessionResult{Result: ResultUnauthorized}
	b := in.MarshalTLV()
	var out SessionResult
	require.NoError(t, out.UnmarshalTLV(b))
	assert.Equal(t, in, out)
}

func TestUnmarshalRejectsUnexpectedTagOrder(t *testing.T) {
	var out ConnectionInitiation
	// two fields where only one (tag 1) is expected
	var w tlvWriter
	w.u8(1, 0)
	w.u8(2, 0)
	require.Error(t, out.UnmarshalTLV(w.bytes()))
}
