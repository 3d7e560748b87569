package handshake

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/identity"
)

func TestHandshakeEstablishesMatchingSymmetricChannels(t *testing.T) {
	clientPair, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)
	serverPair, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)

	a, b := net.Pipe()
	clientCh, err := channel.New(a, channel.KindStream, channel.DefaultBlockLen)
	require.NoError(t, err)
	serverCh, err := channel.New(b, channel.KindStream, channel.DefaultBlockLen)
	require.NoError(t, err)

	clientErr := make(chan error, 1)
	go func() {
		clientErr <- ClientHandshake(clientCh, clientPair, serverPair.Public)
	}()

	remote, err := ServerHandshake(serverCh, serverPair)
	require.NoError(t, err)
	require.NoError(t, <-clientErr)
	assert.Equal(t, clientPair.Public, remote)

	// Both sides now share a symmetric key; prove it by round-tripping
	// an encrypted message.
	payload := []byte("post-handshake traffic")
	writeErr := make(chan error, 1)
	go func() { writeErr <- clientCh.WriteBytes(payload) }()

	got, err := serverCh.ReadBytes(1024)
	require.NoError(t, err)
	require.NoError(t, <-writeErr)
	assert.Equal(t, payload, got)
}

func TestClientHandshakeRejectsWrongRemoteKey(t *testing.T) {
	clientPair, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)
	serverPair, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)
	wrongPair, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)

	a, b := net.Pipe()
	clientCh, err := channel.New(a, channel.KindStream, channel.DefaultBlockLen)
	require.NoError(t, err)
	serverCh, err := channel.New(b, channel.KindStream, channel.DefaultBlockLen)
	require.NoError(t, err)

	clientErr := make(chan error, 1)
	go func() {
		clientErr <- ClientHandshake(clientCh, clientPair, wrongPair.Public)
	}()

	_, err = ServerHandshake(serverCh, serverPair)
	require.NoError(t, err)
	assert.Error(t, <-clientErr)
}
