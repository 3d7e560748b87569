package server

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capone-project/capone/acl"
	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/client"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/service"
)

// stubPlugin is a minimal service.Plugin for dispatch tests: it accepts
// any parameters unchanged and describes no structured format.
type stubPlugin struct{}

func (stubPlugin) Name() string                                  { return "stub" }
func (stubPlugin) ParamsDescriptor() string                      { return "" }
func (stubPlugin) ParseParameters(raw []byte) ([]byte, error)    { return raw, nil }

func newTestServer(t *testing.T, connectACL *acl.ACL) (*Server, identity.SignPublic) {
	t.Helper()
	self, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)

	srv := New(self, "test")
	srv.QueryACL = acl.Any()
	srv.RequestACL = acl.Any()

	connected := make(chan struct{}, 8)
	svc := &service.Service{
		Name:   "stub",
		Type:   "stub",
		Port:   "0",
		ACL:    connectACL,
		Plugin: stubPlugin{},
		Connect: func(ctx context.Context, ch *channel.Channel, remote identity.SignPublic, params []byte) error {
			connected <- struct{}{}
			return nil
		},
	}
	srv.Services = append(srv.Services, svc)
	return srv, self.Public
}

func dialPair(t *testing.T) (*channel.Channel, *channel.Channel) {
	t.Helper()
	a, b := net.Pipe()
	ca, err := channel.New(a, channel.KindStream, channel.DefaultBlockLen)
	require.NoError(t, err)
	cb, err := channel.New(b, channel.KindStream, channel.DefaultBlockLen)
	require.NoError(t, err)
	return ca, cb
}

func TestQueryReturnsServiceDescription(t *testing.T) {
	srv, _ := newTestServer(t, acl.Any())
	clientCh, serverCh := dialPair(t)
	defer clientCh.Close()
	defer serverCh.Close()

	caller, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- Dispatch(context.Background(), srv, serverCh, "stub", caller.Public) }()

	desc, err := client.Query(clientCh)
	require.NoError(t, err)
	assert.Equal(t, "stub", desc.Name)
	require.NoError(t, <-done)
}

func TestRequestThenConnectFullFlow(t *testing.T) {
	srv, _ := newTestServer(t, acl.Any())
	caller, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)

	// Request
	clientCh, serverCh := dialPair(t)
	done := make(chan error, 1)
	go func() { done <- Dispatch(context.Background(), srv, serverCh, "stub", caller.Public) }()

	id, cap, err := client.RequestSession(clientCh, []byte("params"))
	require.NoError(t, err)
	require.NoError(t, <-done)
	clientCh.Close()

	assert.Equal(t, 1, srv.Sessions.Len())

	// Connect
	clientCh2, serverCh2 := dialPair(t)
	done2 := make(chan error, 1)
	go func() { done2 <- Dispatch(context.Background(), srv, serverCh2, "stub", caller.Public) }()

	err = client.StartSession(clientCh2, id, cap)
	require.NoError(t, err)
	require.NoError(t, <-done2)
	clientCh2.Close()

	assert.Equal(t, 0, srv.Sessions.Len(), "connect consumes the session")
}

func TestConnectRejectsWrongInvoker(t *testing.T) {
	srv, _ := newTestServer(t, acl.Any())
	requester, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)
	attacker, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)

	clientCh, serverCh := dialPair(t)
	done := make(chan error, 1)
	go func() { done <- Dispatch(context.Background(), srv, serverCh, "stub", requester.Public) }()
	id, cap, err := client.RequestSession(clientCh, nil)
	require.NoError(t, err)
	require.NoError(t, <-done)
	clientCh.Close()

	clientCh2, serverCh2 := dialPair(t)
	done2 := make(chan error, 1)
	go func() { done2 <- Dispatch(context.Background(), srv, serverCh2, "stub", attacker.Public) }()

	err = client.StartSession(clientCh2, id, cap)
	assert.Error(t, err)
	<-done2
	clientCh2.Close()

	// The failed attempt must not have destroyed the session: it is
	// still there for the rightful holder to consume.
	assert.Equal(t, 1, srv.Sessions.Len())

	clientCh3, serverCh3 := dialPair(t)
	done3 := make(chan error, 1)
	go func() { done3 <- Dispatch(context.Background(), srv, serverCh3, "stub", requester.Public) }()

	err = client.StartSession(clientCh3, id, cap)
	assert.NoError(t, err, "rightful holder must still be able to connect")
	<-done3
	clientCh3.Close()
	assert.Equal(t, 0, srv.Sessions.Len())
}

func TestTerminateRemovesSessionWithoutInvokingPlugin(t *testing.T) {
	srv, _ := newTestServer(t, acl.Any())
	caller, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)

	clientCh, serverCh := dialPair(t)
	done := make(chan error, 1)
	go func() { done <- Dispatch(context.Background(), srv, serverCh, "stub", caller.Public) }()
	id, cap, err := client.RequestSession(clientCh, nil)
	require.NoError(t, err)
	require.NoError(t, <-done)
	clientCh.Close()

	clientCh2, serverCh2 := dialPair(t)
	done2 := make(chan error, 1)
	go func() { done2 <- Dispatch(context.Background(), srv, serverCh2, "stub", caller.Public) }()

	err = client.Terminate(clientCh2, id, cap)
	require.NoError(t, err)
	require.NoError(t, <-done2)
	clientCh2.Close()

	assert.Equal(t, 0, srv.Sessions.Len())
}

func TestTerminateRejectsWrongInvoker(t *testing.T) {
	srv, _ := newTestServer(t, acl.Any())
	requester, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)
	attacker, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)

	clientCh, serverCh := dialPair(t)
	done := make(chan error, 1)
	go func() { done <- Dispatch(context.Background(), srv, serverCh, "stub", requester.Public) }()
	id, cap, err := client.RequestSession(clientCh, nil)
	require.NoError(t, err)
	require.NoError(t, <-done)
	clientCh.Close()

	clientCh2, serverCh2 := dialPair(t)
	done2 := make(chan error, 1)
	go func() { done2 <- Dispatch(context.Background(), srv, serverCh2, "stub", attacker.Public) }()

	err = client.Terminate(clientCh2, id, cap)
	assert.Error(t, err)
	<-done2
	clientCh2.Close()

	// A terminate with an unverifiable capability must not have
	// destroyed the session either.
	assert.Equal(t, 1, srv.Sessions.Len())

	clientCh3, serverCh3 := dialPair(t)
	done3 := make(chan error, 1)
	go func() { done3 <- Dispatch(context.Background(), srv, serverCh3, "stub", requester.Public) }()

	err = client.Terminate(clientCh3, id, cap)
	assert.NoError(t, err, "rightful holder must still be able to terminate")
	<-done3
	clientCh3.Close()
	assert.Equal(t, 0, srv.Sessions.Len())
}

func TestQueryDeniedByServiceACL(t *testing.T) {
	allowed, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)
	srv, _ := newTestServer(t, acl.Any())
	srv.Services[0].ACL = acl.New(allowed.Public)

	outsider, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)

	clientCh, serverCh := dialPair(t)
	done := make(chan error, 1)
	go func() { done <- Dispatch(context.Background(), srv, serverCh, "stub", outsider.Public) }()

	_, err = client.Query(clientCh)
	assert.Error(t, err)
	require.NoError(t, <-done)
}

func TestDispatchUnknownServiceReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, acl.Any())
	caller, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)

	clientCh, serverCh := dialPair(t)
	done := make(chan error, 1)
	go func() { done <- Dispatch(context.Background(), srv, serverCh, "missing", caller.Public) }()

	_, err = client.Query(clientCh)
	assert.Error(t, err)
	require.NoError(t, <-done)
}

