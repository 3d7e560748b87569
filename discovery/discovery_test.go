package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsProbe(t *testing.T) {
	assert.True(t, isProbe([]byte("cpn1extra")))
	assert.True(t, isProbe([]byte("cpn1")))
	assert.False(t, isProbe([]byte("cpn2")))
	assert.False(t, isProbe([]byte("cp")))
}

func TestBuildResponseFormat(t *testing.T) {
	r := &Responder{Name: "host", PublicKey: [32]byte{9}}
	resp := r.buildResponse()

	require.True(t, isProbe(resp))
	assert.Equal(t, byte(len("host")), resp[4])
	assert.Equal(t, "host", string(resp[5:5+len("host")]))
	assert.Equal(t, byte(9), resp[5+len("host")])
}

func TestHexPublicKey(t *testing.T) {
	var pk [32]byte
	pk[0] = 0xab
	pk[31] = 0xff
	s := hexPublicKey(pk)
	assert.Len(t, s, 64)
	assert.Equal(t, "ab", s[:2])
	assert.Equal(t, "ff", s[62:])
}

func TestServeUDPRespondsToProbe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &Responder{Name: "daemon", PublicKey: [32]byte{1}}

	ln, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	require.NoError(t, err)
	port := ln.LocalAddr().(*net.UDPAddr).Port
	ln.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- r.ServeUDP(ctx, port) }()
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("udp", (&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}).String())
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte("cpn1"))
	require.NoError(t, err)

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.True(t, isProbe(buf[:n]))

	cancel()
	<-serveErr
}
