// Package discovery implements capone's LAN discovery responder: a
// raw UDP+TCP probe/response listener on a fixed port, plus an
// optional mDNS advertisement for discovery tools that prefer
// DNS-SD over the raw probe.
package discovery

import (
	"context"
	"net"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

// DefaultPort is the default discovery port, used for both the UDP
// and TCP probe listeners.
const DefaultPort = 6667

// probeMagic identifies a capone discovery probe so the responder
// ignores unrelated traffic landing on the same port.
var probeMagic = [4]byte{'c', 'p', 'n', '1'}

// Responder answers discovery probes with the daemon's advertised
// name and public key.
type Responder struct {
	Name      string
	PublicKey [32]byte
	Port      int

	mdnsServer *zeroconf.Server
}

// buildResponse renders the fixed-format reply: magic, name length,
// name bytes, public key.
func (r *Responder) buildResponse() []byte {
	name := []byte(r.Name)
	out := make([]byte, 0, 4+1+len(name)+32)
	out = append(out, probeMagic[:]...)
	out = append(out, byte(len(name)))
	out = append(out, name...)
	out = append(out, r.PublicKey[:]...)
	return out
}

func isProbe(b []byte) bool {
	return len(b) >= 4 && b[0] == probeMagic[0] && b[1] == probeMagic[1] && b[2] == probeMagic[2] && b[3] == probeMagic[3]
}

// ServeUDP answers UDP probes on the discovery port until ctx is
// cancelled.
func (r *Responder) ServeUDP(ctx context.Context, port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 512)
	resp := r.buildResponse()
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		if !isProbe(buf[:n]) {
			log.Debug().Str("component", "discovery").Str("from", addr.String()).Msg("ignoring malformed udp probe")
			continue
		}
		if _, err := conn.WriteToUDP(resp, addr); err != nil {
			log.Warn().Err(err).Str("component", "discovery").Msg("udp probe reply failed")
		}
	}
}

// ServeTCP answers TCP probes on the discovery port until ctx is
// cancelled: one probe frame in, one response frame out, then close.
func (r *Responder) ServeTCP(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmtAddr(port))
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go r.handleTCP(conn)
	}
}

func (r *Responder) handleTCP(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}
	if !isProbe(buf[:n]) {
		log.Debug().Str("component", "discovery").Str("from", conn.RemoteAddr().String()).Msg("ignoring malformed tcp probe")
		return
	}
	_, _ = conn.Write(r.buildResponse())
}

func fmtAddr(port int) string {
	return (&net.TCPAddr{Port: port}).String()
}

// StartMDNS registers an optional mDNS advertisement for this daemon.
// Failure is non-fatal: the raw probe responder is capone's primary
// discovery path, mDNS is a convenience for tools that already browse
// for it.
func (r *Responder) StartMDNS(servicePort int) {
	server, err := zeroconf.Register(r.Name, "_capone._tcp", "local.", servicePort, []string{
		"pk=" + hexPublicKey(r.PublicKey),
	}, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "discovery").Msg("mdns registration failed, continuing without it")
		return
	}
	r.mdnsServer = server
}

// StopMDNS shuts down the mDNS advertisement, if one was started.
func (r *Responder) StopMDNS() {
	if r.mdnsServer != nil {
		r.mdnsServer.Shutdown()
	}
}

func hexPublicKey(pk [32]byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 64)
	for i, b := range pk {
		out[i*2] = hexdigits[b>>4]
		out[i*2+1] = hexdigits[b&0xf]
	}
	return string(out)
}
