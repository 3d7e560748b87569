package server

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/discovery"
	"github.com/capone-project/capone/handshake"
)

// reapChildren is implemented per-OS in supervisor_unix.go /
// supervisor_other.go: shell-exec forks a process per session, and
// the reaper collects children that exit without their owning
// connection handler noticing.

// Supervisor owns one acceptor per published service plus the
// discovery responder, and fans every accepted connection out to its
// own goroutine. It installs a graceful-shutdown signal handler and,
// on platforms that fork plugin children (shell-exec), a reaper for
// children that exit without their parent connection noticing.
type Supervisor struct {
	Server    *Server
	Discovery *discovery.Responder

	// AdminAddr, if non-empty, is the listen address for the read-only
	// status HTTP endpoint. Empty disables it.
	AdminAddr string

	listeners []net.Listener
	wg        sync.WaitGroup
}

// NewSupervisor constructs a Supervisor for s, advertising under name
// on the discovery responder.
func NewSupervisor(s *Server, name string) *Supervisor {
	return &Supervisor{
		Server: s,
		Discovery: &discovery.Responder{
			Name:      name,
			PublicKey: s.Self.Public,
		},
	}
}

// Run starts one TCP acceptor per service port plus the discovery
// listeners, and blocks until ctx is cancelled or a signal requests
// shutdown.
func (sup *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sig:
			log.Info().Str("signal", s.String()).Msg("supervisor: shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	reapDone := reapChildren(ctx)

	for _, svc := range sup.Server.Services {
		ln, err := net.Listen("tcp", ":"+svc.Port)
		if err != nil {
			cancel()
			return err
		}
		sup.listeners = append(sup.listeners, ln)
		sup.wg.Add(1)
		go sup.acceptLoop(ctx, ln, svc.Name)
	}

	sup.wg.Add(2)
	go func() {
		defer sup.wg.Done()
		if err := sup.Discovery.ServeUDP(ctx, discovery.DefaultPort); err != nil {
			log.Error().Err(err).Msg("supervisor: discovery udp listener failed")
		}
	}()
	go func() {
		defer sup.wg.Done()
		if err := sup.Discovery.ServeTCP(ctx, discovery.DefaultPort); err != nil {
			log.Error().Err(err).Msg("supervisor: discovery tcp listener failed")
		}
	}()

	if sup.AdminAddr != "" {
		sup.wg.Add(1)
		go func() {
			defer sup.wg.Done()
			if err := sup.serveAdmin(ctx, sup.AdminAddr); err != nil {
				log.Error().Err(err).Msg("supervisor: admin endpoint failed")
			}
		}()
	}

	<-ctx.Done()
	for _, ln := range sup.listeners {
		ln.Close()
	}
	sup.wg.Wait()
	<-reapDone
	return nil
}

func (sup *Supervisor) acceptLoop(ctx context.Context, ln net.Listener, svcName string) {
	defer sup.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Error().Err(err).Str("service", svcName).Msg("supervisor: accept failed")
				return
			}
		}
		go sup.handleConn(ctx, conn, svcName)
	}
}

func (sup *Supervisor) handleConn(ctx context.Context, conn net.Conn, svcName string) {
	defer conn.Close()

	ch, err := channel.New(conn, channel.KindStream, channel.DefaultBlockLen)
	if err != nil {
		log.Error().Err(err).Str("service", svcName).Msg("supervisor: channel setup failed")
		return
	}

	remote, err := handshake.ServerHandshake(ch, sup.Server.Self)
	if err != nil {
		log.Warn().Err(err).Str("service", svcName).Msg("supervisor: handshake failed")
		return
	}

	if err := Dispatch(ctx, sup.Server, ch, svcName, remote); err != nil {
		log.Warn().Err(err).Str("service", svcName).Msg("supervisor: dispatch ended with error")
	}
}

