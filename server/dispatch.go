package server

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/errs"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/service"
	"github.com/capone-project/capone/wire"
)

// rootsMu serializes access to Server.roots; the session registry has
// its own mutex for the session record itself, but the root capability
// that authorizes it is server-private state guarded separately.
var rootsMu sync.Mutex

// Dispatch reads one ConnectionInitiation from ch and runs the
// matching branch of the command state machine against the named
// service. remote is the long-term identity the handshake
// authenticated.
func Dispatch(ctx context.Context, s *Server, ch *channel.Channel, svcName string, remote identity.SignPublic) error {
	// The ConnectionInitiation is always read first, regardless of
	// whether svcName names a published service: the client has
	// already written it and blocks until something consumes it.
	var init wire.ConnectionInitiation
	if err := ch.ReadMessage(&init); err != nil {
		return err
	}

	target := s.FindService(svcName)
	if target == nil {
		return sendResult(ch, errs.NotFound)
	}

	logger := log.With().Str("component", "dispatch").Str("service", svcName).Str("command", init.Command.String()).Logger()

	switch init.Command {
	case wire.CommandQuery:
		return s.handleQuery(ch, target, remote, logger)
	case wire.CommandRequest:
		return s.handleRequest(ch, target, remote, logger)
	case wire.CommandConnect:
		return s.handleConnect(ctx, ch, target, remote, logger)
	case wire.CommandTerminate:
		return s.handleTerminate(ch, remote, logger)
	default:
		logger.Warn().Msg("unknown command")
		return sendResult(ch, errs.Invalid)
	}
}

func (s *Server) handleQuery(ch *channel.Channel, target *service.Service, remote identity.SignPublic, logger zerolog.Logger) error {
	if !target.ACL.Permit(remote) || !s.QueryACL.Permit(remote) {
		logger.Warn().Msg("query denied by acl")
		return sendResult(ch, errs.Unauthorized)
	}
	desc := target.Description()
	return ch.WriteMessage(&desc)
}

func (s *Server) handleRequest(ch *channel.Channel, target *service.Service, remote identity.SignPublic, logger zerolog.Logger) error {
	if !target.ACL.Permit(remote) || !s.RequestACL.Permit(remote) {
		logger.Warn().Msg("request denied by acl")
		return sendResult(ch, errs.Unauthorized)
	}

	var req wire.SessionRequest
	if err := ch.ReadMessage(&req); err != nil {
		return err
	}

	params, err := target.Plugin.ParseParameters(req.Parameters)
	if err != nil {
		logger.Warn().Err(err).Msg("plugin rejected parameters")
		return sendResult(ch, err)
	}

	root, err := capability.CreateRoot()
	if err != nil {
		return sendResult(ch, errs.New(errs.Crypto, "dispatch: create root capability"))
	}
	ref, err := capability.CreateRef(root, capability.RightExec|capability.RightTerm, remote)
	if err != nil {
		return sendResult(ch, err)
	}

	sess, err := s.Sessions.Add(params, remote, ref)
	if err != nil {
		return sendResult(ch, errs.Wrap(errs.Io, "dispatch: add session", err))
	}
	rootsMu.Lock()
	s.roots[sess.Identifier] = root
	rootsMu.Unlock()

	logger.Debug().Uint32("session", sess.Identifier).Msg("session registered")

	reply := wire.SessionMessage{Identifier: sess.Identifier, Cap: ref.ToWire()}
	return ch.WriteMessage(&reply)
}

func (s *Server) handleConnect(ctx context.Context, ch *channel.Channel, target *service.Service, remote identity.SignPublic, logger zerolog.Logger) error {
	var init wire.SessionInitiation
	if err := ch.ReadMessage(&init); err != nil {
		return err
	}
	presented := capability.FromWire(init.Cap)

	rootsMu.Lock()
	root, haveRoot := s.roots[init.Identifier]
	rootsMu.Unlock()
	if !haveRoot {
		return sendResult(ch, errs.NotFound)
	}

	if _, ok := s.Sessions.Find(init.Identifier); !ok {
		return sendResult(ch, errs.NotFound)
	}
	if err := capability.Verify(presented, root, remote, capability.RightExec); err != nil {
		logger.Warn().Uint32("session", init.Identifier).Msg("connect capability did not verify")
		return sendResult(ch, err)
	}

	// The guard passed: session exists and the presented capability
	// verifies. Only now is Remove — the race's linearization point —
	// allowed to run; a second, equally valid CONNECT racing this one
	// still resolves to exactly one winner here.
	sess, ok := s.Sessions.Remove(init.Identifier)
	if !ok {
		return sendResult(ch, errs.NotFound)
	}
	rootsMu.Lock()
	delete(s.roots, init.Identifier)
	rootsMu.Unlock()

	if err := sendResult(ch, nil); err != nil {
		return err
	}

	logger.Info().Uint32("session", init.Identifier).Msg("session connected")
	if target.Connect == nil {
		return errs.New(errs.Invalid, "dispatch: service has no connect behavior wired")
	}
	return target.Connect(ctx, ch, remote, sess.Parameters)
}

func (s *Server) handleTerminate(ch *channel.Channel, remote identity.SignPublic, logger zerolog.Logger) error {
	var term wire.SessionTermination
	if err := ch.ReadMessage(&term); err != nil {
		return err
	}
	presented := capability.FromWire(term.Cap)

	rootsMu.Lock()
	root, haveRoot := s.roots[term.Identifier]
	rootsMu.Unlock()
	if !haveRoot {
		return sendResult(ch, errs.NotFound)
	}

	if _, ok := s.Sessions.Find(term.Identifier); !ok {
		return sendResult(ch, errs.NotFound)
	}
	if err := capability.Verify(presented, root, remote, capability.RightTerm); err != nil {
		logger.Warn().Uint32("session", term.Identifier).Msg("terminate capability did not verify")
		return sendResult(ch, err)
	}

	// Guard passed: only now does Remove run.
	if _, ok := s.Sessions.Remove(term.Identifier); !ok {
		return sendResult(ch, errs.NotFound)
	}
	rootsMu.Lock()
	delete(s.roots, term.Identifier)
	rootsMu.Unlock()

	logger.Info().Uint32("session", term.Identifier).Msg("session terminated")
	return sendResult(ch, nil)
}

// sendResult writes the framed SessionResult for err, classifying it
// via errs.KindOf; a nil err sends ResultOK.
func sendResult(ch *channel.Channel, err error) error {
	res := wire.SessionResult{Result: wire.ResultOK}
	if err != nil {
		res.Result = wire.ResultFromErrKind(errs.KindOf(err))
	}
	return ch.WriteMessage(&res)
}
