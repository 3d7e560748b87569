// Package shellexec implements the shell-exec service plugin: a
// Connect spawns a whitelisted command and relays its stdio over the
// channel until the process exits or the peer disconnects.
package shellexec

import (
	"context"
	"os/exec"
	"regexp"
	"strings"

	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/errs"
)

// dangerousArgPattern rejects shell metacharacters in arguments; the
// plugin never invokes a shell itself, but a whitelisted command could
// still be abused through argument injection.
var dangerousArgPattern = regexp.MustCompile(`[;&|$` + "`" + `(){}[\]<>\\!*?~]`)

// Params is the parsed form of a shell-exec Request payload: a command
// name plus its arguments, newline-separated in the raw parameter
// bytes (command on the first line, one argument per following line).
type Params struct {
	Command string
	Args    []string
}

// Plugin implements service.Plugin for shell-exec. Whitelist is the
// set of base command names callers may invoke; an empty whitelist
// refuses every command.
type Plugin struct {
	Whitelist []string
}

func (p *Plugin) Name() string { return "shell-exec" }

func (p *Plugin) ParamsDescriptor() string {
	return "command\\narg1\\narg2..."
}

func (p *Plugin) isAllowed(command string) bool {
	if strings.ContainsAny(command, "/\\") {
		return false
	}
	for _, w := range p.Whitelist {
		if w == "*" || w == command {
			return true
		}
	}
	return false
}

// ParseParameters validates the command against the whitelist and the
// arguments against the dangerous-character pattern, returning the
// parameters unchanged for storage on the session.
func (p *Plugin) ParseParameters(raw []byte) ([]byte, error) {
	params, err := parse(raw)
	if err != nil {
		return nil, err
	}
	if !p.isAllowed(params.Command) {
		return nil, errs.New(errs.Unauthorized, "shell-exec: command not in whitelist")
	}
	for i, arg := range params.Args {
		if dangerousArgPattern.MatchString(arg) {
			return nil, errs.New(errs.Invalid, "shell-exec: argument contains dangerous characters")
		}
		_ = i
	}
	return raw, nil
}

func parse(raw []byte) (Params, error) {
	lines := strings.Split(string(raw), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return Params{}, errs.New(errs.Invalid, "shell-exec: empty command")
	}
	return Params{Command: lines[0], Args: lines[1:]}, nil
}

// Run spawns the command described by raw and relays its stdio over
// ch until the process exits or the channel closes. It is invoked by
// the server dispatch loop once a Connect has been authorized against
// the session's stored capability.
func Run(ctx context.Context, ch *channel.Channel, raw []byte) error {
	params, err := parse(raw)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, params.Command, params.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errs.Wrap(errs.Io, "shell-exec: stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errs.Wrap(errs.Io, "shell-exec: stdout pipe", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return errs.Wrap(errs.Io, "shell-exec: start", err)
	}

	relayErr := make(chan error, 1)
	go func() {
		relayErr <- ch.Relay(&stdioPipe{w: stdin, r: stdout})
	}()

	waitErr := cmd.Wait()
	stdin.Close()

	select {
	case <-relayErr:
	default:
	}
	if waitErr != nil {
		return errs.Wrap(errs.Io, "shell-exec: command exited with error", waitErr)
	}
	return nil
}

type stdioPipe struct {
	w interface {
		Write([]byte) (int, error)
		Close() error
	}
	r interface {
		Read([]byte) (int, error)
	}
}

func (s *stdioPipe) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *stdioPipe) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdioPipe) Close() error                { return s.w.Close() }
