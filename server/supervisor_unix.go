//go:build unix

package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// reapChildren waits on SIGCHLD so that plugin children (shell-exec
// forks a process per session) are reaped even when their owning
// connection handler has already returned. It runs until ctx is
// cancelled and closes the returned channel once it stops.
func reapChildren(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	chld := make(chan os.Signal, 1)
	signal.Notify(chld, syscall.SIGCHLD)

	go func() {
		defer close(done)
		defer signal.Stop(chld)
		for {
			select {
			case <-ctx.Done():
				return
			case <-chld:
				for {
					var status syscall.WaitStatus
					pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
					if pid <= 0 || err != nil {
						break
					}
				}
			}
		}
	}()

	return done
}
