package supervise

import (
	"context"
	"syscall"
	"time"

	"github.com/eduard-lt/Harbor/pkg/proc"
	"github.com/pkg/errors"
)

const killWait = 2 * time.Second

// Terminate sends SIGTERM to pid, waits up to grace for it to exit, then
// sends SIGKILL. When pid leads its own process group the whole group is
// signalled; otherwise only pid is. A pid that is already gone is not an
// error, and init is never signalled.
func Terminate(ctx context.Context, pid int, grace time.Duration) error {
	if !proc.Valid(pid) || !proc.Alive(ctx, pid) {
		return nil
	}
	group := leadsGroup(pid)
	signal(pid, group, syscall.SIGTERM)

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < grace {
			grace = remaining
		}
	}

	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()

	if waitGone(ctx, t, pid, time.Now().Add(grace)) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	signal(pid, group, syscall.SIGKILL)
	if waitGone(ctx, t, pid, time.Now().Add(killWait)) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Errorf("pid %d did not exit", pid)
}

// leadsGroup reports whether pid is the leader of its process group, as
// every service Spawn starts is.
func leadsGroup(pid int) bool {
	pgid, err := syscall.Getpgid(pid)
	return err == nil && pgid > 1 && pgid == pid
}

func signal(pid int, group bool, sig syscall.Signal) {
	if !proc.Valid(pid) {
		return
	}
	if group {
		_ = syscall.Kill(-pid, sig)
		return
	}
	_ = syscall.Kill(pid, sig)
}

func waitGone(ctx context.Context, t *time.Ticker, pid int, deadline time.Time) bool {
	for {
		if !proc.Alive(ctx, pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
}
