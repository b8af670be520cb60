package health

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrNotReady is matched by every readiness failure.
var ErrNotReady = errors.New("not ready")

// backoff is the fixed pause between failed attempts.
var backoff = 300 * time.Millisecond

type Result struct {
	Kind     Kind
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (r Result) Ready() bool { return r.Err == nil }

// Error describes a probe that never succeeded within its budget.
type Error struct {
	Result Result
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s probe not ready after %d attempt(s) in %s: %v",
		e.Result.Kind, e.Result.Attempts, e.Result.Elapsed.Round(time.Millisecond), e.Result.Err)
}

func (e *Error) Unwrap() error { return e.Result.Err }

func (e *Error) Is(target error) bool { return target == ErrNotReady }

// WaitReady runs spec.Probe until it succeeds, it has been tried
// spec.Retries times, or more than twice spec.Timeout has elapsed since the
// first attempt. Each attempt is bounded by spec.Timeout.
func WaitReady(ctx context.Context, spec Spec) (Result, error) {
	probe := spec.Probe
	if probe == nil {
		probe = None{}
	}
	timeout := spec.timeout()
	retries := spec.retries()
	budget := 2 * timeout

	res := Result{Kind: probe.Kind()}
	start := time.Now()

	for res.Attempts < retries {
		res.Attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := probe.Check(attemptCtx)
		cancel()
		if err == nil {
			res.Elapsed = time.Since(start)
			res.Err = nil
			return res, nil
		}
		res.Err = err
		log.Debug().Str("kind", string(res.Kind)).Int("attempt", res.Attempts).Err(err).Msg("probe attempt failed")

		if res.Attempts >= retries {
			break
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			res.Err = errors.Wrap(ctx.Err(), "probe wait cancelled")
			res.Elapsed = time.Since(start)
			return res, &Error{Result: res}
		case <-t.C:
		}

		if time.Since(start) > budget {
			break
		}
	}

	res.Elapsed = time.Since(start)
	return res, &Error{Result: res}
}
