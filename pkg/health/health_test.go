package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func withBackoff(t *testing.T, d time.Duration) {
	t.Helper()
	prev := backoff
	backoff = d
	t.Cleanup(func() { backoff = prev })
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

type flakyProbe struct {
	failures int
	calls    int
}

func (p *flakyProbe) Kind() Kind { return KindCommand }

func (p *flakyProbe) Check(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("not yet")
	}
	return nil
}

func TestWaitReady_None(t *testing.T) {
	res, err := WaitReady(context.Background(), Spec{Probe: None{}})
	require.NoError(t, err)
	require.True(t, res.Ready())
	require.Equal(t, 1, res.Attempts)

	res, err = WaitReady(context.Background(), Spec{})
	require.NoError(t, err)
	require.Equal(t, KindNone, res.Kind)
}

func TestWaitReady_RetriesUntilSuccess(t *testing.T) {
	withBackoff(t, 10*time.Millisecond)

	p := &flakyProbe{failures: 2}
	res, err := WaitReady(context.Background(), Spec{Probe: p, Timeout: time.Second, Retries: 5})
	require.NoError(t, err)
	require.Equal(t, 3, res.Attempts)
}

func TestWaitReady_ExhaustsRetries(t *testing.T) {
	withBackoff(t, 10*time.Millisecond)

	p := &flakyProbe{failures: 100}
	res, err := WaitReady(context.Background(), Spec{Probe: p, Timeout: time.Second, Retries: 3})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotReady))
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, 3, p.calls)
	require.False(t, res.Ready())
}

func TestWaitReady_StopsWhenBudgetExceeded(t *testing.T) {
	p := &flakyProbe{failures: 1000}
	start := time.Now()
	res, err := WaitReady(context.Background(), Spec{Probe: p, Timeout: 100 * time.Millisecond, Retries: 100})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotReady))
	require.Less(t, res.Attempts, 100)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitReady_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &flakyProbe{failures: 1000}
	_, err := WaitReady(ctx, Spec{Probe: p, Timeout: time.Second, Retries: 10})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotReady))
	require.True(t, errors.Is(err, context.Canceled))
}

func TestCommandProbe(t *testing.T) {
	withBackoff(t, 10*time.Millisecond)
	ctx := context.Background()

	_, err := WaitReady(ctx, Spec{Probe: Command{Command: "true"}, Retries: 1})
	require.NoError(t, err)

	res, err := WaitReady(ctx, Spec{Probe: Command{Command: "exit 3"}, Retries: 2})
	require.Error(t, err)
	require.Equal(t, 2, res.Attempts)
}

func TestCommandProbe_RunsInDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ready"), []byte("ok"), 0o644))

	spec := Spec{Probe: Command{Command: "test -f ready"}, Retries: 1}.InDir(dir)
	_, err := WaitReady(context.Background(), spec)
	require.NoError(t, err)
}

func TestCommandProbe_TimeoutBoundsAttempt(t *testing.T) {
	start := time.Now()
	err := Command{Command: "sleep 5"}.Check(func() context.Context {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		t.Cleanup(cancel)
		return ctx
	}())
	require.Error(t, err)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestHTTPProbe_StatusRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/moved":
			http.Redirect(w, r, "/nowhere", http.StatusFound)
		case "/not-modified":
			w.WriteHeader(http.StatusNotModified)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, HTTP{URL: srv.URL + "/ok"}.Check(ctx))
	require.NoError(t, HTTP{URL: srv.URL + "/moved"}.Check(ctx))
	require.NoError(t, HTTP{URL: srv.URL + "/not-modified"}.Check(ctx))
	require.Error(t, HTTP{URL: srv.URL + "/boom"}.Check(ctx))
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, TCP{Port: port}.Check(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, TCP{Port: freePort(t)}.Check(ctx))
}

func TestSpec_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		kind    Kind
		probe   Probe
		timeout time.Duration
		retries int
	}{
		{"none", `{"kind":"none"}`, KindNone, None{}, DefaultTimeout, DefaultRetries},
		{"command", `{"kind":"command","command":"curl -f localhost"}`, KindCommand, Command{Command: "curl -f localhost"}, DefaultTimeout, DefaultRetries},
		{"http", `{"kind":"HTTP","url":"http://localhost:3000/health","timeout_ms":1500,"retries":3}`, KindHTTP, HTTP{URL: "http://localhost:3000/health"}, 1500 * time.Millisecond, 3},
		{"tcp", `{"kind":"tcp","tcp_port":5432}`, KindTCP, TCP{Port: 5432}, DefaultTimeout, DefaultRetries},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s Spec
			require.NoError(t, json.Unmarshal([]byte(tc.doc), &s))
			require.Equal(t, tc.kind, s.Kind())
			require.Equal(t, tc.probe, s.Probe)
			require.Equal(t, tc.timeout, s.Timeout)
			require.Equal(t, tc.retries, s.Retries)
		})
	}
}

func TestSpec_UnmarshalJSON_Rejects(t *testing.T) {
	for _, doc := range []string{
		`{"kind":"grpc"}`,
		`{"kind":"http"}`,
		`{"kind":"command","command":"  "}`,
		`{"kind":"tcp"}`,
		`{"kind":"tcp","tcp_port":70000}`,
		`{"kind":"none","timeout_ms":0}`,
		`{"kind":"none","retries":-1}`,
	} {
		var s Spec
		require.Error(t, json.Unmarshal([]byte(doc), &s), doc)
	}
}

func TestSpec_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Spec{Probe: TCP{Port: 8080}, Timeout: 2 * time.Second, Retries: 4})
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"tcp","tcp_port":8080,"timeout_ms":2000,"retries":4}`, string(b))

	var back Spec
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, TCP{Port: 8080}, back.Probe)
	require.Equal(t, "tcp: 127.0.0.1:8080", back.Describe())
}
