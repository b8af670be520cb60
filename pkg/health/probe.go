// Package health implements readiness probes: a probe is one of a small set
// of kinds (none, command, http, tcp), each carrying only its own fields, and
// WaitReady retries it within a bounded budget.
package health

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindNone    Kind = "none"
	KindCommand Kind = "command"
	KindHTTP    Kind = "http"
	KindTCP     Kind = "tcp"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 10
)

// Probe is a single readiness check. Check must honor ctx, which carries the
// per-attempt deadline.
type Probe interface {
	Kind() Kind
	Check(ctx context.Context) error
}

type None struct{}

func (None) Kind() Kind                    { return KindNone }
func (None) Check(_ context.Context) error { return nil }

// Command is ready once the shell command exits 0.
type Command struct {
	Command string
	Dir     string
}

func (Command) Kind() Kind { return KindCommand }

func (c Command) Check(ctx context.Context) error {
	if strings.TrimSpace(c.Command) == "" {
		return errors.New("empty command")
	}
	// #nosec G204 -- probe command comes from the services document.
	cmd := exec.CommandContext(ctx, "sh", "-c", c.Command)
	cmd.Dir = c.Dir
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, "probe command")
	}
	return nil
}

// HTTP is ready once a GET returns a status in [200, 400). Redirects are
// not followed.
type HTTP struct {
	URL string
}

func (HTTP) Kind() Kind { return KindHTTP }

func (h HTTP) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "http probe")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return errors.Errorf("http %d", resp.StatusCode)
	}
	return nil
}

// TCP is ready once 127.0.0.1:Port accepts a connection.
type TCP struct {
	Port int
}

func (TCP) Kind() Kind { return KindTCP }

func (t TCP) Address() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(t.Port))
}

func (t TCP) Check(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.Address())
	if err != nil {
		return errors.Wrap(err, "tcp probe")
	}
	_ = conn.Close()
	return nil
}

// Spec is a probe plus its retry budget. A zero Timeout or Retries means
// the default.
type Spec struct {
	Probe   Probe
	Timeout time.Duration
	Retries int
}

func (s Spec) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func (s Spec) retries() int {
	if s.Retries <= 0 {
		return DefaultRetries
	}
	return s.Retries
}

func (s Spec) Kind() Kind {
	if s.Probe == nil {
		return KindNone
	}
	return s.Probe.Kind()
}

// InDir returns a copy of s whose command probe runs in dir.
func (s Spec) InDir(dir string) Spec {
	if c, ok := s.Probe.(Command); ok {
		c.Dir = dir
		s.Probe = c
	}
	return s
}

type wireSpec struct {
	Kind      string `json:"kind"`
	Command   string `json:"command,omitempty"`
	URL       string `json:"url,omitempty"`
	TCPPort   int    `json:"tcp_port,omitempty"`
	TimeoutMs *int64 `json:"timeout_ms,omitempty"`
	Retries   *int   `json:"retries,omitempty"`
}

func (s *Spec) UnmarshalJSON(b []byte) error {
	var w wireSpec
	if err := json.Unmarshal(b, &w); err != nil {
		return errors.Wrap(err, "parse health_check")
	}

	switch Kind(strings.ToLower(strings.TrimSpace(w.Kind))) {
	case KindNone, "":
		s.Probe = None{}
	case KindCommand:
		if strings.TrimSpace(w.Command) == "" {
			return errors.New("health_check kind command requires command")
		}
		s.Probe = Command{Command: w.Command}
	case KindHTTP:
		if strings.TrimSpace(w.URL) == "" {
			return errors.New("health_check kind http requires url")
		}
		s.Probe = HTTP{URL: w.URL}
	case KindTCP:
		if w.TCPPort <= 0 || w.TCPPort > 65535 {
			return errors.Errorf("health_check kind tcp requires tcp_port in 1..65535, got %d", w.TCPPort)
		}
		s.Probe = TCP{Port: w.TCPPort}
	default:
		return errors.Errorf("unsupported health_check kind %q", w.Kind)
	}

	s.Timeout = DefaultTimeout
	if w.TimeoutMs != nil {
		if *w.TimeoutMs <= 0 {
			return errors.Errorf("health_check timeout_ms must be > 0, got %d", *w.TimeoutMs)
		}
		s.Timeout = time.Duration(*w.TimeoutMs) * time.Millisecond
	}
	s.Retries = DefaultRetries
	if w.Retries != nil {
		if *w.Retries <= 0 {
			return errors.Errorf("health_check retries must be > 0, got %d", *w.Retries)
		}
		s.Retries = *w.Retries
	}
	return nil
}

func (s Spec) MarshalJSON() ([]byte, error) {
	timeoutMs := s.timeout().Milliseconds()
	retries := s.retries()
	w := wireSpec{Kind: string(s.Kind()), TimeoutMs: &timeoutMs, Retries: &retries}
	switch p := s.Probe.(type) {
	case Command:
		w.Command = p.Command
	case HTTP:
		w.URL = p.URL
	case TCP:
		w.TCPPort = p.Port
	}
	return json.Marshal(w)
}

// Describe renders the probe target for humans.
func (s Spec) Describe() string {
	switch p := s.Probe.(type) {
	case Command:
		return "command: " + p.Command
	case HTTP:
		return "http: " + p.URL
	case TCP:
		return "tcp: " + p.Address()
	default:
		return "none"
	}
}
