package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eduard-lt/Harbor/pkg/health"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAMLServicesRoot(t *testing.T) {
	path := writeFile(t, "harbor.config.yaml", `services:
  - name: db
    command: "postgres -D data"
    health_check:
      kind: tcp
      tcp_port: 5432
  - name: api
    command: "./api"
    cwd: backend
    env:
      PORT: "8080"
    depends_on: [db]
    health_check:
      kind: http
      url: http://localhost:8080/health
      timeout_ms: 1000
      retries: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Services, 2)

	db := cfg.Services[0]
	require.Equal(t, "db", db.Name)
	require.NotNil(t, db.HealthCheck)
	require.Equal(t, health.TCP{Port: 5432}, db.HealthCheck.Probe)
	require.Equal(t, health.DefaultRetries, db.HealthCheck.Retries)

	api := cfg.Services[1]
	require.Equal(t, []string{"db"}, api.DependsOn)
	require.Equal(t, "8080", api.Env["PORT"])
	require.Equal(t, time.Second, api.HealthCheck.Timeout)
	require.Equal(t, 3, api.HealthCheck.Retries)
	require.Equal(t, "/srv/app/backend", api.Dir("/srv/app"))
}

func TestLoad_JSONBareList(t *testing.T) {
	path := writeFile(t, "services.json", `[{"name":"a","command":"true"},{"name":"b","command":"true","depends_on":["a"]}]`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Services, 2)
	require.Nil(t, cfg.Services[0].HealthCheck)
}

func TestLoad_SniffsUnknownExtension(t *testing.T) {
	cfg, err := Load(writeFile(t, "harbor.conf", "- name: a\n  command: \"true\"\n"))
	require.NoError(t, err)
	require.Equal(t, "a", cfg.Services[0].Name)

	cfg, err = Load(writeFile(t, "harbor.cfg", `{"services":[{"name":"b","command":"true"}]}`))
	require.NoError(t, err)
	require.Equal(t, "b", cfg.Services[0].Name)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.True(t, errors.Is(err, ErrConfig))

	_, err = Load(writeFile(t, "bad.json", `{"services": [`))
	require.True(t, errors.Is(err, ErrConfig))

	_, err = Load(writeFile(t, "bad.yaml", "services:\n  - name: a\n    health_check:\n      kind: smoke\n"))
	require.True(t, errors.Is(err, ErrConfig))
	require.Contains(t, err.Error(), "smoke")

	var le *LoadError
	require.True(t, errors.As(err, &le))
}

func TestValidate_DuplicateNames(t *testing.T) {
	err := Validate(&File{Services: []Service{{Name: "a"}, {Name: "b"}, {Name: "a"}}})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
	require.Contains(t, err.Error(), "duplicate service name a")

	require.NoError(t, Validate(&File{Services: []Service{{Name: "a"}, {Name: "b"}}}))
}

func TestService_DirAndProbe(t *testing.T) {
	s := Service{Name: "x"}
	require.Equal(t, "/base", s.Dir("/base"))
	_, ok := s.Probe("/base")
	require.False(t, ok)

	s = Service{Cwd: "/abs/dir", HealthCheck: &health.Spec{Probe: health.Command{Command: "true"}}}
	require.Equal(t, "/abs/dir", s.Dir("/base"))
	spec, ok := s.Probe(s.Dir("/base"))
	require.True(t, ok)
	require.Equal(t, health.Command{Command: "true", Dir: "/abs/dir"}, spec.Probe)
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultConfigFilename)
	require.NoError(t, WriteSample(path, false))
	require.Error(t, WriteSample(path, false))
	require.NoError(t, WriteSample(path, true))

	cfg, err := LoadAndValidate(path)
	require.NoError(t, err)
	require.Len(t, cfg.Services, 1)
	require.Equal(t, health.KindHTTP, cfg.Services[0].HealthCheck.Kind())
}

func TestRedactEnv(t *testing.T) {
	out := RedactEnv(map[string]string{"DB_PASSWORD": "hunter2", "PORT": "80", "api_token": "x"})
	require.Equal(t, redactedValue, out["DB_PASSWORD"])
	require.Equal(t, redactedValue, out["api_token"])
	require.Equal(t, "80", out["PORT"])
	require.Nil(t, RedactEnv(nil))

	require.Equal(t, []string{"A=1", "B=2"}, EnvPairs(map[string]string{"B": "2", "A": "1"}))
}
