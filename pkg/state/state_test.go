package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRead_MissingDocumentIsAbsent(t *testing.T) {
	st, err := Read(filepath.Join(t.TempDir(), "nope", "state.json"))
	require.NoError(t, err)
	require.Nil(t, st)
}

func TestRead_CorruptDocumentIsStateError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	st, err := Read(path)
	require.Nil(t, st)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrState))

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, path, pe.Path)
}

func TestRead_OutOfRangePIDIsStateError(t *testing.T) {
	for _, doc := range []string{
		`{"services":[{"name":"ghost","pid":4294967297,"stdout_log":"o","stderr_log":"e"}]}`,
		`{"services":[{"name":"ghost","pid":-1,"stdout_log":"o","stderr_log":"e"}]}`,
	} {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

		st, err := Read(path)
		require.Nil(t, st)
		require.True(t, errors.Is(err, ErrState))
		require.Contains(t, err.Error(), "ghost")
	}
}

func TestWriteRead_RoundTripKeepsOrder(t *testing.T) {
	path := DefaultPath(t.TempDir())

	in := &State{
		RunID: "run-1",
		Services: []ServiceRecord{
			{Name: "db", PID: 101, StdoutLog: "/l/db.out.log", StderrLog: "/l/db.err.log"},
			{Name: "api", PID: 102, StdoutLog: "/l/api.out.log", StderrLog: "/l/api.err.log", CreateTime: 1700000000000},
		},
	}
	require.NoError(t, Write(path, in))

	out, err := Read(path)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, "run-1", out.RunID)
	require.Len(t, out.Services, 2)
	require.Equal(t, "db", out.Services[0].Name)
	require.Equal(t, "api", out.Services[1].Name)
	require.Equal(t, int64(1700000000000), out.Services[1].CreateTime)
}

func TestWrite_DocumentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Write(path, &State{Services: []ServiceRecord{
		{Name: "web", PID: 7, StdoutLog: "o", StderrLog: "e"},
	}}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	services, ok := doc["services"].([]any)
	require.True(t, ok)
	require.Len(t, services, 1)
	svc := services[0].(map[string]any)
	require.Equal(t, "web", svc["name"])
	require.Equal(t, float64(7), svc["pid"])
	require.Equal(t, "o", svc["stdout_log"])
	require.Equal(t, "e", svc["stderr_log"])
}

func TestWrite_OverwritesPriorContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Write(path, &State{Services: []ServiceRecord{{Name: "a"}, {Name: "b"}}}))
	require.NoError(t, Write(path, &State{Services: []ServiceRecord{{Name: "c"}}}))

	st, err := Read(path)
	require.NoError(t, err)
	require.Len(t, st.Services, 1)
	require.Equal(t, "c", st.Services[0].Name)
}

func TestRemove_IgnoresMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Remove(path))
	require.NoError(t, Write(path, &State{}))
	require.True(t, Exists(path))
	require.NoError(t, Remove(path))
	require.False(t, Exists(path))
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svc.out.log")
	var b strings.Builder
	for _, l := range []string{"one", "two", "three", "four"} {
		b.WriteString(l + "\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	lines, err := TailLines(path, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"three", "four"}, lines)

	lines, err = TailLines(path, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three", "four"}, lines)

	_, err = TailLines(filepath.Join(t.TempDir(), "missing.log"), 2)
	require.Error(t, err)
}
