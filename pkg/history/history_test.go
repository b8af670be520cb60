package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/eduard-lt/Harbor/pkg/state"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DefaultPath(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordUpAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, s.RecordUp(ctx, Run{
		ID:        "run-1",
		BaseDir:   "/srv/app",
		StartedAt: started,
		Outcome:   OutcomeReady,
		Services: []state.ServiceRecord{
			{Name: "db", PID: 10, StdoutLog: "db.out", StderrLog: "db.err"},
			{Name: "api", PID: 11, StdoutLog: "api.out", StderrLog: "api.err"},
		},
	}))

	r, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, r)
	require.Equal(t, "/srv/app", r.BaseDir)
	require.True(t, started.Equal(r.StartedAt))
	require.True(t, r.StoppedAt.IsZero())
	require.Len(t, r.Services, 2)
	require.Equal(t, "db", r.Services[0].Name)
	require.Equal(t, 11, r.Services[1].PID)

	missing, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRecordDown(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordUp(ctx, Run{ID: "run-1", StartedAt: time.Now(), Outcome: OutcomeReady}))
	stopped := time.UnixMilli(1_800_000_000_000)
	require.NoError(t, s.RecordDown(ctx, "run-1", stopped))
	require.NoError(t, s.RecordDown(ctx, "run-1", time.Now()))
	require.NoError(t, s.RecordDown(ctx, "unknown", time.Now()))
	require.NoError(t, s.RecordDown(ctx, "", time.Now()))

	r, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, stopped.Equal(r.StoppedAt))
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordUp(ctx, Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute), Outcome: OutcomeReady}))
	}
	require.NoError(t, s.RecordUp(ctx, Run{ID: "d", StartedAt: base.Add(time.Hour), Outcome: OutcomeFailed, Error: "boom"}))

	runs, err := s.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, "d", runs[0].ID)
	require.Equal(t, "boom", runs[0].Error)
	require.Equal(t, "c", runs[1].ID)
	require.Equal(t, "b", runs[2].ID)
}

func TestRecordUp_RequiresID(t *testing.T) {
	s := openTestStore(t)
	require.Error(t, s.RecordUp(context.Background(), Run{}))
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.RecordUp(ctx, Run{ID: "x", StartedAt: time.Now(), Outcome: OutcomeReady}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}
