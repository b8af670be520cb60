package logjs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func load(t *testing.T, src string, opts Options) *Module {
	t.Helper()
	m, err := Load(context.Background(), "test.js", src, opts)
	require.NoError(t, err)
	return m
}

func TestModule_ParseFilterTransform(t *testing.T) {
	m := load(t, `
register({
  name: "t",
  parse(line, ctx) {
    const obj = log.parseJSON(line);
    if (!obj) return null;
    return { message: obj.msg, level: obj.level, trace_id: obj.trace_id };
  },
  filter(event, ctx) { return event.level !== "DEBUG"; },
  transform(event, ctx) { event.fields = { svc: ctx.service }; return event; },
});
`, Options{})
	ctx := context.Background()

	evs, err := m.ProcessLine(ctx, `{"msg":"hi","level":"info","trace_id":"abc"}`+"\n", "api", "stdout", 1)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	ev := evs[0]
	require.Equal(t, "INFO", ev.Level)
	require.Equal(t, "hi", ev.Message)
	require.Equal(t, "api", ev.Service)
	require.Equal(t, "stdout", ev.Stream)
	require.Equal(t, `{"msg":"hi","level":"info","trace_id":"abc"}`, ev.Raw)
	require.Equal(t, map[string]any{"svc": "api", "trace_id": "abc"}, ev.Fields)

	evs, err = m.ProcessLine(ctx, `{"msg":"no","level":"DEBUG"}`, "api", "stdout", 2)
	require.NoError(t, err)
	require.Empty(t, evs)

	evs, err = m.ProcessLine(ctx, `not json`, "api", "stdout", 3)
	require.NoError(t, err)
	require.Empty(t, evs)

	st := m.Stats()
	require.Equal(t, int64(3), st.LinesProcessed)
	require.Equal(t, int64(1), st.EventsEmitted)
	require.Equal(t, int64(2), st.LinesDropped)
}

func TestModule_DefaultParse(t *testing.T) {
	m := load(t, `register({ name: "grep", filter(e) { return e.message.indexOf("error") >= 0; } });`, Options{})
	ctx := context.Background()

	evs, err := m.ProcessLine(ctx, "an error happened", "web", "stderr", 1)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, "an error happened", evs[0].Message)

	evs, err = m.ProcessLine(ctx, `{"msg":"json error","port":8080}`, "web", "stderr", 2)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, "json error", evs[0].Message)
	require.Equal(t, int64(8080), evs[0].Fields["port"])

	evs, err = m.ProcessLine(ctx, "all good", "web", "stderr", 3)
	require.NoError(t, err)
	require.Empty(t, evs)
}

func TestModule_TransformExpandsAndDrops(t *testing.T) {
	m := load(t, `
register({
  name: "split",
  transform(e) {
    if (e.message === "") return null;
    return e.message.split(",");
  },
});
`, Options{})
	ctx := context.Background()

	evs, err := m.ProcessLine(ctx, "a,b,c", "s", "stdout", 1)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	require.Equal(t, "b", evs[1].Message)

	evs, err = m.ProcessLine(ctx, "", "s", "stdout", 2)
	require.NoError(t, err)
	require.Empty(t, evs)
}

func TestModule_Timestamps(t *testing.T) {
	m := load(t, `
register({
  name: "ts",
  parse(line) {
    if (line === "date") return { timestamp: new Date("2020-01-01T00:00:00Z"), message: "x" };
    return { timestamp: log.parseTimestamp(line), message: "y" };
  },
});
`, Options{})
	ctx := context.Background()
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	evs, err := m.ProcessLine(ctx, "date", "s", "stdout", 1)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.NotNil(t, evs[0].Timestamp)
	require.True(t, want.Equal(*evs[0].Timestamp))

	evs, err = m.ProcessLine(ctx, "2020-01-01T00:00:00Z", "s", "stdout", 2)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.True(t, want.Equal(*evs[0].Timestamp))
	require.Equal(t, "2020-01-01T00:00:00Z y", evs[0].String())
}

func TestModule_HookTimeout(t *testing.T) {
	m := load(t, `register({ name: "spin", parse(line) { while (true) {} } });`, Options{HookTimeout: 20 * time.Millisecond})

	evs, err := m.ProcessLine(context.Background(), "x", "s", "stdout", 1)
	require.NoError(t, err)
	require.Empty(t, evs)

	st := m.Stats()
	require.Equal(t, int64(1), st.HookTimeouts)
	require.Equal(t, int64(1), st.HookErrors)

	evs, err = m.ProcessLine(context.Background(), "y", "s", "stdout", 2)
	require.NoError(t, err)
	require.Empty(t, evs)
	require.Equal(t, int64(2), m.Stats().HookTimeouts)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(context.Background(), "a.js", `var x = 1;`, Options{})
	require.ErrorIs(t, err, ErrNoRegister)

	_, err = Load(context.Background(), "b.js", `register({ filter() { return true; } });`, Options{})
	require.Error(t, err)

	_, err = Load(context.Background(), "c.js", `register({ name: "x", filter: 3 });`, Options{})
	require.Error(t, err)

	_, err = Load(context.Background(), "d.js", `register(`, Options{})
	require.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f.js")
	require.NoError(t, os.WriteFile(p, []byte(`register({ name: "file" });`), 0o644))
	m, err := LoadFromFile(context.Background(), p, Options{})
	require.NoError(t, err)
	require.Equal(t, "file", m.Name())
	require.Equal(t, p, m.ScriptPath())
}

func TestEventString(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := &Event{Timestamp: &ts, Level: "WARN", Message: "disk low", Fields: map[string]any{"pct": 91, "dev": "sda"}}
	require.Equal(t, "2024-05-01T12:00:00Z [WARN] disk low dev=sda pct=91", ev.String())
	require.Equal(t, "plain", (&Event{Message: "plain"}).String())
}

func TestLineTime(t *testing.T) {
	got, ok := LineTime("2024-05-01T12:00:00Z server started")
	require.True(t, ok)
	require.True(t, got.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	got, ok = LineTime(`{"time":"2024-05-01T12:00:00Z","msg":"x"}`)
	require.True(t, ok)
	require.Equal(t, 2024, got.Year())

	_, ok = LineTime("no timestamp here")
	require.False(t, ok)
	_, ok = LineTime("")
	require.False(t, ok)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got, err := ParseSince("15m", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(-15*time.Minute), got)

	got, err = ParseSince("2024-04-30", now)
	require.NoError(t, err)
	require.Equal(t, 30, got.Day())

	_, err = ParseSince("whenever", now)
	require.Error(t, err)
}

func TestHelpers(t *testing.T) {
	m := load(t, `
register({
  name: "helpers",
  parse(line) {
    const kv = log.parseLogfmt(line);
    const named = log.namedCapture(line, /port=(?<port>\d+)/);
    return {
      message: kv.msg || line,
      level: log.levelOf(line),
      fields: { port: named ? named.port : null, bare: kv.ready === true, nested: log.field({a: {b: 2}}, "a.b") },
    };
  },
});
`, Options{})

	evs, err := m.ProcessLine(context.Background(), `level=warn msg="listening now" port=8080 ready`, "api", "stdout", 1)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	ev := evs[0]
	require.Equal(t, "WARN", ev.Level)
	require.Equal(t, "listening now", ev.Message)
	require.Equal(t, "8080", ev.Fields["port"])
	require.Equal(t, true, ev.Fields["bare"])
	require.Equal(t, int64(2), ev.Fields["nested"])
}
