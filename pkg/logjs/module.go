// Package logjs runs small JavaScript filters over service log lines.
//
// A script calls register({ name, parse?, filter?, transform? }). parse turns
// a raw line into an event object (a string is shorthand for {message}); when
// it is absent, JSON lines become events and anything else becomes a plain
// message. filter returns false to drop an event; transform may rewrite it,
// drop it (null), or expand it into an array.
package logjs

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoRegister  = errors.New("logjs: script did not call register()")
	ErrHookTimeout = errors.New("logjs: js hook timeout")
)

type Module struct {
	vm     *goja.Runtime
	opts   Options
	config *goja.Object

	scriptPath string
	name       string

	parseFn     goja.Callable
	filterFn    goja.Callable
	transformFn goja.Callable

	state *goja.Object
	stats Stats
}

func LoadFromFile(ctx context.Context, scriptPath string, opts Options) (*Module, error) {
	b, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, errors.Wrap(err, "read script")
	}
	return Load(ctx, scriptPath, string(b), opts)
}

// Load compiles and runs src, which must call register() exactly once.
func Load(_ context.Context, name string, src string, opts Options) (*Module, error) {
	m := &Module{
		vm:         goja.New(),
		opts:       opts,
		scriptPath: name,
	}
	m.state = m.vm.NewObject()
	enableConsole(m.vm)

	if err := m.vm.Set("register", func(config goja.Value) error {
		if m.config != nil {
			return errors.New("register() called more than once")
		}
		if isNullish(config) {
			return errors.New("register(config) requires a config object")
		}
		m.config = config.ToObject(m.vm)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "set register")
	}

	if _, err := m.vm.RunScript("logjs:helpers", helpersJS); err != nil {
		return nil, errors.Wrap(err, "load helpers")
	}
	if err := injectGoHelpers(m); err != nil {
		return nil, err
	}

	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, errors.Wrap(err, "compile script")
	}
	if _, err := m.vm.RunProgram(prog); err != nil {
		return nil, errors.Wrap(err, "run script")
	}
	if m.config == nil {
		return nil, ErrNoRegister
	}

	nameVal := m.config.Get("name")
	if isNullish(nameVal) || strings.TrimSpace(nameVal.String()) == "" {
		return nil, errors.New("register({ name: string, ... }): name is required")
	}
	m.name = nameVal.String()

	for key, dst := range map[string]*goja.Callable{
		"parse":     &m.parseFn,
		"filter":    &m.filterFn,
		"transform": &m.transformFn,
	} {
		v := m.config.Get(key)
		if isNullish(v) {
			continue
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return nil, errors.Errorf("register({ %s }): %s must be a function", key, key)
		}
		*dst = fn
	}

	return m, nil
}

func (m *Module) Name() string { return m.name }

func (m *Module) ScriptPath() string { return m.scriptPath }

func (m *Module) Stats() Stats { return m.stats }

// ProcessLine runs one line through the script. Hook failures drop the line
// and are counted in Stats; they are not returned as errors.
func (m *Module) ProcessLine(ctx context.Context, line string, service string, stream string, lineNumber int64) ([]*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.stats.LinesProcessed++
	raw := trimTrailingNewline(line)

	var parsed goja.Value
	if m.parseFn != nil {
		v, err := m.callHook(m.parseFn, m.vm.ToValue(raw), m.buildContext("parse", service, stream, lineNumber))
		if err != nil {
			m.hookFailed("parse", err, lineNumber)
			return nil, nil
		}
		parsed = v
	} else {
		parsed = m.defaultParse(raw)
	}

	eventLikes, err := m.ensureEventLikes(parsed)
	if err != nil {
		m.hookFailed("parse", err, lineNumber)
		return nil, nil
	}
	if len(eventLikes) == 0 {
		m.stats.LinesDropped++
		return nil, nil
	}

	out := make([]*Event, 0, len(eventLikes))
	for _, ev := range eventLikes {
		if m.filterFn != nil {
			keep, err := m.callHook(m.filterFn, ev, m.buildContext("filter", service, stream, lineNumber))
			if err != nil {
				m.hookFailed("filter", err, lineNumber)
				continue
			}
			if !keep.ToBoolean() {
				m.stats.LinesDropped++
				continue
			}
		}

		results := []goja.Value{ev}
		if m.transformFn != nil {
			v, err := m.callHook(m.transformFn, ev, m.buildContext("transform", service, stream, lineNumber))
			if err != nil {
				m.hookFailed("transform", err, lineNumber)
				continue
			}
			results, err = m.ensureEventLikes(v)
			if err != nil {
				m.hookFailed("transform", err, lineNumber)
				continue
			}
			if len(results) == 0 {
				m.stats.LinesDropped++
				continue
			}
		}

		for _, r := range results {
			e, err := m.normalizeEvent(r, service, stream, raw, lineNumber)
			if err != nil {
				m.hookFailed("transform", err, lineNumber)
				continue
			}
			m.stats.EventsEmitted++
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Module) hookFailed(hook string, err error, lineNumber int64) {
	m.stats.HookErrors++
	m.stats.LinesDropped++
	if isInterruptedByTimeout(err) {
		m.stats.HookTimeouts++
	}
	log.Debug().Err(err).Str("module", m.name).Str("hook", hook).Int64("line", lineNumber).Msg("log script hook failed")
}

func (m *Module) defaultParse(raw string) goja.Value {
	fn, ok := goja.AssertFunction(m.vm.Get("log").ToObject(m.vm).Get("parseJSON"))
	if ok {
		if v, err := fn(goja.Undefined(), m.vm.ToValue(raw)); err == nil && !isNullish(v) {
			if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Object" {
				if isNullish(obj.Get("message")) {
					if msg := obj.Get("msg"); !isNullish(msg) {
						_ = obj.Set("message", msg)
						_ = obj.Delete("msg")
					} else {
						_ = obj.Set("message", raw)
					}
				}
				return obj
			}
		}
	}
	return m.vm.ToValue(raw)
}

func trimTrailingNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

func (m *Module) buildContext(hook, service, stream string, lineNumber int64) *goja.Object {
	obj := m.vm.NewObject()
	_ = obj.Set("hook", hook)
	_ = obj.Set("service", service)
	_ = obj.Set("stream", stream)
	_ = obj.Set("lineNumber", lineNumber)
	_ = obj.Set("state", m.state)
	_ = obj.Set("now", m.newDate(time.Now().UTC()))
	return obj
}

func (m *Module) newDate(t time.Time) goja.Value {
	o, err := m.vm.New(m.vm.Get("Date"), m.vm.ToValue(t.UnixMilli()))
	if err != nil {
		return goja.Undefined()
	}
	return o
}

func (m *Module) callHook(fn goja.Callable, args ...goja.Value) (goja.Value, error) {
	if timeout := m.opts.HookTimeout; timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			m.vm.Interrupt(ErrHookTimeout)
		})
		defer timer.Stop()
		defer m.vm.ClearInterrupt()
	}
	return fn(goja.Undefined(), args...)
}

func (m *Module) ensureEventLikes(v goja.Value) ([]goja.Value, error) {
	if isNullish(v) {
		return nil, nil
	}
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Array" {
		n := int(obj.Get("length").ToInteger())
		out := make([]goja.Value, 0, n)
		for i := 0; i < n; i++ {
			ev, err := m.ensureEventLike(obj.Get(strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			if ev != nil {
				out = append(out, ev)
			}
		}
		return out, nil
	}
	ev, err := m.ensureEventLike(v)
	if err != nil || ev == nil {
		return nil, err
	}
	return []goja.Value{ev}, nil
}

func (m *Module) ensureEventLike(v goja.Value) (goja.Value, error) {
	if isNullish(v) {
		return nil, nil
	}
	if s, ok := v.Export().(string); ok {
		obj := m.vm.NewObject()
		_ = obj.Set("message", s)
		return obj, nil
	}
	if _, ok := v.(*goja.Object); !ok {
		return nil, errors.Errorf("event must be an object or string, got %T", v.Export())
	}
	return v, nil
}

func (m *Module) normalizeEvent(v goja.Value, service, stream, raw string, lineNumber int64) (*Event, error) {
	obj := v.ToObject(m.vm)
	ev := &Event{
		Message:    raw,
		Fields:     map[string]any{},
		Service:    service,
		Stream:     stream,
		Raw:        raw,
		LineNumber: lineNumber,
	}

	if lv := obj.Get("level"); !isNullish(lv) {
		ev.Level = strings.ToUpper(lv.String())
	}
	if mv := obj.Get("message"); !isNullish(mv) {
		ev.Message = mv.String()
	}
	if tv := obj.Get("timestamp"); !isNullish(tv) {
		ts, err := toTime(tv)
		if err != nil {
			return nil, err
		}
		ev.Timestamp = &ts
	}
	if fv := obj.Get("fields"); !isNullish(fv) {
		if fields, ok := fv.Export().(map[string]any); ok {
			for k, val := range fields {
				ev.Fields[k] = val
			}
		}
	}
	if exported, ok := obj.Export().(map[string]any); ok {
		for k, val := range exported {
			switch k {
			case "timestamp", "level", "message", "fields", "service", "stream", "raw", "lineNumber":
				continue
			}
			if _, exists := ev.Fields[k]; !exists {
				ev.Fields[k] = val
			}
		}
	}
	return ev, nil
}

func toTime(v goja.Value) (time.Time, error) {
	switch x := v.Export().(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		t, err := dateparse.ParseAny(strings.TrimSpace(x))
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "parse timestamp %q", x)
		}
		return t.UTC(), nil
	case int64:
		return fromEpoch(x), nil
	case float64:
		return fromEpoch(int64(x)), nil
	default:
		return time.Time{}, errors.Errorf("unsupported timestamp %v", x)
	}
}

// fromEpoch treats values below 1e12 as seconds and the rest as
// milliseconds.
func fromEpoch(i int64) time.Time {
	if i > 0 && i < 1_000_000_000_000 {
		return time.Unix(i, 0).UTC()
	}
	return time.UnixMilli(i).UTC()
}

func enableConsole(vm *goja.Runtime) {
	obj := vm.NewObject()
	_ = obj.Set("log", func(call goja.FunctionCall) goja.Value {
		log.Info().Str("source", "js").Msg(joinArgs(call.Arguments))
		return goja.Undefined()
	})
	_ = obj.Set("warn", func(call goja.FunctionCall) goja.Value {
		log.Warn().Str("source", "js").Msg(joinArgs(call.Arguments))
		return goja.Undefined()
	})
	_ = obj.Set("error", func(call goja.FunctionCall) goja.Value {
		log.Error().Str("source", "js").Msg(joinArgs(call.Arguments))
		return goja.Undefined()
	})
	_ = vm.Set("console", obj)
}

func joinArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a.Export()))
	}
	return strings.Join(parts, " ")
}

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

func isInterruptedByTimeout(err error) bool {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if v, ok := interrupted.Value().(error); ok && errors.Is(v, ErrHookTimeout) {
			return true
		}
	}
	return errors.Is(err, ErrHookTimeout)
}

func injectGoHelpers(m *Module) error {
	logVal := m.vm.Get("log")
	if isNullish(logVal) {
		return errors.New("logjs: helpers did not define globalThis.log")
	}
	logObj := logVal.ToObject(m.vm)

	// log.parseTimestamp(value, layouts?) returns a Date or null. Layouts are
	// Go time layouts tried before dateparse.
	return errors.Wrap(logObj.Set("parseTimestamp", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 || isNullish(call.Arguments[0]) {
			return goja.Null()
		}
		arg := call.Arguments[0]
		if s, ok := arg.Export().(string); ok && len(call.Arguments) >= 2 && !isNullish(call.Arguments[1]) {
			if layouts, ok := call.Arguments[1].Export().([]any); ok {
				for _, it := range layouts {
					layout, _ := it.(string)
					if layout == "" {
						continue
					}
					if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
						return m.newDate(t.UTC())
					}
				}
			}
		}
		t, err := toTime(arg)
		if err != nil {
			return goja.Null()
		}
		return m.newDate(t)
	}), "set log.parseTimestamp")
}
