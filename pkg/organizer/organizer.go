package organizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var partialSuffixes = []string{".crdownload", ".part", ".tmp", ".download"}

// Action records one file moved by MoveOnce.
type Action struct {
	From         string `json:"from"`
	To           string `json:"to"`
	Rule         string `json:"rule"`
	Symlinked    bool   `json:"symlinked,omitempty"`
	SymlinkError string `json:"symlink_error,omitempty"`
}

type Organizer struct {
	cfg *Config
	now func() time.Time
}

func New(cfg *Config) (*Organizer, error) {
	if cfg == nil {
		return nil, errors.New("missing config")
	}
	if err := cfg.compile(); err != nil {
		return nil, err
	}
	return &Organizer{cfg: cfg, now: time.Now}, nil
}

func (o *Organizer) Rules() []Rule { return o.cfg.Rules }

func (o *Organizer) DownloadDir() string { return o.cfg.DownloadDir }

// MoveOnce applies the first matching rule to every settled regular file
// directly under the download directory.
func (o *Organizer) MoveOnce() ([]Action, error) {
	entries, err := os.ReadDir(o.cfg.DownloadDir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", o.cfg.DownloadDir)
	}
	minAge := time.Duration(o.cfg.minAge()) * time.Second
	now := o.now()

	var actions []Action
	for _, e := range entries {
		// DirEntry.Type does not follow symlinks.
		if !e.Type().IsRegular() || isPartial(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < minAge {
			continue
		}

		rule := o.match(info)
		if rule == nil {
			continue
		}
		if err := os.MkdirAll(rule.TargetDir, 0o755); err != nil {
			return actions, errors.Wrapf(err, "create %s", rule.TargetDir)
		}

		from := filepath.Join(o.cfg.DownloadDir, e.Name())
		to := uniqueTarget(filepath.Join(rule.TargetDir, e.Name()))
		if err := os.Rename(from, to); err != nil {
			return actions, errors.Wrapf(err, "move %s -> %s", from, to)
		}

		a := Action{From: from, To: to, Rule: rule.Name}
		if rule.CreateSymlink {
			if err := os.Symlink(to, from); err != nil {
				a.SymlinkError = err.Error()
			} else {
				a.Symlinked = true
			}
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func (o *Organizer) match(info os.FileInfo) *Rule {
	for i := range o.cfg.Rules {
		if o.cfg.Rules[i].matches(info.Name(), uint64(info.Size())) {
			return &o.cfg.Rules[i]
		}
	}
	return nil
}

func (r *Rule) matches(name string, size uint64) bool {
	if len(r.Extensions) > 0 {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		found := false
		for _, x := range r.Extensions {
			if strings.ToLower(strings.TrimPrefix(x, ".")) == ext {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.re != nil && !r.re.MatchString(name) {
		return false
	}
	if r.MinSizeBytes != nil && size < *r.MinSizeBytes {
		return false
	}
	if r.MaxSizeBytes != nil && size > *r.MaxSizeBytes {
		return false
	}
	return true
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// uniqueTarget returns path, or "stem (n).ext" for the smallest n that is
// not taken.
func uniqueTarget(path string) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem, ext = base, ""
	}
	for i := 1; ; i++ {
		p := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Lstat(p); os.IsNotExist(err) {
			return p
		}
	}
}

// Run calls MoveOnce on every tick and on every change fsnotify reports in
// the download directory, passing non-empty results to fn. It returns when
// ctx is done.
func (o *Organizer) Run(ctx context.Context, interval time.Duration, fn func([]Action)) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "new watcher")
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(o.cfg.DownloadDir); err != nil {
		return errors.Wrapf(err, "watch %s", o.cfg.DownloadDir)
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	pass := func() {
		actions, err := o.MoveOnce()
		if err != nil {
			log.Warn().Err(err).Str("dir", o.cfg.DownloadDir).Msg("organize pass failed")
		}
		if len(actions) > 0 && fn != nil {
			fn(actions)
		}
	}

	pass()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			pass()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				log.Debug().Str("event", ev.String()).Msg("download dir changed")
				pass()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")
		}
	}
}

// CleanupSymlinks removes symlinks in the download directory that point
// into one of the rules' target directories. It returns how many it
// removed.
func (o *Organizer) CleanupSymlinks() (int, error) {
	base := o.cfg.DownloadDir
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "list %s", base)
	}

	n := 0
	for _, e := range entries {
		if e.Type()&os.ModeSymlink == 0 {
			continue
		}
		p := filepath.Join(base, e.Name())
		target, err := os.Readlink(p)
		if err != nil {
			continue
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(base, target)
		}
		if !o.ownsPath(target) {
			continue
		}
		if err := os.Remove(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("remove symlink")
			continue
		}
		n++
	}
	return n, nil
}

func (o *Organizer) ownsPath(p string) bool {
	p = filepath.Clean(p)
	for _, r := range o.cfg.Rules {
		dir := filepath.Clean(r.TargetDir)
		if p == dir || strings.HasPrefix(p, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
