// Package organizer sorts files out of a downloads directory into per-rule
// target directories, once or continuously.
package organizer

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFilename   = "harbor.downloads.yaml"
	DefaultMinAgeSecs = 5
)

func DefaultPath(baseDir string) string {
	return filepath.Join(baseDir, DefaultFilename)
}

type Config struct {
	DownloadDir string  `yaml:"download_dir"`
	MinAgeSecs  *uint64 `yaml:"min_age_secs,omitempty"`
	Rules       []Rule  `yaml:"rules"`
}

// Rule matches a file when every condition it sets holds. Unset
// conditions match anything.
type Rule struct {
	Name          string   `yaml:"name"`
	Extensions    []string `yaml:"extensions,omitempty"`
	Pattern       string   `yaml:"pattern,omitempty"`
	MinSizeBytes  *uint64  `yaml:"min_size_bytes,omitempty"`
	MaxSizeBytes  *uint64  `yaml:"max_size_bytes,omitempty"`
	TargetDir     string   `yaml:"target_dir"`
	CreateSymlink bool     `yaml:"create_symlink,omitempty"`

	re *regexp.Regexp
}

// LoadConfig reads a YAML organizer config and expands environment
// references in download_dir and every target_dir.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse organizer yaml")
	}
	cfg.DownloadDir = ExpandEnv(cfg.DownloadDir)
	for i := range cfg.Rules {
		cfg.Rules[i].TargetDir = ExpandEnv(cfg.Rules[i].TargetDir)
	}
	if err := cfg.compile(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) compile() error {
	if c.DownloadDir == "" {
		return errors.New("download_dir is required")
	}
	for i := range c.Rules {
		r := &c.Rules[i]
		if r.TargetDir == "" {
			return errors.Errorf("rule %q: target_dir is required", r.Name)
		}
		if r.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return errors.Wrapf(err, "rule %q: pattern", r.Name)
		}
		r.re = re
	}
	return nil
}

func (c *Config) minAge() uint64 {
	if c.MinAgeSecs == nil {
		return DefaultMinAgeSecs
	}
	return *c.MinAgeSecs
}

// ExpandEnv replaces %VAR% and then $VAR / ${VAR} references. Unset
// variables expand to the empty string.
func ExpandEnv(s string) string {
	var b strings.Builder
	for {
		start := strings.IndexByte(s, '%')
		if start < 0 {
			break
		}
		end := strings.IndexByte(s[start+1:], '%')
		if end < 0 {
			break
		}
		b.WriteString(s[:start])
		b.WriteString(os.Getenv(s[start+1 : start+1+end]))
		s = s[start+end+2:]
	}
	b.WriteString(s)
	return os.ExpandEnv(b.String())
}
