package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eduard-lt/Harbor/pkg/health"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

const DefaultConfigFilename = "harbor.config.yaml"

var (
	ErrConfig     = errors.New("config error")
	ErrValidation = errors.New("validation error")
)

// Service describes one process to launch. It is never modified after Load.
type Service struct {
	Name        string            `json:"name"`
	Command     string            `json:"command"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	DependsOn   []string          `json:"depends_on,omitempty"`
	HealthCheck *health.Spec      `json:"health_check,omitempty"`
}

// Dir is the working directory of s relative to baseDir. Absolute cwd values
// are used as is.
func (s Service) Dir(baseDir string) string {
	if s.Cwd == "" {
		return baseDir
	}
	if filepath.IsAbs(s.Cwd) {
		return s.Cwd
	}
	return filepath.Join(baseDir, s.Cwd)
}

// Probe returns the readiness spec of s, with command probes bound to dir.
func (s Service) Probe(dir string) (health.Spec, bool) {
	if s.HealthCheck == nil {
		return health.Spec{}, false
	}
	return s.HealthCheck.InDir(dir), true
}

type File struct {
	Services []Service `json:"services"`
}

type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrConfig }

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func DefaultPath(baseDir string) string {
	return filepath.Join(baseDir, DefaultConfigFilename)
}

// Load reads a services document. The format follows the extension
// (.yaml, .yml, .json); anything else is tried as YAML, then JSON. The root
// is either {services: [...]} or a bare list of services.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: errors.Wrap(err, "read config")}
	}
	cfg, err := Parse(b, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse decodes a services document. ext selects the format as in Load.
func Parse(b []byte, ext string) (*File, error) {
	switch ext {
	case ".yaml", ".yml":
		return parseYAML(b)
	case ".json":
		return parseJSON(b)
	default:
		cfg, err := parseYAML(b)
		if err == nil {
			return cfg, nil
		}
		if cfg, jerr := parseJSON(b); jerr == nil {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "unsupported config format")
	}
}

func parseYAML(b []byte) (*File, error) {
	j, err := yaml.YAMLToJSON(b)
	if err != nil {
		return nil, errors.Wrap(err, "parse yaml")
	}
	return decode(j)
}

func parseJSON(b []byte) (*File, error) {
	if !json.Valid(b) {
		return nil, errors.New("parse json: invalid document")
	}
	return decode(b)
}

func decode(j []byte) (*File, error) {
	j = bytes.TrimSpace(j)
	if len(j) == 0 || bytes.Equal(j, []byte("null")) {
		return nil, errors.New("empty config document")
	}

	var cfg File
	if j[0] == '[' {
		if err := json.Unmarshal(j, &cfg.Services); err != nil {
			return nil, errors.Wrap(err, "decode services")
		}
	} else {
		if err := json.Unmarshal(j, &cfg); err != nil {
			return nil, errors.Wrap(err, "decode services")
		}
	}
	if cfg.Services == nil {
		cfg.Services = []Service{}
	}
	return &cfg, nil
}

// Validate checks that every service has a name and that names are unique.
func Validate(cfg *File) error {
	if cfg == nil {
		return &ValidationError{Problems: []string{"no config"}}
	}
	var problems []string
	seen := map[string]struct{}{}
	for i, s := range cfg.Services {
		if strings.TrimSpace(s.Name) == "" {
			problems = append(problems, fmt.Sprintf("service #%d has no name", i+1))
			continue
		}
		if _, ok := seen[s.Name]; ok {
			problems = append(problems, fmt.Sprintf("duplicate service name %s", s.Name))
			continue
		}
		seen[s.Name] = struct{}{}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// LoadAndValidate is Load followed by Validate.
func LoadAndValidate(path string) (*File, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

const sample = `services:
  - name: web
    command: "node server.js"
    cwd: "."
    depends_on: []
    health_check:
      kind: http
      url: "http://localhost:3000/health"
      timeout_ms: 5000
      retries: 10
`

// WriteSample writes a starter services document to path. An existing file
// is left alone unless force is set.
func WriteSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.Errorf("%s already exists", path)
		}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "mkdir config dir")
		}
	}
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return errors.Wrap(err, "write sample config")
	}
	return nil
}
