package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/microbs-io/microbs/pkg/dotpath"
)

//go:embed config.reference.yaml
var reference []byte

// Reference returns the annotated reference configuration written by init.
func Reference() []byte { return reference }

// Required are the keys every mutating command needs.
var Required = []string{"deployment.name", "deployment.plugins.kubernetes"}

// NormallyRequired are keys most deployments set; validate warns when absent.
var NormallyRequired = []string{
	"deployment.app",
	"deployment.plugins.observability",
	"otlp.receiver.host",
	"otlp.receiver.port",
}

// Error is returned when configuration is missing, unparseable or incomplete.
type Error struct {
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if errors.Is(e.Err, fs.ErrNotExist) {
		return fmt.Sprintf("no configuration file at specified path: %s", e.Path)
	}
	return fmt.Sprintf("%s config %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config is an immutable, flattened snapshot of config.yaml.
type Config struct {
	path   string
	values map[string]any
}

// Load reads YAML configuration from path and overlays secrets.env when
// present next to it.
func Load(paths Paths) (*Config, error) {
	content, err := Read(paths.Config)
	if err != nil {
		return nil, err
	}
	values, err := Parse(content)
	if err != nil {
		return nil, &Error{Path: paths.Config, Op: "parse", Err: err}
	}

	// Tokens may live in secrets.env to keep them out of config.yaml.
	secrets, err := LoadSecretsEnv(paths.Secrets)
	if err != nil {
		return nil, &Error{Path: paths.Secrets, Op: "read", Err: err}
	}
	for k, v := range secrets {
		values[k] = v
	}
	return &Config{path: paths.Config, values: values}, nil
}

// Read returns the raw config file.
func Read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Path: path, Op: "open", Err: err}
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, &Error{Path: path, Op: "read", Err: err}
	}
	return content, nil
}

// Parse decodes YAML and flattens it to dotted keys.
func Parse(content []byte) (map[string]any, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, err
	}
	return dotpath.Flatten(raw), nil
}

// New builds a snapshot from already flattened values. Used by tests and
// tooling that do not read from disk.
func New(values map[string]any) *Config {
	c := &Config{values: make(map[string]any, len(values))}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

func (c *Config) Path() string { return c.path }

func (c *Config) Get(path string) (any, bool) {
	v, ok := c.values[path]
	return v, ok
}

// String returns the value at path formatted as a string, or "" if unset.
func (c *Config) String(path string) string {
	v, ok := c.values[path]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the value at path as an int.
func (c *Config) Int(path string) (int, error) {
	s := strings.TrimSpace(c.String(path))
	if s == "" {
		return 0, fmt.Errorf("%s is not set", path)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s expected an integer but found: %s", path, s)
	}
	return n, nil
}

// Values returns a copy of the flattened configuration.
func (c *Config) Values() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Missing returns the keys among paths that have no value.
func (c *Config) Missing(paths ...string) []string {
	var missing []string
	for _, p := range paths {
		if c.String(p) == "" {
			missing = append(missing, p)
		}
	}
	return missing
}

// Require fails with an *Error naming every missing key.
func (c *Config) Require(paths ...string) error {
	if missing := c.Missing(paths...); len(missing) > 0 {
		return &Error{Path: c.path, Op: "validate", Err: fmt.Errorf("missing required keys: %s", strings.Join(missing, ", "))}
	}
	return nil
}
