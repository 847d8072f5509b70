package state

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/microbs-io/microbs/pkg/dotpath"
)

// EnvLines renders the persistent state as sorted KEY=VALUE lines with keys
// in UPPER_SNAKE_CASE.
func (s *Store) EnvLines() []string {
	values := s.Persistent()
	lines := make([]string, 0, len(values))
	for _, k := range dotpath.Keys(values) {
		v := values[k]
		if v == nil {
			v = ""
		}
		lines = append(lines, fmt.Sprintf("%s=%v", dotpath.EnvName(k), v))
	}
	return lines
}

// WriteEnvFile writes EnvLines to path for a single secret creation.
func (s *Store) WriteEnvFile(path string) error {
	content := strings.Join(s.EnvLines(), "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}

// ParseEnvFile reads KEY=VALUE lines as written by WriteEnvFile. Values keep
// everything after the first '='.
func ParseEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer f.Close()
	out := map[string]string{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			return nil, fmt.Errorf("malformed env line %q", line)
		}
		out[line[:i]] = line[i+1:]
	}
	return out, sc.Err()
}
