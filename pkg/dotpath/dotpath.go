// Package dotpath converts between nested maps and flat maps keyed by
// dotted paths ("a.b.c").
package dotpath

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Flatten converts a nested structure to a flat map keyed by dotted paths.
// Keys that already contain dots are kept as-is, so
// {"a": {"b": {"c.d": "x"}}} becomes {"a.b.c.d": "x"}. Slices are flattened
// by index. Empty maps, empty slices and nil values produce no keys.
func Flatten(in map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range in {
		flattenInto(out, k, v)
	}
	return out
}

// FlattenValue flattens v under prefix. A non-nil scalar v yields a single
// key.
func FlattenValue(prefix string, v any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, prefix, v)
	return out
}

func flattenInto(out map[string]any, prefix string, v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			flattenInto(out, join(prefix, k), child)
		}
	case map[any]any:
		for k, child := range t {
			flattenInto(out, join(prefix, fmt.Sprint(k)), child)
		}
	case []any:
		for i, child := range t {
			flattenInto(out, join(prefix, strconv.Itoa(i)), child)
		}
	case []string:
		for i, child := range t {
			out[join(prefix, strconv.Itoa(i))] = child
		}
	case nil:
	default:
		out[prefix] = v
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Merge copies every key of src over dst and returns dst. Both maps are
// expected to be flat, so this is a deep merge of the nested structures they
// represent with src taking precedence on collision.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Keys returns the keys of m in sorted order.
func Keys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasPrefix reports whether key equals path or lies beneath it.
func HasPrefix(key, path string) bool {
	return key == path || strings.HasPrefix(key, path+".")
}

// Sub returns the keys of m beneath path with path stripped. The result is
// flat.
func Sub(m map[string]any, path string) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		if strings.HasPrefix(k, path+".") {
			out[strings.TrimPrefix(k, path+".")] = v
		}
	}
	return out
}

// EnvName converts a dotted path to an environment variable name:
// "plugins.slack.token" becomes "PLUGINS_SLACK_TOKEN".
func EnvName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
