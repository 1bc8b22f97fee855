package configutil

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind is the value type a provider setting must decode to.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindDuration
	KindStringList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "number"
	case KindBool:
		return "boolean"
	case KindDuration:
		return "duration such as 30s"
	case KindStringList:
		return "list of strings"
	default:
		return "any"
	}
}

// Schema describes the settings map of one vendor. Keys named in Types are
// allowed even when they are not listed in Optional.
type Schema struct {
	Required     []string
	Optional     []string
	Types        map[string]Kind
	AllowUnknown bool
}

// ValidateSettings checks a vendor settings map. Keys are matched without
// regard to case, underscores or hyphens. Values arrive as YAML scalars or
// as strings after ${VAR} expansion, so numeric and boolean strings pass
// the same checks the decoder applies.
func ValidateSettings(input map[string]any, schema Schema) error {
	allowed := make(map[string]string)
	for _, k := range schema.Optional {
		allowed[normalizeKey(k)] = k
	}
	for k := range schema.Types {
		allowed[normalizeKey(k)] = k
	}
	required := make(map[string]string, len(schema.Required))
	for _, k := range schema.Required {
		required[normalizeKey(k)] = k
		allowed[normalizeKey(k)] = k
	}
	kinds := make(map[string]Kind, len(schema.Types))
	for k, kind := range schema.Types {
		kinds[normalizeKey(k)] = kind
	}

	var missing, unknown, invalid []string
	seen := make(map[string]bool, len(input))
	for k, v := range input {
		nk := normalizeKey(k)
		seen[nk] = true
		if _, ok := allowed[nk]; !ok {
			if !schema.AllowUnknown {
				unknown = append(unknown, k)
			}
			continue
		}
		if reqKey, ok := required[nk]; ok && isEmptyValue(v) {
			missing = append(missing, reqKey)
			continue
		}
		if kind, ok := kinds[nk]; ok && v != nil && !matchesKind(v, kind) {
			invalid = append(invalid, fmt.Sprintf("%s (want %s)", k, kind))
		}
	}
	for nk, reqKey := range required {
		if !seen[nk] {
			missing = append(missing, reqKey)
		}
	}

	if len(missing) == 0 && len(unknown) == 0 && len(invalid) == 0 {
		return nil
	}
	var parts []string
	for _, group := range []struct {
		label string
		keys  []string
	}{{"missing", missing}, {"unknown", unknown}, {"invalid", invalid}} {
		if len(group.keys) == 0 {
			continue
		}
		sort.Strings(group.keys)
		parts = append(parts, group.label+": "+strings.Join(group.keys, ", "))
	}
	return errors.New(strings.Join(parts, "; "))
}

func matchesKind(v any, kind Kind) bool {
	switch kind {
	case KindString:
		switch v.(type) {
		case string, bool, int, int64, float64:
			return true
		}
		return false
	case KindInt:
		switch val := v.(type) {
		case int, int32, int64, uint, uint32, uint64:
			return true
		case float64:
			return val == float64(int64(val))
		case string:
			_, err := strconv.Atoi(strings.TrimSpace(val))
			return err == nil
		}
		return false
	case KindFloat:
		switch val := v.(type) {
		case int, int32, int64, uint, uint32, uint64, float32, float64:
			return true
		case string:
			_, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			return err == nil
		}
		return false
	case KindBool:
		switch val := v.(type) {
		case bool:
			return true
		case string:
			_, err := strconv.ParseBool(strings.TrimSpace(val))
			return err == nil
		}
		return false
	case KindDuration:
		// A bare number would decode as nanoseconds, which is never what a
		// timeout in a config file means.
		switch val := v.(type) {
		case time.Duration:
			return true
		case string:
			_, err := time.ParseDuration(strings.TrimSpace(val))
			return err == nil
		}
		return false
	case KindStringList:
		switch val := v.(type) {
		case string, []string:
			return true
		case []any:
			for _, item := range val {
				if !matchesKind(item, KindString) {
					return false
				}
			}
			return true
		}
		return false
	default:
		return true
	}
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
