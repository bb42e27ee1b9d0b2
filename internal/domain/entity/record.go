package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Record is a single stored row with canonical snake_case keys.
type Record map[string]any

// ID returns the record identifier.
func (r Record) ID() string {
	return r.String(KeyID)
}

// Version returns the optimistic-concurrency version, 0 for unsaved records.
func (r Record) Version() int64 {
	return int64(r.Float(KeyVersion))
}

// Has reports whether key is present with a non-nil value.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// String returns the value at key as a string ("" when absent).
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Float returns the value at key as a float64 (0 when absent or unparsable).
func (r Record) Float(key string) float64 {
	f, _ := r.FloatOK(key)
	return f
}

// FloatOK returns the value at key as a float64 and whether one was present.
// Blank strings and NaN count as absent.
func (r Record) FloatOK(key string) (float64, bool) {
	var f float64
	switch v := r[key].(type) {
	case nil:
		return 0, false
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Int returns the value at key truncated to an int.
func (r Record) Int(key string) int {
	return int(r.Float(key))
}

// Bool returns the value at key as a bool. Strings "true"/"1" are accepted.
func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}

// Time returns the value at key as a time, zero when absent or unparsable.
// Accepts time.Time, RFC3339 strings and plain YYYY-MM-DD dates.
func (r Record) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v == nil {
			return time.Time{}
		}
		return *v
	case string:
		return parseTime(v)
	default:
		return time.Time{}
	}
}

// Strings returns the value at key as a string slice.
func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ══════════════════════════════════════════════════════════════════════════════
// KEY NORMALIZATION
// ══════════════════════════════════════════════════════════════════════════════

// CanonicalKey converts a camelCase or PascalCase key to snake_case.
// Keys that are already snake_case are returned unchanged.
func CanonicalKey(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	runes := []rune(key)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && runes[i-1] != '_' && (prevLower || (nextLower && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CamelKey is the inverse of CanonicalKey for snake_case keys: alumno_id
// becomes alumnoId. Keys without underscores are returned unchanged.
func CamelKey(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}
	var b strings.Builder
	b.Grow(len(key))
	upper := false
	for _, r := range key {
		if r == '_' {
			upper = b.Len() > 0
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Canonicalize returns a copy of rec with every key in canonical form.
// When both spellings of a key are present the snake_case value wins.
func Canonicalize(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		ck := CanonicalKey(k)
		if ck != k {
			if _, exists := rec[ck]; exists {
				continue
			}
		}
		out[ck] = v
	}
	return out
}

// CanonicalWhere normalizes predicate keys the same way as record keys.
func CanonicalWhere(w Where) Where {
	out := make(Where, len(w))
	for k, v := range w {
		out[CanonicalKey(k)] = v
	}
	return out
}
