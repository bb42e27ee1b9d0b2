// Package repository maps domain types onto entity.Store records.
//
// Rows the engine creates itself get deterministic IDs derived from their
// natural key, so two racing creators collide on the primary key instead of
// producing duplicates. Rows written by other clients keep whatever ID they had.
package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/entity"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/pkg/timeutil"
)

// naturalID builds a deterministic record ID from key parts.
func naturalID(prefix string, parts ...string) string {
	return prefix + ":" + strings.Join(parts, ":")
}

// timeValue stores zero times as null.
func timeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// optionalFloat returns nil for absent or blank values.
func optionalFloat(rec entity.Record, key string) *float64 {
	v, ok := rec.FloatOK(key)
	if !ok {
		return nil
	}
	return &v
}

// firstTime returns the first non-zero time among keys.
func firstTime(rec entity.Record, keys ...string) time.Time {
	for _, k := range keys {
		if t := rec.Time(k); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func encodeWeeks(weeks []time.Time) []string {
	out := make([]string, 0, len(weeks))
	for _, w := range weeks {
		out = append(out, timeutil.FormatDateStr(w))
	}
	return out
}

// decodeWeeks accepts ISO dates and full timestamps. Unparsable values are dropped.
func decodeWeeks(values []string) []time.Time {
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if len(v) > len(timeutil.FormatDate) {
			v = v[:len(timeutil.FormatDate)]
		}
		t, err := timeutil.ParseDate(v)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// createConflict turns a duplicate natural ID into a lost race the caller can retry.
func createConflict(op string, err error) error {
	if errors.Is(err, shared.ErrAlreadyExists) {
		return shared.WrapError("store", op, shared.ErrConcurrentModification, "row created concurrently", err)
	}
	return err
}
