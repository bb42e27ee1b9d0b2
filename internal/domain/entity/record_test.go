package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alumnoId", "alumno_id"},
		{"lastPracticedAt", "last_practiced_at"},
		{"XPTotal", "xp_total"},
		{"alumno_id", "alumno_id"},
		{"skill", "skill"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CanonicalKey(tc.in), tc.in)
	}
}

func TestCamelKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alumno_id", "alumnoId"},
		{"last_practiced_at", "lastPracticedAt"},
		{"_hidden", "hidden"},
		{"skill", "skill"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CamelKey(tc.in), tc.in)
		assert.Equal(t, CanonicalKey(tc.want), CanonicalKey(CamelKey(tc.in)), tc.in)
	}
}

func TestCanonicalize_SnakeSpellingWins(t *testing.T) {
	got := Canonicalize(Record{"statusSince": "old", "status_since": "new", "alumnoId": "s1"})
	assert.Equal(t, Record{"status_since": "new", "alumno_id": "s1"}, got)
}
