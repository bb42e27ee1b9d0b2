// Package criteria compares the key criteria of two adjacent levels.
//
// Lists are small (tens of items per skill), so the comparison is a plain
// nested scan per skill group.
package criteria

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Item is one criterion as seen by the matcher.
type Item struct {
	ID          string `json:"id"`
	Skill       string `json:"skill"`
	Description string `json:"description"`
}

// Pair links a criterion of the newer level to one of the previous level.
type Pair struct {
	Current  Item `json:"current"`
	Previous Item `json:"previous"`
}

// SkillDiff is the classification of one skill group.
type SkillDiff struct {
	Skill     string `json:"skill"`
	Continued []Pair `json:"continued"`
	Evolved   []Pair `json:"evolved"`
	New       []Item `json:"new"`
	Removed   []Item `json:"removed"`
}

// Changed reports whether anything other than continued items is present.
func (d SkillDiff) Changed() bool {
	return len(d.Evolved) > 0 || len(d.New) > 0 || len(d.Removed) > 0
}

// Normalize lowercases, strips diacritics and trims a description.
func Normalize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// Similar reports whether one normalized description contains the other.
// Empty descriptions are only ever equal, never similar.
func Similar(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Diff classifies the criteria of current against previous, per skill.
// Results are ordered by skill name.
func Diff(current, previous []Item) []SkillDiff {
	curBySkill := groupBySkill(current)
	prevBySkill := groupBySkill(previous)

	skills := make([]string, 0, len(curBySkill)+len(prevBySkill))
	seen := make(map[string]bool)
	for s := range curBySkill {
		if !seen[s] {
			seen[s] = true
			skills = append(skills, s)
		}
	}
	for s := range prevBySkill {
		if !seen[s] {
			seen[s] = true
			skills = append(skills, s)
		}
	}
	sort.Strings(skills)

	out := make([]SkillDiff, 0, len(skills))
	for _, s := range skills {
		out = append(out, diffGroup(s, curBySkill[s], prevBySkill[s]))
	}
	return out
}

type normalized struct {
	item Item
	key  string
}

func diffGroup(skill string, current, previous []normalized) SkillDiff {
	d := SkillDiff{Skill: skill}

	for _, c := range current {
		if p, ok := findExact(c.key, previous); ok {
			d.Continued = append(d.Continued, Pair{Current: c.item, Previous: p.item})
			continue
		}
		if p, ok := findSimilar(c.key, previous); ok {
			d.Evolved = append(d.Evolved, Pair{Current: c.item, Previous: p.item})
			continue
		}
		d.New = append(d.New, c.item)
	}

	for _, p := range previous {
		if _, ok := findExact(p.key, current); ok {
			continue
		}
		if _, ok := findSimilar(p.key, current); ok {
			continue
		}
		d.Removed = append(d.Removed, p.item)
	}
	return d
}

func findExact(key string, in []normalized) (normalized, bool) {
	for _, n := range in {
		if n.key == key {
			return n, true
		}
	}
	return normalized{}, false
}

func findSimilar(key string, in []normalized) (normalized, bool) {
	for _, n := range in {
		if Similar(key, n.key) {
			return n, true
		}
	}
	return normalized{}, false
}

func groupBySkill(items []Item) map[string][]normalized {
	out := make(map[string][]normalized)
	for _, it := range items {
		s := strings.ToLower(strings.TrimSpace(it.Skill))
		out[s] = append(out[s], normalized{item: it, key: Normalize(it.Description)})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// TAGS
// ══════════════════════════════════════════════════════════════════════════════

var reTag = regexp.MustCompile(`#([\p{L}\p{N}_-]+)`)

// Tags returns the #tag markers embedded in a description, normalized and
// without the leading '#'.
func Tags(description string) []string {
	matches := reTag.FindAllStringSubmatch(description, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		t := Normalize(m[1])
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
