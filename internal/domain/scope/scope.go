// Package scope turns the free-text mode and region fields of a submission
// into a known ranking scope, and decides whether a submission is
// authoritative enough to be persisted at all.
package scope

import (
	"strings"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
)

// Scope is a named ranking namespace.
type Scope string

// Known scopes.
const (
	Career  Scope = model.ModeCareer
	America Scope = "america"
	Europe  Scope = "europe"
	Asia    Scope = "asia"
	Africa  Scope = "africa"
	Oceania Scope = "oceania"
)

// Regions lists the region scopes in a fixed order.
var Regions = []Scope{America, Europe, Asia, Africa, Oceania}

// All lists every known scope.
var All = append([]Scope{Career}, Regions...)

func (s Scope) String() string { return string(s) }

// IsRegion reports whether s is one of the region scopes.
func (s Scope) IsRegion() bool {
	for _, r := range Regions {
		if s == r {
			return true
		}
	}
	return false
}

// Parse accepts only the exact (case-insensitive) name of a known scope.
func Parse(raw string) (Scope, bool) {
	s := Scope(strings.ToLower(strings.TrimSpace(raw)))
	for _, k := range All {
		if s == k {
			return k, true
		}
	}
	return "", false
}

// Normalize maps a raw region value, which may be a scope name or a URL-like
// string, to a known scope. Region names are matched as substrings first;
// more than one distinct region in the same string is ambiguous and yields
// no scope. Career is recognized only when no region matched. The boolean is
// false whenever no scope can be determined, and callers must then not
// persist anything.
func Normalize(raw string) (Scope, bool) {
	if s, ok := Parse(raw); ok {
		return s, true
	}
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return "", false
	}
	var found Scope
	for _, r := range Regions {
		if !strings.Contains(lower, string(r)) {
			continue
		}
		if found != "" {
			return "", false
		}
		found = r
	}
	if found != "" {
		return found, true
	}
	if strings.Contains(lower, string(Career)) {
		return Career, true
	}
	return "", false
}

// Resolve picks the scope of a submission. An explicit career mode without a
// region lands in the career scope; otherwise the region decides.
func Resolve(mode, region string) (Scope, bool) {
	if strings.TrimSpace(region) == "" {
		if isCareerMode(mode) {
			return Career, true
		}
		return "", false
	}
	return Normalize(region)
}

// ShouldPersist reports whether a submission is authoritative. An explicit
// mode persists only when it is "career". Without a mode, the region must
// carry a career marker: a "career-mode" segment, a "/career" suffix, or the
// bare word.
func ShouldPersist(mode, region string) bool {
	if strings.TrimSpace(mode) != "" {
		return isCareerMode(mode)
	}
	r := strings.ToLower(strings.TrimSpace(region))
	return strings.Contains(r, "career-mode") || strings.HasSuffix(r, "/career") || r == string(Career)
}

func isCareerMode(mode string) bool {
	return strings.EqualFold(strings.TrimSpace(mode), model.ModeCareer)
}
