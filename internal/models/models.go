// Package models holds the fixed set of model identifiers the backend accepts
// and the helpers used to keep every outgoing request inside that set.
package models

import (
	"slices"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Default is the lowest-cost model and the answer to every invalid input.
const Default = "gpt-3.5-turbo"

// Allowed is the ordered registry of model identifiers.
var Allowed = []string{
	"gpt-3.5-turbo",
	"gpt-4o",
	"gpt-4o-mini",
}

// IsAllowed reports whether id is exactly one of the registry entries.
func IsAllowed(id string) bool {
	return slices.Contains(Allowed, id)
}

// Sanitize returns candidate when it is allowed, otherwise Default.
func Sanitize(candidate string) string {
	if IsAllowed(candidate) {
		return candidate
	}
	return Default
}

// Resolve returns the first candidate that is allowed. Empty and unknown
// candidates are skipped; with nothing left it returns Default.
func Resolve(candidates ...string) string {
	for _, c := range candidates {
		if IsAllowed(c) {
			return c
		}
	}
	return Default
}

// ParseList turns a comma-delimited model list into the offered models.
// Entries are trimmed, unknown ids and duplicates are dropped, and an empty
// result collapses to a single Default entry.
func ParseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if !IsAllowed(id) || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return []string{Default}
	}
	return out
}

// Match finds the offered model that best matches query. An exact id wins
// over fuzzy ranking.
func Match(query string, offered []string) (string, bool) {
	query = strings.TrimSpace(query)
	if query == "" || len(offered) == 0 {
		return "", false
	}
	if slices.Contains(offered, query) {
		return query, true
	}
	matches := fuzzy.Find(query, offered)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Str, true
}
