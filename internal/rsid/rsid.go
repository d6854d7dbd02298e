// Package rsid parses Recruiting Station IDs and the org-code prefixes they
// carry.
//
// A station identifier is a 4-character alphanumeric code whose prefixes name
// the parent echelons: "3J3H" belongs to brigade "3", battalion "3J",
// company "3J3", station "3J3H". Exports write either the bare code or a
// "CODE - NAME" form ("3J3H - WAKE FOREST").
package rsid

import (
	"regexp"
	"strings"
)

// Code is a parsed station identifier.
type Code struct {
	Brigade   string
	Battalion string
	Company   string
	Station   string

	// Name is the free-text station name following the code, or "" when the
	// input was a bare code.
	Name string
}

var codeRe = regexp.MustCompile(`\b[A-Z0-9]{4}\b`)

// Parse extracts the first station code from s.
//
// The search runs over the upper-cased input. Among 4-character alphanumeric
// tokens, ones containing at least one digit are preferred, so that name
// words like "WAKE" are not mistaken for the code in "3J3H - WAKE FOREST".
func Parse(s string) (Code, bool) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if up == "" {
		return Code{}, false
	}

	locs := codeRe.FindAllStringIndex(up, -1)
	if len(locs) == 0 {
		return Code{}, false
	}

	pick := locs[0]
	for _, loc := range locs {
		if hasDigit(up[loc[0]:loc[1]]) {
			pick = loc
			break
		}
	}

	code := up[pick[0]:pick[1]]
	name := strings.TrimLeft(up[pick[1]:], " -–:|")
	name = strings.TrimSpace(name)

	return Code{
		Brigade:   code[:1],
		Battalion: code[:2],
		Company:   code[:3],
		Station:   code,
		Name:      name,
	}, true
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
