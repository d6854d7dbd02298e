// Package colnorm canonicalizes raw spreadsheet header names so that exports
// from different recruiting systems can be matched against one registry.
//
// Two forms are produced:
//   - the canonical form (Normalize): upper-cased, separators collapsed to
//     single spaces, percent signs stripped
//   - the tight form (Tight): canonical form with everything except letters
//     and digits removed, used for substring matching
//
// Synonym resolution (Table.Resolve) maps known aliases onto one canonical
// token. Unknown tokens pass through unchanged; a column is never dropped
// just because we have no synonym entry for it.
//
// Everything in this package is a pure function over strings.
package colnorm

import "strings"

// separator runes that count as word breaks inside a header cell.
// Underscores and slashes show up in system exports ("ZIP_CODE", "FY/RQ").
func isSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '_', '-', '.', '/', '\\', ':', ';', ',':
		return true
	}
	return false
}

// Normalize converts a raw header cell to its canonical token form.
//
// Rules:
//   - upper-case
//   - every run of separator runes becomes a single space
//   - '%' is stripped (exports write "SHARE %" and "SHARE" interchangeably)
//   - leading/trailing spaces trimmed
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := strings.ToUpper(raw)

	var b strings.Builder
	b.Grow(len(s))

	lastSpace := false
	for _, r := range s {
		if r == '%' {
			continue
		}
		if isSeparator(r) {
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}

	return strings.TrimRight(b.String(), " ")
}

// Tight reduces a raw header cell to letters and digits only.
//
// The tight form is used for tolerant substring matching where even spacing
// differences should not matter ("ZIP CODE" vs "ZIPCODE").
func Tight(raw string) string {
	s := Normalize(raw)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Table maps canonical tokens to their resolved synonym target.
//
// Tables are read-only after construction; callers that need a custom
// synonym set should build their own Table and inject it rather than
// mutating the default one.
type Table map[string]string

// Resolve returns the synonym target for a canonical token, or the token
// unchanged when no entry exists (passthrough semantics).
func (t Table) Resolve(token string) string {
	if t == nil {
		return token
	}
	if out, ok := t[token]; ok {
		return out
	}
	return token
}

// Canonical is the full normalization pipeline for one raw header cell:
// Normalize then Resolve.
func (t Table) Canonical(raw string) string {
	return t.Resolve(Normalize(raw))
}

// Knows reports whether a canonical token is a recognized header token,
// either as a synonym key or as a resolution target. The header-row
// detector uses this to boost rows containing known column names.
func (t Table) Knows(token string) bool {
	if t == nil {
		return false
	}
	if _, ok := t[token]; ok {
		return true
	}
	for _, target := range t {
		if target == token {
			return true
		}
	}
	return false
}

// DefaultTable returns the built-in synonym table for the recruiting-system
// exports we ingest. The entries are hand-curated from observed headers;
// this is not a general thesaurus.
func DefaultTable() Table {
	return Table{
		// geography
		"ZIP CODE":    "ZIP",
		"ZIPCODE":     "ZIP",
		"ZIP5":        "ZIP",
		"POSTAL CODE": "ZIP",

		// station identifiers
		"STN":                 "STATION",
		"RSID":                "STATION",
		"STATION ID":          "STATION",
		"RECRUITING STATION":  "STATION",
		"STATION RSID":        "STATION",
		"STATION DESCRIPTION": "STATION NAME",

		// contract counts
		"SUM OF CONTRACTS": "CONTRACTS",
		"TOTAL CONTRACTS":  "CONTRACTS",
		"NET CONTRACTS":    "CONTRACTS",
		"CONTRACT COUNT":   "CONTRACTS",

		// whole-market totals used for share derivation
		"ALL SERVICE CONTRACTS": "MARKET TOTAL",
		"DOD CONTRACTS":         "MARKET TOTAL",
		"TOTAL MARKET":          "MARKET TOTAL",

		// market share
		"SHARE":        "MARKET SHARE",
		"PCT SHARE":    "MARKET SHARE",
		"SHARE OF DOD": "MARKET SHARE",

		// fiscal calendar
		"FISCAL YEAR": "FY",
		"QTR":         "RQ",
		"QUARTER":     "RQ",
		"RQ QUARTER":  "RQ",

		// service / component
		"BRANCH":    "SERVICE",
		"COMPONENT": "SERVICE",

		// SAMA scoring
		"SAMA":       "SAMA SCORE",
		"SAMA SCR":   "SAMA SCORE",
		"SCORE SAMA": "SAMA SCORE",

		// zip categorization
		"MISSION CATEGORY": "CATEGORY",
		"ZIP CATEGORY":     "CATEGORY",

		// productivity
		"ON PROD RECRUITERS":  "RECRUITERS",
		"RECRUITER COUNT":     "RECRUITERS",
		"ASSIGNED RECRUITERS": "RECRUITERS",

		// test scores
		"AVG SCORE":     "MEAN SCORE",
		"AVERAGE SCORE": "MEAN SCORE",
		"MEAN":          "MEAN SCORE",
		"TEST":          "TEST NAME",
		"ASSESSMENT":    "TEST NAME",
		"TESTS TAKEN":   "PARTICIPANTS",
		"TAKERS":        "PARTICIPANTS",
		"N TESTED":      "PARTICIPANTS",

		// urbanicity
		"URBANICITY":         "LOCALE CODE",
		"URBAN RURAL CODE":   "LOCALE CODE",
		"LOCALE":             "LOCALE CODE",
		"NCES LOCALE":        "LOCALE CODE",
		"LOCALE DESCRIPTION": "LOCALE NAME",
		"URBANICITY NAME":    "LOCALE NAME",

		// org hierarchy
		"BDE NAME":  "BRIGADE NAME",
		"BN NAME":   "BATTALION NAME",
		"CO NAME":   "COMPANY NAME",
		"UNIT NAME": "STATION NAME",
	}
}
