// Package headerscan locates the true header row of a tabular export.
//
// Recruiting-system reports routinely prepend banner and filter-description
// rows before the actual column header ("Applied Filters: FY=2024 ...").
// Detect scans a bounded prefix of the file and scores every candidate row;
// it never trusts row 0 blindly.
package headerscan

import (
	"strconv"
	"strings"

	"recruitingetl/internal/colnorm"
)

// Options control the scan.
type Options struct {
	// MaxScan bounds how many leading rows are considered. <=0 means the
	// default of 40.
	MaxScan int

	// MinScore is the minimum winning score required before the best row is
	// accepted. <=0 means the default of 1.0.
	MinScore float64

	// Synonyms supplies the known-header-token check. Nil disables the
	// known-token bonus (scoring still works on text/numeric shape alone).
	Synonyms colnorm.Table

	// BannerPhrases are lower-cased substrings that disqualify a row
	// outright. Empty means the default set.
	BannerPhrases []string
}

const (
	defaultMaxScan  = 40
	defaultMinScore = 1.0

	anyCellWeight    = 0.05
	knownTokenWeight = 0.5
)

// defaultBannerPhrases are report-metadata markers emitted by the source
// systems. A row containing one is never a header, even at row 0.
var defaultBannerPhrases = []string{
	"applied filters",
	"report generated",
	"data as of",
}

// Detect returns the index of the most header-like row among the scanned
// prefix and true on success. It returns (0, false) when no row qualifies,
// including for empty input.
func Detect(rows [][]string, opt Options) (int, bool) {
	if len(rows) == 0 {
		return 0, false
	}

	maxScan := opt.MaxScan
	if maxScan <= 0 {
		maxScan = defaultMaxScan
	}
	if maxScan > len(rows) {
		maxScan = len(rows)
	}

	minScore := opt.MinScore
	if minScore <= 0 {
		minScore = defaultMinScore
	}

	banners := opt.BannerPhrases
	if len(banners) == 0 {
		banners = defaultBannerPhrases
	}

	bestIdx := -1
	bestScore := 0.0

	for i := 0; i < maxScan; i++ {
		row := rows[i]
		if allEmpty(row) {
			continue
		}
		if isBannerRow(row, banners) {
			continue
		}

		s := scoreRow(row, opt.Synonyms)
		// Strictly greater keeps the first-seen row on ties.
		if s > bestScore {
			bestScore = s
			bestIdx = i
		}
	}

	if bestIdx >= 0 && bestScore >= minScore {
		return bestIdx, true
	}

	// Fallback: accept row 0 when it at least looks like a plausible header
	// (mostly-text row with a few populated cells) and is not a banner.
	if !allEmpty(rows[0]) && !isBannerRow(rows[0], banners) {
		nonEmpty, textual := shape(rows[0])
		if nonEmpty >= 3 && textual >= 2 {
			return 0, true
		}
	}

	return 0, false
}

// scoreRow computes the header likelihood of one row.
//
// Header rows are overwhelmingly textual while data rows are numeric, so
// non-numeric cells carry the base weight, every populated cell adds a small
// bonus, and cells whose canonical form is a known header token add a large
// one.
func scoreRow(row []string, syn colnorm.Table) float64 {
	var s float64
	for _, cell := range row {
		v := strings.TrimSpace(cell)
		if v == "" {
			continue
		}
		s += anyCellWeight
		if !looksNumeric(v) {
			s += 1.0
		}
		if syn != nil && syn.Knows(colnorm.Normalize(v)) {
			s += knownTokenWeight
		}
	}
	return s
}

func shape(row []string) (nonEmpty, textual int) {
	for _, cell := range row {
		v := strings.TrimSpace(cell)
		if v == "" {
			continue
		}
		nonEmpty++
		if !looksNumeric(v) {
			textual++
		}
	}
	return nonEmpty, textual
}

func allEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// isBannerRow reports whether any cell of the row carries a banner phrase.
// The "included ... not ..." filter-description lines are matched as a word
// pair because their middle varies per report.
func isBannerRow(row []string, banners []string) bool {
	joined := strings.ToLower(strings.Join(row, " "))
	for _, p := range banners {
		if strings.Contains(joined, p) {
			return true
		}
	}
	if strings.Contains(joined, "included") && strings.Contains(joined, " not ") {
		return true
	}
	return false
}

// looksNumeric reports whether a cell parses as a number once display
// formatting (thousands separators, percent, currency) is removed.
func looksNumeric(v string) bool {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ',', '%', '$', ' ':
			return -1
		}
		return r
	}, v)
	if clean == "" {
		return false
	}
	_, err := strconv.ParseFloat(clean, 64)
	return err == nil
}
