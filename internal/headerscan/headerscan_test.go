package headerscan

import (
	"testing"

	"recruitingetl/internal/colnorm"
)

func TestDetect_TableDriven(t *testing.T) {
	t.Parallel()

	syn := colnorm.DefaultTable()

	tests := []struct {
		name    string
		rows    [][]string
		opt     Options
		wantIdx int
		wantOK  bool
	}{
		{
			name:   "empty_input",
			rows:   nil,
			wantOK: false,
		},
		{
			name: "plain_header_row_0",
			rows: [][]string{
				{"ZIP", "STATION", "CONTRACTS"},
				{"27587", "3J3H", "12"},
			},
			opt:     Options{Synonyms: syn},
			wantIdx: 0,
			wantOK:  true,
		},
		{
			name: "banner_rows_before_header",
			rows: [][]string{
				{"Applied Filters: FY=2024, Service=Army"},
				{""},
				{"ZIP CODE", "STATION", "SUM OF CONTRACTS"},
				{"27587", "3J3H - WAKE FOREST", "1,234"},
				{"27601", "3J3A - RALEIGH", "998"},
			},
			opt:     Options{Synonyms: syn},
			wantIdx: 2,
			wantOK:  true,
		},
		{
			name: "included_not_filter_line_skipped",
			rows: [][]string{
				{"Included categories but not priors"},
				{"ZIP", "CATEGORY"},
				{"27587", "A"},
			},
			opt:     Options{Synonyms: syn},
			wantIdx: 1,
			wantOK:  true,
		},
		{
			name: "numeric_rows_never_beat_textual_header",
			rows: [][]string{
				{"ZIP", "FY", "MEAN SCORE"},
				{"27587", "2024", "85.2"},
				{"27601", "2024", "91.0"},
			},
			opt:     Options{Synonyms: syn},
			wantIdx: 0,
			wantOK:  true,
		},
		{
			name: "tie_keeps_first_seen",
			rows: [][]string{
				{"ALPHA", "BETA", "GAMMA"},
				{"DELTA", "EPSILON", "ZETA"},
			},
			opt:     Options{Synonyms: syn},
			wantIdx: 0,
			wantOK:  true,
		},
		{
			name: "all_empty_rows",
			rows: [][]string{
				{"", "", ""},
				{" ", ""},
			},
			wantOK: false,
		},
		{
			name: "fallback_row0_plausible",
			rows: [][]string{
				// Does not reach the inflated MinScore, but row 0 qualifies
				// via the fallback shape check (3 non-empty, 2 non-numeric).
				{"NAME", "CODE", "7"},
			},
			opt:     Options{MinScore: 5, Synonyms: syn},
			wantIdx: 0,
			wantOK:  true,
		},
		{
			name: "fallback_row0_too_numeric",
			rows: [][]string{
				{"NAME", "7", "8"},
			},
			opt:    Options{MinScore: 5, Synonyms: syn},
			wantOK: false,
		},
		{
			name: "fallback_row0_accepted",
			rows: [][]string{
				{"NAME", "CODE", "REGION"},
			},
			opt:     Options{MinScore: 50, Synonyms: syn},
			wantIdx: 0,
			wantOK:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := Detect(tt.rows, tt.opt)
			if ok != tt.wantOK {
				t.Fatalf("Detect ok=%v want %v (idx=%d)", ok, tt.wantOK, idx)
			}
			if ok && idx != tt.wantIdx {
				t.Fatalf("Detect idx=%d want %d", idx, tt.wantIdx)
			}
		})
	}
}

func TestDetect_BannerNeverSelected(t *testing.T) {
	t.Parallel()

	// Even when the banner is the only textual row, it must not win.
	rows := [][]string{
		{"Applied Filters: Army, FY2024, Regular"},
		{"1", "2", "3"},
	}
	idx, ok := Detect(rows, Options{Synonyms: colnorm.DefaultTable()})
	if ok && idx == 0 {
		t.Fatalf("banner row selected as header (idx=%d ok=%v)", idx, ok)
	}
}

func TestDetect_QualifyingRowAlwaysFound(t *testing.T) {
	t.Parallel()

	// Any input containing a row with >=3 non-empty, >=2 non-numeric cells
	// and no banner phrase must yield a valid in-range index.
	inputs := [][][]string{
		{{"FY", "RQ", "SERVICE", "SUM OF CONTRACTS", "ZIP", "STATION"}},
		{{"", ""}, {"A", "B", "C"}},
		{{"9", "9", "9"}, {"ZIP", "STATION", "SAMA SCORE"}, {"27587", "3J3H", "85.2"}},
	}
	for _, rows := range inputs {
		idx, ok := Detect(rows, Options{Synonyms: colnorm.DefaultTable()})
		if !ok {
			t.Fatalf("Detect found no header in %v", rows)
		}
		if idx < 0 || idx >= len(rows) {
			t.Fatalf("Detect idx=%d out of range for %d rows", idx, len(rows))
		}
	}
}

func TestDetect_ScanBoundRespected(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		{"1", "2"},
		{"3", "4"},
		{"ZIP", "STATION", "CONTRACTS"},
	}
	// MaxScan=2 hides the real header; the numeric rows cannot reach the
	// score threshold and fail the row-0 fallback shape check.
	if _, ok := Detect(rows, Options{MaxScan: 2, Synonyms: colnorm.DefaultTable()}); ok {
		t.Fatal("Detect found a header outside the scan bound")
	}
}
