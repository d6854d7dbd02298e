package rsid

import "testing"

func TestParse_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     string
		want   Code
		wantOK bool
	}{
		{
			name: "code_with_name",
			in:   "3J3H - WAKE FOREST",
			want: Code{Brigade: "3", Battalion: "3J", Company: "3J3", Station: "3J3H", Name: "WAKE FOREST"},

			wantOK: true,
		},
		{
			name:   "bare_code",
			in:     "3J3H",
			want:   Code{Brigade: "3", Battalion: "3J", Company: "3J3", Station: "3J3H"},
			wantOK: true,
		},
		{
			name:   "lower_case_input",
			in:     "3j3h - wake forest",
			want:   Code{Brigade: "3", Battalion: "3J", Company: "3J3", Station: "3J3H", Name: "WAKE FOREST"},
			wantOK: true,
		},
		{
			name:   "code_preferred_over_name_word",
			in:     "WAKE 3J3H",
			want:   Code{Brigade: "3", Battalion: "3J", Company: "3J3", Station: "3J3H"},
			wantOK: true,
		},
		{
			name:   "no_code",
			in:     "RALEIGH NC",
			wantOK: false,
		},
		{
			name:   "empty",
			in:     "",
			wantOK: false,
		},
		{
			name:   "whitespace_padded",
			in:     "  1A2B  ",
			want:   Code{Brigade: "1", Battalion: "1A", Company: "1A2", Station: "1A2B"},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("Parse(%q) ok=%v want %v", tt.in, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got != tt.want {
				t.Fatalf("Parse(%q)=%+v want %+v", tt.in, got, tt.want)
			}
		})
	}
}
