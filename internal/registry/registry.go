// Package registry holds the hand-curated catalog of known dataset shapes.
//
// A Registry is loaded once at process start (built-in defaults or a JSON
// file) and treated as read-only afterwards. It is injected into the
// classifier and loaders rather than accessed as package state, so tests can
// supply alternate registries.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"recruitingetl/internal/colnorm"
)

// Dataset keys for the built-in profiles. The loader package keeps a closed
// key→implementation map over exactly these values.
const (
	KeyMarketShare  = "usarec_market_share"
	KeyZipCategory  = "usarec_zip_category"
	KeySama         = "usarec_sama"
	KeyProductivity = "usarec_productivity"
	KeyTestScores   = "usarec_test_scores"
	KeyUrbanicity   = "usarec_urbanicity"
	KeyOrgHierarchy = "usarec_org_hierarchy"
)

// Profile describes one recognized dataset shape.
type Profile struct {
	// Key identifies the dataset and selects its loader.
	Key string `json:"key"`

	// Table is the destination fact table.
	Table string `json:"table"`

	// Required / Optional are canonical (synonym-resolved) column tokens.
	Required []string `json:"required"`
	Optional []string `json:"optional,omitempty"`

	// Priority breaks coverage-score ties in the classifier fallback.
	// Higher wins; equal priorities fall back to key order.
	Priority int `json:"priority,omitempty"`

	// SheetHint optionally names the worksheet the export uses. Informational
	// only: the reader always takes the first sheet.
	SheetHint string `json:"sheet_hint,omitempty"`
}

// Signature is a deterministic classification rule checked before the
// coverage fallback. All Require tokens present and no Forbid token present
// means an exact match with confidence 1.0.
type Signature struct {
	Key     string   `json:"key"`
	Require []string `json:"require"`
	Forbid  []string `json:"forbid,omitempty"`

	// Source limits the rule to one source-system tag. Empty matches all.
	Source string `json:"source,omitempty"`
}

// Registry is the full dataset catalog plus the synonym table used to
// canonicalize incoming headers.
type Registry struct {
	Profiles   []Profile   `json:"profiles"`
	Signatures []Signature `json:"signatures"`

	// Synonyms maps canonical header tokens to their resolved form. When nil
	// after Load, the built-in table is used.
	Synonyms colnorm.Table `json:"synonyms,omitempty"`
}

// Default returns the built-in registry covering the known USAREC exports.
func Default() *Registry {
	return &Registry{
		Synonyms: colnorm.DefaultTable(),
		Signatures: []Signature{
			// Exact signatures take priority over coverage scoring because
			// they disambiguate similarly-shaped exports.
			{Key: KeySama, Require: []string{"ZIP", "STATION", "SAMA SCORE"}},
			{Key: KeyZipCategory, Require: []string{"ZIP", "CATEGORY"}, Forbid: []string{"SAMA SCORE", "CONTRACTS"}},
			{Key: KeyMarketShare, Require: []string{"ZIP", "STATION", "CONTRACTS"}, Forbid: []string{"SAMA SCORE", "CATEGORY"}},
		},
		Profiles: []Profile{
			{
				Key:      KeyMarketShare,
				Table:    "fact_market_share",
				Required: []string{"FY", "ZIP", "STATION", "CONTRACTS"},
				Optional: []string{"RQ", "SERVICE", "MARKET SHARE", "MARKET TOTAL"},
				Priority: 10,
			},
			{
				Key:      KeyZipCategory,
				Table:    "fact_zip_category",
				Required: []string{"ZIP", "CATEGORY"},
				Optional: []string{"LEADS", "CONTRACTS"},
				Priority: 20,
			},
			{
				Key:      KeySama,
				Table:    "fact_sama_score",
				Required: []string{"ZIP", "STATION", "SAMA SCORE"},
				Priority: 30,
			},
			{
				Key:      KeyProductivity,
				Table:    "fact_productivity",
				Required: []string{"STATION", "CONTRACTS", "RECRUITERS"},
				Optional: []string{"FY", "MONTH"},
				Priority: 10,
			},
			{
				Key:      KeyTestScores,
				Table:    "fact_test_score",
				Required: []string{"ZIP", "MEAN SCORE"},
				Optional: []string{"FY", "TEST NAME", "PARTICIPANTS"},
				Priority: 5,
			},
			{
				Key:      KeyUrbanicity,
				Table:    "fact_urbanicity",
				Required: []string{"ZIP", "LOCALE CODE"},
				Optional: []string{"LOCALE NAME", "POPULATION"},
				Priority: 5,
			},
			{
				Key:      KeyOrgHierarchy,
				Table:    "org_unit",
				Required: []string{"STATION", "STATION NAME"},
				Optional: []string{"BRIGADE NAME", "BATTALION NAME", "COMPANY NAME", "COMMAND"},
				Priority: 10,
			},
		},
	}
}

// Load reads a registry from a JSON file. A file with no synonyms section
// inherits the built-in synonym table; profiles and signatures are taken
// as-is (an empty profiles list is a validation error, not a fallback).
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var r Registry
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", path, err)
	}
	if r.Synonyms == nil {
		r.Synonyms = colnorm.DefaultTable()
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	return &r, nil
}

// Validate checks structural invariants: at least one profile, unique keys,
// non-empty required sets, and signatures referring to declared profiles.
func (r *Registry) Validate() error {
	if len(r.Profiles) == 0 {
		return fmt.Errorf("no profiles declared")
	}

	seen := make(map[string]bool, len(r.Profiles))
	for _, p := range r.Profiles {
		key := strings.TrimSpace(p.Key)
		if key == "" {
			return fmt.Errorf("profile with empty key")
		}
		if seen[key] {
			return fmt.Errorf("duplicate profile key %q", key)
		}
		seen[key] = true

		if strings.TrimSpace(p.Table) == "" {
			return fmt.Errorf("profile %q: empty table", key)
		}
		if len(p.Required) == 0 {
			return fmt.Errorf("profile %q: no required columns", key)
		}
	}

	for _, s := range r.Signatures {
		if !seen[s.Key] {
			return fmt.Errorf("signature refers to unknown profile %q", s.Key)
		}
		if len(s.Require) == 0 {
			return fmt.Errorf("signature for %q: no required tokens", s.Key)
		}
	}
	return nil
}

// Profile returns the profile for a key.
func (r *Registry) Profile(key string) (Profile, bool) {
	for _, p := range r.Profiles {
		if p.Key == key {
			return p, true
		}
	}
	return Profile{}, false
}

// Keys returns all declared profile keys in declaration order.
func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.Profiles))
	for _, p := range r.Profiles {
		out = append(out, p.Key)
	}
	return out
}
