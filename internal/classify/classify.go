// Package classify matches a canonicalized column set against the dataset
// registry.
//
// Classification is two-tier. Deterministic signature rules run first: they
// are hand-written for well-known exports and return confidence 1.0, which
// keeps similarly-shaped datasets ("zip + category" vs "zip + contracts")
// from shadowing each other. When no signature fires, a required-column
// coverage score picks the best profile, accepted only above a fixed
// threshold.
package classify

import (
	"sort"

	"recruitingetl/internal/registry"
)

// MinCoverage is the acceptance threshold for the fallback tier.
const MinCoverage = 0.8

// Match is a classification outcome. A zero Match (empty Key) means no
// profile matched confidently.
type Match struct {
	Key        string
	Confidence float64
}

// Matched reports whether a profile was selected.
func (m Match) Matched() bool { return m.Key != "" }

// Classifier matches column sets against one immutable registry.
type Classifier struct {
	reg *registry.Registry
}

// New builds a Classifier over reg. The registry must already be validated;
// Classify never mutates it.
func New(reg *registry.Registry) *Classifier {
	return &Classifier{reg: reg}
}

// Classify returns the best dataset match for a set of canonical column
// tokens. The result is deterministic: signatures are checked in declaration
// order, and fallback ties break by declared profile priority, then key.
func (c *Classifier) Classify(columns []string, sourceSystem string) Match {
	if len(columns) == 0 {
		return Match{}
	}

	have := make(map[string]bool, len(columns))
	for _, col := range columns {
		if col != "" {
			have[col] = true
		}
	}

	// Tier 1: deterministic signatures.
	for _, sig := range c.reg.Signatures {
		if sig.Source != "" && sig.Source != sourceSystem {
			continue
		}
		if signatureFires(sig, have) {
			return Match{Key: sig.Key, Confidence: 1.0}
		}
	}

	// Tier 2: required-column coverage.
	type scored struct {
		profile  registry.Profile
		coverage float64
	}
	candidates := make([]scored, 0, len(c.reg.Profiles))
	for _, p := range c.reg.Profiles {
		hits := 0
		for _, req := range p.Required {
			if have[req] {
				hits++
			}
		}
		cov := float64(hits) / float64(len(p.Required))
		if cov >= MinCoverage {
			candidates = append(candidates, scored{profile: p, coverage: cov})
		}
	}
	if len(candidates) == 0 {
		return Match{}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.coverage != b.coverage {
			return a.coverage > b.coverage
		}
		if a.profile.Priority != b.profile.Priority {
			return a.profile.Priority > b.profile.Priority
		}
		return a.profile.Key < b.profile.Key
	})

	best := candidates[0]
	return Match{Key: best.profile.Key, Confidence: best.coverage}
}

func signatureFires(sig registry.Signature, have map[string]bool) bool {
	for _, tok := range sig.Require {
		if !have[tok] {
			return false
		}
	}
	for _, tok := range sig.Forbid {
		if have[tok] {
			return false
		}
	}
	return true
}
