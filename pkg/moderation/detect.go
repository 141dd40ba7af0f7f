package moderation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

var ErrNoTerms = fmt.Errorf("denylist is empty")

// MatchKind tells how a denylist entry was found in the input.
type MatchKind int

const (
	// Exact means the normalized entry is a substring of the
	// normalized input. Exact matches always score 1.0 and outrank
	// any fuzzy result.
	Exact MatchKind = iota
	// FuzzyWindow means a fixed-length window of the normalized input
	// scored at or above the review threshold against the entry.
	FuzzyWindow
	// FuzzyWhole means the whole normalized input scored at or above
	// the review threshold against the entry.
	FuzzyWhole
)

func (k MatchKind) String() string {
	switch k {
	case Exact:
		return "exact"
	case FuzzyWindow:
		return "fuzzy-window"
	case FuzzyWhole:
		return "fuzzy-whole"
	}
	return "unknown"
}

// Match describes the denylist hit that triggered detection. Detected
// holds the normalized span that matched; it is audit data and must
// never be shown to the end user.
type Match struct {
	Term     string
	Kind     MatchKind
	Score    float64
	Detected string
}

// Detector finds denylist terms in submitted text. The term list is
// loaded once at startup and immutable afterwards, so a single Detector
// is safe to share across concurrent evaluations.
//
// Lookup is a linear scan over the list: O(entries × input length) per
// submission, fine at small-list scale.
type Detector struct {
	terms     []string
	sim       Similarity
	threshold float64
}

// NewDetector returns a Detector matching with the given similarity
// measure. Fuzzy candidates qualify at or above reviewThreshold.
func NewDetector(sim Similarity, reviewThreshold float64) *Detector {
	return &Detector{sim: sim, threshold: reviewThreshold}
}

// LoadFromJSON loads denylist terms from a JSON string array file.
// Order is preserved: earlier entries take precedence during detection.
func (d *Detector) LoadFromJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var terms []string
	if err := json.Unmarshal(data, &terms); err != nil {
		return err
	}
	if len(terms) == 0 {
		return fmt.Errorf("%w: %s", ErrNoTerms, path)
	}

	d.terms = terms
	return nil
}

// SetTerms replaces the denylist. Intended for construction and tests;
// not safe once the Detector is shared.
func (d *Detector) SetTerms(terms []string) {
	d.terms = terms
}

// Detect scans text for denylist terms and returns the first qualifying
// match, or nil when nothing qualifies.
//
// Entries are checked in list order and the first hit wins; no attempt
// is made to find the globally best match across entries. Per entry the
// checks escalate: exact substring containment first, then a fuzzy
// sliding window of length max(3, len(entry)) left to right, then a
// whole-string comparison as fallback. Input that normalizes to empty
// is skipped, not an error.
func (d *Detector) Detect(text string) *Match {
	normal := Normalize(text)
	if normal == "" {
		return nil
	}
	normalRunes := []rune(normal)

	for _, term := range d.terms {
		tNorm := Normalize(term)
		if tNorm == "" {
			continue
		}

		if strings.Contains(normal, tNorm) {
			return &Match{Term: term, Kind: Exact, Score: 1, Detected: tNorm}
		}

		tLen := len([]rune(tNorm))
		winLen := tLen
		if winLen < 3 {
			winLen = 3
		}

		// When the input is shorter than the window no window fits;
		// only the whole-string fallback can still fire.
		for i := 0; i+winLen <= len(normalRunes); i++ {
			window := string(normalRunes[i : i+winLen])
			if score := d.sim.Compare(window, tNorm); score >= d.threshold {
				return &Match{Term: term, Kind: FuzzyWindow, Score: score, Detected: window}
			}
		}

		if score := d.sim.Compare(normal, tNorm); score >= d.threshold {
			return &Match{Term: term, Kind: FuzzyWhole, Score: score, Detected: normal}
		}
	}

	return nil
}
