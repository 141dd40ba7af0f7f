package moderation

import (
	"path/filepath"
	"testing"
)

const (
	testReviewThreshold = 0.82
	testRejectThreshold = 0.92
)

func testDetector(terms ...string) *Detector {
	d := NewDetector(DiceBigram{}, testReviewThreshold)
	d.SetTerms(terms)
	return d
}

func TestDetector_LoadFromJSON(t *testing.T) {
	d := NewDetector(DiceBigram{}, testReviewThreshold)

	jsonPath := filepath.Join("test_data", "terms.json")
	if err := d.LoadFromJSON(jsonPath); err != nil {
		t.Fatalf("failed to load terms: %v", err)
	}

	if len(d.terms) == 0 {
		t.Fatal("want non-empty term list after load")
	}
	if m := d.Detect("eres un tonto"); m == nil {
		t.Error("want match against loaded terms, got none")
	}
}

func TestDetector_LoadFromJSONMissingFile(t *testing.T) {
	d := NewDetector(DiceBigram{}, testReviewThreshold)
	if err := d.LoadFromJSON(filepath.Join("test_data", "no_such_file.json")); err == nil {
		t.Error("want error for missing file, got nil")
	}
}

func TestDetector_Detect(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		terms    []string
		wantNil  bool
		wantKind MatchKind
		wantTerm string
	}{
		{
			name:    "Clean text",
			text:    "hola mundo",
			terms:   []string{"tonto"},
			wantNil: true,
		},
		{
			name:     "Verbatim term",
			text:     "eres un tonto",
			terms:    []string{"tonto"},
			wantKind: Exact,
			wantTerm: "tonto",
		},
		{
			name:     "Leetspeak variant becomes exact",
			text:     "eres un t0nt0",
			terms:    []string{"tonto"},
			wantKind: Exact,
			wantTerm: "tonto",
		},
		{
			name:     "Spaced out variant becomes exact",
			text:     "t o n t o",
			terms:    []string{"tonto"},
			wantKind: Exact,
			wantTerm: "tonto",
		},
		{
			name:     "Near miss holds via window",
			text:     "eres estupida",
			terms:    []string{"estupido"},
			wantKind: FuzzyWindow,
			wantTerm: "estupido",
		},
		{
			name:     "Short input falls back to whole string",
			text:     "idiotta",
			terms:    []string{"idiota"},
			wantKind: FuzzyWhole,
			wantTerm: "idiota",
		},
		{
			name:    "Input normalizes to empty",
			text:    "...---...",
			terms:   []string{"tonto"},
			wantNil: true,
		},
		{
			name:    "Entry normalizes to empty",
			text:    "hola mundo",
			terms:   []string{"...", "---"},
			wantNil: true,
		},
		{
			name:    "Empty denylist",
			text:    "<script>alert(1)</script>",
			terms:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDetector(tt.terms...)
			got := d.Detect(tt.text)

			if tt.wantNil {
				if got != nil {
					t.Fatalf("Detect(%q) = %+v; want nil", tt.text, got)
				}
				return
			}

			if got == nil {
				t.Fatalf("Detect(%q) = nil; want a match", tt.text)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Detect(%q) kind = %v; want %v", tt.text, got.Kind, tt.wantKind)
			}
			if got.Term != tt.wantTerm {
				t.Errorf("Detect(%q) term = %q; want %q", tt.text, got.Term, tt.wantTerm)
			}
			if got.Score < testReviewThreshold || got.Score > 1 {
				t.Errorf("Detect(%q) score = %v; want within [%v, 1]", tt.text, got.Score, testReviewThreshold)
			}
		})
	}
}

func TestDetector_ExactOutranksFuzzy(t *testing.T) {
	// A verbatim term must report Exact with score 1.0 even when other
	// entries earlier in the list produce near misses.
	d := testDetector("tanto", "tonto")

	got := d.Detect("dice tonto cosas")
	if got == nil {
		t.Fatal("want a match, got nil")
	}
	if got.Term != "tonto" || got.Kind != Exact || got.Score != 1 {
		t.Fatalf("want Exact match on %q with score 1.0, got %+v", "tonto", got)
	}

	d = testDetector("tonto")
	got = d.Detect("eres un tonto de verdad")
	if got == nil {
		t.Fatal("want a match, got nil")
	}
	if got.Kind != Exact {
		t.Errorf("want kind %v, got %v", Exact, got.Kind)
	}
	if got.Score != 1 {
		t.Errorf("want score 1.0, got %v", got.Score)
	}
}

func TestDetector_FirstEntryWins(t *testing.T) {
	// Entries are scanned in list order; the first qualifying entry
	// wins even when a later one would score higher.
	d := testDetector("estupido", "estupida")

	got := d.Detect("muy estupida persona")
	if got == nil {
		t.Fatal("want a match, got nil")
	}
	if got.Term != "estupido" {
		t.Errorf("want first entry %q to win, got %q", "estupido", got.Term)
	}
}

func TestDetector_InputShorterThanWindow(t *testing.T) {
	// No window fits, so only the whole-string fallback can fire.
	d := testDetector("sinverguenza")

	if got := d.Detect("hola"); got != nil {
		t.Errorf("Detect(%q) = %+v; want nil", "hola", got)
	}
}

func TestDetector_ThresholdMonotonicity(t *testing.T) {
	// Raising the review threshold can only move an outcome toward
	// publish, never the reverse.
	text := "eres estupida"
	term := "estupido"

	strict := NewDetector(DiceBigram{}, 0.95)
	strict.SetTerms([]string{term})
	loose := NewDetector(DiceBigram{}, testReviewThreshold)
	loose.SetTerms([]string{term})

	if m := loose.Detect(text); m == nil {
		t.Fatalf("want match at threshold %v, got none", testReviewThreshold)
	}
	if m := strict.Detect(text); m != nil {
		t.Errorf("want no match at threshold 0.95, got %+v", m)
	}
}
