package moderation

import "fmt"

var ErrBadThresholds = fmt.Errorf("reject threshold must be greater than review threshold")

// Outcome is the terminal moderation decision for a submission.
// Exactly one outcome is produced per submission.
type Outcome int

const (
	// Publish stores the comment approved and visible immediately.
	Publish Outcome = iota
	// Hold stores the comment unapproved, pending a human reviewer.
	Hold
	// Reject discards the submission; no record is created.
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Publish:
		return "publish"
	case Hold:
		return "hold"
	case Reject:
		return "reject"
	}
	return "unknown"
}

// Reason categories for telemetry. They are stable and generic: the
// matched term, score and normalization details stay in the audit log
// and are never surfaced to the end user.
const (
	ReasonInjection    = "possible injection"
	ReasonExactTerm    = "disallowed exact term"
	ReasonHighVariant  = "high-confidence variant"
	ReasonNearMatch    = "near-match pending review"
	ReasonNoneDetected = "no match"
)

// Decision pairs an outcome with its reason and, for denylist hits, the
// match that produced it.
type Decision struct {
	Outcome Outcome
	Reason  string
	Match   *Match
}

// Approved reports the value stored on the comment record: Publish
// comments are approved at creation, Hold comments are not. Reject
// never creates a record.
func (d Decision) Approved() bool {
	return d.Outcome == Publish
}

// Policy maps match results onto publish/hold/reject. Review is the
// score at which a fuzzy match is held for manual review, Reject the
// stricter score at which it is discarded outright.
type Policy struct {
	Review float64
	Reject float64
}

// NewPolicy validates the threshold pair. Equal or inverted values are
// a configuration error, not a runtime condition.
func NewPolicy(review, reject float64) (Policy, error) {
	if reject <= review {
		return Policy{}, fmt.Errorf("%w: review=%.2f reject=%.2f", ErrBadThresholds, review, reject)
	}
	return Policy{Review: review, Reject: reject}, nil
}

// Decide is a pure function of the safety-screen result and the match.
// A safety hit always rejects, regardless of denylist content. Exact
// matches always reject. Fuzzy matches reject at or above the reject
// threshold and hold below it (the matcher only reports fuzzy results
// at or above the review threshold).
func (p Policy) Decide(unsafeMarkup bool, m *Match) Decision {
	if unsafeMarkup {
		return Decision{Outcome: Reject, Reason: ReasonInjection}
	}
	if m == nil {
		return Decision{Outcome: Publish, Reason: ReasonNoneDetected}
	}
	if m.Kind == Exact {
		return Decision{Outcome: Reject, Reason: ReasonExactTerm, Match: m}
	}
	if m.Score >= p.Reject {
		return Decision{Outcome: Reject, Reason: ReasonHighVariant, Match: m}
	}
	return Decision{Outcome: Hold, Reason: ReasonNearMatch, Match: m}
}
