// Package progression computes a student's current deliverable stage
// from persisted facts. The walk is monotonic: repeated calls never
// return a status below the one previously persisted for the same
// person (spec §4.D).
package progression

import "fmt"

// Status is a tagged progression stage, totally ordered by its
// ordinal. Spec §9 DESIGN NOTES: "Status-as-string: prefer a tagged
// variant with a canonical serializer; strings are an external-wire
// concern."
type Status int

const (
	D0PRE Status = iota
	D0
	D1Unlocked
	D1TeamSet
	D1
	D2
	D3PRE
	D3
)

var names = [...]string{
	D0PRE:      "D0PRE",
	D0:         "D0",
	D1Unlocked: "D1UNLOCKED",
	D1TeamSet:  "D1TEAMSET",
	D1:         "D1",
	D2:         "D2",
	D3PRE:      "D3PRE",
	D3:         "D3",
}

// String renders the canonical wire form of a Status.
func (s Status) String() string {
	if s < D0PRE || s > D3 {
		return "UNKNOWN"
	}
	return names[s]
}

// ParseStatus recovers a Status from its wire string. An unrecognized
// string parses to D0PRE rather than erroring, matching the spec's
// "start at D0PRE" framing for previously-unseen or corrupted cache
// values — the walk will re-derive the true status from facts anyway.
func ParseStatus(s string) Status {
	for ord, n := range names {
		if n == s {
			return Status(ord)
		}
	}
	return D0PRE
}

// Max returns the higher of two statuses, enforcing monotonicity at
// any call site that persists a computed value next to a cached one.
func Max(a, b Status) Status {
	if a > b {
		return a
	}
	return b
}

func (s Status) GoString() string {
	return fmt.Sprintf("progression.%s", s.String())
}
