package progression

import (
	"context"
	"log"

	"github.com/classytest/dispatcher/internal/model"
	"github.com/classytest/dispatcher/internal/store"
)

// Thresholds configures the pass bar the walk checks against. 60 is
// the spec default (spec §4.D).
type Thresholds struct {
	PassScore float64
}

// DefaultThresholds returns the spec's default pass threshold.
func DefaultThresholds() Thresholds {
	return Thresholds{PassScore: 60}
}

// Machine computes and persists a person's progression status. It
// reads persisted facts only; it never calls source-hosting APIs
// (spec §4.D).
type Machine struct {
	store      store.Store
	thresholds Thresholds
}

// NewMachine builds a progression Machine over the given store.
func NewMachine(s store.Store, thresholds Thresholds) *Machine {
	return &Machine{store: s, thresholds: thresholds}
}

// ComputeStatusString walks the eight progression states in order,
// applying each guarded upgrade at most once, and writes the final
// state back onto the person's record as a best-effort cache update.
// The walk never regresses: it starts at D0PRE and can only ascend.
func (m *Machine) ComputeStatusString(ctx context.Context, personID string) (Status, error) {
	person, err := m.store.GetPerson(ctx, personID)
	if err != nil {
		return D0PRE, err
	}
	if person == nil {
		return D0PRE, &model.ValidationError{Reason: "person not registered: " + personID}
	}

	repos, err := m.store.ListPersonRepos(ctx, personID)
	if err != nil {
		return D0PRE, err
	}
	teams, err := m.store.ListPersonTeams(ctx, personID)
	if err != nil {
		return D0PRE, err
	}

	status := D0PRE

	// D0PRE -> D0: person has any repo with d0enabled=true.
	if status == D0PRE && anyRepo(repos, func(r *model.Repository) bool { return r.D0Enabled }) {
		status = D0
	}

	// D0 -> D1UNLOCKED: grade for d0 exists and score >= threshold.
	if status == D0 {
		if ok, err := m.passed(ctx, personID, "d0"); err != nil {
			return status, err
		} else if ok {
			status = D1Unlocked
		}
	}

	// D1UNLOCKED -> D1TEAMSET: person belongs to a team with sdmmd1=true.
	if status == D1Unlocked && anyTeam(teams, func(t *model.Team) bool { return t.SDMMD1 }) {
		status = D1TeamSet
	}

	// D1TEAMSET -> D1: person has a repo with d1enabled=true.
	if status == D1TeamSet && anyRepo(repos, func(r *model.Repository) bool { return r.D1Enabled }) {
		status = D1
	}

	// D1 -> D2: grade for d1 exists and score >= threshold. Side
	// effect: set d2enabled=true on every d1-enabled repo of this person.
	if status == D1 {
		ok, err := m.passed(ctx, personID, "d1")
		if err != nil {
			return status, err
		}
		if ok {
			for _, r := range repos {
				if r.D1Enabled && !r.D2Enabled {
					r.D2Enabled = true
					if err := m.store.UpsertRepository(ctx, r); err != nil {
						log.Printf("progression: failed to set d2enabled on repo %s: %v", r.ID, err)
					}
				}
			}
			status = D2
		}
	}

	// D2 -> D3PRE: grade for d2 exists and score >= threshold.
	if status == D2 {
		if ok, err := m.passed(ctx, personID, "d2"); err != nil {
			return status, err
		} else if ok {
			status = D3PRE
		}
	}

	// D3PRE -> D3: some repo has both d2enabled=true and sddmD3pr=true.
	if status == D3PRE && anyRepo(repos, func(r *model.Repository) bool { return r.D2Enabled && r.SDMMD3PR }) {
		status = D3
	}

	// D3 is terminal: set d3enabled=true on every d2-enabled repo, on
	// every re-entry. The source performs this write unconditionally
	// (spec §9 Open Question); we preserve that since it is idempotent.
	if status == D3 {
		for _, r := range repos {
			if r.D2Enabled {
				r.D3Enabled = true
				if err := m.store.UpsertRepository(ctx, r); err != nil {
					log.Printf("progression: failed to set d3enabled on repo %s: %v", r.ID, err)
				}
			}
		}
	}

	// Monotonic write-back: never persist below the previously cached
	// status for this person.
	final := Max(status, ParseStatus(person.SDMMStatus))
	person.SDMMStatus = final.String()
	if err := m.store.UpsertPerson(ctx, person); err != nil {
		// Best-effort cache; the return value is still valid for the
		// caller (spec §4.D).
		log.Printf("progression: failed to persist status for %s: %v", personID, err)
	}

	return final, nil
}

func (m *Machine) passed(ctx context.Context, personID, delivID string) (bool, error) {
	g, err := m.store.GetGrade(ctx, personID, delivID)
	if err != nil {
		return false, err
	}
	if g == nil {
		return false, nil
	}
	return g.Score >= m.thresholds.PassScore, nil
}

func anyRepo(repos []*model.Repository, pred func(*model.Repository) bool) bool {
	for _, r := range repos {
		if pred(r) {
			return true
		}
	}
	return false
}

func anyTeam(teams []*model.Team, pred func(*model.Team) bool) bool {
	for _, t := range teams {
		if pred(t) {
			return true
		}
	}
	return false
}
