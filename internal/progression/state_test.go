package progression

import (
	"context"
	"testing"

	"github.com/classytest/dispatcher/internal/model"
	"github.com/classytest/dispatcher/internal/store"
)

func TestComputeStatusStringWalksToD2WithSideEffect(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := NewMachine(s, DefaultThresholds())

	s.UpsertPerson(ctx, &model.Person{ID: "alice", SDMMStatus: "D0PRE"})
	s.UpsertRepository(ctx, &model.Repository{ID: "repo1", OwnerID: "alice", D0Enabled: true, D1Enabled: true})
	s.UpsertGrade(ctx, &model.Grade{PersonOrRepoID: "alice", DelivID: "d0", Score: 70})
	s.UpsertTeam(ctx, &model.Team{ID: "team1", Members: []string{"alice"}, SDMMD1: true})
	s.UpsertGrade(ctx, &model.Grade{PersonOrRepoID: "alice", DelivID: "d1", Score: 75})

	status, err := m.ComputeStatusString(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != D2 {
		t.Fatalf("expected D2, got %s", status)
	}

	repo, _ := s.GetRepository(ctx, "repo1")
	if !repo.D2Enabled {
		t.Fatalf("expected D1->D2 transition to set d2enabled on repo1")
	}

	person, _ := s.GetPerson(ctx, "alice")
	if person.SDMMStatus != "D2" {
		t.Fatalf("expected cached status D2, got %s", person.SDMMStatus)
	}
}

func TestComputeStatusStringNeverRegresses(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := NewMachine(s, DefaultThresholds())

	// Person was previously computed at D2, but the backing facts that
	// justified it (e.g. the d1 grade) are no longer discoverable.
	s.UpsertPerson(ctx, &model.Person{ID: "bob", SDMMStatus: "D2"})

	status, err := m.ComputeStatusString(ctx, "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != D2 {
		t.Fatalf("expected monotonic floor at D2, got %s", status)
	}
}

func TestComputeStatusStringUnregisteredPerson(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	m := NewMachine(s, DefaultThresholds())

	_, err := m.ComputeStatusString(ctx, "ghost")
	if err == nil {
		t.Fatalf("expected a validation error for an unregistered person")
	}
}

func TestStatusStringRoundTrip(t *testing.T) {
	for _, s := range []Status{D0PRE, D0, D1Unlocked, D1TeamSet, D1, D2, D3PRE, D3} {
		if got := ParseStatus(s.String()); got != s {
			t.Fatalf("round trip failed for %v: got %v", s, got)
		}
	}
}

func TestParseStatusUnknownDefaultsToD0PRE(t *testing.T) {
	if got := ParseStatus("not-a-real-status"); got != D0PRE {
		t.Fatalf("expected D0PRE for an unrecognized status string, got %v", got)
	}
}
