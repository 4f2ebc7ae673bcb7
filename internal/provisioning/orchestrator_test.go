package provisioning

import (
	"context"
	"testing"

	"github.com/classytest/dispatcher/internal/config"
	"github.com/classytest/dispatcher/internal/model"
	"github.com/classytest/dispatcher/internal/progression"
	"github.com/classytest/dispatcher/internal/store"
)

// fakeAdapter is a sourcehost.Adapter whose ProvisionRepository
// succeeds unless fail is set; the URL lookups always succeed.
type fakeAdapter struct {
	fail bool
}

func (f *fakeAdapter) ProvisionRepository(ctx context.Context, name string, teams []string, importURL, webhookURL string) (bool, error) {
	return !f.fail, nil
}

func (f *fakeAdapter) GetRepositoryURL(ctx context.Context, repoID string) (string, error) {
	return "https://git.example.com/" + repoID, nil
}

func (f *fakeAdapter) GetTeamURL(ctx context.Context, teamID string) (string, error) {
	return "https://git.example.com/teams/" + teamID, nil
}

func newTestOrchestrator(adapter *fakeAdapter) (*Orchestrator, store.Store) {
	s := store.NewMemoryStore()
	cfg := config.Config{PassThreshold: 60, ProjectPrefix: "secap_"}
	machine := progression.NewMachine(s, progression.Thresholds{PassScore: cfg.PassThreshold})
	return New(s, adapter, machine, cfg), s
}

func TestProvisionD0HappyPath(t *testing.T) {
	orch, s := newTestOrchestrator(&fakeAdapter{})
	ctx := context.Background()

	if err := s.UpsertPerson(ctx, &model.Person{ID: "alice", SDMMStatus: "D0PRE"}); err != nil {
		t.Fatal(err)
	}

	result := orch.Provision(ctx, "d0", []string{"alice"})
	if result.Failure != nil {
		t.Fatalf("expected success, got failure: %s", result.Failure.Message)
	}
	if result.Status != progression.D0 {
		t.Fatalf("expected status D0, got %s", result.Status)
	}

	repo, err := s.GetRepository(ctx, "secap_alice")
	if err != nil || repo == nil {
		t.Fatalf("expected repo secap_alice to exist: %v", err)
	}
	if !repo.D0Enabled {
		t.Fatalf("expected d0enabled on secap_alice")
	}

	grade, err := s.GetGrade(ctx, "secap_alice", "d0")
	if err != nil || grade == nil {
		t.Fatalf("expected placeholder d0 grade on secap_alice: %v", err)
	}
	if grade.Score != model.GradePlaceholder {
		t.Fatalf("expected placeholder score -1, got %v", grade.Score)
	}
}

func TestProvisionIndividualD0ToD1Upgrade(t *testing.T) {
	orch, s := newTestOrchestrator(&fakeAdapter{})
	ctx := context.Background()

	s.UpsertPerson(ctx, &model.Person{ID: "alice", SDMMStatus: "D0PRE"})
	if r := orch.Provision(ctx, "d0", []string{"alice"}); r.Failure != nil {
		t.Fatalf("setup d0 failed: %s", r.Failure.Message)
	}

	s.UpsertGrade(ctx, &model.Grade{PersonOrRepoID: "alice", DelivID: "d0", Score: 72})

	result := orch.Provision(ctx, "d1", []string{"alice"})
	if result.Failure != nil {
		t.Fatalf("expected success, got failure: %s", result.Failure.Message)
	}
	if result.Status != progression.D1 {
		t.Fatalf("expected status D1, got %s", result.Status)
	}

	repo, _ := s.GetRepository(ctx, "secap_alice")
	if !repo.D1Enabled {
		t.Fatalf("expected d1enabled on secap_alice")
	}
	team, _ := s.GetTeam(ctx, "alice")
	if !team.SDMMD1 || !team.SDMMD2 || !team.SDMMD3 {
		t.Fatalf("expected sdmmd1/d2/d3 all true on alice's team, got %+v", team)
	}
	for _, d := range []string{"d1", "d2", "d3"} {
		if g, _ := s.GetGrade(ctx, "secap_alice", d); g == nil {
			t.Fatalf("expected placeholder grade for %s", d)
		}
	}
}

func TestProvisionPairedD1RejectsBelowThreshold(t *testing.T) {
	orch, s := newTestOrchestrator(&fakeAdapter{})
	ctx := context.Background()

	s.UpsertPerson(ctx, &model.Person{ID: "bob", SDMMStatus: "D0PRE"})
	s.UpsertPerson(ctx, &model.Person{ID: "carol", SDMMStatus: "D0PRE"})
	s.UpsertGrade(ctx, &model.Grade{PersonOrRepoID: "bob", DelivID: "d0", Score: 45})
	s.UpsertGrade(ctx, &model.Grade{PersonOrRepoID: "carol", DelivID: "d0", Score: 80})

	result := orch.Provision(ctx, "d1", []string{"bob", "carol"})
	if result.Failure == nil {
		t.Fatalf("expected rejection, got success with status %s", result.Status)
	}
}

func TestProvisionPairedD1HappyPath(t *testing.T) {
	orch, s := newTestOrchestrator(&fakeAdapter{})
	ctx := context.Background()

	for _, id := range []string{"bob", "carol"} {
		s.UpsertPerson(ctx, &model.Person{ID: id, SDMMStatus: "D0PRE"})
		s.UpsertRepository(ctx, &model.Repository{ID: "secap_" + id, OwnerID: id, D0Enabled: true})
		s.UpsertGrade(ctx, &model.Grade{PersonOrRepoID: id, DelivID: "d0", Score: 80})
	}

	result := orch.Provision(ctx, "d1", []string{"bob", "carol"})
	if result.Failure != nil {
		t.Fatalf("expected success, got failure: %s", result.Failure.Message)
	}

	// The fresh team's name is a 6-hex-char token containing both
	// members; find it by scanning bob's teams.
	teams, err := s.ListPersonTeams(ctx, "bob")
	if err != nil || len(teams) != 1 {
		t.Fatalf("expected bob to belong to exactly one team, got %v (err=%v)", teams, err)
	}
	team := teams[0]
	if len(team.ID) != 6 {
		t.Fatalf("expected a 6-character team name, got %q", team.ID)
	}
	if !team.HasMember("bob") || !team.HasMember("carol") {
		t.Fatalf("expected both bob and carol on the new team, got %+v", team.Members)
	}

	repo, err := s.GetRepository(ctx, team.ID)
	if err != nil || repo == nil {
		t.Fatalf("expected a repo named after the team: %v", err)
	}
	if !repo.D1Enabled || !repo.D2Enabled || !repo.D3Enabled {
		t.Fatalf("expected d1/d2/d3 all enabled on the paired repo, got %+v", repo)
	}
}

func TestProvisionRollsBackOnSourceHostingFailure(t *testing.T) {
	orch, s := newTestOrchestrator(&fakeAdapter{fail: true})
	ctx := context.Background()

	s.UpsertPerson(ctx, &model.Person{ID: "dave", SDMMStatus: "D0PRE"})

	result := orch.Provision(ctx, "d0", []string{"dave"})
	if result.Failure == nil {
		t.Fatalf("expected failure when source-hosting rejects provisioning")
	}

	if repo, _ := s.GetRepository(ctx, "secap_dave"); repo != nil {
		t.Fatalf("expected repo rolled back after source-hosting failure, found %+v", repo)
	}
	if team, _ := s.GetTeam(ctx, "dave"); team != nil {
		t.Fatalf("expected team rolled back after source-hosting failure, found %+v", team)
	}
}

func TestProvisionD0RejectsAlreadyStarted(t *testing.T) {
	orch, s := newTestOrchestrator(&fakeAdapter{})
	ctx := context.Background()

	s.UpsertPerson(ctx, &model.Person{ID: "alice", SDMMStatus: "D0"})

	result := orch.Provision(ctx, "d0", []string{"alice"})
	if result.Failure == nil {
		t.Fatalf("expected rejection for a person who already started D0")
	}
}
