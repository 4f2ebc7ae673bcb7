// Package provisioning implements the Provisioning Orchestrator (spec
// §4.E): transactional team/repo/grade-placeholder creation, gated by
// deliverable and progression status, with rollback on source-hosting
// failure. Grounded in the teacher's store.Coordinator epoch pattern
// ("do the local write, then the remote call, then reconcile") in
// control_plane/store/coordinator.go, adapted here to team+repo+grade
// instead of leader epochs.
package provisioning

import (
	"context"
	"log"

	"github.com/classytest/dispatcher/internal/config"
	"github.com/classytest/dispatcher/internal/model"
	"github.com/classytest/dispatcher/internal/observability"
	"github.com/classytest/dispatcher/internal/progression"
	"github.com/classytest/dispatcher/internal/sourcehost"
	"github.com/classytest/dispatcher/internal/store"
)

// Orchestrator is the entry point for provision(delivId, peopleIds).
type Orchestrator struct {
	store    store.Store
	adapter  sourcehost.Adapter
	machine  *progression.Machine
	cfg      config.Config
}

// New builds an Orchestrator over the given collaborators.
func New(s store.Store, adapter sourcehost.Adapter, machine *progression.Machine, cfg config.Config) *Orchestrator {
	return &Orchestrator{store: s, adapter: adapter, machine: machine, cfg: cfg}
}

// Provision dispatches to the D0, individual-D1-upgrade, or paired-D1
// path by (delivId, len(peopleIds)), per spec §4.E. peopleIds[0] is the
// requester. Unexpected panics are mapped to a generic staff-contact
// message rather than propagating (spec §7 boundary handling).
func (o *Orchestrator) Provision(ctx context.Context, delivID string, peopleIDs []string) (result StatusPayload) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("provisioning: recovered panic for deliv=%s people=%v: %v", delivID, peopleIDs, r)
			result = rejected(genericStaffMessage)
			observability.ProvisioningOutcomes.WithLabelValues(delivID, "panic").Inc()
		}
	}()

	switch {
	case delivID == "d0" && len(peopleIDs) == 1:
		result = o.provisionD0(ctx, peopleIDs[0])
	case delivID == "d1" && len(peopleIDs) == 1:
		result = o.provisionIndividualD1(ctx, peopleIDs[0])
	case delivID == "d1" && len(peopleIDs) == 2:
		result = o.provisionPairedD1(ctx, peopleIDs[0], peopleIDs[1])
	default:
		result = rejected("unsupported deliverable/team-size combination")
	}

	outcome := "success"
	if result.Failure != nil {
		outcome = "rejected"
	}
	observability.ProvisioningOutcomes.WithLabelValues(delivID, outcome).Inc()
	return result
}

// provisionD0 creates a solo team+repo for a brand new person (spec
// §4.E D0 path).
func (o *Orchestrator) provisionD0(ctx context.Context, personID string) StatusPayload {
	person, err := o.store.GetPerson(ctx, personID)
	if err != nil {
		log.Printf("provisioning: lookup person %s: %v", personID, err)
		return rejected(genericStaffMessage)
	}
	if person == nil {
		return rejected("person is not registered")
	}
	if progression.ParseStatus(person.SDMMStatus) != progression.D0PRE {
		return rejected("this person has already started D0")
	}

	team := &model.Team{
		ID:      personID,
		Members: []string{personID},
		SDMMD0:  true,
	}
	repoName := o.cfg.ProjectPrefix + personID
	repo := &model.Repository{
		ID:        repoName,
		OwnerID:   personID,
		Teams:     []string{team.ID},
		D0Enabled: true,
	}

	if err := o.createLocal(ctx, team, repo); err != nil {
		log.Printf("provisioning: d0 local create failed for %s: %v", personID, err)
		return rejected(genericStaffMessage)
	}

	ok, err := o.adapter.ProvisionRepository(ctx, repoName, []string{team.ID}, o.cfg.BootstrapImportURL, o.cfg.WebhookURL())
	if err != nil || !ok {
		o.rollback(ctx, team.ID, repo.ID)
		log.Printf("provisioning: d0 source-hosting failed for %s: err=%v ok=%v", personID, err, ok)
		return rejected("repository setup failed; please try again")
	}

	if err := o.persistURLs(ctx, team, repo); err != nil {
		o.rollback(ctx, team.ID, repo.ID)
		return rejected(genericStaffMessage)
	}

	placeholder := &model.Grade{PersonOrRepoID: repo.ID, DelivID: "d0", Score: model.GradePlaceholder}
	if err := o.store.UpsertGrade(ctx, placeholder); err != nil {
		log.Printf("provisioning: d0 placeholder grade write failed for %s: %v", personID, err)
	}

	return o.finish(ctx, personID)
}

// provisionIndividualD1 flips d1enabled on an already-provisioned
// solo repo once its owner has passed d0 (spec §4.E Individual
// D0→D1 upgrade).
func (o *Orchestrator) provisionIndividualD1(ctx context.Context, personID string) StatusPayload {
	person, err := o.store.GetPerson(ctx, personID)
	if err != nil || person == nil {
		return rejected("person is not registered")
	}

	grade, err := o.store.GetGrade(ctx, personID, "d0")
	if err != nil {
		log.Printf("provisioning: lookup d0 grade for %s: %v", personID, err)
		return rejected(genericStaffMessage)
	}
	if grade == nil || grade.Score < o.cfg.PassThreshold {
		return rejected("d0 must be passed before unlocking d1")
	}

	repos, err := o.store.ListPersonRepos(ctx, personID)
	if err != nil {
		return rejected(genericStaffMessage)
	}
	var target *model.Repository
	for _, r := range repos {
		if r.D0Enabled {
			target = r
			break
		}
	}
	if target == nil {
		return rejected("no d0 repository found for this person")
	}
	if target.D1Enabled {
		return rejected("d1 is already enabled for this person")
	}

	target.D1Enabled = true
	if err := o.store.UpsertRepository(ctx, target); err != nil {
		log.Printf("provisioning: d1 upgrade repo write failed for %s: %v", personID, err)
		return rejected(genericStaffMessage)
	}

	teams, err := o.store.ListPersonTeams(ctx, personID)
	if err == nil {
		for _, t := range teams {
			t.SDMMD1, t.SDMMD2, t.SDMMD3 = true, true, true
			if err := o.store.UpsertTeam(ctx, t); err != nil {
				log.Printf("provisioning: d1 upgrade team write failed for %s: %v", personID, err)
			}
		}
	}

	o.createPlaceholderGrades(ctx, target.ID, "d1", "d2", "d3")
	return o.finish(ctx, personID)
}

// provisionPairedD1 creates a fresh two-person team and repo once both
// members have independently passed d0 (spec §4.E Paired D1).
func (o *Orchestrator) provisionPairedD1(ctx context.Context, first, second string) StatusPayload {
	if first == second {
		return rejected("a team must have two distinct members")
	}

	for _, personID := range []string{first, second} {
		person, err := o.store.GetPerson(ctx, personID)
		if err != nil || person == nil {
			return rejected("all teammates must be registered")
		}
		grade, err := o.store.GetGrade(ctx, personID, "d0")
		if err != nil {
			log.Printf("provisioning: lookup d0 grade for %s: %v", personID, err)
			return rejected(genericStaffMessage)
		}
		if grade == nil || grade.Score < o.cfg.PassThreshold {
			return rejected("all teammates must have achieved a score of 60% or more on d0")
		}
		status, err := o.machine.ComputeStatusString(ctx, personID)
		if err != nil {
			log.Printf("provisioning: compute status for %s: %v", personID, err)
			return rejected(genericStaffMessage)
		}
		if status != progression.D1Unlocked {
			return rejected("all teammates must be unlocked for d1")
		}
	}

	teamName, err := randomTeamName(ctx, o.store)
	if err != nil {
		log.Printf("provisioning: team name generation failed: %v", err)
		return rejected(genericStaffMessage)
	}

	team := &model.Team{
		ID:      teamName,
		Members: []string{first, second},
		SDMMD1:  true,
		SDMMD2:  true,
		SDMMD3:  true,
	}
	repo := &model.Repository{
		ID:        teamName,
		Teams:     []string{team.ID},
		D1Enabled: true,
		D2Enabled: true,
		D3Enabled: true,
	}

	if err := o.createLocal(ctx, team, repo); err != nil {
		log.Printf("provisioning: paired d1 local create failed for %s+%s: %v", first, second, err)
		return rejected(genericStaffMessage)
	}

	ok, err := o.adapter.ProvisionRepository(ctx, teamName, []string{team.ID}, o.cfg.BootstrapImportURL, o.cfg.WebhookURL())
	if err != nil || !ok {
		o.rollback(ctx, team.ID, repo.ID)
		log.Printf("provisioning: paired d1 source-hosting failed for %s+%s: err=%v ok=%v", first, second, err, ok)
		return rejected("repository setup failed; please try again")
	}

	if err := o.persistURLs(ctx, team, repo); err != nil {
		o.rollback(ctx, team.ID, repo.ID)
		return rejected(genericStaffMessage)
	}

	o.createPlaceholderGrades(ctx, repo.ID, "d1", "d2", "d3")
	return o.finish(ctx, first)
}

// createLocal writes the team then the repo, failing as a consistency
// error (no rollback — spec §7) if either already exists locally.
func (o *Orchestrator) createLocal(ctx context.Context, team *model.Team, repo *model.Repository) error {
	if existing, err := o.store.GetTeam(ctx, team.ID); err == nil && existing != nil {
		return &model.ConsistencyError{Reason: "team already exists: " + team.ID}
	}
	if existing, err := o.store.GetRepository(ctx, repo.ID); err == nil && existing != nil {
		return &model.ConsistencyError{Reason: "repository already exists: " + repo.ID}
	}
	if err := o.store.UpsertTeam(ctx, team); err != nil {
		return err
	}
	if err := o.store.UpsertRepository(ctx, repo); err != nil {
		return err
	}
	return nil
}

// rollback deletes the team and repo created moments ago, in response
// to a source-hosting or persistence failure (spec §4.E "on any
// failure after local team/repo creation, roll back by deleting both").
func (o *Orchestrator) rollback(ctx context.Context, teamID, repoID string) {
	var rolledBack []string
	if err := o.store.DeleteTeam(ctx, teamID); err != nil {
		log.Printf("provisioning: rollback failed to delete team %s: %v", teamID, err)
	} else {
		rolledBack = append(rolledBack, "team:"+teamID)
	}
	if err := o.store.DeleteRepository(ctx, repoID); err != nil {
		log.Printf("provisioning: rollback failed to delete repo %s: %v", repoID, err)
	} else {
		rolledBack = append(rolledBack, "repo:"+repoID)
	}
	log.Printf("provisioning: %v", &model.ProvisioningRollbackError{RolledBack: rolledBack})
}

// persistURLs fetches the just-provisioned team/repo URLs from the
// source-hosting adapter and writes them back locally.
func (o *Orchestrator) persistURLs(ctx context.Context, team *model.Team, repo *model.Repository) error {
	teamURL, err := o.adapter.GetTeamURL(ctx, team.ID)
	if err != nil {
		log.Printf("provisioning: fetch team URL for %s: %v", team.ID, err)
	}
	repoURL, err := o.adapter.GetRepositoryURL(ctx, repo.ID)
	if err != nil {
		log.Printf("provisioning: fetch repo URL for %s: %v", repo.ID, err)
	}
	_ = teamURL // no dedicated field on Team today; URL lives on the Repository record per store schema
	repo.URL = repoURL
	return o.store.UpsertRepository(ctx, repo)
}

// createPlaceholderGrades writes a score=-1 placeholder grade for each
// delivID against repoID, logging (not failing) individual write errors.
func (o *Orchestrator) createPlaceholderGrades(ctx context.Context, repoID string, delivIDs ...string) {
	for _, d := range delivIDs {
		g := &model.Grade{PersonOrRepoID: repoID, DelivID: d, Score: model.GradePlaceholder}
		if err := o.store.UpsertGrade(ctx, g); err != nil {
			log.Printf("provisioning: placeholder grade write failed for %s/%s: %v", repoID, d, err)
		}
	}
}

// finish runs the progression walk for personID and wraps the result
// in a StatusPayload (spec §4.E "all three paths finish by calling
// computeStatusString").
func (o *Orchestrator) finish(ctx context.Context, personID string) StatusPayload {
	status, err := o.machine.ComputeStatusString(ctx, personID)
	if err != nil {
		log.Printf("provisioning: final status computation failed for %s: %v", personID, err)
		return rejected(genericStaffMessage)
	}
	return StatusPayload{Status: status}
}
