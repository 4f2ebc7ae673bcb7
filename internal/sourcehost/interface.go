// Package sourcehost defines the source-hosting adapter (spec §6):
// repository creation, webhook install, and URL lookups. The real
// integration (GitHub/GitLab import, webhook registration) is
// explicitly out of scope (spec §1) — this package only carries the
// interface the Provisioning Orchestrator depends on, plus a minimal
// HTTP-client reference implementation.
package sourcehost

import "context"

// Adapter is the source-hosting collaborator the orchestrator calls.
type Adapter interface {
	// ProvisionRepository clones the bootstrap repo into name, grants
	// teams access, and installs the webhook. Returns true on full
	// success, false on any failure; the orchestrator owns rollback
	// of any local state it already created.
	ProvisionRepository(ctx context.Context, name string, teams []string, importURL, webhookURL string) (bool, error)

	GetRepositoryURL(ctx context.Context, repoID string) (string, error)
	GetTeamURL(ctx context.Context, teamID string) (string, error)
}
