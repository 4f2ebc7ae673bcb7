// Package store defines the persistence boundary the core consumes.
// Per spec §1 the persistence adapter itself is out of scope — this
// package is the interface the core was designed against, plus a
// MemoryStore good enough to run and test the whole dispatcher without
// a real database, and a PostgresStore for anyone wiring this up to one.
package store

import (
	"context"
	"time"

	"github.com/classytest/dispatcher/internal/model"
)

// Store is the subset of persistence operations the progression state
// machine and the provisioning orchestrator need.
type Store interface {
	// Person operations
	GetPerson(ctx context.Context, id string) (*model.Person, error)
	UpsertPerson(ctx context.Context, p *model.Person) error
	ListPersonRepos(ctx context.Context, personID string) ([]*model.Repository, error)
	ListPersonTeams(ctx context.Context, personID string) ([]*model.Team, error)

	// Team operations
	GetTeam(ctx context.Context, id string) (*model.Team, error)
	UpsertTeam(ctx context.Context, t *model.Team) error
	DeleteTeam(ctx context.Context, id string) error
	TeamNameTaken(ctx context.Context, name string) (bool, error)

	// Repository operations
	GetRepository(ctx context.Context, id string) (*model.Repository, error)
	UpsertRepository(ctx context.Context, r *model.Repository) error
	DeleteRepository(ctx context.Context, id string) error

	// Grade operations
	GetGrade(ctx context.Context, personOrRepoID, delivID string) (*model.Grade, error)
	UpsertGrade(ctx context.Context, g *model.Grade) error
}

// Clock abstracts time.Now for deterministic tests, mirroring the
// teacher's habit of stamping records with an explicit timestamp
// parameter rather than calling time.Now() deep inside store code.
type Clock func() time.Time

// RealClock is the production Clock.
func RealClock() time.Time { return time.Now() }
