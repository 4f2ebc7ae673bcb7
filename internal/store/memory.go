package store

import (
	"context"
	"sync"

	"github.com/classytest/dispatcher/internal/model"
)

// MemoryStore is an in-process Store implementation. It is the default
// backend: good enough to run the dispatcher end to end and to drive
// the property/scenario tests without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	persons map[string]*model.Person
	teams   map[string]*model.Team
	repos   map[string]*model.Repository
	grades  map[string]*model.Grade // keyed by personOrRepoID+"|"+delivID
	now     Clock
}

// NewMemoryStore initializes an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		persons: make(map[string]*model.Person),
		teams:   make(map[string]*model.Team),
		repos:   make(map[string]*model.Repository),
		grades:  make(map[string]*model.Grade),
		now:     RealClock,
	}
}

// WithClock overrides the store's Clock, e.g. to pin a fake time in
// tests that assert on Grade.Timestamp.
func (s *MemoryStore) WithClock(clock Clock) *MemoryStore {
	s.now = clock
	return s
}

func gradeKey(personOrRepoID, delivID string) string {
	return personOrRepoID + "|" + delivID
}

// --- Person ---

func (s *MemoryStore) GetPerson(ctx context.Context, id string) (*model.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpsertPerson(ctx context.Context, p *model.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.persons[p.ID] = &cp
	return nil
}

func (s *MemoryStore) ListPersonRepos(ctx context.Context, personID string) ([]*model.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Repository
	for _, r := range s.repos {
		if r.OwnerID == personID {
			cp := *r
			out = append(out, &cp)
			continue
		}
		for _, teamID := range r.Teams {
			if t, ok := s.teams[teamID]; ok && t.HasMember(personID) {
				cp := *r
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) ListPersonTeams(ctx context.Context, personID string) ([]*model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Team
	for _, t := range s.teams {
		if t.HasMember(personID) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Team ---

func (s *MemoryStore) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) UpsertTeam(ctx context.Context, t *model.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.teams[t.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteTeam(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.teams, id)
	return nil
}

func (s *MemoryStore) TeamNameTaken(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.teams[name]
	return ok, nil
}

// --- Repository ---

func (s *MemoryStore) GetRepository(ctx context.Context, id string) (*model.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.repos[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) UpsertRepository(ctx context.Context, r *model.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.repos[r.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteRepository(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.repos, id)
	return nil
}

// --- Grade ---

func (s *MemoryStore) GetGrade(ctx context.Context, personOrRepoID, delivID string) (*model.Grade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grades[gradeKey(personOrRepoID, delivID)]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) UpsertGrade(ctx context.Context, g *model.Grade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	if cp.Timestamp.IsZero() {
		cp.Timestamp = s.now()
	}
	s.grades[gradeKey(g.PersonOrRepoID, g.DelivID)] = &cp
	return nil
}
