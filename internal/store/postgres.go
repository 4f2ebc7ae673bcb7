package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classytest/dispatcher/internal/model"
)

// PostgresStore implements Store on a PostgreSQL backend. It is not
// wired into the default dispatcher run (MemoryStore is), but exists
// as the durable option the Store interface was designed to admit
// (spec §1: persistence is a collaborator reached only through the
// interface, not something this core builds out).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// --- Person ---

func (s *PostgresStore) GetPerson(ctx context.Context, id string) (*model.Person, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, github_id, kind, sddm_status, custom FROM persons WHERE id = $1`, id)
	p := &model.Person{}
	var custom []byte
	if err := row.Scan(&p.ID, &p.GithubID, &p.Kind, &p.SDMMStatus, &custom); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Custom = decodeCustom(custom)
	return p, nil
}

func (s *PostgresStore) UpsertPerson(ctx context.Context, p *model.Person) error {
	custom, _ := json.Marshal(p.Custom)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO persons (id, github_id, kind, sddm_status, custom)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			github_id = EXCLUDED.github_id,
			kind = EXCLUDED.kind,
			sddm_status = EXCLUDED.sddm_status,
			custom = EXCLUDED.custom`,
		p.ID, p.GithubID, p.Kind, p.SDMMStatus, custom)
	return err
}

func (s *PostgresStore) ListPersonRepos(ctx context.Context, personID string) ([]*model.Repository, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.url, r.d0_enabled, r.d1_enabled, r.d2_enabled, r.d3_enabled, r.sddm_d3pr, r.owner_id, r.custom
		FROM repositories r
		LEFT JOIN team_members tm ON tm.person_id = $1
		LEFT JOIN repository_teams rt ON rt.team_id = tm.team_id
		WHERE r.owner_id = $1 OR rt.repository_id = r.id`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Repository
	for rows.Next() {
		r := &model.Repository{}
		var custom []byte
		if err := rows.Scan(&r.ID, &r.URL, &r.D0Enabled, &r.D1Enabled, &r.D2Enabled, &r.D3Enabled, &r.SDMMD3PR, &r.OwnerID, &custom); err != nil {
			return nil, err
		}
		r.Custom = decodeCustom(custom)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListPersonTeams(ctx context.Context, personID string) ([]*model.Team, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.sdmmd0, t.sdmmd1, t.sdmmd2, t.sdmmd3, t.custom
		FROM teams t
		JOIN team_members tm ON tm.team_id = t.id
		WHERE tm.person_id = $1`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Team
	for rows.Next() {
		t := &model.Team{ID: ""}
		var custom []byte
		if err := rows.Scan(&t.ID, &t.SDMMD0, &t.SDMMD1, &t.SDMMD2, &t.SDMMD3, &custom); err != nil {
			return nil, err
		}
		t.Custom = decodeCustom(custom)
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Team ---

func (s *PostgresStore) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, sdmmd0, sdmmd1, sdmmd2, sdmmd3, custom FROM teams WHERE id = $1`, id)
	t := &model.Team{}
	var custom []byte
	if err := row.Scan(&t.ID, &t.SDMMD0, &t.SDMMD1, &t.SDMMD2, &t.SDMMD3, &custom); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.Custom = decodeCustom(custom)

	memberRows, err := s.pool.Query(ctx, `SELECT person_id FROM team_members WHERE team_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer memberRows.Close()
	for memberRows.Next() {
		var pid string
		if err := memberRows.Scan(&pid); err != nil {
			return nil, err
		}
		t.Members = append(t.Members, pid)
	}
	return t, memberRows.Err()
}

func (s *PostgresStore) UpsertTeam(ctx context.Context, t *model.Team) error {
	custom, _ := json.Marshal(t.Custom)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO teams (id, sdmmd0, sdmmd1, sdmmd2, sdmmd3, custom)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			sdmmd0 = EXCLUDED.sdmmd0, sdmmd1 = EXCLUDED.sdmmd1,
			sdmmd2 = EXCLUDED.sdmmd2, sdmmd3 = EXCLUDED.sdmmd3,
			custom = EXCLUDED.custom`,
		t.ID, t.SDMMD0, t.SDMMD1, t.SDMMD2, t.SDMMD3, custom); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1`, t.ID); err != nil {
		return err
	}
	for _, m := range t.Members {
		if _, err := tx.Exec(ctx,
			`INSERT INTO team_members (team_id, person_id) VALUES ($1, $2)`, t.ID, m); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteTeam(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) TeamNameTaken(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM teams WHERE id = $1)`, name).Scan(&exists)
	return exists, err
}

// --- Repository ---

func (s *PostgresStore) GetRepository(ctx context.Context, id string) (*model.Repository, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, url, d0_enabled, d1_enabled, d2_enabled, d3_enabled, sddm_d3pr, owner_id, custom
		FROM repositories WHERE id = $1`, id)
	r := &model.Repository{}
	var custom []byte
	if err := row.Scan(&r.ID, &r.URL, &r.D0Enabled, &r.D1Enabled, &r.D2Enabled, &r.D3Enabled, &r.SDMMD3PR, &r.OwnerID, &custom); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.Custom = decodeCustom(custom)
	return r, nil
}

func (s *PostgresStore) UpsertRepository(ctx context.Context, r *model.Repository) error {
	custom, _ := json.Marshal(r.Custom)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO repositories (id, url, d0_enabled, d1_enabled, d2_enabled, d3_enabled, sddm_d3pr, owner_id, custom)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			d0_enabled = EXCLUDED.d0_enabled, d1_enabled = EXCLUDED.d1_enabled,
			d2_enabled = EXCLUDED.d2_enabled, d3_enabled = EXCLUDED.d3_enabled,
			sddm_d3pr = EXCLUDED.sddm_d3pr, custom = EXCLUDED.custom`,
		r.ID, r.URL, r.D0Enabled, r.D1Enabled, r.D2Enabled, r.D3Enabled, r.SDMMD3PR, r.OwnerID, custom)
	return err
}

func (s *PostgresStore) DeleteRepository(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM repositories WHERE id = $1`, id)
	return err
}

// --- Grade ---

func (s *PostgresStore) GetGrade(ctx context.Context, personOrRepoID, delivID string) (*model.Grade, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT person_or_repo_id, deliv_id, score, url, ts, custom
		FROM grades WHERE person_or_repo_id = $1 AND deliv_id = $2`, personOrRepoID, delivID)
	g := &model.Grade{}
	var custom []byte
	if err := row.Scan(&g.PersonOrRepoID, &g.DelivID, &g.Score, &g.URL, &g.Timestamp, &custom); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	g.Custom = decodeCustom(custom)
	return g, nil
}

func (s *PostgresStore) UpsertGrade(ctx context.Context, g *model.Grade) error {
	custom, _ := json.Marshal(g.Custom)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO grades (person_or_repo_id, deliv_id, score, url, ts, custom)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (person_or_repo_id, deliv_id) DO UPDATE SET
			score = EXCLUDED.score, url = EXCLUDED.url, ts = EXCLUDED.ts, custom = EXCLUDED.custom`,
		g.PersonOrRepoID, g.DelivID, g.Score, g.URL, g.Timestamp, custom)
	return err
}

func decodeCustom(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
