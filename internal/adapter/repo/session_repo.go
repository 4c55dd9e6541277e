package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"breedstudio/internal/domain"
	"breedstudio/internal/infra"
	"breedstudio/internal/sqlinline"
)

// SessionRepositoryPG stores session snapshots as jsonb rows.
type SessionRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewSessionRepository constructs a repository on top of the SQL runner.
func NewSessionRepository(sql infra.SQLExecutor) *SessionRepositoryPG {
	return &SessionRepositoryPG{sql: sql}
}

// EnsureSchema creates the snapshot table when it does not exist yet.
func (r *SessionRepositoryPG) EnsureSchema(ctx context.Context) error {
	_, err := r.sql.Exec(ctx, sqlinline.QCreateBreedSessions)
	return err
}

func (r *SessionRepositoryPG) Save(ctx context.Context, snap domain.SessionSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QUpsertBreedSession, snap.ID, snap.AnimalType, raw)
	return err
}

func (r *SessionRepositoryPG) Load(ctx context.Context, id string) (*domain.SessionSnapshot, error) {
	var raw []byte
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectBreedSession, id).Scan(&raw); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var snap domain.SessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (r *SessionRepositoryPG) Delete(ctx context.Context, id string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QDeleteBreedSession, id)
	return err
}

var _ domain.SessionRepository = (*SessionRepositoryPG)(nil)
