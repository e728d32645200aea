package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// Create records a session the moment the broadcaster goes live.
func (r *Repo) Create(ctx context.Context, broadcasterID string) (Session, error) {
	s := Session{
		ID:            uuid.NewString(),
		BroadcasterID: broadcasterID,
		State:         StateLive,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO sessions(id, broadcaster_id, state, created_at)
		VALUES ($1,$2,$3,$4)`, s.ID, s.BroadcasterID, s.State, s.CreatedAt)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Session, error) {
	var s Session
	err := r.DB.QueryRow(ctx, `
		SELECT id, broadcaster_id, state, created_at, ended_at FROM sessions WHERE id=$1`, id).
		Scan(&s.ID, &s.BroadcasterID, &s.State, &s.CreatedAt, &s.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// End archives the session. State-guarded so the transition stays forward-only.
func (r *Repo) End(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE sessions SET state=$2, ended_at=now() WHERE id=$1 AND state <> $2`, id, StateEnded)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrSessionEnded
	}
	return nil
}
