package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/stanstork/medequip-events/internal/models"
)

type FailureRepository interface {
	Create(ctx context.Context, failure models.FailedEnvelope) (string, error)
	ListRecent(ctx context.Context, limit int) ([]models.FailedEnvelope, error)
}

type failureRepository struct {
	db *sql.DB
}

func NewFailureRepository(db *sql.DB) FailureRepository {
	return &failureRepository{db: db}
}

func (r *failureRepository) Create(ctx context.Context, f models.FailedEnvelope) (string, error) {
	const query = `
		INSERT INTO pipeline.failed_envelopes
			(envelope_id, category, action, actor_id, error_kind, error, stack, attempts, envelope)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	var actorID interface{}
	if f.ActorID != nil {
		actorID = *f.ActorID
	}
	var envelope interface{}
	if len(f.Envelope) > 0 {
		envelope = []byte(f.Envelope)
	}
	var id string
	err := r.db.QueryRowContext(ctx, query,
		f.EnvelopeID, f.Category, f.Action, actorID, f.ErrorKind, f.Error, f.Stack, f.Attempts, envelope,
	).Scan(&id)
	if err != nil {
		return "", errors.Wrap(err, "insert failed envelope")
	}
	return id, nil
}

func (r *failureRepository) ListRecent(ctx context.Context, limit int) ([]models.FailedEnvelope, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	const query = `
		SELECT id, envelope_id, category, action, actor_id, error_kind, error, stack, attempts, envelope, failed_at
		FROM pipeline.failed_envelopes
		ORDER BY failed_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []models.FailedEnvelope
	for rows.Next() {
		var (
			f        models.FailedEnvelope
			actorID  sql.NullString
			envelope []byte
		)
		if err := rows.Scan(&f.ID, &f.EnvelopeID, &f.Category, &f.Action, &actorID,
			&f.ErrorKind, &f.Error, &f.Stack, &f.Attempts, &envelope, &f.FailedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			v := actorID.String
			f.ActorID = &v
		}
		if len(envelope) > 0 {
			f.Envelope = envelope
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return failures, nil
}
