package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/stanstork/medequip-events/internal/models"
)

type AuditRepository interface {
	Append(ctx context.Context, params AppendAuditParams) (int64, error)
}

type AppendAuditParams struct {
	EnvelopeID    string
	Stream        models.AuditStream
	Event         string
	AuditableType string
	AuditableID   string
	UserID        string
	OldValues     map[string]interface{}
	NewValues     map[string]interface{}
	IPAddress     string
	UserAgent     string
	Description   string
	OccurredAt    time.Time
}

type auditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Append inserts a new audit row. It never reads or updates existing rows.
func (r *auditRepository) Append(ctx context.Context, params AppendAuditParams) (int64, error) {
	const query = `
		INSERT INTO pipeline.audit_entries
			(envelope_id, stream, event, auditable_type, auditable_id, user_id,
			 old_values, new_values, ip_address, user_agent, description, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	oldValues, err := marshalJSON(params.OldValues)
	if err != nil {
		return 0, errors.Wrap(err, "marshal old values")
	}
	newValues, err := marshalJSON(params.NewValues)
	if err != nil {
		return 0, errors.Wrap(err, "marshal new values")
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		params.EnvelopeID,
		params.Stream,
		params.Event,
		params.AuditableType,
		nullString(params.AuditableID),
		nullString(params.UserID),
		oldValues,
		newValues,
		nullString(params.IPAddress),
		nullString(params.UserAgent),
		params.Description,
		params.OccurredAt,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert audit entry")
	}
	return id, nil
}

func marshalJSON(v map[string]interface{}) (interface{}, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
