package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/stanstork/medequip-events/internal/models"
)

type AlertRepository interface {
	Create(ctx context.Context, params CreateAlertParams) (models.Alert, error)
	ListActive(ctx context.Context, limit int) ([]models.Alert, error)
}

type CreateAlertParams struct {
	Type      string
	Title     string
	Message   string
	Severity  models.AlertSeverity
	ExpiresAt *time.Time
	Data      map[string]interface{}
	CreatedBy string
}

type alertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) Create(ctx context.Context, params CreateAlertParams) (models.Alert, error) {
	const query = `
		INSERT INTO pipeline.alerts (type, title, message, severity, status, expires_at, data, created_by)
		VALUES ($1, $2, $3, $4, 'active', $5, $6, $7)
		RETURNING id, type, title, message, severity, status, expires_at, data, created_by, created_at
	`
	data, err := marshalJSON(params.Data)
	if err != nil {
		return models.Alert{}, errors.Wrap(err, "marshal alert data")
	}
	var expiresAt interface{}
	if params.ExpiresAt != nil {
		expiresAt = *params.ExpiresAt
	}
	row := r.db.QueryRowContext(ctx, query,
		params.Type, params.Title, params.Message, params.Severity,
		expiresAt, data, nullString(params.CreatedBy),
	)
	alert, err := scanAlert(row)
	if err != nil {
		return models.Alert{}, errors.Wrap(err, "insert alert")
	}
	return alert, nil
}

func (r *alertRepository) ListActive(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `
		SELECT id, type, title, message, severity, status, expires_at, data, created_by, created_at
		FROM pipeline.alerts
		WHERE status = 'active' AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

func scanAlert(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Alert, error) {
	var (
		alert     models.Alert
		expiresAt sql.NullTime
		data      []byte
		createdBy sql.NullString
	)
	if err := scanner.Scan(
		&alert.ID,
		&alert.Type,
		&alert.Title,
		&alert.Message,
		&alert.Severity,
		&alert.Status,
		&expiresAt,
		&data,
		&createdBy,
		&alert.CreatedAt,
	); err != nil {
		return models.Alert{}, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		alert.ExpiresAt = &t
	}
	if len(data) > 0 {
		alert.Data = data
	}
	if createdBy.Valid {
		v := createdBy.String
		alert.CreatedBy = &v
	}
	return alert, nil
}
