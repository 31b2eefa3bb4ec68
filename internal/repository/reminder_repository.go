package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

type ReminderRepository interface {
	Create(ctx context.Context, params CreateReminderParams) (string, error)
}

type CreateReminderParams struct {
	RelatedType  string
	RelatedID    string
	ReminderDate time.Time
	ReminderType string
	Data         map[string]interface{}
}

type reminderRepository struct {
	db *sql.DB
}

func NewReminderRepository(db *sql.DB) ReminderRepository {
	return &reminderRepository{db: db}
}

func (r *reminderRepository) Create(ctx context.Context, params CreateReminderParams) (string, error) {
	const query = `
		INSERT INTO pipeline.reminders (related_type, related_id, reminder_date, reminder_type, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	data, err := marshalJSON(params.Data)
	if err != nil {
		return "", errors.Wrap(err, "marshal reminder data")
	}
	var id string
	err = r.db.QueryRowContext(ctx, query,
		params.RelatedType, params.RelatedID, params.ReminderDate, params.ReminderType, data,
	).Scan(&id)
	if err != nil {
		return "", errors.Wrapf(err, "insert %s reminder for %s %s", params.ReminderType, params.RelatedType, params.RelatedID)
	}
	return id, nil
}
