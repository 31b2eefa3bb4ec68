package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stanstork/medequip-events/internal/models"
)

// In-memory repositories back the pipeline when no database is configured
// (local runs and tests). They honor the same contracts as the Postgres ones.

type MemoryAuditRepo struct {
	mu      sync.Mutex
	entries []AppendAuditParams
}

func NewMemoryAuditRepo() *MemoryAuditRepo { return &MemoryAuditRepo{} }

func (r *MemoryAuditRepo) Append(_ context.Context, params AppendAuditParams) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, params)
	return int64(len(r.entries)), nil
}

func (r *MemoryAuditRepo) Entries() []AppendAuditParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AppendAuditParams(nil), r.entries...)
}

type MemoryMetricRepo struct {
	mu     sync.Mutex
	values map[string]float64
	keys   map[string]CounterKey
}

func NewMemoryMetricRepo() *MemoryMetricRepo {
	return &MemoryMetricRepo{values: map[string]float64{}, keys: map[string]CounterKey{}}
}

func memoryCounterID(key CounterKey) string {
	hour := "-"
	if key.Hour != nil {
		hour = strconv.Itoa(*key.Hour)
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", key.MetricType, key.Granularity, key.MetricKey, key.Date.Format("2006-01-02"), hour)
}

func (r *MemoryMetricRepo) Add(_ context.Context, key CounterKey, delta float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := memoryCounterID(key)
	r.values[id] += delta
	r.keys[id] = key
	return r.values[id], nil
}

func (r *MemoryMetricRepo) Set(_ context.Context, key CounterKey, value float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := memoryCounterID(key)
	r.values[id] = value
	r.keys[id] = key
	return value, nil
}

func (r *MemoryMetricRepo) Current(_ context.Context, key CounterKey) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[memoryCounterID(key)], nil
}

func (r *MemoryMetricRepo) DailySeries(_ context.Context, metricType, metricKey string, since time.Time) ([]models.MetricPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sinceDay := since.Format("2006-01-02")
	var points []models.MetricPoint
	for id, key := range r.keys {
		if key.Granularity != models.GranularityDaily || key.MetricType != metricType || key.MetricKey != metricKey {
			continue
		}
		if key.Date.Format("2006-01-02") < sinceDay {
			continue
		}
		points = append(points, models.MetricPoint{Date: key.Date, Value: r.values[id]})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

type MemoryAlertRepo struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func NewMemoryAlertRepo() *MemoryAlertRepo { return &MemoryAlertRepo{} }

func (r *MemoryAlertRepo) Create(_ context.Context, params CreateAlertParams) (models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert := models.Alert{
		ID:        uuid.NewString(),
		Type:      params.Type,
		Title:     params.Title,
		Message:   params.Message,
		Severity:  params.Severity,
		Status:    models.AlertStatusActive,
		ExpiresAt: params.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if len(params.Data) > 0 {
		data, err := json.Marshal(params.Data)
		if err != nil {
			return models.Alert{}, err
		}
		alert.Data = data
	}
	if params.CreatedBy != "" {
		createdBy := params.CreatedBy
		alert.CreatedBy = &createdBy
	}
	r.alerts = append(r.alerts, alert)
	return alert, nil
}

func (r *MemoryAlertRepo) ListActive(_ context.Context, limit int) ([]models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []models.Alert
	for i := len(r.alerts) - 1; i >= 0; i-- {
		if r.alerts[i].Status == models.AlertStatusActive {
			active = append(active, r.alerts[i])
		}
		if limit > 0 && len(active) == limit {
			break
		}
	}
	return active, nil
}

type MemoryReminderRepo struct {
	mu        sync.Mutex
	reminders []CreateReminderParams
}

func NewMemoryReminderRepo() *MemoryReminderRepo { return &MemoryReminderRepo{} }

func (r *MemoryReminderRepo) Create(_ context.Context, params CreateReminderParams) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reminders = append(r.reminders, params)
	return uuid.NewString(), nil
}

func (r *MemoryReminderRepo) Reminders() []CreateReminderParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CreateReminderParams(nil), r.reminders...)
}

type MemoryNotificationRepo struct {
	mu            sync.Mutex
	notifications []models.Notification
}

func NewMemoryNotificationRepo() *MemoryNotificationRepo { return &MemoryNotificationRepo{} }

func (r *MemoryNotificationRepo) Create(_ context.Context, params CreateNotificationParams) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	notif := models.Notification{
		ID:         uuid.NewString(),
		UserID:     params.UserID,
		EnvelopeID: params.EnvelopeID,
		Category:   params.Category,
		Action:     params.Action,
		Priority:   params.Priority,
		Title:      params.Title,
		Message:    params.Message,
		CreatedAt:  time.Now().UTC(),
	}
	if len(params.Metadata) > 0 {
		data, err := json.Marshal(params.Metadata)
		if err != nil {
			return models.Notification{}, err
		}
		notif.Metadata = data
	}
	r.notifications = append(r.notifications, notif)
	return notif, nil
}

func (r *MemoryNotificationRepo) ListRecent(_ context.Context, userID string, limit int) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for i := len(r.notifications) - 1; i >= 0; i-- {
		if r.notifications[i].UserID == userID {
			out = append(out, r.notifications[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryNotificationRepo) MarkRead(_ context.Context, userID, notificationID string) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.notifications {
		if r.notifications[i].ID == notificationID && r.notifications[i].UserID == userID {
			now := time.Now().UTC()
			r.notifications[i].ReadAt = &now
			return r.notifications[i], nil
		}
	}
	return models.Notification{}, sql.ErrNoRows
}

// MemoryDirectory is a mutable user directory; lookups read current state.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryDirectory(users ...models.User) *MemoryDirectory {
	d := &MemoryDirectory{users: map[string]models.User{}}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *MemoryDirectory) Put(user models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *MemoryDirectory) GetUserByID(_ context.Context, userID string) (models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[userID]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

func (d *MemoryDirectory) ListActiveByRoles(_ context.Context, roles []models.UserRole) ([]models.User, error) {
	return d.filter(func(u models.User) bool { return u.IsActive && u.HasRole(roles...) }), nil
}

func (d *MemoryDirectory) ListActiveByScope(_ context.Context, serviceID, areaID string) ([]models.User, error) {
	if serviceID == "" && areaID == "" {
		return nil, nil
	}
	return d.filter(func(u models.User) bool {
		if !u.IsActive {
			return false
		}
		inService := serviceID != "" && u.ServiceID != nil && *u.ServiceID == serviceID
		inArea := areaID != "" && u.AreaID != nil && *u.AreaID == areaID
		return inService || inArea
	}), nil
}

func (d *MemoryDirectory) filter(keep func(models.User) bool) []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []models.User
	for _, u := range d.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type MemoryFailureRepo struct {
	mu       sync.Mutex
	failures []models.FailedEnvelope
}

func NewMemoryFailureRepo() *MemoryFailureRepo { return &MemoryFailureRepo{} }

func (r *MemoryFailureRepo) Create(_ context.Context, f models.FailedEnvelope) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.ID = uuid.NewString()
	if f.FailedAt.IsZero() {
		f.FailedAt = time.Now().UTC()
	}
	r.failures = append(r.failures, f)
	return f.ID, nil
}

func (r *MemoryFailureRepo) ListRecent(_ context.Context, limit int) ([]models.FailedEnvelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FailedEnvelope
	for i := len(r.failures) - 1; i >= 0; i-- {
		out = append(out, r.failures[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
