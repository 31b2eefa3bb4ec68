package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/handlers"
	"github.com/stanstork/medequip-events/internal/models"
	"github.com/stanstork/medequip-events/internal/pipeline"
	"github.com/stanstork/medequip-events/internal/repository"
	"github.com/stanstork/medequip-events/internal/routes"
)

const secret = "test-secret"

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, env event.Envelope) (string, error) {
	args := m.Called(ctx, env)
	return args.String(0), args.Error(1)
}

type fixture struct {
	router        http.Handler
	submitter     *mockSubmitter
	alerts        *repository.MemoryAlertRepo
	failures      *repository.MemoryFailureRepo
	notifications *repository.MemoryNotificationRepo
}

func newFixture(t *testing.T, checks map[string]handlers.HealthCheck) *fixture {
	t.Helper()
	f := &fixture{
		submitter:     &mockSubmitter{},
		alerts:        repository.NewMemoryAlertRepo(),
		failures:      repository.NewMemoryFailureRepo(),
		notifications: repository.NewMemoryNotificationRepo(),
	}
	logger := zerolog.Nop()
	f.router = routes.NewRouter(secret,
		handlers.NewHealthHandler(checks),
		handlers.NewEventHandler(f.submitter, logger),
		handlers.NewAlertHandler(f.alerts, f.failures, logger),
		handlers.NewNotificationHandler(f.notifications, logger),
	)
	return f
}

func token(t *testing.T, sub string, roles ...string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"name":  "Dana Ruiz",
		"roles": roles,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(method, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("User-Agent", "ward-terminal/2.1")
	req.RemoteAddr = "10.1.2.3:5123"
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, map[string]handlers.HealthCheck{
		"redis": func(context.Context) error { return nil },
	})

	rec := f.do(http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","dependencies":{"redis":"ok"}}`, rec.Body.String())
}

func TestHealthReportsFailingDependency(t *testing.T) {
	f := newFixture(t, map[string]handlers.HealthCheck{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})

	rec := f.do(http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestSubmitEvent_BuildsEnvelopeFromToken(t *testing.T) {
	f := newFixture(t, nil)
	var submitted event.Envelope
	f.submitter.On("Submit", mock.Anything, mock.AnythingOfType("event.Envelope")).
		Run(func(args mock.Arguments) { submitted = args.Get(1).(event.Envelope) }).
		Return("run-1", nil)

	rec := f.do(http.MethodPost, "/api/events", token(t, "u-42", "technician"), `{
		"category": "Contingency",
		"action": "created",
		"subject": {"kind": "live", "type": "contingency", "id": "C-7", "scope": {"service_id": "icu"}},
		"payload": {"impact_level": "critical"},
		"session_id": "s-1"
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, submitted.ID, body["envelope_id"])
	assert.Equal(t, "critical", body["priority"])
	assert.Equal(t, "run-1", body["run_id"])

	assert.Equal(t, event.CategoryContingency, submitted.Category)
	assert.Equal(t, "u-42", submitted.ActorID())
	assert.Equal(t, "Dana Ruiz", submitted.Actor.Name)
	assert.Equal(t, "C-7", submitted.SubjectID())
	assert.Equal(t, "10.1.2.3", submitted.Correlation.IP)
	assert.Equal(t, "ward-terminal/2.1", submitted.Correlation.UserAgent)
	assert.Equal(t, "s-1", submitted.Correlation.SessionID)
	f.submitter.AssertExpectations(t)
}

func TestSubmitEvent_DataErrorIsUnprocessable(t *testing.T) {
	f := newFixture(t, nil)
	f.submitter.On("Submit", mock.Anything, mock.Anything).
		Return("", pipeline.NewDataError(errors.New("unknown envelope category \"spaceship\"")))

	rec := f.do(http.MethodPost, "/api/events", token(t, "u-1", "operator"), `{"category":"spaceship","action":"created"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSubmitEvent_BadSubject(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/events", token(t, "u-1", "operator"), `{"category":"ticket","action":"created","subject":{"kind":"ghost"}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.submitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestSubmitEvent_RequiresToken(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/events", "", `{}`).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/events", "not-a-jwt", `{}`).Code)
}

func TestSubmitEvent_RejectsUnknownRole(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/events", token(t, "u-1", "janitor"), `{}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAlertsRestrictedToOperators(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.alerts.Create(context.Background(), repository.CreateAlertParams{
		Type: "threshold", Title: "Open tickets above limit", Severity: models.SeverityHigh,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/alerts", token(t, "u-1", "technician"), "").Code)

	rec := f.do(http.MethodGet, "/api/alerts", token(t, "u-2", "supervisor"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Open tickets above limit")
}

func TestFailuresListing(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.failures.Create(context.Background(), models.FailedEnvelope{
		EnvelopeID: "env-1", Category: "ticket", Action: "created", ErrorKind: "transient", Attempts: 3,
	})
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/api/failures?limit=5", token(t, "admin-1", "administrator"), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"envelope_id":"env-1"`)
}

func TestNotificationsListAndMarkRead(t *testing.T) {
	f := newFixture(t, nil)
	notif, err := f.notifications.Create(context.Background(), repository.CreateNotificationParams{
		UserID: "u-9", EnvelopeID: "env-1", Category: "ticket", Action: "assigned", Priority: "high", Title: "Ticket assigned",
	})
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/api/notifications", token(t, "u-9", "technician"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ticket assigned")

	other := f.do(http.MethodPost, "/api/notifications/"+notif.ID+"/read", token(t, "u-10", "technician"), "")
	assert.Equal(t, http.StatusNotFound, other.Code)

	rec = f.do(http.MethodPost, "/api/notifications/"+notif.ID+"/read", token(t, "u-9", "technician"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"read_at"`)
}
