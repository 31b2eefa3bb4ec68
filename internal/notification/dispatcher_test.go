package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/medequip-events/internal/cache"
	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/models"
	"github.com/stanstork/medequip-events/internal/repository"
)

var fixedNow = time.Date(2024, 6, 3, 10, 15, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	name  string
	sent  []string
	fails bool
}

func (n *recordingNotifier) Notify(_ context.Context, recipient models.User, _ models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fails {
		return errors.New("smtp: connection reset")
	}
	n.sent = append(n.sent, recipient.ID)
	return nil
}

func (n *recordingNotifier) String() string { return n.name }

type staticResolver struct {
	users []models.User
	err   error
}

func (r staticResolver) Resolve(context.Context, event.Envelope) ([]models.User, error) {
	return r.users, r.err
}

type harness struct {
	mr        *miniredis.Miniredis
	repo      *repository.MemoryNotificationRepo
	limiter   *RateLimiter
	broadcast *recordingNotifier
	mail      *recordingNotifier
	logs      *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := cache.NewRedisStore(client)

	limiter := NewRateLimiter(store, nil)
	limiter.now = func() time.Time { return fixedNow }
	return &harness{
		mr:        mr,
		repo:      repository.NewMemoryNotificationRepo(),
		limiter:   limiter,
		broadcast: &recordingNotifier{name: "broadcast"},
		mail:      &recordingNotifier{name: "mail"},
		logs:      &bytes.Buffer{},
	}
}

func (h *harness) dispatcher(resolver RecipientResolver) *Dispatcher {
	client := redis.NewClient(&redis.Options{Addr: h.mr.Addr()})
	claims := cache.NewClaimer(cache.NewRedisStore(client), time.Hour)
	return NewDispatcher(h.repo, resolver, h.limiter, claims, DispatcherConfig{
		Broadcast: h.broadcast,
		Mail:      h.mail,
	}, zerolog.New(h.logs))
}

func users(n int) []models.User {
	out := make([]models.User, n)
	for i := range out {
		out[i] = models.User{ID: fmt.Sprintf("u-%03d", i), Email: fmt.Sprintf("u%d@hospital.test", i), IsActive: true}
	}
	return out
}

func criticalContingency() event.Envelope {
	return event.NewContingencyEvent(event.ActionEscalated,
		event.WithSubject(event.LiveSubject{EntityType: "contingency", ID: "C-9"}),
		event.WithPayload(event.Payload{"code": "C-9", "impact_level": "critical"}))
}

func TestDispatch_DropsOverHourlyCap(t *testing.T) {
	h := newHarness(t)
	d := h.dispatcher(nil)
	env := criticalContingency()

	result, err := d.Dispatch(context.Background(), env, users(101))

	require.NoError(t, err)
	assert.Equal(t, 100, result.Sent)
	assert.Equal(t, 1, result.Dropped)
	assert.Contains(t, h.logs.String(), "notification rate limit reached")
	notifs, err := h.repo.ListRecent(context.Background(), "u-100", 0)
	require.NoError(t, err)
	assert.Empty(t, notifs)

	// The next hour starts a fresh budget.
	h.limiter.now = func() time.Time { return fixedNow.Add(time.Hour) }
	other := criticalContingency()
	result, err = d.Dispatch(context.Background(), other, users(1))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
}

func TestDispatch_CapDependsOnPriority(t *testing.T) {
	h := newHarness(t)
	d := h.dispatcher(nil)
	env := event.NewEquipmentEvent(event.ActionUpdated,
		event.WithSubject(event.LiveSubject{EntityType: "equipment", ID: "EQ-1"}))
	require.Equal(t, event.PriorityNormal, env.Priority)

	result, err := d.Dispatch(context.Background(), env, users(25))

	require.NoError(t, err)
	assert.Equal(t, 20, result.Sent)
	assert.Equal(t, 5, result.Dropped)
}

func TestDispatch_RetryDoesNotDoubleCountRateLimit(t *testing.T) {
	h := newHarness(t)
	d := h.dispatcher(nil)
	env := criticalContingency()
	recipients := users(3)

	first, err := d.Dispatch(context.Background(), env, recipients)
	require.NoError(t, err)
	second, err := d.Dispatch(context.Background(), env, recipients)
	require.NoError(t, err)

	assert.Equal(t, 3, first.Sent)
	assert.Equal(t, 3, second.Skipped)
	count, err := h.mr.Get(h.limiter.Key(event.CategoryContingency, fixedNow))
	require.NoError(t, err)
	assert.Equal(t, "3", count)
	assert.Len(t, h.broadcast.sent, 3)
}

func TestChannels(t *testing.T) {
	h := newHarness(t)
	d := h.dispatcher(nil)

	assert.Equal(t,
		[]models.NotificationChannel{models.ChannelDatabase, models.ChannelBroadcast, models.ChannelMail},
		d.Channels(criticalContingency()))

	updated := event.NewEquipmentEvent(event.ActionUpdated)
	assert.Equal(t, []models.NotificationChannel{models.ChannelDatabase, models.ChannelBroadcast}, d.Channels(updated))

	created := event.NewEquipmentEvent(event.ActionCreated)
	assert.Contains(t, d.Channels(created), models.ChannelMail)

	calibrationCreated := event.NewCalibrationEvent(event.ActionCreated)
	assert.NotContains(t, d.Channels(calibrationCreated), models.ChannelMail)
}

func TestConsume_ChannelFailureDegrades(t *testing.T) {
	h := newHarness(t)
	h.mail.fails = true
	d := h.dispatcher(staticResolver{users: users(2)})

	outcome := d.Consume(context.Background(), criticalContingency())

	require.NoError(t, outcome.Err)
	assert.Len(t, outcome.Degraded, 2)
	assert.Len(t, h.broadcast.sent, 2)
	notifs, err := h.repo.ListRecent(context.Background(), "u-000", 0)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, "Critical: Contingency escalated", notifs[0].Title)
}

func TestConsume_ResolveErrorFails(t *testing.T) {
	h := newHarness(t)
	d := h.dispatcher(staticResolver{err: errors.New("directory down")})

	outcome := d.Consume(context.Background(), criticalContingency())

	require.Error(t, outcome.Err)
}

func TestRateLimiter_CapsAndKey(t *testing.T) {
	limiter := NewRateLimiter(nil, map[string]int64{"high": 75})

	assert.Equal(t, int64(100), limiter.Cap(event.PriorityCritical))
	assert.Equal(t, int64(75), limiter.Cap(event.PriorityHigh))
	assert.Equal(t, int64(20), limiter.Cap(event.PriorityNormal))
	assert.Equal(t, int64(10), limiter.Cap(event.Priority("low")))
	assert.Equal(t, "notify_rate:ticket:2024060310", limiter.Key(event.CategoryTicket, fixedNow))
}

func TestParseAlwaysEmail(t *testing.T) {
	table := ParseAlwaysEmail(map[string][]string{"training": {"scheduled", " "}})

	assert.Equal(t, []event.Action{event.ActionScheduled}, table[event.CategoryTraining])
	assert.Contains(t, table, event.CategoryContingency)
}

type fakeMailer struct {
	to      []string
	subject string
	body    string
}

func (m *fakeMailer) Send(to []string, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return nil
}

func TestEmailNotifier_FormatsMessage(t *testing.T) {
	mailer := &fakeMailer{}
	notifier := NewEmailNotifier(mailer, zerolog.Nop())

	err := notifier.Notify(context.Background(),
		models.User{ID: "u-1", Name: "Sam", Email: "sam@hospital.test"},
		models.Notification{ID: "n-1", Title: "Contingency escalated", Message: "contingency C-9 escalated", Category: "contingency", Action: "escalated", Priority: "critical"})

	require.NoError(t, err)
	assert.Equal(t, []string{"sam@hospital.test"}, mailer.to)
	assert.Equal(t, "[MedEquip][CRITICAL] Contingency escalated", mailer.subject)
	assert.Contains(t, mailer.body, "Hello Sam,")
	assert.Contains(t, mailer.body, "Priority: critical")
}

func TestBroadcastNotifier_Publishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	sub := client.Subscribe(context.Background(), Channel("u-1"))
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	notifier := NewBroadcastNotifier(cache.NewRedisStore(client))
	require.NoError(t, notifier.Notify(context.Background(), models.User{ID: "u-1"}, models.Notification{ID: "n-1", Title: "hello"}))

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "notifications:user:u-1", msg.Channel)
	assert.Contains(t, msg.Payload, `"title":"hello"`)
}
