package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/internal/models"
	"github.com/noah-isme/shiftboard-api/pkg/config"
	"github.com/noah-isme/shiftboard-api/pkg/mailer"
)

type userDirectoryStub struct {
	users map[string]*models.User
}

func (s userDirectoryStub) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s userDirectoryStub) ListActiveByRole(_ context.Context, role models.Role) ([]models.User, error) {
	var out []models.User
	for _, u := range s.users {
		if u.Role == role && u.Active {
			out = append(out, *u)
		}
	}
	return out, nil
}

type mailerStub struct {
	mu       sync.Mutex
	sent     []mailer.Message
	failures int
}

func (m *mailerStub) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailerStub) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

func directory() userDirectoryStub {
	return userDirectoryStub{users: map[string]*models.User{
		"alice": {ID: "alice", Email: "alice@example.com", DisplayName: "Alice", Role: models.RoleMember, Active: true},
		"gone":  {ID: "gone", Email: "gone@example.com", Role: models.RoleMember, Active: false},
		"mgr-1": {ID: "mgr-1", Email: "m1@example.com", DisplayName: "Morgan", Role: models.RoleManager, Active: true},
		"mgr-2": {ID: "mgr-2", Email: "m2@example.com", Role: models.RoleManager, Active: true},
		"mgr-3": {ID: "mgr-3", Email: "m3@example.com", Role: models.RoleManager, Active: false},
	}}
}

func startNotifications(t *testing.T, m mailer.Mailer, retries int) *NotificationService {
	t.Helper()
	svc := NewNotificationService(directory(), m, NewMetricsService(), zap.NewNop(), config.NotificationConfig{
		Workers:    2,
		MaxRetries: retries,
		RetryDelay: 10 * time.Millisecond,
	})
	svc.Start(context.Background())
	return svc
}

func drain(t *testing.T, svc *NotificationService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Drain(ctx))
}

func TestNotifyDeliversToRecipient(t *testing.T) {
	m := &mailerStub{}
	svc := startNotifications(t, m, 0)

	svc.Notify(context.Background(), Notification{
		Kind:        NotifySignupConfirmed,
		RecipientID: "alice",
		Data:        map[string]string{"shift_title": "Bar", "start_time": "2024-05-01 18:00 UTC"},
	})
	svc.Notify(context.Background(), Notification{Kind: NotifySignupConfirmed, RecipientID: "gone"})
	svc.Notify(context.Background(), Notification{Kind: NotifySignupConfirmed, RecipientID: "nobody"})
	drain(t, svc)

	sent := m.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@example.com", sent[0].ToAddress)
	assert.Equal(t, "You're signed up: Bar", sent[0].Subject)
	assert.Contains(t, sent[0].PlainText, "Hi Alice")
}

func TestNotifyFansOutToActiveManagers(t *testing.T) {
	m := &mailerStub{}
	svc := startNotifications(t, m, 0)

	svc.Notify(context.Background(), Notification{
		Kind:          NotifyProposalSubmitted,
		RecipientRole: models.RoleManager,
		Data:          map[string]string{"title": "Quiz", "proposer_id": "alice"},
	})
	drain(t, svc)

	sent := m.messages()
	require.Len(t, sent, 2)
	addresses := []string{sent[0].ToAddress, sent[1].ToAddress}
	assert.ElementsMatch(t, []string{"m1@example.com", "m2@example.com"}, addresses)
	assert.Contains(t, sent[0].PlainText, "Alice proposed Quiz")
}

func TestNotifyFanOutSkipsProposingManager(t *testing.T) {
	m := &mailerStub{}
	svc := startNotifications(t, m, 0)

	svc.Notify(context.Background(), Notification{
		Kind:          NotifyProposalSubmitted,
		RecipientRole: models.RoleManager,
		Data:          map[string]string{"title": "Quiz", "proposer_id": "mgr-1"},
	})
	drain(t, svc)

	sent := m.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "m2@example.com", sent[0].ToAddress)
	assert.Contains(t, sent[0].PlainText, "Morgan proposed Quiz")
}

func TestNotifyRetriesFailedDelivery(t *testing.T) {
	m := &mailerStub{failures: 1}
	svc := startNotifications(t, m, 2)

	notes := map[string]string{"title": "Quiz", "status": "rejected", "notes": "Clashes with the AGM"}
	svc.Notify(context.Background(), Notification{Kind: NotifyProposalDecided, RecipientID: "alice", Data: notes})
	drain(t, svc)

	sent := m.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Your proposal was rejected: Quiz", sent[0].Subject)
	assert.Contains(t, sent[0].PlainText, "Notes: Clashes with the AGM")
}

func TestNotifyBeforeStartIsDropped(t *testing.T) {
	m := &mailerStub{}
	svc := NewNotificationService(directory(), m, nil, zap.NewNop(), config.NotificationConfig{})

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), Notification{Kind: NotifySignupRevoked, RecipientID: "alice"})
	})
	assert.Empty(t, m.messages())
}

func TestRenderNotificationFallsBackToEmail(t *testing.T) {
	user := &models.User{ID: "u", Email: "u@example.com"}
	msg := renderNotification(Notification{Kind: NotifySignupRevoked, Data: map[string]string{"shift_title": "Door"}}, user)
	assert.Equal(t, "u@example.com", msg.ToName)
	assert.Equal(t, "Signup cancelled: Door", msg.Subject)
	assert.Contains(t, msg.PlainText, "Hi u@example.com")
}
