package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/internal/models"
	"github.com/noah-isme/shiftboard-api/internal/repository"
	"github.com/noah-isme/shiftboard-api/pkg/database"
)

var (
	manager = &models.Principal{UserID: "mgr-1", Role: models.RoleManager}
	alice   = &models.Principal{UserID: "alice", Role: models.RoleMember}
	bob     = &models.Principal{UserID: "bob", Role: models.RoleMember}
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) kinds() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NotificationKind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

type failingAudit struct{ err error }

func (f failingAudit) Record(context.Context, sqlx.ExtContext, AuditInput) error { return f.err }

// storeHarness is a migrated SQLite database with the repositories wired.
type storeHarness struct {
	db       *sqlx.DB
	tx       *repository.TxManager
	shifts   *repository.ShiftRepository
	signups  *repository.SignupRepository
	events   *repository.EventRepository
	audits   *repository.AuditRepository
	users    *repository.UserRepository
	recorder *AuditRecorder
	notifier *recordingNotifier
	metrics  *MetricsService
}

func newStoreHarness(t *testing.T) *storeHarness {
	t.Helper()
	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "shiftboard.sqlite"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))

	h := &storeHarness{
		db:       db,
		tx:       repository.NewTxManager(db),
		shifts:   repository.NewShiftRepository(db),
		signups:  repository.NewSignupRepository(db),
		events:   repository.NewEventRepository(db),
		audits:   repository.NewAuditRepository(db),
		users:    repository.NewUserRepository(db),
		notifier: &recordingNotifier{},
		metrics:  NewMetricsService(),
	}
	h.recorder = NewAuditRecorder(h.audits, zap.NewNop())

	h.seedUser(t, manager.UserID, models.RoleManager)
	h.seedUser(t, alice.UserID, models.RoleMember)
	h.seedUser(t, bob.UserID, models.RoleMember)
	return h
}

func (h *storeHarness) seedUser(t *testing.T, id string, role models.Role) {
	t.Helper()
	require.NoError(t, h.users.Upsert(context.Background(), &models.User{
		ID:          id,
		Email:       id + "@example.com",
		DisplayName: id,
		Role:        role,
		Active:      true,
	}))
}

func (h *storeHarness) seedShift(t *testing.T, capacity int) *models.Shift {
	t.Helper()
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	shift := &models.Shift{
		Title:     "Bar",
		StartTime: start,
		EndTime:   start.Add(3 * time.Hour),
		Capacity:  capacity,
		CreatedBy: manager.ActorID(),
	}
	require.NoError(t, h.shifts.Create(context.Background(), h.db, shift))
	return shift
}

func (h *storeHarness) countAudits(t *testing.T, action string) int {
	t.Helper()
	var n int
	require.NoError(t, h.db.Get(&n, `SELECT COUNT(*) FROM audit_logs WHERE action = ?`, action))
	return n
}

// auditTrail returns the entries recorded for action, oldest first.
func (h *storeHarness) auditTrail(t *testing.T, action string) []models.AuditEntry {
	t.Helper()
	var entries []models.AuditEntry
	require.NoError(t, h.db.Select(&entries, `SELECT id, actor_id, action, entity_type, entity_id, payload, created_at
	FROM audit_logs WHERE action = ? ORDER BY created_at ASC, id ASC`, action))
	return entries
}

// requireSingleAudit asserts exactly one entry for action, naming entityID and actor.
func (h *storeHarness) requireSingleAudit(t *testing.T, action, entityType, entityID string, actor *models.Principal) models.AuditEntry {
	t.Helper()
	entries := h.auditTrail(t, action)
	require.Len(t, entries, 1, action)
	entry := entries[0]
	assert.Equal(t, entityType, entry.EntityType)
	assert.Equal(t, entityID, entry.EntityID)
	if actor == nil {
		assert.Nil(t, entry.ActorID)
	} else {
		require.NotNil(t, entry.ActorID)
		assert.Equal(t, actor.UserID, *entry.ActorID)
	}
	return entry
}

func (h *storeHarness) admission(cfg AdmissionConfig) *AdmissionService {
	return NewAdmissionService(h.tx, h.shifts, h.signups, h.users, h.recorder, h.notifier, h.metrics, zap.NewNop(), cfg)
}
