package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/internal/dto"
	"github.com/noah-isme/shiftboard-api/internal/models"
	"github.com/noah-isme/shiftboard-api/internal/repository"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
)

type memoryCache struct {
	mu          sync.Mutex
	items       map[string][]byte
	invalidated int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	m.invalidated++
	return nil
}

func (h *storeHarness) proposals(cache *CacheService) *ProposalService {
	return NewProposalService(h.tx, h.events, h.shifts, h.recorder, h.notifier, cache, h.metrics, zap.NewNop())
}

func proposal(title string) dto.ProposeEventRequest {
	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)
	return dto.ProposeEventRequest{Title: title, StartTime: start, EndTime: start.Add(2 * time.Hour)}
}

func TestProposeDefaultsAndNotifiesManagers(t *testing.T) {
	h := newStoreHarness(t)
	svc := h.proposals(nil)

	event, err := svc.Propose(context.Background(), proposal("  Quiz night  "), alice)
	require.NoError(t, err)
	assert.Equal(t, "Quiz night", event.Title)
	assert.Equal(t, models.EventStatusPending, event.Status)
	assert.Equal(t, models.EventVisibilityPublic, event.Visibility)
	require.NotNil(t, event.CreatedBy)
	assert.Equal(t, alice.UserID, *event.CreatedBy)

	require.Len(t, h.notifier.sent, 1)
	sent := h.notifier.sent[0]
	assert.Equal(t, NotifyProposalSubmitted, sent.Kind)
	assert.Equal(t, models.RoleManager, sent.RecipientRole)
	assert.Equal(t, alice.UserID, sent.Data["proposer_id"])
	assert.Equal(t, 1, h.countAudits(t, models.AuditActionProposalCreate))
}

func TestProposeValidation(t *testing.T) {
	h := newStoreHarness(t)
	svc := h.proposals(nil)

	req := proposal("Quiz")
	req.EndTime = req.StartTime.Add(-time.Hour)
	_, err := svc.Propose(context.Background(), req, alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req = proposal("   ")
	_, err = svc.Propose(context.Background(), req, alice)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req = proposal("Quiz")
	req.Visibility = "secret"
	_, err = svc.Propose(context.Background(), req, alice)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Propose(context.Background(), proposal("Quiz"), nil)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	assert.Zero(t, h.countAudits(t, models.AuditActionProposalCreate))
}

func TestDecideIsTerminal(t *testing.T) {
	h := newStoreHarness(t)
	svc := h.proposals(nil)
	ctx := context.Background()

	event, err := svc.Propose(ctx, proposal("Quiz"), alice)
	require.NoError(t, err)

	_, err = svc.Decide(ctx, event.ID, dto.DecideEventRequest{Status: models.EventStatusApproved}, alice)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Decide(ctx, event.ID, dto.DecideEventRequest{Status: models.EventStatusPending}, manager)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	notes := "  see you there  "
	decided, err := svc.Decide(ctx, event.ID, dto.DecideEventRequest{Status: models.EventStatusApproved, Notes: &notes}, manager)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusApproved, decided.Status)
	require.NotNil(t, decided.DecisionNotes)
	assert.Equal(t, "see you there", *decided.DecisionNotes)

	_, err = svc.Decide(ctx, event.ID, dto.DecideEventRequest{Status: models.EventStatusRejected}, manager)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyDecided)
	assert.Contains(t, err.Error(), "approved")

	stored, err := svc.Get(ctx, event.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusApproved, stored.Status)
	assert.Equal(t, 1, h.countAudits(t, models.AuditActionProposalDecide))

	kinds := h.notifier.kinds()
	require.Len(t, kinds, 2)
	assert.Equal(t, NotifyProposalDecided, kinds[1])
	assert.Equal(t, alice.UserID, h.notifier.sent[1].RecipientID)
}

func TestProposalVisibility(t *testing.T) {
	h := newStoreHarness(t)
	svc := h.proposals(nil)
	ctx := context.Background()

	pending, err := svc.Propose(ctx, proposal("Pending"), alice)
	require.NoError(t, err)
	approved, err := svc.Propose(ctx, proposal("Approved"), alice)
	require.NoError(t, err)
	_, err = svc.Decide(ctx, approved.ID, dto.DecideEventRequest{Status: models.EventStatusApproved}, manager)
	require.NoError(t, err)
	rejected, err := svc.Propose(ctx, proposal("Rejected"), bob)
	require.NoError(t, err)
	_, err = svc.Decide(ctx, rejected.ID, dto.DecideEventRequest{Status: models.EventStatusRejected}, manager)
	require.NoError(t, err)

	ids := func(events []models.Event) []string {
		out := make([]string, 0, len(events))
		for _, e := range events {
			out = append(out, e.ID)
		}
		return out
	}

	anon, err := svc.List(ctx, dto.EventQuery{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{approved.ID}, ids(anon))

	forAlice, err := svc.List(ctx, dto.EventQuery{}, alice)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{pending.ID, approved.ID}, ids(forAlice))

	forBob, err := svc.List(ctx, dto.EventQuery{}, bob)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{approved.ID, rejected.ID}, ids(forBob))

	forManager, err := svc.List(ctx, dto.EventQuery{Status: []models.EventStatus{models.EventStatusPending}}, manager)
	require.NoError(t, err)
	assert.Equal(t, []string{pending.ID}, ids(forManager))

	_, err = svc.Get(ctx, pending.ID, bob)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = svc.Get(ctx, pending.ID, nil)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	got, err := svc.Get(ctx, approved.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, got.CreatorName)
	assert.Equal(t, "alice", *got.CreatorName)
}

func TestEditRules(t *testing.T) {
	h := newStoreHarness(t)
	svc := h.proposals(nil)
	ctx := context.Background()

	event, err := svc.Propose(ctx, proposal("Quiz"), alice)
	require.NoError(t, err)

	title := "Pub quiz"
	_, err = svc.Edit(ctx, event.ID, dto.UpdateEventRequest{Title: &title}, bob)
	assert.ErrorIs(t, err, appErrors.ErrNotFound, "hidden pending proposal")

	_, err = svc.Decide(ctx, event.ID, dto.DecideEventRequest{Status: models.EventStatusApproved}, manager)
	require.NoError(t, err)

	_, err = svc.Edit(ctx, event.ID, dto.UpdateEventRequest{Title: &title}, bob)
	assert.ErrorIs(t, err, appErrors.ErrForbidden, "visible but not owned")

	edited, err := svc.Edit(ctx, event.ID, dto.UpdateEventRequest{Title: &title}, alice)
	require.NoError(t, err)
	assert.Equal(t, "Pub quiz", edited.Title)
	assert.Equal(t, models.EventStatusApproved, edited.Status)

	badEnd := edited.StartTime.Add(-time.Minute)
	_, err = svc.Edit(ctx, event.ID, dto.UpdateEventRequest{EndTime: &badEnd}, manager)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	restricted := models.EventVisibilityRestricted
	edited, err = svc.Edit(ctx, event.ID, dto.UpdateEventRequest{Visibility: &restricted}, manager)
	require.NoError(t, err)
	assert.Equal(t, models.EventVisibilityRestricted, edited.Visibility)

	assert.Equal(t, 2, h.countAudits(t, models.AuditActionProposalUpdate))
}

func TestRetireHidesProposal(t *testing.T) {
	h := newStoreHarness(t)
	svc := h.proposals(nil)
	ctx := context.Background()

	event, err := svc.Propose(ctx, proposal("Quiz"), alice)
	require.NoError(t, err)

	err = svc.Retire(ctx, event.ID, bob)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	require.NoError(t, svc.Retire(ctx, event.ID, alice))
	_, err = svc.Get(ctx, event.ID, manager)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	err = svc.Retire(ctx, event.ID, manager)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, 1, h.countAudits(t, models.AuditActionProposalRetire))
}

func TestAnonymousListIsCachedAndInvalidated(t *testing.T) {
	h := newStoreHarness(t)
	mem := newMemoryCache()
	cache := NewCacheService(mem, h.metrics, time.Minute, zap.NewNop(), true)
	svc := h.proposals(cache)
	ctx := context.Background()

	event, err := svc.Propose(ctx, proposal("Quiz"), alice)
	require.NoError(t, err)
	_, err = svc.Decide(ctx, event.ID, dto.DecideEventRequest{Status: models.EventStatusApproved}, manager)
	require.NoError(t, err)

	first, err := svc.List(ctx, dto.EventQuery{}, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Len(t, mem.items, 1)

	_, err = svc.List(ctx, dto.EventQuery{}, alice)
	require.NoError(t, err)
	assert.Len(t, mem.items, 1, "member listings are never cached")

	before := mem.invalidated
	second, err := svc.Propose(ctx, proposal("Karaoke"), bob)
	require.NoError(t, err)
	assert.Equal(t, before+1, mem.invalidated)
	assert.Empty(t, mem.items)

	_, err = svc.Decide(ctx, second.ID, dto.DecideEventRequest{Status: models.EventStatusApproved}, manager)
	require.NoError(t, err)
	listed, err := svc.List(ctx, dto.EventQuery{}, nil)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestListShiftsForVisibleEvent(t *testing.T) {
	h := newStoreHarness(t)
	svc := h.proposals(nil)
	ctx := context.Background()

	event, err := svc.Propose(ctx, proposal("Quiz"), alice)
	require.NoError(t, err)
	shift := h.seedShift(t, 4)
	shift.EventID = &event.ID
	require.NoError(t, h.shifts.Update(ctx, h.db, shift))

	_, err = svc.ListShifts(ctx, event.ID, nil)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	shifts, err := svc.ListShifts(ctx, event.ID, alice)
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, shift.ID, shifts[0].ID)
	assert.Equal(t, 4, shifts[0].Remaining)
}

func TestProposalMutationsRollBackWhenAuditFails(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	svc := h.proposals(nil)
	broken := NewProposalService(h.tx, h.events, h.shifts, failingAudit{err: errors.New("disk full")}, h.notifier, nil, h.metrics, zap.NewNop())

	stored := func(id string) *models.Event {
		t.Helper()
		event, err := h.events.Get(ctx, id, repository.VisibilityFor(manager))
		require.NoError(t, err)
		return event
	}
	countEvents := func() int {
		var n int
		require.NoError(t, h.db.Get(&n, `SELECT COUNT(*) FROM events`))
		return n
	}

	_, err := broken.Propose(ctx, proposal("Quiz"), alice)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Zero(t, countEvents())
	assert.Empty(t, h.auditTrail(t, models.AuditActionProposalCreate))
	assert.Empty(t, h.notifier.kinds())

	event, err := svc.Propose(ctx, proposal("Quiz"), alice)
	require.NoError(t, err)
	h.requireSingleAudit(t, models.AuditActionProposalCreate, models.AuditEntityEvent, event.ID, alice)

	title := "Pub quiz"
	_, err = broken.Edit(ctx, event.ID, dto.UpdateEventRequest{Title: &title}, alice)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, "Quiz", stored(event.ID).Title)
	assert.Empty(t, h.auditTrail(t, models.AuditActionProposalUpdate))

	_, err = svc.Edit(ctx, event.ID, dto.UpdateEventRequest{Title: &title}, alice)
	require.NoError(t, err)
	h.requireSingleAudit(t, models.AuditActionProposalUpdate, models.AuditEntityEvent, event.ID, alice)

	_, err = broken.Decide(ctx, event.ID, dto.DecideEventRequest{Status: models.EventStatusApproved}, manager)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, models.EventStatusPending, stored(event.ID).Status)
	assert.Nil(t, stored(event.ID).DecidedBy)
	assert.Empty(t, h.auditTrail(t, models.AuditActionProposalDecide))

	_, err = svc.Decide(ctx, event.ID, dto.DecideEventRequest{Status: models.EventStatusApproved}, manager)
	require.NoError(t, err)
	h.requireSingleAudit(t, models.AuditActionProposalDecide, models.AuditEntityEvent, event.ID, manager)

	err = broken.Retire(ctx, event.ID, alice)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.True(t, stored(event.ID).Active)
	assert.Empty(t, h.auditTrail(t, models.AuditActionProposalRetire))

	require.NoError(t, svc.Retire(ctx, event.ID, alice))
	h.requireSingleAudit(t, models.AuditActionProposalRetire, models.AuditEntityEvent, event.ID, alice)

	assert.Equal(t, []NotificationKind{NotifyProposalSubmitted, NotifyProposalDecided}, h.notifier.kinds())
}
