package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/internal/dto"
	"github.com/noah-isme/shiftboard-api/internal/models"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
)

type auditStoreStub struct {
	appended  []*models.AuditEntry
	appendErr error
	filter    models.AuditFilter
	entries   []models.AuditEntry
	listErr   error
}

func (s *auditStoreStub) Append(_ context.Context, _ sqlx.ExtContext, entry *models.AuditEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, entry)
	return nil
}

func (s *auditStoreStub) List(_ context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	s.filter = filter
	return s.entries, s.listErr
}

func TestAuditRecorderRecord(t *testing.T) {
	store := &auditStoreStub{}
	recorder := NewAuditRecorder(store, zap.NewNop())

	err := recorder.Record(context.Background(), nil, AuditInput{
		Actor:      manager,
		Action:     models.AuditActionShiftUpdate,
		EntityType: models.AuditEntityShift,
		EntityID:   "s1",
		Payload:    Change{Before: map[string]int{"capacity": 3}, After: map[string]int{"capacity": 1}},
	})
	require.NoError(t, err)
	require.Len(t, store.appended, 1)

	entry := store.appended[0]
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, manager.UserID, *entry.ActorID)
	var payload map[string]map[string]int
	require.NoError(t, json.Unmarshal(entry.Payload, &payload))
	assert.Equal(t, 3, payload["before"]["capacity"])
	assert.Equal(t, 1, payload["after"]["capacity"])

	require.NoError(t, recorder.Record(context.Background(), nil, AuditInput{Action: models.AuditActionShiftExpire, EntityType: models.AuditEntityShift, EntityID: "s2"}))
	assert.Nil(t, store.appended[1].ActorID)
	assert.JSONEq(t, `{}`, string(store.appended[1].Payload))
}

func TestAuditRecorderRecordErrors(t *testing.T) {
	store := &auditStoreStub{appendErr: errors.New("insert failed")}
	recorder := NewAuditRecorder(store, nil)

	err := recorder.Record(context.Background(), nil, AuditInput{Action: "x", Payload: map[string]interface{}{"bad": make(chan int)}})
	assert.ErrorContains(t, err, "marshal audit payload")

	err = recorder.Record(context.Background(), nil, AuditInput{Action: "x", EntityType: "shift", EntityID: "s1"})
	assert.ErrorContains(t, err, "insert failed")
}

func TestAuditRecorderListIsManagerOnly(t *testing.T) {
	store := &auditStoreStub{entries: []models.AuditEntry{{ID: "a1"}}}
	recorder := NewAuditRecorder(store, nil)
	query := dto.AuditQuery{EntityType: "shift", EntityID: "s1", Limit: 10}

	_, err := recorder.List(context.Background(), query, nil)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	_, err = recorder.List(context.Background(), query, alice)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	entries, err := recorder.List(context.Background(), query, manager)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "s1", store.filter.EntityID)
	assert.Equal(t, 10, store.filter.Limit)

	store.listErr = errors.New("boom")
	_, err = recorder.List(context.Background(), query, manager)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
