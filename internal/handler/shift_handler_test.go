package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shiftboard-api/internal/dto"
	"github.com/noah-isme/shiftboard-api/internal/middleware"
	"github.com/noah-isme/shiftboard-api/internal/models"
	"github.com/noah-isme/shiftboard-api/internal/service"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
)

var (
	memberPrincipal  = &models.Principal{UserID: "u1", Role: models.RoleMember}
	managerPrincipal = &models.Principal{UserID: "m1", Role: models.RoleManager}
)

type shiftServiceMock struct {
	listResp     []models.ShiftSummary
	lastQuery    dto.ShiftQuery
	getResp      *models.ShiftSummary
	err          error
	created      dto.CreateShiftRequest
	updated      dto.UpdateShiftRequest
	lastActor    *models.Principal
	lastFormat   dto.ExportFormat
	exportResp   *service.ExportFile
	retiredID    string
	participants []models.Participant
}

func (m *shiftServiceMock) List(_ context.Context, query dto.ShiftQuery, p *models.Principal) ([]models.ShiftSummary, error) {
	m.lastQuery, m.lastActor = query, p
	return m.listResp, m.err
}

func (m *shiftServiceMock) Get(_ context.Context, id string, p *models.Principal) (*models.ShiftSummary, error) {
	m.lastActor = p
	return m.getResp, m.err
}

func (m *shiftServiceMock) Create(_ context.Context, req dto.CreateShiftRequest, p *models.Principal) (*models.Shift, error) {
	m.created, m.lastActor = req, p
	if m.err != nil {
		return nil, m.err
	}
	return &models.Shift{ID: "s1", Title: req.Title, Capacity: req.Capacity}, nil
}

func (m *shiftServiceMock) Update(_ context.Context, id string, req dto.UpdateShiftRequest, p *models.Principal) (*models.Shift, error) {
	m.updated, m.lastActor = req, p
	if m.err != nil {
		return nil, m.err
	}
	return &models.Shift{ID: id}, nil
}

func (m *shiftServiceMock) Retire(_ context.Context, id string, p *models.Principal) error {
	m.retiredID, m.lastActor = id, p
	return m.err
}

func (m *shiftServiceMock) Participants(_ context.Context, id string, p *models.Principal) (*models.ShiftSummary, []models.Participant, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.getResp, m.participants, nil
}

func (m *shiftServiceMock) ExportParticipants(_ context.Context, id string, format dto.ExportFormat, p *models.Principal) (*service.ExportFile, error) {
	m.lastFormat = format
	return m.exportResp, m.err
}

type admissionServiceMock struct {
	claimErr  error
	revokeErr error
	lastShift string
	lastActor *models.Principal
}

func (m *admissionServiceMock) TryClaim(_ context.Context, shiftID string, p *models.Principal) (*models.Signup, error) {
	m.lastShift, m.lastActor = shiftID, p
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	return &models.Signup{ID: "sg1", ShiftID: shiftID, UserID: p.UserID, Status: models.SignupStatusActive}, nil
}

func (m *admissionServiceMock) RevokeClaim(_ context.Context, shiftID, signupID string, p *models.Principal) (*models.Signup, error) {
	m.lastShift, m.lastActor = shiftID, p
	if m.revokeErr != nil {
		return nil, m.revokeErr
	}
	return &models.Signup{ID: signupID, ShiftID: shiftID, Status: models.SignupStatusCancelled}, nil
}

func newTestContext(method, target string, body []byte, principal *models.Principal, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	c.Params = params
	if principal != nil {
		c.Set(middleware.ContextUserKey, principal)
	}
	return c, w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error.Code
}

func TestShiftHandlerList(t *testing.T) {
	svc := &shiftServiceMock{listResp: []models.ShiftSummary{{Shift: models.Shift{ID: "s1"}, Remaining: 2}}}
	h := NewShiftHandler(svc, &admissionServiceMock{})

	c, w := newTestContext(http.MethodGet, "/shifts?event_id=e1&upcoming=true&limit=10", nil, nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, svc.lastActor)
	assert.Equal(t, "e1", svc.lastQuery.EventID)
	assert.True(t, svc.lastQuery.UpcomingOnly)
	assert.Equal(t, 10, svc.lastQuery.Limit)
	assert.Contains(t, w.Body.String(), `"remaining":2`)

	c, w = newTestContext(http.MethodGet, "/shifts?limit=-1", nil, nil)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newTestContext(http.MethodGet, "/shifts", nil, managerPrincipal)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, managerPrincipal, svc.lastActor)
}

func TestShiftHandlerCreate(t *testing.T) {
	svc := &shiftServiceMock{}
	h := NewShiftHandler(svc, &admissionServiceMock{})

	start := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	payload, _ := json.Marshal(dto.CreateShiftRequest{Title: "Bar", StartTime: start, EndTime: start.Add(time.Hour), Capacity: 3})
	c, w := newTestContext(http.MethodPost, "/shifts", payload, managerPrincipal)
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Bar", svc.created.Title)
	assert.Equal(t, managerPrincipal, svc.lastActor)

	c, w = newTestContext(http.MethodPost, "/shifts", []byte(`{"title":`), managerPrincipal)
	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.err = appErrors.ErrForbidden
	c, w = newTestContext(http.MethodPost, "/shifts", payload, memberPrincipal)
	h.Create(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestShiftHandlerClaim(t *testing.T) {
	adm := &admissionServiceMock{}
	h := NewShiftHandler(&shiftServiceMock{}, adm)

	c, w := newTestContext(http.MethodPost, "/shifts/s1/signups", nil, memberPrincipal, gin.Param{Key: "id", Value: "s1"})
	h.Claim(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "s1", adm.lastShift)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{appErrors.ErrShiftFull, http.StatusConflict, "SHIFT_FULL"},
		{appErrors.ErrAlreadyClaimed, http.StatusConflict, "ALREADY_CLAIMED"},
		{appErrors.Clone(appErrors.ErrNotFound, "shift not found"), http.StatusNotFound, "NOT_FOUND"},
		{appErrors.ErrRetryable, http.StatusServiceUnavailable, "RETRYABLE"},
	}
	for _, tc := range cases {
		adm.claimErr = tc.err
		c, w := newTestContext(http.MethodPost, "/shifts/s1/signups", nil, memberPrincipal, gin.Param{Key: "id", Value: "s1"})
		h.Claim(c)
		assert.Equal(t, tc.status, w.Code)
		assert.Equal(t, tc.code, errorCode(t, w))
		if tc.status == http.StatusServiceUnavailable {
			assert.Equal(t, "1", w.Header().Get("Retry-After"))
		}
	}
}

func TestShiftHandlerRevoke(t *testing.T) {
	adm := &admissionServiceMock{}
	h := NewShiftHandler(&shiftServiceMock{}, adm)

	c, w := newTestContext(http.MethodDelete, "/shifts/s1/participants/sg1", nil, managerPrincipal,
		gin.Param{Key: "id", Value: "s1"}, gin.Param{Key: "signupId", Value: "sg1"})
	h.Revoke(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"cancelled"`)
}

func TestShiftHandlerParticipantsAndExport(t *testing.T) {
	svc := &shiftServiceMock{
		getResp:      &models.ShiftSummary{Shift: models.Shift{ID: "s1", Capacity: 4}, RegisteredCount: 1, Remaining: 3},
		participants: []models.Participant{{SignupID: "sg1", Email: "a@example.com"}},
		exportResp:   &service.ExportFile{Filename: "shift-s1-participants.csv", ContentType: "text/csv; charset=utf-8", Body: []byte("#,Name\n")},
	}
	h := NewShiftHandler(svc, &admissionServiceMock{})

	c, w := newTestContext(http.MethodGet, "/shifts/s1/participants", nil, managerPrincipal, gin.Param{Key: "id", Value: "s1"})
	h.Participants(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remaining":3`)
	assert.Contains(t, w.Body.String(), "a@example.com")

	c, w = newTestContext(http.MethodGet, "/shifts/s1/participants/export", nil, managerPrincipal, gin.Param{Key: "id", Value: "s1"})
	h.ExportParticipants(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ExportFormatCSV, svc.lastFormat)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "shift-s1-participants.csv")
}

func TestShiftHandlerDelete(t *testing.T) {
	svc := &shiftServiceMock{}
	h := NewShiftHandler(svc, &admissionServiceMock{})

	c, w := newTestContext(http.MethodDelete, "/shifts/s1", nil, managerPrincipal, gin.Param{Key: "id", Value: "s1"})
	h.Delete(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "s1", svc.retiredID)
}
