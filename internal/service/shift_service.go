package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/internal/dto"
	"github.com/noah-isme/shiftboard-api/internal/models"
	"github.com/noah-isme/shiftboard-api/internal/repository"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
	"github.com/noah-isme/shiftboard-api/pkg/export"
)

type shiftStore interface {
	Create(ctx context.Context, q sqlx.ExtContext, shift *models.Shift) error
	GetByID(ctx context.Context, id string, pred repository.Predicate) (*models.ShiftSummary, error)
	GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*models.Shift, error)
	List(ctx context.Context, filter models.ShiftFilter, pred repository.Predicate) ([]models.ShiftSummary, error)
	Update(ctx context.Context, q sqlx.ExtContext, shift *models.Shift) error
	Retire(ctx context.Context, q sqlx.ExtContext, id string, at time.Time) error
	ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Shift, error)
}

type participantStore interface {
	ListParticipants(ctx context.Context, shiftID string) ([]models.Participant, error)
}

type eventLookup interface {
	Get(ctx context.Context, id string, pred repository.Predicate) (*models.Event, error)
}

type rosterRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ShiftService manages the shift catalogue and its rosters.
type ShiftService struct {
	tx           txRunner
	shifts       shiftStore
	participants participantStore
	events       eventLookup
	audit        auditWriter
	renderers    map[dto.ExportFormat]rosterRenderer
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewShiftService constructs the service with CSV and PDF roster renderers.
func NewShiftService(tx txRunner, shifts shiftStore, participants participantStore, events eventLookup, audit auditWriter, logger *zap.Logger) *ShiftService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShiftService{
		tx:           tx,
		shifts:       shifts,
		participants: participants,
		events:       events,
		audit:        audit,
		renderers: map[dto.ExportFormat]rosterRenderer{
			dto.ExportFormatCSV: export.NewCSVExporter(),
			dto.ExportFormatPDF: export.NewPDFExporter(),
		},
		validator: newValidator(),
		logger:    logger,
	}
}

// List returns active shifts with live occupancy. Shifts linked to a proposal
// the caller cannot see are left out.
func (s *ShiftService) List(ctx context.Context, query dto.ShiftQuery, principal *models.Principal) ([]models.ShiftSummary, error) {
	filter := models.ShiftFilter{EventID: query.EventID, Limit: query.Limit, Offset: query.Offset}
	if query.UpcomingOnly {
		now := time.Now().UTC()
		filter.From = &now
	}
	shifts, err := s.shifts.List(ctx, filter, repository.ShiftVisibilityFor(principal))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list shifts")
	}
	if shifts == nil {
		shifts = []models.ShiftSummary{}
	}
	return shifts, nil
}

// Get returns one active shift with live occupancy. A shift linked to a
// proposal the caller cannot see is reported as not found.
func (s *ShiftService) Get(ctx context.Context, id string, principal *models.Principal) (*models.ShiftSummary, error) {
	shift, err := s.shifts.GetByID(ctx, id, repository.ShiftVisibilityFor(principal))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "shift not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load shift")
	}
	return shift, nil
}

// Create opens a new shift. Managers only.
func (s *ShiftService) Create(ctx context.Context, req dto.CreateShiftRequest, principal *models.Principal) (*models.Shift, error) {
	if err := requireManager(principal); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = trimmedPtr(req.Description)
	req.Location = trimmedPtr(req.Location)
	req.EventID = trimmedPtr(req.EventID)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid shift")
	}
	if err := s.checkEventLink(ctx, req.EventID, principal); err != nil {
		return nil, err
	}

	shift := &models.Shift{
		EventID:     req.EventID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
		Capacity:    req.Capacity,
		CreatedBy:   principal.ActorID(),
	}
	err := s.tx.WithinTx(ctx, func(q sqlx.ExtContext) error {
		if err := s.shifts.Create(ctx, q, shift); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, AuditInput{
			Actor:      principal,
			Action:     models.AuditActionShiftCreate,
			EntityType: models.AuditEntityShift,
			EntityID:   shift.ID,
			Payload:    Change{After: shift},
		})
	})
	if err != nil {
		return nil, translateStoreError(s.logger, err, "failed to create shift")
	}
	return shift, nil
}

// Update merges req into an active shift and revalidates. Lowering capacity
// below the current signups is allowed; it only blocks further claims.
func (s *ShiftService) Update(ctx context.Context, id string, req dto.UpdateShiftRequest, principal *models.Principal) (*models.Shift, error) {
	if err := requireManager(principal); err != nil {
		return nil, err
	}
	if req.EventID != nil {
		req.EventID = trimmedPtr(req.EventID)
		if err := s.checkEventLink(ctx, req.EventID, principal); err != nil {
			return nil, err
		}
	}

	var updated *models.Shift
	err := s.tx.WithinTx(ctx, func(q sqlx.ExtContext) error {
		current, err := s.lockActive(ctx, q, id)
		if err != nil {
			return err
		}
		before := *current
		merged := mergeShiftUpdate(*current, req)
		if err := s.validator.Struct(dto.CreateShiftRequest{
			EventID:     merged.EventID,
			Title:       merged.Title,
			Description: merged.Description,
			Location:    merged.Location,
			StartTime:   merged.StartTime,
			EndTime:     merged.EndTime,
			Capacity:    merged.Capacity,
		}); err != nil {
			return validationError(err, "invalid shift update")
		}
		if err := s.shifts.Update(ctx, q, &merged); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "shift not found")
			}
			return err
		}
		if err := s.audit.Record(ctx, q, AuditInput{
			Actor:      principal,
			Action:     models.AuditActionShiftUpdate,
			EntityType: models.AuditEntityShift,
			EntityID:   id,
			Payload:    Change{Before: before, After: merged},
		}); err != nil {
			return err
		}
		updated = &merged
		return nil
	})
	if err != nil {
		return nil, translateStoreError(s.logger, err, "failed to update shift")
	}
	return updated, nil
}

// Retire soft-deletes a shift. Existing signups stay as they are; new claims
// are refused from now on.
func (s *ShiftService) Retire(ctx context.Context, id string, principal *models.Principal) error {
	if err := requireManager(principal); err != nil {
		return err
	}
	err := s.tx.WithinTx(ctx, func(q sqlx.ExtContext) error {
		current, err := s.lockActive(ctx, q, id)
		if err != nil {
			return err
		}
		return s.retireLocked(ctx, q, current, principal, models.AuditActionShiftRetire)
	})
	return translateStoreError(s.logger, err, "failed to retire shift")
}

// ExpireEnded retires every active shift that ended before cutoff and
// returns how many were retired. Audit entries carry no actor.
func (s *ShiftService) ExpireEnded(ctx context.Context, cutoff time.Time) (int, error) {
	candidates, err := s.shifts.ListEndedBefore(ctx, cutoff, 200)
	if err != nil {
		return 0, fmt.Errorf("list ended shifts: %w", err)
	}

	expired := 0
	for _, candidate := range candidates {
		err := s.tx.WithinTx(ctx, func(q sqlx.ExtContext) error {
			current, err := s.lockActive(ctx, q, candidate.ID)
			if err != nil {
				return err
			}
			if !current.EndTime.Before(cutoff) {
				return nil
			}
			if err := s.retireLocked(ctx, q, current, nil, models.AuditActionShiftExpire); err != nil {
				return err
			}
			expired++
			return nil
		})
		if err != nil && !errors.Is(err, appErrors.ErrNotFound) {
			return expired, fmt.Errorf("expire shift %s: %w", candidate.ID, err)
		}
	}
	return expired, nil
}

// Participants returns the active roster of a shift. Managers only.
func (s *ShiftService) Participants(ctx context.Context, id string, principal *models.Principal) (*models.ShiftSummary, []models.Participant, error) {
	if err := requireManager(principal); err != nil {
		return nil, nil, err
	}
	shift, err := s.Get(ctx, id, principal)
	if err != nil {
		return nil, nil, err
	}
	participants, err := s.participants.ListParticipants(ctx, id)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list participants")
	}
	if participants == nil {
		participants = []models.Participant{}
	}
	return shift, participants, nil
}

// ExportParticipants renders the roster as CSV or PDF. Managers only.
func (s *ShiftService) ExportParticipants(ctx context.Context, id string, format dto.ExportFormat, principal *models.Principal) (*ExportFile, error) {
	renderer, ok := s.renderers[dto.ExportFormat(strings.ToLower(string(format)))]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be one of [csv pdf]")
	}
	shift, participants, err := s.Participants(ctx, id, principal)
	if err != nil {
		return nil, err
	}

	body, err := renderer.Render(rosterDataset(shift, participants))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("shift-%s-participants.%s", shift.ID, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func (s *ShiftService) lockActive(ctx context.Context, q sqlx.ExtContext, id string) (*models.Shift, error) {
	shift, err := s.shifts.GetForUpdate(ctx, q, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "shift not found")
		}
		return nil, err
	}
	if !shift.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "shift not found")
	}
	return shift, nil
}

func (s *ShiftService) retireLocked(ctx context.Context, q sqlx.ExtContext, shift *models.Shift, actor *models.Principal, action string) error {
	if err := s.shifts.Retire(ctx, q, shift.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "shift not found")
		}
		return err
	}
	return s.audit.Record(ctx, q, AuditInput{
		Actor:      actor,
		Action:     action,
		EntityType: models.AuditEntityShift,
		EntityID:   shift.ID,
		Payload:    Change{Before: shift},
	})
}

func (s *ShiftService) checkEventLink(ctx context.Context, eventID *string, principal *models.Principal) error {
	if eventID == nil {
		return nil
	}
	if _, err := s.events.Get(ctx, *eventID, repository.VisibilityFor(principal)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "event_id does not reference an active event")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return nil
}

func requireManager(principal *models.Principal) error {
	if principal == nil {
		return appErrors.ErrUnauthorized
	}
	if !principal.IsManager() {
		return appErrors.ErrForbidden
	}
	return nil
}

func mergeShiftUpdate(current models.Shift, req dto.UpdateShiftRequest) models.Shift {
	if req.EventID != nil {
		current.EventID = req.EventID
	}
	if req.Title != nil {
		current.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		current.Description = trimmedPtr(req.Description)
	}
	if req.Location != nil {
		current.Location = trimmedPtr(req.Location)
	}
	if req.StartTime != nil {
		current.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		current.EndTime = req.EndTime.UTC()
	}
	if req.Capacity != nil {
		current.Capacity = *req.Capacity
	}
	return current
}

func rosterDataset(shift *models.ShiftSummary, participants []models.Participant) export.Dataset {
	rows := make([][]string, 0, len(participants))
	for i, p := range participants {
		name := p.DisplayName
		if strings.TrimSpace(name) == "" {
			name = p.Email
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			name,
			p.Email,
			p.CreatedAt.UTC().Format("2006-01-02 15:04"),
		})
	}
	window := fmt.Sprintf("%s - %s UTC", shift.StartTime.UTC().Format("2006-01-02 15:04"), shift.EndTime.UTC().Format("15:04"))
	subtitle := []string{window, fmt.Sprintf("%d of %d places taken", shift.RegisteredCount, shift.Capacity)}
	if shift.Location != nil {
		subtitle = append(subtitle, *shift.Location)
	}
	return export.Dataset{
		Title:    shift.Title,
		Subtitle: subtitle,
		Headers:  []string{"#", "Name", "Email", "Signed up"},
		Rows:     rows,
	}
}
