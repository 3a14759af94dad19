package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/internal/dto"
	"github.com/noah-isme/shiftboard-api/internal/models"
	"github.com/noah-isme/shiftboard-api/internal/repository"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
)

type proposalStore interface {
	Create(ctx context.Context, q sqlx.ExtContext, event *models.Event) error
	Get(ctx context.Context, id string, pred repository.Predicate) (*models.Event, error)
	GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string, pred repository.Predicate) (*models.Event, error)
	List(ctx context.Context, pred repository.Predicate, filter models.EventFilter) ([]models.Event, error)
	Decide(ctx context.Context, q sqlx.ExtContext, params repository.DecideEventParams) error
	UpdateDetails(ctx context.Context, q sqlx.ExtContext, event *models.Event) error
	Retire(ctx context.Context, q sqlx.ExtContext, id string, at time.Time) error
}

type shiftLister interface {
	List(ctx context.Context, filter models.ShiftFilter, pred repository.Predicate) ([]models.ShiftSummary, error)
}

// ProposalService runs the event proposal workflow. Every read and every
// mutation lookup resolves the event through repository.VisibilityFor, so a
// caller can never act on a proposal it cannot see.
type ProposalService struct {
	tx        txRunner
	events    proposalStore
	shifts    shiftLister
	audit     auditWriter
	notifier  Notifier
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProposalService constructs the service.
func NewProposalService(tx txRunner, events proposalStore, shifts shiftLister, audit auditWriter, notifier Notifier, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *ProposalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProposalService{
		tx:        tx,
		events:    events,
		shifts:    shifts,
		audit:     audit,
		notifier:  notifier,
		cache:     cache,
		metrics:   metrics,
		validator: newValidator(),
		logger:    logger,
	}
}

// Propose submits a new pending event on behalf of any authenticated caller.
func (s *ProposalService) Propose(ctx context.Context, req dto.ProposeEventRequest, principal *models.Principal) (*models.Event, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = trimmedPtr(req.Description)
	if req.Visibility == "" {
		req.Visibility = models.EventVisibilityPublic
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid proposal")
	}

	event := &models.Event{
		Title:       req.Title,
		Description: req.Description,
		Visibility:  req.Visibility,
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
		CreatedBy:   principal.ActorID(),
	}
	err := s.tx.WithinTx(ctx, func(q sqlx.ExtContext) error {
		if err := s.events.Create(ctx, q, event); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, AuditInput{
			Actor:      principal,
			Action:     models.AuditActionProposalCreate,
			EntityType: models.AuditEntityEvent,
			EntityID:   event.ID,
			Payload:    Change{After: event},
		})
	})
	if err != nil {
		return nil, translateStoreError(s.logger, err, "failed to create proposal")
	}

	s.afterCommit(ctx)
	s.notify(ctx, Notification{
		Kind:          NotifyProposalSubmitted,
		RecipientRole: models.RoleManager,
		Data: map[string]string{
			"event_id":    event.ID,
			"title":       event.Title,
			"start_time":  event.StartTime.Format("2006-01-02 15:04 MST"),
			"proposer_id": principal.UserID,
		},
	})
	return event, nil
}

// Decide moves a pending proposal to approved or rejected. Managers only.
func (s *ProposalService) Decide(ctx context.Context, id string, req dto.DecideEventRequest, principal *models.Principal) (*models.Event, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !principal.IsManager() {
		return nil, appErrors.ErrForbidden
	}
	req.Notes = trimmedPtr(req.Notes)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid decision")
	}

	var event *models.Event
	err := s.tx.WithinTx(ctx, func(q sqlx.ExtContext) error {
		current, err := s.lookupForUpdate(ctx, q, id, principal)
		if err != nil {
			return err
		}
		if current.Status != models.EventStatusPending {
			return appErrors.Clone(appErrors.ErrAlreadyDecided, fmt.Sprintf("event already %s", current.Status))
		}

		now := time.Now().UTC()
		if err := s.events.Decide(ctx, q, repository.DecideEventParams{
			ID:        id,
			Status:    req.Status,
			DecidedBy: principal.UserID,
			DecidedAt: now,
			Notes:     req.Notes,
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrAlreadyDecided
			}
			return err
		}

		before := current.Status
		current.Status = req.Status
		current.DecidedBy = principal.ActorID()
		current.DecidedAt = &now
		current.DecisionNotes = req.Notes
		current.UpdatedAt = now

		if err := s.audit.Record(ctx, q, AuditInput{
			Actor:      principal,
			Action:     models.AuditActionProposalDecide,
			EntityType: models.AuditEntityEvent,
			EntityID:   id,
			Payload: Change{
				Before: map[string]interface{}{"status": before},
				After:  map[string]interface{}{"status": req.Status, "notes": req.Notes},
			},
		}); err != nil {
			return err
		}
		event = current
		return nil
	})
	if err != nil {
		return nil, translateStoreError(s.logger, err, "failed to decide proposal")
	}

	s.metrics.RecordDecision(string(event.Status))
	s.afterCommit(ctx)
	if event.CreatedBy != nil {
		data := map[string]string{"event_id": event.ID, "title": event.Title, "status": string(event.Status)}
		if event.DecisionNotes != nil {
			data["notes"] = *event.DecisionNotes
		}
		s.notify(ctx, Notification{Kind: NotifyProposalDecided, RecipientID: *event.CreatedBy, Data: data})
	}
	return event, nil
}

// Edit updates descriptive fields. The owner or a manager may edit in any
// status; status and decision fields are never changed here.
func (s *ProposalService) Edit(ctx context.Context, id string, req dto.UpdateEventRequest, principal *models.Principal) (*models.Event, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}

	var event *models.Event
	err := s.tx.WithinTx(ctx, func(q sqlx.ExtContext) error {
		current, err := s.lookupForUpdate(ctx, q, id, principal)
		if err != nil {
			return err
		}
		if !principal.IsManager() && !principal.Owns(current.CreatedBy) {
			return appErrors.ErrForbidden
		}

		before := *current
		merged := mergeEventUpdate(*current, req)
		if err := s.validator.Struct(dto.ProposeEventRequest{
			Title:       merged.Title,
			Description: merged.Description,
			Visibility:  merged.Visibility,
			StartTime:   merged.StartTime,
			EndTime:     merged.EndTime,
		}); err != nil {
			return validationError(err, "invalid proposal update")
		}

		if err := s.events.UpdateDetails(ctx, q, &merged); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "event not found")
			}
			return err
		}
		if err := s.audit.Record(ctx, q, AuditInput{
			Actor:      principal,
			Action:     models.AuditActionProposalUpdate,
			EntityType: models.AuditEntityEvent,
			EntityID:   id,
			Payload:    Change{Before: before, After: merged},
		}); err != nil {
			return err
		}
		event = &merged
		return nil
	})
	if err != nil {
		return nil, translateStoreError(s.logger, err, "failed to update proposal")
	}

	s.afterCommit(ctx)
	return event, nil
}

// Retire soft-deletes a proposal. The owner or a manager may retire it.
func (s *ProposalService) Retire(ctx context.Context, id string, principal *models.Principal) error {
	if principal == nil {
		return appErrors.ErrUnauthorized
	}

	err := s.tx.WithinTx(ctx, func(q sqlx.ExtContext) error {
		current, err := s.lookupForUpdate(ctx, q, id, principal)
		if err != nil {
			return err
		}
		if !principal.IsManager() && !principal.Owns(current.CreatedBy) {
			return appErrors.ErrForbidden
		}
		if err := s.events.Retire(ctx, q, id, time.Now().UTC()); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "event not found")
			}
			return err
		}
		return s.audit.Record(ctx, q, AuditInput{
			Actor:      principal,
			Action:     models.AuditActionProposalRetire,
			EntityType: models.AuditEntityEvent,
			EntityID:   id,
			Payload:    Change{Before: current},
		})
	})
	if err != nil {
		return translateStoreError(s.logger, err, "failed to retire proposal")
	}

	s.afterCommit(ctx)
	return nil
}

// List returns the proposals visible to principal. The anonymous listing is
// the only cached read; it never contains anything but approved rows.
func (s *ProposalService) List(ctx context.Context, query dto.EventQuery, principal *models.Principal) ([]models.Event, error) {
	filter := models.EventFilter{Status: query.Status, Limit: query.Limit, Offset: query.Offset}

	var key string
	if principal == nil && s.cache.Enabled() {
		statuses := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			statuses[i] = string(st)
		}
		key = ProposalListKey(statuses, filter.Limit, filter.Offset)
		var cached []models.Event
		if s.cache.Get(ctx, key, &cached) {
			return cached, nil
		}
	}

	events, err := s.events.List(ctx, repository.VisibilityFor(principal), filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list proposals")
	}
	if events == nil {
		events = []models.Event{}
	}
	if key != "" {
		s.cache.Set(ctx, key, events)
	}
	return events, nil
}

// Get returns one proposal if principal may see it. Hidden proposals are
// reported as not found.
func (s *ProposalService) Get(ctx context.Context, id string, principal *models.Principal) (*models.Event, error) {
	event, err := s.events.Get(ctx, id, repository.VisibilityFor(principal))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	return event, nil
}

// ListShifts returns the active shifts linked to a visible proposal.
func (s *ProposalService) ListShifts(ctx context.Context, eventID string, principal *models.Principal) ([]models.ShiftSummary, error) {
	if _, err := s.Get(ctx, eventID, principal); err != nil {
		return nil, err
	}
	shifts, err := s.shifts.List(ctx, models.ShiftFilter{EventID: eventID, Limit: 200}, repository.ShiftVisibilityFor(principal))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list event shifts")
	}
	if shifts == nil {
		shifts = []models.ShiftSummary{}
	}
	return shifts, nil
}

func (s *ProposalService) lookupForUpdate(ctx context.Context, q sqlx.ExtContext, id string, principal *models.Principal) (*models.Event, error) {
	event, err := s.events.GetForUpdate(ctx, q, id, repository.VisibilityFor(principal))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, err
	}
	return event, nil
}

func (s *ProposalService) afterCommit(ctx context.Context) {
	s.cache.InvalidateProposals(ctx)
}

func (s *ProposalService) notify(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, n)
}

func mergeEventUpdate(current models.Event, req dto.UpdateEventRequest) models.Event {
	if req.Title != nil {
		current.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		current.Description = trimmedPtr(req.Description)
	}
	if req.Visibility != nil {
		current.Visibility = *req.Visibility
	}
	if req.StartTime != nil {
		current.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		current.EndTime = req.EndTime.UTC()
	}
	return current
}
