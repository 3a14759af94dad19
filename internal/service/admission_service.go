package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/internal/models"
	"github.com/noah-isme/shiftboard-api/internal/repository"
	"github.com/noah-isme/shiftboard-api/pkg/database"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
)

type txRunner interface {
	WithinTx(ctx context.Context, fn func(tx sqlx.ExtContext) error) error
}

type auditWriter interface {
	Record(ctx context.Context, q sqlx.ExtContext, in AuditInput) error
}

type admissionShiftStore interface {
	GetByID(ctx context.Context, id string, pred repository.Predicate) (*models.ShiftSummary, error)
	GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*models.Shift, error)
	GetVisibleForUpdate(ctx context.Context, q sqlx.ExtContext, id string, pred repository.Predicate) (*models.Shift, error)
}

type claimantStore interface {
	IsActive(ctx context.Context, q sqlx.ExtContext, id string) (bool, error)
}

type admissionSignupStore interface {
	InsertIfRoom(ctx context.Context, q sqlx.ExtContext, signup *models.Signup) (bool, error)
	HasActive(ctx context.Context, q sqlx.ExtContext, shiftID, userID string) (bool, error)
	GetByID(ctx context.Context, q sqlx.ExtContext, shiftID, id string) (*models.Signup, error)
	Cancel(ctx context.Context, q sqlx.ExtContext, id string, cancelledBy *string, at time.Time) error
}

// AdmissionConfig bounds store work per claim.
type AdmissionConfig struct {
	StoreTimeout time.Duration
	RetryOnce    bool
}

// AdmissionService admits members to shifts without ever exceeding capacity.
// Correctness rests on the single conditional insert in the claim ledger; no
// in-process locking is involved.
type AdmissionService struct {
	tx       txRunner
	shifts   admissionShiftStore
	signups  admissionSignupStore
	users    claimantStore
	audit    auditWriter
	notifier Notifier
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      AdmissionConfig
}

// NewAdmissionService constructs the service.
func NewAdmissionService(tx txRunner, shifts admissionShiftStore, signups admissionSignupStore, users claimantStore, audit auditWriter, notifier Notifier, metrics *MetricsService, logger *zap.Logger, cfg AdmissionConfig) *AdmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &AdmissionService{
		tx:       tx,
		shifts:   shifts,
		signups:  signups,
		users:    users,
		audit:    audit,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// TryClaim admits principal to the shift if a place is free. Shifts linked to a
// proposal the caller cannot see are reported as not found, and only active
// accounts may claim.
func (s *AdmissionService) TryClaim(ctx context.Context, shiftID string, principal *models.Principal) (*models.Signup, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}

	start := time.Now()
	signup, shift, err := s.claimOnce(ctx, shiftID, principal)
	if err != nil && s.cfg.RetryOnce && database.IsTransient(err) && ctx.Err() == nil {
		s.logger.Debug("retrying claim after transient store error", zap.String("shift_id", shiftID), zap.Error(err))
		signup, shift, err = s.claimOnce(ctx, shiftID, principal)
	}
	err = translateStoreError(s.logger, err, "failed to claim shift")
	s.metrics.ObserveAdmission(admissionOutcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	s.logger.Info("shift claimed",
		zap.String("shift_id", shiftID),
		zap.String("signup_id", signup.ID),
		zap.String("user_id", principal.UserID),
	)
	s.notify(ctx, Notification{
		Kind:        NotifySignupConfirmed,
		RecipientID: principal.UserID,
		Data:        shiftNotificationData(shift),
	})
	return signup, nil
}

func (s *AdmissionService) claimOnce(ctx context.Context, shiftID string, principal *models.Principal) (*models.Signup, *models.Shift, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	var (
		signup *models.Signup
		shift  *models.Shift
	)
	err := s.tx.WithinTx(ctx, func(q sqlx.ExtContext) error {
		locked, err := s.shifts.GetVisibleForUpdate(ctx, q, shiftID, repository.ShiftVisibilityFor(principal))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "shift not found")
			}
			return err
		}
		if !locked.Active {
			return appErrors.Clone(appErrors.ErrNotFound, "shift not found")
		}
		active, err := s.users.IsActive(ctx, q, principal.UserID)
		if err != nil {
			return err
		}
		if !active {
			return appErrors.Clone(appErrors.ErrForbidden, "account is not active")
		}

		candidate := &models.Signup{ShiftID: shiftID, UserID: principal.UserID}
		inserted, err := s.signups.InsertIfRoom(ctx, q, candidate)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return appErrors.ErrAlreadyClaimed
			}
			return err
		}
		if !inserted {
			return s.classifyRejection(ctx, q, shiftID, principal.UserID)
		}

		if err := s.audit.Record(ctx, q, AuditInput{
			Actor:      principal,
			Action:     models.AuditActionClaimCreate,
			EntityType: models.AuditEntitySignup,
			EntityID:   candidate.ID,
			Payload:    map[string]string{"shift_id": shiftID, "user_id": principal.UserID},
		}); err != nil {
			return err
		}

		signup, shift = candidate, locked
		return nil
	})
	return signup, shift, err
}

// classifyRejection picks the message for a refused insert. The read is not
// authoritative; the refusal itself already happened atomically.
func (s *AdmissionService) classifyRejection(ctx context.Context, q sqlx.ExtContext, shiftID, userID string) error {
	held, err := s.signups.HasActive(ctx, q, shiftID, userID)
	if err != nil {
		s.logger.Debug("could not classify claim rejection", zap.String("shift_id", shiftID), zap.Error(err))
		return appErrors.ErrShiftFull
	}
	if held {
		return appErrors.ErrAlreadyClaimed
	}
	return appErrors.ErrShiftFull
}

// RevokeClaim cancels an active signup. Managers only.
func (s *AdmissionService) RevokeClaim(ctx context.Context, shiftID, signupID string, principal *models.Principal) (*models.Signup, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !principal.IsManager() {
		return nil, appErrors.ErrForbidden
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	var (
		signup *models.Signup
		shift  *models.Shift
	)
	err := s.tx.WithinTx(storeCtx, func(q sqlx.ExtContext) error {
		locked, err := s.shifts.GetForUpdate(storeCtx, q, shiftID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "shift not found")
			}
			return err
		}

		current, err := s.signups.GetByID(storeCtx, q, shiftID, signupID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "signup not found")
			}
			return err
		}
		if current.Status != models.SignupStatusActive {
			return appErrors.Clone(appErrors.ErrNotFound, "signup is not active")
		}

		now := time.Now().UTC()
		if err := s.signups.Cancel(storeCtx, q, signupID, principal.ActorID(), now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "signup is not active")
			}
			return err
		}
		current.Status = models.SignupStatusCancelled
		current.CancelledAt = &now
		current.CancelledBy = principal.ActorID()

		if err := s.audit.Record(storeCtx, q, AuditInput{
			Actor:      principal,
			Action:     models.AuditActionClaimRevoke,
			EntityType: models.AuditEntitySignup,
			EntityID:   signupID,
			Payload: map[string]string{
				"shift_id":   shiftID,
				"user_id":    current.UserID,
				"revoked_by": principal.UserID,
			},
		}); err != nil {
			return err
		}

		signup, shift = current, locked
		return nil
	})
	if err = translateStoreError(s.logger, err, "failed to revoke signup"); err != nil {
		return nil, err
	}

	s.logger.Info("signup revoked",
		zap.String("shift_id", shiftID),
		zap.String("signup_id", signupID),
		zap.String("revoked_by", principal.UserID),
	)
	s.notify(ctx, Notification{
		Kind:        NotifySignupRevoked,
		RecipientID: signup.UserID,
		Data:        shiftNotificationData(shift),
	})
	return signup, nil
}

// Remaining reports free places on an active shift, computed from the ledger
// on every call.
func (s *AdmissionService) Remaining(ctx context.Context, shiftID string, principal *models.Principal) (int, error) {
	summary, err := s.shifts.GetByID(ctx, shiftID, repository.ShiftVisibilityFor(principal))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "shift not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load shift")
	}
	return summary.Remaining, nil
}

func (s *AdmissionService) notify(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, n)
}

func admissionOutcome(err error) string {
	switch {
	case err == nil:
		return AdmissionOutcomeAdmitted
	case errors.Is(err, appErrors.ErrShiftFull):
		return AdmissionOutcomeFull
	case errors.Is(err, appErrors.ErrAlreadyClaimed):
		return AdmissionOutcomeAlreadyClaimed
	case errors.Is(err, appErrors.ErrNotFound):
		return AdmissionOutcomeNotFound
	case errors.Is(err, appErrors.ErrForbidden):
		return AdmissionOutcomeForbidden
	case errors.Is(err, appErrors.ErrRetryable):
		return AdmissionOutcomeRetryable
	default:
		return AdmissionOutcomeError
	}
}

func shiftNotificationData(shift *models.Shift) map[string]string {
	if shift == nil {
		return map[string]string{}
	}
	return map[string]string{
		"shift_id":    shift.ID,
		"shift_title": shift.Title,
		"start_time":  shift.StartTime.UTC().Format("2006-01-02 15:04 MST"),
	}
}
