package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/internal/dto"
	"github.com/noah-isme/shiftboard-api/internal/models"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
)

type userStore interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, error)
	GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*models.User, error)
	UpdateRole(ctx context.Context, q sqlx.ExtContext, id string, role models.Role) error
	Deactivate(ctx context.Context, q sqlx.ExtContext, id string) error
}

type userSignupStore interface {
	ListActiveForUser(ctx context.Context, q sqlx.ExtContext, userID string) ([]models.Signup, error)
	Cancel(ctx context.Context, q sqlx.ExtContext, id string, cancelledBy *string, at time.Time) error
}

// UserService handles account administration. Removed accounts are
// deactivated so their signup history stays intact.
type UserService struct {
	tx        txRunner
	users     userStore
	signups   userSignupStore
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(tx txRunner, users userStore, signups userSignupStore, audit auditWriter, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{tx: tx, users: users, signups: signups, audit: audit, validator: newValidator(), logger: logger}
}

// List returns accounts. Managers only.
func (s *UserService) List(ctx context.Context, query dto.UserQuery, principal *models.Principal) ([]models.User, error) {
	if err := requireManager(principal); err != nil {
		return nil, err
	}
	filter := models.UserFilter{Active: query.Active, Limit: query.Limit, Offset: query.Offset}
	if raw := strings.TrimSpace(query.Role); raw != "" {
		role, err := models.ParseRole(raw)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "role must be one of [member manager]")
		}
		filter.Role = &role
	}

	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// UpdateRole changes the role of an active account. Tokens already issued keep
// the role they were minted with until they expire.
func (s *UserService) UpdateRole(ctx context.Context, id string, req dto.UpdateRoleRequest, principal *models.Principal) (*models.User, error) {
	if err := requireManager(principal); err != nil {
		return nil, err
	}
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid role update")
	}
	role := models.Role(req.Role)

	var updated *models.User
	err := s.tx.WithinTx(ctx, func(q sqlx.ExtContext) error {
		current, err := s.lockActive(ctx, q, id)
		if err != nil {
			return err
		}
		if err := s.users.UpdateRole(ctx, q, id, role); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "user not found")
			}
			return err
		}
		if err := s.audit.Record(ctx, q, AuditInput{
			Actor:      principal,
			Action:     models.AuditActionUserRoleUpdate,
			EntityType: models.AuditEntityUser,
			EntityID:   id,
			Payload:    Change{Before: current.Role, After: role},
		}); err != nil {
			return err
		}
		next := *current
		next.Role = role
		updated = &next
		return nil
	})
	if err != nil {
		return nil, translateStoreError(s.logger, err, "failed to update user role")
	}
	s.logger.Info("user role changed", zap.String("user_id", id), zap.String("role", string(role)), zap.String("changed_by", principal.UserID))
	return updated, nil
}

// Delete removes an account: it is deactivated and its active signups are
// cancelled, freeing their places. Managers cannot remove themselves.
func (s *UserService) Delete(ctx context.Context, id string, principal *models.Principal) error {
	if err := requireManager(principal); err != nil {
		return err
	}
	if id == principal.UserID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete yourself")
	}

	cancelled := 0
	err := s.tx.WithinTx(ctx, func(q sqlx.ExtContext) error {
		current, err := s.lockActive(ctx, q, id)
		if err != nil {
			return err
		}
		held, err := s.signups.ListActiveForUser(ctx, q, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, signup := range held {
			if err := s.signups.Cancel(ctx, q, signup.ID, principal.ActorID(), now); err != nil {
				return err
			}
			if err := s.audit.Record(ctx, q, AuditInput{
				Actor:      principal,
				Action:     models.AuditActionClaimRevoke,
				EntityType: models.AuditEntitySignup,
				EntityID:   signup.ID,
				Payload: map[string]string{
					"shift_id":   signup.ShiftID,
					"user_id":    signup.UserID,
					"revoked_by": principal.UserID,
					"reason":     "user_removed",
				},
			}); err != nil {
				return err
			}
		}

		if err := s.users.Deactivate(ctx, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "user not found")
			}
			return err
		}
		cancelled = len(held)
		return s.audit.Record(ctx, q, AuditInput{
			Actor:      principal,
			Action:     models.AuditActionUserDelete,
			EntityType: models.AuditEntityUser,
			EntityID:   id,
			Payload: map[string]interface{}{
				"email":             current.Email,
				"display_name":      current.DisplayName,
				"role":              current.Role,
				"cancelled_signups": len(held),
			},
		})
	})
	if err != nil {
		return translateStoreError(s.logger, err, "failed to delete user")
	}
	s.logger.Info("user removed", zap.String("user_id", id), zap.Int("cancelled_signups", cancelled), zap.String("removed_by", principal.UserID))
	return nil
}

func (s *UserService) lockActive(ctx context.Context, q sqlx.ExtContext, id string) (*models.User, error) {
	user, err := s.users.GetForUpdate(ctx, q, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, err
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return user, nil
}
