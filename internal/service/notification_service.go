package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/internal/models"
	"github.com/noah-isme/shiftboard-api/pkg/config"
	"github.com/noah-isme/shiftboard-api/pkg/jobs"
	"github.com/noah-isme/shiftboard-api/pkg/mailer"
)

// NotificationKind names a message template.
type NotificationKind string

const (
	NotifySignupConfirmed   NotificationKind = "signup_confirmed"
	NotifySignupRevoked     NotificationKind = "signup_revoked"
	NotifyProposalSubmitted NotificationKind = "proposal_submitted"
	NotifyProposalDecided   NotificationKind = "proposal_decided"
)

// Notification is a fire-and-forget message request. Exactly one of
// RecipientID or RecipientRole is set.
type Notification struct {
	Kind          NotificationKind
	RecipientID   string
	RecipientRole models.Role
	Data          map[string]string
}

// Notifier hands notifications off for asynchronous delivery. It never blocks
// on delivery and never reports delivery failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type notificationUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListActiveByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

// NotificationService renders notifications and delivers them from a worker pool.
type NotificationService struct {
	users   notificationUserStore
	mailer  mailer.Mailer
	metrics *MetricsService
	logger  *zap.Logger
	queue   *jobs.Queue
}

// NewNotificationService constructs the service and its delivery queue.
func NewNotificationService(users notificationUserStore, m mailer.Mailer, metrics *MetricsService, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{users: users, mailer: m, metrics: metrics, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnGiveUp: func(job jobs.Job, err error) {
			metrics.RecordNotification(job.Type, false)
		},
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Drain waits for pending deliveries and stops the workers.
func (s *NotificationService) Drain(ctx context.Context) error {
	return s.queue.Drain(ctx)
}

// Notify implements Notifier.
func (s *NotificationService) Notify(_ context.Context, n Notification) {
	job := jobs.Job{ID: uuid.NewString(), Type: string(n.Kind), Payload: n}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.logger.Warn("notification dropped",
			zap.String("kind", string(n.Kind)),
			zap.String("recipient", n.RecipientID),
			zap.Error(err),
		)
		s.metrics.RecordNotification(string(n.Kind), false)
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	if n.RecipientRole != "" {
		return s.fanOut(ctx, n)
	}

	user, err := s.users.FindByID(ctx, n.RecipientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("notification recipient not found", zap.String("recipient", n.RecipientID))
			return nil
		}
		return err
	}
	if !user.Active {
		return nil
	}

	if err := s.mailer.Send(ctx, renderNotification(n, user)); err != nil {
		return fmt.Errorf("deliver %s to %s: %w", n.Kind, user.ID, err)
	}
	s.metrics.RecordNotification(string(n.Kind), true)
	return nil
}

func (s *NotificationService) fanOut(ctx context.Context, n Notification) error {
	users, err := s.users.ListActiveByRole(ctx, n.RecipientRole)
	if err != nil {
		return err
	}
	data := n.Data
	if proposerID := data["proposer_id"]; proposerID != "" && data["proposer"] == "" {
		data = copyData(data)
		data["proposer"] = "A member"
		if proposer, err := s.users.FindByID(ctx, proposerID); err == nil {
			data["proposer"] = proposer.Name()
		}
	}
	for _, user := range users {
		if user.ID == data["proposer_id"] {
			continue
		}
		s.Notify(ctx, Notification{Kind: n.Kind, RecipientID: user.ID, Data: data})
	}
	return nil
}

func renderNotification(n Notification, user *models.User) mailer.Message {
	d := n.Data
	msg := mailer.Message{ToAddress: user.Email, ToName: user.Name()}
	var body []string

	switch n.Kind {
	case NotifySignupConfirmed:
		msg.Subject = fmt.Sprintf("You're signed up: %s", d["shift_title"])
		body = append(body, fmt.Sprintf("Hi %s, you are confirmed for %s starting %s.", user.Name(), d["shift_title"], d["start_time"]))
	case NotifySignupRevoked:
		msg.Subject = fmt.Sprintf("Signup cancelled: %s", d["shift_title"])
		body = append(body, fmt.Sprintf("Hi %s, a manager removed you from %s.", user.Name(), d["shift_title"]))
	case NotifyProposalSubmitted:
		msg.Subject = fmt.Sprintf("New event proposal: %s", d["title"])
		body = append(body, fmt.Sprintf("%s proposed %s for %s. It is waiting for review.", d["proposer"], d["title"], d["start_time"]))
	case NotifyProposalDecided:
		msg.Subject = fmt.Sprintf("Your proposal was %s: %s", d["status"], d["title"])
		body = append(body, fmt.Sprintf("Hi %s, your proposal %s was %s.", user.Name(), d["title"], d["status"]))
		if notes := d["notes"]; notes != "" {
			body = append(body, "Notes: "+notes)
		}
	default:
		msg.Subject = string(n.Kind)
	}

	msg.PlainText = strings.Join(body, "\n\n")
	return msg
}

func copyData(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
