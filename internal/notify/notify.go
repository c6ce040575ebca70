// Package notify delivers user-facing notifications for state-changing
// scheduler operations. Dispatch is fire-and-forget: a notification is
// persisted for the recipient's feed, published on the event bus, and
// optionally mailed; every failure is logged and never reaches the caller.
package notify

import (
	"context"
	"time"

	"github.com/clinichub/clinic-backend/internal/domain"
	"github.com/clinichub/clinic-backend/internal/repo/postgres"
	"github.com/clinichub/clinic-backend/pkg/events"
	"github.com/clinichub/clinic-backend/pkg/logger"
)

type Dispatcher interface {
	Notify(ctx context.Context, userID int64, message string)
}

type Service struct {
	repo   postgres.NotificationsRepo
	users  postgres.UsersRepo
	bus    events.Publisher
	mailer Mailer
}

func NewService(repo postgres.NotificationsRepo, users postgres.UsersRepo, bus events.Publisher, mailer Mailer) *Service {
	return &Service{repo: repo, users: users, bus: bus, mailer: mailer}
}

func (s *Service) Notify(ctx context.Context, userID int64, message string) {
	n, err := s.repo.Create(ctx, userID, message)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist notification", "error", err, "user_id", userID)
		n = &domain.Notification{UserID: userID, Message: message, CreatedAt: time.Now()}
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, events.NotifySend, events.NotificationEvent{
			UserID:    userID,
			Message:   message,
			CreatedAt: n.CreatedAt,
		}); err != nil {
			logger.ErrorContext(ctx, "Failed to publish notification event", "error", err, "user_id", userID)
		}
	}

	if s.mailer == nil {
		return
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil || user == nil {
		logger.WarnContext(ctx, "Skipping notification email, recipient not resolved", "error", err, "user_id", userID)
		return
	}
	if err := s.mailer.Send(user.Email, user.Name, "Appointment update", message); err != nil {
		logger.ErrorContext(ctx, "Failed to send notification email", "error", err, "user_id", userID)
	}
}

func (s *Service) ListForUser(ctx context.Context, userID int64) ([]domain.Notification, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, id int64) (bool, error) {
	return s.repo.MarkRead(ctx, id)
}

var _ Dispatcher = (*Service)(nil)
