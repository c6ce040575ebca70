package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinichub/clinic-backend/internal/domain"
)

type NotificationsRepo interface {
	Create(ctx context.Context, userID int64, message string) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id int64) (bool, error)
}

type NotificationsRepoImpl struct{ pool *pgxpool.Pool }

func NewNotificationsRepo(pool *pgxpool.Pool) *NotificationsRepoImpl {
	return &NotificationsRepoImpl{pool: pool}
}

func (r *NotificationsRepoImpl) Create(ctx context.Context, userID int64, message string) (*domain.Notification, error) {
	const q = `INSERT INTO notifications (user_id, message)
VALUES ($1,$2)
RETURNING id, user_id, message, read, created_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n domain.Notification
	err := r.pool.QueryRow(ctx, q, userID, message).Scan(&n.ID, &n.UserID, &n.Message, &n.Read, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationsRepoImpl) ListByUser(ctx context.Context, userID int64) ([]domain.Notification, error) {
	const q = `SELECT id, user_id, message, read, created_at FROM notifications
WHERE user_id=$1 ORDER BY created_at DESC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ns := make([]domain.Notification, 0, 16)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	return ns, rows.Err()
}

func (r *NotificationsRepoImpl) MarkRead(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE notifications SET read=true WHERE id=$1 AND read=false`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

var _ NotificationsRepo = (*NotificationsRepoImpl)(nil)
