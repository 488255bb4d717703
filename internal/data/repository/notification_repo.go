package repository

import (
	"context"
	"fmt"

	"travel-booking/internal/data/entity"
	"travel-booking/pkg/database"

	"go.uber.org/zap"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
}

type notificationRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewNotificationRepository(db database.PgxIface, log *zap.Logger) NotificationRepository {
	return &notificationRepository{
		db:  db,
		log: log.With(zap.String("repository", "notification")),
	}
}

func (r *notificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO payment_notifications (id, notification_type, user_id, email,
		                                   payable_id, payable_kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		n.ID,
		n.Type,
		n.UserID,
		n.Email,
		n.PayableID,
		n.PayableKind,
		n.Payload,
		n.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to enqueue notification",
			zap.Error(err),
			zap.String("payable_id", n.PayableID),
			zap.String("notification_type", string(n.Type)),
		)
		return fmt.Errorf("enqueue %s notification for %s: %w", n.Type, n.PayableID, err)
	}

	return nil
}
