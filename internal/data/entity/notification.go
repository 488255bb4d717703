package entity

import (
	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationPaymentConfirmed NotificationType = "payment_confirmed"
	NotificationRefundIssued     NotificationType = "refund_issued"
)

// Notification is an outbox row picked up by the delivery service.
type Notification struct {
	BaseSimple
	Type        NotificationType `db:"notification_type"`
	UserID      *uuid.UUID       `db:"user_id"`
	Email       *string          `db:"email"`
	PayableID   string           `db:"payable_id"`
	PayableKind PayableKind      `db:"payable_kind"`
	Payload     []byte           `db:"payload"`
}
