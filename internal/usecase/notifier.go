package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"travel-booking/internal/data/entity"
	"travel-booking/internal/data/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// outboxNotifier enqueues customer notifications for the delivery service.
type outboxNotifier struct {
	repo repository.NotificationRepository
	log  *zap.Logger
}

func NewOutboxNotifier(repo repository.NotificationRepository, log *zap.Logger) Notifier {
	return &outboxNotifier{
		repo: repo,
		log:  log.With(zap.String("service", "notifier")),
	}
}

type paymentConfirmedPayload struct {
	BookingReference string    `json:"booking_reference,omitempty"`
	IntentID         string    `json:"payment_intent_id"`
	AmountPaid       float64   `json:"amount_paid"`
	Currency         string    `json:"currency"`
	PaidAt           time.Time `json:"paid_at"`
	Synthetic        bool      `json:"synthetic,omitempty"`
}

type refundIssuedPayload struct {
	BookingReference string  `json:"booking_reference,omitempty"`
	RefundID         string  `json:"refund_id"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	Reason           string  `json:"reason,omitempty"`
}

func (n *outboxNotifier) PaymentConfirmed(ctx context.Context, p *entity.Payable) error {
	payload := paymentConfirmedPayload{
		BookingReference: p.BookingReference,
		IntentID:         p.IntentID(),
		Currency:         p.Currency,
		Synthetic:        p.Synthetic,
	}
	if p.AmountPaid != nil {
		payload.AmountPaid = *p.AmountPaid
	}
	if p.PaymentDate != nil {
		payload.PaidAt = *p.PaymentDate
	}

	return n.enqueue(ctx, entity.NotificationPaymentConfirmed, p, payload)
}

func (n *outboxNotifier) RefundIssued(ctx context.Context, p *entity.Payable, refund *entity.RefundRecord) error {
	return n.enqueue(ctx, entity.NotificationRefundIssued, p, refundIssuedPayload{
		BookingReference: p.BookingReference,
		RefundID:         refund.RefundID,
		Amount:           refund.Amount,
		Currency:         refund.Currency,
		Reason:           refund.Reason,
	})
}

func (n *outboxNotifier) enqueue(ctx context.Context, kind entity.NotificationType, p *entity.Payable, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", kind, err)
	}

	notification := &entity.Notification{
		BaseSimple: entity.BaseSimple{
			ID:        uuid.New(),
			CreatedAt: time.Now().UTC(),
		},
		Type:        kind,
		UserID:      p.OwnerUserID,
		Email:       p.CustomerEmail,
		PayableID:   p.ID,
		PayableKind: p.Kind,
		Payload:     body,
	}

	if err := n.repo.Create(ctx, notification); err != nil {
		return err
	}

	n.log.Info("Notification enqueued",
		zap.String("notification_type", string(kind)),
		zap.String("booking_id", p.ID),
	)
	return nil
}
