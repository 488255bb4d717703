package usecase

import (
	"context"
	"errors"
	"fmt"

	"travel-booking/internal/data/entity"
	"travel-booking/internal/dto/response"
	"travel-booking/pkg/gateway"

	"go.uber.org/zap"
)

type WebhookService interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (*response.WebhookResponse, error)
}

// EventLedger de-duplicates webhook deliveries by event id.
type EventLedger interface {
	RecordEvent(eventID, eventType string) (bool, error)
	ForgetEvent(eventID string) error
}

type webhookService struct {
	verifier   gateway.WebhookVerifier
	events     EventLedger
	locator    *PayableLocator
	reconciler *Reconciler
	locks      *keyedMutex
	log        *zap.Logger
}

func NewWebhookService(verifier gateway.WebhookVerifier, events EventLedger, locator *PayableLocator, reconciler *Reconciler, locks *keyedMutex, log *zap.Logger) WebhookService {
	return &webhookService{
		verifier:   verifier,
		events:     events,
		locator:    locator,
		reconciler: reconciler,
		locks:      locks,
		log:        log.With(zap.String("service", "payment_webhook")),
	}
}

func (s *webhookService) HandleEvent(ctx context.Context, payload []byte, signature string) (*response.WebhookResponse, error) {
	event, err := s.verifier.Verify(payload, signature)
	if err != nil {
		s.log.Warn("Rejected webhook with invalid signature", zap.Error(err))
		return nil, err
	}

	res := &response.WebhookResponse{
		Received:  true,
		EventID:   event.ID,
		EventType: event.Type,
	}

	first, err := s.events.RecordEvent(event.ID, event.Type)
	if err != nil {
		s.log.Warn("Failed to record webhook event, processing anyway",
			zap.Error(err),
			zap.String("event_id", event.ID),
		)
		first = true
	}
	if !first {
		s.log.Info("Duplicate webhook event acknowledged",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		res.Duplicate = true
		return res, nil
	}

	if err := s.dispatch(ctx, event, res); err != nil {
		// let the gateway redeliver
		if ferr := s.events.ForgetEvent(event.ID); ferr != nil {
			s.log.Error("Failed to forget webhook event",
				zap.Error(ferr),
				zap.String("event_id", event.ID),
			)
		}
		return nil, err
	}

	return res, nil
}

func (s *webhookService) dispatch(ctx context.Context, event *gateway.Event, res *response.WebhookResponse) error {
	switch event.Type {
	case gateway.EventIntentSucceeded, gateway.EventIntentFailed:
		if event.DecodeErr != nil {
			// the signature matched, so a redelivery carries the same unreadable body
			s.log.Warn("Payment intent event could not be decoded",
				zap.Error(event.DecodeErr),
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
			)
			res.Ignored = true
			return nil
		}
		if event.Intent == nil || event.Intent.ID == "" {
			s.log.Warn("Payment intent event without intent",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
			)
			res.Ignored = true
			return nil
		}
	default:
		s.log.Info("Ignoring webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		res.Ignored = true
		return nil
	}

	if event.Type == gateway.EventIntentFailed {
		return s.markFailed(ctx, event.Intent)
	}

	confirmation, err := s.reconciler.Reconcile(ctx, event.Intent.ID, nil)
	if errors.Is(err, ErrNotFound) {
		// nothing can ever match this intent, retries would not help
		s.log.Warn("Succeeded payment intent matches no booking",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("intent_id", event.Intent.ID),
		)
		res.Ignored = true
		return nil
	}
	if err != nil {
		s.log.Error("Failed to reconcile payment from webhook",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("intent_id", event.Intent.ID),
		)
		return fmt.Errorf("reconcile webhook event %s: %w", event.ID, err)
	}

	s.log.Info("Webhook payment reconciled",
		zap.String("event_id", event.ID),
		zap.String("booking_id", confirmation.BookingID),
		zap.Bool("already_confirmed", confirmation.AlreadyConfirmed),
		zap.String("duplicate_refund_id", confirmation.DuplicateRefundID),
	)
	return nil
}

// markFailed moves the booking to failed only while the failed intent is still its current one.
func (s *webhookService) markFailed(ctx context.Context, intent *gateway.Intent) error {
	payable, err := s.locator.FindByIntentID(ctx, intent.ID)
	if err != nil {
		return fmt.Errorf("find booking for failed intent %s: %w", intent.ID, err)
	}

	if payable == nil {
		id := intent.Metadata[metaPayableID]
		kind, ok := metadataKind(intent)
		if id != "" && ok && !entity.IsGuestBookingID(id) {
			if store := s.locator.Store(kind); store != nil {
				if payable, err = store.FindByID(ctx, id); err != nil {
					return fmt.Errorf("find booking %s for failed intent %s: %w", id, intent.ID, err)
				}
			}
		}
	}

	if payable == nil {
		s.log.Info("Failed payment intent matches no stored booking",
			zap.String("intent_id", intent.ID),
		)
		return nil
	}

	unlock := s.locks.Lock(payableKey(string(payable.Kind), payable.ID))
	defer unlock()

	updated, err := s.locator.Store(payable.Kind).MarkFailed(ctx, payable.ID, intent.ID)
	if err != nil {
		return fmt.Errorf("mark booking %s failed: %w", payable.ID, err)
	}

	s.log.Info("Payment failure recorded",
		zap.String("booking_id", payable.ID),
		zap.String("intent_id", intent.ID),
		zap.Bool("updated", updated),
	)
	return nil
}
