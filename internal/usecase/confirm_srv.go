package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"travel-booking/internal/data/entity"
	"travel-booking/internal/dto/request"
	"travel-booking/internal/dto/response"
	"travel-booking/pkg/gateway"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ConfirmService interface {
	Confirm(ctx context.Context, userID uuid.UUID, req *request.ConfirmPaymentRequest) (*response.ConfirmationResponse, error)
	ConfirmGuest(ctx context.Context, req *request.ConfirmPaymentRequest) (*response.ConfirmationResponse, error)
}

type confirmService struct {
	reconciler *Reconciler
	log        *zap.Logger
}

func NewConfirmService(reconciler *Reconciler, log *zap.Logger) ConfirmService {
	return &confirmService{
		reconciler: reconciler,
		log:        log.With(zap.String("service", "payment_confirm")),
	}
}

func (s *confirmService) Confirm(ctx context.Context, userID uuid.UUID, req *request.ConfirmPaymentRequest) (*response.ConfirmationResponse, error) {
	return s.reconciler.Reconcile(ctx, req.IntentID, &userID)
}

func (s *confirmService) ConfirmGuest(ctx context.Context, req *request.ConfirmPaymentRequest) (*response.ConfirmationResponse, error) {
	return s.reconciler.Reconcile(ctx, req.IntentID, nil)
}

// ConfirmationLedger is the create-if-absent gate used when a confirmation cannot be
// recorded in a booking store.
type ConfirmationLedger interface {
	RecordConfirmation(intentID, payableID string) (bool, error)
}

// Notifier delivers customer notifications. Failures never fail a payment operation.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, payable *entity.Payable) error
	RefundIssued(ctx context.Context, payable *entity.Payable, refund *entity.RefundRecord) error
}

// Reconciler turns a gateway-confirmed intent into a booking state transition, once.
// Client confirms, webhooks, status reads, intent reuse and refunds all go through it.
type Reconciler struct {
	locator  *PayableLocator
	gateway  gateway.Gateway
	ledger   ConfirmationLedger
	notifier Notifier
	locks    *keyedMutex
	now      func() time.Time
	log      *zap.Logger
}

func NewReconciler(locator *PayableLocator, gw gateway.Gateway, ledger ConfirmationLedger, notifier Notifier, locks *keyedMutex, log *zap.Logger) *Reconciler {
	return &Reconciler{
		locator:  locator,
		gateway:  gw,
		ledger:   ledger,
		notifier: notifier,
		locks:    locks,
		now:      time.Now,
		log:      log.With(zap.String("service", "payment_reconciler")),
	}
}

// Reconcile re-fetches the intent from the gateway and applies it. When caller is set, the
// intent and booking must belong to that user.
func (r *Reconciler) Reconcile(ctx context.Context, intentID string, caller *uuid.UUID) (*response.ConfirmationResponse, error) {
	intent, err := r.gateway.GetIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, gateway.ErrIntentNotFound) {
			return nil, fmt.Errorf("%w: payment intent %s", ErrNotFound, intentID)
		}
		return nil, fmt.Errorf("fetch payment intent %s: %w", intentID, err)
	}

	return r.apply(ctx, intent, caller)
}

// apply takes an intent the gateway itself returned. Callers must not pass client input.
func (r *Reconciler) apply(ctx context.Context, intent *gateway.Intent, caller *uuid.UUID) (*response.ConfirmationResponse, error) {
	if caller != nil {
		if owner, ok := metadataOwner(intent); ok && owner != *caller {
			return nil, fmt.Errorf("%w: payment intent %s", ErrForbidden, intent.ID)
		}
	}

	if intent.Status != gateway.StatusSucceeded {
		return nil, fmt.Errorf("%w: payment intent %s is %s", ErrPaymentNotSucceeded, intent.ID, intent.Status)
	}

	payable, err := r.resolve(ctx, intent)
	if err != nil {
		return nil, err
	}

	if caller != nil && !payable.Synthetic && payable.OwnerUserID != nil && !payable.OwnedBy(*caller) {
		return nil, fmt.Errorf("%w: booking %s", ErrForbidden, payable.ID)
	}

	unlock := r.locks.Lock(payableKey(string(payable.Kind), payable.ID))
	defer unlock()

	if !payable.Synthetic {
		// another path may have finished while we waited for the lock
		if fresh, err := r.locator.Store(payable.Kind).FindByID(ctx, payable.ID); err == nil && fresh != nil {
			payable = fresh
		}
	}

	switch payable.PaymentStatus {
	case entity.PaymentStatusPaid, entity.PaymentStatusRefunded:
		if payable.IntentID() != intent.ID {
			return r.refundDuplicate(ctx, payable, intent)
		}
		return response.ConfirmationFromPayable(payable, true), nil
	}

	previous := payable.IntentID()
	paidAt := r.now().UTC()
	amountPaid := gateway.ToMajorUnits(intent.Amount, intent.Currency)

	persisted, notify, err := r.transition(ctx, payable, intent, amountPaid, paidAt)
	if err != nil {
		return nil, err
	}
	if !persisted && !notify {
		return response.ConfirmationFromPayable(payable, true), nil
	}

	if notify {
		r.log.Info("Payment confirmed",
			zap.String("booking_id", payable.ID),
			zap.String("kind", string(payable.Kind)),
			zap.String("intent_id", intent.ID),
			zap.Float64("amount_paid", amountPaid),
			zap.String("currency", intent.Currency),
			zap.Bool("synthetic", payable.Synthetic),
			zap.Bool("mock", intent.Mock),
		)
	}

	// sibling updates are conditional, so a rerun after a late write only fills gaps
	r.cascade(ctx, payable, paidAt)

	if previous != "" && previous != intent.ID {
		r.cancelSuperseded(ctx, payable, previous)
	}

	if !notify {
		return response.ConfirmationFromPayable(payable, true), nil
	}

	if err := r.notifier.PaymentConfirmed(ctx, payable); err != nil {
		r.log.Warn("Payment confirmation notification failed",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
		)
	}

	return response.ConfirmationFromPayable(payable, false), nil
}

// refundDuplicate returns a second charge for a booking that another intent already settled.
// A failed refund is returned so the webhook or the client retries it.
func (r *Reconciler) refundDuplicate(ctx context.Context, payable *entity.Payable, intent *gateway.Intent) (*response.ConfirmationResponse, error) {
	r.log.Error("Duplicate payment for settled booking, refunding",
		zap.String("booking_id", payable.ID),
		zap.String("kind", string(payable.Kind)),
		zap.String("settled_intent_id", payable.IntentID()),
		zap.String("duplicate_intent_id", intent.ID),
		zap.Int64("amount_minor", intent.Amount),
		zap.String("currency", intent.Currency),
	)

	refund, err := r.gateway.Refund(ctx, gateway.RefundParams{
		IntentID:       intent.ID,
		Reason:         "duplicate payment for booking " + payable.ID,
		IdempotencyKey: "duplicate:" + intent.ID,
		Duplicate:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("refund duplicate payment %s for booking %s: %w", intent.ID, payable.ID, err)
	}

	r.log.Info("Duplicate payment refunded",
		zap.String("booking_id", payable.ID),
		zap.String("duplicate_intent_id", intent.ID),
		zap.String("refund_id", refund.ID),
	)

	res := response.ConfirmationFromPayable(payable, true)
	res.DuplicateIntentID = intent.ID
	res.DuplicateRefundID = refund.ID
	return res, nil
}

// cancelSuperseded stops the intent a booking held before another one paid for it. If that
// intent is paid anyway, its confirmation is refunded as a duplicate.
func (r *Reconciler) cancelSuperseded(ctx context.Context, payable *entity.Payable, intentID string) {
	if _, err := r.gateway.CancelIntent(ctx, intentID); err != nil && !errors.Is(err, gateway.ErrIntentNotFound) {
		r.log.Warn("Failed to cancel superseded payment intent",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
			zap.String("intent_id", intentID),
		)
	}
}

// transition applies the confirmation. persisted reports that this call wrote the paid state
// to the store. notify reports that the ledger gave this call the customer notification.
// payable reflects the resulting state either way.
func (r *Reconciler) transition(ctx context.Context, payable *entity.Payable, intent *gateway.Intent, amountPaid float64, paidAt time.Time) (persisted, notify bool, err error) {
	if !payable.Synthetic {
		store := r.locator.Store(payable.Kind)
		updated, err := store.MarkPaid(ctx, payable.ID, intent.ID, amountPaid, paidAt)
		switch {
		case err == nil && updated:
			persisted = true
		case err == nil:
			// a concurrent confirmation won the conditional update
			fresh, err := store.FindByID(ctx, payable.ID)
			if err != nil || fresh == nil {
				return false, false, fmt.Errorf("reload booking %s after confirmation: %w", payable.ID, err)
			}
			*payable = *fresh
			return false, false, nil
		default:
			r.log.Warn("Failed to persist payment confirmation, gating on ledger",
				zap.Error(err),
				zap.String("booking_id", payable.ID),
				zap.String("intent_id", intent.ID),
			)
		}
	}

	markPaid(payable, intent, amountPaid, paidAt)

	// Stored confirmations are recorded too, so a confirmation that was only gated by the
	// ledger and later persisted by a status read does not notify twice.
	first, err := r.ledger.RecordConfirmation(intent.ID, payable.ID)
	if err != nil {
		r.log.Error("Failed to record confirmation in ledger",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
			zap.String("intent_id", intent.ID),
		)
		return persisted, true, nil
	}
	return persisted, first, nil
}

func markPaid(payable *entity.Payable, intent *gateway.Intent, amountPaid float64, paidAt time.Time) {
	payable.PaymentStatus = entity.PaymentStatusPaid
	payable.BookingStatus = entity.BookingStatusConfirmed
	payable.PaymentIntentID = &intent.ID
	payable.AmountPaid = &amountPaid
	payable.PaymentDate = &paidAt
	if payable.Currency == "" {
		payable.Currency = intent.Currency
	}
}

// resolve finds the booking an intent pays for: stored intent id first, then metadata,
// then a synthetic stand-in when the stores cannot answer.
func (r *Reconciler) resolve(ctx context.Context, intent *gateway.Intent) (*entity.Payable, error) {
	payable, err := r.locator.FindByIntentID(ctx, intent.ID)
	if err != nil {
		r.log.Warn("Reverse lookup by payment intent failed",
			zap.Error(err),
			zap.String("intent_id", intent.ID),
		)
	}
	if payable != nil {
		return payable, nil
	}

	id := intent.Metadata[metaPayableID]
	if id == "" {
		return nil, fmt.Errorf("%w: payment intent %s names no booking", ErrNotFound, intent.ID)
	}

	if entity.IsGuestBookingID(id) {
		return syntheticFromIntent(intent), nil
	}

	if kind, ok := metadataKind(intent); ok {
		if store := r.locator.Store(kind); store != nil {
			payable, err = store.FindByID(ctx, id)
		} else {
			payable, err = r.locator.Locate(ctx, id, nil)
		}
	} else {
		payable, err = r.locator.Locate(ctx, id, nil)
	}

	switch {
	case err == nil && payable != nil:
		return payable, nil
	case err == nil, errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	r.log.Warn("Booking lookup failed, confirming synthetic booking from intent metadata",
		zap.Error(err),
		zap.String("booking_id", id),
		zap.String("intent_id", intent.ID),
	)
	return syntheticFromIntent(intent), nil
}

// cascade confirms every record sharing the booking reference. Each update stands alone.
func (r *Reconciler) cascade(ctx context.Context, payable *entity.Payable, paidAt time.Time) {
	if payable.Synthetic {
		return
	}

	for _, sibling := range r.locator.FindSiblings(ctx, payable) {
		if sibling.PaymentStatus == entity.PaymentStatusPaid || sibling.PaymentStatus == entity.PaymentStatusRefunded {
			continue
		}

		updated, err := r.locator.Store(sibling.Kind).ConfirmSibling(ctx, sibling.ID, paidAt)
		if err != nil {
			r.log.Warn("Cascade update failed",
				zap.Error(err),
				zap.String("booking_id", payable.ID),
				zap.String("sibling_id", sibling.ID),
				zap.String("sibling_kind", string(sibling.Kind)),
			)
			continue
		}
		if updated {
			r.log.Info("Sibling booking confirmed",
				zap.String("booking_id", payable.ID),
				zap.String("sibling_id", sibling.ID),
				zap.String("sibling_kind", string(sibling.Kind)),
			)
		}
	}
}
