package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"travel-booking/internal/data/entity"
	"travel-booking/internal/data/repository"
	"travel-booking/internal/dto/request"
	"travel-booking/internal/dto/response"
	"travel-booking/pkg/gateway"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RefundService interface {
	Refund(ctx context.Context, userID uuid.UUID, bookingID string, req *request.RefundRequest) (*response.RefundResponse, error)
}

type refundService struct {
	locator    *PayableLocator
	gateway    gateway.Gateway
	reconciler *Reconciler
	refunds    repository.RefundRepository
	notifier   Notifier
	locks      *keyedMutex
	log        *zap.Logger
}

func NewRefundService(locator *PayableLocator, gw gateway.Gateway, reconciler *Reconciler, refunds repository.RefundRepository, notifier Notifier, locks *keyedMutex, log *zap.Logger) RefundService {
	return &refundService{
		locator:    locator,
		gateway:    gw,
		reconciler: reconciler,
		refunds:    refunds,
		notifier:   notifier,
		locks:      locks,
		log:        log.With(zap.String("service", "payment_refund")),
	}
}

func (s *refundService) Refund(ctx context.Context, userID uuid.UUID, bookingID string, req *request.RefundRequest) (*response.RefundResponse, error) {
	payable, err := s.locator.Locate(ctx, bookingID, nil)
	if err != nil {
		return nil, err
	}

	if !payable.OwnedBy(userID) {
		s.log.Warn("Refund requested for booking owned by another user",
			zap.String("booking_id", payable.ID),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("%w: booking %s", ErrForbidden, payable.ID)
	}

	intentID := payable.IntentID()
	if intentID == "" {
		return nil, fmt.Errorf("%w: booking %s", ErrNoPaymentFound, payable.ID)
	}

	// finish an in-flight confirmation before deciding whether the booking is refundable
	if payable.PaymentStatus == entity.PaymentStatusPending || payable.PaymentStatus == entity.PaymentStatusFailed {
		if _, err := s.reconciler.Reconcile(ctx, intentID, &userID); err != nil && !errors.Is(err, ErrPaymentNotSucceeded) {
			s.log.Warn("Failed to re-check payment before refund",
				zap.Error(err),
				zap.String("booking_id", payable.ID),
				zap.String("intent_id", intentID),
			)
		}
	}

	unlock := s.locks.Lock(payableKey(string(payable.Kind), payable.ID))
	defer unlock()

	store := s.locator.Store(payable.Kind)
	payable, err = store.FindByID(ctx, payable.ID)
	if err != nil {
		return nil, fmt.Errorf("reload booking %s: %w", bookingID, err)
	}
	if payable == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, bookingID)
	}

	switch payable.PaymentStatus {
	case entity.PaymentStatusPaid:
	case entity.PaymentStatusRefunded:
		return nil, fmt.Errorf("%w: booking %s is already refunded", ErrInvalidState, payable.ID)
	default:
		return nil, fmt.Errorf("%w: booking %s payment is %s", ErrInvalidState, payable.ID, payable.PaymentStatus)
	}

	amountPaid := payable.TotalAmount
	if payable.AmountPaid != nil {
		amountPaid = *payable.AmountPaid
	}

	currency := payable.Currency
	amount := amountPaid
	if req.Amount != nil {
		amount = *req.Amount
	}

	amountMinor := gateway.ToMinorUnits(amount, currency)
	if amountMinor <= 0 || amountMinor > gateway.ToMinorUnits(amountPaid, currency) {
		return nil, fmt.Errorf("%w: refund amount must be greater than 0 and at most %.2f", ErrValidation, amountPaid)
	}

	refund, err := s.gateway.Refund(ctx, gateway.RefundParams{
		IntentID:       payable.IntentID(),
		Amount:         amountMinor,
		Reason:         req.Reason,
		IdempotencyKey: fmt.Sprintf("refund:%s:%s:%d", payable.ID, payable.IntentID(), amountMinor),
	})
	if err != nil {
		s.log.Error("Gateway refund failed",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
			zap.String("intent_id", payable.IntentID()),
		)
		return nil, fmt.Errorf("refund booking %s: %w", payable.ID, err)
	}

	if refund.Currency != "" {
		currency = refund.Currency
	}
	refunded := gateway.ToMajorUnits(refund.Amount, currency)

	updated, err := store.MarkRefunded(ctx, payable.ID)
	if err != nil {
		s.log.Warn("Failed to persist refunded state",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
			zap.String("refund_id", refund.ID),
		)
	} else if !updated {
		s.log.Warn("Booking changed state during refund",
			zap.String("booking_id", payable.ID),
			zap.String("refund_id", refund.ID),
		)
	}
	payable.PaymentStatus = entity.PaymentStatusRefunded
	payable.BookingStatus = entity.BookingStatusCancelled

	record := &entity.RefundRecord{
		BaseSimple: entity.BaseSimple{
			ID:        uuid.New(),
			CreatedAt: time.Now().UTC(),
		},
		PayableID:       payable.ID,
		PayableKind:     payable.Kind,
		IntentID:        payable.IntentID(),
		RefundID:        refund.ID,
		Amount:          refunded,
		Currency:        currency,
		Reason:          req.Reason,
		ResultingStatus: payable.PaymentStatus,
		RequestedBy:     &userID,
	}
	if err := s.refunds.Create(ctx, record); err != nil {
		s.log.Warn("Failed to store refund record",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
			zap.String("refund_id", refund.ID),
		)
	}

	if err := s.notifier.RefundIssued(ctx, payable, record); err != nil {
		s.log.Warn("Refund notification failed",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
		)
	}

	s.log.Info("Refund issued",
		zap.String("booking_id", payable.ID),
		zap.String("refund_id", refund.ID),
		zap.Float64("amount", refunded),
		zap.String("currency", currency),
		zap.Bool("mock", refund.Mock),
	)

	return &response.RefundResponse{
		RefundID:      refund.ID,
		BookingID:     payable.ID,
		IntentID:      payable.IntentID(),
		Amount:        refunded,
		Currency:      currency,
		Status:        refund.Status,
		PaymentStatus: payable.PaymentStatus,
		BookingStatus: payable.BookingStatus,
		Mock:          refund.Mock,
	}, nil
}
