package usecase

import (
	"context"
	"fmt"

	"travel-booking/internal/data/entity"
	"travel-booking/internal/data/repository"
	"travel-booking/internal/dto/response"
	"travel-booking/pkg/gateway"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type StatusService interface {
	GetStatus(ctx context.Context, userID uuid.UUID, bookingID string) (*response.PaymentStatusResponse, error)
}

type statusService struct {
	locator    *PayableLocator
	gateway    gateway.Gateway
	reconciler *Reconciler
	refunds    repository.RefundRepository
	log        *zap.Logger
}

func NewStatusService(locator *PayableLocator, gw gateway.Gateway, reconciler *Reconciler, refunds repository.RefundRepository, log *zap.Logger) StatusService {
	return &statusService{
		locator:    locator,
		gateway:    gw,
		reconciler: reconciler,
		refunds:    refunds,
		log:        log.With(zap.String("service", "payment_status")),
	}
}

// GetStatus reports the stored payment state, re-checking unsettled intents with the gateway
// so a confirmation that never reached the store is applied on read.
func (s *statusService) GetStatus(ctx context.Context, userID uuid.UUID, bookingID string) (*response.PaymentStatusResponse, error) {
	payable, err := s.locator.Locate(ctx, bookingID, nil)
	if err != nil {
		return nil, err
	}

	if !payable.OwnedBy(userID) {
		return nil, fmt.Errorf("%w: booking %s", ErrForbidden, payable.ID)
	}

	unsettled := payable.PaymentStatus == entity.PaymentStatusPending || payable.PaymentStatus == entity.PaymentStatusFailed
	if unsettled && payable.IntentID() != "" {
		payable = s.recheck(ctx, payable, userID)
	}

	refunds, err := s.refunds.FindByPayableID(ctx, payable.ID)
	if err != nil {
		s.log.Warn("Failed to load refunds",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
		)
	}

	return response.StatusFromPayable(payable, refunds), nil
}

func (s *statusService) recheck(ctx context.Context, payable *entity.Payable, userID uuid.UUID) *entity.Payable {
	intent, err := s.gateway.GetIntent(ctx, payable.IntentID())
	if err != nil {
		s.log.Warn("Failed to re-check payment intent",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
			zap.String("intent_id", payable.IntentID()),
		)
		return payable
	}
	if intent.Status != gateway.StatusSucceeded {
		return payable
	}

	if _, err := s.reconciler.apply(ctx, intent, &userID); err != nil {
		s.log.Warn("Failed to reconcile payment on status read",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
			zap.String("intent_id", intent.ID),
		)
		return payable
	}

	fresh, err := s.locator.Store(payable.Kind).FindByID(ctx, payable.ID)
	if err != nil || fresh == nil {
		return payable
	}
	return fresh
}
