package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"travel-booking/internal/data/entity"
	"travel-booking/internal/dto/request"
	"travel-booking/internal/dto/response"
	"travel-booking/pkg/gateway"
	"travel-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type IntentService interface {
	CreateIntent(ctx context.Context, userID uuid.UUID, req *request.CreateIntentRequest) (*response.IntentResponse, error)
	CreateGuestIntent(ctx context.Context, req *request.GuestIntentRequest) (*response.IntentResponse, error)
}

type intentService struct {
	locator    *PayableLocator
	gateway    gateway.Gateway
	reconciler *Reconciler
	config     utils.PaymentConfig
	log        *zap.Logger
}

func NewIntentService(locator *PayableLocator, gw gateway.Gateway, reconciler *Reconciler, config utils.PaymentConfig, log *zap.Logger) IntentService {
	return &intentService{
		locator:    locator,
		gateway:    gw,
		reconciler: reconciler,
		config:     config,
		log:        log.With(zap.String("service", "payment_intent")),
	}
}

// intentInput is what both entry points hand to createIntent once validated.
type intentInput struct {
	bookingID string
	amount    float64
	currency  string
	caller    *uuid.UUID
	email     string
	name      string
}

func (s *intentService) CreateIntent(ctx context.Context, userID uuid.UUID, req *request.CreateIntentRequest) (*response.IntentResponse, error) {
	return s.createIntent(ctx, intentInput{
		bookingID: req.BookingID,
		amount:    req.Amount,
		currency:  req.Currency,
		caller:    &userID,
	})
}

func (s *intentService) CreateGuestIntent(ctx context.Context, req *request.GuestIntentRequest) (*response.IntentResponse, error) {
	return s.createIntent(ctx, intentInput{
		bookingID: req.BookingID,
		amount:    req.Amount,
		currency:  req.Currency,
		email:     strings.TrimSpace(req.Email),
		name:      strings.TrimSpace(req.Name),
	})
}

func (s *intentService) createIntent(ctx context.Context, in intentInput) (*response.IntentResponse, error) {
	currency := utils.NormalizeCurrency(in.currency, s.config.DefaultCurrency)

	payable, err := s.locator.Locate(ctx, in.bookingID, &SyntheticHint{
		Amount:        in.amount,
		Currency:      currency,
		OwnerUserID:   in.caller,
		CustomerEmail: in.email,
	})
	if err != nil {
		return nil, err
	}

	// guest checkout skips ownership, it has no caller
	if in.caller != nil && !payable.Synthetic && !payable.OwnedBy(*in.caller) {
		s.log.Warn("Intent requested for booking owned by another user",
			zap.String("booking_id", payable.ID),
			zap.String("user_id", in.caller.String()),
		)
		return nil, fmt.Errorf("%w: booking %s", ErrForbidden, payable.ID)
	}

	switch {
	case payable.IsPaid():
		return nil, fmt.Errorf("%w: booking %s", ErrAlreadyPaid, payable.ID)
	case payable.PaymentStatus == entity.PaymentStatusRefunded:
		return nil, fmt.Errorf("%w: booking %s was refunded", ErrInvalidState, payable.ID)
	case payable.BookingStatus == entity.BookingStatusCancelled:
		return nil, fmt.Errorf("%w: booking %s is cancelled", ErrInvalidState, payable.ID)
	}

	if in.currency == "" && payable.Currency != "" {
		currency = strings.ToUpper(payable.Currency)
	}
	if in.email != "" && payable.CustomerEmail == nil {
		payable.CustomerEmail = &in.email
	}

	amountMinor, capped := s.chargeAmount(in.amount, currency)

	if reused, err := s.reuseIntent(ctx, payable, amountMinor, currency, in.caller); reused != nil || err != nil {
		return reused, err
	}

	description := fmt.Sprintf("%s booking %s", payable.Kind, payable.ID)
	if payable.BookingReference != "" {
		description = fmt.Sprintf("%s booking %s", payable.Kind, payable.BookingReference)
	}
	if in.name != "" {
		description += " for " + in.name
	}

	params := gateway.CreateIntentParams{
		Amount:         amountMinor,
		Currency:       currency,
		Description:    description,
		Metadata:       intentMetadata(payable, in.amount, capped),
		IdempotencyKey: fmt.Sprintf("intent:%s:%s:%s:%d", payable.Kind, payable.ID, payable.IntentID(), amountMinor),
	}
	if payable.CustomerEmail != nil {
		params.ReceiptEmail = *payable.CustomerEmail
	}

	intent, err := s.gateway.CreateIntent(ctx, params)
	if err != nil {
		s.log.Error("Failed to create payment intent",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
			zap.Int64("amount_minor", amountMinor),
			zap.String("currency", currency),
		)
		return nil, fmt.Errorf("create payment intent for booking %s: %w", payable.ID, err)
	}

	if !payable.Synthetic {
		// best-effort: confirmation can recover the booking from intent metadata
		if err := s.locator.Store(payable.Kind).AttachIntent(ctx, payable.ID, intent.ID); err != nil {
			s.log.Warn("Failed to persist payment intent on booking",
				zap.Error(err),
				zap.String("booking_id", payable.ID),
				zap.String("intent_id", intent.ID),
			)
		}
	}

	s.log.Info("Payment intent created",
		zap.String("booking_id", payable.ID),
		zap.String("kind", string(payable.Kind)),
		zap.String("intent_id", intent.ID),
		zap.Int64("amount_minor", intent.Amount),
		zap.String("currency", currency),
		zap.Bool("sandbox_capped", capped),
		zap.Bool("synthetic", payable.Synthetic),
		zap.Bool("mock", intent.Mock),
	)

	return s.buildIntentResponse(payable, intent, in.amount, capped, false), nil
}

// chargeAmount converts to minor units and applies the sandbox ceiling.
func (s *intentService) chargeAmount(amount float64, currency string) (int64, bool) {
	minor := gateway.ToMinorUnits(amount, currency)
	if s.config.SandboxMaxAmount <= 0 {
		return minor, false
	}

	ceiling := gateway.ToMinorUnits(s.config.SandboxMaxAmount, currency)
	if minor > ceiling {
		return ceiling, true
	}
	return minor, false
}

// reuseIntent keeps a single active intent per booking. It returns a response when the stored
// intent can be handed out again and ErrAlreadyPaid when that intent already succeeded. A
// stored intent that no longer matches is canceled before the caller creates its replacement.
func (s *intentService) reuseIntent(ctx context.Context, payable *entity.Payable, amountMinor int64, currency string, caller *uuid.UUID) (*response.IntentResponse, error) {
	intentID := payable.IntentID()
	if intentID == "" {
		return nil, nil
	}

	// mock intents report succeeded on lookup, so they are never reused or looked up here
	if gateway.IsMockIntentID(intentID) {
		if _, err := s.gateway.CancelIntent(ctx, intentID); err != nil && !errors.Is(err, gateway.ErrIntentNotFound) {
			s.log.Warn("Failed to cancel superseded mock intent",
				zap.Error(err),
				zap.String("booking_id", payable.ID),
				zap.String("intent_id", intentID),
			)
		}
		return nil, nil
	}

	existing, err := s.gateway.GetIntent(ctx, intentID)
	switch {
	case errors.Is(err, gateway.ErrIntentNotFound):
		return nil, nil
	case errors.Is(err, gateway.ErrUnavailable):
		// a late charge on the stored intent is refunded as a duplicate when it confirms
		s.log.Warn("Stored payment intent unreachable, issuing a new one",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
			zap.String("intent_id", intentID),
		)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("check stored payment intent %s: %w", intentID, err)
	}

	if existing.Status == gateway.StatusSucceeded {
		return nil, s.settle(ctx, payable, existing, caller)
	}

	if !existing.Status.Active() {
		return nil, nil
	}
	if existing.Amount != amountMinor || !strings.EqualFold(existing.Currency, currency) {
		return nil, s.supersede(ctx, payable, intentID, caller)
	}

	original := utils.ParseFloat(existing.Metadata[metaOriginalAmount], gateway.ToMajorUnits(existing.Amount, existing.Currency))
	capped := existing.Metadata[metaSandboxCapped] == "true"

	if !payable.Synthetic && payable.PaymentStatus == entity.PaymentStatusFailed {
		if err := s.locator.Store(payable.Kind).AttachIntent(ctx, payable.ID, existing.ID); err != nil {
			s.log.Warn("Failed to reopen failed booking for retry",
				zap.Error(err),
				zap.String("booking_id", payable.ID),
			)
		}
	}

	s.log.Info("Reusing active payment intent",
		zap.String("booking_id", payable.ID),
		zap.String("intent_id", existing.ID),
	)

	return s.buildIntentResponse(payable, existing, original, capped, true), nil
}

// settle reconciles a stored intent found succeeded and reports the booking as paid.
func (s *intentService) settle(ctx context.Context, payable *entity.Payable, intent *gateway.Intent, caller *uuid.UUID) error {
	if _, err := s.reconciler.apply(ctx, intent, caller); err != nil {
		s.log.Warn("Failed to reconcile succeeded payment intent",
			zap.Error(err),
			zap.String("booking_id", payable.ID),
			zap.String("intent_id", intent.ID),
		)
	}
	return fmt.Errorf("%w: booking %s", ErrAlreadyPaid, payable.ID)
}

// supersede cancels the stored intent so the booking never has two payable intents. When the
// cancel fails the intent is looked up again: one that succeeded meanwhile is settled, one
// that is no longer active is left alone, anything else stops the new intent.
func (s *intentService) supersede(ctx context.Context, payable *entity.Payable, intentID string, caller *uuid.UUID) error {
	canceled, err := s.gateway.CancelIntent(ctx, intentID)
	if err == nil {
		s.log.Info("Superseded payment intent canceled",
			zap.String("booking_id", payable.ID),
			zap.String("intent_id", intentID),
			zap.String("status", string(canceled.Status)),
		)
		return nil
	}
	if errors.Is(err, gateway.ErrIntentNotFound) {
		return nil
	}

	current, lookupErr := s.gateway.GetIntent(ctx, intentID)
	if lookupErr == nil {
		if current.Status == gateway.StatusSucceeded {
			return s.settle(ctx, payable, current, caller)
		}
		if !current.Status.Active() {
			return nil
		}
	}

	s.log.Error("Failed to cancel superseded payment intent",
		zap.Error(err),
		zap.String("booking_id", payable.ID),
		zap.String("intent_id", intentID),
	)
	return fmt.Errorf("cancel superseded payment intent %s: %w", intentID, err)
}

func (s *intentService) buildIntentResponse(payable *entity.Payable, intent *gateway.Intent, original float64, capped, reused bool) *response.IntentResponse {
	return &response.IntentResponse{
		IntentID:       intent.ID,
		ClientSecret:   intent.ClientSecret,
		BookingID:      payable.ID,
		BookingKind:    payable.Kind,
		Amount:         gateway.ToMajorUnits(intent.Amount, intent.Currency),
		AmountMinor:    intent.Amount,
		OriginalAmount: original,
		Currency:       strings.ToUpper(intent.Currency),
		SandboxCapped:  capped,
		Mock:           intent.Mock,
		Synthetic:      payable.Synthetic,
		Reused:         reused,
	}
}
