package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MockIntentStore keeps locally generated intents so they can be confirmed later.
type MockIntentStore interface {
	SaveMockIntent(intent *Intent) error
	FindMockIntent(intentID string) (*Intent, error)
}

// Sandbox falls back to locally generated mock intents when the wrapped gateway is
// unavailable. It must never be wired in production.
//
// A mock intent is returned as requires_confirmation and reported as succeeded on every
// later lookup until it is canceled, standing in for the client confirming the charge.
type Sandbox struct {
	next  Gateway
	store MockIntentStore
	log   *zap.Logger
}

func NewSandbox(next Gateway, store MockIntentStore, log *zap.Logger) *Sandbox {
	return &Sandbox{
		next:  next,
		store: store,
		log:   log.With(zap.String("gateway", "sandbox")),
	}
}

func (s *Sandbox) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	intent, err := s.next.CreateIntent(ctx, p)
	if err == nil || !errors.Is(err, ErrUnavailable) {
		return intent, err
	}

	id := MockIntentPrefix + compactUUID()
	mock := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + compactUUID(),
		Amount:       p.Amount,
		Currency:     strings.ToUpper(p.Currency),
		Status:       StatusRequiresConfirmation,
		Metadata:     p.Metadata,
		Mock:         true,
	}

	if err := s.store.SaveMockIntent(mock); err != nil {
		return nil, fmt.Errorf("save mock intent: %w", err)
	}

	s.log.Warn("Gateway unavailable, issued mock payment intent",
		zap.Error(err),
		zap.String("intent_id", mock.ID),
		zap.Int64("amount", mock.Amount),
		zap.String("currency", mock.Currency),
	)

	return mock, nil
}

func (s *Sandbox) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	if !IsMockIntentID(intentID) {
		return s.next.GetIntent(ctx, intentID)
	}

	mock, err := s.store.FindMockIntent(intentID)
	if err != nil {
		return nil, fmt.Errorf("find mock intent %s: %w", intentID, err)
	}
	if mock == nil {
		return nil, fmt.Errorf("mock intent %s: %w", intentID, ErrIntentNotFound)
	}

	confirmed := *mock
	confirmed.Mock = true
	if confirmed.Status != StatusCanceled {
		confirmed.Status = StatusSucceeded
	}
	return &confirmed, nil
}

// CancelIntent marks a mock intent canceled so later lookups stop reporting it as paid.
func (s *Sandbox) CancelIntent(ctx context.Context, intentID string) (*Intent, error) {
	if !IsMockIntentID(intentID) {
		return s.next.CancelIntent(ctx, intentID)
	}

	mock, err := s.store.FindMockIntent(intentID)
	if err != nil {
		return nil, fmt.Errorf("find mock intent %s: %w", intentID, err)
	}
	if mock == nil {
		return nil, fmt.Errorf("mock intent %s: %w", intentID, ErrIntentNotFound)
	}

	mock.Status = StatusCanceled
	if err := s.store.SaveMockIntent(mock); err != nil {
		return nil, fmt.Errorf("cancel mock intent %s: %w", intentID, err)
	}
	mock.Mock = true

	s.log.Info("Mock payment intent canceled", zap.String("intent_id", intentID))
	return mock, nil
}

func (s *Sandbox) Refund(ctx context.Context, p RefundParams) (*Refund, error) {
	if !IsMockIntentID(p.IntentID) {
		return s.next.Refund(ctx, p)
	}

	mock, err := s.GetIntent(ctx, p.IntentID)
	if err != nil {
		return nil, err
	}
	if mock.Status != StatusSucceeded {
		return nil, fmt.Errorf("refund mock intent %s: intent is %s", mock.ID, mock.Status)
	}

	amount := p.Amount
	if amount <= 0 || amount > mock.Amount {
		amount = mock.Amount
	}

	return &Refund{
		ID:       MockRefundPrefix + compactUUID(),
		IntentID: mock.ID,
		Amount:   amount,
		Currency: mock.Currency,
		Status:   "succeeded",
		Mock:     true,
	}, nil
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
