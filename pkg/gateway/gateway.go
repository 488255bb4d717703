// Package gateway wraps the external payment gateway behind a small interface so the
// payment use cases can run against Stripe, the sandbox fallback, or a test fake.
package gateway

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnavailable means the gateway could not be used at all: missing or rejected
	// credentials, or the network call never reached it.
	ErrUnavailable      = errors.New("payment gateway unavailable")
	ErrIntentNotFound   = errors.New("payment intent not found")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
)

type IntentStatus string

const (
	StatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	StatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	StatusRequiresAction        IntentStatus = "requires_action"
	StatusProcessing            IntentStatus = "processing"
	StatusRequiresCapture       IntentStatus = "requires_capture"
	StatusSucceeded             IntentStatus = "succeeded"
	StatusCanceled              IntentStatus = "canceled"
)

// Active reports whether the intent can still move to succeeded.
func (s IntentStatus) Active() bool {
	switch s {
	case StatusRequiresPaymentMethod, StatusRequiresConfirmation, StatusRequiresAction,
		StatusProcessing, StatusRequiresCapture:
		return true
	}
	return false
}

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

// MockIntentPrefix and MockRefundPrefix mark objects generated locally by the sandbox.
const (
	MockIntentPrefix = "pi_mock_"
	MockRefundPrefix = "re_mock_"
)

func IsMockIntentID(id string) bool {
	return strings.HasPrefix(id, MockIntentPrefix)
}

// Intent mirrors the gateway payment intent. Amount is in minor units.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       IntentStatus      `json:"status"`
	Metadata     map[string]string `json:"metadata"`
	Mock         bool              `json:"mock"`
}

type CreateIntentParams struct {
	Amount         int64
	Currency       string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

type Refund struct {
	ID       string
	IntentID string
	Amount   int64
	Currency string
	Status   string
	Mock     bool
}

// RefundParams with Amount 0 refunds the whole charge.
type RefundParams struct {
	IntentID       string
	Amount         int64
	Reason         string
	IdempotencyKey string
	// Duplicate marks a charge that paid for an already settled booking.
	Duplicate bool
}

type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
	// CancelIntent stops an intent that has not succeeded from being paid.
	CancelIntent(ctx context.Context, intentID string) (*Intent, error)
	Refund(ctx context.Context, params RefundParams) (*Refund, error)
}

// Event is a verified webhook delivery. Intent is set for payment_intent.* events unless
// DecodeErr reports that the signed object could not be read.
type Event struct {
	ID        string
	Type      string
	Intent    *Intent
	DecodeErr error
}

type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (*Event, error)
}
