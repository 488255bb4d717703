package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

type StripeConfig struct {
	SecretKey         string
	MaxNetworkRetries int64
	Timeout           time.Duration
}

// Stripe talks to the Stripe API through a per-instance client instead of the
// package-level stripe.Key.
type Stripe struct {
	api *client.API
	log *zap.Logger
}

func NewStripe(cfg StripeConfig, log *zap.Logger) *Stripe {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &Stripe{log: log.With(zap.String("gateway", "stripe"))}
	if cfg.SecretKey == "" {
		s.log.Warn("Stripe secret key not configured, gateway calls will fail as unavailable")
		return s
	}

	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     s.log.Sugar(),
	})
	s.api = client.New(cfg.SecretKey, backends)

	return s
}

func (s *Stripe) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	if s.api == nil {
		return nil, fmt.Errorf("%w: stripe secret key not configured", ErrUnavailable)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(p.ReceiptEmail)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, s.classify("create payment intent", err)
	}

	return fromStripeIntent(pi), nil
}

func (s *Stripe) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	if s.api == nil {
		return nil, fmt.Errorf("%w: stripe secret key not configured", ErrUnavailable)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, s.classify("get payment intent "+intentID, err)
	}

	return fromStripeIntent(pi), nil
}

func (s *Stripe) CancelIntent(ctx context.Context, intentID string) (*Intent, error) {
	if s.api == nil {
		return nil, fmt.Errorf("%w: stripe secret key not configured", ErrUnavailable)
	}

	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonDuplicate)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("cancel:" + intentID)

	pi, err := s.api.PaymentIntents.Cancel(intentID, params)
	if err != nil {
		return nil, s.classify("cancel payment intent "+intentID, err)
	}

	return fromStripeIntent(pi), nil
}

func (s *Stripe) Refund(ctx context.Context, p RefundParams) (*Refund, error) {
	if s.api == nil {
		return nil, fmt.Errorf("%w: stripe secret key not configured", ErrUnavailable)
	}

	reason := stripe.RefundReasonRequestedByCustomer
	if p.Duplicate {
		reason = stripe.RefundReasonDuplicate
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(p.IntentID),
		Reason:        stripe.String(string(reason)),
	}
	params.Context = ctx
	if p.Amount > 0 {
		params.Amount = stripe.Int64(p.Amount)
	}
	if p.Reason != "" {
		params.AddMetadata("reason", p.Reason)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	r, err := s.api.Refunds.New(params)
	if err != nil {
		return nil, s.classify("refund payment intent "+p.IntentID, err)
	}

	return &Refund{
		ID:       r.ID,
		IntentID: p.IntentID,
		Amount:   r.Amount,
		Currency: strings.ToUpper(string(r.Currency)),
		Status:   string(r.Status),
	}, nil
}

// classify maps Stripe failures onto the gateway sentinel errors.
func (s *Stripe) classify(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusUnauthorized,
			stripeErr.HTTPStatusCode == http.StatusForbidden:
			s.log.Error("Stripe rejected credentials", zap.String("operation", op), zap.String("message", stripeErr.Msg))
			return fmt.Errorf("%s: %w: %s", op, ErrUnavailable, stripeErr.Msg)
		case stripeErr.HTTPStatusCode == http.StatusNotFound,
			stripeErr.Code == stripe.ErrorCodeResourceMissing:
			return fmt.Errorf("%s: %w", op, ErrIntentNotFound)
		}
		return fmt.Errorf("%s: stripe %s: %w", op, stripeErr.Type, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func fromStripeIntent(pi *stripe.PaymentIntent) *Intent {
	metadata := make(map[string]string, len(pi.Metadata))
	for k, v := range pi.Metadata {
		metadata[k] = v
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Status:       IntentStatus(pi.Status),
		Metadata:     metadata,
	}
}

// StripeWebhook verifies the Stripe-Signature header of webhook deliveries.
type StripeWebhook struct {
	secret    string
	tolerance time.Duration
}

func NewStripeWebhook(secret string, tolerance time.Duration) *StripeWebhook {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeWebhook{secret: secret, tolerance: tolerance}
}

func (v *StripeWebhook) Verify(payload []byte, signatureHeader string) (*Event, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ev := &Event{ID: event.ID, Type: string(event.Type)}
	if strings.HasPrefix(ev.Type, "payment_intent.") && event.Data != nil && len(event.Data.Raw) > 0 {
		// a signed event is authentic even when its object cannot be read; redelivery would
		// fail the same way, so the caller acknowledges it without an intent
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			ev.DecodeErr = fmt.Errorf("decode payment intent in event %s: %w", event.ID, err)
			return ev, nil
		}
		ev.Intent = fromStripeIntent(&pi)
	}

	return ev, nil
}
