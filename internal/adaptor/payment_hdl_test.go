package adaptor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"travel-booking/internal/data/entity"
	"travel-booking/internal/dto/request"
	"travel-booking/internal/dto/response"
	"travel-booking/internal/usecase"
	"travel-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

type fakeIntentService struct {
	err      error
	lastUser uuid.UUID
	calls    int
}

func (f *fakeIntentService) CreateIntent(_ context.Context, userID uuid.UUID, req *request.CreateIntentRequest) (*response.IntentResponse, error) {
	f.calls++
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &response.IntentResponse{IntentID: "pi_test", BookingID: req.BookingID, Amount: req.Amount}, nil
}

func (f *fakeIntentService) CreateGuestIntent(_ context.Context, req *request.GuestIntentRequest) (*response.IntentResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &response.IntentResponse{IntentID: "pi_mock_guest", BookingID: req.BookingID, Mock: true, Synthetic: true}, nil
}

type fakeConfirmService struct {
	err error
	res *response.ConfirmationResponse
}

func (f *fakeConfirmService) Confirm(_ context.Context, _ uuid.UUID, req *request.ConfirmPaymentRequest) (*response.ConfirmationResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		return f.res, nil
	}
	return &response.ConfirmationResponse{IntentID: req.IntentID, PaymentStatus: entity.PaymentStatusPaid}, nil
}

func (f *fakeConfirmService) ConfirmGuest(ctx context.Context, req *request.ConfirmPaymentRequest) (*response.ConfirmationResponse, error) {
	return f.Confirm(ctx, uuid.Nil, req)
}

type fakeWebhookService struct {
	err           error
	lastPayload   []byte
	lastSignature string
}

func (f *fakeWebhookService) HandleEvent(_ context.Context, payload []byte, signature string) (*response.WebhookResponse, error) {
	f.lastPayload = payload
	f.lastSignature = signature
	if f.err != nil {
		return nil, f.err
	}
	return &response.WebhookResponse{Received: true, EventID: "evt_1", EventType: "payment_intent.succeeded"}, nil
}

type fakeRefundService struct {
	err     error
	lastReq *request.RefundRequest
}

func (f *fakeRefundService) Refund(_ context.Context, _ uuid.UUID, bookingID string, req *request.RefundRequest) (*response.RefundResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &response.RefundResponse{RefundID: "re_1", BookingID: bookingID}, nil
}

type fakeStatusService struct {
	err           error
	lastBookingID string
}

func (f *fakeStatusService) GetStatus(_ context.Context, _ uuid.UUID, bookingID string) (*response.PaymentStatusResponse, error) {
	f.lastBookingID = bookingID
	if f.err != nil {
		return nil, f.err
	}
	return &response.PaymentStatusResponse{BookingID: bookingID, PaymentStatus: entity.PaymentStatusPending}, nil
}

type handlerFixture struct {
	intent  *fakeIntentService
	confirm *fakeConfirmService
	webhook *fakeWebhookService
	refund  *fakeRefundService
	status  *fakeStatusService
	router  chi.Router
	userID  uuid.UUID
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		intent:  &fakeIntentService{},
		confirm: &fakeConfirmService{},
		webhook: &fakeWebhookService{},
		refund:  &fakeRefundService{},
		status:  &fakeStatusService{},
		userID:  uuid.New(),
	}

	h := NewPaymentHandler(&usecase.Service{
		Intent:  f.intent,
		Confirm: f.confirm,
		Webhook: f.webhook,
		Refund:  f.refund,
		Status:  f.status,
	}, zaptest.NewLogger(t))

	authed := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(utils.SetUserContext(r.Context(), f.userID)))
		})
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(authed)
		r.Post("/intents", h.CreateIntent)
		r.Post("/confirm", h.Confirm)
		r.Get("/bookings/{id}", h.GetStatus)
		r.Post("/bookings/{id}/refund", h.Refund)
	})
	r.Post("/guest/intents", h.CreateGuestIntent)
	r.Post("/guest/confirm", h.ConfirmGuest)
	r.Post("/webhook", h.Webhook)
	r.Post("/anonymous/intents", h.CreateIntent)

	f.router = r
	return f
}

func (f *handlerFixture) do(method, path string, body []byte, header map[string]string) (*httptest.ResponseRecorder, utils.Response) {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var envelope utils.Response
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	return rec, envelope
}

func TestCreateIntent_Created(t *testing.T) {
	f := newHandlerFixture(t)

	rec, env := f.do(http.MethodPost, "/intents", []byte(`{"booking_id":"b-1","amount":5000,"currency":"LKR"}`), nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	if !env.Status {
		t.Error("envelope status should be true")
	}
	if f.intent.lastUser != f.userID {
		t.Errorf("service got user %s, want %s", f.intent.lastUser, f.userID)
	}
}

func TestCreateIntent_RequiresAuthenticatedCaller(t *testing.T) {
	f := newHandlerFixture(t)

	rec, _ := f.do(http.MethodPost, "/anonymous/intents", []byte(`{"booking_id":"b-1","amount":10}`), nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if f.intent.calls != 0 {
		t.Error("service must not be called without a caller")
	}
}

func TestCreateIntent_ValidationErrors(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"booking_id":`},
		{"missing booking", `{"amount":10}`},
		{"non-positive amount", `{"booking_id":"b-1","amount":0}`},
		{"bad currency", `{"booking_id":"b-1","amount":10,"currency":"LK1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := f.do(http.MethodPost, "/intents", []byte(tt.body), nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if env.Status {
				t.Error("envelope status should be false")
			}
		})
	}

	if f.intent.calls != 0 {
		t.Errorf("service calls = %d, want 0", f.intent.calls)
	}
}

func TestCreateGuestIntent_RequiresEmail(t *testing.T) {
	f := newHandlerFixture(t)

	rec, env := f.do(http.MethodPost, "/guest/intents", []byte(`{"booking_id":"guest_1","amount":10}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Errors == nil {
		t.Error("expected field errors in envelope")
	}

	rec, env = f.do(http.MethodPost, "/guest/intents", []byte(`{"booking_id":"guest_1","amount":10,"email":"guest@example.com"}`), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if env.Message == "Payment intent created" {
		t.Error("mock intents should be announced in the message")
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: amount", usecase.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("b-1: %w", usecase.ErrNotFound), http.StatusNotFound},
		{usecase.ErrForbidden, http.StatusForbidden},
		{usecase.ErrAlreadyPaid, http.StatusConflict},
		{usecase.ErrPaymentNotSucceeded, http.StatusBadRequest},
		{usecase.ErrNoPaymentFound, http.StatusBadRequest},
		{usecase.ErrInvalidState, http.StatusBadRequest},
		{fmt.Errorf("create intent: %w", usecase.ErrGatewayUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			f := newHandlerFixture(t)
			f.confirm.err = tt.err

			rec, _ := f.do(http.MethodPost, "/confirm", []byte(`{"payment_intent_id":"pi_1"}`), nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestConfirmGuest_MissingIntent(t *testing.T) {
	f := newHandlerFixture(t)

	rec, _ := f.do(http.MethodPost, "/guest/confirm", []byte(`{}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConfirmGuest_DuplicateRefundAnnounced(t *testing.T) {
	f := newHandlerFixture(t)
	f.confirm.res = &response.ConfirmationResponse{
		IntentID:          "pi_1",
		PaymentStatus:     entity.PaymentStatusPaid,
		AlreadyConfirmed:  true,
		DuplicateIntentID: "pi_2",
		DuplicateRefundID: "re_1",
	}

	rec, env := f.do(http.MethodPost, "/guest/confirm", []byte(`{"payment_intent_id":"pi_2"}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.Message == "Payment confirmed" {
		t.Error("duplicate refund should be announced in the message")
	}
}

func TestWebhook_PassesRawBodyAndSignature(t *testing.T) {
	f := newHandlerFixture(t)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	rec, _ := f.do(http.MethodPost, "/webhook", payload, map[string]string{"Stripe-Signature": "t=1,v1=abc"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Equal(f.webhook.lastPayload, payload) {
		t.Errorf("payload altered: %s", f.webhook.lastPayload)
	}
	if f.webhook.lastSignature != "t=1,v1=abc" {
		t.Errorf("signature = %q", f.webhook.lastSignature)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	f := newHandlerFixture(t)
	f.webhook.err = fmt.Errorf("verify: %w", usecase.ErrSignatureVerification)

	rec, env := f.do(http.MethodPost, "/webhook", []byte(`{}`), map[string]string{"Stripe-Signature": "bogus"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Message != "Webhook signature verification failed" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestGetStatus_UsesPathParam(t *testing.T) {
	f := newHandlerFixture(t)

	rec, _ := f.do(http.MethodGet, "/bookings/b-42", nil, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if f.status.lastBookingID != "b-42" {
		t.Errorf("booking id = %q, want b-42", f.status.lastBookingID)
	}
}

func TestRefund_EmptyBodyMeansFullRefund(t *testing.T) {
	f := newHandlerFixture(t)

	rec, _ := f.do(http.MethodPost, "/bookings/b-1/refund", nil, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if f.refund.lastReq == nil || f.refund.lastReq.Amount != nil {
		t.Errorf("expected request without amount, got %+v", f.refund.lastReq)
	}
}

func TestRefund_RejectsNegativeAmount(t *testing.T) {
	f := newHandlerFixture(t)

	rec, _ := f.do(http.MethodPost, "/bookings/b-1/refund", []byte(`{"amount":-5}`), nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if f.refund.lastReq != nil {
		t.Error("service must not be called")
	}
}
