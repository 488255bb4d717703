package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"travel-booking/internal/data/entity"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

type MockNotificationRepository struct {
	mu    sync.Mutex
	rows  []*entity.Notification
	err   error
	calls int
}

func (m *MockNotificationRepository) Create(_ context.Context, n *entity.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, n)
	return nil
}

func TestOutboxNotifier_PaymentConfirmed(t *testing.T) {
	repo := &MockNotificationRepository{}
	notifier := NewOutboxNotifier(repo, zaptest.NewLogger(t))

	owner := uuid.New()
	booking := pendingBooking(owner, 5000, "TRV-1")
	intentID := "pi_123"
	paid := 5000.0
	paidAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	booking.PaymentIntentID = &intentID
	booking.AmountPaid = &paid
	booking.PaymentDate = &paidAt

	if err := notifier.PaymentConfirmed(context.Background(), booking); err != nil {
		t.Fatalf("PaymentConfirmed: %v", err)
	}

	if len(repo.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(repo.rows))
	}
	row := repo.rows[0]
	if row.Type != entity.NotificationPaymentConfirmed {
		t.Errorf("type = %s", row.Type)
	}
	if row.UserID == nil || *row.UserID != owner {
		t.Errorf("user id = %v, want %s", row.UserID, owner)
	}
	if row.PayableID != booking.ID {
		t.Errorf("payable id = %s, want %s", row.PayableID, booking.ID)
	}

	var payload map[string]any
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["payment_intent_id"] != intentID || payload["amount_paid"] != 5000.0 || payload["booking_reference"] != "TRV-1" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestOutboxNotifier_RefundIssuedPropagatesStoreError(t *testing.T) {
	repo := &MockNotificationRepository{err: errors.New("insert failed")}
	notifier := NewOutboxNotifier(repo, zaptest.NewLogger(t))

	booking := pendingBooking(uuid.New(), 100, "")
	err := notifier.RefundIssued(context.Background(), booking, &entity.RefundRecord{RefundID: "re_1", Amount: 100, Currency: "LKR"})
	if err == nil {
		t.Fatal("expected store error")
	}
	if repo.calls != 1 {
		t.Errorf("calls = %d, want 1", repo.calls)
	}
}
