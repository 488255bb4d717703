package usecase

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"travel-booking/internal/data/entity"
	"travel-booking/internal/data/ledger"
	"travel-booking/internal/data/repository"
	"travel-booking/pkg/gateway"
	"travel-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

// errStoreDown looks like a refused TCP dial to the connectivity classifier.
var errStoreDown = fmt.Errorf("find booking: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})

// MockPayableStore implements repository.PayableRepository in memory with the same
// conditional update rules as the SQL repository.
type MockPayableStore struct {
	mu                  sync.Mutex
	kind                entity.PayableKind
	rows                map[string]*entity.Payable
	Err                 error // returned by every call when set
	MarkPaidErr         error
	MarkPaidCalls       int
	ConfirmSiblingCalls int
	AttachCalls         int
}

func NewMockPayableStore(kind entity.PayableKind) *MockPayableStore {
	return &MockPayableStore{kind: kind, rows: make(map[string]*entity.Payable)}
}

func (m *MockPayableStore) Put(p *entity.Payable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *p
	copied.Kind = m.kind
	m.rows[p.ID] = &copied
}

func (m *MockPayableStore) Get(id string) *entity.Payable {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil
	}
	copied := *p
	return &copied
}

func (m *MockPayableStore) Kind() entity.PayableKind { return m.kind }

func (m *MockPayableStore) FindByID(ctx context.Context, id string) (*entity.Payable, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Get(id), nil
}

func (m *MockPayableStore) FindByIntentID(ctx context.Context, intentID string) (*entity.Payable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, p := range m.rows {
		if p.IntentID() == intentID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockPayableStore) FindByReference(ctx context.Context, reference string) ([]*entity.Payable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var found []*entity.Payable
	for _, p := range m.rows {
		if reference != "" && p.BookingReference == reference {
			copied := *p
			found = append(found, &copied)
		}
	}
	return found, nil
}

func (m *MockPayableStore) AttachIntent(ctx context.Context, id, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AttachCalls++
	if m.Err != nil {
		return m.Err
	}
	p, ok := m.rows[id]
	if !ok || (p.PaymentStatus != entity.PaymentStatusPending && p.PaymentStatus != entity.PaymentStatusFailed) {
		return fmt.Errorf("booking %s cannot take a new payment intent", id)
	}
	p.PaymentIntentID = &intentID
	p.PaymentStatus = entity.PaymentStatusPending
	return nil
}

func (m *MockPayableStore) MarkPaid(ctx context.Context, id, intentID string, amountPaid float64, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkPaidCalls++
	if m.Err != nil {
		return false, m.Err
	}
	if m.MarkPaidErr != nil {
		return false, m.MarkPaidErr
	}
	p, ok := m.rows[id]
	if !ok || (p.PaymentStatus != entity.PaymentStatusPending && p.PaymentStatus != entity.PaymentStatusFailed) {
		return false, nil
	}
	p.PaymentStatus = entity.PaymentStatusPaid
	p.BookingStatus = entity.BookingStatusConfirmed
	p.PaymentIntentID = &intentID
	p.AmountPaid = &amountPaid
	p.PaymentDate = &paidAt
	return true, nil
}

func (m *MockPayableStore) ConfirmSibling(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfirmSiblingCalls++
	if m.Err != nil {
		return false, m.Err
	}
	p, ok := m.rows[id]
	if !ok || (p.PaymentStatus != entity.PaymentStatusPending && p.PaymentStatus != entity.PaymentStatusFailed) {
		return false, nil
	}
	p.PaymentStatus = entity.PaymentStatusPaid
	p.BookingStatus = entity.BookingStatusConfirmed
	if p.PaymentDate == nil {
		p.PaymentDate = &paidAt
	}
	return true, nil
}

func (m *MockPayableStore) MarkFailed(ctx context.Context, id, intentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	p, ok := m.rows[id]
	if !ok || p.PaymentStatus != entity.PaymentStatusPending {
		return false, nil
	}
	if p.PaymentIntentID != nil && *p.PaymentIntentID != intentID {
		return false, nil
	}
	p.PaymentStatus = entity.PaymentStatusFailed
	return true, nil
}

func (m *MockPayableStore) MarkRefunded(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	p, ok := m.rows[id]
	if !ok || p.PaymentStatus != entity.PaymentStatusPaid {
		return false, nil
	}
	p.PaymentStatus = entity.PaymentStatusRefunded
	p.BookingStatus = entity.BookingStatusCancelled
	return true, nil
}

// MockGateway implements gateway.Gateway without network calls.
type MockGateway struct {
	mu          sync.Mutex
	intents     map[string]*gateway.Intent
	seq         int
	CreateErr   error
	GetErr      error
	CancelErr   error
	RefundErr   error
	CreateCalls int
	GetCalls    int
	CancelCalls int
	LastCreate  gateway.CreateIntentParams
	Refunds     []gateway.RefundParams
}

func NewMockGateway() *MockGateway {
	return &MockGateway{intents: make(map[string]*gateway.Intent)}
}

func (m *MockGateway) CreateIntent(ctx context.Context, p gateway.CreateIntentParams) (*gateway.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	m.LastCreate = p
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.seq++
	id := fmt.Sprintf("pi_test_%d", m.seq)
	intent := &gateway.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       p.Amount,
		Currency:     p.Currency,
		Status:       gateway.StatusRequiresPaymentMethod,
		Metadata:     p.Metadata,
	}
	m.intents[id] = intent
	copied := *intent
	return &copied, nil
}

func (m *MockGateway) GetIntent(ctx context.Context, intentID string) (*gateway.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, gateway.ErrIntentNotFound
	}
	copied := *intent
	return &copied, nil
}

// CancelIntent follows the gateway rule that a succeeded intent cannot be canceled.
func (m *MockGateway) CancelIntent(ctx context.Context, intentID string) (*gateway.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCalls++
	if m.CancelErr != nil {
		return nil, m.CancelErr
	}
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, gateway.ErrIntentNotFound
	}
	if intent.Status == gateway.StatusSucceeded {
		return nil, fmt.Errorf("payment intent %s has already succeeded", intentID)
	}
	intent.Status = gateway.StatusCanceled
	copied := *intent
	return &copied, nil
}

func (m *MockGateway) Refund(ctx context.Context, p gateway.RefundParams) (*gateway.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RefundErr != nil {
		return nil, m.RefundErr
	}
	intent, ok := m.intents[p.IntentID]
	if !ok {
		return nil, gateway.ErrIntentNotFound
	}
	m.Refunds = append(m.Refunds, p)
	amount := p.Amount
	if amount == 0 {
		amount = intent.Amount
	}
	return &gateway.Refund{
		ID:       fmt.Sprintf("re_test_%d", len(m.Refunds)),
		IntentID: p.IntentID,
		Amount:   amount,
		Currency: intent.Currency,
		Status:   "succeeded",
	}, nil
}

// Put stores an intent as the gateway would report it.
func (m *MockGateway) Put(intent *gateway.Intent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *intent
	m.intents[intent.ID] = &copied
}

func (m *MockGateway) SetStatus(intentID string, status gateway.IntentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[intentID].Status = status
}

func (m *MockGateway) Status(intentID string) gateway.IntentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intents[intentID].Status
}

// MockNotifier counts dispatched notifications.
type MockNotifier struct {
	mu             sync.Mutex
	Err            error
	ConfirmedCalls int
	RefundCalls    int
	LastPayable    *entity.Payable
}

func (m *MockNotifier) PaymentConfirmed(ctx context.Context, p *entity.Payable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfirmedCalls++
	copied := *p
	m.LastPayable = &copied
	return m.Err
}

func (m *MockNotifier) RefundIssued(ctx context.Context, p *entity.Payable, refund *entity.RefundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefundCalls++
	return m.Err
}

func (m *MockNotifier) Confirmed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConfirmedCalls
}

// MockRefundRepository keeps refund records in memory.
type MockRefundRepository struct {
	mu      sync.Mutex
	Records []*entity.RefundRecord
}

func (m *MockRefundRepository) Create(ctx context.Context, refund *entity.RefundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, refund)
	return nil
}

func (m *MockRefundRepository) FindByPayableID(ctx context.Context, payableID string) ([]*entity.RefundRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*entity.RefundRecord
	for _, r := range m.Records {
		if r.PayableID == payableID {
			found = append(found, r)
		}
	}
	return found, nil
}

// testEnv wires the payment services against in-memory stores and a temp-dir ledger.
type testEnv struct {
	tours    *MockPayableStore
	vehicles *MockPayableStore
	hotels   *MockPayableStore
	trips    *MockPayableStore
	gateway  *MockGateway
	notifier *MockNotifier
	refunds  *MockRefundRepository
	ledger   *ledger.Ledger
	verifier gateway.WebhookVerifier
	config   *utils.Config
	service  *Service
}

func newTestEnv(t *testing.T, verifier gateway.WebhookVerifier) *testEnv {
	t.Helper()

	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	env := &testEnv{
		tours:    NewMockPayableStore(entity.PayableKindTour),
		vehicles: NewMockPayableStore(entity.PayableKindVehicle),
		hotels:   NewMockPayableStore(entity.PayableKindHotel),
		trips:    NewMockPayableStore(entity.PayableKindCustomTrip),
		gateway:  NewMockGateway(),
		notifier: &MockNotifier{},
		refunds:  &MockRefundRepository{},
		ledger:   l,
		verifier: verifier,
		config: &utils.Config{
			Payment: utils.PaymentConfig{
				SandboxMaxAmount: 999999.99,
				DefaultCurrency:  "LKR",
			},
		},
	}
	env.build(t, env.gateway)

	return env
}

// build (re)creates the services on top of gw, keeping stores and ledger.
func (e *testEnv) build(t *testing.T, gw gateway.Gateway) {
	t.Helper()

	repo := &repository.Repository{
		Payables: []repository.PayableRepository{e.tours, e.vehicles, e.hotels, e.trips},
		Refund:   e.refunds,
	}

	e.service = NewService(repo, Dependencies{
		Gateway:  gw,
		Verifier: e.verifier,
		Ledger:   e.ledger,
		Notifier: e.notifier,
	}, e.config, zaptest.NewLogger(t))
}

func (e *testEnv) storeDown() {
	for _, s := range []*MockPayableStore{e.tours, e.vehicles, e.hotels, e.trips} {
		s.Err = errStoreDown
	}
}

func pendingBooking(owner uuid.UUID, amount float64, reference string) *entity.Payable {
	return &entity.Payable{
		ID:               uuid.NewString(),
		OwnerUserID:      &owner,
		TotalAmount:      amount,
		Currency:         "LKR",
		PaymentStatus:    entity.PaymentStatusPending,
		BookingStatus:    entity.BookingStatusPending,
		BookingReference: reference,
	}
}

// succeed simulates the client confirming the intent with the gateway.
func (e *testEnv) succeed(intentID string) {
	e.gateway.SetStatus(intentID, gateway.StatusSucceeded)
}
