package usecase

import (
	"context"
	"errors"
	"testing"

	"travel-booking/internal/data/entity"
	"travel-booking/internal/data/repository"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

func newLocatorFixture(t *testing.T) (*PayableLocator, []*MockPayableStore) {
	stores := []*MockPayableStore{
		NewMockPayableStore(entity.PayableKindTour),
		NewMockPayableStore(entity.PayableKindVehicle),
		NewMockPayableStore(entity.PayableKindHotel),
		NewMockPayableStore(entity.PayableKindCustomTrip),
	}
	registry := make([]repository.PayableRepository, len(stores))
	for i, s := range stores {
		registry[i] = s
	}
	return NewPayableLocator(registry, zaptest.NewLogger(t)), stores
}

func TestLocateProbesInOrder(t *testing.T) {
	locator, stores := newLocatorFixture(t)
	owner := uuid.New()
	booking := pendingBooking(owner, 10, "")
	stores[2].Put(booking)
	stores[1].Put(booking)

	p, err := locator.Locate(context.Background(), booking.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kind != entity.PayableKindVehicle || p.Synthetic {
		t.Fatalf("expected vehicle match before hotel, got %+v", p)
	}
}

func TestLocateFailures(t *testing.T) {
	locator, stores := newLocatorFixture(t)

	if _, err := locator.Locate(context.Background(), " ", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := locator.Locate(context.Background(), uuid.NewString(), nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := locator.Locate(context.Background(), "guest_abc", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for guest id without hint, got %v", err)
	}

	queryErr := errors.New("column does not exist")
	stores[0].Err = queryErr
	if _, err := locator.Locate(context.Background(), uuid.NewString(), &SyntheticHint{Amount: 1}); !errors.Is(err, queryErr) {
		t.Fatalf("expected query error to surface, got %v", err)
	}
}

func TestLocateSyntheticFallback(t *testing.T) {
	locator, stores := newLocatorFixture(t)
	owner := uuid.New()
	hint := &SyntheticHint{Amount: 25, Currency: "USD", OwnerUserID: &owner, CustomerEmail: "a@b.lk"}

	p, err := locator.Locate(context.Background(), "guest_42", hint)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Synthetic || p.TotalAmount != 25 || p.Currency != "USD" || !p.OwnedBy(owner) || *p.CustomerEmail != "a@b.lk" {
		t.Fatalf("unexpected synthetic booking: %+v", p)
	}

	// partial outage is not enough to fabricate
	stores[0].Err = errStoreDown
	id := uuid.NewString()
	if _, err := locator.Locate(context.Background(), id, hint); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected connectivity error on partial outage, got %v", err)
	}

	for _, s := range stores {
		s.Err = errStoreDown
	}
	p, err = locator.Locate(context.Background(), id, hint)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Synthetic || p.ID != id {
		t.Fatalf("expected synthetic booking, got %+v", p)
	}

	// read paths never fabricate
	if _, err := locator.Locate(context.Background(), id, nil); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected store error without hint, got %v", err)
	}
}

func TestFindSiblingsSkipsSelf(t *testing.T) {
	locator, stores := newLocatorFixture(t)
	owner := uuid.New()
	tour := pendingBooking(owner, 10, "REF-1")
	stores[0].Put(tour)
	trip := pendingBooking(owner, 10, "REF-1")
	stores[3].Put(trip)
	stores[2].Err = errStoreDown

	self := stores[0].Get(tour.ID)
	siblings := locator.FindSiblings(context.Background(), self)
	if len(siblings) != 1 || siblings[0].ID != trip.ID || siblings[0].Kind != entity.PayableKindCustomTrip {
		t.Fatalf("unexpected siblings: %+v", siblings)
	}

	self.BookingReference = ""
	if got := locator.FindSiblings(context.Background(), self); got != nil {
		t.Fatalf("expected no siblings without reference, got %+v", got)
	}
}
