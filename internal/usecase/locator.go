package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"travel-booking/internal/data/entity"
	"travel-booking/internal/data/repository"
	"travel-booking/pkg/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyntheticHint carries what the caller knows about a booking so a stand-in can be
// fabricated when no store can answer. Read paths pass nil and never fabricate.
type SyntheticHint struct {
	Amount        float64
	Currency      string
	OwnerUserID   *uuid.UUID
	CustomerEmail string
}

// PayableLocator resolves booking ids against the registered booking stores in order.
type PayableLocator struct {
	stores []repository.PayableRepository
	log    *zap.Logger
}

func NewPayableLocator(stores []repository.PayableRepository, log *zap.Logger) *PayableLocator {
	return &PayableLocator{
		stores: stores,
		log:    log.With(zap.String("service", "payable_locator")),
	}
}

// Store returns the repository registered for kind, or nil.
func (l *PayableLocator) Store(kind entity.PayableKind) repository.PayableRepository {
	for _, store := range l.stores {
		if store.Kind() == kind {
			return store
		}
	}
	return nil
}

// Locate returns the first stored booking with the given id. Guest placeholder ids, and ids
// probed while every store is unreachable, resolve to a synthetic booking built from hint.
func (l *PayableLocator) Locate(ctx context.Context, id string, hint *SyntheticHint) (*entity.Payable, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: booking id is required", ErrValidation)
	}

	if entity.IsGuestBookingID(id) {
		if hint == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return l.synthesize(id, hint), nil
	}

	var (
		unreachable int
		lastErr     error
	)
	for _, store := range l.stores {
		p, err := store.FindByID(ctx, id)
		if err != nil {
			if !database.IsConnectivityError(err) {
				return nil, fmt.Errorf("locate booking %s: %w", id, err)
			}
			unreachable++
			lastErr = err
			l.log.Warn("Booking store unreachable",
				zap.Error(err),
				zap.String("kind", string(store.Kind())),
				zap.String("booking_id", id),
			)
			continue
		}
		if p != nil {
			return p, nil
		}
	}

	if unreachable == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if unreachable == len(l.stores) && hint != nil {
		l.log.Warn("All booking stores unreachable, using synthetic booking",
			zap.String("booking_id", id),
		)
		return l.synthesize(id, hint), nil
	}

	return nil, fmt.Errorf("locate booking %s: %w", id, lastErr)
}

// FindByIntentID looks a booking up by its stored payment intent. It returns (nil, nil) when
// no reachable store knows the intent, and an error only when no store could be searched.
func (l *PayableLocator) FindByIntentID(ctx context.Context, intentID string) (*entity.Payable, error) {
	var errs []error
	for _, store := range l.stores {
		p, err := store.FindByIntentID(ctx, intentID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if p != nil {
			return p, nil
		}
	}

	if len(errs) > 0 && len(errs) == len(l.stores) {
		return nil, fmt.Errorf("find booking by intent %s: %w", intentID, errors.Join(errs...))
	}
	return nil, nil
}

// FindSiblings returns the other records sharing p's booking reference. Store failures are
// logged and skipped.
func (l *PayableLocator) FindSiblings(ctx context.Context, p *entity.Payable) []*entity.Payable {
	if p.BookingReference == "" {
		return nil
	}

	var siblings []*entity.Payable
	for _, store := range l.stores {
		found, err := store.FindByReference(ctx, p.BookingReference)
		if err != nil {
			l.log.Warn("Failed to look up sibling bookings",
				zap.Error(err),
				zap.String("kind", string(store.Kind())),
				zap.String("booking_reference", p.BookingReference),
			)
			continue
		}
		for _, s := range found {
			if s.Kind == p.Kind && s.ID == p.ID {
				continue
			}
			siblings = append(siblings, s)
		}
	}
	return siblings
}

func (l *PayableLocator) synthesize(id string, hint *SyntheticHint) *entity.Payable {
	p := &entity.Payable{
		ID:            id,
		Kind:          entity.PayableKindTour,
		OwnerUserID:   hint.OwnerUserID,
		TotalAmount:   hint.Amount,
		Currency:      hint.Currency,
		PaymentStatus: entity.PaymentStatusPending,
		BookingStatus: entity.BookingStatusPending,
		Synthetic:     true,
	}
	if hint.CustomerEmail != "" {
		email := hint.CustomerEmail
		p.CustomerEmail = &email
	}
	return p
}
