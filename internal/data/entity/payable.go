package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type PayableKind string

const (
	PayableKindTour       PayableKind = "tour"
	PayableKindHotel      PayableKind = "hotel"
	PayableKindVehicle    PayableKind = "vehicle"
	PayableKindCustomTrip PayableKind = "custom-trip"
)

func (k PayableKind) Valid() bool {
	switch k {
	case PayableKindTour, PayableKindHotel, PayableKindVehicle, PayableKindCustomTrip:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// GuestBookingPrefix marks placeholder booking ids issued to guest checkouts.
// They are never stored, so lookups short-circuit to a synthetic Payable.
const GuestBookingPrefix = "guest_"

func IsGuestBookingID(id string) bool {
	return strings.HasPrefix(id, GuestBookingPrefix)
}

// Payable is the store-agnostic view of a chargeable booking.
//
// A Synthetic payable was fabricated locally (guest placeholder id, unreachable store, or
// rebuilt from intent metadata); it has no backing row and every write against it is skipped.
type Payable struct {
	ID               string        `db:"id"`
	Kind             PayableKind   `db:"-"`
	OwnerUserID      *uuid.UUID    `db:"user_id"`
	TotalAmount      float64       `db:"total_amount"`
	Currency         string        `db:"currency"`
	PaymentStatus    PaymentStatus `db:"payment_status"`
	BookingStatus    BookingStatus `db:"booking_status"`
	PaymentIntentID  *string       `db:"payment_intent_id"`
	AmountPaid       *float64      `db:"amount_paid"`
	PaymentDate      *time.Time    `db:"payment_date"`
	BookingReference string        `db:"booking_reference"`
	CustomerEmail    *string       `db:"customer_email"`
	Synthetic        bool          `db:"-"`
	Timestamps
}

func (p *Payable) IsPaid() bool {
	return p.PaymentStatus == PaymentStatusPaid
}

// OwnedBy reports whether userID owns the payable. Guest payables have no owner.
func (p *Payable) OwnedBy(userID uuid.UUID) bool {
	return p.OwnerUserID != nil && *p.OwnerUserID == userID
}

func (p *Payable) IntentID() string {
	if p.PaymentIntentID == nil {
		return ""
	}
	return *p.PaymentIntentID
}
