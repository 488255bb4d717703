package usecase

import (
	"strconv"

	"travel-booking/internal/data/entity"
	"travel-booking/pkg/gateway"
	"travel-booking/pkg/utils"

	"github.com/google/uuid"
)

// Intent metadata keys. They let a confirmation rebuild the booking when the store lost it.
const (
	metaPayableID        = "payableId"
	metaPayableKind      = "payableKind"
	metaOwnerUserID      = "ownerUserId"
	metaOriginalAmount   = "originalAmount"
	metaSandboxCapped    = "sandboxCapped"
	metaBookingReference = "bookingReference"
	metaCustomerEmail    = "customerEmail"
)

func intentMetadata(p *entity.Payable, originalAmount float64, capped bool) map[string]string {
	meta := map[string]string{
		metaPayableID:      p.ID,
		metaPayableKind:    string(p.Kind),
		metaOriginalAmount: strconv.FormatFloat(originalAmount, 'f', -1, 64),
		metaSandboxCapped:  strconv.FormatBool(capped),
	}
	if p.OwnerUserID != nil {
		meta[metaOwnerUserID] = p.OwnerUserID.String()
	}
	if p.BookingReference != "" {
		meta[metaBookingReference] = p.BookingReference
	}
	if p.CustomerEmail != nil && *p.CustomerEmail != "" {
		meta[metaCustomerEmail] = *p.CustomerEmail
	}
	return meta
}

func metadataOwner(intent *gateway.Intent) (uuid.UUID, bool) {
	raw, ok := intent.Metadata[metaOwnerUserID]
	if !ok || raw == "" {
		return uuid.Nil, false
	}
	owner, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return owner, true
}

func metadataKind(intent *gateway.Intent) (entity.PayableKind, bool) {
	kind := entity.PayableKind(intent.Metadata[metaPayableKind])
	return kind, kind.Valid()
}

// syntheticFromIntent rebuilds a stand-in booking from intent metadata. It returns nil when
// the intent does not name a booking.
func syntheticFromIntent(intent *gateway.Intent) *entity.Payable {
	id := intent.Metadata[metaPayableID]
	if id == "" {
		return nil
	}

	kind, ok := metadataKind(intent)
	if !ok {
		kind = entity.PayableKindTour
	}

	charged := gateway.ToMajorUnits(intent.Amount, intent.Currency)
	p := &entity.Payable{
		ID:               id,
		Kind:             kind,
		TotalAmount:      utils.ParseFloat(intent.Metadata[metaOriginalAmount], charged),
		Currency:         intent.Currency,
		PaymentStatus:    entity.PaymentStatusPending,
		BookingStatus:    entity.BookingStatusPending,
		PaymentIntentID:  &intent.ID,
		BookingReference: intent.Metadata[metaBookingReference],
		Synthetic:        true,
	}
	if owner, ok := metadataOwner(intent); ok {
		p.OwnerUserID = &owner
	}
	if email := intent.Metadata[metaCustomerEmail]; email != "" {
		p.CustomerEmail = &email
	}
	return p
}
