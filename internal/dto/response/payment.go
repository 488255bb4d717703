package response

import (
	"time"

	"travel-booking/internal/data/entity"
)

type IntentResponse struct {
	IntentID       string             `json:"payment_intent_id"`
	ClientSecret   string             `json:"client_secret"`
	BookingID      string             `json:"booking_id"`
	BookingKind    entity.PayableKind `json:"booking_kind"`
	Amount         float64            `json:"amount"`
	AmountMinor    int64              `json:"amount_minor_units"`
	OriginalAmount float64            `json:"original_amount"`
	Currency       string             `json:"currency"`
	SandboxCapped  bool               `json:"sandbox_capped"`
	Mock           bool               `json:"mock"`
	Synthetic      bool               `json:"synthetic"`
	Reused         bool               `json:"reused"`
}

type ConfirmationResponse struct {
	BookingID        string               `json:"booking_id"`
	BookingKind      entity.PayableKind   `json:"booking_kind"`
	IntentID         string               `json:"payment_intent_id"`
	PaymentStatus    entity.PaymentStatus `json:"payment_status"`
	BookingStatus    entity.BookingStatus `json:"booking_status"`
	AmountPaid       float64              `json:"amount_paid"`
	Currency         string               `json:"currency"`
	AlreadyConfirmed bool                 `json:"already_confirmed"`
	Synthetic        bool                 `json:"synthetic"`
	// set when the confirmed intent was a second charge for a settled booking
	DuplicateIntentID string `json:"duplicate_payment_intent_id,omitempty"`
	DuplicateRefundID string `json:"duplicate_refund_id,omitempty"`
}

type WebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
}

type RefundResponse struct {
	RefundID      string               `json:"refund_id"`
	BookingID     string               `json:"booking_id"`
	IntentID      string               `json:"payment_intent_id"`
	Amount        float64              `json:"amount"`
	Currency      string               `json:"currency"`
	Status        string               `json:"status"`
	PaymentStatus entity.PaymentStatus `json:"payment_status"`
	BookingStatus entity.BookingStatus `json:"booking_status"`
	Mock          bool                 `json:"mock"`
}

type PaymentStatusResponse struct {
	BookingID        string                 `json:"booking_id"`
	BookingKind      entity.PayableKind     `json:"booking_kind"`
	BookingReference string                 `json:"booking_reference,omitempty"`
	TotalAmount      float64                `json:"total_amount"`
	Currency         string                 `json:"currency"`
	PaymentStatus    entity.PaymentStatus   `json:"payment_status"`
	BookingStatus    entity.BookingStatus   `json:"booking_status"`
	IntentID         *string                `json:"payment_intent_id,omitempty"`
	AmountPaid       *float64               `json:"amount_paid,omitempty"`
	PaymentDate      *time.Time             `json:"payment_date,omitempty"`
	Refunds          []RefundRecordResponse `json:"refunds,omitempty"`
}

type RefundRecordResponse struct {
	RefundID  string    `json:"refund_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Helper converters
func ConfirmationFromPayable(p *entity.Payable, alreadyConfirmed bool) *ConfirmationResponse {
	res := &ConfirmationResponse{
		BookingID:        p.ID,
		BookingKind:      p.Kind,
		IntentID:         p.IntentID(),
		PaymentStatus:    p.PaymentStatus,
		BookingStatus:    p.BookingStatus,
		Currency:         p.Currency,
		AlreadyConfirmed: alreadyConfirmed,
		Synthetic:        p.Synthetic,
	}
	if p.AmountPaid != nil {
		res.AmountPaid = *p.AmountPaid
	}
	return res
}

func StatusFromPayable(p *entity.Payable, refunds []*entity.RefundRecord) *PaymentStatusResponse {
	res := &PaymentStatusResponse{
		BookingID:        p.ID,
		BookingKind:      p.Kind,
		BookingReference: p.BookingReference,
		TotalAmount:      p.TotalAmount,
		Currency:         p.Currency,
		PaymentStatus:    p.PaymentStatus,
		BookingStatus:    p.BookingStatus,
		IntentID:         p.PaymentIntentID,
		AmountPaid:       p.AmountPaid,
		PaymentDate:      p.PaymentDate,
	}
	for _, r := range refunds {
		res.Refunds = append(res.Refunds, RefundRecordResponse{
			RefundID:  r.RefundID,
			Amount:    r.Amount,
			Currency:  r.Currency,
			Reason:    r.Reason,
			CreatedAt: r.CreatedAt,
		})
	}
	return res
}
