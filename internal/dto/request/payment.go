package request

type CreateIntentRequest struct {
	BookingID string  `json:"booking_id" validate:"required,max=100"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Currency  string  `json:"currency" validate:"omitempty,len=3,alpha"`
}

// GuestIntentRequest is used by guest checkout; the email receives the receipt.
type GuestIntentRequest struct {
	BookingID string  `json:"booking_id" validate:"required,max=100"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Currency  string  `json:"currency" validate:"omitempty,len=3,alpha"`
	Email     string  `json:"email" validate:"required,email"`
	Name      string  `json:"name" validate:"max=120"`
}

type ConfirmPaymentRequest struct {
	IntentID string `json:"payment_intent_id" validate:"required,max=255"`
}

// RefundRequest refunds the full amount paid when Amount is omitted.
type RefundRequest struct {
	Amount *float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Reason string   `json:"reason" validate:"max=500"`
}
