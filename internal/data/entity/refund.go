package entity

import (
	"github.com/google/uuid"
)

// RefundRecord is the local audit row written after the gateway accepted a refund.
type RefundRecord struct {
	BaseSimple
	PayableID       string        `db:"payable_id"`
	PayableKind     PayableKind   `db:"payable_kind"`
	IntentID        string        `db:"payment_intent_id"`
	RefundID        string        `db:"refund_id"`
	Amount          float64       `db:"amount"`
	Currency        string        `db:"currency"`
	Reason          string        `db:"reason"`
	ResultingStatus PaymentStatus `db:"resulting_status"`
	RequestedBy     *uuid.UUID    `db:"requested_by"`
}
