package repository

import (
	"context"
	"fmt"

	"travel-booking/internal/data/entity"
	"travel-booking/pkg/database"

	"go.uber.org/zap"
)

type RefundRepository interface {
	Create(ctx context.Context, refund *entity.RefundRecord) error
	FindByPayableID(ctx context.Context, payableID string) ([]*entity.RefundRecord, error)
}

type refundRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewRefundRepository(db database.PgxIface, log *zap.Logger) RefundRepository {
	return &refundRepository{
		db:  db,
		log: log.With(zap.String("repository", "refund")),
	}
}

func (r *refundRepository) Create(ctx context.Context, refund *entity.RefundRecord) error {
	query := `
		INSERT INTO payment_refunds (id, payable_id, payable_kind, payment_intent_id, refund_id,
		                             amount, currency, reason, resulting_status, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (refund_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		refund.ID,
		refund.PayableID,
		refund.PayableKind,
		refund.IntentID,
		refund.RefundID,
		refund.Amount,
		refund.Currency,
		refund.Reason,
		refund.ResultingStatus,
		refund.RequestedBy,
		refund.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create refund record",
			zap.Error(err),
			zap.String("payable_id", refund.PayableID),
			zap.String("refund_id", refund.RefundID),
		)
		return fmt.Errorf("create refund record for %s: %w", refund.PayableID, err)
	}

	return nil
}

func (r *refundRepository) FindByPayableID(ctx context.Context, payableID string) ([]*entity.RefundRecord, error) {
	query := `
		SELECT id, payable_id, payable_kind, payment_intent_id, refund_id,
		       amount, currency, COALESCE(reason, ''), resulting_status, requested_by, created_at
		FROM payment_refunds
		WHERE payable_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, payableID)
	if err != nil {
		r.log.Error("Failed to find refunds",
			zap.Error(err),
			zap.String("payable_id", payableID),
		)
		return nil, fmt.Errorf("find refunds for %s: %w", payableID, err)
	}
	defer rows.Close()

	var refunds []*entity.RefundRecord
	for rows.Next() {
		var refund entity.RefundRecord
		err := rows.Scan(
			&refund.ID,
			&refund.PayableID,
			&refund.PayableKind,
			&refund.IntentID,
			&refund.RefundID,
			&refund.Amount,
			&refund.Currency,
			&refund.Reason,
			&refund.ResultingStatus,
			&refund.RequestedBy,
			&refund.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		refunds = append(refunds, &refund)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refunds: %w", err)
	}

	return refunds, nil
}
