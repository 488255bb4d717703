package repository

import (
	"context"
	"fmt"
	"time"

	"travel-booking/internal/data/entity"
	"travel-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PayableRepository reads and advances the payment state of one kind of booking.
// Find methods return (nil, nil) when nothing matches. Mark methods are compare-and-set
// updates and report whether this call changed the row.
type PayableRepository interface {
	Kind() entity.PayableKind
	FindByID(ctx context.Context, id string) (*entity.Payable, error)
	FindByIntentID(ctx context.Context, intentID string) (*entity.Payable, error)
	FindByReference(ctx context.Context, reference string) ([]*entity.Payable, error)

	AttachIntent(ctx context.Context, id, intentID string) error
	MarkPaid(ctx context.Context, id, intentID string, amountPaid float64, paidAt time.Time) (bool, error)
	ConfirmSibling(ctx context.Context, id string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, intentID string) (bool, error)
	MarkRefunded(ctx context.Context, id string) (bool, error)
}

// BookingTable describes where a booking kind keeps its payment columns.
// The booking services own these tables; column names differ between them.
type BookingTable struct {
	Kind         entity.PayableKind
	Name         string
	AmountColumn string
	StatusColumn string
}

var (
	TourBookings    = BookingTable{Kind: entity.PayableKindTour, Name: "tour_bookings", AmountColumn: "total_price", StatusColumn: "status"}
	VehicleBookings = BookingTable{Kind: entity.PayableKindVehicle, Name: "vehicle_bookings", AmountColumn: "total_amount", StatusColumn: "booking_status"}
	HotelBookings   = BookingTable{Kind: entity.PayableKindHotel, Name: "hotel_bookings", AmountColumn: "total_amount", StatusColumn: "booking_status"}
	CustomTrips     = BookingTable{Kind: entity.PayableKindCustomTrip, Name: "custom_trips", AmountColumn: "total_price", StatusColumn: "status"}
)

type payableRepository struct {
	db    database.PgxIface
	table BookingTable
	log   *zap.Logger
}

func NewPayableRepository(db database.PgxIface, table BookingTable, log *zap.Logger) PayableRepository {
	return &payableRepository{
		db:    db,
		table: table,
		log:   log.With(zap.String("repository", table.Name)),
	}
}

func (r *payableRepository) Kind() entity.PayableKind {
	return r.table.Kind
}

func (r *payableRepository) selectColumns() string {
	return fmt.Sprintf(`id, user_id, COALESCE(booking_reference, ''), %s, COALESCE(currency, ''), payment_status, %s,
		       payment_intent_id, amount_paid, payment_date, customer_email, created_at, updated_at`,
		r.table.AmountColumn, r.table.StatusColumn)
}

func (r *payableRepository) scan(row pgx.Row) (*entity.Payable, error) {
	var (
		id      uuid.UUID
		payable entity.Payable
	)

	err := row.Scan(
		&id,
		&payable.OwnerUserID,
		&payable.BookingReference,
		&payable.TotalAmount,
		&payable.Currency,
		&payable.PaymentStatus,
		&payable.BookingStatus,
		&payable.PaymentIntentID,
		&payable.AmountPaid,
		&payable.PaymentDate,
		&payable.CustomerEmail,
		&payable.CreatedAt,
		&payable.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	payable.ID = id.String()
	payable.Kind = r.table.Kind
	return &payable, nil
}

func (r *payableRepository) FindByID(ctx context.Context, id string) (*entity.Payable, error) {
	bookingID, err := uuid.Parse(id)
	if err != nil {
		// guest placeholders and foreign ids can never be stored here
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, r.selectColumns(), r.table.Name)

	payable, err := r.scan(r.db.QueryRow(ctx, query, bookingID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID",
			zap.Error(err),
			zap.String("booking_id", id),
		)
		return nil, fmt.Errorf("find %s booking %s: %w", r.table.Kind, id, err)
	}

	return payable, nil
}

func (r *payableRepository) FindByIntentID(ctx context.Context, intentID string) (*entity.Payable, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE payment_intent_id = $1 LIMIT 1`, r.selectColumns(), r.table.Name)

	payable, err := r.scan(r.db.QueryRow(ctx, query, intentID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by payment intent",
			zap.Error(err),
			zap.String("intent_id", intentID),
		)
		return nil, fmt.Errorf("find %s booking by intent %s: %w", r.table.Kind, intentID, err)
	}

	return payable, nil
}

func (r *payableRepository) FindByReference(ctx context.Context, reference string) ([]*entity.Payable, error) {
	if reference == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE booking_reference = $1 ORDER BY created_at`, r.selectColumns(), r.table.Name)

	rows, err := r.db.Query(ctx, query, reference)
	if err != nil {
		r.log.Error("Failed to find bookings by reference",
			zap.Error(err),
			zap.String("booking_reference", reference),
		)
		return nil, fmt.Errorf("find %s bookings by reference %s: %w", r.table.Kind, reference, err)
	}
	defer rows.Close()

	var payables []*entity.Payable
	for rows.Next() {
		payable, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s booking: %w", r.table.Kind, err)
		}
		payables = append(payables, payable)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s bookings: %w", r.table.Kind, err)
	}

	return payables, nil
}

// AttachIntent stores the active intent and reopens a failed payment for retry.
func (r *payableRepository) AttachIntent(ctx context.Context, id, intentID string) error {
	bookingID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid booking ID format %s: %w", id, err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET payment_intent_id = $2, payment_status = 'pending', updated_at = NOW()
		WHERE id = $1 AND payment_status IN ('pending', 'failed')
	`, r.table.Name)

	result, err := r.db.Exec(ctx, query, bookingID, intentID)
	if err != nil {
		return fmt.Errorf("attach intent %s to %s booking %s: %w", intentID, r.table.Kind, id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%s booking %s cannot take a new payment intent", r.table.Kind, id)
	}

	return nil
}

func (r *payableRepository) MarkPaid(ctx context.Context, id, intentID string, amountPaid float64, paidAt time.Time) (bool, error) {
	bookingID, err := uuid.Parse(id)
	if err != nil {
		return false, fmt.Errorf("invalid booking ID format %s: %w", id, err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET payment_status = 'paid', %s = 'confirmed', payment_intent_id = $2,
		    amount_paid = $3, payment_date = $4, updated_at = NOW()
		WHERE id = $1 AND payment_status IN ('pending', 'failed')
	`, r.table.Name, r.table.StatusColumn)

	result, err := r.db.Exec(ctx, query, bookingID, intentID, amountPaid, paidAt)
	if err != nil {
		r.log.Error("Failed to mark booking paid",
			zap.Error(err),
			zap.String("booking_id", id),
			zap.String("intent_id", intentID),
		)
		return false, fmt.Errorf("mark %s booking %s paid: %w", r.table.Kind, id, err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *payableRepository) ConfirmSibling(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	bookingID, err := uuid.Parse(id)
	if err != nil {
		return false, fmt.Errorf("invalid booking ID format %s: %w", id, err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET payment_status = 'paid', %s = 'confirmed',
		    payment_date = COALESCE(payment_date, $2), updated_at = NOW()
		WHERE id = $1 AND payment_status IN ('pending', 'failed')
	`, r.table.Name, r.table.StatusColumn)

	result, err := r.db.Exec(ctx, query, bookingID, paidAt)
	if err != nil {
		return false, fmt.Errorf("confirm %s booking %s: %w", r.table.Kind, id, err)
	}

	return result.RowsAffected() > 0, nil
}

// MarkFailed only fails the payment attempt that is still current.
func (r *payableRepository) MarkFailed(ctx context.Context, id, intentID string) (bool, error) {
	bookingID, err := uuid.Parse(id)
	if err != nil {
		return false, fmt.Errorf("invalid booking ID format %s: %w", id, err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET payment_status = 'failed', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'
		  AND (payment_intent_id IS NULL OR payment_intent_id = $2)
	`, r.table.Name)

	result, err := r.db.Exec(ctx, query, bookingID, intentID)
	if err != nil {
		return false, fmt.Errorf("mark %s booking %s failed: %w", r.table.Kind, id, err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *payableRepository) MarkRefunded(ctx context.Context, id string) (bool, error) {
	bookingID, err := uuid.Parse(id)
	if err != nil {
		return false, fmt.Errorf("invalid booking ID format %s: %w", id, err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET payment_status = 'refunded', %s = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'paid'
	`, r.table.Name, r.table.StatusColumn)

	result, err := r.db.Exec(ctx, query, bookingID)
	if err != nil {
		r.log.Error("Failed to mark booking refunded",
			zap.Error(err),
			zap.String("booking_id", id),
		)
		return false, fmt.Errorf("mark %s booking %s refunded: %w", r.table.Kind, id, err)
	}

	return result.RowsAffected() > 0, nil
}
