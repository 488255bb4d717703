package repository

import (
	"travel-booking/pkg/database"

	"go.uber.org/zap"
)

type Repository struct {
	// Payables is probed in order by the payable locator. Register new booking kinds here.
	Payables     []PayableRepository
	Refund       RefundRepository
	Notification NotificationRepository
	Session      SessionRepository
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	return &Repository{
		Payables: []PayableRepository{
			NewPayableRepository(db, TourBookings, log),
			NewPayableRepository(db, VehicleBookings, log),
			NewPayableRepository(db, HotelBookings, log),
			NewPayableRepository(db, CustomTrips, log),
		},
		Refund:       NewRefundRepository(db, log),
		Notification: NewNotificationRepository(db, log),
		Session:      NewSessionRepository(db, log),
	}
}
