package wire

import (
	"travel-booking/internal/adaptor"
	"travel-booking/internal/data/repository"
	"travel-booking/pkg/middleware"
	"travel-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wirePayment(
	r chi.Router,
	paymentHandler *adaptor.PaymentHandler,
	repo *repository.Repository,
	config *utils.Config,
	log *zap.Logger,
) {
	r.Route("/api/payments", func(r chi.Router) {
		// ==================== PROTECTED ROUTES (require auth) ====================
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthSession(repo.Session, log))

			// POST /api/payments/intents - Create intent for the caller's booking
			r.Post("/intents", paymentHandler.CreateIntent)

			// POST /api/payments/confirm - Confirm a client-side payment
			r.Post("/confirm", paymentHandler.Confirm)

			// GET /api/payments/bookings/{id} - Payment status (owner only)
			r.Get("/bookings/{id}", paymentHandler.GetStatus)

			// POST /api/payments/bookings/{id}/refund - Refund a paid booking (owner only)
			r.Post("/bookings/{id}/refund", paymentHandler.Refund)
		})

		// ==================== PUBLIC ROUTES ====================
		// POST /api/payments/guest/intents - Guest checkout
		r.Post("/guest/intents", paymentHandler.CreateGuestIntent)

		// POST /api/payments/guest/confirm - Guest confirmation
		r.Post("/guest/confirm", paymentHandler.ConfirmGuest)

		// POST /api/payments/webhook - Gateway events, authenticated by signature
		r.Post("/webhook", paymentHandler.Webhook)
	})

	log.Debug("Payment routes wired",
		zap.String("env", config.App.Env),
		zap.Bool("sandbox", !config.App.IsProduction()))
}
