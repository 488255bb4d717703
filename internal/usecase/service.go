package usecase

import (
	"travel-booking/internal/data/repository"
	"travel-booking/pkg/gateway"
	"travel-booking/pkg/utils"

	"go.uber.org/zap"
)

// Ledger is the local record of processed events and store-less confirmations.
type Ledger interface {
	EventLedger
	ConfirmationLedger
}

// Dependencies are the collaborators outside the booking database.
type Dependencies struct {
	Gateway  gateway.Gateway
	Verifier gateway.WebhookVerifier
	Ledger   Ledger
	Notifier Notifier
}

type Service struct {
	Intent  IntentService
	Confirm ConfirmService
	Webhook WebhookService
	Refund  RefundService
	Status  StatusService
}

func NewService(repo *repository.Repository, deps Dependencies, config *utils.Config, log *zap.Logger) *Service {
	locks := newKeyedMutex()
	locator := NewPayableLocator(repo.Payables, log)
	reconciler := NewReconciler(locator, deps.Gateway, deps.Ledger, deps.Notifier, locks, log)

	payment := config.Payment
	if config.App.IsProduction() {
		payment.SandboxMaxAmount = 0
	}

	return &Service{
		Intent:  NewIntentService(locator, deps.Gateway, reconciler, payment, log),
		Confirm: NewConfirmService(reconciler, log),
		Webhook: NewWebhookService(deps.Verifier, deps.Ledger, locator, reconciler, locks, log),
		Refund:  NewRefundService(locator, deps.Gateway, reconciler, repo.Refund, deps.Notifier, locks, log),
		Status:  NewStatusService(locator, deps.Gateway, reconciler, repo.Refund, log),
	}
}
