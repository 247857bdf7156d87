package environment

import (
	"context"
	"log/slog"

	"gymbill/internal/config"
	"gymbill/internal/httpapi"
	"gymbill/internal/storage"
	"gymbill/internal/stories/memberships"
	"gymbill/internal/stories/payments"
	"gymbill/internal/stories/plans"
	"gymbill/internal/stories/reconcile"
	"gymbill/internal/stories/recurring"
	"gymbill/internal/stories/schedules"
	"gymbill/internal/workers"
	"gymbill/internal/workers/provisionretry"
	"gymbill/internal/workers/recurringcharge"

	"github.com/pkg/errors"
)

type Services struct {
	Plans         *plans.Service
	Payments      *payments.Service
	Schedules     *schedules.Service
	Memberships   *memberships.Service
	Recurring     *recurring.Service
	Reconcile     *reconcile.Service
	APIHandlers   *httpapi.Handlers
	WorkerService *workers.Manager
}

func newServices(ctx context.Context, clients *Clients, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	var s Services

	storageImpl := storage.New(clients.SQLiteDB.DB)
	if err := storageImpl.Migrate(ctx); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	s.Plans = plans.NewService(storageImpl)
	s.Payments = payments.NewService(storageImpl, logger)
	s.Schedules = schedules.NewService(storageImpl, cfg.Recurring.MaxFailures, logger)
	s.Memberships = memberships.NewService(storageImpl, s.Plans, logger)
	s.Recurring = recurring.NewService(s.Schedules, s.Payments, clients.PayHere, logger)

	// A nil telegram client stays a nil interface so alerting is skipped
	var alerter reconcile.Alerter
	var retryAlerter provisionretry.Alerter
	if clients.TelegramAlerts != nil {
		alerter = clients.TelegramAlerts
		retryAlerter = clients.TelegramAlerts
	}

	s.Reconcile = reconcile.NewService(s.Payments, s.Memberships, s.Schedules, clients.PayHere, alerter, logger)

	s.APIHandlers = httpapi.NewHandlers(s.Reconcile, s.Payments, s.Recurring, s.Schedules, logger)

	chargeWorker := recurringcharge.NewWorker(s.Recurring, cfg.Recurring.ChargeInterval, logger)
	retryWorker := provisionretry.NewWorker(s.Payments, s.Memberships, s.Schedules, retryAlerter, logger)
	s.WorkerService = workers.NewManager(logger, chargeWorker, retryWorker)

	return &s, nil
}
