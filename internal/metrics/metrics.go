package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecurringCharges counts charge attempts by result:
	// submitted, initiation_failed, ledger_failed.
	RecurringCharges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymbill_recurring_charges_total",
		Help: "Recurring charge attempts by result",
	}, []string{"result"})

	// WebhookNotifications counts gateway notifications by result:
	// completed, failed, duplicate, rejected, unknown_order.
	WebhookNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymbill_webhook_notifications_total",
		Help: "Gateway settlement notifications by result",
	}, []string{"result"})

	// MembershipProvisioning counts derived membership creation attempts:
	// provisioned, deferred, retried.
	MembershipProvisioning = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymbill_membership_provisioning_total",
		Help: "Membership provisioning attempts by result",
	}, []string{"result"})
)
