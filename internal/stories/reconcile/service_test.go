package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"gymbill/internal/infra/payhere"
	"gymbill/internal/stories/memberships"
	"gymbill/internal/stories/payments"
	"gymbill/internal/stories/schedules"
)

func int64Ptr(v int64) *int64 { return &v }

type fakePaymentService struct {
	payments map[string]*payments.Payment

	applyCalls int
	markCalls  int
	clearCalls int
}

func newFakePaymentService(items ...*payments.Payment) *fakePaymentService {
	f := &fakePaymentService{payments: make(map[string]*payments.Payment)}
	for _, p := range items {
		f.payments[p.TransactionID] = p
	}
	return f
}

func (f *fakePaymentService) ApplyGatewayResult(_ context.Context, transactionID string, outcome payments.Outcome, gatewayTransactionID *string, gatewayResponse json.RawMessage, failureReason string) (*payments.Payment, bool, error) {
	f.applyCalls++
	p, ok := f.payments[transactionID]
	if !ok {
		return nil, false, payments.ErrNotFound
	}
	if p.Status.IsTerminal() {
		copied := *p
		return &copied, false, nil
	}
	switch outcome {
	case payments.OutcomeCompleted:
		p.Status = payments.StatusCompleted
	case payments.OutcomeFailed:
		p.Status = payments.StatusFailed
		p.FailureReason = &failureReason
	}
	p.GatewayTransactionID = gatewayTransactionID
	p.GatewayResponse = gatewayResponse
	copied := *p
	return &copied, true, nil
}

func (f *fakePaymentService) MarkMembershipPending(_ context.Context, transactionID string) error {
	f.markCalls++
	if p, ok := f.payments[transactionID]; ok {
		p.MembershipPending = true
	}
	return nil
}

func (f *fakePaymentService) ClearMembershipPending(_ context.Context, transactionID string) error {
	f.clearCalls++
	if p, ok := f.payments[transactionID]; ok {
		p.MembershipPending = false
	}
	return nil
}

type fakeMembershipService struct {
	created []memberships.CreateMembershipRequest
	fail    bool
}

func (f *fakeMembershipService) CreateMembership(_ context.Context, req memberships.CreateMembershipRequest) (*memberships.Membership, error) {
	if f.fail {
		return nil, errors.New("plan not found")
	}
	f.created = append(f.created, req)
	return &memberships.Membership{
		ID:            int64(len(f.created)),
		UserID:        req.UserID,
		PlanID:        req.PlanID,
		TransactionID: req.TransactionID,
		AutoRenew:     req.AutoRenew,
	}, nil
}

type fakeScheduleService struct {
	schedules map[int64]*schedules.Schedule

	tokens map[int64]string
}

func newFakeScheduleService(items ...*schedules.Schedule) *fakeScheduleService {
	f := &fakeScheduleService{
		schedules: make(map[int64]*schedules.Schedule),
		tokens:    make(map[int64]string),
	}
	for _, s := range items {
		f.schedules[s.ID] = s
	}
	return f
}

func (f *fakeScheduleService) GetSchedule(_ context.Context, scheduleID int64) (*schedules.Schedule, error) {
	s, ok := f.schedules[scheduleID]
	if !ok {
		return nil, schedules.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeScheduleService) SetPaymentToken(_ context.Context, scheduleID int64, token string) (*schedules.Schedule, error) {
	s, ok := f.schedules[scheduleID]
	if !ok {
		return nil, schedules.ErrNotFound
	}
	f.tokens[scheduleID] = token
	copied := *s
	copied.PaymentToken = &token
	return &copied, nil
}

type fakeVerifier struct {
	ok bool
}

func (f *fakeVerifier) VerifyNotificationSignature(_ payhere.Notification) bool {
	return f.ok
}

type fakeAlerter struct {
	alerts []string
}

func (f *fakeAlerter) Alert(_ context.Context, text string) error {
	f.alerts = append(f.alerts, text)
	return nil
}

func pendingPlanPayment(txn string) *payments.Payment {
	return &payments.Payment{
		ID:            1,
		TransactionID: txn,
		UserID:        42,
		Amount:        2500,
		Currency:      "LKR",
		Type:          payments.TypeMembership,
		Status:        payments.StatusPending,
		Method:        payments.MethodCard,
		RelatedType:   payments.RelatedMembershipPlan,
		RelatedID:     int64Ptr(3),
	}
}

func notification(orderID, statusCode string) payhere.Notification {
	return payhere.Notification{
		MerchantID:      "1211149",
		OrderID:         orderID,
		PaymentID:       "320025",
		PayhereAmount:   "2500.00",
		PayhereCurrency: "LKR",
		StatusCode:      statusCode,
		MD5Sig:          "SIG",
	}
}

func newTestService(paymentSvc PaymentService, membershipSvc MembershipService, scheduleSvc ScheduleService, verifier SignatureVerifier, alerter Alerter) *Service {
	return NewService(paymentSvc, membershipSvc, scheduleSvc, verifier, alerter,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleNotificationRejectsBadSignature(t *testing.T) {
	paymentSvc := newFakePaymentService(pendingPlanPayment("ORD-1"))
	svc := newTestService(paymentSvc, &fakeMembershipService{}, newFakeScheduleService(), &fakeVerifier{ok: false}, nil)

	_, err := svc.HandleNotification(context.Background(), notification("ORD-1", "2"))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("HandleNotification() error = %v, want ErrInvalidSignature", err)
	}
	if paymentSvc.applyCalls != 0 {
		t.Error("ledger touched despite invalid signature")
	}
}

func TestHandleNotificationUnknownOrder(t *testing.T) {
	svc := newTestService(newFakePaymentService(), &fakeMembershipService{}, newFakeScheduleService(), &fakeVerifier{ok: true}, nil)

	_, err := svc.HandleNotification(context.Background(), notification("ORD-GHOST", "2"))
	if !errors.Is(err, payments.ErrNotFound) {
		t.Errorf("HandleNotification() error = %v, want payments.ErrNotFound", err)
	}
}

func TestHandleNotificationCompletesAndProvisions(t *testing.T) {
	paymentSvc := newFakePaymentService(pendingPlanPayment("ORD-1"))
	membershipSvc := &fakeMembershipService{}
	svc := newTestService(paymentSvc, membershipSvc, newFakeScheduleService(), &fakeVerifier{ok: true}, nil)

	settled, err := svc.HandleNotification(context.Background(), notification("ORD-1", "2"))
	if err != nil {
		t.Fatalf("HandleNotification() error = %v", err)
	}

	if settled.Status != payments.StatusCompleted {
		t.Errorf("status = %s, want %s", settled.Status, payments.StatusCompleted)
	}
	if settled.GatewayTransactionID == nil || *settled.GatewayTransactionID != "320025" {
		t.Errorf("gateway transaction id = %v, want 320025", settled.GatewayTransactionID)
	}
	if len(settled.GatewayResponse) == 0 {
		t.Error("gateway response audit payload not persisted")
	}

	if len(membershipSvc.created) != 1 {
		t.Fatalf("memberships created = %d, want 1", len(membershipSvc.created))
	}
	created := membershipSvc.created[0]
	if created.PlanID != 3 || created.UserID != 42 || created.TransactionID != "ORD-1" {
		t.Errorf("membership request = %+v, want plan 3 / user 42 / ORD-1", created)
	}
	if created.AutoRenew {
		t.Error("one-off plan purchase marked auto-renew")
	}
}

func TestHandleNotificationRecurringStoresTokenAndAutoRenews(t *testing.T) {
	p := pendingPlanPayment("ORD-2")
	p.RelatedType = payments.RelatedRecurringSchedule
	p.RelatedID = int64Ptr(9)

	scheduleSvc := newFakeScheduleService(&schedules.Schedule{
		ID:          9,
		UserID:      42,
		RelatedType: schedules.RelatedMembershipPlan,
		RelatedID:   int64Ptr(3),
	})
	membershipSvc := &fakeMembershipService{}
	svc := newTestService(newFakePaymentService(p), membershipSvc, scheduleSvc, &fakeVerifier{ok: true}, nil)

	n := notification("ORD-2", "2")
	n.CustomerToken = "tok-new"

	if _, err := svc.HandleNotification(context.Background(), n); err != nil {
		t.Fatalf("HandleNotification() error = %v", err)
	}

	if scheduleSvc.tokens[9] != "tok-new" {
		t.Errorf("stored token = %q, want tok-new", scheduleSvc.tokens[9])
	}
	if len(membershipSvc.created) != 1 {
		t.Fatalf("memberships created = %d, want 1", len(membershipSvc.created))
	}
	created := membershipSvc.created[0]
	if created.PlanID != 3 {
		t.Errorf("membership plan = %d, want 3 (resolved through schedule)", created.PlanID)
	}
	if !created.AutoRenew {
		t.Error("recurring membership not marked auto-renew")
	}
}

func TestHandleNotificationDuplicateSkipsEffects(t *testing.T) {
	p := pendingPlanPayment("ORD-3")
	p.Status = payments.StatusCompleted
	membershipSvc := &fakeMembershipService{}
	svc := newTestService(newFakePaymentService(p), membershipSvc, newFakeScheduleService(), &fakeVerifier{ok: true}, nil)

	settled, err := svc.HandleNotification(context.Background(), notification("ORD-3", "2"))
	if err != nil {
		t.Fatalf("HandleNotification() error = %v", err)
	}
	if settled.Status != payments.StatusCompleted {
		t.Errorf("status = %s, want %s", settled.Status, payments.StatusCompleted)
	}
	if len(membershipSvc.created) != 0 {
		t.Error("duplicate delivery provisioned a second membership")
	}
}

func TestHandleNotificationFailureCodes(t *testing.T) {
	tests := []struct {
		name       string
		statusCode string
		wantReason string
	}{
		{name: "pending code fails closed", statusCode: "0", wantReason: "pending"},
		{name: "cancelled", statusCode: "-1", wantReason: "cancelled"},
		{name: "failed", statusCode: "-2", wantReason: "declined"},
		{name: "chargedback", statusCode: "-3", wantReason: "charged back"},
		{name: "unknown positive code", statusCode: "7", wantReason: "unrecognized"},
		{name: "unparseable code", statusCode: "banana", wantReason: "unparseable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paymentSvc := newFakePaymentService(pendingPlanPayment("ORD-4"))
			membershipSvc := &fakeMembershipService{}
			svc := newTestService(paymentSvc, membershipSvc, newFakeScheduleService(), &fakeVerifier{ok: true}, nil)

			settled, err := svc.HandleNotification(context.Background(), notification("ORD-4", tt.statusCode))
			if err != nil {
				t.Fatalf("HandleNotification() error = %v", err)
			}
			if settled.Status != payments.StatusFailed {
				t.Errorf("status = %s, want %s", settled.Status, payments.StatusFailed)
			}
			if settled.FailureReason == nil || !strings.Contains(*settled.FailureReason, tt.wantReason) {
				t.Errorf("failure reason = %v, want substring %q", settled.FailureReason, tt.wantReason)
			}
			if len(membershipSvc.created) != 0 {
				t.Error("failed payment provisioned a membership")
			}
		})
	}
}

func TestHandleNotificationProvisioningFailureDefers(t *testing.T) {
	paymentSvc := newFakePaymentService(pendingPlanPayment("ORD-5"))
	alerter := &fakeAlerter{}
	svc := newTestService(paymentSvc, &fakeMembershipService{fail: true}, newFakeScheduleService(), &fakeVerifier{ok: true}, alerter)

	settled, err := svc.HandleNotification(context.Background(), notification("ORD-5", "2"))
	if err != nil {
		t.Fatalf("HandleNotification() error = %v", err)
	}

	// The settlement survives the provisioning failure
	if settled.Status != payments.StatusCompleted {
		t.Errorf("status = %s, want %s", settled.Status, payments.StatusCompleted)
	}
	if paymentSvc.markCalls != 1 {
		t.Errorf("mark membership pending calls = %d, want 1", paymentSvc.markCalls)
	}
	if len(alerter.alerts) != 1 {
		t.Errorf("operator alerts = %d, want 1", len(alerter.alerts))
	}
	if len(alerter.alerts) == 1 && !strings.Contains(alerter.alerts[0], "ORD-5") {
		t.Errorf("alert text %q does not name the transaction", alerter.alerts[0])
	}
}

func TestMapStatusCode(t *testing.T) {
	tests := []struct {
		code    string
		outcome payments.Outcome
	}{
		{"2", payments.OutcomeCompleted},
		{"0", payments.OutcomeFailed},
		{"-1", payments.OutcomeFailed},
		{"-2", payments.OutcomeFailed},
		{"-3", payments.OutcomeFailed},
		{"99", payments.OutcomeFailed},
		{"", payments.OutcomeFailed},
		{"2.0", payments.OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			outcome, reason := mapStatusCode(tt.code, "msg")
			if outcome != tt.outcome {
				t.Errorf("mapStatusCode(%q) = %s, want %s", tt.code, outcome, tt.outcome)
			}
			if outcome == payments.OutcomeFailed && reason == "" {
				t.Errorf("mapStatusCode(%q) returned empty failure reason", tt.code)
			}
		})
	}
}
