package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"gymbill/internal/infra/payhere"
	"gymbill/internal/stories/payments"
	"gymbill/internal/stories/reconcile"
	"gymbill/internal/stories/recurring"
	"gymbill/internal/stories/schedules"
)

type fakeReconciler struct {
	payment *payments.Payment
	err     error
	got     *payhere.Notification
}

func (f *fakeReconciler) HandleNotification(_ context.Context, n payhere.Notification) (*payments.Payment, error) {
	f.got = &n
	return f.payment, f.err
}

type fakePaymentService struct {
	payment *payments.Payment
	err     error
}

func (f *fakePaymentService) GetPayment(_ context.Context, _ payments.GetCriteria) (*payments.Payment, error) {
	return f.payment, f.err
}

type fakeProcessor struct {
	result *recurring.Result
	due    []*schedules.Schedule
	err    error
}

func (f *fakeProcessor) ProcessSchedule(_ context.Context, _ int64) (*recurring.Result, error) {
	return f.result, f.err
}

func (f *fakeProcessor) GetDueSchedules(_ context.Context) ([]*schedules.Schedule, error) {
	return f.due, f.err
}

type fakeScheduleService struct {
	schedule *schedules.Schedule
	err      error
	gotReq   *schedules.CreateScheduleRequest
}

func (f *fakeScheduleService) CreateSchedule(_ context.Context, req schedules.CreateScheduleRequest) (*schedules.Schedule, error) {
	f.gotReq = &req
	return f.schedule, f.err
}

func (f *fakeScheduleService) GetSchedule(_ context.Context, _ int64) (*schedules.Schedule, error) {
	return f.schedule, f.err
}

func (f *fakeScheduleService) Pause(_ context.Context, _ int64) (*schedules.Schedule, error) {
	return f.schedule, f.err
}

func (f *fakeScheduleService) Resume(_ context.Context, _ int64) (*schedules.Schedule, error) {
	return f.schedule, f.err
}

func (f *fakeScheduleService) Cancel(_ context.Context, _ int64) (*schedules.Schedule, error) {
	return f.schedule, f.err
}

func testSchedule() *schedules.Schedule {
	return &schedules.Schedule{
		ID:              1,
		UserID:          42,
		Amount:          2500,
		Currency:        "LKR",
		Frequency:       schedules.FrequencyMonthly,
		NextPaymentDate: time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		Status:          schedules.StatusActive,
		MaxFailures:     5,
	}
}

func testPayment() *payments.Payment {
	return &payments.Payment{
		ID:            1,
		TransactionID: "ORD-1",
		UserID:        42,
		Amount:        2500,
		Currency:      "LKR",
		Type:          payments.TypeMembership,
		Status:        payments.StatusCompleted,
		Method:        payments.MethodCard,
	}
}

func newTestRouter(reconciler Reconciler, paymentSvc PaymentService, processor RecurringProcessor, scheduleSvc ScheduleService) *http.ServeMux {
	h := NewHandlers(reconciler, paymentSvc, processor, scheduleSvc,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h.Router()
}

func notifyForm() url.Values {
	return url.Values{
		"merchant_id":      {"1211149"},
		"order_id":         {"ORD-1"},
		"payhere_amount":   {"2500.00"},
		"payhere_currency": {"LKR"},
		"status_code":      {"2"},
		"md5sig":           {"SIG"},
	}
}

func postForm(router *http.ServeMux, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGatewayNotifyAcksProcessedNotification(t *testing.T) {
	reconciler := &fakeReconciler{payment: testPayment()}
	router := newTestRouter(reconciler, &fakePaymentService{}, &fakeProcessor{}, &fakeScheduleService{})

	rec := postForm(router, "/payhere/notify", notifyForm())

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "OK" {
		t.Errorf("body = %q, want OK", body)
	}
	if reconciler.got == nil || reconciler.got.OrderID != "ORD-1" {
		t.Errorf("reconciler received %+v, want order ORD-1", reconciler.got)
	}
}

func TestGatewayNotifyRejectsInvalidSignature(t *testing.T) {
	reconciler := &fakeReconciler{err: reconcile.ErrInvalidSignature}
	router := newTestRouter(reconciler, &fakePaymentService{}, &fakeProcessor{}, &fakeScheduleService{})

	rec := postForm(router, "/payhere/notify", notifyForm())

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGatewayNotifyUnknownOrder(t *testing.T) {
	reconciler := &fakeReconciler{err: payments.ErrNotFound}
	router := newTestRouter(reconciler, &fakePaymentService{}, &fakeProcessor{}, &fakeScheduleService{})

	rec := postForm(router, "/payhere/notify", notifyForm())

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGatewayNotifyMissingFields(t *testing.T) {
	router := newTestRouter(&fakeReconciler{}, &fakePaymentService{}, &fakeProcessor{}, &fakeScheduleService{})

	form := notifyForm()
	form.Del("md5sig")
	rec := postForm(router, "/payhere/notify", form)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPaymentStatus(t *testing.T) {
	router := newTestRouter(&fakeReconciler{}, &fakePaymentService{payment: testPayment()}, &fakeProcessor{}, &fakeScheduleService{})

	req := httptest.NewRequest(http.MethodGet, "/payments/ORD-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var view paymentView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.TransactionID != "ORD-1" {
		t.Errorf("transaction id = %s, want ORD-1", view.TransactionID)
	}
	if view.Status != "completed" {
		t.Errorf("status = %s, want completed", view.Status)
	}
}

func TestPaymentStatusNotFound(t *testing.T) {
	router := newTestRouter(&fakeReconciler{}, &fakePaymentService{err: payments.ErrNotFound}, &fakeProcessor{}, &fakeScheduleService{})

	req := httptest.NewRequest(http.MethodGet, "/payments/ORD-GHOST", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListDue(t *testing.T) {
	processor := &fakeProcessor{due: []*schedules.Schedule{testSchedule()}}
	router := newTestRouter(&fakeReconciler{}, &fakePaymentService{}, processor, &fakeScheduleService{})

	req := httptest.NewRequest(http.MethodGet, "/recurring/due", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var views []scheduleView
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(views) != 1 || views[0].ID != 1 {
		t.Errorf("views = %+v, want one schedule with id 1", views)
	}
}

func TestCreateSchedule(t *testing.T) {
	scheduleSvc := &fakeScheduleService{schedule: testSchedule()}
	router := newTestRouter(&fakeReconciler{}, &fakePaymentService{}, &fakeProcessor{}, scheduleSvc)

	body := `{
		"user_id": 42,
		"amount": 2500,
		"currency": "LKR",
		"frequency": "monthly",
		"next_payment_date": "2025-04-01T00:00:00Z",
		"plan_id": 3
	}`
	req := httptest.NewRequest(http.MethodPost, "/recurring", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	got := scheduleSvc.gotReq
	if got == nil {
		t.Fatal("schedule service never called")
	}
	if got.RelatedType != schedules.RelatedMembershipPlan {
		t.Errorf("related type = %s, want %s", got.RelatedType, schedules.RelatedMembershipPlan)
	}
	if got.RelatedID == nil || *got.RelatedID != 3 {
		t.Errorf("related id = %v, want 3", got.RelatedID)
	}
}

func TestCreateScheduleBadDate(t *testing.T) {
	router := newTestRouter(&fakeReconciler{}, &fakePaymentService{}, &fakeProcessor{}, &fakeScheduleService{})

	body := `{"user_id":42,"amount":2500,"currency":"LKR","frequency":"monthly","next_payment_date":"tomorrow"}`
	req := httptest.NewRequest(http.MethodPost, "/recurring", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateScheduleValidationError(t *testing.T) {
	scheduleSvc := &fakeScheduleService{err: schedules.ErrValidation}
	router := newTestRouter(&fakeReconciler{}, &fakePaymentService{}, &fakeProcessor{}, scheduleSvc)

	body := `{"user_id":42,"amount":-1,"currency":"LKR","frequency":"monthly","next_payment_date":"2025-04-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/recurring", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestProcessScheduleResponses(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "not found", err: schedules.ErrNotFound, wantCode: http.StatusNotFound},
		{name: "not due", err: recurring.ErrNotDue, wantCode: http.StatusConflict},
		{name: "not active", err: recurring.ErrScheduleNotActive, wantCode: http.StatusConflict},
		{name: "max failures", err: recurring.ErrMaxFailuresExceeded, wantCode: http.StatusConflict},
		{name: "token missing", err: recurring.ErrTokenMissing, wantCode: http.StatusConflict},
		{name: "gateway down", err: recurring.ErrGateway, wantCode: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &fakeProcessor{err: tt.err}
			router := newTestRouter(&fakeReconciler{}, &fakePaymentService{}, processor, &fakeScheduleService{})

			req := httptest.NewRequest(http.MethodPost, "/recurring/1/process", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestProcessScheduleSuccess(t *testing.T) {
	processor := &fakeProcessor{result: &recurring.Result{
		Schedule: testSchedule(),
		Payment:  testPayment(),
	}}
	router := newTestRouter(&fakeReconciler{}, &fakePaymentService{}, processor, &fakeScheduleService{})

	req := httptest.NewRequest(http.MethodPost, "/recurring/1/process", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Schedule scheduleView `json:"schedule"`
		Payment  paymentView  `json:"payment"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Schedule.ID != 1 || resp.Payment.TransactionID != "ORD-1" {
		t.Errorf("response = %+v, want schedule 1 and payment ORD-1", resp)
	}
}

func TestScheduleTransitions(t *testing.T) {
	for _, action := range []string{"pause", "resume", "cancel"} {
		t.Run(action, func(t *testing.T) {
			scheduleSvc := &fakeScheduleService{schedule: testSchedule()}
			router := newTestRouter(&fakeReconciler{}, &fakePaymentService{}, &fakeProcessor{}, scheduleSvc)

			req := httptest.NewRequest(http.MethodPost, "/recurring/1/"+action, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
		})
	}
}

func TestScheduleTransitionConflict(t *testing.T) {
	scheduleSvc := &fakeScheduleService{err: schedules.ErrConflict}
	router := newTestRouter(&fakeReconciler{}, &fakePaymentService{}, &fakeProcessor{}, scheduleSvc)

	req := httptest.NewRequest(http.MethodPost, "/recurring/1/pause", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestInvalidScheduleID(t *testing.T) {
	router := newTestRouter(&fakeReconciler{}, &fakePaymentService{}, &fakeProcessor{}, &fakeScheduleService{})

	req := httptest.NewRequest(http.MethodPost, "/recurring/abc/pause", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
