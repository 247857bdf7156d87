package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gymbill/internal/infra/payhere"
	"gymbill/internal/stories/payments"
	"gymbill/internal/stories/reconcile"
	"gymbill/internal/stories/recurring"
	"gymbill/internal/stories/schedules"
)

// Handlers bundles the HTTP surface of the billing core
type Handlers struct {
	reconciler      Reconciler
	paymentService  PaymentService
	processor       RecurringProcessor
	scheduleService ScheduleService
	logger          *slog.Logger
}

// NewHandlers creates the HTTP handler set
func NewHandlers(reconciler Reconciler, paymentService PaymentService, processor RecurringProcessor, scheduleService ScheduleService, logger *slog.Logger) *Handlers {
	return &Handlers{
		reconciler:      reconciler,
		paymentService:  paymentService,
		processor:       processor,
		scheduleService: scheduleService,
		logger:          logger,
	}
}

// Router wires the handler set into a mux
func (h *Handlers) Router() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /payhere/notify", h.handleGatewayNotify)
	mux.HandleFunc("GET /payments/{transactionID}", h.handlePaymentStatus)
	mux.HandleFunc("GET /recurring/due", h.handleListDue)
	mux.HandleFunc("POST /recurring", h.handleCreateSchedule)
	mux.HandleFunc("POST /recurring/{id}/process", h.handleProcessSchedule)
	mux.HandleFunc("POST /recurring/{id}/pause", h.handlePauseSchedule)
	mux.HandleFunc("POST /recurring/{id}/resume", h.handleResumeSchedule)
	mux.HandleFunc("POST /recurring/{id}/cancel", h.handleCancelSchedule)

	return mux
}

// handleGatewayNotify receives the gateway's settlement callback. The
// gateway retries anything that is not a fast 2xx with a plain body, so
// processed notifications, including idempotent duplicates, always answer
// 200 "OK".
func (h *Handlers) handleGatewayNotify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	n, err := payhere.ParseNotification(r.PostForm)
	if err != nil {
		h.logger.Warn("Malformed gateway notification", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.reconciler.HandleNotification(r.Context(), n); err != nil {
		switch {
		case errors.Is(err, reconcile.ErrInvalidSignature):
			http.Error(w, "invalid signature", http.StatusBadRequest)
		case errors.Is(err, payments.ErrNotFound):
			h.logger.Warn("Notification for unknown order", "order_id", n.OrderID)
			http.Error(w, "unknown order", http.StatusNotFound)
		default:
			h.logger.Error("Failed to handle gateway notification",
				"order_id", n.OrderID,
				"error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "OK")
}

// handlePaymentStatus answers client polling from payment success pages
func (h *Handlers) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	transactionID := r.PathValue("transactionID")
	if transactionID == "" {
		http.Error(w, "missing transaction id", http.StatusBadRequest)
		return
	}

	p, err := h.paymentService.GetPayment(r.Context(), payments.GetCriteria{TransactionID: &transactionID})
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			http.Error(w, "payment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get payment", "transaction_id", transactionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, toPaymentView(p))
}

func (h *Handlers) handleListDue(w http.ResponseWriter, r *http.Request) {
	due, err := h.processor.GetDueSchedules(r.Context())
	if err != nil {
		h.logger.Error("Failed to list due schedules", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	views := make([]scheduleView, 0, len(due))
	for _, s := range due {
		views = append(views, toScheduleView(s))
	}

	h.writeJSON(w, http.StatusOK, views)
}

type createScheduleBody struct {
	UserID          int64   `json:"user_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Frequency       string  `json:"frequency"`
	NextPaymentDate string  `json:"next_payment_date"`
	PaymentToken    *string `json:"payment_token,omitempty"`
	MaxFailures     int     `json:"max_failures,omitempty"`
	PlanID          *int64  `json:"plan_id,omitempty"`
}

func (h *Handlers) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var body createScheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed json body", http.StatusBadRequest)
		return
	}

	nextDate, err := time.Parse(time.RFC3339, body.NextPaymentDate)
	if err != nil {
		http.Error(w, "next_payment_date must be RFC3339", http.StatusBadRequest)
		return
	}

	req := schedules.CreateScheduleRequest{
		UserID:          body.UserID,
		Amount:          body.Amount,
		Currency:        body.Currency,
		Frequency:       schedules.Frequency(body.Frequency),
		NextPaymentDate: nextDate,
		PaymentToken:    body.PaymentToken,
		MaxFailures:     body.MaxFailures,
	}
	if body.PlanID != nil {
		req.RelatedType = schedules.RelatedMembershipPlan
		req.RelatedID = body.PlanID
	}

	created, err := h.scheduleService.CreateSchedule(r.Context(), req)
	if err != nil {
		if errors.Is(err, schedules.ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("Failed to create schedule", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, toScheduleView(created))
}

// handleProcessSchedule runs one charge attempt now. Cron normally drives
// this; the endpoint exists for operator dashboards and manual retries.
func (h *Handlers) handleProcessSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := h.scheduleID(w, r)
	if !ok {
		return
	}

	result, err := h.processor.ProcessSchedule(r.Context(), scheduleID)
	if err != nil {
		switch {
		case errors.Is(err, schedules.ErrNotFound):
			http.Error(w, "schedule not found", http.StatusNotFound)
		case errors.Is(err, recurring.ErrNotDue),
			errors.Is(err, recurring.ErrScheduleNotActive),
			errors.Is(err, recurring.ErrMaxFailuresExceeded),
			errors.Is(err, recurring.ErrTokenMissing):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, recurring.ErrGateway):
			http.Error(w, err.Error(), http.StatusBadGateway)
		default:
			h.logger.Error("Failed to process schedule", "schedule_id", scheduleID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"schedule": toScheduleView(result.Schedule),
		"payment":  toPaymentView(result.Payment),
	})
}

func (h *Handlers) handlePauseSchedule(w http.ResponseWriter, r *http.Request) {
	h.transitionSchedule(w, r, h.scheduleService.Pause)
}

func (h *Handlers) handleResumeSchedule(w http.ResponseWriter, r *http.Request) {
	h.transitionSchedule(w, r, h.scheduleService.Resume)
}

func (h *Handlers) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	h.transitionSchedule(w, r, h.scheduleService.Cancel)
}

func (h *Handlers) transitionSchedule(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, scheduleID int64) (*schedules.Schedule, error)) {
	scheduleID, ok := h.scheduleID(w, r)
	if !ok {
		return
	}

	updated, err := op(r.Context(), scheduleID)
	if err != nil {
		switch {
		case errors.Is(err, schedules.ErrNotFound):
			http.Error(w, "schedule not found", http.StatusNotFound)
		case errors.Is(err, schedules.ErrConflict):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("Failed to transition schedule", "schedule_id", scheduleID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toScheduleView(updated))
}

func (h *Handlers) scheduleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid schedule id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}
