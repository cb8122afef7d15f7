package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shoplane/shoplane/pkg/affiliate"
	"github.com/shoplane/shoplane/pkg/billing"
	"github.com/shoplane/shoplane/pkg/subscription"
)

type handler struct {
	subs            *subscription.Service
	renewals        *billing.RenewalService
	affiliates      *affiliate.Service
	referralBaseURL string
}

func (h *handler) currentSubscription(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	sub, snapshot, err := h.subs.Current(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscription": sub,
		"status":       snapshot,
	})
}

func (h *handler) subscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID uuid.UUID `json:"tenantId"`
		PlanID   string    `json:"planId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	sub, err := h.subs.Subscribe(r.Context(), req.TenantID, req.PlanID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *handler) startTrial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID uuid.UUID `json:"tenantId"`
		PlanID   string    `json:"planId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	sub, err := h.subs.StartTrial(r.Context(), req.TenantID, req.PlanID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *handler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID  uuid.UUID `json:"tenantId"`
		Immediate bool      `json:"immediate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	sub, err := h.subs.Cancel(r.Context(), req.TenantID, req.Immediate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *handler) startRenewal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubscriptionID uuid.UUID `json:"subscriptionId"`
		Months         int       `json:"months"`
		Email          string    `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	renewal, err := h.renewals.StartRenewal(r.Context(), billing.RenewalRequest{
		SubscriptionID: req.SubscriptionID,
		Months:         req.Months,
		CustomerEmail:  req.Email,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"transactionId": renewal.Invoice.TransactionID,
		"checkoutUrl":   renewal.Session.CheckoutURL,
		"expiresAt":     renewal.Session.ExpiresAt,
	})
}

// Gateway redirect endpoints. The gateway posts the transaction id (and for
// successes a validation id) as form fields.

func (h *handler) callbackSuccess(w http.ResponseWriter, r *http.Request) {
	h.reconcile(w, r, billing.OutcomeSuccess)
}

func (h *handler) callbackFail(w http.ResponseWriter, r *http.Request) {
	h.reconcile(w, r, billing.OutcomeFailed)
}

func (h *handler) callbackCancel(w http.ResponseWriter, r *http.Request) {
	h.reconcile(w, r, billing.OutcomeCancelled)
}

// ipn handles the server-to-server notification. It carries its own outcome
// in the status field; anything but a success status settles as failed.
func (h *handler) ipn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form payload")
		return
	}

	outcome := billing.OutcomeFailed
	switch r.PostFormValue("status") {
	case "VALID", "VALIDATED":
		outcome = billing.OutcomeSuccess
	}
	h.reconcile(w, r, outcome)
}

func (h *handler) reconcile(w http.ResponseWriter, r *http.Request, outcome billing.Outcome) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form payload")
		return
	}
	transactionID := r.PostFormValue("tran_id")
	validationID := r.PostFormValue("val_id")

	res, err := h.renewals.Reconcile(r.Context(), transactionID, outcome, validationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := "failed"
	if res.Invoice.Status == billing.InvoicePaid {
		status = "paid"
	}
	if !res.Applied {
		status = "already-processed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactionId": res.Invoice.TransactionID,
		"result":        status,
	})
}

func (h *handler) enrollAffiliate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uuid.UUID `json:"userId"`
		Code   string    `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	a, err := h.affiliates.Enroll(r.Context(), req.UserID, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *handler) getAffiliate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "affiliateID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid affiliate id")
		return
	}

	a, err := h.affiliates.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	progress, err := h.affiliates.ProgressOf(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"affiliate": a,
		"progress":  progress,
	})
}

func (h *handler) referralQR(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "affiliateID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid affiliate id")
		return
	}

	a, err := h.affiliates.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	png, err := affiliate.ReferralQR(h.referralBaseURL, a.Code, size)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render qr code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *handler) listCommissions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "affiliateID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid affiliate id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	commissions, err := h.affiliates.ListCommissions(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commissions)
}

// Order lifecycle webhooks from the storefront.

func (h *handler) orderPlaced(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID    string `json:"orderId"`
		PromoCode  string `json:"promoCode"`
		OrderTotal int64  `json:"orderTotal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	c, err := h.affiliates.Accrue(r.Context(), req.PromoCode, req.OrderID, req.OrderTotal)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) orderDelivered(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	c, applied, err := h.affiliates.Confirm(r.Context(), req.OrderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commission": c,
		"applied":    applied,
	})
}

func (h *handler) orderCancelled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	c, applied, err := h.affiliates.Reverse(r.Context(), req.OrderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commission": c,
		"applied":    applied,
	})
}

func (h *handler) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AffiliateID uuid.UUID `json:"affiliateId"`
		Amount      int64     `json:"amount"`
		Method      string    `json:"method"`
		Account     string    `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	wd, err := h.affiliates.RequestWithdrawal(r.Context(), req.AffiliateID, req.Amount, req.Method, req.Account)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

func (h *handler) approveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.transitionWithdrawal(w, r, func(id uuid.UUID) (bool, error) {
		return h.affiliates.ApproveWithdrawal(r.Context(), id)
	})
}

func (h *handler) rejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	h.transitionWithdrawal(w, r, func(id uuid.UUID) (bool, error) {
		return h.affiliates.RejectWithdrawal(r.Context(), id, req.Note)
	})
}

func (h *handler) completeWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.transitionWithdrawal(w, r, func(id uuid.UUID) (bool, error) {
		return h.affiliates.CompleteWithdrawal(r.Context(), id)
	})
}

func (h *handler) transitionWithdrawal(w http.ResponseWriter, r *http.Request, apply func(uuid.UUID) (bool, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "withdrawalID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid withdrawal id")
		return
	}

	applied, err := apply(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied})
}

func (h *handler) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "affiliateID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid affiliate id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	withdrawals, err := h.affiliates.ListWithdrawals(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawals)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps engine sentinels to HTTP statuses. Invariant
// violations surface as a generic processing error; the detail stays in the
// server logs.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscription.ErrSubscriptionNotFound),
		errors.Is(err, subscription.ErrPlanNotFound),
		errors.Is(err, billing.ErrInvoiceNotFound),
		errors.Is(err, affiliate.ErrAffiliateNotFound),
		errors.Is(err, affiliate.ErrCommissionNotFound),
		errors.Is(err, affiliate.ErrWithdrawalNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, subscription.ErrTrialNotAvailable),
		errors.Is(err, subscription.ErrInvalidSubscriptionState),
		errors.Is(err, affiliate.ErrInvalidAmount),
		errors.Is(err, affiliate.ErrInvalidCode),
		errors.Is(err, affiliate.ErrBelowMinimum),
		errors.Is(err, affiliate.ErrInsufficientBalance),
		errors.Is(err, billing.ErrGatewayInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, subscription.ErrSubscriptionAlreadyExists),
		errors.Is(err, billing.ErrRenewalPending),
		errors.Is(err, billing.ErrDuplicateTransaction),
		errors.Is(err, affiliate.ErrCodeTaken),
		errors.Is(err, affiliate.ErrDuplicateCommission),
		errors.Is(err, affiliate.ErrAffiliateInactive):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, billing.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())

	case errors.Is(err, billing.ErrSettlementIncomplete),
		errors.Is(err, affiliate.ErrNegativeBalance),
		errors.Is(err, affiliate.ErrLedgerInvariant):
		writeError(w, http.StatusInternalServerError, "processing error, the operation is under review")

	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
