package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billingmod "github.com/shoplane/shoplane/modules/billing"
	"github.com/shoplane/shoplane/pkg/affiliate"
	"github.com/shoplane/shoplane/pkg/billing"
	"github.com/shoplane/shoplane/pkg/subscription"
)

// stubGateway hands out canned checkout sessions and validates whatever
// transaction it saw last, echoing the initiated amount.
type stubGateway struct {
	mu   sync.Mutex
	last billing.InitiateRequest
}

func (g *stubGateway) Initiate(ctx context.Context, req billing.InitiateRequest) (*billing.Session, error) {
	g.mu.Lock()
	g.last = req
	g.mu.Unlock()
	return &billing.Session{
		CheckoutURL: "https://gateway.test/checkout/" + req.TransactionID,
		SessionID:   "SESSION-" + req.TransactionID,
		ExpiresAt:   time.Now().Add(30 * time.Minute),
	}, nil
}

func (g *stubGateway) Validate(ctx context.Context, validationID string) (*billing.Validation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &billing.Validation{
		Status:        billing.ValidationValid,
		TransactionID: g.last.TransactionID,
		Amount:        g.last.Amount.Amount,
		Currency:      g.last.Amount.Currency,
	}, nil
}

type testEnv struct {
	server *httptest.Server
	subs   *subscription.Service
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewMemorySource(
		subscription.Plan{
			ID:          "growth",
			Name:        "Growth",
			Price:       subscription.Money{Amount: 2900, Currency: "USD"},
			CycleMonths: 1,
			GraceDays:   3,
			Public:      true,
		},
	))
	require.NoError(t, err)

	subStore := subscription.NewMemoryStore()
	subs := subscription.NewService(subStore, catalog, subscription.WithClock(clock))

	renewals := billing.NewRenewalService(
		billing.NewMemoryInvoiceStore(),
		subStore,
		&stubGateway{},
		billing.NewMemoryLocker(),
		billing.CallbackURLs{
			SuccessURL: "https://shop.test/billing/callbacks/success",
			FailURL:    "https://shop.test/billing/callbacks/fail",
			CancelURL:  "https://shop.test/billing/callbacks/cancel",
			IPNURL:     "https://shop.test/billing/ipn",
		},
		billing.WithClock(clock),
	)

	affiliates := affiliate.NewService(
		affiliate.NewMemoryStore(),
		affiliate.ProgramConfig{
			SalesThresholds: affiliate.Thresholds{1: 0, 2: 10, 3: 25, 4: 50, 5: 100},
			Levels: map[int]affiliate.LevelConfig{
				1: {Percent: 3}, 2: {Percent: 5}, 3: {Percent: 7},
				4: {Percent: 10}, 5: {Percent: 12},
			},
			MinWithdrawal: 500,
		},
		affiliate.NewMemoryLocker(),
		affiliate.WithClock(clock),
	)

	router := billingmod.Router(billingmod.RouterOptions{
		Subscriptions:   subs,
		Renewals:        renewals,
		Affiliates:      affiliates,
		ReferralBaseURL: "https://shop.test",
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, subs: subs, now: now}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Post(e.server.URL+path, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRouter_RenewalFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	tenantID := uuid.New()

	sub, err := env.subs.Subscribe(context.Background(), tenantID, "growth")
	require.NoError(t, err)

	resp, body := env.postJSON(t, "/renew", map[string]any{
		"subscriptionId": sub.ID,
		"email":          "merchant@example.com",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tranID, _ := body["transactionId"].(string)
	require.NotEmpty(t, tranID)
	assert.Contains(t, body["checkoutUrl"], tranID)

	// A second renewal while the first awaits payment is a conflict.
	resp, _ = env.postJSON(t, "/renew", map[string]any{"subscriptionId": sub.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The gateway confirms over IPN.
	resp, body = env.postForm(t, "/ipn", url.Values{
		"status":  {"VALID"},
		"tran_id": {tranID},
		"val_id":  {"VAL-001"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paid", body["result"])

	// Duplicate IPN delivery settles nothing.
	resp, body = env.postForm(t, "/ipn", url.Values{
		"status":  {"VALID"},
		"tran_id": {tranID},
		"val_id":  {"VAL-001"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "already-processed", body["result"])

	// The subscription now carries the paid period.
	resp, body = getJSON(t, env.server.URL+"/subscription/"+tenantID.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status, _ := body["status"].(map[string]any)
	require.NotNil(t, status)
	assert.Equal(t, string(subscription.StatusActive), status["Status"])
	assert.Equal(t, float64(30), status["DaysRemaining"])

	// Unknown transactions land nowhere.
	resp, _ = env.postForm(t, "/ipn", url.Values{
		"status":  {"VALID"},
		"tran_id": {"TXN-UNKNOWN"},
		"val_id":  {"VAL-002"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_AffiliateFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	userID := uuid.New()

	resp, body := env.postJSON(t, "/affiliates/", map[string]any{
		"userId": userID,
		"code":   "SUMMER10",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	affiliateID, _ := body["id"].(string)
	require.NotEmpty(t, affiliateID)

	// Storefront reports a referred order.
	resp, body = env.postJSON(t, "/webhooks/orders/placed", map[string]any{
		"orderId":    "ORD-1001",
		"promoCode":  "SUMMER10",
		"orderTotal": 10000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, string(affiliate.CommissionPending), body["status"])
	assert.Equal(t, float64(300), body["amount"]) // 3% entry tier

	// Delivery settles the commission.
	resp, body = env.postJSON(t, "/webhooks/orders/delivered", map[string]any{
		"orderId": "ORD-1001",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["applied"])

	// Payouts below the program minimum are rejected up front.
	resp, _ = env.postJSON(t, "/affiliates/withdrawals/", map[string]any{
		"affiliateId": affiliateID,
		"amount":      100,
		"method":      "bank",
		"account":     "0012345",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Duplicate order webhooks conflict instead of double-crediting.
	resp, _ = env.postJSON(t, "/webhooks/orders/placed", map[string]any{
		"orderId":    "ORD-1001",
		"promoCode":  "SUMMER10",
		"orderTotal": 10000,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The referral QR endpoint serves a PNG.
	qrResp, err := http.Get(fmt.Sprintf("%s/affiliates/%s/qr", env.server.URL, affiliateID))
	require.NoError(t, err)
	defer qrResp.Body.Close()
	assert.Equal(t, http.StatusOK, qrResp.StatusCode)
	assert.Equal(t, "image/png", qrResp.Header.Get("Content-Type"))
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}
