package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SSLCommerzConfig holds hosted-checkout credentials and endpoints for the
// SSLCommerz gateway. Keys and URLs are injected here rather than read from
// process globals inside the adapter.
type SSLCommerzConfig struct {
	StoreID       string        `env:"SSLCOMMERZ_STORE_ID,required"`
	StorePassword string        `env:"SSLCOMMERZ_STORE_PASSWORD,required"`
	Sandbox       bool          `env:"SSLCOMMERZ_SANDBOX" envDefault:"true"`
	HTTPTimeout   time.Duration `env:"SSLCOMMERZ_HTTP_TIMEOUT" envDefault:"15s"`

	// BaseURL overrides the derived endpoint; used in tests.
	BaseURL string `env:"SSLCOMMERZ_BASE_URL"`
}

func (c SSLCommerzConfig) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Sandbox {
		return "https://sandbox.sslcommerz.com"
	}
	return "https://securepay.sslcommerz.com"
}

// SSLCommerzGateway implements Gateway over the SSLCommerz hosted-payment
// API: a form-encoded session initiation and a server-side validation
// endpoint keyed by the val_id delivered with the IPN.
type SSLCommerzGateway struct {
	config SSLCommerzConfig
	client *http.Client
}

// NewSSLCommerzGateway creates the gateway adapter. Panics on missing
// credentials to fail fast during initialization.
func NewSSLCommerzGateway(cfg SSLCommerzConfig) *SSLCommerzGateway {
	if cfg.StoreID == "" || cfg.StorePassword == "" {
		panic("billing: sslcommerz store credentials are required")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SSLCommerzGateway{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *SSLCommerzGateway) Initiate(ctx context.Context, req InitiateRequest) (*Session, error) {
	form := url.Values{}
	form.Set("store_id", g.config.StoreID)
	form.Set("store_passwd", g.config.StorePassword)
	form.Set("tran_id", req.TransactionID)
	form.Set("total_amount", formatMajorUnits(req.Amount.Amount))
	form.Set("currency", req.Amount.Currency)
	form.Set("success_url", req.Callbacks.SuccessURL)
	form.Set("fail_url", req.Callbacks.FailURL)
	form.Set("cancel_url", req.Callbacks.CancelURL)
	form.Set("ipn_url", req.Callbacks.IPNURL)
	form.Set("cus_email", req.CustomerEmail)
	form.Set("value_a", req.TenantID.String())
	form.Set("product_category", "subscription")
	form.Set("shipping_method", "NO")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.config.baseURL()+"/gwprocess/v4/api.php", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: session init returned %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var body struct {
		Status         string `json:"status"`
		FailedReason   string `json:"failedreason"`
		SessionKey     string `json:"sessionkey"`
		GatewayPageURL string `json:"GatewayPageURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Join(ErrGatewayInvalidPayload, err)
	}

	if !strings.EqualFold(body.Status, "SUCCESS") || body.GatewayPageURL == "" {
		return nil, fmt.Errorf("%w: session rejected: %s", ErrGatewayInvalidPayload, body.FailedReason)
	}

	return &Session{
		CheckoutURL: body.GatewayPageURL,
		SessionID:   body.SessionKey,
		ExpiresAt:   time.Now().UTC().Add(30 * time.Minute),
	}, nil
}

func (g *SSLCommerzGateway) Validate(ctx context.Context, validationID string) (*Validation, error) {
	if validationID == "" {
		return &Validation{Status: ValidationInvalid}, nil
	}

	q := url.Values{}
	q.Set("val_id", validationID)
	q.Set("store_id", g.config.StoreID)
	q.Set("store_passwd", g.config.StorePassword)
	q.Set("format", "json")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.config.baseURL()+"/validator/api/validationserverAPI.php?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: validation returned %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var body struct {
		Status    string `json:"status"`
		TranID    string `json:"tran_id"`
		Amount    string `json:"amount"`
		Currency  string `json:"currency"`
		RiskLevel string `json:"risk_level"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Join(ErrGatewayInvalidPayload, err)
	}

	v := &Validation{
		Status:        ValidationInvalid,
		TransactionID: body.TranID,
		Currency:      body.Currency,
		RiskLevel:     body.RiskLevel,
	}
	// The validator reports VALID for fresh transactions and VALIDATED for
	// ones it already confirmed earlier; both settle the invoice.
	if strings.EqualFold(body.Status, "VALID") || strings.EqualFold(body.Status, "VALIDATED") {
		v.Status = ValidationValid
	}
	if amt, err := parseMajorUnits(body.Amount); err == nil {
		v.Amount = amt
	}
	return v, nil
}

// formatMajorUnits renders smallest-unit amounts as the decimal string the
// gateway expects ("1099" cents -> "10.99").
func formatMajorUnits(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

// parseMajorUnits converts the gateway's decimal string back to smallest
// units, rounding to the nearest cent.
func parseMajorUnits(s string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return int64(f*100 + 0.5), nil
}

var _ Gateway = (*SSLCommerzGateway)(nil)
