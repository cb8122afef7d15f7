package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle gateway.
type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY,required"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleGateway implements Gateway over Paddle's transaction API. Paddle
// prices from its own catalog, so InitiateRequest.PriceID must be set; the
// request amount is carried in custom data for audit only.
type PaddleGateway struct {
	client *paddle.SDK
	config PaddleConfig
}

// NewPaddleGateway creates a Paddle gateway adapter.
func NewPaddleGateway(config PaddleConfig) (*PaddleGateway, error) {
	if config.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleGateway{client: client, config: config}, nil
}

func (g *PaddleGateway) Initiate(ctx context.Context, req InitiateRequest) (*Session, error) {
	if req.PriceID == "" {
		return nil, fmt.Errorf("%w: paddle requires a catalog price id", ErrGatewayInvalidPayload)
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"tran_id":   req.TransactionID,
			"tenant_id": req.TenantID.String(),
			"amount":    fmt.Sprintf("%d", req.Amount.Amount),
			"currency":  req.Amount.Currency,
		},
	}
	if req.CustomerEmail != "" {
		transactionReq.CustomData["email"] = req.CustomerEmail
	}
	if req.Callbacks.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.Callbacks.SuccessURL),
		}
	}

	transaction, err := g.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}

	if transaction.Checkout == nil || transaction.Checkout.URL == nil {
		return nil, fmt.Errorf("%w: no checkout URL returned", ErrGatewayInvalidPayload)
	}

	return &Session{
		CheckoutURL: *transaction.Checkout.URL,
		SessionID:   transaction.ID,
		ExpiresAt:   time.Now().UTC().Add(24 * time.Hour),
	}, nil
}

// Validate fetches the transaction from Paddle. The validation id is the
// Paddle transaction id delivered with the webhook. Amount is left zero:
// Paddle priced the transaction from its own catalog, so there is no
// caller-side amount to cross-check.
func (g *PaddleGateway) Validate(ctx context.Context, validationID string) (*Validation, error) {
	if validationID == "" {
		return &Validation{Status: ValidationInvalid}, nil
	}

	transaction, err := g.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{
		TransactionID: validationID,
	})
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}

	v := &Validation{
		Status:        ValidationInvalid,
		TransactionID: validationID,
	}
	if tranID, ok := transaction.CustomData["tran_id"].(string); ok {
		v.TransactionID = tranID
	}
	switch transaction.Status {
	case paddle.TransactionStatusCompleted, paddle.TransactionStatusPaid:
		v.Status = ValidationValid
	}
	return v, nil
}

var _ Gateway = (*PaddleGateway)(nil)
