// Package payment integrates the external card-payment gateway: opening
// payment sessions, verifying transactions server-to-server, and reconciling
// the gateway's asynchronous webhook notifications.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Session is an opened payment session. The authorization URL is where the
// customer completes the card payment.
type Session struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// InitializeRequest is the input for opening a payment session.
type InitializeRequest struct {
	Email       string
	Amount      decimal.Decimal // major units; converted to minor units on the wire
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

// Verification is the gateway's authoritative answer about a transaction.
type Verification struct {
	Reference string
	Paid      bool
}

// Gateway is the outbound contract with the payment provider.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*Session, error)
	Verify(ctx context.Context, reference string) (*Verification, error)
}

// Client is an HTTP Gateway implementation for a Paystack-style API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

var _ Gateway = (*Client)(nil)

// NewClient creates a gateway client for the given API base URL and secret key.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		secretKey:  secretKey,
	}
}

// Initialize opens a payment session. The amount is sent in minor currency
// units, rounded half-up from the decimal major-unit amount.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*Session, error) {
	payload := map[string]any{
		"email":        req.Email,
		"amount":       req.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		"reference":    req.Reference,
		"callback_url": req.CallbackURL,
		"metadata":     req.Metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal initialize request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "initialize transaction")
	}
	defer resp.Body.Close()

	var res struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res); err != nil {
		return nil, errors.Wrap(err, "decode initialize response")
	}
	if resp.StatusCode != http.StatusOK || !res.Status {
		return nil, errors.Errorf("gateway rejected initialization: %s", res.Message)
	}

	return &Session{
		AuthorizationURL: res.Data.AuthorizationURL,
		AccessCode:       res.Data.AccessCode,
		Reference:        res.Data.Reference,
	}, nil
}

// Verify asks the gateway directly whether the referenced transaction
// succeeded. The webhook payload alone is never trusted as proof of payment.
func (c *Client) Verify(ctx context.Context, reference string) (*Verification, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "verify transaction")
	}
	defer resp.Body.Close()

	var res struct {
		Status bool `json:"status"`
		Data   struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res); err != nil {
		return nil, errors.Wrap(err, "decode verify response")
	}

	return &Verification{
		Reference: reference,
		Paid:      res.Status && res.Data.Status == "success",
	}, nil
}
