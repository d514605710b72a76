// Package mercadopago is a minimal client for the two Mercado Pago REST v1
// calls the credit store needs: creating a PIX payment and reading a
// payment's status. There is no official Go SDK worth pulling in for two
// endpoints, so this is a small typed wrapper over net/http.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.mercadopago.com"

// Client calls the Mercado Pago payments API with a fixed access token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New creates a Client with the given access token.
func New(token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
	}
}

// NewWithBaseURL creates a Client pointed at a custom API root (tests).
func NewWithBaseURL(token, baseURL string) *Client {
	c := New(token)
	c.baseURL = baseURL
	return c
}

// PaymentRequest is the body for creating a PIX payment.
type PaymentRequest struct {
	TransactionAmount float64 `json:"transaction_amount"` // in BRL, e.g. 2.50
	Description       string  `json:"description"`
	PaymentMethodID   string  `json:"payment_method_id"` // always "pix" here
	Payer             Payer   `json:"payer"`
	ExternalReference string  `json:"external_reference"`
}

type Payer struct {
	Email          string         `json:"email"`
	FirstName      string         `json:"first_name,omitempty"`
	Identification Identification `json:"identification"`
}

type Identification struct {
	Type   string `json:"type"` // "CPF"
	Number string `json:"number"`
}

// Payment is the provider's view of a payment — the subset of fields we use.
type Payment struct {
	ID                 int64               `json:"id"`
	Status             string              `json:"status"` // "pending", "approved", ...
	ExternalReference  string              `json:"external_reference"`
	PointOfInteraction *PointOfInteraction `json:"point_of_interaction,omitempty"`
}

type PointOfInteraction struct {
	TransactionData *TransactionData `json:"transaction_data,omitempty"`
}

// TransactionData carries the PIX QR code the client renders.
type TransactionData struct {
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
	TicketURL    string `json:"ticket_url"`
}

// CreatePayment creates a PIX payment.
//
// idempotencyKey is sent as X-Idempotency-Key so a retried request (network
// hiccup between us and the provider) cannot double-charge; we use our own
// payment record ID.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest, idempotencyKey string) (*Payment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: encoding payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mercadopago: building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", idempotencyKey)

	return c.do(httpReq)
}

// GetPayment reads a payment by Mercado Pago's ID (used by the webhook and
// the status poller).
func (c *Client) GetPayment(ctx context.Context, mpPaymentID string) (*Payment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/payments/"+mpPaymentID, nil)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) (*Payment, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("mercadopago: API error %d: %s", res.StatusCode, text)
	}

	var p Payment
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("mercadopago: decoding response: %w", err)
	}

	return &p, nil
}
