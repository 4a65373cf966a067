package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// promoQuoteRequest is sent to the promo sidecar, which owns campaign rules
// and per-customer eligibility.
type promoQuoteRequest struct {
	CustomerID *string         `json:"customer_id"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// promoQuoteResponse carries the discount the sidecar granted for this basket.
type promoQuoteResponse struct {
	Discount decimal.Decimal `json:"discount"`
	Campaign string          `json:"campaign"`
}

// PromoClient asks the promo sidecar for a discount quote. Calls go through
// a circuit breaker: when the sidecar is down the checkout path fast-fails
// and the caller degrades to zero discount instead of stalling.
type PromoClient struct {
	sidecarURL string
	httpClient *http.Client
	breaker    *CircuitBreaker
}

func NewPromoClient(sidecarURL string, breaker *CircuitBreaker) *PromoClient {
	return &PromoClient{
		sidecarURL: sidecarURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		breaker:    breaker,
	}
}

// BreakerState exposes the circuit state for the health endpoint.
func (c *PromoClient) BreakerState() string {
	return c.breaker.State().String()
}

// Quote returns the promo discount for a basket. Satisfies the checkout
// services' DiscountEngine dependency.
func (c *PromoClient) Quote(ctx context.Context, customerID *uuid.UUID, subtotal decimal.Decimal) (decimal.Decimal, error) {
	var cid *string
	if customerID != nil {
		s := customerID.String()
		cid = &s
	}

	var result promoQuoteResponse
	err := c.breaker.Execute(func() error {
		body, err := json.Marshal(promoQuoteRequest{CustomerID: cid, Subtotal: subtotal})
		if err != nil {
			return fmt.Errorf("promo: marshal payload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sidecarURL+"/quote", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("promo: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("promo: sidecar unreachable: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("promo: sidecar returned %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return result.Discount, nil
}
