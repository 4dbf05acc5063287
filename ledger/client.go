package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// APIClient talks to a roomvibe-api server. It implements BalanceClient
// and DeductClient for Store.
type APIClient struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewAPIClient creates a balance client for the given server. token is the
// bearer token used for authentication.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SetToken replaces the bearer token, for example after a refresh.
func (c *APIClient) SetToken(token string) {
	c.token = token
}

// FetchBalance retrieves the current credit balance from the server.
func (c *APIClient) FetchBalance(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/credits/balance", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build balance request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch balance: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("balance request returned status %d", resp.StatusCode)
	}

	var body struct {
		Credits int `json:"credits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode balance response: %w", err)
	}

	return body.Credits, nil
}

// Deduct removes credits on the server and returns the balance after the
// deduction.
func (c *APIClient) Deduct(ctx context.Context, amount int, description, referenceID string) (int, error) {
	payload, err := json.Marshal(map[string]any{
		"amount":       amount,
		"description":  description,
		"reference_id": referenceID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode deduct request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/credits/deduct", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build deduct request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to deduct credits: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("deduct request returned status %d", resp.StatusCode)
	}

	var body struct {
		Credits int `json:"credits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode deduct response: %w", err)
	}

	return body.Credits, nil
}
