package profilestore

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a profile service client
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new profile service client
func NewClient(config *ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// NewClientWithHTTPClient creates a client with a custom HTTP client
func NewClientWithHTTPClient(config *ClientConfig, httpClient *http.Client) *Client {
	return &Client{
		config:     config,
		httpClient: httpClient,
	}
}

// computeHMAC computes the HMAC-SHA256 signature for the request body
func (c *Client) computeHMAC(body []byte) string {
	h := hmac.New(sha256.New, []byte(c.config.APISecret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest performs a signed POST and decodes the envelope into result.
// Transport failures are retried; protocol errors are not.
func (c *Client) doRequest(ctx context.Context, endpoint string, reqBody interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	signature := c.computeHMAC(bodyBytes)
	url := c.config.BaseURL + endpoint

	retryCount := c.config.RetryCount
	if retryCount == 0 {
		retryCount = 1
	}

	var resp *http.Response
	var lastErr error
	for i := 0; i < retryCount; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.config.APIKey)
		req.Header.Set("x-api-hmac", signature)

		resp, err = c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		break
	}

	if resp == nil {
		return fmt.Errorf("request failed after %d retries: %w", retryCount, lastErr)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}

	return nil
}

func call[T any](ctx context.Context, c *Client, endpoint string, req interface{}) (*T, error) {
	var resp Response[T]
	if err := c.doRequest(ctx, endpoint, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("empty response from %s", endpoint)
	}
	return resp.Result, nil
}

// RemoveCoins takes coins from a player. Removed is false when the balance
// is too low.
func (c *Client) RemoveCoins(ctx context.Context, req *CoinsRequest) (*RemoveCoinsResult, error) {
	return call[RemoveCoinsResult](ctx, c, "/remove-coins", req)
}

// AddCoins credits a player
func (c *Client) AddCoins(ctx context.Context, req *CoinsRequest) (*AddCoinsResult, error) {
	return call[AddCoinsResult](ctx, c, "/add-coins", req)
}

// GetBalance retrieves the player's current balance
func (c *Client) GetBalance(ctx context.Context, playerID string) (*BalanceResult, error) {
	return call[BalanceResult](ctx, c, "/balance", &BalanceRequest{PlayerID: playerID})
}

// RecordGameResult appends a finished round to the player's game statistics
func (c *Client) RecordGameResult(ctx context.Context, req *GameResultRequest) (*GameResultResult, error) {
	return call[GameResultResult](ctx, c, "/game-results", req)
}
