// Package discount provisions discount rules on the storefront's
// pricing service ahead of campaign dispatch.
package discount

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	clientTimeout         = 15 * time.Second
	dialTimeout           = 5 * time.Second
	responseHeaderTimeout = 10 * time.Second
	maxResponseSize       = 1 << 20
)

// ErrNotConfigured is returned when discount provisioning is attempted
// without a configured service URL.
var ErrNotConfigured = errors.New("discount service not configured")

// Client provisions discount rules over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a discount service client. An empty baseURL yields
// a client whose calls return ErrNotConfigured; static-code campaigns
// never touch it.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: clientTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   dialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ResponseHeaderTimeout: responseHeaderTimeout,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

type provisionRequest struct {
	Code       string `json:"code"`
	PercentOff int    `json:"percent_off"`
	CampaignID string `json:"campaign_id"`
}

type provisionResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// ProvisionRule creates (or confirms) one percent-off rule and returns
// the code recipients will redeem. Idempotent on the service side: the
// same campaign and percentage always yield the same code.
func (c *Client) ProvisionRule(ctx context.Context, campaignID string, percent int) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}
	if percent < 1 || percent > 100 {
		return "", fmt.Errorf("percent out of range: %d", percent)
	}

	code := fmt.Sprintf("BRINE%d", percent)
	payload, err := json.Marshal(provisionRequest{
		Code:       code,
		PercentOff: percent,
		CampaignID: campaignID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal provision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/discount-rules", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build provision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", "Brinecast/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("discount service request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read discount service response: %w", err)
	}

	var decoded provisionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode discount service response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decoded.Error != "" {
			return "", fmt.Errorf("discount service rejected rule: %s", decoded.Error)
		}
		return "", fmt.Errorf("discount service returned status %d", resp.StatusCode)
	}

	if decoded.Code != "" {
		code = decoded.Code
	}
	return code, nil
}
