// Package provider implements the SMS gateway client: outbound sends,
// phone number normalization and inbound webhook parsing.
package provider

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
	// ClientTimeout is the total request timeout.
	ClientTimeout = 30 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 10 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 15 * time.Second

	// maxResponseSize caps gateway response bodies.
	maxResponseSize = 1 << 20
)

// ErrMissingCredentials is returned when the client is constructed
// without an API key.
var ErrMissingCredentials = errors.New("provider API key not configured")

// Config holds gateway connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	FromNumber string
	ProfileID  string
}

// Client talks to the SMS gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a gateway client with webhook-grade timeouts.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingCredentials
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: ClientTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   DialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   TLSHandshakeTimeout,
				ResponseHeaderTimeout: ResponseHeaderTimeout,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}, nil
}

// SendResult is the outcome of one gateway send attempt.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	Status            string
	Cost              float64
	Carrier           string
	Error             string
}

type sendRequest struct {
	From               string `json:"from"`
	To                 string `json:"to"`
	Text               string `json:"text"`
	MessagingProfileID string `json:"messaging_profile_id,omitempty"`
}

type sendResponse struct {
	Data struct {
		ID   string `json:"id"`
		To   []struct {
			Status      string `json:"status"`
			Carrier     string `json:"carrier"`
			PhoneNumber string `json:"phone_number"`
		} `json:"to"`
		Cost struct {
			Amount string `json:"amount"`
		} `json:"cost"`
	} `json:"data"`
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Send submits one message to the gateway. Gateway-level failures are
// reported in the result, not as an error: only transport and decode
// problems return err. The caller applies its own failure policy.
func (c *Client) Send(ctx context.Context, dest, body string) (*SendResult, error) {
	payload, err := json.Marshal(sendRequest{
		From:               c.cfg.FromNumber,
		To:                 dest,
		Text:               body,
		MessagingProfileID: c.cfg.ProfileID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("User-Agent", "Brinecast/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	var decoded sendResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode gateway response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || len(decoded.Errors) > 0 {
		result := &SendResult{Success: false}
		if len(decoded.Errors) > 0 {
			result.Error = decoded.Errors[0].Title
			if decoded.Errors[0].Detail != "" {
				result.Error += ": " + decoded.Errors[0].Detail
			}
		} else {
			result.Error = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
		}
		return result, nil
	}

	result := &SendResult{
		Success:           true,
		ProviderMessageID: decoded.Data.ID,
		Status:            "sent",
	}
	if len(decoded.Data.To) > 0 {
		if s := decoded.Data.To[0].Status; s != "" {
			result.Status = s
		}
		result.Carrier = decoded.Data.To[0].Carrier
	}
	if decoded.Data.Cost.Amount != "" {
		// Best effort; a malformed cost is not worth failing the send.
		fmt.Sscanf(decoded.Data.Cost.Amount, "%f", &result.Cost)
	}

	return result, nil
}
