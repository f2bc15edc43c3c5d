package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Errors
var (
	ErrSessionNotFound = fmt.Errorf("relay session not found")
	ErrUnavailable     = fmt.Errorf("signaling service unavailable")
)

// Client wraps the signaling relay's HTTP API. The relay carries the actual
// game traffic; the coordinator only allocates and releases relay sessions.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new signaling relay client.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type allocateRequest struct {
	SessionID string  `json:"session_id"`
	RomID     *string `json:"rom_id,omitempty"`
}

type allocateResponse struct {
	Success bool   `json:"success"`
	Data    *relay `json:"data"`
	Error   string `json:"error,omitempty"`
}

type relay struct {
	ID string `json:"id"`
}

// Allocate asks the relay for a session slot and returns its handle.
func (c *Client) Allocate(ctx context.Context, sessionID string, romID *string) (string, error) {
	body, err := json.Marshal(allocateRequest{SessionID: sessionID, RomID: romID})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/relay/sessions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("signaling service returned status: %d", resp.StatusCode)
	}

	var allocResp allocateResponse
	if err := json.NewDecoder(resp.Body).Decode(&allocResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if !allocResp.Success || allocResp.Data == nil || allocResp.Data.ID == "" {
		return "", fmt.Errorf("signaling service error: %s", allocResp.Error)
	}

	return allocResp.Data.ID, nil
}

// Release frees a relay session. A relay that no longer knows the session is
// treated as already released.
func (c *Client) Release(ctx context.Context, externalID string) error {
	url := fmt.Sprintf("%s/api/v1/relay/sessions/%s", c.baseURL, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("signaling service returned status: %d", resp.StatusCode)
	}
}
