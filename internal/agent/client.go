package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tytohq/aurora/internal/guard"
)

// Client is an HTTP Invoker posting requests to an agent runtime endpoint.
type Client struct {
	baseURL string
	agentID string
	token   string
	client  *http.Client
}

// NewClient creates an HTTP agent client. The http.Client carries no
// timeout of its own — the per-call deadline comes from the caller's
// context so it stays under circuit/retry control.
func NewClient(baseURL, agentID, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		agentID: agentID,
		token:   token,
		client:  &http.Client{},
	}
}

// Invoke posts the request to the agent runtime and waits for completion.
func (c *Client) Invoke(ctx context.Context, req Request) error {
	if req.AgentID == "" {
		req.AgentID = c.agentID
	}

	body, err := json.Marshal(req)
	if err != nil {
		return guard.Permanent(fmt.Errorf("agent: encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/agents/"+req.AgentID+"/events", bytes.NewReader(body))
	if err != nil {
		return guard.Permanent(fmt.Errorf("agent: build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Transport errors (refused, reset, deadline) are retryable.
		return fmt.Errorf("agent: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("agent: status %d after %s: %s",
		resp.StatusCode, time.Since(start).Round(time.Millisecond), strings.TrimSpace(string(detail)))

	// Client-side errors won't get better on retry.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout {
		return guard.Permanent(err)
	}
	return err
}
