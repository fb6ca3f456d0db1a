// Package agent defines the boundary to the downstream autonomous agent.
// The agent's reasoning, tool execution and response delivery are external
// to this system — the pipeline only invokes it and observes the outcome.
package agent

import "context"

// Request carries one enriched event to the agent.
type Request struct {
	RunID     string `json:"run_id"`
	AgentID   string `json:"agent_id"`
	EventType string `json:"event_type"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Prompt    string `json:"prompt"` // structural context block, see chatctx.Context.Render
}

// Invoker submits a request to the agent and waits for completion. Any
// response the agent produces is delivered out-of-band by the agent
// itself; the pipeline only cares whether the invocation succeeded.
//
// Implementations mark non-retryable failures with guard.Permanent so the
// retry supervisor does not burn attempts on them.
type Invoker interface {
	Invoke(ctx context.Context, req Request) error
}
