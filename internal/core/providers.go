package core

import "context"

type AIProvider interface {
	Chat(ctx context.Context, history []Message, tools []Tool) (Message, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension reports the provider-declared vector width. It must be
	// stable for the lifetime of the process.
	Dimension(ctx context.Context) (int, error)
}

// ToolContext carries the identity of the turn a tool call belongs to,
// so session-scoped tools (plan management) can read and write session
// state through the session reference.
type ToolContext struct {
	SessionID string
	UserID    string
	Session   SessionRef
}

// SessionRef is the narrow view of a live session that tools may touch.
type SessionRef interface {
	Plan() []PlanStep
	SetPlan(steps []PlanStep)
}

type ToolRunner interface {
	GetTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name, args string, tc ToolContext) (string, error)
}
