package core

import "time"

// ContextItem is a piece of retrieved information (a knowledge chunk or a
// semantically similar past message) injected into the prompt.
type ContextItem struct {
	ID        int64
	Content   string
	Type      string // "knowledge" or "message"
	Score     float32
	Source    string
	CreatedAt time.Time
}
