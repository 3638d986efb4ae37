package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/internal/providers/mcp"
)

const currentTimeSchema = `
{
  "type": "object",
  "properties": {},
  "additionalProperties": false
}
`

type Clock struct {
	now func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

func (c *Clock) Register(m *mcp.Manager) {
	m.RegisterNativeTool("current_time", "Get the current date and time",
		json.RawMessage(currentTimeSchema), c.CurrentTime)
}

func (c *Clock) CurrentTime(ctx context.Context, _ json.RawMessage, _ core.ToolContext) (string, error) {
	return c.now().Format("Monday, 2 January 2006 15:04:05 MST"), nil
}
