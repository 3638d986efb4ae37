package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/internal/providers/mcp"
)

const managePlanSchema = `
{
  "type": "object",
  "properties": {
    "action": {
      "type": "string",
      "enum": ["set", "complete", "show"],
      "description": "set replaces the plan, complete marks a step done, show lists the current plan"
    },
    "steps": {
      "type": "array",
      "items": { "type": "string" },
      "description": "Step descriptions. Required for 'set'."
    },
    "step": {
      "type": "integer",
      "description": "1-based index of the step to mark done. Required for 'complete'."
    }
  },
  "required": ["action"]
}
`

// Plan is the session-scoped task plan tool. It reads and writes plan
// state through the session reference on the tool context, so each
// session keeps its own plan.
type Plan struct{}

func NewPlan() *Plan {
	return &Plan{}
}

func (p *Plan) Register(m *mcp.Manager) {
	m.RegisterNativeTool("manage_plan", "Manage the step-by-step plan for the current conversation",
		json.RawMessage(managePlanSchema), p.ManagePlan)
}

func (p *Plan) ManagePlan(ctx context.Context, args json.RawMessage, tc core.ToolContext) (string, error) {
	if tc.Session == nil {
		return "", fmt.Errorf("no session attached to this tool call")
	}

	var input struct {
		Action string   `json:"action"`
		Steps  []string `json:"steps"`
		Step   int      `json:"step"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	switch input.Action {
	case "set":
		if len(input.Steps) == 0 {
			return "", fmt.Errorf("steps are required for set")
		}
		steps := make([]core.PlanStep, len(input.Steps))
		for i, desc := range input.Steps {
			steps[i] = core.PlanStep{Description: desc}
		}
		tc.Session.SetPlan(steps)
		return fmt.Sprintf("Plan set with %d steps", len(steps)), nil

	case "complete":
		steps := tc.Session.Plan()
		if input.Step < 1 || input.Step > len(steps) {
			return "", fmt.Errorf("step %d out of range, plan has %d steps", input.Step, len(steps))
		}
		steps[input.Step-1].Done = true
		tc.Session.SetPlan(steps)
		return fmt.Sprintf("Step %d marked done", input.Step), nil

	case "show":
		return renderPlan(tc.Session.Plan()), nil

	default:
		return "", fmt.Errorf("unknown action: %s", input.Action)
	}
}

func renderPlan(steps []core.PlanStep) string {
	if len(steps) == 0 {
		return "No plan set."
	}
	var sb strings.Builder
	for i, s := range steps {
		mark := " "
		if s.Done {
			mark = "x"
		}
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, mark, s.Description)
	}
	return sb.String()
}
