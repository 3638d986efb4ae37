package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sandevgo/chorus/internal/core"
)

type fakeSessionRef struct {
	steps []core.PlanStep
}

func (f *fakeSessionRef) Plan() []core.PlanStep {
	out := make([]core.PlanStep, len(f.steps))
	copy(out, f.steps)
	return out
}

func (f *fakeSessionRef) SetPlan(steps []core.PlanStep) { f.steps = steps }

func TestManagePlanLifecycle(t *testing.T) {
	p := NewPlan()
	ref := &fakeSessionRef{}
	tc := core.ToolContext{SessionID: "s1", Session: ref}
	ctx := context.Background()

	out, err := p.ManagePlan(ctx, json.RawMessage(`{"action":"set","steps":["research","write"]}`), tc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2 steps") {
		t.Errorf("set output = %q", out)
	}

	if _, err := p.ManagePlan(ctx, json.RawMessage(`{"action":"complete","step":1}`), tc); err != nil {
		t.Fatal(err)
	}
	if !ref.steps[0].Done || ref.steps[1].Done {
		t.Errorf("plan state after complete = %+v", ref.steps)
	}

	out, err = p.ManagePlan(ctx, json.RawMessage(`{"action":"show"}`), tc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[x] research") || !strings.Contains(out, "[ ] write") {
		t.Errorf("show output = %q", out)
	}
}

func TestManagePlanErrors(t *testing.T) {
	p := NewPlan()
	ctx := context.Background()

	if _, err := p.ManagePlan(ctx, json.RawMessage(`{"action":"show"}`), core.ToolContext{}); err == nil {
		t.Error("missing session must be an error")
	}

	tc := core.ToolContext{Session: &fakeSessionRef{}}
	if _, err := p.ManagePlan(ctx, json.RawMessage(`{"action":"complete","step":3}`), tc); err == nil {
		t.Error("out-of-range step must be an error")
	}
	if _, err := p.ManagePlan(ctx, json.RawMessage(`{"action":"set"}`), tc); err == nil {
		t.Error("set without steps must be an error")
	}
}
