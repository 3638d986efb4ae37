// Package agent drives the model/tool loop for a single turn: call the
// provider, execute any requested tools, feed the results back, repeat
// until the model answers in plain text.
package agent

import (
	"context"
	"fmt"

	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/pkg/log"
)

// maxIterations bounds the tool loop so a model that keeps requesting
// tools cannot spin a turn forever.
const maxIterations = 10

type Agent struct {
	tools core.ToolRunner
}

func NewAgent(tools core.ToolRunner) *Agent {
	return &Agent{tools: tools}
}

// Run executes the loop against the given provider, starting from the
// fully assembled prompt. It returns every message produced during the
// turn (assistant messages including their tool calls, and the matching
// tool results) followed by the final assistant text. The input slice is
// never mutated.
func (a *Agent) Run(ctx context.Context, provider core.AIProvider, prompt []core.Message, tc core.ToolContext) ([]core.Message, string, error) {
	logger := log.FromCtx(ctx)

	tools, err := a.tools.GetTools(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("list tools: %w", err)
	}

	messages := make([]core.Message, len(prompt), len(prompt)+4)
	copy(messages, prompt)

	var produced []core.Message
	var finalContent string

	for i := 0; i < maxIterations; i++ {
		response, err := provider.Chat(ctx, messages, tools)
		if err != nil {
			return nil, "", fmt.Errorf("chat: %w", err)
		}

		messages = append(messages, response)
		produced = append(produced, response)
		if response.Content != "" {
			finalContent = response.Content
		}

		if len(response.ToolCalls) == 0 {
			return produced, finalContent, nil
		}

		results := a.execute(ctx, response.ToolCalls, tc)
		messages = append(messages, results...)
		produced = append(produced, results...)
	}

	logger.Warn().Int("iterations", maxIterations).Msg("tool loop cut off at iteration limit")
	return produced, finalContent, nil
}

// execute runs each requested tool and wraps the outcome as a tool
// message echoing the call id, so the provider can match results to
// requests. Tool errors become tool output rather than turn failures;
// the model decides how to recover.
func (a *Agent) execute(ctx context.Context, calls []core.ToolCall, tc core.ToolContext) []core.Message {
	logger := log.FromCtx(ctx)

	results := make([]core.Message, 0, len(calls))
	for _, call := range calls {
		logger.Info().
			Str("tool", call.Function.Name).
			Str("session_id", tc.SessionID).
			Msg("executing tool")

		out, err := a.tools.CallTool(ctx, call.Function.Name, call.Function.Arguments, tc)
		if err != nil {
			logger.Warn().Err(err).Str("tool", call.Function.Name).Msg("tool call failed")
			out = fmt.Sprintf("Error: %v", err)
		}

		results = append(results, core.Message{
			Role:       core.RoleTool,
			Content:    truncateResult(out),
			ToolCallID: call.ID,
		})
	}
	return results
}

// truncateResult keeps oversized tool output from flooding the context:
// head and tail survive, the middle is elided.
func truncateResult(input string) string {
	const maxLen = 2000
	if len(input) <= maxLen {
		return input
	}

	head := input[:500]
	tail := input[len(input)-(maxLen-500):]
	return fmt.Sprintf("%s\n\n... [TRUNCATED %d bytes] ...\n\n%s", head, len(input)-maxLen, tail)
}
