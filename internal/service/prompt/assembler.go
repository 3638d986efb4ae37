// Package prompt builds the exact message list sent to a model for one
// turn: static persona prompt plus a freshly derived retrieved-context
// block, a bounded slice of recent history, and the new user message.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/pkg/log"
)

const (
	// DefaultHistoryCap is the history length (excluding the new user
	// message) above which truncation kicks in.
	DefaultHistoryCap = 12
	// DefaultHistoryKeep is how many trailing messages survive truncation,
	// on top of the system message.
	DefaultHistoryKeep = 10
)

type Assembler struct {
	historyCap  int
	historyKeep int
}

func NewAssembler(historyCap, historyKeep int) *Assembler {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	if historyKeep <= 0 {
		historyKeep = DefaultHistoryKeep
	}
	return &Assembler{historyCap: historyCap, historyKeep: historyKeep}
}

// Assemble merges the session history, the persona's static prompt, the
// retrieved memories and the new user input into one prompt. The stored
// history is never mutated: the system message content is composed from
// the static prompt and the per-turn dynamic block at send time, so the
// block never accumulates across turns.
//
// Truncation is deterministic and lossy: when the history (excluding the
// new user message) exceeds the cap, only the system message and the most
// recent historyKeep messages remain. Older turns stay reachable through
// retrieval and persistence, just not verbatim in the prompt.
func (a *Assembler) Assemble(ctx context.Context, history []core.Message, persona core.Persona, memories []core.ContextItem, userInput string) []core.Message {
	systemContent := persona.SystemPrompt
	if block := dynamicBlock(memories); block != "" {
		systemContent = systemContent + "\n\n" + block
	}
	sys := core.Message{Role: core.RoleSystem, Content: systemContent}

	var rest []core.Message
	if len(history) > 0 && history[0].Role == core.RoleSystem {
		rest = history[1:]
	} else {
		rest = history
	}

	total := len(rest) + 1 // system message included
	if total > a.historyCap && len(rest) > a.historyKeep {
		rest = rest[len(rest)-a.historyKeep:]
	}

	messages := make([]core.Message, 0, len(rest)+2)
	messages = append(messages, sys)
	messages = append(messages, rest...)
	messages = append(messages, core.Message{Role: core.RoleUser, Content: userInput})

	log.FromCtx(ctx).Debug().
		Int("messages", len(messages)).
		Int("tokens_estimate", EstimateTokens(messages)).
		Msg("assembled prompt")

	return messages
}

// dynamicBlock renders retrieved memories as human-readable lines. It is
// derived fresh each turn and never stored.
func dynamicBlock(memories []core.ContextItem) string {
	if len(memories) == 0 {
		return ""
	}

	var knowledge, past []string
	for _, m := range memories {
		line := fmt.Sprintf("- [%s] %s", m.CreatedAt.Format("2006-01-02 15:04"), m.Content)
		if m.Type == "knowledge" {
			knowledge = append(knowledge, line)
		} else {
			past = append(past, line)
		}
	}

	var sb strings.Builder
	if len(knowledge) > 0 {
		sb.WriteString("### Relevant knowledge\n")
		sb.WriteString(strings.Join(knowledge, "\n"))
	}
	if len(past) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("### Related past conversation\n")
		sb.WriteString(strings.Join(past, "\n"))
	}
	return sb.String()
}
