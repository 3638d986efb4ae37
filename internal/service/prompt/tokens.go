package prompt

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sandevgo/chorus/internal/core"
)

var (
	tk     *tiktoken.Tiktoken
	tkOnce sync.Once
)

func getTokenizer() *tiktoken.Tiktoken {
	tkOnce.Do(func() {
		var err error
		tk, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			panic("failed to load tiktoken: " + err.Error())
		}
	})
	return tk
}

// EstimateTokens approximates the prompt cost of a message list with a
// cl100k_base count over roles and content. Tool payloads are ignored;
// this is an observability figure, not a hard budget.
func EstimateTokens(messages []core.Message) int {
	enc := getTokenizer()
	total := 0
	for _, m := range messages {
		total += len(enc.Encode(m.Role, nil, nil))
		if m.Content != "" {
			total += len(enc.Encode(m.Content, nil, nil))
		}
	}
	return total
}
