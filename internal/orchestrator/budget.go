package orchestrator

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tiktoken-go/tokenizer"

	"github.com/nakad-pixel/Mcpclient/internal/llm"
)

// perMessageOverhead approximates the framing tokens chat APIs add per message.
const perMessageOverhead = 4

// Budget trims conversation history to a token limit, counting with the cl100k
// encoding. Counts are an estimate for models using other encodings.
type Budget struct {
	limit int
	codec tokenizer.Codec
}

// NewBudget creates a budget of limit tokens. A limit of zero or less disables trimming.
func NewBudget(limit int) (*Budget, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &Budget{limit: limit, codec: codec}, nil
}

// Count returns the number of tokens in text.
func (b *Budget) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := b.codec.Encode(text)
	if err != nil {
		return len(text)/4 + 1
	}
	return len(ids)
}

// Cost returns the estimated tokens a message occupies.
func (b *Budget) Cost(m llm.Message) int {
	n := perMessageOverhead + b.Count(m.Content)
	for _, tc := range m.ToolCalls {
		args, _ := json.Marshal(tc.Arguments)
		n += b.Count(tc.Name) + b.Count(string(args))
	}
	return n
}

// Trim drops the oldest history until it fits the limit together with reserved
// tokens. Messages from keepFrom on are never dropped. An assistant message is
// dropped together with the tool messages answering it.
func (b *Budget) Trim(history []llm.Message, keepFrom, reserved int) []llm.Message {
	if b == nil || b.limit <= 0 {
		return history
	}

	// Units are runs that must go together: an assistant message with its tool answers.
	type unit struct{ start, end, cost int }
	var units []unit
	total := reserved
	for i := 0; i < len(history); {
		j := i + 1
		if history[i].Role == llm.RoleAssistant && len(history[i].ToolCalls) > 0 {
			for j < len(history) && history[j].Role == llm.RoleTool {
				j++
			}
		}
		cost := 0
		for k := i; k < j; k++ {
			cost += b.Cost(history[k])
		}
		units = append(units, unit{start: i, end: j, cost: cost})
		total += cost
		i = j
	}

	drop := 0
	for _, u := range units {
		if total <= b.limit || u.end > keepFrom {
			break
		}
		total -= u.cost
		drop = u.end
	}
	// Never start on an orphan tool message.
	for drop < len(history) && drop < keepFrom && history[drop].Role == llm.RoleTool {
		drop++
	}
	return history[drop:]
}
