package ledger

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/agentflow/internal/core"
	"github.com/BaSui01/agentflow/types"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func cl100kEncoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	return enc, encErr
}

// EstimateCost approximates the prompt-side cost of a request before
// dispatch, for the admission pre-check (spec.md §4.4) when the caller
// has a sharper figure than DefaultEstimatedCost available — i.e. an
// explicit provider whose pricing is already known. Generalized from
// llm/tokenizer.TiktokenTokenizer.CountMessages's per-message overhead
// accounting onto a flat cost figure. Falls back to DefaultEstimatedCost
// if the encoding can't be initialized or pricing is unset, since an
// estimate is advisory, never a hard requirement for admission.
func EstimateCost(messages []types.Message, pricing core.Pricing) float64 {
	if pricing.InputTokenCost <= 0 {
		return DefaultEstimatedCost
	}
	tk, err := cl100kEncoding()
	if err != nil {
		return DefaultEstimatedCost
	}
	tokens := 3 // conversation-end overhead
	for _, m := range messages {
		tokens += 4 // per-message <|start|>role\n ... <|end|>\n overhead
		tokens += len(tk.Encode(m.Content, nil, nil))
		tokens += len(tk.Encode(string(m.Role), nil, nil))
	}
	return float64(tokens) / 1e6 * pricing.InputTokenCost
}
