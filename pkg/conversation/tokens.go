package conversation

import (
	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/wilhg/daybook/pkg/adapters/llm"
)

// TokenEstimator estimates the token usage of a text.
type TokenEstimator func(text string) int

// RuneEstimator counts runes; it over-estimates for most scripts.
func RuneEstimator(text string) int { return len([]rune(text)) }

// NewTikTokenEstimator returns an estimator using the model's encoding, or
// cl100k_base for models tiktoken does not know.
func NewTikTokenEstimator(model string) (TokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// EstimateMessages sums the estimate over message contents and tool-call
// arguments.
func EstimateMessages(est TokenEstimator, msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		n += est(m.Content)
		for _, tc := range m.ToolCalls {
			n += est(tc.Name) + est(tc.Arguments)
		}
	}
	return n
}
