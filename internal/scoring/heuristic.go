package scoring

import (
	"context"
	"strings"
	"unicode/utf8"
)

const heuristicRationale = "Heuristic fallback based on answer length (no LLM scoring)."

// fullScoreLength is the answer length, in runes, that earns the maximum
// heuristic score.
const fullScoreLength = 200

// HeuristicScorer grades by answer length alone. It stands in when no model
// endpoint is configured. Like the model-backed scorer, it declines to score
// empty answers and questions without a guideline.
type HeuristicScorer struct {
	threshold float64
}

func NewHeuristicScorer(threshold float64) *HeuristicScorer {
	return &HeuristicScorer{threshold: threshold}
}

func (s *HeuristicScorer) Score(_ context.Context, block ContextBlock) (*Result, error) {
	text := strings.TrimSpace(block.AnswerText)
	if text == "" || strings.TrimSpace(block.Guideline) == "" {
		return nil, nil
	}

	frac := float64(utf8.RuneCountInString(text)) / fullScoreLength
	if frac > 1 {
		frac = 1
	}
	score := frac * 5
	return &Result{Score: score, Rationale: heuristicRationale, LowQuality: score < s.threshold}, nil
}
