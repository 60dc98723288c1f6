package scoring

import (
	"context"
	"strconv"
	"strings"
)

// StubScorer grades deterministically without a model: full marks when every
// referenced answer is present, a middling score otherwise. Its rationale
// quotes the referenced answer texts as seen at scoring time. Meant for
// development and tests.
type StubScorer struct {
	threshold float64
}

func NewStubScorer(threshold float64) *StubScorer {
	return &StubScorer{threshold: threshold}
}

func (s *StubScorer) Score(_ context.Context, block ContextBlock) (*Result, error) {
	if strings.TrimSpace(block.AnswerText) == "" {
		return nil, nil
	}

	var quoted []string
	complete := true
	for _, ref := range block.References {
		if !ref.Answered {
			complete = false
			continue
		}
		quoted = append(quoted, strconv.Quote(ref.AnswerText))
	}

	score := 3.0
	rationale := "No cross-references; default stub score."
	switch {
	case len(block.References) > 0 && complete:
		score = 5.0
		rationale = "All referenced answers present: " + strings.Join(quoted, ", ")
	case len(block.References) > 0:
		rationale = "Some referenced answers are missing."
	}

	return &Result{Score: score, Rationale: rationale, LowQuality: score < s.threshold}, nil
}
