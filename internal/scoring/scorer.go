package scoring

import (
	"context"
	"errors"
)

// DefaultLowQualityThreshold is the score below which answers are flagged
// for attention.
const DefaultLowQualityThreshold = 2.0

// ErrScoringUnavailable marks failures where no verdict was reached: network
// errors, timeouts, malformed model output. Callers keep whatever score was
// stored before.
var ErrScoringUnavailable = errors.New("scoring unavailable")

// Result is one scoring outcome on the fixed 0-5 scale.
type Result struct {
	Score      float64 `json:"score"`
	Rationale  string  `json:"rationale"`
	LowQuality bool    `json:"low_quality"`
}

// Scorer grades an assembled context block. Implementations must be safe for
// concurrent use. A nil Result with a nil error means there was nothing to
// score and any stored score should be cleared. Errors wrap
// ErrScoringUnavailable.
type Scorer interface {
	Score(ctx context.Context, block ContextBlock) (*Result, error)
}

// clampScore forces a raw model score onto the 0-5 scale.
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 5 {
		return 5
	}
	return s
}
