package scoring

import (
	"slices"

	"github.com/ndrozd/surveybot/internal/model"
)

// Dependents selects the answers that must be re-scored after the answer to
// one question changes: every answer whose stored references include the
// changed question's order, except the changed question's own answer. Stored
// references are taken as-is; no re-resolution happens here.
func Dependents(changedQuestionID int64, changedOrder int, answers []model.Answer) []model.Answer {
	var out []model.Answer
	for _, a := range answers {
		if a.QuestionID == changedQuestionID {
			continue
		}
		if slices.Contains(a.Refs, changedOrder) {
			out = append(out, a)
		}
	}
	return out
}
