package scoring

import (
	"slices"
	"sort"
)

// NotAnsweredMarker stands in for a referenced answer that does not exist yet.
const NotAnsweredMarker = "(not answered yet)"

// Reference is one referenced question/answer pair inside a ContextBlock.
type Reference struct {
	Order        int
	QuestionText string
	AnswerText   string
	Answered     bool
}

// ContextBlock is everything a Scorer sees when grading one answer: the
// question, its guideline, the answer text itself, and the current text of
// every answer the respondent referred to.
type ContextBlock struct {
	QuestionText string
	Guideline    string
	AnswerText   string
	References   []Reference
}

// Assemble builds the scoring context for one answer. questions maps
// zero-based order to question text for the whole survey; answers maps order
// to the respondent's current answer text. References come out in ascending
// order no matter how the answer mentioned them. Orders without a matching
// question are skipped; questions without an answer carry NotAnsweredMarker.
func Assemble(questionText, guideline, answerText string, resolved []int, questions map[int]string, answers map[int]string) ContextBlock {
	block := ContextBlock{
		QuestionText: questionText,
		Guideline:    guideline,
		AnswerText:   answerText,
	}

	orders := slices.Clone(resolved)
	sort.Ints(orders)

	for i, o := range orders {
		if i > 0 && o == orders[i-1] {
			continue
		}
		qText, ok := questions[o]
		if !ok {
			continue
		}
		ref := Reference{Order: o, QuestionText: qText}
		if aText, answered := answers[o]; answered {
			ref.AnswerText = aText
			ref.Answered = true
		} else {
			ref.AnswerText = NotAnsweredMarker
		}
		block.References = append(block.References, ref)
	}
	return block
}
