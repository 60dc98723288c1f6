package scoring

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	answerTagRegex = regexp.MustCompile(`(?i)</?\s*answer\b[^>]*>`)
	systemTagRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const graderSystemPrompt = `You are a strict grader. Output ONLY JSON: {"score": number, "rationale": string}. ` +
	`The score MUST be a real number in [0,5]. ` +
	`Use 0 for off-topic/empty/contradictory answers; ` +
	`1 for poor; 3 for partial; 4 for good; 5 for perfect and fully aligned. ` +
	`If the answer does not meet the guideline at all, you MUST use 0 or 1.`

func buildScoringPrompt(block ContextBlock) string {
	var sb strings.Builder
	sb.WriteString("You are an impartial grader. Score the answer strictly against the provided guideline.\n\n")
	sb.WriteString("QUESTION:\n" + block.QuestionText + "\n\n")
	sb.WriteString("GUIDELINE:\n" + block.Guideline + "\n\n")

	if len(block.References) > 0 {
		sb.WriteString("The answer mentions other questions from the same survey. Their current answers, for context:\n\n")
		for _, ref := range block.References {
			sb.WriteString(fmt.Sprintf("REFERENCED QUESTION %d:\n%s\n", ref.Order+1, ref.QuestionText))
			sb.WriteString("REFERENCED ANSWER:\n" + sanitizeAnswer(ref.AnswerText) + "\n\n")
		}
	}

	sb.WriteString("ANSWER:\n" + sanitizeAnswer(block.AnswerText) + "\n\n")
	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"score": <number 0 to 5>, "rationale": "<1-3 concise sentences referencing the guideline>"}`)
	sb.WriteString("\n")

	return sb.String()
}

func sanitizeAnswer(answer string) string {
	answer = answerTagRegex.ReplaceAllString(answer, "")
	answer = systemTagRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if utf8.RuneCountInString(answer) > 8000 {
		runes := []rune(answer)
		runes = runes[:8000]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
