package refs

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	absolutePattern = regexp.MustCompile(`(?i)\bq(?:ues(?:tion)?)?\s*(\d+)\b`)
	ordinalPattern  = regexp.MustCompile(`(?i)\b(second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth)\s+question\b`)
	prevPattern     = regexp.MustCompile(`(?i)\b(?:prev(?:ious)?|prior|earlier|above)\b`)
	nextPattern     = regexp.MustCompile(`(?i)\b(?:next|following|below|later)\b`)
	firstPattern    = regexp.MustCompile(`(?i)\b(?:the\s+)?first\s+question\b`)
	lastPattern     = regexp.MustCompile(`(?i)\b(?:the\s+)?last\s+question\b`)
)

var ordinals = map[string]int{
	"second":  2,
	"third":   3,
	"fourth":  4,
	"fifth":   5,
	"sixth":   6,
	"seventh": 7,
	"eighth":  8,
	"ninth":   9,
	"tenth":   10,
}

// Resolution is the outcome of scanning an answer for question references.
// Resolved holds zero-based question orders, ascending and de-duplicated.
// Unresolved holds one warning per reference that matched no question.
type Resolution struct {
	Resolved   []int
	Unresolved []string
}

// Resolver detects mentions of other questions in free-form answer text.
// Absolute mentions ("question 2", "Q2", "ques 2") and ordinal mentions
// ("third question") use the one-based numbering respondents see. Relative
// mentions ("previous", "above", "next", "below") resolve against the order
// of the question being answered.
type Resolver interface {
	Resolve(answerText string, currentOrder int, orders []int) Resolution
}

// New returns the default rule-based resolver.
func New() Resolver {
	return ruleResolver{}
}

type ruleResolver struct{}

func (ruleResolver) Resolve(answerText string, currentOrder int, orders []int) Resolution {
	var res Resolution
	text := strings.TrimSpace(answerText)
	if text == "" || len(orders) == 0 {
		return res
	}

	exists := make(map[int]bool, len(orders))
	minOrder, maxOrder := orders[0], orders[0]
	for _, o := range orders {
		exists[o] = true
		if o < minOrder {
			minOrder = o
		}
		if o > maxOrder {
			maxOrder = o
		}
	}

	resolved := make(map[int]bool)
	var warnings []string
	seen := make(map[string]bool)
	warn := func(msg string) {
		if !seen[msg] {
			seen[msg] = true
			warnings = append(warnings, msg)
		}
	}
	add := func(order int, literal string) {
		if exists[order] {
			resolved[order] = true
			return
		}
		warn(fmt.Sprintf("%q does not match any question in this survey", literal))
	}

	for _, m := range absolutePattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			warn(fmt.Sprintf("%q does not match any question in this survey", m[0]))
			continue
		}
		add(n-1, m[0])
	}

	for _, m := range ordinalPattern.FindAllStringSubmatch(text, -1) {
		add(ordinals[strings.ToLower(m[1])]-1, m[0])
	}

	if prevPattern.MatchString(text) {
		if exists[currentOrder-1] {
			resolved[currentOrder-1] = true
		} else {
			warn("no previous question")
		}
	}

	if nextPattern.MatchString(text) {
		if exists[currentOrder+1] {
			resolved[currentOrder+1] = true
		} else {
			warn("no next question")
		}
	}

	if firstPattern.MatchString(text) {
		resolved[minOrder] = true
	}
	if lastPattern.MatchString(text) {
		resolved[maxOrder] = true
	}

	for o := range resolved {
		res.Resolved = append(res.Resolved, o)
	}
	sort.Ints(res.Resolved)
	res.Unresolved = warnings
	return res
}
