package scoring

import (
	"reflect"
	"testing"
)

func TestAssemble(t *testing.T) {
	questions := map[int]string{
		0: "What did the team ship?",
		1: "What broke?",
		2: "What comes next?",
	}
	answers := map[int]string{
		0: "The parser rewrite.",
		2: "The storage migration.",
	}

	block := Assemble("How do these relate?", "Mentions both.", "See Q1 and Q3.",
		[]int{2, 0, 2}, questions, answers)

	if block.QuestionText != "How do these relate?" {
		t.Errorf("unexpected question text %q", block.QuestionText)
	}
	if block.Guideline != "Mentions both." {
		t.Errorf("unexpected guideline %q", block.Guideline)
	}
	if block.AnswerText != "See Q1 and Q3." {
		t.Errorf("unexpected answer text %q", block.AnswerText)
	}

	want := []Reference{
		{Order: 0, QuestionText: "What did the team ship?", AnswerText: "The parser rewrite.", Answered: true},
		{Order: 2, QuestionText: "What comes next?", AnswerText: "The storage migration.", Answered: true},
	}
	if !reflect.DeepEqual(block.References, want) {
		t.Errorf("references mismatch:\n got %+v\nwant %+v", block.References, want)
	}
}

func TestAssembleUnansweredReference(t *testing.T) {
	questions := map[int]string{0: "First?", 1: "Second?"}

	block := Assemble("Second?", "", "As above.", []int{0}, questions, map[int]string{})

	if len(block.References) != 1 {
		t.Fatalf("expected 1 reference, got %d", len(block.References))
	}
	ref := block.References[0]
	if ref.Answered {
		t.Error("expected reference marked unanswered")
	}
	if ref.AnswerText != NotAnsweredMarker {
		t.Errorf("expected marker %q, got %q", NotAnsweredMarker, ref.AnswerText)
	}
}

func TestAssembleSkipsUnknownOrders(t *testing.T) {
	questions := map[int]string{0: "Only question?"}

	block := Assemble("Only question?", "", "See question 7.", []int{6, 0}, questions, map[int]string{})

	if len(block.References) != 1 || block.References[0].Order != 0 {
		t.Errorf("expected only the known order kept, got %+v", block.References)
	}
}

func TestAssembleNoReferences(t *testing.T) {
	block := Assemble("Q?", "G.", "A.", nil, map[int]string{0: "Q?"}, nil)
	if block.References != nil {
		t.Errorf("expected no references, got %+v", block.References)
	}
}

func TestAssembleDoesNotMutateResolved(t *testing.T) {
	resolved := []int{3, 1, 2}
	Assemble("Q?", "", "A.", resolved, map[int]string{1: "a", 2: "b", 3: "c"}, nil)
	if !reflect.DeepEqual(resolved, []int{3, 1, 2}) {
		t.Errorf("input slice reordered: %v", resolved)
	}
}
