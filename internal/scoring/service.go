package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ndrozd/surveybot/internal/metrics"
	"github.com/ndrozd/surveybot/internal/model"
	"github.com/ndrozd/surveybot/internal/refs"
)

// DefaultTimeout bounds a single scorer call.
const DefaultTimeout = 20 * time.Second

var (
	// ErrRespondentSubmitted is returned for any write against a respondent
	// who has already submitted.
	ErrRespondentSubmitted = errors.New("respondent already submitted")
	// ErrQuestionNotInSurvey is returned when an answer targets a question
	// from a different survey than the respondent's link.
	ErrQuestionNotInSurvey = errors.New("question does not belong to the respondent's survey")
	// ErrNoAnswers is returned when submitting a respondent with no answers.
	ErrNoAnswers = errors.New("respondent has no answers")
)

// Store is the slice of persistence the service needs.
type Store interface {
	GetQuestion(id int64) (model.Question, error)
	QuestionsBySurvey(surveyID int64) ([]model.Question, error)
	GetGuideline(questionID int64) (*model.Guideline, error)
	GetLink(id int64) (model.SurveyLink, error)
	GetRespondent(id int64) (model.Respondent, error)
	SetRespondentStatus(id int64, status model.RespondentStatus) error
	GetAnswer(id int64) (model.Answer, error)
	AnswerForQuestion(respondentID, questionID int64) (*model.Answer, error)
	AnswersByRespondent(respondentID int64) ([]model.Answer, error)
	AnswerCount(respondentID int64) (int, error)
	InsertAnswer(a model.Answer) (int64, error)
	UpdateAnswerContent(id int64, text string, flagged bool, refOrders []int, refWarning string) error
	SetAnswerScore(id int64, score float64, rationale string, lowQuality bool) error
	ClearAnswerScore(id int64) error
	DeleteAnswer(id int64) error
}

// Outcome reports one answer write: the stored row after scoring, plus the
// reference warnings produced by this write.
type Outcome struct {
	Answer   model.Answer
	Warnings []string
}

// Service runs the write-resolve-score-propagate unit of work for answers.
// Writes for the same respondent are serialized, so two saves of the same
// answer cannot interleave; scoring runs inline so the caller sees the fresh
// score in the response. A scorer failure never fails the write: the answer
// text is kept and whatever score was stored before stays.
type Service struct {
	store    Store
	resolver refs.Resolver
	scorer   Scorer
	timeout  time.Duration

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewService creates a Service. A non-positive timeout falls back to
// DefaultTimeout.
func NewService(st Store, resolver refs.Resolver, scorer Scorer, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		store:    st,
		resolver: resolver,
		scorer:   scorer,
		timeout:  timeout,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (s *Service) respondentLock(respondentID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[respondentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[respondentID] = l
	}
	return l
}

// SaveAnswer creates the respondent's answer to a question, or replaces it
// if one exists already. The new text is scanned for references, scored, and
// every other answer referencing this question is re-scored.
func (s *Service) SaveAnswer(ctx context.Context, respondentID, questionID int64, text string, flagged bool) (*Outcome, error) {
	lock := s.respondentLock(respondentID)
	lock.Lock()
	defer lock.Unlock()

	resp, err := s.store.GetRespondent(respondentID)
	if err != nil {
		return nil, fmt.Errorf("get respondent: %w", err)
	}
	if resp.Status == model.StatusSubmitted {
		return nil, ErrRespondentSubmitted
	}

	q, err := s.store.GetQuestion(questionID)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	link, err := s.store.GetLink(resp.LinkID)
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	if q.SurveyID != link.SurveyID {
		return nil, ErrQuestionNotInSurvey
	}

	questions, err := s.store.QuestionsBySurvey(q.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	res := s.resolver.Resolve(text, q.OrderIndex, questionOrders(questions))
	warning := strings.Join(res.Unresolved, "; ")

	existing, err := s.store.AnswerForQuestion(respondentID, questionID)
	if err != nil {
		return nil, fmt.Errorf("find answer: %w", err)
	}

	var answerID int64
	if existing != nil {
		if err := s.store.UpdateAnswerContent(existing.ID, text, flagged, res.Resolved, warning); err != nil {
			return nil, fmt.Errorf("update answer: %w", err)
		}
		answerID = existing.ID
	} else {
		answerID, err = s.store.InsertAnswer(model.Answer{
			RespondentID: respondentID,
			QuestionID:   questionID,
			Text:         text,
			Flagged:      flagged,
			Refs:         res.Resolved,
			RefWarning:   warning,
		})
		if err != nil {
			return nil, fmt.Errorf("insert answer: %w", err)
		}
	}

	return s.finishWrite(ctx, answerID, q, questions, res.Unresolved)
}

// UpdateAnswer applies a partial update to an existing answer. Nil fields
// keep their stored values. The resulting text is re-scanned for references
// and the answer is re-scored, even when only the flag changed.
func (s *Service) UpdateAnswer(ctx context.Context, answerID int64, text *string, flagged *bool) (*Outcome, error) {
	probe, err := s.store.GetAnswer(answerID)
	if err != nil {
		return nil, fmt.Errorf("get answer: %w", err)
	}

	lock := s.respondentLock(probe.RespondentID)
	lock.Lock()
	defer lock.Unlock()

	ans, err := s.store.GetAnswer(answerID)
	if err != nil {
		return nil, fmt.Errorf("get answer: %w", err)
	}
	resp, err := s.store.GetRespondent(ans.RespondentID)
	if err != nil {
		return nil, fmt.Errorf("get respondent: %w", err)
	}
	if resp.Status == model.StatusSubmitted {
		return nil, ErrRespondentSubmitted
	}

	q, err := s.store.GetQuestion(ans.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	questions, err := s.store.QuestionsBySurvey(q.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	newText := ans.Text
	if text != nil {
		newText = *text
	}
	newFlagged := ans.Flagged
	if flagged != nil {
		newFlagged = *flagged
	}

	res := s.resolver.Resolve(newText, q.OrderIndex, questionOrders(questions))
	warning := strings.Join(res.Unresolved, "; ")

	if err := s.store.UpdateAnswerContent(answerID, newText, newFlagged, res.Resolved, warning); err != nil {
		return nil, fmt.Errorf("update answer: %w", err)
	}

	return s.finishWrite(ctx, answerID, q, questions, res.Unresolved)
}

// DeleteAnswer removes an answer and re-scores every other answer that
// referenced its question. Those answers keep their stored references; the
// deleted answer simply shows up as not answered in their scoring context.
func (s *Service) DeleteAnswer(ctx context.Context, answerID int64) error {
	probe, err := s.store.GetAnswer(answerID)
	if err != nil {
		return fmt.Errorf("get answer: %w", err)
	}

	lock := s.respondentLock(probe.RespondentID)
	lock.Lock()
	defer lock.Unlock()

	ans, err := s.store.GetAnswer(answerID)
	if err != nil {
		return fmt.Errorf("get answer: %w", err)
	}
	resp, err := s.store.GetRespondent(ans.RespondentID)
	if err != nil {
		return fmt.Errorf("get respondent: %w", err)
	}
	if resp.Status == model.StatusSubmitted {
		return ErrRespondentSubmitted
	}

	q, err := s.store.GetQuestion(ans.QuestionID)
	if err != nil {
		return fmt.Errorf("get question: %w", err)
	}
	if err := s.store.DeleteAnswer(answerID); err != nil {
		return fmt.Errorf("delete answer: %w", err)
	}

	questions, err := s.store.QuestionsBySurvey(q.SurveyID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.store.AnswersByRespondent(ans.RespondentID)
	if err != nil {
		return fmt.Errorf("list answers: %w", err)
	}

	s.propagate(ctx, q, questions, answers)
	return nil
}

// Submit marks a respondent as submitted. It requires at least one stored
// answer and takes the same per-respondent lock as answer writes, so no
// write can land while the status flips.
func (s *Service) Submit(respondentID int64) error {
	lock := s.respondentLock(respondentID)
	lock.Lock()
	defer lock.Unlock()

	resp, err := s.store.GetRespondent(respondentID)
	if err != nil {
		return fmt.Errorf("get respondent: %w", err)
	}
	if resp.Status == model.StatusSubmitted {
		return ErrRespondentSubmitted
	}

	n, err := s.store.AnswerCount(respondentID)
	if err != nil {
		return fmt.Errorf("count answers: %w", err)
	}
	if n == 0 {
		return ErrNoAnswers
	}

	if err := s.store.SetRespondentStatus(respondentID, model.StatusSubmitted); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// finishWrite scores the freshly written answer, re-scores its dependents,
// and returns the stored row.
func (s *Service) finishWrite(ctx context.Context, answerID int64, q model.Question, questions []model.Question, warnings []string) (*Outcome, error) {
	ans, err := s.store.GetAnswer(answerID)
	if err != nil {
		return nil, fmt.Errorf("reload answer: %w", err)
	}
	answers, err := s.store.AnswersByRespondent(ans.RespondentID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	s.scorePass(ctx, ans, q, questions, answers)
	s.propagate(ctx, q, questions, answers)

	final, err := s.store.GetAnswer(answerID)
	if err != nil {
		return nil, fmt.Errorf("reload answer: %w", err)
	}
	return &Outcome{Answer: final, Warnings: warnings}, nil
}

// scorePass assembles the context for one answer, runs the scorer, and
// persists the verdict. Failures are logged and leave the stored score
// untouched.
func (s *Service) scorePass(ctx context.Context, ans model.Answer, q model.Question, questions []model.Question, answers []model.Answer) {
	guideline := ""
	gl, err := s.store.GetGuideline(q.ID)
	if err != nil {
		slog.Warn("load guideline failed, skipping scoring", "answer_id", ans.ID, "error", err)
		return
	}
	if gl != nil {
		guideline = gl.Content
	}

	block := Assemble(q.Text, guideline, ans.Text, ans.Refs, questionTexts(questions), answerTexts(questions, answers))

	scoreCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.scorer.Score(scoreCtx, block)
	switch {
	case err != nil:
		metrics.ObserveScoring("unavailable", time.Since(start))
		slog.Warn("scoring unavailable, keeping previous score", "answer_id", ans.ID, "error", err)
	case result == nil:
		metrics.ObserveScoring("skipped", time.Since(start))
		if err := s.store.ClearAnswerScore(ans.ID); err != nil {
			slog.Error("clear score failed", "answer_id", ans.ID, "error", err)
		}
	default:
		metrics.ObserveScoring("scored", time.Since(start))
		if err := s.store.SetAnswerScore(ans.ID, result.Score, result.Rationale, result.LowQuality); err != nil {
			slog.Error("store score failed", "answer_id", ans.ID, "error", err)
		}
	}
}

// propagate re-scores every other answer whose stored references include the
// changed question's order. Dependents are processed one at a time.
func (s *Service) propagate(ctx context.Context, changed model.Question, questions []model.Question, answers []model.Answer) {
	byID := make(map[int64]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	for _, dep := range Dependents(changed.ID, changed.OrderIndex, answers) {
		q, ok := byID[dep.QuestionID]
		if !ok {
			continue
		}
		s.scorePass(ctx, dep, q, questions, answers)
		metrics.RescoredAnswers.Inc()
		slog.Debug("re-scored dependent answer", "answer_id", dep.ID, "question_order", q.OrderIndex)
	}
}

func questionOrders(questions []model.Question) []int {
	orders := make([]int, len(questions))
	for i, q := range questions {
		orders[i] = q.OrderIndex
	}
	return orders
}

func questionTexts(questions []model.Question) map[int]string {
	m := make(map[int]string, len(questions))
	for _, q := range questions {
		m[q.OrderIndex] = q.Text
	}
	return m
}

func answerTexts(questions []model.Question, answers []model.Answer) map[int]string {
	orderByID := make(map[int64]int, len(questions))
	for _, q := range questions {
		orderByID[q.ID] = q.OrderIndex
	}
	m := make(map[int]string, len(answers))
	for _, a := range answers {
		if o, ok := orderByID[a.QuestionID]; ok {
			m[o] = a.Text
		}
	}
	return m
}
