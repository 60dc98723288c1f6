package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ndrozd/surveybot/internal/i18n"
	"github.com/ndrozd/surveybot/internal/model"
	"github.com/ndrozd/surveybot/internal/refs"
	"github.com/ndrozd/surveybot/internal/scoring"
	"github.com/ndrozd/surveybot/internal/store"
	"github.com/ndrozd/surveybot/internal/token"
)

const testAdminKey = "test-admin-key"

type testEnv struct {
	t      *testing.T
	router *chi.Mux
	store  *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvConfig(t, scoring.DefaultLowQualityThreshold, 0, 0)
}

func newTestEnvConfig(t *testing.T, threshold, rps float64, burst int) *testEnv {
	t.Helper()

	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc := scoring.NewService(st, refs.New(), scoring.NewStubScorer(threshold), time.Second)
	signer := token.NewSigner("test-secret")
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	h, err := New(st, svc, signer, Config{AdminKeyHash: hash, PublicRPS: rps, PublicBurst: burst})
	if err != nil {
		t.Fatalf("handler.New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	h.Routes(r)
	return &testEnv{t: t, router: r, store: st}
}

func (e *testEnv) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) admin(method, path string, body any) *httptest.ResponseRecorder {
	return e.do(method, path, body, map[string]string{adminKeyHeader: testAdminKey})
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

// createSurvey creates a survey through the API with questions ordered by
// their position in the argument list.
func (e *testEnv) createSurvey(title string, questions ...model.QuestionInput) int64 {
	e.t.Helper()
	for i := range questions {
		questions[i].OrderIndex = i
	}
	rr := e.admin(http.MethodPost, "/admin/surveys", createSurveyRequest{Title: title, Questions: questions})
	if rr.Code != http.StatusOK {
		e.t.Fatalf("create survey: status %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	decodeJSON(e.t, rr, &resp)
	return resp.ID
}

func (e *testEnv) createLink(surveyID int64) string {
	e.t.Helper()
	rr := e.admin(http.MethodPost, "/admin/links", map[string]int64{"survey_id": surveyID})
	if rr.Code != http.StatusOK {
		e.t.Fatalf("create link: status %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decodeJSON(e.t, rr, &resp)
	return resp.Token
}

func (e *testEnv) createRespondent(linkToken string) int64 {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/public/respondents", map[string]string{"link_token": linkToken}, nil)
	if rr.Code != http.StatusOK {
		e.t.Fatalf("create respondent: status %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		RespondentID int64 `json:"respondent_id"`
	}
	decodeJSON(e.t, rr, &resp)
	return resp.RespondentID
}

func (e *testEnv) postAnswer(respondentID, questionID int64, text string) map[string]any {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/public/answers", map[string]any{
		"respondent_id": respondentID,
		"question_id":   questionID,
		"answer_text":   text,
	}, nil)
	if rr.Code != http.StatusOK {
		e.t.Fatalf("post answer: status %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(e.t, rr, &resp)
	return resp
}

func (e *testEnv) questionIDs(surveyID int64) []int64 {
	e.t.Helper()
	questions, err := e.store.QuestionsBySurvey(surveyID)
	if err != nil {
		e.t.Fatalf("QuestionsBySurvey: %v", err)
	}
	ids := make([]int64, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(http.MethodGet, "/health", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(http.MethodGet, "/admin/surveys", nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no key: expected 401, got %d", rr.Code)
	}

	rr = e.do(http.MethodGet, "/admin/surveys", nil, map[string]string{adminKeyHeader: "wrong"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", rr.Code)
	}

	rr = e.admin(http.MethodGet, "/admin/surveys", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("valid key: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSurveyLifecycle(t *testing.T) {
	e := newTestEnv(t)

	// Blank titles are rejected.
	rr := e.admin(http.MethodPost, "/admin/surveys", createSurveyRequest{Title: "   "})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("blank title: expected 400, got %d", rr.Code)
	}

	// The legacy survey-level guideline lands on every question without its
	// own.
	rr = e.admin(http.MethodPost, "/admin/surveys", createSurveyRequest{
		Title:     "Quarterly review",
		Guideline: "Answers mention concrete events.",
		Questions: []model.QuestionInput{
			{Text: "What went well?", OrderIndex: 0},
			{Text: "What didn't?", OrderIndex: 1, Guideline: "Names at least one problem."},
			{Text: "   ", OrderIndex: 2},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create: status %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, rr, &created)

	rr = e.admin(http.MethodGet, "/admin/surveys/"+strconv.FormatInt(created.ID, 10)+"/detail", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("detail: status %d: %s", rr.Code, rr.Body.String())
	}
	var detail model.SurveyDetail
	decodeJSON(t, rr, &detail)
	if len(detail.Questions) != 2 {
		t.Fatalf("expected blank question dropped, got %d questions", len(detail.Questions))
	}
	if detail.Questions[0].Guideline == nil || detail.Questions[0].Guideline.Content != "Answers mention concrete events." {
		t.Errorf("expected legacy guideline on first question, got %+v", detail.Questions[0].Guideline)
	}
	if detail.Questions[1].Guideline == nil || detail.Questions[1].Guideline.Content != "Names at least one problem." {
		t.Errorf("expected own guideline kept on second question, got %+v", detail.Questions[1].Guideline)
	}

	// Add a question; duplicate orders are rejected.
	rr = e.admin(http.MethodPost, "/admin/surveys/"+strconv.FormatInt(created.ID, 10)+"/questions",
		model.QuestionInput{Text: "Anything else?", OrderIndex: 2})
	if rr.Code != http.StatusOK {
		t.Fatalf("add question: status %d: %s", rr.Code, rr.Body.String())
	}
	var added struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, rr, &added)

	rr = e.admin(http.MethodPost, "/admin/surveys/"+strconv.FormatInt(created.ID, 10)+"/questions",
		model.QuestionInput{Text: "Duplicate order", OrderIndex: 2})
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate order: expected 409, got %d", rr.Code)
	}

	// Guideline upsert and idempotent delete.
	qPath := "/admin/questions/" + strconv.FormatInt(added.ID, 10)
	rr = e.admin(http.MethodPut, qPath+"/guideline", map[string]string{"content": "Free-form."})
	if rr.Code != http.StatusOK {
		t.Fatalf("upsert guideline: status %d: %s", rr.Code, rr.Body.String())
	}
	rr = e.admin(http.MethodDelete, qPath+"/guideline", nil)
	var gdel struct {
		OK      bool `json:"ok"`
		Deleted int  `json:"deleted"`
	}
	decodeJSON(t, rr, &gdel)
	if !gdel.OK || gdel.Deleted != 1 {
		t.Errorf("expected first guideline delete to remove one, got %+v", gdel)
	}
	rr = e.admin(http.MethodDelete, qPath+"/guideline", nil)
	decodeJSON(t, rr, &gdel)
	if !gdel.OK || gdel.Deleted != 0 {
		t.Errorf("expected second guideline delete to be a no-op, got %+v", gdel)
	}

	// Unknown question guideline upsert.
	rr = e.admin(http.MethodPut, "/admin/questions/9999/guideline", map[string]string{"content": "x"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("guideline on missing question: expected 404, got %d", rr.Code)
	}

	rr = e.admin(http.MethodDelete, qPath, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("delete question: status %d", rr.Code)
	}
	rr = e.admin(http.MethodDelete, qPath, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("delete question twice: expected 404, got %d", rr.Code)
	}

	rr = e.admin(http.MethodDelete, "/admin/surveys/"+strconv.FormatInt(created.ID, 10), nil)
	if rr.Code != http.StatusOK {
		t.Errorf("delete survey: status %d", rr.Code)
	}
	rr = e.admin(http.MethodGet, "/admin/surveys/"+strconv.FormatInt(created.ID, 10)+"/detail", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("detail after delete: expected 404, got %d", rr.Code)
	}
}

func TestLinkFlow(t *testing.T) {
	e := newTestEnv(t)
	surveyID := e.createSurvey("Pulse", model.QuestionInput{Text: "How are you?"})

	rr := e.admin(http.MethodPost, "/admin/links", map[string]int64{"survey_id": surveyID})
	var first struct {
		Token    string `json:"token"`
		URL      string `json:"url"`
		Existing bool   `json:"existing"`
	}
	decodeJSON(t, rr, &first)
	if first.Existing {
		t.Error("expected first link to be new")
	}
	if first.URL != "/take/"+first.Token {
		t.Errorf("unexpected url %q", first.URL)
	}

	// Creating again returns the same active link.
	rr = e.admin(http.MethodPost, "/admin/links", map[string]int64{"survey_id": surveyID})
	var second struct {
		Token    string `json:"token"`
		Existing bool   `json:"existing"`
	}
	decodeJSON(t, rr, &second)
	if !second.Existing || second.Token != first.Token {
		t.Errorf("expected existing link back, got %+v", second)
	}

	// Public survey loads through the token.
	rr = e.do(http.MethodGet, "/public/surveys/"+first.Token, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("public survey: status %d: %s", rr.Code, rr.Body.String())
	}
	var detail model.SurveyDetail
	decodeJSON(t, rr, &detail)
	if detail.Survey.Title != "Pulse" {
		t.Errorf("expected survey Pulse, got %q", detail.Survey.Title)
	}

	// Forged tokens 404 without touching the database.
	rr = e.do(http.MethodGet, "/public/surveys/forged.token", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("forged token: expected 404, got %d", rr.Code)
	}

	// Revoke; the link stops working everywhere.
	rr = e.admin(http.MethodPost, "/admin/links/"+first.Token+"/revoke", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("revoke: status %d", rr.Code)
	}
	rr = e.do(http.MethodGet, "/public/surveys/"+first.Token, nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("revoked link survey: expected 404, got %d", rr.Code)
	}
	rr = e.do(http.MethodPost, "/public/respondents", map[string]string{"link_token": first.Token}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("respondent on revoked link: expected 400, got %d", rr.Code)
	}

	// Revoking twice is a 404.
	rr = e.admin(http.MethodPost, "/admin/links/"+first.Token+"/revoke", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second revoke: expected 404, got %d", rr.Code)
	}

	// A fresh link can be issued afterwards.
	rr = e.admin(http.MethodPost, "/admin/links", map[string]int64{"survey_id": surveyID})
	var third struct {
		Token    string `json:"token"`
		Existing bool   `json:"existing"`
	}
	decodeJSON(t, rr, &third)
	if third.Existing || third.Token == first.Token {
		t.Errorf("expected a new token after revoke, got %+v", third)
	}

	// Links for unknown surveys 404.
	rr = e.admin(http.MethodPost, "/admin/links", map[string]int64{"survey_id": 9999})
	if rr.Code != http.StatusNotFound {
		t.Errorf("link for missing survey: expected 404, got %d", rr.Code)
	}
}

func TestAnswerFlowWithReferences(t *testing.T) {
	e := newTestEnv(t)
	surveyID := e.createSurvey("Project check-in",
		model.QuestionInput{Text: "Describe what the team shipped.", Guideline: "Mentions a concrete deliverable."},
		model.QuestionInput{Text: "How does that affect next quarter?", Guideline: "Builds on the prior answer."},
	)
	ids := e.questionIDs(surveyID)
	tok := e.createLink(surveyID)
	rid := e.createRespondent(tok)

	// First answer has no references.
	resp := e.postAnswer(rid, ids[0], "The team shipped Y1.")
	if resp["score"].(float64) != 3.0 {
		t.Errorf("expected stub score 3 without references, got %v", resp["score"])
	}
	if len(resp["references"].([]any)) != 0 {
		t.Errorf("expected no references, got %v", resp["references"])
	}

	// The second answer references the previous question and scores against
	// the current text of that answer.
	resp = e.postAnswer(rid, ids[1], "As I said in the previous question, we build on it.")
	if got := resp["references"].([]any); len(got) != 1 || got[0].(float64) != 0 {
		t.Fatalf("expected references [0], got %v", got)
	}
	if resp["score"].(float64) != 5.0 {
		t.Errorf("expected stub score 5 with resolved reference, got %v", resp["score"])
	}
	if rationale := resp["rationale"].(string); !strings.Contains(rationale, `"The team shipped Y1."`) {
		t.Errorf("expected rationale to quote the referenced answer, got %q", rationale)
	}
	secondID := int64(resp["id"].(float64))

	// Rewriting the first answer re-scores its dependents with fresh text.
	rr := e.do(http.MethodPost, "/public/answers", map[string]any{
		"respondent_id": rid,
		"question_id":   ids[0],
		"answer_text":   "Actually the team shipped Y2.",
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("replace answer: status %d: %s", rr.Code, rr.Body.String())
	}

	var answers []model.Answer
	rr = e.do(http.MethodGet, "/public/respondents/"+strconv.FormatInt(rid, 10)+"/answers", nil, nil)
	decodeJSON(t, rr, &answers)
	if len(answers) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(answers))
	}
	var dependent *model.Answer
	for i := range answers {
		if answers[i].ID == secondID {
			dependent = &answers[i]
		}
	}
	if dependent == nil {
		t.Fatal("dependent answer missing from listing")
	}
	if !strings.Contains(dependent.Rationale, "Y2") {
		t.Errorf("expected dependent rationale re-scored against updated text, got %q", dependent.Rationale)
	}

	// Unresolvable mentions come back as warnings, and the answer still
	// stores.
	resp = e.postAnswer(rid, ids[0], "See question 9 for details.")
	warnings := resp["warnings"].([]any)
	if len(warnings) != 1 || !strings.Contains(warnings[0].(string), "does not match any question") {
		t.Errorf("expected an unresolved reference warning, got %v", warnings)
	}

	// Deleting the referenced answer re-scores the dependent: the reference
	// is now unanswered.
	firstAnswer, err := e.store.AnswerForQuestion(rid, ids[0])
	if err != nil || firstAnswer == nil {
		t.Fatalf("AnswerForQuestion: %v, %v", firstAnswer, err)
	}
	rr = e.do(http.MethodDelete, "/public/answers/"+strconv.FormatInt(firstAnswer.ID, 10), nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete answer: status %d", rr.Code)
	}
	got, err := e.store.GetAnswer(secondID)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if got.Score == nil || *got.Score != 3.0 {
		t.Errorf("expected dependent downgraded to 3 after delete, got %v", got.Score)
	}
	if got.Rationale != "Some referenced answers are missing." {
		t.Errorf("unexpected dependent rationale after delete: %q", got.Rationale)
	}
}

func TestAnswerUpdateAndFlag(t *testing.T) {
	e := newTestEnv(t)
	surveyID := e.createSurvey("Flags",
		model.QuestionInput{Text: "Anything to report?", Guideline: "Non-empty."},
	)
	ids := e.questionIDs(surveyID)
	tok := e.createLink(surveyID)
	rid := e.createRespondent(tok)

	resp := e.postAnswer(rid, ids[0], "All fine.")
	answerID := int64(resp["id"].(float64))

	// Flag-only update keeps the text and still re-scores.
	flagged := true
	rr := e.do(http.MethodPut, "/public/answers/"+strconv.FormatInt(answerID, 10),
		map[string]any{"flagged": &flagged}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("flag update: status %d: %s", rr.Code, rr.Body.String())
	}
	var upd map[string]any
	decodeJSON(t, rr, &upd)
	if upd["flagged"] != true || upd["ok"] != true {
		t.Errorf("expected flagged answer, got %v", upd)
	}

	a, err := e.store.GetAnswer(answerID)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if a.Text != "All fine." || !a.Flagged {
		t.Errorf("expected text kept and flag set, got %+v", a)
	}

	// Clearing the text clears the score.
	empty := ""
	rr = e.do(http.MethodPut, "/public/answers/"+strconv.FormatInt(answerID, 10),
		map[string]any{"answer_text": &empty}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("text update: status %d", rr.Code)
	}
	a, err = e.store.GetAnswer(answerID)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if a.Score != nil || a.Rationale != "" {
		t.Errorf("expected cleared score for empty text, got %+v", a)
	}

	// Unknown answers 404.
	rr = e.do(http.MethodPut, "/public/answers/9999", map[string]any{"flagged": &flagged}, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("update missing answer: expected 404, got %d", rr.Code)
	}
}

func TestSubmitGuards(t *testing.T) {
	e := newTestEnv(t)
	surveyID := e.createSurvey("Guarded",
		model.QuestionInput{Text: "Q one"},
	)
	otherID := e.createSurvey("Other",
		model.QuestionInput{Text: "Foreign question"},
	)
	ids := e.questionIDs(surveyID)
	otherIDs := e.questionIDs(otherID)
	tok := e.createLink(surveyID)
	rid := e.createRespondent(tok)

	// Unknown respondent.
	rr := e.do(http.MethodPost, "/public/answers", map[string]any{
		"respondent_id": int64(9999), "question_id": ids[0], "answer_text": "x",
	}, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown respondent: expected 404, got %d", rr.Code)
	}

	// Question from another survey.
	rr = e.do(http.MethodPost, "/public/answers", map[string]any{
		"respondent_id": rid, "question_id": otherIDs[0], "answer_text": "x",
	}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("foreign question: expected 400, got %d", rr.Code)
	}

	// Submitting with no answers.
	rr = e.do(http.MethodPost, "/public/submit", map[string]int64{"respondent_id": rid}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty submit: expected 400, got %d", rr.Code)
	}

	resp := e.postAnswer(rid, ids[0], "An answer.")
	answerID := int64(resp["id"].(float64))

	rr = e.do(http.MethodPost, "/public/submit", map[string]int64{"respondent_id": rid}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("submit: status %d: %s", rr.Code, rr.Body.String())
	}

	// All mutations are rejected after submission.
	rr = e.do(http.MethodPost, "/public/answers", map[string]any{
		"respondent_id": rid, "question_id": ids[0], "answer_text": "too late",
	}, nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("create after submit: expected 409, got %d", rr.Code)
	}
	text := "too late"
	rr = e.do(http.MethodPut, "/public/answers/"+strconv.FormatInt(answerID, 10),
		map[string]any{"answer_text": &text}, nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("update after submit: expected 409, got %d", rr.Code)
	}
	rr = e.do(http.MethodDelete, "/public/answers/"+strconv.FormatInt(answerID, 10), nil, nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("delete after submit: expected 409, got %d", rr.Code)
	}
	rr = e.do(http.MethodPost, "/public/submit", map[string]int64{"respondent_id": rid}, nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("double submit: expected 409, got %d", rr.Code)
	}

	// The stored answer is untouched.
	a, err := e.store.GetAnswer(answerID)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if a.Text != "An answer." {
		t.Errorf("expected answer preserved after rejected writes, got %q", a.Text)
	}
}

func TestChatFlow(t *testing.T) {
	e := newTestEnv(t)
	surveyID := e.createSurvey("Chat",
		model.QuestionInput{Text: "First question?"},
		model.QuestionInput{Text: "Second question?"},
	)
	ids := e.questionIDs(surveyID)
	tok := e.createLink(surveyID)
	rid := e.createRespondent(tok)
	nextPath := "/public/respondents/" + strconv.FormatInt(rid, 10) + "/next"

	rr := e.do(http.MethodGet, nextPath, nil, nil)
	var step map[string]any
	decodeJSON(t, rr, &step)
	if step["done"] != false {
		t.Fatalf("expected chat not done, got %v", step)
	}
	if step["prompt"] != "Question 1 of 2" {
		t.Errorf("expected first prompt, got %v", step["prompt"])
	}
	if step["message"] != "Hi! I'll walk you through this survey." {
		t.Errorf("expected welcome on first step, got %v", step["message"])
	}
	if step["remaining"] != "You have 2 questions left." {
		t.Errorf("unexpected remaining, got %v", step["remaining"])
	}

	// The same step in Russian.
	rr = e.do(http.MethodGet, nextPath, nil, map[string]string{"Accept-Language": "ru"})
	decodeJSON(t, rr, &step)
	if step["prompt"] != "Вопрос 1 из 2" {
		t.Errorf("expected Russian prompt, got %v", step["prompt"])
	}

	e.postAnswer(rid, ids[0], "Answer one.")

	rr = e.do(http.MethodGet, nextPath, nil, nil)
	// json.Unmarshal merges into a non-nil map, so reset it to observe
	// keys the response omits.
	step = nil
	decodeJSON(t, rr, &step)
	if step["prompt"] != "Question 2 of 2" {
		t.Errorf("expected second prompt, got %v", step["prompt"])
	}
	if step["remaining"] != "You have 1 question left." {
		t.Errorf("unexpected remaining, got %v", step["remaining"])
	}
	if _, ok := step["message"]; ok {
		t.Errorf("expected no welcome after the first answer, got %v", step["message"])
	}
	q := step["question"].(map[string]any)
	if int64(q["id"].(float64)) != ids[1] {
		t.Errorf("expected next question %d, got %v", ids[1], q["id"])
	}

	e.postAnswer(rid, ids[1], "Answer two.")

	rr = e.do(http.MethodGet, nextPath, nil, nil)
	decodeJSON(t, rr, &step)
	if step["done"] != true {
		t.Fatalf("expected done, got %v", step)
	}
	if step["message"] != "That was the last question. Submit your answers when you're ready." {
		t.Errorf("unexpected done message, got %v", step["message"])
	}

	rr = e.do(http.MethodPost, "/public/submit", map[string]int64{"respondent_id": rid}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("submit: status %d", rr.Code)
	}

	rr = e.do(http.MethodGet, nextPath, nil, nil)
	decodeJSON(t, rr, &step)
	if step["done"] != true || step["message"] != "Your answers have been submitted. Thank you!" {
		t.Errorf("expected submitted message, got %v", step)
	}
}

func TestChatLowQualityNudge(t *testing.T) {
	// A threshold above the stub's default score marks every answer low
	// quality.
	e := newTestEnvConfig(t, 4.0, 0, 0)
	surveyID := e.createSurvey("Nudges",
		model.QuestionInput{Text: "One?"},
		model.QuestionInput{Text: "Two?"},
	)
	ids := e.questionIDs(surveyID)
	tok := e.createLink(surveyID)
	rid := e.createRespondent(tok)

	resp := e.postAnswer(rid, ids[0], "ok")
	if resp["low_quality"] != true {
		t.Fatalf("expected low-quality answer, got %v", resp)
	}

	rr := e.do(http.MethodGet, "/public/respondents/"+strconv.FormatInt(rid, 10)+"/next", nil, nil)
	var step map[string]any
	decodeJSON(t, rr, &step)
	if step["nudge"] != "Your previous answer looks quite brief. Feel free to update it with more detail." {
		t.Errorf("expected low-quality nudge, got %v", step["nudge"])
	}
}

func TestResponsesAndExport(t *testing.T) {
	e := newTestEnv(t)
	surveyID := e.createSurvey("Export",
		model.QuestionInput{Text: "Q one"},
	)
	ids := e.questionIDs(surveyID)
	tok := e.createLink(surveyID)
	rid := e.createRespondent(tok)
	e.postAnswer(rid, ids[0], "csv, with commas")

	base := "/admin/surveys/" + strconv.FormatInt(surveyID, 10)

	rr := e.admin(http.MethodGet, base+"/responses", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("responses: status %d", rr.Code)
	}
	var rows []model.ResponseRow
	decodeJSON(t, rr, &rows)
	if len(rows) != 1 || rows[0].AnswerText != "csv, with commas" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Score == nil {
		t.Error("expected scored row")
	}

	rr = e.admin(http.MethodGet, base+"/export.csv", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export: status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("unexpected content disposition %q", cd)
	}
	body := rr.Body.String()
	if !strings.HasPrefix(body, "respondent_id,status,order_index,question,answer_text,flagged,score,rationale,low_quality") {
		t.Errorf("unexpected CSV header: %q", body)
	}
	if !strings.Contains(body, `"csv, with commas"`) {
		t.Errorf("expected quoted answer in CSV, got %q", body)
	}
}

func TestPublicRateLimit(t *testing.T) {
	// One request allowed, essentially no refill.
	e := newTestEnvConfig(t, scoring.DefaultLowQualityThreshold, 0.001, 1)

	rr := e.do(http.MethodGet, "/public/surveys/some.token", nil, nil)
	if rr.Code == http.StatusTooManyRequests {
		t.Fatalf("first request should pass, got %d", rr.Code)
	}
	rr = e.do(http.MethodGet, "/public/surveys/some.token", nil, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second request should be limited, got %d", rr.Code)
	}

	// Admin routes are not rate limited.
	rr = e.admin(http.MethodGet, "/admin/surveys", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("admin request should pass, got %d", rr.Code)
	}
}
