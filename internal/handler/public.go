package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ndrozd/surveybot/internal/i18n"
	"github.com/ndrozd/surveybot/internal/model"
	"github.com/ndrozd/surveybot/internal/scoring"
)

// writeServiceError maps scoring service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scoring.ErrRespondentSubmitted):
		writeError(w, http.StatusConflict, "respondent already submitted")
	case errors.Is(err, scoring.ErrQuestionNotInSurvey):
		writeError(w, http.StatusBadRequest, "question does not belong to this survey")
	case errors.Is(err, scoring.ErrNoAnswers):
		writeError(w, http.StatusBadRequest, "No answers to submit")
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) handlePublicSurvey(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")

	// Forged and unknown tokens look the same to the caller.
	if _, err := h.signer.Verify(tok); err != nil {
		writeError(w, http.StatusNotFound, "Link invalid or inactive")
		return
	}
	link, err := h.store.GetLinkByToken(tok)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if link == nil || !link.Active {
		writeError(w, http.StatusNotFound, "Link invalid or inactive")
		return
	}

	detail, err := h.store.GetSurveyDetail(link.SurveyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleCreateRespondent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LinkToken   string `json:"link_token"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.signer.Verify(req.LinkToken); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid link")
		return
	}
	link, err := h.store.GetLinkByToken(req.LinkToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if link == nil || !link.Active {
		writeError(w, http.StatusBadRequest, "Invalid link")
		return
	}

	id, err := h.store.CreateRespondent(link.ID, req.DisplayName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"respondent_id": id})
}

func answerPayload(o *scoring.Outcome) map[string]any {
	refs := o.Answer.Refs
	if refs == nil {
		refs = []int{}
	}
	warnings := o.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return map[string]any{
		"score":       o.Answer.Score,
		"rationale":   o.Answer.Rationale,
		"low_quality": o.Answer.LowQuality,
		"references":  refs,
		"warnings":    warnings,
	}
}

func (h *Handler) handleCreateAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RespondentID int64  `json:"respondent_id"`
		QuestionID   int64  `json:"question_id"`
		AnswerText   string `json:"answer_text"`
		Flagged      bool   `json:"flagged"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.svc.SaveAnswer(r.Context(), req.RespondentID, req.QuestionID, req.AnswerText, req.Flagged)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := answerPayload(out)
	resp["id"] = out.Answer.ID
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateAnswer(w http.ResponseWriter, r *http.Request) {
	answerID, err := strconv.ParseInt(chi.URLParam(r, "answerID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid answer ID")
		return
	}

	var req struct {
		AnswerText *string `json:"answer_text"`
		Flagged    *bool   `json:"flagged"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.svc.UpdateAnswer(r.Context(), answerID, req.AnswerText, req.Flagged)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := answerPayload(out)
	resp["ok"] = true
	resp["flagged"] = out.Answer.Flagged
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteAnswer(w http.ResponseWriter, r *http.Request) {
	answerID, err := strconv.ParseInt(chi.URLParam(r, "answerID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid answer ID")
		return
	}

	if err := h.svc.DeleteAnswer(r.Context(), answerID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleListAnswers(w http.ResponseWriter, r *http.Request) {
	respondentID, err := strconv.ParseInt(chi.URLParam(r, "respondentID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid respondent ID")
		return
	}

	if _, err := h.store.GetRespondent(respondentID); err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Respondent not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	answers, err := h.store.AnswersByRespondent(respondentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if answers == nil {
		answers = []model.Answer{}
	}
	writeJSON(w, http.StatusOK, answers)
}

// handleNextQuestion drives chat mode: it hands out the first unanswered
// question in survey order, with localized prompts around it.
func (h *Handler) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	respondentID, err := strconv.ParseInt(chi.URLParam(r, "respondentID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid respondent ID")
		return
	}

	resp, err := h.store.GetRespondent(respondentID)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Respondent not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx := r.Context()
	if resp.Status == model.StatusSubmitted {
		writeJSON(w, http.StatusOK, map[string]any{
			"done":    true,
			"message": i18n.T(ctx, "AlreadySubmitted"),
		})
		return
	}

	link, err := h.store.GetLink(resp.LinkID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	questions, err := h.store.QuestionsBySurvey(link.SurveyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	answers, err := h.store.AnswersByRespondent(respondentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	answered := make(map[int64]bool, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = true
	}

	var next *model.Question
	nextPos := 0
	remaining := 0
	for i, q := range questions {
		if answered[q.ID] {
			continue
		}
		remaining++
		if next == nil {
			next = &questions[i]
			nextPos = i + 1
		}
	}

	if next == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"done":    true,
			"message": i18n.T(ctx, "ChatDone"),
		})
		return
	}

	out := map[string]any{
		"done":     false,
		"question": next,
		"prompt": i18n.Td(ctx, "ChatQuestion", map[string]any{
			"Number": nextPos,
			"Total":  len(questions),
		}),
		"remaining": i18n.Tp(ctx, "QuestionsRemaining", remaining),
	}
	if len(answers) == 0 {
		out["message"] = i18n.T(ctx, "ChatWelcome")
	}
	if latest := latestAnswer(answers); latest != nil && latest.LowQuality {
		out["nudge"] = i18n.T(ctx, "LowQualityNudge")
	}
	writeJSON(w, http.StatusOK, out)
}

func latestAnswer(answers []model.Answer) *model.Answer {
	var latest *model.Answer
	for i := range answers {
		if latest == nil || answers[i].UpdatedAt.After(latest.UpdatedAt) {
			latest = &answers[i]
		}
	}
	return latest
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RespondentID int64 `json:"respondent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Submit(req.RespondentID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
