package handler

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ndrozd/surveybot/internal/model"
	"github.com/ndrozd/surveybot/internal/store"
)

// createSurveyRequest is the body for POST /admin/surveys. Guideline is the
// legacy survey-level field; it is copied to every question that does not
// bring its own.
type createSurveyRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Questions   []model.QuestionInput `json:"questions"`
	Guideline   string                `json:"guideline"`
}

func (h *Handler) handleCreateSurvey(w http.ResponseWriter, r *http.Request) {
	var req createSurveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}

	var questions []model.QuestionInput
	for _, qi := range req.Questions {
		qi.Text = strings.TrimSpace(qi.Text)
		if qi.Text == "" {
			continue
		}
		if qi.Guideline == "" {
			qi.Guideline = strings.TrimSpace(req.Guideline)
		}
		questions = append(questions, qi)
	}

	id, err := h.store.CreateSurvey(title, strings.TrimSpace(req.Description), questions)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (h *Handler) handleListSurveys(w http.ResponseWriter, r *http.Request) {
	surveys, err := h.store.ListSurveys()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if surveys == nil {
		surveys = []model.Survey{}
	}
	writeJSON(w, http.StatusOK, surveys)
}

func (h *Handler) handleSurveyDetail(w http.ResponseWriter, r *http.Request) {
	surveyID, err := strconv.ParseInt(chi.URLParam(r, "surveyID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid survey ID")
		return
	}

	detail, err := h.store.GetSurveyDetail(surveyID)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Survey not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleDeleteSurvey(w http.ResponseWriter, r *http.Request) {
	surveyID, err := strconv.ParseInt(chi.URLParam(r, "surveyID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid survey ID")
		return
	}

	deleted, err := h.store.DeleteSurvey(surveyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Survey not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	surveyID, err := strconv.ParseInt(chi.URLParam(r, "surveyID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid survey ID")
		return
	}

	var req model.QuestionInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Question text is required")
		return
	}

	if _, err := h.store.GetSurvey(surveyID); err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Survey not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Orders are unique and immutable within a survey.
	questions, err := h.store.QuestionsBySurvey(surveyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, q := range questions {
		if q.OrderIndex == req.OrderIndex {
			writeError(w, http.StatusConflict, fmt.Sprintf("order_index %d already used", req.OrderIndex))
			return
		}
	}

	id, err := h.store.AddQuestion(model.Question{
		SurveyID:   surveyID,
		OrderIndex: req.OrderIndex,
		Text:       req.Text,
		Type:       req.Type,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if g := strings.TrimSpace(req.Guideline); g != "" {
		if err := h.store.UpsertGuideline(id, g); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question ID")
		return
	}

	deleted, err := h.store.DeleteQuestion(questionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Question not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleUpsertGuideline(w http.ResponseWriter, r *http.Request) {
	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question ID")
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.store.GetQuestion(questionID); err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Question not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.store.UpsertGuideline(questionID, req.Content); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleDeleteGuideline(w http.ResponseWriter, r *http.Request) {
	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question ID")
		return
	}

	// Deleting a missing guideline is fine.
	deleted, err := h.store.DeleteGuideline(questionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	n := 0
	if deleted {
		n = 1
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": n})
}

func (h *Handler) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SurveyID int64 `json:"survey_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.store.GetSurvey(req.SurveyID); err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Survey not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// One active link per survey: hand the existing one back.
	existing, err := h.store.ActiveLinkForSurvey(req.SurveyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"token":    existing.Token,
			"url":      "/take/" + existing.Token,
			"existing": true,
		})
		return
	}

	tok, err := h.signer.Sign(req.SurveyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := h.store.CreateLink(req.SurveyID, tok); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    tok,
		"url":      "/take/" + tok,
		"existing": false,
	})
}

func (h *Handler) handleRevokeLink(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")

	revoked, err := h.store.RevokeLink(tok)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !revoked {
		writeError(w, http.StatusNotFound, "Link not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleResponses(w http.ResponseWriter, r *http.Request) {
	surveyID, err := strconv.ParseInt(chi.URLParam(r, "surveyID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid survey ID")
		return
	}

	rows, err := h.store.ResponseRows(surveyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []model.ResponseRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	surveyID, err := strconv.ParseInt(chi.URLParam(r, "surveyID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid survey ID")
		return
	}

	rows, err := h.store.ResponseRows(surveyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=survey_%d_responses.csv", surveyID))
	if err := store.WriteResponsesCSV(w, rows); err != nil {
		slog.Error("write csv", "survey_id", surveyID, "error", err)
	}
}
