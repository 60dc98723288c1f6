package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ndrozd/surveybot/internal/model"
)

// CreateRespondent opens a new respondent session on a link.
func (s *Store) CreateRespondent(linkID int64, displayName string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO respondents (link_id, display_name, status, created_at) VALUES (?, ?, 'in_progress', ?)`,
		linkID, displayName, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetRespondent returns a respondent by ID.
func (s *Store) GetRespondent(id int64) (model.Respondent, error) {
	var r model.Respondent
	err := s.db.QueryRow(
		`SELECT id, link_id, display_name, status, created_at, submitted_at FROM respondents WHERE id = ?`, id,
	).Scan(&r.ID, &r.LinkID, &r.DisplayName, &r.Status, &r.CreatedAt, &r.SubmittedAt)
	return r, err
}

// SetRespondentStatus updates a respondent's status, stamping submitted_at
// on submission.
func (s *Store) SetRespondentStatus(id int64, status model.RespondentStatus) error {
	query := `UPDATE respondents SET status = ? WHERE id = ?`
	args := []any{status, id}
	if status == model.StatusSubmitted {
		query = `UPDATE respondents SET status = ?, submitted_at = ? WHERE id = ?`
		args = []any{status, time.Now(), id}
	}
	_, err := s.db.Exec(query, args...)
	return err
}

const answerColumns = `id, respondent_id, question_id, answer_text, flagged, score, rationale, low_quality, referenced_orders, reference_warning, updated_at`

func scanAnswer(row interface{ Scan(...any) error }) (model.Answer, error) {
	var a model.Answer
	var score sql.NullFloat64
	var refs string
	err := row.Scan(&a.ID, &a.RespondentID, &a.QuestionID, &a.Text, &a.Flagged,
		&score, &a.Rationale, &a.LowQuality, &refs, &a.RefWarning, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	if score.Valid {
		a.Score = &score.Float64
	}
	a.Refs, err = decodeRefOrders(refs)
	return a, err
}

// InsertAnswer stores a new answer with its detected references. Score
// fields start empty; a scoring pass fills them in afterwards.
func (s *Store) InsertAnswer(a model.Answer) (int64, error) {
	refs, err := encodeRefOrders(a.Refs)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO answers (respondent_id, question_id, answer_text, flagged, referenced_orders, reference_warning, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.RespondentID, a.QuestionID, a.Text, a.Flagged, refs, a.RefWarning, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateAnswerContent replaces an answer's text, flag and detected
// references, leaving score fields alone.
func (s *Store) UpdateAnswerContent(id int64, text string, flagged bool, refOrders []int, refWarning string) error {
	refs, err := encodeRefOrders(refOrders)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`UPDATE answers SET answer_text = ?, flagged = ?, referenced_orders = ?, reference_warning = ?, updated_at = ?
		 WHERE id = ?`,
		text, flagged, refs, refWarning, time.Now(), id,
	)
	return err
}

// SetAnswerScore stores a scoring verdict on an answer.
func (s *Store) SetAnswerScore(id int64, score float64, rationale string, lowQuality bool) error {
	_, err := s.db.Exec(
		`UPDATE answers SET score = ?, rationale = ?, low_quality = ? WHERE id = ?`,
		score, rationale, lowQuality, id,
	)
	return err
}

// ClearAnswerScore removes any stored scoring verdict from an answer.
func (s *Store) ClearAnswerScore(id int64) error {
	_, err := s.db.Exec(
		`UPDATE answers SET score = NULL, rationale = '', low_quality = 0 WHERE id = ?`, id,
	)
	return err
}

// GetAnswer returns an answer by ID.
func (s *Store) GetAnswer(id int64) (model.Answer, error) {
	return scanAnswer(s.db.QueryRow(
		`SELECT `+answerColumns+` FROM answers WHERE id = ?`, id,
	))
}

// AnswerForQuestion returns the respondent's answer to a question, or nil if
// they have not answered it.
func (s *Store) AnswerForQuestion(respondentID, questionID int64) (*model.Answer, error) {
	a, err := scanAnswer(s.db.QueryRow(
		`SELECT `+answerColumns+` FROM answers WHERE respondent_id = ? AND question_id = ?`,
		respondentID, questionID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AnswersByRespondent returns all of a respondent's answers, ordered by the
// questions they answer.
func (s *Store) AnswersByRespondent(respondentID int64) ([]model.Answer, error) {
	rows, err := s.db.Query(
		`SELECT a.id, a.respondent_id, a.question_id, a.answer_text, a.flagged, a.score, a.rationale,
		        a.low_quality, a.referenced_orders, a.reference_warning, a.updated_at
		 FROM answers a
		 JOIN questions q ON q.id = a.question_id
		 WHERE a.respondent_id = ?
		 ORDER BY q.order_index`, respondentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// AnswerCount returns how many answers a respondent has stored.
func (s *Store) AnswerCount(respondentID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM answers WHERE respondent_id = ?`, respondentID).Scan(&count)
	return count, err
}

// DeleteAnswer removes an answer by ID.
func (s *Store) DeleteAnswer(id int64) error {
	_, err := s.db.Exec(`DELETE FROM answers WHERE id = ?`, id)
	return err
}

func encodeRefOrders(orders []int) (string, error) {
	if len(orders) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(orders)
	if err != nil {
		return "", fmt.Errorf("encode referenced orders: %w", err)
	}
	return string(data), nil
}

func decodeRefOrders(raw string) ([]int, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var orders []int
	if err := json.Unmarshal([]byte(raw), &orders); err != nil {
		return nil, fmt.Errorf("decode referenced orders: %w", err)
	}
	return orders, nil
}
