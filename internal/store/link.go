package store

import (
	"database/sql"
	"time"

	"github.com/ndrozd/surveybot/internal/model"
)

// CreateLink stores a minted link token for a survey.
func (s *Store) CreateLink(surveyID int64, token string) (model.SurveyLink, error) {
	now := time.Now()
	res, err := s.db.Exec(
		`INSERT INTO survey_links (survey_id, token, is_active, created_at) VALUES (?, ?, 1, ?)`,
		surveyID, token, now,
	)
	if err != nil {
		return model.SurveyLink{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.SurveyLink{}, err
	}
	return model.SurveyLink{ID: id, SurveyID: surveyID, Token: token, Active: true, CreatedAt: now}, nil
}

// GetLink returns a link by ID.
func (s *Store) GetLink(id int64) (model.SurveyLink, error) {
	var l model.SurveyLink
	err := s.db.QueryRow(
		`SELECT id, survey_id, token, is_active, created_at FROM survey_links WHERE id = ?`, id,
	).Scan(&l.ID, &l.SurveyID, &l.Token, &l.Active, &l.CreatedAt)
	return l, err
}

// GetLinkByToken returns the link carrying a token, or nil if unknown.
func (s *Store) GetLinkByToken(token string) (*model.SurveyLink, error) {
	var l model.SurveyLink
	err := s.db.QueryRow(
		`SELECT id, survey_id, token, is_active, created_at FROM survey_links WHERE token = ?`, token,
	).Scan(&l.ID, &l.SurveyID, &l.Token, &l.Active, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ActiveLinkForSurvey returns the survey's active link, or nil if none
// exists. Link creation is idempotent on top of this: one active link per
// survey at a time.
func (s *Store) ActiveLinkForSurvey(surveyID int64) (*model.SurveyLink, error) {
	var l model.SurveyLink
	err := s.db.QueryRow(
		`SELECT id, survey_id, token, is_active, created_at FROM survey_links
		 WHERE survey_id = ? AND is_active = 1 ORDER BY id DESC LIMIT 1`, surveyID,
	).Scan(&l.ID, &l.SurveyID, &l.Token, &l.Active, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// RevokeLink deactivates a link by token. It reports whether an active link
// was revoked. Existing respondent sessions keep their stored data; the
// token just stops admitting anyone.
func (s *Store) RevokeLink(token string) (bool, error) {
	res, err := s.db.Exec(`UPDATE survey_links SET is_active = 0 WHERE token = ? AND is_active = 1`, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
