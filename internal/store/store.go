package store

import (
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/ndrozd/surveybot/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer, and :memory: databases exist per
	// connection. One pooled connection covers both.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS surveys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		survey_id INTEGER NOT NULL,
		order_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'text',
		UNIQUE (survey_id, order_index),
		FOREIGN KEY (survey_id) REFERENCES surveys(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS guidelines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL UNIQUE,
		content TEXT NOT NULL,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS survey_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		survey_id INTEGER NOT NULL,
		token TEXT NOT NULL UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (survey_id) REFERENCES surveys(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS respondents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		link_id INTEGER NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'in_progress',
		created_at DATETIME NOT NULL,
		submitted_at DATETIME,
		FOREIGN KEY (link_id) REFERENCES survey_links(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		respondent_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		answer_text TEXT NOT NULL DEFAULT '',
		flagged INTEGER NOT NULL DEFAULT 0,
		score REAL,
		rationale TEXT NOT NULL DEFAULT '',
		low_quality INTEGER NOT NULL DEFAULT 0,
		referenced_orders TEXT NOT NULL DEFAULT '[]',
		reference_warning TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL,
		UNIQUE (respondent_id, question_id),
		FOREIGN KEY (respondent_id) REFERENCES respondents(id) ON DELETE CASCADE,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS survey_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSurvey creates a survey with its questions and their optional
// guidelines in one transaction.
func (s *Store) CreateSurvey(title, description string, questions []model.QuestionInput) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO surveys (title, description, created_at) VALUES (?, ?, ?)`,
		title, description, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	surveyID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	sorted := slices.Clone(questions)
	slices.SortStableFunc(sorted, func(a, b model.QuestionInput) int {
		return a.OrderIndex - b.OrderIndex
	})
	for _, qi := range sorted {
		qType := qi.Type
		if qType == "" {
			qType = model.QuestionText
		}
		qres, err := tx.Exec(
			`INSERT INTO questions (survey_id, order_index, text, type) VALUES (?, ?, ?, ?)`,
			surveyID, qi.OrderIndex, qi.Text, qType,
		)
		if err != nil {
			return 0, err
		}
		if qi.Guideline == "" {
			continue
		}
		questionID, err := qres.LastInsertId()
		if err != nil {
			return 0, err
		}
		_, err = tx.Exec(
			`INSERT INTO guidelines (question_id, content) VALUES (?, ?)`,
			questionID, qi.Guideline,
		)
		if err != nil {
			return 0, err
		}
	}

	return surveyID, tx.Commit()
}

// ListSurveys returns all surveys, newest first.
func (s *Store) ListSurveys() ([]model.Survey, error) {
	rows, err := s.db.Query(`SELECT id, title, description, created_at FROM surveys ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var surveys []model.Survey
	for rows.Next() {
		var sv model.Survey
		if err := rows.Scan(&sv.ID, &sv.Title, &sv.Description, &sv.CreatedAt); err != nil {
			return nil, err
		}
		surveys = append(surveys, sv)
	}
	return surveys, rows.Err()
}

// GetSurvey returns a survey by ID.
func (s *Store) GetSurvey(id int64) (model.Survey, error) {
	var sv model.Survey
	err := s.db.QueryRow(
		`SELECT id, title, description, created_at FROM surveys WHERE id = ?`, id,
	).Scan(&sv.ID, &sv.Title, &sv.Description, &sv.CreatedAt)
	return sv, err
}

// DeleteSurvey removes a survey and everything hanging off it. It reports
// whether the survey existed.
func (s *Store) DeleteSurvey(id int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM surveys WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AddQuestion appends a question to a survey.
func (s *Store) AddQuestion(q model.Question) (int64, error) {
	qType := q.Type
	if qType == "" {
		qType = model.QuestionText
	}
	res, err := s.db.Exec(
		`INSERT INTO questions (survey_id, order_index, text, type) VALUES (?, ?, ?, ?)`,
		q.SurveyID, q.OrderIndex, q.Text, qType,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	var q model.Question
	err := s.db.QueryRow(
		`SELECT id, survey_id, order_index, text, type FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.SurveyID, &q.OrderIndex, &q.Text, &q.Type)
	return q, err
}

// QuestionsBySurvey returns a survey's questions in presentation order.
func (s *Store) QuestionsBySurvey(surveyID int64) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, survey_id, order_index, text, type FROM questions WHERE survey_id = ? ORDER BY order_index`, surveyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SurveyID, &q.OrderIndex, &q.Text, &q.Type); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// DeleteQuestion removes a question together with its guideline and answers.
// It reports whether the question existed.
func (s *Store) DeleteQuestion(id int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpsertGuideline sets or replaces the guideline for a question.
func (s *Store) UpsertGuideline(questionID int64, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO guidelines (question_id, content)
		 VALUES (?, ?)
		 ON CONFLICT(question_id) DO UPDATE SET content = ?`,
		questionID, content, content,
	)
	return err
}

// GetGuideline returns the guideline for a question, or nil if none is set.
func (s *Store) GetGuideline(questionID int64) (*model.Guideline, error) {
	var g model.Guideline
	err := s.db.QueryRow(
		`SELECT id, question_id, content FROM guidelines WHERE question_id = ?`, questionID,
	).Scan(&g.ID, &g.QuestionID, &g.Content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// DeleteGuideline removes a question's guideline. It reports whether one
// existed.
func (s *Store) DeleteGuideline(questionID int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM guidelines WHERE question_id = ?`, questionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetSurveyDetail builds a survey view with all questions and guidelines.
func (s *Store) GetSurveyDetail(surveyID int64) (*model.SurveyDetail, error) {
	sv, err := s.GetSurvey(surveyID)
	if err != nil {
		return nil, err
	}
	questions, err := s.QuestionsBySurvey(surveyID)
	if err != nil {
		return nil, err
	}

	detail := &model.SurveyDetail{Survey: sv}
	for _, q := range questions {
		g, err := s.GetGuideline(q.ID)
		if err != nil {
			return nil, err
		}
		detail.Questions = append(detail.Questions, model.QuestionView{Question: q, Guideline: g})
	}
	return detail, nil
}
