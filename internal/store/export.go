package store

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ndrozd/surveybot/internal/model"
)

// ResponseRows builds export-ready rows for every answer collected on a
// survey, across all of its links and respondents.
func (s *Store) ResponseRows(surveyID int64) ([]model.ResponseRow, error) {
	rows, err := s.db.Query(
		`SELECT r.id, r.status, q.order_index, q.text, a.answer_text, a.flagged,
		        a.score, a.rationale, a.low_quality
		 FROM answers a
		 JOIN respondents r ON r.id = a.respondent_id
		 JOIN survey_links l ON l.id = r.link_id
		 JOIN questions q ON q.id = a.question_id
		 WHERE l.survey_id = ?
		 ORDER BY r.id, q.order_index`, surveyID,
	)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	var results []model.ResponseRow
	for rows.Next() {
		var row model.ResponseRow
		var score sql.NullFloat64
		if err := rows.Scan(&row.RespondentID, &row.Status, &row.OrderIndex, &row.Question,
			&row.AnswerText, &row.Flagged, &score, &row.Rationale, &row.LowQuality); err != nil {
			return nil, fmt.Errorf("scan response row: %w", err)
		}
		if score.Valid {
			row.Score = &score.Float64
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// WriteResponsesCSV writes response rows as CSV with a fixed header.
func WriteResponsesCSV(w io.Writer, rows []model.ResponseRow) error {
	cw := csv.NewWriter(w)
	header := []string{"respondent_id", "status", "order_index", "question", "answer_text", "flagged", "score", "rationale", "low_quality"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		score := ""
		if row.Score != nil {
			score = strconv.FormatFloat(*row.Score, 'f', -1, 64)
		}
		record := []string{
			strconv.FormatInt(row.RespondentID, 10),
			string(row.Status),
			strconv.Itoa(row.OrderIndex),
			row.Question,
			row.AnswerText,
			strconv.FormatBool(row.Flagged),
			score,
			row.Rationale,
			strconv.FormatBool(row.LowQuality),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
