package model

// ResponseRow is one answer flattened for export, joined with its respondent
// and question. Rows are ordered by respondent, then by question order.
type ResponseRow struct {
	RespondentID int64            `json:"respondent_id"`
	Status       RespondentStatus `json:"status"`
	OrderIndex   int              `json:"order_index"`
	Question     string           `json:"question"`
	AnswerText   string           `json:"answer_text"`
	Flagged      bool             `json:"flagged"`
	Score        *float64         `json:"score"`
	Rationale    string           `json:"rationale"`
	LowQuality   bool             `json:"low_quality"`
}
