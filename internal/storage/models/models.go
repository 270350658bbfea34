package models

import "time"

// AnalysisSession is one persisted document analysis.
type AnalysisSession struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	DocumentText  string    `json:"document_text,omitempty"`
	OverallRisk   string    `json:"overall_risk"`
	TotalClauses  int       `json:"total_clauses"`
	LowCount      int       `json:"low_count"`
	MediumCount   int       `json:"medium_count"`
	HighCount     int       `json:"high_count"`
	CriticalCount int       `json:"critical_count"`
	Overview      string    `json:"overview"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// ClauseRecord is one analyzed clause of a session.
type ClauseRecord struct {
	ID           int64    `json:"-"`
	AnalysisID   string   `json:"analysis_id"`
	ClauseIndex  int      `json:"clause_index"`
	ClauseText   string   `json:"clause_text"`
	RiskLevel    string   `json:"risk_level"`
	Summary      string   `json:"summary"`
	Conflicts    []string `json:"conflicts"`
	Explanation  string   `json:"explanation"`
	RelevantLaws []string `json:"relevant_laws"`
	Source       string   `json:"source"`
}

type AnalysisDetail struct {
	Session AnalysisSession `json:"session"`
	Clauses []ClauseRecord  `json:"clauses"`
}
