package sqlite

import (
	"context"

	"github.com/termscon/backend/internal/analysis"
	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/internal/storage/models"
)

// RecordAnalysis persists a completed report; it makes Client an
// analysis.Recorder.
func (c *Client) RecordAnalysis(ctx context.Context, report *analysis.Report, text string) error {
	session, clauses := FromReport(report, text)
	return c.InsertAnalysis(ctx, session, clauses)
}

func FromReport(report *analysis.Report, text string) (*models.AnalysisSession, []models.ClauseRecord) {
	counts := report.Summary.CountsByRisk
	session := &models.AnalysisSession{
		ID:            report.ID.String(),
		Filename:      report.Filename,
		DocumentText:  text,
		OverallRisk:   report.Summary.OverallRisk.String(),
		TotalClauses:  report.Summary.TotalClauses,
		LowCount:      counts[domain.RiskLow],
		MediumCount:   counts[domain.RiskMedium],
		HighCount:     counts[domain.RiskHigh],
		CriticalCount: counts[domain.RiskCritical],
		Overview:      report.Summary.Overview,
		DurationMS:    report.Duration.Milliseconds(),
		CreatedAt:     report.CreatedAt,
	}

	clauses := make([]models.ClauseRecord, len(report.Results))
	for i, r := range report.Results {
		clauses[i] = models.ClauseRecord{
			AnalysisID:   session.ID,
			ClauseIndex:  r.ClauseIndex,
			ClauseText:   r.ClauseText,
			RiskLevel:    r.RiskLevel.String(),
			Summary:      r.Summary,
			Conflicts:    r.Conflicts,
			Explanation:  r.Explanation,
			RelevantLaws: r.RelevantLaws,
			Source:       string(r.Source),
		}
	}
	return session, clauses
}
