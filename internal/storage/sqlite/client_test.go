package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termscon/backend/internal/analysis"
	"github.com/termscon/backend/internal/domain"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "analyses.db"))
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())
	t.Cleanup(func() { c.Close() })
	return c
}

func testReport(createdAt time.Time) *analysis.Report {
	results := []domain.RiskResult{
		{
			ClauseIndex: 0, ClauseText: "First clause text.", RiskLevel: domain.RiskHigh,
			Summary: "s0", Conflicts: []string{"Unilateral modification of terms"}, Explanation: "e0",
			RelevantLaws: []string{"§ 1752"}, Source: domain.SourceHeuristic,
		},
		{
			ClauseIndex: 1, ClauseText: "Second clause text.", RiskLevel: domain.RiskLow,
			Summary: "s1", Explanation: "e1", Source: domain.SourceModel,
		},
	}
	return &analysis.Report{
		ID:        uuid.New(),
		Filename:  "terms.txt",
		Summary:   domain.Summarize(results),
		Results:   results,
		Duration:  1500 * time.Millisecond,
		CreatedAt: createdAt,
	}
}

func TestRecordAndGetAnalysis(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	report := testReport(time.Now().UTC())

	require.NoError(t, c.RecordAnalysis(ctx, report, "full document"))

	detail, err := c.GetAnalysis(ctx, report.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "terms.txt", detail.Session.Filename)
	assert.Equal(t, "full document", detail.Session.DocumentText)
	assert.Equal(t, "High", detail.Session.OverallRisk)
	assert.Equal(t, 2, detail.Session.TotalClauses)
	assert.Equal(t, 1, detail.Session.HighCount)
	assert.Equal(t, 1, detail.Session.LowCount)
	assert.Equal(t, int64(1500), detail.Session.DurationMS)

	require.Len(t, detail.Clauses, 2)
	assert.Equal(t, 0, detail.Clauses[0].ClauseIndex)
	assert.Equal(t, []string{"Unilateral modification of terms"}, detail.Clauses[0].Conflicts)
	assert.Equal(t, "heuristic_fallback", detail.Clauses[0].Source)
	assert.Equal(t, []string{}, detail.Clauses[1].Conflicts)
	assert.Equal(t, "model_generated", detail.Clauses[1].Source)
}

func TestGetAnalysisNotFound(t *testing.T) {
	c := newTestClient(t)
	_, err := c.GetAnalysis(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAnalysesNewestFirst(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 25; i++ {
		r := testReport(base.Add(time.Duration(i) * time.Minute))
		r.Filename = fmt.Sprintf("doc-%d.txt", i)
		require.NoError(t, c.RecordAnalysis(ctx, r, "text"))
		ids = append(ids, r.ID.String())
	}

	sessions, err := c.ListAnalyses(ctx, 20)
	require.NoError(t, err)
	require.Len(t, sessions, 20)
	assert.Equal(t, ids[24], sessions[0].ID)
	assert.Equal(t, "doc-24.txt", sessions[0].Filename)
	assert.Empty(t, sessions[0].DocumentText)
	assert.Equal(t, ids[5], sessions[19].ID)
	assert.True(t, sessions[0].CreatedAt.Equal(base.Add(24*time.Minute)))
}
