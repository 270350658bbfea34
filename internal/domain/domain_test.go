package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRiskLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want RiskLevel
	}{
		{"Low", RiskLow},
		{" medium ", RiskMedium},
		{"HIGH", RiskHigh},
		{"critical", RiskCritical},
	} {
		got, err := ParseRiskLevel(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseRiskLevel("severe")
	assert.Error(t, err)
	assert.Equal(t, RiskMedium, CoerceRiskLevel("severe"))
	assert.Equal(t, RiskMedium, CoerceRiskLevel(""))
}

func TestRiskLevelJSON(t *testing.T) {
	b, err := json.Marshal(RiskHigh)
	require.NoError(t, err)
	assert.Equal(t, `"High"`, string(b))

	var level RiskLevel
	require.NoError(t, json.Unmarshal([]byte(`"Critical"`), &level))
	assert.Equal(t, RiskCritical, level)
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &level))
	assert.Error(t, json.Unmarshal([]byte(`3`), &level))
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.TotalClauses)
	assert.Equal(t, RiskLow, s.OverallRisk)
	assert.Len(t, s.CountsByRisk, 4)
	for _, level := range RiskLevels {
		assert.Equal(t, 0, s.CountsByRisk[level])
	}
	assert.NotEmpty(t, s.Overview)
}

func TestSummarizeCountsAndOverall(t *testing.T) {
	results := []RiskResult{
		{ClauseIndex: 0, RiskLevel: RiskLow},
		{ClauseIndex: 1, RiskLevel: RiskHigh},
		{ClauseIndex: 2, RiskLevel: RiskMedium},
		{ClauseIndex: 3, RiskLevel: RiskHigh},
	}
	s := Summarize(results)

	total := 0
	for _, n := range s.CountsByRisk {
		total += n
	}
	assert.Equal(t, s.TotalClauses, total)
	assert.Equal(t, 4, s.TotalClauses)
	assert.Equal(t, RiskHigh, s.OverallRisk)
	assert.Equal(t, 2, s.CountsByRisk[RiskHigh])
	assert.Equal(t, 0, s.CountsByRisk[RiskCritical])
	assert.Contains(t, s.Overview, "Overall risk: High")
}

func TestSummarizeIsPure(t *testing.T) {
	results := []RiskResult{{RiskLevel: RiskCritical}, {RiskLevel: RiskLow}}
	assert.Equal(t, Summarize(results), Summarize(results))
}

func TestSummaryJSONUsesLevelNames(t *testing.T) {
	b, err := json.Marshal(Summarize([]RiskResult{{RiskLevel: RiskCritical}}))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"Critical":1`)
	assert.Contains(t, string(b), `"overall_risk":"Critical"`)
}

func TestLegalContextCitations(t *testing.T) {
	ctx := LegalContext{
		Civil:    []ScoredPassage{{Passage: LegalPassage{Citation: "§1815"}}},
		Criminal: []ScoredPassage{{Passage: LegalPassage{Citation: "§209"}}},
	}
	assert.Equal(t, []string{"§1815", "§209"}, ctx.Citations())
	assert.False(t, ctx.Empty())
	assert.True(t, LegalContext{}.Empty())
}
