package domain

import (
	"fmt"
	"strings"
)

// Summarize derives the document summary from per-clause results. It is a
// pure function of its input.
func Summarize(results []RiskResult) DocumentSummary {
	counts := make(map[RiskLevel]int, len(RiskLevels))
	for _, level := range RiskLevels {
		counts[level] = 0
	}

	overall := RiskLow
	for _, r := range results {
		level := r.RiskLevel
		if !level.Valid() {
			level = RiskMedium
		}
		counts[level]++
		if level > overall {
			overall = level
		}
	}

	return DocumentSummary{
		TotalClauses: len(results),
		CountsByRisk: counts,
		OverallRisk:  overall,
		Overview:     overview(len(results), counts, overall),
	}
}

func overview(total int, counts map[RiskLevel]int, overall RiskLevel) string {
	if total == 0 {
		return "No clauses were found in the document."
	}

	var parts []string
	for i := len(RiskLevels) - 1; i >= 0; i-- {
		level := RiskLevels[i]
		parts = append(parts, fmt.Sprintf("%d %s", counts[level], strings.ToLower(level.String())))
	}

	noun := "clauses"
	if total == 1 {
		noun = "clause"
	}

	var advice string
	switch overall {
	case RiskCritical:
		advice = "Some provisions may conflict with the law; review by a qualified lawyer is recommended before accepting."
	case RiskHigh:
		advice = "The terms contain provisions that are likely unfair to the consumer."
	case RiskMedium:
		advice = "Several provisions deserve careful reading before accepting."
	default:
		advice = "The terms appear standard."
	}

	return fmt.Sprintf("Analyzed %d %s: %s. Overall risk: %s. %s",
		total, noun, strings.Join(parts, ", "), overall, advice)
}
