// Package domain holds the value types shared by the analysis pipeline.
package domain

import (
	"fmt"
	"strings"
)

// Clause is one provision extracted from a document.
type Clause struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type CorpusID string

const (
	CorpusCivil    CorpusID = "civil"
	CorpusCriminal CorpusID = "criminal"
)

// Corpora lists every corpus the index must hold.
var Corpora = []CorpusID{CorpusCivil, CorpusCriminal}

func ParseCorpusID(s string) (CorpusID, error) {
	switch CorpusID(strings.ToLower(strings.TrimSpace(s))) {
	case CorpusCivil:
		return CorpusCivil, nil
	case CorpusCriminal:
		return CorpusCriminal, nil
	}
	return "", fmt.Errorf("unknown corpus %q", s)
}

// LegalPassage is a unit of statutory text with a precomputed embedding.
type LegalPassage struct {
	Corpus    CorpusID  `json:"corpus"`
	Citation  string    `json:"citation"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
}

type ScoredPassage struct {
	Passage    LegalPassage `json:"passage"`
	Similarity float64      `json:"similarity"`
}

// LegalContext is the supporting material selected for one clause.
type LegalContext struct {
	Civil    []ScoredPassage `json:"civil"`
	Criminal []ScoredPassage `json:"criminal"`
}

func (c LegalContext) Empty() bool {
	return len(c.Civil) == 0 && len(c.Criminal) == 0
}

// Citations returns the citations of all passages, civil first.
func (c LegalContext) Citations() []string {
	out := make([]string, 0, len(c.Civil)+len(c.Criminal))
	for _, sp := range c.Civil {
		out = append(out, sp.Passage.Citation)
	}
	for _, sp := range c.Criminal {
		out = append(out, sp.Passage.Citation)
	}
	return out
}

// Source records which path produced a RiskResult.
type Source string

const (
	SourceModel     Source = "model_generated"
	SourceHeuristic Source = "heuristic_fallback"
)

// RiskResult is the outcome for one clause.
type RiskResult struct {
	ClauseIndex  int       `json:"clause_index"`
	ClauseText   string    `json:"clause_text"`
	RiskLevel    RiskLevel `json:"risk_level"`
	Summary      string    `json:"summary"`
	Conflicts    []string  `json:"conflicts"`
	Explanation  string    `json:"explanation"`
	RelevantLaws []string  `json:"relevant_laws"`
	Source       Source    `json:"source"`
}

// DocumentSummary aggregates the results of one document. CountsByRisk
// always holds all four levels; keys marshal as level names.
type DocumentSummary struct {
	TotalClauses int               `json:"total_clauses"`
	CountsByRisk map[RiskLevel]int `json:"counts_by_risk"`
	OverallRisk  RiskLevel         `json:"overall_risk"`
	Overview     string            `json:"overview"`
}
