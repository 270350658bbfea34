package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/pkg/utils"
)

var ErrMalformedResponse = errors.New("malformed model response")

const (
	maxSummaryRunes     = 200
	maxExplanationRunes = 300
	maxListItems        = 3
)

var validate = validator.New()

// modelResponse mirrors the JSON object the prompt asks for. Pointer
// fields distinguish a missing key from an empty value.
type modelResponse struct {
	RiskLevel    *string   `json:"risk_level" validate:"required,oneof=low medium high critical"`
	Summary      *string   `json:"summary" validate:"required"`
	Conflicts    *[]string `json:"conflicts" validate:"required"`
	Explanation  *string   `json:"explanation" validate:"required"`
	RelevantLaws *[]string `json:"relevant_laws" validate:"required"`
}

// parseResponse extracts the first JSON object from raw, decodes it
// strictly and fills the result fields for clause.
func parseResponse(raw string, clause domain.Clause) (domain.RiskResult, error) {
	obj, ok := firstJSONObject(raw)
	if !ok {
		return domain.RiskResult{}, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
	dec.DisallowUnknownFields()

	var resp modelResponse
	if err := dec.Decode(&resp); err != nil {
		return domain.RiskResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if resp.RiskLevel != nil {
		level := strings.ToLower(strings.TrimSpace(*resp.RiskLevel))
		resp.RiskLevel = &level
	}
	if resp.Summary != nil {
		summary := strings.TrimSpace(*resp.Summary)
		resp.Summary = &summary
	}
	if resp.Explanation != nil {
		explanation := strings.TrimSpace(*resp.Explanation)
		resp.Explanation = &explanation
	}
	if err := validate.Struct(resp); err != nil {
		return domain.RiskResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if *resp.Summary == "" || *resp.Explanation == "" {
		return domain.RiskResult{}, fmt.Errorf("%w: empty summary or explanation", ErrMalformedResponse)
	}

	level, err := domain.ParseRiskLevel(*resp.RiskLevel)
	if err != nil {
		return domain.RiskResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return domain.RiskResult{
		ClauseIndex:  clause.Index,
		ClauseText:   clause.Text,
		RiskLevel:    level,
		Summary:      utils.TruncateRunes(*resp.Summary, maxSummaryRunes, "…"),
		Conflicts:    utils.CapStrings(*resp.Conflicts, maxListItems),
		Explanation:  utils.TruncateRunes(*resp.Explanation, maxExplanationRunes, "…"),
		RelevantLaws: utils.CapStrings(*resp.RelevantLaws, maxListItems),
		Source:       domain.SourceModel,
	}, nil
}

// firstJSONObject returns the first balanced {...} span in s, ignoring
// braces inside JSON strings. Code fences and prose around it are skipped.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
