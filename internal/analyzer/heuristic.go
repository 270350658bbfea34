package analyzer

import (
	"fmt"
	"strings"

	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/pkg/config"
)

// TriggerFamily is a named group of phrases that signal one kind of risk.
type TriggerFamily struct {
	Name        string
	Severity    domain.RiskLevel
	Phrases     []string
	Summary     string
	Explanation string
	Laws        []string
}

const (
	lowSummary     = "Standard clause without apparent legal issues."
	lowExplanation = "No risk indicators were found in the clause. It was assessed by keyword analysis only, without a language model."
)

// DefaultFamilies covers English and Czech wording.
func DefaultFamilies() []TriggerFamily {
	return []TriggerFamily{
		{
			Name:     "Unilateral modification of terms",
			Severity: domain.RiskHigh,
			Phrases: []string{
				"change these terms", "modify these terms", "amend these terms", "change the terms",
				"at any time", "without notice", "without prior notice", "reserve the right", "unilaterally",
				"vyhrazujeme si právo", "kdykoli změnit", "bez předchozího upozornění", "jednostranně",
			},
			Summary:     "The clause lets the provider change the terms unilaterally.",
			Explanation: "Changing contract terms without notice or consent upsets the balance of rights between the parties and may be unenforceable against a consumer.",
			Laws:        []string{"§ 1752 Občanského zákoníku", "§ 1826 Občanského zákoníku"},
		},
		{
			Name:     "Exclusion of liability",
			Severity: domain.RiskCritical,
			Phrases: []string{
				"not liable", "not be liable", "no liability", "disclaim all liability", "disclaims all liability",
				"exclude all liability", "excludes all liability", "at your own risk", "non-refundable", "irrevocable",
				"zproštění odpovědnosti", "zprošťuje veškeré odpovědnosti", "vyloučení odpovědnosti",
				"nevratný", "bezpodmínečný", "neomezený", "na vlastní riziko",
			},
			Summary:     "The clause excludes or severely limits the provider's liability.",
			Explanation: "Blanket exclusions of liability and waivers of consumer rights are generally void in consumer contracts and should be reviewed by a lawyer.",
			Laws:        []string{"§ 1815 Občanského zákoníku", "§ 2898 Občanského zákoníku"},
		},
		{
			Name:     "Sharing of personal data",
			Severity: domain.RiskHigh,
			Phrases: []string{
				"share your personal data", "share your data", "share your information", "sell your data",
				"with third parties", "to third parties", "transfer your data",
				"třetím stranám", "třetím osobám", "předávat osobní údaje", "sdílet osobní údaje",
			},
			Summary:     "The clause allows personal data to be passed to third parties.",
			Explanation: "Disclosure of personal data to third parties needs a lawful basis and clear information for the data subject.",
			Laws:        []string{"Nařízení (EU) 2016/679 (GDPR), čl. 6"},
		},
		{
			Name:     "Discretionary wording",
			Severity: domain.RiskMedium,
			Phrases: []string{
				"at our discretion", "at our sole discretion", "we may", "if necessary", "as we see fit",
				"můžeme", "podle našeho uvážení", "v případě potřeby",
			},
			Summary:     "The clause leaves important decisions to the provider's discretion.",
			Explanation: "Vague or discretionary wording can be interpreted in the provider's favour; read it carefully before accepting.",
			Laws:        []string{"§ 1800 Občanského zákoníku"},
		},
		{
			Name:        "Informational",
			Severity:    domain.RiskLow,
			Phrases:     []string{"we inform", "we recommend", "we strive", "informujeme", "snažíme se", "doporučujeme"},
			Summary:     lowSummary,
			Explanation: lowExplanation,
		},
	}
}

// FamiliesFromConfig converts configured families, falling back to the
// defaults when none are configured.
func FamiliesFromConfig(cfg config.HeuristicsConfig) ([]TriggerFamily, error) {
	if len(cfg.Families) == 0 {
		return DefaultFamilies(), nil
	}

	out := make([]TriggerFamily, 0, len(cfg.Families))
	for _, f := range cfg.Families {
		level, err := domain.ParseRiskLevel(f.Severity)
		if err != nil {
			return nil, fmt.Errorf("heuristic family %q: %w", f.Name, err)
		}
		if strings.TrimSpace(f.Name) == "" || len(f.Phrases) == 0 {
			return nil, fmt.Errorf("heuristic family %q needs a name and at least one phrase", f.Name)
		}
		out = append(out, TriggerFamily{
			Name:        f.Name,
			Severity:    level,
			Phrases:     f.Phrases,
			Summary:     f.Summary,
			Explanation: f.Explanation,
			Laws:        f.Laws,
		})
	}
	return out, nil
}

// Heuristic assigns a risk level from trigger phrases alone.
type Heuristic struct {
	families []TriggerFamily
}

func NewHeuristic(families []TriggerFamily) *Heuristic {
	normalized := make([]TriggerFamily, len(families))
	for i, f := range families {
		phrases := make([]string, 0, len(f.Phrases))
		for _, p := range f.Phrases {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				phrases = append(phrases, p)
			}
		}
		f.Phrases = phrases
		normalized[i] = f
	}
	return &Heuristic{families: normalized}
}

// Assess matches phrases case-insensitively. The highest matched severity
// wins; conflicts name every matched family above Low in configuration
// order; the text and laws come from the first family at that severity.
// Citations of the retrieved context are appended to the laws.
func (h *Heuristic) Assess(clause domain.Clause, lctx domain.LegalContext) domain.RiskResult {
	text := strings.ToLower(clause.Text)

	level := domain.RiskLow
	var top *TriggerFamily
	conflicts := []string{}

	for i := range h.families {
		f := &h.families[i]
		if !matchesAny(text, f.Phrases) {
			continue
		}
		if f.Severity > domain.RiskLow {
			conflicts = append(conflicts, f.Name)
		}
		if top == nil || f.Severity > level {
			top = f
			level = f.Severity
		}
	}

	summary, explanation := lowSummary, lowExplanation
	var laws []string
	if top != nil {
		if top.Summary != "" {
			summary = top.Summary
		}
		if top.Explanation != "" {
			explanation = top.Explanation
		}
		laws = append(laws, top.Laws...)
	}
	laws = append(laws, lctx.Citations()...)

	return domain.RiskResult{
		ClauseIndex:  clause.Index,
		ClauseText:   clause.Text,
		RiskLevel:    level,
		Summary:      summary,
		Conflicts:    conflicts,
		Explanation:  explanation,
		RelevantLaws: dedupe(laws),
		Source:       domain.SourceHeuristic,
	}
}

func matchesAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
