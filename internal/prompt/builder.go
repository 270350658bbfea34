// Package prompt renders the per-clause instruction sent to the model.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/pkg/utils"
)

const (
	DefaultFramework      = "Czech civil and criminal law"
	DefaultMaxPromptRunes = 2000
	// MaxFrameworkRunes bounds the framework name so the fixed prompt
	// frame always leaves room for the clause.
	MaxFrameworkRunes = 120
	clauseMarker          = " […]"
	minClauseRunes        = 40
)

type Builder struct {
	framework      string
	maxPromptRunes int
}

func NewBuilder(framework string, maxPromptRunes int) *Builder {
	if strings.TrimSpace(framework) == "" {
		framework = DefaultFramework
	}
	framework = utils.TruncateRunes(strings.TrimSpace(framework), MaxFrameworkRunes, "")
	if maxPromptRunes <= 0 {
		maxPromptRunes = DefaultMaxPromptRunes
	}
	return &Builder{framework: framework, maxPromptRunes: maxPromptRunes}
}

func (b *Builder) MaxPromptRunes() int {
	return b.maxPromptRunes
}

func (b *Builder) SystemPrompt() string {
	return fmt.Sprintf("You are a legal analyst specialising in %s. "+
		"You assess clauses of consumer terms and conditions for legal risk to the consumer "+
		"and answer only with the requested JSON object.", b.framework)
}

// Build returns the user prompt for one clause. The result never exceeds
// the configured rune ceiling: context sections are dropped criminal
// first if they alone would overflow it, then the clause is shortened.
// A ceiling smaller than the fixed frame cuts the prompt itself.
func (b *Builder) Build(clauseText string, lctx domain.LegalContext) string {
	civil, criminal := lctx.Civil, lctx.Criminal

	for {
		head, tail := b.frame(civil, criminal)
		budget := b.maxPromptRunes - utf8.RuneCountInString(head) - utf8.RuneCountInString(tail)

		if budget >= minClauseRunes || (len(civil) == 0 && len(criminal) == 0) {
			clause := clauseText
			if utf8.RuneCountInString(clause) > budget {
				clause = utils.TruncateRunes(clause, max(budget, 0), clauseMarker)
			}
			out := head + clause + tail
			if utf8.RuneCountInString(out) > b.maxPromptRunes {
				out = utils.TruncateRunes(out, b.maxPromptRunes, "")
			}
			return out
		}

		if len(criminal) > 0 {
			criminal = criminal[:len(criminal)-1]
		} else {
			civil = civil[:len(civil)-1]
		}
	}
}

// frame renders everything around the clause text.
func (b *Builder) frame(civil, criminal []domain.ScoredPassage) (string, string) {
	var head strings.Builder
	fmt.Fprintf(&head, "Assess the following clause from a terms and conditions document under %s.\n\n", b.framework)
	head.WriteString("Clause:\n\"\"\"\n")

	var tail strings.Builder
	tail.WriteString("\n\"\"\"\n")
	writeSection(&tail, "Relevant civil law provisions", civil)
	writeSection(&tail, "Relevant criminal law provisions", criminal)
	tail.WriteString("\nRespond with exactly one JSON object and nothing else. Use exactly these keys:\n")
	tail.WriteString(`{"risk_level": "low" | "medium" | "high" | "critical", `)
	tail.WriteString(`"summary": "one-sentence summary", `)
	tail.WriteString(`"conflicts": ["conflicts with the law, may be empty"], `)
	tail.WriteString(`"explanation": "why this risk level", `)
	tail.WriteString(`"relevant_laws": ["citations of relevant provisions"]}`)

	return head.String(), tail.String()
}

func writeSection(sb *strings.Builder, title string, passages []domain.ScoredPassage) {
	if len(passages) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, sp := range passages {
		fmt.Fprintf(sb, "- %s: %s\n", sp.Passage.Citation, sp.Passage.Text)
	}
}
