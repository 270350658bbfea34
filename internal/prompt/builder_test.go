package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/termscon/backend/internal/domain"
)

func scored(corpus domain.CorpusID, citation, text string) domain.ScoredPassage {
	return domain.ScoredPassage{
		Passage:    domain.LegalPassage{Corpus: corpus, Citation: citation, Text: text},
		Similarity: 0.8,
	}
}

func fullContext() domain.LegalContext {
	return domain.LegalContext{
		Civil: []domain.ScoredPassage{
			scored(domain.CorpusCivil, "§ 1753 OZ", "Obchodní podmínky lze měnit jen v rozsahu ujednaném ve smlouvě."),
			scored(domain.CorpusCivil, "§ 1799 OZ", "Doložka v adhezní smlouvě, která odkazuje na podmínky mimo text smlouvy."),
		},
		Criminal: []domain.ScoredPassage{
			scored(domain.CorpusCriminal, "§ 209 TZ", "Kdo sebe nebo jiného obohatí tím, že uvede někoho v omyl."),
		},
	}
}

func TestBuildContainsClauseAndContext(t *testing.T) {
	b := NewBuilder("", 0)
	clause := "The provider may change these terms at any time without notice."

	p := b.Build(clause, fullContext())
	assert.Contains(t, p, clause)
	assert.Contains(t, p, DefaultFramework)
	assert.Contains(t, p, "Relevant civil law provisions")
	assert.Contains(t, p, "§ 1753 OZ")
	assert.Contains(t, p, "Relevant criminal law provisions")
	assert.Contains(t, p, "§ 209 TZ")
	for _, key := range []string{"risk_level", "summary", "conflicts", "explanation", "relevant_laws"} {
		assert.Contains(t, p, key)
	}
}

func TestBuildOmitsEmptySections(t *testing.T) {
	b := NewBuilder("", 0)
	p := b.Build("A clause without any context.", domain.LegalContext{})

	assert.NotContains(t, p, "Relevant civil law provisions")
	assert.NotContains(t, p, "Relevant criminal law provisions")

	onlyCivil := fullContext()
	onlyCivil.Criminal = nil
	p = b.Build("A clause.", onlyCivil)
	assert.Contains(t, p, "Relevant civil law provisions")
	assert.NotContains(t, p, "Relevant criminal law provisions")
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder("", 0)
	assert.Equal(t, b.Build("Same clause.", fullContext()), b.Build("Same clause.", fullContext()))
}

func TestBuildRespectsCeiling(t *testing.T) {
	b := NewBuilder("", 2000)
	long := strings.Repeat("Poskytovatel může kdykoli změnit podmínky. ", 200)

	p := b.Build(long, fullContext())
	assert.LessOrEqual(t, utf8.RuneCountInString(p), 2000)
	assert.Contains(t, p, "[…]")
	assert.Contains(t, p, "§ 209 TZ")
	assert.Contains(t, p, "relevant_laws")
}

func TestBuildDropsContextWhenCeilingIsTiny(t *testing.T) {
	b := NewBuilder("", 700)
	p := b.Build(strings.Repeat("x", 1000), fullContext())

	assert.LessOrEqual(t, utf8.RuneCountInString(p), 700)
	assert.Contains(t, p, "relevant_laws")
}

func TestSystemPromptNamesFramework(t *testing.T) {
	b := NewBuilder("German civil law", 0)
	assert.Contains(t, b.SystemPrompt(), "German civil law")
}

func TestBuildBoundsLongFramework(t *testing.T) {
	b := NewBuilder(strings.Repeat("f", 2000), 2000)
	p := b.Build("The provider may change these terms at any time.", fullContext())

	assert.LessOrEqual(t, utf8.RuneCountInString(p), 2000)
	assert.Contains(t, p, "The provider may change these terms at any time.")
	assert.Contains(t, p, "relevant_laws")
	assert.NotContains(t, b.SystemPrompt(), strings.Repeat("f", MaxFrameworkRunes+1))
}

func TestBuildNeverExceedsCeilingSmallerThanFrame(t *testing.T) {
	b := NewBuilder("", 100)
	p := b.Build("clause", fullContext())
	assert.LessOrEqual(t, utf8.RuneCountInString(p), 100)
	assert.NotEmpty(t, p)
}
