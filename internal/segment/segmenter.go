// Package segment splits Terms & Conditions text into ordered clauses.
package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"

	"github.com/termscon/backend/internal/domain"
)

var (
	blankLine  = regexp.MustCompile(`\n[ \t]*\n+`)
	whitespace = regexp.MustCompile(`\s+`)
	// listMarker matches a line that opens a new list item: "1.", "2)", "(3)",
	// "a)", "B.", "§ 4", "-", "•", "*".
	listMarker = regexp.MustCompile(`^\s*(?:\d{1,3}[.)](?:\d{1,3}\.?)*|\(\d{1,3}\)|\([a-z]\)|[a-z]\)|[A-Z]\.|§\s*\d+|[-•*–])\s+`)
	// inlineItem matches "… end. 2. Next" inside a single line.
	inlineItem = regexp.MustCompile(`[.;:!?]\s+(?:\d{1,3}\.|\(\d{1,3}\))\s+\S`)
)

type Options struct {
	// MinLength is the rune count below which a fragment is dropped.
	MinLength int
	// LongClause is the rune count above which a fragment is regrouped by
	// sentence.
	LongClause int
	// TargetLength is the preferred size of a sentence group.
	TargetLength int
	// HeadingLength is the rune count below which a fragment without
	// sentence punctuation is treated as a heading and dropped.
	HeadingLength int
}

func DefaultOptions() Options {
	return Options{MinLength: 10, LongClause: 800, TargetLength: 400, HeadingLength: 30}
}

// Segmenter is stateless and safe for concurrent use.
type Segmenter struct {
	opts Options
}

func New(opts Options) *Segmenter {
	def := DefaultOptions()
	if opts.MinLength <= 0 {
		opts.MinLength = def.MinLength
	}
	if opts.LongClause <= 0 {
		opts.LongClause = def.LongClause
	}
	if opts.HeadingLength <= 0 {
		opts.HeadingLength = def.HeadingLength
	}
	if opts.TargetLength <= 0 || opts.TargetLength > opts.LongClause {
		opts.TargetLength = opts.LongClause / 2
	}
	return &Segmenter{opts: opts}
}

// Segment never fails. Blank input yields no clauses; any other input
// yields at least one.
func (s *Segmenter) Segment(text string) []domain.Clause {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return []domain.Clause{}
	}

	var fragments []string
	for _, block := range blankLine.Split(text, -1) {
		for _, item := range splitListItems(block) {
			item = collapse(item)
			for _, piece := range splitInline(item) {
				fragments = append(fragments, s.regroup(piece)...)
			}
		}
	}

	clauses := make([]domain.Clause, 0, len(fragments))
	for _, f := range fragments {
		f = strings.TrimSpace(f)
		if utf8.RuneCountInString(f) < s.opts.MinLength || s.isHeading(f) {
			continue
		}
		clauses = append(clauses, domain.Clause{Index: len(clauses), Text: f})
	}

	if len(clauses) == 0 {
		return []domain.Clause{{Index: 0, Text: collapse(text)}}
	}
	return clauses
}

var sentencePunct = regexp.MustCompile(`[.;:!?]`)

// isHeading reports a short fragment with no sentence punctuation once any
// list marker is removed, e.g. "TERMS AND CONDITIONS" or "3. Definitions".
func (s *Segmenter) isHeading(f string) bool {
	if utf8.RuneCountInString(f) >= s.opts.HeadingLength {
		return false
	}
	return !sentencePunct.MatchString(listMarker.ReplaceAllString(f, ""))
}

func splitListItems(block string) []string {
	lines := strings.Split(block, "\n")
	var items []string
	var current []string
	for _, line := range lines {
		if listMarker.MatchString(line) && len(current) > 0 {
			items = append(items, strings.Join(current, "\n"))
			current = nil
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		items = append(items, strings.Join(current, "\n"))
	}
	return items
}

// splitInline breaks "1. First rule. 2. Second rule." apart before every
// item number that follows sentence punctuation.
func splitInline(item string) []string {
	locs := inlineItem.FindAllStringIndex(item, -1)
	if len(locs) == 0 {
		return []string{item}
	}
	var out []string
	start := 0
	for _, loc := range locs {
		// cut after the punctuation mark that ends the previous item
		cut := loc[0] + 1
		out = append(out, item[start:cut])
		start = cut
	}
	out = append(out, item[start:])
	return out
}

func (s *Segmenter) regroup(fragment string) []string {
	if utf8.RuneCountInString(fragment) <= s.opts.LongClause {
		return []string{fragment}
	}

	sentences := splitSentences(fragment)
	if len(sentences) < 2 {
		return []string{fragment}
	}

	var groups []string
	var b strings.Builder
	for _, sentence := range sentences {
		if b.Len() > 0 && utf8.RuneCountInString(b.String())+utf8.RuneCountInString(sentence) > s.opts.TargetLength {
			groups = append(groups, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sentence)
	}
	if b.Len() > 0 {
		groups = append(groups, b.String())
	}
	return groups
}

var sentenceEnd = regexp.MustCompile(`[.!?]\s+\p{Lu}`)

func splitSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err == nil {
		sents := doc.Sentences()
		out := make([]string, 0, len(sents))
		for _, sent := range sents {
			if t := strings.TrimSpace(sent.Text); t != "" {
				out = append(out, t)
			}
		}
		if len(out) > 1 {
			return out
		}
	}

	// punctuation followed by a capital letter
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		_, size := utf8.DecodeLastRuneInString(text[:loc[1]])
		end := loc[1] - size
		out = append(out, strings.TrimSpace(text[start:end]))
		start = end
	}
	out = append(out, strings.TrimSpace(text[start:]))
	return out
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
