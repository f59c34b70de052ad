package rules

import (
	"strings"
	"unicode/utf8"

	"github.com/aristath/tenderwatch/internal/domain"
	"github.com/aristath/tenderwatch/internal/modules/entities"
	"github.com/aristath/tenderwatch/internal/modules/history"
	"github.com/aristath/tenderwatch/internal/modules/textclean"
)

const (
	evidenceRadius = 80
	evidenceMax    = 200
)

// evalContext carries one evaluation. Values shared between rules are
// computed once in prepare.
type evalContext struct {
	lot      domain.Lot
	features history.Features
	hist     history.LotHistory
	text     string
	lower    string
	textLen  int
	set      entities.EntitySet

	hasEquivalent bool
	hasNoAnalog   bool
	proprietary   []string
	catalog       []string
	exactNumbers  []string
	preciseCount  int

	matches    []RuleMatch
	passed     []PassedRule
	highlights []entities.Highlight
}

func (e *Engine) prepare(c *evalContext) {
	for _, re := range e.equiv {
		if re.MatchString(c.text) {
			c.hasEquivalent = true
			break
		}
	}
	for _, re := range e.noAnalog {
		if re.MatchString(c.text) {
			c.hasNoAnalog = true
			break
		}
	}

	for _, term := range proprietaryTerms {
		if strings.Contains(c.lower, strings.ToLower(term)) {
			c.proprietary = append(c.proprietary, term)
		}
	}

	for _, loc := range e.catalog.FindAllStringIndex(c.text, -1) {
		m := c.text[loc[0]:loc[1]]
		if !textclean.AtWordBoundaries(c.text, loc[0], loc[1]) || e.standard.MatchString(m) || len(m) < 4 {
			continue
		}
		c.catalog = append(c.catalog, m)
	}

	for _, sm := range e.precExact.FindAllStringSubmatch(c.text, -1) {
		c.exactNumbers = append(c.exactNumbers, sm[1])
	}
	c.preciseCount = len(c.exactNumbers) + len(e.precDec.FindAllStringIndex(c.text, -1))
}

func (c *evalContext) trigger(m RuleMatch) {
	c.matches = append(c.matches, m)
}

func (c *evalContext) pass(id, reason string) {
	c.passed = append(c.passed, PassedRule{RuleID: id, Reason: reason})
}

// evidence returns the text around the first occurrence of keyword
func (c *evalContext) evidence(keyword string) string {
	return textclean.Truncate(textclean.Snippet(c.text, keyword, evidenceRadius), evidenceMax)
}

// highlightBytes records a span given in byte offsets of c.text
func (c *evalContext) highlightBytes(start, end int, typ string) {
	runeStart := textclean.RuneIndex(c.text, start)
	c.highlights = append(c.highlights, entities.Highlight{
		Start: runeStart,
		End:   runeStart + utf8.RuneCountInString(c.text[start:end]),
		Type:  typ,
		Value: c.text[start:end],
	})
}

func (c *evalContext) highlightEntities(list []entities.Entity, typ string) {
	for _, ent := range list {
		c.highlights = append(c.highlights, entities.Highlight{Start: ent.Start, End: ent.End, Type: typ, Value: ent.Value})
	}
}

// highlightTerm marks the first case-insensitive occurrence of term
func (c *evalContext) highlightTerm(term, typ string) {
	lowerTerm := strings.ToLower(term)
	i := strings.Index(c.lower, lowerTerm)
	if i < 0 {
		return
	}
	start := textclean.RuneIndex(c.lower, i)
	n := utf8.RuneCountInString(lowerTerm)
	value := term
	if r := []rune(c.text); start+n <= len(r) {
		value = string(r[start : start+n])
	}
	c.highlights = append(c.highlights, entities.Highlight{Start: start, End: start + n, Type: typ, Value: value})
}
