// Package entities extracts typed spans (brands, standards, precise
// parameters, dealer requirements, geographic restrictions, exclusivity
// phrases) from cleaned specification text.
package entities

import (
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/aristath/tenderwatch/internal/modules/textclean"
)

// Type is the kind of an extracted entity
type Type string

// Entity types
const (
	TypeBrand     Type = "brand"
	TypeStandard  Type = "standard"
	TypeSpecParam Type = "spec_param"
	TypeLegal     Type = "legal"
	TypeGeo       Type = "geo"
	TypeExclusive Type = "exclusive"
)

// AllTypes lists entity types in extraction order
var AllTypes = []Type{TypeBrand, TypeStandard, TypeSpecParam, TypeLegal, TypeGeo, TypeExclusive}

// Entity is a typed span. Start and End are rune offsets into the text
// passed to Extract, End exclusive.
type Entity struct {
	Type     Type              `json:"type"`
	Value    string            `json:"value"`
	Start    int               `json:"start"`
	End      int               `json:"end"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Overlaps reports whether the two half-open spans intersect
func (e Entity) Overlaps(start, end int) bool {
	return e.Start < end && start < e.End
}

// EntitySet groups the entities found in one text
type EntitySet struct {
	Brands           []Entity `json:"brands"`
	Standards        []Entity `json:"standards"`
	SpecParams       []Entity `json:"spec_params"`
	LegalMarkers     []Entity `json:"legal_markers"`
	GeoRestrictions  []Entity `json:"geo_restrictions"`
	ExclusivePhrases []Entity `json:"exclusive_phrases"`
}

// All returns every entity, grouped by type in extraction order
func (s EntitySet) All() []Entity {
	all := make([]Entity, 0, len(s.Brands)+len(s.Standards)+len(s.SpecParams)+
		len(s.LegalMarkers)+len(s.GeoRestrictions)+len(s.ExclusivePhrases))
	all = append(all, s.Brands...)
	all = append(all, s.Standards...)
	all = append(all, s.SpecParams...)
	all = append(all, s.LegalMarkers...)
	all = append(all, s.GeoRestrictions...)
	all = append(all, s.ExclusivePhrases...)
	return all
}

// Of returns the entities of one type
func (s EntitySet) Of(t Type) []Entity {
	switch t {
	case TypeBrand:
		return s.Brands
	case TypeStandard:
		return s.Standards
	case TypeSpecParam:
		return s.SpecParams
	case TypeLegal:
		return s.LegalMarkers
	case TypeGeo:
		return s.GeoRestrictions
	case TypeExclusive:
		return s.ExclusivePhrases
	}
	return nil
}

// IsEmpty reports whether nothing was found
func (s EntitySet) IsEmpty() bool {
	return len(s.All()) == 0
}

// Highlight is a span to mark in the rendered text
type Highlight struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Highlights returns all entity spans ordered by position
func Highlights(s EntitySet) []Highlight {
	all := s.All()
	out := make([]Highlight, 0, len(all))
	for _, e := range all {
		out = append(out, Highlight{Start: e.Start, End: e.End, Type: string(e.Type), Value: e.Value})
	}
	SortHighlights(out)
	return out
}

// SortHighlights orders spans by start, then end, then type
func SortHighlights(h []Highlight) {
	sort.SliceStable(h, func(i, j int) bool {
		if h[i].Start != h[j].Start {
			return h[i].Start < h[j].Start
		}
		if h[i].End != h[j].End {
			return h[i].End < h[j].End
		}
		return h[i].Type < h[j].Type
	})
}

// Summary counts entities per type. Every type is present in the result.
func Summary(s EntitySet) map[Type]int {
	out := make(map[Type]int, len(AllTypes))
	for _, t := range AllTypes {
		out[t] = len(s.Of(t))
	}
	return out
}

type brandPattern struct {
	canonical string
	group     string
	re        *regexp.Regexp
}

type phrasePattern struct {
	label string
	re    *regexp.Regexp
}

// Extractor holds the compiled dictionaries. It is safe for concurrent use.
type Extractor struct {
	brands    []brandPattern
	standards []phrasePattern
	precise   []phrasePattern
	legal     []phrasePattern
	geo       []phrasePattern
	exclusive []phrasePattern
}

// NewExtractor compiles the brand dictionary and phrase patterns
func NewExtractor() *Extractor {
	return &Extractor{
		brands:    compileBrands(),
		standards: compilePhrases(standardExprs),
		precise:   compilePhrases(preciseExprs),
		legal:     compilePhrases(legalExprs),
		geo:       compilePhrases(geoExprs),
		exclusive: compilePhrases(exclusiveExprs),
	}
}

var groupOrder = []string{GroupIT, GroupSoftware, GroupAuto, GroupMedical, GroupLab}

// compileBrands orders brands longest first so that "Microsoft Office"
// claims its span before "Microsoft" can.
func compileBrands() []brandPattern {
	var out []brandPattern
	for _, group := range groupOrder {
		for _, name := range brandDictionary[group] {
			out = append(out, brandPattern{
				canonical: name,
				group:     group,
				re:        regexp.MustCompile("(?i)" + regexp.QuoteMeta(name)),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return utf8.RuneCountInString(out[i].canonical) > utf8.RuneCountInString(out[j].canonical)
	})
	return out
}

func compilePhrases(exprs []labeled) []phrasePattern {
	out := make([]phrasePattern, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, phrasePattern{label: e.label, re: textclean.MustCompileFold(e.expr)})
	}
	return out
}

// Extract finds all entities in text. Empty text yields an empty set.
func (x *Extractor) Extract(text string) EntitySet {
	var set EntitySet
	if text == "" {
		return set
	}

	set.Brands = x.extractBrands(text)
	set.Standards = extractPhrases(text, x.standards, TypeStandard, "standard_type")
	set.SpecParams = extractPhrases(text, x.precise, TypeSpecParam, "precision_type")
	set.LegalMarkers = extractPhrases(text, x.legal, TypeLegal, "marker_type")
	set.GeoRestrictions = extractPhrases(text, x.geo, TypeGeo, "geo_type")
	set.ExclusivePhrases = extractPhrases(text, x.exclusive, TypeExclusive, "phrase_type")
	return set
}

func (x *Extractor) extractBrands(text string) []Entity {
	var found []Entity
	for _, bp := range x.brands {
		for _, loc := range bp.re.FindAllStringIndex(text, -1) {
			if !textclean.AtWordBoundaries(text, loc[0], loc[1]) {
				continue
			}
			start := textclean.RuneIndex(text, loc[0])
			end := start + utf8.RuneCountInString(text[loc[0]:loc[1]])
			if overlapsAny(found, start, end) {
				continue
			}
			found = append(found, Entity{
				Type:     TypeBrand,
				Value:    text[loc[0]:loc[1]],
				Start:    start,
				End:      end,
				Metadata: map[string]string{"canonical": bp.canonical, "group": bp.group},
			})
		}
	}
	return found
}

func overlapsAny(accepted []Entity, start, end int) bool {
	for _, e := range accepted {
		if e.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func extractPhrases(text string, patterns []phrasePattern, t Type, metaKey string) []Entity {
	var found []Entity
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			start := textclean.RuneIndex(text, loc[0])
			found = append(found, Entity{
				Type:     t,
				Value:    text[loc[0]:loc[1]],
				Start:    start,
				End:      start + utf8.RuneCountInString(text[loc[0]:loc[1]]),
				Metadata: map[string]string{metaKey: p.label},
			})
		}
	}
	return found
}
