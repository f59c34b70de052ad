// Package rules implements the deterministic rule engine: a fixed, ordered
// list of weighted checks over one lot, its extracted entities and its
// corpus history.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/domain"
	"github.com/aristath/tenderwatch/internal/modules/entities"
	"github.com/aristath/tenderwatch/internal/modules/history"
	"github.com/aristath/tenderwatch/internal/modules/textclean"
)

// Severity of a triggered rule
type Severity string

// Severities
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityDanger   Severity = "danger"
	SeverityCritical Severity = "critical"
)

// Category groups rules for the summary
type Category string

// Rule categories
const (
	CategoryBrand       Category = "brand"
	CategorySpecificity Category = "specificity"
	CategoryRestriction Category = "restriction"
	CategoryProcedure   Category = "procedure"
	CategoryCompetition Category = "competition"
	CategoryPrice       Category = "price"
	CategoryText        Category = "text_anomaly"
)

// RuleMatch is one triggered rule
type RuleMatch struct {
	RuleID        string   `json:"rule_id"`
	Code          string   `json:"code"`
	Name          string   `json:"rule_name_ru"`
	Category      Category `json:"category"`
	Weight        float64  `json:"weight"`
	RawScore      float64  `json:"raw_score"`
	ExplanationRu string   `json:"explanation_ru"`
	ExplanationKz string   `json:"explanation_kz"`
	Evidence      string   `json:"evidence"`
	Severity      Severity `json:"severity"`
	LawReference  string   `json:"law_reference,omitempty"`
}

// Contribution is the weighted points this match adds before rescaling
func (m RuleMatch) Contribution() float64 {
	return m.Weight * m.RawScore
}

// PassedRule records a rule that did not trigger and why
type PassedRule struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

// AnalysisResult is the rule engine verdict for one lot
type AnalysisResult struct {
	LotID        string               `json:"lot_id"`
	RiskScore    float64              `json:"risk_score"`
	RiskLevel    domain.RiskLevel     `json:"risk_level"`
	Triggered    []RuleMatch          `json:"triggered_rules"`
	Passed       []PassedRule         `json:"passed_rules"`
	RulesChecked int                  `json:"rules_checked"`
	SummaryRu    string               `json:"summary_ru"`
	SummaryKz    string               `json:"summary_kz"`
	Highlights   []entities.Highlight `json:"highlights"`
	Codes        []string             `json:"datanomix_codes"`
}

// Has reports whether the rule with the given id fired
func (r AnalysisResult) Has(ruleID string) bool {
	_, ok := r.Match(ruleID)
	return ok
}

// Match returns the triggered rule with the given id
func (r AnalysisResult) Match(ruleID string) (RuleMatch, bool) {
	for _, m := range r.Triggered {
		if m.RuleID == ruleID {
			return m, true
		}
	}
	return RuleMatch{}, false
}

type rule struct {
	id   string
	eval func(e *Engine, c *evalContext)
}

// ruleOrder is fixed; results list triggered rules in this order
var ruleOrder = []rule{
	{"R01", (*Engine).brandWithoutEquivalent},
	{"R02", (*Engine).catalogNumbers},
	{"R03", (*Engine).proprietaryTech},
	{"R04", (*Engine).excessivePrecision},
	{"R05", (*Engine).noAnalogBan},
	{"R06", (*Engine).dealerRequirement},
	{"R07", (*Engine).geoRestriction},
	{"R08", (*Engine).shortDeadline},
	{"R09", (*Engine).singleBidder},
	{"R10", (*Engine).repeatedWinner},
	{"R11", (*Engine).priceOvershoot},
	{"R12", (*Engine).noPriceReduction},
	{"R13", (*Engine).textLengthAnomaly},
	{"R14", (*Engine).lotSplitting},
	{"R15", (*Engine).combinedUniqueness},
	{"R16", (*Engine).scriptMixing},
	{"R17", (*Engine).categoryMismatch},
	{"R18", (*Engine).luxuryTier},
	{"R19", (*Engine).goodsServiceBundling},
	{"R20", (*Engine).soleSource},
}

// Engine evaluates the rule list. It holds only compiled patterns and
// calibration, so one engine can serve concurrent callers.
type Engine struct {
	extractor *entities.Extractor
	cal       config.RuleCalibration
	levels    domain.LevelThresholds

	equiv     []*regexp.Regexp
	noAnalog  []*regexp.Regexp
	luxury    []*regexp.Regexp
	catalog   *regexp.Regexp
	standard  *regexp.Regexp
	precExact *regexp.Regexp
	precDec   *regexp.Regexp
	goods     *regexp.Regexp
	services  *regexp.Regexp
	token     *regexp.Regexp
	cyrillic  *regexp.Regexp
	latin     *regexp.Regexp
}

// NewEngine compiles the rule patterns
func NewEngine(extractor *entities.Extractor, cal config.Calibration) *Engine {
	return &Engine{
		extractor: extractor,
		cal:       cal.Rules,
		levels:    cal.Levels,
		equiv:     compileAll(equivExprs),
		noAnalog:  compileAll(noAnalogExprs),
		luxury:    compileAll(luxuryExprs),
		catalog:   textclean.MustCompileFold(catalogExpr),
		standard:  textclean.MustCompileFold(standardExpr),
		precExact: textclean.MustCompileFold(precExactExpr),
		precDec:   textclean.MustCompileFold(precDecExpr),
		goods:     textclean.MustCompileFold(goodsExpr),
		services:  textclean.MustCompileFold(servicesExpr),
		token:     regexp.MustCompile(tokenExpr),
		cyrillic:  regexp.MustCompile(cyrillicExpr),
		latin:     regexp.MustCompile(latinExpr),
	}
}

func compileAll(exprs []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, textclean.MustCompileFold(e))
	}
	return out
}

// RuleCount is the number of rules checked per lot
func (e *Engine) RuleCount() int {
	return len(ruleOrder)
}

// Analyze runs every rule against the lot. It is a pure function of its
// arguments.
func (e *Engine) Analyze(lot domain.Lot, features history.Features, hist history.LotHistory) AnalysisResult {
	text := textclean.Clean(lot.RawDescription())
	c := &evalContext{
		lot:      lot,
		features: features,
		hist:     hist,
		text:     text,
		lower:    strings.ToLower(text),
		set:      e.extractor.Extract(text),
	}
	c.textLen = features.TextLength
	if c.textLen == 0 {
		c.textLen = utf8.RuneCountInString(text)
	}
	e.prepare(c)

	for _, r := range ruleOrder {
		r.eval(e, c)
	}

	return e.score(c)
}

func (e *Engine) score(c *evalContext) AnalysisResult {
	score := 0.0
	if n := len(c.matches); n > 0 {
		sum := 0.0
		for _, m := range c.matches {
			sum += m.Contribution()
		}
		score = min(100.0, sum/e.cal.ScoreDivisor)
		if n >= 4 {
			score = min(100.0, score*e.cal.BoostFourRules)
		}
		if n >= 6 {
			score = min(100.0, score*e.cal.BoostSixRules)
		}
	}
	score = domain.Round1(score)
	level := e.levels.Level(score)

	codes := uniqueCodes(c.matches)
	entities.SortHighlights(c.highlights)

	res := AnalysisResult{
		LotID:        c.lot.LotID,
		RiskScore:    score,
		RiskLevel:    level,
		Triggered:    c.matches,
		Passed:       c.passed,
		RulesChecked: len(ruleOrder),
		Highlights:   c.highlights,
		Codes:        codes,
	}
	res.SummaryRu, res.SummaryKz = summarize(c.matches, level, codes, score)

	if res.Triggered == nil {
		res.Triggered = []RuleMatch{}
	}
	if res.Passed == nil {
		res.Passed = []PassedRule{}
	}
	if res.Highlights == nil {
		res.Highlights = []entities.Highlight{}
	}
	return res
}

func uniqueCodes(matches []RuleMatch) []string {
	seen := map[string]bool{}
	codes := []string{}
	for _, m := range matches {
		if !seen[m.Code] {
			seen[m.Code] = true
			codes = append(codes, m.Code)
		}
	}
	sort.Strings(codes)
	return codes
}

type issue struct {
	categories []Category
	ru, kz     string
}

var summaryIssues = []issue{
	{[]Category{CategoryBrand, CategorySpecificity}, "заточка", "белгілі бір өнімге бейімдеу"},
	{[]Category{CategoryRestriction}, "ограничение конкуренции", "бәсекелестікті шектеу"},
	{[]Category{CategoryProcedure}, "процедурные нарушения", "рәсімдік бұзушылықтар"},
	{[]Category{CategoryCompetition}, "имитация конкуренции", "бәсекелестікті имитациялау"},
	{[]Category{CategoryPrice}, "ценовые аномалии", "баға ауытқулары"},
	{[]Category{CategoryText}, "аномалии текста", "мәтін ауытқулары"},
}

var levelLabels = map[domain.RiskLevel][2]string{
	domain.RiskCritical: {"КРИТИЧЕСКИЙ", "СЫНИ"},
	domain.RiskHigh:     {"ВЫСОКИЙ", "ЖОҒАРЫ"},
	domain.RiskMedium:   {"СРЕДНИЙ", "ОРТАША"},
	domain.RiskLow:      {"НИЗКИЙ", "ТӨМЕН"},
}

const (
	noFindingsRu = "Признаков манипулятивной спецификации не обнаружено."
	noFindingsKz = "Манипулятивті техникалық ерекшелік белгілері анықталмады."
)

func summarize(matches []RuleMatch, level domain.RiskLevel, codes []string, score float64) (string, string) {
	if len(matches) == 0 {
		return noFindingsRu, noFindingsKz
	}

	present := map[Category]bool{}
	for _, m := range matches {
		present[m.Category] = true
	}
	var ru, kz []string
	for _, is := range summaryIssues {
		for _, cat := range is.categories {
			if present[cat] {
				ru = append(ru, is.ru)
				kz = append(kz, is.kz)
				break
			}
		}
	}

	labels := levelLabels[level]
	joined := strings.Join(codes, ", ")
	summaryRu := fmt.Sprintf("%s РИСК. %d правил: %s. Коды: %s. Балл: %.0f/100.",
		labels[0], len(matches), strings.Join(ru, ", "), joined, score)
	summaryKz := fmt.Sprintf("%s ТӘУЕКЕЛ. %d ереже: %s. Кодтар: %s. Балл: %.0f/100.",
		labels[1], len(matches), strings.Join(kz, ", "), joined, score)
	return summaryRu, summaryKz
}
