package rules

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aristath/tenderwatch/internal/modules/entities"
	"github.com/aristath/tenderwatch/internal/modules/textclean"
)

const lawProcurement = "ст. 21 Закона о госзакупках РК"

// R01 SS-8: brand named without "or equivalent"
func (e *Engine) brandWithoutEquivalent(c *evalContext) {
	brands := c.set.Brands
	switch {
	case len(brands) > 0 && !c.hasEquivalent:
		names := distinctValues(brands, 5)
		listed := strings.Join(names, ", ")
		ru := fmt.Sprintf("В ТЗ указан бренд (%s) без пометки «или эквивалент». По ст. 21 Закона о госзакупках, указание бренда допускается только с разрешением эквивалентов.", listed)
		kz := fmt.Sprintf("Техникалық ерекшелікте «немесе баламасы» белгісінсіз бренд көрсетілген (%s). Мемлекеттік сатып алу туралы заңның 21-бабына сәйкес бренд тек баламаларға рұқсат берілгенде көрсетіледі.", listed)
		weight, sev := 0.75, SeverityDanger
		if c.hasNoAnalog {
			weight, sev = 0.95, SeverityCritical
			ru += " Более того, аналоги прямо запрещены."
			kz += " Сонымен қатар баламаларға тікелей тыйым салынған."
		}
		c.highlightEntities(brands, "brand")
		c.trigger(RuleMatch{
			RuleID:        "R01",
			Code:          "SS-8",
			Name:          "Бренд без «или эквивалент»",
			Category:      CategoryBrand,
			Weight:        weight,
			RawScore:      35,
			ExplanationRu: ru,
			ExplanationKz: kz,
			Evidence:      c.evidence(names[0]),
			Severity:      sev,
			LawReference:  lawProcurement,
		})
	case len(brands) > 0:
		c.pass("R01", "Бренд указан с «или эквивалент» — допустимо")
	default:
		c.pass("R01", "Бренды не обнаружены")
	}
}

// R02 SS-8: manufacturer catalog numbers
func (e *Engine) catalogNumbers(c *evalContext) {
	if len(c.catalog) < 2 {
		c.pass("R02", "Каталожные номера не найдены")
		return
	}
	listed := strings.Join(firstN(c.catalog, 5), ", ")
	c.trigger(RuleMatch{
		RuleID:        "R02",
		Code:          "SS-8",
		Name:          "Каталожные номера производителя",
		Category:      CategorySpecificity,
		Weight:        0.70,
		RawScore:      25,
		ExplanationRu: fmt.Sprintf("Артикулы: %s. Эквивалентно указанию конкретной модели.", listed),
		ExplanationKz: fmt.Sprintf("Артикулдар: %s. Нақты модельді көрсетуге тең.", listed),
		Evidence:      listed,
		Severity:      SeverityDanger,
		LawReference:  "ст. 21 п. 4",
	})
}

// R03 SS-8: proprietary technology names
func (e *Engine) proprietaryTech(c *evalContext) {
	if len(c.proprietary) == 0 {
		c.pass("R03", "Проприетарные технологии не найдены")
		return
	}
	for _, term := range c.proprietary {
		c.highlightTerm(term, "proprietary")
	}
	listed := strings.Join(firstN(c.proprietary, 5), ", ")
	c.trigger(RuleMatch{
		RuleID:        "R03",
		Code:          "SS-8",
		Name:          "Проприетарные технологии производителя",
		Category:      CategorySpecificity,
		Weight:        0.65,
		RawScore:      20,
		ExplanationRu: fmt.Sprintf("Запатентованные названия: %s. Принадлежат конкретному производителю.", listed),
		ExplanationKz: fmt.Sprintf("Патенттелген атаулар: %s. Нақты өндірушіге тиесілі.", listed),
		Evidence:      listed,
		Severity:      SeverityWarning,
	})
}

// R04 SS-8: suspiciously exact parameters
func (e *Engine) excessivePrecision(c *evalContext) {
	switch {
	case c.preciseCount >= 2:
		for _, re := range []*regexp.Regexp{e.precExact, e.precDec} {
			for _, loc := range re.FindAllStringIndex(c.text, -1) {
				c.highlightBytes(loc[0], loc[1], "precision")
			}
		}
		ev := ""
		if len(c.exactNumbers) > 0 {
			ev = c.evidence(c.exactNumbers[0])
		}
		c.trigger(RuleMatch{
			RuleID:        "R04",
			Code:          "SS-8",
			Name:          "Подозрительно точные параметры",
			Category:      CategorySpecificity,
			Weight:        0.50,
			RawScore:      15,
			ExplanationRu: fmt.Sprintf("%d параметров с необычной точностью. Нормальная спецификация использует диапазоны.", c.preciseCount),
			ExplanationKz: fmt.Sprintf("Әдеттен тыс дәлдіктегі %d параметр. Қалыпты ерекшелік ауқымдарды пайдаланады.", c.preciseCount),
			Evidence:      ev,
			Severity:      SeverityWarning,
		})
	case c.preciseCount == 1:
		c.trigger(RuleMatch{
			RuleID:        "R04",
			Code:          "SS-8",
			Name:          "Точный параметр (единичный)",
			Category:      CategorySpecificity,
			Weight:        0.25,
			RawScore:      8,
			ExplanationRu: "Один точный параметр. В сочетании с другими — подозрителен.",
			ExplanationKz: "Бір дәл параметр. Басқа белгілермен бірге күдікті.",
			Severity:      SeverityInfo,
		})
	default:
		c.pass("R04", "Точных параметров нет")
	}
}

// R05 SS-8: explicit ban on analogs
func (e *Engine) noAnalogBan(c *evalContext) {
	var found []string
	for _, re := range e.noAnalog {
		for _, loc := range re.FindAllStringIndex(c.text, -1) {
			found = append(found, c.text[loc[0]:loc[1]])
			c.highlightBytes(loc[0], loc[1], "no_analog")
		}
	}
	if len(found) == 0 {
		c.pass("R05", "Запрет аналогов не обнаружен")
		return
	}
	c.trigger(RuleMatch{
		RuleID:        "R05",
		Code:          "SS-8",
		Name:          "Прямой запрет аналогов и эквивалентов",
		Category:      CategoryRestriction,
		Weight:        1.0,
		RawScore:      40,
		ExplanationRu: fmt.Sprintf("Запрещающая формулировка: «%s». Прямое нарушение принципа конкуренции.", found[0]),
		ExplanationKz: fmt.Sprintf("Тыйым салатын тұжырым: «%s». Бәсекелестік қағидатын тікелей бұзу.", found[0]),
		Evidence:      c.evidence(found[0]),
		Severity:      SeverityCritical,
		LawReference:  "ст. 21 п. 6, ст. 5",
	})
}

// R06 SS-14: dealer or authorization requirement
func (e *Engine) dealerRequirement(c *evalContext) {
	markers := c.set.LegalMarkers
	if len(markers) == 0 {
		c.pass("R06", "Требований авторизации нет")
		return
	}
	medical := strings.HasPrefix(c.lot.CategoryCode, "33")
	first := markers[0].Value
	ru := fmt.Sprintf("Требуется: «%s». Требование авторизации не связано с предметом закупки.", first)
	kz := fmt.Sprintf("Талап етіледі: «%s». Авторизация талабы сатып алу нысанасына қатысы жоқ.", first)
	weight, sev := 0.70, SeverityDanger
	if medical {
		weight, sev = 0.45, SeverityWarning
		ru += " Для медоборудования частично обосновано."
		kz += " Медициналық жабдық үшін ішінара негізделген."
	}
	c.trigger(RuleMatch{
		RuleID:        "R06",
		Code:          "SS-14",
		Name:          "Незаконные требования к поставщику",
		Category:      CategoryRestriction,
		Weight:        weight,
		RawScore:      20,
		ExplanationRu: ru,
		ExplanationKz: kz,
		Evidence:      c.evidence(first),
		Severity:      sev,
		LawReference:  "ст. 21 п. 10",
	})
}

// R07 SS-1: geographic restriction
func (e *Engine) geoRestriction(c *evalContext) {
	geo := c.set.GeoRestrictions
	if len(geo) == 0 {
		c.pass("R07", "Гео-ограничений нет")
		return
	}
	first := geo[0].Value
	c.trigger(RuleMatch{
		RuleID:        "R07",
		Code:          "SS-1",
		Name:          "Избыточное требование (гео-ограничение)",
		Category:      CategoryRestriction,
		Weight:        0.40,
		RawScore:      12,
		ExplanationRu: fmt.Sprintf("«%s». Географические ограничения допустимы только при объективной необходимости.", first),
		ExplanationKz: fmt.Sprintf("«%s». Географиялық шектеулер тек объективті қажеттілік болғанда рұқсат етіледі.", first),
		Evidence:      c.evidence(first),
		Severity:      SeverityInfo,
		LawReference:  "ст. 21 п. 5",
	})
}

// R08 PP-6: compressed submission deadline
func (e *Engine) shortDeadline(c *evalContext) {
	dd := c.lot.DeadlineDays
	ev := fmt.Sprintf("Срок: %d дн.", dd)
	switch {
	case dd > 0 && dd <= 2:
		word := "дня"
		if dd == 1 {
			word = "день"
		}
		c.trigger(RuleMatch{
			RuleID:        "R08",
			Code:          "PP-6",
			Name:          "Критически сжатые сроки подачи",
			Category:      CategoryProcedure,
			Weight:        0.80,
			RawScore:      25,
			ExplanationRu: fmt.Sprintf("Срок: %d %s. Минимум по закону — 5 р.д. (конкурс), 3 дн. (ЗЦП). Только компания с инсайдом успеет.", dd, word),
			ExplanationKz: fmt.Sprintf("Мерзім: %d күн. Заң бойынша ең аз мерзім — 5 жұмыс күні (конкурс), 3 күн (баға ұсыныстары). Тек ішкі ақпараты бар компания үлгереді.", dd),
			Evidence:      ev,
			Severity:      SeverityCritical,
			LawReference:  "ст. 38 п. 2",
		})
	case dd > 0 && dd <= 4:
		c.trigger(RuleMatch{
			RuleID:        "R08",
			Code:          "PP-6",
			Name:          "Сжатые сроки подачи",
			Category:      CategoryProcedure,
			Weight:        0.50,
			RawScore:      15,
			ExplanationRu: fmt.Sprintf("Срок %d дней — на грани допустимого.", dd),
			ExplanationKz: fmt.Sprintf("%d күн мерзім — рұқсат етілген шекте.", dd),
			Evidence:      ev,
			Severity:      SeverityWarning,
			LawReference:  "ст. 38",
		})
	default:
		c.pass("R08", "Сроки в норме")
	}
}

// R09 SS-12: single or minimal bidding
func (e *Engine) singleBidder(c *evalContext) {
	pp := c.lot.ParticipantsCount
	ev := fmt.Sprintf("Участников: %d", pp)
	switch pp {
	case 1:
		c.trigger(RuleMatch{
			RuleID:        "R09",
			Code:          "SS-12",
			Name:          "Имитация конкуренции (1 участник)",
			Category:      CategoryCompetition,
			Weight:        0.65,
			RawScore:      20,
			ExplanationRu: "Подана 1 заявка. С ограничительным ТЗ — признак заточки.",
			ExplanationKz: "1 өтінім берілді. Шектеуші техникалық ерекшелікпен бірге бейімдеу белгісі.",
			Evidence:      ev,
			Severity:      SeverityDanger,
		})
	case 2:
		c.trigger(RuleMatch{
			RuleID:        "R09",
			Code:          "SS-12",
			Name:          "Минимальная конкуренция",
			Category:      CategoryCompetition,
			Weight:        0.30,
			RawScore:      10,
			ExplanationRu: "2 участника. Возможна имитация — «свой» + аффилированная компания.",
			ExplanationKz: "2 қатысушы. Имитация болуы мүмкін: «өз» компаниясы және үлестес компания.",
			Evidence:      ev,
			Severity:      SeverityInfo,
		})
	default:
		c.pass("R09", ev)
	}
}

// R10 SS-16: the winner keeps winning the same customer's lots
func (e *Engine) repeatedWinner(c *evalContext) {
	ww := c.hist.WinnerWinsSameCustomer
	ev := fmt.Sprintf("Побед: %d", ww)
	switch {
	case ww >= 10:
		c.trigger(RuleMatch{
			RuleID:        "R10",
			Code:          "SS-16",
			Name:          "Систематическое предпочтение одному поставщику",
			Category:      CategoryCompetition,
			Weight:        0.75,
			RawScore:      25,
			ExplanationRu: fmt.Sprintf("Поставщик побеждал у этого заказчика %d раз за 30 дней. SS-16: доминирующая доля в закупках.", ww),
			ExplanationKz: fmt.Sprintf("Жеткізуші осы тапсырыс берушіде 30 күнде %d рет жеңді. SS-16: сатып алудағы басым үлес.", ww),
			Evidence:      ev,
			Severity:      SeverityDanger,
		})
	case ww >= 5:
		c.trigger(RuleMatch{
			RuleID:        "R10",
			Code:          "SS-16",
			Name:          "Повторные победы поставщика",
			Category:      CategoryCompetition,
			Weight:        0.50,
			RawScore:      15,
			ExplanationRu: fmt.Sprintf("Побеждал %d раз за 30 дней — выше нормы.", ww),
			ExplanationKz: fmt.Sprintf("30 күнде %d рет жеңді — нормадан жоғары.", ww),
			Evidence:      ev,
			Severity:      SeverityWarning,
		})
	default:
		c.pass("R10", "Повторных побед нет")
	}
}

// R11 PP-5: unit price far above the category median
func (e *Engine) priceOvershoot(c *evalContext) {
	median := c.hist.CategoryMedianPrice
	price := c.lot.EffectiveUnitPrice()
	if median <= 0 || price <= 0 {
		c.pass("R11", "Нет данных")
		return
	}
	r := price / median
	m := RuleMatch{RuleID: "R11", Code: "PP-5", Category: CategoryPrice}
	m.ExplanationRu = fmt.Sprintf("Цена в %.1f× выше медианы.", r)
	m.ExplanationKz = fmt.Sprintf("Баға медианадан %.1f есе жоғары.", r)
	m.Evidence = fmt.Sprintf("Коэфф: %.1f×", r)
	switch {
	case r > 5.0:
		m.Name, m.Weight, m.RawScore, m.Severity = "Критическое завышение цены", 0.80, 25, SeverityCritical
		m.Evidence = fmt.Sprintf("Цена: %s ₸, медиана: %s ₸", formatTenge(price), formatTenge(median))
	case r > 3.0:
		m.Name, m.Weight, m.RawScore, m.Severity = "Завышение цены", 0.55, 18, SeverityDanger
	case r > 2.0:
		m.Name, m.Weight, m.RawScore, m.Severity = "Повышенная цена", 0.30, 10, SeverityWarning
	default:
		c.pass("R11", "Цена в норме")
		return
	}
	c.trigger(m)
}

// R12 SS-12: contract signed at the starting price with little competition
func (e *Engine) noPriceReduction(c *evalContext) {
	budget, cs := c.lot.Budget, c.lot.ContractSum
	if budget == 0 || cs == 0 {
		c.pass("R12", "Нет данных")
		return
	}
	pp := c.lot.ParticipantsCount
	pr := cs / budget
	// at least 98% of budget; the epsilon absorbs division rounding
	if pr+1e-9 < 0.98 || pp <= 0 || pp > 2 {
		c.pass("R12", "Снижение цены есть")
		return
	}
	c.trigger(RuleMatch{
		RuleID:        "R12",
		Code:          "SS-12",
		Name:          "Нет конкурентного снижения цены",
		Category:      CategoryPrice,
		Weight:        0.55,
		RawScore:      15,
		ExplanationRu: fmt.Sprintf("Контракт = %.1f%% от бюджета при %d участнике(ах). SS-12: цена победителя ≈ начальная.", pr*100, pp),
		ExplanationKz: fmt.Sprintf("Келісімшарт бюджеттің %.1f%% құрайды, қатысушылар саны: %d. SS-12: жеңімпаз бағасы бастапқы бағаға тең.", pr*100, pp),
		Evidence:      fmt.Sprintf("Контракт/бюджет: %.1f%%", pr*100),
		Severity:      SeverityWarning,
	})
}

// R13 SS-8: description far longer than the category norm
func (e *Engine) textLengthAnomaly(c *evalContext) {
	mean, std := c.hist.TextLengthMean, c.hist.TextLengthStd
	if c.hist.TextLengthSamples < 2 || mean <= 0 || std <= 20 {
		c.pass("R13", "Нет данных по категории")
		return
	}
	z := (float64(c.textLen) - mean) / std
	switch {
	case z > 3.0:
		c.trigger(RuleMatch{
			RuleID:        "R13",
			Code:          "SS-8",
			Name:          "Аномально подробное ТЗ (copy-paste из каталога)",
			Category:      CategoryText,
			Weight:        0.55,
			RawScore:      18,
			ExplanationRu: fmt.Sprintf("Длина (%d) в %.1fσ выше среднего (%.0f). Вероятно — копия из каталога.", c.textLen, z, mean),
			ExplanationKz: fmt.Sprintf("Ұзындығы (%d) орташадан (%.0f) %.1fσ жоғары. Каталогтан көшірілген болуы ықтимал.", c.textLen, mean, z),
			Evidence:      fmt.Sprintf("z-score: %.1f", z),
			Severity:      SeverityWarning,
		})
	case z > 2.0:
		c.trigger(RuleMatch{
			RuleID:        "R13",
			Code:          "SS-8",
			Name:          "Повышенная детализация ТЗ",
			Category:      CategoryText,
			Weight:        0.30,
			RawScore:      10,
			ExplanationRu: fmt.Sprintf("ТЗ длиннее на %.1fσ.", z),
			ExplanationKz: fmt.Sprintf("Техникалық ерекшелік %.1fσ ұзынырақ.", z),
			Evidence:      fmt.Sprintf("z: %.1f", z),
			Severity:      SeverityInfo,
		})
	default:
		c.pass("R13", "Длина в норме")
	}
}

// R14 PP-4.3: procurement split across lots
func (e *Engine) lotSplitting(c *evalContext) {
	n := c.hist.SameCustomerCategoryLots
	if n < 3 {
		c.pass("R14", "Дробления нет")
		return
	}
	c.trigger(RuleMatch{
		RuleID:        "R14",
		Code:          "PP-4.3",
		Name:          "Дробление закупки",
		Category:      CategoryProcedure,
		Weight:        0.60,
		RawScore:      20,
		ExplanationRu: fmt.Sprintf("%d закупок по тому же КТРУ за 30 дней. PP-4.3: обход порога конкурса.", n),
		ExplanationKz: fmt.Sprintf("30 күнде сол КТРУ бойынша %d сатып алу. PP-4.3: конкурс шегін айналып өту.", n),
		Evidence:      fmt.Sprintf("Закупок: %d", n),
		Severity:      SeverityDanger,
		LawReference:  "ст. 7 п. 15",
	})
}

// R15 SS-8: several specificity markers that together pin one model
func (e *Engine) combinedUniqueness(c *evalContext) {
	uniq := len(c.set.Brands) + len(c.proprietary) + c.preciseCount + len(c.catalog)
	switch {
	case uniq >= 5:
		c.trigger(RuleMatch{
			RuleID:        "R15",
			Code:          "SS-8",
			Name:          "Комплексная заточка",
			Category:      CategorySpecificity,
			Weight:        0.85,
			RawScore:      30,
			ExplanationRu: fmt.Sprintf("%d уникальных требований. Каждое допустимо, но совокупность = одна модель.", uniq),
			ExplanationKz: fmt.Sprintf("%d бірегей талап. Әрқайсысы рұқсат етілген, бірақ жиынтығы бір модельге сәйкес.", uniq),
			Evidence:      fmt.Sprintf("Уникальных: %d", uniq),
			Severity:      SeverityDanger,
		})
	case uniq >= 3:
		c.trigger(RuleMatch{
			RuleID:        "R15",
			Code:          "SS-8",
			Name:          "Повышенная специфичность",
			Category:      CategorySpecificity,
			Weight:        0.45,
			RawScore:      12,
			ExplanationRu: fmt.Sprintf("%d специфичных требований.", uniq),
			ExplanationKz: fmt.Sprintf("%d ерекше талап.", uniq),
			Severity:      SeverityWarning,
		})
	default:
		c.pass("R15", "Специфичность в норме")
	}
}

// R16 SS-7: Latin letters substituted into Cyrillic words
func (e *Engine) scriptMixing(c *evalContext) {
	var mixed []string
	for _, loc := range e.token.FindAllStringIndex(c.text, -1) {
		start, end := trimToWord(c.text, loc[0], loc[1])
		if utf8.RuneCountInString(c.text[start:end]) < 3 {
			continue
		}
		w := c.text[start:end]
		if e.cyrillic.MatchString(w) && e.latin.MatchString(w) {
			mixed = append(mixed, "«"+w+"»")
			c.highlightBytes(start, end, "homoglyph")
		}
	}
	if len(mixed) == 0 {
		c.pass("R16", "Подмена не обнаружена")
		return
	}
	listed := strings.Join(firstN(mixed, 5), ", ")
	c.trigger(RuleMatch{
		RuleID:        "R16",
		Code:          "SS-7",
		Name:          "Подмена кириллицы латиницей",
		Category:      CategoryText,
		Weight:        0.60,
		RawScore:      20,
		ExplanationRu: fmt.Sprintf("Слова со смешанными символами: %s. SS-7: затрудняет поиск объявления.", listed),
		ExplanationKz: fmt.Sprintf("Аралас таңбалы сөздер: %s. SS-7: хабарландыруды іздеуді қиындатады.", listed),
		Evidence:      listed,
		Severity:      SeverityDanger,
	})
}

// R17 SS-10: the description never mentions its category
func (e *Engine) categoryMismatch(c *evalContext) {
	name, category := c.lot.NameRu, c.lot.CategoryName
	if name == "" || category == "" || c.text == "" {
		c.pass("R17", "Недостаточно данных")
		return
	}
	var stems []string
	for _, w := range strings.Fields(strings.ToLower(category)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if utf8.RuneCountInString(w) > 4 {
			stems = append(stems, string([]rune(w)[:5]))
		}
	}
	for _, s := range stems {
		if strings.Contains(c.lower, s) {
			c.pass("R17", "Название соответствует")
			return
		}
	}
	if len(stems) == 0 {
		c.pass("R17", "Название соответствует")
		return
	}
	c.trigger(RuleMatch{
		RuleID:        "R17",
		Code:          "SS-10",
		Name:          "Несоответствие названия предмету закупки",
		Category:      CategoryText,
		Weight:        0.35,
		RawScore:      12,
		ExplanationRu: fmt.Sprintf("SS-10: категория «%s» не упоминается в ТЗ. Затрудняет поиск.", category),
		ExplanationKz: fmt.Sprintf("SS-10: «%s» санаты техникалық ерекшелікте аталмайды. Іздеуді қиындатады.", category),
		Evidence:      "Категория: " + category,
		Severity:      SeverityInfo,
	})
}

// R18 PP-3: luxury tier for a routine need
func (e *Engine) luxuryTier(c *evalContext) {
	var found []string
	for _, re := range e.luxury {
		if loc := re.FindStringIndex(c.text); loc != nil {
			found = append(found, c.text[loc[0]:loc[1]])
			c.highlightBytes(loc[0], loc[1], "luxury")
		}
	}
	if len(found) == 0 {
		c.pass("R18", "Избыточного класса нет")
		return
	}
	listed := strings.Join(firstN(found, 3), ", ")
	c.trigger(RuleMatch{
		RuleID:        "R18",
		Code:          "PP-3",
		Name:          "Избыточный класс товара",
		Category:      CategorySpecificity,
		Weight:        0.50,
		RawScore:      15,
		ExplanationRu: fmt.Sprintf("Маркеры: %s. PP-3: характеристики избыточны для заказчика.", listed),
		ExplanationKz: fmt.Sprintf("Белгілер: %s. PP-3: сипаттамалар тапсырыс беруші үшін артық.", listed),
		Evidence:      listed,
		Severity:      SeverityWarning,
	})
}

// R19 SS-3: unrelated goods and services bundled into one lot
func (e *Engine) goodsServiceBundling(c *evalContext) {
	if !e.goods.MatchString(c.text) || !e.services.MatchString(c.text) || c.textLen <= 400 {
		c.pass("R19", "Объединения нет")
		return
	}
	c.trigger(RuleMatch{
		RuleID:        "R19",
		Code:          "SS-3",
		Name:          "Объединение товаров и услуг в один лот",
		Category:      CategoryRestriction,
		Weight:        0.45,
		RawScore:      15,
		ExplanationRu: "SS-3: объединение несвязанных товаров/услуг ограничивает участников.",
		ExplanationKz: "SS-3: байланыссыз тауарлар мен қызметтерді біріктіру қатысушыларды шектейді.",
		Severity:      SeverityWarning,
	})
}

// R20 PP-4: sole-source procurement above the threshold
func (e *Engine) soleSource(c *evalContext) {
	method, budget := c.lot.TradeMethod, c.lot.Budget
	if method == "" || !strings.Contains(strings.ToLower(method), soleSourceMarker) || budget <= e.cal.SoleSourceThreshold {
		c.pass("R20", "Конкурентный способ")
		return
	}
	c.trigger(RuleMatch{
		RuleID:        "R20",
		Code:          "PP-4",
		Name:          "Необоснованная закупка из одного источника",
		Category:      CategoryProcedure,
		Weight:        0.70,
		RawScore:      22,
		ExplanationRu: fmt.Sprintf("Из одного источника при бюджете %s ₸ (выше порога). PP-4: неконкурентный способ.", formatTenge(budget)),
		ExplanationKz: fmt.Sprintf("Бюджеті %s ₸ болғанда бір көзден сатып алу (шектен жоғары). PP-4: бәсекелестіксіз тәсіл.", formatTenge(budget)),
		Evidence:      "Метод: " + method,
		Severity:      SeverityDanger,
		LawReference:  "ст. 39",
	})
}

// distinctValues returns up to n distinct entity values, sorted
func distinctValues(list []entities.Entity, n int) []string {
	seen := map[string]bool{}
	var out []string
	for _, ent := range list {
		if !seen[ent.Value] {
			seen[ent.Value] = true
			out = append(out, ent.Value)
		}
	}
	sort.Strings(out)
	return firstN(out, n)
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// trimToWord narrows a whitespace token to its outer word characters
func trimToWord(text string, start, end int) (int, int) {
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if textclean.IsWordRune(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if textclean.IsWordRune(r) {
			break
		}
		end -= size
	}
	return start, end
}

// formatTenge renders whole tenge grouped by thousands: 13 800 000
func formatTenge(v float64) string {
	n := int64(math.Round(v))
	neg := n < 0
	if neg {
		n = -n
	}
	digits := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
