package rules

// equivalence phrases that make a brand mention lawful
var equivExprs = []string{
	`или\s+(?:его\s+)?эквивалент`,
	`или\s+аналог`,
	`либо\s+эквивалент`,
	`либо\s+аналог`,
	`допускается\s+(?:предложение\s+)?аналог`,
	`допускаются\s+эквивалент`,
	`рассматриваются\s+аналог`,
}

var noAnalogExprs = []string{
	`аналоги?\s+не\s+допуска`,
	`эквивалент\w*\s+не\s+допуска`,
	`аналоги?\s+не\s+рассматрива`,
	`эквивалент\w*\s+не\s+рассматрива`,
	`категорически\s+не\s+допуска`,
	`замена\s+не\s+допуска`,
	`только\s+оригинальн`,
	`без\s+(?:права\s+)?замен`,
	`исключительно\s+данн\w+\s+(?:модел|марк|бренд)`,
	`сублицензирование\s+не\s+допуска`,
}

// proprietary technology names owned by a single manufacturer, sorted
var proprietaryTerms = []string{
	"AMOLED", "Anatomical Intelligence", "Apple Silicon", "BioMatrix",
	"Catalyst", "Crawl Control", "E-Four", "EPIQ", "IOS-XE", "InfinityLab",
	"IntelliVue", "Knox", "Lexus CoDrive", "Liquid Retina",
	"M1", "M1 Max", "M1 Pro", "M2", "M2 Max", "M2 Pro",
	"M3", "M3 Max", "M3 Pro", "M4",
	"MAGNETOM", "MagSafe", "Mark Levinson", "Meraki", "Multi-Terrain Select",
	"One UI", "OpenLab CDS", "ProMotion", "Retina XDR", "Thunderbolt",
	"Tim 4G", "nSIGHT", "nSIGHT Imaging", "syngo",
}

const (
	catalogExpr   = `\b[A-Z]{1,3}\d{3,}[A-Z]?\b|\b\d{2,3}-[A-Z]{2,}\d*\b|\b[A-Z]{2,}\d{2,}-\d+\b`
	standardExpr  = `^(?:ГОСТ|ISO|IEC|СТ|ТУ|MIL)`
	precExactExpr = `(?:именно|ровно|составляет|равна?)\s+([\d.,]+)\s*(?:кг|г|мм|см|м|кВт|Вт|МГц|ГГц|Тл|л\.?\s?с\.?|нит|кв\.?\s*м|мТл|дБ)`
	precDecExpr   = `\b(\d+[.,]\d{3,})\s*(?:кг|мм|см|м|кВт|л|мТл)`
	goodsExpr     = `поставк\w+|товар\w*|оборудован\w+|компьютер|ноутбук|автомобил`
	servicesExpr  = `(?:услуг\w+\s+(?:по\s+)?(?:монтаж|настройк|обучен|внедрен|разработк|создан|обслуживан))|(?:работ\w+\s+по\s+(?:монтаж|установк|пуско-наладк))`
	tokenExpr     = `\S+`
	cyrillicExpr  = `[а-яёА-ЯЁ]`
	latinExpr     = `[a-zA-Z]`
)

var luxuryExprs = []string{
	`представительск\w+\s+(?:класс|автомобил)`,
	`премиум[\s-]?класс`,
	`бизнес[\s-]?класс`,
	`люкс`,
	`топ[\s-]?(?:класс|верси|комплектаци)`,
	`максимальн\w+\s+комплектаци`,
	`массаж\w+\s+(?:сиден|кресл)`,
	`шумоподавлен`,
	`перфорированн\w+\s+кож`,
}

const soleSourceMarker = "из одного источника"
