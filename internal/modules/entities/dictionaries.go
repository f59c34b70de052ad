package entities

// Brand dictionary groups
const (
	GroupIT       = "it"
	GroupSoftware = "software"
	GroupAuto     = "auto"
	GroupMedical  = "medical"
	GroupLab      = "lab"
)

var brandDictionary = map[string][]string{
	GroupIT: {
		"Apple", "MacBook", "iPhone", "iPad", "iMac",
		"Dell", "Latitude", "OptiPlex", "Inspiron", "XPS",
		"HP", "EliteBook", "ProBook", "ProDesk", "ZBook", "LaserJet",
		"Lenovo", "ThinkPad", "ThinkCentre", "IdeaPad", "Legion",
		"Samsung", "Galaxy",
		"Asus", "ROG", "ZenBook",
		"Acer", "Aspire",
		"Microsoft", "Surface",
		"Canon", "imageRUNNER",
		"Xerox", "VersaLink", "AltaLink",
		"Epson",
		"Cisco", "Catalyst", "Meraki",
		"Huawei", "MateBook",
		"Intel Core",
		"AMD Ryzen",
	},
	GroupSoftware: {
		"Microsoft Office", "Windows", "Azure",
		"Kaspersky", "ESET NOD32",
		"1C:Предприятие", "1С:Предприятие", "1C:Бухгалтерия",
		"SAP", "Oracle",
		"Autodesk", "AutoCAD",
		"Adobe", "Photoshop",
		"VMware", "vSphere",
	},
	GroupAuto: {
		"Toyota", "Land Cruiser", "Camry", "Corolla", "Hilux", "RAV4", "Prado",
		"Lexus", "LX", "RX", "NX", "ES", "LS",
		"Hyundai", "Sonata", "Tucson", "Santa Fe", "Palisade",
		"Kia", "K5", "K7", "Sportage", "Sorento", "Carnival",
		"Chevrolet", "Tahoe", "Traverse",
		"BMW",
		"Mercedes-Benz", "Mercedes",
		"Audi",
		"Volkswagen", "Passat", "Tiguan",
		"Mitsubishi", "Pajero", "Outlander",
		"Nissan", "Patrol", "X-Trail",
		"Ford", "Explorer",
	},
	GroupMedical: {
		"Siemens", "Healthineers", "MAGNETOM",
		"Philips", "IntelliVue", "EPIQ",
		"GE Healthcare",
		"Mindray",
		"Dräger", "Drager",
		"Olympus",
		"Medtronic",
		"Stryker",
		"Roche",
	},
	GroupLab: {
		"Thermo Fisher", "Scientific",
		"Agilent", "Technologies",
		"Shimadzu",
		"Bruker",
		"Waters",
		"PerkinElmer",
		"Mettler Toledo",
	},
}

// labeled pairs a pattern with the label stored in entity metadata
type labeled struct {
	expr  string
	label string
}

var exclusiveExprs = []labeled{
	{`аналоги\s+не\s+допуска(?:ю|е)тся`, "аналоги не допускаются"},
	{`эквивалент\w*\s+не\s+(?:допуска|рассматрива)`, "эквиваленты не допускаются"},
	{`аналоги\s+и\s+эквивалент\w*\s+не\s+допуска`, "аналоги и эквиваленты не допускаются"},
	{`эквивалент\w*\s+не\s+рассматрива`, "эквиваленты не рассматриваются"},
	{`аналоги\s+не\s+рассматрива`, "аналоги не рассматриваются"},
	{`эксклюзивн\w+\s+постав`, "эксклюзивный поставщик"},
	{`только\s+(?:от\s+)?(?:прям\w+\s+)?постав\w+\s+от`, "только поставки от"},
	{`категорически\s+не\s+допуска`, "категорически не допускаются"},
	{`сублицензирование\s+не\s+допуска`, "сублицензирование не допускается"},
	{`только\s+оригинальн\w+`, "только оригинальное"},
	{`только\s+прямые\s+поставки`, "только прямые поставки"},
}

var legalExprs = []labeled{
	{`авторизованн\w+\s+(?:дилер|партн[её]р|реселлер|представител)`, "авторизованный дилер/партнёр"},
	{`официальн\w+\s+(?:дилер|партн[её]р|представител|поставщик)`, "официальный дилер/партнёр"},
	{`подтвердить\s+письмом\s+от`, "подтверждение письмом от производителя"},
	{`статус\w*\s+(?:авторизованн|сертифицированн)`, "требование статуса"},
	{`сертификат\w*\s+(?:дилер|партн[её]р)`, "сертификат дилера"},
	{`опыт\s+(?:поставок|установки|внедрения)\s+.*?не\s+менее\s+\d+`, "требование опыта"},
}

var geoExprs = []labeled{
	{`(?:склад|офис|сервисн\w+\s+центр)\s+в\s+(?:г\.?\s*)?(?:Астан|Алмат|Шымкент|Караганд|Акто|Атыра|Павлодар)`, "географическое ограничение (город)"},
	{`в\s+(?:радиусе|пределах)\s+\d+\s*(?:км|километр)`, "ограничение по радиусу"},
	{`собственн\w+\s+склад\w*\s+.*?площад\w+\s+не\s+менее`, "требование к складу"},
	{`на\s+территории\s+(?:Республики\s+)?Казахстан`, "ограничение территорией РК"},
	{`сервисн\w+\s+центр\w*\s+.*?в\s+(?:радиусе|пределах|г\.?)`, "требование сервисного центра"},
}

var standardExprs = []labeled{
	{`ГОСТ\s*(?:Р\s*)?(?:ИСО\s*)?\d[\d.\-]*`, "ГОСТ"},
	{`СТ\s+РК\s+\d[\d.\-]*`, "СТ РК"},
	{`ISO\s+\d[\d.\-:]*`, "ISO"},
	{`MIL-STD-\d+\w*`, "MIL-STD"},
	{`ТУ\s+\d[\d.\-]*`, "ТУ"},
	{`IEC\s+\d[\d.\-]*`, "IEC"},
}

var preciseExprs = []labeled{
	{`именно\s+[\d.,]+\s*\w+`, "именно N"},
	{`ровно\s+[\d.,]+\s*\w+`, "ровно N"},
	{`\b\d+\.\d{3,}\s*(?:кг|г|мм|см|м|кВт|Вт|МГц|ГГц|Тл|л\.?\s?с\.?|нит|кв\.?\s*м)`, "precise decimal"},
	{`(?:ровно|именно|составляет)\s+\d{4,}`, "precise large number"},
	{`\(код\s+\w{2,5}\)`, "color/model code"},
	{`(?:модель|артикул|каталожный\s+номер)\s+[A-Z]\d{3,}\w*`, "exact model number"},
}
