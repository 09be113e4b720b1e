package parser

import (
	"sort"

	"fit-atlas/internal/domain"
)

type phrase []string

type techSynonym struct {
	words phrase
	tech  domain.Technology
}

var technologySynonyms = sortedByLength([]techSynonym{
	{phrase{"combined", "heat", "and", "power"}, domain.MicroCHP},
	{phrase{"micro", "chp"}, domain.MicroCHP},
	{phrase{"microchp"}, domain.MicroCHP},
	{phrase{"chp"}, domain.MicroCHP},
	{phrase{"anaerobic", "digestion"}, domain.AnaerobicDigestion},
	{phrase{"anaerobic"}, domain.AnaerobicDigestion},
	{phrase{"biogas"}, domain.AnaerobicDigestion},
	{phrase{"digester"}, domain.AnaerobicDigestion},
	{phrase{"digesters"}, domain.AnaerobicDigestion},
	{phrase{"ad"}, domain.AnaerobicDigestion},
	{phrase{"wind", "turbines"}, domain.Wind},
	{phrase{"wind", "turbine"}, domain.Wind},
	{phrase{"wind", "farms"}, domain.Wind},
	{phrase{"wind", "farm"}, domain.Wind},
	{phrase{"wind"}, domain.Wind},
	{phrase{"turbine"}, domain.Wind},
	{phrase{"turbines"}, domain.Wind},
	{phrase{"solar", "pv"}, domain.Photovoltaic},
	{phrase{"solar", "panels"}, domain.Photovoltaic},
	{phrase{"solar", "farms"}, domain.Photovoltaic},
	{phrase{"solar", "farm"}, domain.Photovoltaic},
	{phrase{"solar"}, domain.Photovoltaic},
	{phrase{"pv"}, domain.Photovoltaic},
	{phrase{"photovoltaic"}, domain.Photovoltaic},
	{phrase{"photovoltaics"}, domain.Photovoltaic},
	{phrase{"panels"}, domain.Photovoltaic},
	{phrase{"hydro", "electric"}, domain.Hydro},
	{phrase{"hydroelectric"}, domain.Hydro},
	{phrase{"hydropower"}, domain.Hydro},
	{phrase{"hydro"}, domain.Hydro},
})

func sortedByLength(s []techSynonym) []techSynonym {
	sort.SliceStable(s, func(i, j int) bool { return len(s[i].words) > len(s[j].words) })
	return s
}

// comparator phrases, longest first within each list
var (
	atLeastBefore = []phrase{
		{"no", "less", "than"}, {"no", "fewer", "than"},
		{"more", "than"}, {"greater", "than"}, {"larger", "than"}, {"bigger", "than"},
		{"at", "least"}, {"minimum", "of"}, {"in", "excess", "of"},
		{"over"}, {"above"}, {"exceeding"}, {"minimum"}, {"min"}, {">"},
	}
	atMostBefore = []phrase{
		{"no", "more", "than"}, {"no", "larger", "than"}, {"no", "bigger", "than"},
		{"less", "than"}, {"fewer", "than"}, {"smaller", "than"},
		{"up", "to"}, {"at", "most"}, {"maximum", "of"}, {"the", "next"},
		{"under"}, {"below"}, {"within"}, {"next"}, {"maximum"}, {"max"}, {"<"},
	}
	atLeastAfter = []phrase{{"or", "more"}, {"or", "above"}, {"or", "over"}, {"and", "above"}, {"and", "over"}, {"plus"}}
	atMostAfter  = []phrase{{"or", "less"}, {"or", "fewer"}, {"or", "under"}, {"or", "below"}, {"and", "below"}, {"and", "under"}}
)

var capacityUnits = map[string]float64{
	"kw": 1, "kwp": 1, "kwe": 1, "kilowatt": 1, "kilowatts": 1,
	"mw": 1000, "mwp": 1000, "mwe": 1000, "megawatt": 1000, "megawatts": 1000,
}

var yearUnits = map[string]float64{"year": 1, "years": 1, "yr": 1, "yrs": 1}

// a years phrase only counts when it talks about the contract
var (
	yearsContextAfter  = set("left", "remaining", "remain", "go", "fit", "contract", "subsidy", "tariff", "payments")
	yearsContextBefore = set("expiring", "expire", "expires", "expiry", "ending", "end", "ends", "remaining", "left", "within", "next")
)

type sizeAdjective struct {
	min, max *float64
}

func kw(v float64) *float64 { return &v }

// small <50kW, medium 50-500kW, large >500kW
var sizeAdjectives = map[string]sizeAdjective{
	"small":  {max: kw(50)},
	"medium": {min: kw(50), max: kw(500)},
	"large":  {min: kw(500)},
	"big":    {min: kw(500)},
}

var categoryWords = map[string]domain.RepoweringCategory{
	"optimal":     domain.Optimal,
	"urgent":      domain.Urgent,
	"urgently":    domain.Urgent,
	"immediate":   domain.Immediate,
	"immediately": domain.Immediate,
	"expired":     domain.Expired,
}

var sectorWords = map[string]domain.Sector{
	"domestic":    domain.Domestic,
	"residential": domain.Domestic,
	"household":   domain.Domestic,
	"households":  domain.Domestic,
	"homes":       domain.Domestic,
	"commercial":  domain.Commercial,
	"business":    domain.Commercial,
	"businesses":  domain.Commercial,
	"industrial":  domain.Industrial,
	"community":   domain.Community,
	"communities": domain.Community,
}

var compareWords = set("compare", "comparing", "comparison", "versus", "vs", "against")

type aggregateWord struct {
	words phrase
	fn    domain.AggregateFunction
}

var aggregateWords = []aggregateWord{
	{phrase{"how", "many"}, domain.Count},
	{phrase{"number", "of"}, domain.Count},
	{phrase{"count"}, domain.Count},
	{phrase{"total"}, domain.Sum},
	{phrase{"sum"}, domain.Sum},
	{phrase{"combined"}, domain.Sum},
	{phrase{"average"}, domain.Avg},
	{phrase{"avg"}, domain.Avg},
	{phrase{"mean"}, domain.Avg},
}

type fieldWord struct {
	words phrase
	field domain.Field
}

var fieldWords = []fieldWord{
	{phrase{"remaining", "value"}, domain.FieldTotalRemainingValue},
	{phrase{"contract", "value"}, domain.FieldTotalRemainingValue},
	{phrase{"annual", "income"}, domain.FieldAnnualIncome},
	{phrase{"annual", "generation"}, domain.FieldAnnualGenerationKWh},
	{phrase{"years", "remaining"}, domain.FieldYearsRemaining},
	{phrase{"years", "left"}, domain.FieldYearsRemaining},
	{phrase{"value"}, domain.FieldTotalRemainingValue},
	{phrase{"income"}, domain.FieldAnnualIncome},
	{phrase{"revenue"}, domain.FieldAnnualIncome},
	{phrase{"earnings"}, domain.FieldAnnualIncome},
	{phrase{"generation"}, domain.FieldAnnualGenerationKWh},
	{phrase{"output"}, domain.FieldAnnualGenerationKWh},
	{phrase{"kwh"}, domain.FieldAnnualGenerationKWh},
	{phrase{"capacity"}, domain.FieldCapacityKW},
	{phrase{"size"}, domain.FieldCapacityKW},
	{phrase{"expiry"}, domain.FieldExpiryDate},
}

type sortWord struct {
	words phrase
	order domain.SortOrder
}

var sortWords = []sortWord{
	{phrase{"closest", "to", "expiry"}, domain.SortOrder{Field: domain.FieldExpiryDate}},
	{phrase{"soonest", "expiring"}, domain.SortOrder{Field: domain.FieldExpiryDate}},
	{phrase{"expiring", "soonest"}, domain.SortOrder{Field: domain.FieldExpiryDate}},
	{phrase{"expiring", "first"}, domain.SortOrder{Field: domain.FieldExpiryDate}},
	{phrase{"nearest", "expiry"}, domain.SortOrder{Field: domain.FieldExpiryDate}},
	{phrase{"highest", "income"}, domain.SortOrder{Field: domain.FieldAnnualIncome, Descending: true}},
	{phrase{"most", "income"}, domain.SortOrder{Field: domain.FieldAnnualIncome, Descending: true}},
	{phrase{"highest", "earning"}, domain.SortOrder{Field: domain.FieldAnnualIncome, Descending: true}},
	{phrase{"top", "earning"}, domain.SortOrder{Field: domain.FieldAnnualIncome, Descending: true}},
	{phrase{"lowest", "income"}, domain.SortOrder{Field: domain.FieldAnnualIncome}},
	{phrase{"most", "valuable"}, domain.SortOrder{Field: domain.FieldTotalRemainingValue, Descending: true}},
	{phrase{"highest", "value"}, domain.SortOrder{Field: domain.FieldTotalRemainingValue, Descending: true}},
	{phrase{"largest"}, domain.SortOrder{Field: domain.FieldCapacityKW, Descending: true}},
	{phrase{"biggest"}, domain.SortOrder{Field: domain.FieldCapacityKW, Descending: true}},
	{phrase{"smallest"}, domain.SortOrder{Field: domain.FieldCapacityKW}},
}

var (
	sortByWords    = []phrase{{"sorted", "by"}, {"sort", "by"}, {"order", "by"}, {"ordered", "by"}, {"ranked", "by"}, {"rank", "by"}}
	ascendingWords = set("ascending", "asc", "lowest", "increasing")
	descendWords   = set("descending", "desc", "highest", "decreasing")
	limitWords     = set("top", "first", "limit")
)

var (
	followUpLeading = []phrase{{"what", "about"}, {"how", "about"}, {"what", "if"}, {"same", "but"}, {"same", "for"}, {"and"}, {"also"}, {"now"}, {"only"}, {"just"}}
	followUpAnywhere = []phrase{{"of", "those"}, {"of", "them"}, {"of", "these"}, {"instead"}}
)

var (
	locationPrepositions = set("in", "near", "around", "across", "within", "throughout")
	postcodeWords        = set("postcode", "postcodes", "postal")
)

var wordNumbers = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5", "six": "6", "seven": "7",
	"eight": "8", "nine": "9", "ten": "10", "eleven": "11", "twelve": "12", "thirteen": "13",
	"fourteen": "14", "fifteen": "15", "sixteen": "16", "seventeen": "17", "eighteen": "18",
	"nineteen": "19", "twenty": "20",
}

// words that can follow a location preposition without naming a place
var stopWords = set(
	"the", "a", "an", "and", "or", "with", "without", "of", "for", "that", "which", "are", "is",
	"have", "has", "having", "their", "its", "my", "our", "all", "any", "each", "per", "by",
	"sites", "site", "installations", "installation", "assets", "asset", "projects", "project",
	"farms", "farm", "schemes", "scheme", "systems", "system", "plants", "plant", "generators",
	"uk", "gb", "britain", "great", "united", "kingdom", "country", "area", "areas", "region",
	"regions", "county", "counties", "city", "cities", "total", "terms", "portfolio", "general",
	"between", "from", "to", "at", "on", "than", "there", "where", "when", "what", "how", "years",
	"year", "left", "remaining", "fit", "contract", "kw", "mw", "size", "capacity", "income",
	"value", "operation", "service", "place", "next", "last", "past", "this", "those", "these",
)

var vocabulary = buildVocabulary()

func buildVocabulary() map[string]struct{} {
	v := map[string]struct{}{}
	add := func(words ...string) {
		for _, w := range words {
			v[w] = struct{}{}
		}
	}
	for _, s := range technologySynonyms {
		add(s.words...)
	}
	for _, list := range [][]phrase{atLeastBefore, atMostBefore, atLeastAfter, atMostAfter, sortByWords, followUpLeading, followUpAnywhere} {
		for _, p := range list {
			add(p...)
		}
	}
	for _, a := range aggregateWords {
		add(a.words...)
	}
	for _, f := range fieldWords {
		add(f.words...)
	}
	for _, s := range sortWords {
		add(s.words...)
	}
	for _, m := range []map[string]struct{}{yearsContextAfter, yearsContextBefore, compareWords, ascendingWords, descendWords, limitWords, locationPrepositions, postcodeWords, stopWords} {
		for w := range m {
			add(w)
		}
	}
	for w := range capacityUnits {
		add(w)
	}
	for w := range yearUnits {
		add(w)
	}
	for w := range sizeAdjectives {
		add(w)
	}
	for w := range categoryWords {
		add(w)
	}
	for w := range sectorWords {
		add(w)
	}
	for w := range wordNumbers {
		add(w)
	}
	return v
}

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
