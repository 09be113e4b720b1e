package parser

import (
	"testing"

	"fit-atlas/internal/application/geo"
	"fit-atlas/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newParser() *Parser {
	return New(geo.MustDefault())
}

func codes(ws []domain.Warning) []domain.WarningCode {
	out := []domain.WarningCode{}
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

func TestParse_WindOverCapacityInCounty(t *testing.T) {
	p := newParser()
	r := p.Parse("wind sites over 100kw in Berkshire")

	require.NotNil(t, r.Filter.Technology)
	assert.Equal(t, domain.Wind, *r.Filter.Technology)
	require.NotNil(t, r.Filter.CapacityMinKW)
	assert.Equal(t, 100.0, *r.Filter.CapacityMinKW)
	assert.Nil(t, r.Filter.CapacityMaxKW)
	assert.Equal(t, geo.MustDefault().Resolve("berkshire"), r.Filter.PostcodePrefixes)
	assert.Equal(t, domain.IntentList, r.Filter.Intent)
	assert.Empty(t, r.Warnings)
	assert.False(t, r.FollowUp)
}

func TestParse_FullExample(t *testing.T) {
	r := newParser().Parse("Wind sites over 100kW in Berkshire with 8–10 years FIT left")

	assert.Equal(t, domain.Wind, *r.Filter.Technology)
	assert.Equal(t, 100.0, *r.Filter.CapacityMinKW)
	assert.Equal(t, []string{"RG", "SL"}, r.Filter.PostcodePrefixes)
	require.NotNil(t, r.Filter.YearsLeftMin)
	require.NotNil(t, r.Filter.YearsLeftMax)
	assert.Equal(t, 8, *r.Filter.YearsLeftMin)
	assert.Equal(t, 10, *r.Filter.YearsLeftMax)
	assert.Empty(t, r.Warnings)
}

func TestParse_Deterministic(t *testing.T) {
	p := newParser()
	queries := []string{
		"wind sites over 100kw in Berkshire",
		"compare wind and solar capacity in the south west",
		"total remaining value of urgent solar in kent and essex",
		"solar or hydro near Atlantis",
	}
	for _, q := range queries {
		assert.Equal(t, p.Parse(q), p.Parse(q), q)
	}
}

func TestParse_CityDoesNotWidenToCounty(t *testing.T) {
	r := newParser().Parse("solar in Reading")
	assert.Equal(t, []string{"RG"}, r.Filter.PostcodePrefixes)
	require.Len(t, r.Filter.Places, 1)
	assert.Equal(t, "city", r.Filter.Places[0].Kind)
}

func TestParse_LongestPlaceWins(t *testing.T) {
	r := newParser().Parse("hydro in north yorkshire")
	require.Len(t, r.Filter.Places, 1)
	assert.Equal(t, "north yorkshire", r.Filter.Places[0].Name)
	assert.Equal(t, []string{"DL", "HG", "TS", "YO"}, r.Filter.PostcodePrefixes)
}

func TestParse_MultiplePlacesUnion(t *testing.T) {
	r := newParser().Parse("solar in Berkshire and Oxfordshire")
	assert.Equal(t, []string{"OX", "RG", "SL"}, r.Filter.PostcodePrefixes)
	assert.Len(t, r.Filter.Places, 2)
}

func TestParse_CapacityForms(t *testing.T) {
	p := newParser()
	cases := []struct {
		text     string
		min, max *float64
	}{
		{"wind under 50kw in kent", nil, ptr(50)},
		{"wind between 100 and 500kw in kent", ptr(100), ptr(500)},
		{"wind 1.5MW-5MW in kent", ptr(1500), ptr(5000)},
		{"wind at least 2 mw in kent", ptr(2000), nil},
		{"wind 250kw or more in kent", ptr(250), nil},
		{"small wind in kent", nil, ptr(50)},
		{"medium wind in kent", ptr(50), ptr(500)},
		{"large wind in kent", ptr(500), nil},
		{"wind with no more than 10kw in kent", nil, ptr(10)},
		{"wind over 100kw and under 500kw in kent", ptr(100), ptr(500)},
	}
	for _, tc := range cases {
		r := p.Parse(tc.text)
		assert.Equal(t, tc.min, r.Filter.CapacityMinKW, tc.text)
		assert.Equal(t, tc.max, r.Filter.CapacityMaxKW, tc.text)
	}
}

func TestParse_YearsForms(t *testing.T) {
	p := newParser()
	cases := []struct {
		text     string
		min, max *int
	}{
		{"solar with less than 3 years remaining", nil, iptr(3)},
		{"solar with more than 5 years left", iptr(5), nil},
		{"domestic solar expiring within 2 years", nil, iptr(2)},
		{"solar with between five and ten years left", iptr(5), iptr(10)},
		{"solar with 7 years of fit left", iptr(7), iptr(7)},
	}
	for _, tc := range cases {
		r := p.Parse(tc.text)
		assert.Equal(t, tc.min, r.Filter.YearsLeftMin, tc.text)
		assert.Equal(t, tc.max, r.Filter.YearsLeftMax, tc.text)
	}
}

func TestParse_YearsNeedContractContext(t *testing.T) {
	r := newParser().Parse("solar installed 5 years ago")
	assert.Nil(t, r.Filter.YearsLeftMin)
	assert.Nil(t, r.Filter.YearsLeftMax)
}

func TestParse_CategoryAndSector(t *testing.T) {
	r := newParser().Parse("urgent commercial wind in Reading")
	require.NotNil(t, r.Filter.RepoweringCategory)
	assert.Equal(t, domain.Urgent, *r.Filter.RepoweringCategory)
	require.NotNil(t, r.Filter.Sector)
	assert.Equal(t, domain.Commercial, *r.Filter.Sector)
}

func TestParse_CompareTechnologies(t *testing.T) {
	r := newParser().Parse("compare wind and solar capacity in Scotland")

	assert.Equal(t, domain.IntentCompare, r.Filter.Intent)
	require.NotNil(t, r.Filter.Compare)
	assert.Equal(t, domain.CompareTechnology, r.Filter.Compare.Dimension)
	assert.Equal(t, []domain.Technology{domain.Wind, domain.Photovoltaic}, r.Filter.Compare.Technologies)
	assert.Equal(t, domain.FieldCapacityKW, r.Filter.Compare.Metric)
	assert.Nil(t, r.Filter.Technology)
	assert.Equal(t, geo.MustDefault().Resolve("scotland"), r.Filter.PostcodePrefixes)
	assert.NotContains(t, codes(r.Warnings), domain.WarnAmbiguousTechnology)
}

func TestParse_CompareRegions(t *testing.T) {
	r := newParser().Parse("compare wind income in Scotland versus Wales")
	assert.Equal(t, domain.IntentCompare, r.Filter.Intent)
	require.NotNil(t, r.Filter.Compare)
	assert.Equal(t, domain.CompareRegion, r.Filter.Compare.Dimension)
	assert.Len(t, r.Filter.Compare.Places, 2)
	assert.Equal(t, domain.FieldAnnualIncome, r.Filter.Compare.Metric)
	assert.Equal(t, domain.Wind, *r.Filter.Technology)
}

func TestParse_Aggregates(t *testing.T) {
	p := newParser()

	r := p.Parse("total capacity of solar in Cornwall")
	require.NotNil(t, r.Filter.Aggregate)
	assert.Equal(t, domain.IntentAggregate, r.Filter.Intent)
	assert.Equal(t, domain.Sum, r.Filter.Aggregate.Function)
	assert.Equal(t, domain.FieldCapacityKW, r.Filter.Aggregate.Field)

	r = p.Parse("how many hydro sites in Wales")
	require.NotNil(t, r.Filter.Aggregate)
	assert.Equal(t, domain.Count, r.Filter.Aggregate.Function)

	r = p.Parse("average annual income of wind turbines in Scotland")
	require.NotNil(t, r.Filter.Aggregate)
	assert.Equal(t, domain.Avg, r.Filter.Aggregate.Function)
	assert.Equal(t, domain.FieldAnnualIncome, r.Filter.Aggregate.Field)

	r = p.Parse("total remaining value of urgent solar in kent")
	require.NotNil(t, r.Filter.Aggregate)
	assert.Equal(t, domain.Sum, r.Filter.Aggregate.Function)
	assert.Equal(t, domain.FieldTotalRemainingValue, r.Filter.Aggregate.Field)
}

func TestParse_SortAndLimit(t *testing.T) {
	r := newParser().Parse("top 5 largest wind sites in Kent")
	assert.Equal(t, 5, r.Filter.Limit)
	require.NotNil(t, r.Filter.Sort)
	assert.Equal(t, domain.FieldCapacityKW, r.Filter.Sort.Field)
	assert.True(t, r.Filter.Sort.Descending)

	r = newParser().Parse("solar in devon sorted by income ascending")
	require.NotNil(t, r.Filter.Sort)
	assert.Equal(t, domain.FieldAnnualIncome, r.Filter.Sort.Field)
	assert.False(t, r.Filter.Sort.Descending)
}

func TestParse_AmbiguousTechnology(t *testing.T) {
	r := newParser().Parse("solar or wind in Kent")
	assert.Equal(t, domain.Photovoltaic, *r.Filter.Technology)
	require.Equal(t, []domain.WarningCode{domain.WarnAmbiguousTechnology}, codes(r.Warnings))
	assert.Equal(t, "wind", r.Warnings[0].Term)
}

func TestParse_SizeAdjectiveOverruledByFigure(t *testing.T) {
	r := newParser().Parse("small wind over 100kw in Kent")
	assert.Equal(t, ptr(100), r.Filter.CapacityMinKW)
	assert.Nil(t, r.Filter.CapacityMaxKW)
	require.Equal(t, []domain.WarningCode{domain.WarnAmbiguousCapacity}, codes(r.Warnings))
	assert.Equal(t, "small", r.Warnings[0].Term)

	r = newParser().Parse("small wind in Kent")
	assert.Equal(t, ptr(50), r.Filter.CapacityMaxKW)
	assert.Empty(t, r.Warnings)
}

func TestParse_UnrecognizedPlace(t *testing.T) {
	r := newParser().Parse("wind farms in Atlantis")
	assert.Equal(t, domain.Wind, *r.Filter.Technology)
	assert.Empty(t, r.Filter.PostcodePrefixes)
	require.Equal(t, []domain.WarningCode{domain.WarnUnrecognizedPlace}, codes(r.Warnings))
	assert.Equal(t, "atlantis", r.Warnings[0].Term)
}

func TestParse_UnrecognizedPlaceKeepsOtherPlaces(t *testing.T) {
	r := newParser().Parse("solar in Kent and Narnia")
	assert.Equal(t, geo.MustDefault().Resolve("kent"), r.Filter.PostcodePrefixes)
	assert.Contains(t, codes(r.Warnings), domain.WarnUnrecognizedPlace)
}

func TestParse_Underspecified(t *testing.T) {
	r := newParser().Parse("show me everything you have")
	assert.False(t, r.Filter.HasConstraint())
	assert.Equal(t, []domain.WarningCode{domain.WarnInsufficientlySpecific}, codes(r.Warnings))
}

func TestParse_RangeInconsistency(t *testing.T) {
	r := newParser().Parse("wind between 500kw and 100kw")
	assert.Contains(t, codes(r.Warnings), domain.WarnRangeInconsistency)
}

func TestParse_PostcodeArea(t *testing.T) {
	r := newParser().Parse("solar in RG postcodes")
	assert.Equal(t, []string{"RG"}, r.Filter.PostcodePrefixes)
	require.Len(t, r.Filter.Places, 1)
	assert.Equal(t, "postcode_area", r.Filter.Places[0].Kind)
	assert.Empty(t, r.Warnings)
}

func TestParse_FollowUp(t *testing.T) {
	p := newParser()
	r := p.Parse("what about in Kent")
	assert.True(t, r.FollowUp)
	assert.Equal(t, geo.MustDefault().Resolve("kent"), r.Filter.PostcodePrefixes)

	r = p.Parse("only the urgent ones")
	assert.True(t, r.FollowUp)
	assert.Equal(t, domain.Urgent, *r.Filter.RepoweringCategory)
}

func ptr(v float64) *float64 { return &v }

func iptr(v int) *int { return &v }
