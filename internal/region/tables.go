package region

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

// AreasVersion identifies the postcode area table below.
const AreasVersion = "scotland-areas/2025.1"

// CouncilsVersion identifies the council table below (CouncilArea2019 codes).
const CouncilsVersion = "scotland-councils/2019"

// scottishAreas are the postcode areas that lie in Scotland.
var scottishAreas = []models.RegionCode{
	"AB", "DD", "DG", "EH", "FK", "G", "HS", "IV",
	"KA", "KW", "KY", "ML", "PA", "PH", "TD", "ZE",
}

// scottishCouncils maps GSS council area codes to readable names.
var scottishCouncils = map[models.RegionCode]string{
	"S12000005": "Clackmannanshire",
	"S12000006": "Dumfries and Galloway",
	"S12000008": "East Ayrshire",
	"S12000010": "East Lothian",
	"S12000011": "East Renfrewshire",
	"S12000013": "Na h-Eileanan Siar",
	"S12000014": "Falkirk",
	"S12000017": "Highland",
	"S12000018": "Inverclyde",
	"S12000019": "Midlothian",
	"S12000020": "Moray",
	"S12000021": "North Ayrshire",
	"S12000023": "Orkney Islands",
	"S12000026": "Scottish Borders",
	"S12000027": "Shetland Islands",
	"S12000028": "South Ayrshire",
	"S12000029": "South Lanarkshire",
	"S12000030": "Stirling",
	"S12000033": "Aberdeen City",
	"S12000034": "Aberdeenshire",
	"S12000035": "Argyll and Bute",
	"S12000036": "City of Edinburgh",
	"S12000038": "Renfrewshire",
	"S12000039": "West Dunbartonshire",
	"S12000040": "West Lothian",
	"S12000041": "Angus",
	"S12000042": "Dundee City",
	"S12000045": "East Dunbartonshire",
	"S12000047": "Fife",
	"S12000048": "Perth and Kinross",
	"S12000049": "Glasgow City",
	"S12000050": "North Lanarkshire",
}

// CodeSet is a closed set of valid region codes with optional display names.
type CodeSet struct {
	version string
	names   map[models.RegionCode]string
}

// NewCodeSet builds a set from codes. Codes are upper-cased.
func NewCodeSet(version string, codes ...models.RegionCode) CodeSet {
	names := lo.Associate(codes, func(c models.RegionCode) (models.RegionCode, string) {
		return normalizeCode(c), ""
	})
	return CodeSet{version: version, names: names}
}

// NewNamedCodeSet builds a set from a code to name table.
func NewNamedCodeSet(version string, table map[models.RegionCode]string) CodeSet {
	names := make(map[models.RegionCode]string, len(table))
	for code, name := range table {
		names[normalizeCode(code)] = name
	}
	return CodeSet{version: version, names: names}
}

// ScottishAreas returns the Scottish postcode area set.
func ScottishAreas() CodeSet {
	return NewCodeSet(AreasVersion, scottishAreas...)
}

// ScottishCouncils returns the Scottish council area set with names.
func ScottishCouncils() CodeSet {
	return NewNamedCodeSet(CouncilsVersion, scottishCouncils)
}

// Version returns the table version the set was built from.
func (s CodeSet) Version() string {
	return s.version
}

// Len returns the number of codes.
func (s CodeSet) Len() int {
	return len(s.names)
}

// Contains reports membership.
func (s CodeSet) Contains(code models.RegionCode) bool {
	_, ok := s.names[code]
	return ok
}

// Name returns the display name of a code, or "" when it has none.
func (s CodeSet) Name(code models.RegionCode) string {
	return s.names[code]
}

// Codes returns the members in sorted order.
func (s CodeSet) Codes() []models.RegionCode {
	codes := lo.Keys(s.names)
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Resolve maps a code or display name onto a member code.
func (s CodeSet) Resolve(codeOrName string) (models.RegionCode, bool) {
	code := normalizeCode(models.RegionCode(codeOrName))
	if s.Contains(code) {
		return code, true
	}
	for c, name := range s.names {
		if name != "" && strings.EqualFold(name, strings.TrimSpace(codeOrName)) {
			return c, true
		}
	}
	return "", false
}

// Subset returns the members matching the given codes or names. Unknown
// entries are returned separately.
func (s CodeSet) Subset(codesOrNames []string) (CodeSet, []string) {
	names := make(map[models.RegionCode]string)
	var unknown []string
	for _, v := range codesOrNames {
		code, ok := s.Resolve(v)
		if !ok {
			unknown = append(unknown, v)
			continue
		}
		names[code] = s.names[code]
	}
	return CodeSet{version: s.version, names: names}, unknown
}

func normalizeCode(c models.RegionCode) models.RegionCode {
	return models.RegionCode(strings.ToUpper(strings.TrimSpace(string(c))))
}
