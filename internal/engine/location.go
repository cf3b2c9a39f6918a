package engine

import (
	"regexp"
	"strings"

	"github.com/adlens/marketplace-crawler/internal/model"
)

// Exclusive per-country location patterns. Two-letter codes shared by both
// countries (AL, MA, MS, MT, PA, SC) appear in neither set: an ambiguous
// abbreviation must never reject a listing. Abbreviations match as
// uppercase whole words only; names match as case-insensitive substrings.
type countryPatterns struct {
	abbr  *regexp.Regexp
	names []string
}

var exclusiveCountryPatterns = map[string]countryPatterns{
	"BR": {
		abbr: regexp.MustCompile(`\b(AC|AP|AM|BA|CE|DF|ES|GO|MG|PB|PR|PE|PI|RJ|RN|RS|RO|RR|SP|SE|TO)\b`),
		names: []string{
			"brasil", "brazil", "sao paulo", "são paulo", "rio de janeiro", "minas gerais",
			"espirito santo", "espírito santo", "parana", "paraná", "santa catarina",
			"rio grande do", "mato grosso", "bahia", "pernambuco", "ceara", "ceará",
			"amazonas", "maranhao", "maranhão", "goias", "goiás", "paraiba", "paraíba",
			"alagoas", "sergipe", "rondonia", "rondônia", "roraima", "tocantins",
			"piaui", "piauí", "distrito federal",
		},
	},
	"US": {
		abbr: regexp.MustCompile(`\b(AK|AZ|AR|CA|CO|CT|DE|FL|GA|HI|ID|IL|IN|IA|KS|KY|LA|ME|MD|MI|MN|MO|NE|NV|NH|NJ|NM|NY|NC|ND|OH|OK|OR|RI|SD|TN|TX|UT|VT|VA|WA|WV|WI|WY|DC)\b`),
		names: []string{
			"united states", "usa", "alabama", "alaska", "arizona", "arkansas", "california",
			"colorado", "connecticut", "delaware", "florida", "hawaii", "idaho", "illinois",
			"indiana", "iowa", "kansas", "kentucky", "louisiana", "maine", "maryland",
			"massachusetts", "michigan", "minnesota", "mississippi", "missouri", "montana",
			"nebraska", "nevada", "new hampshire", "new jersey", "new mexico", "new york",
			"north carolina", "north dakota", "ohio", "oklahoma", "oregon", "pennsylvania",
			"rhode island", "south carolina", "south dakota", "tennessee", "texas", "utah",
			"vermont", "virginia", "washington", "wisconsin", "wyoming",
		},
	},
}

const worldwide = "WORLDWIDE"

// MatchLocation heuristically matches an ad's free-text location against a
// monitor's geographic filter. The policy is conservative-keep: missing
// data and ambiguous text always match, because dropping a real listing is
// worse than occasionally showing an out-of-region one.
func MatchLocation(locationText string, monitor *model.MonitorWithFilters) (bool, string) {
	country := strings.ToUpper(strings.TrimSpace(monitor.Country))
	if country == "" || country == worldwide {
		return true, ""
	}
	text := strings.TrimSpace(locationText)
	if text == "" {
		return true, ""
	}
	lower := strings.ToLower(text)

	// Countries without a known pattern set skip the country check and
	// fall through to state/city.
	if own, known := exclusiveCountryPatterns[country]; known {
		for code, other := range exclusiveCountryPatterns {
			if code == country {
				continue
			}
			if matchesPatterns(text, lower, other) && !matchesPatterns(text, lower, own) {
				return false, model.SkipLocationCountryMismatch
			}
		}
	}

	if monitor.StateRegion != "" && !wholeWordMatch(text, monitor.StateRegion) {
		return false, model.SkipLocationStateMismatch
	}
	if monitor.City != "" && !strings.Contains(lower, strings.ToLower(monitor.City)) {
		return false, model.SkipLocationCityMismatch
	}

	return true, ""
}

func matchesPatterns(text, lower string, p countryPatterns) bool {
	if p.abbr.MatchString(text) {
		return true
	}
	for _, name := range p.names {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

// Word boundaries by hand: \b does not work at non-ASCII word edges.
func wholeWordMatch(text, word string) bool {
	re, err := regexp.Compile(`(?i)(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(word) + `(?:[^\p{L}\p{N}]|$)`)
	if err != nil {
		return strings.Contains(strings.ToLower(text), strings.ToLower(word))
	}
	return re.MatchString(text)
}
