package sitecfg

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var priceRegex = regexp.MustCompile(`\d[\d.,\s]*`)

// RegexAdapter is the generic SiteAdapter implementation. Each site
// configures a base URL, an external-id pattern (first capture group wins)
// and the query parameters worth keeping after normalization.
type RegexAdapter struct {
	baseURL    *url.URL
	idPattern  *regexp.Regexp
	keepParams map[string]struct{}
}

func NewRegexAdapter(domain, idPattern string, keepParams []string) (*RegexAdapter, error) {
	base, err := url.Parse("https://" + domain)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(idPattern)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]struct{}, len(keepParams))
	for _, p := range keepParams {
		keep[p] = struct{}{}
	}
	return &RegexAdapter{baseURL: base, idPattern: re, keepParams: keep}, nil
}

func (a *RegexAdapter) NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	abs := a.baseURL.ResolveReference(u)
	if abs.Host == "" || abs.Path == "" || abs.Path == "/" {
		return ""
	}
	abs.Fragment = ""
	query := abs.Query()
	for param := range query {
		if _, ok := a.keepParams[param]; !ok {
			query.Del(param)
		}
	}
	abs.RawQuery = query.Encode()

	return abs.String()
}

func (a *RegexAdapter) ExtractExternalID(u string) string {
	match := a.idPattern.FindStringSubmatch(u)
	if len(match) > 1 {
		return match[1]
	}
	return ""
}

func (a *RegexAdapter) ParsePrice(text string) float64 {
	return ParsePrice(text)
}

// ParsePrice handles both decimal-point and decimal-comma locales:
// "R$ 5.000" -> 5000, "$1,234.56" -> 1234.56, "1.234,56" -> 1234.56.
// Anything unparseable resolves to 0 ("unknown", not "cheap").
func ParsePrice(text string) float64 {
	match := priceRegex.FindString(text)
	if match == "" {
		return 0
	}
	s := strings.ReplaceAll(match, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.Trim(s, ".,")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// The later separator is the decimal one.
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		s = normalizeSingleSeparator(s, ",", lastComma)
	case lastDot >= 0:
		s = normalizeSingleSeparator(s, ".", lastDot)
	}

	price, err := strconv.ParseFloat(s, 64)
	if err != nil || price < 0 {
		return 0
	}
	return price
}

// A lone separator followed by one or two digits is a decimal mark;
// everything else is digit grouping ("5.000" is five thousand).
func normalizeSingleSeparator(s, sep string, lastIdx int) string {
	digitsAfter := len(s) - lastIdx - 1
	if strings.Count(s, sep) == 1 && (digitsAfter == 1 || digitsAfter == 2) {
		return strings.Replace(s, sep, ".", 1)
	}
	return strings.ReplaceAll(s, sep, "")
}
