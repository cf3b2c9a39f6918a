package engine

import (
	"testing"

	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestMatchLocationNoFilter(t *testing.T) {
	for _, country := range []string{"", "WORLDWIDE", "worldwide"} {
		monitor := &model.MonitorWithFilters{Country: country}
		ok, reason := MatchLocation("New York, NY", monitor)
		assert.True(t, ok, "country %q must not filter", country)
		assert.Empty(t, reason)
	}
}

func TestMatchLocationEmptyTextAlwaysMatches(t *testing.T) {
	monitor := &model.MonitorWithFilters{Country: "BR", StateRegion: "SP", City: "Campinas"}
	ok, reason := MatchLocation("", monitor)
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, _ = MatchLocation("   ", monitor)
	assert.True(t, ok)
}

func TestMatchLocationCountryMismatch(t *testing.T) {
	br := &model.MonitorWithFilters{Country: "BR"}
	us := &model.MonitorWithFilters{Country: "US"}

	ok, reason := MatchLocation("New York, NY", br)
	assert.False(t, ok)
	assert.Equal(t, model.SkipLocationCountryMismatch, reason)

	ok, reason = MatchLocation("São Paulo, SP", us)
	assert.False(t, ok)
	assert.Equal(t, model.SkipLocationCountryMismatch, reason)

	ok, _ = MatchLocation("São Paulo, SP", br)
	assert.True(t, ok)
	ok, _ = MatchLocation("Austin, TX", us)
	assert.True(t, ok)
}

// AL is both Alabama and Alagoas; MA both Massachusetts and Maranhão.
// Ambiguous codes must never reject a listing for either country.
func TestMatchLocationAmbiguousAbbreviations(t *testing.T) {
	for _, text := range []string{"Maceió, AL", "Boston, MA", "Cuiabá, MT", "Recife, PA"} {
		for _, country := range []string{"BR", "US"} {
			ok, reason := MatchLocation(text, &model.MonitorWithFilters{Country: country})
			assert.True(t, ok, "%q must match country %s", text, country)
			assert.Empty(t, reason)
		}
	}
}

// Lowercase state codes in page text are ordinary words, not abbreviations.
func TestMatchLocationAbbreviationCaseSensitive(t *testing.T) {
	us := &model.MonitorWithFilters{Country: "US"}
	// "ny" lowercase is not a US marker, and nothing marks it as BR either.
	ok, _ := MatchLocation("sunny apartment", us)
	assert.True(t, ok)

	br := &model.MonitorWithFilters{Country: "BR"}
	// "esprit" contains "es" but not as a whole uppercase word.
	ok, _ = MatchLocation("Esprit store, NY", br)
	assert.False(t, ok)
}

func TestMatchLocationStateFilter(t *testing.T) {
	monitor := &model.MonitorWithFilters{Country: "BR", StateRegion: "SP"}

	ok, _ := MatchLocation("Campinas, SP", monitor)
	assert.True(t, ok)

	// Filter value is case-insensitive against the page text.
	lower := &model.MonitorWithFilters{Country: "BR", StateRegion: "sp"}
	ok, _ = MatchLocation("Campinas, SP", lower)
	assert.True(t, ok)

	ok, reason := MatchLocation("Belo Horizonte, MG", monitor)
	assert.False(t, ok)
	assert.Equal(t, model.SkipLocationStateMismatch, reason)
}

func TestMatchLocationStateWholeWordOnly(t *testing.T) {
	// "SP" inside another word must not count as a state match.
	monitor := &model.MonitorWithFilters{Country: "US", StateRegion: "OR"}
	ok, reason := MatchLocation("Storage unit, WA", monitor)
	assert.False(t, ok)
	assert.Equal(t, model.SkipLocationStateMismatch, reason)

	ok, _ = MatchLocation("Portland, OR", monitor)
	assert.True(t, ok)
}

func TestMatchLocationCityFilter(t *testing.T) {
	monitor := &model.MonitorWithFilters{Country: "US", City: "Austin"}

	ok, _ := MatchLocation("Austin, TX", monitor)
	assert.True(t, ok)
	ok, _ = MatchLocation("austin, tx metro area", monitor)
	assert.True(t, ok)

	ok, reason := MatchLocation("Dallas, TX", monitor)
	assert.False(t, ok)
	assert.Equal(t, model.SkipLocationCityMismatch, reason)
}

// A country with no exclusive pattern set cannot produce country
// mismatches; state and city filters still apply.
func TestMatchLocationUnknownCountry(t *testing.T) {
	monitor := &model.MonitorWithFilters{Country: "DE", City: "Berlin"}

	ok, _ := MatchLocation("Berlin, Mitte", monitor)
	assert.True(t, ok)

	ok, reason := MatchLocation("Hamburg", monitor)
	assert.False(t, ok)
	assert.Equal(t, model.SkipLocationCityMismatch, reason)
}

// Text carrying markers of both countries is ambiguous, not exclusive.
func TestMatchLocationMixedMarkers(t *testing.T) {
	monitor := &model.MonitorWithFilters{Country: "BR"}
	ok, _ := MatchLocation("Shipped from NY to SP", monitor)
	assert.True(t, ok)
}
