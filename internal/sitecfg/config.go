package sitecfg

import "time"

type AuthMode int

const (
	Anonymous AuthMode = iota
	CookiesRequired
)

func (am AuthMode) String() string {
	return [...]string{"anonymous", "cookies"}[am]
}

type ScrollStrategy int

const (
	ScrollFixed ScrollStrategy = iota
	ScrollAdaptive
)

func (ss ScrollStrategy) String() string {
	return [...]string{"fixed", "adaptive"}[ss]
}

type StealthLevel int

const (
	StealthLow StealthLevel = iota
	StealthMedium
	StealthHigh
)

func (sl StealthLevel) String() string {
	return [...]string{"low", "medium", "high"}[sl]
}

// SelectorConfig holds the ordered candidate-selector chains for a site.
// First match wins; chains are tried in order.
type SelectorConfig struct {
	Container []string
	Title     []string
	Price     []string
	Link      []string
	Location  []string
	Image     []string
}

type RateLimitConfig struct {
	TokensPerMin int
}

type ScrollConfig struct {
	Strategy ScrollStrategy
	Steps    int
	Delay    time.Duration
}

type AntiDetectionConfig struct {
	StealthLevel     StealthLevel
	BlockImages      bool
	BlockMedia       bool
	BlockFonts       bool
	BlockStylesheets bool
}

// SiteConfig is the immutable per-marketplace configuration loaded at
// startup. Selector chains and pattern sets are data; the three adapter
// functions are the only per-site code.
type SiteConfig struct {
	Site              string
	Domain            string
	AuthMode          AuthMode
	Selectors         SelectorConfig
	RateLimit         RateLimitConfig
	Timeouts          []time.Duration // escalating container-wait budgets
	NavigationTimeout time.Duration
	RenderDelay       time.Duration
	Scroll            ScrollConfig
	AntiDetection     AntiDetectionConfig

	NoResultsPatterns  []string
	LoginPatterns      []string
	CheckpointPatterns []string

	Adapter SiteAdapter
}

// SiteAdapter holds the three deterministic, side-effect-free per-site
// functions. One implementation per site; the generic regex-driven
// implementation covers every site configured so far.
type SiteAdapter interface {
	// NormalizeURL turns a raw (possibly relative) listing href into an
	// absolute canonical URL. Empty result means the href is unusable.
	NormalizeURL(raw string) string
	// ExtractExternalID pulls the site-specific stable listing id from a
	// normalized URL. Empty result means no id could be derived.
	ExtractExternalID(url string) string
	// ParsePrice parses a raw price text into a numeric value.
	// Unparseable text resolves to 0, never an error.
	ParsePrice(text string) float64
}
