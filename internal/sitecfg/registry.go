package sitecfg

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// siteSpec is the on-disk (yaml) shape of one site entry. Durations are
// given in milliseconds, enums as lowercase strings.
type siteSpec struct {
	Domain        string   `mapstructure:"domain"`
	AuthMode      string   `mapstructure:"auth_mode"`
	TokensPerMin  int      `mapstructure:"tokens_per_min"`
	TimeoutsMs    []int    `mapstructure:"timeouts_ms"`
	NavTimeoutMs  int      `mapstructure:"navigation_timeout_ms"`
	RenderDelayMs int      `mapstructure:"render_delay_ms"`
	IDPattern     string   `mapstructure:"external_id_pattern"`
	KeepParams    []string `mapstructure:"keep_query_params"`

	Selectors struct {
		Container []string `mapstructure:"container"`
		Title     []string `mapstructure:"title"`
		Price     []string `mapstructure:"price"`
		Link      []string `mapstructure:"link"`
		Location  []string `mapstructure:"location"`
		Image     []string `mapstructure:"image"`
	} `mapstructure:"selectors"`

	Scroll struct {
		Strategy string `mapstructure:"strategy"`
		Steps    int    `mapstructure:"steps"`
		DelayMs  int    `mapstructure:"delay_ms"`
	} `mapstructure:"scroll"`

	AntiDetection struct {
		StealthLevel     string `mapstructure:"stealth_level"`
		BlockImages      bool   `mapstructure:"block_images"`
		BlockMedia       bool   `mapstructure:"block_media"`
		BlockFonts       bool   `mapstructure:"block_fonts"`
		BlockStylesheets bool   `mapstructure:"block_stylesheets"`
	} `mapstructure:"anti_detection"`

	NoResultsPatterns  []string `mapstructure:"no_results_patterns"`
	LoginPatterns      []string `mapstructure:"login_patterns"`
	CheckpointPatterns []string `mapstructure:"checkpoint_patterns"`
}

// Registry maps site ids to validated SiteConfig values. Reload swaps the
// whole map atomically so concurrent runs keep the config they started with.
type Registry struct {
	mu    sync.RWMutex
	path  string
	sites map[string]*SiteConfig
}

// MustLoadRegistry loads and validates the sites file. Validation errors
// are programming/config errors and fatal before any run starts.
func MustLoadRegistry(path string) *Registry {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		slog.Error("can't load site registry.", slog.String("path", path), slog.String("err", err.Error()))
		os.Exit(1)
	}
	return r
}

func (r *Registry) Reload() error {
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	var specs map[string]*siteSpec
	if err := v.UnmarshalKey("sites", &specs); err != nil {
		return err
	}
	if len(specs) == 0 {
		return errors.New("no sites configured")
	}

	sites := make(map[string]*SiteConfig, len(specs))
	for id, spec := range specs {
		cfg, err := buildSite(id, spec)
		if err != nil {
			return fmt.Errorf("site %q: %w", id, err)
		}
		sites[id] = cfg
	}

	r.mu.Lock()
	r.sites = sites
	r.mu.Unlock()
	slog.Info("site registry loaded.", slog.Int("sites", len(sites)))

	return nil
}

func (r *Registry) Get(site string) (*SiteConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.sites[site]
	return cfg, ok
}

func (r *Registry) Sites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sites))
	for id := range r.sites {
		ids = append(ids, id)
	}
	return ids
}

func buildSite(id string, spec *siteSpec) (*SiteConfig, error) {
	if spec.Domain == "" {
		return nil, errors.New("domain is required")
	}
	if len(spec.Selectors.Container) == 0 {
		return nil, errors.New("container selector chain is empty")
	}
	if len(spec.Selectors.Title) == 0 || len(spec.Selectors.Price) == 0 || len(spec.Selectors.Link) == 0 {
		return nil, errors.New("title/price/link selector chains must be non-empty")
	}
	if spec.TokensPerMin <= 0 {
		return nil, errors.New("tokens_per_min must be positive")
	}
	if len(spec.TimeoutsMs) == 0 {
		return nil, errors.New("timeouts_ms must list at least one wait budget")
	}
	if spec.IDPattern == "" {
		return nil, errors.New("external_id_pattern is required")
	}

	adapter, err := NewRegexAdapter(spec.Domain, spec.IDPattern, spec.KeepParams)
	if err != nil {
		return nil, fmt.Errorf("bad external_id_pattern: %w", err)
	}

	authMode := Anonymous
	if strings.EqualFold(spec.AuthMode, "cookies") {
		authMode = CookiesRequired
	}
	scrollStrategy := ScrollFixed
	if strings.EqualFold(spec.Scroll.Strategy, "adaptive") {
		scrollStrategy = ScrollAdaptive
	}
	stealth := StealthLow
	switch strings.ToLower(spec.AntiDetection.StealthLevel) {
	case "medium":
		stealth = StealthMedium
	case "high":
		stealth = StealthHigh
	}

	timeouts := make([]time.Duration, len(spec.TimeoutsMs))
	for i, ms := range spec.TimeoutsMs {
		if ms <= 0 {
			return nil, errors.New("timeouts_ms values must be positive")
		}
		timeouts[i] = time.Duration(ms) * time.Millisecond
	}

	cfg := &SiteConfig{
		Site:              id,
		Domain:            spec.Domain,
		AuthMode:          authMode,
		RateLimit:         RateLimitConfig{TokensPerMin: spec.TokensPerMin},
		Timeouts:          timeouts,
		NavigationTimeout: time.Duration(spec.NavTimeoutMs) * time.Millisecond,
		RenderDelay:       time.Duration(spec.RenderDelayMs) * time.Millisecond,
		Scroll: ScrollConfig{
			Strategy: scrollStrategy,
			Steps:    spec.Scroll.Steps,
			Delay:    time.Duration(spec.Scroll.DelayMs) * time.Millisecond,
		},
		AntiDetection: AntiDetectionConfig{
			StealthLevel:     stealth,
			BlockImages:      spec.AntiDetection.BlockImages,
			BlockMedia:       spec.AntiDetection.BlockMedia,
			BlockFonts:       spec.AntiDetection.BlockFonts,
			BlockStylesheets: spec.AntiDetection.BlockStylesheets,
		},
		NoResultsPatterns:  spec.NoResultsPatterns,
		LoginPatterns:      spec.LoginPatterns,
		CheckpointPatterns: spec.CheckpointPatterns,
		Adapter:            adapter,
	}
	cfg.Selectors = SelectorConfig{
		Container: spec.Selectors.Container,
		Title:     spec.Selectors.Title,
		Price:     spec.Selectors.Price,
		Link:      spec.Selectors.Link,
		Location:  spec.Selectors.Location,
		Image:     spec.Selectors.Image,
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}

	return cfg, nil
}
