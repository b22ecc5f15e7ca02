// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Logging LoggingConfig  `mapstructure:"logging"`
	Scraper ScraperConfig  `mapstructure:"scraper"`
	Fetch   FetchConfig    `mapstructure:"fetch"`
	DB      DBConfig       `mapstructure:"db"`
	Cache   CacheConfig    `mapstructure:"cache"`
	Events  EventsConfig   `mapstructure:"events"`
	Targets []TargetConfig `mapstructure:"targets"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ScraperConfig governs scheduler and worker pool behavior.
type ScraperConfig struct {
	Concurrency           int `mapstructure:"concurrency"`
	QueueDepth            int `mapstructure:"queue_depth"`
	MenuIntervalHours     int `mapstructure:"menu_interval_hours"`
	ReviewIntervalSeconds int `mapstructure:"review_interval_seconds"`
	CyclePauseSeconds     int `mapstructure:"cycle_pause_seconds"`
	ErrorPauseSeconds     int `mapstructure:"error_pause_seconds"`
	BackoffCap            int `mapstructure:"backoff_cap"`
	CooldownMinSeconds    int `mapstructure:"cooldown_min_seconds"`
	CooldownMaxSeconds    int `mapstructure:"cooldown_max_seconds"`
}

// FetchConfig configures outbound HTTP behavior.
type FetchConfig struct {
	TimeoutSeconds      int      `mapstructure:"timeout_seconds"`
	HostIntervalSeconds int      `mapstructure:"host_interval_seconds"`
	PreDelayMinSeconds  float64  `mapstructure:"pre_delay_min_seconds"`
	PreDelayMaxSeconds  float64  `mapstructure:"pre_delay_max_seconds"`
	UserAgents          []string `mapstructure:"user_agents"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// CacheConfig sets the derived-result cache sizing and TTLs.
type CacheConfig struct {
	Size             int `mapstructure:"size"`
	ListTTLSeconds   int `mapstructure:"list_ttl_seconds"`
	DetailTTLSeconds int `mapstructure:"detail_ttl_seconds"`
}

// EventsConfig tunes the live event broadcaster.
type EventsConfig struct {
	HistorySize      int `mapstructure:"history_size"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
	PingSeconds      int `mapstructure:"ping_seconds"`
	SendTimeoutMs    int `mapstructure:"send_timeout_ms"`
}

// TargetConfig is one restaurant entry from the config file.
type TargetConfig struct {
	Name           string   `mapstructure:"name"`
	URL            string   `mapstructure:"url"`
	ReviewSources  []string `mapstructure:"review_sources"`
	MenuEnabled    *bool    `mapstructure:"menu_enabled"`
	ReviewsEnabled *bool    `mapstructure:"reviews_enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RESTINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("scraper.concurrency", 4)
	v.SetDefault("scraper.queue_depth", 64)
	v.SetDefault("scraper.menu_interval_hours", 24)
	v.SetDefault("scraper.review_interval_seconds", 300)
	v.SetDefault("scraper.cycle_pause_seconds", 2700)
	v.SetDefault("scraper.error_pause_seconds", 300)
	v.SetDefault("scraper.backoff_cap", 16)
	v.SetDefault("scraper.cooldown_min_seconds", 15)
	v.SetDefault("scraper.cooldown_max_seconds", 25)
	v.SetDefault("fetch.timeout_seconds", 20)
	v.SetDefault("fetch.host_interval_seconds", 5)
	v.SetDefault("fetch.pre_delay_min_seconds", 3)
	v.SetDefault("fetch.pre_delay_max_seconds", 6)
	v.SetDefault("fetch.user_agents", defaultUserAgents)
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.list_ttl_seconds", 180)
	v.SetDefault("cache.detail_ttl_seconds", 600)
	v.SetDefault("events.history_size", 50)
	v.SetDefault("events.subscriber_buffer", 32)
	v.SetDefault("events.ping_seconds", 30)
	v.SetDefault("events.send_timeout_ms", 250)
}

// minReviewInterval guards against a scheduler loop hammering review sources.
const minReviewInterval = 60 * time.Second

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.Concurrency <= 0 {
		return fmt.Errorf("scraper.concurrency must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Scraper.ReviewInterval() < minReviewInterval {
		return fmt.Errorf("scraper.review_interval_seconds must be >= %d", int(minReviewInterval.Seconds()))
	}
	if c.Scraper.CooldownMinSeconds > c.Scraper.CooldownMaxSeconds {
		return fmt.Errorf("scraper.cooldown_min_seconds must be <= cooldown_max_seconds")
	}
	if c.Fetch.PreDelayMinSeconds > c.Fetch.PreDelayMaxSeconds {
		return fmt.Errorf("fetch.pre_delay_min_seconds must be <= pre_delay_max_seconds")
	}
	seen := make(map[string]struct{}, len(c.Targets))
	for _, t := range c.Targets {
		if t.Name == "" || t.URL == "" {
			return fmt.Errorf("targets entries require name and url")
		}
		key := strings.ToLower(t.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate target %q", t.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// MenuInterval returns the configured menu staleness interval.
func (c ScraperConfig) MenuInterval() time.Duration {
	return time.Duration(c.MenuIntervalHours) * time.Hour
}

// ReviewInterval returns the configured review staleness interval.
func (c ScraperConfig) ReviewInterval() time.Duration {
	return time.Duration(c.ReviewIntervalSeconds) * time.Second
}

// CyclePause is the sleep between successful scrape cycles.
func (c ScraperConfig) CyclePause() time.Duration {
	return time.Duration(c.CyclePauseSeconds) * time.Second
}

// ErrorPause is the shorter sleep after a failed cycle.
func (c ScraperConfig) ErrorPause() time.Duration {
	return time.Duration(c.ErrorPauseSeconds) * time.Second
}

// CooldownMin bounds the pause between per-restaurant batches from below.
func (c ScraperConfig) CooldownMin() time.Duration {
	return time.Duration(c.CooldownMinSeconds) * time.Second
}

// CooldownMax bounds the pause between per-restaurant batches from above.
func (c ScraperConfig) CooldownMax() time.Duration {
	return time.Duration(c.CooldownMaxSeconds) * time.Second
}

// Timeout returns the hard cap on a single outbound request.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HostInterval is the per-host minimum spacing between requests.
func (c FetchConfig) HostInterval() time.Duration {
	return time.Duration(c.HostIntervalSeconds) * time.Second
}

// PreDelayMin bounds the randomized pre-request delay from below.
func (c FetchConfig) PreDelayMin() time.Duration {
	return time.Duration(c.PreDelayMinSeconds * float64(time.Second))
}

// PreDelayMax bounds the randomized pre-request delay from above.
func (c FetchConfig) PreDelayMax() time.Duration {
	return time.Duration(c.PreDelayMaxSeconds * float64(time.Second))
}

// ListTTL is the cache lifetime for list and analytics responses.
func (c CacheConfig) ListTTL() time.Duration {
	return time.Duration(c.ListTTLSeconds) * time.Second
}

// DetailTTL is the cache lifetime for per-restaurant detail responses.
func (c CacheConfig) DetailTTL() time.Duration {
	return time.Duration(c.DetailTTLSeconds) * time.Second
}

// PingInterval is the cadence of WebSocket liveness pings.
func (c EventsConfig) PingInterval() time.Duration {
	return time.Duration(c.PingSeconds) * time.Second
}

// ScrapeTargets converts configured entries into immutable scrape targets,
// falling back to the built-in roster when none are configured.
func (c Config) ScrapeTargets() []scrape.Target {
	entries := c.Targets
	if len(entries) == 0 {
		entries = defaultTargets
	}
	targets := make([]scrape.Target, 0, len(entries))
	for _, e := range entries {
		sources := e.ReviewSources
		if len(sources) == 0 {
			sources = []string{"google", "yelp"}
		}
		targets = append(targets, scrape.Target{
			Name:           e.Name,
			URL:            e.URL,
			ReviewSources:  append([]string(nil), sources...),
			MenuEnabled:    boolOrDefault(e.MenuEnabled, true),
			ReviewsEnabled: boolOrDefault(e.ReviewsEnabled, true),
		})
	}
	return targets
}

func boolOrDefault(ptr *bool, def bool) bool {
	if ptr == nil {
		return def
	}
	return *ptr
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// defaultTargets is the Boston roster monitored out of the box.
var defaultTargets = []TargetConfig{
	{Name: "India Quality", URL: "https://indiaquality.com/food-menu"},
	{Name: "Mela Modern Indian", URL: "https://melainboston.com/food-menu"},
	{Name: "Halal Indian Cuisine", URL: "https://www.halalindiancuisineboston.com/pypczrdx/restaurant/menu?menu=All+Day+Menu"},
	{Name: "Ssaanjh Modern Indian", URL: "https://www.ssaanjh.com/ssaanjh-modern-indian-cuisine-menu/"},
	{Name: "Wow Tikka", URL: "https://www.wowtikka.com/menu/"},
	{Name: "Nachlo Cuisine", URL: "https://www.nachlocuisineroxbury.com/"},
	{Name: "Mumbai Spice", URL: "https://www.mumbaispicebostonma.com/#menu"},
	{Name: "Sarva Indian Cuisine", URL: "https://sarvacuisine.com/catering-menu"},
	{Name: "Dont Tell Aunty", URL: "https://donttellaunty.com/menu"},
	{Name: "Namastay Boston", URL: "https://namastayboston.com/menus/"},
	{Name: "Mirchi Nation", URL: "https://www.mirchination.com/brookline/menu.html"},
	{Name: "Vaishakhi Boston", URL: "https://www.clover.com/online-ordering/vaisakhiboston"},
	{Name: "Madras Dosa", URL: "https://www.madrasdosaco.com/menu"},
	{Name: "Singhs Dhaba", URL: "https://singhsdhaba.com/categories/"},
	{Name: "Momo Masala", URL: "https://www.momomasalausa.com/"},
	{Name: "Shan A Punjab", URL: "https://shanapunjab.com/menu"},
	{Name: "Desi Dhaba", URL: "https://www.grabull.com/restaurant/desi-dhaba-cambridge-401-massachusetts-ave-cambridge-massachusetts"},
	{Name: "Depth N Green", URL: "https://order.toasttab.com/online/depth-n-green-7-broad-canal-way/"},
}
