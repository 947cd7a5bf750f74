package render

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration. Placement configs are not part
// of it: they live in the configstore and change at runtime.
type Config struct {
	DBPath          string `yaml:"db_path"`
	Listen          string `yaml:"listen"`
	SiteDomain      string `yaml:"site_domain"`
	AffiliateDomain string `yaml:"affiliate_domain"`
	// PrebidFallbackURL is served as the prebid build when the ads config
	// selects none.
	PrebidFallbackURL string           `yaml:"prebid_fallback_url"`
	MaxBodyBytes      int64            `yaml:"max_body_bytes"`
	RefreshInterval   time.Duration    `yaml:"refresh_interval"`
	AuditRetention    time.Duration    `yaml:"audit_retention"`
	Prefill           PrefillOptions   `yaml:"prefill"`
	AMP               AMPOptions       `yaml:"amp"`
	Outstream         OutstreamOptions `yaml:"outstream"`
	HTTP              HTTPOptions      `yaml:"http"`
}

// PrefillOptions controls the prefill pass.
type PrefillOptions struct {
	StyleID string `yaml:"style_id"`
}

// AMPOptions controls the AMP pass.
type AMPOptions struct {
	// DisableDefaultPlayer turns off the two-breakpoint video player added
	// when no outstream placement landed.
	DisableDefaultPlayer bool `yaml:"disable_default_player"`
}

// OutstreamOptions controls the in-content video player.
type OutstreamOptions struct {
	// SkipMarker is a substring whose presence in the content means a
	// player is already embedded.
	SkipMarker string `yaml:"skip_marker"`
}

// HTTPOptions configures the API server.
type HTTPOptions struct {
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "adinject.db"
	}
	if c.Listen == "" {
		c.Listen = ":8090"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 4 << 20
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = time.Minute
	}
	if c.AuditRetention <= 0 {
		c.AuditRetention = 30 * 24 * time.Hour
	}
	if c.Prefill.StyleID == "" {
		c.Prefill.StyleID = "adinject-prefill-css"
	}
	if c.Outstream.SkipMarker == "" {
		c.Outstream.SkipMarker = "connatix-elements"
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.HTTP.IdleTimeout <= 0 {
		c.HTTP.IdleTimeout = 120 * time.Second
	}
}

// Defaults returns a copy of c with zero values filled in.
func (c Config) Defaults() Config {
	c.defaults()
	return c
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}
