// Package wikiconf loads the build-time immutable wikitext
// configuration: tag names, protocol list, interwiki map, namespace
// table. The YAML file is read through viper with defaults pre-seeded
// and written back out on first run; once loaded the configuration is
// frozen and shared read-only across every render.
package wikiconf

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mwcore/wikirender/title"
	"github.com/mwcore/wikirender/wikitext"
)

// InterwikiEntry is one row of the interwiki map: a prefix maps to a URL
// template containing a literal "$1" placeholder for the percent-encoded
// partial url.
type InterwikiEntry struct {
	Prefix string `yaml:"prefix"`
	URL    string `yaml:"url"`
	Local  bool   `yaml:"local"`
}

// Config is the frozen, render-wide wikitext configuration: everything
// that is fixed at process boot and shared read-only across every render.
type Config struct {
	// SiteName is the wiki's display name.
	SiteName string `yaml:"site_name"`
	// BaseURI is the scheme+authority+base_path prefix used by URL
	// generation.
	BaseURI string `yaml:"base_uri"`
	// ArticlePath is the path segment preceding a title's partial url,
	// e.g. "/wiki" for "{base}/wiki/{partial_url}".
	ArticlePath string `yaml:"article_path"`
	// Interwiki is the interwiki prefix table.
	Interwiki []InterwikiEntry `yaml:"interwiki"`
	// TackyTemplates names templates whose re-inserted body should be wrapped
	// in WikiRsSourceStart/End strip markers on re-expansion.
	TackyTemplates []string `yaml:"tacky_templates"`
	// MaxTemplateDepth bounds the transclusion stack.
	MaxTemplateDepth int `yaml:"max_template_depth"`
	// ModuleFuelLimit bounds module-host execution steps.
	ModuleFuelLimit int `yaml:"module_fuel_limit"`

	Grammar    *wikitext.Config
	Namespaces *title.NamespaceTable

	interwikiByPrefix map[string]InterwikiEntry
	tackySet          map[string]bool
}

const configFilename = "wikitext.yaml"

// Load reads wikitext.yaml (creating it with defaults if absent) via
// viper and freezes the result into a read-only *Config.
func Load() (*Config, error) {
	viper.SetConfigName("wikitext")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetDefault("base_uri", "https://en.wikipedia.example")
	viper.SetDefault("article_path", "/article")
	viper.SetDefault("max_template_depth", 40)
	viper.SetDefault("module_fuel_limit", 10_000_000)

	err := viper.ReadInConfig()
	createDefault := false
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			createDefault = true
		} else if strings.Contains(err.Error(), "no such file or directory") {
			createDefault = true
		} else {
			return nil, fmt.Errorf("wikiconf: reading %s: %w", configFilename, err)
		}
	}

	cfg := Default()
	if v := viper.GetString("site_name"); v != "" {
		cfg.SiteName = v
	}
	cfg.BaseURI = viper.GetString("base_uri")
	cfg.ArticlePath = viper.GetString("article_path")
	cfg.MaxTemplateDepth = viper.GetInt("max_template_depth")
	cfg.ModuleFuelLimit = viper.GetInt("module_fuel_limit")
	if v := viper.Get("interwiki"); v != nil {
		var entries []InterwikiEntry
		if err := viper.UnmarshalKey("interwiki", &entries); err == nil && len(entries) > 0 {
			cfg.Interwiki = entries
		}
	}
	if v := viper.GetStringSlice("tacky_templates"); len(v) > 0 {
		cfg.TackyTemplates = v
	}
	cfg.build()

	if createDefault {
		if f, ferr := os.Create(configFilename); ferr == nil {
			_ = yaml.NewEncoder(f).Encode(cfg)
			f.Close()
		}
	}

	return cfg, nil
}

// Default returns the built-in wikitext configuration used when no
// wikitext.yaml is present and in every test.
func Default() *Config {
	cfg := &Config{
		SiteName:         "Wikipedia",
		BaseURI:          "https://en.wikipedia.example",
		ArticlePath:      "/article",
		MaxTemplateDepth: 40,
		ModuleFuelLimit:  10_000_000,
		Interwiki: []InterwikiEntry{
			{Prefix: "wikipedia", URL: "https://en.wikipedia.org/wiki/$1"},
			{Prefix: "commons", URL: "https://commons.wikimedia.org/wiki/$1"},
			{Prefix: "meta", URL: "https://meta.wikimedia.org/wiki/$1"},
		},
		TackyTemplates: []string{"Infobox", "Cite web", "Cite journal", "Reflist"},
		Grammar:        wikitext.DefaultConfig(),
		Namespaces:     title.NewNamespaceTable(title.DefaultNamespaces()),
	}
	cfg.build()
	return cfg
}

func (c *Config) build() {
	c.interwikiByPrefix = make(map[string]InterwikiEntry, len(c.Interwiki))
	for _, e := range c.Interwiki {
		c.interwikiByPrefix[strings.ToLower(e.Prefix)] = e
	}
	c.tackySet = make(map[string]bool, len(c.TackyTemplates))
	for _, n := range c.TackyTemplates {
		c.tackySet[n] = true
	}
	if c.Grammar == nil {
		c.Grammar = wikitext.DefaultConfig()
	}
	if c.Namespaces == nil {
		c.Namespaces = title.NewNamespaceTable(title.DefaultNamespaces())
	}
}

// InterwikiURL looks up prefix (case-insensitively), returning ok=false if
// it is not a configured interwiki prefix.
func (c *Config) InterwikiURL(prefix string) (InterwikiEntry, bool) {
	e, ok := c.interwikiByPrefix[strings.ToLower(prefix)]
	return e, ok
}

// IsTacky reports whether name is in the hand-curated tacky-template set.
func (c *Config) IsTacky(name string) bool {
	return c.tackySet[name]
}

// ArticleURL builds the full article URL for a partial
// (percent-encoded) title key.
func (c *Config) ArticleURL(partialURL string) string {
	return c.BaseURI + c.ArticlePath + "/" + partialURL
}
