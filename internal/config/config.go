// Package config loads and validates the service configuration from YAML.
// Load applies defaults first, then the file, then environment overrides, so
// a minimal file (or none at all) still yields a runnable configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"moyuren/internal/errcode"
	"moyuren/internal/scheduler"
)

// templateNameRe constrains template names to what the artifact filename
// grammar and the cache cleaner can round-trip.
var templateNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Config struct {
	Server    Server           `yaml:"server"`
	Logging   Logging          `yaml:"logging"`
	Timezone  Timezone         `yaml:"timezone"`
	Paths     Paths            `yaml:"paths"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Cache     Cache            `yaml:"cache"`
	Ops       Ops              `yaml:"ops"`
	Sources   Sources          `yaml:"sources"`
	Templates TemplatesSection `yaml:"templates"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`  // trace..panic, zerolog names
	Format string `yaml:"format"` // console | json
}

type Timezone struct {
	Business string `yaml:"business"`
	Display  string `yaml:"display"`
}

type Paths struct {
	DataDir   string `yaml:"data_dir"`
	StaticDir string `yaml:"static_dir"`
	StateFile string `yaml:"state_file"`
}

type Cache struct {
	RetainDays int `yaml:"retain_days"`
}

type Ops struct {
	// APIKey guards POST /api/generate; empty disables auth.
	APIKey string `yaml:"api_key"`
}

type Sources struct {
	// DefaultTimeoutSec applies to sources that leave timeout_sec unset.
	DefaultTimeoutSec int `yaml:"default_timeout_sec"`

	News       NewsSource    `yaml:"news"`
	FunContent FunSource     `yaml:"fun_content"`
	KFC        KFCSource     `yaml:"kfc"`
	Stock      StockSource   `yaml:"stock"`
	Holiday    HolidaySource `yaml:"holiday"`
}

type NewsSource struct {
	Enabled    bool              `yaml:"enabled"`
	TimeoutSec int               `yaml:"timeout_sec"` // 0 inherits the default
	URL        string            `yaml:"url"`
	Params     map[string]string `yaml:"params"`
}

type FunSource struct {
	Enabled    bool          `yaml:"enabled"`
	TimeoutSec int           `yaml:"timeout_sec"`
	Endpoints  []FunEndpoint `yaml:"endpoints"`
}

type FunEndpoint struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	DataPath     string `yaml:"data_path"`
	DisplayTitle string `yaml:"display_title"`
}

type KFCSource struct {
	Enabled    bool   `yaml:"enabled"`
	TimeoutSec int    `yaml:"timeout_sec"`
	URL        string `yaml:"url"`
}

type StockSource struct {
	Enabled    bool   `yaml:"enabled"`
	TimeoutSec int    `yaml:"timeout_sec"`
	URL        string `yaml:"url"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

type HolidaySource struct {
	Enabled    bool     `yaml:"enabled"`
	TimeoutSec int      `yaml:"timeout_sec"`
	URLs       []string `yaml:"urls"` // %d expands to the year; tried in order
}

// TemplatesSection groups the process-wide render defaults with the template
// list. Default names the template rendered when a trigger carries no name;
// empty falls back to the first item.
type TemplatesSection struct {
	Default string         `yaml:"default"`
	Config  RenderDefaults `yaml:"config"`
	Items   []Template     `yaml:"items"`
}

// RenderDefaults are inherited by templates that leave scale or quality
// unset.
type RenderDefaults struct {
	DeviceScaleFactor float64 `yaml:"device_scale_factor"`
	JPEGQuality       int     `yaml:"jpeg_quality"`
	UseChinaCDN       bool    `yaml:"use_china_cdn"`
}

type Template struct {
	Name              string  `yaml:"name"`
	Path              string  `yaml:"path"` // HTML template file
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	DeviceScaleFactor float64 `yaml:"device_scale_factor"` // 0 inherits
	JPEGQuality       int     `yaml:"jpeg_quality"`        // 0 inherits
	ShowKFC           bool    `yaml:"show_kfc"`
	ShowStock         bool    `yaml:"show_stock"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:  Server{Host: "0.0.0.0", Port: 8000},
		Logging: Logging{Level: "info", Format: "console"},
		Timezone: Timezone{
			Business: "Asia/Shanghai",
			Display:  "local",
		},
		Paths: Paths{
			DataDir:   "data",
			StaticDir: "static",
			StateFile: "data/state.json",
		},
		Scheduler: scheduler.Config{
			Mode:       scheduler.ModeDaily,
			DailyTimes: []string{"08:00"},
		},
		Cache: Cache{RetainDays: 30},
		Sources: Sources{
			DefaultTimeoutSec: 10,
			News: NewsSource{
				Enabled: true,
				URL:     "https://60s.viki.moe/v2/60s",
			},
			FunContent: FunSource{
				Enabled: true,
				Endpoints: []FunEndpoint{
					{Name: "saying", URL: "https://api.vvhan.com/api/ian/rand?type=json", DataPath: "data.content", DisplayTitle: "💡 今日一言"},
					{Name: "joke", URL: "https://api.vvhan.com/api/text/joke?type=json", DataPath: "data.content", DisplayTitle: "😂 开心一刻"},
				},
			},
			KFC: KFCSource{
				Enabled: true,
				URL:     "https://api.pearktrue.cn/api/kfc",
			},
			Stock: StockSource{
				Enabled:    true,
				URL:        "https://push2.eastmoney.com/api/qt/ulist.np/get",
				TTLMinutes: 10,
			},
			Holiday: HolidaySource{
				Enabled: true,
				URLs: []string{
					"https://cdn.jsdelivr.net/gh/NateScarlet/holiday-cn@master/%d.json",
					"https://raw.githubusercontent.com/NateScarlet/holiday-cn/master/%d.json",
				},
			},
		},
		Templates: TemplatesSection{
			Default: "moyuren",
			Config: RenderDefaults{
				DeviceScaleFactor: 2.0,
				JPEGQuality:       90,
			},
			Items: []Template{{
				Name:    "moyuren",
				Path:    "templates/moyuren.html",
				Width:   450,
				Height:  800,
				ShowKFC: true,
			}},
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, errcode.Wrap(errcode.ConfigInvalid, path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, errcode.Wrap(errcode.ConfigInvalid, "parse "+path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if key := os.Getenv("MOYUREN_API_KEY"); key != "" {
		cfg.Ops.APIKey = key
	}
	if port := os.Getenv("MOYUREN_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
}

// Validate checks field ranges and cross-references.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errcode.New(errcode.ConfigInvalid,
			fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Cache.RetainDays < 1 {
		return errcode.New(errcode.ConfigInvalid,
			fmt.Sprintf("cache.retain_days %d must be at least 1", c.Cache.RetainDays))
	}
	if c.Timezone.Business == "local" {
		// The business calendar must not depend on where the host happens to
		// run; only the display timestamp may.
		return errcode.New(errcode.ConfigBadTimezone, `timezone.business must not be "local"`)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return errcode.Wrap(errcode.ConfigInvalid, "scheduler", err)
	}

	if len(c.Templates.Items) == 0 {
		return errcode.New(errcode.ConfigMissingField, "templates.items")
	}
	if c.Templates.Config.JPEGQuality < 1 || c.Templates.Config.JPEGQuality > 100 {
		return errcode.New(errcode.ConfigInvalid,
			fmt.Sprintf("templates.config.jpeg_quality %d out of range", c.Templates.Config.JPEGQuality))
	}
	if c.Templates.Config.DeviceScaleFactor <= 0 {
		return errcode.New(errcode.ConfigInvalid, "templates.config.device_scale_factor must be positive")
	}
	seen := map[string]bool{}
	for _, tpl := range c.Templates.Items {
		if !templateNameRe.MatchString(tpl.Name) {
			return errcode.New(errcode.ConfigInvalid,
				fmt.Sprintf("template name %q invalid", tpl.Name))
		}
		if seen[tpl.Name] {
			return errcode.New(errcode.ConfigInvalid,
				fmt.Sprintf("duplicate template %q", tpl.Name))
		}
		seen[tpl.Name] = true
		if tpl.Path == "" {
			return errcode.New(errcode.ConfigMissingField,
				fmt.Sprintf("templates.items[%s].path", tpl.Name))
		}
		if tpl.Width <= 0 || tpl.Height <= 0 {
			return errcode.New(errcode.ConfigInvalid,
				fmt.Sprintf("template %q viewport %dx%d invalid", tpl.Name, tpl.Width, tpl.Height))
		}
		if tpl.JPEGQuality < 0 || tpl.JPEGQuality > 100 {
			return errcode.New(errcode.ConfigInvalid,
				fmt.Sprintf("template %q jpeg quality %d out of range", tpl.Name, tpl.JPEGQuality))
		}
	}
	if c.Templates.Default != "" && !seen[c.Templates.Default] {
		return errcode.New(errcode.ConfigInvalid,
			fmt.Sprintf("templates.default %q not defined", c.Templates.Default))
	}

	if c.Sources.DefaultTimeoutSec < 1 {
		return errcode.New(errcode.ConfigInvalid, "sources.default_timeout_sec must be at least 1")
	}
	for name, sec := range map[string]int{
		"news":        c.Sources.News.TimeoutSec,
		"fun_content": c.Sources.FunContent.TimeoutSec,
		"kfc":         c.Sources.KFC.TimeoutSec,
		"stock":       c.Sources.Stock.TimeoutSec,
		"holiday":     c.Sources.Holiday.TimeoutSec,
	} {
		if sec < 0 {
			return errcode.New(errcode.ConfigInvalid,
				fmt.Sprintf("sources.%s.timeout_sec must not be negative", name))
		}
	}
	if c.Sources.Stock.Enabled && c.Sources.Stock.TTLMinutes < 1 {
		return errcode.New(errcode.ConfigInvalid, "sources.stock.ttl_minutes must be at least 1")
	}
	return nil
}

// DefaultTemplate resolves the template used when a trigger names none.
func (c Config) DefaultTemplate() string {
	if c.Templates.Default != "" {
		return c.Templates.Default
	}
	return c.Templates.Items[0].Name
}

// SourceTimeout resolves one source's timeout: its own timeout_sec when set,
// otherwise the shared default.
func (c Config) SourceTimeout(overrideSec int) time.Duration {
	if overrideSec <= 0 {
		overrideSec = c.Sources.DefaultTimeoutSec
	}
	return time.Duration(overrideSec) * time.Second
}

// StockTTL is the in-memory quote cache lifetime.
func (c Config) StockTTL() time.Duration {
	return time.Duration(c.Sources.Stock.TTLMinutes) * time.Minute
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
