package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"linkdrop/internal/scraper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	HTTPAddress      string `mapstructure:"HTTP_ADDRESS"`
	BadgerDBPath     string `mapstructure:"BADGERDB_PATH"`
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`

	// Timezone names the zone whose calendar days the daily limit counts.
	// Empty means the process local zone.
	Timezone string `mapstructure:"TIMEZONE"`

	MetadataTimeout        time.Duration `mapstructure:"METADATA_TIMEOUT"`
	MetadataRPS            float64       `mapstructure:"METADATA_RPS"`
	YouTubeOEmbedURL       string        `mapstructure:"YOUTUBE_OEMBED_URL"`
	JSONLinkURL            string        `mapstructure:"JSONLINK_URL"`
	MicrolinkURL           string        `mapstructure:"MICROLINK_URL"`
	ScraperBrowserFallback bool          `mapstructure:"SCRAPER_BROWSER_FALLBACK"`

	GCInterval time.Duration `mapstructure:"GC_INTERVAL"`

	// Users seeds the user table, as "slug:Display Name" pairs separated by commas.
	Users string `mapstructure:"USERS"`
}

// SeedUser is one entry of the Users setting.
type SeedUser struct {
	Slug string
	Name string
}

var keys = []string{
	"HTTP_ADDRESS", "BADGERDB_PATH", "TELEGRAM_BOT_TOKEN", "LOG_LEVEL", "TIMEZONE",
	"METADATA_TIMEOUT", "METADATA_RPS", "YOUTUBE_OEMBED_URL", "JSONLINK_URL",
	"MICROLINK_URL", "SCRAPER_BROWSER_FALLBACK", "GC_INTERVAL", "USERS",
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; environment variables override the file.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("HTTP_ADDRESS", ":8080")
	v.SetDefault("BADGERDB_PATH", "./badger_data")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("METADATA_TIMEOUT", 5*time.Second)
	v.SetDefault("METADATA_RPS", 2.0)
	v.SetDefault("YOUTUBE_OEMBED_URL", scraper.DefaultYouTubeOEmbedURL)
	v.SetDefault("JSONLINK_URL", scraper.DefaultJSONLinkURL)
	v.SetDefault("MICROLINK_URL", scraper.DefaultMicrolinkURL)
	v.SetDefault("SCRAPER_BROWSER_FALLBACK", false)
	v.SetDefault("GC_INTERVAL", 10*time.Minute)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Unmarshal only sees env values for keys viper already knows about.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if c.BadgerDBPath == "" {
		return errors.New("BADGERDB_PATH must not be empty")
	}
	if c.MetadataTimeout <= 0 {
		return errors.New("METADATA_TIMEOUT must be positive")
	}
	if c.GCInterval <= 0 {
		return errors.New("GC_INTERVAL must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.SeedUsers(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Level returns the parsed log level, falling back to info.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// SeedUsers parses the Users setting. A name may be omitted, in which case the slug is used.
func (c Config) SeedUsers() ([]SeedUser, error) {
	var seeds []SeedUser
	seen := map[string]bool{}
	for _, entry := range strings.Split(c.Users, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		slug, name, _ := strings.Cut(entry, ":")
		slug, name = strings.TrimSpace(slug), strings.TrimSpace(name)
		if slug == "" {
			return nil, fmt.Errorf("invalid USERS entry %q: empty slug", entry)
		}
		if seen[slug] {
			return nil, fmt.Errorf("invalid USERS entry %q: duplicate slug", entry)
		}
		seen[slug] = true
		if name == "" {
			name = slug
		}
		seeds = append(seeds, SeedUser{Slug: slug, Name: name})
	}
	return seeds, nil
}

// ScraperOptions maps the metadata settings onto the resolver options.
func (c Config) ScraperOptions() scraper.Options {
	return scraper.Options{
		Timeout:         c.MetadataTimeout,
		RequestsPerSec:  c.MetadataRPS,
		YouTubeOEmbed:   c.YouTubeOEmbedURL,
		JSONLinkURL:     c.JSONLinkURL,
		MicrolinkURL:    c.MicrolinkURL,
		BrowserFallback: c.ScraperBrowserFallback,
	}
}
