// Package config loads the yaml configuration file and resolves upstream
// credentials from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile = "config.yaml"
	DefaultEnvFile    = ".env"

	DefaultStoragePath   = ".feedfusion/feedfusion.db"
	DefaultTokenURL      = "https://www.reddit.com/api/v1/access_token"
	DefaultRedditBaseURL = "https://oauth.reddit.com"
	DefaultYouTubeBase   = "https://www.googleapis.com/youtube/v3"
	DefaultUserAgent     = "feedfusion/1.0"
	DefaultFetchTimeout  = 60 * time.Second

	DefaultRedditClientIDEnv     = "REDDIT_CLIENT_ID"
	DefaultRedditClientSecretEnv = "REDDIT_CLIENT_SECRET"
	DefaultRedditUsernameEnv     = "REDDIT_USERNAME"
	DefaultRedditPasswordEnv     = "REDDIT_PASSWORD"
	DefaultYouTubeAPIKeyEnv      = "YOUTUBE_API_KEY"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "60s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Reddit  RedditConfig  `yaml:"reddit"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Storage StorageConfig `yaml:"storage"`
	Feed    FeedConfig    `yaml:"feed"`
}

type RedditConfig struct {
	TokenURL  string `yaml:"token_url"`
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`

	ClientIDEnv     string `yaml:"client_id_env"`
	ClientSecretEnv string `yaml:"client_secret_env"`
	UsernameEnv     string `yaml:"username_env"`
	PasswordEnv     string `yaml:"password_env"`

	// Resolved from env vars at load time.
	ClientID     string `yaml:"-"`
	ClientSecret string `yaml:"-"`
	Username     string `yaml:"-"`
	Password     string `yaml:"-"`
}

type YouTubeConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`

	// Resolved from env var at load time.
	APIKey string `yaml:"-"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type FeedConfig struct {
	Interests    []string `yaml:"interests"`
	FetchTimeout Duration `yaml:"fetch_timeout"`
}

// Load reads config.yaml from dir, loads an optional .env file next to it,
// applies defaults, resolves credentials from the environment, and
// validates. Missing credentials are not an error here: the affected
// adapter degrades to empty results at fetch time.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	// A missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load(filepath.Join(dir, DefaultEnvFile))

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Reddit.TokenURL == "" {
		cfg.Reddit.TokenURL = DefaultTokenURL
	}
	if cfg.Reddit.BaseURL == "" {
		cfg.Reddit.BaseURL = DefaultRedditBaseURL
	}
	if cfg.Reddit.UserAgent == "" {
		cfg.Reddit.UserAgent = DefaultUserAgent
	}
	if cfg.Reddit.ClientIDEnv == "" {
		cfg.Reddit.ClientIDEnv = DefaultRedditClientIDEnv
	}
	if cfg.Reddit.ClientSecretEnv == "" {
		cfg.Reddit.ClientSecretEnv = DefaultRedditClientSecretEnv
	}
	if cfg.Reddit.UsernameEnv == "" {
		cfg.Reddit.UsernameEnv = DefaultRedditUsernameEnv
	}
	if cfg.Reddit.PasswordEnv == "" {
		cfg.Reddit.PasswordEnv = DefaultRedditPasswordEnv
	}
	if cfg.YouTube.BaseURL == "" {
		cfg.YouTube.BaseURL = DefaultYouTubeBase
	}
	if cfg.YouTube.APIKeyEnv == "" {
		cfg.YouTube.APIKeyEnv = DefaultYouTubeAPIKeyEnv
	}
	if cfg.Feed.FetchTimeout.Duration == 0 {
		cfg.Feed.FetchTimeout.Duration = DefaultFetchTimeout
	}
}

func resolveEnv(cfg *Config) {
	cfg.Reddit.ClientID = os.Getenv(cfg.Reddit.ClientIDEnv)
	cfg.Reddit.ClientSecret = os.Getenv(cfg.Reddit.ClientSecretEnv)
	cfg.Reddit.Username = os.Getenv(cfg.Reddit.UsernameEnv)
	cfg.Reddit.Password = os.Getenv(cfg.Reddit.PasswordEnv)
	cfg.YouTube.APIKey = os.Getenv(cfg.YouTube.APIKeyEnv)
}

func validate(cfg *Config) error {
	if cfg.Feed.FetchTimeout.Duration < 0 {
		return errors.New("feed.fetch_timeout: must not be negative")
	}
	for _, interest := range cfg.Feed.Interests {
		if strings.TrimSpace(interest) == "" {
			return errors.New("feed.interests: empty interest")
		}
	}
	return nil
}
