package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
)

// Config holds the settings shared by every dyst command.
type Config struct {
	// PackageStore is the directory holding one author/name directory per package.
	PackageStore string `yaml:"package_store"`
	// BinariesPath is the directory on PATH that receives executable symlinks.
	BinariesPath string `yaml:"binaries_path"`
	// IndexPath is the SQLite package index, <package store>/index.db by default.
	IndexPath string `yaml:"index_path"`
	// ScratchDir buffers downloaded archives, the system temp dir when empty.
	ScratchDir string `yaml:"scratch_dir,omitempty"`
	// GitHubToken authenticates API calls when set.
	GitHubToken string `yaml:"github_token,omitempty"`
	// GitHubAPIURL overrides the GitHub API endpoint, for example for GitHub Enterprise.
	GitHubAPIURL string `yaml:"github_api_url,omitempty"`
	// Timeout bounds API calls and the wait for download response headers.
	Timeout time.Duration `yaml:"timeout"`
	// Retries is the number of attempts for a failing download.
	Retries uint `yaml:"retries"`
	// LogLevel is the minimum level of diagnostic messages.
	LogLevel string `yaml:"log_level"`
	// SelfRepository is where dyst itself is released.
	SelfRepository string `yaml:"self_repository"`
}

const (
	// AppName names the XDG sub-directories used by dyst.
	AppName = "dyst"

	// DefaultConfigFilename is the configuration file name inside the XDG config directory.
	DefaultConfigFilename = "config.yaml"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 30 * time.Second

	// DefaultRetries is the default number of download attempts.
	DefaultRetries uint = 3

	// DefaultLogLevel keeps routine progress visible.
	DefaultLogLevel = "info"

	// DefaultSelfRepository is where dyst releases are published.
	DefaultSelfRepository = "oshokin/dyst"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// DefaultDirPermissions is used when creating the configuration directory.
	DefaultDirPermissions = 0o755

	// EnvPackageStore overrides PackageStore.
	EnvPackageStore = "DYST_PACKAGE_STORE"

	// EnvBinariesPath overrides BinariesPath.
	EnvBinariesPath = "DYST_BINARIES_PATH"

	// EnvGitHubToken overrides GitHubToken.
	EnvGitHubToken = "GITHUB_TOKEN"

	// indexFilename is the default index file name inside the package store.
	indexFilename = "index.db"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownLogLevel is returned for log levels zap does not know.
	errUnknownLogLevel = errors.New("unknown log level")
	// errRetriesRequired is returned when downloads would never be attempted.
	errRetriesRequired = errors.New("retries must be at least 1")
)

// DefaultPath returns $XDG_CONFIG_HOME/dyst/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, DefaultConfigFilename)
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		PackageStore:   filepath.Join(xdg.DataHome, AppName),
		BinariesPath:   xdg.BinHome,
		Timeout:        DefaultTimeout,
		Retries:        DefaultRetries,
		LogLevel:       DefaultLogLevel,
		SelfRepository: DefaultSelfRepository,
	}
}

// Load reads configuration from path, applies environment overrides and validates it.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

// load reads the file at path and resolves overrides through lookup.
func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	applyEnvironment(cfg, lookup)

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path, creating its directory.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultPath()
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	// Restrict permissions, the file may hold a token.
	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills derived defaults and checks the settings for consistency.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	defaults := Default()

	if settings.PackageStore == "" {
		settings.PackageStore = defaults.PackageStore
	}

	if settings.BinariesPath == "" {
		settings.BinariesPath = defaults.BinariesPath
	}

	if settings.IndexPath == "" {
		settings.IndexPath = filepath.Join(settings.PackageStore, indexFilename)
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}

	if settings.SelfRepository == "" {
		settings.SelfRepository = DefaultSelfRepository
	}

	if settings.Retries == 0 {
		return errRetriesRequired
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("%w: %s", errUnknownLogLevel, settings.LogLevel)
	}

	if _, err := packages.ParseRepository(settings.SelfRepository); err != nil {
		return fmt.Errorf("invalid self repository: %w", err)
	}

	if settings.GitHubAPIURL == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(settings.GitHubAPIURL); err != nil {
		return fmt.Errorf("invalid GitHub API URL: %w", err)
	}

	return nil
}

// Layout returns the package store and binaries directory.
func (c *Config) Layout() packages.Layout {
	return packages.Layout{
		PackageStore: c.PackageStore,
		BinDir:       c.BinariesPath,
	}
}

// applyEnvironment lets environment variables override file settings.
func applyEnvironment(cfg *Config, lookup func(string) (string, bool)) {
	if value, ok := lookup(EnvPackageStore); ok && value != "" {
		cfg.PackageStore = value
	}

	if value, ok := lookup(EnvBinariesPath); ok && value != "" {
		cfg.BinariesPath = value
	}

	if value, ok := lookup(EnvGitHubToken); ok && value != "" {
		cfg.GitHubToken = value
	}
}
