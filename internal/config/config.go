package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config contains the program configuration
type Config struct {
	Inputs              []string `yaml:"inputs" toml:"inputs"`
	Verbose             bool     `yaml:"verbose" toml:"verbose"`
	OutputDir           string   `yaml:"output_dir" toml:"output_dir"`
	OutputTemplate      string   `yaml:"output_template" toml:"output_template"`
	AudioFormat         string   `yaml:"audio_format" toml:"audio_format"`
	Bitrate             string   `yaml:"bitrate" toml:"bitrate"`
	CacheFile           string   `yaml:"cache_file" toml:"cache_file"`
	Lyrics              bool     `yaml:"lyrics" toml:"lyrics"`
	Report              bool     `yaml:"report" toml:"report"`
	SearchFormat        string   `yaml:"search_format" toml:"search_format"`
	ExtraSearch         string   `yaml:"extra_search" toml:"extra_search"`
	ExclusionFilters    []string `yaml:"exclusion_filters" toml:"exclusion_filters"`
	MaxSongDuration     int      `yaml:"max_song_duration" toml:"max_song_duration"`
	SponsorCategories   []string `yaml:"sponsor_categories" toml:"sponsor_categories"`
	RetryWaitSeconds    int      `yaml:"retry_wait_seconds" toml:"retry_wait_seconds"`
	TranscodeTimeout    int      `yaml:"transcode_timeout" toml:"transcode_timeout"`
	SpotifyClientID     string   `yaml:"spotify_client_id" toml:"spotify_client_id"`
	SpotifyClientSecret string   `yaml:"spotify_client_secret" toml:"spotify_client_secret"`
	Login               bool     `yaml:"login" toml:"login"`
	Username            string   `yaml:"username" toml:"username"`
	Password            string   `yaml:"password" toml:"password"`
	CallbackPort        int      `yaml:"callback_port" toml:"callback_port"`
	TokenFile           string   `yaml:"token_file" toml:"token_file"`
	LogDir              string   `yaml:"log_dir" toml:"log_dir"`
	ListenAddr          string   `yaml:"listen_addr" toml:"listen_addr"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		OutputDir:        filepath.Join(homeDir(), "Music"),
		OutputTemplate:   "{artistName}/{albumName}/{itemName}",
		AudioFormat:      "mp3",
		Bitrate:          "192k",
		CacheFile:        ".spdlcache",
		MaxSongDuration:  20 * 60,
		RetryWaitSeconds: 5,
		TranscodeTimeout: 10 * 60,
		CallbackPort:     8888,
		TokenFile:        filepath.Join(homeDir(), ".config", "spotifydl", "token.json"),
		LogDir:           GetDefaultLogPath(),
		ListenAddr:       ":8080",
	}
}

// RetryWait is the flat delay between attempts of an authenticated call.
func (c Config) RetryWait() time.Duration {
	return time.Duration(c.RetryWaitSeconds) * time.Second
}

// TranscodeTimeoutDuration bounds a single transcode attempt.
func (c Config) TranscodeTimeoutDuration() time.Duration {
	return time.Duration(c.TranscodeTimeout) * time.Second
}

// MaxSongDurationSeconds is the longest candidate accepted for a song search.
func (c Config) MaxSongDurationSeconds() float64 {
	return float64(c.MaxSongDuration)
}

// LoadConfigFile loads configuration from a YAML or TOML file.
// If path is empty, searches standard locations. Returns defaults if no file found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if isTOML(path) {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.OutputDir = ExpandHome(cfg.OutputDir)
	cfg.TokenFile = ExpandHome(cfg.TokenFile)
	cfg.LogDir = ExpandHome(cfg.LogDir)

	return cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./spotifydl.yaml",
		"./spotifydl.yml",
		"./spotifydl.toml",
		filepath.Join(home, ".config", "spotifydl", "config.yaml"),
		filepath.Join(home, ".config", "spotifydl", "config.yml"),
		filepath.Join(home, ".config", "spotifydl", "config.toml"),
		filepath.Join(home, ".spotifydl.yaml"),
		filepath.Join(home, ".spotifydl.yml"),
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile saves the configuration, picking the encoding from the extension
func SaveConfigFile(cfg Config, path string) error {
	var data []byte
	var err error
	if isTOML(path) {
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "spotifydl", "config.yaml")
}

// GetDefaultLogPath returns the default log directory path
func GetDefaultLogPath() string {
	return filepath.Join(homeDir(), ".local", "share", "spotifydl", "logs")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

var (
	validFormats   = []string{"mp3", "m4a", "opus", "flac", "ogg", "wav", "aac"}
	bitratePattern = regexp.MustCompile(`^\d+k$`)
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !slices.Contains(validFormats, c.AudioFormat) {
		return fmt.Errorf("unsupported audio format '%s', valid formats: %v", c.AudioFormat, validFormats)
	}

	if !bitratePattern.MatchString(c.Bitrate) {
		return fmt.Errorf("bitrate must look like 192k, got %q", c.Bitrate)
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}
	if strings.TrimSpace(c.OutputTemplate) == "" {
		return fmt.Errorf("output_template cannot be empty")
	}
	if c.CacheFile == "" {
		return fmt.Errorf("cache_file cannot be empty")
	}

	if c.MaxSongDuration <= 0 {
		return fmt.Errorf("max_song_duration must be positive, got %d", c.MaxSongDuration)
	}
	if c.RetryWaitSeconds < 0 {
		return fmt.Errorf("retry_wait_seconds cannot be negative, got %d", c.RetryWaitSeconds)
	}
	if c.TranscodeTimeout <= 0 {
		return fmt.Errorf("transcode_timeout must be positive, got %d", c.TranscodeTimeout)
	}
	if c.CallbackPort <= 0 || c.CallbackPort > 65535 {
		return fmt.Errorf("callback_port must be a valid port, got %d", c.CallbackPort)
	}

	return nil
}

// ValidateCredentials checks the catalog credentials. Only needed when an input
// has to be resolved through the catalog.
func (c *Config) ValidateCredentials() error {
	if c.SpotifyClientID == "" {
		return fmt.Errorf("spotify_client_id is required for catalog inputs")
	}
	if c.SpotifyClientSecret == "" {
		return fmt.Errorf("spotify_client_secret is required for catalog inputs")
	}
	return nil
}
