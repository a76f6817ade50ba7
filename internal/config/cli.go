package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CLI is the invoicer command configuration.
type CLI struct {
	// ServerURL is the dashboard backend that owns the Xero connection.
	ServerURL string        `mapstructure:"server_url"`
	APIToken  string        `mapstructure:"api_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	LogLevel  string        `mapstructure:"log_level"`
	Popup     PopupConfig   `mapstructure:"popup"`
	Batch     BatchConfig   `mapstructure:"batch"`
}

// PopupConfig controls the authorization window.
type PopupConfig struct {
	// Browser is the executable launched in app mode, e.g. "chromium".
	Browser      string        `mapstructure:"browser"`
	Width        int           `mapstructure:"width"`
	Height       int           `mapstructure:"height"`
	ScreenWidth  int           `mapstructure:"screen_width"`
	ScreenHeight int           `mapstructure:"screen_height"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CloseGrace   time.Duration `mapstructure:"close_grace"`
	// RelayAddr is the loopback listener that receives completion messages.
	RelayAddr string `mapstructure:"relay_addr"`
	// AllowedOrigins extends the built-in allow-list (server + Xero origins).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// BatchConfig controls invoice submission.
type BatchConfig struct {
	MaxConcurrency   int           `mapstructure:"max_concurrency"`
	ReprobeAttempts  uint          `mapstructure:"reprobe_attempts"`
	ReprobeInterval  time.Duration `mapstructure:"reprobe_interval"`
	ReprobeMaxWindow time.Duration `mapstructure:"reprobe_max_window"`
}

// SetCLIDefaults registers defaults on the global viper instance.
func SetCLIDefaults() {
	viper.SetDefault("server_url", "http://localhost:8086")
	viper.SetDefault("timeout", "30s")
	viper.SetDefault("log_level", "warn")

	viper.SetDefault("popup.browser", "chromium")
	viper.SetDefault("popup.width", 600)
	viper.SetDefault("popup.height", 700)
	viper.SetDefault("popup.screen_width", 1920)
	viper.SetDefault("popup.screen_height", 1080)
	viper.SetDefault("popup.poll_interval", "500ms")
	viper.SetDefault("popup.timeout", "5m")
	viper.SetDefault("popup.close_grace", "1s")
	viper.SetDefault("popup.relay_addr", "127.0.0.1:0")

	viper.SetDefault("batch.max_concurrency", 4)
	viper.SetDefault("batch.reprobe_attempts", 5)
	viper.SetDefault("batch.reprobe_interval", "500ms")
	viper.SetDefault("batch.reprobe_max_window", "15s")
}

// LoadCLI decodes the global viper state into a CLI config.
func LoadCLI() (*CLI, error) {
	var cfg CLI
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server_url is required")
	}
	if cfg.Popup.Width <= 0 || cfg.Popup.Height <= 0 {
		return nil, fmt.Errorf("popup width and height must be positive")
	}
	if cfg.Batch.MaxConcurrency < 1 {
		cfg.Batch.MaxConcurrency = 1
	}
	return &cfg, nil
}
