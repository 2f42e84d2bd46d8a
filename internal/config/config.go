// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Persona() PersonaConfig
	Evasions() EvasionsConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserDebug(bool)

	// Evasions Setters
	SetEvasionsProfile(string)
	SetEvasionsDatasetFile(string)
	SetEvasionsBackReference(string)
	SetEvasionsKeyboard([]string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	PersonaCfg  PersonaConfig  `mapstructure:"persona" yaml:"persona"`
	EvasionsCfg EvasionsConfig `mapstructure:"evasions" yaml:"evasions"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Persona() PersonaConfig   { return c.PersonaCfg }
func (c *Config) Evasions() EvasionsConfig { return c.EvasionsCfg }

// --- Interface Method Implementations (Setters) ---

// Browser Setters
func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserDebug(b bool)    { c.BrowserCfg.Debug = b }

// Evasions Setters
func (c *Config) SetEvasionsProfile(p string)       { c.EvasionsCfg.Profile = p }
func (c *Config) SetEvasionsDatasetFile(f string)   { c.EvasionsCfg.DatasetFile = f }
func (c *Config) SetEvasionsBackReference(m string) { c.EvasionsCfg.BackReference = m }
func (c *Config) SetEvasionsKeyboard(k []string)    { c.EvasionsCfg.Keyboard = k }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig configures the Chrome instance the launch command drives.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache      bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug             bool           `mapstructure:"debug" yaml:"debug"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// PersonaConfig is the browser identity applied next to the evasions.
type PersonaConfig struct {
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
	Timezone  string   `mapstructure:"timezone" yaml:"timezone"`
	Locale    string   `mapstructure:"locale" yaml:"locale"`
}

// EvasionsConfig selects the plugin dataset and how it is installed.
type EvasionsConfig struct {
	// Profile names an embedded dataset. DatasetFile, when set, wins.
	Profile     string `mapstructure:"profile" yaml:"profile"`
	DatasetFile string `mapstructure:"dataset_file" yaml:"dataset_file"`
	// BackReference is "identity" or "proxy".
	BackReference string `mapstructure:"back_reference" yaml:"back_reference"`
	// Keyboard lists "Code=char" pairs, e.g. "KeyQ=a". Viper folds map keys
	// to lower case and KeyboardEvent.code is case sensitive, hence the list.
	// Empty disables the KeyboardLayoutMap override.
	Keyboard []string `mapstructure:"keyboard" yaml:"keyboard"`
}

// Layout parses Keyboard into a code to character map.
func (e EvasionsConfig) Layout() (map[string]string, error) {
	if len(e.Keyboard) == 0 {
		return nil, nil
	}
	layout := make(map[string]string, len(e.Keyboard))
	for _, pair := range e.Keyboard {
		code, char, ok := strings.Cut(pair, "=")
		code = strings.TrimSpace(code)
		if !ok || code == "" || char == "" {
			return nil, fmt.Errorf("keyboard entry %q is not of the form Code=char", pair)
		}
		if _, dup := layout[code]; dup {
			return nil, fmt.Errorf("keyboard code %q is mapped twice", code)
		}
		layout[code] = char
	}
	return layout, nil
}

// NewDefaultConfig creates a new configuration with all default values set.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-mimic")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1920, "height": 1080})
	v.SetDefault("browser.navigation_timeout", "90s")

	// -- Persona --
	v.SetDefault("persona.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("persona.languages", []string{"en-US", "en"})
	v.SetDefault("persona.timezone", "America/Los_Angeles")
	v.SetDefault("persona.locale", "en-US")

	// -- Evasions --
	v.SetDefault("evasions.profile", "chrome")
	v.SetDefault("evasions.back_reference", "identity")
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LoggerCfg.Level); err != nil {
		return fmt.Errorf("logger.level %q is not a valid level", c.LoggerCfg.Level)
	}
	switch c.LoggerCfg.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.LoggerCfg.Format)
	}
	for _, dim := range []string{"width", "height"} {
		if n, ok := c.BrowserCfg.Viewport[dim]; ok && n <= 0 {
			return fmt.Errorf("browser.viewport.%s must be a positive integer", dim)
		}
	}
	if err := c.EvasionsCfg.Validate(); err != nil {
		return fmt.Errorf("evasions configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the Evasions configuration.
func (e *EvasionsConfig) Validate() error {
	if e.Profile == "" && e.DatasetFile == "" {
		return fmt.Errorf("either profile or dataset_file is required")
	}
	switch strings.ToLower(strings.TrimSpace(e.BackReference)) {
	case "", "identity", "proxy":
	default:
		return fmt.Errorf("back_reference must be 'identity' or 'proxy', got %q", e.BackReference)
	}
	_, err := e.Layout()
	return err
}
