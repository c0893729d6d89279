package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const appDirName = "holdscribe"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config stores runtime configuration for the dictation daemon.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Gesture  GestureConfig  `yaml:"gesture"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Engine   EngineConfig   `yaml:"engine"`
	Session  SessionConfig  `yaml:"session"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Notify   NotifyConfig   `yaml:"notify"`

	// Paths are derived, never read from the file.
	Paths Paths `yaml:"-"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type GestureConfig struct {
	ArmThreshold     time.Duration `yaml:"arm_threshold"`
	ModifierKeycodes []uint16      `yaml:"modifier_keycodes"`
}

type BridgeConfig struct {
	Host            string        `yaml:"host"`
	ChannelPort     int           `yaml:"channel_port"`
	BootstrapPort   int           `yaml:"bootstrap_port"`
	AuthTimeout     time.Duration `yaml:"auth_timeout"`
	RelaunchBackoff time.Duration `yaml:"relaunch_backoff"`
}

type EngineConfig struct {
	BrowserPath string   `yaml:"browser_path"`
	ProfileDir  string   `yaml:"profile_dir"`
	ExtraArgs   []string `yaml:"extra_args"`
	Autostart   bool     `yaml:"autostart"`
}

type SessionConfig struct {
	FinalizeTimeout     time.Duration `yaml:"finalize_timeout"`
	NotReadyGrace       time.Duration `yaml:"not_ready_grace"`
	ErrorResetDelay     time.Duration `yaml:"error_reset_delay"`
	EmptyResetDelay     time.Duration `yaml:"empty_reset_delay"`
	TimeoutResetDelay   time.Duration `yaml:"timeout_reset_delay"`
	DeliveredResetDelay time.Duration `yaml:"delivered_reset_delay"`
	StatusLogInterval   time.Duration `yaml:"status_log_interval"`
}

type DeliveryConfig struct {
	FocusSettle    time.Duration `yaml:"focus_settle"`
	PreWriteDelay  time.Duration `yaml:"pre_write_delay"`
	PostWriteDelay time.Duration `yaml:"post_write_delay"`
	PostPasteDelay time.Duration `yaml:"post_paste_delay"`
	GuardMaxHold   time.Duration `yaml:"guard_max_hold"`
}

type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Paths are the per-user files the daemon owns.
type Paths struct {
	Dir        string
	ConfigFile string
	LogFile    string
	LockFile   string
}

// Defaults returns the configuration used when no file or override is present.
func Defaults() Config {
	return Config{
		Log: LogConfig{Level: "INFO"},
		Gesture: GestureConfig{
			ArmThreshold:     1200 * time.Millisecond,
			ModifierKeycodes: []uint16{29, 3613},
		},
		Bridge: BridgeConfig{
			Host:            "127.0.0.1",
			AuthTimeout:     5 * time.Second,
			RelaunchBackoff: 2 * time.Second,
		},
		Engine: EngineConfig{Autostart: true},
		Session: SessionConfig{
			FinalizeTimeout:     8 * time.Second,
			NotReadyGrace:       time.Second,
			ErrorResetDelay:     2 * time.Second,
			EmptyResetDelay:     800 * time.Millisecond,
			TimeoutResetDelay:   800 * time.Millisecond,
			DeliveredResetDelay: 50 * time.Millisecond,
			StatusLogInterval:   10 * time.Second,
		},
		Delivery: DeliveryConfig{
			FocusSettle:    150 * time.Millisecond,
			PreWriteDelay:  50 * time.Millisecond,
			PostWriteDelay: 50 * time.Millisecond,
			PostPasteDelay: 100 * time.Millisecond,
			GuardMaxHold:   10 * time.Second,
		},
		Notify: NotifyConfig{Enabled: true},
	}
}

// Load resolves configuration from the optional YAML file, environment overrides
// and defaults, in that order of precedence (environment wins).
func Load() (Config, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return Config{}, errors.New("could not determine config directory")
		}
		dir = filepath.Join(home, ".config")
	}
	dir = filepath.Join(dir, appDirName)

	path := envOrDefault("HOLDSCRIBE_CONFIG", filepath.Join(dir, "config.yaml"))
	return LoadFile(path, dir)
}

// LoadFile reads the config at path (a missing file is not an error) and derives
// per-user paths under dir.
func LoadFile(path string, dir string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	cfg.Paths = Paths{
		Dir:        dir,
		ConfigFile: path,
		LogFile:    filepath.Join(dir, "holdscribe.log"),
		LockFile:   filepath.Join(dir, "holdscribe.lock"),
	}
	if cfg.Engine.ProfileDir == "" {
		cfg.Engine.ProfileDir = filepath.Join(dir, "engine-profile")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the runtime cannot honour.
func (c Config) Validate() error {
	if !IsLoopbackHost(c.Bridge.Host) {
		return fmt.Errorf("bridge.host %q is not a loopback address", c.Bridge.Host)
	}
	for _, port := range []int{c.Bridge.ChannelPort, c.Bridge.BootstrapPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("bridge port %d out of range", port)
		}
	}
	if c.Bridge.ChannelPort != 0 && c.Bridge.ChannelPort == c.Bridge.BootstrapPort {
		return errors.New("bridge.channel_port and bridge.bootstrap_port must differ")
	}
	return nil
}

// IsLoopbackHost reports whether host names the local machine only.
func IsLoopbackHost(host string) bool {
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}

func applyEnv(cfg *Config) {
	cfg.Log.Level = envOrDefault("HOLDSCRIBE_LOG_LEVEL", cfg.Log.Level)

	cfg.Gesture.ArmThreshold = envOrDefaultMillis("HOLDSCRIBE_ARM_THRESHOLD_MS", cfg.Gesture.ArmThreshold)

	cfg.Bridge.Host = envOrDefault("HOLDSCRIBE_BRIDGE_HOST", cfg.Bridge.Host)
	cfg.Bridge.ChannelPort = envOrDefaultInt("HOLDSCRIBE_CHANNEL_PORT", cfg.Bridge.ChannelPort)
	cfg.Bridge.BootstrapPort = envOrDefaultInt("HOLDSCRIBE_BOOTSTRAP_PORT", cfg.Bridge.BootstrapPort)

	cfg.Engine.BrowserPath = firstNonEmpty(os.Getenv("HOLDSCRIBE_BROWSER_PATH"), os.Getenv("CHROME_PATH"), cfg.Engine.BrowserPath)
	cfg.Engine.ProfileDir = envOrDefault("HOLDSCRIBE_PROFILE_DIR", cfg.Engine.ProfileDir)
	cfg.Engine.Autostart = envOrDefaultBool("HOLDSCRIBE_ENGINE_AUTOSTART", cfg.Engine.Autostart)

	cfg.Session.FinalizeTimeout = envOrDefaultMillis("HOLDSCRIBE_FINALIZE_TIMEOUT_MS", cfg.Session.FinalizeTimeout)

	cfg.Notify.Enabled = envOrDefaultBool("HOLDSCRIBE_NOTIFY", cfg.Notify.Enabled)
}

// applyDefaults replaces unusable values with their defaults.
func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Gesture.ArmThreshold <= 0 {
		cfg.Gesture.ArmThreshold = defaults.Gesture.ArmThreshold
	}
	if len(cfg.Gesture.ModifierKeycodes) == 0 {
		cfg.Gesture.ModifierKeycodes = defaults.Gesture.ModifierKeycodes
	}
	if strings.TrimSpace(cfg.Bridge.Host) == "" {
		cfg.Bridge.Host = defaults.Bridge.Host
	}
	positive := []struct {
		value    *time.Duration
		fallback time.Duration
	}{
		{&cfg.Bridge.AuthTimeout, defaults.Bridge.AuthTimeout},
		{&cfg.Bridge.RelaunchBackoff, defaults.Bridge.RelaunchBackoff},
		{&cfg.Session.FinalizeTimeout, defaults.Session.FinalizeTimeout},
		{&cfg.Delivery.GuardMaxHold, defaults.Delivery.GuardMaxHold},
	}
	for _, p := range positive {
		if *p.value <= 0 {
			*p.value = p.fallback
		}
	}
	nonNegative := []struct {
		value    *time.Duration
		fallback time.Duration
	}{
		{&cfg.Session.NotReadyGrace, defaults.Session.NotReadyGrace},
		{&cfg.Session.ErrorResetDelay, defaults.Session.ErrorResetDelay},
		{&cfg.Session.EmptyResetDelay, defaults.Session.EmptyResetDelay},
		{&cfg.Session.TimeoutResetDelay, defaults.Session.TimeoutResetDelay},
		{&cfg.Session.DeliveredResetDelay, defaults.Session.DeliveredResetDelay},
		{&cfg.Session.StatusLogInterval, defaults.Session.StatusLogInterval},
		{&cfg.Delivery.FocusSettle, defaults.Delivery.FocusSettle},
		{&cfg.Delivery.PreWriteDelay, defaults.Delivery.PreWriteDelay},
		{&cfg.Delivery.PostWriteDelay, defaults.Delivery.PostWriteDelay},
		{&cfg.Delivery.PostPasteDelay, defaults.Delivery.PostPasteDelay},
	}
	for _, p := range nonNegative {
		if *p.value < 0 {
			*p.value = p.fallback
		}
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
