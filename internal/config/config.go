// Package config loads pktkit configuration using viper.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/gopacket/layers"
	"github.com/spf13/viper"

	"firestige.xyz/pktkit/pkg/log"
	"firestige.xyz/pktkit/pkg/packet"
)

// Config is the top-level configuration.
// Maps to the `pktkit:` root key in YAML.
type Config struct {
	Log        log.Config       `mapstructure:"log"`
	Decoder    DecoderConfig    `mapstructure:"decoder"`
	Reassembly ReassemblyConfig `mapstructure:"reassembly"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ─── Decoder ───

// DecoderConfig configures packet.Decode.
type DecoderConfig struct {
	Strict          bool            `mapstructure:"strict"`
	MaxDepth        int             `mapstructure:"max_depth"`
	DRDASniffing    bool            `mapstructure:"drda_sniffing"`
	DefaultLinkType layers.LinkType `mapstructure:"default_link_type"` // ethernet / raw / linux_sll / ppp or a DLT number
}

// Options converts the section into decode options.
func (c *DecoderConfig) Options() []packet.Option {
	return []packet.Option{
		packet.WithStrict(c.Strict),
		packet.WithMaxDepth(c.MaxDepth),
		packet.WithDRDASniffing(c.DRDASniffing),
	}
}

// ─── Reassembly ───

// ReassemblyConfig controls IPv4 fragment reassembly in the decode command.
type ReassemblyConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxFragments int           `mapstructure:"max_fragments"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimit    int           `mapstructure:"rate_limit"` // fragments per second per source, 0 = unlimited
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"` // empty = no HTTP endpoint, counters are only logged
	Path    string `mapstructure:"path"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `pktkit: ...`.
type configRoot struct {
	Pktkit Config `mapstructure:"pktkit"`
}

var linkTypeNames = map[string]layers.LinkType{
	"ethernet":  layers.LinkTypeEthernet,
	"en10mb":    layers.LinkTypeEthernet,
	"raw":       layers.LinkTypeRaw,
	"ipv4":      layers.LinkTypeIPv4,
	"ipv6":      layers.LinkTypeIPv6,
	"linux_sll": layers.LinkTypeLinuxSLL,
	"sll":       layers.LinkTypeLinuxSLL,
	"ppp":       layers.LinkTypePPP,
}

// ParseLinkType accepts a link type name or its numeric DLT value.
func ParseLinkType(s string) (layers.LinkType, error) {
	if lt, ok := linkTypeNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lt, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown link type %q", s)
	}
	return layers.LinkType(n), nil
}

// stringToLinkTypeHook decodes link type names into layers.LinkType.
func stringToLinkTypeHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(layers.LinkType(0))
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != target {
			return data, nil
		}
		return ParseLinkType(data.(string))
	}
}

// Load loads configuration from file. An empty path yields the defaults.
// The YAML file uses `pktkit:` as root key; env vars use the PKTKIT_ prefix
// (e.g., PKTKIT_DECODER_STRICT).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `pktkit.` key prefix maps to `PKTKIT_` through the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToLinkTypeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&root, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Pktkit

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for every key so env overrides are seen by
// Unmarshal.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("pktkit.log.level", "info")
	v.SetDefault("pktkit.log.pattern", log.DefaultPattern)
	v.SetDefault("pktkit.log.time", log.DefaultTimeLayout)
	v.SetDefault("pktkit.log.console", "stderr")
	v.SetDefault("pktkit.log.file.enabled", false)
	v.SetDefault("pktkit.log.file.path", "pktkit.log")
	v.SetDefault("pktkit.log.file.max_size_mb", 100)
	v.SetDefault("pktkit.log.file.max_age_days", 30)
	v.SetDefault("pktkit.log.file.max_backups", 5)
	v.SetDefault("pktkit.log.file.compress", true)

	// Decoder defaults
	v.SetDefault("pktkit.decoder.strict", false)
	v.SetDefault("pktkit.decoder.max_depth", packet.DefaultMaxDepth)
	v.SetDefault("pktkit.decoder.drda_sniffing", true)
	v.SetDefault("pktkit.decoder.default_link_type", "ethernet")

	// Reassembly defaults
	v.SetDefault("pktkit.reassembly.enabled", false)
	v.SetDefault("pktkit.reassembly.max_fragments", 10000)
	v.SetDefault("pktkit.reassembly.timeout", "30s")
	v.SetDefault("pktkit.reassembly.rate_limit", 0)

	// Metrics defaults
	v.SetDefault("pktkit.metrics.enabled", false)
	v.SetDefault("pktkit.metrics.listen", "")
	v.SetDefault("pktkit.metrics.path", "/metrics")
}

var errNoLinkType = errors.New("decoder.default_link_type is required")

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}

	// ── Decoder ──
	if cfg.Decoder.MaxDepth < 0 {
		return fmt.Errorf("invalid decoder.max_depth: %d", cfg.Decoder.MaxDepth)
	}
	if cfg.Decoder.MaxDepth == 0 {
		cfg.Decoder.MaxDepth = packet.DefaultMaxDepth
	}
	switch cfg.Decoder.DefaultLinkType {
	case layers.LinkTypeEthernet, layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6,
		layers.LinkTypeLinuxSLL, layers.LinkTypePPP:
	case layers.LinkTypeNull:
		return errNoLinkType
	default:
		return fmt.Errorf("unsupported decoder.default_link_type: %s", cfg.Decoder.DefaultLinkType)
	}

	// ── Reassembly ──
	if cfg.Reassembly.Enabled {
		if cfg.Reassembly.MaxFragments <= 0 {
			return fmt.Errorf("reassembly.max_fragments must be positive when reassembly.enabled=true")
		}
		if cfg.Reassembly.Timeout <= 0 {
			return fmt.Errorf("reassembly.timeout must be positive when reassembly.enabled=true")
		}
	}
	if cfg.Reassembly.RateLimit < 0 {
		return fmt.Errorf("invalid reassembly.rate_limit: %d", cfg.Reassembly.RateLimit)
	}

	// ── Metrics ──
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}
