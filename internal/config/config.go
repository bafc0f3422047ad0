// Package config loads the retile configuration from viper.
package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/kiesman99/retile/internal/codec"
	"github.com/kiesman99/retile/internal/pixel"
	"github.com/kiesman99/retile/pkg/tile"
)

// Defaults
const (
	DefaultCacheSlots   = 16
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultUserAgent    = tile.DefaultUserAgent
	DefaultBind         = "localhost"
	DefaultPort         = 3000
	DefaultLogLevel     = "info"
	DefaultMaxTileBytes = 64 << 20
)

// Config is the complete configuration
type Config struct {
	Log      LogConfig                `mapstructure:"log" json:"log"`
	HTTP     HTTPConfig               `mapstructure:"http" json:"http"`
	Source   DatasetConfig            `mapstructure:"source" json:"source"`
	Output   DatasetConfig            `mapstructure:"output" json:"output"`
	Job      JobConfig                `mapstructure:"job" json:"job"`
	Server   ServerConfig             `mapstructure:"server" json:"server"`
	Datasets map[string]DatasetConfig `mapstructure:"datasets" json:"datasets"`
}

type LogConfig struct {
	Level    string `mapstructure:"level" json:"level"`
	Encoding string `mapstructure:"encoding" json:"encoding"`
}

// HTTPConfig configures the client used for http(s) tile URIs
type HTTPConfig struct {
	Timeout   time.Duration     `mapstructure:"timeout" json:"timeout"`
	UserAgent string            `mapstructure:"user_agent" json:"user_agent"`
	Headers   map[string]string `mapstructure:"headers" json:"headers"`
}

// DatasetConfig describes one tiled dataset. Preset fills in the format and
// compression; explicit fields override it.
type DatasetConfig struct {
	Template    string       `mapstructure:"template" json:"template"`
	Preset      string       `mapstructure:"preset" json:"preset,omitempty"`
	Format      pixel.Format `mapstructure:"format" json:"format"`
	Compression string       `mapstructure:"compression" json:"compression,omitempty"`
	Offset      tile.Point   `mapstructure:"offset" json:"offset"`
	Manifest    string       `mapstructure:"manifest" json:"manifest,omitempty"`
	CacheSlots  int          `mapstructure:"cache_slots" json:"cache_slots,omitempty"`
}

// JobConfig selects what to retile. A nil Region means the manifest bounds.
type JobConfig struct {
	Region     *tile.Box `mapstructure:"region" json:"region,omitempty"`
	BeginLevel int       `mapstructure:"begin_level" json:"begin_level"`
	EndLevel   int       `mapstructure:"end_level" json:"end_level"`
}

type ServerConfig struct {
	Bind         string        `mapstructure:"bind" json:"bind"`
	Port         int           `mapstructure:"port" json:"port"`
	Timeout      time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxTileBytes int           `mapstructure:"max_tile_bytes" json:"max_tile_bytes"`
}

// Addr is bind:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.encoding", "console")
	v.SetDefault("http.timeout", DefaultHTTPTimeout)
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("source.cache_slots", DefaultCacheSlots)
	v.SetDefault("job.begin_level", 0)
	v.SetDefault("job.end_level", 0)
	v.SetDefault("server.bind", DefaultBind)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.max_tile_bytes", DefaultMaxTileBytes)
}

// Load applies defaults and decodes v. It does not validate.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		PointHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	for name, d := range cfg.Datasets {
		if d.CacheSlots == 0 {
			d.CacheSlots = DefaultCacheSlots
			cfg.Datasets[name] = d
		}
	}
	return cfg, nil
}

// Resolve applies the preset
func (d DatasetConfig) Resolve() (DatasetConfig, error) {
	if d.Preset == "" {
		return d, nil
	}
	p, ok := presets[d.Preset]
	if !ok {
		return d, fmt.Errorf("unknown preset %q (supported: srtm, color)", d.Preset)
	}

	out := d
	out.Format = p.Format
	if d.Format.Size != (tile.Point{}) {
		out.Format.Size = d.Format.Size
	}
	if d.Format.Encoding.BitDepth != 0 {
		out.Format.Encoding = d.Format.Encoding
	}
	if d.Compression == "" {
		out.Compression = string(p.Compression)
	}
	return out, nil
}

// Codec builds the codec of a resolved dataset
func (d DatasetConfig) Codec() (codec.Codec, error) {
	r, err := d.Resolve()
	if err != nil {
		return codec.Codec{}, err
	}
	comp, err := codec.ParseCompression(r.Compression)
	if err != nil {
		return codec.Codec{}, err
	}
	return codec.New(r.Format, comp)
}

// Validate checks one dataset and reports every problem
func (d DatasetConfig) Validate(name string) error {
	var errs error
	if d.Template == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s.template is required", name))
	} else if _, err := tile.ParseTemplate(d.Template); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s.template: %w", name, err))
	}
	if _, err := d.Codec(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s.format: %w", name, err))
	}
	if d.CacheSlots < 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s.cache_slots must not be negative, got %d", name, d.CacheSlots))
	}
	return errs
}

// ValidateRetile checks what the run and jobs commands need
func (c Config) ValidateRetile() error {
	errs := multierr.Combine(
		c.Source.Validate("source"),
		c.Output.Validate("output"),
		c.validateHTTP(),
	)

	if c.Job.BeginLevel < 0 || c.Job.EndLevel < 0 {
		errs = multierr.Append(errs, fmt.Errorf("job levels must be non-negative, got begin=%d end=%d", c.Job.BeginLevel, c.Job.EndLevel))
	}
	if c.Job.EndLevel > c.Job.BeginLevel {
		errs = multierr.Append(errs, fmt.Errorf("job.end_level %d must not exceed job.begin_level %d", c.Job.EndLevel, c.Job.BeginLevel))
	}
	if c.Job.Region == nil && c.Source.Manifest == "" {
		errs = multierr.Append(errs, fmt.Errorf("job.region is required when source.manifest is not set"))
	}
	if r := c.Job.Region; r != nil && r.Empty() {
		errs = multierr.Append(errs, fmt.Errorf("job.region %v is empty", *r))
	}

	src, srcErr := c.Source.Codec()
	out, outErr := c.Output.Codec()
	if srcErr == nil && outErr == nil && src.Format.Encoding.Channels != out.Format.Encoding.Channels {
		errs = multierr.Append(errs, fmt.Errorf("source has %d channels, output %d",
			src.Format.Encoding.Channels, out.Format.Encoding.Channels))
	}
	return errs
}

// ValidateServe checks what the preview server needs
func (c Config) ValidateServe() error {
	errs := c.validateHTTP()
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Server.Timeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout))
	}
	if c.Server.MaxTileBytes <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("server.max_tile_bytes must be positive, got %d", c.Server.MaxTileBytes))
	}
	for name, d := range c.Datasets {
		errs = multierr.Append(errs, d.Validate("datasets."+name))
	}
	return errs
}

func (c Config) validateHTTP() error {
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	return nil
}
