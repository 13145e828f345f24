package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/ulule/limiter/v3"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix selects the environment variables read by Load.
const DefaultEnvPrefix = "CHUNKGUARD_"

var ErrInvalidConfig = errors.New("invalid configuration")

type loadOptions struct {
	file      string
	envPrefix string
	overrides map[string]any
}

type LoadOption func(*loadOptions)

// WithFile reads a YAML file on top of the defaults.
func WithFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.file = path
	}
}

// WithEnvPrefix changes the environment prefix; an empty prefix disables
// environment loading.
func WithEnvPrefix(prefix string) LoadOption {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// WithOverrides applies nested key/value pairs after every other source,
// e.g. values taken from command line flags.
func WithOverrides(values map[string]any) LoadOption {
	return func(o *loadOptions) {
		o.overrides = values
	}
}

// Load builds a validated Config from defaults, the optional file, the
// environment and overrides, each layer overriding the previous one.
func Load(opts ...LoadOption) (*Config, error) {
	o := loadOptions{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if o.file != "" {
		data, err := readYAML(o.file)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawMap(data), nil); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", o.file, err)
		}
	}

	if o.envPrefix != "" {
		prefix := o.envPrefix
		if err := k.Load(env.Provider(".", env.Opt{
			Prefix: prefix,
			TransformFunc: func(key, value string) (string, any) {
				return transformEnvKey(strings.TrimPrefix(key, prefix)), value
			},
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
	}

	if len(o.overrides) > 0 {
		if err := k.Load(rawMap(o.overrides), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

var configValidator = validator.New()

// Validate checks the struct tags and the constraints spanning fields.
func Validate(cfg *Config) error {
	if err := configValidator.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Chunking.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	m := cfg.Memory
	if m.WarningPercent >= m.CriticalPercent || m.CriticalPercent >= m.EmergencyPercent {
		return fmt.Errorf("%w: memory thresholds must increase: warning %.0f, critical %.0f, emergency %.0f",
			ErrInvalidConfig, m.WarningPercent, m.CriticalPercent, m.EmergencyPercent)
	}
	if cfg.Protection.RateLimit != "" {
		if _, err := limiter.NewRateFromFormatted(cfg.Protection.RateLimit); err != nil {
			return fmt.Errorf("%w: protection.rate_limit: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// transformEnvKey maps CHUNKING_MAX_CHUNK_SIZE to chunking.max_chunk_size:
// the first segment names the section, the rest is the field.
func transformEnvKey(s string) string {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '_'
	})
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return parts[0] + "." + strings.Join(parts[1:], "_")
}

// rawMap adapts nested map data to koanf.Provider.
type rawMap map[string]any

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, errors.New("ReadBytes not implemented")
}
