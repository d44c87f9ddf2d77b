// Package config loads the fhirschema CLI configuration from flags,
// environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	fhirschema "github.com/gofhir/fhirschema"
)

// EnvPrefix prefixes every environment variable read by Load,
// e.g. FHIRSCHEMA_STRICT=true.
const EnvPrefix = "FHIRSCHEMA"

// Config holds all CLI configuration.
type Config struct {
	Format string `mapstructure:"format" validate:"oneof=json xml"`
	Output string `mapstructure:"output" validate:"oneof=text json"`

	Strict          bool `mapstructure:"strict"`
	Invariants      bool `mapstructure:"invariants"`
	PreserveUnknown bool `mapstructure:"preserve_unknown"`
	Advisory        bool `mapstructure:"advisory"`
	Positions       bool `mapstructure:"positions"`
	MaxErrors       int  `mapstructure:"max_errors" validate:"gte=0"`
	Workers         int  `mapstructure:"workers" validate:"gte=0,lte=256"`
	Quiet           bool `mapstructure:"quiet"`

	// TerminologyDir holds ValueSet, CodeSystem and Bundle JSON files used
	// to check codes the bundled bindings do not enumerate.
	TerminologyDir string `mapstructure:"terminology_dir" validate:"omitempty,dir"`

	LogLevel   string `mapstructure:"log_level" validate:"oneof=debug info warn error none"`
	LogConsole bool   `mapstructure:"log_console"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("format", "json")
	v.SetDefault("output", "text")
	v.SetDefault("strict", false)
	v.SetDefault("invariants", false)
	v.SetDefault("preserve_unknown", true)
	v.SetDefault("advisory", true)
	v.SetDefault("positions", true)
	v.SetDefault("max_errors", 0)
	v.SetDefault("workers", 0)
	v.SetDefault("quiet", false)
	v.SetDefault("terminology_dir", "")
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_console", true)
}

// Load reads the configuration from v. A config file is read when one was
// set with v.SetConfigFile; otherwise fhirschema.yaml is looked up in the
// working directory and its absence is not an error.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	explicit := v.ConfigFileUsed() != ""
	if !explicit {
		v.SetConfigName("fhirschema")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Format = strings.ToLower(cfg.Format)
	cfg.Output = strings.ToLower(cfg.Output)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Options translates the configuration into codec options.
func (c *Config) Options() []fhirschema.Option {
	var opts []fhirschema.Option
	if c.Strict {
		opts = append(opts, fhirschema.StrictOptions()...)
	}
	opts = append(opts,
		fhirschema.WithPreserveUnknown(c.PreserveUnknown),
		fhirschema.WithAdvisoryIssues(c.Advisory),
		fhirschema.WithMaxErrors(c.MaxErrors),
	)
	if c.Invariants {
		opts = append(opts, fhirschema.WithInvariants(true))
	}
	if !c.Strict {
		opts = append(opts, fhirschema.WithPositionTracking(c.Positions))
	}
	return opts
}
