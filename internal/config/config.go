// Package config holds the typed configuration of hh-checkpoint.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/spigell/hh-checkpoint/internal/acquisition"
	"github.com/spigell/hh-checkpoint/internal/headhunter"
)

const (
	DefaultDatabase       = "hh-checkpoint.db"
	DefaultCheckpointRoot = "checkpoints"
	DefaultQueriesFile    = "queries.yaml"
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultGeminiKeyEnv   = "GEMINI_API_KEY"
	DefaultMinScore       = 7
	DefaultSchedule       = "0 9 * * *"
	DefaultRequestDelay   = 500 * time.Millisecond
)

type Config struct {
	Database       string `mapstructure:"database" validate:"required,abspath"`
	CheckpointRoot string `mapstructure:"checkpoint-root" validate:"required,abspath"`
	// Profile is the candidate profile document. Its bytes define the profile key.
	Profile     string `mapstructure:"profile" validate:"required,abspath"`
	QueriesFile string `mapstructure:"queries-file" validate:"required,abspath"`
	Candidate   string `mapstructure:"candidate"`

	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	Matching    MatchingConfig    `mapstructure:"matching"`
	Promote     PromoteConfig     `mapstructure:"promote"`
	Gemini      GeminiConfig      `mapstructure:"gemini"`
	HeadHunter  HeadHunterConfig  `mapstructure:"headhunter"`
	Watch       WatchConfig       `mapstructure:"watch"`
}

type AcquisitionConfig struct {
	MaxPages            int `mapstructure:"max-pages" validate:"gte=0"`
	Workers             int `mapstructure:"workers" validate:"gte=0"`
	FetchErrorThreshold int `mapstructure:"fetch-error-threshold" validate:"gte=0"`
}

// Coordinator returns the run bounds. Zero values fall back to the coordinator defaults.
func (c AcquisitionConfig) Coordinator() acquisition.Config {
	return acquisition.Config{
		MaxPages:            c.MaxPages,
		Workers:             c.Workers,
		FetchErrorThreshold: c.FetchErrorThreshold,
	}
}

type MatchingConfig struct {
	Dimensions []string `mapstructure:"dimensions" validate:"dive,required"`
}

type PromoteConfig struct {
	MinScore int `mapstructure:"min-score" validate:"gte=0,lte=10"`
	// IgnoreApplied keeps vacancies that were already applied to on hh.ru.
	IgnoreApplied bool `mapstructure:"ignore-applied"`
	Exclude       struct {
		Employers []string `mapstructure:"employers"`
	} `mapstructure:"exclude"`
}

type GeminiConfig struct {
	Model        string `mapstructure:"model" validate:"required"`
	APIKeyFile   string `mapstructure:"api-key-file" validate:"omitempty,abspath"`
	APIKeyEnv    string `mapstructure:"api-key-env"`
	MaxLogLength int    `mapstructure:"max-log-length" validate:"gte=0"`
}

type HeadHunterConfig struct {
	TokenFile string                  `mapstructure:"token-file" validate:"omitempty,abspath"`
	UserAgent string                  `mapstructure:"user-agent"`
	APIURL    string                  `mapstructure:"api-url" validate:"omitempty,url"`
	Search    headhunter.SearchParams `mapstructure:"search"`
	Detailed  bool                    `mapstructure:"detailed"`
	Delay     time.Duration           `mapstructure:"delay" validate:"gte=0"`
}

type WatchConfig struct {
	Schedule string `mapstructure:"schedule" validate:"required,cronspec"`
}

// SetDefaults registers default values so that env overrides work for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database", DefaultDatabase)
	v.SetDefault("checkpoint-root", DefaultCheckpointRoot)
	v.SetDefault("queries-file", DefaultQueriesFile)
	v.SetDefault("profile", "")
	v.SetDefault("candidate", "")
	v.SetDefault("acquisition.max-pages", acquisition.DefaultMaxPages)
	v.SetDefault("acquisition.workers", acquisition.DefaultWorkers)
	v.SetDefault("acquisition.fetch-error-threshold", acquisition.DefaultFetchErrorThreshold)
	v.SetDefault("promote.min-score", DefaultMinScore)
	v.SetDefault("gemini.model", DefaultGeminiModel)
	v.SetDefault("gemini.api-key-env", DefaultGeminiKeyEnv)
	v.SetDefault("gemini.api-key-file", "")
	v.SetDefault("headhunter.token-file", "")
	v.SetDefault("headhunter.delay", DefaultRequestDelay)
	v.SetDefault("watch.schedule", DefaultSchedule)
}

// Load decodes v, resolves relative paths against base and validates the result.
func Load(v *viper.Viper, base string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Resolve(base); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Resolve makes every configured path absolute. Empty paths stay empty.
func (c *Config) Resolve(base string) error {
	if !filepath.IsAbs(base) {
		abs, err := filepath.Abs(base)
		if err != nil {
			return fmt.Errorf("resolving config base %q: %w", base, err)
		}
		base = abs
	}

	for _, p := range c.paths() {
		*p = resolvePath(base, *p)
	}
	return nil
}

func (c *Config) paths() []*string {
	return []*string{
		&c.Database,
		&c.CheckpointRoot,
		&c.Profile,
		&c.QueriesFile,
		&c.Gemini.APIKeyFile,
		&c.HeadHunter.TokenFile,
	}
}

func resolvePath(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// Validate checks the config. Paths must already be absolute.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", fieldErrors(verrs))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("abspath", func(fl validator.FieldLevel) bool {
		return filepath.IsAbs(fl.Field().String())
	})
	_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

func fieldErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "abspath":
			msgs = append(msgs, fmt.Sprintf("%s must be an absolute path, got %q", field, fe.Value()))
		case "cronspec":
			msgs = append(msgs, fmt.Sprintf("%s is not a valid cron expression: %q", field, fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s check", field, fe.Tag(), fe.Param()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
