package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override,
// e.g. FESONI_GATEWAY_API_KEY sets gateway.api_key.
const EnvPrefix = "FESONI"

// Load configuration from defaults, an optional config file and environment
// variables. Environment variables take precedence over values from the file.
// Returns a populated Config or an error wrapping domain.ErrConfiguration if
// validation fails.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch loads the config file at path and invokes onChange with the freshly
// decoded configuration each time the file is written. A reload that fails
// validation is passed to onChange as an error and the previous
// configuration should be kept by the caller.
func Watch(path string, onChange func(*Config, error)) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: watch requires a config file", domain.ErrConfiguration)
	}

	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()

	return cfg, nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading config file %s: %v", domain.ErrConfiguration, path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unable to decode config: %v", domain.ErrConfiguration, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid fields: %s", domain.ErrConfiguration, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.retry_backoff", 5*time.Second)
	v.SetDefault("queue.purge_delay", 30*time.Second)
	v.SetDefault("queue.work_timeout", 2*time.Minute)

	v.SetDefault("notify.bus_url", "")
	v.SetDefault("notify.username", "guest")
	v.SetDefault("notify.password", "guest")
	v.SetDefault("notify.vhost", "/")
	v.SetDefault("notify.publish_timeout", 5*time.Second)
	v.SetDefault("notify.recent_limit", 5)
	v.SetDefault("notify.recent_ttl", 5*time.Second)

	v.SetDefault("gateway.base_url", "http://localhost:8000")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.client_name", "fesoni-web-app")
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("gateway.health_timeout", 5*time.Second)
	v.SetDefault("gateway.batch_stagger", 100*time.Millisecond)
	v.SetDefault("gateway.rate_limit_ttl", 10*time.Second)
	v.SetDefault("gateway.services", DefaultServices())

	v.SetDefault("llm.provider", "gateway")
	v.SetDefault("llm.chat_model", "gpt-4")
	v.SetDefault("llm.describe_stagger", 200*time.Millisecond)
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.gemini_model", "gemini-2.0-flash")
}

// DefaultServices returns the built-in service routing table.
func DefaultServices() []ServiceConfig {
	return []ServiceConfig{
		{Name: "openai", Prefix: "/openai", Requests: 60, Window: time.Minute},
		{Name: "gemini", Prefix: "/gemini", Requests: 60, Window: time.Minute},
		{Name: "amazon", Prefix: "/amazon", Requests: 100, Window: time.Minute},
		{Name: "foxit", Prefix: "/foxit", Requests: 50, Window: time.Minute},
	}
}
