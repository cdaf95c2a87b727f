package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"  validate:"required"`
	Queue   QueueConfig   `mapstructure:"queue"   validate:"required"`
	Notify  NotifyConfig  `mapstructure:"notify"  validate:"required"`
	Gateway GatewayConfig `mapstructure:"gateway" validate:"required"`
	LLM     LLMConfig     `mapstructure:"llm"     validate:"required"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// QueueConfig controls retry and purge behavior of the task queue.
// Backoff and purge delay are independent knobs.
type QueueConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"  validate:"required,gte=1,lte=10"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" validate:"required,gt=0"`
	PurgeDelay   time.Duration `mapstructure:"purge_delay"   validate:"required,gt=0"`
	WorkTimeout  time.Duration `mapstructure:"work_timeout"  validate:"required,gt=0"`
}

// NotifyConfig points the notification channel at the real-time bus.
// An empty BusURL disables publishing; notifications then only reach the
// local log and in-process subscribers.
type NotifyConfig struct {
	BusURL         string        `mapstructure:"bus_url"         validate:"omitempty,url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	VHost          string        `mapstructure:"vhost"           validate:"required"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout" validate:"required,gt=0"`
	RecentLimit    int           `mapstructure:"recent_limit"    validate:"required,gt=0"`
	RecentTTL      time.Duration `mapstructure:"recent_ttl"      validate:"required,gt=0"`
}

// GatewayConfig configures the API gateway all remote calls are routed through.
type GatewayConfig struct {
	BaseURL       string          `mapstructure:"base_url"       validate:"required,url"`
	APIKey        string          `mapstructure:"api_key"`
	ClientName    string          `mapstructure:"client_name"    validate:"required"`
	Timeout       time.Duration   `mapstructure:"timeout"        validate:"required,gt=0"`
	HealthTimeout time.Duration   `mapstructure:"health_timeout" validate:"required,gt=0"`
	BatchStagger  time.Duration   `mapstructure:"batch_stagger"  validate:"gte=0"`
	RateLimitTTL  time.Duration   `mapstructure:"rate_limit_ttl" validate:"gte=0"`
	Services      []ServiceConfig `mapstructure:"services"       validate:"required,min=1,dive"`
}

// ServiceConfig maps an endpoint prefix to a logical service and its quota.
type ServiceConfig struct {
	Name     string        `mapstructure:"name"     validate:"required"`
	Prefix   string        `mapstructure:"prefix"   validate:"required,startswith=/"`
	Requests int           `mapstructure:"requests" validate:"required,gt=0"`
	Window   time.Duration `mapstructure:"window"   validate:"required,gt=0"`
}

// LLMConfig selects the backend used for aesthetic analysis and product
// descriptions.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"         validate:"required,oneof=gateway gemini"`
	ChatModel       string        `mapstructure:"chat_model"       validate:"required"`
	DescribeStagger time.Duration `mapstructure:"describe_stagger" validate:"gte=0"`
	GeminiAPIKey    string        `mapstructure:"gemini_api_key"   validate:"required_if=Provider gemini"`
	GeminiModel     string        `mapstructure:"gemini_model"     validate:"required_if=Provider gemini"`
}
