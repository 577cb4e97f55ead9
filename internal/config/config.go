// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Gateway       GatewayConfig       `yaml:"gateway" mapstructure:"gateway"`
	Prompts       PromptsConfig       `yaml:"prompts" mapstructure:"prompts"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置（仅用于调用审计，可关闭）
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig KV 存储配置
type CacheConfig struct {
	// Backend 存储后端：redis / memory
	Backend string      `yaml:"backend" mapstructure:"backend"`
	Redis   RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string `yaml:"default_provider" mapstructure:"default_provider"`
	// ForceSimulated 强制所有解析都落到 simulated provider
	ForceSimulated  bool                      `yaml:"force_simulated" mapstructure:"force_simulated"`
	AvailabilityTTL time.Duration             `yaml:"availability_ttl" mapstructure:"availability_ttl"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	// Type 实现类型：simulated / openai / compatible，为空时取 provider id
	Type        string                 `yaml:"type" mapstructure:"type"`
	APIKey      string                 `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string                 `yaml:"base_url" mapstructure:"base_url"`
	Model       string                 `yaml:"model" mapstructure:"model"`
	MaxTokens   int                    `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64                `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration          `yaml:"timeout" mapstructure:"timeout"`
	Models      map[string]ModelConfig `yaml:"models" mapstructure:"models"`

	// simulated 专用
	ResponseDelay time.Duration `yaml:"response_delay" mapstructure:"response_delay"`
	ErrorRate     float64       `yaml:"error_rate" mapstructure:"error_rate"`
	Seed          uint64        `yaml:"seed" mapstructure:"seed"`
}

// ModelConfig 模型目录条目
type ModelConfig struct {
	MaxTokens       int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	InputCostPer1K  float64 `yaml:"input_cost_per_1k" mapstructure:"input_cost_per_1k"`
	OutputCostPer1K float64 `yaml:"output_cost_per_1k" mapstructure:"output_cost_per_1k"`
	Default         bool    `yaml:"default" mapstructure:"default"`
}

// GatewayConfig 网关策略配置
type GatewayConfig struct {
	RateLimit    GatewayRateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Retry        RetryConfig            `yaml:"retry" mapstructure:"retry"`
	Usage        UsageConfig            `yaml:"usage" mapstructure:"usage"`
	Conversation ConversationConfig     `yaml:"conversation" mapstructure:"conversation"`
}

// GatewayRateLimitConfig 每分钟请求/Token 配额
type GatewayRateLimitConfig struct {
	Scope             string  `yaml:"scope" mapstructure:"scope"`
	RequestsPerMinute int64   `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	TokensPerMinute   int64   `yaml:"tokens_per_minute" mapstructure:"tokens_per_minute"`
	TokensPerChar     float64 `yaml:"tokens_per_char" mapstructure:"tokens_per_char"`
}

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout" mapstructure:"attempt_timeout"`
}

// UsageConfig 用量账本配置
type UsageConfig struct {
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days"`
}

// ConversationConfig 会话历史配置
type ConversationConfig struct {
	MaxTurns int           `yaml:"max_turns" mapstructure:"max_turns"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// PromptsConfig 提示词模板配置
type PromptsConfig struct {
	// Dir 覆盖内置模板的目录，为空则只用内置模板
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT  JWTConfig  `yaml:"jwt" mapstructure:"jwt"`
	CORS CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	// Enabled 关闭时所有请求以匿名身份调用
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Secret     string        `yaml:"secret" mapstructure:"secret"`
	Issuer     string        `yaml:"issuer" mapstructure:"issuer"`
	Expiration time.Duration `yaml:"expiration" mapstructure:"expiration"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
