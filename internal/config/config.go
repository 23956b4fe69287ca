package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 描述了 Lumin 任务助手在启动阶段需要加载的全部配置。
type Config struct {
	Server       ServerConfig       `json:"server" yaml:"server"`
	Logging      LoggingConfig      `json:"logging" yaml:"logging"`
	Storage      StorageConfig      `json:"storage" yaml:"storage"`
	Redis        RedisConfig        `json:"redis" yaml:"redis"`
	Conversation ConversationConfig `json:"conversation" yaml:"conversation"`
	DataSource   DataSourceConfig   `json:"datasource" yaml:"datasource"`
	Activity     ActivityConfig     `json:"activity" yaml:"activity"`
	LLM          LLMConfig          `json:"llm" yaml:"llm"`
	Workflow     WorkflowConfig     `json:"workflow" yaml:"workflow"`
	Alerting     AlertingConfig     `json:"alerting" yaml:"alerting"`
	Runtime      RuntimeConfig      `json:"runtime" yaml:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address             string `json:"address" yaml:"address"`
	UserHeader          string `json:"user_header" yaml:"user_header"`
	ShutdownTimeoutSecs int    `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// LoggingConfig 对应 pkg/logger 的配置项。
type LoggingConfig struct {
	Level   string      `json:"level" yaml:"level"`
	Format  string      `json:"format" yaml:"format"`
	Outputs []string    `json:"outputs" yaml:"outputs"`
	Audit   AuditConfig `json:"audit" yaml:"audit"`
}

// AuditConfig 控制审计日志的落盘与轮转。
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// StorageConfig 描述任务、数据源与会话表所在的关系型存储。
type StorageConfig struct {
	Driver                 string `json:"driver" yaml:"driver"`
	DSN                    string `json:"dsn" yaml:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds" yaml:"conn_max_idle_time_seconds"`
	AutoMigrate            bool   `json:"auto_migrate" yaml:"auto_migrate"`
}

// RedisConfig 是多个组件共享的 Redis 连接信息。
type RedisConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// Enabled 判断是否配置了 Redis。
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Address) != ""
}

// ConversationConfig 选择会话消息的写入位置。
type ConversationConfig struct {
	Driver    string `json:"driver" yaml:"driver"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
	MaxLength int64  `json:"max_length" yaml:"max_length"`
}

// DataSourceConfig 控制数据源目录的缓存。
type DataSourceConfig struct {
	CacheTTLSeconds int    `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	CachePrefix     string `json:"cache_prefix" yaml:"cache_prefix"`
}

// CacheTTL 返回缓存有效期，0 表示不缓存。
func (d DataSourceConfig) CacheTTL() time.Duration {
	if d.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(d.CacheTTLSeconds) * time.Second
}

// ActivityConfig 描述任务动态的消息队列。
type ActivityConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Workers  int            `json:"workers" yaml:"workers"`
	Buffer   int            `json:"buffer" yaml:"buffer"`
	Redis    RedisQueue     `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisQueue 描述 Redis list 队列参数，连接信息复用 RedisConfig。
type RedisQueue struct {
	Queue     string `json:"queue" yaml:"queue"`
	BlockWait int    `json:"block_wait_seconds" yaml:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列参数。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Queue      string `json:"queue" yaml:"queue"`
	Prefetch   int    `json:"prefetch" yaml:"prefetch"`
	Durable    bool   `json:"durable" yaml:"durable"`
	AutoDelete bool   `json:"auto_delete" yaml:"auto_delete"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string             `json:"provider" yaml:"provider"`
	DefaultModel   string             `json:"default_model" yaml:"default_model"`
	TimeoutSeconds int                `json:"timeout_seconds" yaml:"timeout_seconds"`
	Retry          RetryConfig        `json:"retry" yaml:"retry"`
	RateLimit      RateLimitConfig    `json:"rate_limit" yaml:"rate_limit"`
	OpenAI         OpenAIConfig       `json:"openai" yaml:"openai"`
	Anthropic      APIKeyConfig       `json:"anthropic" yaml:"anthropic"`
	Gemini         APIKeyConfig       `json:"gemini" yaml:"gemini"`
	Python         PythonBridgeConfig `json:"python_bridge" yaml:"python_bridge"`
}

// Timeout 返回单次调用的超时时间。
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryConfig 是上游模型调用的重试策略，MaxAttempts 为 1 表示不重试。
type RetryConfig struct {
	MaxAttempts    int `json:"max_attempts" yaml:"max_attempts"`
	InitialBackoff int `json:"initial_backoff_ms" yaml:"initial_backoff_ms"`
	MaxBackoff     int `json:"max_backoff_ms" yaml:"max_backoff_ms"`
}

// RateLimitConfig 限制对上游模型的调用频率，RequestsPerSecond 为 0 表示不限流。
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`
}

// APIKeyConfig 适用于只需要 API Key 与可选地址的提供方。
type APIKeyConfig struct {
	APIKey    string `json:"api_key" yaml:"api_key"`
	APIKeyEnv string `json:"api_key_env" yaml:"api_key_env"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
}

// ResolveAPIKey 优先使用显式配置，其次读取环境变量。
func (c APIKeyConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	if c.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
	}
	return ""
}

// OpenAIConfig 描述 OpenAI 兼容接口（含 Groq 等）的调用参数。
type OpenAIConfig struct {
	APIKeyConfig `yaml:",inline"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
}

// PythonBridgeConfig 描述通过 Python 脚本完成推理时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `json:"python_executable" yaml:"python_executable"`
	ScriptPath       string `json:"script_path" yaml:"script_path"`
	WorkingDir       string `json:"working_dir" yaml:"working_dir"`
}

// WorkflowConfig 控制任务意图识别与执行的细节。
type WorkflowConfig struct {
	Keywords       []string `json:"keywords" yaml:"keywords"`
	ListLimit      int      `json:"list_limit" yaml:"list_limit"`
	TitleMaxLength int      `json:"title_max_length" yaml:"title_max_length"`
	// Temperature 是意图识别时的采样温度，0 表示使用提供方默认值。
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// AlertingConfig 配置告警通知。日志通道始终开启，WebhookURL 为空时不推送。
type AlertingConfig struct {
	WebhookURL     string `json:"webhook_url" yaml:"webhook_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout 返回 webhook 请求超时。
func (a AlertingConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// Load 负责解析指定路径的配置文件，.yaml/.yml 按 YAML 解析，其余按 JSON 解析。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = json.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回全部使用默认值的配置，适合本地开发。
func Default(baseDir string) *Config {
	var cfg Config
	cfg.applyDefaults(baseDir)
	return &cfg
}

// Validate 检查互相依赖的配置项。
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "mysql":
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver)
	}
	if c.Storage.Driver == "mysql" && strings.TrimSpace(c.Storage.DSN) == "" {
		return errors.New("mysql 存储需要配置 dsn")
	}
	switch c.Conversation.Driver {
	case "memory", "sql":
	case "redis":
		if !c.Redis.Enabled() {
			return errors.New("redis 会话日志需要配置 redis.address")
		}
	default:
		return fmt.Errorf("未知的会话日志驱动: %s", c.Conversation.Driver)
	}
	if c.Conversation.Driver == "sql" && c.Storage.Driver == "memory" {
		return errors.New("sql 会话日志需要 sqlite 或 mysql 存储")
	}
	switch c.Activity.Driver {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			return errors.New("redis 任务动态队列需要配置 redis.address")
		}
	case "rabbitmq":
		if strings.TrimSpace(c.Activity.RabbitMQ.URL) == "" {
			return errors.New("rabbitmq 任务动态队列需要配置 url")
		}
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.Activity.Driver)
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.UserHeader == "" {
		c.Server.UserHeader = "X-User-ID"
	}
	if c.Server.ShutdownTimeoutSecs <= 0 {
		c.Server.ShutdownTimeoutSecs = 5
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		c.Storage.DSN = filepath.Join(c.Runtime.DataDir, "lumin.db")
	}

	if c.Conversation.Driver == "" {
		if c.Storage.Driver == "memory" {
			c.Conversation.Driver = "memory"
		} else {
			c.Conversation.Driver = "sql"
		}
	}
	if c.Conversation.KeyPrefix == "" {
		c.Conversation.KeyPrefix = "lumin:conversation:"
	}

	if c.DataSource.CachePrefix == "" {
		c.DataSource.CachePrefix = "lumin:datasources:"
	}

	if c.Activity.Driver == "" {
		c.Activity.Driver = "memory"
	}
	if c.Activity.Workers <= 0 {
		c.Activity.Workers = 1
	}
	if c.Activity.Buffer <= 0 {
		c.Activity.Buffer = 256
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.Anthropic.APIKeyEnv == "" {
		c.LLM.Anthropic.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if c.LLM.Gemini.APIKeyEnv == "" {
		c.LLM.Gemini.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.Retry.MaxAttempts <= 0 {
		c.LLM.Retry.MaxAttempts = 1
	}
	if c.LLM.Python.PythonExecutable == "" {
		c.LLM.Python.PythonExecutable = "python3"
	}
	if c.LLM.Python.WorkingDir == "" {
		c.LLM.Python.WorkingDir = baseDir
	} else if !filepath.IsAbs(c.LLM.Python.WorkingDir) {
		c.LLM.Python.WorkingDir = filepath.Join(baseDir, c.LLM.Python.WorkingDir)
	}

	if c.Workflow.ListLimit <= 0 {
		c.Workflow.ListLimit = 5
	}
	if c.Workflow.TitleMaxLength <= 0 {
		c.Workflow.TitleMaxLength = 50
	}

	if c.Alerting.TimeoutSeconds <= 0 {
		c.Alerting.TimeoutSeconds = 5
	}
}
