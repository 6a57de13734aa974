// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Probe         ProbeConfig         `mapstructure:"probe"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
	Mongo MongoConfig `mapstructure:"mongo"`
}

// MySQLConfig 存储 MySQL 数据库的配置。DSN 为空时不启用 MySQL。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MongoConfig 存储 MongoDB 的配置。URI 为空时不启用 MongoDB。
type MongoConfig struct {
	URI              string `mapstructure:"uri"`
	Database         string `mapstructure:"database"`
	ResponseDatabase string `mapstructure:"response_database"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// AuthConfig 存储运维接口的客户端凭据，client_secret_hash 为 bcrypt 哈希。
type AuthConfig struct {
	ClientID         string `mapstructure:"client_id"`
	ClientSecretHash string `mapstructure:"client_secret_hash"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。Addresses 为空时不建立索引。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时不归档对话记录。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey       string              `mapstructure:"api_key"`
	BaseURL      string              `mapstructure:"base_url"`
	Model        string              `mapstructure:"model"`
	MetricsModel string              `mapstructure:"metrics_model"`
	Generation   LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ProbeConfig 存储探询会话相关的配置。
type ProbeConfig struct {
	SessionTTL     time.Duration     `mapstructure:"session_ttl"`
	HistoryTTL     time.Duration     `mapstructure:"history_ttl"`
	IntentTTL      time.Duration     `mapstructure:"intent_ttl"`
	SurveyCacheTTL time.Duration     `mapstructure:"survey_cache_ttl"`
	Persist        bool              `mapstructure:"persist"`
	PersistMode    string            `mapstructure:"persist_mode"` // direct 或 kafka
	Thresholds     ThresholdConfig   `mapstructure:"thresholds"`
	Prompt         ProbePromptConfig `mapstructure:"prompt"`
}

// ThresholdConfig 是问题未配置阈值时使用的默认值。
type ThresholdConfig struct {
	Quality   int `mapstructure:"quality"`
	Relevance int `mapstructure:"relevance"`
	Gibberish int `mapstructure:"gibberish"`
}

// ProbePromptConfig 允许覆盖系统提示词的基础指令、规则和引导指令。
type ProbePromptConfig struct {
	Base        string `mapstructure:"base"`
	Rules       string `mapstructure:"rules"`
	Redirection string `mapstructure:"redirection"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	c, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *c
}

// Load 读取配置文件并叠加 PROBE_ 前缀的环境变量，例如 PROBE_LLM_API_KEY。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("probe")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.mongo.database", "monet")
	v.SetDefault("database.mongo.response_database", "monet")
	v.SetDefault("kafka.topic", "probe-responses")
	v.SetDefault("kafka.group_id", "monet-probing-consumer")
	v.SetDefault("elasticsearch.index_name", "probe_responses")
	v.SetDefault("minio.bucket_name", "probe-transcripts")
	v.SetDefault("jwt.access_token_expire_hours", 12)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.generation.temperature", 0.7)
	v.SetDefault("probe.session_ttl", time.Hour)
	v.SetDefault("probe.history_ttl", time.Hour)
	v.SetDefault("probe.intent_ttl", 24*time.Hour)
	v.SetDefault("probe.survey_cache_ttl", 24*time.Hour)
	v.SetDefault("probe.persist", false)
	v.SetDefault("probe.persist_mode", "direct")
	v.SetDefault("probe.thresholds.quality", 4)
	v.SetDefault("probe.thresholds.relevance", 4)
	v.SetDefault("probe.thresholds.gibberish", 4)
}
