package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Gateways   GatewaysConfig   `mapstructure:"gateways"`
	Processing ProcessingConfig `mapstructure:"processing"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GatewaysConfig 外部协作方网关配置
type GatewaysConfig struct {
	LLM       GatewayConfig `mapstructure:"llm"`
	Transport GatewayConfig `mapstructure:"transport"`
	Functions GatewayConfig `mapstructure:"functions"`
}

// GatewayConfig 单个网关配置
type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProcessingConfig 消息处理配置
type ProcessingConfig struct {
	MessageExpirationWindow time.Duration `mapstructure:"message_expiration_window"`
	MaxFunctionCalls        int           `mapstructure:"max_function_calls"`
	MinEditInterval         time.Duration `mapstructure:"min_edit_interval"`
	MinStreamedChars        int           `mapstructure:"min_streamed_chars"`
	MaxMessageLength        int           `mapstructure:"max_message_length"`
}

// Load 加载配置：本地YAML文件 + 环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("ASSISTANT")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件缺失不是错误，默认值加环境变量也能跑起来
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &config, nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "assistant")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("gateways.llm.base_url", "http://llm-gateway:8081")
	v.SetDefault("gateways.llm.timeout", "120s")
	v.SetDefault("gateways.transport.base_url", "http://transport-gateway:8082")
	v.SetDefault("gateways.transport.timeout", "30s")
	v.SetDefault("gateways.functions.base_url", "http://function-gateway:8083")
	v.SetDefault("gateways.functions.timeout", "60s")

	v.SetDefault("processing.message_expiration_window", "1h")
	v.SetDefault("processing.max_function_calls", 5)
	v.SetDefault("processing.min_edit_interval", "2s")
	v.SetDefault("processing.min_streamed_chars", 50)
	v.SetDefault("processing.max_message_length", 4080)
}

// GetEnv 读取环境变量，缺省时返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt 读取整数环境变量，缺省或非法时返回默认值
func GetEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
