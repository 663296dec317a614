package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	UserService UserServiceConfig `mapstructure:"user_service"`
	Business    BusinessConfig    `mapstructure:"business"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port     int   `mapstructure:"port"`
	WorkerID int64 `mapstructure:"worker_id"` // 雪花算法机器 ID，多实例部署时需各不相同
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Notification string `mapstructure:"notification"`
}

// UserServiceConfig 用户服务（身份查询、交易密码校验）
type UserServiceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

type BusinessConfig struct {
	DefaultCurrency string        `mapstructure:"default_currency"`
	RPCTimeout      time.Duration `mapstructure:"rpc_timeout"`
	MaxRetryCount   int           `mapstructure:"max_retry_count"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// LoadConfig 加载配置文件，环境变量 PAYTRANSFER_<SECTION>_<KEY> 可覆盖文件中的值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PAYTRANSFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("kafka.topic.notification", "notification_topic")
	v.SetDefault("user_service.breaker.max_requests", 1)
	v.SetDefault("user_service.breaker.interval", time.Minute)
	v.SetDefault("user_service.breaker.timeout", 30*time.Second)
	v.SetDefault("user_service.breaker.consecutive_failures", 5)
	v.SetDefault("business.default_currency", "INR")
	v.SetDefault("business.rpc_timeout", 5*time.Second)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.lock_ttl", 30*time.Second)
	v.SetDefault("log.level", "info")
}
