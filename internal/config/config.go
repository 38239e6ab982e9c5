package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 应用配置结构
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Worker  WorkerConfig  `mapstructure:"worker" yaml:"worker"`
	System  SystemConfig  `mapstructure:"system" yaml:"system"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// EngineConfig 模拟引擎配置
type EngineConfig struct {
	Workers        int `mapstructure:"workers" yaml:"workers"`                 // 单笔交易内资产投影并发数，0 表示 CPU 数
	BatchWorkers   int `mapstructure:"batch_workers" yaml:"batch_workers"`     // 同时运行的情景数
	DefaultPeriods int `mapstructure:"default_periods" yaml:"default_periods"` // 快照未给出期数时使用
}

// WorkerConfig 队列消费者配置
type WorkerConfig struct {
	Queue              string `mapstructure:"queue" yaml:"queue"`
	Concurrency        int    `mapstructure:"concurrency" yaml:"concurrency"`
	PopTimeoutSeconds  int    `mapstructure:"pop_timeout_seconds" yaml:"pop_timeout_seconds"`
	MaxAttempts        int    `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelaySeconds  int    `mapstructure:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	ResultTTLHours     int    `mapstructure:"result_ttl_hours" yaml:"result_ttl_hours"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// PopTimeout 阻塞弹出超时
func (w WorkerConfig) PopTimeout() time.Duration {
	return time.Duration(w.PopTimeoutSeconds) * time.Second
}

// RetryDelay 失败任务重新入队前的延迟
func (w WorkerConfig) RetryDelay() time.Duration {
	return time.Duration(w.RetryDelaySeconds) * time.Second
}

// ResultTTL 运行结果在 Redis 中的保留时间
func (w WorkerConfig) ResultTTL() time.Duration {
	return time.Duration(w.ResultTTLHours) * time.Hour
}

// ShutdownTimeout 优雅关闭的等待时间
func (w WorkerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(w.ShutdownTimeoutSec) * time.Second
}

// SystemConfig 系统配置
type SystemConfig struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogDir   string `mapstructure:"log_dir" yaml:"log_dir"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	Port      int    `mapstructure:"port" yaml:"port"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// Addr host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LoadConfig 从文件加载配置，CLOENGINE_ 前缀的环境变量覆盖文件中的值
func LoadConfig(filePath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filePath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 如 CLOENGINE_REDIS_HOST 覆盖 redis.host
	v.SetEnvPrefix("CLOENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		v.Set("redis.password", password)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &config, nil
}

// LoadConfigFromYAML 不经过 viper 直接解析 yaml，缺失字段使用默认值
func LoadConfigFromYAML(filePath string) (*Config, error) {
	yamlFile, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("engine.workers", d.Engine.Workers)
	v.SetDefault("engine.batch_workers", d.Engine.BatchWorkers)
	v.SetDefault("engine.default_periods", d.Engine.DefaultPeriods)
	v.SetDefault("worker.queue", d.Worker.Queue)
	v.SetDefault("worker.concurrency", d.Worker.Concurrency)
	v.SetDefault("worker.pop_timeout_seconds", d.Worker.PopTimeoutSeconds)
	v.SetDefault("worker.max_attempts", d.Worker.MaxAttempts)
	v.SetDefault("worker.retry_delay_seconds", d.Worker.RetryDelaySeconds)
	v.SetDefault("worker.result_ttl_hours", d.Worker.ResultTTLHours)
	v.SetDefault("worker.shutdown_timeout_seconds", d.Worker.ShutdownTimeoutSec)
	v.SetDefault("system.log_level", d.System.LogLevel)
	v.SetDefault("system.log_dir", d.System.LogDir)
	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// validateConfig 验证配置有效性
func validateConfig(config *Config) error {
	if config.Engine.Workers < 0 {
		return fmt.Errorf("资产投影并发数不能为负")
	}
	if config.Engine.BatchWorkers <= 0 {
		return fmt.Errorf("情景并发数必须大于0")
	}
	if config.Engine.DefaultPeriods <= 0 {
		return fmt.Errorf("默认模拟期数必须大于0")
	}

	if config.Worker.Queue == "" {
		return fmt.Errorf("任务队列名称不能为空")
	}
	if config.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker并发数必须大于0")
	}
	if config.Worker.PopTimeoutSeconds <= 0 {
		return fmt.Errorf("队列弹出超时必须大于0")
	}
	if config.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("最大尝试次数必须大于0")
	}

	if config.Redis.Host == "" {
		return fmt.Errorf("Redis主机不能为空")
	}
	if config.Redis.Port <= 0 || config.Redis.Port > 65535 {
		return fmt.Errorf("无效的Redis端口")
	}

	if config.Metrics.Enabled && config.Metrics.Listen == "" {
		return fmt.Errorf("已启用指标，但监听地址未配置")
	}
	return nil
}

// GetDefaultConfig 获取默认配置（用于生成示例配置）
func GetDefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Workers:        0,
			BatchWorkers:   4,
			DefaultPeriods: 40,
		},
		Worker: WorkerConfig{
			Queue:              "scenarios",
			Concurrency:        2,
			PopTimeoutSeconds:  5,
			MaxAttempts:        3,
			RetryDelaySeconds:  30,
			ResultTTLHours:     24 * 7,
			ShutdownTimeoutSec: 10,
		},
		System: SystemConfig{
			LogLevel: "INFO",
			LogDir:   "./logs",
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			KeyPrefix: "cloengine:",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9102",
			Path:    "/metrics",
		},
	}
}

// SaveConfigToFile 将配置保存到文件，不写出 Redis 密码
func SaveConfigToFile(config *Config, filePath string) error {
	v := viper.New()
	v.SetConfigFile(filePath)

	configMap := map[string]interface{}{
		"engine": map[string]interface{}{
			"workers":         config.Engine.Workers,
			"batch_workers":   config.Engine.BatchWorkers,
			"default_periods": config.Engine.DefaultPeriods,
		},
		"worker": map[string]interface{}{
			"queue":                    config.Worker.Queue,
			"concurrency":              config.Worker.Concurrency,
			"pop_timeout_seconds":      config.Worker.PopTimeoutSeconds,
			"max_attempts":             config.Worker.MaxAttempts,
			"retry_delay_seconds":      config.Worker.RetryDelaySeconds,
			"result_ttl_hours":         config.Worker.ResultTTLHours,
			"shutdown_timeout_seconds": config.Worker.ShutdownTimeoutSec,
		},
		"system": map[string]interface{}{
			"log_level": config.System.LogLevel,
			"log_dir":   config.System.LogDir,
		},
		"redis": map[string]interface{}{
			"host":       config.Redis.Host,
			"port":       config.Redis.Port,
			"db":         config.Redis.DB,
			"key_prefix": config.Redis.KeyPrefix,
		},
		"metrics": map[string]interface{}{
			"enabled": config.Metrics.Enabled,
			"listen":  config.Metrics.Listen,
			"path":    config.Metrics.Path,
		},
	}

	for k, val := range configMap {
		v.Set(k, val)
	}
	return v.WriteConfigAs(filePath)
}
