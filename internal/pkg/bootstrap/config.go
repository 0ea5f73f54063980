// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata" // 容器镜像里可能没有 zoneinfo

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是所有进程共用的配置文件结构（configs/config.yaml）
type Config struct {
	Service ServiceConfig `yaml:"service"`
	App     AppConfig     `yaml:"app"`
	Infra   InfraConfig   `yaml:"infra"`
}

type ServiceConfig struct {
	Name            string        `yaml:"name"`
	Port            int           `yaml:"port"`
	LogLevel        string        `yaml:"log_level"`
	LogPretty       bool          `yaml:"log_pretty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AppConfig struct {
	Timezone      string `yaml:"timezone"`
	AttentionRule string `yaml:"attention_rule"`
	// Store: memory | mysql
	Store    string `yaml:"store"`
	SeedFile string `yaml:"seed_file"`
	// Locker: local | redis | zookeeper
	Locker         string             `yaml:"locker"`
	LockTTL        time.Duration      `yaml:"lock_ttl"`
	EventQueueSize int                `yaml:"event_queue_size"`
	SinkTimeout    time.Duration      `yaml:"sink_timeout"`
	Notification   NotificationConfig `yaml:"notification"`
	Analysis       AnalysisConfig     `yaml:"analysis"`
}

type NotificationConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	// Route: direct 由 API 进程直接调用 Slack；kafka 交给 notifier 进程
	Route string `yaml:"route"`
}

// AnalysisConfig 指向一个 OpenAI 兼容的 chat completions 接口
type AnalysisConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type NacosConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addrs     string `yaml:"addrs"`
	Namespace string `yaml:"namespace"`
	Group     string `yaml:"group"`
}

// MySQLConfig 与 persistence.MySQLConfig 字段一致，可直接类型转换
type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	SlowThreshold   time.Duration `yaml:"slow_threshold"`
	LogSQL          bool          `yaml:"log_sql"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type RedisConfig struct {
	Addrs string `yaml:"addrs"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	LockRoot       string        `yaml:"lock_root"`
}

// DefaultConfig 返回不依赖任何外部组件即可运行的配置
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "dealflow-api",
			Port:            8080,
			LogLevel:        "info",
			ShutdownTimeout: 10 * time.Second,
		},
		App: AppConfig{
			Timezone:       "Asia/Tokyo",
			AttentionRule:  "days_until_due <= 3",
			Store:          "memory",
			Locker:         "local",
			LockTTL:        10 * time.Second,
			EventQueueSize: 256,
			SinkTimeout:    10 * time.Second,
			Notification:   NotificationConfig{Route: "direct"},
			Analysis:       AnalysisConfig{Model: "gpt-4o-mini", Timeout: 30 * time.Second},
		},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{SampleRatio: 1},
			Nacos:  NacosConfig{Addrs: "localhost:8848", Group: "DEFAULT_GROUP"},
			MySQL:  MySQLConfig{Host: "localhost", Port: 3306, User: "root", Database: "dealflow", MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: time.Hour},
			Kafka:  KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "pipeline-events", GroupID: "dealflow-notifier"},
			Redis:  RedisConfig{Addrs: "localhost:6379"},
			Zookeeper: ZookeeperConfig{
				Servers:        []string{"localhost:2181"},
				SessionTimeout: 5 * time.Second,
				LockRoot:       "/dealflow/locks",
			},
		},
	}
}

// LoadConfig 依次应用：默认值 -> 配置文件（path 为空则跳过）-> 环境变量
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量覆盖配置文件，便于在容器中注入密钥
func (c *Config) applyEnv() {
	c.Service.Name = getEnv("SERVICE_NAME", c.Service.Name)
	if port, err := strconv.Atoi(getEnv("SERVICE_PORT", "")); err == nil {
		c.Service.Port = port
	}
	c.Service.LogLevel = getEnv("LOG_LEVEL", c.Service.LogLevel)

	c.App.Store = getEnv("DEALFLOW_STORE", c.App.Store)
	c.App.Locker = getEnv("DEALFLOW_LOCKER", c.App.Locker)
	c.App.Timezone = getEnv("DEALFLOW_TIMEZONE", c.App.Timezone)
	c.App.Notification.SlackWebhookURL = getEnv("SLACK_WEBHOOK_URL", c.App.Notification.SlackWebhookURL)
	c.App.Analysis.Endpoint = getEnv("LLM_ENDPOINT", c.App.Analysis.Endpoint)
	c.App.Analysis.APIKey = getEnv("LLM_API_KEY", c.App.Analysis.APIKey)

	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	c.Infra.Nacos.Addrs = getEnv("NACOS_SERVER_ADDRS", c.Infra.Nacos.Addrs)
	c.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = getEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	c.Infra.MySQL.Host = getEnv("MYSQL_HOST", c.Infra.MySQL.Host)
	c.Infra.MySQL.Password = getEnv("MYSQL_PASSWORD", c.Infra.MySQL.Password)
	c.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", c.Infra.Redis.Addrs)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Infra.Kafka.Brokers = splitList(brokers)
	}
	if servers := getEnv("ZOOKEEPER_SERVERS", ""); servers != "" {
		c.Infra.Zookeeper.Servers = splitList(servers)
	}
}

// Validate 只检查会导致启动后才失败的组合
func (c *Config) Validate() error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return errors.Errorf("invalid service.port %d", c.Service.Port)
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return errors.Wrapf(err, "invalid app.timezone %q", c.App.Timezone)
	}
	switch c.App.Store {
	case "memory", "mysql":
	default:
		return errors.Errorf("unknown app.store %q", c.App.Store)
	}
	switch c.App.Locker {
	case "local", "redis", "zookeeper":
	default:
		return errors.Errorf("unknown app.locker %q", c.App.Locker)
	}
	switch c.App.Notification.Route {
	case "direct", "kafka":
	default:
		return errors.Errorf("unknown app.notification.route %q", c.App.Notification.Route)
	}
	if c.App.Notification.Route == "kafka" && len(c.Infra.Kafka.Brokers) == 0 {
		return errors.New("app.notification.route=kafka requires infra.kafka.brokers")
	}
	return nil
}

// Location 返回业务时区，"今天" 按这个时区计算
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

var currentConfig atomic.Pointer[Config]

// SetCurrentConfig 设置进程级配置，通常在 main 中加载后调用一次
func SetCurrentConfig(c *Config) {
	currentConfig.Store(c)
}

// GetCurrentConfig 返回进程级配置，未设置时返回默认配置
func GetCurrentConfig() *Config {
	if c := currentConfig.Load(); c != nil {
		return c
	}
	return DefaultConfig()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
