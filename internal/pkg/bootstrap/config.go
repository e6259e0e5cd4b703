// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile 是未设置 CONFIG_FILE 时读取的配置文件
const DefaultConfigFile = "configs/stock-service.yaml"

// Config 是 stock-service 的完整配置。
// 优先级：默认值 < YAML 文件 < Nacos 配置 < 环境变量。
type Config struct {
	App         AppConfig         `yaml:"app"`
	Store       StoreConfig       `yaml:"store"`
	Reservation ReservationConfig `yaml:"reservation"`
	Sweep       SweepConfig       `yaml:"sweep"`
	Infra       InfraConfig       `yaml:"infra"`
	Nacos       NacosConfig       `yaml:"nacos"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
}

type StoreConfig struct {
	Driver string        `yaml:"driver"` // mysql | memory
	MySQL  MySQLConfig   `yaml:"mysql"`
	Seed   []SeedProduct `yaml:"seed"` // 仅 memory 驱动使用
}

type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	AutoMigrate     bool          `yaml:"autoMigrate"`
}

type SeedProduct struct {
	ID            string `yaml:"id"`
	StockQuantity int    `yaml:"stockQuantity"`
}

type ReservationConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	ItemRule string        `yaml:"itemRule"` // CEL 表达式，为空时不校验
}

type SweepConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batchSize"`
	Lock      string        `yaml:"lock"` // redis | zookeeper | none
	LockKey   string        `yaml:"lockKey"`
	LockTTL   time.Duration `yaml:"lockTTL"`
}

// EffectiveLockTTL 返回实际使用的锁过期时间，不短于一个扫描周期
func (s SweepConfig) EffectiveLockTTL() time.Duration {
	if s.LockTTL < s.Interval {
		return s.Interval
	}
	return s.LockTTL
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

type KafkaConfig struct {
	Brokers              string        `yaml:"brokers"`
	GroupID              string        `yaml:"groupId"`
	PaymentOutcomesTopic string        `yaml:"paymentOutcomesTopic"`
	StockEventsTopic     string        `yaml:"stockEventsTopic"`
	MaxAttempts          int           `yaml:"maxAttempts"`
	RetryBackoff         time.Duration `yaml:"retryBackoff"`
}

type RedisConfig struct {
	Addrs    string `yaml:"addrs"`
	Password string `yaml:"password"`
}

type ZookeeperConfig struct {
	Servers        string        `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	DataID      string `yaml:"dataId"`
}

// DefaultConfig 返回内置默认值
func DefaultConfig() *Config {
	return &Config{
		App:   AppConfig{Name: "stock-service", Port: 8080, LogLevel: "info"},
		Store: StoreConfig{Driver: "mysql", MySQL: MySQLConfig{MaxOpenConns: 20, MaxIdleConns: 10, ConnMaxLifetime: time.Hour}},
		Reservation: ReservationConfig{
			TTL: 30 * time.Minute,
		},
		Sweep: SweepConfig{
			Enabled:   true,
			Interval:  2 * time.Minute,
			BatchSize: 100,
			Lock:      "none",
			LockKey:   "stock:sweep:lock",
			LockTTL:   2 * time.Minute,
		},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{SampleRatio: 1},
			Kafka: KafkaConfig{
				GroupID:              "stock-service",
				PaymentOutcomesTopic: "payment-outcomes",
				StockEventsTopic:     "stock-events",
				MaxAttempts:          3,
				RetryBackoff:         200 * time.Millisecond,
			},
			Zookeeper: ZookeeperConfig{SessionTimeout: 10 * time.Second},
		},
		Nacos: NacosConfig{Group: "DEFAULT_GROUP", DataID: "stock-service.yaml"},
	}
}

// LoadConfig 读取 YAML 文件并应用环境变量覆盖。
// path 为空时使用 CONFIG_FILE 或 DefaultConfigFile；默认文件不存在时只使用默认值。
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = getEnv("CONFIG_FILE", DefaultConfigFile)
		_, explicit = os.LookupEnv("CONFIG_FILE")
	}

	cfg := DefaultConfig()
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.MergeYAML(content); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// MergeYAML 把一段 YAML 覆盖到当前配置上，未出现的字段保持不变
func (c *Config) MergeYAML(content []byte) error {
	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("failed to parse yaml config: %w", err)
	}
	return nil
}

// ApplyEnv 用环境变量覆盖连接地址类配置
func (c *Config) ApplyEnv() {
	c.Store.MySQL.DSN = getEnv("MYSQL_DSN", c.Store.MySQL.DSN)
	c.Infra.Kafka.Brokers = getEnv("KAFKA_BROKERS", c.Infra.Kafka.Brokers)
	c.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", c.Infra.Redis.Addrs)
	c.Infra.Redis.Password = getEnv("REDIS_PASSWORD", c.Infra.Redis.Password)
	c.Infra.Zookeeper.Servers = getEnv("ZOOKEEPER_SERVERS", c.Infra.Zookeeper.Servers)
	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	c.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", c.Nacos.ServerAddrs)
	c.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Nacos.Namespace)
	c.Nacos.Group = getEnv("NACOS_GROUP", c.Nacos.Group)
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)
}

// Validate 检查配置的组合是否可用
func (c *Config) Validate() error {
	var problems []string
	switch c.Store.Driver {
	case "mysql":
		if c.Store.MySQL.DSN == "" {
			problems = append(problems, "store.mysql.dsn is required for the mysql driver")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Reservation.TTL <= 0 {
		problems = append(problems, "reservation.ttl must be positive")
	}
	if c.Sweep.Enabled {
		if c.Sweep.Interval <= 0 {
			problems = append(problems, "sweep.interval must be positive")
		}
		switch c.Sweep.Lock {
		case "none":
		case "redis":
			if c.Infra.Redis.Addrs == "" {
				problems = append(problems, "infra.redis.addrs is required for the redis sweep lock")
			}
		case "zookeeper":
			if c.Infra.Zookeeper.Servers == "" {
				problems = append(problems, "infra.zookeeper.servers is required for the zookeeper sweep lock")
			}
		default:
			problems = append(problems, fmt.Sprintf("unknown sweep.lock %q", c.Sweep.Lock))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
