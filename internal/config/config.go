package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ozzus/agent-selftest/internal/domain"
)

type Config struct {
	Env      string             `mapstructure:"env"`
	Agent    AgentConfig        `mapstructure:"agent"`
	Kafka    KafkaConfig        `mapstructure:"kafka"`
	Server   ServerConfig       `mapstructure:"server"`
	Backend  BackendConfig      `mapstructure:"backend"`
	SelfTest SelfTestConfig     `mapstructure:"selftest"`
	Checks   []domain.CheckSpec `mapstructure:"checks"`
}

type AgentConfig struct {
	Name  string `mapstructure:"name"`
	Token string `mapstructure:"token"`
}

type KafkaConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Brokers []string    `mapstructure:"brokers"`
	Topics  KafkaTopics `mapstructure:"topics"`
}

type KafkaTopics struct {
	Requests string `mapstructure:"requests"`
	Results  string `mapstructure:"results"`
	Logs     string `mapstructure:"logs"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type BackendConfig struct {
	URL               string        `mapstructure:"url"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type SelfTestConfig struct {
	// ReadyTimeout bounds how long a request waits for the agent loop.
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
	// HostWaitTimeout bounds how long the agent loop stays suspended by a
	// running self test. Negative means wait forever.
	HostWaitTimeout time.Duration `mapstructure:"host_wait_timeout"`
	LoopInterval    time.Duration `mapstructure:"loop_interval"`
}

func Load() (*Config, error) {
	return load(viper.New(), "")
}

// LoadFile reads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("local")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Agent defaults
	v.SetDefault("env", "local")
	v.SetDefault("agent.name", "selftest-agent-01")
	v.SetDefault("agent.token", "")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topics.requests", "selftest-requests")
	v.SetDefault("kafka.topics.results", "selftest-results")
	v.SetDefault("kafka.topics.logs", "agent-logs")

	// Server defaults
	v.SetDefault("server.port", "8081")

	// Backend defaults
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.heartbeat_interval", 30*time.Second)

	// Self-test defaults
	v.SetDefault("selftest.ready_timeout", 10*time.Second)
	v.SetDefault("selftest.host_wait_timeout", 60*time.Second)
	v.SetDefault("selftest.loop_interval", 100*time.Millisecond)
}

func (c *Config) Validate() error {
	if c.Agent.Name == "" {
		return errors.New("config: agent.name is required")
	}
	if c.SelfTest.LoopInterval <= 0 {
		return errors.New("config: selftest.loop_interval must be > 0")
	}
	// The loop must come around well inside the ready timeout or every
	// request times out.
	if c.SelfTest.ReadyTimeout > 0 && c.SelfTest.LoopInterval >= c.SelfTest.ReadyTimeout {
		return fmt.Errorf("config: selftest.loop_interval (%s) must be shorter than selftest.ready_timeout (%s)",
			c.SelfTest.LoopInterval, c.SelfTest.ReadyTimeout)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("config: kafka.brokers is required when kafka is enabled")
	}

	for i, check := range c.Checks {
		if check.Name == "" {
			return fmt.Errorf("config: checks[%d]: name is required", i)
		}
		switch check.Type {
		case domain.CheckTypeHTTP, domain.CheckTypePing, domain.CheckTypeTCP, domain.CheckTypeDNS:
			if check.Target == "" {
				return fmt.Errorf("config: checks[%d] %q: target is required", i, check.Name)
			}
		case domain.CheckTypeKafka, domain.CheckTypeBackend:
		default:
			return fmt.Errorf("config: checks[%d] %q: unsupported type %q", i, check.Name, check.Type)
		}
	}

	return nil
}
