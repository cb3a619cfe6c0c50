package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/notification-service/internal/repository/mongo"
	"github.com/jwalitptl/notification-service/internal/repository/postgres"
	"github.com/jwalitptl/notification-service/internal/service/notification"
	"github.com/jwalitptl/notification-service/internal/worker"
	"github.com/jwalitptl/notification-service/pkg/channel"
	"github.com/jwalitptl/notification-service/pkg/circuitbreaker"
	"github.com/jwalitptl/notification-service/pkg/dedup"
	"github.com/jwalitptl/notification-service/pkg/logger"
	"github.com/jwalitptl/notification-service/pkg/messaging/rabbitmq"
)

const (
	EnvPrefix        = "NOTIFY"
	DefaultMongoPort = 27017
)

type Config struct {
	Service      ServiceConfig      `mapstructure:"service"`
	Log          LogConfig          `mapstructure:"log"`
	Server       ServerConfig       `mapstructure:"server"`
	Consumer     ConsumerConfig     `mapstructure:"consumer"`
	RabbitMQ     RabbitMQConfig     `mapstructure:"rabbitmq"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Channels     ChannelsConfig     `mapstructure:"channels"`
	Dedup        DedupConfig        `mapstructure:"dedup"`
	Notification NotificationConfig `mapstructure:"notification"`
	RetryWorker  RetryWorkerConfig  `mapstructure:"retry_worker"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
}

type ServiceConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type ConsumerConfig struct {
	// HealthPort serves /health and /metrics next to the consumer. Zero disables it.
	HealthPort int `mapstructure:"health_port"`
}

type RabbitMQConfig struct {
	URL                  string             `mapstructure:"url"`
	Host                 string             `mapstructure:"host"`
	Port                 int                `mapstructure:"port"`
	User                 string             `mapstructure:"user"`
	Password             string             `mapstructure:"password"`
	VHost                string             `mapstructure:"vhost"`
	Queue                string             `mapstructure:"queue"`
	ConsumerTag          string             `mapstructure:"consumer_tag"`
	Bindings             []rabbitmq.Binding `mapstructure:"bindings"`
	MaxReconnectAttempts int                `mapstructure:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration      `mapstructure:"reconnect_delay"`
	Heartbeat            time.Duration      `mapstructure:"heartbeat"`
}

type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Name           string        `mapstructure:"name"`
	AuthSource     string        `mapstructure:"auth_source"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
}

type ChannelsConfig struct {
	EmailProvider string           `mapstructure:"email_provider"`
	SMSProvider   string           `mapstructure:"sms_provider"`
	SendTimeout   time.Duration    `mapstructure:"send_timeout"`
	Simulation    SimulationConfig `mapstructure:"simulation"`
	SMTP          SMTPConfig       `mapstructure:"smtp"`
	Postmark      PostmarkConfig   `mapstructure:"postmark"`
	Breaker       BreakerConfig    `mapstructure:"breaker"`
}

type SimulationConfig struct {
	EmailFailureRate float64       `mapstructure:"email_failure_rate"`
	EmailLatency     time.Duration `mapstructure:"email_latency"`
	SMSFailureRate   float64       `mapstructure:"sms_failure_rate"`
	SMSLatency       time.Duration `mapstructure:"sms_latency"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type PostmarkConfig struct {
	ServerToken  string `mapstructure:"server_token"`
	AccountToken string `mapstructure:"account_token"`
	From         string `mapstructure:"from"`
	ReplyTo      string `mapstructure:"reply_to"`
	Tag          string `mapstructure:"tag"`
}

type BreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type DedupConfig struct {
	Backend   string        `mapstructure:"backend"`
	TTL       time.Duration `mapstructure:"ttl"`
	RedisURL  string        `mapstructure:"redis_url"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

type NotificationConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
}

type RetryWorkerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

type JWTConfig struct {
	// Secret enables bearer auth on the API when set.
	Secret string `mapstructure:"secret"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// legacyEnv holds the deployment variables the service has always been
// configured with. When set they win over file and NOTIFY_ values.
type legacyEnv struct {
	RabbitURL      string `envconfig:"RABBITMQ_URL"`
	RabbitHost     string `envconfig:"RABBITMQ_HOST"`
	RabbitPort     string `envconfig:"RABBITMQ_PORT"`
	RabbitUser     string `envconfig:"RABBITMQ_USER"`
	RabbitPassword string `envconfig:"RABBITMQ_PASSWORD"`
	MongoHost      string `envconfig:"MONGODB_HOST"`
	MongoPort      string `envconfig:"MONGODB_PORT"`
	MongoName      string `envconfig:"MONGODB_NAME"`
	MongoUser      string `envconfig:"MONGODB_USER"`
	MongoPassword  string `envconfig:"MONGODB_PASSWORD"`
}

// secrets and optional values have no useful default but still need a key,
// otherwise AutomaticEnv cannot feed them to Unmarshal.
var envOnlyKeys = []string{
	"rabbitmq.url",
	"rabbitmq.vhost",
	"rabbitmq.consumer_tag",
	"storage.postgres.password",
	"storage.mongo.uri",
	"storage.mongo.user",
	"storage.mongo.password",
	"channels.smtp.host",
	"channels.smtp.username",
	"channels.smtp.password",
	"channels.postmark.server_token",
	"channels.postmark.account_token",
	"channels.postmark.reply_to",
	"channels.postmark.tag",
	"dedup.redis_url",
	"jwt.secret",
}

func setDefaults(v *viper.Viper) {
	for _, key := range envOnlyKeys {
		v.SetDefault(key, "")
	}

	v.SetDefault("service.name", "notification-service")
	v.SetDefault("service.version", "v1.0.0")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("consumer.health_port", 8081)

	v.SetDefault("rabbitmq.host", rabbitmq.DefaultHost)
	v.SetDefault("rabbitmq.port", rabbitmq.DefaultPort)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")
	v.SetDefault("rabbitmq.queue", rabbitmq.DefaultQueue)
	v.SetDefault("rabbitmq.max_reconnect_attempts", 3)
	v.SetDefault("rabbitmq.reconnect_delay", 5*time.Second)
	v.SetDefault("rabbitmq.heartbeat", 600*time.Second)

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.user", "postgres")
	v.SetDefault("storage.postgres.name", "notification_db")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.max_open_conns", 25)
	v.SetDefault("storage.postgres.max_idle_conns", 5)
	v.SetDefault("storage.postgres.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("storage.postgres.auto_migrate", true)
	v.SetDefault("storage.mongo.host", "localhost")
	v.SetDefault("storage.mongo.port", DefaultMongoPort)
	v.SetDefault("storage.mongo.name", "notification_db")
	v.SetDefault("storage.mongo.auth_source", "admin")
	v.SetDefault("storage.mongo.connect_timeout", 10*time.Second)
	v.SetDefault("storage.mongo.max_pool_size", 20)
	v.SetDefault("storage.mongo.retry_attempts", 3)
	v.SetDefault("storage.mongo.retry_interval", 2*time.Second)

	v.SetDefault("channels.email_provider", "simulated")
	v.SetDefault("channels.sms_provider", "simulated")
	v.SetDefault("channels.send_timeout", time.Duration(0))
	v.SetDefault("channels.simulation.email_failure_rate", 0.05)
	v.SetDefault("channels.simulation.email_latency", 500*time.Millisecond)
	v.SetDefault("channels.simulation.sms_failure_rate", 0.10)
	v.SetDefault("channels.simulation.sms_latency", 300*time.Millisecond)
	v.SetDefault("channels.smtp.port", 587)
	v.SetDefault("channels.smtp.from", "noreply@eci.com")
	v.SetDefault("channels.postmark.from", "noreply@eci.com")
	v.SetDefault("channels.breaker.max_failures", 5)
	v.SetDefault("channels.breaker.timeout", 30*time.Second)

	v.SetDefault("dedup.backend", "none")
	v.SetDefault("dedup.ttl", 24*time.Hour)
	v.SetDefault("dedup.key_prefix", "notification:dedup:")

	v.SetDefault("notification.max_retries", 3)

	v.SetDefault("retry_worker.enabled", false)
	v.SetDefault("retry_worker.interval", time.Minute)
	v.SetDefault("retry_worker.batch_size", 50)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50.0)
	v.SetDefault("rate_limit.burst", 100)
}

// Load reads configuration in increasing precedence: defaults, the config
// file (optional), NOTIFY_* environment variables, then the legacy
// RABBITMQ_* and MONGODB_* variables. A .env file in the working directory
// is loaded into the environment first. An empty path searches ".",
// "./config" and "/app/config" for config.yml.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var legacy legacyEnv
	if err := envconfig.Process("", &legacy); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.applyLegacy(legacy)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyLegacy(env legacyEnv) {
	if env.RabbitURL != "" {
		c.RabbitMQ.URL = env.RabbitURL
	}
	if env.RabbitHost != "" {
		c.RabbitMQ.Host = rabbitmq.ResolveHost(env.RabbitHost, rabbitmq.DefaultHost)
	}
	if env.RabbitPort != "" {
		c.RabbitMQ.Port = rabbitmq.ResolvePort(env.RabbitPort, rabbitmq.DefaultPort)
	}
	if env.RabbitUser != "" {
		c.RabbitMQ.User = env.RabbitUser
	}
	if env.RabbitPassword != "" {
		c.RabbitMQ.Password = env.RabbitPassword
	}

	if env.MongoHost != "" {
		c.Storage.Mongo.Host = rabbitmq.ResolveHost(env.MongoHost, "localhost")
	}
	if env.MongoPort != "" {
		c.Storage.Mongo.Port = rabbitmq.ResolvePort(env.MongoPort, DefaultMongoPort)
	}
	if env.MongoName != "" {
		c.Storage.Mongo.Name = env.MongoName
	}
	if env.MongoUser != "" {
		c.Storage.Mongo.User = env.MongoUser
	}
	if env.MongoPassword != "" {
		c.Storage.Mongo.Password = env.MongoPassword
	}
}

// Validate rejects settings the processes cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "postgres", "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported value %q", c.Storage.Driver))
	}

	switch c.Channels.EmailProvider {
	case "simulated":
	case "smtp":
		if c.Channels.SMTP.Host == "" {
			errs = append(errs, errors.New("channels.smtp.host is required for the smtp provider"))
		}
	case "postmark":
		if c.Channels.Postmark.ServerToken == "" {
			errs = append(errs, errors.New("channels.postmark.server_token is required for the postmark provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("channels.email_provider: unsupported value %q", c.Channels.EmailProvider))
	}
	if c.Channels.SMSProvider != "simulated" {
		errs = append(errs, fmt.Errorf("channels.sms_provider: unsupported value %q", c.Channels.SMSProvider))
	}
	for name, rate := range map[string]float64{
		"email_failure_rate": c.Channels.Simulation.EmailFailureRate,
		"sms_failure_rate":   c.Channels.Simulation.SMSFailureRate,
	} {
		if rate < 0 || rate > 1 {
			errs = append(errs, fmt.Errorf("channels.simulation.%s must be within [0, 1]", name))
		}
	}

	switch c.Dedup.Backend {
	case "none", "memory":
	case "redis":
		if c.Dedup.RedisURL == "" {
			errs = append(errs, errors.New("dedup.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("dedup.backend: unsupported value %q", c.Dedup.Backend))
	}

	if c.Notification.MaxRetries <= 0 {
		errs = append(errs, errors.New("notification.max_retries must be greater than 0"))
	}
	if c.RabbitMQ.MaxReconnectAttempts <= 0 {
		errs = append(errs, errors.New("rabbitmq.max_reconnect_attempts must be greater than 0"))
	}
	if c.RabbitMQ.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("rabbitmq.reconnect_delay must be greater than 0"))
	}
	if c.RetryWorker.Enabled && (c.RetryWorker.Interval <= 0 || c.RetryWorker.BatchSize <= 0) {
		errs = append(errs, errors.New("retry_worker.interval and retry_worker.batch_size must be greater than 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *LogConfig) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:  logger.ParseLevel(c.Level),
		Format: c.Format,
	}
}

func (c *RabbitMQConfig) ToConsumerConfig() rabbitmq.Config {
	return rabbitmq.Config{
		URL:                  c.URL,
		Host:                 c.Host,
		Port:                 c.Port,
		User:                 c.User,
		Password:             c.Password,
		VHost:                c.VHost,
		Queue:                c.Queue,
		ConsumerTag:          c.ConsumerTag,
		Bindings:             c.Bindings,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		ReconnectDelay:       c.ReconnectDelay,
		Heartbeat:            c.Heartbeat,
	}
}

func (c *PostgresConfig) ToDBConfig() postgres.Config {
	return postgres.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Name:            c.Name,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// ToClientConfig builds the connection URI from the discrete fields unless
// an explicit URI is configured.
func (c *MongoConfig) ToClientConfig() mongo.Config {
	uri := c.URI
	if uri == "" {
		u := url.URL{
			Scheme: "mongodb",
			Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
			Path:   "/",
		}
		if c.User != "" {
			u.User = url.UserPassword(c.User, c.Password)
			if c.AuthSource != "" {
				u.RawQuery = url.Values{"authSource": {c.AuthSource}}.Encode()
			}
		}
		uri = u.String()
	}
	return mongo.Config{
		URI:            uri,
		Database:       c.Name,
		ConnectTimeout: c.ConnectTimeout,
		MaxPoolSize:    c.MaxPoolSize,
		RetryAttempts:  c.RetryAttempts,
		RetryInterval:  c.RetryInterval,
	}
}

func (c *ChannelsConfig) EmailSimulation() channel.SimulatedConfig {
	sim := channel.DefaultEmailSimulation()
	sim.FailureRate = c.Simulation.EmailFailureRate
	sim.Latency = c.Simulation.EmailLatency
	return sim
}

func (c *ChannelsConfig) SMSSimulation() channel.SimulatedConfig {
	sim := channel.DefaultSMSSimulation()
	sim.FailureRate = c.Simulation.SMSFailureRate
	sim.Latency = c.Simulation.SMSLatency
	return sim
}

func (c *SMTPConfig) ToChannelConfig() channel.SMTPConfig {
	return channel.SMTPConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}
}

func (c *PostmarkConfig) ToChannelConfig() channel.PostmarkConfig {
	return channel.PostmarkConfig{
		ServerToken:  c.ServerToken,
		AccountToken: c.AccountToken,
		From:         c.From,
		ReplyTo:      c.ReplyTo,
		Tag:          c.Tag,
	}
}

func (c *BreakerConfig) ToSettings(name string) circuitbreaker.Settings {
	return circuitbreaker.Settings{
		Name:        name,
		MaxFailures: c.MaxFailures,
		Timeout:     c.Timeout,
	}
}

func (c *DedupConfig) ToRedisConfig() dedup.RedisConfig {
	return dedup.RedisConfig{
		URL:       c.RedisURL,
		KeyPrefix: c.KeyPrefix,
		TTL:       c.TTL,
	}
}

func (c *Config) ToServiceConfig() notification.Config {
	return notification.Config{
		MaxRetries:  c.Notification.MaxRetries,
		SendTimeout: c.Channels.SendTimeout,
	}
}

func (c *RetryWorkerConfig) ToSweeperConfig() worker.RetrySweeperConfig {
	return worker.RetrySweeperConfig{
		Interval:  c.Interval,
		BatchSize: c.BatchSize,
	}
}
