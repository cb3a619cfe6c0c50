package rabbitmq

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultHost  = "localhost"
	DefaultPort  = 5672
	DefaultQueue = "notification_service_events"
)

// Binding attaches the queue to one topic exchange under each routing key.
type Binding struct {
	Exchange    string   `mapstructure:"exchange"`
	RoutingKeys []string `mapstructure:"routing_keys"`
}

type Config struct {
	// URL wins over the discrete fields when set.
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	VHost    string

	Queue       string
	ConsumerTag string
	Bindings    []Binding

	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	Heartbeat            time.Duration
}

// DefaultBindings is the full event catalog spread over the three domain
// exchanges.
func DefaultBindings() []Binding {
	return []Binding{
		{Exchange: "order_events", RoutingKeys: []string{"order.confirmed", "order.cancelled", "order.delivered"}},
		{Exchange: "payment_events", RoutingKeys: []string{"payment.succeeded", "payment.failed", "payment.refunded"}},
		{Exchange: "shipping_events", RoutingKeys: []string{"shipment.shipped", "shipment.delivered"}},
	}
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.User == "" {
		c.User = "guest"
	}
	if c.Password == "" {
		c.Password = "guest"
	}
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
	if len(c.Bindings) == 0 {
		c.Bindings = DefaultBindings()
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 3
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 600 * time.Second
	}
	return c
}

// Address returns the AMQP URI to dial.
func (c Config) Address() string {
	if c.URL != "" {
		return c.URL
	}
	c = c.withDefaults()
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}
	if c.VHost != "" && c.VHost != "/" {
		u.Path = "/" + c.VHost
	}
	return u.String()
}

// ResolveHost accepts either a bare host or a service-discovery style value
// such as tcp://10.0.0.5:5672 and returns the host part. Empty or
// unparseable values yield def.
func ResolveHost(value, def string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	if !strings.Contains(value, "://") {
		return value
	}
	host := authority(value)
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return def
	}
	return host
}

// ResolvePort accepts a bare port or a tcp://host:port value.
func ResolvePort(value string, def int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	if strings.Contains(value, "://") {
		value = authority(value)
		i := strings.LastIndex(value, ":")
		if i < 0 {
			return def
		}
		value = value[i+1:]
	}
	port, err := strconv.Atoi(strings.TrimRight(value, "/"))
	if err != nil || port <= 0 || port > 65535 {
		return def
	}
	return port
}

// authority strips the scheme and anything from the first path separator.
func authority(value string) string {
	rest := value[strings.Index(value, "://")+3:]
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
