package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aretw0/mpcgate/pkg/domain"
)

// Coordinator configures the coordination server.
type Coordinator struct {
	Port int `mapstructure:"port"`

	PartyHosts       []string `mapstructure:"party_hosts"`
	PartyPorts       []int    `mapstructure:"party_ports"`
	PartyWebProtocol string   `mapstructure:"party_web_protocol"`
	PartyAPIKey      string   `mapstructure:"party_api_key"`

	ProhibitMultipleContributions bool          `mapstructure:"prohibit_multiple_contributions"`
	HeadTimeout                   time.Duration `mapstructure:"user_queue_head_timeout"`
	MaxQueueSize                  int           `mapstructure:"user_queue_size"`
	MaxSessionDuration            time.Duration `mapstructure:"max_session_duration"`
	SweepInterval                 time.Duration `mapstructure:"sweep_interval"`
	DispatchTimeout               time.Duration `mapstructure:"dispatch_timeout"`

	FreePortsStart int `mapstructure:"free_ports_start"`
	FreePortsEnd   int `mapstructure:"free_ports_end"`
	// PortBlockSize defaults to twice the number of parties.
	PortBlockSize int `mapstructure:"port_block_size"`
	InputBytes    int `mapstructure:"input_bytes"`

	// RedisAddr selects the Redis ledger. Empty keeps contributions in memory.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	// LedgerKeys are base64 HMAC keys. When set, addresses and access keys are stored
	// pseudonymized. The first key is active, the others are kept for lookups.
	LedgerKeys []string `mapstructure:"ledger_keys"`

	ValidateRequests bool   `mapstructure:"validate_requests"`
	LogLevel         string `mapstructure:"log_level"`
	LogFormat        string `mapstructure:"log_format"`
}

var coordinatorEnv = map[string]string{
	"PORT":                            "port",
	"PARTY_HOSTS":                     "party_hosts",
	"PARTY_PORTS":                     "party_ports",
	"PARTY_WEB_PROTOCOL":              "party_web_protocol",
	"PARTY_API_KEY":                   "party_api_key",
	"PROHIBIT_MULTIPLE_CONTRIBUTIONS": "prohibit_multiple_contributions",
	"USER_QUEUE_HEAD_TIMEOUT":         "user_queue_head_timeout",
	"USER_QUEUE_SIZE":                 "user_queue_size",
	"MAX_SESSION_DURATION":            "max_session_duration",
	"SWEEP_INTERVAL":                  "sweep_interval",
	"DISPATCH_TIMEOUT":                "dispatch_timeout",
	"FREE_PORTS_START":                "free_ports_start",
	"FREE_PORTS_END":                  "free_ports_end",
	"PORT_BLOCK_SIZE":                 "port_block_size",
	"INPUT_BYTES":                     "input_bytes",
	"REDIS_ADDR":                      "redis_addr",
	"REDIS_PASSWORD":                  "redis_password",
	"REDIS_DB":                        "redis_db",
	"REDIS_PREFIX":                    "redis_prefix",
	"LEDGER_KEYS":                     "ledger_keys",
	"VALIDATE_REQUESTS":               "validate_requests",
	"LOG_LEVEL":                       "log_level",
	"LOG_FORMAT":                      "log_format",
}

// LoadCoordinator reads the coordinator configuration.
func LoadCoordinator(path string, lookup LookupFunc) (*Coordinator, error) {
	defaults := map[string]any{
		"port":                    domain.DefaultCoordPort,
		"party_hosts":             []string{"localhost", "localhost", "localhost"},
		"party_ports":             []int{8006, 8007, 8008},
		"party_web_protocol":      "http",
		"user_queue_head_timeout": domain.DefaultHeadTimeout,
		"user_queue_size":         domain.DefaultMaxQueueSize,
		"sweep_interval":          domain.DefaultSweepInterval,
		"dispatch_timeout":        10 * time.Minute,
		"free_ports_start":        domain.DefaultPortsStart,
		"free_ports_end":          domain.DefaultPortsEnd,
		"input_bytes":             domain.DefaultInputBytes,
		"redis_prefix":            "mpcgate:",
		"log_level":               "info",
		"log_format":              "text",
	}

	var cfg Coordinator
	if err := load(path, defaults, coordinatorEnv, lookup, &cfg); err != nil {
		return nil, err
	}
	if cfg.PortBlockSize == 0 {
		cfg.PortBlockSize = 2 * len(cfg.PartyHosts)
	}
	return &cfg, cfg.Validate()
}

// PartyURLs returns the base URL of every party, in party id order.
func (c *Coordinator) PartyURLs() []string {
	return partyURLs(c.PartyWebProtocol, c.PartyHosts, c.PartyPorts)
}

// Validate checks cross-field constraints.
func (c *Coordinator) Validate() error {
	var errs []error
	if len(c.PartyHosts) == 0 {
		errs = append(errs, errors.New("party_hosts is empty"))
	}
	if len(c.PartyHosts) != len(c.PartyPorts) {
		errs = append(errs, fmt.Errorf("party_hosts has %d entries but party_ports has %d", len(c.PartyHosts), len(c.PartyPorts)))
	}
	if c.FreePortsEnd <= c.FreePortsStart {
		errs = append(errs, fmt.Errorf("free port range [%d, %d) is empty", c.FreePortsStart, c.FreePortsEnd))
	}
	if c.PortBlockSize < 2*len(c.PartyHosts) {
		errs = append(errs, fmt.Errorf("port_block_size %d must be at least twice the number of parties", c.PortBlockSize))
	}
	if c.PortBlockSize > 0 && c.FreePortsEnd-c.FreePortsStart < c.PortBlockSize {
		errs = append(errs, errors.New("free port range cannot hold a single block"))
	}
	if c.MaxQueueSize <= 0 {
		errs = append(errs, errors.New("user_queue_size must be positive"))
	}
	if c.HeadTimeout <= 0 {
		errs = append(errs, errors.New("user_queue_head_timeout must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}
	if c.MaxSessionDuration < 0 {
		errs = append(errs, errors.New("max_session_duration must not be negative"))
	}
	return errors.Join(errs...)
}

func partyURLs(protocol string, hosts []string, ports []int) []string {
	urls := make([]string, 0, len(hosts))
	for i, host := range hosts {
		if i >= len(ports) {
			break
		}
		u := url.URL{Scheme: protocol, Host: fmt.Sprintf("%s:%d", host, ports[i])}
		urls = append(urls, u.String())
	}
	return urls
}
