package config

import (
	"errors"
	"time"

	"github.com/aretw0/mpcgate/pkg/domain"
)

// Client configures the client CLI.
type Client struct {
	CoordinationServerURL string        `mapstructure:"coordination_server_url"`
	PartyHosts            []string      `mapstructure:"party_hosts"`
	PartyPorts            []int         `mapstructure:"party_ports"`
	PartyWebProtocol      string        `mapstructure:"party_web_protocol"`
	CertsPath             string        `mapstructure:"certs_path"`
	PollDuration          time.Duration `mapstructure:"poll_duration"`
	MaxClientWait         time.Duration `mapstructure:"max_client_wait"`

	ClientID       int    `mapstructure:"client_id"`
	ClientCertFile string `mapstructure:"client_cert_file"`
	EthAddress     string `mapstructure:"eth_address"`

	ToolsFile   string `mapstructure:"tools_file"`
	ProverTool  string `mapstructure:"prover_tool"`
	ShareTool   string `mapstructure:"share_tool"`
	QueryTool   string `mapstructure:"query_tool"`
	ProofFile   string `mapstructure:"proof_file"`
	LogLevel    string `mapstructure:"log_level"`
	ReportStyle string `mapstructure:"report_style"`
}

var clientEnv = map[string]string{
	"COORDINATION_SERVER_URL": "coordination_server_url",
	"PARTY_HOSTS":             "party_hosts",
	"PARTY_PORTS":             "party_ports",
	"PARTY_WEB_PROTOCOL":      "party_web_protocol",
	"CERTS_PATH":              "certs_path",
	"POLL_DURATION":           "poll_duration",
	"MAX_CLIENT_WAIT":         "max_client_wait",
	"CLIENT_ID":               "client_id",
	"CLIENT_CERT_FILE":        "client_cert_file",
	"ETH_ADDRESS":             "eth_address",
	"TOOLS_FILE":              "tools_file",
	"PROVER_TOOL":             "prover_tool",
	"SHARE_TOOL":              "share_tool",
	"QUERY_TOOL":              "query_tool",
	"PROOF_FILE":              "proof_file",
	"LOG_LEVEL":               "log_level",
	"REPORT_STYLE":            "report_style",
}

// LoadClient reads the client configuration.
func LoadClient(path string, lookup LookupFunc) (*Client, error) {
	defaults := map[string]any{
		"coordination_server_url": "http://localhost:8005",
		"party_hosts":             []string{"localhost", "localhost", "localhost"},
		"party_ports":             []int{8006, 8007, 8008},
		"party_web_protocol":      "http",
		"certs_path":              "certs",
		"poll_duration":           domain.DefaultPollDuration,
		"max_client_wait":         1000 * time.Second,
		"client_cert_file":        "certs/client.pem",
		"tools_file":              "tools.yaml",
		"prover_tool":             "notary_prover",
		"share_tool":              "client_share",
		"query_tool":              "client_query",
		"proof_file":              "proof.json",
		"log_level":               "warn",
		"report_style":            "auto",
	}

	var cfg Client
	if err := load(path, defaults, clientEnv, lookup, &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// PartyURLs returns the base URL of every party, in party id order.
func (c *Client) PartyURLs() []string {
	return partyURLs(c.PartyWebProtocol, c.PartyHosts, c.PartyPorts)
}

// Validate checks cross-field constraints.
func (c *Client) Validate() error {
	var errs []error
	if c.CoordinationServerURL == "" {
		errs = append(errs, errors.New("coordination_server_url is empty"))
	}
	if len(c.PartyHosts) != len(c.PartyPorts) {
		errs = append(errs, errors.New("party_hosts and party_ports differ in length"))
	}
	if c.PollDuration <= 0 {
		errs = append(errs, errors.New("poll_duration must be positive"))
	}
	return errors.Join(errs...)
}
