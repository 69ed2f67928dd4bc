package config

import (
	"errors"
	"fmt"
	"time"
)

// Party configures one computation party server.
type Party struct {
	PartyID int    `mapstructure:"party_id"`
	Port    int    `mapstructure:"port"`
	APIKey  string `mapstructure:"party_api_key"`

	NumParties             int  `mapstructure:"num_parties"`
	MaxDataProviders       int  `mapstructure:"max_data_providers"`
	PerformCommitmentCheck bool `mapstructure:"perform_commitment_check"`

	CertFile    string `mapstructure:"cert_file"`
	ToolsFile   string `mapstructure:"tools_file"`
	ArchivePath string `mapstructure:"archive_path"`

	VerifierTool string        `mapstructure:"verifier_tool"`
	ShareTool    string        `mapstructure:"share_tool"`
	QueryTool    string        `mapstructure:"query_tool"`
	ToolTimeout  time.Duration `mapstructure:"tool_timeout"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var partyEnv = map[string]string{
	"PARTY_ID":                 "party_id",
	"PORT":                     "port",
	"PARTY_API_KEY":            "party_api_key",
	"NUM_PARTIES":              "num_parties",
	"MAX_DATA_PROVIDERS":       "max_data_providers",
	"PERFORM_COMMITMENT_CHECK": "perform_commitment_check",
	"CERT_FILE":                "cert_file",
	"TOOLS_FILE":               "tools_file",
	"ARCHIVE_PATH":             "archive_path",
	"VERIFIER_TOOL":            "verifier_tool",
	"SHARE_TOOL":               "share_tool",
	"QUERY_TOOL":               "query_tool",
	"TOOL_TIMEOUT":             "tool_timeout",
	"LOG_LEVEL":                "log_level",
	"LOG_FORMAT":               "log_format",
}

// LoadParty reads the party configuration.
func LoadParty(path string, lookup LookupFunc) (*Party, error) {
	defaults := map[string]any{
		"party_id":                 0,
		"num_parties":              3,
		"max_data_providers":       1000,
		"perform_commitment_check": true,
		"tools_file":               "tools.yaml",
		"archive_path":             "commitments",
		"verifier_tool":            "notary_verifier",
		"share_tool":               "mpc_share",
		"query_tool":               "mpc_query",
		"tool_timeout":             10 * time.Minute,
		"log_level":                "info",
		"log_format":               "text",
	}

	var cfg Party
	if err := load(path, defaults, partyEnv, lookup, &cfg); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = 8006 + cfg.PartyID
	}
	if cfg.CertFile == "" {
		cfg.CertFile = fmt.Sprintf("certs/party_%d.pem", cfg.PartyID)
	}
	return &cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (p *Party) Validate() error {
	var errs []error
	if p.PartyID < 0 || p.PartyID >= p.NumParties {
		errs = append(errs, fmt.Errorf("party_id %d is outside [0, %d)", p.PartyID, p.NumParties))
	}
	if p.MaxDataProviders <= 0 {
		errs = append(errs, errors.New("max_data_providers must be positive"))
	}
	if p.VerifierTool == "" || p.ShareTool == "" || p.QueryTool == "" {
		errs = append(errs, errors.New("verifier_tool, share_tool and query_tool must be set"))
	}
	return errors.Join(errs...)
}
