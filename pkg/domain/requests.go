package domain

// ShareDataRequest is what a client sends to the coordinator to contribute a secret.
type ShareDataRequest struct {
	EthAddress     string `json:"eth_address"`
	TLSNProof      string `json:"tlsn_proof"`
	ClientID       int    `json:"client_id"`
	ClientCertFile string `json:"client_cert_file"`
	AccessKey      string `json:"access_key"`
	ComputationKey string `json:"computation_key"`
}

// QueryComputationRequest is what a client sends to the coordinator to retrieve a result.
type QueryComputationRequest struct {
	ClientID       int    `json:"client_id"`
	ClientCertFile string `json:"client_cert_file"`
	AccessKey      string `json:"access_key"`
	ComputationKey string `json:"computation_key"`
}

// PartyCert identifies a computation party and carries its certificate in PEM form.
type PartyCert struct {
	PartyID  int    `json:"party_id"`
	CertFile string `json:"cert_file"`
}

// ShareDataMPCRequest is forwarded by the coordinator to every party for one share.
type ShareDataMPCRequest struct {
	TLSNProof      string `json:"tlsn_proof"`
	MPCPortBase    int    `json:"mpc_port_base"`
	SecretIndex    int    `json:"secret_index"`
	ClientID       int    `json:"client_id"`
	ClientPortBase int    `json:"client_port_base"`
	ClientCertFile string `json:"client_cert_file"`
	InputBytes     int    `json:"input_bytes"`
}

// ShareDataMPCResponse carries the commitment the engine computed over the shared input.
type ShareDataMPCResponse struct {
	DataCommitment string `json:"data_commitment"`
}

// QueryComputationMPCRequest is forwarded by the coordinator to every party for one query.
// The result reaches the client out-of-band through the engine.
type QueryComputationMPCRequest struct {
	MPCPortBase    int    `json:"mpc_port_base"`
	ClientID       int    `json:"client_id"`
	ClientPortBase int    `json:"client_port_base"`
	ClientCertFile string `json:"client_cert_file"`
}

// ToolResult is the captured outcome of an external tool invocation.
type ToolResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	// Output is the decoded stdout when it was valid JSON, else the raw string.
	Output any `json:"output,omitempty"`
}

// Field returns a string field of a JSON object printed on stdout.
func (r ToolResult) Field(name string) (string, bool) {
	obj, ok := r.Output.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := obj[name].(string)
	return v, ok
}
