package party_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/mpcgate/pkg/adapters/memory"
	"github.com/aretw0/mpcgate/pkg/adapters/process"
	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/party"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRunner answers tool calls from a table.
type stubRunner struct {
	mu    sync.Mutex
	calls map[string][]map[string]any
	fn    func(name string, args map[string]any) (domain.ToolResult, error)
}

func (s *stubRunner) Run(ctx context.Context, name string, args map[string]any) (domain.ToolResult, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string][]map[string]any)
	}
	s.calls[name] = append(s.calls[name], args)
	s.mu.Unlock()
	return s.fn(name, args)
}

func jsonResult(obj map[string]any) domain.ToolResult {
	return domain.ToolResult{Output: obj}
}

func testConfig() party.Config {
	return party.Config{
		PartyID:                1,
		MaxDataProviders:       10,
		PerformCommitmentCheck: true,
		VerifierTool:           "verify",
		ShareTool:              "share",
		QueryTool:              "query",
	}
}

func shareRequest(index int) domain.ShareDataMPCRequest {
	return domain.ShareDataMPCRequest{
		TLSNProof:      `{"proof": true}`,
		MPCPortBase:    8010,
		SecretIndex:    index,
		ClientID:       4,
		ClientPortBase: 8013,
		InputBytes:     4,
	}
}

func TestParty_ShareData(t *testing.T) {
	runner := &stubRunner{fn: func(name string, args map[string]any) (domain.ToolResult, error) {
		switch name {
		case "verify":
			// The proof is staged on disk for the verifier.
			data, err := os.ReadFile(args["proof_file"].(string))
			if err != nil || string(data) != `{"proof": true}` {
				return domain.ToolResult{}, errors.New("proof not staged")
			}
			return jsonResult(map[string]any{"commitment": "0xabc"}), nil
		case "share":
			return jsonResult(map[string]any{"data_commitment": "0xabc"}), nil
		}
		return domain.ToolResult{}, errors.New("unexpected tool")
	}}
	archive := memory.NewArchive()
	p := party.New(testConfig(), runner, party.WithArchive(archive))

	resp, err := p.ShareData(context.Background(), shareRequest(3))
	require.NoError(t, err)
	assert.Equal(t, "0xabc", resp.DataCommitment)

	// Engine arguments
	require.Len(t, runner.calls["share"], 1)
	args := runner.calls["share"][0]
	assert.Equal(t, 1, args["party_id"])
	assert.Equal(t, 8010, args["mpc_port_base"])
	assert.Equal(t, 8013, args["client_port_base"])
	assert.Equal(t, 3, args["secret_index"])

	// Archived
	rec, err := p.Commitment(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", rec.DataCommitment)
	assert.Equal(t, 4, rec.ClientID)
}

func TestParty_ShareData_Rejections(t *testing.T) {
	verifyOK := func(name string, args map[string]any) (domain.ToolResult, error) {
		if name == "verify" {
			return jsonResult(map[string]any{"commitment": "0xabc"}), nil
		}
		return jsonResult(map[string]any{"data_commitment": "0xdef"}), nil
	}

	t.Run("Capacity", func(t *testing.T) {
		runner := &stubRunner{fn: verifyOK}
		p := party.New(testConfig(), runner)

		_, err := p.ShareData(context.Background(), shareRequest(10))
		assert.ErrorIs(t, err, party.ErrTooManyProviders)
		assert.Empty(t, runner.calls, "no tool runs past capacity")
	})

	t.Run("Commitment Mismatch", func(t *testing.T) {
		p := party.New(testConfig(), &stubRunner{fn: verifyOK})

		_, err := p.ShareData(context.Background(), shareRequest(0))
		assert.ErrorIs(t, err, party.ErrCommitmentMismatch)
		assert.True(t, domain.IsEngineFailure(err))
	})

	t.Run("Check Disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.PerformCommitmentCheck = false
		p := party.New(cfg, &stubRunner{fn: verifyOK})

		resp, err := p.ShareData(context.Background(), shareRequest(0))
		require.NoError(t, err)
		assert.Equal(t, "0xdef", resp.DataCommitment)
	})

	t.Run("Verifier Failure", func(t *testing.T) {
		runner := &stubRunner{fn: func(name string, args map[string]any) (domain.ToolResult, error) {
			return domain.ToolResult{}, &domain.EngineError{Tool: name, ExitCode: 2, Stderr: "bad proof"}
		}}
		p := party.New(testConfig(), runner)

		_, err := p.ShareData(context.Background(), shareRequest(0))
		var engineErr *domain.EngineError
		require.True(t, errors.As(err, &engineErr))
		assert.Equal(t, "verify", engineErr.Tool)
		assert.Empty(t, runner.calls["share"])
	})

	t.Run("Malformed Output", func(t *testing.T) {
		runner := &stubRunner{fn: func(name string, args map[string]any) (domain.ToolResult, error) {
			return domain.ToolResult{Stdout: "done", Output: "done"}, nil
		}}
		p := party.New(testConfig(), runner)

		_, err := p.ShareData(context.Background(), shareRequest(0))
		assert.True(t, domain.IsEngineFailure(err))
		assert.Contains(t, err.Error(), `no "commitment" field`)
	})
}

func TestParty_EngineRunsAreSerialized(t *testing.T) {
	var running, peak atomic.Int32
	runner := &stubRunner{fn: func(name string, args map[string]any) (domain.ToolResult, error) {
		if name == "query" {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}
		return domain.ToolResult{}, nil
	}}
	p := party.New(testConfig(), runner)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.QueryComputation(context.Background(), domain.QueryComputationMPCRequest{MPCPortBase: 8010}))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestParty_Cert(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "party_1.pem")
	require.NoError(t, os.WriteFile(certPath, []byte("-----BEGIN CERTIFICATE-----"), 0644))

	cfg := testConfig()
	cfg.CertFile = certPath
	p := party.New(cfg, &stubRunner{})

	cert, err := p.Cert(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cert.PartyID)
	assert.Contains(t, cert.CertFile, "BEGIN CERTIFICATE")

	cfg.CertFile = filepath.Join(dir, "missing.pem")
	_, err = party.New(cfg, &stubRunner{}).Cert(context.Background())
	assert.Error(t, err)
}

func TestParty_WithProcessRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	runner := process.NewRunner()
	runner.Register("verify", "sh", "-c", `test -s "$MPC_ARG_PROOF_FILE" && echo '{"commitment": "0x42"}'`)
	runner.Register("share", "sh", "-c", `echo "player $MPC_ARG_PARTY_ID on $MPC_ARG_MPC_PORT_BASE"; echo '{"data_commitment": "0x42"}'`)
	runner.Register("query", "sh", "-c", `exit 1`)

	p := party.New(testConfig(), runner)

	resp, err := p.ShareData(context.Background(), shareRequest(0))
	require.NoError(t, err)
	assert.Equal(t, "0x42", resp.DataCommitment)

	err = p.QueryComputation(context.Background(), domain.QueryComputationMPCRequest{})
	assert.True(t, domain.IsEngineFailure(err))
}
