package client_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mpchttp "github.com/aretw0/mpcgate/pkg/adapters/http"
	"github.com/aretw0/mpcgate/pkg/client"
	"github.com/aretw0/mpcgate/pkg/coordinator"
	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCoordinator struct {
	mock.Mock
}

func (m *MockCoordinator) AddUserToQueue(ctx context.Context, accessKey string) (domain.AddResult, error) {
	args := m.Called(accessKey)
	return args.Get(0).(domain.AddResult), args.Error(1)
}

func (m *MockCoordinator) GetPosition(ctx context.Context, accessKey string) (domain.Position, error) {
	args := m.Called(accessKey)
	return args.Get(0).(domain.Position), args.Error(1)
}

func (m *MockCoordinator) RequestSharingData(ctx context.Context, req domain.ShareDataRequest) (int, error) {
	args := m.Called(req)
	return args.Int(0), args.Error(1)
}

func (m *MockCoordinator) RequestQueryComputation(ctx context.Context, req domain.QueryComputationRequest) (int, error) {
	args := m.Called(req)
	return args.Int(0), args.Error(1)
}

func (m *MockCoordinator) FinishComputation(ctx context.Context, accessKey, computationKey string) (bool, error) {
	args := m.Called(accessKey, computationKey)
	return args.Bool(0), args.Error(1)
}

type stubRunner struct {
	mu      sync.Mutex
	outputs map[string]any
	errs    map[string]error
	calls   map[string]map[string]any
}

func (r *stubRunner) Run(ctx context.Context, name string, args map[string]any) (domain.ToolResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]map[string]any)
	}
	r.calls[name] = args
	if err := r.errs[name]; err != nil {
		return domain.ToolResult{ExitCode: 1}, err
	}
	return domain.ToolResult{Output: r.outputs[name]}, nil
}

type certParty struct {
	id int
}

func (p certParty) ID() int { return p.id }
func (p certParty) Cert(ctx context.Context) (domain.PartyCert, error) {
	return domain.PartyCert{PartyID: p.id, CertFile: "cert of party"}, nil
}
func (p certParty) ShareData(ctx context.Context, req domain.ShareDataMPCRequest) (domain.ShareDataMPCResponse, error) {
	return domain.ShareDataMPCResponse{DataCommitment: "c"}, nil
}
func (p certParty) QueryComputation(ctx context.Context, req domain.QueryComputationMPCRequest) error {
	return nil
}

func ptr(i int) *int { return &i }

func TestAddUserToQueue_RetriesWhileFull(t *testing.T) {
	coord := new(MockCoordinator)
	coord.On("AddUserToQueue", "k").Return(domain.AddResultQueueFull, nil).Twice()
	coord.On("AddUserToQueue", "k").Return(domain.AddResultAdded, nil).Once()

	var stages []string
	c := client.New(client.Config{PollDuration: time.Millisecond}, coord, nil, nil,
		client.WithProgress(func(p client.Progress) { stages = append(stages, p.Stage) }))

	require.NoError(t, c.AddUserToQueue(context.Background(), "k"))
	coord.AssertExpectations(t)
	assert.Equal(t, []string{client.StageQueueFull, client.StageQueueFull}, stages)
}

func TestAddUserToQueue_AlreadyQueuedCountsAsAdded(t *testing.T) {
	coord := new(MockCoordinator)
	coord.On("AddUserToQueue", "k").Return(domain.AddResultAlreadyQueued, nil).Once()

	c := client.New(client.Config{PollDuration: time.Millisecond}, coord, nil, nil)
	require.NoError(t, c.AddUserToQueue(context.Background(), "k"))
}

func TestWaitForTurn(t *testing.T) {
	coord := new(MockCoordinator)
	coord.On("GetPosition", "k").Return(domain.Position{}, &mpchttp.StatusError{Code: 503}).Once()
	coord.On("GetPosition", "k").Return(domain.Position{Position: ptr(2)}, nil).Once()
	coord.On("GetPosition", "k").Return(domain.Position{Position: ptr(1)}, nil).Once()
	coord.On("GetPosition", "k").Return(domain.Position{Position: ptr(0), ComputationKey: "secret"}, nil).Once()

	var positions []int
	c := client.New(client.Config{PollDuration: time.Millisecond}, coord, nil, nil,
		client.WithProgress(func(p client.Progress) {
			if p.Position != nil {
				positions = append(positions, *p.Position)
			}
		}))

	key, err := c.WaitForTurn(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "secret", key)
	assert.Equal(t, []int{2, 1, 0}, positions)
	coord.AssertExpectations(t)
}

func TestWaitForTurn_Dropped(t *testing.T) {
	coord := new(MockCoordinator)
	coord.On("GetPosition", "k").Return(domain.Position{}, nil).Once()

	c := client.New(client.Config{PollDuration: time.Millisecond}, coord, nil, nil)
	_, err := c.WaitForTurn(context.Background(), "k")
	assert.ErrorIs(t, err, client.ErrDropped)
	assert.ErrorIs(t, err, domain.ErrNotActive)
}

func TestWaitForTurn_ContextCancelled(t *testing.T) {
	coord := new(MockCoordinator)
	coord.On("GetPosition", "k").Return(domain.Position{Position: ptr(3)}, nil)

	c := client.New(client.Config{PollDuration: time.Hour}, coord, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.WaitForTurn(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShare_OverHTTP(t *testing.T) {
	dir := t.TempDir()
	proofFile := filepath.Join(dir, "proof.json")
	require.NoError(t, os.WriteFile(proofFile, []byte(`{"proof":true}`), 0o644))

	parties := []ports.PartyClient{certParty{0}, certParty{1}}
	coord, err := coordinator.New(context.Background(), coordinator.Config{
		PortsStart:   8010,
		PortsEnd:     8018,
		BlockSize:    4,
		MaxQueueSize: 5,
		HeadTimeout:  time.Minute,
	}, coordinator.WithParties(parties...))
	require.NoError(t, err)
	srv := httptest.NewServer(mpchttp.NewHandler(coord))
	defer srv.Close()

	runner := &stubRunner{outputs: map[string]any{
		"prover": map[string]any{"secret_input": "42", "nonce": "ab"},
		"share":  map[string]any{"ok": true},
	}}
	certs := filepath.Join(dir, "certs")
	c := client.New(client.Config{
		PollDuration: time.Millisecond,
		ClientID:     3,
		EthAddress:   "0xfeed",
		CertsPath:    certs,
		PartyHosts:   []string{"a", "b"},
		ProverTool:   "prover",
		ShareTool:    "share",
		ProofFile:    proofFile,
	}, mpchttp.NewCoordinatorClient(srv.URL), parties, runner)

	res, err := c.Share(context.Background(), "voucher")
	require.NoError(t, err)
	assert.Equal(t, 8012, res.ClientPortBase)
	assert.Equal(t, map[string]any{"ok": true}, res.Output)

	args := runner.calls["share"]
	assert.Equal(t, "42", args["secret_input"])
	assert.Equal(t, 8012, args["client_port_base"])
	assert.Equal(t, "a,b", args["party_hosts"])

	for _, name := range []string{"party_0.pem", "party_1.pem"} {
		data, err := os.ReadFile(filepath.Join(certs, name))
		require.NoError(t, err)
		assert.Equal(t, "cert of party", string(data))
	}

	coord.Wait()
	assert.Nil(t, coord.Snapshot().Active)
	shared, err := coord.HasAddressSharedData(context.Background(), "0xfeed")
	require.NoError(t, err)
	assert.True(t, shared)
}

func TestShare_EngineFailureStillFinishes(t *testing.T) {
	dir := t.TempDir()
	proofFile := filepath.Join(dir, "proof.json")
	require.NoError(t, os.WriteFile(proofFile, []byte("{}"), 0o644))

	coord := new(MockCoordinator)
	coord.On("AddUserToQueue", "k").Return(domain.AddResultAdded, nil)
	coord.On("GetPosition", "k").Return(domain.Position{Position: ptr(0), ComputationKey: "ck"}, nil)
	coord.On("RequestSharingData", mock.AnythingOfType("domain.ShareDataRequest")).Return(8020, nil)
	coord.On("FinishComputation", "k", "ck").Return(true, nil).Once()

	engineErr := &domain.EngineError{Tool: "share", ExitCode: 3}
	runner := &stubRunner{
		outputs: map[string]any{"prover": map[string]any{"secret_input": "1"}},
		errs:    map[string]error{"share": engineErr},
	}
	c := client.New(client.Config{
		PollDuration: time.Millisecond,
		CertsPath:    filepath.Join(dir, "certs"),
		ProverTool:   "prover",
		ShareTool:    "share",
		ProofFile:    proofFile,
	}, coord, nil, runner)

	_, err := c.Share(context.Background(), "k")
	assert.True(t, domain.IsEngineFailure(err))
	coord.AssertExpectations(t)
}

func TestShare_ProverWithoutSecret(t *testing.T) {
	runner := &stubRunner{outputs: map[string]any{"prover": "garbage"}}
	c := client.New(client.Config{ProverTool: "prover"}, new(MockCoordinator), nil, runner)

	_, err := c.Share(context.Background(), "k")
	assert.True(t, domain.IsEngineFailure(err))
}

func TestQuery(t *testing.T) {
	coord := new(MockCoordinator)
	coord.On("AddUserToQueue", "fresh").Return(domain.AddResultAdded, nil)
	coord.On("GetPosition", "fresh").Return(domain.Position{Position: ptr(0), ComputationKey: "ck"}, nil)
	coord.On("RequestQueryComputation", domain.QueryComputationRequest{
		ClientID:       9,
		ClientCertFile: "me.pem",
		AccessKey:      "fresh",
		ComputationKey: "ck",
	}).Return(8030, nil)
	coord.On("FinishComputation", "fresh", "ck").Return(true, nil)

	runner := &stubRunner{outputs: map[string]any{"query": map[string]any{"mean": 12.5}}}
	c := client.New(client.Config{
		PollDuration:   time.Millisecond,
		ClientID:       9,
		ClientCertFile: "me.pem",
		CertsPath:      t.TempDir(),
		QueryTool:      "query",
	}, coord, nil, runner, client.WithAccessKeyFunc(func() (string, error) { return "fresh", nil }))

	res, err := c.Query(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 8030, res.ClientPortBase)
	assert.Equal(t, map[string]any{"mean": 12.5}, res.Results)
	assert.Equal(t, 2, runner.calls["query"]["computation_index"])
	coord.AssertExpectations(t)
}

func TestNewAccessKey(t *testing.T) {
	a, err := client.NewAccessKey()
	require.NoError(t, err)
	b, err := client.NewAccessKey()
	require.NoError(t, err)
	assert.Len(t, a, 22)
	assert.NotEqual(t, a, b)
}
