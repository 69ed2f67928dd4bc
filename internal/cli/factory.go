package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/aretw0/mpcgate/internal/config"
	mpchttp "github.com/aretw0/mpcgate/pkg/adapters/http"
	"github.com/aretw0/mpcgate/pkg/adapters/loam"
	"github.com/aretw0/mpcgate/pkg/adapters/memory"
	"github.com/aretw0/mpcgate/pkg/adapters/process"
	"github.com/aretw0/mpcgate/pkg/adapters/redis"
	"github.com/aretw0/mpcgate/pkg/client"
	"github.com/aretw0/mpcgate/pkg/coordinator"
	"github.com/aretw0/mpcgate/pkg/observability"
	"github.com/aretw0/mpcgate/pkg/party"
	"github.com/aretw0/mpcgate/pkg/persistence/middleware"
	"github.com/aretw0/mpcgate/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// CoordinatorStack is a coordinator wired to its ledger, parties, metrics and HTTP API.
type CoordinatorStack struct {
	Coordinator *coordinator.Coordinator
	Handler     http.Handler
	Registry    *prometheus.Registry

	closers []func() error
}

// Close releases the ledger connection.
func (s *CoordinatorStack) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// BuildCoordinator wires a coordinator from configuration. A Redis address selects the
// Redis ledger, otherwise contributions are kept in memory.
func BuildCoordinator(ctx context.Context, cfg *config.Coordinator, logger *slog.Logger) (*CoordinatorStack, error) {
	stack := &CoordinatorStack{Registry: prometheus.NewRegistry()}

	var ledger ports.ContributionLedger = memory.NewLedger()
	if cfg.RedisAddr != "" {
		rl := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redis.WithPrefix(cfg.RedisPrefix))
		if err := rl.Ping(ctx); err != nil {
			rl.Close()
			return nil, fmt.Errorf("redis ledger at %s is unreachable: %w", cfg.RedisAddr, err)
		}
		stack.closers = append(stack.closers, rl.Close)
		ledger = rl
		logger.Info("Using Redis contribution ledger", "address", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
	}

	if len(cfg.LedgerKeys) > 0 {
		keys, err := middleware.ParseKeys(cfg.LedgerKeys)
		if err != nil {
			stack.Close()
			return nil, err
		}
		pseudonyms, err := middleware.NewPseudonymMiddleware(keys)
		if err != nil {
			stack.Close()
			return nil, err
		}
		ledger = middleware.Chain(ledger, pseudonyms)
		logger.Info("Contribution ledger stores pseudonyms", "fallback_keys", len(keys.FallbackKeys))
	}

	urls := cfg.PartyURLs()
	parties := make([]ports.PartyClient, 0, len(urls))
	for i, u := range urls {
		parties = append(parties, mpchttp.NewPartyClient(i, u, cfg.PartyAPIKey))
	}

	stack.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(stack.Registry)

	opts := []coordinator.Option{
		coordinator.WithLogger(logger),
		coordinator.WithLedger(ledger),
		coordinator.WithParties(parties...),
		coordinator.WithPolicy(coordinator.Policy{
			ProhibitMultipleContributions: cfg.ProhibitMultipleContributions,
			InputBytes:                    cfg.InputBytes,
		}),
		coordinator.WithHooks(metrics.Hooks()),
		coordinator.WithHooks(observability.LoggingHooks(logger)),
	}
	if cfg.DispatchTimeout > 0 {
		opts = append(opts, coordinator.WithDispatchTimeout(cfg.DispatchTimeout))
	}

	c, err := coordinator.New(ctx, coordinator.Config{
		PortsStart:         cfg.FreePortsStart,
		PortsEnd:           cfg.FreePortsEnd,
		BlockSize:          cfg.PortBlockSize,
		MaxQueueSize:       cfg.MaxQueueSize,
		HeadTimeout:        cfg.HeadTimeout,
		MaxSessionDuration: cfg.MaxSessionDuration,
	}, opts...)
	if err != nil {
		stack.Close()
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}
	stack.Coordinator = c

	handlerOpts := []mpchttp.Option{mpchttp.WithMetricsHandler(observability.Handler(stack.Registry))}
	if cfg.ValidateRequests {
		doc, err := mpchttp.LoadSpec(ctx)
		if err != nil {
			stack.Close()
			return nil, err
		}
		mw, err := mpchttp.ValidateRequests(doc)
		if err != nil {
			stack.Close()
			return nil, err
		}
		handlerOpts = append(handlerOpts, mpchttp.WithRequestValidation(mw))
	}
	stack.Handler = mpchttp.NewHandler(c, handlerOpts...)
	return stack, nil
}

// BuildParty wires a party server from configuration. Every configured tool must be
// registered in the tools file.
func BuildParty(cfg *config.Party, logger *slog.Logger) (*party.Party, http.Handler, error) {
	tools, err := process.LoadTools(cfg.ToolsFile)
	if err != nil {
		return nil, nil, err
	}
	runner := process.NewRunner(process.WithRegistry(tools), process.WithLogger(logger))
	if err := requireTools(runner, cfg.VerifierTool, cfg.ShareTool, cfg.QueryTool); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", cfg.ToolsFile, err)
	}

	var archive ports.CommitmentArchive = memory.NewArchive()
	if cfg.ArchivePath != "" {
		a, err := loam.Open(cfg.ArchivePath)
		if err != nil {
			return nil, nil, err
		}
		archive = a
	}

	p := party.New(party.Config{
		PartyID:                cfg.PartyID,
		MaxDataProviders:       cfg.MaxDataProviders,
		PerformCommitmentCheck: cfg.PerformCommitmentCheck,
		CertFile:               cfg.CertFile,
		VerifierTool:           cfg.VerifierTool,
		ShareTool:              cfg.ShareTool,
		QueryTool:              cfg.QueryTool,
		ToolTimeout:            cfg.ToolTimeout,
	}, runner, party.WithArchive(archive), party.WithLogger(logger))

	return p, mpchttp.NewPartyHandler(p, cfg.APIKey), nil
}

// BuildClient wires the client flows from configuration.
func BuildClient(cfg *config.Client, logger *slog.Logger, opts ...client.Option) (*client.Client, error) {
	tools, err := process.LoadTools(cfg.ToolsFile)
	if err != nil {
		return nil, err
	}
	runner := process.NewRunner(process.WithRegistry(tools), process.WithLogger(logger))

	urls := cfg.PartyURLs()
	parties := make([]ports.PartyClient, 0, len(urls))
	for i, u := range urls {
		parties = append(parties, mpchttp.NewPartyClient(i, u, ""))
	}

	opts = append([]client.Option{client.WithLogger(logger)}, opts...)
	return client.New(client.Config{
		PollDuration:   cfg.PollDuration,
		MaxWait:        cfg.MaxClientWait,
		ClientID:       cfg.ClientID,
		ClientCertFile: cfg.ClientCertFile,
		EthAddress:     cfg.EthAddress,
		CertsPath:      cfg.CertsPath,
		PartyHosts:     cfg.PartyHosts,
		ProverTool:     cfg.ProverTool,
		ShareTool:      cfg.ShareTool,
		QueryTool:      cfg.QueryTool,
		ProofFile:      cfg.ProofFile,
	}, mpchttp.NewCoordinatorClient(cfg.CoordinationServerURL), parties, runner, opts...), nil
}

func requireTools(r *process.Runner, names ...string) error {
	var missing []string
	for _, name := range names {
		if !r.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %v (registered: %v)", process.ErrToolNotRegistered, missing, r.Names())
}
