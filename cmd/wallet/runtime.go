package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/AlexZinkM/solwallet/internal/client"
	"github.com/AlexZinkM/solwallet/internal/config"
	"github.com/AlexZinkM/solwallet/internal/crypto"
	"github.com/AlexZinkM/solwallet/internal/ledgersim"
	"github.com/AlexZinkM/solwallet/internal/metrics"
	"github.com/AlexZinkM/solwallet/internal/model"
	"github.com/AlexZinkM/solwallet/internal/nats"
	"github.com/AlexZinkM/solwallet/internal/store"
	"github.com/AlexZinkM/solwallet/internal/submitter"
	"github.com/AlexZinkM/solwallet/internal/vault"
	"github.com/AlexZinkM/solwallet/solana"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

// runtime is the wired wallet for one command invocation.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	session  *solana.Session
	sim      *ledgersim.Ledger
	simFund  uint64
	closers  []func()
}

func newRuntime(ctx context.Context, c *cli.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		simFund:  c.Uint64("sim-balance"),
	}
	m := metrics.NewMetrics(rt.registry)

	var rpcClient client.RPCClient
	if c.Bool("simulate") {
		rt.sim = ledgersim.New(ledgersim.WithFee(cfg.FeeLamports))
		rpcClient = rt.sim
		logger.Info("using simulated ledger")
	} else {
		rpcClient = client.NewRPC(cfg.SolanaRPCURL)
		logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL)
	}

	ledger := client.NewSolanaClient(rpcClient, logger,
		client.WithCommitment(rpc.CommitmentType(cfg.Commitment)),
		client.WithTimeout(cfg.RPCTimeout),
		client.WithRetry(cfg.RPCMaxRetries, cfg.RPCRetryDelay, cfg.RPCMaxRetryDelay),
		client.WithBlockhashValidity(cfg.BlockhashValidity),
		client.WithMissingAccountAsZero(cfg.MissingAccountAsZero),
		client.WithMetrics(m),
	)

	subOpts := []submitter.Option{
		submitter.WithMaxAttempts(cfg.SubmitMaxAttempts),
		submitter.WithRetryBackoff(cfg.RPCRetryDelay, cfg.RPCMaxRetryDelay),
		submitter.WithPollInterval(cfg.PollInterval, cfg.MaxPollInterval),
		submitter.WithValidity(cfg.BlockhashValidity),
		submitter.WithMetrics(m),
	}

	if cfg.DatabaseURL != "" {
		pool, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		subOpts = append(subOpts, submitter.WithStore(store.NewPostgres(pool)))
		logger.Info("connected to database")
	} else {
		subOpts = append(subOpts, submitter.WithStore(store.NewMemory()))
	}

	if cfg.NATSURL != "" {
		publisher, err := nats.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { publisher.Close() })
		subOpts = append(subOpts, submitter.WithNotifier(publisher))
	}

	rt.session = solana.NewSession(vault.New(logger), ledger, logger,
		solana.WithFee(cfg.FeeLamports),
		solana.WithSubmitter(subOpts...),
	)
	return rt, nil
}

// unlock makes a key active: the .cwt keystore when it exists, otherwise
// the Solana CLI keypair file.
func (rt *runtime) unlock() error {
	if _, err := crypto.ReadWalletAddress(rt.cfg.SolanaFilePath); err == nil {
		password, err := config.PromptForPassword("Enter wallet password: ")
		if err != nil {
			return err
		}
		defer clear(password)
		if _, err := rt.session.LoadKeystore(rt.cfg.SolanaFilePath, password); err != nil {
			return fmt.Errorf("failed to open keystore: %w", err)
		}
		return rt.fundSimulated()
	}

	path, err := crypto.DefaultKeypairFile()
	if err != nil {
		return err
	}
	secret, err := crypto.ReadSolanaKeypairFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: no keystore at %s and no keypair at %s, run `wallet generate`",
				model.ErrNoActiveKey, rt.cfg.SolanaFilePath, path)
		}
		return err
	}
	defer clear(secret)
	if _, err := rt.session.Import(secret); err != nil {
		return err
	}
	rt.logger.Info("using Solana CLI keypair", "path", path)
	return rt.fundSimulated()
}

func (rt *runtime) fundSimulated() error {
	if rt.sim == nil {
		return nil
	}
	address, err := rt.session.ActiveAddress()
	if err != nil {
		return err
	}
	rt.sim.Fund(address, rt.simFund)
	return nil
}

func (rt *runtime) close() {
	if rt.session != nil {
		rt.session.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
