package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fastsearch/fastsearch/internal/config"
	"github.com/fastsearch/fastsearch/internal/embedder"
	"github.com/fastsearch/fastsearch/internal/manager"
	"github.com/fastsearch/fastsearch/internal/reranker"
	"github.com/fastsearch/fastsearch/internal/rpc"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(context.Background())
	},
}

func runDaemon(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr, err := newManager(ctx, cfg)
	if err != nil {
		return err
	}

	d, err := rpc.NewDaemon(cfg, mgr, logger)
	if err != nil {
		mgr.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fastsearchd listening", "socket", cfg.Daemon.SocketPath)
		errCh <- d.Run(runCtx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("fastsearchd stopped")
	return nil
}

// newManager builds a slot for every model the config names. Only
// "embedder" and "reranker" are wired to a real loader; unrecognized slot
// names in the config are skipped rather than rejected, so operators can
// stage future slots in config before the code that loads them ships.
func newManager(ctx context.Context, cfg *config.Config) (*manager.Manager, error) {
	configs := make([]manager.SlotConfig, 0, len(cfg.Models))
	for name, mc := range cfg.Models {
		load := loaderFor(name)
		if load == nil {
			continue
		}
		configs = append(configs, manager.SlotConfig{
			Name:             name,
			Policy:           manager.Policy(mc.KeepLoaded),
			IdleTimeout:      time.Duration(mc.IdleTimeoutSeconds) * time.Second,
			MemoryEstimateMB: defaultMemoryEstimateMB(name),
			Load:             load,
		})
	}
	return manager.New(ctx, configs, cfg.Memory.MaxRAMMB, manager.EvictionPolicy(cfg.Memory.EvictionPolicy))
}

func loaderFor(slot string) manager.Loader {
	switch slot {
	case "embedder":
		return func(ctx context.Context) (manager.Loadable, error) {
			return embedder.New(embedder.Config{Provider: embedder.ProviderLocal})
		}
	case "reranker":
		return func(ctx context.Context) (manager.Loadable, error) {
			return reranker.NewLocalReranker(), nil
		}
	default:
		return nil
	}
}

// defaultMemoryEstimateMB is used before a slot has ever loaded, i.e.
// while deciding whether an always-policy slot fits the budget at
// startup; once loaded the resource's own EstimatedMemoryMB is
// authoritative.
func defaultMemoryEstimateMB(slot string) int {
	switch slot {
	case "embedder":
		return 500
	case "reranker":
		return 120
	default:
		return 100
	}
}
