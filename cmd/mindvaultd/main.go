// mindvaultd is the autonomous background agent for a MindVault
// knowledge base. It runs maintenance and analysis tasks against the
// vault on a serial schedule and exposes a local control surface for
// the frontend to poll.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"mindvault/internal/agent"
	"mindvault/internal/config"
	"mindvault/internal/llm"
	"mindvault/internal/logging"
	"mindvault/internal/permissions"
	"mindvault/internal/sandbox"
	"mindvault/internal/server"
	"mindvault/internal/shell"
	"mindvault/internal/store"
)

var (
	configPath string
	listenAddr string
	verbose    bool
	showStatus bool
	stopDaemon bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mindvaultd",
	Short: "MindVault background agent daemon",
	Long: `mindvaultd runs the MindVault autonomous agent: a long-running process
that periodically tags, cross-references, briefs, and recursively learns
over a personal knowledge base, independent of any browser session.

All filesystem and process access is gated by the configured permission
level and confined to the sandbox directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}

		if showStatus {
			return printStatus(cfg.ListenAddr)
		}
		if stopDaemon {
			return postStop(cfg.ListenAddr)
		}
		return runDaemon(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mindvault.yaml", "bootstrap config file")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "addr", "", "control surface address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.Flags().BoolVar(&showStatus, "status", false, "query a running daemon and exit")
	rootCmd.Flags().BoolVar(&stopDaemon, "stop", false, "stop a running daemon and exit")
}

// runDaemon wires every component and blocks until shutdown.
func runDaemon(cfg config.Config) (err error) {
	// A panic escaping the scheduler's isolation is still logged and
	// reported as an error exit rather than a bare crash.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("unhandled panic", zap.Any("panic", r))
			err = fmt.Errorf("unhandled panic: %v", r)
		}
	}()

	db, err := store.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	events := logging.NewEventLogger(logger, db)
	settings := config.NewSettings(db)
	gate := permissions.NewGate(settings)
	fs := sandbox.NewFS(gate, events)
	syncer := sandbox.NewSyncer(fs, db, events, cfg.VaultID)
	runner := shell.NewRunner(gate, events)
	resolver := llm.NewResolver(settings, events)

	env := &agent.Context{
		Config:   cfg,
		Settings: settings,
		Events:   events,
		Notes:    db,
		Status:   db,
		Gate:     gate,
		FS:       fs,
		Syncer:   syncer,
		LLM:      resolver.Resolve,
	}

	scheduler := agent.NewScheduler(env)
	agent.RegisterBuiltinTasks(scheduler, agent.NewLearningTask())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	scheduler.Start(runCtx)

	srv := server.New(server.Deps{
		Addr:        cfg.ListenAddr,
		Scheduler:   scheduler,
		Settings:    settings,
		Events:      db,
		FS:          fs,
		Syncer:      syncer,
		Runner:      runner,
		Gate:        gate,
		Log:         events,
		RequestStop: cancel,
	})

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if settings.GetBool("sync.auto_import") {
		watcher := sandbox.NewWatcher(syncer, events, settings.GetString("sync.dir"))
		g.Go(func() error {
			err := watcher.Run(gctx)
			if err != nil && gctx.Err() == nil {
				// The watcher is best-effort; its failure must not
				// take the daemon down.
				logger.Warn("sync watcher stopped", zap.Error(err))
			}
			return nil
		})
	}

	logger.Info("daemon started",
		zap.String("addr", cfg.ListenAddr),
		zap.String("vault", cfg.VaultID),
		zap.Int("pid", os.Getpid()))

	<-runCtx.Done()
	scheduler.Stop()
	if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
		logger.Warn("shutdown error", zap.Error(werr))
	}
	logger.Info("daemon stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
