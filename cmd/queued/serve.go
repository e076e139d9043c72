package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/cuti-queue/internal/accounts"
	"github.com/boshu2/cuti-queue/internal/broadcast"
	"github.com/boshu2/cuti-queue/internal/config"
	"github.com/boshu2/cuti-queue/internal/executor"
	"github.com/boshu2/cuti-queue/internal/httpapi"
	"github.com/boshu2/cuti-queue/internal/queue"
	"github.com/boshu2/cuti-queue/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the queue processor and control-plane HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	overrides := &config.Config{
		StorageDir:      flagStorageDir,
		ExecutorCommand: flagExecutor,
		ListenAddr:      flagListenAddr,
		Verbose:         flagVerbose,
		DryRun:          flagDryRun,
	}
	if flagConfigFile != "" {
		if err := os.Setenv("CUTIQ_CONFIG", flagConfigFile); err != nil {
			return fmt.Errorf("set config override: %w", err)
		}
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	if err := ensureStorageDirs(cfg); err != nil {
		return err
	}

	fileStore := store.New(cfg.StorageDir)
	activeDir := fileStore.ActiveDirPath()
	acctStore := accounts.NewStore(
		fileStore.AccountsRootPath(),
		activeDir,
		fileStore.LoadAccountsIndex,
		fileStore.SaveAccountsIndex,
	)

	hub := broadcast.NewHub()
	publish := func(eventType, promptID string) {
		hub.Publish(broadcast.Message{
			Type:      broadcast.MessageType(eventType),
			PromptID:  promptID,
			Timestamp: time.Now(),
		})
	}

	exec := &executor.Adapter{
		Command:            cfg.ExecutorCommand,
		Timeout:            cfg.ExecutionTimeout(),
		OutputCaptureBytes: cfg.OutputCaptureBytes,
		RateLimitSignals:   cfg.RateLimitSignals,
		RateLimitBackoff:   cfg.RateLimitBackoff(),
		Logger:             log,
	}

	if cfg.DryRun {
		healthy, reason := exec.TestConnection(context.Background())
		if !healthy {
			return fmt.Errorf("dry run: executor unavailable: %s", reason)
		}
		log.Info("dry run: configuration and executor check passed",
			"storage_dir", cfg.StorageDir, "executor", cfg.ExecutorCommand, "executor_version", reason)
		return nil
	}

	metrics := httpapi.NewMetrics()

	procCfg := queue.ProcessorConfig{
		CheckInterval:     cfg.CheckInterval(),
		ExecutionTimeout:  cfg.ExecutionTimeout(),
		MaxRetriesDefault: cfg.MaxRetriesDefault,
		RateLimitBackoff:  cfg.RateLimitBackoff(),
		ShutdownGrace:     cfg.ShutdownGrace(),
		WorkingDir:        cfg.StorageDir,
	}
	proc, err := queue.NewProcessor(procCfg, fileStore, exec, publish, metrics.RecordExecution, log)
	if err != nil {
		return fmt.Errorf("construct queue processor: %w", err)
	}

	server := httpapi.NewServer(proc, acctStore, hub, log, cfg.MaxRetriesDefault, metrics)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server,
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	watchStop := make(chan struct{})
	changed, err := acctStore.WatchActive(log, watchStop)
	if err != nil {
		log.Warn("serve: active-account watch unavailable", "err", err)
	} else {
		go func() {
			for range changed {
				log.Info("serve: active account credentials changed on disk")
				exec.InvalidateCache()
			}
		}()
	}

	procErrCh := make(chan error, 1)
	go func() {
		procErrCh <- proc.Run(ctx)
	}()

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("serve: listening", "addr", cfg.ListenAddr, "storage_dir", cfg.StorageDir)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("serve: signal received, shutting down")
	case runErr = <-procErrCh:
		log.Error("serve: processor exited", "err", runErr)
	case runErr = <-serveErrCh:
		log.Error("serve: http server exited", "err", runErr)
	}

	close(watchStop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("serve: http shutdown", "err", err)
	}

	proc.Stop()

	if runErr != nil {
		return runErr
	}
	return nil
}

func ensureStorageDirs(cfg *config.Config) error {
	fileStore := store.New(cfg.StorageDir)
	for _, dir := range []string{cfg.StorageDir, fileStore.AccountsRootPath(), fileStore.ActiveDirPath()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
