// Command manager runs the sync manager: the sync-pair registry, the
// bounded job queue and worker pool, the console control channel, and
// (optionally) the admin HTTP surface.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haldring/syncd/internal/adminhttp"
	"github.com/haldring/syncd/internal/config"
	"github.com/haldring/syncd/internal/consoleauth"
	"github.com/haldring/syncd/internal/dispatch"
	"github.com/haldring/syncd/internal/history"
	"github.com/haldring/syncd/internal/pool"
	"github.com/haldring/syncd/internal/queue"
	"github.com/haldring/syncd/internal/registry"
	"github.com/haldring/syncd/internal/synclog"
)

const dialTimeout = 10 * time.Second

func main() {
	var (
		logFile     string
		configPath  string
		workerCount int
		consolePort int
		queueCap    int
		adminAddr   string
		secretHash  string
		historyPath string
	)

	cmd := &cobra.Command{
		Use:   "manager",
		Short: "Run the sync manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logFile, configPath, workerCount, consolePort, queueCap, adminAddr, secretHash, historyPath)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&logFile, "logfile", "l", "", "path to the general log file (required)")
	flags.StringVarP(&configPath, "config", "c", "", "path to the startup sync-pair config file (required)")
	flags.IntVarP(&workerCount, "workers", "n", 0, "worker pool size (required, positive)")
	flags.IntVarP(&consolePort, "port", "p", 0, "console TCP port (required, positive)")
	flags.IntVarP(&queueCap, "queue-capacity", "b", 0, "bounded queue capacity (required, positive)")
	flags.StringVar(&adminAddr, "admin-addr", "", "optional admin HTTP listen address, e.g. 127.0.0.1:9100")
	flags.StringVar(&secretHash, "secret-hash", "", "optional bcrypt hash gating console AUTH")
	flags.StringVar(&historyPath, "history-db", "", "optional sqlite path for durable job history")
	for _, name := range []string{"logfile", "config", "workers", "port", "queue-capacity"} {
		_ = cmd.MarkFlagRequired(name)
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(logFile, configPath string, workerCount, consolePort, queueCap int, adminAddr, secretHash, historyPath string) error {
	if workerCount <= 0 || consolePort <= 0 || queueCap <= 0 {
		return fmt.Errorf("workers, port and queue-capacity must all be positive")
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	log := synclog.New(f, f)
	log.Infof("manager starting: workers=%d port=%d queue_capacity=%d", workerCount, consolePort, queueCap)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New()
	q := queue.New(queueCap)
	q.WatchContext(ctx)

	var ledger *history.Ledger
	if historyPath != "" {
		ledger, err = history.Open(historyPath)
		if err != nil {
			return fmt.Errorf("open history ledger: %w", err)
		}
		defer ledger.Close()
	}

	var metrics *adminhttp.Metrics
	if adminAddr != "" {
		metrics = adminhttp.NewMetrics(reg, q, workerCount)
	}

	wp := pool.New(q, log, dialTimeout, ledger, metricsOrNil(metrics))
	wp.Start(workerCount)

	var gate dispatch.AuthGate
	if secretHash != "" {
		gate = consoleauth.New(secretHash)
	} else {
		gate = consoleauth.NoAuth()
	}

	disp := dispatch.New(ctx, reg, q, log, gate, dialTimeout)

	if configPath != "" {
		pairs, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		for _, p := range pairs {
			reply := disp.AddPair(p.Source, p.Target)
			log.Infof("startup config: %s", reply)
		}
	}

	consoleLn, err := net.Listen("tcp", fmt.Sprintf(":%d", consolePort))
	if err != nil {
		return fmt.Errorf("listen console port: %w", err)
	}
	log.Infof("console listening on %s", consoleLn.Addr())

	errCh := make(chan error, 2)
	go func() {
		errCh <- disp.Serve(ctx, consoleLn, cancel)
	}()

	if adminAddr != "" {
		admin := adminhttp.New(adminAddr, reg, q, workerCount, ledger, metrics)
		go func() {
			if err := admin.Serve(ctx); err != nil {
				log.Errorf("admin http: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Infof("signal received, shutting down")
		cancel()
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Errorf("console server: %v", err)
		}
		cancel()
	}

	wp.Shutdown()
	log.Infof("manager stopped")
	return nil
}

func metricsOrNil(m *adminhttp.Metrics) pool.MetricsRecorder {
	if m == nil {
		return nil
	}
	return m
}
