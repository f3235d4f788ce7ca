package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/bigipctl/bigipctl/pkg/bigip"
	"github.com/bigipctl/bigipctl/pkg/importer"
	"github.com/bigipctl/bigipctl/pkg/logging"
	"github.com/bigipctl/bigipctl/pkg/storage"
)

func newSyncCmd() *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Keep a directory of policy files imported on the device",
		Long: `Imports every policy file (.xml, .plc) in a directory, deriving the
policy name from the file name. With --watch the command keeps running
and re-imports files as they change.`,
		RunE: runSync,
	}

	syncCmd.Flags().String("dir", "", "Directory of policy files (required unless set in config)")
	syncCmd.Flags().String("partition", "", "Device partition receiving the policies")
	syncCmd.Flags().Bool("force", false, "Overwrite device policies that already exist")
	syncCmd.Flags().Bool("watch", false, "Keep watching the directory after the initial sync")
	syncCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while syncing")

	return syncCmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("dir"); v != "" {
		cfg.Sync.Dir = v
	}
	if v, _ := cmd.Flags().GetString("partition"); v != "" {
		cfg.Sync.Partition = v
	}
	if cmd.Flags().Changed("force") {
		cfg.Sync.Force, _ = cmd.Flags().GetBool("force")
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.Sync.MetricsAddr = v
	}
	if cfg.Sync.Dir == "" {
		return fmt.Errorf("no sync directory configured. Set --dir or sync.dir in the config file")
	}

	logger := logging.NewLogger(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	ctx, stop := signalContext()
	defer stop()

	flushTraces, err := setupTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer flushTraces()

	admission, err := loadGuard(ctx, cfg.Guard)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	client, err := bigip.NewClient(bigip.Options{
		Address:    cfg.Device.Address,
		Username:   cfg.Device.Username,
		Password:   cfg.Device.Password,
		TokenAuth:  cfg.Device.TokenAuth,
		SkipVerify: cfg.Device.SkipVerify,
		Timeout:    cfg.Device.Timeout,
		Logger:     logger,
		Metrics:    bigip.NewMetrics(registry),
	})
	if err != nil {
		return err
	}

	im := importer.New(client, importer.Options{
		Poll:         pollConfig(cfg.Import),
		UploadSettle: cfg.Import.UploadSettle,
		Guard:        admission,
		Logger:       logger,
		Metrics:      importer.NewMetrics(registry),
	})

	history := storage.NewMemoryHistoryStore(0)
	syncer, err := importer.NewSyncer(im, history, importer.SyncOptions{
		Dir:       cfg.Sync.Dir,
		Partition: cfg.Sync.Partition,
		Force:     cfg.Sync.Force,
	}, logger)
	if err != nil {
		return err
	}

	if cfg.Sync.MetricsAddr != "" {
		srv := serveMetrics(cfg.Sync.MetricsAddr, registry, logger.Error)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	syncErr := syncer.SyncOnce(ctx)

	if watch, _ := cmd.Flags().GetBool("watch"); watch && ctx.Err() == nil {
		if syncErr != nil {
			logger.Warn("initial sync had failures, watching anyway", "error", syncErr)
		}
		if err := syncer.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		syncErr = nil
	}

	printHistory(ctx, history)
	return syncErr
}

func serveMetrics(addr string, registry *prometheus.Registry, logError func(string, ...any)) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logError("metrics server failed", "error", err)
		}
	}()
	return srv
}

func printHistory(ctx context.Context, history storage.HistoryStore) {
	records, err := history.Recent(ctx, 0)
	if err != nil || len(records) == 0 {
		return
	}
	fmt.Println("Sync summary:")
	for _, record := range records {
		status := record.Action
		if record.Error != "" {
			status = "error: " + record.Error
		} else if !record.Changed {
			status = "unchanged"
		}
		fmt.Printf("  %-30s %s (%.1fs)\n", "/"+record.Partition+"/"+record.Policy, status, record.Duration.Seconds())
	}
}
