package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/arloliu/fabric"
	"github.com/arloliu/fabric/internal/admin"
	"github.com/arloliu/fabric/internal/kvutil"
	"github.com/arloliu/fabric/source"
)

var (
	configPath  string
	adminAddr   string
	containerID string
	startRetry  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a task worker",
	Long: `Run a task worker configured from a YAML file.

Partitions are read from the partitions bucket below the configured
partitionPath; manage them with "fabric-task partitions". The admin server
exposes /healthz, /status and /metrics.`,
	Example: `  fabric-task run --config orders.yaml --admin-addr :9090`,
	Args:    cobra.NoArgs,
	RunE:    runWorker,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "worker config file (required)")
	runCmd.Flags().StringVar(&adminAddr, "admin-addr", ":9090", "admin server address, empty to disable")
	runCmd.Flags().StringVar(&containerID, "container-id", "", "fixed container id, overrides the config")
	runCmd.Flags().DurationVar(&startRetry, "start-retry", 2*time.Second, "delay between start attempts while the store is unreachable")
	_ = runCmd.MarkFlagRequired("config")
}

func loadConfig() (fabric.Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fabric.Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := fabric.ParseConfig(data)
	if err != nil {
		return fabric.Config{}, err
	}
	if containerID != "" {
		cfg.ContainerID = containerID
	}
	if cmdFlagChanged("root") {
		cfg.Root = rootNS
	}
	if cfg.PartitionPath == "" {
		return fabric.Config{}, fmt.Errorf("%w: partitionPath is required", fabric.ErrInvalidConfig)
	}

	return cfg, cfg.Validate()
}

func cmdFlagChanged(name string) bool {
	f := rootCmd.PersistentFlags().Lookup(name)
	return f != nil && f.Changed
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nc, js, err := connect()
	if err != nil {
		return err
	}
	defer nc.Close()

	src, err := partitionSource(ctx, js, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mgr, err := fabric.NewTaskManager(&cfg, nc, src,
		fabric.WithLogger(logger),
		fabric.WithMetrics(fabric.NewPrometheusMetrics(reg)),
		fabric.WithMessageHandler(logMessages),
	)
	if err != nil {
		return err
	}

	if err := startWithRetry(ctx, mgr); err != nil {
		return err
	}
	logger.Info("worker started", "task", cfg.TaskID, "container", mgr.ContainerID())

	var srv *http.Server
	if adminAddr != "" {
		srv = admin.NewServer(adminAddr, admin.NewRouter(mgr, reg, logger))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server failed", "error", err)
				stop()
			}
		}()
		logger.Info("admin server listening", "addr", adminAddr)
	}

	<-ctx.Done()
	logger.Info("shutting down", "task", cfg.TaskID)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		errs = append(errs, srv.Shutdown(shutdownCtx))
	}
	errs = append(errs, mgr.Stop(shutdownCtx))

	return errors.Join(errs...)
}

// startWithRetry retries Start while the store is unreachable.
func startWithRetry(ctx context.Context, mgr *fabric.TaskManager) error {
	for {
		err := mgr.Start(ctx)
		if err == nil || !errors.Is(err, fabric.ErrConnectivity) {
			return err
		}
		logger.Warn("store unreachable, retrying start", "error", err, "delay", startRetry)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startRetry):
		}
	}
}

func partitionSource(ctx context.Context, js jetstream.JetStream, cfg fabric.Config) (*source.KV, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
	defer cancel()

	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{Bucket: cfg.KVBuckets.Partitions}, 3)
	if err != nil {
		return nil, fmt.Errorf("partitions bucket: %w", err)
	}

	return source.NewKV(kv, cfg.PartitionPath, logger), nil
}

// logMessages is the message handler of consumer listeners run from the CLI.
func logMessages(_ context.Context, msg jetstream.Msg) error {
	logger.Info("message received", "subject", msg.Subject(), "bytes", len(msg.Data()))
	return nil
}
