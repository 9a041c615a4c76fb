// Package cmd implements the fabric-task commands.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/arloliu/fabric/internal/logging"
)

var (
	natsURL  string
	logLevel string
	logJSON  bool
	rootNS   string
	timeout  time.Duration

	logger *logging.SlogLogger
)

var rootCmd = &cobra.Command{
	Use:   "fabric-task",
	Short: "Run and inspect fabric task workers",
	Long: `fabric-task coordinates task workers and service endpoints over NATS
JetStream Key-Value.

Use "fabric-task [command] --help" for more information about a command.`,
	PersistentPreRun: func(*cobra.Command, []string) {
		logger = logging.NewSlogHandler(os.Stderr, logLevel, logJSON)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")
	rootCmd.PersistentFlags().StringVar(&rootNS, "root", "fabric", "registry root namespace")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "timeout of store operations")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(partitionsCmd)
	rootCmd.AddCommand(serviceCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

// connect opens a NATS connection and its JetStream context.
func connect() (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("fabric-task"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", natsURL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
