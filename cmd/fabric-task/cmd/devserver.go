package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/spf13/cobra"
)

var (
	devHost     string
	devPort     int
	devStoreDir string
)

var devServerCmd = &cobra.Command{
	Use:   "dev-server",
	Short: "Run a local NATS server with JetStream enabled",
	Long: `Run an in-process NATS server with JetStream for local development.

The client URL is printed as NATS_URL=<url> on stdout once the server accepts
connections. JetStream data lives in a temporary directory removed on exit
unless --store-dir is given.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		storeDir := devStoreDir
		if storeDir == "" {
			dir, err := os.MkdirTemp("", "fabric-nats-")
			if err != nil {
				return fmt.Errorf("store dir: %w", err)
			}
			defer func() { _ = os.RemoveAll(dir) }()
			storeDir = dir
		}

		srv, err := server.NewServer(&server.Options{
			Host:      devHost,
			Port:      devPort,
			JetStream: true,
			StoreDir:  storeDir,
			NoLog:     true,
			NoSigs:    true,
		})
		if err != nil {
			return fmt.Errorf("create NATS server: %w", err)
		}

		go srv.Start()
		if !srv.ReadyForConnections(10 * time.Second) {
			srv.Shutdown()
			return fmt.Errorf("NATS server not ready within 10s")
		}

		fmt.Printf("NATS_URL=%s\n", srv.ClientURL())
		logger.Info("dev server started", "url", srv.ClientURL(), "store", storeDir)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		srv.Shutdown()
		srv.WaitForShutdown()
		logger.Info("dev server stopped")

		return nil
	},
}

func init() {
	devServerCmd.Flags().StringVar(&devHost, "host", "127.0.0.1", "listen host")
	devServerCmd.Flags().IntVar(&devPort, "port", server.DEFAULT_PORT, "listen port, -1 for a random port")
	devServerCmd.Flags().StringVar(&devStoreDir, "store-dir", "", "JetStream store directory (default: temporary)")

	rootCmd.AddCommand(devServerCmd)
}
