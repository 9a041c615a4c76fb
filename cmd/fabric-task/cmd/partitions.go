package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/arloliu/fabric/internal/kvutil"
	"github.com/arloliu/fabric/source"
	"github.com/arloliu/fabric/types"
)

var (
	partitionsBucket string
	partitionsPath   string
)

var partitionsCmd = &cobra.Command{
	Use:     "partitions",
	Aliases: []string{"p"},
	Short:   "Manage the partitions of a task",
	Long: `Manage the partitions read by "fabric-task run".

Each partition is one key "<path>.<id>" in the partitions bucket holding a
JSON object of string fields.`,
}

var partitionsPutCmd = &cobra.Command{
	Use:     "put <id> [key=value...]",
	Short:   "Create or replace a partition",
	Example: `  fabric-task partitions put --path tasks.orders p1 region=eu shard=7`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseData(args[1:])
		if err != nil {
			return err
		}

		return withPartitions(cmd.Context(), func(ctx context.Context, src *source.KV) error {
			return src.Put(ctx, types.Partition{ID: args[0], Data: data})
		})
	},
}

var partitionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete partitions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPartitions(cmd.Context(), func(ctx context.Context, src *source.KV) error {
			for _, id := range args {
				if err := src.Delete(ctx, id); err != nil {
					return err
				}
			}

			return nil
		})
	},
}

var partitionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List partitions as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPartitions(cmd.Context(), func(ctx context.Context, src *source.KV) error {
			parts, err := src.ListPartitions(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			return enc.Encode(parts)
		})
	},
}

func init() {
	partitionsCmd.PersistentFlags().StringVar(&partitionsBucket, "bucket", "fabric-partitions", "partitions bucket")
	partitionsCmd.PersistentFlags().StringVar(&partitionsPath, "path", "", "partition path of the task (required)")
	_ = partitionsCmd.MarkPersistentFlagRequired("path")

	partitionsCmd.AddCommand(partitionsPutCmd)
	partitionsCmd.AddCommand(partitionsDeleteCmd)
	partitionsCmd.AddCommand(partitionsListCmd)
}

func withPartitions(ctx context.Context, fn func(context.Context, *source.KV) error) error {
	nc, js, err := connect()
	if err != nil {
		return err
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{Bucket: partitionsBucket}, 3)
	if err != nil {
		return fmt.Errorf("partitions bucket: %w", err)
	}

	return fn(ctx, source.NewKV(kv, partitionsPath, logger))
}

// parseData turns key=value arguments into partition data.
func parseData(args []string) (map[string]string, error) {
	data := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid data %q, expected key=value", arg)
		}
		data[key] = value
	}

	return data, nil
}
