package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"queuemigrate/internal/app"
	"queuemigrate/internal/config"
	"queuemigrate/internal/logger"
	"queuemigrate/internal/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// exitConfig marks configuration and precondition failures, which stop a
// run before any object moves.
const exitConfig = 2

var (
	configFile string
	action     string
)

var rootCmd = &cobra.Command{
	Use:   "queuemigrate",
	Short: "Migrate objects between object stores through a durable queue",
	Long: `Migrate a large set of objects from a source object store to a destination
object store in three resumable steps:

  enumerate  list every object under the source bucket/prefix into a snapshot file
  load       push the snapshot into the queue (refuses a non-empty queue)
  migrate    drain the queue with a pool of workers, requeueing failed objects

Credentials are read from SOURCE_ACCESS_KEY/SOURCE_SECRET_KEY and
S3_ACCESS_KEY/S3_SECRET_KEY.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")
	rootCmd.Flags().StringVarP(&action, "action", "a", "", "action to perform: enumerate, load or migrate (required)")
	_ = rootCmd.MarkFlagRequired("action")

	// Source flags
	rootCmd.Flags().String("src-driver", config.DriverMinIO, "source driver (minio or s3)")
	rootCmd.Flags().String("src-endpoint", "", "source endpoint")
	rootCmd.Flags().String("src-region", "", "source region")
	rootCmd.Flags().Bool("src-secure", true, "use HTTPS for source")
	rootCmd.Flags().String("src-bucket", "", "source bucket")
	rootCmd.Flags().String("prefix", "", "only enumerate objects under this prefix")

	// Destination flags
	rootCmd.Flags().String("dst-driver", config.DriverS3, "destination driver (minio or s3)")
	rootCmd.Flags().String("dst-endpoint", "", "destination endpoint (empty for AWS)")
	rootCmd.Flags().String("dst-region", "eu-west-1", "destination region")
	rootCmd.Flags().Bool("dst-secure", true, "use HTTPS for destination")
	rootCmd.Flags().String("dst-bucket", "", "destination bucket")

	// Queue flags
	rootCmd.Flags().String("queue-backend", config.QueueRedis, "queue backend (redis or sqlite)")
	rootCmd.Flags().String("redis-addr", "127.0.0.1:6379", "redis address")
	rootCmd.Flags().Int("redis-db", 1, "redis database number")
	rootCmd.Flags().String("queue-key", "ids", "queue name")
	rootCmd.Flags().String("queue-db", "./queue.db", "sqlite queue database file")

	// Run flags
	rootCmd.Flags().String("snapshot", "migrate-ids.txt", "snapshot file written by enumerate and read by load")
	rootCmd.Flags().IntP("workers", "n", runtime.NumCPU(), "number of workers (default is number of cpus)")
	rootCmd.Flags().Duration("retry-delay", 0, "pause after requeueing a failed object")
	rootCmd.Flags().Duration("status-interval", 15*time.Second, "how often to report progress")
	rootCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
	rootCmd.Flags().Bool("show-progress", true, "show a progress line on interactive terminals")
	rootCmd.Flags().String("log-level", "info", "log level (debug/info/warn/error)")
	rootCmd.Flags().String("log-file", "", "also append logs to this file")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	migrator := app.New(cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "Sending stop signal, waiting for in-flight transfers...")
			log.Info("Received shutdown signal, gracefully stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	err = migrator.Run(ctx, config.Action(action))

	if closeErr := migrator.Close(); closeErr != nil {
		log.Error("Error closing migrator", zap.Error(closeErr))
	}

	return err
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalid),
		errors.Is(err, app.ErrQueueNotEmpty),
		errors.Is(err, worker.ErrMissingCredentials):
		return exitConfig
	default:
		return 1
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
