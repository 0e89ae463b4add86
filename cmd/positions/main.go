package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "positions",
		Short:        "Concentrated-liquidity position inspector and transaction builder",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "default RPC URL")
	flags.String("rpc-urls", "", "per-chain RPC URLs (comma-separated chainID=url)")
	flags.Uint64("chain-id", 1, "chain id")
	flags.StringSlice("platform", nil, "platform ids (comma-separated), empty means every enabled platform")
	flags.Duration("timeout", 15*time.Second, "timeout of each adapter operation")
	flags.Int("concurrency", 8, "maximum positions valued concurrently")
	flags.Uint64("gas-buffer-percent", 20, "percent added on top of the gas estimate")
	flags.Int("max-retries", 2, "maximum retries of a failed RPC read")
	flags.Duration("retry-backoff", 200*time.Millisecond, "initial retry backoff")
	flags.String("out", "-", "output JSONL path, - for stdout")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	flags.String("metrics-out", "", "write metrics in text format to this path on exit, - for stderr")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newAdaptersCmd(), newPositionCmd(), newPositionsCmd(), newBuildCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
