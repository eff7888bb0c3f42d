// Package cmd implements the command-line interface for fbtrace.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fbtools/fbtrace/config"
	"github.com/fbtools/fbtrace/logger"
	"github.com/fbtools/fbtrace/output"
	"github.com/fbtools/fbtrace/sink"
	"github.com/fbtools/fbtrace/trace"
)

var pumpConfigPath string // --config: pump configuration file

var pumpCmd = &cobra.Command{
	Use:   "pump <files or dirs>",
	Short: "Parse trace logs and ship events to ClickHouse",
	Long: `pump parses the given trace logs and inserts their events into a
ClickHouse table in batches. Connection and batching settings come from a
YAML configuration file:

    clickhouse:
      addr: ["localhost:9000"]
      database: default
      username: default
      password: ""
      table: fbtrace_events
    batch:
      size: 10000
      interval: 5s`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPump,
}

func init() {
	pumpCmd.Flags().StringVarP(&pumpConfigPath, "config", "c", "fbtrace.yaml",
		"Path to the pump configuration file")
	rootCmd.AddCommand(pumpCmd)
}

func runPump(cmd *cobra.Command, args []string) {
	zl := logger.New(verboseFlag)
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(pumpConfigPath)
	if err != nil {
		zl.Fatal("cannot load configuration", zap.Error(err))
	}

	files := collectFiles(args)
	if len(files) == 0 {
		zl.Fatal("no trace files found")
	}

	s, err := sink.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("cannot open sink", zap.Error(err))
	}

	total := 0
	for i, file := range files {
		if ctx.Err() != nil {
			zl.Warn("interrupted", zap.Int("files_left", len(files)-i))
			break
		}
		n, err := pumpFile(ctx, s, file)
		total += n
		if err != nil {
			zl.Error("pump failed", zap.String("file", file), zap.Error(err))
			continue
		}
		zl.Info("pumped file", zap.String("file", file), zap.Int("events", n))
	}

	if err := s.Close(ctx); err != nil {
		zl.Fatal("final flush failed", zap.Error(err))
	}
	zl.Info("done", zap.Int("events", total), zap.Int("files", len(files)))
}

// pumpFile parses one file with a fresh parser and queues each event on the
// sink. Info records are not shipped; every event row embeds the fields the
// infos would contribute in its JSON payload.
func pumpFile(ctx context.Context, s *sink.Sink, file string) (int, error) {
	p := trace.NewParser()
	p.FreeStatements = freeStatementsFlag

	out := make(chan trace.Record, 1024)
	parseErr := make(chan error, 1)
	go func() {
		parseErr <- p.ParseFile(file, out)
		close(out)
	}()

	count := 0
	var addErr error
	for rec := range out {
		ev, ok := rec.(trace.Event)
		if !ok || addErr != nil || ctx.Err() != nil {
			continue // keep draining so the producer can finish
		}
		if addErr = s.Add(ctx, output.NewEventRow(ev)); addErr == nil {
			count++
		}
	}
	if err := <-parseErr; err != nil {
		return count, err
	}
	return count, addErr
}
