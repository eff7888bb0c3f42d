// Package cmd implements the command-line interface for fbtrace.
package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fbtools/fbtrace/logger"
	"github.com/fbtools/fbtrace/output"
	"github.com/fbtools/fbtrace/trace"
)

var fromStartFlag bool // --from-start: read the file from the beginning

var followCmd = &cobra.Command{
	Use:   "follow <file|dir>",
	Short: "Tail a growing trace log and render entries as they complete",
	Long: `follow tails a live trace log, feeding each line to the parser and
rendering records as soon as their entry is complete. When given a
directory, it watches for newly created trace files and tails those too.

Stops on SIGINT/SIGTERM, flushing the entry in progress.`,
	Args: cobra.ExactArgs(1),
	Run:  runFollow,
}

func init() {
	followCmd.Flags().BoolVar(&fromStartFlag, "from-start", false,
		"Read existing file content instead of only new lines")
	rootCmd.AddCommand(followCmd)
}

func runFollow(cmd *cobra.Command, args []string) {
	zl := logger.New(verboseFlag)
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out renderer = output.NewTextRenderer(os.Stdout)
	if jsonFlag {
		out = output.NewJSONRenderer(os.Stdout)
	}
	// Tails for several files render into one stream.
	var renderMu sync.Mutex
	render := func(rec trace.Record) {
		renderMu.Lock()
		defer renderMu.Unlock()
		if err := out.Render(rec); err != nil {
			zl.Error("write output", zap.Error(err))
		}
	}

	target := args[0]
	info, err := os.Stat(target)
	if err != nil {
		zl.Fatal("cannot stat target", zap.String("target", target), zap.Error(err))
	}

	var wg sync.WaitGroup
	if !info.IsDir() {
		wg.Add(1)
		go tailFile(ctx, &wg, target, render, zl)
		wg.Wait()
		return
	}

	// Directory mode: tail current trace files and pick up new ones.
	existing, err := gatherTraceFiles(target)
	if err != nil {
		zl.Fatal("cannot read directory", zap.String("dir", target), zap.Error(err))
	}
	for _, file := range existing {
		wg.Add(1)
		go tailFile(ctx, &wg, file, render, zl)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zl.Fatal("cannot create watcher", zap.Error(err))
	}
	defer watcher.Close()
	if err := watcher.Add(target); err != nil {
		zl.Fatal("cannot watch directory", zap.String("dir", target), zap.Error(err))
	}
	zl.Info("watching directory", zap.String("dir", target), zap.Int("files", len(existing)))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				wg.Wait()
				return
			}
			if ev.Op.Has(fsnotify.Create) && isSupportedTraceFile(ev.Name) {
				zl.Info("new trace file", zap.String("file", ev.Name))
				wg.Add(1)
				go tailFile(ctx, &wg, ev.Name, render, zl)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				wg.Wait()
				return
			}
			zl.Warn("watcher error", zap.Error(err))
		}
	}
}

// tailFile follows one file with a dedicated parser, pushing lines as they
// arrive. Lines seen before the first entry header (we may start mid-entry)
// are dropped.
func tailFile(ctx context.Context, wg *sync.WaitGroup, path string, render func(trace.Record), zl *zap.Logger) {
	defer wg.Done()

	cfg := tail.Config{
		Follow: true,
		ReOpen: true,
		Logger: tail.DiscardingLogger,
	}
	if !fromStartFlag {
		cfg.Location = &tail.SeekInfo{Whence: io.SeekEnd}
	}
	t, err := tail.TailFile(path, cfg)
	if err != nil {
		zl.Error("cannot tail file", zap.String("file", path), zap.Error(err))
		return
	}
	defer t.Cleanup()
	zl.Info("tailing", zap.String("file", path))

	p := trace.NewParser()
	p.FreeStatements = freeStatementsFlag
	synced := fromStartFlag // mid-file start: wait for the first header

	flush := func() {
		recs, err := p.Flush()
		if err != nil {
			zl.Warn("incomplete final entry", zap.String("file", path), zap.Error(err))
		}
		for _, rec := range recs {
			render(rec)
		}
	}

	for {
		select {
		case <-ctx.Done():
			t.Stop()
			flush()
			return
		case line, ok := <-t.Lines:
			if !ok {
				flush()
				return
			}
			if line.Err != nil {
				zl.Warn("read error", zap.String("file", path), zap.Error(line.Err))
				continue
			}
			recs, err := p.Push(line.Text)
			if err != nil {
				if synced {
					zl.Warn("malformed entry", zap.String("file", path), zap.Error(err))
				}
				continue
			}
			synced = true
			for _, rec := range recs {
				render(rec)
			}
		}
	}
}
