package pipeless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pipeless-go/pipeless/pkg/config"
	"github.com/pipeless-go/pipeless/pkg/system"
)

// startupStagger spaces the co-located components' startup to let each
// one's listening socket come up before the next dials it (spec.md §7,
// SPEC_FULL.md §7: "started 1s apart to stabilize socket startup").
const startupStagger = time.Second

func newAllCmd() *cobra.Command {
	var appPath string

	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run Input, Worker(s) and Output co-located in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			if appPath == "" {
				return fmt.Errorf("all: --app is required (path to the user-app script)")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := system.NewLogger(cfg.LogLevel, "all")
			if err := system.InitSentry(system.SentryOptions{}); err != nil {
				system.Fatal(log, system.ExitConfigError, err)
			}
			ctx, cancel := system.SignalContext()
			defer cancel()
			if err := runAll(ctx, cfg, appPath, log); err != nil {
				system.Fatal(log, system.ExitPipelineError, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&appPath, "app", "", "path to the user-app script")
	return cmd
}

func runAll(ctx context.Context, cfg config.Config, appPath string, log zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runInput(gctx, cfg, log.With().Str("process", "input").Logger())
	})

	g.Go(func() error {
		time.Sleep(startupStagger)
		return runWorkers(gctx, cfg, appPath, log.With().Str("process", "worker").Logger())
	})

	g.Go(func() error {
		time.Sleep(startupStagger)
		return runOutput(gctx, cfg, log.With().Str("process", "output").Logger())
	})

	return g.Wait()
}

// runWorkers runs cfg.Worker.NWorkers worker loops as panic-safe
// goroutines in this process (spec.md §6, SPEC_FULL.md §7), staggered
// so each worker's dials don't all race the same listener at once.
func runWorkers(ctx context.Context, cfg config.Config, appPath string, log zerolog.Logger) error {
	wg := conc.NewWaitGroup()

	var mu sync.Mutex
	var firstErr error
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for i := 0; i < cfg.Worker.NWorkers; i++ {
		delay := time.Duration(i) * startupStagger
		workerLog := log.With().Int("worker_index", i).Logger()
		wg.Go(func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			record(runWorker(ctx, cfg, appPath, workerLog))
		})
	}

	wg.Wait()
	return firstErr
}
