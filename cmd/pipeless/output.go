package pipeless

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pipeless-go/pipeless/pkg/config"
	"github.com/pipeless-go/pipeless/pkg/media"
	"github.com/pipeless-go/pipeless/pkg/output"
	"github.com/pipeless-go/pipeless/pkg/system"
	"github.com/pipeless-go/pipeless/pkg/transport"
)

func newOutputCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "output",
		Short: "Run the Output process: build a per-stream encode/mux graph and write frames to the sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := system.NewLogger(cfg.LogLevel, "output")
			if err := system.InitSentry(system.SentryOptions{}); err != nil {
				system.Fatal(log, system.ExitConfigError, err)
			}
			ctx, cancel := system.SignalContext()
			defer cancel()
			if err := runOutput(ctx, cfg, log); err != nil {
				system.Fatal(log, system.ExitPipelineError, err)
			}
			return nil
		},
	}
}

// runOutput wires the Output state machine of pkg/output to OutputPush
// (fan-in recv) and InputOutputSocket (spec.md §4.1, §4.5).
func runOutput(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	pull, err := transport.ListenPair(cfg.Output.Address.String(), cfg.Worker.NWorkers, log)
	if err != nil {
		return fmt.Errorf("output: listen OutputPush: %w", err)
	}
	defer pull.Close()

	metaAddr := fmt.Sprintf("%s:%d", cfg.Output.Address.Host, cfg.Output.Address.InputOutputPort())
	meta, err := transport.ListenPair(metaAddr, 1, log)
	if err != nil {
		return fmt.Errorf("output: listen InputOutputSocket: %w", err)
	}
	defer meta.Close()

	ocfg := output.Config{
		Key:     media.KeyFor(cfg.Output.Video.URI),
		OneShot: config.IsFileProtocol(cfg.Input.Video.URI) || config.IsFileProtocol(cfg.Output.Video.URI),
	}
	o := output.New(ocfg, pull, meta, output.NewGstPipeline, log)
	return o.Run(ctx)
}
