package pipeless

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pipeless-go/pipeless/pkg/config"
	"github.com/pipeless-go/pipeless/pkg/input"
	"github.com/pipeless-go/pipeless/pkg/media"
	"github.com/pipeless-go/pipeless/pkg/system"
	"github.com/pipeless-go/pipeless/pkg/transport"
)

func newInputCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "input",
		Short: "Run the Input process: decode a source into RGB frames and fan them out to workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := system.NewLogger(cfg.LogLevel, "input")
			if err := system.InitSentry(system.SentryOptions{}); err != nil {
				system.Fatal(log, system.ExitConfigError, err)
			}
			ctx, cancel := system.SignalContext()
			defer cancel()
			if err := runInput(ctx, cfg, log); err != nil {
				system.Fatal(log, system.ExitPipelineError, err)
			}
			return nil
		},
	}
}

func inputSourceFactory(uri string) input.SourceFactory {
	return func() (input.SampleSource, error) {
		pipelineStr, forcedCaps, _ := media.InputSourceBin(uri)
		return media.NewInputPipeline(pipelineStr, forcedCaps)
	}
}

// runInput wires the Input state machine of pkg/input to its three
// sockets (spec.md §4.1) and runs it to completion or error.
func runInput(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	push, err := transport.Listen(cfg.Input.Address.String(), cfg.Worker.RecvBufferSize, log)
	if err != nil {
		return fmt.Errorf("input: listen InputPush: %w", err)
	}
	defer push.Close()

	readyAddr := fmt.Sprintf("%s:%d", cfg.Input.Address.Host, cfg.Input.Address.WorkerReadyPort())
	ready, err := transport.ListenPair(readyAddr, cfg.Worker.NWorkers, log)
	if err != nil {
		return fmt.Errorf("input: listen WorkerReadySocket: %w", err)
	}
	defer ready.Close()

	metaAddr := fmt.Sprintf("%s:%d", cfg.Output.Address.Host, cfg.Output.Address.InputOutputPort())
	meta, err := transport.DialPair(ctx, metaAddr, 16, log)
	if err != nil {
		return fmt.Errorf("input: dial InputOutputSocket: %w", err)
	}
	defer meta.Close()

	icfg := input.Config{
		NWorkers:       cfg.Worker.NWorkers,
		OneShot:        config.IsFileProtocol(cfg.Input.Video.URI) || config.IsFileProtocol(cfg.Output.Video.URI),
		StartupTimeout: 30 * time.Second,
	}
	in := input.New(icfg, inputSourceFactory(cfg.Input.Video.URI), push, meta, ready, log)
	return in.Run(ctx)
}
