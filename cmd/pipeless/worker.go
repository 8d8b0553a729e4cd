package pipeless

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pipeless-go/pipeless/pkg/config"
	"github.com/pipeless-go/pipeless/pkg/inference"
	"github.com/pipeless-go/pipeless/pkg/plugin"
	"github.com/pipeless-go/pipeless/pkg/system"
	"github.com/pipeless-go/pipeless/pkg/transport"
	"github.com/pipeless-go/pipeless/pkg/userapp"
	"github.com/pipeless-go/pipeless/pkg/worker"
)

func newWorkerCmd() *cobra.Command {
	var appPath string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a Worker process: hook+plugin graph execution against pulled frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			if appPath == "" {
				return fmt.Errorf("worker: --app is required (path to the user-app script)")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := system.NewLogger(cfg.LogLevel, "worker")
			if err := system.InitSentry(system.SentryOptions{}); err != nil {
				system.Fatal(log, system.ExitConfigError, err)
			}
			ctx, cancel := system.SignalContext()
			defer cancel()
			if err := runWorker(ctx, cfg, appPath, log); err != nil {
				system.Fatal(log, system.ExitHookError, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&appPath, "app", "", "path to the user-app script")
	return cmd
}

// runWorker wires a single Worker instance to InputPull, OutputPush, and
// WorkerReadySocket (spec.md §4.1), then runs its per-frame loop.
func runWorker(ctx context.Context, cfg config.Config, appPath string, log zerolog.Logger) error {
	inferenceEnabled := cfg.Worker.Inference.Enabled()
	if err := plugin.CheckInferenceConflict(cfg.Plugins.Dir, cfg.Plugins.OrderList(), inferenceEnabled); err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	pull, err := transport.Dial(ctx, cfg.Input.Address.String(), cfg.Worker.RecvBufferSize, log)
	if err != nil {
		return fmt.Errorf("worker: dial InputPush: %w", err)
	}
	defer pull.Close()

	push, err := transport.DialPair(ctx, cfg.Output.Address.String(), cfg.Output.RecvBufferSize, log)
	if err != nil {
		return fmt.Errorf("worker: dial OutputPush: %w", err)
	}
	defer push.Close()

	readyAddr := fmt.Sprintf("%s:%d", cfg.Input.Address.Host, cfg.Input.Address.WorkerReadyPort())
	ready, err := transport.DialPair(ctx, readyAddr, 1, log)
	if err != nil {
		return fmt.Errorf("worker: dial WorkerReadySocket: %w", err)
	}
	defer ready.Close()

	var session inference.Session
	if inferenceEnabled {
		return fmt.Errorf("worker: an inference model_uri is configured but no inference.Session is wired; " +
			"the inference runtime is an external collaborator (spec.md §1) supplied by a custom build")
	}

	wcfg := worker.Config{
		SkipFrames:   cfg.Worker.SkipFrames,
		Inference:    inference.Config(cfg.Worker.Inference),
		Session:      session,
		PluginsDir:   cfg.Plugins.Dir,
		PluginIDs:    cfg.Plugins.OrderList(),
		OutputEnable: cfg.Output.Video.Enable,
		OneShot:      config.IsFileProtocol(cfg.Input.Video.URI) || config.IsFileProtocol(cfg.Output.Video.URI),
	}

	w := worker.New(wcfg, pull, push, ready, func() (*userapp.App, error) {
		return userapp.Load(appPath)
	}, log)
	return w.Run(ctx)
}
