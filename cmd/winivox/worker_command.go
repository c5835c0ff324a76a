package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"winivox/internal/deps"
	"winivox/internal/logging"
	"winivox/internal/notifications"
	"winivox/internal/pipeline"
	"winivox/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued submissions until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, err := ctx.openRuntime(signalCtx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			w, err := newQueueWorker(signalCtx, rt, true)
			if err != nil {
				return err
			}
			if err := w.Run(signalCtx); err != nil {
				if errors.Is(err, worker.ErrLocked) {
					return fmt.Errorf("%w (lock file %s)", err, rt.cfg.LockPath())
				}
				return err
			}
			return nil
		},
	}
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "process <submission-id>",
		Short: "Advance one submission through the pipeline synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer rt.Close()

			w, err := newQueueWorker(cmd.Context(), rt, false)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if err := w.Process(cmd.Context(), id); err != nil {
				return err
			}
			sub, err := rt.service.Get(cmd.Context(), "", id)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, sub)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (step %s)\n", sub.ID, sub.Status, sub.StepName)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the submission as JSON")
	return cmd
}

// newQueueWorker wires the production executor into a worker. The single
// instance lock and the startup backlog requeue only apply when locked is set.
func newQueueWorker(ctx context.Context, rt *runtime, locked bool) (*worker.Worker, error) {
	warnMissingAudioTools(rt)
	executor, err := pipeline.NewFromConfig(ctx, rt.cfg, rt.store, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	opts := worker.Options{
		Queue:          rt.queue,
		Executor:       executor,
		Notifier:       notifications.NewService(rt.cfg),
		Logger:         rt.logger,
		DequeueTimeout: rt.cfg.DequeueTimeout(),
		ErrorPause:     rt.cfg.ErrorPause(),
	}
	if locked {
		opts.LockPath = rt.cfg.LockPath()
		opts.Backlog = rt.store
	}
	return worker.New(opts)
}

func warnMissingAudioTools(rt *runtime) {
	statuses := deps.CheckBinaries(deps.AudioRequirements(rt.cfg.Audio.FFmpegBinary, rt.cfg.Audio.FFprobeBinary))
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		logging.WarnWithContext(rt.logger, "audio tools missing; transforms will copy input unchanged", "dependency_missing",
			logging.String("missing", strings.Join(missing, ", ")),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set audio.ffmpeg_binary"),
			logging.String(logging.FieldImpact, "published audio is not anonymized"),
		)
	}
	if !rt.cfg.OpenAIConfigured() {
		logging.WarnWithContext(rt.logger, "openai api key missing; providers fall back", "provider_unconfigured",
			logging.String(logging.FieldErrorHint, "set openai.api_key or OPENAI_API_KEY"),
			logging.String(logging.FieldImpact, "transcripts empty, moderation approves, metadata uses defaults"),
		)
	}
}
