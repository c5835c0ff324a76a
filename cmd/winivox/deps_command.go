package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"winivox/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external audio tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckAudio(cmd.Context(), cfg.Audio.FFmpegBinary, cfg.Audio.FFprobeBinary)
			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				detail := status.Version
				if !status.Available {
					detail = status.Detail
				}
				rows = append(rows, []string{status.Name, status.Command, yesNo(status.Available), yesNo(status.Optional), detail})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Dependency", "Command", "Available", "Optional", "Detail"}, rows, nil))
			fmt.Fprintf(out, "OpenAI configured: %s\n", yesNo(cfg.OpenAIConfigured()))
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required dependencies: %v", missing)
			}
			return nil
		},
	}
}
