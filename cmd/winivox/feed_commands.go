package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"winivox/internal/api"
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "List published stories, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				items, err := rt.service.Feed(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.FeedResponse{Items: items})
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Nothing published yet")
					return nil
				}
				fmt.Fprintln(out, renderFeed(items))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of stories")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var since, from, to string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "events [submission-id]",
		Short: "Show the event log for a submission or a time window",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				var (
					list []api.Event
					err  error
				)
				if len(args) == 1 {
					list, err = rt.service.Events(cmd.Context(), "", args[0])
				} else {
					var start, end time.Time
					start, end, err = eventWindow(since, from, to, time.Now())
					if err != nil {
						return err
					}
					list, err = rt.service.EventsBetween(cmd.Context(), start, end)
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.EventListResponse{Events: list})
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No events")
					return nil
				}
				fmt.Fprintln(out, renderEvents(list, len(args) == 0))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only events newer than this duration (e.g. 24h)")
	cmd.Flags().StringVar(&from, "from", "", "Window start (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "Window end (RFC3339)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// eventWindow resolves the window flags. --since wins over --from.
func eventWindow(since, from, to string, now time.Time) (time.Time, time.Time, error) {
	var start, end time.Time
	if value := strings.TrimSpace(since); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return start, end, fmt.Errorf("invalid --since %q", since)
		}
		start = now.Add(-d)
	} else if value := strings.TrimSpace(from); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return start, end, fmt.Errorf("invalid --from %q: %w", from, err)
		}
		start = parsed
	}
	if value := strings.TrimSpace(to); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return start, end, fmt.Errorf("invalid --to %q: %w", to, err)
		}
		end = parsed
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return start, end, fmt.Errorf("window end must be after its start")
	}
	return start, end, nil
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show submission counts by status and queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				stats, err := rt.service.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				rows := make([][]string, 0, len(stats.Counts)+1)
				for _, status := range statusOrder() {
					rows = append(rows, []string{status, fmt.Sprint(stats.Counts[status])})
				}
				rows = append(rows, []string{"queued", fmt.Sprint(stats.QueueDepth)})
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
