package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"winivox/internal/api"
	"winivox/internal/config"
	"winivox/internal/submissions"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var owner string
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Create and manage submissions",
	}
	submitCmd.PersistentFlags().StringVar(&owner, "owner", "", "Owner the submission belongs to (empty addresses all owners where allowed)")

	submitCmd.AddCommand(newSubmitCreateCommand(ctx, &owner))
	submitCmd.AddCommand(newSubmitAddCommand(ctx, &owner))
	submitCmd.AddCommand(newSubmitUploadedCommand(ctx, &owner))
	submitCmd.AddCommand(newSubmitReprocessCommand(ctx, &owner))
	submitCmd.AddCommand(newSubmitCancelCommand(ctx, &owner))
	submitCmd.AddCommand(newSubmitShowCommand(ctx, &owner))
	submitCmd.AddCommand(newSubmitListCommand(ctx, &owner))
	return submitCmd
}

type uploadFlags struct {
	mode        string
	description string
	tags        []string
	cover       string
}

func (f *uploadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.mode, "mode", "m", string(submissions.DefaultMode), "Anonymization mode: OFF, SOFT, MEDIUM or STRONG")
	cmd.Flags().StringVar(&f.description, "description", "", "Uploader description")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "Suggested tag (repeatable)")
	cmd.Flags().StringVar(&f.cover, "cover", "", "Cover image object key in the public bucket")
}

func (f *uploadFlags) details() submissions.UploadDetails {
	return submissions.UploadDetails{
		Mode:          submissions.Mode(f.mode),
		Description:   f.description,
		SuggestedTags: f.tags,
		CoverImageKey: f.cover,
	}
}

func requireOwner(owner *string) (string, error) {
	value := strings.TrimSpace(*owner)
	if value == "" {
		return "", fmt.Errorf("--owner is required")
	}
	return value, nil
}

func newSubmitCreateCommand(ctx *commandContext, owner *string) *cobra.Command {
	var contentType string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "create <filename>",
		Short: "Register a submission and print its upload target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := requireOwner(owner)
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				ticket, err := rt.service.Create(cmd.Context(), ownerID, args[0], contentType)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, ticket)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Submission %s created\n", ticket.Submission.ID)
				fmt.Fprintf(out, "Object key: %s/%s\n", rt.cfg.Storage.PrivateBucket, ticket.ObjectKey)
				if ticket.UploadURL != "" {
					fmt.Fprintf(out, "Upload with %s before %s:\n  %s\n", ticket.UploadMethod, ticket.ExpiresAt, ticket.UploadURL)
				} else {
					fmt.Fprintln(out, "Storage backend does not sign URLs; copy the file to the object key, then run `winivox submit uploaded`.")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "application/octet-stream", "Content type the upload will use")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newSubmitAddCommand(ctx *commandContext, owner *string) *cobra.Command {
	var flags uploadFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "add <audio-file>",
		Short: "Upload a local recording and queue it for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := requireOwner(owner)
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				sub, err := rt.service.AddFile(cmd.Context(), ownerID, path, flags.details())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, sub)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submission %s queued (mode %s)\n", sub.ID, sub.AnonymizationMode)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newSubmitUploadedCommand(ctx *commandContext, owner *string) *cobra.Command {
	var flags uploadFlags
	cmd := &cobra.Command{
		Use:   "uploaded <submission-id>",
		Short: "Mark a created submission as uploaded and queue it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				sub, err := rt.service.MarkUploaded(cmd.Context(), strings.TrimSpace(*owner), args[0], flags.details())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submission %s queued (mode %s)\n", sub.ID, sub.AnonymizationMode)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newSubmitReprocessCommand(ctx *commandContext, owner *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <submission-id>",
		Short: "Reset a submission to the first step and queue it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				sub, err := rt.service.Reprocess(cmd.Context(), strings.TrimSpace(*owner), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submission %s queued for reprocessing\n", sub.ID)
				return nil
			})
		},
	}
}

func newSubmitCancelCommand(ctx *commandContext, owner *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <submission-id>",
		Short: "Delete a submission, its events and its stored audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				sub, err := rt.service.Cancel(cmd.Context(), strings.TrimSpace(*owner), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submission %s cancelled\n", sub.ID)
				return nil
			})
		},
	}
}

func newSubmitShowCommand(ctx *commandContext, owner *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <submission-id>",
		Short: "Show one submission with its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				ownerID := strings.TrimSpace(*owner)
				sub, err := rt.service.Get(cmd.Context(), ownerID, args[0])
				if err != nil {
					return err
				}
				list, err := rt.service.Events(cmd.Context(), ownerID, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, struct {
						Submission api.Submission `json:"submission"`
						Events     []api.Event    `json:"events"`
					}{sub, list})
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprint(out, renderSubmission(sub, colorize))
				if len(list) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderEvents(list, false))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newSubmitListCommand(ctx *commandContext, owner *string) *cobra.Command {
	var statusFlags []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []submissions.Status
			for _, value := range statusFlags {
				status, ok := submissions.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withRuntime(cmd, func(rt *runtime) error {
				items, err := rt.service.List(cmd.Context(), strings.TrimSpace(*owner), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.SubmissionListResponse{Items: items})
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No submissions")
					return nil
				}
				fmt.Fprintln(out, renderSubmissionTable(items, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
