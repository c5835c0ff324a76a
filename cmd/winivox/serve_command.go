package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"winivox/internal/httpapi"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, err := ctx.openRuntime(signalCtx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			srv, err := httpapi.New(rt.cfg, rt.service, rt.logger)
			if err != nil {
				return err
			}
			if srv == nil {
				return errors.New("api.bind is empty; set it to serve the HTTP API")
			}
			if err := srv.Start(signalCtx); err != nil {
				return err
			}
			defer srv.Stop()
			fmt.Fprintf(cmd.OutOrStdout(), "API listening on %s\n", srv.Addr())

			if !withWorker {
				<-signalCtx.Done()
				return nil
			}
			w, err := newQueueWorker(signalCtx, rt, true)
			if err != nil {
				return err
			}
			return w.Run(signalCtx)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "worker", false, "Also run the queue worker in this process")
	return cmd
}
