package main

import (
	"github.com/spf13/cobra"

	"github.com/hazyhaar/twitchpreview/internal/httpapi"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the enrichment API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			runCtx, stop := signalContext(cmd)
			defer stop()
			return httpapi.New(cfg, httpapi.WithLogger(ctx.logger)).ListenAndServe(runCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
