package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/twitchpreview/enrich"
	"github.com/hazyhaar/twitchpreview/enrich/channel"
	"github.com/hazyhaar/twitchpreview/enrich/dom/htmldom"
)

// offlineResolver reports every channel with the zero status.
type offlineResolver struct{}

func (offlineResolver) Resolve(context.Context, string) channel.Status { return channel.Status{} }

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var (
		parent  string
		offline bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "render [FILE]",
		Short: "Enrich an HTML file and print the result",
		Long:  "Reads HTML from FILE (or stdin when FILE is \"-\" or omitted), paints previews for every channel embed, waits for their status and prints the document.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			doc, err := htmldom.Parse(in)
			if err != nil {
				return fmt.Errorf("render: parse: %w", err)
			}

			opts := []enrich.Option{enrich.WithLogger(ctx.logger)}
			if parent != "" {
				opts = append(opts, enrich.WithPlayerParent(parent))
			}
			if offline {
				opts = append(opts, enrich.WithResolver(offlineResolver{}))
			}
			e := enrich.New(cfg, opts...)

			runCtx, cancel := context.WithTimeout(cmd.Context(), cfg.Enrich.MaxSettle+cfg.Status.Timeout+5*cfg.Enrich.Settle)
			defer cancel()

			if err := e.Activate(runCtx, doc); err != nil {
				return err
			}
			settleErr := e.Settled(runCtx)
			units := e.Units()
			html := doc.String()
			if err := e.Deactivate(); err != nil {
				ctx.logger.Warn("render: deactivate", "error", err)
			}
			if settleErr != nil {
				return fmt.Errorf("render: %w", settleErr)
			}
			ctx.logger.Info("render: done", "units", units)

			var out io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			_, err = io.WriteString(out, html)
			return err
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "Player parent host")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip status lookups")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}
