package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/twitchpreview/enrich/channel"
)

func newMatchCommand(_ *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "match URL...",
		Short:       "Classify links as enrichable channel references",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := make([]channel.Reference, len(args))
			for i, raw := range args {
				refs[i] = channel.Parse(raw)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(refs)
			}

			rows := make([][]string, len(refs))
			for i, r := range refs {
				reason := string(r.Reason)
				if reason == "" {
					reason = "-"
				}
				rows[i] = []string{r.Raw, r.ID, yesNo(r.Valid), reason}
			}
			_, err := fmt.Fprintln(out, renderTable([]string{"URL", "Channel", "Valid", "Reason"}, rows))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
