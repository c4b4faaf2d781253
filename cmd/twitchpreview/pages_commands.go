package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/twitchpreview/enrich"
)

var errNoStore = errors.New("pages: --db is required")

func newPagesCommand(ctx *commandContext) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:         "pages",
		Short:       "Manage the SQLite page store",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite page store")

	withStore := func(fn func(*enrich.PageStore) error) error {
		if dbPath == "" {
			return errNoStore
		}
		store, err := enrich.OpenPageStore(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(store)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List active pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *enrich.PageStore) error {
				pages, err := s.LoadPages(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, len(pages))
				for i, p := range pages {
					parent := p.PlayerParent
					if parent == "" {
						parent = "(page host)"
					}
					rows[i] = []string{p.ID, p.URL, parent, yesNo(p.StealthEnabled())}
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "URL", "Parent", "Stealth"}, rows))
				return err
			})
		},
	}

	var (
		parent  string
		stealth string
	)
	add := &cobra.Command{
		Use:   "add ID URL",
		Short: "Add or update a page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := enrich.PageConfig{ID: args[0], URL: args[1], PlayerParent: parent}
			if stealth != "" {
				on, err := strconv.ParseBool(stealth)
				if err != nil {
					return fmt.Errorf("pages: --stealth: %w", err)
				}
				p.Stealth = &on
			}
			return withStore(func(s *enrich.PageStore) error {
				if err := s.PutPage(cmd.Context(), p); err != nil {
					return err
				}
				ctx.logger.Info("pages: saved", "id", p.ID, "url", p.URL)
				return nil
			})
		},
	}
	add.Flags().StringVar(&parent, "parent", "", "Player parent host (default: page host)")
	add.Flags().StringVar(&stealth, "stealth", "", "Open the page with stealth (true/false)")

	rm := &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"disable"},
		Short:   "Disable a page",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *enrich.PageStore) error {
				if err := s.DisablePage(cmd.Context(), args[0]); err != nil {
					if errors.Is(err, enrich.ErrPageNotFound) {
						return fmt.Errorf("pages: %s: not found", args[0])
					}
					return err
				}
				ctx.logger.Info("pages: disabled", "id", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, rm)
	return cmd
}
