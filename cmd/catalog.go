package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// newCatalogCmd creates the 'catalog' subcommand, which reads the Postgres catalog.
func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog <book>",
		Short: "List the chapters recorded for a book in the Postgres catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			if a.Catalog() == nil {
				return errors.New("catalog.dsn is not configured")
			}
			rows, err := a.Catalog().ListChapters(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("list catalog: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CHAPTER\tCONTENTS\tARCHIVED\tPAGE")
			for _, r := range rows {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", r.Chapter, r.Contents, r.ArchivedAt.Format(time.RFC3339), r.PageURL)
			}
			return tw.Flush()
		},
	}
}
