package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newExportCmd creates the 'export' subcommand.
func newExportCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export <book>",
		Short: "Pack a book's archived chapters into an EPUB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			book, err := findBook(a.Manager().Library(), args[0])
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = a.Config().Export.Dir
			}
			path, err := a.Exporter().Export(cmd.Context(), book, outDir)
			if err != nil {
				return fmt.Errorf("export %q: %w", book.Name, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (defaults to export.dir)")
	return cmd
}
