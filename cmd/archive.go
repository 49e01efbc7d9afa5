package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/ehound/internal/app"
	"github.com/JakeFAU/ehound/internal/library"
)

// newAddCmd creates the 'add' subcommand.
func newAddCmd() *cobra.Command {
	var (
		name   string
		noSave bool
	)
	cmd := &cobra.Command{
		Use:   "add <chapter-url>",
		Short: "Archive a book starting from one of its chapter pages",
		Long: `Fetches the page, follows its "next" links until they run out and archives
every page reached as a chapter. The book is named after the page title unless
--name is given. State is saved afterwards unless --no-save is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			var bookName *library.BookName
			if n := strings.TrimSpace(name); n != "" {
				bn := library.BookName(n)
				bookName = &bn
			}
			book, count, err := a.Manager().AddBook(cmd.Context(), bookName, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %d chapters of %q\n", count, book.Name)
			return saveUnless(a, noSave)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "book name (defaults to the page title)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not write state files afterwards")
	return cmd
}

// newRefreshCmd creates the 'refresh' subcommand.
func newRefreshCmd() *cobra.Command {
	var noSave bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Archive chapters published since the last run for every book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			count, err := a.Manager().Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %d chapters across %d books\n", count, a.Manager().Library().Len())
			return saveUnless(a, noSave)
		},
	}
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not write state files afterwards")
	return cmd
}

// newSaveCmd creates the 'save' subcommand.
func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Write the downloader state, retriever state and library to their state files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			if err := a.Manager().Save(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "State saved")
			return nil
		},
	}
}

// newLoadCmd creates the 'load' subcommand. Startup already restores state when every
// file exists; load reports an error when any is missing or corrupted.
func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Read the state files, failing when any is missing or corrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			if err := a.Manager().Load(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d books\n", a.Manager().Library().Len())
			return nil
		},
	}
}

func saveUnless(a *app.App, skip bool) error {
	if skip {
		return nil
	}
	return a.Manager().Save()
}
