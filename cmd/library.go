package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/ehound/internal/crawlerr"
	"github.com/JakeFAU/ehound/internal/export"
	"github.com/JakeFAU/ehound/internal/library"
)

// newLibraryCmd groups the library browsing subcommands.
func newLibraryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Browse and edit the archived library",
	}
	cmd.AddCommand(
		newLibraryListCmd(),
		newLibraryShowCmd(),
		newLibraryManifestCmd(),
		newLibrarySeekCmd(),
		newLibraryRemoveCmd(),
	)
	return cmd
}

func newLibraryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List books with their kind and chapter count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tCHAPTERS\tPOSITION")
			for _, b := range export.BuildManifest(a.Manager().Library()).Books {
				pos := "-"
				if b.Position != nil {
					pos = strconv.Itoa(int(*b.Position))
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", b.Name, b.Kind, len(b.Chapters), pos)
			}
			return tw.Flush()
		},
	}
}

func newLibraryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <book>",
		Short: "Show the chapters of one book",
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
			entry := export.DescribeBook(book)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\nindex: %s\n", entry.Name, entry.Kind, entry.Index)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CHAPTER\tCONTENTS\tPAGE")
			for _, ch := range entry.Chapters {
				fmt.Fprintf(tw, "%d\t%d\t%s\n", ch.Number, ch.Contents, ch.Page)
			}
			return tw.Flush()
		},
	}
}

func newLibraryManifestCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Dump the library structure as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return export.WriteManifest(cmd.OutOrStdout(), a.Manager().Library())
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create manifest: %w", err)
			}
			if err := export.WriteManifest(f, a.Manager().Library()); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newLibrarySeekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seek <book> <chapter>",
		Short: "Move a book's reading position to a chapter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			book, err := findBook(a.Manager().Library(), args[0])
			if err != nil {
				return err
			}
			n, err := strconv.ParseUint(args[1], 10, 16)
			if err != nil {
				return &crawlerr.ParseError{Input: args[1], Err: err}
			}
			ch, ok := book.Seek(uint16(n))
			if !ok {
				return fmt.Errorf("chapter %d of %q: %w", n, book.Name, crawlerr.ErrNotFound)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s chapter %d: %s (%d items)\n", book.Name, n, ch.Page.Location(), ch.Len())
			return a.Manager().Save()
		},
	}
}

func newLibraryRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <book>",
		Short: "Forget a book. Archived content stays in the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			if !a.Manager().Library().Remove(library.BookName(args[0])) {
				return fmt.Errorf("book %q: %w", args[0], crawlerr.ErrNotFound)
			}
			return a.Manager().Save()
		},
	}
}

func findBook(lib *library.Library, name string) (*library.Book, error) {
	book, ok := lib.Book(library.BookName(name))
	if !ok {
		return nil, fmt.Errorf("book %q: %w", name, crawlerr.ErrNotFound)
	}
	return book, nil
}
