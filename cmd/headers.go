package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// newHeadersCmd groups the header-management subcommands. Every mutation is saved.
func newHeadersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "headers",
		Short: "Manage request headers per domain and per header group",
	}
	cmd.AddCommand(
		newHeadersListCmd(),
		newHeadersSetCmd(),
		newHeadersUnsetCmd(),
		newHeadersGroupCmd(),
		newHeadersSiteCmd(),
	)
	return cmd
}

func newHeadersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show domain headers, header groups and site assignments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			table := a.Manager().Retriever().Headers()
			fmt.Fprintln(out, "domains:")
			for _, domain := range table.Domains() {
				h := table.HeadersFor(domain)
				for _, name := range sortedKeys(h) {
					fmt.Fprintf(out, "  %s  %s: %s\n", domain, name, h.Get(name))
				}
			}
			dl := a.Manager().Downloader()
			groups := dl.Groups()
			ids := make([]uint32, 0, len(groups))
			for id := range groups {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			fmt.Fprintln(out, "groups:")
			for _, id := range ids {
				names := make([]string, 0, len(groups[id]))
				for name := range groups[id] {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(out, "  %d  %s: %s\n", id, name, groups[id][name])
				}
			}
			sites := dl.Sites()
			siteNames := make([]string, 0, len(sites))
			for site := range sites {
				siteNames = append(siteNames, site)
			}
			sort.Strings(siteNames)
			fmt.Fprintln(out, "sites:")
			for _, site := range siteNames {
				fmt.Fprintf(out, "  %s  %v\n", site, sites[site])
			}
			return nil
		},
	}
}

func newHeadersSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <domain> <name> <value>",
		Short: "Set a header sent to one domain",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			a.Manager().Retriever().Headers().Set(args[0], args[1], args[2])
			return a.Manager().Save()
		},
	}
}

func newHeadersUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <domain> <name>",
		Short: "Remove a header from one domain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd)
			if err != nil {
				return err
			}
			a.Manager().Retriever().Headers().Delete(args[0], args[1])
			return a.Manager().Save()
		},
	}
}

func newHeadersGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Edit numbered header groups",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <group> <name> <value>",
			Short: "Add a header to a group",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := resolveApp(cmd)
				if err != nil {
					return err
				}
				id, err := parseGroup(args[0])
				if err != nil {
					return err
				}
				a.Manager().Downloader().AddHeader(id, args[1], args[2])
				return a.Manager().Save()
			},
		},
		&cobra.Command{
			Use:   "rm <group> [name]",
			Short: "Remove a header from a group, or the whole group",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := resolveApp(cmd)
				if err != nil {
					return err
				}
				id, err := parseGroup(args[0])
				if err != nil {
					return err
				}
				if len(args) == 2 {
					a.Manager().Downloader().RemoveHeader(id, args[1])
				} else {
					a.Manager().Downloader().RemoveGroup(id)
				}
				return a.Manager().Save()
			},
		},
	)
	return cmd
}

func newHeadersSiteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "Assign header groups to sites",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <site> <group>",
			Short: "Send a group's headers to a site",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := resolveApp(cmd)
				if err != nil {
					return err
				}
				id, err := parseGroup(args[1])
				if err != nil {
					return err
				}
				a.Manager().Downloader().AddGroupToSite(args[0], id)
				return a.Manager().Save()
			},
		},
		&cobra.Command{
			Use:   "rm <site> <group>",
			Short: "Stop sending a group's headers to a site",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := resolveApp(cmd)
				if err != nil {
					return err
				}
				id, err := parseGroup(args[1])
				if err != nil {
					return err
				}
				a.Manager().Downloader().RemoveGroupFromSite(args[0], id)
				return a.Manager().Save()
			},
		},
	)
	return cmd
}

func parseGroup(raw string) (uint32, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid group %q: %w", raw, err)
	}
	return uint32(id), nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
