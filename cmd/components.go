package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/livecanvas/internal/registry"
)

func newComponentsCommand() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:     "components",
		Aliases: []string{"list", "ls"},
		Short:   "List the component kinds add_component understands",
		Long: `List the builtin component library plus any entries loaded from
components.library_file (or --library).

Examples:
  livecanvas components
  livecanvas components --category form -o json
  livecanvas components --library ui.yaml -o yaml`,
		Args: cobra.NoArgs,
	}
	out := AddOutputFlags(cmd, FormatTable, FormatJSON, FormatYAML)
	cmd.Flags().StringVar(&category, "category", "", "Only list this category")
	cmd.Flags().String("library", "", "YAML file of extra component entries")
	_ = viper.BindPFlag("components.library_file", cmd.Flags().Lookup("library"))

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		components, err := buildRegistry(cfg)
		if err != nil {
			return err
		}

		entries := components.GetAll()
		if category != "" {
			filtered := make([]*registry.Entry, 0, len(entries))
			for _, e := range entries {
				if strings.EqualFold(e.Category, category) {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}

		if out.Format != FormatTable {
			return out.Write(cmd.OutOrStdout(), entries)
		}
		return printEntries(cmd, entries)
	}

	return cmd
}

func printEntries(cmd *cobra.Command, entries []*registry.Entry) error {
	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No components found")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tTAG\tPROPS\tVARIANTS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Name,
			orDash(e.Category),
			e.Template.Tag,
			orDash(strings.Join(e.Props, ", ")),
			orDash(strings.Join(sortedKeys(e.Variants), ", ")))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d component(s)\n", len(entries))
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
