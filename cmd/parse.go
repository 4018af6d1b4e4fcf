package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livecanvas/internal/config"
	"github.com/conneroisu/livecanvas/internal/model"
	"github.com/conneroisu/livecanvas/internal/parser"
	"github.com/conneroisu/livecanvas/internal/watcher"
)

func newParseCommand() *cobra.Command {
	var (
		dialect string
		tree    bool
	)

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Print the element tree of a markup file",
		Long: `Parse a JSX or HTML file (or stdin) and print its elements with the ids an
editing session would assign them.

Examples:
  livecanvas parse src/App.jsx
  livecanvas parse index.html -o yaml --tree
  cat page.jsx | livecanvas parse -o json`,
		Args: cobra.MaximumNArgs(1),
	}
	out := AddOutputFlags(cmd, FormatTable, FormatJSON, FormatYAML)
	cmd.Flags().StringVarP(&dialect, "dialect", "d", "", "Markup dialect (jsx, html); defaults to the file extension")
	cmd.Flags().BoolVar(&tree, "tree", false, "Print the nested tree instead of the flat element list")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadRuntime(cmd)
		if err != nil {
			return err
		}

		file := ""
		if len(args) == 1 {
			file = args[0]
		}
		d, err := resolveDialect(dialect, file, cfg)
		if err != nil {
			return err
		}

		text, err := readInput(cmd, file)
		if err != nil {
			return err
		}

		m, err := parser.New(parser.Options{Dialect: d, MaxDepth: cfg.Editor.MaxDepth}).Parse(string(text))
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		switch {
		case out.Format == FormatTable && tree:
			printOutline(w, m.Tree(), 0)
			return nil
		case out.Format == FormatTable:
			return printSummaries(w, m.Summaries())
		case tree:
			return out.Write(w, m.Tree())
		default:
			return out.Write(w, m.Summaries())
		}
	}

	return cmd
}

// resolveDialect prefers the flag, then the file extension, then the
// configured default.
func resolveDialect(flag, file string, cfg *config.Config) (model.Dialect, error) {
	if flag != "" {
		return model.ParseDialect(flag)
	}
	if file != "" && file != "-" {
		return watcher.DialectFor(file), nil
	}
	return cfg.Dialect(), nil
}

func printSummaries(w io.Writer, summaries []model.ElementSummary) error {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No elements found")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTYPE\tPARENT\tCLASS\tCONTENT")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s%s\t%s\t%s\t%s\n",
			s.ID,
			strings.Repeat("  ", s.Depth), s.Kind,
			orDash(s.ParentID),
			orDash(s.ClassName),
			orDash(truncate(s.Content, 40)))
	}
	return tw.Flush()
}

func printOutline(w io.Writer, nodes []model.Node, depth int) {
	for _, n := range nodes {
		fmt.Fprintf(w, "%s<%s> %s\n", strings.Repeat("  ", depth), n.Kind, n.ID)
		printOutline(w, n.Children, depth+1)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}
