package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livecanvas/internal/version"
)

func newVersionCommand() *cobra.Command {
	var (
		short    bool
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the livecanvas version, commit, build time, Go version and platform.

Examples:
  livecanvas version              # version and commit
  livecanvas version --detailed   # every build field
  livecanvas version -o json      # machine readable`,
		Args: cobra.NoArgs,
		// Version works without a valid configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}
	out := AddOutputFlags(cmd, FormatText, FormatJSON, FormatYAML)
	cmd.Flags().BoolVar(&short, "short", false, "Show short version only")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "Show detailed version information")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if out.Format != FormatText {
			return out.Write(w, version.GetBuildInfo())
		}

		switch {
		case short:
			fmt.Fprintln(w, version.GetShortVersion())
		case detailed:
			fmt.Fprintln(w, version.GetDetailedVersion())
		default:
			info := version.GetBuildInfo()
			line := "livecanvas " + info.Version
			if info.GitCommit != "unknown" && len(info.GitCommit) >= 7 {
				line += " (" + info.GitCommit[:7] + ")"
			}
			if info.Dirty {
				line += " (dirty)"
			}
			fmt.Fprintln(w, line)
			fmt.Fprintf(w, "%s %s\n", info.GoVersion, info.Platform)
		}
		return nil
	}

	return cmd
}
