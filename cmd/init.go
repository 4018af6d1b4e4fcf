package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livecanvas/internal/config"
)

// exampleLibraryFile is written by init --example.
const exampleLibraryFile = "livecanvas-components.yaml"

const exampleLibrary = `# Extra component kinds for add_component. Props may be referenced in
# default_classes and template attribute values as {name}.
components:
  - name: Hero
    category: components
    props: [variant, title, className, children]
    default_classes: rounded-lg shadow p-6
    variants:
      plain: bg-white
      muted: bg-gray-50 text-gray-700
    defaults:
      variant: plain
    template:
      tag: section
      attributes:
        - name: aria-label
          value: "{title}"
`

func newInitCommand() *cobra.Command {
	var (
		wizard  bool
		force   bool
		example bool
	)

	cmd := &cobra.Command{
		Use:     "init [dir]",
		Aliases: []string{"i"},
		Short:   "Write a livecanvas configuration file",
		Long: `Write .livecanvas.yml into dir (the current directory by default).

Examples:
  livecanvas init                # defaults
  livecanvas init --wizard       # answer a few questions first
  livecanvas init web --example  # also write an example component library`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create project directory: %w", err)
				}
			}

			cfg := config.Default()
			if wizard {
				var err error
				cfg, err = config.NewConfigWizard(cmd.InOrStdin(), cmd.OutOrStdout()).Run()
				if err != nil {
					return fmt.Errorf("configuration wizard: %w", err)
				}
			}

			if example {
				path := filepath.Join(dir, exampleLibraryFile)
				if _, err := os.Stat(path); err == nil && !force {
					return fmt.Errorf("component library %s already exists", path)
				}
				if err := os.WriteFile(path, []byte(exampleLibrary), 0o644); err != nil {
					return fmt.Errorf("failed to write component library: %w", err)
				}
				cfg.Components.LibraryFile = exampleLibraryFile
			}

			path := filepath.Join(dir, config.FileName)
			if err := config.WriteConfigFile(path, cfg, force); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Wrote %s\n", path)
			fmt.Fprintln(w, "\nNext steps:")
			if dir != "." {
				fmt.Fprintf(w, "  cd %s\n", dir)
			}
			fmt.Fprintln(w, "  livecanvas serve <paths to your pages>")
			fmt.Fprintf(w, "  open http://%s/api/sessions\n", cfg.Address())
			return nil
		},
	}

	cmd.Flags().BoolVar(&wizard, "wizard", false, "Ask for the common settings interactively")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&example, "example", false, "Also write an example component library")

	return cmd
}
