package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/livecanvas/internal/model"
	"github.com/conneroisu/livecanvas/internal/session"
	"github.com/conneroisu/livecanvas/internal/types"
)

// ApplyReport is the json and yaml output of apply.
type ApplyReport struct {
	Code     string                 `json:"code"`
	Elements []model.ElementSummary `json:"elements"`
	Changes  []types.ChangeRecord   `json:"changes"`
}

func newApplyCommand() *cobra.Command {
	var (
		opsFile string
		inline  []string
		dialect string
		write   bool
	)

	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Apply edit operations to a markup file",
		Long: `Open a file as an editing session, apply operations in order and print the
regenerated code. Operations come from a YAML or JSON list (--ops) and from
inline JSON objects (--op, repeatable, "@file.json" reads one from a file).

Examples:
  livecanvas apply src/App.jsx --ops edits.yaml
  livecanvas apply page.html --op '{"type":"update_style","component_id":"comp_1","style_property":"className","new_value":"p-4"}'
  livecanvas apply src/App.jsx --ops edits.yaml --write`,
		Args: cobra.ExactArgs(1),
	}
	out := AddOutputFlags(cmd, FormatCode, FormatJSON, FormatYAML)
	cmd.Flags().StringVarP(&opsFile, "ops", "f", "", "YAML or JSON file holding a list of operations")
	cmd.Flags().StringArrayVar(&inline, "op", nil, "Inline JSON operation or @file.json (repeatable)")
	cmd.Flags().StringVarP(&dialect, "dialect", "d", "", "Markup dialect (jsx, html); defaults to the file extension")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Write the result back to the file")
	cmd.Flags().Bool("strict", true, "Fail on operations whose targets do not exist")
	_ = viper.BindPFlag("editor.strict_targets", cmd.Flags().Lookup("strict"))

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		file := args[0]
		if write && file == "-" {
			return fmt.Errorf("--write needs a file, not stdin")
		}

		cfg, logger, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		d, err := resolveDialect(dialect, file, cfg)
		if err != nil {
			return err
		}

		ops, err := collectOperations(opsFile, inline)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			return fmt.Errorf("no operations given; use --ops or --op")
		}

		text, err := readInput(cmd, file)
		if err != nil {
			return err
		}

		components, err := buildRegistry(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		manager := session.NewManager(nil, components, logger, cfg.SessionOptions())
		started, err := manager.StartSession(ctx, "", string(text), d)
		if err != nil {
			return err
		}

		for i, op := range ops {
			if _, err := manager.ApplyChange(ctx, started.SessionID, op); err != nil {
				return fmt.Errorf("operation %d (%s): %w", i+1, op.Type(), err)
			}
		}

		code, err := manager.Code(started.SessionID)
		if err != nil {
			return err
		}

		if write {
			info, err := os.Stat(file)
			if err != nil {
				return err
			}
			if err := os.WriteFile(file, []byte(code), info.Mode().Perm()); err != nil {
				return fmt.Errorf("write %s: %w", file, err)
			}
		}

		if out.Format == FormatCode {
			if write {
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d operation(s) to %s\n", len(ops), file)
				return nil
			}
			_, err := fmt.Fprint(cmd.OutOrStdout(), ensureNewline(code))
			return err
		}

		snapshot, err := manager.Snapshot(started.SessionID)
		if err != nil {
			return err
		}
		history, err := manager.History(started.SessionID)
		if err != nil {
			return err
		}
		return out.Write(cmd.OutOrStdout(), ApplyReport{
			Code:     code,
			Elements: snapshot.Model.Summaries(),
			Changes:  history,
		})
	}

	return cmd
}

// collectOperations decodes the list file first, then the inline ones.
func collectOperations(opsFile string, inline []string) ([]types.Operation, error) {
	var ops []types.Operation

	if opsFile != "" {
		data, err := os.ReadFile(opsFile)
		if err != nil {
			return nil, fmt.Errorf("read operations: %w", err)
		}
		list, err := decodeOperationList(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", opsFile, err)
		}
		ops = append(ops, list...)
	}

	for i, raw := range inline {
		data := []byte(raw)
		if name, ok := strings.CutPrefix(raw, "@"); ok {
			var err error
			if data, err = os.ReadFile(name); err != nil {
				return nil, fmt.Errorf("read operation: %w", err)
			}
		}
		op, err := decodeOperation(data)
		if err != nil {
			return nil, fmt.Errorf("--op %d: %w", i+1, err)
		}
		ops = append(ops, op)
	}

	return ops, nil
}

// decodeOperationList reads a YAML (or JSON) sequence of operations. Each
// item is re-encoded as JSON so the wire decoder sees exactly what the HTTP
// API would.
func decodeOperationList(data []byte) ([]types.Operation, error) {
	var items []interface{}
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("operations must be a list: %w", err)
	}

	ops := make([]types.Operation, 0, len(items))
	for i, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i+1, err)
		}
		op, err := decodeOperation(data)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i+1, err)
		}
		ops = append(ops, op)
	}

	return ops, nil
}

func decodeOperation(data []byte) (types.Operation, error) {
	op, err := types.DecodeOperation(bytes.TrimSpace(data))
	if err != nil {
		return nil, err
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	return op, nil
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
