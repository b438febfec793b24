package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/chronicle-engine/pkg/response"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema [kind]",
		Short:     "Print the JSON Schema sent to the generation service",
		Long:      "Print the response schema for one kind (core, opening, skill, chronicle), or all of them.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: schemaKindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out any
			if len(args) == 1 {
				s := response.Schema(response.SchemaKind(args[0]))
				if s == nil {
					return fmt.Errorf("unknown schema kind %q (known: %v)", args[0], schemaKindNames())
				}
				out = s
			} else {
				all := make(map[string]any)
				for _, k := range response.SchemaKinds() {
					all[string(k)] = response.Schema(k)
				}
				out = all
			}
			return printJSON(cmd, out)
		},
	}
}

func schemaKindNames() []string {
	var names []string
	for _, k := range response.SchemaKinds() {
		names = append(names, string(k))
	}
	return names
}

func newValidateCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate and normalize a raw generation response",
		Long:  "Run a saved response through the same parsing and normalization the engine applies, and print the result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			text := string(data)

			var out any
			switch response.SchemaKind(kind) {
			case response.SchemaCore:
				out, err = response.DecodeCore(text, logger)
			case response.SchemaOpening:
				out, err = response.DecodeOpening(text, logger)
			case response.SchemaSkill:
				out, err = response.ParseSkill(text)
			case response.SchemaChronicle:
				out, err = response.ParseChronicle(text)
			default:
				return fmt.Errorf("unknown schema kind %q (known: %v)", kind, schemaKindNames())
			}
			if err != nil {
				return fmt.Errorf("invalid %s response: %w", kind, err)
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringP("kind", "k", string(response.SchemaCore), "Response kind: core, opening, skill or chronicle")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
