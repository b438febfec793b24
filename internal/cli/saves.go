package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwebster45206/chronicle-engine/pkg/state"
)

func (r *root) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := r.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			summaries, err := s.ListGameStates(cmd.Context())
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			if len(summaries) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No saved sessions.")
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTURNS\tUPDATED\tTITLE")
			for _, sum := range summaries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", sum.ID, sum.TotalTurns, sum.UpdatedAt.Format("2006-01-02 15:04"), sum.Title)
			}
			return tw.Flush()
		},
	}
}

func (r *root) newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a saved session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath, _ := cmd.Flags().GetString("output")
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}

			s, err := r.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			gs, err := s.LoadGameState(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if gs == nil {
				return fmt.Errorf("session %s not found", id)
			}
			data, err := json.MarshalIndent(gs, "", "  ")
			if err != nil {
				return fmt.Errorf("encode session: %w", err)
			}
			if outPath == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", id, outPath)
			return err
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func (r *root) newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a session document into the save file",
		Long:  "Import a session exported by this tool or an older client. Legacy memory fields are upgraded; an id already in use gets a new one.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}
			gs, err := state.Hydrate(data, r.opts.Config.Core())
			if err != nil {
				return err
			}

			s, err := r.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			existing, err := s.LoadGameState(cmd.Context(), gs.ID)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			if existing != nil {
				gs.ID = uuid.New()
			}
			if err := s.SaveGameState(cmd.Context(), gs.ID, gs); err != nil {
				return fmt.Errorf("import: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%d turns)\n", gs.ID, gs.TotalTurns)
			return err
		},
	}
}

func (r *root) newArchiveCmd() *cobra.Command {
	archive := &cobra.Command{
		Use:   "archive",
		Short: "Query the chronicle archive",
	}
	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search archived chronicle entries by keyword",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			query := strings.Join(args, " ")

			s, err := r.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			results, err := s.SearchChronicle(cmd.Context(), query, limit)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if len(results) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "[]")
				return err
			}
			return printJSON(cmd, results)
		},
	}
	search.Flags().IntP("limit", "l", 20, "Max results")
	archive.AddCommand(search)
	return archive
}
