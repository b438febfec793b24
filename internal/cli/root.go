// Package cli implements the chronicle command: local play against a SQLite
// save file plus schema, validation and save-file maintenance commands.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/chronicle-engine/internal/config"
	"github.com/jwebster45206/chronicle-engine/internal/services"
	internalstorage "github.com/jwebster45206/chronicle-engine/internal/storage"
)

// Options configures the command tree.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Generator replaces the configured provider when set.
	Generator services.Generator
}

type root struct {
	opts   Options
	dbPath string
}

// NewRootCmd builds the chronicle command tree.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Config == nil {
		opts.Config = &config.Config{SQLitePath: "./data/chronicle.db", LLMProvider: "gemini"}
	}
	r := &root{opts: opts}

	cmd := &cobra.Command{
		Use:           "chronicle",
		Short:         "Narrative state engine for AI-narrated interactive fiction",
		Long:          "Play sessions locally against a SQLite save file, inspect response schemas and manage saves.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&r.dbPath, "db", "d", "", "Save file path (default: $SQLITE_PATH or ./data/chronicle.db)")

	cmd.AddCommand(
		r.newPlayCmd(),
		newSchemaCmd(),
		newValidateCmd(opts.Logger),
		r.newListCmd(),
		r.newExportCmd(),
		r.newImportCmd(),
		r.newArchiveCmd(),
	)
	return cmd
}

func (r *root) getDBPath() string {
	if r.dbPath != "" {
		return r.dbPath
	}
	return r.opts.Config.SQLitePath
}

func (r *root) openStore() (*internalstorage.SQLiteStore, error) {
	s, err := internalstorage.NewSQLiteStore(r.getDBPath(), r.opts.Config.Core(), r.opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}
