package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kcexplore/pkg/knowledge"
)

var addKnowledgeCmd = &cobra.Command{
	Use:   "add-knowledge FILE",
	Short: "Add free-text statements, one per line, to the knowledge store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
			cfg.Knowledge.DBPath = dbPath
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer func() { _ = f.Close() }()

		statements, err := knowledge.ReadStatements(f)
		if err != nil {
			return err
		}

		db, err := openStore(cfg.Knowledge.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		n, err := knowledge.NewStore(db).InsertStatements(cmd.Context(), filepath.Base(args[0]), statements)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ added %d statements from %s\n", n, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addKnowledgeCmd)
	addKnowledgeCmd.Flags().String("db", "", "Knowledge store path (overrides knowledge.db_path)")
}
