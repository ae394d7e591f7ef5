package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kcexplore/pkg/config"
	"kcexplore/pkg/kconfig"
	"kcexplore/pkg/kgraph"
	"kcexplore/pkg/knowledge"
	"kcexplore/pkg/persistence"
)

var buildKGCmd = &cobra.Command{
	Use:   "build-kg",
	Short: "Build the Kconfig knowledge graph and load it into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		opts := buildKGOptions{}
		opts.tree, _ = cmd.Flags().GetString("tree")
		opts.out, _ = cmd.Flags().GetString("out")
		opts.dot, _ = cmd.Flags().GetString("dot")
		if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
			cfg.Knowledge.DBPath = dbPath
		}
		if opts.tree == "" {
			opts.tree = cfg.Explore.TreeFile
		}
		return runBuildKG(cmd, cfg, opts)
	},
}

type buildKGOptions struct {
	tree string
	out  string
	dot  string
}

func init() {
	rootCmd.AddCommand(buildKGCmd)

	buildKGCmd.Flags().String("tree", "", "Kconfig tree dump (YAML or JSON)")
	buildKGCmd.Flags().String("out", "", "Write the custom knowledge graph JSON here")
	buildKGCmd.Flags().String("dot", "", "Write the stored graph as Graphviz DOT here")
	buildKGCmd.Flags().String("db", "", "Knowledge store path (overrides knowledge.db_path)")
}

func runBuildKG(cmd *cobra.Command, cfg *config.Config, opts buildKGOptions) error {
	if opts.tree == "" {
		return fmt.Errorf("no tree dump given: pass --tree or set explore.tree_file")
	}
	ctx := cmd.Context()

	tree, err := kconfig.Load(opts.tree)
	if err != nil {
		return err
	}
	kg := kgraph.Build(tree, cfg.Knowledge.SourceID)
	if err := kg.Validate(); err != nil {
		return fmt.Errorf("invalid knowledge graph: %w", err)
	}

	if opts.out != "" {
		if err := writeFile(opts.out, func(f *os.File) error { return kg.WriteJSON(f) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📝 wrote %s\n", opts.out)
	}

	db, err := openStore(cfg.Knowledge.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	store := knowledge.NewStore(db)
	if err := store.InsertCustomKG(ctx, kg); err != nil {
		return err
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s: %d entities, %d relationships, %d statements\n",
		cfg.Knowledge.DBPath, stats.Entities, stats.Relationships, stats.Statements)

	if opts.dot != "" {
		graph, err := store.LoadGraph(ctx)
		if err != nil {
			return err
		}
		dot, err := graph.ToDOT()
		if err != nil {
			return err
		}
		if err := writeFile(opts.dot, func(f *os.File) error {
			_, err := f.WriteString(dot)
			return err
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📝 wrote %s\n", opts.dot)
	}
	return nil
}

func openStore(path string) (*sql.DB, error) {
	if path != persistence.MemoryPath {
		if err := ensureParent(path); err != nil {
			return nil, err
		}
	}
	return persistence.Open(path)
}

func writeFile(path string, write func(*os.File) error) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
