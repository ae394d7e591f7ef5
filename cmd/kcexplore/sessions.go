package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"kcexplore/pkg/persistence"
	"kcexplore/pkg/transcript"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded exploration sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		db, err := openStore(cfg.Knowledge.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		limit, _ := cmd.Flags().GetInt("limit")
		list, err := persistence.NewSessionStore(db).List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, s := range list {
			fmt.Fprintf(w, "%s  %-9s  $%.4f  %s  %s\n",
				s.SessionID, s.Status, s.CostUSD, s.StartedAt.Format("2006-01-02 15:04"), s.Model)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show SESSION_ID",
	Short: "Print the oracle exchanges of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		var entries []transcript.Entry
		if fromFile, _ := cmd.Flags().GetBool("transcript"); fromFile {
			path := filepath.Join(cfg.Logging.TranscriptDir, transcript.FileName(args[0]))
			if entries, err = transcript.ReadEntries(path); err != nil {
				return err
			}
		} else {
			db, err := openStore(cfg.Knowledge.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			session, err := persistence.NewSessionStore(db).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s (%s) target: %s\n", session.SessionID, session.Status, session.Target)
			if entries, err = persistence.NewExchangeStore(db).Exchanges(cmd.Context(), args[0]); err != nil {
				return err
			}
		}
		return transcript.WriteText(cmd.OutOrStdout(), entries)
	},
}

func init() {
	sessionsListCmd.Flags().Int("limit", 20, "Maximum sessions to list")
	sessionsShowCmd.Flags().Bool("transcript", false, "Read the JSONL transcript instead of the database")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
