package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"kcexplore/pkg/config"
	"kcexplore/pkg/logx"
)

// passwordEnvVar lets scripted runs unlock the secrets file without a prompt.
const passwordEnvVar = "KCEXPLORE_PASSWORD"

var rootCmd = &cobra.Command{
	Use:   "kcexplore",
	Short: "Explore a Kconfig tree with a language model",
	Long: `kcexplore turns a Kconfig tree dump into a knowledge graph and asks a
language model which options to change to reach an optimization target.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultConfigFile, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-file", "", "Also append log output to this file")
}

// setup loads the configuration named by --config, applies the logging flags
// and returns a cleanup func that closes the log file.
func setup(cmd *cobra.Command) (*config.Config, func(), error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Logging.Debug = true
	}
	if logFile, _ := cmd.Flags().GetString("log-file"); logFile != "" {
		cfg.Logging.File = logFile
	}
	if cfg.Logging.Debug {
		logx.SetDebug(true)
	}
	if len(cfg.Logging.Domains) > 0 {
		logx.SetDebugDomains(cfg.Logging.Domains)
	}

	cleanup := func() {}
	if cfg.Logging.File != "" {
		if dir := filepath.Dir(cfg.Logging.File); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logx.SetOutput(io.MultiWriter(os.Stderr, f))
		cleanup = func() {
			logx.SetOutput(nil)
			_ = f.Close()
		}
	}
	return cfg, cleanup, nil
}

// unlockSecrets loads the encrypted secrets file when one exists. The password
// comes from KCEXPLORE_PASSWORD, or from the terminal when stdin is one.
func unlockSecrets(workDir string) error {
	if !config.SecretsFileExists(workDir) {
		return nil
	}
	password := os.Getenv(passwordEnvVar)
	if password == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return logx.Errorf("secrets file %s is locked: set %s", config.SecretsPath(workDir), passwordEnvVar)
		}
		var err error
		if password, err = readHidden("Secrets password: "); err != nil {
			return err
		}
	}
	if err := config.LoadSecrets(workDir, password); err != nil {
		return fmt.Errorf("failed to unlock secrets: %w", err)
	}
	return nil
}

func readHidden(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(syscall.Stdin)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	s := string(b)
	for i := range b {
		b[i] = 0
	}
	return s, nil
}

func ensureParent(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
