package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kcexplore/pkg/config"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage API keys in the encrypted secrets file",
}

var secretsSetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Store a secret, e.g. OPENAI_API_KEY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editSecrets(cmd, func() error {
			value, err := readHidden(fmt.Sprintf("Value for %s: ", args[0]))
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("empty value for %s", args[0])
			}
			return config.SetSecret(args[0], value)
		})
	},
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editSecrets(cmd, func() error {
			return config.DeleteSecret(args[0])
		})
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secret names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		workDir := cfg.Knowledge.WorkingDir
		if !config.SecretsFileExists(workDir) {
			fmt.Fprintf(cmd.OutOrStdout(), "no secrets file in %s\n", workDir)
			return nil
		}
		password, err := secretsPassword(false)
		if err != nil {
			return err
		}
		if err := config.LoadSecrets(workDir, password); err != nil {
			return fmt.Errorf("failed to unlock secrets: %w", err)
		}
		for _, name := range config.GetDecryptedSecretNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd, secretsDeleteCmd, secretsListCmd)
	rootCmd.AddCommand(secretsCmd)
}

// editSecrets unlocks the secrets file, applies edit and saves it again.
func editSecrets(cmd *cobra.Command, edit func() error) error {
	cfg, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	workDir := cfg.Knowledge.WorkingDir
	password, err := secretsPassword(!config.SecretsFileExists(workDir))
	if err != nil {
		return err
	}
	if err := config.LoadSecrets(workDir, password); err != nil {
		return fmt.Errorf("failed to unlock secrets: %w", err)
	}
	if err := edit(); err != nil {
		return err
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", workDir, err)
	}
	if err := config.SaveSecretsToFile(workDir, password); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🔐 saved %s\n", config.SecretsPath(workDir))
	return nil
}

// secretsPassword reads the secrets password. A new file asks for it twice.
func secretsPassword(confirm bool) (string, error) {
	if password := os.Getenv(passwordEnvVar); password != "" {
		return password, nil
	}
	password, err := readHidden("Secrets password: ")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", fmt.Errorf("empty password")
	}
	if confirm {
		again, err := readHidden("Confirm password: ")
		if err != nil {
			return "", err
		}
		if again != password {
			return "", fmt.Errorf("passwords do not match")
		}
	}
	return password, nil
}
