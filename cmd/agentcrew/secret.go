package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mtzanidakis/agentcrew/internal/store"
	"github.com/mtzanidakis/agentcrew/internal/vault"
	"github.com/spf13/cobra"
)

var (
	secretValue       string
	secretFile        string
	secretDescription string
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage encrypted secrets",
	Long: `Secrets are sealed with the vault passphrase (vault.passphrase or
AGENTCREW_VAULT_PASSPHRASE) and can be referenced from the config file as
"secret:<name>".`,
}

var secretSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Store or replace a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := secretValue
		if secretFile != "" {
			data, err := os.ReadFile(secretFile)
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			value = string(data)
		}
		if value == "" {
			return fmt.Errorf("either --value or --file is required")
		}
		return withVault(func(v *vault.Vault, _ *store.Store) error {
			if err := v.Set(args[0], secretDescription, value); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Secret %q saved", args[0]), color.FgGreen)
			return nil
		})
	},
}

var secretListCmd = &cobra.Command{
	Use:   "list",
	Short: "List secrets (metadata only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault, _ *store.Store) error {
			secrets, err := v.List()
			if err != nil {
				return err
			}
			if len(secrets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No secrets stored.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION\tUPDATED")
			for _, s := range secrets {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Description, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		})
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault, _ *store.Store) error {
			deleted, err := v.Delete(args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("%w: %s", vault.ErrSecretNotFound, args[0])
			}
			printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Secret %q deleted", args[0]), color.FgGreen)
			return nil
		})
	},
}

func init() {
	secretSetCmd.Flags().StringVar(&secretValue, "value", "", "secret value")
	secretSetCmd.Flags().StringVar(&secretFile, "file", "", "read the value from a file")
	secretSetCmd.Flags().StringVar(&secretDescription, "description", "", "what the secret is for")
	secretSetCmd.MarkFlagsMutuallyExclusive("value", "file")

	secretCmd.AddCommand(secretSetCmd, secretListCmd, secretDeleteCmd)
}

// withVault opens only the store and vault; no agents or providers are
// needed to manage secrets.
func withVault(fn func(*vault.Vault, *store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Vault.Passphrase == "" {
		return fmt.Errorf("%w: set vault.passphrase or AGENTCREW_VAULT_PASSPHRASE", vault.ErrNoPassphrase)
	}
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	v, err := openVault(cfg, db)
	if err != nil {
		return err
	}
	return fn(v, db)
}

