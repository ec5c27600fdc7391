package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MJE43/studio-analyzer/internal/secrets"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the ingest token that guards mutating API routes",
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create and store a new random token",
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := secrets.GenerateToken()
		if err != nil {
			return err
		}
		if err := secretStore().Set(secrets.IngestToken, tok); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := secretStore().Get(secrets.IngestToken)
		if errors.Is(err, secrets.ErrNotFound) {
			return errors.New("no token stored; run: studio token generate")
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := secretStore().Delete(secrets.IngestToken); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "token removed")
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenGenerateCmd, tokenShowCmd, tokenDeleteCmd)
}
