package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrhollen/SalesAgent/internal/auth"
)

var (
	tokenUser     string
	tokenValidFor time.Duration
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// newApp migrates stores that manage their own schema
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		cmd.Printf("schema is up to date (%s, %d dimensions)\n", a.cfg.Database.Driver, a.cfg.LLM.Dimensions)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API access token for a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		token := auth.NewToken(tokenUser, tokenValidFor)
		if err := a.store.AddAccessToken(cmd.Context(), token); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token.Token)
		a.logger.Info("issued access token", "user_id", tokenUser, "expires", token.Expiration.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user the token authenticates as")
	tokenCmd.Flags().DurationVar(&tokenValidFor, "valid-for", 90*24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(migrateCmd, tokenCmd)
}
