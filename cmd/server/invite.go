package main

import (
	"errors"
	"fmt"

	"auth-client/internal/auth"
	"auth-client/internal/db"
	"auth-client/internal/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Create a pending invitation and print its slug",
	Long: `Create a pending invitation for an email address.

The invitee redeems it by logging in with the slug stored in their session.
With --user the invitation links the login to an existing account; without
it a new account is created on acceptance.

Examples:
  auth-client invite --email ann@example.com
  auth-client invite --email ann@example.com --user 6f1c...`,
	RunE: runInvite,
}

func init() {
	rootCmd.AddCommand(inviteCmd)

	inviteCmd.Flags().String("email", "", "invitee email address (required)")
	inviteCmd.Flags().String("user", "", "id of an existing user to link")
	inviteCmd.Flags().String("slug", "", "invitation slug (default: random)")
	_ = inviteCmd.MarkFlagRequired("email")
}

func runInvite(cmd *cobra.Command, args []string) error {
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}

	email, _ := cmd.Flags().GetString("email")
	userID, _ := cmd.Flags().GetString("user")
	slug, _ := cmd.Flags().GetString("slug")
	if slug == "" {
		slug = uuid.NewString()
	}

	pool, err := db.Open(cmd.Context(), cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	inv := &auth.Invitation{Slug: slug, Email: email}
	if userID != "" {
		inv.UserID = &userID
	}
	if err := db.NewStore(pool).CreateInvitation(cmd.Context(), inv); err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}

	logger.Info("invitation created", map[string]any{
		"invitation": inv.ID,
		"email":      email,
	})
	fmt.Fprintln(cmd.OutOrStdout(), inv.Slug)
	return nil
}
