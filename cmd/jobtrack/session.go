package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/garnizeh/jobsync/internal/engine"
)

func credentialFlags(cmd *cobra.Command, email, password *string) {
	cmd.Flags().StringVar(email, "email", "", "Account email")
	cmd.Flags().StringVar(password, "password", "", "Account password (or JOBSYNC_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
}

func password(p string) string {
	if p != "" {
		return p
	}
	return os.Getenv("JOBSYNC_PASSWORD")
}

func newSignupCmd(app *App) *cobra.Command {
	var email, pass string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				auth, err := e.Signup(ctx, strings.TrimSpace(email), password(pass))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed up as %s\n", auth.Email)
				return nil
			})
		},
	}
	credentialFlags(cmd, &email, &pass)
	return cmd
}

func newLoginCmd(app *App) *cobra.Command {
	var email, pass string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				auth, err := e.Login(ctx, strings.TrimSpace(email), password(pass))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", auth.Email)
				return nil
			})
		},
	}
	credentialFlags(cmd, &email, &pass)
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				if err := e.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				me, err := e.Me(ctx)
				if err != nil {
					return err
				}
				if app.JSON {
					return app.writeJSON(cmd, me)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (user %d)\n", me.Email, me.UserID)
				if claims, err := e.SessionClaims(); err == nil && !claims.ExpiresAt.IsZero() {
					fmt.Fprintf(cmd.OutOrStdout(), "session expires %s\n", humanize.Time(claims.ExpiresAt))
				}
				return nil
			})
		},
	}
}
