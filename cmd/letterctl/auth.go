package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jun/dijitalmektup/internal/app"
	"github.com/jun/dijitalmektup/internal/identity"
	"github.com/jun/dijitalmektup/internal/model"
)

func newLoginCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with Google",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openServices(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			session := identity.NewSession()
			var persistErr error
			stop := identity.Persist(session, flags.sessionPath, func(err error) { persistErr = err })
			defer stop()

			adapter := identity.NewAdapter(session, newProvider(s, cmd.ErrOrStderr()), s.Log)
			if err := adapter.Login(cmd.Context()); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if persistErr != nil {
				return fmt.Errorf("saving session: %w", persistErr)
			}

			user := session.Current()
			color.New(color.FgGreen).Fprint(cmd.OutOrStdout(), "Signed in")
			fmt.Fprintf(cmd.OutOrStdout(), " as %s (%s)\n", displayName(user.DisplayName, user.UID), user.Email)
			return nil
		},
	}
}

func newLogoutCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, flags, func(s *app.Services, user *model.User) error {
				session := identity.NewSession()
				session.Set(user)
				var persistErr error
				stop := identity.Persist(session, flags.sessionPath, func(err error) { persistErr = err })
				defer stop()

				// The provider error is logged; the session is cleared either way.
				_ = identity.NewAdapter(session, newProvider(s, cmd.ErrOrStderr()), s.Log).Logout(cmd.Context())
				if persistErr != nil {
					return fmt.Errorf("removing session: %w", persistErr)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}

func newWhoamiCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := identity.LoadFile(flags.sessionPath)
			if err != nil {
				return fmt.Errorf("reading session: %w", err)
			}
			if user == nil {
				return errNotSignedIn
			}
			if flags.jsonOutput {
				return writeJSON(cmd, user)
			}

			cyan := color.New(color.FgCyan)
			out := cmd.OutOrStdout()
			cyan.Fprint(out, "User:  ")
			fmt.Fprintln(out, displayName(user.DisplayName, user.UID))
			cyan.Fprint(out, "ID:    ")
			fmt.Fprintln(out, user.UID)
			if user.Email != "" {
				cyan.Fprint(out, "Email: ")
				fmt.Fprintln(out, user.Email)
			}
			return nil
		},
	}
}

func displayName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
