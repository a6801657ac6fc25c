package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jun/dijitalmektup/internal/app"
	"github.com/jun/dijitalmektup/internal/config"
	"github.com/jun/dijitalmektup/internal/identity"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
)

var errNotSignedIn = errors.New("not signed in, run 'letterctl login' first")

type rootFlags struct {
	sessionPath string
	jsonOutput  bool
	verbose     bool
}

// openServices wires the backend the same way the API does. Tests replace it.
var openServices = func(ctx context.Context, flags *rootFlags) (*app.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	level := "warn"
	if flags.verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: true, Writer: os.Stderr})
	if err != nil {
		return nil, err
	}
	return app.NewServices(ctx, cfg, log)
}

// newProvider returns the sign-in flow used by login and logout.
var newProvider = func(s *app.Services, out io.Writer) identity.Provider {
	cyan := color.New(color.FgCyan)
	return identity.NewLoopbackProvider(s.Config.Google.ClientID, s.Secrets.GoogleClientSecret, func(url string) error {
		fmt.Fprintln(out, "Open this link in your browser to sign in:")
		cyan.Fprintf(out, "  %s\n", url)
		return nil
	})
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "letterctl-session.json"
	}
	return filepath.Join(dir, "letterctl", "session.json")
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "letterctl",
		Short:         "Read, send and export digital letters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.sessionPath, "session", defaultSessionPath(), "File holding the signed-in user")
	cmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newLoginCmd(flags))
	cmd.AddCommand(newLogoutCmd(flags))
	cmd.AddCommand(newWhoamiCmd(flags))
	cmd.AddCommand(newListCmd(flags))
	cmd.AddCommand(newGetCmd(flags))
	cmd.AddCommand(newSendCmd(flags))
	cmd.AddCommand(newDeleteCmd(flags))
	cmd.AddCommand(newExportCmd(flags))
	cmd.AddCommand(newThemesCmd(flags))

	return cmd
}

// withUser opens the services for the signed-in user and closes them after fn.
func withUser(cmd *cobra.Command, flags *rootFlags, fn func(s *app.Services, user *model.User) error) error {
	user, err := identity.LoadFile(flags.sessionPath)
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}
	if user == nil {
		return errNotSignedIn
	}

	s, err := openServices(cmd.Context(), flags)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s, user)
}

func writeJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
