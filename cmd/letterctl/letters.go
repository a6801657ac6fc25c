package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jun/dijitalmektup/internal/app"
	"github.com/jun/dijitalmektup/internal/editor"
	"github.com/jun/dijitalmektup/internal/letter"
	"github.com/jun/dijitalmektup/internal/markup"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/theme"
)

type listOptions struct {
	box string
}

func newListCmd(flags *rootFlags) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List letters in a mailbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, flags, func(s *app.Services, user *model.User) error {
				return runList(cmd, flags, opts, s, user)
			})
		},
	}

	cmd.Flags().StringVar(&opts.box, "box", "all", "Mailbox: all, sent, received or drafts")

	return cmd
}

func runList(cmd *cobra.Command, flags *rootFlags, opts *listOptions, s *app.Services, user *model.User) error {
	ctx := cmd.Context()

	var letters []model.Letter
	switch opts.box {
	case "all":
		letters = s.Letters.All(ctx, user.UID)
	case "sent":
		letters = s.Letters.Sent(ctx, user.UID)
	case "received":
		letters = s.Letters.Received(ctx, user.UID)
	case "drafts":
		letters = s.Letters.Drafts(ctx, user.UID)
	default:
		return fmt.Errorf("unknown mailbox %q", opts.box)
	}

	if flags.jsonOutput {
		if letters == nil {
			letters = []model.Letter{}
		}
		return writeJSON(cmd, letters)
	}
	if len(letters) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No letters.")
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTITLE\tFROM\tTO\tPAGES\tDATE")
	for _, l := range letters {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%s\n",
			l.ID,
			valueOrFallback(l.Title, "(untitled)"),
			valueOrFallback(l.From, "-"),
			valueOrFallback(l.To, "-"),
			len(l.Content),
			formatTimestamp(l.Timestamp),
		)
	}
	return writer.Flush()
}

func newGetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a letter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, flags, func(s *app.Services, user *model.User) error {
				l, err := s.Letters.GetFor(cmd.Context(), user.UID, args[0])
				if err != nil {
					return err
				}
				if flags.jsonOutput {
					return writeJSON(cmd, l)
				}
				printLetter(cmd.OutOrStdout(), l)
				return nil
			})
		},
	}
}

func printLetter(out io.Writer, l *model.Letter) {
	cyan := color.New(color.FgCyan)
	bold := color.New(color.Bold)

	bold.Fprintln(out, valueOrFallback(l.Title, "(untitled)"))
	cyan.Fprint(out, "From: ")
	fmt.Fprintln(out, valueOrFallback(l.From, "-"))
	cyan.Fprint(out, "To:   ")
	fmt.Fprintln(out, valueOrFallback(l.To, "-"))
	cyan.Fprint(out, "Date: ")
	fmt.Fprintln(out, formatTimestamp(l.Timestamp))

	for i, page := range l.Content {
		fmt.Fprintln(out)
		color.New(color.FgYellow).Fprintf(out, "--- page %d/%d ---\n", i+1, len(l.Content))
		for _, line := range markup.TextLines(page.HTML) {
			fmt.Fprintln(out, line)
		}
	}
}

type sendOptions struct {
	to    string
	title string
	theme string
}

func newSendCmd(flags *rootFlags) *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send <file.md>",
		Short: "Send a letter written in markdown",
		Long: "Send a letter written in markdown. A line holding only '+++' starts a new page.\n" +
			"Use '-' to read from standard input. Without --to the letter is saved as a draft.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			pages, err := renderPages(source)
			if err != nil {
				return err
			}
			return withUser(cmd, flags, func(s *app.Services, user *model.User) error {
				return runSend(cmd, opts, s, user, pages)
			})
		},
	}

	cmd.Flags().StringVar(&opts.to, "to", "", "Recipient user id")
	cmd.Flags().StringVar(&opts.title, "title", "", "Letter title")
	cmd.Flags().StringVar(&opts.theme, "theme", theme.DefaultURL, "Paper theme id or URL")

	return cmd
}

func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		return string(raw), err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(raw), nil
}

// renderPages splits markdown on '+++' lines and renders each page.
func renderPages(source string) ([]string, error) {
	var chunks []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(source))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "+++" {
			chunks = append(chunks, current.String())
			current.Reset()
			continue
		}
		current.WriteString(scanner.Text())
		current.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	chunks = append(chunks, current.String())

	pages := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		html, err := markup.RenderMarkdown(chunk)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		if n := markup.CharCount(html); n > editor.DefaultCharLimit {
			return nil, fmt.Errorf("page %d has %d characters, the limit is %d", i+1, n, editor.DefaultCharLimit)
		}
		pages = append(pages, html)
	}
	return pages, nil
}

func runSend(cmd *cobra.Command, opts *sendOptions, s *app.Services, user *model.User, pages []string) error {
	draft := model.LetterDraft{
		Title:   opts.title,
		Content: pages,
		Theme:   opts.theme,
		Owner:   user.UID,
	}
	if opts.to != "" {
		if err := letter.ValidateSendable(pages); err != nil {
			return err
		}
		draft.From, draft.To = user.UID, opts.to
	}

	id, err := s.Letters.Create(cmd.Context(), draft)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	if opts.to == "" {
		green.Fprint(cmd.OutOrStdout(), "Saved draft ")
	} else {
		green.Fprintf(cmd.OutOrStdout(), "Sent to %s ", opts.to)
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func newDeleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a letter you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, flags, func(s *app.Services, user *model.User) error {
				if err := s.Letters.Delete(cmd.Context(), user.UID, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

type exportOptions struct {
	output string
}

func newExportCmd(flags *rootFlags) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a letter as a zip of page images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, flags, func(s *app.Services, user *model.User) error {
				return runExport(cmd, opts, s, user, args[0])
			})
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (default <id>.zip)")

	return cmd
}

func runExport(cmd *cobra.Command, opts *exportOptions, s *app.Services, user *model.User, id string) error {
	l, err := s.Letters.GetFor(cmd.Context(), user.UID, id)
	if err != nil {
		return err
	}

	path := opts.output
	if path == "" {
		path = id + ".zip"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Exporter.Export(cmd.Context(), l, f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("exporting letter: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	color.New(color.FgGreen).Fprint(cmd.OutOrStdout(), "Exported ")
	fmt.Fprintf(cmd.OutOrStdout(), "%d pages to %s\n", len(l.Content), path)
	return nil
}

func newThemesCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "themes",
		Short: "List paper themes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, flags, func(s *app.Services, user *model.User) error {
				builtins := theme.Builtins()
				custom := s.Themes.ListCustom(cmd.Context(), user.UID)
				if flags.jsonOutput {
					return writeJSON(cmd, map[string]any{"builtin": builtins, "custom": custom})
				}

				writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(writer, "ID\tNAME\tKIND\tURL")
				for _, b := range builtins {
					fmt.Fprintf(writer, "%s\t%s\tbuiltin\t%s\n", b.ID, b.Name, b.URL)
				}
				for _, c := range custom {
					fmt.Fprintf(writer, "%s\t%s\tcustom\t%s\n", c.ID, c.Name, c.URL)
				}
				return writer.Flush()
			})
		},
	}
}

func valueOrFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
