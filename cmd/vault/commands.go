package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fahmaliyi/securevault/cli"
	"github.com/fahmaliyi/securevault/config"
	"github.com/fahmaliyi/securevault/vault"
)

func runShell(cmd *cobra.Command, a *app, _ []string) error {
	if err := a.openOrCreate(cmd.Context(), cmd.OutOrStdout()); err != nil {
		return err
	}
	sh := cli.NewShell(a.session, cmd.InOrStdin(), cmd.OutOrStdout())
	defer sh.Clipboard.Clear()
	sh.ExtractDir = a.cfg.ExportDir
	return a.interactive(cmd.Context(), func(ctx context.Context, changes <-chan string) error {
		if changes != nil {
			go func() {
				for path := range changes {
					sh.Notice("vault file changed on disk by another program: " + path)
				}
			}()
		}
		return sh.Run(ctx)
	})
}

func newInitCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new vault",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			if err := a.create(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Vault created.")
			return nil
		}),
	}
}

func newShellCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open the interactive command shell",
		Args:  cobra.NoArgs,
		RunE:  withApp(flags, runShell),
	}
}

func newTUICmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the full-screen interface",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			if err := a.openOrCreate(cmd.Context(), cmd.OutOrStdout()); err != nil {
				return err
			}
			clip := cli.NewClipboard()
			defer clip.Clear()
			return a.interactive(cmd.Context(), func(ctx context.Context, changes <-chan string) error {
				return cli.RunTUI(ctx, a.session, clip, changes)
			})
		}),
	}
}

func newListCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List every item",
		Args:    cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			if err := a.unlock(cmd.Context()); err != nil {
				return err
			}
			entries, err := cli.ListEntries(a.session)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s\n", shortID(e.ID), e)
			}
			return nil
		}),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// lookup unlocks and resolves ref, an id or id prefix.
func lookup(cmd *cobra.Command, a *app, ref string) (cli.Entry, error) {
	if err := a.unlock(cmd.Context()); err != nil {
		return cli.Entry{}, err
	}
	entries, err := cli.ListEntries(a.session)
	if err != nil {
		return cli.Entry{}, err
	}
	for _, e := range entries {
		if e.ID == ref {
			return e, nil
		}
	}
	var match []cli.Entry
	for _, e := range entries {
		if strings.HasPrefix(e.ID, ref) {
			match = append(match, e)
		}
	}
	switch len(match) {
	case 0:
		return cli.Entry{}, fmt.Errorf("%w: %s", vault.ErrItemNotFound, ref)
	case 1:
		return match[0], nil
	}
	return cli.Entry{}, fmt.Errorf("id prefix %q matches %d items", ref, len(match))
}

func newShowCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print one item",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			e, err := lookup(cmd, a, args[0])
			if err != nil {
				return err
			}
			it, err := a.session.Item(e.Collection, e.ID)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cli.DescribeItem(it))
			return nil
		}),
	}
}

func newAddNoteCmd(flags *config.Flags) *cobra.Command {
	var title, content string
	cmd := &cobra.Command{
		Use:   "add-note",
		Short: "Add a note; content is read from stdin unless --content is given",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			if err := a.unlock(cmd.Context()); err != nil {
				return err
			}
			if !cmd.Flags().Changed("content") {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = strings.TrimRight(string(b), "\n")
			}
			d, err := cli.AddNote(cmd.Context(), a.session, title, content)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added note %s\n", d.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&title, "title", "", "note title (required)")
	cmd.Flags().StringVar(&content, "content", "", "note content")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newAddCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "add PATH...",
		Short: "Add files; images become photos",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.unlock(cmd.Context()); err != nil {
				return err
			}
			for _, path := range args {
				it, err := cli.AddPath(cmd.Context(), a.session, path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s as %s\n", path, it.Collection(), it.ItemID())
			}
			return nil
		}),
	}
}

func newExtractCmd(flags *config.Flags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "extract ID",
		Short: "Write a stored file or photo back to disk",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			e, err := lookup(cmd, a, args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = a.cfg.ExportDir
			}
			path, err := cli.Extract(a.session, e, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Written to %s\n", path)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (default the export directory)")
	return cmd
}

func newRemoveCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			e, err := lookup(cmd, a, args[0])
			if err != nil {
				return err
			}
			if err := cli.DeleteEntry(cmd.Context(), a.session, e); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", e.ID)
			return nil
		}),
	}
}

func newExportCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "export [NAME]",
		Short: "Write an encrypted copy of the vault",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.unlock(cmd.Context()); err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			loc, err := a.session.ExportVault(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", loc)
			return nil
		}),
	}
}

func newImportCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "import PATH",
		Short: "Replace the vault with an exported one",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, args []string) error {
			pw, err := readPassword("Password of the imported vault: ")
			if err != nil {
				return err
			}
			defer vault.Zero(pw)
			if err := a.session.ImportVault(cmd.Context(), args[0], pw); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.file != nil {
				if path, ok := a.file.ActiveFile(); ok {
					fmt.Fprintf(out, "Imported; %s is now the open vault for this session.\n", path)
					return nil
				}
			}
			fmt.Fprintln(out, "Imported.")
			return nil
		}),
	}
}

func newPasswdCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the master password",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			old, err := readPassword("Current master password: ")
			if err != nil {
				return err
			}
			defer vault.Zero(old)
			if err := a.session.Unlock(cmd.Context(), old); err != nil {
				return err
			}
			pw, err := readNewPassword("New master password: ")
			if err != nil {
				return err
			}
			defer vault.Zero(pw)
			if len(pw) == 0 {
				return errors.New("the new password must not be empty")
			}
			if err := a.session.ChangePassword(cmd.Context(), old, pw); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
			return nil
		}),
	}
}

func newConfigCmd(flags *config.Flags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration and where each value came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*flags)
			if err != nil {
				return err
			}
			if !asJSON {
				fmt.Fprint(cmd.OutOrStdout(), cfg.FormatText())
				return nil
			}
			out, err := cfg.FormatJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
