package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fahmaliyi/securevault/cli"
	"github.com/fahmaliyi/securevault/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, cli.Describe(err))
		os.Exit(1)
	}
}

type runFunc func(cmd *cobra.Command, a *app, args []string) error

// withApp wires a fresh app for one command and tears it down afterwards.
func withApp(flags *config.Flags, run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(*flags, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(); cerr != nil {
				a.log.Warn().Err(cerr).Msg("close failed")
			}
		}()
		return run(cmd, a, args)
	}
}

// NewRootCmd builds the command tree; with no subcommand it opens the
// interactive shell, creating a vault first if there is none.
func NewRootCmd() *cobra.Command {
	flags := &config.Flags{}

	rootCmd := &cobra.Command{
		Use:           "vault",
		Short:         "Encrypted personal vault for notes, photos and files",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          withApp(flags, runShell),
	}
	rootCmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "config file (default <data-dir>/config.yml)")
	rootCmd.PersistentFlags().StringVar(&flags.DataDir, "data-dir", "", "data directory (default ~/.securevault)")
	rootCmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newInitCmd(flags),
		newShellCmd(flags),
		newTUICmd(flags),
		newListCmd(flags),
		newShowCmd(flags),
		newAddNoteCmd(flags),
		newAddCmd(flags),
		newExtractCmd(flags),
		newRemoveCmd(flags),
		newExportCmd(flags),
		newImportCmd(flags),
		newPasswdCmd(flags),
		newConfigCmd(flags),
	)
	return rootCmd
}
