// Command goscheduler is the CLI entrypoint: it serves the HTTP API and
// offers task/cron management subcommands against the same on-disk store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/scheduler/internal/config"
)

var cfg config.Config

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "goscheduler",
		Short: "Self-hosted job scheduler and streaming task runner",
	}

	root.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "override DATA_DIR")
	root.PersistentFlags().StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "override HTTP_ADDR")

	root.AddCommand(serveCmd(), taskCmd(), cronCmd(), schedulerCmd())
	return root
}

func main() {
	cfg = config.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
