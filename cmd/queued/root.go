package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagStorageDir string
	flagExecutor   string
	flagListenAddr string
	flagConfigFile string
	flagVerbose    bool
	flagDryRun     bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cuti-queue",
	Short: "Persistent, crash-safe prompt queue and execution supervisor",
	Long: `cuti-queue runs a single long-lived daemon (serve) that accepts
prompts over HTTP, executes them one at a time against an external AI CLI,
and survives process restarts by persisting all state to disk.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagStorageDir, "storage-dir", "", "Root directory for persisted state (default: ~/.cuti-queue)")
	rootCmd.PersistentFlags().StringVar(&flagExecutor, "executor-command", "", "External CLI binary to invoke (default: claude)")
	rootCmd.PersistentFlags().StringVar(&flagListenAddr, "listen-addr", "", "Control-plane HTTP bind address (default: 127.0.0.1:8420)")
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "Explicit config file path, overriding the project/home search")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug-level logging")
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "Validate configuration and executor availability, then exit without serving")
}
