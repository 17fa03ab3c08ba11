package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		var ec exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitCodeError ends the process with code without printing anything more.
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

// AnalyzeFlags holds flags for the analyze command.
type AnalyzeFlags struct {
	Cwd       string
	NoSummary bool
	Format    string
	Timeout   time.Duration
}

// InitFlags holds flags for the init command.
type InitFlags struct {
	Output string
	Force  bool
}

// ProxiesFlags holds flags for the proxies command group.
type ProxiesFlags struct {
	Once    bool
	URL     string
	Timeout time.Duration
}

func buildRoot() *cobra.Command {
	global := &GlobalFlags{}
	root := createRootCommand(global)
	root.AddCommand(
		createAnalyzeCommand(global, &AnalyzeFlags{}),
		createInitCommand(&InitFlags{}),
		createProxiesCommand(global, &ProxiesFlags{}),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "mca",
		Short: "Ask several models the same question at once",
		Long: `mca starts one local proxy per configured worker, sends the same prompt
to every ready worker concurrently and prints each answer with a summary.

Examples:
  mca init                              # write agents_config.json
  mca analyze "review this design" --cwd ./service
  mca analyze "explain the failure" --format json --timeout 2m
  mca proxies up                        # start proxies and hold until Ctrl+C`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to agents config (default: ./agents_config.json)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "override log level (debug, info, warn, error)")
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "mca %s\n", version)
		},
	}
}
