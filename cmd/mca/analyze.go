package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/loykin/mca"
	"github.com/loykin/mca/internal/report"
)

func createAnalyzeCommand(global *GlobalFlags, flags *AnalyzeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <prompt>",
		Short: "Send a prompt to every configured worker",
		Long: `Start a proxy per enabled worker, send the prompt to every ready worker
concurrently and print each answer. Exit status is 0 when all workers
succeed, 2 when some do and 1 when none do.

Examples:
  mca analyze "summarize the open risks"
  mca analyze "review this module" --cwd ./internal/proxy --no-summary
  mca analyze "list the TODOs" --format yaml --timeout 90s`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, global, flags, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&flags.Cwd, "cwd", "", "working directory passed to workers (default: current directory)")
	cmd.Flags().BoolVar(&flags.NoSummary, "no-summary", false, "do not print the summary block")
	cmd.Flags().StringVar(&flags.Format, "format", report.FormatText, "output format: text, json or yaml")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 0, "per-worker timeout (default: agent.timeout from config)")
	return cmd
}

func runAnalyze(cmd *cobra.Command, global *GlobalFlags, flags *AnalyzeFlags, prompt string) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if strings.TrimSpace(prompt) == "" {
		return errors.New("prompt must not be empty")
	}
	format, err := report.ParseFormat(flags.Format)
	if err != nil {
		return err
	}
	dir, err := workDir(flags.Cwd)
	if err != nil {
		return err
	}
	cfg, log, err := loadConfig(global, stderr)
	if err != nil {
		return err
	}

	u := newUI(stderr)
	var bar *progressbar.ProgressBar
	s, err := mca.Open(cmd.Context(), cfg, mca.WithLogger(log), mca.WithObserver(func(mca.Outcome) {
		if bar != nil {
			_ = bar.Add(1)
		}
	}))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	stop := u.spin(stderr, fmt.Sprintf("Starting %d proxies...", len(cfg.Enabled())))
	s.StartProxies(cmd.Context())
	stop()

	reportProxies(stderr, u, s.Failed())
	ready := s.ReadyWorkers()
	if len(ready) == 0 {
		_, _ = fmt.Fprintf(stderr, "%s no proxy is ready, nothing to ask\n", u.err("[ERROR]"))
		return exitCodeError{code: report.ExitNone}
	}
	_, _ = fmt.Fprintf(stderr, "%s %d/%d workers ready, working directory %s\n", u.info("[INFO]"), len(ready), len(cfg.Enabled()), dir)

	bar = u.progress(stderr, len(ready), "Waiting for workers")
	outs, err := s.Analyze(cmd.Context(), prompt, mca.WithTimeout(flags.Timeout), mca.WithWorkDir(dir))
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	err = report.Write(stdout, outs, report.Options{
		Format:  format,
		Summary: !flags.NoSummary,
		Color:   format == report.FormatText && isTerminal(stdout),
	})
	if err != nil {
		return err
	}
	if code := report.ExitCode(outs); code != report.ExitAllSuccess {
		return exitCodeError{code: code}
	}
	return nil
}

// workDir resolves dir (or the current directory) to an existing absolute directory.
func workDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("--cwd: %w", err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("--cwd: %s is not a directory", abs)
	}
	return abs, nil
}
