package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/mca"
	"github.com/loykin/mca/pkg/client"
)

func createProxiesCommand(global *GlobalFlags, flags *ProxiesFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxies",
		Short: "Inspect the per-worker proxies",
	}
	up := &cobra.Command{
		Use:   "up",
		Short: "Start every proxy and hold until interrupted",
		Long: `Start a proxy per enabled worker, print which became ready and keep
them running until SIGINT or SIGTERM. Useful to check the launch contract.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxiesUp(cmd, global, flags)
		},
	}
	up.Flags().BoolVar(&flags.Once, "once", false, "stop the proxies right after printing their state")

	status := &cobra.Command{
		Use:   "status [name]",
		Short: "Query the status endpoint of a running session",
		Long: `Read /proxies from a session started with metrics.enabled and
metrics.listen set (for example by "mca proxies up").

Examples:
  mca proxies status --url http://127.0.0.1:9464
  mca proxies status cortex-15`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxiesStatus(cmd, flags, args)
		},
	}
	status.Flags().StringVar(&flags.URL, "url", client.DefaultConfig().BaseURL, "status endpoint base URL")
	status.Flags().DurationVar(&flags.Timeout, "timeout", 5*time.Second, "request timeout")

	cmd.AddCommand(up, status)
	return cmd
}

func runProxiesStatus(cmd *cobra.Command, flags *ProxiesFlags, args []string) error {
	c := client.New(client.Config{BaseURL: flags.URL, Timeout: flags.Timeout})
	var ps []client.Proxy
	if len(args) == 1 {
		p, err := c.Proxy(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		ps = append(ps, p)
	} else {
		var err error
		if ps, err = c.Proxies(cmd.Context()); err != nil {
			return err
		}
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tPORT\tPID\tREADY\tRSS\tCPU%\tERROR")
	for _, p := range ps {
		rss, cpu := "-", "-"
		if p.Usage != nil {
			rss = fmt.Sprintf("%.1fMiB", float64(p.Usage.RSSBytes)/(1<<20))
			cpu = fmt.Sprintf("%.1f", p.Usage.CPUPercent)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%t\t%s\t%s\t%s\n", p.Name, p.Port, p.PID, p.Ready, rss, cpu, p.LastError)
	}
	return tw.Flush()
}

func runProxiesUp(cmd *cobra.Command, global *GlobalFlags, flags *ProxiesFlags) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	cfg, log, err := loadConfig(global, stderr)
	if err != nil {
		return err
	}
	s, err := mca.Open(cmd.Context(), cfg, mca.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	u := newUI(stderr)
	stop := u.spin(stderr, fmt.Sprintf("Starting %d proxies...", len(cfg.Enabled())))
	s.StartProxies(cmd.Context())
	stop()

	printHandles(stdout, s.Handles())
	if len(s.Ready()) == 0 {
		return exitCodeError{code: 1}
	}
	if flags.Once {
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	_, _ = fmt.Fprintf(stderr, "%s proxies running, press Ctrl+C to stop\n", u.info("[INFO]"))
	<-ctx.Done()
	_, _ = fmt.Fprintln(stderr, u.warn("[WARN]"), "Stopping...")
	return nil
}

func printHandles(w io.Writer, hs []mca.Handle) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tPORT\tPID\tREADY\tERROR")
	for _, h := range hs {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%t\t%s\n", h.Name, h.Port, h.PID, h.Ready, h.LastError)
	}
	_ = tw.Flush()
}
