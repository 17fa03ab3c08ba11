// Command mca-stubproxy is a local stand-in for the per-worker proxy. It
// honors the same launch contract (KEY=VALUE arguments or environment, then
// -auto) and answers the Messages API with a canned reply.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/mca/internal/stubapi"
)

func main() {
	if err := newRoot(os.Getenv).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type settings struct {
	Model string
	Port  int
	Host  string
	Delay time.Duration
	Auto  bool
}

// parseArgs reads KEY=VALUE pairs and flags. Arguments win over the environment.
func parseArgs(args []string, getenv func(string) string) (settings, error) {
	vals := map[string]string{}
	for _, k := range []string{"BIG_MODEL", "PORT", "HOST", "STUB_DELAY"} {
		if v := getenv(k); v != "" {
			vals[k] = v
		}
	}
	s := settings{Host: "127.0.0.1"}
	for _, a := range args {
		switch {
		case a == "-auto" || a == "--auto":
			s.Auto = true
		case strings.HasPrefix(a, "-"):
			return s, fmt.Errorf("unknown flag %q", a)
		default:
			k, v, ok := strings.Cut(a, "=")
			if !ok || k == "" {
				return s, fmt.Errorf("expected KEY=VALUE, got %q", a)
			}
			vals[k] = v
		}
	}

	s.Model = vals["BIG_MODEL"]
	if s.Model == "" {
		s.Model = "stub"
	}
	if h := vals["HOST"]; h != "" {
		s.Host = h
	}
	p, err := strconv.Atoi(vals["PORT"])
	if err != nil || p <= 0 || p > 65535 {
		return s, fmt.Errorf("PORT must be 1-65535, got %q", vals["PORT"])
	}
	s.Port = p
	if d := vals["STUB_DELAY"]; d != "" {
		if s.Delay, err = time.ParseDuration(d); err != nil {
			return s, fmt.Errorf("STUB_DELAY: %w", err)
		}
	}
	return s, nil
}

func newRoot(getenv func(string) string) *cobra.Command {
	return &cobra.Command{
		Use:   "mca-stubproxy [KEY=VALUE ...] [-auto]",
		Short: "Local fake of the per-worker Messages API proxy",
		Long: `mca-stubproxy listens on PORT and answers POST /v1/messages with
"[<BIG_MODEL>] <last user message>", streamed when requested.

Examples:
  mca-stubproxy BIG_MODEL=cortex-15 PORT=4902 -auto
  PORT=4902 STUB_DELAY=2s mca-stubproxy`,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				if a == "-h" || a == "--help" {
					return cmd.Help()
				}
			}
			s, err := parseArgs(args, getenv)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), s)
		},
	}
}

func serve(ctx context.Context, s settings) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := stubapi.New(stubapi.Options{Name: s.Model, Delay: s.Delay})
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	slog.Info("stub proxy listening", "addr", addr, "model", s.Model, "auto", s.Auto)

	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(addr) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}
