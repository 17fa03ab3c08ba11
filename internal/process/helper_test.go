package process

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"
)

// TestHelperProcess is re-executed as the child in tests. It does nothing
// unless GO_WANT_HELPER_PROCESS is set.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	switch args[1] {
	case "sleep":
		time.Sleep(time.Minute)
	case "exit3":
		os.Exit(3)
	case "echo":
		fmt.Fprintln(os.Stdout, "hello stdout")
		fmt.Fprintln(os.Stderr, "hello stderr")
		os.Exit(0)
	case "ignore-term":
		signal.Ignore(syscall.SIGTERM)
		if m := os.Getenv("HELPER_MARKER"); m != "" {
			_ = os.WriteFile(m, []byte("ok"), 0o600)
		}
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}

func helperSpec(name, mode string, extraEnv ...string) Spec {
	env := append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	env = append(env, extraEnv...)
	return Spec{
		Name:    name,
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--", mode},
		Env:     env,
	}
}

func waitExited(t *testing.T, p *Process, d time.Duration) {
	t.Helper()
	select {
	case <-p.Exited():
	case <-time.After(d):
		t.Fatalf("process %s did not exit within %s", p.Name(), d)
	}
}
