//go:build !windows

package process

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func checkSysProcAttrs(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatalf("SysProcAttr Setpgid not set")
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ignoring")
	p := New(helperSpec("stubborn", "ignore-term", "HELPER_MARKER="+marker))
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(marker); err == nil {
			break
		}
		if time.Now().After(deadline) {
			_ = p.Stop(0)
			t.Fatalf("helper never installed its SIGTERM handler")
		}
		time.Sleep(20 * time.Millisecond)
	}

	grace := 300 * time.Millisecond
	start := time.Now()
	if err := p.Stop(grace); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if el := time.Since(start); el < grace {
		t.Fatalf("stop returned before grace elapsed: %s", el)
	}
	if !p.HasExited() {
		t.Fatalf("process should be gone after SIGKILL")
	}
	if code, _ := p.ExitCode(); code != -1 {
		t.Fatalf("killed process exit code = %d, want -1", code)
	}
}
