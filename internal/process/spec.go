package process

import (
	"os/exec"

	"github.com/loykin/mca/internal/logger"
)

// Spec describes one proxy child: what to exec and where its output goes.
type Spec struct {
	Name    string            `json:"name"`
	Port    int               `json:"port"`
	Command string            `json:"command"`  // executable, resolved via PATH
	Args    []string          `json:"args"`     // passed verbatim, no shell
	Env     []string          `json:"env"`      // full environment; empty inherits the parent's
	WorkDir string            `json:"work_dir"` // optional working dir
	Log     logger.FileConfig `json:"log"`      // stdout/stderr capture; unset discards output
}

// BuildCommand constructs the *exec.Cmd for the spec. Arguments are never
// routed through a shell so worker names cannot inject metacharacters.
func (s *Spec) BuildCommand() *exec.Cmd {
	// #nosec G204 -- launcher and args come from operator config
	cmd := exec.Command(s.Command, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}
	configureSysProcAttr(cmd)
	return cmd
}
