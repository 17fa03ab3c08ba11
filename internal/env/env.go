package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env composes child process environments. It is immutable: WithSet and
// WithBase return modified copies, so one Env can be shared by concurrent
// launches.
type Env struct {
	vars Var // global overrides (K->V)
	base Var // base environment; nil means the OS environment
}

func New() *Env {
	return &Env{vars: make(Var)}
}

// WithSet returns a copy of e with K=V set as a global override.
func (e *Env) WithSet(k, v string) *Env {
	out := e.clone()
	if k != "" {
		out.vars[k] = v
	}
	return out
}

// WithKVs returns a copy of e with every "K=V" entry set as a global
// override. Later entries win.
func (e *Env) WithKVs(kvs []string) *Env {
	out := e.clone()
	for k, v := range parse(kvs) {
		out.vars[k] = v
	}
	return out
}

// WithBase returns a copy of e that uses kvs ("K=V") as the base instead of
// the OS environment. An empty kvs gives an empty base.
func (e *Env) WithBase(kvs []string) *Env {
	out := e.clone()
	out.base = parse(kvs)
	return out
}

// Get returns the global override for k.
func (e *Env) Get(k string) (string, bool) {
	v, ok := e.vars[k]
	return v, ok
}

// Merge composes the final environment list applying order:
// base (OS env unless WithBase was used), then global overrides, then
// perProc ("K=V") overrides. ${VAR} references are expanded against the
// composed map (single pass, no recursion). Output is sorted by key.
func (e *Env) Merge(perProc []string) []string {
	base := e.base
	if base == nil {
		base = parse(os.Environ())
	}
	m := make(Var, len(base)+len(e.vars)+len(perProc))
	for k, v := range base {
		m[k] = v
	}
	for k, v := range e.vars {
		m[k] = v
	}
	for k, v := range parse(perProc) {
		m[k] = v
	}

	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func (e *Env) clone() *Env {
	out := &Env{vars: make(Var, len(e.vars)+1)}
	for k, v := range e.vars {
		out.vars[k] = v
	}
	if e.base != nil {
		out.base = make(Var, len(e.base))
		for k, v := range e.base {
			out.base[k] = v
		}
	}
	return out
}

// parse converts "K=V" entries into a map, skipping malformed entries and empty keys.
func parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string {
		if v, ok := m[k]; ok {
			return v
		}
		return "${" + k + "}"
	})
}
