package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/loykin/mca/internal/orchestrator"
)

const (
	Separator    = "=================================================="
	SubSeparator = "--------------------------------------------------"
)

// Output formats accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Exit codes for a finished run.
const (
	ExitAllSuccess = 0
	ExitNone       = 1
	ExitPartial    = 2
)

// ParseFormat normalizes an output format name.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text, json or yaml)", s)
	}
}

// Summary counts outcomes by status.
type Summary struct {
	Total   int `json:"total" yaml:"total"`
	Success int `json:"success" yaml:"success"`
	Error   int `json:"error" yaml:"error"`
	Timeout int `json:"timeout" yaml:"timeout"`
}

func Summarize(outs []orchestrator.Outcome) Summary {
	s := Summary{Total: len(outs)}
	for _, o := range outs {
		switch o.Status {
		case orchestrator.StatusSuccess:
			s.Success++
		case orchestrator.StatusError:
			s.Error++
		case orchestrator.StatusTimeout:
			s.Timeout++
		}
	}
	return s
}

// ExitCode is 0 when every worker succeeded, 2 when some did and 1 when none did.
func ExitCode(outs []orchestrator.Outcome) int {
	s := Summarize(outs)
	switch {
	case s.Total > 0 && s.Success == s.Total:
		return ExitAllSuccess
	case s.Success > 0:
		return ExitPartial
	default:
		return ExitNone
	}
}

// Options controls rendering.
type Options struct {
	Format  string
	Summary bool
	Color   bool // text format only
}

type document struct {
	Results []orchestrator.Outcome `json:"results" yaml:"results"`
	Summary *Summary               `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Write renders outcomes to w.
func Write(w io.Writer, outs []orchestrator.Outcome, opts Options) error {
	format, err := ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	switch format {
	case FormatText:
		_, err := io.WriteString(w, Text(outs, opts.Summary, opts.Color)+"\n")
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(doc(outs, opts.Summary))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc(outs, opts.Summary)); err != nil {
			return err
		}
		return enc.Close()
	}
	return nil
}

func doc(outs []orchestrator.Outcome, withSummary bool) document {
	d := document{Results: outs}
	if d.Results == nil {
		d.Results = []orchestrator.Outcome{}
	}
	if withSummary {
		s := Summarize(outs)
		d.Summary = &s
	}
	return d
}

type palette struct {
	title, ok, warn, err, dim func(a ...interface{}) string
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		title: mk(color.FgHiCyan, color.Bold),
		ok:    mk(color.FgGreen, color.Bold),
		warn:  mk(color.FgYellow),
		err:   mk(color.FgRed, color.Bold),
		dim:   mk(color.FgHiBlack),
	}
}

// Text renders the per-worker blocks and, optionally, the summary block.
func Text(outs []orchestrator.Outcome, withSummary, colored bool) string {
	p := newPalette(colored)
	var b strings.Builder
	if len(outs) == 0 {
		b.WriteString("No results.")
	}
	for i, o := range outs {
		if i > 0 {
			b.WriteString("\n\n" + p.dim(Separator) + "\n\n")
		}
		b.WriteString(p.title(fmt.Sprintf("Model [%s] answer:", o.Worker)) + "\n")
		b.WriteString(p.dim(SubSeparator) + "\n")
		switch o.Status {
		case orchestrator.StatusSuccess:
			if o.Payload == "" {
				b.WriteString("(no content)")
			} else {
				b.WriteString(o.Payload)
			}
		case orchestrator.StatusTimeout:
			b.WriteString(p.warn("[timeout]") + " " + orUnknown(o.Error))
		default:
			b.WriteString(p.err("[error]") + " " + orUnknown(o.Error))
		}
	}
	if withSummary {
		s := Summarize(outs)
		b.WriteString("\n\n")
		b.WriteString(Separator + "\n")
		b.WriteString(p.title("Summary") + "\n")
		b.WriteString(SubSeparator + "\n")
		fmt.Fprintf(&b, "Total: %d models\n", s.Total)
		fmt.Fprintf(&b, "Success: %s\n", p.ok(s.Success))
		fmt.Fprintf(&b, "Error: %s\n", p.err(s.Error))
		fmt.Fprintf(&b, "Timeout: %s\n", p.warn(s.Timeout))
		b.WriteString(Separator)
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown error"
	}
	return s
}
