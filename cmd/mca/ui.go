package main

import (
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

type ui struct {
	tty   bool
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

// newUI colors output only when w is a terminal.
func newUI(w io.Writer) *ui {
	tty := isTerminal(w)
	mk := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if !tty {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return &ui{
		tty:   tty,
		title: mk(color.FgHiCyan, color.Bold),
		ok:    mk(color.FgGreen, color.Bold),
		info:  mk(color.FgCyan),
		warn:  mk(color.FgYellow),
		err:   mk(color.FgRed, color.Bold),
		dim:   mk(color.FgHiBlack),
	}
}

// spin starts a spinner on w when it is a terminal. The returned stop is always safe to call.
func (u *ui) spin(w io.Writer, msg string) (stop func()) {
	if !u.tty {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + msg
	s.Start()
	return s.Stop
}

// progress returns a bar over n steps on w, or nil when w is not a terminal.
func (u *ui) progress(w io.Writer, n int, desc string) *progressbar.ProgressBar {
	if !u.tty || n <= 0 {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(18),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
