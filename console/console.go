// Package console provides the interactive prompts, coloured messages and
// trigger spinner of the console programs.
package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/theckman/yacspin"
)

// ErrAborted is returned when the user presses Ctrl-C or Ctrl-D at a prompt
var ErrAborted = errors.New("input aborted")

// LineReader reads one line of input after printing a prompt.
// *liner.State satisfies it.
type LineReader interface {
	Prompt(prompt string) (string, error)
}

// Console is a terminal session
type Console struct {
	in  LineReader
	out io.Writer

	close func() error
	tty   bool

	errc  *color.Color
	warnc *color.Color
	infoc *color.Color
}

// New opens the terminal for line editing.  Ctrl-C at a prompt aborts it.
func New() *Console {
	st := liner.NewLiner()
	st.SetCtrlCAborts(true)
	c := NewWith(st, color.Output)
	c.close = st.Close
	c.tty = true
	return c
}

// NewWith returns a console reading from in and writing to out
func NewWith(in LineReader, out io.Writer) *Console {
	return &Console{
		in:    in,
		out:   out,
		close: func() error { return nil },
		errc:  color.New(color.FgRed, color.Bold),
		warnc: color.New(color.FgYellow),
		infoc: color.New(color.FgCyan),
	}
}

// Close restores the terminal
func (c *Console) Close() error {
	return c.close()
}

// Out is where the console prints
func (c *Console) Out() io.Writer {
	return c.out
}

// Printf prints to the console
func (c *Console) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// Errorf prints an error message in red
func (c *Console) Errorf(format string, args ...interface{}) {
	c.errc.Fprintf(c.out, format, args...)
}

// Warnf prints a warning in yellow
func (c *Console) Warnf(format string, args ...interface{}) {
	c.warnc.Fprintf(c.out, format, args...)
}

// Infof prints a notice in cyan
func (c *Console) Infof(format string, args ...interface{}) {
	c.infoc.Fprintf(c.out, format, args...)
}

// Ask prints prompt and returns the line typed, without the line ending
func (c *Console) Ask(prompt string) (string, error) {
	s, err := c.in.Prompt(prompt)
	if err == liner.ErrPromptAborted || err == io.EOF {
		return "", ErrAborted
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// AskDefault is Ask, returning def for an empty line
func (c *Console) AskDefault(prompt, def string) (string, error) {
	s, err := c.Ask(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return s, nil
}

// AskInt asks for an integer, returning def for an empty line
func (c *Console) AskInt(prompt string, def int) (int, error) {
	s, err := c.Ask(prompt)
	if err != nil {
		return 0, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return n, nil
}

// WaitEnter prints msg and waits for a line.  An aborted prompt also returns.
func (c *Console) WaitEnter(msg string) {
	c.in.Prompt(msg)
}

// Spinner animates while waiting for a trigger
type Spinner struct {
	sp      *yacspin.Spinner
	started bool
}

// Spinner returns a spinner drawing on the console.  A console made by
// NewWith is not a terminal and its spinner prints only its final messages.
func (c *Console) Spinner(message string) (*Spinner, error) {
	cfg := yacspin.Config{
		Writer:            c.out,
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           message,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		Colors:            []string{"fgCyan"},
		NotTTY:            !c.tty,
	}
	sp, err := yacspin.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Spinner{sp: sp}, nil
}

// Start starts the animation
func (s *Spinner) Start() error {
	if s.started {
		return nil
	}
	s.started = true
	return s.sp.Start()
}

// Message replaces the text next to the animation
func (s *Spinner) Message(msg string) {
	s.sp.Message(msg)
}

// Stop ends the animation with a success mark and msg
func (s *Spinner) Stop(msg string) error {
	if !s.started {
		return nil
	}
	s.started = false
	s.sp.StopMessage(msg)
	return s.sp.Stop()
}

// Fail ends the animation with a failure mark and msg
func (s *Spinner) Fail(msg string) error {
	if !s.started {
		return nil
	}
	s.started = false
	s.sp.StopFailMessage(msg)
	return s.sp.StopFail()
}
