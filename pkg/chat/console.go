package chat

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/abiosoft/readline"
	"github.com/briandowns/spinner"
)

// Console is the operator-facing side of the loop.
type Console interface {
	// ReadLine blocks for one line of input. io.EOF means the operator left.
	ReadLine(prompt string) (string, error)
	Writer() io.Writer
	// Busy shows progress until the returned func is called.
	Busy(message string) (stop func())
}

// TerminalConsole reads lines with readline and shows a spinner while busy.
type TerminalConsole struct {
	rl *readline.Instance
}

// NewTerminalConsole opens an interactive console. historyFile may be empty.
func NewTerminalConsole(historyFile string) (*TerminalConsole, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          BoldGreen("> "),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	return &TerminalConsole{rl: rl}, nil
}

func (c *TerminalConsole) ReadLine(prompt string) (string, error) {
	c.rl.SetPrompt(BoldGreen(prompt))
	line, err := c.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", io.EOF
	}
	return line, err
}

func (c *TerminalConsole) Writer() io.Writer {
	return c.rl.Stdout()
}

func (c *TerminalConsole) Busy(message string) func() {
	s := spinner.New(spinner.CharSets[35], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	s.Start()
	return s.Stop
}

func (c *TerminalConsole) Close() error {
	return c.rl.Close()
}
