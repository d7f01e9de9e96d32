// Package prompt asks the user yes/no questions on the terminal.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocircum/nordconnect/pkg/logging"
	"golang.org/x/term"
)

// ErrNotInteractive is returned when the input is not a terminal.
var ErrNotInteractive = errors.New("input is not a terminal")

// Terminal asks on an interactive terminal. When the input is not a terminal
// every question is declined, unless AssumeYes is set.
type Terminal struct {
	AssumeYes bool

	in         io.Reader
	fd         int
	out        io.Writer
	isTerminal func(fd int) bool
	logger     logging.Logger
}

// NewTerminal creates a prompt reading from in and writing to out.
func NewTerminal(in *os.File, out io.Writer, assumeYes bool, logger logging.Logger) *Terminal {
	return &Terminal{
		AssumeYes:  assumeYes,
		in:         in,
		fd:         int(in.Fd()),
		out:        out,
		isTerminal: term.IsTerminal,
		logger:     logging.ForComponent(logger, "prompt"),
	}
}

// Ask prints message and waits for an answer. Only "y" and "yes" confirm.
func (t *Terminal) Ask(ctx context.Context, message string) (bool, error) {
	if t.AssumeYes {
		fmt.Fprintf(t.out, "%s [y/N] yes (assumed)\n", message)
		return true, nil
	}
	if !t.isTerminal(t.fd) {
		t.logger.Warn("Cannot ask for confirmation without a terminal; pass --yes to accept", "question", message)
		return false, ErrNotInteractive
	}

	fmt.Fprintf(t.out, "%s [y/N] ", message)

	answers := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(t.in).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			errs <- err
			return
		}
		answers <- line
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(t.out)
		return false, ctx.Err()
	case err := <-errs:
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(t.out)
			return false, nil
		}
		return false, fmt.Errorf("failed to read answer: %w", err)
	case line := <-answers:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// Always answers every question with the same value.
type Always bool

// Ask returns the fixed answer.
func (a Always) Ask(context.Context, string) (bool, error) {
	return bool(a), nil
}
