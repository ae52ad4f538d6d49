package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

const (
	// DefaultPrompt is printed before every console read.
	DefaultPrompt = "Enter command (or 'exit' to stop): "

	exitKeyword = "exit"
	helpKeyword = "help"
)

// MaxLineBytes is the longest console line accepted. Longer lines are
// skipped and the loop keeps reading.
var MaxLineBytes = 1 << 20

type consoleLine struct {
	text     string
	overlong bool
}

// lineSplitter is bufio.ScanLines that drops lines longer than max instead
// of failing the scan.
type lineSplitter struct {
	max        int
	discarding bool
	overlong   bool
}

func (s *lineSplitter) split(data []byte, atEOF bool) (int, []byte, error) {
	if s.discarding {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			s.discarding = false
			return i + 1, nil, nil
		}
		return len(data), nil, nil
	}
	advance, token, err := bufio.ScanLines(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= s.max {
		s.discarding = true
		s.overlong = true
		return len(data), []byte{}, nil
	}
	return advance, token, err
}

// InputLoop reads console lines and forwards them, untouched, to the line
// queue. It never waits on parsing or generation.
type InputLoop struct {
	In     io.Reader
	Out    io.Writer
	Lines  *Queue[string]
	Prompt string
	// Help is printed when the operator types "help". Empty disables the
	// keyword and the line is forwarded like any other.
	Help   string
	Logger *zap.Logger
}

// Run reads until "exit", end of input, or ctx is cancelled. It does not
// close the line queue; the caller owns the shutdown sequence.
func (l *InputLoop) Run(ctx context.Context) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prompt := l.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	lines := make(chan consoleLine)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		splitter := &lineSplitter{max: MaxLineBytes}
		scanner := bufio.NewScanner(l.In)
		scanner.Buffer(make([]byte, 0, min(4096, MaxLineBytes)), MaxLineBytes)
		scanner.Split(splitter.split)
		for scanner.Scan() {
			line := consoleLine{text: scanner.Text(), overlong: splitter.overlong}
			splitter.overlong = false
			select {
			case lines <- line:
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	promptColor := color.New(color.FgCyan, color.Bold)
	for {
		promptColor.Fprint(l.Out, prompt)

		select {
		case <-ctx.Done():
			fmt.Fprintln(l.Out)
			logger.Info("input closed by shutdown request")
			return nil
		case cl, ok := <-lines:
			if !ok {
				fmt.Fprintln(l.Out)
				if err := <-readErr; err != nil {
					return fmt.Errorf("reading console: %w", err)
				}
				logger.Info("console input ended")
				return nil
			}

			if cl.overlong {
				logger.Warn("console line too long, ignored", zap.Int("max_bytes", MaxLineBytes))
				fmt.Fprintf(l.Out, "line longer than %d bytes ignored\n", MaxLineBytes)
				continue
			}

			line := cl.text
			normalized := strings.ToLower(strings.TrimSpace(line))
			switch {
			case normalized == exitKeyword:
				return nil
			case normalized == "":
				continue
			case normalized == helpKeyword && l.Help != "":
				fmt.Fprint(l.Out, l.Help)
				continue
			}

			if err := l.Lines.Put(line); err != nil {
				return err
			}
		}
	}
}
