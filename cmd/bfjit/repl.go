package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"bfjit/pkg/bf"
	"bfjit/pkg/engine"
	"bfjit/pkg/tape"
)

const (
	newPrompt  = "\033[32m>\033[0m "
	contPrompt = "\033[32m.\033[0m "
)

// session runs REPL lines against one tape that lives as long as the REPL
type session struct {
	opts    engine.Options
	tape    *tape.Tape
	out     *bufio.Writer
	pending string // an unfinished loop carried over to the next line
}

func newSession(opts engine.Options, cells int, out io.Writer) (*session, error) {
	t, err := tape.New(cells)
	if err != nil {
		return nil, err
	}
	return &session{opts: opts, tape: t, out: bufio.NewWriter(out)}, nil
}

// eval compiles and runs one line. It reports whether the line was held back
// waiting for the rest of an open loop.
func (s *session) eval(line string) (bool, error) {
	source := s.pending + line
	if strings.TrimSpace(source) == "" {
		return false, nil
	}

	prog, err := engine.Compile(source, s.opts)
	if bf.IsUnmatchedLoop(err) {
		s.pending = source + "\n"
		return true, nil
	}
	s.pending = ""
	if err != nil {
		return false, err
	}
	defer prog.Close()

	// The REPL has no program input: ',' ends the line
	exit, err := prog.Run(s.tape.Cells(), s.out, strings.NewReader(""))
	if flushErr := s.out.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		return false, err
	}
	if exit.Reason == bf.ExitWriteFailed || exit.Reason == bf.ExitReadFailed {
		return false, fmt.Errorf("%v: %w", exit.Reason, exit.Err)
	}
	return false, nil
}

func (s *session) Close() error {
	return s.tape.Free()
}

func runRepl(opts engine.Options, cells int, out io.Writer) error {
	s, err := newSession(opts, cells, out)
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := readline.NewEx(&readline.Config{
		Prompt:            newPrompt,
		HistoryFile:       ".bfjit-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()

	for {
		line, err := l.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if s.pending == "" && len(line) == 0 {
				return nil
			}
			// drop the unfinished loop
			s.pending = ""
			l.SetPrompt(newPrompt)
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		more, err := s.eval(line)
		if err != nil {
			fmt.Fprintln(l.Stderr(), "error:", err)
		}
		if more {
			l.SetPrompt(contPrompt)
		} else {
			l.SetPrompt(newPrompt)
		}
	}
}
