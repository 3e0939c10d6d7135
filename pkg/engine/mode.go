package engine

import (
	"fmt"
	"os"
	"strings"
)

// ModeEnv names the environment variable that can force a mode
const ModeEnv = "BFJIT_MODE"

// ExecutionMode determines how programs are executed
type ExecutionMode int

const (
	ModeJIT         ExecutionMode = iota // native code, default
	ModeInterpreter                      // portable, bounds checked
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeJIT:
		return "jit"
	case ModeInterpreter:
		return "interpreter"
	}
	return fmt.Sprintf("ExecutionMode(%d)", int(m))
}

// ParseMode accepts "jit" or "interpreter" (also "interp"), case insensitive
func ParseMode(s string) (ExecutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jit", "":
		return ModeJIT, nil
	case "interpreter", "interp":
		return ModeInterpreter, nil
	}
	return ModeJIT, fmt.Errorf("unknown execution mode %q", s)
}

// GetExecutionMode returns the mode selected by the environment.
// BFJIT_MODE=interpreter forces the interpreter; anything else means JIT.
func GetExecutionMode() ExecutionMode {
	if os.Getenv(ModeEnv) == "interpreter" {
		return ModeInterpreter
	}
	return ModeJIT
}
