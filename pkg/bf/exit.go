package bf

// ExitReason tells which path a program took to the shared exit
type ExitReason int

const (
	ExitCompleted   ExitReason = iota // fell off the end of the program
	ExitEndOfInput                    // ',' saw end of input
	ExitWriteFailed                   // '.' was refused by the writer
	ExitReadFailed                    // ',' hit a reader error other than end of input
)

func (r ExitReason) String() string {
	switch r {
	case ExitCompleted:
		return "completed"
	case ExitEndOfInput:
		return "end of input"
	case ExitWriteFailed:
		return "write failed"
	case ExitReadFailed:
		return "read failed"
	}
	return "unknown"
}

// Exit describes how a run ended. Early exits are not errors: the program
// simply stops. Err holds the reader or writer error that stopped it, if any.
type Exit struct {
	Reason ExitReason
	Err    error
}
