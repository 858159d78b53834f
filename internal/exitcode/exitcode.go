package exitcode

// Exit codes for docuchat commands
const (
	Success     = 0
	Error       = 1
	Usage       = 2
	Unavailable = 69  // backend unreachable, as in sysexits EX_UNAVAILABLE
	Cancelled   = 130 // 128 + SIGINT
)

// ExitError is an error that carries a specific exit code
type ExitError struct {
	Code    int
	Message string
}

func (e ExitError) Error() string {
	return e.Message
}

// Convenience constructors
func BadUsage(msg string) ExitError  { return ExitError{Code: Usage, Message: msg} }
func NoBackend(msg string) ExitError { return ExitError{Code: Unavailable, Message: msg} }
func Cancel() ExitError              { return ExitError{Code: Cancelled, Message: "cancelled"} }
