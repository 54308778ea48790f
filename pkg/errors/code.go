package errors

// ErrorCode represents a unique error identifier.
type ErrorCode int

// Error code ranges:
// 10000-10999: generic / config / ambient-stack errors
// 11000-11999: protocol & session errors
// 12000-12999: staging & filesystem errors
// 13000-13999: process & sandbox errors
const (
	Success ErrorCode = 10000

	InternalError ErrorCode = 10001
	InvalidParams ErrorCode = 10002
	ConfigError   ErrorCode = 10010
	CacheError    ErrorCode = 10020
	HistoryError  ErrorCode = 10030
	DatabaseError ErrorCode = 10040

	ProtocolFramingError ErrorCode = 11000
	UnknownCompiler      ErrorCode = 11001
	SessionClosed        ErrorCode = 11002

	PathEscape ErrorCode = 12000
	IoError    ErrorCode = 12001

	SpawnError          ErrorCode = 13000
	ChildTimeout        ErrorCode = 13001
	OutputLimitExceeded ErrorCode = 13002
)

var codeMessages = map[ErrorCode]string{
	Success:              "success",
	InternalError:        "internal error",
	InvalidParams:        "invalid parameters",
	ConfigError:          "configuration error",
	CacheError:           "cache error",
	HistoryError:         "history sink error",
	DatabaseError:        "database error",
	ProtocolFramingError: "malformed frame",
	UnknownCompiler:      "unknown compiler",
	SessionClosed:        "session closed",
	PathEscape:           "path escapes staging root",
	IoError:              "i/o error",
	SpawnError:           "failed to spawn child process",
	ChildTimeout:         "child process timed out",
	OutputLimitExceeded:  "output limit exceeded",
}

// Message returns the default human-readable message for the code.
func (c ErrorCode) Message() string {
	if m, ok := codeMessages[c]; ok {
		return m
	}
	return "unknown error"
}
