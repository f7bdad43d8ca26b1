// Package cursor defines the pull-based execution protocol every operator
// in pkg/operators implements, plus the structured error type that
// protocol uses to signal outcomes needing special handling upstream
// (abort-and-retry vs. abort-and-surface vs. clean unwind). Grounded on
// pkg/cypher/executor.go's error wrapping (fmt.Errorf with %w chains),
// generalized into a Kind-tagged struct since callers here (transaction
// commit, the RPC layer, the client-facing result stream) need to branch
// on the failure category, not just log a message.
package cursor

import (
	"errors"
	"fmt"
)

// Kind classifies a query-execution failure so operators, the coordinator,
// and the client-facing layer can each apply their own propagation policy
// without parsing error strings.
type Kind uint8

const (
	KindSyntax Kind = iota
	KindSemantic
	KindQueryRuntime
	KindHintedAbort
	KindSerialization
	KindLockTimeout
	KindRecordDeleted
	KindReconstruction
	KindNetwork
	KindIndexExists
	KindIndexInMulticommand
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "Syntax"
	case KindSemantic:
		return "Semantic"
	case KindQueryRuntime:
		return "QueryRuntime"
	case KindHintedAbort:
		return "HintedAbort"
	case KindSerialization:
		return "Serialization"
	case KindLockTimeout:
		return "LockTimeout"
	case KindRecordDeleted:
		return "RecordDeleted"
	case KindReconstruction:
		return "Reconstruction"
	case KindNetwork:
		return "Network"
	case KindIndexExists:
		return "IndexExists"
	case KindIndexInMulticommand:
		return "IndexInMulticommand"
	case KindUnsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// Retryable reports whether the client may safely resubmit the same query
// after this failure.
func (k Kind) Retryable() bool {
	return k == KindSerialization || k == KindLockTimeout
}

// Error is the single structured failure type carried through Cursor.Pull,
// transaction commit, and the client-facing result stream.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// AsError extracts a *Error from err, if err is or wraps one.
func AsError(err error) (*Error, bool) {
	var ce *Error
	ok := errors.As(err, &ce)
	return ce, ok
}
