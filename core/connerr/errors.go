// Package connerr defines the terminal failure kinds of a connect run.
package connerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure. Kinds are compared, never the message text.
type Kind int

const (
	KindNone Kind = iota
	KindCatalogUnavailable
	KindServerNotFound
	KindNoServerFound
	KindLaunchFailed
	KindMaxRetriesExceeded
	KindNoServerLeft
	KindUserAborted
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCatalogUnavailable:
		return "catalog_unavailable"
	case KindServerNotFound:
		return "server_not_found"
	case KindNoServerFound:
		return "no_server_found"
	case KindLaunchFailed:
		return "launch_failed"
	case KindMaxRetriesExceeded:
		return "max_retries_exceeded"
	case KindNoServerLeft:
		return "no_server_left"
	case KindUserAborted:
		return "user_aborted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the error type returned for every failure kind.
type Error struct {
	Kind     Kind
	Message  string
	Attempts int      // connection attempts made; 0 when none were made
	Tried    []string // domains tried, in order
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if len(e.Tried) > 0 {
		fmt.Fprintf(&b, " (tried: %s)", strings.Join(e.Tried, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrCatalogUnavailable = &Error{Kind: KindCatalogUnavailable, Message: "server catalog unavailable"}
	ErrServerNotFound     = &Error{Kind: KindServerNotFound, Message: "server not found"}
	ErrNoServerFound      = &Error{Kind: KindNoServerFound, Message: "no server found"}
	ErrLaunchFailed       = &Error{Kind: KindLaunchFailed, Message: "tunnel launch failed"}
	ErrMaxRetriesExceeded = &Error{Kind: KindMaxRetriesExceeded, Message: "maximum retries exceeded"}
	ErrNoServerLeft       = &Error{Kind: KindNoServerLeft, Message: "no server left"}
	ErrUserAborted        = &Error{Kind: KindUserAborted, Message: "aborted by user"}
)

// New returns an *Error of the given kind.
func New(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CatalogUnavailable wraps a server-list failure.
func CatalogUnavailable(cause error) *Error {
	return New(KindCatalogUnavailable, cause, "server list could not be loaded")
}

// ServerNotFound reports an unknown explicitly named domain.
func ServerNotFound(domain string) *Error {
	return New(KindServerNotFound, nil, "server %q does not exist in the server list", domain)
}

// NoServerFound reports that the criteria left no reachable candidate.
func NoServerFound(matched int) *Error {
	if matched == 0 {
		return New(KindNoServerFound, nil, "no server matches the given filters; loosen the criteria")
	}
	return New(KindNoServerFound, nil, "%d server(s) matched the filters but none answered the ping probe", matched)
}

// LaunchFailed wraps one failed tunnel invocation.
func LaunchFailed(domain string, cause error) *Error {
	return New(KindLaunchFailed, cause, "starting the tunnel to %s failed", domain)
}

// KindOf returns the Kind of the first *Error in err's chain, KindNone otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

// Exit codes used by the CLI wrapper.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitUsage       = 2
	ExitUserAborted = 3
	ExitInterrupted = 130
)

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case KindOf(err) == KindUserAborted:
		return ExitUserAborted
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitError
	}
}
