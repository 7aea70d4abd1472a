// Package errno implements the POSIX errno taxonomy the core uses for every
// backend-shaped failure. The message format is an external contract:
// downstream tooling parses it, so it is reproduced byte for byte.
package errno

import (
	"errors"
	"fmt"
)

// Code is a discriminated POSIX failure kind with a fixed numeric errno and
// canonical message.
type Code string

// Errno codes and their numeric values, per the core's externally observed
// contract.
const (
	ENOENT       Code = "ENOENT"
	EEXIST       Code = "EEXIST"
	EISDIR       Code = "EISDIR"
	ENOTDIR      Code = "ENOTDIR"
	EACCES       Code = "EACCES"
	EPERM        Code = "EPERM"
	ENOTEMPTY    Code = "ENOTEMPTY"
	EBADF        Code = "EBADF"
	EINVAL       Code = "EINVAL"
	ELOOP        Code = "ELOOP"
	ENAMETOOLONG Code = "ENAMETOOLONG"
	ENOSPC       Code = "ENOSPC"
	EROFS        Code = "EROFS"
	EBUSY        Code = "EBUSY"
	EMFILE       Code = "EMFILE"
	ENFILE       Code = "ENFILE"
	EXDEV        Code = "EXDEV"
)

var numeric = map[Code]int{
	ENOENT:       -2,
	EEXIST:       -17,
	EISDIR:       -21,
	ENOTDIR:      -20,
	EACCES:       -13,
	EPERM:        -1,
	ENOTEMPTY:    -39,
	EBADF:        -9,
	EINVAL:       -22,
	ELOOP:        -40,
	ENAMETOOLONG: -36,
	ENOSPC:       -28,
	EROFS:        -30,
	EBUSY:        -16,
	EMFILE:       -24,
	ENFILE:       -23,
	EXDEV:        -18,
}

var canonical = map[Code]string{
	ENOENT:       "no such file or directory",
	EEXIST:       "file already exists",
	EISDIR:       "illegal operation on a directory",
	ENOTDIR:      "not a directory",
	EACCES:       "permission denied",
	EPERM:        "operation not permitted",
	ENOTEMPTY:    "directory not empty",
	EBADF:        "bad file descriptor",
	EINVAL:       "invalid argument",
	ELOOP:        "too many symbolic links encountered",
	ENAMETOOLONG: "name too long",
	ENOSPC:       "no space left on device",
	EROFS:        "read-only file system",
	EBUSY:        "resource busy or locked",
	EMFILE:       "too many open files",
	ENFILE:       "too many open files in system",
	EXDEV:        "cross-device link not permitted",
}

// Errno returns the numeric errno associated with code, or 0 if unknown.
func (c Code) Errno() int { return numeric[c] }

// Message returns the canonical human-readable message for code.
func (c Code) Message() string { return canonical[c] }

// Error is a POSIX-shaped error: a code plus the optional syscall/path/dest
// context the backend contract requires operations to carry.
type Error struct {
	Code    Code
	Syscall string
	Path    string
	Dest    string
	Cause   error
}

// New builds an Error for code with no additional context.
func New(code Code) *Error {
	return &Error{Code: code}
}

// WithSyscall attaches the syscall name that failed (e.g. "open", "rename").
func (e *Error) WithSyscall(syscall string) *Error {
	e.Syscall = syscall
	return e
}

// WithPath attaches the primary path involved in the failure.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithDest attaches the destination path for two-path operations (rename,
// link, copyFile).
func (e *Error) WithDest(dest string) *Error {
	e.Dest = dest
	return e
}

// WithCause attaches an underlying error for diagnostics; it does not
// appear in Error() but is reachable via Unwrap.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Error renders the exact "<CODE>: <msg>[, <syscall>][ 'path'][ -> 'dest']"
// format that downstream tooling parses.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Code.Message())
	if e.Syscall != "" {
		msg += ", " + e.Syscall
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" '%s'", e.Path)
	}
	if e.Dest != "" {
		msg += fmt.Sprintf(" -> '%s'", e.Dest)
	}
	return msg
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, errno.New(ENOENT)) to match on code alone,
// ignoring path/syscall/dest/cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Errno returns the numeric errno for err if it (or something it wraps) is
// an *Error, and 0, false otherwise.
func Errno(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code.Errno(), true
	}
	return 0, false
}

// Is reports whether err is (or wraps) an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
