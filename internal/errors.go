package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// ErrorKind distinguishes engine failures internally. Kinds never cross the host boundary:
// see ClientError.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	// An index referenced a position outside of the store.
	KindIndexOutOfBounds
	// A removal was attempted on a store with no entries.
	KindEmptyStore
	// A page fetch for a timeline failed.
	KindFetchFailed
	// Host supplied input could not be parsed.
	KindMalformedInput
	// The store does not accept this diff variant e.g Move on a room list.
	KindUnsupportedDiff
	// A list state change which is not an edge of the state machine.
	KindIllegalTransition
)

func (k ErrorKind) String() string {
	switch k {
	case KindIndexOutOfBounds:
		return "IndexOutOfBounds"
	case KindEmptyStore:
		return "EmptyStore"
	case KindFetchFailed:
		return "FetchFailed"
	case KindMalformedInput:
		return "MalformedInput"
	case KindUnsupportedDiff:
		return "UnsupportedDiff"
	case KindIllegalTransition:
		return "IllegalTransition"
	}
	return "Unknown"
}

// Sentinels which can be used with errors.Is to match on the kind of an *Error.
var (
	ErrIndexOutOfBounds  = &Error{Kind: KindIndexOutOfBounds}
	ErrEmptyStore        = &Error{Kind: KindEmptyStore}
	ErrFetchFailed       = &Error{Kind: KindFetchFailed}
	ErrMalformedInput    = &Error{Kind: KindMalformedInput}
	ErrUnsupportedDiff   = &Error{Kind: KindUnsupportedDiff}
	ErrIllegalTransition = &Error{Kind: KindIllegalTransition}
)

type Error struct {
	Kind ErrorKind
	Msg  string
	// The underlying cause, if any. Returned unmodified by Unwrap.
	Err error
}

func NewError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
		Err:  cause,
	}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, which lets the sentinels above be used as targets.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in the chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ClientError is the only error shape seen by the host application. It carries a human readable
// message and nothing else.
type ClientError struct {
	Msg string
}

func (e *ClientError) Error() string {
	return e.Msg
}

type jsonError struct {
	Err string `json:"error"`
}

// JSON returns {"error":msg}. Messages carry comparisons such as "index 5 >= len 2", so HTML
// characters are left unescaped.
func (e ClientError) JSON() []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(jsonError{e.Msg})
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// Collapse converts any error into a *ClientError. Returns nil for a nil error.
func Collapse(err error) *ClientError {
	if err == nil {
		return nil
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce
	}
	return &ClientError{Msg: err.Error()}
}

// Assert that the expression is true, similar to assert() in C. If expr is false, print or panic.
//
// If expr is false and SYNCV3_CLIENT_DEBUG=1 then the program panics.
// If expr is false and SYNCV3_CLIENT_DEBUG is unset or not '1' then the program logs an error along
// with a field which contains the file/line number of the caller/assertion of Assert.
// Assert should be used to verify invariants which should never be broken during normal functioning
// of the engine, and shouldn't be used to log a normal error e.g a rejected diff.
//
// The msg provided should be the expectation of the assert e.g:
//
//	Assert("list is not empty", len(list) > 0)
//
// Which then produces:
//
//	assertion failed: list is not empty
func Assert(msg string, expr bool) {
	if expr {
		return
	}
	if os.Getenv("SYNCV3_CLIENT_DEBUG") == "1" {
		panic(fmt.Sprintf("assert: %s", msg))
	}
	l := logger.Error()
	_, file, line, ok := runtime.Caller(1)
	if ok {
		l = l.Str("assertion", fmt.Sprintf("%s:%d", file, line))
	}
	_, file, line, ok = runtime.Caller(2)
	if ok {
		l = l.Str("caller", fmt.Sprintf("%s:%d", file, line))
	}
	l.Msg("assertion failed: " + msg)
}
