package aidl

import (
	"errors"
	"fmt"
)

var (
	ErrPathResolution     = errors.New("source file is not under its include root")
	ErrMissingIncludeRoot = errors.New("library has no include roots")
	ErrUnsupportedBackend = errors.New("unsupported backend")
)

// Error is a configuration error raised while computing a unit. Kind is one of
// the Err* sentinels above.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
