// Package errors gives worker failures a Code. The pipeline classifies a
// job by code alone, so every error that crosses a component boundary is
// built or wrapped here.
package errors

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
)

type Code string

const (
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDecode        Code = "DECODE_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeRenderFailure Code = "RENDER_FAILURE"
	CodeUnsupported   Code = "UNSUPPORTED"
	CodeTimeout       Code = "TIMEOUT"
	CodeUnavailable   Code = "UNAVAILABLE"
	CodeCanceled      Code = "CANCELED"
)

// permanent codes can never succeed on a retry of the same job.
var permanent = map[Code]bool{
	CodeDecode:        true,
	CodeNotFound:      true,
	CodeRenderFailure: true,
	CodeUnsupported:   true,
}

type Error struct {
	Code    Code
	Message string
	Op      string // e.g. "pipeline.fetch"
	Err     error
	Fields  map[string]any
	Stack   []Frame
}

type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// Error renders as "op: [CODE] message: cause", omitting empty parts.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op + ": ")
	}
	if e.Code != "" {
		b.WriteString("[" + string(e.Code) + "] ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func (e *Error) WithField(key string, value any) *Error {
	return e.WithFields(map[string]any{key: value})
}

func (e *Error) WithFields(fields map[string]any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

func (e *Error) Permanent() bool { return permanent[e.Code] }

func (e *Error) StackTrace() string {
	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Stack: captureStack(2)}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Stack: captureStack(2)}
}

// Wrap keeps the code (and fields) of a coded cause. Context cancellation
// and deadline causes become CodeCanceled and CodeTimeout; anything else is
// CodeInternal.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}
	w := &Error{Code: GetCode(err), Message: message, Op: op, Err: err, Stack: captureStack(2)}
	var e *Error
	if errors.As(err, &e) {
		w.Fields = e.Fields
	}
	return w
}

func Wrapf(err error, op string, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	w := Wrap(err, op, fmt.Sprintf(format, args...))
	w.Stack = captureStack(2)
	return w
}

// WrapWithCode overrides whatever code the cause carries.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Op: op, Err: err, Stack: captureStack(2)}
}

func Internal(message string) *Error {
	return &Error{Code: CodeInternal, Message: message, Stack: captureStack(2)}
}

func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...), Stack: captureStack(2)}
}

func NotFound(resource string, id string) *Error {
	return Newf(CodeNotFound, "%s not found: %s", resource, id).
		WithFields(map[string]any{"resource": resource, "id": id})
}

// Decode marks a message that can never become a job.
func Decode(message string) *Error {
	return New(CodeDecode, message)
}

func DecodeField(field string, message string) *Error {
	return New(CodeDecode, message).WithField("field", field)
}

func RenderFailure(message string) *Error {
	return New(CodeRenderFailure, message)
}

func Unsupported(kind string) *Error {
	return Newf(CodeUnsupported, "unsupported source kind: %s", kind).WithField("kind", kind)
}

func Timeout(operation string) *Error {
	return Newf(CodeTimeout, "operation timed out: %s", operation).WithField("operation", operation)
}

func Unavailable(service string) *Error {
	return Newf(CodeUnavailable, "service unavailable: %s", service).WithField("service", service)
}

func Canceled(operation string) *Error {
	return Newf(CodeCanceled, "operation canceled: %s", operation).WithField("operation", operation)
}

// GetCode returns the outermost code in err's chain. Bare context errors
// are recognised without wrapping; any other error is CodeInternal.
func GetCode(err error) Code {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e.Code
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInternal
	}
}

func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

func IsCode(err error, code Code) bool { return GetCode(err) == code }

func IsNotFound(err error) bool { return IsCode(err, CodeNotFound) }

func IsDecode(err error) bool { return IsCode(err, CodeDecode) }

func IsCanceled(err error) bool { return IsCode(err, CodeCanceled) }

func IsPermanent(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Permanent()
}

// IsTransient reports whether a retry might succeed. Unclassified errors
// count as transient.
func IsTransient(err error) bool {
	if err == nil || IsCanceled(err) || IsDecode(err) {
		return false
	}
	return !IsPermanent(err)
}

// captureStack keeps at most ten non-runtime frames.
func captureStack(skip int) []Frame {
	var pcs [32]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	it := runtime.CallersFrames(pcs[:n])

	var frames []Frame
	for len(frames) < 10 {
		f, more := it.Next()
		if !strings.Contains(f.File, "runtime/") {
			frames = append(frames, Frame{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	return frames
}

func As(err error, target any) bool { return errors.As(err, target) }

func Is(err, target error) bool { return errors.Is(err, target) }
