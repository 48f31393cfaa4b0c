package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"huddle/tools/errs/stack"
)

const stackSkip = 4

// CodeError is the error shape exposed across module boundaries: a stable
// numeric code, a short message and an optional free-form detail.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

func (e *CodeError) Wrap() error {
	return stack.New(e, stackSkip)
}

// WrapMsg returns a stack-wrapped copy carrying extra detail.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	retErr := &CodeError{Code: e.Code, Msg: e.Msg, Detail: e.Detail}
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if retErr.Detail == "" {
			retErr.Detail = detail
		} else {
			retErr.Detail += ", " + detail
		}
	}
	return stack.New(retErr, stackSkip)
}

// Is matches on code, so wrapped/detailed copies still compare equal.
func (e *CodeError) Is(err error) bool {
	var codeErr *CodeError
	if !errors.As(Unwrap(err), &codeErr) {
		return false
	}
	return e.Code == codeErr.Code
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// IsCode reports whether err is (or wraps) a CodeError with the given code.
func IsCode(err error, code int) bool {
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	return codeErr.Code == code
}

func Unwrap(err error) error {
	for err != nil {
		unwrap, ok := err.(interface {
			error
			Unwrap() error
		})
		if !ok {
			break
		}
		next := unwrap.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
	return err
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return stack.New(err, stackSkip)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return stack.New(fmt.Errorf("%s: %w", toString(msg, kv), err), stackSkip)
}

// New builds a plain formatted error wrapped with a stack.
func New(format string, args ...any) error {
	return stack.New(fmt.Errorf(format, args...), stackSkip)
}

func toString(msg string, kv []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i > 0 || msg != "" {
			b.WriteString(", ")
		}
		key := fmt.Sprint(kv[i])
		var val any = "missing"
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(val))
	}
	return b.String()
}
