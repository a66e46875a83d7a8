package spec

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	AlreadyExists ErrorCode = "exists"
	NotFound      ErrorCode = "not-found"
	DBConflict    ErrorCode = "db-conflict"
	DBProblem     ErrorCode = "db-problem"
)

type ErrorInfo struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ErrorInfo) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ErrorInfo) Unwrap() error {
	return e.Err
}

func NewErr(code ErrorCode, msg string) error {
	return &ErrorInfo{Code: code, Message: msg}
}

func WrapErr(code ErrorCode, msg string, err error) error {
	return &ErrorInfo{Code: code, Message: msg, Err: err}
}

func IsError(err error, code ErrorCode) bool {
	var info *ErrorInfo
	if errors.As(err, &info) {
		return info.Code == code
	}
	return false
}

func IsNotFoundError(err error) bool {
	return IsError(err, NotFound)
}
