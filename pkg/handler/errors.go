package handler

import "github.com/seolgugu/edgeflow/pkg/errors"

// Error codes for output handlers.
const (
	CodeBacklog     = "HANDLER_BACKLOG"
	CodeConnFailed  = "HANDLER_CONN_FAILED"
	CodeWriteFailed = "HANDLER_WRITE_FAILED"
)

// ErrBacklog creates an error for a full sender queue (oldest frame evicted).
func ErrBacklog(target string) *errors.AppError {
	return errors.New(CodeBacklog, "sender queue full for "+target+", dropping oldest", nil)
}

// ErrConnFailed creates an error for a failed gateway connection attempt.
func ErrConnFailed(addr string, err error) *errors.AppError {
	return errors.New(CodeConnFailed, "failed to connect to "+addr, err)
}

// ErrWriteFailed creates an error for a broken in-flight send.
func ErrWriteFailed(addr string, err error) *errors.AppError {
	return errors.New(CodeWriteFailed, "write to "+addr+" failed", err)
}
