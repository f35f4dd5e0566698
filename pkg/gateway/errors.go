package gateway

import "github.com/seolgugu/edgeflow/pkg/errors"

// Error codes for gateway ingress operations.
const (
	CodeIngressIO   = "GATEWAY_INGRESS_IO"
	CodeListen      = "GATEWAY_LISTEN_FAILED"
	CodeFrameTooBig = "GATEWAY_FRAME_TOO_BIG"
)

// ErrIngressIO creates an error for a broken upstream connection.
func ErrIngressIO(remote string, err error) *errors.AppError {
	return errors.New(CodeIngressIO, "ingress connection "+remote+" failed", err)
}

// ErrListen creates an error for an unbindable server port.
func ErrListen(addr string, err error) *errors.AppError {
	return errors.New(CodeListen, "cannot listen on "+addr, err)
}

// ErrFrameTooBig creates an error for a length prefix beyond the sane bound.
func ErrFrameTooBig(n uint32) *errors.AppError {
	return errors.Newf(CodeFrameTooBig, "ingress frame of %d bytes exceeds limit", n)
}
