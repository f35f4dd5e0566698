package frame

import "github.com/seolgugu/edgeflow/pkg/errors"

// Error codes for frame codec operations.
const (
	CodeMalformed = "FRAME_MALFORMED"
)

// ErrMalformed creates an error for buffers that do not parse as frames.
func ErrMalformed(msg string, err error) *errors.AppError {
	return errors.New(CodeMalformed, "malformed frame: "+msg, err)
}

// IsMalformed reports whether err is a frame parse failure.
func IsMalformed(err error) bool {
	return errors.HasCode(err, CodeMalformed)
}
