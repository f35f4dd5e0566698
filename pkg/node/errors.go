package node

import "github.com/seolgugu/edgeflow/pkg/errors"

// Error codes for node lifecycle failures.
const (
	CodeSetupFailure   = "NODE_SETUP_FAILURE"
	CodeRuntimeFailure = "NODE_RUNTIME_FAILURE"
	CodeLoadFailure    = "NODE_LOAD_FAILURE"
	CodeBadConfig      = "NODE_BAD_CONFIG"
	CodeNoInput        = "NODE_NO_INPUT"
)

// ErrSetupFailure creates an error for a failed one-time setup.
func ErrSetupFailure(name string, err error) *errors.AppError {
	return errors.New(CodeSetupFailure, "setup failed for node "+name, err)
}

// ErrRuntimeFailure creates an error for a failing loop iteration.
func ErrRuntimeFailure(name string, err error) *errors.AppError {
	return errors.New(CodeRuntimeFailure, "loop failed for node "+name, err)
}

// ErrLoadFailure creates an error for a worker that cannot build its node.
func ErrLoadFailure(path string, err error) *errors.AppError {
	return errors.New(CodeLoadFailure, "no node factory registered for "+path, err)
}

// ErrBadConfig creates an error for an unparseable NODE_CONFIG blob.
func ErrBadConfig(err error) *errors.AppError {
	return errors.New(CodeBadConfig, "invalid node config", err)
}

// ErrNoInput creates an error for a consumer wired without a source.
func ErrNoInput(name string) *errors.AppError {
	return errors.New(CodeNoInput, "consumer "+name+" has no wired source", nil)
}
