package broker

import "github.com/seolgugu/edgeflow/pkg/errors"

// Error codes for broker operations.
const (
	CodeUnavailable    = "BROKER_UNAVAILABLE"
	CodePayloadMissing = "BROKER_PAYLOAD_MISSING"
	CodeInvalidConfig  = "BROKER_INVALID_CONFIG"
	CodeDriverUnknown  = "BROKER_DRIVER_UNKNOWN"
)

// ErrUnavailable creates an error for a broker endpoint that cannot be reached.
func ErrUnavailable(endpoint string, err error) *errors.AppError {
	return errors.New(CodeUnavailable, "broker unavailable: "+endpoint, err)
}

// ErrPayloadMissing creates an error for a control-plane id whose data-plane
// entry expired or was evicted.
func ErrPayloadMissing(key string) *errors.AppError {
	return errors.New(CodePayloadMissing, "payload missing for "+key, nil)
}

// ErrInvalidConfig creates an error for an unusable broker configuration.
func ErrInvalidConfig(msg string, err error) *errors.AppError {
	return errors.New(CodeInvalidConfig, "invalid broker config: "+msg, err)
}

// ErrDriverUnknown creates an error for a config naming an unregistered driver.
func ErrDriverUnknown(name string) *errors.AppError {
	return errors.New(CodeDriverUnknown, "unknown broker driver: "+name, nil)
}
