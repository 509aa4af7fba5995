package annotation

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrMissingExtension = fmt.Errorf("%w: source path has no extension", ErrInvalidInput)
	ErrSourceNotFound   = errors.New("source file not found")
	ErrStorage          = errors.New("storage failure")
	ErrLaunch           = errors.New("failed to launch file browser")
)

// Kind classifies err into a stable string the bridge reports to callers.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSourceNotFound):
		return "not_found"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrLaunch):
		return "launch"
	default:
		return "internal"
	}
}
