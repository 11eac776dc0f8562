package publisher

import (
	"errors"
	"fmt"
)

var (
	// ErrPublishFailed matches every *PublishFailedError.
	ErrPublishFailed = errors.New("publish failed")

	// ErrUnsupportedPlatform matches every *UnsupportedPlatformError.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// PublishFailedError reports a failed attempt on one platform.
type PublishFailedError struct {
	Platform string
	Cause    error
}

func (e *PublishFailedError) Error() string {
	return fmt.Sprintf("publish to %s failed: %v", e.Platform, e.Cause)
}

func (e *PublishFailedError) Unwrap() error { return e.Cause }

func (e *PublishFailedError) Is(target error) bool { return target == ErrPublishFailed }

// UnsupportedPlatformError is returned when no driver is registered for a platform.
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform %q", e.Platform)
}

func (e *UnsupportedPlatformError) Is(target error) bool { return target == ErrUnsupportedPlatform }
