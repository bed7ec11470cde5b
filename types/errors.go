package types

import (
	"errors"
	"fmt"
)

var (
	ErrDecode           = errors.New("image cannot be decoded")
	ErrCapacityExceeded = errors.New("session image limit reached")
	ErrSizeExceeded     = errors.New("size limit exceeded")
	ErrConversion       = errors.New("pdf conversion failed")
	ErrOCR              = errors.New("text recognition failed")
	ErrUnauthorized     = errors.New("not allowed")
	ErrNotFound         = errors.New("not found")
	ErrSlugTaken        = errors.New("slug already exists")
	ErrNoImages         = errors.New("no images in session")
	ErrInvalidOption    = errors.New("invalid option value")
	ErrUnavailable      = errors.New("feature unavailable")
)

// ImageError ties a per-image failure to its position in the batch.
type ImageError struct {
	Index int
	Err   error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %d: %v", e.Index+1, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}
