package cursor

import (
	"errors"
	"fmt"
)

// ErrTruncatedRead is matched by every TruncatedReadError.
var ErrTruncatedRead = errors.New("truncated read")

// TruncatedReadError is returned when fewer bytes remain than a read requires.
type TruncatedReadError struct {
	Offset    int64
	Requested int64
	Available int64
}

func (e *TruncatedReadError) Error() string {
	return fmt.Sprintf("truncated read at offset %d: requested %d bytes, %d available", e.Offset, e.Requested, e.Available)
}

func (e *TruncatedReadError) Is(target error) bool {
	return target == ErrTruncatedRead
}

// UnexpectedContentError is returned when a fixed field does not hold its expected bytes.
type UnexpectedContentError struct {
	Offset   int64
	Actual   []byte
	Expected []byte
}

func (e *UnexpectedContentError) Error() string {
	return fmt.Sprintf("unexpected content at offset %d: got % x, expected % x", e.Offset, e.Actual, e.Expected)
}

// SeekError is returned when seeking outside of [0, size].
type SeekError struct {
	Offset int64
	Size   int64
}

func (e *SeekError) Error() string {
	return fmt.Sprintf("seek to %d outside of stream of size %d", e.Offset, e.Size)
}

func (e *SeekError) Is(target error) bool {
	return target == ErrTruncatedRead
}
