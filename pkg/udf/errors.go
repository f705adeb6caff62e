package udf

import (
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/udf/descriptor"
)

// FormatErrorKind classifies structural problems in a UDF image.
type FormatErrorKind int

const (
	INVALID_DESCRIPTOR_TAG FormatErrorKind = iota
	DUPLICATE_PARTITION_DESCRIPTOR
	DUPLICATE_LOGICAL_VOLUME_DESCRIPTOR
	MISSING_VOLUME_STRUCTURE
	PARTITION_MISMATCH
	INVALID_ICB_ENTRY_COUNT
	BAD_FILE_IDENTIFIER
	INVALID_INFORMATION_LENGTH
)

func (k FormatErrorKind) String() string {
	switch k {
	case INVALID_DESCRIPTOR_TAG:
		return "invalid descriptor tag"
	case DUPLICATE_PARTITION_DESCRIPTOR:
		return "duplicate partition descriptor"
	case DUPLICATE_LOGICAL_VOLUME_DESCRIPTOR:
		return "duplicate logical volume descriptor"
	case MISSING_VOLUME_STRUCTURE:
		return "missing volume structure"
	case PARTITION_MISMATCH:
		return "partition mismatch"
	case INVALID_ICB_ENTRY_COUNT:
		return "invalid icb entry count"
	case BAD_FILE_IDENTIFIER:
		return "bad file identifier"
	case INVALID_INFORMATION_LENGTH:
		return "invalid information length"
	default:
		return fmt.Sprintf("FormatErrorKind(%d)", int(k))
	}
}

// FormatError reports an image whose structures violate UDF.
type FormatError struct {
	Kind   FormatErrorKind
	Detail string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("invalid UDF format: %s", e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func formatErrorf(kind FormatErrorKind, format string, args ...interface{}) *FormatError {
	return &FormatError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// UnsupportedError reports a valid structure that this decoder does not handle.
type UnsupportedError struct {
	Tag    descriptor.TagIdentifier
	Detail string
}

func (e *UnsupportedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unsupported UDF structure %s: %s", e.Tag, e.Detail)
	}
	return fmt.Sprintf("unsupported ICB entry kind %s", e.Tag)
}

// PartialExtractionWarning reports a file whose allocation descriptors ran out before its recorded length
// was written. It is a failure only in strict mode.
type PartialExtractionWarning struct {
	Path    string
	Missing int64
}

func (w *PartialExtractionWarning) Error() string {
	return fmt.Sprintf("%s: %d bytes not covered by allocation descriptors", w.Path, w.Missing)
}

// FileExtractionError reports a single entry that could not be extracted. Its siblings are unaffected.
type FileExtractionError struct {
	Path string
	Err  error
}

func (e *FileExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s: %v", e.Path, e.Err)
}

func (e *FileExtractionError) Unwrap() error {
	return e.Err
}
