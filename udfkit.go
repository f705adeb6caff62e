package udfkit

import (
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/extractor"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/udf"
	"github.com/bgrewell/udf-kit/pkg/udf/descriptor"
)

// Open opens an existing UDF image file
func Open(location string, opts ...option.OpenOption) (Image, error) {
	img, err := udf.OpenFile(location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open UDF image: %w", err)
	}
	return img, nil
}

// Extract extracts the file at location in place, choosing the extractor by its suffix. Extracted
// files are extracted again while the recursion depth from opts allows.
func Extract(location string, opts ...option.OpenOption) (string, error) {
	d := extractor.NewDispatcher(opts...)
	return d.ExtractFile(location, d.RecursionDepth())
}

// Image represents an opened UDF image
type Image interface {
	VolumeInfo() *udf.VolumeInfo
	VolumeIdentifier() string
	RootDirectory() descriptor.LongAd
	Extract(outputLocation string) (*udf.ExtractResult, error)
	Close() error
}
