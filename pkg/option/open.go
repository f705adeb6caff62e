package option

import (
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/memprobe"
	"github.com/bgrewell/udf-kit/pkg/progress"
)

type ExtractionProgressCallback func(
	currentFilename string,
	bytesTransferred int64,
	totalBytes int64,
	currentFileNumber int,
	totalFileCount int,
)

// FurtherExtractionFunc is handed every file written during an extraction together with the remaining
// recursion depth. It is expected to handle its own failures.
type FurtherExtractionFunc func(path string, remainingDepth int)

type OpenOptions struct {
	// RecursionDepth bounds nested extraction. 0 extracts nothing, 1 extracts only the image itself.
	RecursionDepth int
	// Strict turns extents that do not cover a file's recorded length into per-file failures.
	Strict                     bool
	ChunkSize                  int
	ExtractionProgressCallback ExtractionProgressCallback
	FurtherExtraction          FurtherExtractionFunc
	Progress                   progress.Annunciator
	Logger                     *logging.Logger
}

type OpenOption func(*OpenOptions)

// DefaultOpenOptions returns options for a lenient, single level extraction with logging and
// progress reporting disabled.
func DefaultOpenOptions() *OpenOptions {
	return &OpenOptions{
		RecursionDepth:             1,
		ChunkSize:                  memprobe.ChunkSize(),
		ExtractionProgressCallback: func(string, int64, int64, int, int) {},
		FurtherExtraction:          func(string, int) {},
		Progress:                   progress.Null{},
		Logger:                     logging.DefaultLogger(),
	}
}

// Apply builds OpenOptions from the defaults and the given options.
func Apply(opts ...OpenOption) *OpenOptions {
	o := DefaultOpenOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithExtractionProgress sets a progress callback function that will be called with progress updates.
// Parameters:
// - currentFilename: The name of the file currently being processed.
// - bytesTransferred: The number of bytes transferred so far for the current file.
// - totalBytes: The total number of bytes to be transferred for the current file.
// - currentFileNumber: The index of the current file being processed.
// - totalFileCount: The total number of files to be processed, or 0 when not known in advance.
func WithExtractionProgress(callback ExtractionProgressCallback) OpenOption {
	return func(o *OpenOptions) {
		if callback != nil {
			o.ExtractionProgressCallback = callback
		}
	}
}

func WithLogger(logger *logging.Logger) OpenOption {
	return func(o *OpenOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

func WithProgress(sink progress.Annunciator) OpenOption {
	return func(o *OpenOptions) {
		if sink != nil {
			o.Progress = sink
		}
	}
}

func WithRecursionDepth(depth int) OpenOption {
	return func(o *OpenOptions) {
		o.RecursionDepth = depth
	}
}

func WithStrict(strict bool) OpenOption {
	return func(o *OpenOptions) {
		o.Strict = strict
	}
}

// WithChunkSize overrides the probed copy buffer size. Non-positive sizes are ignored.
func WithChunkSize(size int) OpenOption {
	return func(o *OpenOptions) {
		if size > 0 {
			o.ChunkSize = size
		}
	}
}

func WithFurtherExtraction(fn FurtherExtractionFunc) OpenOption {
	return func(o *OpenOptions) {
		if fn != nil {
			o.FurtherExtraction = fn
		}
	}
}
