package extractor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/progress"
)

// Kind identifies an extractor variant.
type Kind int

const (
	KIND_UDF Kind = iota
	KIND_ZIP
	KIND_GZIP
	KIND_BZIP2
	KIND_XZ
	KIND_TAR
)

func (k Kind) String() string {
	switch k {
	case KIND_UDF:
		return "UDF"
	case KIND_ZIP:
		return "ZIP"
	case KIND_GZIP:
		return "GZip"
	case KIND_BZIP2:
		return "BZip2"
	case KIND_XZ:
		return "XZ"
	case KIND_TAR:
		return "Tar"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Variants are tried in this order.
var kinds = []Kind{KIND_UDF, KIND_ZIP, KIND_GZIP, KIND_BZIP2, KIND_XZ, KIND_TAR}

// ErrUnsupported is returned for files no variant claims by suffix.
var ErrUnsupported = errors.New("do not know how to extract file")

// FormattingError reports a file whose contents do not match the format its suffix names.
type FormattingError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *FormattingError) Error() string {
	return fmt.Sprintf("%s is not in %s format: %v", e.Path, e.Kind, e.Err)
}

func (e *FormattingError) Unwrap() error {
	return e.Err
}

// Variant is one extractor. Variants are created by a Dispatcher and share its options.
type Variant struct {
	kind       Kind
	dispatcher *Dispatcher
}

func (v *Variant) Kind() Kind {
	return v.kind
}

// SupportedSuffixes returns the file name suffixes, including the period, this variant extracts.
func (v *Variant) SupportedSuffixes() []string {
	switch v.kind {
	case KIND_UDF:
		return []string{".udf", ".iso"}
	case KIND_ZIP:
		return []string{".zip"}
	case KIND_GZIP:
		return []string{".gz"}
	case KIND_BZIP2:
		return []string{".bz2"}
	case KIND_XZ:
		return []string{".xz"}
	case KIND_TAR:
		return []string{".tar"}
	}
	return nil
}

// ExtractsFileSystem reports whether the variant produces a directory tree rather than a single file.
func (v *Variant) ExtractsFileSystem() bool {
	switch v.kind {
	case KIND_UDF, KIND_ZIP, KIND_TAR:
		return true
	}
	return false
}

// Supports reports whether path carries one of the variant's suffixes. Matching ignores case.
func (v *Variant) Supports(path string) bool {
	return v.suffixOf(path) != ""
}

func (v *Variant) suffixOf(path string) string {
	lower := strings.ToLower(path)
	for _, s := range v.SupportedSuffixes() {
		if strings.HasSuffix(lower, s) {
			return s
		}
	}
	return ""
}

// StripSuffix removes the matching suffix from path.
func (v *Variant) StripSuffix(path string) string {
	return path[:len(path)-len(v.suffixOf(path))]
}

// SaveLocation returns the directory that extracting path with this variant writes into.
// Filesystem variants extract into a directory named after the input without its suffix,
// single stream variants into the input's own directory. A ".dir" suffix is appended when
// the chosen location exists and is not a directory.
func (v *Variant) SaveLocation(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	location := v.StripSuffix(abs)
	if !v.ExtractsFileSystem() {
		location = filepath.Dir(location)
	}
	if info, err := os.Stat(location); err == nil && !info.IsDir() {
		location += ".dir"
		v.dispatcher.sink.Announce("Setting save location to " + location)
	}
	return location, nil
}

// Extract extracts input into outDir. depth is the recursion budget including this extraction;
// files produced by it are handed on with depth-1.
func (v *Variant) Extract(input, outDir string, depth int) error {
	if depth <= 0 {
		return nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("the destination directory for file extraction could not be accessed: %w", err)
	}
	d := v.dispatcher
	switch v.kind {
	case KIND_UDF:
		return d.extractUDF(input, outDir, depth)
	case KIND_ZIP:
		return d.extractZip(input, outDir, depth)
	case KIND_GZIP:
		return d.extractGZip(v, input, outDir, depth)
	case KIND_BZIP2:
		return d.extractBZip2(v, input, outDir, depth)
	case KIND_XZ:
		return d.extractXZ(v, input, outDir, depth)
	case KIND_TAR:
		return d.extractTar(input, outDir, depth)
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, input)
}

// Dispatcher picks an extractor variant by file suffix and handles nested extraction.
type Dispatcher struct {
	openOptions []option.OpenOption
	logger      *logging.Logger
	sink        progress.Annunciator
	chunkSize   int
	depth       int
	variants    []*Variant
}

// NewDispatcher creates a Dispatcher. The options are passed on to every UDF image it opens;
// the logger, progress sink and chunk size also apply to the other variants.
func NewDispatcher(opts ...option.OpenOption) *Dispatcher {
	o := option.Apply(opts...)
	d := &Dispatcher{
		openOptions: opts,
		logger:      o.Logger.WithName("extractor"),
		sink:        o.Progress,
		chunkSize:   o.ChunkSize,
		depth:       o.RecursionDepth,
	}
	for _, k := range kinds {
		d.variants = append(d.variants, &Variant{kind: k, dispatcher: d})
	}
	return d
}

// RecursionDepth returns the depth selected by the options the Dispatcher was created with.
func (d *Dispatcher) RecursionDepth() int {
	return d.depth
}

// Variants returns the extractor variants in dispatch order.
func (d *Dispatcher) Variants() []*Variant {
	return d.variants
}

// ExtractFile extracts path with the first variant that claims its suffix and succeeds, and returns
// the save location used. A variant failing with a FormattingError hands over to the next candidate.
// A depth of zero extracts nothing.
func (d *Dispatcher) ExtractFile(path string, depth int) (string, error) {
	if depth <= 0 {
		return "", nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("file to be extracted (%s) does not exist or cannot be accessed: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("file %s is not a readable file", path)
	}

	var lastErr error
	for _, v := range d.variants {
		if !v.Supports(path) {
			continue
		}
		location, err := v.SaveLocation(path)
		if err == nil {
			err = v.Extract(path, location, depth)
		}
		if err == nil {
			return location, nil
		}

		var formatting *FormattingError
		if errors.As(err, &formatting) {
			d.logger.Debug("extractor rejected file format", "extractor", v.kind, "path", path, "error", err.Error())
			d.sink.Announce(fmt.Sprintf("File extractor %s could not extract this file due to a formatting error in the file.", v.kind))
		} else {
			d.logger.Warn("extraction failed", "extractor", v.kind, "path", path, "error", err.Error())
			d.sink.Announce(fmt.Sprintf("File extractor %s could not fully extract the file %s.", v.kind, path))
			d.sink.Announce("Reason:  " + err.Error())
		}
		lastErr = err
	}

	if lastErr == nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	d.sink.Announce(fmt.Sprintf("Warning:  Could not extract the contents of file %s using available extractors.", filepath.Base(path)))
	return "", fmt.Errorf("could not extract the contents of file %s: %w", path, lastErr)
}

// TryExtractFurther extracts a file produced by another extraction when its suffix names a
// supported format. It never fails: unsupported files are ignored and other problems are logged
// and announced.
func (d *Dispatcher) TryExtractFurther(path string, remainingDepth int) {
	if remainingDepth <= 0 {
		return
	}
	_, err := d.ExtractFile(path, remainingDepth)
	if err == nil {
		d.sink.ReportProgress(-1)
		return
	}
	if errors.Is(err, ErrUnsupported) {
		return
	}
	var formatting *FormattingError
	if errors.As(err, &formatting) {
		d.sink.Announce(fmt.Sprintf("Warning:  Could not extract contents of file %s - could not determine file's format.", path))
	}
	d.logger.Warn("nested extraction failed", "path", path, "error", err.Error())
}
