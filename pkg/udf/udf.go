package udf

import (
	"fmt"
	"io"
	"os"

	"github.com/bgrewell/udf-kit/pkg/cursor"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/udf/descriptor"
)

// Open resolves the UDF volume stored in the first size bytes of r.
func Open(r io.ReaderAt, size int64, opts ...option.OpenOption) (*UDF, error) {
	return open(cursor.NewCursor(r, size), "", option.Apply(opts...))
}

// OpenFile memory maps the image at path and resolves its UDF volume. The returned UDF owns the
// mapping and must be closed.
func OpenFile(path string, opts ...option.OpenOption) (*UDF, error) {
	c, err := cursor.OpenFile(path)
	if err != nil {
		return nil, err
	}
	u, err := open(c, path, option.Apply(opts...))
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return u, nil
}

func open(c *cursor.Cursor, name string, openOptions *option.OpenOptions) (*UDF, error) {
	logger := openOptions.Logger.WithName("udf")

	recognition := ScanRecognitionSequence(c, logger)
	volume, err := ResolveVolume(c, logger, openOptions.Progress)
	if err != nil {
		return nil, err
	}
	volume.Recognition = recognition
	if len(recognition) > 0 && !volume.HasNSR() {
		logger.Debug("volume recognition sequence has no NSR descriptor", "descriptors", len(recognition))
	}

	root, err := ResolveRootDirectory(c, volume)
	if err != nil {
		return nil, err
	}
	logger.Debug("resolved root directory", "block", root.ExtentLocation.LogicalBlockNum,
		"partition", root.ExtentLocation.PartitionRefNum, "file_set", volume.FileSet.FileSetIdentifier)

	return &UDF{
		cursor:      c,
		openOptions: openOptions,
		volume:      volume,
		root:        root,
		name:        name,
	}, nil
}

// UDF is an opened UDF image with a resolved volume and root directory.
type UDF struct {
	cursor      *cursor.Cursor
	openOptions *option.OpenOptions
	volume      *VolumeInfo
	root        descriptor.LongAd
	name        string
}

func (u *UDF) VolumeInfo() *VolumeInfo {
	return u.volume
}

func (u *UDF) RootDirectory() descriptor.LongAd {
	return u.root
}

// VolumeIdentifier returns the logical volume identifier.
func (u *UDF) VolumeIdentifier() string {
	return u.volume.LogicalVolume.LogicalVolumeIdentifier
}

// Extract recreates the volume's directory tree under outDir. A recursion depth of zero extracts
// nothing. Files that fail individually are listed in the result and do not produce an error.
func (u *UDF) Extract(outDir string) (*ExtractResult, error) {
	if u.openOptions.RecursionDepth <= 0 {
		return &ExtractResult{}, nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	walkOptions := *u.openOptions
	walkOptions.Logger = u.openOptions.Logger.WithName("udf")
	w := NewWalker(u.cursor, u.volume, &walkOptions)
	err := w.ExtractDirectory(u.root, outDir)
	u.openOptions.Progress.ClearProgress()
	if err != nil {
		return w.Result(), err
	}

	source := u.name
	if source == "" {
		source = u.VolumeIdentifier()
	}
	u.openOptions.Progress.Announce("Extracted all files from " + source)
	return w.Result(), nil
}

func (u *UDF) Close() error {
	return u.cursor.Close()
}
