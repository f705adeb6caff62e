package udf

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/bgrewell/udf-kit/pkg/cursor"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/progress"
	"github.com/bgrewell/udf-kit/pkg/udf/descriptor"
)

// ExtractResult records what a walk produced. Paths are on the host filesystem.
type ExtractResult struct {
	Files       []string                    `json:"files"`
	Directories []string                    `json:"directories"`
	Failed      []*FileExtractionError      `json:"failed,omitempty"`
	Warnings    []*PartialExtractionWarning `json:"warnings,omitempty"`
}

// Err joins every per-file failure, or returns nil when all entries were extracted.
func (r *ExtractResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Walker extracts files and directories from a resolved volume. It walks depth first and
// saves and restores the cursor position around every descent.
type Walker struct {
	c          *cursor.Cursor
	volume     *VolumeInfo
	logger     *logging.Logger
	sink       progress.Annunciator
	chunkSize  int
	strict     bool
	depth      int
	further    option.FurtherExtractionFunc
	onProgress option.ExtractionProgressCallback

	fileCount int
	visited   map[int64]struct{}
	buf       []byte
	zeros     []byte
	result    ExtractResult
}

// NewWalker creates a Walker over a volume resolved from c.
func NewWalker(c *cursor.Cursor, v *VolumeInfo, o *option.OpenOptions) *Walker {
	return &Walker{
		c:          c,
		volume:     v,
		logger:     o.Logger,
		sink:       o.Progress,
		chunkSize:  o.ChunkSize,
		strict:     o.Strict,
		depth:      o.RecursionDepth,
		further:    o.FurtherExtraction,
		onProgress: o.ExtractionProgressCallback,
		visited:    make(map[int64]struct{}),
	}
}

// Result returns what has been extracted so far.
func (w *Walker) Result() *ExtractResult {
	return &w.result
}

// ExtractDirectory reads the directory whose ICB is addressed by icb and recreates it under outDir,
// which must already exist. Errors in the directory structure itself are returned; failures of
// individual files are recorded in the result and the walk continues.
func (w *Walker) ExtractDirectory(icb descriptor.LongAd, outDir string) error {
	if err := w.volume.CheckPartition(icb.ExtentLocation.PartitionRefNum); err != nil {
		return err
	}
	pos := w.volume.BlockPosition(icb.ExtentLocation.LogicalBlockNum)
	if _, seen := w.visited[pos]; seen {
		w.logger.Warn("directory already visited, skipping", "path", outDir, "position", pos)
		return nil
	}
	w.visited[pos] = struct{}{}

	saved := w.c.Pos()
	defer w.restore(saved)

	if err := w.c.Seek(pos); err != nil {
		return fmt.Errorf("directory ICB for %s lies outside the image: %w", outDir, err)
	}
	header, err := descriptor.DecodeIcbHeader(w.c)
	if err != nil {
		return classifyDecodeError("directory ICB header", err)
	}
	if err := checkEntryTag(header.Tag.TagIdentifier); err != nil {
		return err
	}
	body, err := descriptor.DecodeIcbFileEntryBody(w.c)
	if err != nil {
		return fmt.Errorf("failed to decode directory file entry for %s: %w", outDir, err)
	}
	length, err := informationLength(body)
	if err != nil {
		return err
	}
	w.logger.Debug("reading directory", "path", outDir, "length", length,
		"descriptor_use", header.IcbTag.DescriptorUse())

	var data []byte
	left, err := w.ProcessExtents(body.AllocationDescriptors, header.IcbTag.DescriptorUse(), length,
		func(b []byte) error {
			data = append(data, b...)
			return nil
		})
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", outDir, err)
	}
	if left > 0 {
		if err := w.partial(outDir, left); err != nil {
			return err
		}
	}

	dc := cursor.NewBytesCursor(data)
	for !dc.IsEOF() {
		offset := dc.Pos()
		fid, err := descriptor.DecodeFileIdentifierDescriptor(dc)
		if err != nil {
			return formatErrorWrap(BAD_FILE_IDENTIFIER, fmt.Sprintf("%s at offset %d", outDir, offset), err)
		}
		if fid.IsParent() || fid.IsHidden() || fid.IsDeleted() {
			w.logger.Trace("skipping directory entry", "name", fid.FileIdentifier,
				"characteristics", fid.FileCharacteristics)
			continue
		}

		target := filepath.Join(outDir, fid.FileIdentifier)
		if err := checkEntryName(fid.FileIdentifier); err != nil {
			w.fail(target, err)
			continue
		}

		if fid.IsDirectory() {
			if err := makeDirectory(target); err != nil {
				w.fail(target, err)
				continue
			}
			w.result.Directories = append(w.result.Directories, target)
			if err := w.ExtractDirectory(fid.Icb, target); err != nil {
				return err
			}
			continue
		}

		if err := w.ExtractFile(fid.Icb, target); err != nil {
			w.fail(target, err)
			continue
		}
		w.result.Files = append(w.result.Files, target)
		w.further(target, w.depth-1)
	}
	return nil
}

// ExtractFile writes the file whose ICB is addressed by icb to target. Every entry of the ICB is
// processed until the recorded entry count is reached, a terminal entry is found or the ICB extent
// ends. On failure the partially written file is removed.
func (w *Walker) ExtractFile(icb descriptor.LongAd, target string) (err error) {
	if err := w.volume.CheckPartition(icb.ExtentLocation.PartitionRefNum); err != nil {
		return err
	}
	pos := w.volume.BlockPosition(icb.ExtentLocation.LogicalBlockNum)
	limit := pos + int64(icb.Length())

	saved := w.c.Pos()
	defer w.restore(saved)

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
		if err != nil {
			w.sink.ClearProgress()
			w.sink.Announce("Removing partially-extracted file " + target)
			if rerr := os.Remove(target); rerr != nil && !os.IsNotExist(rerr) {
				w.logger.Error(rerr, "failed to remove partially-extracted file", "path", target)
			}
		}
	}()

	w.fileCount++
	number := w.fileCount
	w.logger.Debug("extracting file", "path", target, "number", number)

	if err := w.c.Seek(pos); err != nil {
		return fmt.Errorf("file ICB lies outside the image: %w", err)
	}

	entries, maxEntries := 0, -1
	for w.c.Pos() < limit {
		if maxEntries >= 0 && entries >= maxEntries {
			break
		}
		header, err := descriptor.DecodeIcbHeader(w.c)
		if err != nil {
			return classifyDecodeError("file ICB header", err)
		}

		recorded := int(header.IcbTag.MaxNumOfEntries)
		if maxEntries < 0 {
			if recorded < 1 {
				return formatErrorf(INVALID_ICB_ENTRY_COUNT, "maximum number of ICB entries must not be zero")
			}
			maxEntries = recorded
		} else if recorded != maxEntries {
			return formatErrorf(INVALID_ICB_ENTRY_COUNT, "maximum number of ICB entries changed from %d to %d", maxEntries, recorded)
		}

		if header.Tag.TagIdentifier == descriptor.TAG_TERMINAL_ENTRY {
			break
		}
		if err := checkEntryTag(header.Tag.TagIdentifier); err != nil {
			return err
		}

		body, err := descriptor.DecodeIcbFileEntryBody(w.c)
		if err != nil {
			return fmt.Errorf("failed to decode file entry: %w", err)
		}
		total, err := informationLength(body)
		if err != nil {
			return err
		}
		var written int64
		left, err := w.ProcessExtents(body.AllocationDescriptors, header.IcbTag.DescriptorUse(), total,
			func(b []byte) error {
				if _, err := f.Write(b); err != nil {
					return fmt.Errorf("failed to write file: %w", err)
				}
				written += int64(len(b))
				w.onProgress(target, written, total, number, 0)
				return nil
			})
		if err != nil {
			return err
		}
		if left > 0 {
			if err := w.partial(target, left); err != nil {
				return err
			}
		}
		entries++
	}
	return nil
}

// ProcessExtents streams up to bytesLeft bytes described by the allocation descriptors in ads to
// sink and returns the number of bytes the descriptors did not cover. The buffer passed to sink is
// only valid for the duration of the call. The cursor position is restored before returning.
func (w *Walker) ProcessExtents(ads []byte, use descriptor.IcbDescUse, bytesLeft int64, sink func([]byte) error) (int64, error) {
	saved := w.c.Pos()
	defer w.restore(saved)

	if use == descriptor.ICB_DESC_USE_IMMEDIATE {
		take := min(int64(len(ads)), bytesLeft)
		if take > 0 {
			if err := sink(ads[:take]); err != nil {
				return bytesLeft, err
			}
		}
		return bytesLeft - take, nil
	}
	if use != descriptor.ICB_DESC_USE_SHORT && use != descriptor.ICB_DESC_USE_LONG {
		return bytesLeft, &UnsupportedError{Tag: descriptor.TAG_FILE_ENTRY, Detail: use.String() + " allocation descriptors"}
	}

	ac := cursor.NewBytesCursor(ads)
	for bytesLeft > 0 && !ac.IsEOF() {
		length, kind, block, err := w.nextExtent(ac, use)
		if err != nil {
			return bytesLeft, err
		}
		if length == 0 {
			break
		}
		take := min(int64(length), bytesLeft)

		switch kind {
		case descriptor.EXTENT_RECORDED_ALLOCATED:
			if err := w.c.Seek(w.volume.BlockPosition(block)); err != nil {
				return bytesLeft, fmt.Errorf("extent at block %d lies outside the image: %w", block, err)
			}
			if err := w.copyRecorded(take, sink); err != nil {
				return bytesLeft, err
			}
		case descriptor.EXTENT_ALLOCATED_BUT_NOT_RECORDED:
			if err := w.emitZeros(take, sink); err != nil {
				return bytesLeft, err
			}
		default:
			w.logger.Warn("skipping extent of unhandled type", "type", kind, "block", block, "length", length)
			w.sink.Announce(fmt.Sprintf("Warning: skipping extent of type %s", kind))
		}
		bytesLeft -= take
	}
	return bytesLeft, nil
}

func (w *Walker) nextExtent(ac *cursor.Cursor, use descriptor.IcbDescUse) (uint32, descriptor.ExtentType, uint32, error) {
	if use == descriptor.ICB_DESC_USE_LONG {
		ad, err := descriptor.DecodeLongAd(ac)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("failed to decode long allocation descriptor: %w", err)
		}
		if ad.Length() > 0 && ad.Type() != descriptor.EXTENT_NEITHER_ALLOCATED_NOR_RECORDED {
			if err := w.volume.CheckPartition(ad.ExtentLocation.PartitionRefNum); err != nil {
				return 0, 0, 0, err
			}
		}
		return ad.Length(), ad.Type(), ad.ExtentLocation.LogicalBlockNum, nil
	}
	ad, err := descriptor.DecodeShortAd(ac)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to decode short allocation descriptor: %w", err)
	}
	return ad.Length(), ad.Type(), ad.ExtentBlock, nil
}

func (w *Walker) copyRecorded(n int64, sink func([]byte) error) error {
	size := int(min(n, int64(w.chunkSize)))
	if cap(w.buf) < size {
		w.buf = make([]byte, size)
	}
	for n > 0 {
		chunk := w.buf[:min(n, int64(size))]
		if err := w.c.ReadFull(chunk); err != nil {
			return fmt.Errorf("failed to read extent data: %w", err)
		}
		w.sink.ReportProgress(-1)
		if err := sink(chunk); err != nil {
			return err
		}
		n -= int64(len(chunk))
	}
	return nil
}

func (w *Walker) emitZeros(n int64, sink func([]byte) error) error {
	size := int(min(n, int64(w.chunkSize)))
	if len(w.zeros) < size {
		w.zeros = make([]byte, size)
	}
	for n > 0 {
		chunk := w.zeros[:min(n, int64(size))]
		w.sink.ReportProgress(-1)
		if err := sink(chunk); err != nil {
			return err
		}
		n -= int64(len(chunk))
	}
	return nil
}

// partial reports allocation descriptors that ran out before the recorded length. In strict mode the
// warning is returned as an error.
func (w *Walker) partial(path string, missing int64) error {
	warning := &PartialExtractionWarning{Path: path, Missing: missing}
	w.logger.Warn("allocation descriptors exhausted before recorded length", "path", path, "missing", missing)
	w.sink.Announce(fmt.Sprintf("Warning: %d bytes not read for %s", missing, path))
	if w.strict {
		return warning
	}
	w.result.Warnings = append(w.result.Warnings, warning)
	return nil
}

func (w *Walker) fail(path string, err error) {
	w.logger.Warn("failed to extract entry", "path", path, "error", err.Error())
	w.sink.Announce(fmt.Sprintf("Warning: failed to extract %s: %v", path, err))
	w.result.Failed = append(w.result.Failed, &FileExtractionError{Path: path, Err: err})
}

func (w *Walker) restore(pos int64) {
	if err := w.c.Seek(pos); err != nil {
		w.logger.Error(err, "failed to restore cursor position", "position", pos)
	}
}

// informationLength returns the recorded length of an entry, rejecting lengths a file offset cannot hold.
func informationLength(body descriptor.IcbFileEntryBody) (int64, error) {
	if body.InformationLength > math.MaxInt64 {
		return 0, formatErrorf(INVALID_INFORMATION_LENGTH, "information length %d exceeds the largest file offset", body.InformationLength)
	}
	return int64(body.InformationLength), nil
}

// checkEntryTag accepts file entries and classifies every other ICB entry kind.
func checkEntryTag(id descriptor.TagIdentifier) error {
	switch id {
	case descriptor.TAG_FILE_ENTRY:
		return nil
	case descriptor.TAG_UNALLOCATED_SPACE_ENTRY, descriptor.TAG_INDIRECT_ENTRY, descriptor.TAG_EXTENDED_FILE_ENTRY:
		return &UnsupportedError{Tag: id}
	default:
		return formatErrorf(INVALID_DESCRIPTOR_TAG, "unexpected descriptor tag %s in ICB", id)
	}
}

// checkEntryName rejects identifiers that would escape or collapse onto the containing directory.
func checkEntryName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return formatErrorf(BAD_FILE_IDENTIFIER, "unusable file identifier %q", name)
	}
	return nil
}

func makeDirectory(path string) error {
	err := os.Mkdir(path, 0o755)
	if err == nil {
		return nil
	}
	if os.IsExist(err) {
		if info, serr := os.Stat(path); serr == nil && info.IsDir() {
			return nil
		}
		return fmt.Errorf("%s exists and is not a directory", path)
	}
	return fmt.Errorf("failed to create directory: %w", err)
}
