package udf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	itesting "github.com/bgrewell/udf-kit/internal/testing"
	"github.com/bgrewell/udf-kit/internal/testing/udfimage"
	"github.com/bgrewell/udf-kit/pkg/cursor"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/progress"
	"github.com/bgrewell/udf-kit/pkg/udf/descriptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink keeps announcements and counts busy reports.
type recordingSink struct {
	progress.Null
	busy          int
	announcements []string
}

func (r *recordingSink) ReportProgress(int) { r.busy++ }
func (r *recordingSink) Announce(message string) {
	r.announcements = append(r.announcements, message)
}

func (r *recordingSink) announced(substr string) bool {
	for _, a := range r.announcements {
		if strings.Contains(a, substr) {
			return true
		}
	}
	return false
}

func randomBytes(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// openImage opens an in-memory image with the given options.
func openImage(t *testing.T, image []byte, opts ...option.OpenOption) *UDF {
	t.Helper()
	u, err := Open(bytes.NewReader(image), int64(len(image)), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = u.Close() })
	return u
}

func requireFormatError(t *testing.T, err error, kind FormatErrorKind) {
	t.Helper()
	var fe *FormatError
	require.True(t, errors.As(err, &fe), "expected a FormatError, got %v", err)
	assert.Equal(t, kind, fe.Kind)
}

func TestOpenResolvesVolume(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	file := b.AddFile([]byte("hello"))
	root := b.AddDirectory(udfimage.FID(0, "hello.txt", file))
	u := openImage(t, b.Build(root))

	v := u.VolumeInfo()
	assert.Equal(t, int64(udfimage.SectorSize), v.SectorSize)
	assert.Equal(t, uint16(udfimage.PartitionNumber), v.Partition.PartitionNumber)
	assert.Equal(t, uint32(udfimage.PartitionStart), v.Partition.PartitionStartingLocation)
	assert.Equal(t, udfimage.VolumeID, u.VolumeIdentifier())
	assert.Equal(t, uint32(udfimage.SectorSize), v.LogicalVolume.LogicalBlockSize)
	require.Len(t, v.LogicalVolume.PartitionMaps, 1)
	require.NotNil(t, v.FileSet)
	assert.Equal(t, udfimage.FileSetID, v.FileSet.FileSetIdentifier)
	assert.Equal(t, int64(udfimage.PartitionStart*udfimage.SectorSize), v.FileSetLocation())
	assert.Equal(t, root.Block, u.RootDirectory().ExtentLocation.LogicalBlockNum)

	require.Len(t, v.Recognition, 3)
	assert.True(t, v.HasNSR())
	assert.True(t, v.Anchor.Tag.ChecksumValid())
}

func TestResolveStopsAtTerminatingDescriptor(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	// Would be fatal if the scan went past the terminator.
	b.RawVolumeSector(0x7777)
	root := b.AddDirectory()
	openImage(t, b.Build(root))
}

func TestResolveRejectsUnknownTag(t *testing.T) {
	b := udfimage.NewBuilder(t).PartitionDescriptor()
	b.RawVolumeSector(0x7777)
	b.LogicalVolumeDescriptor().Terminator()
	image := b.Build(b.AddDirectory())

	_, err := Open(bytes.NewReader(image), int64(len(image)))
	requireFormatError(t, err, INVALID_DESCRIPTOR_TAG)
	var unknown *descriptor.UnknownTagIdentifierError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, uint16(0x7777), unknown.ID)
}

func TestResolveDuplicateDescriptors(t *testing.T) {
	t.Run("partition", func(t *testing.T) {
		b := udfimage.NewBuilder(t).PartitionDescriptor().PartitionDescriptor().LogicalVolumeDescriptor().Terminator()
		image := b.Build(b.AddDirectory())
		u, err := Open(bytes.NewReader(image), int64(len(image)))
		requireFormatError(t, err, DUPLICATE_PARTITION_DESCRIPTOR)
		assert.Nil(t, u)
	})
	t.Run("logical volume", func(t *testing.T) {
		b := udfimage.NewBuilder(t).LogicalVolumeDescriptor().PartitionDescriptor().LogicalVolumeDescriptor().Terminator()
		image := b.Build(b.AddDirectory())
		_, err := Open(bytes.NewReader(image), int64(len(image)))
		requireFormatError(t, err, DUPLICATE_LOGICAL_VOLUME_DESCRIPTOR)
	})
}

func TestResolveMissingLogicalVolume(t *testing.T) {
	b := udfimage.NewBuilder(t).PartitionDescriptor().Terminator()
	image := b.Build(b.AddDirectory())
	_, err := Open(bytes.NewReader(image), int64(len(image)))
	requireFormatError(t, err, MISSING_VOLUME_STRUCTURE)
}

func TestResolveTooSmallForAnchor(t *testing.T) {
	image := make([]byte, 100*udfimage.SectorSize)
	_, err := Open(bytes.NewReader(image), int64(len(image)))
	requireFormatError(t, err, MISSING_VOLUME_STRUCTURE)
}

func TestResolveWarnsOnUnexpectedTags(t *testing.T) {
	b := udfimage.NewBuilder(t).PartitionDescriptor()
	b.VolumeDescriptor(descriptor.TAG_PRIMARY_VOLUME_DESCRIPTOR)
	b.VolumeDescriptor(descriptor.TAG_FILE_SET_DESCRIPTOR)
	b.LogicalVolumeDescriptor().Terminator()
	image := b.Build(b.AddDirectory())

	sink := &recordingSink{}
	buf := &bytes.Buffer{}
	logger := logging.NewLogger(logging.NewSimpleLogger(buf, logging.LEVEL_INFO, false))
	openImage(t, image, option.WithProgress(sink), option.WithLogger(logger))
	require.Len(t, sink.announcements, 1)
	assert.Contains(t, sink.announcements[0], "FILE_SET_DESCRIPTOR")

	// The primary volume descriptor is expected in the sequence and only shows up at debug level.
	output := buf.String()
	assert.Equal(t, 1, strings.Count(output, "[WARN]"), output)
	assert.Contains(t, output, "tag: FILE_SET_DESCRIPTOR")
	assert.NotContains(t, output, "PRIMARY_VOLUME_DESCRIPTOR")
}

func TestResolveStandardSequenceIsQuiet(t *testing.T) {
	b := udfimage.NewBuilder(t).PartitionDescriptor()
	b.VolumeDescriptor(descriptor.TAG_PRIMARY_VOLUME_DESCRIPTOR)
	b.VolumeDescriptor(descriptor.TAG_IMPLEMENTATION_USE_VOLUME_DESCRIPTOR)
	b.VolumeDescriptor(descriptor.TAG_UNALLOCATED_SPACE_DESCRIPTOR)
	b.LogicalVolumeDescriptor().Terminator()
	image := b.Build(b.AddDirectory())

	buf := &bytes.Buffer{}
	logger := logging.NewLogger(logging.NewSimpleLogger(buf, logging.LEVEL_DEBUG, false))
	sink := &recordingSink{}
	openImage(t, image, option.WithProgress(sink), option.WithLogger(logger))

	output := buf.String()
	assert.NotContains(t, output, "[WARN]")
	assert.Equal(t, 3, strings.Count(output, "skipping volume descriptor"), output)
	assert.Empty(t, sink.announcements)
}

func TestResolveRootPartitionMismatch(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	root := b.AddDirectory()
	root.PartRef = 1
	image := b.Build(root)

	_, err := Open(bytes.NewReader(image), int64(len(image)))
	requireFormatError(t, err, PARTITION_MISMATCH)
}

func TestExtractRecordedExtent(t *testing.T) {
	content := randomBytes(5000, 1)
	b := udfimage.NewBuilder(t).StandardVolume()
	root := b.AddDirectory(udfimage.FID(0, "data.bin", b.AddFile(content)))

	sink := &recordingSink{}
	var calls int
	var lastTransferred, lastTotal int64
	u := openImage(t, b.Build(root), option.WithChunkSize(1000), option.WithProgress(sink),
		option.WithExtractionProgress(func(name string, transferred, total int64, n, count int) {
			calls++
			lastTransferred, lastTotal = transferred, total
			assert.Equal(t, 1, n)
			assert.Equal(t, 0, count)
		}))

	out := t.TempDir()
	res, err := u.Extract(out)
	require.NoError(t, err)
	require.NoError(t, res.Err())

	got, err := os.ReadFile(filepath.Join(out, "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, []string{filepath.Join(out, "data.bin")}, res.Files)
	assert.Empty(t, res.Warnings)

	assert.Equal(t, 5, calls, "one callback per 1000 byte chunk")
	assert.Equal(t, int64(5000), lastTransferred)
	assert.Equal(t, int64(5000), lastTotal)
	assert.GreaterOrEqual(t, sink.busy, 5)
	assert.True(t, sink.announced("Extracted all files from "+udfimage.VolumeID))
}

func TestExtractNotRecordedExtent(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	file := b.AddEntries(udfimage.FileEntry(3000,
		udfimage.ShortAds(udfimage.Extent{Length: 3000, Kind: descriptor.EXTENT_ALLOCATED_BUT_NOT_RECORDED})))
	root := b.AddDirectory(udfimage.FID(0, "sparse.bin", file))
	u := openImage(t, b.Build(root), option.WithChunkSize(1024))

	out := t.TempDir()
	_, err := u.Extract(out)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(out, "sparse.bin"))
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 3000), got)
}

func TestExtractSkipsUnhandledExtentTypes(t *testing.T) {
	content := randomBytes(2000, 2)
	b := udfimage.NewBuilder(t).StandardVolume()
	data := b.AddData(content)
	file := b.AddEntries(udfimage.FileEntry(3000, udfimage.ShortAds(
		udfimage.Extent{Length: 1000, Kind: descriptor.EXTENT_NEITHER_ALLOCATED_NOR_RECORDED},
		udfimage.Extent{Length: 2000, Kind: descriptor.EXTENT_RECORDED_ALLOCATED, Block: data},
	)))
	root := b.AddDirectory(udfimage.FID(0, "mixed.bin", file))
	sink := &recordingSink{}
	u := openImage(t, b.Build(root), option.WithProgress(sink))

	out := t.TempDir()
	res, err := u.Extract(out)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings, "the skipped extent still counts against the recorded length")

	got, err := os.ReadFile(filepath.Join(out, "mixed.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.True(t, sink.announced("EXTENT_NEITHER_ALLOCATED_NOR_RECORDED"))
}

func TestExtractSkipsParentHiddenAndDeleted(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	keep := b.AddFile([]byte("keep"))
	other := b.AddFile([]byte("other"))
	root := b.AddDirectory(
		udfimage.FID(descriptor.FILE_CHAR_PARENT|descriptor.FILE_CHAR_DIRECTORY, "", udfimage.ICBRef{}),
		udfimage.FID(descriptor.FILE_CHAR_HIDDEN, "secret.txt", other),
		udfimage.FID(descriptor.FILE_CHAR_DELETED, "gone.txt", other),
		udfimage.FID(0, "keep.txt", keep),
	)
	u := openImage(t, b.Build(root))

	out := t.TempDir()
	res, err := u.Extract(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt"}, listDir(t, out))
	assert.Len(t, res.Files, 1)
	assert.Empty(t, res.Failed)
}

func TestExtractSubdirectories(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	inner := b.AddFile([]byte("inner"))
	sub := b.AddDirectory(
		udfimage.FID(descriptor.FILE_CHAR_PARENT|descriptor.FILE_CHAR_DIRECTORY, "", udfimage.ICBRef{}),
		udfimage.FID(0, "inner.txt", inner),
	)
	root := b.AddDirectory(
		udfimage.FID(descriptor.FILE_CHAR_DIRECTORY, "sub", sub),
		udfimage.FID(0, "top.txt", b.AddFile([]byte("top"))),
	)
	u := openImage(t, b.Build(root))

	out := t.TempDir()
	// An existing directory is reused.
	require.NoError(t, os.Mkdir(filepath.Join(out, "sub"), 0o755))

	res, err := u.Extract(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub", "top.txt"}, listDir(t, out))
	assert.Equal(t, []string{filepath.Join(out, "sub")}, res.Directories)

	got, err := os.ReadFile(filepath.Join(out, "sub", "inner.txt"))
	require.NoError(t, err)
	assert.Equal(t, "inner", string(got))
	assert.Equal(t, []string{filepath.Join(out, "sub", "inner.txt"), filepath.Join(out, "top.txt")}, res.Files)
	require.NoError(t, itesting.ValidateEntries(out, []itesting.GroundTruthEntry{
		{Name: "sub", IsDirectory: true},
		{Name: "sub/inner.txt", Size: 5},
		{Name: "top.txt", Size: 3},
	}))
}

func TestExtractIndirectEntryRemovesPartialFile(t *testing.T) {
	content := randomBytes(4096, 3)
	b := udfimage.NewBuilder(t).StandardVolume()
	data := b.AddData(content)
	bad := b.AddEntries(
		udfimage.Entry{
			Tag:        descriptor.TAG_FILE_ENTRY,
			FileType:   descriptor.ICB_FILE_TYPE_FILE,
			MaxEntries: 2,
			Length:     4096,
			ADs:        udfimage.ShortAds(udfimage.Extent{Length: 4096, Kind: descriptor.EXTENT_RECORDED_ALLOCATED, Block: data}),
		},
		udfimage.Entry{Tag: descriptor.TAG_INDIRECT_ENTRY, MaxEntries: 2},
	)
	good := b.AddFile([]byte("good"))
	root := b.AddDirectory(udfimage.FID(0, "bad.bin", bad), udfimage.FID(0, "good.txt", good))

	sink := &recordingSink{}
	u := openImage(t, b.Build(root), option.WithProgress(sink))
	out := t.TempDir()
	res, err := u.Extract(out)
	require.NoError(t, err)

	assert.Equal(t, []string{"good.txt"}, listDir(t, out))
	require.Len(t, res.Failed, 1)
	assert.Equal(t, filepath.Join(out, "bad.bin"), res.Failed[0].Path)
	var unsupported *UnsupportedError
	require.True(t, errors.As(res.Failed[0], &unsupported))
	assert.Equal(t, descriptor.TAG_INDIRECT_ENTRY, unsupported.Tag)
	assert.Error(t, res.Err())
	assert.True(t, sink.announced("Removing partially-extracted file "+filepath.Join(out, "bad.bin")))
}

func TestExtractCreateFailureKeepsSiblings(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	root := b.AddDirectory(
		udfimage.FID(0, "x", b.AddFile([]byte("blocked"))),
		udfimage.FID(0, "good.txt", b.AddFile([]byte("good"))),
	)
	u := openImage(t, b.Build(root))

	out := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(out, "x"), 0o755))
	res, err := u.Extract(out)
	require.NoError(t, err)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, filepath.Join(out, "x"), res.Failed[0].Path)
	assert.Contains(t, res.Failed[0].Error(), "failed to create file")
	assert.DirExists(t, filepath.Join(out, "x"))
	assert.Equal(t, []string{filepath.Join(out, "good.txt")}, res.Files)
	got, err := os.ReadFile(filepath.Join(out, "good.txt"))
	require.NoError(t, err)
	assert.Equal(t, "good", string(got))
}

func TestExtractExtentPastEndOfImage(t *testing.T) {
	const recorded = 1 << 20
	b := udfimage.NewBuilder(t).StandardVolume()
	data := b.AddData(randomBytes(udfimage.SectorSize, 6))
	bad := b.AddEntries(udfimage.FileEntry(recorded,
		udfimage.ShortAds(udfimage.Extent{Length: recorded, Kind: descriptor.EXTENT_RECORDED_ALLOCATED, Block: data})))
	good := b.AddFile([]byte("good"))
	root := b.AddDirectory(udfimage.FID(0, "bad.bin", bad), udfimage.FID(0, "good.txt", good))

	sink := &recordingSink{}
	var written int64
	u := openImage(t, b.Build(root), option.WithChunkSize(1024), option.WithProgress(sink),
		option.WithExtractionProgress(func(name string, transferred, total int64, n, count int) {
			if filepath.Base(name) == "bad.bin" {
				written = transferred
			}
		}))
	out := t.TempDir()
	res, err := u.Extract(out)
	require.NoError(t, err)

	assert.Positive(t, written, "chunks before the end of the image are written")
	assert.Less(t, written, int64(recorded))
	require.Len(t, res.Failed, 1)
	assert.Equal(t, filepath.Join(out, "bad.bin"), res.Failed[0].Path)
	assert.ErrorIs(t, res.Failed[0], cursor.ErrTruncatedRead)
	assert.Equal(t, []string{"good.txt"}, listDir(t, out))
	assert.True(t, sink.announced("Removing partially-extracted file "+filepath.Join(out, "bad.bin")))
}

func TestExtractRejectsOversizedInformationLength(t *testing.T) {
	const oversized = uint64(1) << 63

	t.Run("file", func(t *testing.T) {
		b := udfimage.NewBuilder(t).StandardVolume()
		data := b.AddData([]byte("huge"))
		file := b.AddEntries(udfimage.FileEntry(oversized,
			udfimage.ShortAds(udfimage.Extent{Length: 4, Kind: descriptor.EXTENT_RECORDED_ALLOCATED, Block: data})))
		root := b.AddDirectory(udfimage.FID(0, "huge.bin", file), udfimage.FID(0, "ok.txt", b.AddFile([]byte("ok"))))
		u := openImage(t, b.Build(root))

		out := t.TempDir()
		res, err := u.Extract(out)
		require.NoError(t, err)
		require.Len(t, res.Failed, 1)
		requireFormatError(t, res.Failed[0], INVALID_INFORMATION_LENGTH)
		assert.Empty(t, res.Warnings)
		assert.Equal(t, []string{"ok.txt"}, listDir(t, out))
	})

	t.Run("directory", func(t *testing.T) {
		b := udfimage.NewBuilder(t).StandardVolume()
		root := b.AddEntries(udfimage.Entry{
			Tag:        descriptor.TAG_FILE_ENTRY,
			FileType:   descriptor.ICB_FILE_TYPE_DIRECTORY,
			Use:        descriptor.ICB_DESC_USE_SHORT,
			MaxEntries: 1,
			Length:     oversized,
		})
		u := openImage(t, b.Build(root))

		_, err := u.Extract(t.TempDir())
		requireFormatError(t, err, INVALID_INFORMATION_LENGTH)
	})
}

func TestExtractTerminalEntry(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	data := b.AddData([]byte("terminated"))
	file := b.AddEntries(
		udfimage.Entry{
			Tag:        descriptor.TAG_FILE_ENTRY,
			FileType:   descriptor.ICB_FILE_TYPE_FILE,
			MaxEntries: 3,
			Length:     10,
			ADs:        udfimage.ShortAds(udfimage.Extent{Length: 10, Kind: descriptor.EXTENT_RECORDED_ALLOCATED, Block: data}),
		},
		udfimage.Entry{Tag: descriptor.TAG_TERMINAL_ENTRY, MaxEntries: 3},
		udfimage.Entry{Tag: descriptor.TAG_INDIRECT_ENTRY, MaxEntries: 3},
	)
	root := b.AddDirectory(udfimage.FID(0, "t.txt", file))
	u := openImage(t, b.Build(root))

	out := t.TempDir()
	res, err := u.Extract(out)
	require.NoError(t, err)
	require.Empty(t, res.Failed)
	got, err := os.ReadFile(filepath.Join(out, "t.txt"))
	require.NoError(t, err)
	assert.Equal(t, "terminated", string(got))
}

func TestExtractInvalidEntryCounts(t *testing.T) {
	tests := []struct {
		name    string
		entries []udfimage.Entry
	}{
		{"zero", []udfimage.Entry{{Tag: descriptor.TAG_FILE_ENTRY, MaxEntries: 0}}},
		{"changed", []udfimage.Entry{
			fileEntryWithMax(2),
			{Tag: descriptor.TAG_TERMINAL_ENTRY, MaxEntries: 5},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := udfimage.NewBuilder(t).StandardVolume()
			root := b.AddDirectory(udfimage.FID(0, "f", b.AddEntries(tt.entries...)))
			u := openImage(t, b.Build(root))
			out := t.TempDir()
			res, err := u.Extract(out)
			require.NoError(t, err)
			require.Len(t, res.Failed, 1)
			requireFormatError(t, res.Failed[0], INVALID_ICB_ENTRY_COUNT)
			assert.NoFileExists(t, filepath.Join(out, "f"))
		})
	}
}

func fileEntryWithMax(n uint16) udfimage.Entry {
	e := udfimage.FileEntry(0, nil)
	e.MaxEntries = n
	return e
}

func TestExtractPartialCoverage(t *testing.T) {
	content := randomBytes(2048, 4)
	build := func(t *testing.T) []byte {
		b := udfimage.NewBuilder(t).StandardVolume()
		data := b.AddData(content)
		file := b.AddEntries(udfimage.FileEntry(4096,
			udfimage.ShortAds(udfimage.Extent{Length: 2048, Kind: descriptor.EXTENT_RECORDED_ALLOCATED, Block: data})))
		return b.Build(b.AddDirectory(udfimage.FID(0, "short.bin", file)))
	}

	t.Run("lenient", func(t *testing.T) {
		u := openImage(t, build(t))
		out := t.TempDir()
		res, err := u.Extract(out)
		require.NoError(t, err)
		require.NoError(t, res.Err())
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, int64(2048), res.Warnings[0].Missing)

		got, err := os.ReadFile(filepath.Join(out, "short.bin"))
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("strict", func(t *testing.T) {
		u := openImage(t, build(t), option.WithStrict(true))
		out := t.TempDir()
		res, err := u.Extract(out)
		require.NoError(t, err)
		require.Len(t, res.Failed, 1)
		var warning *PartialExtractionWarning
		require.True(t, errors.As(res.Failed[0], &warning))
		assert.Equal(t, int64(2048), warning.Missing)
		assert.NoFileExists(t, filepath.Join(out, "short.bin"))
	})
}

func TestExtractDescriptorUseModes(t *testing.T) {
	content := randomBytes(3000, 5)

	t.Run("long", func(t *testing.T) {
		b := udfimage.NewBuilder(t).StandardVolume()
		data := b.AddData(content)
		e := udfimage.FileEntry(3000, udfimage.LongAds(udfimage.PartitionNumber,
			udfimage.Extent{Length: 3000, Kind: descriptor.EXTENT_RECORDED_ALLOCATED, Block: data}))
		e.Use = descriptor.ICB_DESC_USE_LONG
		root := b.AddDirectory(udfimage.FID(0, "long.bin", b.AddEntries(e)))
		u := openImage(t, b.Build(root))

		out := t.TempDir()
		_, err := u.Extract(out)
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(out, "long.bin"))
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("long with foreign partition", func(t *testing.T) {
		b := udfimage.NewBuilder(t).StandardVolume()
		data := b.AddData(content)
		e := udfimage.FileEntry(3000, udfimage.LongAds(3, udfimage.Extent{Length: 3000, Kind: descriptor.EXTENT_RECORDED_ALLOCATED, Block: data}))
		e.Use = descriptor.ICB_DESC_USE_LONG
		root := b.AddDirectory(udfimage.FID(0, "long.bin", b.AddEntries(e)))
		u := openImage(t, b.Build(root))

		res, err := u.Extract(t.TempDir())
		require.NoError(t, err)
		require.Len(t, res.Failed, 1)
		requireFormatError(t, res.Failed[0], PARTITION_MISMATCH)
	})

	t.Run("immediate", func(t *testing.T) {
		b := udfimage.NewBuilder(t).StandardVolume()
		e := udfimage.FileEntry(12, []byte("hello inline"))
		e.Use = descriptor.ICB_DESC_USE_IMMEDIATE
		root := b.AddDirectory(udfimage.FID(0, "inline.txt", b.AddEntries(e)))
		u := openImage(t, b.Build(root))

		out := t.TempDir()
		_, err := u.Extract(out)
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(out, "inline.txt"))
		require.NoError(t, err)
		assert.Equal(t, "hello inline", string(got))
	})

	t.Run("extended", func(t *testing.T) {
		b := udfimage.NewBuilder(t).StandardVolume()
		e := udfimage.FileEntry(10, make([]byte, 20))
		e.Use = descriptor.ICB_DESC_USE_EXTENDED
		root := b.AddDirectory(udfimage.FID(0, "ext.bin", b.AddEntries(e)))
		u := openImage(t, b.Build(root))

		res, err := u.Extract(t.TempDir())
		require.NoError(t, err)
		require.Len(t, res.Failed, 1)
		var unsupported *UnsupportedError
		assert.True(t, errors.As(res.Failed[0], &unsupported))
	})
}

func TestExtractRejectsUnusableNames(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	f := b.AddFile([]byte("x"))
	root := b.AddDirectory(udfimage.FID(0, "a/b", f), udfimage.FID(0, "..", f), udfimage.FID(0, "ok", f))
	u := openImage(t, b.Build(root))

	out := t.TempDir()
	res, err := u.Extract(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, listDir(t, out))
	require.Len(t, res.Failed, 2)
	requireFormatError(t, res.Failed[0], BAD_FILE_IDENTIFIER)
}

func TestExtractBadFileIdentifierIsFatal(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	bad := udfimage.FID(0, "x", b.AddFile([]byte("x")))
	binary.LittleEndian.PutUint16(bad, uint16(descriptor.TAG_FILE_ENTRY))
	root := b.AddDirectory(bad)
	u := openImage(t, b.Build(root))

	_, err := u.Extract(t.TempDir())
	requireFormatError(t, err, BAD_FILE_IDENTIFIER)
}

func TestExtractDirectoryLoop(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	// The root directory will be the next ICB allocated after its data block.
	rootRef := udfimage.ICBRef{Block: b.NextBlock() + 1}
	root := b.AddDirectory(udfimage.FID(descriptor.FILE_CHAR_DIRECTORY, "loop", rootRef))
	require.Equal(t, rootRef, root)
	u := openImage(t, b.Build(root))

	out := t.TempDir()
	res, err := u.Extract(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"loop"}, listDir(t, out))
	assert.Empty(t, listDir(t, filepath.Join(out, "loop")))
	assert.Len(t, res.Directories, 1)
}

func TestExtractRecursionDepth(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	root := b.AddDirectory(udfimage.FID(0, "a.txt", b.AddFile([]byte("a"))), udfimage.FID(0, "b.txt", b.AddFile([]byte("b"))))
	image := b.Build(root)

	t.Run("zero extracts nothing", func(t *testing.T) {
		u := openImage(t, image, option.WithRecursionDepth(0))
		out := filepath.Join(t.TempDir(), "out")
		res, err := u.Extract(out)
		require.NoError(t, err)
		assert.Empty(t, res.Files)
		assert.NoDirExists(t, out)
	})

	t.Run("further extraction", func(t *testing.T) {
		seen := map[string]int{}
		u := openImage(t, image, option.WithRecursionDepth(3), option.WithFurtherExtraction(func(path string, depth int) {
			seen[filepath.Base(path)] = depth
		}))
		_, err := u.Extract(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"a.txt": 2, "b.txt": 2}, seen)
	})
}

func TestOpenFile(t *testing.T) {
	b := udfimage.NewBuilder(t).StandardVolume()
	root := b.AddDirectory(udfimage.FID(0, "f.txt", b.AddFile([]byte("mapped"))))
	path := filepath.Join(t.TempDir(), "disc.udf")
	require.NoError(t, os.WriteFile(path, b.Build(root), 0o644))

	u, err := OpenFile(path)
	require.NoError(t, err)
	out := t.TempDir()
	_, err = u.Extract(out)
	require.NoError(t, err)
	require.NoError(t, u.Close())

	got, err := os.ReadFile(filepath.Join(out, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "mapped", string(got))
}
