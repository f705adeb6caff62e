package extractor

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	itesting "github.com/bgrewell/udf-kit/internal/testing"
	"github.com/bgrewell/udf-kit/internal/testing/udfimage"
	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/progress"
	"github.com/bgrewell/udf-kit/pkg/udf"
	"github.com/bgrewell/udf-kit/pkg/udf/descriptor"
	"github.com/dsnet/compress/bzip2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type recordingSink struct {
	progress.Null
	busy     int
	messages []string
}

func (s *recordingSink) ReportProgress(int) {
	s.busy++
}

func (s *recordingSink) Announce(message string) {
	s.messages = append(s.messages, message)
}

func (s *recordingSink) announced(substr string) bool {
	for _, m := range s.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func newTestDispatcher() (*Dispatcher, *recordingSink) {
	sink := &recordingSink{}
	return NewDispatcher(option.WithProgress(sink), option.WithChunkSize(4096)), sink
}

type archiveEntry struct {
	name    string
	content []byte
}

func gzipBytes(t *testing.T, content []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func bzip2Bytes(t *testing.T, content []byte) []byte {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, nil)
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func xzBytes(t *testing.T, content []byte) []byte {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// zipBytes stores entries in order. Names ending in "/" become directories.
func zipBytes(t *testing.T, entries ...archiveEntry) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.name)
		require.NoError(t, err)
		if !strings.HasSuffix(e.name, "/") {
			_, err = f.Write(e.content)
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) string {
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readFile(t *testing.T, path string) []byte {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestVariantOrder(t *testing.T) {
	d, _ := newTestDispatcher()

	var got []Kind
	for _, v := range d.Variants() {
		got = append(got, v.Kind())
	}
	assert.Equal(t, []Kind{KIND_UDF, KIND_ZIP, KIND_GZIP, KIND_BZIP2, KIND_XZ, KIND_TAR}, got)

	udfVariant := d.Variants()[0]
	assert.Equal(t, []string{".udf", ".iso"}, udfVariant.SupportedSuffixes())
	assert.True(t, udfVariant.ExtractsFileSystem())
	assert.True(t, udfVariant.Supports("/images/DISC.ISO"))
	assert.False(t, udfVariant.Supports("/images/disc.iso.txt"))
	assert.False(t, d.Variants()[2].ExtractsFileSystem())
	assert.Equal(t, "GZip", KIND_GZIP.String())
}

func TestSaveLocation(t *testing.T) {
	dir := t.TempDir()
	d, sink := newTestDispatcher()
	zipVariant, gzipVariant := d.Variants()[1], d.Variants()[2]

	location, err := zipVariant.SaveLocation(filepath.Join(dir, "bundle.zip"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bundle"), location)

	location, err = zipVariant.SaveLocation(filepath.Join(dir, "UPPER.ZIP"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "UPPER"), location)

	location, err = gzipVariant.SaveLocation(filepath.Join(dir, "notes.txt.gz"))
	require.NoError(t, err)
	assert.Equal(t, dir, location)
	assert.Empty(t, sink.messages)

	writeFile(t, filepath.Join(dir, "taken"), []byte("x"))
	location, err = zipVariant.SaveLocation(filepath.Join(dir, "taken.zip"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "taken.dir"), location)
	assert.True(t, sink.announced("Setting save location to "+filepath.Join(dir, "taken.dir")))
}

func TestExtractCompressedStreams(t *testing.T) {
	content := bytes.Repeat([]byte("stream contents "), 1000)
	tests := []struct {
		name     string
		suffix   string
		compress func(*testing.T, []byte) []byte
	}{
		{"gzip", ".gz", gzipBytes},
		{"bzip2", ".bz2", bzip2Bytes},
		{"xz", ".xz", xzBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			d, sink := newTestDispatcher()
			input := writeFile(t, filepath.Join(dir, "data.txt"+tt.suffix), tt.compress(t, content))

			location, err := d.ExtractFile(input, 1)
			require.NoError(t, err)
			assert.Equal(t, dir, location)
			assert.Equal(t, content, readFile(t, filepath.Join(dir, "data.txt")))
			assert.True(t, sink.announced("Uncompressing data.txt"+tt.suffix))
			assert.True(t, sink.announced("Extracted all files from "+input))
			assert.Positive(t, sink.busy)
		})
	}
}

func TestExtractZipRecursesIntoNestedArchives(t *testing.T) {
	payload := []byte("nested payload")
	compressed := gzipBytes(t, payload)
	archive := zipBytes(t,
		archiveEntry{name: "docs/"},
		archiveEntry{name: "docs/readme.txt", content: []byte("read me")},
		archiveEntry{name: "inner/payload.bin.gz", content: compressed},
	)

	t.Run("depth two", func(t *testing.T) {
		dir := t.TempDir()
		d, _ := newTestDispatcher()
		input := writeFile(t, filepath.Join(dir, "bundle.zip"), archive)

		location, err := d.ExtractFile(input, 2)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "bundle"), location)
		assert.Equal(t, []byte("read me"), readFile(t, filepath.Join(location, "docs", "readme.txt")))
		assert.Equal(t, payload, readFile(t, filepath.Join(location, "inner", "payload.bin")))
		require.NoError(t, itesting.ValidateEntries(location, []itesting.GroundTruthEntry{
			{Name: "docs", IsDirectory: true},
			{Name: "docs/readme.txt", Size: 7},
			{Name: "inner", IsDirectory: true},
			{Name: "inner/payload.bin.gz", Size: int64(len(compressed))},
			{Name: "inner/payload.bin", Size: int64(len(payload))},
		}))
	})

	t.Run("depth one", func(t *testing.T) {
		dir := t.TempDir()
		d, _ := newTestDispatcher()
		input := writeFile(t, filepath.Join(dir, "bundle.zip"), archive)

		location, err := d.ExtractFile(input, 1)
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(location, "inner", "payload.bin.gz"))
		assert.NoFileExists(t, filepath.Join(location, "inner", "payload.bin"))
		folders, files, err := itesting.GetFileAndFolderCounts(location)
		require.NoError(t, err)
		assert.Equal(t, 2, folders)
		assert.Equal(t, 2, files)
	})
}

// discImage builds a UDF image holding a gzipped file, a plain file and a subdirectory with a zip.
func discImage(t *testing.T) (*udfimage.Builder, udfimage.ICBRef) {
	b := udfimage.NewBuilder(t).StandardVolume()
	nested := b.AddFile(zipBytes(t, archiveEntry{name: "deep.txt.gz", content: gzipBytes(t, []byte("deep"))}))
	sub := b.AddDirectory(
		udfimage.FID(descriptor.FILE_CHAR_PARENT|descriptor.FILE_CHAR_DIRECTORY, "", udfimage.ICBRef{}),
		udfimage.FID(0, "nested.zip", nested),
	)
	root := b.AddDirectory(
		udfimage.FID(0, "inner.txt.gz", b.AddFile(gzipBytes(t, []byte("hello nested")))),
		udfimage.FID(0, "plain.txt", b.AddFile([]byte("plain"))),
		udfimage.FID(descriptor.FILE_CHAR_DIRECTORY, "sub", sub),
	)
	return b, root
}

func TestExtractUDFRecursesIntoNestedArchives(t *testing.T) {
	t.Run("max depth", func(t *testing.T) {
		dir := t.TempDir()
		d, sink := newTestDispatcher()
		b, root := discImage(t)
		input := b.WriteFile(filepath.Join(dir, "disc.iso"), root)

		location, err := d.ExtractFile(input, consts.MAX_RECURSION)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "disc"), location)
		assert.Equal(t, []byte("hello nested"), readFile(t, filepath.Join(location, "inner.txt")))
		assert.Equal(t, []byte("plain"), readFile(t, filepath.Join(location, "plain.txt")))
		assert.Equal(t, []byte("deep"), readFile(t, filepath.Join(location, "sub", "nested", "deep.txt")))
		assert.True(t, sink.announced("Uncompressing inner.txt.gz"))
		assert.False(t, sink.announced("formatting error"))
	})

	t.Run("depth two", func(t *testing.T) {
		dir := t.TempDir()
		d, _ := newTestDispatcher()
		b, root := discImage(t)
		input := b.WriteFile(filepath.Join(dir, "DISC.UDF"), root)

		location, err := d.ExtractFile(input, 2)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "DISC"), location)
		assert.FileExists(t, filepath.Join(location, "inner.txt"))
		assert.FileExists(t, filepath.Join(location, "sub", "nested", "deep.txt.gz"))
		assert.NoFileExists(t, filepath.Join(location, "sub", "nested", "deep.txt"))
	})

	t.Run("depth one", func(t *testing.T) {
		dir := t.TempDir()
		d, _ := newTestDispatcher()
		b, root := discImage(t)
		input := b.WriteFile(filepath.Join(dir, "disc.iso"), root)

		location, err := d.ExtractFile(input, 1)
		require.NoError(t, err)
		require.NoError(t, itesting.ValidateEntries(location, []itesting.GroundTruthEntry{
			{Name: "inner.txt.gz", Size: int64(len(gzipBytes(t, []byte("hello nested"))))},
			{Name: "plain.txt", Size: 5},
			{Name: "sub", IsDirectory: true},
			{Name: "sub/nested.zip", Size: int64(len(readFile(t, filepath.Join(location, "sub", "nested.zip"))))},
		}))
	})

	t.Run("save location taken", func(t *testing.T) {
		dir := t.TempDir()
		d, sink := newTestDispatcher()
		b, root := discImage(t)
		input := b.WriteFile(filepath.Join(dir, "disc.iso"), root)
		writeFile(t, filepath.Join(dir, "disc"), []byte("not a directory"))

		location, err := d.ExtractFile(input, 1)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "disc.dir"), location)
		assert.FileExists(t, filepath.Join(location, "plain.txt"))
		assert.True(t, sink.announced("Setting save location to "+location))
	})
}

func TestExtractUDFWithFailedFile(t *testing.T) {
	dir := t.TempDir()
	d, sink := newTestDispatcher()
	b := udfimage.NewBuilder(t).StandardVolume()
	data := b.AddData([]byte("indirect"))
	bad := b.AddEntries(
		udfimage.Entry{
			Tag:        descriptor.TAG_FILE_ENTRY,
			FileType:   descriptor.ICB_FILE_TYPE_FILE,
			MaxEntries: 2,
			Length:     8,
			ADs:        udfimage.ShortAds(udfimage.Extent{Length: 8, Kind: descriptor.EXTENT_RECORDED_ALLOCATED, Block: data}),
		},
		udfimage.Entry{Tag: descriptor.TAG_INDIRECT_ENTRY, MaxEntries: 2},
	)
	root := b.AddDirectory(
		udfimage.FID(0, "bad.bin", bad),
		udfimage.FID(0, "good.txt.gz", b.AddFile(gzipBytes(t, []byte("good")))),
	)
	input := b.WriteFile(filepath.Join(dir, "disc.iso"), root)

	location, err := d.ExtractFile(input, consts.MAX_RECURSION)
	require.Error(t, err)
	assert.Empty(t, location)

	var failed *udf.FileExtractionError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, filepath.Join(dir, "disc", "bad.bin"), failed.Path)
	var formatting *FormattingError
	assert.False(t, errors.As(err, &formatting))
	assert.True(t, sink.announced("File extractor UDF could not fully extract the file "+input))
	assert.True(t, sink.announced("Could not extract the contents of file disc.iso using available extractors."))

	// The remaining entries are still extracted and handed on.
	assert.NoFileExists(t, filepath.Join(dir, "disc", "bad.bin"))
	assert.Equal(t, []byte("good"), readFile(t, filepath.Join(dir, "disc", "good.txt")))
}

func TestDispatcherRecursionDepth(t *testing.T) {
	assert.Equal(t, 1, NewDispatcher().RecursionDepth())
	assert.Equal(t, 5, NewDispatcher(option.WithRecursionDepth(5)).RecursionDepth())
	assert.Equal(t, consts.MAX_RECURSION, NewDispatcher(option.WithRecursionDepth(consts.MAX_RECURSION)).RecursionDepth())
}

func TestExtractTar(t *testing.T) {
	dir := t.TempDir()
	d, _ := newTestDispatcher()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "pkg/", Typeflag: tar.TypeDir, Mode: 0o755}))
	body := []byte("tar member")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "pkg/member.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "pkg/link", Typeflag: tar.TypeSymlink, Linkname: "member.txt"}))
	require.NoError(t, tw.Close())
	input := writeFile(t, filepath.Join(dir, "release.tar"), buf.Bytes())

	location, err := d.ExtractFile(input, 1)
	require.NoError(t, err)
	assert.Equal(t, body, readFile(t, filepath.Join(location, "pkg", "member.txt")))
	_, err = os.Lstat(filepath.Join(location, "pkg", "link"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractUnsupported(t *testing.T) {
	dir := t.TempDir()
	d, sink := newTestDispatcher()
	input := writeFile(t, filepath.Join(dir, "notes.txt"), []byte("plain"))

	_, err := d.ExtractFile(input, 1)
	assert.ErrorIs(t, err, ErrUnsupported)

	d.TryExtractFurther(input, 3)
	assert.Empty(t, sink.messages)
}

func TestExtractFormattingError(t *testing.T) {
	garbage := bytes.Repeat([]byte("garbage!"), 64)
	tests := []struct {
		name string
		file string
		kind Kind
	}{
		{"udf", "broken.iso", KIND_UDF},
		{"zip", "broken.zip", KIND_ZIP},
		{"gzip", "broken.gz", KIND_GZIP},
		{"bzip2", "broken.bz2", KIND_BZIP2},
		{"xz", "broken.xz", KIND_XZ},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			d, sink := newTestDispatcher()
			input := writeFile(t, filepath.Join(dir, tt.file), garbage)

			_, err := d.ExtractFile(input, 1)
			var formatting *FormattingError
			require.ErrorAs(t, err, &formatting)
			assert.Equal(t, tt.kind, formatting.Kind)
			assert.True(t, sink.announced("due to a formatting error"))
			assert.True(t, sink.announced("Could not extract the contents of file "+tt.file+" using available extractors."))

			sink.messages = nil
			d.TryExtractFurther(input, 1)
			assert.True(t, sink.announced("could not determine file's format"))
		})
	}
}

func TestExtractDepthZero(t *testing.T) {
	dir := t.TempDir()
	d, sink := newTestDispatcher()
	input := writeFile(t, filepath.Join(dir, "data.txt.gz"), gzipBytes(t, []byte("data")))

	location, err := d.ExtractFile(input, 0)
	require.NoError(t, err)
	assert.Empty(t, location)
	assert.NoFileExists(t, filepath.Join(dir, "data.txt"))

	d.TryExtractFurther(input, 0)
	assert.NoFileExists(t, filepath.Join(dir, "data.txt"))
	assert.Empty(t, sink.messages)
}

func TestExtractZipRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	d, sink := newTestDispatcher()
	input := writeFile(t, filepath.Join(dir, "evil.zip"),
		zipBytes(t, archiveEntry{name: "../escaped.txt", content: []byte("x")}))

	_, err := d.ExtractFile(input, 1)
	require.Error(t, err)
	var formatting *FormattingError
	assert.False(t, errors.As(err, &formatting))
	assert.NoFileExists(t, filepath.Join(dir, "escaped.txt"))
	assert.True(t, sink.announced("could not fully extract"))
}

func TestSafeJoin(t *testing.T) {
	dir := t.TempDir()

	target, err := safeJoin(dir, "a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a", "b", "c.txt"), target)

	for _, name := range []string{"../x", "a/../../x", "/etc/passwd"} {
		_, err := safeJoin(dir, name)
		assert.Error(t, err, name)
	}
}

func TestProgressWriterCounts(t *testing.T) {
	d, sink := newTestDispatcher()
	var buf bytes.Buffer
	pw := &progressWriter{w: &buf, d: d}

	n, err := io.Copy(pw, strings.NewReader("abcdef"))
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)
	assert.EqualValues(t, 6, pw.n)
	assert.Positive(t, sink.busy)
}
