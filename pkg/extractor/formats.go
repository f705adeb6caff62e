package extractor

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bgrewell/udf-kit/pkg/cursor"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/udf"
	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

func (d *Dispatcher) extractUDF(input, outDir string, depth int) error {
	opts := append(append([]option.OpenOption{}, d.openOptions...),
		option.WithRecursionDepth(depth),
		option.WithFurtherExtraction(d.TryExtractFurther),
	)
	image, err := udf.OpenFile(input, opts...)
	if err != nil {
		if isUDFFormatError(err) {
			return &FormattingError{Kind: KIND_UDF, Path: input, Err: err}
		}
		return err
	}
	defer image.Close()

	result, err := image.Extract(outDir)
	if err != nil {
		return err
	}
	return result.Err()
}

func isUDFFormatError(err error) bool {
	var formatErr *udf.FormatError
	var contentErr *cursor.UnexpectedContentError
	return errors.As(err, &formatErr) || errors.As(err, &contentErr) || errors.Is(err, cursor.ErrTruncatedRead)
}

func (d *Dispatcher) extractZip(input, outDir string, depth int) error {
	zr, err := zip.OpenReader(input)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return &FormattingError{Kind: KIND_ZIP, Path: input, Err: err}
		}
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := safeJoin(outDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := d.writeZipEntry(f, target); err != nil {
			return err
		}
		d.TryExtractFurther(target, depth-1)
	}
	d.sink.ClearProgress()
	d.sink.Announce("Extracted all files from " + input)
	return nil
}

func (d *Dispatcher) writeZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
	}
	defer rc.Close()
	return d.writeFile(target, rc)
}

func (d *Dispatcher) extractTar(input, outDir string, depth int) error {
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for first := true; ; first = false {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if first {
				return &FormattingError{Kind: KIND_TAR, Path: input, Err: err}
			}
			return err
		}

		target, err := safeJoin(outDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := d.writeFile(target, tr); err != nil {
				return err
			}
			d.TryExtractFurther(target, depth-1)
		default:
			d.logger.Debug("skipping tar entry", "name", hdr.Name, "type", string(hdr.Typeflag))
		}
	}
	d.sink.ClearProgress()
	d.sink.Announce("Extracted all files from " + input)
	return nil
}

func (d *Dispatcher) extractGZip(v *Variant, input, outDir string, depth int) error {
	return d.decompress(v, input, outDir, depth, func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	})
}

func (d *Dispatcher) extractBZip2(v *Variant, input, outDir string, depth int) error {
	return d.decompress(v, input, outDir, depth, func(r io.Reader) (io.Reader, error) {
		return bzip2.NewReader(r, nil)
	})
}

func (d *Dispatcher) extractXZ(v *Variant, input, outDir string, depth int) error {
	return d.decompress(v, input, outDir, depth, func(r io.Reader) (io.Reader, error) {
		return xz.NewReader(r)
	})
}

// decompress writes the single stream stored in input to outDir under the input's name without
// its suffix. Failures before the first output byte are reported as a FormattingError.
func (d *Dispatcher) decompress(v *Variant, input, outDir string, depth int, open func(io.Reader) (io.Reader, error)) error {
	target := filepath.Join(outDir, v.StripSuffix(filepath.Base(input)))
	if info, err := os.Stat(target); err == nil && !info.Mode().IsRegular() {
		return fmt.Errorf("could not uncompress to %s: it exists and is not a regular file", target)
	}

	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := open(f)
	if err != nil {
		return &FormattingError{Kind: v.kind, Path: input, Err: err}
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	d.sink.Announce("Uncompressing " + filepath.Base(input))
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	pw := &progressWriter{w: out, d: d}
	_, err = io.CopyBuffer(pw, r, make([]byte, d.chunkSize))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		if pw.n == 0 {
			return &FormattingError{Kind: v.kind, Path: input, Err: err}
		}
		return fmt.Errorf("failed to uncompress %s: %w", input, err)
	}
	d.sink.ClearProgress()

	d.TryExtractFurther(target, depth-1)
	d.sink.Announce("Extracted all files from " + input)
	return nil
}

// writeFile replaces target with the contents of r, creating parent directories as needed.
func (d *Dispatcher) writeFile(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if info, err := os.Lstat(target); err == nil {
		if info.IsDir() {
			return fmt.Errorf("could not write %s: it is a directory", target)
		}
		if err := os.Remove(target); err != nil {
			return err
		}
	}
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	_, err = io.CopyBuffer(&progressWriter{w: out, d: d}, r, make([]byte, d.chunkSize))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}

// safeJoin joins an archive member name onto dir and rejects names that escape it.
func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", fmt.Errorf("archive entry %q escapes the extraction directory", name)
	}
	return target, nil
}

// progressWriter ticks the busy indicator once per write.
type progressWriter struct {
	w io.Writer
	d *Dispatcher
	n int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.n += int64(n)
	p.d.sink.ReportProgress(-1)
	return n, err
}
