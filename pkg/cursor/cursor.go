package cursor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/exp/mmap"
)

// maxBits is the widest unaligned bit field ReadBitsInt can return without overflowing its 64-bit buffer.
const maxBits = 57

// Cursor is a seekable reader over a fixed-size byte source. Every read advances the position.
// A Cursor is not safe for concurrent use.
type Cursor struct {
	src    io.ReaderAt
	size   int64
	pos    int64
	closer io.Closer

	// Bit buffer used by ReadBitsInt, MSB first.
	bits     uint64
	bitsLeft int
}

// NewCursor creates a Cursor reading size bytes from src.
func NewCursor(src io.ReaderAt, size int64) *Cursor {
	return &Cursor{src: src, size: size}
}

// NewBytesCursor creates a Cursor over an in-memory buffer.
func NewBytesCursor(data []byte) *Cursor {
	return NewCursor(bytes.NewReader(data), int64(len(data)))
}

// OpenFile memory maps the file at path and returns a Cursor over its contents.
// The caller must Close the cursor to release the mapping.
func OpenFile(path string) (*Cursor, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %w", path, err)
	}
	c := NewCursor(m, int64(m.Len()))
	c.closer = m
	return c, nil
}

// Close releases the underlying source when the cursor owns it.
func (c *Cursor) Close() error {
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}

// Seek moves the cursor to an absolute position. Seeking to Size() is allowed.
func (c *Cursor) Seek(pos int64) error {
	if pos < 0 || pos > c.size {
		return &SeekError{Offset: pos, Size: c.size}
	}
	c.pos = pos
	return nil
}

// Pos returns the current absolute position.
func (c *Cursor) Pos() int64 {
	return c.pos
}

// Size returns the total number of bytes in the source.
func (c *Cursor) Size() int64 {
	return c.size
}

// Remaining returns the number of bytes between the position and the end of the source.
func (c *Cursor) Remaining() int64 {
	return c.size - c.pos
}

// IsEOF reports whether the position is at the end and no buffered bits remain.
func (c *Cursor) IsEOF() bool {
	return c.bitsLeft == 0 && c.pos >= c.size
}

// ReadFull fills p from the current position.
func (c *Cursor) ReadFull(p []byte) error {
	n := int64(len(p))
	if n > c.Remaining() {
		return &TruncatedReadError{Offset: c.pos, Requested: n, Available: c.Remaining()}
	}
	if n == 0 {
		return nil
	}
	read, err := c.src.ReadAt(p, c.pos)
	if int64(read) < n {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("failed to read %d bytes at offset %d: %w", n, c.pos, err)
	}
	c.pos += n
	return nil
}

// ReadBytes reads exactly n bytes.
func (c *Cursor) ReadBytes(n int64) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d at offset %d", n, c.pos)
	}
	if n > c.Remaining() {
		return nil, &TruncatedReadError{Offset: c.pos, Requested: n, Available: c.Remaining()}
	}
	buf := make([]byte, n)
	if err := c.ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadBytesFull reads everything from the position to the end of the source.
func (c *Cursor) ReadBytesFull() ([]byte, error) {
	return c.ReadBytes(c.Remaining())
}

// ReadBytesTerm reads up to the terminator byte. includeTerm keeps the terminator in the result,
// consumeTerm leaves the cursor after it and eosError fails when the source ends first.
func (c *Cursor) ReadBytesTerm(term byte, includeTerm, consumeTerm, eosError bool) ([]byte, error) {
	var out []byte
	for {
		if c.pos >= c.size {
			if eosError {
				return nil, fmt.Errorf("end of stream reached before terminator %#02x: %w", term, ErrTruncatedRead)
			}
			return out, nil
		}
		b, err := c.ReadU1()
		if err != nil {
			return nil, err
		}
		if b == term {
			if includeTerm {
				out = append(out, b)
			}
			if !consumeTerm {
				c.pos--
			}
			return out, nil
		}
		out = append(out, b)
	}
}

// EnsureFixedContents reads len(expected) bytes and verifies they match expected.
func (c *Cursor) EnsureFixedContents(expected []byte) ([]byte, error) {
	offset := c.pos
	actual, err := c.ReadBytes(int64(len(expected)))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(actual, expected) {
		return nil, &UnexpectedContentError{Offset: offset, Actual: actual, Expected: expected}
	}
	return actual, nil
}

// Skip advances the position by n bytes.
func (c *Cursor) Skip(n int64) error {
	if n > c.Remaining() {
		return &TruncatedReadError{Offset: c.pos, Requested: n, Available: c.Remaining()}
	}
	return c.Seek(c.pos + n)
}

func (c *Cursor) fixed(n int) ([]byte, error) {
	var buf [8]byte
	if err := c.ReadFull(buf[:n]); err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// ReadU1 reads an unsigned byte.
func (c *Cursor) ReadU1() (uint8, error) {
	b, err := c.fixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadS1 reads a signed byte.
func (c *Cursor) ReadS1() (int8, error) {
	v, err := c.ReadU1()
	return int8(v), err
}

func (c *Cursor) ReadU2le() (uint16, error) {
	b, err := c.fixed(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) ReadU2be() (uint16, error) {
	b, err := c.fixed(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *Cursor) ReadU4le() (uint32, error) {
	b, err := c.fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) ReadU4be() (uint32, error) {
	b, err := c.fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *Cursor) ReadU8le() (uint64, error) {
	b, err := c.fixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *Cursor) ReadU8be() (uint64, error) {
	b, err := c.fixed(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (c *Cursor) ReadS2le() (int16, error) {
	v, err := c.ReadU2le()
	return int16(v), err
}

func (c *Cursor) ReadS2be() (int16, error) {
	v, err := c.ReadU2be()
	return int16(v), err
}

func (c *Cursor) ReadS4le() (int32, error) {
	v, err := c.ReadU4le()
	return int32(v), err
}

func (c *Cursor) ReadS4be() (int32, error) {
	v, err := c.ReadU4be()
	return int32(v), err
}

func (c *Cursor) ReadS8le() (int64, error) {
	v, err := c.ReadU8le()
	return int64(v), err
}

func (c *Cursor) ReadS8be() (int64, error) {
	v, err := c.ReadU8be()
	return int64(v), err
}

// ReadF4le reads an IEEE 754 single precision float.
func (c *Cursor) ReadF4le() (float32, error) {
	v, err := c.ReadU4le()
	return math.Float32frombits(v), err
}

func (c *Cursor) ReadF4be() (float32, error) {
	v, err := c.ReadU4be()
	return math.Float32frombits(v), err
}

// ReadF8le reads an IEEE 754 double precision float.
func (c *Cursor) ReadF8le() (float64, error) {
	v, err := c.ReadU8le()
	return math.Float64frombits(v), err
}

func (c *Cursor) ReadF8be() (float64, error) {
	v, err := c.ReadU8be()
	return math.Float64frombits(v), err
}

// AlignToByte discards any buffered bits left over from ReadBitsInt.
func (c *Cursor) AlignToByte() {
	c.bits = 0
	c.bitsLeft = 0
}

// ReadBitsInt reads an n bit big-endian unsigned integer. Bits not consumed by this call stay
// buffered for the next one until AlignToByte is called.
func (c *Cursor) ReadBitsInt(n int) (uint64, error) {
	if n < 0 || n > maxBits {
		return 0, fmt.Errorf("bit field width %d out of range [0, %d]", n, maxBits)
	}
	if n == 0 {
		return 0, nil
	}

	bitsNeeded := n - c.bitsLeft
	if bitsNeeded > 0 {
		bytesNeeded := (bitsNeeded-1)/8 + 1
		buf, err := c.ReadBytes(int64(bytesNeeded))
		if err != nil {
			return 0, err
		}
		for _, b := range buf {
			c.bits = c.bits<<8 | uint64(b)
			c.bitsLeft += 8
		}
	}

	shift := c.bitsLeft - n
	mask := uint64(1)<<uint(n) - 1
	res := (c.bits >> uint(shift)) & mask

	c.bitsLeft -= n
	c.bits &= uint64(1)<<uint(c.bitsLeft) - 1

	return res, nil
}
