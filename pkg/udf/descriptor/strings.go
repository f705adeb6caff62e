package descriptor

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/cursor"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	CHARSPEC_SIZE  = 64
	ENTITY_ID_SIZE = 32
	TIMESTAMP_SIZE = 12

	// Timezone value meaning "no timezone specified".
	TIMEZONE_UNSPECIFIED = -2047
)

// CharSpec identifies a character set (ECMA-167 1/7.2.1). UDF requires OSTA Compressed Unicode.
type CharSpec struct {
	CharacterSetType uint8    `json:"character_set_type"`
	CharacterSetInfo [63]byte `json:"character_set_info"`
}

// ostaCharSpec returns the only character set specification UDF volumes are allowed to record.
func ostaCharSpec() []byte {
	b := make([]byte, CHARSPEC_SIZE)
	copy(b[1:], consts.UDF_OSTA_CS0_INFO)
	return b
}

// DecodeCharSpec decodes a character set specification, which must be OSTA CS0.
func DecodeCharSpec(c *cursor.Cursor) (CharSpec, error) {
	var cs CharSpec
	raw, err := c.EnsureFixedContents(ostaCharSpec())
	if err != nil {
		return cs, fmt.Errorf("character set is not OSTA Compressed Unicode: %w", err)
	}
	cs.CharacterSetType = raw[0]
	copy(cs.CharacterSetInfo[:], raw[1:])
	return cs, nil
}

// EntityID identifies an implementation or domain (ECMA-167 1/7.4).
type EntityID struct {
	Flags            uint8   `json:"flags"`
	Identifier       string  `json:"identifier"`
	IdentifierSuffix [8]byte `json:"identifier_suffix"`
}

// DecodeEntityID decodes a 32 byte entity identifier.
func DecodeEntityID(c *cursor.Cursor) (EntityID, error) {
	var e EntityID
	var err error
	if e.Flags, err = c.ReadU1(); err != nil {
		return e, err
	}
	ident, err := c.ReadBytes(23)
	if err != nil {
		return e, err
	}
	e.Identifier = string(cursor.BytesTerminate(ident, 0, false))
	if err = c.ReadFull(e.IdentifierSuffix[:]); err != nil {
		return e, err
	}
	return e, nil
}

// DecodeDString decodes a fixed size dstring field. The last byte holds the recorded length,
// which includes the leading compression id.
func DecodeDString(c *cursor.Cursor, size int) (string, error) {
	raw, err := c.ReadBytes(int64(size))
	if err != nil {
		return "", err
	}
	length := int(raw[size-1])
	if length == 0 {
		return "", nil
	}
	if length > size-1 {
		return "", fmt.Errorf("dstring length %d exceeds field size %d", length, size)
	}
	return DecodeIdentifier(raw[0], raw[1:length])
}

// DecodeIdentifier converts OSTA CS0 bytes, excluding the compression id, into a string.
// 8 bit identifiers are taken as UTF-8 when valid and Latin-1 otherwise, 16 bit identifiers are UTF-16.
func DecodeIdentifier(compressionID uint8, data []byte) (string, error) {
	switch compressionID {
	case consts.UDF_CS0_8BIT, consts.UDF_CS0_8BIT_UNIQUE:
		if utf8.Valid(data) {
			return string(data), nil
		}
		return charmap.ISO8859_1.NewDecoder().String(string(data))
	case consts.UDF_CS0_16BIT, consts.UDF_CS0_16BIT_UNIQUE:
		out, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("failed to decode UTF-16 identifier: %w", err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unsupported identifier compression id %d", compressionID)
	}
}

// Timestamp is a recorded date and time (ECMA-167 1/7.3).
type Timestamp struct {
	TypeAndTimezone        uint16 `json:"type_and_timezone"`
	Year                   int16  `json:"year"`
	Month                  uint8  `json:"month"`
	Day                    uint8  `json:"day"`
	Hour                   uint8  `json:"hour"`
	Minute                 uint8  `json:"minute"`
	Second                 uint8  `json:"second"`
	Centiseconds           uint8  `json:"centiseconds"`
	HundredsOfMicroseconds uint8  `json:"hundreds_of_microseconds"`
	Microseconds           uint8  `json:"microseconds"`
}

// DecodeTimestamp decodes a 12 byte timestamp.
func DecodeTimestamp(c *cursor.Cursor) (Timestamp, error) {
	var ts Timestamp
	raw, err := c.ReadBytes(TIMESTAMP_SIZE)
	if err != nil {
		return ts, err
	}
	tc := cursor.NewBytesCursor(raw)
	ts.TypeAndTimezone, _ = tc.ReadU2le()
	ts.Year, _ = tc.ReadS2le()
	ts.Month, _ = tc.ReadU1()
	ts.Day, _ = tc.ReadU1()
	ts.Hour, _ = tc.ReadU1()
	ts.Minute, _ = tc.ReadU1()
	ts.Second, _ = tc.ReadU1()
	ts.Centiseconds, _ = tc.ReadU1()
	ts.HundredsOfMicroseconds, _ = tc.ReadU1()
	ts.Microseconds, _ = tc.ReadU1()
	return ts, nil
}

// Timezone returns the offset from UTC in minutes and whether one was recorded.
func (ts Timestamp) Timezone() (int, bool) {
	// 12 bit two's complement value.
	tz := int(ts.TypeAndTimezone & 0x0FFF)
	if tz&0x0800 != 0 {
		tz -= 0x1000
	}
	if tz == TIMEZONE_UNSPECIFIED {
		return 0, false
	}
	return tz, true
}

// Time converts the timestamp to a time.Time. The zero Timestamp maps to the zero time.
func (ts Timestamp) Time() time.Time {
	if ts.Year == 0 && ts.Month == 0 && ts.Day == 0 {
		return time.Time{}
	}
	loc := time.UTC
	if tz, ok := ts.Timezone(); ok && tz != 0 {
		loc = time.FixedZone("", tz*60)
	}
	nsec := int(ts.Centiseconds)*10_000_000 + int(ts.HundredsOfMicroseconds)*100_000 + int(ts.Microseconds)*1_000
	return time.Date(int(ts.Year), time.Month(ts.Month), int(ts.Day), int(ts.Hour), int(ts.Minute), int(ts.Second), nsec, loc)
}
