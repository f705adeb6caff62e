package descriptor

import (
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/cursor"
)

// TagIdentifier identifies the kind of descriptor that follows a DescriptorTag (ECMA-167 3/7.2.1, 4/7.2.1).
type TagIdentifier uint16

const (
	TAG_PRIMARY_VOLUME_DESCRIPTOR            TagIdentifier = 1
	TAG_ANCHOR_VOLUME_DESCRIPTOR_POINTER     TagIdentifier = 2
	TAG_VOLUME_DESCRIPTOR_POINTER            TagIdentifier = 3
	TAG_IMPLEMENTATION_USE_VOLUME_DESCRIPTOR TagIdentifier = 4
	TAG_PARTITION_DESCRIPTOR                 TagIdentifier = 5
	TAG_LOGICAL_VOLUME_DESCRIPTOR            TagIdentifier = 6
	TAG_UNALLOCATED_SPACE_DESCRIPTOR         TagIdentifier = 7
	TAG_TERMINATING_DESCRIPTOR               TagIdentifier = 8
	TAG_LOGICAL_VOLUME_INTEGRITY_DESCRIPTOR  TagIdentifier = 9
	TAG_FILE_SET_DESCRIPTOR                  TagIdentifier = 256
	TAG_FILE_IDENTIFIER_DESCRIPTOR           TagIdentifier = 257
	TAG_ALLOCATION_EXTENT_DESCRIPTOR         TagIdentifier = 258
	TAG_INDIRECT_ENTRY                       TagIdentifier = 259
	TAG_TERMINAL_ENTRY                       TagIdentifier = 260
	TAG_FILE_ENTRY                           TagIdentifier = 261
	TAG_EXTENDED_ATTRIBUTE_HEADER_DESCRIPTOR TagIdentifier = 262
	TAG_UNALLOCATED_SPACE_ENTRY              TagIdentifier = 263
	TAG_SPACE_BITMAP_DESCRIPTOR              TagIdentifier = 264
	TAG_PARTITION_INTEGRITY_ENTRY            TagIdentifier = 265
	TAG_EXTENDED_FILE_ENTRY                  TagIdentifier = 266
)

var tagNames = map[TagIdentifier]string{
	TAG_PRIMARY_VOLUME_DESCRIPTOR:            "PRIMARY_VOLUME_DESCRIPTOR",
	TAG_ANCHOR_VOLUME_DESCRIPTOR_POINTER:     "ANCHOR_VOLUME_DESCRIPTOR_POINTER",
	TAG_VOLUME_DESCRIPTOR_POINTER:            "VOLUME_DESCRIPTOR_POINTER",
	TAG_IMPLEMENTATION_USE_VOLUME_DESCRIPTOR: "IMPLEMENTATION_USE_VOLUME_DESCRIPTOR",
	TAG_PARTITION_DESCRIPTOR:                 "PARTITION_DESCRIPTOR",
	TAG_LOGICAL_VOLUME_DESCRIPTOR:            "LOGICAL_VOLUME_DESCRIPTOR",
	TAG_UNALLOCATED_SPACE_DESCRIPTOR:         "UNALLOCATED_SPACE_DESCRIPTOR",
	TAG_TERMINATING_DESCRIPTOR:               "TERMINATING_DESCRIPTOR",
	TAG_LOGICAL_VOLUME_INTEGRITY_DESCRIPTOR:  "LOGICAL_VOLUME_INTEGRITY_DESCRIPTOR",
	TAG_FILE_SET_DESCRIPTOR:                  "FILE_SET_DESCRIPTOR",
	TAG_FILE_IDENTIFIER_DESCRIPTOR:           "FILE_IDENTIFIER_DESCRIPTOR",
	TAG_ALLOCATION_EXTENT_DESCRIPTOR:         "ALLOCATION_EXTENT_DESCRIPTOR",
	TAG_INDIRECT_ENTRY:                       "INDIRECT_ENTRY",
	TAG_TERMINAL_ENTRY:                       "TERMINAL_ENTRY",
	TAG_FILE_ENTRY:                           "FILE_ENTRY",
	TAG_EXTENDED_ATTRIBUTE_HEADER_DESCRIPTOR: "EXTENDED_ATTRIBUTE_HEADER_DESCRIPTOR",
	TAG_UNALLOCATED_SPACE_ENTRY:              "UNALLOCATED_SPACE_ENTRY",
	TAG_SPACE_BITMAP_DESCRIPTOR:              "SPACE_BITMAP_DESCRIPTOR",
	TAG_PARTITION_INTEGRITY_ENTRY:            "PARTITION_INTEGRITY_ENTRY",
	TAG_EXTENDED_FILE_ENTRY:                  "EXTENDED_FILE_ENTRY",
}

// Known reports whether id is one of the recognized tag identifiers.
func (id TagIdentifier) Known() bool {
	_, ok := tagNames[id]
	return ok
}

func (id TagIdentifier) String() string {
	if name, ok := tagNames[id]; ok {
		return name
	}
	return fmt.Sprintf("TagIdentifier(%d)", uint16(id))
}

// DescriptorTag is the 16 byte header preceding every UDF descriptor.
type DescriptorTag struct {
	TagIdentifier TagIdentifier `json:"tag_identifier"`
	// Descriptor Version, 2 for NSR02 volumes and 3 for NSR03.
	DescriptorVersion uint16 `json:"descriptor_version"`
	// Sum modulo 256 of bytes 0-3 and 5-15 of the tag.
	TagChecksum         uint8  `json:"tag_checksum"`
	Reserved            uint8  `json:"reserved"`
	TagSerialNumber     uint16 `json:"tag_serial_number"`
	DescriptorCRC       uint16 `json:"descriptor_crc"`
	DescriptorCRCLength uint16 `json:"descriptor_crc_length"`
	// Logical sector (or block) number at which the descriptor is recorded.
	TagLocation uint32 `json:"tag_location"`

	raw [consts.UDF_DESCRIPTOR_TAG_SIZE]byte
}

// ChecksumValid verifies TagChecksum against the raw tag bytes it was decoded from.
func (t *DescriptorTag) ChecksumValid() bool {
	return TagChecksum(t.raw) == t.TagChecksum
}

// TagChecksum computes the tag checksum of a raw 16 byte tag.
func TagChecksum(raw [consts.UDF_DESCRIPTOR_TAG_SIZE]byte) uint8 {
	var sum uint8
	for i, b := range raw {
		if i == 4 {
			continue
		}
		sum += b
	}
	return sum
}

// DecodeDescriptorTag decodes a descriptor tag. Unrecognized tag identifiers are rejected.
func DecodeDescriptorTag(c *cursor.Cursor) (DescriptorTag, error) {
	var t DescriptorTag
	offset := c.Pos()

	raw, err := c.ReadBytes(consts.UDF_DESCRIPTOR_TAG_SIZE)
	if err != nil {
		return t, fmt.Errorf("failed to read descriptor tag: %w", err)
	}
	copy(t.raw[:], raw)

	tc := cursor.NewBytesCursor(raw)
	id, _ := tc.ReadU2le()
	t.TagIdentifier = TagIdentifier(id)
	if !t.TagIdentifier.Known() {
		return t, &UnknownTagIdentifierError{ID: id, Offset: offset}
	}
	t.DescriptorVersion, _ = tc.ReadU2le()
	t.TagChecksum, _ = tc.ReadU1()
	t.Reserved, _ = tc.ReadU1()
	t.TagSerialNumber, _ = tc.ReadU2le()
	t.DescriptorCRC, _ = tc.ReadU2le()
	t.DescriptorCRCLength, _ = tc.ReadU2le()
	t.TagLocation, _ = tc.ReadU4le()

	return t, nil
}

// decodeExpectedTag decodes a tag and requires it to carry the given identifier.
func decodeExpectedTag(c *cursor.Cursor, expected TagIdentifier) (DescriptorTag, error) {
	offset := c.Pos()
	t, err := DecodeDescriptorTag(c)
	if err != nil {
		return t, err
	}
	if t.TagIdentifier != expected {
		return t, &UnexpectedTagError{Offset: offset, Expected: expected, Actual: t.TagIdentifier}
	}
	return t, nil
}
