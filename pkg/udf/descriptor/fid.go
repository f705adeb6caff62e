package descriptor

import (
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/cursor"
)

// File characteristics bits of a File Identifier Descriptor (ECMA-167 4/14.4.3).
const (
	FILE_CHAR_HIDDEN    = 0x01
	FILE_CHAR_DIRECTORY = 0x02
	FILE_CHAR_DELETED   = 0x04
	FILE_CHAR_PARENT    = 0x08
	FILE_CHAR_METADATA  = 0x10
)

// FileIdentifierDescriptor names one entry of a directory and points at its ICB.
type FileIdentifierDescriptor struct {
	Tag                    DescriptorTag `json:"tag"`
	FileVersionNumber      uint16        `json:"file_version_number"`
	FileCharacteristics    uint8         `json:"file_characteristics"`
	LengthOfFileIdentifier uint8         `json:"length_of_file_identifier"`
	Icb                    LongAd        `json:"icb"`
	LengthOfImplementation uint16        `json:"length_of_implementation"`
	ImplementationUse      []byte        `json:"implementation_use"`
	CompressionID          uint8         `json:"compression_id"`
	FileIdentifier         string        `json:"file_identifier"`
}

func (f *FileIdentifierDescriptor) IsHidden() bool { return f.FileCharacteristics&FILE_CHAR_HIDDEN != 0 }
func (f *FileIdentifierDescriptor) IsDirectory() bool { return f.FileCharacteristics&FILE_CHAR_DIRECTORY != 0 }
func (f *FileIdentifierDescriptor) IsDeleted() bool { return f.FileCharacteristics&FILE_CHAR_DELETED != 0 }
func (f *FileIdentifierDescriptor) IsParent() bool { return f.FileCharacteristics&FILE_CHAR_PARENT != 0 }
func (f *FileIdentifierDescriptor) IsMetadata() bool { return f.FileCharacteristics&FILE_CHAR_METADATA != 0 }

// UnpaddedSize is the number of bytes the descriptor occupies before alignment padding.
func (f *FileIdentifierDescriptor) UnpaddedSize() int64 {
	return consts.UDF_FID_FIXED_SIZE + int64(f.LengthOfImplementation) + int64(f.LengthOfFileIdentifier)
}

// RecordSize is the total on-disc size of the descriptor including padding.
func (f *FileIdentifierDescriptor) RecordSize() int64 {
	u := f.UnpaddedSize()
	return u + PadSize(u)
}

// PadSize returns the number of bytes needed to bring size up to a multiple of 4.
func PadSize(size int64) int64 {
	return (4 - size%4) % 4
}

// DecodeFileIdentifierDescriptor decodes a File Identifier Descriptor and its padding, leaving the
// cursor at the start of the next record.
func DecodeFileIdentifierDescriptor(c *cursor.Cursor) (FileIdentifierDescriptor, error) {
	var f FileIdentifierDescriptor
	var err error

	if f.Tag, err = decodeExpectedTag(c, TAG_FILE_IDENTIFIER_DESCRIPTOR); err != nil {
		return f, err
	}
	if f.FileVersionNumber, err = c.ReadU2le(); err != nil {
		return f, err
	}
	if f.FileCharacteristics, err = c.ReadU1(); err != nil {
		return f, err
	}
	if f.LengthOfFileIdentifier, err = c.ReadU1(); err != nil {
		return f, err
	}
	if f.Icb, err = DecodeLongAd(c); err != nil {
		return f, err
	}
	if f.LengthOfImplementation, err = c.ReadU2le(); err != nil {
		return f, err
	}
	if f.ImplementationUse, err = c.ReadBytes(int64(f.LengthOfImplementation)); err != nil {
		return f, fmt.Errorf("failed to read file identifier implementation use: %w", err)
	}

	if f.LengthOfFileIdentifier > 0 {
		ident, err := c.ReadBytes(int64(f.LengthOfFileIdentifier))
		if err != nil {
			return f, fmt.Errorf("failed to read file identifier: %w", err)
		}
		f.CompressionID = ident[0]
		if f.FileIdentifier, err = DecodeIdentifier(ident[0], ident[1:]); err != nil {
			return f, err
		}
	}

	if err = c.Skip(PadSize(f.UnpaddedSize())); err != nil {
		return f, fmt.Errorf("failed to skip file identifier padding: %w", err)
	}
	return f, nil
}
