package descriptor

import (
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/cursor"
)

// IcbFileType is the file type recorded in an ICB tag (ECMA-167 4/14.6.6).
type IcbFileType uint8

const (
	ICB_FILE_TYPE_UNSPECIFIED             IcbFileType = 0
	ICB_FILE_TYPE_UNALLOCATED_SPACE_ENTRY IcbFileType = 1
	ICB_FILE_TYPE_PARTITION_INTEGRITY     IcbFileType = 2
	ICB_FILE_TYPE_INDIRECT_ENTRY          IcbFileType = 3
	ICB_FILE_TYPE_DIRECTORY               IcbFileType = 4
	ICB_FILE_TYPE_FILE                    IcbFileType = 5
	ICB_FILE_TYPE_BLOCK_DEVICE            IcbFileType = 6
	ICB_FILE_TYPE_CHARACTER_DEVICE        IcbFileType = 7
	ICB_FILE_TYPE_EXTENDED_ATTRIBUTES     IcbFileType = 8
	ICB_FILE_TYPE_FIFO                    IcbFileType = 9
	ICB_FILE_TYPE_SOCKET                  IcbFileType = 10
	ICB_FILE_TYPE_TERMINAL_ENTRY          IcbFileType = 11
	ICB_FILE_TYPE_SYMLINK                 IcbFileType = 12
	ICB_FILE_TYPE_STREAM_DIRECTORY        IcbFileType = 13
)

// IcbDescUse selects how the allocation descriptors of an entry are encoded. It occupies bits 0-2 of the ICB flags.
type IcbDescUse uint8

const (
	ICB_DESC_USE_SHORT     IcbDescUse = 0
	ICB_DESC_USE_LONG      IcbDescUse = 1
	ICB_DESC_USE_EXTENDED  IcbDescUse = 2
	ICB_DESC_USE_IMMEDIATE IcbDescUse = 3
)

func (u IcbDescUse) String() string {
	switch u {
	case ICB_DESC_USE_SHORT:
		return "short"
	case ICB_DESC_USE_LONG:
		return "long"
	case ICB_DESC_USE_EXTENDED:
		return "extended"
	case ICB_DESC_USE_IMMEDIATE:
		return "immediate"
	default:
		return fmt.Sprintf("IcbDescUse(%d)", uint8(u))
	}
}

// ICB tag flag bits above the descriptor use field.
const (
	ICB_FLAG_DESC_USE_MASK    = 0x0007
	ICB_FLAG_SORTED_DIRECTORY = 0x0008
	ICB_FLAG_NON_RELOCATABLE  = 0x0010
	ICB_FLAG_ARCHIVE          = 0x0020
	ICB_FLAG_SETUID           = 0x0040
	ICB_FLAG_SETGID           = 0x0080
	ICB_FLAG_STICKY           = 0x0100
	ICB_FLAG_CONTIGUOUS       = 0x0200
	ICB_FLAG_SYSTEM           = 0x0400
	ICB_FLAG_TRANSFORMED      = 0x0800
	ICB_FLAG_MULTI_VERSIONS   = 0x1000
	ICB_FLAG_STREAM           = 0x2000
)

const (
	ICB_TAG_SIZE    = 20
	ICB_HEADER_SIZE = 36
	// Fixed portion of a file entry following the ICB header, up to the extended attributes.
	FILE_ENTRY_BODY_FIXED_SIZE = 140
)

// IcbTag is the ICB tag shared by every entry in an ICB hierarchy.
type IcbTag struct {
	PriorRecordedNumOfDirectEntries uint32      `json:"prior_recorded_num_of_direct_entries"`
	StrategyType                    uint16      `json:"strategy_type"`
	StrategyParameter               [2]byte     `json:"strategy_parameter"`
	MaxNumOfEntries                 uint16      `json:"max_num_of_entries"`
	Reserved                        uint8       `json:"reserved"`
	FileType                        IcbFileType `json:"file_type"`
	ParentIcbLocation               LbAddr      `json:"parent_icb_location"`
	Flags                           uint16      `json:"flags"`
}

// DescriptorUse returns how the entry's allocation descriptors are encoded.
func (t IcbTag) DescriptorUse() IcbDescUse {
	return IcbDescUse(t.Flags & ICB_FLAG_DESC_USE_MASK)
}

func (t IcbTag) IsSortedDirectory() bool { return t.Flags&ICB_FLAG_SORTED_DIRECTORY != 0 }
func (t IcbTag) IsNonRelocatable() bool { return t.Flags&ICB_FLAG_NON_RELOCATABLE != 0 }
func (t IcbTag) IsArchive() bool { return t.Flags&ICB_FLAG_ARCHIVE != 0 }
func (t IcbTag) IsSetuid() bool { return t.Flags&ICB_FLAG_SETUID != 0 }
func (t IcbTag) IsSetgid() bool { return t.Flags&ICB_FLAG_SETGID != 0 }
func (t IcbTag) IsSticky() bool { return t.Flags&ICB_FLAG_STICKY != 0 }
func (t IcbTag) IsContiguous() bool { return t.Flags&ICB_FLAG_CONTIGUOUS != 0 }
func (t IcbTag) IsSystem() bool { return t.Flags&ICB_FLAG_SYSTEM != 0 }
func (t IcbTag) IsTransformed() bool { return t.Flags&ICB_FLAG_TRANSFORMED != 0 }
func (t IcbTag) IsMultiVersions() bool { return t.Flags&ICB_FLAG_MULTI_VERSIONS != 0 }
func (t IcbTag) IsStream() bool { return t.Flags&ICB_FLAG_STREAM != 0 }

// DecodeIcbTag decodes a 20 byte ICB tag.
func DecodeIcbTag(c *cursor.Cursor) (IcbTag, error) {
	var t IcbTag
	raw, err := c.ReadBytes(ICB_TAG_SIZE)
	if err != nil {
		return t, fmt.Errorf("failed to read icb tag: %w", err)
	}
	tc := cursor.NewBytesCursor(raw)
	t.PriorRecordedNumOfDirectEntries, _ = tc.ReadU4le()
	t.StrategyType, _ = tc.ReadU2le()
	_ = tc.ReadFull(t.StrategyParameter[:])
	t.MaxNumOfEntries, _ = tc.ReadU2le()
	t.Reserved, _ = tc.ReadU1()
	ft, _ := tc.ReadU1()
	t.FileType = IcbFileType(ft)
	t.ParentIcbLocation, _ = DecodeLbAddr(tc)
	t.Flags, _ = tc.ReadU2le()
	return t, nil
}

// IcbHeader is the descriptor tag plus ICB tag that begins every ICB entry.
type IcbHeader struct {
	Tag    DescriptorTag `json:"tag"`
	IcbTag IcbTag        `json:"icb_tag"`
}

// DecodeIcbHeader decodes the header of an ICB entry. The tag identifier is not restricted
// so that callers can dispatch on entry kind.
func DecodeIcbHeader(c *cursor.Cursor) (IcbHeader, error) {
	var h IcbHeader
	var err error
	if h.Tag, err = DecodeDescriptorTag(c); err != nil {
		return h, err
	}
	if h.IcbTag, err = DecodeIcbTag(c); err != nil {
		return h, err
	}
	return h, nil
}

// IcbFileEntryBody is the remainder of a File Entry (ECMA-167 4/14.9) following its IcbHeader.
type IcbFileEntryBody struct {
	Uid                        uint32    `json:"uid"`
	Gid                        uint32    `json:"gid"`
	Permissions                uint32    `json:"permissions"`
	FileLinkCount              uint16    `json:"file_link_count"`
	InformationLength          uint64    `json:"information_length"`
	LogicalBlocksRecorded      uint64    `json:"logical_blocks_recorded"`
	AccessTime                 Timestamp `json:"access_time"`
	ModificationTime           Timestamp `json:"modification_time"`
	AttributeTime              Timestamp `json:"attribute_time"`
	Checkpoint                 uint32    `json:"checkpoint"`
	ExtendedAttributeIcb       LongAd    `json:"extended_attribute_icb"`
	ImplementationIdentifier   EntityID  `json:"implementation_identifier"`
	UniqueId                   uint64    `json:"unique_id"`
	LengthOfExtendedAttributes uint32    `json:"length_of_extended_attributes"`
	LengthOfAllocationDescs    uint32    `json:"length_of_allocation_descs"`
	ExtendedAttributes         []byte    `json:"extended_attributes"`
	// Raw allocation descriptors, interpreted according to the ICB tag's descriptor use.
	AllocationDescriptors []byte `json:"allocation_descriptors"`
}

// DecodeIcbFileEntryBody decodes a file entry body. Record format, display attributes and record
// length must be zero as UDF requires.
func DecodeIcbFileEntryBody(c *cursor.Cursor) (IcbFileEntryBody, error) {
	var b IcbFileEntryBody
	var err error
	if b.Uid, err = c.ReadU4le(); err != nil {
		return b, err
	}
	if b.Gid, err = c.ReadU4le(); err != nil {
		return b, err
	}
	if b.Permissions, err = c.ReadU4le(); err != nil {
		return b, err
	}
	if b.FileLinkCount, err = c.ReadU2le(); err != nil {
		return b, err
	}
	// record format, record display attributes, record length
	if _, err = c.EnsureFixedContents(make([]byte, 6)); err != nil {
		return b, fmt.Errorf("file entry record fields must be zero: %w", err)
	}
	if b.InformationLength, err = c.ReadU8le(); err != nil {
		return b, err
	}
	if b.LogicalBlocksRecorded, err = c.ReadU8le(); err != nil {
		return b, err
	}
	if b.AccessTime, err = DecodeTimestamp(c); err != nil {
		return b, err
	}
	if b.ModificationTime, err = DecodeTimestamp(c); err != nil {
		return b, err
	}
	if b.AttributeTime, err = DecodeTimestamp(c); err != nil {
		return b, err
	}
	if b.Checkpoint, err = c.ReadU4le(); err != nil {
		return b, err
	}
	if b.ExtendedAttributeIcb, err = DecodeLongAd(c); err != nil {
		return b, err
	}
	if b.ImplementationIdentifier, err = DecodeEntityID(c); err != nil {
		return b, err
	}
	if b.UniqueId, err = c.ReadU8le(); err != nil {
		return b, err
	}
	if b.LengthOfExtendedAttributes, err = c.ReadU4le(); err != nil {
		return b, err
	}
	if b.LengthOfAllocationDescs, err = c.ReadU4le(); err != nil {
		return b, err
	}
	if b.ExtendedAttributes, err = c.ReadBytes(int64(b.LengthOfExtendedAttributes)); err != nil {
		return b, fmt.Errorf("failed to read extended attributes: %w", err)
	}
	if b.AllocationDescriptors, err = c.ReadBytes(int64(b.LengthOfAllocationDescs)); err != nil {
		return b, fmt.Errorf("failed to read allocation descriptors: %w", err)
	}
	return b, nil
}
