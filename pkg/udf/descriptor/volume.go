package descriptor

import (
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/cursor"
)

const (
	PARTITION_MAP_TYPE_1 = 1
	PARTITION_MAP_TYPE_2 = 2

	PARTITION_MAP_TYPE_1_LENGTH = 6
	PARTITION_MAP_TYPE_2_LENGTH = 64
)

// AnchorVolumeDescriptorPointer locates the main and reserve volume descriptor sequences (ECMA-167 3/10.2).
type AnchorVolumeDescriptorPointer struct {
	Tag                             DescriptorTag `json:"tag"`
	MainVolumeDescriptorSequence    ExtentAd      `json:"main_volume_descriptor_sequence"`
	ReserveVolumeDescriptorSequence ExtentAd      `json:"reserve_volume_descriptor_sequence"`
}

// DecodeAnchorVolumeDescriptorPointer decodes the anchor at the current position.
func DecodeAnchorVolumeDescriptorPointer(c *cursor.Cursor) (AnchorVolumeDescriptorPointer, error) {
	var a AnchorVolumeDescriptorPointer
	var err error
	if a.Tag, err = decodeExpectedTag(c, TAG_ANCHOR_VOLUME_DESCRIPTOR_POINTER); err != nil {
		return a, err
	}
	if a.MainVolumeDescriptorSequence, err = DecodeExtentAd(c); err != nil {
		return a, err
	}
	if a.ReserveVolumeDescriptorSequence, err = DecodeExtentAd(c); err != nil {
		return a, err
	}
	if err = c.Skip(480); err != nil {
		return a, err
	}
	return a, nil
}

// VolumeDescriptorHeader is the tag and sequence number that start every volume descriptor.
type VolumeDescriptorHeader struct {
	Tag                            DescriptorTag `json:"tag"`
	VolumeDescriptorSequenceNumber uint32        `json:"volume_descriptor_sequence_number"`
}

// DecodeVolumeDescriptorHeader decodes a volume descriptor header. Any recognized tag is accepted.
func DecodeVolumeDescriptorHeader(c *cursor.Cursor) (VolumeDescriptorHeader, error) {
	var h VolumeDescriptorHeader
	var err error
	if h.Tag, err = DecodeDescriptorTag(c); err != nil {
		return h, err
	}
	if h.VolumeDescriptorSequenceNumber, err = c.ReadU4le(); err != nil {
		return h, err
	}
	return h, nil
}

// PartitionDescriptorBody is the part of a Partition Descriptor (ECMA-167 3/10.5) after its header.
type PartitionDescriptorBody struct {
	PartitionFlags            uint16    `json:"partition_flags"`
	PartitionNumber           uint16    `json:"partition_number"`
	PartitionContents         EntityID  `json:"partition_contents"`
	PartitionContentsUse      [128]byte `json:"-"`
	AccessType                uint32    `json:"access_type"`
	PartitionStartingLocation uint32    `json:"partition_starting_location"`
	PartitionLength           uint32    `json:"partition_length"`
	ImplementationIdentifier  EntityID  `json:"implementation_identifier"`
	ImplementationUse         [128]byte `json:"-"`
}

// DecodePartitionDescriptorBody decodes a partition descriptor body.
func DecodePartitionDescriptorBody(c *cursor.Cursor) (PartitionDescriptorBody, error) {
	var p PartitionDescriptorBody
	var err error
	if p.PartitionFlags, err = c.ReadU2le(); err != nil {
		return p, err
	}
	if p.PartitionNumber, err = c.ReadU2le(); err != nil {
		return p, err
	}
	if p.PartitionContents, err = DecodeEntityID(c); err != nil {
		return p, err
	}
	if err = c.ReadFull(p.PartitionContentsUse[:]); err != nil {
		return p, err
	}
	if p.AccessType, err = c.ReadU4le(); err != nil {
		return p, err
	}
	if p.PartitionStartingLocation, err = c.ReadU4le(); err != nil {
		return p, err
	}
	if p.PartitionLength, err = c.ReadU4le(); err != nil {
		return p, err
	}
	if p.ImplementationIdentifier, err = DecodeEntityID(c); err != nil {
		return p, err
	}
	if err = c.ReadFull(p.ImplementationUse[:]); err != nil {
		return p, err
	}
	if err = c.Skip(156); err != nil {
		return p, err
	}
	return p, nil
}

// PartitionMap maps a partition reference number to a partition (ECMA-167 3/10.7). Type 2 maps
// carry an entity identifier naming the partition kind (virtual, sparable, metadata).
type PartitionMap struct {
	Type                 uint8    `json:"type"`
	Length               uint8    `json:"length"`
	PartitionTypeID      EntityID `json:"partition_type_id,omitempty"`
	VolumeSequenceNumber uint16   `json:"volume_sequence_number"`
	PartitionNumber      uint16   `json:"partition_number"`
}

// DecodePartitionMap decodes one partition map entry. Unknown map types are skipped by their recorded length.
func DecodePartitionMap(c *cursor.Cursor) (PartitionMap, error) {
	var m PartitionMap
	var err error
	if m.Type, err = c.ReadU1(); err != nil {
		return m, err
	}
	if m.Length, err = c.ReadU1(); err != nil {
		return m, err
	}
	if m.Length < 2 {
		return m, fmt.Errorf("partition map length %d is too small", m.Length)
	}
	body, err := c.ReadBytes(int64(m.Length) - 2)
	if err != nil {
		return m, fmt.Errorf("failed to read partition map body: %w", err)
	}
	bc := cursor.NewBytesCursor(body)

	switch m.Type {
	case PARTITION_MAP_TYPE_1:
		if m.Length != PARTITION_MAP_TYPE_1_LENGTH {
			return m, fmt.Errorf("type 1 partition map has length %d, expected %d", m.Length, PARTITION_MAP_TYPE_1_LENGTH)
		}
		m.VolumeSequenceNumber, _ = bc.ReadU2le()
		m.PartitionNumber, _ = bc.ReadU2le()
	case PARTITION_MAP_TYPE_2:
		if m.Length != PARTITION_MAP_TYPE_2_LENGTH {
			return m, fmt.Errorf("type 2 partition map has length %d, expected %d", m.Length, PARTITION_MAP_TYPE_2_LENGTH)
		}
		_ = bc.Skip(2)
		m.PartitionTypeID, _ = DecodeEntityID(bc)
		m.VolumeSequenceNumber, _ = bc.ReadU2le()
		m.PartitionNumber, _ = bc.ReadU2le()
	}
	return m, nil
}

// LogicalVolumeDescriptorBody is the part of a Logical Volume Descriptor (ECMA-167 3/10.6) after its header.
type LogicalVolumeDescriptorBody struct {
	DescriptorCharacterSet   CharSpec       `json:"-"`
	LogicalVolumeIdentifier  string         `json:"logical_volume_identifier"`
	LogicalBlockSize         uint32         `json:"logical_block_size"`
	DomainIdentifier         EntityID       `json:"domain_identifier"`
	FileSetDescriptorExtent  LongAd         `json:"file_set_descriptor_extent"`
	MapTableLength           uint32         `json:"map_table_length"`
	NumberOfPartitionMaps    uint32         `json:"number_of_partition_maps"`
	ImplementationIdentifier EntityID       `json:"implementation_identifier"`
	ImplementationUse        [128]byte      `json:"-"`
	IntegritySequenceExtent  ExtentAd       `json:"integrity_sequence_extent"`
	PartitionMaps            []PartitionMap `json:"partition_maps"`
}

// DecodeLogicalVolumeDescriptorBody decodes a logical volume descriptor body including its partition maps.
func DecodeLogicalVolumeDescriptorBody(c *cursor.Cursor) (LogicalVolumeDescriptorBody, error) {
	var l LogicalVolumeDescriptorBody
	var err error
	if l.DescriptorCharacterSet, err = DecodeCharSpec(c); err != nil {
		return l, err
	}
	if l.LogicalVolumeIdentifier, err = DecodeDString(c, 128); err != nil {
		return l, fmt.Errorf("failed to decode logical volume identifier: %w", err)
	}
	if l.LogicalBlockSize, err = c.ReadU4le(); err != nil {
		return l, err
	}
	if l.DomainIdentifier, err = DecodeEntityID(c); err != nil {
		return l, err
	}
	if l.FileSetDescriptorExtent, err = DecodeLongAd(c); err != nil {
		return l, err
	}
	if l.MapTableLength, err = c.ReadU4le(); err != nil {
		return l, err
	}
	if l.NumberOfPartitionMaps, err = c.ReadU4le(); err != nil {
		return l, err
	}
	if l.ImplementationIdentifier, err = DecodeEntityID(c); err != nil {
		return l, err
	}
	if err = c.ReadFull(l.ImplementationUse[:]); err != nil {
		return l, err
	}
	if l.IntegritySequenceExtent, err = DecodeExtentAd(c); err != nil {
		return l, err
	}

	// Partition maps are bounded by the map table so a bogus count cannot run off the descriptor.
	table, err := c.ReadBytes(int64(l.MapTableLength))
	if err != nil {
		return l, fmt.Errorf("failed to read partition map table: %w", err)
	}
	tc := cursor.NewBytesCursor(table)
	for i := uint32(0); i < l.NumberOfPartitionMaps; i++ {
		m, err := DecodePartitionMap(tc)
		if err != nil {
			return l, fmt.Errorf("failed to decode partition map %d: %w", i, err)
		}
		l.PartitionMaps = append(l.PartitionMaps, m)
	}
	return l, nil
}

// FileSetDescriptor names a file set and locates its root directory (ECMA-167 4/14.1).
type FileSetDescriptor struct {
	Tag                      DescriptorTag `json:"tag"`
	RecordingDateAndTime     Timestamp     `json:"recording_date_and_time"`
	InterchangeLevel         uint16        `json:"interchange_level"`
	MaximumInterchangeLevel  uint16        `json:"maximum_interchange_level"`
	CharacterSetList         uint32        `json:"character_set_list"`
	MaximumCharacterSetList  uint32        `json:"maximum_character_set_list"`
	FileSetNumber            uint32        `json:"file_set_number"`
	FileSetDescriptorNumber  uint32        `json:"file_set_descriptor_number"`
	LogicalVolumeIdentifier  string        `json:"logical_volume_identifier"`
	FileSetIdentifier        string        `json:"file_set_identifier"`
	CopyrightFileIdentifier  string        `json:"copyright_file_identifier"`
	AbstractFileIdentifier   string        `json:"abstract_file_identifier"`
	RootDirectoryIcb         LongAd        `json:"root_directory_icb"`
	DomainIdentifier         EntityID      `json:"domain_identifier"`
	NextExtent               LongAd        `json:"next_extent"`
	SystemStreamDirectoryIcb LongAd        `json:"system_stream_directory_icb"`
}

// DecodeFileSetDescriptor decodes a file set descriptor at the current position.
func DecodeFileSetDescriptor(c *cursor.Cursor) (FileSetDescriptor, error) {
	var f FileSetDescriptor
	var err error
	if f.Tag, err = decodeExpectedTag(c, TAG_FILE_SET_DESCRIPTOR); err != nil {
		return f, err
	}
	if f.RecordingDateAndTime, err = DecodeTimestamp(c); err != nil {
		return f, err
	}
	if f.InterchangeLevel, err = c.ReadU2le(); err != nil {
		return f, err
	}
	if f.MaximumInterchangeLevel, err = c.ReadU2le(); err != nil {
		return f, err
	}
	if f.CharacterSetList, err = c.ReadU4le(); err != nil {
		return f, err
	}
	if f.MaximumCharacterSetList, err = c.ReadU4le(); err != nil {
		return f, err
	}
	if f.FileSetNumber, err = c.ReadU4le(); err != nil {
		return f, err
	}
	if f.FileSetDescriptorNumber, err = c.ReadU4le(); err != nil {
		return f, err
	}
	if _, err = DecodeCharSpec(c); err != nil {
		return f, err
	}
	if f.LogicalVolumeIdentifier, err = DecodeDString(c, 128); err != nil {
		return f, fmt.Errorf("failed to decode logical volume identifier: %w", err)
	}
	if _, err = DecodeCharSpec(c); err != nil {
		return f, err
	}
	if f.FileSetIdentifier, err = DecodeDString(c, 32); err != nil {
		return f, fmt.Errorf("failed to decode file set identifier: %w", err)
	}
	if f.CopyrightFileIdentifier, err = DecodeDString(c, 32); err != nil {
		return f, fmt.Errorf("failed to decode copyright file identifier: %w", err)
	}
	if f.AbstractFileIdentifier, err = DecodeDString(c, 32); err != nil {
		return f, fmt.Errorf("failed to decode abstract file identifier: %w", err)
	}
	if f.RootDirectoryIcb, err = DecodeLongAd(c); err != nil {
		return f, err
	}
	if f.DomainIdentifier, err = DecodeEntityID(c); err != nil {
		return f, err
	}
	if f.NextExtent, err = DecodeLongAd(c); err != nil {
		return f, err
	}
	if f.SystemStreamDirectoryIcb, err = DecodeLongAd(c); err != nil {
		return f, err
	}
	if err = c.Skip(32); err != nil {
		return f, err
	}
	return f, nil
}

// VolumeStructureDescriptor is one entry of the volume recognition sequence (ECMA-167 2/9.1).
type VolumeStructureDescriptor struct {
	Type               uint8  `json:"type"`
	StandardIdentifier string `json:"standard_identifier"`
	Version            uint8  `json:"version"`
}

var recognitionIdentifiers = []string{
	consts.UDF_BEA_IDENTIFIER,
	consts.UDF_NSR2_IDENTIFIER,
	consts.UDF_NSR3_IDENTIFIER,
	consts.UDF_TEA_IDENTIFIER,
	consts.ISO9660_STD_IDENTIFIER,
}

// DecodeVolumeStructureDescriptor decodes the header of a volume structure descriptor and checks its
// standard identifier against the known recognition sequence identifiers. The cursor is left after the
// 7 byte header.
func DecodeVolumeStructureDescriptor(c *cursor.Cursor) (VolumeStructureDescriptor, error) {
	var v VolumeStructureDescriptor
	var err error
	if v.Type, err = c.ReadU1(); err != nil {
		return v, err
	}
	start := c.Pos()
	ident, err := c.ReadBytes(5)
	if err != nil {
		return v, err
	}
	for _, known := range recognitionIdentifiers {
		if string(ident) == known {
			v.StandardIdentifier = known
			break
		}
	}
	if v.StandardIdentifier == "" {
		return v, &cursor.UnexpectedContentError{Offset: start, Actual: ident, Expected: []byte(consts.UDF_BEA_IDENTIFIER)}
	}
	if v.Version, err = c.ReadU1(); err != nil {
		return v, err
	}
	return v, nil
}
