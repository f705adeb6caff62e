// Package udfimage assembles small single partition UDF images in memory for tests.
package udfimage

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/udf/descriptor"
	"github.com/stretchr/testify/require"
)

const (
	SectorSize      = consts.UDF_SECTOR_SIZE
	VDSSector       = 32
	VDSSectors      = 16
	PartitionStart  = 288
	PartitionNumber = 0
	VolumeID        = "TESTVOL"
	FileSetID       = "TESTSET"
)

var le = binary.LittleEndian

// ICBRef addresses an ICB inside the partition.
type ICBRef struct {
	Block   uint32
	PartRef uint16
}

// Extent is one allocation descriptor.
type Extent struct {
	Length uint32
	Kind   descriptor.ExtentType
	Block  uint32
}

// Entry describes one ICB entry. Only file entries carry a body.
type Entry struct {
	Tag        descriptor.TagIdentifier
	FileType   descriptor.IcbFileType
	Use        descriptor.IcbDescUse
	MaxEntries uint16
	Length     uint64
	ADs        []byte
}

// Builder lays out the recognition sequence, anchor, volume descriptors and partition blocks of
// an image. Blocks are handed out in allocation order starting after the file set descriptor.
type Builder struct {
	t         testing.TB
	data      []byte
	nextVDS   uint32
	nextBlock uint32
}

func NewBuilder(t testing.TB) *Builder {
	b := &Builder{t: t, nextVDS: VDSSector, nextBlock: 1}

	for i, id := range []string{consts.UDF_BEA_IDENTIFIER, consts.UDF_NSR2_IDENTIFIER, consts.UDF_TEA_IDENTIFIER} {
		s := b.sector(uint32(consts.UDF_SYSTEM_AREA_SECTORS + i))
		copy(s[1:], id)
		s[6] = 1
	}

	anchor := b.sector(consts.UDF_ANCHOR_SECTOR)
	putTag(anchor, descriptor.TAG_ANCHOR_VOLUME_DESCRIPTOR_POINTER, consts.UDF_ANCHOR_SECTOR)
	le.PutUint32(anchor[16:], VDSSectors*SectorSize)
	le.PutUint32(anchor[20:], VDSSector)
	return b
}

// StandardVolume writes a partition descriptor, a logical volume descriptor and a terminator.
func (b *Builder) StandardVolume() *Builder {
	return b.PartitionDescriptor().LogicalVolumeDescriptor().Terminator()
}

func (b *Builder) PartitionDescriptor() *Builder {
	s := b.VolumeDescriptor(descriptor.TAG_PARTITION_DESCRIPTOR)
	le.PutUint16(s[22:], PartitionNumber)
	le.PutUint32(s[188:], PartitionStart)
	le.PutUint32(s[192:], 1024)
	return b
}

func (b *Builder) LogicalVolumeDescriptor() *Builder {
	s := b.VolumeDescriptor(descriptor.TAG_LOGICAL_VOLUME_DESCRIPTOR)
	putCharSpec(s[20:])
	putDString(s[84:212], VolumeID)
	le.PutUint32(s[212:], SectorSize)
	putLongAd(s[248:], SectorSize, descriptor.EXTENT_RECORDED_ALLOCATED, 0, PartitionNumber)
	le.PutUint32(s[264:], descriptor.PARTITION_MAP_TYPE_1_LENGTH)
	le.PutUint32(s[268:], 1)
	s[440] = descriptor.PARTITION_MAP_TYPE_1
	s[441] = descriptor.PARTITION_MAP_TYPE_1_LENGTH
	le.PutUint16(s[442:], 1)
	le.PutUint16(s[444:], PartitionNumber)
	return b
}

func (b *Builder) Terminator() *Builder {
	b.VolumeDescriptor(descriptor.TAG_TERMINATING_DESCRIPTOR)
	return b
}

// VolumeDescriptor appends a sector to the main volume descriptor sequence carrying only a tag
// and sequence number.
func (b *Builder) VolumeDescriptor(id descriptor.TagIdentifier) []byte {
	sector := b.nextVDS
	b.nextVDS++
	s := b.sector(sector)
	putTag(s, id, sector)
	le.PutUint32(s[16:], sector-VDSSector+1)
	return s
}

// RawVolumeSector appends a sector whose first two bytes hold id, known or not.
func (b *Builder) RawVolumeSector(id uint16) {
	s := b.sector(b.nextVDS)
	b.nextVDS++
	le.PutUint16(s, id)
}

// NextBlock returns the partition block the next allocation starts at.
func (b *Builder) NextBlock() uint32 {
	return b.nextBlock
}

func (b *Builder) alloc(n int) uint32 {
	if n < 1 {
		n = 1
	}
	first := b.nextBlock
	b.nextBlock += uint32(n)
	b.block(b.nextBlock - 1)
	return first
}

// AddData stores content in fresh blocks and returns the first one.
func (b *Builder) AddData(content []byte) uint32 {
	n := (len(content) + SectorSize - 1) / SectorSize
	first := b.alloc(n)
	for i := 0; i < n; i++ {
		end := min((i+1)*SectorSize, len(content))
		copy(b.block(first+uint32(i)), content[i*SectorSize:end])
	}
	return first
}

// AddEntries writes the given ICB entries back to back into a fresh block.
func (b *Builder) AddEntries(entries ...Entry) ICBRef {
	block := b.alloc(1)
	s := b.block(block)
	offset := 0
	for _, e := range entries {
		offset += putEntry(s[offset:], e)
	}
	require.LessOrEqual(b.t, offset, SectorSize)
	return ICBRef{Block: block, PartRef: PartitionNumber}
}

// AddFile stores content as a recorded extent behind a single file entry.
func (b *Builder) AddFile(content []byte) ICBRef {
	data := b.AddData(content)
	return b.AddEntries(FileEntry(uint64(len(content)),
		ShortAds(Extent{Length: uint32(len(content)), Kind: descriptor.EXTENT_RECORDED_ALLOCATED, Block: data})))
}

// AddDirectory stores the given file identifier descriptors behind a directory entry.
func (b *Builder) AddDirectory(fids ...[]byte) ICBRef {
	payload := bytes.Join(fids, nil)
	data := b.AddData(payload)
	return b.AddEntries(Entry{
		Tag:        descriptor.TAG_FILE_ENTRY,
		FileType:   descriptor.ICB_FILE_TYPE_DIRECTORY,
		Use:        descriptor.ICB_DESC_USE_SHORT,
		MaxEntries: 1,
		Length:     uint64(len(payload)),
		ADs:        ShortAds(Extent{Length: uint32(len(payload)), Kind: descriptor.EXTENT_RECORDED_ALLOCATED, Block: data}),
	})
}

// Build writes the file set descriptor in partition block 0 pointing at root and returns the image.
func (b *Builder) Build(root ICBRef) []byte {
	s := b.block(0)
	putTag(s, descriptor.TAG_FILE_SET_DESCRIPTOR, 0)
	putCharSpec(s[48:])
	putDString(s[112:240], VolumeID)
	putCharSpec(s[240:])
	putDString(s[304:336], FileSetID)
	putLongAd(s[400:], SectorSize, descriptor.EXTENT_RECORDED_ALLOCATED, root.Block, root.PartRef)
	return b.data
}

// WriteFile builds the image and stores it at path.
func (b *Builder) WriteFile(path string, root ICBRef) string {
	require.NoError(b.t, os.WriteFile(path, b.Build(root), 0o644))
	return path
}

func (b *Builder) sector(n uint32) []byte {
	end := (int(n) + 1) * SectorSize
	if len(b.data) < end {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	return b.data[int(n)*SectorSize : end]
}

func (b *Builder) block(n uint32) []byte {
	return b.sector(PartitionStart + n)
}

// FileEntry describes a single short allocation descriptor file entry of the given length.
func FileEntry(length uint64, ads []byte) Entry {
	return Entry{
		Tag:        descriptor.TAG_FILE_ENTRY,
		FileType:   descriptor.ICB_FILE_TYPE_FILE,
		Use:        descriptor.ICB_DESC_USE_SHORT,
		MaxEntries: 1,
		Length:     length,
		ADs:        ads,
	}
}

// FID encodes a file identifier descriptor. An empty name produces a zero length identifier.
func FID(characteristics uint8, name string, ref ICBRef) []byte {
	var ident []byte
	if name != "" {
		ident = append([]byte{consts.UDF_CS0_8BIT}, name...)
	}
	unpadded := consts.UDF_FID_FIXED_SIZE + len(ident)
	s := make([]byte, unpadded+int(descriptor.PadSize(int64(unpadded))))
	putTag(s, descriptor.TAG_FILE_IDENTIFIER_DESCRIPTOR, 0)
	le.PutUint16(s[16:], 1)
	s[18] = characteristics
	s[19] = byte(len(ident))
	putLongAd(s[20:], SectorSize, descriptor.EXTENT_RECORDED_ALLOCATED, ref.Block, ref.PartRef)
	copy(s[38:], ident)
	return s
}

func ShortAds(extents ...Extent) []byte {
	s := make([]byte, descriptor.SHORT_AD_SIZE*len(extents))
	for i, e := range extents {
		le.PutUint32(s[i*descriptor.SHORT_AD_SIZE:], packed(e.Length, e.Kind))
		le.PutUint32(s[i*descriptor.SHORT_AD_SIZE+4:], e.Block)
	}
	return s
}

func LongAds(partRef uint16, extents ...Extent) []byte {
	s := make([]byte, descriptor.LONG_AD_SIZE*len(extents))
	for i, e := range extents {
		putLongAd(s[i*descriptor.LONG_AD_SIZE:], e.Length, e.Kind, e.Block, partRef)
	}
	return s
}

// putEntry writes one ICB entry at the start of s and returns its size.
func putEntry(s []byte, e Entry) int {
	putTag(s, e.Tag, 0)
	le.PutUint16(s[20:], 4)
	le.PutUint16(s[24:], e.MaxEntries)
	s[27] = byte(e.FileType)
	le.PutUint16(s[34:], uint16(e.Use))
	if e.Tag != descriptor.TAG_FILE_ENTRY {
		return descriptor.ICB_HEADER_SIZE
	}
	le.PutUint64(s[56:], e.Length)
	le.PutUint32(s[172:], uint32(len(e.ADs)))
	copy(s[176:], e.ADs)
	return descriptor.ICB_HEADER_SIZE + descriptor.FILE_ENTRY_BODY_FIXED_SIZE + len(e.ADs)
}

func putLongAd(s []byte, length uint32, kind descriptor.ExtentType, block uint32, partRef uint16) {
	le.PutUint32(s, packed(length, kind))
	le.PutUint32(s[4:], block)
	le.PutUint16(s[8:], partRef)
}

func packed(length uint32, kind descriptor.ExtentType) uint32 {
	return uint32(kind)<<30 | length
}

func putTag(s []byte, id descriptor.TagIdentifier, location uint32) {
	le.PutUint16(s[0:], uint16(id))
	le.PutUint16(s[2:], 2)
	le.PutUint32(s[12:], location)
	var raw [consts.UDF_DESCRIPTOR_TAG_SIZE]byte
	copy(raw[:], s[:consts.UDF_DESCRIPTOR_TAG_SIZE])
	s[4] = descriptor.TagChecksum(raw)
}

func putCharSpec(s []byte) {
	s[0] = 0
	copy(s[1:descriptor.CHARSPEC_SIZE], consts.UDF_OSTA_CS0_INFO)
}

func putDString(s []byte, value string) {
	s[0] = consts.UDF_CS0_8BIT
	copy(s[1:], value)
	s[len(s)-1] = byte(len(value) + 1)
}
