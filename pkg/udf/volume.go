package udf

import (
	"errors"
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/cursor"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/progress"
	"github.com/bgrewell/udf-kit/pkg/udf/descriptor"
)

// VolumeInfo is the resolved layout of a single partition UDF volume.
type VolumeInfo struct {
	SectorSize    int64                                    `json:"sector_size"`
	Recognition   []descriptor.VolumeStructureDescriptor   `json:"recognition,omitempty"`
	Anchor        descriptor.AnchorVolumeDescriptorPointer `json:"anchor"`
	Partition     descriptor.PartitionDescriptorBody       `json:"partition"`
	LogicalVolume descriptor.LogicalVolumeDescriptorBody   `json:"logical_volume"`
	FileSet       *descriptor.FileSetDescriptor            `json:"file_set,omitempty"`
}

// BlockPosition converts a logical block number within the partition to an absolute byte offset.
func (v *VolumeInfo) BlockPosition(block uint32) int64 {
	return (int64(v.Partition.PartitionStartingLocation) + int64(block)) * v.SectorSize
}

// FileSetLocation returns the absolute byte offset of the file set descriptor.
func (v *VolumeInfo) FileSetLocation() int64 {
	return v.BlockPosition(v.LogicalVolume.FileSetDescriptorExtent.ExtentLocation.LogicalBlockNum)
}

// CheckPartition fails when a partition reference does not name the volume's only partition.
func (v *VolumeInfo) CheckPartition(ref uint16) error {
	if ref != v.Partition.PartitionNumber {
		return formatErrorf(PARTITION_MISMATCH, "partition reference %d does not match partition number %d", ref, v.Partition.PartitionNumber)
	}
	return nil
}

// ResolveVolume reads the anchor volume descriptor pointer and scans the main volume descriptor
// sequence for the partition and logical volume descriptors. The scan stops at the first
// terminating descriptor.
func ResolveVolume(c *cursor.Cursor, logger *logging.Logger, sink progress.Annunciator) (*VolumeInfo, error) {
	v := &VolumeInfo{SectorSize: consts.UDF_SECTOR_SIZE}

	if err := c.Seek(v.SectorSize * consts.UDF_ANCHOR_SECTOR); err != nil {
		return nil, formatErrorWrap(MISSING_VOLUME_STRUCTURE, "image too small to hold an anchor volume descriptor pointer", err)
	}
	anchor, err := descriptor.DecodeAnchorVolumeDescriptorPointer(c)
	if err != nil {
		return nil, classifyDecodeError("anchor volume descriptor pointer", err)
	}
	if !anchor.Tag.ChecksumValid() {
		logger.Debug("anchor volume descriptor pointer checksum mismatch", "checksum", anchor.Tag.TagChecksum)
	}
	v.Anchor = anchor

	main := anchor.MainVolumeDescriptorSequence
	count := int64(main.Length) / v.SectorSize
	pos := int64(main.Location) * v.SectorSize
	logger.Debug("scanning main volume descriptor sequence", "location", main.Location, "sectors", count)

	var havePartition, haveLogicalVolume bool
scan:
	for i := int64(0); i < count; i, pos = i+1, pos+v.SectorSize {
		if err := c.Seek(pos); err != nil {
			return nil, fmt.Errorf("volume descriptor sequence runs past end of image: %w", err)
		}
		header, err := descriptor.DecodeVolumeDescriptorHeader(c)
		if err != nil {
			return nil, classifyDecodeError(fmt.Sprintf("volume descriptor at sector %d", pos/v.SectorSize), err)
		}
		if !header.Tag.ChecksumValid() {
			logger.Debug("volume descriptor checksum mismatch", "tag", header.Tag.TagIdentifier, "sector", pos/v.SectorSize)
		}

		switch header.Tag.TagIdentifier {
		case descriptor.TAG_PARTITION_DESCRIPTOR:
			if havePartition {
				return nil, formatErrorf(DUPLICATE_PARTITION_DESCRIPTOR, "second partition descriptor at sector %d", pos/v.SectorSize)
			}
			if v.Partition, err = descriptor.DecodePartitionDescriptorBody(c); err != nil {
				return nil, classifyDecodeError("partition descriptor", err)
			}
			havePartition = true
			logger.Debug("found partition descriptor", "number", v.Partition.PartitionNumber,
				"start", v.Partition.PartitionStartingLocation, "length", v.Partition.PartitionLength)
		case descriptor.TAG_LOGICAL_VOLUME_DESCRIPTOR:
			if haveLogicalVolume {
				return nil, formatErrorf(DUPLICATE_LOGICAL_VOLUME_DESCRIPTOR, "second logical volume descriptor at sector %d", pos/v.SectorSize)
			}
			if v.LogicalVolume, err = descriptor.DecodeLogicalVolumeDescriptorBody(c); err != nil {
				return nil, classifyDecodeError("logical volume descriptor", err)
			}
			haveLogicalVolume = true
			logger.Debug("found logical volume descriptor", "id", v.LogicalVolume.LogicalVolumeIdentifier,
				"block_size", v.LogicalVolume.LogicalBlockSize, "maps", len(v.LogicalVolume.PartitionMaps))
		case descriptor.TAG_TERMINATING_DESCRIPTOR:
			break scan
		default:
			if isVolumeSequenceTag(header.Tag.TagIdentifier) {
				logger.Debug("skipping volume descriptor", "tag", header.Tag.TagIdentifier, "sector", pos/v.SectorSize)
				continue
			}
			logger.Warn("unexpected descriptor tag while scanning volume descriptors",
				"tag", header.Tag.TagIdentifier, "sector", pos/v.SectorSize)
			sink.Announce(fmt.Sprintf("Warning: Unexpected descriptor tag %s found while scanning volume descriptors.", header.Tag.TagIdentifier))
		}
	}

	if !havePartition || !haveLogicalVolume {
		return nil, formatErrorf(MISSING_VOLUME_STRUCTURE, "partition descriptor found: %t, logical volume descriptor found: %t", havePartition, haveLogicalVolume)
	}
	if bs := int64(v.LogicalVolume.LogicalBlockSize); bs != 0 && bs != v.SectorSize {
		logger.Warn("logical block size differs from sector size", "block_size", bs, "sector_size", v.SectorSize)
	}
	return v, nil
}

// ResolveRootDirectory decodes the file set descriptor and returns the address of the root directory ICB.
func ResolveRootDirectory(c *cursor.Cursor, v *VolumeInfo) (descriptor.LongAd, error) {
	if err := c.Seek(v.FileSetLocation()); err != nil {
		return descriptor.LongAd{}, formatErrorWrap(MISSING_VOLUME_STRUCTURE, "file set descriptor lies outside the image", err)
	}
	fsd, err := descriptor.DecodeFileSetDescriptor(c)
	if err != nil {
		return descriptor.LongAd{}, classifyDecodeError("file set descriptor", err)
	}
	v.FileSet = &fsd

	root := fsd.RootDirectoryIcb
	if err := v.CheckPartition(root.ExtentLocation.PartitionRefNum); err != nil {
		return descriptor.LongAd{}, err
	}
	return root, nil
}

// ScanRecognitionSequence collects the volume structure descriptors following the system area. It stops
// at the first unrecognized sector or the terminating TEA01 descriptor and never fails.
func ScanRecognitionSequence(c *cursor.Cursor, logger *logging.Logger) []descriptor.VolumeStructureDescriptor {
	var found []descriptor.VolumeStructureDescriptor
	for i := int64(0); i < consts.UDF_MAX_RECOGNITION_SECTORS; i++ {
		sector := consts.UDF_SYSTEM_AREA_SECTORS + i
		if err := c.Seek(sector * consts.UDF_SECTOR_SIZE); err != nil {
			break
		}
		vsd, err := descriptor.DecodeVolumeStructureDescriptor(c)
		if err != nil {
			logger.Trace("volume recognition sequence ended", "sector", sector, "error", err)
			break
		}
		found = append(found, vsd)
		if vsd.StandardIdentifier == consts.UDF_TEA_IDENTIFIER {
			break
		}
	}
	return found
}

// HasNSR reports whether the recognition sequence names an NSR02 or NSR03 descriptor.
func (v *VolumeInfo) HasNSR() bool {
	for _, vsd := range v.Recognition {
		if vsd.StandardIdentifier == consts.UDF_NSR2_IDENTIFIER || vsd.StandardIdentifier == consts.UDF_NSR3_IDENTIFIER {
			return true
		}
	}
	return false
}

func isVolumeSequenceTag(id descriptor.TagIdentifier) bool {
	switch id {
	case descriptor.TAG_PRIMARY_VOLUME_DESCRIPTOR,
		descriptor.TAG_ANCHOR_VOLUME_DESCRIPTOR_POINTER,
		descriptor.TAG_VOLUME_DESCRIPTOR_POINTER,
		descriptor.TAG_IMPLEMENTATION_USE_VOLUME_DESCRIPTOR,
		descriptor.TAG_UNALLOCATED_SPACE_DESCRIPTOR:
		return true
	}
	return false
}

func formatErrorWrap(kind FormatErrorKind, detail string, err error) *FormatError {
	return &FormatError{Kind: kind, Detail: detail, Err: err}
}

// classifyDecodeError maps decoder failures onto FormatError where they indicate a malformed image.
// Truncated reads are returned wrapped but otherwise unchanged.
func classifyDecodeError(what string, err error) error {
	var unknown *descriptor.UnknownTagIdentifierError
	if errors.As(err, &unknown) {
		return formatErrorWrap(INVALID_DESCRIPTOR_TAG, what, err)
	}
	var unexpected *descriptor.UnexpectedTagError
	if errors.As(err, &unexpected) {
		return formatErrorWrap(INVALID_DESCRIPTOR_TAG, what, err)
	}
	return fmt.Errorf("failed to decode %s: %w", what, err)
}
