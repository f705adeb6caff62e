package descriptor

import (
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/cursor"
)

// ExtentType is the 2 bit type stored in the top of an allocation descriptor's length word (ECMA-167 4/14.14.1.1).
type ExtentType uint8

const (
	EXTENT_RECORDED_ALLOCATED             ExtentType = 0
	EXTENT_ALLOCATED_BUT_NOT_RECORDED     ExtentType = 1
	EXTENT_NEITHER_ALLOCATED_NOR_RECORDED ExtentType = 2
	EXTENT_NEXT_ALLOCATION_DESCRIPTORS    ExtentType = 3
)

const (
	// Low 30 bits of the packed word hold the extent length in bytes.
	EXTENT_LENGTH_MASK = 0x3FFFFFFF
	// Largest representable extent length plus one.
	EXTENT_LENGTH_LIMIT = 1 << 30

	SHORT_AD_SIZE  = 8
	LONG_AD_SIZE   = 16
	EXTENT_AD_SIZE = 8
	LB_ADDR_SIZE   = 6
)

func (t ExtentType) String() string {
	switch t {
	case EXTENT_RECORDED_ALLOCATED:
		return "EXTENT_RECORDED_ALLOCATED"
	case EXTENT_ALLOCATED_BUT_NOT_RECORDED:
		return "EXTENT_ALLOCATED_BUT_NOT_RECORDED"
	case EXTENT_NEITHER_ALLOCATED_NOR_RECORDED:
		return "EXTENT_NEITHER_ALLOCATED_NOR_RECORDED"
	case EXTENT_NEXT_ALLOCATION_DESCRIPTORS:
		return "EXTENT_NEXT_ALLOCATION_DESCRIPTORS"
	default:
		return fmt.Sprintf("ExtentType(%d)", uint8(t))
	}
}

// PackExtent builds the packed length/type word of an allocation descriptor.
func PackExtent(length uint32, t ExtentType) (uint32, error) {
	if length >= EXTENT_LENGTH_LIMIT {
		return 0, fmt.Errorf("extent length %d does not fit in 30 bits", length)
	}
	if t > EXTENT_NEXT_ALLOCATION_DESCRIPTORS {
		return 0, fmt.Errorf("extent type %d does not fit in 2 bits", t)
	}
	return uint32(t)<<30 | length, nil
}

func extentLength(packed uint32) uint32 {
	return packed & EXTENT_LENGTH_MASK
}

func extentType(packed uint32) ExtentType {
	return ExtentType(packed >> 30)
}

// LbAddr is a logical block address relative to a partition (ECMA-167 4/7.1).
type LbAddr struct {
	LogicalBlockNum uint32 `json:"logical_block_num"`
	PartitionRefNum uint16 `json:"partition_ref_num"`
}

// DecodeLbAddr decodes a 6 byte logical block address.
func DecodeLbAddr(c *cursor.Cursor) (LbAddr, error) {
	var a LbAddr
	var err error
	if a.LogicalBlockNum, err = c.ReadU4le(); err != nil {
		return a, err
	}
	if a.PartitionRefNum, err = c.ReadU2le(); err != nil {
		return a, err
	}
	return a, nil
}

// ExtentAd describes an extent in absolute sectors (ECMA-167 3/7.1), as used by the anchor pointer.
type ExtentAd struct {
	Length   uint32 `json:"length"`
	Location uint32 `json:"location"`
}

// DecodeExtentAd decodes an 8 byte extent descriptor.
func DecodeExtentAd(c *cursor.Cursor) (ExtentAd, error) {
	var e ExtentAd
	var err error
	if e.Length, err = c.ReadU4le(); err != nil {
		return e, err
	}
	if e.Location, err = c.ReadU4le(); err != nil {
		return e, err
	}
	return e, nil
}

// ShortAd is a short allocation descriptor. Its block is relative to the partition of the owning ICB.
type ShortAd struct {
	ExtentLenAndType uint32 `json:"extent_len_and_type"`
	ExtentBlock      uint32 `json:"extent_block"`
}

// Length returns the extent length in bytes.
func (ad ShortAd) Length() uint32 {
	return extentLength(ad.ExtentLenAndType)
}

// Type returns the extent type.
func (ad ShortAd) Type() ExtentType {
	return extentType(ad.ExtentLenAndType)
}

// DecodeShortAd decodes an 8 byte short allocation descriptor.
func DecodeShortAd(c *cursor.Cursor) (ShortAd, error) {
	var ad ShortAd
	var err error
	if ad.ExtentLenAndType, err = c.ReadU4le(); err != nil {
		return ad, err
	}
	if ad.ExtentBlock, err = c.ReadU4le(); err != nil {
		return ad, err
	}
	return ad, nil
}

// LongAd is a long allocation descriptor naming its partition explicitly.
type LongAd struct {
	ExtentLenAndType  uint32  `json:"extent_len_and_type"`
	ExtentLocation    LbAddr  `json:"extent_location"`
	ImplementationUse [6]byte `json:"implementation_use"`
}

// Length returns the extent length in bytes.
func (ad LongAd) Length() uint32 {
	return extentLength(ad.ExtentLenAndType)
}

// Type returns the extent type.
func (ad LongAd) Type() ExtentType {
	return extentType(ad.ExtentLenAndType)
}

// DecodeLongAd decodes a 16 byte long allocation descriptor.
func DecodeLongAd(c *cursor.Cursor) (LongAd, error) {
	var ad LongAd
	var err error
	if ad.ExtentLenAndType, err = c.ReadU4le(); err != nil {
		return ad, err
	}
	if ad.ExtentLocation, err = DecodeLbAddr(c); err != nil {
		return ad, err
	}
	if err = c.ReadFull(ad.ImplementationUse[:]); err != nil {
		return ad, err
	}
	return ad, nil
}
