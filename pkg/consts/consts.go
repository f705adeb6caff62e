package consts

const (
	// UDF default sector size. Logical blocks on DVD/BD media share this size.
	UDF_SECTOR_SIZE = 2048

	// Sector holding the Anchor Volume Descriptor Pointer.
	UDF_ANCHOR_SECTOR = 256

	// Number of system area sectors preceding the volume recognition sequence.
	UDF_SYSTEM_AREA_SECTORS = 16

	// Upper bound on the number of volume structure descriptors inspected in the recognition sequence.
	UDF_MAX_RECOGNITION_SECTORS = 16

	// Volume structure descriptor identifiers (ECMA-167 2/9, ECMA-119).
	UDF_BEA_IDENTIFIER     = "BEA01"
	UDF_NSR2_IDENTIFIER    = "NSR02"
	UDF_NSR3_IDENTIFIER    = "NSR03"
	UDF_TEA_IDENTIFIER     = "TEA01"
	ISO9660_STD_IDENTIFIER = "CD001"

	// Size in bytes of every descriptor tag.
	UDF_DESCRIPTOR_TAG_SIZE = 16

	// Fixed part of a File Identifier Descriptor preceding implementation use and identifier.
	UDF_FID_FIXED_SIZE = 38

	// OSTA Compressed Unicode character set information, padded to 63 bytes.
	UDF_OSTA_CS0_INFO = "OSTA Compressed Unicode"

	// Compression ids of OSTA CS0 identifiers.
	UDF_CS0_8BIT         = 8
	UDF_CS0_16BIT        = 16
	UDF_CS0_8BIT_UNIQUE  = 254
	UDF_CS0_16BIT_UNIQUE = 255

	// Smallest chunk used when copying extents.
	MIN_CHUNK_SIZE = 16 * 1024

	// Largest chunk used when copying extents regardless of available memory.
	MAX_CHUNK_SIZE = 64 * 1024 * 1024

	// Chunk sizes are scaled down from the probed memory budget by this factor (2^5).
	CHUNK_SCALE_FACTOR = 1 << 5

	// Recursion depth meaning "extract everything, including nested archives".
	MAX_RECURSION = int(^uint(0) >> 1)
)
