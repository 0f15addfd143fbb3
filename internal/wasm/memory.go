package wasm

// MemoryError is returned when a MemoryType's configuration is invalid or
// when its size computations would overflow the index type's address space.
type MemoryError byte

const (
	// MemoryErrorInvalidMemoryType reports a bad page size, an out-of-range
	// minimum/maximum, or a minimum greater than the maximum.
	MemoryErrorInvalidMemoryType MemoryError = iota + 1
	// MemoryErrorMinimumExceedsMaximum reports minimum pages above maximum.
	MemoryErrorMinimumExceedsMaximum
)

func (e MemoryError) Error() string {
	switch e {
	case MemoryErrorInvalidMemoryType:
		return "invalid memory type"
	case MemoryErrorMinimumExceedsMaximum:
		return "minimum size must not be greater than maximum"
	}
	return "memory error"
}

// IndexType distinguishes 32-bit from 64-bit addressed linear memories, per
// the Wasm memory64 proposal.
type IndexType byte

const (
	IndexTypeI32 IndexType = iota
	IndexTypeI64
)

// IsI64 reports whether idx addresses memory with 64-bit offsets.
func (idx IndexType) IsI64() bool { return idx == IndexTypeI64 }

// maxSize returns the maximum addressable byte size for the index type,
// ignoring page size.
func (idx IndexType) maxSize() uint64 {
	if idx == IndexTypeI64 {
		return 1<<64 - 1
	}
	return 1<<32 - 1
}

// DefaultPageSizeLog2 is the standard Wasm page size, 64KiB, expressed as
// its base-2 logarithm.
const DefaultPageSizeLog2 = 16

// MemoryType describes a linear memory's size bounds, address width, and
// page size.
type MemoryType struct {
	Minimum      uint64
	Maximum      uint64 // only meaningful when HasMaximum is true
	HasMaximum   bool
	PageSizeLog2 uint8
	Index        IndexType
}

// NewMemoryType validates and constructs a MemoryType. maximum is ignored
// unless hasMaximum is true. pageSizeLog2 must be 0 or 16; other values are
// reserved for the not-yet-standardized custom-page-sizes proposal.
func NewMemoryType(minimum, maximum uint64, hasMaximum bool, pageSizeLog2 uint8, idx IndexType) (MemoryType, error) {
	mt := MemoryType{
		Minimum:      minimum,
		Maximum:      maximum,
		HasMaximum:   hasMaximum,
		PageSizeLog2: pageSizeLog2,
		Index:        idx,
	}
	if err := mt.validate(); err != nil {
		return MemoryType{}, err
	}
	return mt, nil
}

func (mt MemoryType) validate() error {
	switch mt.PageSizeLog2 {
	case 0, DefaultPageSizeLog2:
	default:
		return MemoryErrorInvalidMemoryType
	}
	if _, err := mt.minimumByteSize(); err != nil {
		return MemoryErrorInvalidMemoryType
	}
	if mt.HasMaximum {
		if _, err := mt.maximumByteSize(); err != nil {
			return MemoryErrorInvalidMemoryType
		}
		if mt.Minimum > mt.Maximum {
			return MemoryErrorInvalidMemoryType
		}
	}
	return nil
}

// PageSize returns the byte size of one page.
func (mt MemoryType) PageSize() uint32 { return 1 << mt.PageSizeLog2 }

// absoluteMaxPages is the largest page count addressable by mt's index
// type at mt's page size.
func (mt MemoryType) absoluteMaxPages() uint64 {
	return mt.Index.maxSize() >> mt.PageSizeLog2
}

type sizeOverflow struct{}

func (sizeOverflow) Error() string { return "memory size calculation overflowed" }

func (mt MemoryType) minimumByteSize() (uint64, error) {
	if mt.Minimum > mt.absoluteMaxPages() {
		return 0, sizeOverflow{}
	}
	return mt.Minimum << mt.PageSizeLog2, nil
}

func (mt MemoryType) maximumByteSize() (uint64, error) {
	if mt.Maximum > mt.absoluteMaxPages() {
		return 0, sizeOverflow{}
	}
	return mt.Maximum << mt.PageSizeLog2, nil
}

// IsSubtypeOf implements Wasm import subtyping for memory types: the page
// size and index width must match exactly, the importing minimum must be
// at least the imported minimum, and the importing maximum (if any) must
// be at least as tight as the imported maximum. The page-size check comes
// before the minimum/maximum checks since two memories with different page sizes are never
// subtype-compatible regardless of their page counts; without it a
// memory64-only comparison could wrongly accept mismatched page sizes.
func (mt MemoryType) IsSubtypeOf(other MemoryType) bool {
	if mt.Index != other.Index {
		return false
	}
	if mt.PageSize() != other.PageSize() {
		return false
	}
	if mt.Minimum < other.Minimum {
		return false
	}
	if !other.HasMaximum {
		return true
	}
	if !mt.HasMaximum {
		return false
	}
	return mt.Maximum <= other.Maximum
}
