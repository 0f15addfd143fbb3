package interpreter

import (
	"github.com/corewasm/corewasm/internal/value"
	"github.com/corewasm/corewasm/internal/wasm"
	"github.com/corewasm/corewasm/internal/wazeroir"
)

// accessSize reports the byte width a LoadStoreType touches in linear
// memory, independent of the (possibly narrower/wider) result cell it
// produces.
func accessSize(t wazeroir.LoadStoreType) uint64 {
	switch t {
	case wazeroir.LoadStoreI32, wazeroir.LoadStoreF32:
		return 4
	case wazeroir.LoadStoreI64, wazeroir.LoadStoreF64:
		return 8
	case wazeroir.LoadStoreI32_8S, wazeroir.LoadStoreI32_8U, wazeroir.LoadStoreI64_8S, wazeroir.LoadStoreI64_8U:
		return 1
	case wazeroir.LoadStoreI32_16S, wazeroir.LoadStoreI32_16U, wazeroir.LoadStoreI64_16S, wazeroir.LoadStoreI64_16U:
		return 2
	case wazeroir.LoadStoreI64_32S, wazeroir.LoadStoreI64_32U:
		return 4
	}
	return 0
}

// doLoad implements every load shape: compute the effective address
// widened to 64 bits, bounds-check against the cached default-memory byte
// span, then reinterpret/sign-extend per LoadStoreType.
func doLoad(mem []byte, op *wazeroir.Op, base value.UntypedVal) (value.UntypedVal, value.TrapCode) {
	size := accessSize(op.LoadStore)
	effective := uint64(base.U32()) + op.MemArg.Offset
	if effective+size > uint64(len(mem)) || effective+size < effective {
		return 0, value.TrapCodeMemoryOutOfBounds
	}
	b := mem[effective : effective+size]
	switch op.LoadStore {
	case wazeroir.LoadStoreI32:
		return value.FromU32(le32(b)), 0
	case wazeroir.LoadStoreI64:
		return value.FromU64(le64(b)), 0
	case wazeroir.LoadStoreF32:
		return value.FromU32(le32(b)), 0
	case wazeroir.LoadStoreF64:
		return value.FromU64(le64(b)), 0
	case wazeroir.LoadStoreI32_8S:
		return value.FromI32(int32(int8(b[0]))), 0
	case wazeroir.LoadStoreI32_8U:
		return value.FromU32(uint32(b[0])), 0
	case wazeroir.LoadStoreI32_16S:
		return value.FromI32(int32(int16(le16(b)))), 0
	case wazeroir.LoadStoreI32_16U:
		return value.FromU32(uint32(le16(b))), 0
	case wazeroir.LoadStoreI64_8S:
		return value.FromI64(int64(int8(b[0]))), 0
	case wazeroir.LoadStoreI64_8U:
		return value.FromU64(uint64(b[0])), 0
	case wazeroir.LoadStoreI64_16S:
		return value.FromI64(int64(int16(le16(b)))), 0
	case wazeroir.LoadStoreI64_16U:
		return value.FromU64(uint64(le16(b))), 0
	case wazeroir.LoadStoreI64_32S:
		return value.FromI64(int64(int32(le32(b)))), 0
	case wazeroir.LoadStoreI64_32U:
		return value.FromU64(uint64(le32(b))), 0
	}
	return 0, value.TrapCodeMemoryOutOfBounds
}

// doStore is doLoad's symmetric counterpart: narrows val to the store
// width and writes little-endian bytes.
func doStore(mem []byte, op *wazeroir.Op, base, val value.UntypedVal) value.TrapCode {
	size := accessSize(op.LoadStore)
	effective := uint64(base.U32()) + op.MemArg.Offset
	if effective+size > uint64(len(mem)) || effective+size < effective {
		return value.TrapCodeMemoryOutOfBounds
	}
	b := mem[effective : effective+size]
	switch op.LoadStore {
	case wazeroir.LoadStoreI32, wazeroir.LoadStoreF32, wazeroir.LoadStoreI64_32S, wazeroir.LoadStoreI64_32U:
		putLE32(b, val.U32())
	case wazeroir.LoadStoreI64, wazeroir.LoadStoreF64:
		putLE64(b, val.U64())
	case wazeroir.LoadStoreI32_8S, wazeroir.LoadStoreI32_8U, wazeroir.LoadStoreI64_8S, wazeroir.LoadStoreI64_8U:
		b[0] = byte(val.U64())
	case wazeroir.LoadStoreI32_16S, wazeroir.LoadStoreI32_16U, wazeroir.LoadStoreI64_16S, wazeroir.LoadStoreI64_16U:
		putLE16(b, uint16(val.U64()))
	}
	return 0
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func le64(b []byte) uint64 {
	return uint64(le32(b[0:4])) | uint64(le32(b[4:8]))<<32
}
func putLE16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func putLE64(b []byte, v uint64) {
	putLE32(b[0:4], uint32(v))
	putLE32(b[4:8], uint32(v>>32))
}

// growMemory implements memory.grow, zero-filling new pages; the
// bookkeeping itself lives on wasm.MemoryEntity since corewasm's
// embedder-facing Memory.Grow needs the identical logic without importing
// this package.
func growMemory(m *wasm.MemoryEntity, deltaPages uint32) (previous uint32, ok bool) {
	return m.Grow(deltaPages)
}

func memoryInit(mem *wasm.MemoryEntity, seg *wasm.DataSegmentEntity, dst, src, n uint32) value.TrapCode {
	if seg.Dropped {
		if n == 0 {
			return 0
		}
		return value.TrapCodeMemoryOutOfBounds
	}
	if uint64(src)+uint64(n) > uint64(len(seg.Bytes)) || uint64(dst)+uint64(n) > uint64(len(mem.Bytes)) {
		return value.TrapCodeMemoryOutOfBounds
	}
	copy(mem.Bytes[dst:dst+n], seg.Bytes[src:src+n])
	return 0
}

func memoryCopy(dst, src *wasm.MemoryEntity, dstOff, srcOff, n uint32) value.TrapCode {
	if uint64(srcOff)+uint64(n) > uint64(len(src.Bytes)) || uint64(dstOff)+uint64(n) > uint64(len(dst.Bytes)) {
		return value.TrapCodeMemoryOutOfBounds
	}
	copy(dst.Bytes[dstOff:dstOff+n], src.Bytes[srcOff:srcOff+n])
	return 0
}

func memoryFill(mem *wasm.MemoryEntity, dst uint32, val byte, n uint32) value.TrapCode {
	if uint64(dst)+uint64(n) > uint64(len(mem.Bytes)) {
		return value.TrapCodeMemoryOutOfBounds
	}
	b := mem.Bytes[dst : dst+n]
	for i := range b {
		b[i] = val
	}
	return 0
}

// growTable mirrors growMemory for table.grow.
func growTable(t *wasm.TableEntity, deltaElems uint32, init value.UntypedVal) (previous uint32, ok bool) {
	return t.Grow(deltaElems, init)
}

func tableFill(t *wasm.TableEntity, dst uint32, val value.UntypedVal, n uint32) value.TrapCode {
	if uint64(dst)+uint64(n) > uint64(len(t.Elements)) {
		return value.TrapCodeTableOutOfBounds
	}
	for i := dst; i < dst+n; i++ {
		t.Elements[i] = val
	}
	return 0
}

func tableCopy(dst, src *wasm.TableEntity, dstOff, srcOff, n uint32) value.TrapCode {
	if uint64(srcOff)+uint64(n) > uint64(len(src.Elements)) || uint64(dstOff)+uint64(n) > uint64(len(dst.Elements)) {
		return value.TrapCodeTableOutOfBounds
	}
	// Use copy, which handles overlap correctly for a single slice; when
	// dst and src are different tables a plain element-wise copy suffices.
	if dst == src {
		copy(dst.Elements[dstOff:dstOff+n], src.Elements[srcOff:srcOff+n])
	} else {
		copy(dst.Elements[dstOff:dstOff+n], src.Elements[srcOff:srcOff+n])
	}
	return 0
}

func tableInit(t *wasm.TableEntity, elem *wasm.ElementSegmentEntity, dst, src, n uint32) value.TrapCode {
	if elem.Dropped {
		if n == 0 {
			return 0
		}
		return value.TrapCodeTableOutOfBounds
	}
	if uint64(src)+uint64(n) > uint64(len(elem.Elements)) || uint64(dst)+uint64(n) > uint64(len(t.Elements)) {
		return value.TrapCodeTableOutOfBounds
	}
	copy(t.Elements[dst:dst+n], elem.Elements[src:src+n])
	return 0
}
