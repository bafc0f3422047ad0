package pixel

import "encoding/binary"

// Integer is every sample type a Kernel can be built for
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Kernel reads and writes samples of one concrete type in a packed buffer.
// Index i counts samples, not bytes.
type Kernel interface {
	// Load widens sample i to int64. Unsigned 64-bit values above
	// math.MaxInt64 wrap.
	Load(buf []byte, i int) int64
	// Store narrows v to the sample type and writes it at i
	Store(buf []byte, i int, v int64)
	// Width is the sample width in bytes
	Width() int
}

type kind struct {
	bits   int
	signed bool
}

var kernels = map[kind]func(binary.ByteOrder) Kernel{
	{8, true}:   func(o binary.ByteOrder) Kernel { return typed[int8]{1, o} },
	{16, true}:  func(o binary.ByteOrder) Kernel { return typed[int16]{2, o} },
	{32, true}:  func(o binary.ByteOrder) Kernel { return typed[int32]{4, o} },
	{64, true}:  func(o binary.ByteOrder) Kernel { return typed[int64]{8, o} },
	{8, false}:  func(o binary.ByteOrder) Kernel { return typed[uint8]{1, o} },
	{16, false}: func(o binary.ByteOrder) Kernel { return typed[uint16]{2, o} },
	{32, false}: func(o binary.ByteOrder) Kernel { return typed[uint32]{4, o} },
	{64, false}: func(o binary.ByteOrder) Kernel { return typed[uint64]{8, o} },
}

type typed[T Integer] struct {
	width int
	order binary.ByteOrder
}

func (k typed[T]) Width() int { return k.width }

func (k typed[T]) Load(buf []byte, i int) int64 {
	off := i * k.width
	var u uint64
	switch k.width {
	case 1:
		u = uint64(buf[off])
	case 2:
		u = uint64(k.order.Uint16(buf[off:]))
	case 4:
		u = uint64(k.order.Uint32(buf[off:]))
	default:
		u = k.order.Uint64(buf[off:])
	}
	// T(u) keeps the low bits, int64(T) then sign-extends for signed T
	return int64(T(u))
}

func (k typed[T]) Store(buf []byte, i int, v int64) {
	off := i * k.width
	u := uint64(T(v))
	switch k.width {
	case 1:
		buf[off] = byte(u)
	case 2:
		k.order.PutUint16(buf[off:], uint16(u))
	case 4:
		k.order.PutUint32(buf[off:], uint32(u))
	default:
		k.order.PutUint64(buf[off:], u)
	}
}
