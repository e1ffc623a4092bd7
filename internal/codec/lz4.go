package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

type lz4Codec struct{}

func (lz4Codec) Name() string { return LZ4 }
func (lz4Codec) ID() byte     { return 3 }

// Compress prefixes the block with the uncompressed length so Decompress
// can size its buffer exactly.
func (lz4Codec) Compress(data []byte) ([]byte, error) {
	dst := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.LittleEndian.PutUint32(dst, uint32(len(data)))
	if len(data) == 0 {
		return dst[:4], nil
	}
	var c lz4.Compressor
	n, err := c.CompressBlock(data, dst[4:])
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	if n == 0 {
		// Incompressible input: lz4 signals this with n == 0. Store a
		// length of zero followed by the raw bytes.
		binary.LittleEndian.PutUint32(dst, 0)
		return append(dst[:4], data...), nil
	}
	return dst[:4+n], nil
}

func (lz4Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("lz4: block too short")
	}
	size := binary.LittleEndian.Uint32(data)
	if size == 0 {
		out := make([]byte, len(data)-4)
		copy(out, data[4:])
		return out, nil
	}
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data[4:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	return out[:n], nil
}
