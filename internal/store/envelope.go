package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/derickschaefer/stationcube/internal/codec"
)

// ErrCorrupt is returned when a stored payload fails its integrity check.
var ErrCorrupt = errors.New("corrupt payload")

// Envelope layout:
//
//	[0]    format version
//	[1]    codec id
//	[2:10] xxhash64 of the uncompressed payload, little endian
//	[10:]  compressed payload
const (
	envelopeVersion = 1
	envelopeHeader  = 10
)

func seal(c codec.Codec, raw []byte) ([]byte, error) {
	body, err := c.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compressing with %s: %w", c.Name(), err)
	}
	out := make([]byte, envelopeHeader, envelopeHeader+len(body))
	out[0] = envelopeVersion
	out[1] = c.ID()
	binary.LittleEndian.PutUint64(out[2:envelopeHeader], xxhash.Sum64(raw))
	return append(out, body...), nil
}

// unseal verifies and decompresses an envelope. The result never aliases
// data, so it stays valid after the bbolt transaction ends.
func unseal(data []byte) ([]byte, error) {
	if len(data) < envelopeHeader {
		return nil, fmt.Errorf("%w: short envelope (%d bytes)", ErrCorrupt, len(data))
	}
	if data[0] != envelopeVersion {
		return nil, fmt.Errorf("%w: envelope version %d", ErrCorrupt, data[0])
	}
	c, err := codec.ByID(data[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	raw, err := c.Decompress(data[envelopeHeader:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if xxhash.Sum64(raw) != binary.LittleEndian.Uint64(data[2:envelopeHeader]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return raw, nil
}
