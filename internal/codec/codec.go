// Package codec provides the block compressors used for values written to
// the local store.
package codec

import (
	"fmt"
	"sort"
	"strings"
)

// Names of the built-in codecs.
const (
	None = "none"
	Zstd = "zstd"
	S2   = "s2"
	LZ4  = "lz4"
)

// Codec compresses and decompresses whole blocks. Implementations are safe
// for concurrent use.
type Codec interface {
	Name() string
	ID() byte
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

var builtin = []Codec{
	noop{},
	zstdCodec{},
	s2Codec{},
	lz4Codec{},
}

// Get returns the codec registered under name.
func Get(name string) (Codec, error) {
	for _, c := range builtin {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown codec %q (use %s)", name, strings.Join(Names(), ", "))
}

// ByID returns the codec with the given one-byte identifier.
func ByID(id byte) (Codec, error) {
	for _, c := range builtin {
		if c.ID() == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown codec id %d", id)
}

// Names returns the built-in codec names, sorted.
func Names() []string {
	out := make([]string, len(builtin))
	for i, c := range builtin {
		out[i] = c.Name()
	}
	sort.Strings(out)
	return out
}

// noop stores data unchanged.
type noop struct{}

func (noop) Name() string { return None }
func (noop) ID() byte     { return 0 }

func (noop) Compress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (noop) Decompress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
