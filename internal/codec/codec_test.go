package codec_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/derickschaefer/stationcube/internal/codec"
)

func TestCodecsRestoreInput(t *testing.T) {
	inputs := map[string][]byte{
		"empty":      {},
		"short":      []byte("x"),
		"repetitive": []byte(strings.Repeat("station-A,temp,2024-01-01,12.5\n", 200)),
		"binary":     {0, 1, 2, 3, 255, 254, 0, 0, 7},
	}
	for _, name := range codec.Names() {
		c, err := codec.Get(name)
		if err != nil {
			t.Fatalf("Get(%q): %v", name, err)
		}
		for label, in := range inputs {
			packed, err := c.Compress(in)
			if err != nil {
				t.Fatalf("%s/%s: Compress: %v", name, label, err)
			}
			out, err := c.Decompress(packed)
			if err != nil {
				t.Fatalf("%s/%s: Decompress: %v", name, label, err)
			}
			if !bytes.Equal(out, in) {
				t.Errorf("%s/%s: output differs from input", name, label)
			}
		}
	}
}

func TestCompressionShrinksRepetitiveData(t *testing.T) {
	in := []byte(strings.Repeat("0123456789", 1000))
	for _, name := range []string{codec.Zstd, codec.S2, codec.LZ4} {
		c, _ := codec.Get(name)
		packed, err := c.Compress(in)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(packed) >= len(in) {
			t.Errorf("%s: expected compression, got %d >= %d", name, len(packed), len(in))
		}
	}
}

func TestGetUnknown(t *testing.T) {
	if _, err := codec.Get("brotli"); err == nil {
		t.Error("expected error for unknown codec")
	}
}

func TestByID(t *testing.T) {
	for _, name := range codec.Names() {
		c, _ := codec.Get(name)
		back, err := codec.ByID(c.ID())
		if err != nil || back.Name() != name {
			t.Errorf("ByID(%d): got %v, %v", c.ID(), back, err)
		}
	}
	if _, err := codec.ByID(200); err == nil {
		t.Error("expected error for unknown id")
	}
}
