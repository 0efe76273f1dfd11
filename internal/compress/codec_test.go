package compress

import (
	"bytes"
	"strings"
	"testing"
)

func TestCodecs_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("input_ids attention_mask bbox "), 200)

	for _, name := range []string{None, Zstd, LZ4} {
		t.Run(name, func(t *testing.T) {
			codec, err := Get(name)
			if err != nil {
				t.Fatalf("Get(%q): %v", name, err)
			}

			if codec.Name() != name {
				t.Errorf("Name() = %q; want %q", codec.Name(), name)
			}

			compressed, err := codec.Compress(payload)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}

			if name != None && len(compressed) >= len(payload) {
				t.Errorf("compressed %d bytes to %d", len(payload), len(compressed))
			}

			out, err := codec.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}

			if !bytes.Equal(out, payload) {
				t.Error("round trip changed the payload")
			}
		})
	}
}

func TestGet_DefaultsAndErrors(t *testing.T) {
	codec, err := Get("")
	if err != nil {
		t.Fatalf("Get(\"\"): %v", err)
	}

	if codec.Name() != None || codec.Ext() != "" {
		t.Errorf("default codec = %q ext %q; want none without extension", codec.Name(), codec.Ext())
	}

	codec, err = Get(" ZSTD ")
	if err != nil {
		t.Fatalf("Get(ZSTD): %v", err)
	}

	if codec.Ext() != ".zst" {
		t.Errorf("Ext() = %q; want .zst", codec.Ext())
	}

	if _, err := Get("brotli"); err == nil || !strings.Contains(err.Error(), "brotli") {
		t.Errorf("Get(brotli) error = %v; want one naming the codec", err)
	}
}

func TestZstd_RejectsGarbage(t *testing.T) {
	codec, err := Get(Zstd)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if _, err := codec.Decompress([]byte("definitely not zstd")); err == nil {
		t.Error("Decompress should fail on garbage")
	}
}
