// Package compress provides the codecs used for persisted dataset splits.
package compress

import (
	"fmt"
	"strings"
)

// Codec compresses and decompresses whole payloads. Implementations are safe
// for concurrent use.
type Codec interface {
	// Name is the identifier stored alongside persisted data.
	Name() string
	// Ext is the file extension suffix appended to compressed files ("" for none).
	Ext() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

const (
	None = "none"
	Zstd = "zstd"
	LZ4  = "lz4"
)

var builtinCodecs = map[string]Codec{
	None: noopCodec{},
	Zstd: zstdCodec{},
	LZ4:  lz4Codec{},
}

// Get returns the codec registered under name. The empty name selects None.
func Get(name string) (Codec, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = None
	}

	if codec, ok := builtinCodecs[key]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression %q (expected %s|%s|%s)", name, None, Zstd, LZ4)
}

type noopCodec struct{}

func (noopCodec) Name() string { return None }
func (noopCodec) Ext() string  { return "" }

func (noopCodec) Compress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func (noopCodec) Decompress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}
