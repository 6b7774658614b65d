package compress

import (
	"errors"
	"fmt"
	"strings"
)

// Type names a value codec.
type Type string

const (
	None   Type = "none"
	Gzip   Type = "gzip"
	Snappy Type = "snappy"
	LZ4    Type = "lz4"
	Zstd   Type = "zstd"
)

// Level is a codec-neutral compression level. Codecs without levels ignore it.
type Level int

const (
	LevelDefault         Level = 0
	LevelBestSpeed       Level = 1
	LevelBestCompression Level = 9
)

var ErrUnknownType = errors.New("compress: unknown codec")

// Codec compresses and decompresses whole values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Type() Type
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// New returns the codec for t.
func New(t Type, level Level) (Codec, error) {
	switch t {
	case None, "":
		return noneCodec{}, nil
	case Gzip:
		return newGzip(level), nil
	case Snappy:
		return snappyCodec{}, nil
	case LZ4:
		return lz4Codec{}, nil
	case Zstd:
		return newZstd(level)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(t))
	}
}

// ParseType maps a config string to a Type. Empty means None.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case "":
		return None, nil
	case None, Gzip, Snappy, LZ4, Zstd:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

type noneCodec struct{}

func (noneCodec) Type() Type                             { return None }
func (noneCodec) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCodec) Decompress(data []byte) ([]byte, error) { return data, nil }
