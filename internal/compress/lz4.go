package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

var errLZ4Frame = errors.New("compress: truncated lz4 block")

// lz4Codec writes raw block data behind a 4 byte big endian length of the
// original value, since lz4 blocks do not record it. Incompressible input is
// stored as is; the decoder recognises it by payload length == original length.
type lz4Codec struct{}

func (lz4Codec) Type() Type { return LZ4 }

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	out := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.BigEndian.PutUint32(out[:4], uint32(len(data)))
	n, err := lz4.CompressBlock(data, out[4:], nil)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(data) {
		n = copy(out[4:], data)
	}
	return out[:4+n], nil
}

func (lz4Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, errLZ4Frame
	}
	size := int(binary.BigEndian.Uint32(data[:4]))
	payload := data[4:]
	if len(payload) == size {
		return append([]byte(nil), payload...), nil
	}
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(payload, dst)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("compress: lz4 decoded %d bytes, want %d", n, size)
	}
	return dst, nil
}
