package compress

import "github.com/klauspost/compress/zstd"

// zstdCodec shares one encoder and decoder; EncodeAll and DecodeAll are safe
// for concurrent use.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstd(level Level) (*zstdCodec, error) {
	zl := zstd.SpeedDefault
	switch level {
	case LevelBestSpeed:
		zl = zstd.SpeedFastest
	case LevelBestCompression:
		zl = zstd.SpeedBestCompression
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zl))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (*zstdCodec) Type() Type { return Zstd }

func (c *zstdCodec) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

func (c *zstdCodec) Decompress(data []byte) ([]byte, error) {
	return c.dec.DecodeAll(data, nil)
}
