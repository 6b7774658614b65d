package compress

import "github.com/golang/snappy"

type snappyCodec struct{}

func (snappyCodec) Type() Type { return Snappy }

func (snappyCodec) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCodec) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}
