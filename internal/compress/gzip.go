package compress

import (
	"bytes"
	"compress/gzip"
	"io"
)

type gzipCodec struct {
	level int
}

func newGzip(level Level) gzipCodec {
	switch level {
	case LevelBestSpeed:
		return gzipCodec{level: gzip.BestSpeed}
	case LevelBestCompression:
		return gzipCodec{level: gzip.BestCompression}
	default:
		return gzipCodec{level: gzip.DefaultCompression}
	}
}

func (gzipCodec) Type() Type { return Gzip }

func (c gzipCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
