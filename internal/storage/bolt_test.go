package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leonardcser/kvnode/internal/compress"
)

func TestBoltReopenKeepsDataAndSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.bolt")
	c := newFakeClock()

	s, err := OpenBolt(Options{Path: path, Compression: true, Clock: c})
	require.NoError(t, err)
	require.NoError(t, s.Set([]byte("a"), []byte("alpha")))
	require.NoError(t, s.SetWithExpire([]byte("b"), []byte("beta"), time.Minute))
	require.Equal(t, int64(6+5), s.Size())
	require.NoError(t, s.Close())

	s, err = OpenBolt(Options{Path: path, Compression: true, Clock: c})
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, int64(6+5), s.Size())

	v, err := s.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "alpha", string(v))

	c.Advance(2 * time.Minute)
	keys, err := s.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, keyStrings(keys))
	require.Equal(t, int64(6), s.Size())
}

func TestBoltCodecMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.bolt")

	s, err := OpenBolt(Options{Path: path, Compression: true, Codec: compress.LZ4})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = OpenBolt(Options{Path: path})
	require.Error(t, err)
	require.Contains(t, err.Error(), "codec")
}

func TestBoltClosed(t *testing.T) {
	s, err := OpenBolt(Options{Path: filepath.Join(t.TempDir(), "kv.bolt")})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Get([]byte("k"))
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.Set([]byte("k"), []byte("v")), ErrClosed)
	_, err = s.Keys()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.Clear(), ErrClosed)
}

func TestBoltNeedsPath(t *testing.T) {
	_, err := OpenBolt(Options{})
	require.Error(t, err)
}

func TestBoltCorruptRecord(t *testing.T) {
	_, _, _, err := decodeRecord([]byte{1, 2, 3})
	require.ErrorIs(t, err, errCorruptRecord)

	rec := encodeRecord(42, 5, []byte("hello"))
	at, n, payload, err := decodeRecord(rec)
	require.NoError(t, err)
	require.Equal(t, int64(42), at)
	require.Equal(t, uint32(5), n)
	require.Equal(t, "hello", string(payload))
}
