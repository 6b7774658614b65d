package storage

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leonardcser/kvnode/internal/clock"
	"github.com/leonardcser/kvnode/internal/compress"
	"github.com/leonardcser/kvnode/internal/logger"
)

func TestMain(m *testing.M) {
	logger.InitWriter(io.Discard)
	os.Exit(m.Run())
}

// sizedStore is what the shared contract tests need from a backend.
type sizedStore interface {
	Storage
	Size() int64
}

type backendCase struct {
	name string
	open func(t *testing.T, maxSize int64, c clock.Clock) sizedStore
}

func backends() []backendCase {
	return []backendCase{
		{
			name: "memory",
			open: func(t *testing.T, maxSize int64, c clock.Clock) sizedStore {
				s := NewMemoryStore(Options{MaxSize: maxSize, Clock: c})
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
		{
			name: "bolt",
			open: func(t *testing.T, maxSize int64, c clock.Clock) sizedStore {
				s, err := OpenBolt(Options{
					MaxSize: maxSize,
					Path:    filepath.Join(t.TempDir(), "kv.bolt"),
					Clock:   c,
				})
				require.NoError(t, err)
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
		{
			name: "bolt-zstd",
			open: func(t *testing.T, maxSize int64, c clock.Clock) sizedStore {
				s, err := OpenBolt(Options{
					MaxSize:     maxSize,
					Path:        filepath.Join(t.TempDir(), "kv.bolt"),
					Compression: true,
					Codec:       compress.Zstd,
					Clock:       c,
				})
				require.NoError(t, err)
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}
}

func newFakeClock() *clock.Fake {
	return clock.NewFake(time.UnixMilli(1_700_000_000_000))
}

func keyStrings(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	sort.Strings(out)
	return out
}

func TestRoundTrip(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			s := bc.open(t, 0, newFakeClock())

			require.NoError(t, s.Set([]byte("test_key"), []byte("test_value")))
			v, err := s.Get([]byte("test_key"))
			require.NoError(t, err)
			require.Equal(t, "test_value", string(v))

			ok, err := s.Has([]byte("test_key"))
			require.NoError(t, err)
			require.True(t, ok)

			bin := []byte{0x00, 'a', 0x00, 0xff}
			val := []byte{0xff, 0x00, 0x00}
			require.NoError(t, s.Set(bin, val))
			v, err = s.Get(bin)
			require.NoError(t, err)
			require.Equal(t, val, v)

			require.NoError(t, s.Set([]byte("empty"), []byte{}))
			v, err = s.Get([]byte("empty"))
			require.NoError(t, err)
			require.Len(t, v, 0)

			require.NoError(t, s.Set([]byte{}, []byte("no key")))
			v, err = s.Get([]byte{})
			require.NoError(t, err)
			require.Equal(t, "no key", string(v))
		})
	}
}

func TestReturnedValuesAreCopies(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			s := bc.open(t, 0, newFakeClock())

			in := []byte("value")
			require.NoError(t, s.Set([]byte("k"), in))
			in[0] = 'X'

			out, err := s.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, "value", string(out))
			out[0] = 'Y'

			again, err := s.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, "value", string(again))
		})
	}
}

func TestAbsence(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			c := newFakeClock()
			s := bc.open(t, 0, c)

			_, err := s.Get([]byte("never"))
			require.ErrorIs(t, err, ErrNotFound)
			ok, err := s.Has([]byte("never"))
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, s.Set([]byte("gone"), []byte("v")))
			existed, err := s.Delete([]byte("gone"))
			require.NoError(t, err)
			require.True(t, existed)
			existed, err = s.Delete([]byte("gone"))
			require.NoError(t, err)
			require.False(t, existed)
			_, err = s.Get([]byte("gone"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.SetWithExpire([]byte("brief"), []byte("v"), 10*time.Millisecond))
			c.Advance(11 * time.Millisecond)
			_, err = s.Get([]byte("brief"))
			require.ErrorIs(t, err, ErrNotFound)
			require.Equal(t, int64(0), s.Size())
		})
	}
}

func TestAdmissionRejection(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			s := bc.open(t, 10, newFakeClock())

			require.NoError(t, s.Set([]byte("ab"), []byte("cdefghij")))
			require.Equal(t, int64(10), s.Size())

			require.ErrorIs(t, s.Set([]byte("x"), []byte("y")), ErrCapacityExceeded)
			v, err := s.Get([]byte("ab"))
			require.NoError(t, err)
			require.Equal(t, "cdefghij", string(v))
			require.Equal(t, int64(10), s.Size())
			ok, err := s.Has([]byte("x"))
			require.NoError(t, err)
			require.False(t, ok)

			// Same size overwrite fits; growing one does not and keeps the old value.
			require.NoError(t, s.Set([]byte("ab"), []byte("12345678")))
			require.ErrorIs(t, s.SetWithExpire([]byte("ab"), []byte("123456789"), time.Minute), ErrCapacityExceeded)
			v, err = s.Get([]byte("ab"))
			require.NoError(t, err)
			require.Equal(t, "12345678", string(v))

			// Shrinking frees budget for other keys.
			require.NoError(t, s.Set([]byte("ab"), []byte("1234")))
			require.NoError(t, s.Set([]byte("x"), []byte("y")))
			require.Equal(t, int64(8), s.Size())
		})
	}
}

func TestExpiry(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			c := newFakeClock()
			s := bc.open(t, 0, c)

			require.NoError(t, s.SetWithExpire([]byte("k"), []byte("v"), 50*time.Millisecond))
			v, err := s.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, "v", string(v))

			c.Advance(49 * time.Millisecond)
			ok, err := s.Has([]byte("k"))
			require.NoError(t, err)
			require.True(t, ok)

			c.Advance(2 * time.Millisecond)
			_, err = s.Get([]byte("k"))
			require.ErrorIs(t, err, ErrNotFound)
			ok, err = s.Has([]byte("k"))
			require.NoError(t, err)
			require.False(t, ok)
			keys, err := s.Keys()
			require.NoError(t, err)
			require.NotContains(t, keyStrings(keys), "k")
		})
	}
}

func TestOverwriteReplacesExpiry(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			c := newFakeClock()
			s := bc.open(t, 0, c)

			require.NoError(t, s.SetWithExpire([]byte("k"), []byte("v1"), 10*time.Millisecond))
			require.NoError(t, s.Set([]byte("k"), []byte("v2")))
			c.Advance(time.Hour)
			v, err := s.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, "v2", string(v))

			require.NoError(t, s.SetWithExpire([]byte("k"), []byte("v3"), time.Second))
			c.Advance(999 * time.Millisecond)
			ok, err := s.Has([]byte("k"))
			require.NoError(t, err)
			require.True(t, ok)
			c.Advance(time.Millisecond)
			ok, err = s.Has([]byte("k"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestSweepCompleteness(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			c := newFakeClock()
			s := bc.open(t, 0, c)

			require.NoError(t, s.SetWithExpire([]byte("a"), []byte("1"), 10*time.Millisecond))
			require.NoError(t, s.SetWithExpire([]byte("b"), []byte("22"), 20*time.Millisecond))
			require.NoError(t, s.Set([]byte("c"), []byte("333")))
			require.Equal(t, int64(2+3+4), s.Size())

			c.Advance(25 * time.Millisecond)
			// Expired but unswept entries still count.
			require.Equal(t, int64(2+3+4), s.Size())

			keys, err := s.Keys()
			require.NoError(t, err)
			require.Equal(t, []string{"c"}, keyStrings(keys))
			require.Equal(t, int64(4), s.Size())

			for _, k := range []string{"a", "b"} {
				ok, err := s.Has([]byte(k))
				require.NoError(t, err)
				require.False(t, ok, k)
			}
		})
	}
}

func TestClearIdempotent(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			s := bc.open(t, 100, newFakeClock())

			for _, k := range []string{"k1", "k2", "k3"} {
				require.NoError(t, s.SetWithExpire([]byte(k), []byte("value"), time.Minute))
			}
			require.NoError(t, s.Clear())

			keys, err := s.Keys()
			require.NoError(t, err)
			require.Empty(t, keys)
			require.Equal(t, int64(0), s.Size())
			for _, k := range []string{"k1", "k2", "k3"} {
				ok, err := s.Has([]byte(k))
				require.NoError(t, err)
				require.False(t, ok)
			}

			require.NoError(t, s.Clear())
			require.Equal(t, int64(0), s.Size())

			// The whole budget is available again.
			require.NoError(t, s.Set([]byte("big"), make([]byte, 97)))
		})
	}
}

func TestNew(t *testing.T) {
	s, err := New(KindMemory, Options{MaxSize: 1 << 20})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
	require.NoError(t, s.Close())

	b, err := New(KindBolt, Options{Path: filepath.Join(t.TempDir(), "f.bolt")})
	require.NoError(t, err)
	require.IsType(t, &BoltStore{}, b)
	require.NoError(t, b.Close())

	for _, kind := range []Kind{KindPersistent, KindCompressible} {
		s, err := New(kind, Options{Path: t.TempDir(), Compression: true})
		require.ErrorIs(t, err, ErrNotImplemented)
		require.Nil(t, s)
	}

	_, err = New("leveldb", Options{})
	require.ErrorIs(t, err, ErrUnknownKind)

	// A failed open must yield a nil interface, not a typed nil.
	b, err = New(KindBolt, Options{})
	require.Error(t, err)
	require.True(t, b == nil)
}

func TestMillisToDuration(t *testing.T) {
	require.Equal(t, time.Duration(0), MillisToDuration(0))
	require.Equal(t, time.Duration(0), MillisToDuration(-5))
	require.Equal(t, time.Duration(0), MillisToDuration(math.MinInt64))
	require.Equal(t, 1500*time.Millisecond, MillisToDuration(1500))
	require.Equal(t, time.Duration(math.MaxInt64), MillisToDuration(18446744073710))
	require.Equal(t, time.Duration(math.MaxInt64), MillisToDuration(math.MaxInt64))
}

func TestHugeTTLDoesNotWrap(t *testing.T) {
	c := clock.NewFake(time.UnixMilli(1_700_000_000_000))
	s := NewMemoryStore(Options{Clock: c})
	require.NoError(t, s.SetWithExpire([]byte("k"), []byte("v"), MillisToDuration(18446744073710)))
	c.Advance(24 * time.Hour * 365 * 100)
	ok, err := s.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"":             KindMemory,
		"memory":       KindMemory,
		" Bolt ":       KindBolt,
		"persistent":   KindPersistent,
		"COMPRESSIBLE": KindCompressible,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseKind("rocksdb")
	require.ErrorIs(t, err, ErrUnknownKind)
}
