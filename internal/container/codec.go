package container

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/xtxerr/batcha/internal/errors"
)

// Compression selects how array entries are compressed before they are
// persisted. The codec name is stored next to every entry, so entries
// written with different settings remain readable.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionS2   Compression = "s2"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression parses a compression name. The empty string selects zstd.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionZstd:
		return CompressionZstd, nil
	case CompressionNone, CompressionS2, CompressionLZ4:
		return Compression(s), nil
	}
	return "", fmt.Errorf("compression %q: %w", s, errors.ErrInvalidConfig)
}

// CheckLevel reports whether level is a valid compression level for c.
// Zero selects the codec's fastest setting. zstd accepts 0-22 and lz4 0-9;
// the other codecs ignore the level.
func CheckLevel(c Compression, level int) error {
	limit := -1
	switch c {
	case CompressionZstd, "":
		limit = 22
	case CompressionLZ4:
		limit = len(lz4Levels)
	}
	if level < 0 || (limit >= 0 && level > limit) {
		return fmt.Errorf("%s level %d out of range 0-%d: %w", c, level, max(limit, 0), errors.ErrInvalidConfig)
	}
	return nil
}

type codec interface {
	Name() Compression
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

func newCodec(c Compression, level int) (codec, error) {
	if err := CheckLevel(c, level); err != nil {
		return nil, err
	}
	switch c {
	case CompressionNone:
		return noneCodec{}, nil
	case CompressionZstd, "":
		return newZstdCodec(level)
	case CompressionS2:
		return s2Codec{}, nil
	case CompressionLZ4:
		return lz4Codec{level: level}, nil
	}
	return nil, fmt.Errorf("compression %q: %w", c, errors.ErrInvalidConfig)
}

type noneCodec struct{}

func (noneCodec) Name() Compression                     { return CompressionNone }
func (noneCodec) Compress(src []byte) ([]byte, error)   { return src, nil }
func (noneCodec) Decompress(src []byte) ([]byte, error) { return src, nil }

// zstdCodec shares one encoder and one decoder; EncodeAll and DecodeAll are
// safe for concurrent use.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec(level int) (*zstdCodec, error) {
	if level <= 0 {
		level = 1
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Name() Compression { return CompressionZstd }

func (c *zstdCodec) Compress(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, nil), nil
}

func (c *zstdCodec) Decompress(src []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %v: %w", err, errors.ErrCodec)
	}
	return out, nil
}

type s2Codec struct{}

func (s2Codec) Name() Compression { return CompressionS2 }

func (s2Codec) Compress(src []byte) ([]byte, error) {
	return s2.Encode(nil, src), nil
}

func (s2Codec) Decompress(src []byte) ([]byte, error) {
	out, err := s2.Decode(nil, src)
	if err != nil {
		return nil, fmt.Errorf("s2: %v: %w", err, errors.ErrCodec)
	}
	return out, nil
}

var lz4Levels = []lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// lz4Codec compresses with the fast block compressor at level 0 and with
// lz4.LevelN at level N.
type lz4Codec struct {
	level int
}

func (lz4Codec) Name() Compression { return CompressionLZ4 }

func (c lz4Codec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if c.level > 0 {
		if err := w.Apply(lz4.CompressionLevelOption(lz4Levels[c.level-1])); err != nil {
			return nil, fmt.Errorf("lz4 options: %w", err)
		}
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("lz4 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(src []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
	if err != nil {
		return nil, fmt.Errorf("lz4: %v: %w", err, errors.ErrCodec)
	}
	return out, nil
}

// codecSet resolves codec names found in persisted entries.
type codecSet struct {
	mu     sync.Mutex
	codecs map[Compression]codec
}

func (cs *codecSet) get(name Compression) (codec, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if c, ok := cs.codecs[name]; ok {
		return c, nil
	}
	c, err := newCodec(name, 0)
	if err != nil {
		return nil, fmt.Errorf("entry codec %q: %w", name, errors.ErrCodec)
	}
	if cs.codecs == nil {
		cs.codecs = make(map[Compression]codec)
	}
	cs.codecs[name] = c
	return c, nil
}

func (cs *codecSet) close() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for _, c := range cs.codecs {
		if z, ok := c.(*zstdCodec); ok {
			z.enc.Close()
			z.dec.Close()
		}
	}
	cs.codecs = nil
}
