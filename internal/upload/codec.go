package upload

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses an encoded batch before upload
type Codec interface {
	// Name is the configuration name, e.g. "gzip"
	Name() string
	// Ext is appended to the object key, e.g. ".gz"
	Ext() string
	// Encoding is sent as the object's Content-Encoding
	Encoding() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CodecByName returns the codec registered under name
func CodecByName(name string) (Codec, error) {
	switch name {
	case "gzip":
		return gzipCodec{}, nil
	case "zstd":
		return newZstdCodec()
	case "lz4":
		return lz4Codec{}, nil
	case "snappy":
		return snappyCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown compression codec: %q", name)
	}
}

// gzip: the default, readable by every object store console.

type gzipCodec struct{}

func (gzipCodec) Name() string     { return "gzip" }
func (gzipCodec) Ext() string      { return ".gz" }
func (gzipCodec) Encoding() string { return "gzip" }

func (gzipCodec) Compress(data []byte) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, max(256, len(data)/2)))
	w := gzip.NewWriter(buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// zstd: better ratio on log text at similar speed.

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (*zstdCodec) Name() string     { return "zstd" }
func (*zstdCodec) Ext() string      { return ".zst" }
func (*zstdCodec) Encoding() string { return "zstd" }

func (c *zstdCodec) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (c *zstdCodec) Decompress(data []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// lz4: frame format, cheapest CPU.

type lz4Codec struct{}

func (lz4Codec) Name() string     { return "lz4" }
func (lz4Codec) Ext() string      { return ".lz4" }
func (lz4Codec) Encoding() string { return "lz4" }

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out, nil
}

// snappy: framed stream format.

type snappyCodec struct{}

func (snappyCodec) Name() string     { return "snappy" }
func (snappyCodec) Ext() string      { return ".sz" }
func (snappyCodec) Encoding() string { return "snappy" }

func (snappyCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("snappy compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("snappy compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (snappyCodec) Decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(snappy.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	return out, nil
}
