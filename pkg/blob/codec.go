package blob

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/ormerr"
)

// DefaultMaxEncodedSize mirrors SQLite's default SQLITE_MAX_LENGTH.
const DefaultMaxEncodedSize int64 = 1_000_000_000

const (
	formatVersion byte = 1
	headerSize         = 2
	digestSize         = 32

	flagCompressed byte = 1 << 0
	flagChecksum   byte = 1 << 1
)

// Options configures a Codec.
type Options struct {
	// Compress stores payloads xz-compressed when that makes them smaller.
	Compress bool `yaml:"compress"`

	// Checksum stores a BLAKE3-256 digest of the payload and verifies it on decode.
	Checksum bool `yaml:"checksum"`

	// MaxEncodedSize caps the stored representation. Defaults to DefaultMaxEncodedSize.
	MaxEncodedSize int64 `yaml:"max_encoded_size" validate:"gte=0"`
}

// Codec encodes and decodes nullable binary column values. It is stateless
// and safe for concurrent use.
type Codec struct {
	opts Options
}

// NewCodec creates a codec.
func NewCodec(opts Options) *Codec {
	if opts.MaxEncodedSize <= 0 {
		opts.MaxEncodedSize = DefaultMaxEncodedSize
	}
	return &Codec{opts: opts}
}

// Options returns the effective options.
func (c *Codec) Options() Options {
	return c.opts
}

// Encode produces the storage representation of b: nil for absent, otherwise a
// []byte. limit is the field's declared length policy in bytes (0 for none).
// Oversized values fail with BlobTooLarge; nothing is truncated.
func (c *Codec) Encode(b Blob, limit int64) (any, error) {
	if !b.Present() {
		return nil, nil
	}

	raw := b.Bytes()
	if limit > 0 && int64(len(raw)) > limit {
		return nil, ormerr.Newf(ormerr.KindBlobTooLarge, "blob of %d bytes exceeds column limit of %d bytes", len(raw), limit)
	}

	flags := byte(0)
	payload := raw
	if c.opts.Compress && len(raw) > 0 {
		compressed, err := compress(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to compress blob: %w", err)
		}
		if len(compressed) < len(raw) {
			payload = compressed
			flags |= flagCompressed
		}
	}

	size := headerSize + len(payload)
	if c.opts.Checksum {
		flags |= flagChecksum
		size += digestSize
	}
	if int64(size) > c.opts.MaxEncodedSize {
		return nil, ormerr.Newf(ormerr.KindBlobTooLarge, "encoded blob of %d bytes exceeds storage limit of %d bytes", size, c.opts.MaxEncodedSize)
	}

	out := make([]byte, 0, size)
	out = append(out, formatVersion, flags)
	if flags&flagChecksum != 0 {
		sum := blake3.Sum256(raw)
		out = append(out, sum[:]...)
	}
	out = append(out, payload...)
	return out, nil
}

// Decode reconstructs a blob from a value scanned out of a binary column.
// NULL decodes to Absent; anything else must be a value produced by Encode.
func (c *Codec) Decode(v any) (Blob, error) {
	var data []byte
	switch x := v.(type) {
	case nil:
		return Absent(), nil
	case []byte:
		data = x
	case string:
		data = []byte(x)
	default:
		return Blob{}, corrupt(fmt.Sprintf("unexpected column value of type %T", v))
	}

	if len(data) < headerSize {
		return Blob{}, corrupt(fmt.Sprintf("blob header truncated to %d bytes", len(data)))
	}
	if data[0] != formatVersion {
		return Blob{}, corrupt(fmt.Sprintf("unsupported blob format version %d", data[0]))
	}

	flags := data[1]
	body := data[headerSize:]

	var digest []byte
	if flags&flagChecksum != 0 {
		if len(body) < digestSize {
			return Blob{}, corrupt("blob checksum truncated")
		}
		digest = body[:digestSize]
		body = body[digestSize:]
	}

	raw := body
	if flags&flagCompressed != 0 {
		var err error
		raw, err = decompress(body, c.opts.MaxEncodedSize)
		if err != nil {
			return Blob{}, ormerr.Wrap(ormerr.KindStorageIO, "failed to decompress blob", err)
		}
	}

	if digest != nil {
		sum := blake3.Sum256(raw)
		if !bytes.Equal(sum[:], digest) {
			return Blob{}, corrupt("blob checksum mismatch")
		}
	}

	// Copy so the result does not alias driver-owned memory.
	out := make([]byte, len(raw))
	copy(out, raw)
	return Of(out), nil
}

func corrupt(msg string) error {
	return ormerr.New(ormerr.KindStorageIO, msg)
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte, max int64) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > max {
		return nil, fmt.Errorf("decompressed blob exceeds %d bytes", max)
	}
	return out, nil
}
