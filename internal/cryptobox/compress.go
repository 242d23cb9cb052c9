package cryptobox

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compression selects whether chunk plaintext is zstd-compressed before
// encryption.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
)

const (
	footerNoCompression byte = 0x00
	footerZstdCompressed byte = 0x01
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic(fmt.Sprintf("cryptobox: init zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("cryptobox: init zstd decoder: %v", err))
	}
}

// appendFooter appends the 1-byte compression footer (and, for zstd, the
// little-endian u32 uncompressed size) per the chunk crypto pipeline's
// compression scheme (spec §4.3).
func appendFooter(pt []byte, compression Compression) []byte {
	if compression == CompressionNone {
		return append(pt, footerNoCompression)
	}

	compressed := zstdEncoder.EncodeAll(pt, nil)
	if len(compressed)+5 >= len(pt) {
		return append(pt, footerNoCompression)
	}

	out := make([]byte, 0, len(compressed)+5)
	out = append(out, compressed...)
	var szBuf [4]byte
	binary.LittleEndian.PutUint32(szBuf[:], uint32(len(pt)))
	out = append(out, szBuf[:]...)
	out = append(out, footerZstdCompressed)
	return out
}

// stripFooter reverses appendFooter, driven by the last byte.
func stripFooter(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: data chunk too small, missing footer", errCorrupt)
	}
	footer := data[len(data)-1]
	data = data[:len(data)-1]
	switch footer {
	case footerNoCompression:
		return data, nil
	case footerZstdCompressed:
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: footer missing decompressed size", errCorrupt)
		}
		sz := binary.LittleEndian.Uint32(data[len(data)-4:])
		data = data[:len(data)-4]
		pt, err := zstdDecoder.DecodeAll(data, make([]byte, 0, sz))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd decompress: %v", errCorrupt, err)
		}
		if uint32(len(pt)) != sz {
			return nil, fmt.Errorf("%w: decompressed size mismatch", errCorrupt)
		}
		return pt, nil
	default:
		return nil, fmt.Errorf("%w: unknown footer type %d", errCorrupt, footer)
	}
}
