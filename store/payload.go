// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// compressionTag identifies the codec of an encoded payload. The tag
// is the first byte of every encoded payload; values are format
// constants.
type compressionTag uint8

const (
	// compressionNone: the payload bytes follow unchanged. Used when
	// neither codec shrinks the data (already-compressed content).
	compressionNone compressionTag = 0

	// compressionLZ4: LZ4 block compression. The fast choice for the
	// small payloads that dominate chat traffic.
	compressionLZ4 compressionTag = 1

	// compressionZstd: zstd at the default level. Better ratios on
	// larger text-like payloads, so it takes over above the size
	// threshold.
	compressionZstd compressionTag = 2
)

func (tag compressionTag) String() string {
	switch tag {
	case compressionNone:
		return "none"
	case compressionLZ4:
		return "lz4"
	case compressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// zstdThreshold is the payload size at which encoding switches from
// lz4 to zstd. Below it the ratio gain does not pay for the CPU.
const zstdThreshold = 4096

// maxEncodedPlaintext bounds the declared plaintext size on decode so
// a corrupt length prefix cannot drive a huge allocation. Comfortably
// above the largest frame the protocol accepts.
const maxEncodedPlaintext = 16 << 20

// zstd encoder/decoder are shared across calls; both are safe for
// concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

var errIncompressible = errors.New("data is incompressible")

// encodePayload produces the at-rest form of a payload:
//
//	[tag: 1] [plaintext length: uvarint] [body]
//
// The codec is picked by size; either codec falls back to none when
// the output would not shrink.
func encodePayload(plaintext []byte) []byte {
	tag := compressionLZ4
	if len(plaintext) >= zstdThreshold {
		tag = compressionZstd
	}

	body, err := compress(plaintext, tag)
	if err != nil {
		tag = compressionNone
		body = plaintext
	}

	encoded := make([]byte, 1, 1+binary.MaxVarintLen64+len(body))
	encoded[0] = byte(tag)
	encoded = binary.AppendUvarint(encoded, uint64(len(plaintext)))
	return append(encoded, body...)
}

// decodePayload reverses encodePayload.
func decodePayload(encoded []byte) ([]byte, error) {
	if len(encoded) < 2 {
		return nil, fmt.Errorf("encoded payload is %d bytes, minimum is 2", len(encoded))
	}
	tag := compressionTag(encoded[0])

	size, n := binary.Uvarint(encoded[1:])
	if n <= 0 {
		return nil, errors.New("encoded payload has a malformed length prefix")
	}
	if size > maxEncodedPlaintext {
		return nil, fmt.Errorf("encoded payload declares %d plaintext bytes, limit is %d", size, maxEncodedPlaintext)
	}
	body := encoded[1+n:]

	switch tag {
	case compressionNone:
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("uncompressed payload: %d bytes does not match declared %d", len(body), size)
		}
		return body, nil

	case compressionLZ4:
		plaintext := make([]byte, size)
		read, err := lz4.UncompressBlock(body, plaintext)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, declared %d", read, size)
		}
		return plaintext, nil

	case compressionZstd:
		plaintext, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint64(len(plaintext)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, declared %d", len(plaintext), size)
		}
		return plaintext, nil

	default:
		return nil, fmt.Errorf("encoded payload has unknown compression tag %d", uint8(tag))
	}
}

func compress(plaintext []byte, tag compressionTag) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, errIncompressible
	}
	switch tag {
	case compressionLZ4:
		bound := lz4.CompressBlockBound(len(plaintext))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(plaintext, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input; a result
		// no smaller than the input is not worth storing either.
		if written == 0 || written >= len(plaintext) {
			return nil, errIncompressible
		}
		return destination[:written], nil

	case compressionZstd:
		compressed := zstdEncoder.EncodeAll(plaintext, nil)
		if len(compressed) >= len(plaintext) {
			return nil, errIncompressible
		}
		return compressed, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", uint8(tag))
	}
}
