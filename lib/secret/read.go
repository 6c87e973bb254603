// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
)

// ReadFromPath reads a secret from a file, or from stdin when path is
// "-". Surrounding whitespace is trimmed; an empty result is an error.
// The returned buffer is protected memory and must be closed by the
// caller.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte

	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("secret: reading stdin: %w", err)
			}
			return nil, fmt.Errorf("secret: stdin is empty")
		}
		data = scanner.Bytes()
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret: %s is empty", path)
	}

	buffer, err := NewFromBytes(trimmed)
	// NewFromBytes zeroed trimmed; clear any surrounding whitespace
	// bytes it did not cover.
	Zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

// ReadHexKey reads a hex-encoded key of exactly keyLen bytes via
// ReadFromPath and decodes it into a fresh protected buffer. This is
// how the server loads its payload sealing key.
func ReadHexKey(path string, keyLen int) (*Buffer, error) {
	encoded, err := ReadFromPath(path)
	if err != nil {
		return nil, err
	}
	defer encoded.Close()

	raw := make([]byte, hex.DecodedLen(encoded.Len()))
	n, err := hex.Decode(raw, encoded.Bytes())
	if err != nil {
		Zero(raw)
		return nil, fmt.Errorf("secret: %s is not valid hex: %w", path, err)
	}
	if n != keyLen {
		Zero(raw)
		return nil, fmt.Errorf("secret: %s decodes to %d bytes, want %d", path, n, keyLen)
	}
	return NewFromBytes(raw[:n])
}
