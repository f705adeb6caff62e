package cursor

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// ProcessXor XORs every byte of data with a single key byte.
func ProcessXor(data []byte, key byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key
	}
	return out
}

// ProcessXorKey XORs data with a repeating multi-byte key. An empty key returns a copy of data.
func ProcessXorKey(data []byte, key []byte) []byte {
	out := make([]byte, len(data))
	if len(key) == 0 {
		copy(out, data)
		return out
	}
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// ProcessRotateLeft rotates the bits of each group left by amount. Only single byte groups are supported.
func ProcessRotateLeft(data []byte, amount int, groupSize int) ([]byte, error) {
	if groupSize != 1 {
		return nil, fmt.Errorf("unable to rotate group of %d bytes", groupSize)
	}
	amount = ((amount % 8) + 8) % 8
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b<<uint(amount) | b>>uint(8-amount)
	}
	return out, nil
}

// ProcessZlib inflates a zlib stream.
func ProcessZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open zlib stream: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate zlib stream: %w", err)
	}
	return out, nil
}

// BytesStripRight removes trailing pad bytes.
func BytesStripRight(data []byte, pad byte) []byte {
	end := len(data)
	for end > 0 && data[end-1] == pad {
		end--
	}
	return data[:end]
}

// BytesTerminate cuts data at the first terminator byte, keeping it when includeTerm is set.
func BytesTerminate(data []byte, term byte, includeTerm bool) []byte {
	idx := bytes.IndexByte(data, term)
	if idx < 0 {
		return data
	}
	if includeTerm {
		return data[:idx+1]
	}
	return data[:idx]
}
