//go:build !linux

package memprobe

import "errors"

func systemFree() (uint64, error) {
	return 0, errors.New("free memory probing is not supported on this platform")
}
