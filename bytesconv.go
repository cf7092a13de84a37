package qlog

import "unsafe"

// unsafeString views a byte slice as a string without copying. The caller
// must not let the string outlive the backing bytes.
//
//go:inline
func unsafeString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
