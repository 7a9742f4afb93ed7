// Package goid exposes the numeric identity of the calling goroutine, used to
// tag parked waiters in diagnostics.
package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

var prefix = []byte("goroutine ")

// Get returns the runtime id of the calling goroutine, parsed from the stack
// header ("goroutine N [running]:"). Returns 0 if the header cannot be
// parsed, which current runtimes never produce.
func Get() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, prefix)
	i := bytes.IndexByte(buf, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
