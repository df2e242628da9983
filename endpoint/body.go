package endpoint

import (
	"io"
)

// bodyChunkSize is the size of each read issued by ReadFullBody.
const bodyChunkSize = 1 << 20 // 1MiB

// ReadFullBody reads r until it reports no more data and returns everything
// read.
//
// The loop ends on an empty read that carries an error (including io.EOF).
// A read error is not reported: the bytes received before it are returned
// as the body, and the caller treats them like any other body.
func ReadFullBody(r io.Reader) []byte {
	if r == nil {
		return nil
	}
	var buf []byte
	chunk := make([]byte, bodyChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
		if n == 0 {
			// A well-behaved reader returns an error with the final empty
			// read; treat a bare empty read the same way.
			break
		}
	}
	return buf
}
