// Package logstream adapts the runtime's pull-style log readers, whose Read
// calls may block on I/O, into push-style channel streams that the HTTP layer
// can drain without stalling its worker pool.
package logstream

import (
	"context"
	"io"
)

const chunkSize = 32 * 1024

// Bridge reads r on a dedicated goroutine and delivers each chunk on the
// returned channel. The channel is unbuffered, so at most one chunk is in
// flight and chunks arrive in read order. It is closed when r is exhausted or
// errors. Cancelling ctx stops the bridge and closes r; this is the only way
// to abandon a followed stream that has gone quiet.
func Bridge(ctx context.Context, r io.ReadCloser) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		defer r.Close()

		// Close the reader on cancellation so a blocked Read wakes up.
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				r.Close()
			case <-done:
			}
		}()

		buf := make([]byte, chunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				// The handoff may outlive this read, so the chunk
				// cannot alias the shared buffer.
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}
