package network

import (
	"io"
	"sync"
	"time"
)

// BufferedWriter batches frame writes to a client connection. Data is
// written out when the buffer would exceed maxSize, when Flush is called,
// or at the latest maxDelay after the first buffered byte.
type BufferedWriter struct {
	w         io.Writer
	buf       []byte
	mu        sync.Mutex
	err       error
	flushChan chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	maxDelay  time.Duration
	maxSize   int
}

// NewBufferedWriter creates a new buffered writer that automatically flushes
func NewBufferedWriter(w io.Writer, maxDelay time.Duration, maxSize int) *BufferedWriter {
	bw := &BufferedWriter{
		w:         w,
		buf:       make([]byte, 0, maxSize),
		flushChan: make(chan struct{}, 1),
		done:      make(chan struct{}),
		maxDelay:  maxDelay,
		maxSize:   maxSize,
	}

	go bw.flushLoop()
	return bw
}

// Write implements io.Writer. Once a write to the underlying writer has
// failed every later call returns that error.
func (bw *BufferedWriter) Write(p []byte) (int, error) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.err != nil {
		return 0, bw.err
	}

	// Flush first if adding p would exceed maxSize
	if len(bw.buf)+len(p) > bw.maxSize {
		if err := bw.flushLocked(); err != nil {
			return 0, err
		}
		// Larger than the whole buffer: write through
		if len(p) > bw.maxSize {
			if _, err := bw.w.Write(p); err != nil {
				bw.err = err
				return 0, err
			}
			return len(p), nil
		}
	}

	bw.buf = append(bw.buf, p...)

	// Schedule flush if this is the first data
	if len(bw.buf) == len(p) {
		select {
		case bw.flushChan <- struct{}{}:
		default:
		}
	}

	return len(p), nil
}

// Flush forces an immediate flush of the buffer
func (bw *BufferedWriter) Flush() error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.flushLocked()
}

// flushLocked flushes the buffer (caller must hold mutex)
func (bw *BufferedWriter) flushLocked() error {
	if bw.err != nil {
		return bw.err
	}
	if len(bw.buf) == 0 {
		return nil
	}

	_, err := bw.w.Write(bw.buf)
	bw.buf = bw.buf[:0]
	if err == nil {
		if flusher, ok := bw.w.(interface{ Flush() error }); ok {
			err = flusher.Flush()
		}
	}
	bw.err = err
	return err
}

// flushLoop runs in a goroutine to handle periodic flushing
func (bw *BufferedWriter) flushLoop() {
	timer := time.NewTimer(bw.maxDelay)
	timer.Stop()

	for {
		select {
		case <-bw.done:
			timer.Stop()
			return
		case <-bw.flushChan:
			timer.Reset(bw.maxDelay)
		case <-timer.C:
			_ = bw.Flush()
		}
	}
}

// Close flushes any remaining data and stops the flush loop. It does not
// close the underlying writer.
func (bw *BufferedWriter) Close() error {
	bw.closeOnce.Do(func() { close(bw.done) })
	return bw.Flush()
}
